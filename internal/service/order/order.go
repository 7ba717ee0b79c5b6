// Package order drives orders and their items through settlement:
// purchase, payment confirmation, refund and unlock of instructor earnings.
package order

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/skillexa/internal/apperrors"
	"github.com/nkiryanov/skillexa/internal/events"
	"github.com/nkiryanov/skillexa/internal/logger"
	"github.com/nkiryanov/skillexa/internal/models"
	"github.com/nkiryanov/skillexa/internal/money"
	"github.com/nkiryanov/skillexa/internal/numgen"
	"github.com/nkiryanov/skillexa/internal/repository"
	"github.com/nkiryanov/skillexa/internal/service/wallet"
)

type OrderService struct {
	storage   repository.Storage
	wallets   *wallet.Service
	publisher events.Publisher
	logger    logger.Logger

	now           func() time.Time
	orderNumber   numgen.Generator
	paymentNumber numgen.Generator
}

type Option func(*OrderService)

func WithClock(now func() time.Time) Option {
	return func(s *OrderService) { s.now = now }
}

func WithPublisher(p events.Publisher) Option {
	return func(s *OrderService) { s.publisher = p }
}

func WithLogger(l logger.Logger) Option {
	return func(s *OrderService) { s.logger = l }
}

func WithNumberGenerators(order numgen.Generator, payment numgen.Generator) Option {
	return func(s *OrderService) {
		s.orderNumber = order
		s.paymentNumber = payment
	}
}

func NewService(storage repository.Storage, wallets *wallet.Service, opts ...Option) *OrderService {
	s := &OrderService{
		storage:       storage,
		wallets:       wallets,
		publisher:     events.NoopPublisher{},
		logger:        logger.NewNoOpLogger(),
		now:           time.Now,
		orderNumber:   numgen.OrderNumber,
		paymentNumber: numgen.PaymentNumber,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Current time as it is stored by postgres
func (s *OrderService) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// Publish events of committed changes. Failures never fail the operation
func (s *OrderService) publish(ctx context.Context, evs ...events.Event) {
	for _, e := range evs {
		if err := s.publisher.Publish(ctx, e); err != nil {
			s.logger.Warn("Failed to publish event", "event_type", e.Type, "order_number", e.OrderNumber, "error", err)
		}
	}
}

// CreateOrderFromCart creates pending order from the cart snapshot.
// Earnings are split and lock period is set for every item on creation
func (s *OrderService) CreateOrderFromCart(ctx context.Context, userID uuid.UUID, cart []models.CartItem) (models.Order, error) {
	if len(cart) == 0 {
		return models.Order{}, apperrors.ErrEmptyCart
	}

	now := s.clock()
	order := models.Order{
		ID:        uuid.New(),
		UserID:    userID,
		Status:    models.OrderStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		Items:     make([]models.OrderItem, 0, len(cart)),
	}

	seen := make(map[uuid.UUID]struct{}, len(cart))
	for _, c := range cart {
		if _, ok := seen[c.CourseID]; ok {
			return models.Order{}, fmt.Errorf("course %s: %w", c.CourseID, apperrors.ErrDuplicateCourse)
		}
		seen[c.CourseID] = struct{}{}

		item, err := newItem(order.ID, c, now)
		if err != nil {
			return models.Order{}, err
		}

		order.Total = order.Total.Add(item.Price)
		order.Discount = order.Discount.Add(item.Discount)
		order.Items = append(order.Items, item)
	}

	created, err := numgen.WithRetry(now, s.orderNumber, func(number string) (models.Order, error) {
		order.Number = number
		return s.storage.Order().CreateOrder(ctx, order)
	})
	if err != nil {
		return models.Order{}, fmt.Errorf("create order: %w", err)
	}

	s.logger.Debug("Order created", "order_number", created.Number, "items", len(created.Items), "total", created.Total)
	return created, nil
}

func newItem(orderID uuid.UUID, c models.CartItem, now time.Time) (models.OrderItem, error) {
	price := money.Round(c.Price)
	discount := money.Round(c.Discount)

	if price.IsNegative() || discount.IsNegative() || discount.GreaterThan(price) {
		return models.OrderItem{}, fmt.Errorf("course %s price %s discount %s: %w", c.CourseID, price, discount, apperrors.ErrInvalidAmount)
	}

	instructor, admin, err := money.Split(price.Sub(discount), money.EarningSplit)
	if err != nil {
		return models.OrderItem{}, err
	}

	// Time ordered ids keep items in cart order
	id, err := uuid.NewV7()
	if err != nil {
		return models.OrderItem{}, err
	}

	return models.OrderItem{
		ID:                id,
		OrderID:           orderID,
		CourseID:          c.CourseID,
		InstructorID:      c.InstructorID,
		CourseTitle:       c.CourseTitle,
		Price:             price,
		Discount:          discount,
		InstructorEarning: instructor,
		AdminEarning:      admin,
		LockedUntil:       now.Add(models.LockPeriod),
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// CompleteOrder records confirmed payment and locks instructor earnings of every item.
// Earnings are locked exactly once: only pending order may be completed
func (s *OrderService) CompleteOrder(ctx context.Context, number string, userID uuid.UUID, conf models.PaymentConfirmation) (models.Order, error) {
	now := s.clock()
	var order models.Order

	err := s.storage.InTx(ctx, func(tx repository.Storage) error {
		var err error
		order, err = lockOwnOrder(ctx, tx, repository.GetOrderOpts{Number: number}, userID)
		if err != nil {
			return err
		}

		if !order.CanTransit(models.OrderStatusCompleted) {
			return fmt.Errorf("complete %s order %s: %w", order.Status, order.Number, apperrors.ErrInvalidState)
		}
		if !conf.Amount.Equal(order.Payable()) {
			return fmt.Errorf("paid %s, expected %s: %w", conf.Amount, order.Payable(), apperrors.ErrInvalidAmount)
		}

		payment, err := s.createPayment(ctx, tx, order, conf, now)
		if err != nil {
			return err
		}

		order.Status = models.OrderStatusCompleted
		order.PaymentID = &payment.ID
		order.UpdatedAt = now
		if err := order.Validate(); err != nil {
			return err
		}

		order, err = tx.Order().UpdateOrder(ctx, order)
		if err != nil {
			return err
		}

		// Wallets are always locked in the same order
		items := slices.Clone(order.Items)
		slices.SortFunc(items, func(a, b models.OrderItem) int {
			return bytes.Compare(a.InstructorID[:], b.InstructorID[:])
		})

		wallets := s.wallets.WithStorage(tx)
		for _, item := range items {
			if !item.InstructorEarning.IsPositive() {
				continue
			}

			desc := fmt.Sprintf("Locked earning: %s (order %s)", item.CourseTitle, order.Number)
			if _, err := wallets.DepositLocked(ctx, item.InstructorID, item.InstructorEarning, desc, &order.ID); err != nil {
				return fmt.Errorf("lock earning of item %s: %w", item.ID, err)
			}
		}

		return nil
	})
	if err != nil {
		return models.Order{}, err
	}

	s.logger.Info("Order completed", "order_number", order.Number, "amount", order.Payable())
	s.publish(ctx, events.Event{
		Type:        events.TypeOrderCompleted,
		OrderID:     order.ID,
		OrderNumber: order.Number,
		UserID:      order.UserID,
		Amount:      order.Payable(),
		OccurredAt:  now,
	})

	return order, nil
}

func (s *OrderService) createPayment(ctx context.Context, tx repository.Storage, order models.Order, conf models.PaymentConfirmation, now time.Time) (models.Payment, error) {
	var gatewayID *string
	if conf.GatewayTransactionID != "" {
		gatewayID = &conf.GatewayTransactionID
	}

	return numgen.WithRetry(now, s.paymentNumber, func(number string) (models.Payment, error) {
		var payment models.Payment

		// Savepoint keeps the transaction usable after number collision
		err := tx.InTx(ctx, func(sp repository.Storage) error {
			var err error
			payment, err = sp.Payment().CreatePayment(ctx, models.Payment{
				ID:                   uuid.New(),
				Number:               number,
				UserID:               order.UserID,
				Method:               conf.Method,
				Amount:               conf.Amount,
				Status:               models.PaymentStatusCompleted,
				GatewayTransactionID: gatewayID,
				CreatedAt:            now,
				UpdatedAt:            now,
			})
			return err
		})

		return payment, err
	})
}

// Lock the order and check it belongs to the user
func lockOwnOrder(ctx context.Context, tx repository.Storage, opts repository.GetOrderOpts, userID uuid.UUID) (models.Order, error) {
	opts.ForUpdate = true
	order, err := tx.Order().GetOrder(ctx, opts)
	if err != nil {
		return order, err
	}

	if order.UserID != userID {
		return models.Order{}, fmt.Errorf("order %s: %w", order.Number, apperrors.ErrForbidden)
	}

	return order, nil
}

// Cancel pending order of the user
func (s *OrderService) CancelOrder(ctx context.Context, number string, userID uuid.UUID) (models.Order, error) {
	now := s.clock()
	var order models.Order

	err := s.storage.InTx(ctx, func(tx repository.Storage) error {
		var err error
		order, err = lockOwnOrder(ctx, tx, repository.GetOrderOpts{Number: number}, userID)
		if err != nil {
			return err
		}

		order, err = cancel(ctx, tx, order, now)
		return err
	})
	if err != nil {
		return models.Order{}, err
	}

	s.publishCancelled(ctx, order)
	return order, nil
}

func cancel(ctx context.Context, tx repository.Storage, order models.Order, now time.Time) (models.Order, error) {
	if !order.CanTransit(models.OrderStatusCancelled) {
		return order, fmt.Errorf("cancel %s order %s: %w", order.Status, order.Number, apperrors.ErrInvalidState)
	}

	order.Status = models.OrderStatusCancelled
	order.UpdatedAt = now
	return tx.Order().UpdateOrder(ctx, order)
}

func (s *OrderService) publishCancelled(ctx context.Context, order models.Order) {
	s.publish(ctx, events.Event{
		Type:        events.TypeOrderCancelled,
		OrderID:     order.ID,
		OrderNumber: order.Number,
		UserID:      order.UserID,
		Amount:      order.Payable(),
		OccurredAt:  order.UpdatedAt,
	})
}

// CancelAbandoned cancels pending orders created before the cutoff.
// Returns count of cancelled orders; failed orders are skipped and reported together
func (s *OrderService) CancelAbandoned(ctx context.Context, createdBefore time.Time) (int, error) {
	orders, err := s.storage.Order().ListOrders(ctx, repository.ListOrdersOpts{
		Statuses:      []string{models.OrderStatusPending},
		CreatedBefore: createdBefore,
	})
	if err != nil {
		return 0, fmt.Errorf("list abandoned orders: %w", err)
	}

	var (
		cancelled int
		errs      []error
	)
	for _, o := range orders {
		var order models.Order
		err := s.storage.InTx(ctx, func(tx repository.Storage) error {
			var err error
			order, err = tx.Order().GetOrder(ctx, repository.GetOrderOpts{ID: o.ID, ForUpdate: true})
			if err != nil {
				return err
			}

			// Completed or cancelled by someone else meanwhile
			if order.Status != models.OrderStatusPending {
				order = models.Order{}
				return nil
			}

			order, err = cancel(ctx, tx, order, s.clock())
			return err
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("cancel order %s: %w", o.Number, err))
			continue
		}
		if order.ID == uuid.Nil {
			continue
		}

		cancelled++
		s.publishCancelled(ctx, order)
	}

	return cancelled, errors.Join(errs...)
}

// Get order of the user with its payment if order is paid
func (s *OrderService) GetOrder(ctx context.Context, number string, userID uuid.UUID) (models.Order, error) {
	order, err := s.storage.Order().GetOrder(ctx, repository.GetOrderOpts{Number: number})
	if err != nil {
		return order, err
	}

	if order.UserID != userID {
		return models.Order{}, fmt.Errorf("order %s: %w", number, apperrors.ErrForbidden)
	}

	if order.PaymentID != nil {
		payment, err := s.storage.Payment().GetPayment(ctx, *order.PaymentID)
		if err != nil {
			return models.Order{}, fmt.Errorf("payment of order %s: %w", number, err)
		}
		order.Payment = &payment
	}

	return order, nil
}

// Orders of the user, newest first
func (s *OrderService) ListOrders(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	return s.storage.Order().ListOrders(ctx, repository.ListOrdersOpts{UserID: userID})
}

// RequestRefund refunds the item to the buyer and takes back locked instructor earning.
// Order becomes refunded when every its item is refunded
func (s *OrderService) RequestRefund(ctx context.Context, itemID uuid.UUID, userID uuid.UUID) (models.RefundResult, error) {
	now := s.clock()
	var (
		result models.RefundResult
		order  models.Order
	)

	err := s.storage.InTx(ctx, func(tx repository.Storage) error {
		item, err := tx.Order().GetItem(ctx, itemID, true)
		if err != nil {
			return err
		}

		order, err = lockOwnOrder(ctx, tx, repository.GetOrderOpts{ID: item.OrderID}, userID)
		if err != nil {
			return err
		}

		switch {
		case item.IsRefunded:
			return fmt.Errorf("item %s: %w", item.ID, apperrors.ErrAlreadyRefunded)
		case order.Status != models.OrderStatusCompleted:
			return fmt.Errorf("refund item of %s order %s: %w", order.Status, order.Number, apperrors.ErrInvalidState)
		case item.IsUnlocked:
			return fmt.Errorf("refund item %s with unlocked earning: %w", item.ID, apperrors.ErrInvalidState)
		case !item.Refundable(now):
			return fmt.Errorf("item %s refundable until %s: %w", item.ID, item.LockedUntil, apperrors.ErrRefundWindowExpired)
		}

		refund := item.Effective()
		earning := item.InstructorEarning

		item.IsRefunded = true
		item.RefundAmount = &refund
		item.RefundInitiatedAt = &now
		item.RefundCompletedAt = &now
		item.InstructorEarning = decimal.Zero
		item.AdminEarning = decimal.Zero
		item.UpdatedAt = now

		item, err = tx.Order().UpdateItem(ctx, item)
		if err != nil {
			return err
		}

		if err := s.reverse(ctx, tx, order, item, refund, earning); err != nil {
			return err
		}

		order = replaceItem(order, item)
		if allRefunded(order.Items) {
			if !order.CanTransit(models.OrderStatusRefunded) {
				return fmt.Errorf("refund %s order %s: %w", order.Status, order.Number, apperrors.ErrInvalidState)
			}
			order.Status = models.OrderStatusRefunded
			order.UpdatedAt = now
			if order, err = tx.Order().UpdateOrder(ctx, order); err != nil {
				return err
			}
		}

		result = models.RefundResult{
			ItemID:       item.ID,
			OrderNumber:  order.Number,
			OrderStatus:  order.Status,
			RefundAmount: refund,
			RefundedAt:   now,
		}
		return nil
	})
	if err != nil {
		return result, err
	}

	s.logger.Info("Order item refunded", "item_id", itemID, "order_number", result.OrderNumber, "amount", result.RefundAmount)
	s.publish(ctx, events.Event{
		Type:        events.TypeItemRefunded,
		OrderID:     order.ID,
		OrderNumber: order.Number,
		ItemID:      &result.ItemID,
		UserID:      order.UserID,
		Amount:      result.RefundAmount,
		OccurredAt:  now,
	})

	return result, nil
}

// Return money to the buyer and take locked earning from the instructor.
// Wallets are changed in user id order, zero amounts are skipped
func (s *OrderService) reverse(ctx context.Context, tx repository.Storage, order models.Order, item models.OrderItem, refund decimal.Decimal, earning decimal.Decimal) error {
	wallets := s.wallets.WithStorage(tx)

	refundBuyer := func() error {
		if !refund.IsPositive() {
			return nil
		}
		desc := fmt.Sprintf("Refund: %s (order %s)", item.CourseTitle, order.Number)
		_, err := wallets.Refund(ctx, order.UserID, refund, order.ID, desc)
		return err
	}
	reverseInstructor := func() error {
		if !earning.IsPositive() {
			return nil
		}
		desc := fmt.Sprintf("Refunded: %s (order %s)", item.CourseTitle, order.Number)
		_, err := wallets.ReverseLocked(ctx, item.InstructorID, earning, desc, &order.ID)
		return err
	}

	steps := []func() error{refundBuyer, reverseInstructor}
	if bytes.Compare(item.InstructorID[:], order.UserID[:]) < 0 {
		slices.Reverse(steps)
	}

	for _, step := range steps {
		if err := step(); err != nil {
			return fmt.Errorf("refund item %s: %w", item.ID, err)
		}
	}
	return nil
}

func replaceItem(order models.Order, item models.OrderItem) models.Order {
	order.Items = slices.Clone(order.Items)
	for i := range order.Items {
		if order.Items[i].ID == item.ID {
			order.Items[i] = item
		}
	}
	return order
}

func allRefunded(items []models.OrderItem) bool {
	for _, i := range items {
		if !i.IsRefunded {
			return false
		}
	}
	return len(items) > 0
}

// UnlockEarnings moves instructor earning of the item from locked to spendable balance.
// Returns false if the earning is unlocked already
func (s *OrderService) UnlockEarnings(ctx context.Context, itemID uuid.UUID) (bool, error) {
	now := s.clock()
	var (
		unlocked bool
		item     models.OrderItem
		order    models.Order
	)

	err := s.storage.InTx(ctx, func(tx repository.Storage) error {
		var err error
		item, err = tx.Order().GetItem(ctx, itemID, true)
		if err != nil {
			return err
		}

		if item.IsRefunded {
			return fmt.Errorf("item %s: %w", item.ID, apperrors.ErrAlreadyRefunded)
		}
		if item.IsUnlocked {
			return nil
		}

		order, err = tx.Order().GetOrder(ctx, repository.GetOrderOpts{ID: item.OrderID})
		if err != nil {
			return err
		}

		if order.Status != models.OrderStatusCompleted {
			return fmt.Errorf("unlock item of %s order %s: %w", order.Status, order.Number, apperrors.ErrInvalidState)
		}
		if now.Before(item.LockedUntil) {
			return fmt.Errorf("item %s locked until %s: %w", item.ID, item.LockedUntil, apperrors.ErrStillLocked)
		}

		if item.InstructorEarning.IsPositive() {
			buyer, err := tx.User().GetUserByID(ctx, order.UserID)
			if err != nil {
				return err
			}

			desc := fmt.Sprintf("%s purchased by %s", item.CourseTitle, buyer.Username)
			_, err = s.wallets.WithStorage(tx).ReleaseLocked(ctx, item.InstructorID, item.InstructorEarning, desc, &order.ID)
			if err != nil {
				return fmt.Errorf("unlock item %s: %w", item.ID, err)
			}
		}

		item.IsUnlocked = true
		item.UpdatedAt = now
		if item, err = tx.Order().UpdateItem(ctx, item); err != nil {
			return err
		}

		unlocked = true
		return nil
	})
	if err != nil || !unlocked {
		return false, err
	}

	s.logger.Debug("Earning unlocked", "item_id", item.ID, "instructor_id", item.InstructorID, "amount", item.InstructorEarning)
	s.publish(ctx, events.Event{
		Type:        events.TypeEarningsUnlocked,
		OrderID:     order.ID,
		OrderNumber: order.Number,
		ItemID:      &item.ID,
		UserID:      item.InstructorID,
		Amount:      item.InstructorEarning,
		OccurredAt:  now,
	})

	return true, nil
}

// Items whose earnings are due to unlock now
func (s *OrderService) ListUnlockable(ctx context.Context, limit int) ([]models.OrderItem, error) {
	return s.storage.Order().ListUnlockable(ctx, s.clock(), limit)
}
