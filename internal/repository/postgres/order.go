package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/skillexa/internal/apperrors"
	"github.com/nkiryanov/skillexa/internal/models"
	"github.com/nkiryanov/skillexa/internal/repository"
)

type OrderRepo struct {
	DB DBTX
}

const orderColumns = `id, number, user_id, payment_id, total, discount, status, created_at, updated_at`

const itemColumns = `id, order_id, course_id, instructor_id, course_title, price, discount,
	instructor_earning, admin_earning, is_unlocked, is_refunded,
	refund_amount, refund_initiated_at, refund_completed_at,
	locked_until, created_at, updated_at`

const createOrder = `-- name: CreateOrder
INSERT INTO orders (` + orderColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + orderColumns

const createOrderItem = `-- name: CreateOrderItem
INSERT INTO order_items (` + itemColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
RETURNING ` + itemColumns

func (r *OrderRepo) CreateOrder(ctx context.Context, o models.Order) (models.Order, error) {
	var created models.Order

	err := pgx.BeginFunc(ctx, r.DB, func(tx pgx.Tx) error {
		rows, _ := tx.Query(ctx, createOrder,
			o.ID, o.Number, o.UserID, o.PaymentID, o.Total, o.Discount, o.Status, o.CreatedAt, o.UpdatedAt,
		)
		order, err := pgx.CollectOneRow(rows, rowToOrder)
		if err != nil {
			return err
		}

		order.Items = make([]models.OrderItem, 0, len(o.Items))
		for _, i := range o.Items {
			rows, _ := tx.Query(ctx, createOrderItem,
				i.ID, order.ID, i.CourseID, i.InstructorID, i.CourseTitle, i.Price, i.Discount,
				i.InstructorEarning, i.AdminEarning, i.IsUnlocked, i.IsRefunded,
				i.RefundAmount, i.RefundInitiatedAt, i.RefundCompletedAt,
				i.LockedUntil, i.CreatedAt, i.UpdatedAt,
			)
			item, err := pgx.CollectOneRow(rows, rowToOrderItem)
			if err != nil {
				return err
			}
			order.Items = append(order.Items, item)
		}

		created = order
		return nil
	})

	if err != nil {
		if constraint, ok := uniqueViolated(err); ok {
			switch constraint {
			case "orders_number_key":
				return created, apperrors.ErrNumberTaken
			case "order_items_order_id_course_id_key":
				return created, apperrors.ErrDuplicateCourse
			}
		}
		if _, ok := foreignKeyViolated(err); ok {
			return created, apperrors.ErrUserNotFound
		}

		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

const getOrderByID = `-- name: GetOrderByID
SELECT ` + orderColumns + ` FROM orders
WHERE id = $1
`

const getOrderByNumber = `-- name: GetOrderByNumber
SELECT ` + orderColumns + ` FROM orders
WHERE number = $1
`

func (r *OrderRepo) GetOrder(ctx context.Context, opts repository.GetOrderOpts) (models.Order, error) {
	var (
		query string
		arg   any
	)

	switch {
	case opts.ID != uuid.Nil:
		query, arg = getOrderByID, opts.ID
	case opts.Number != "":
		query, arg = getOrderByNumber, opts.Number
	default:
		return models.Order{}, errors.New("order id or number required")
	}

	if opts.ForUpdate {
		query += "FOR UPDATE\n"
	}

	rows, _ := r.DB.Query(ctx, query, arg)
	order, err := pgx.CollectOneRow(rows, rowToOrder)

	switch {
	case err == nil:
	case errors.Is(err, pgx.ErrNoRows):
		return order, apperrors.ErrOrderNotFound
	default:
		return order, fmt.Errorf("db error: %w", err)
	}

	orders := []models.Order{order}
	if err := r.attachItems(ctx, orders); err != nil {
		return order, err
	}

	return orders[0], nil
}

const listOrders = `-- name: ListOrders
SELECT ` + orderColumns + ` FROM orders
WHERE ($1::uuid IS NULL OR user_id = $1::uuid)
	AND ($2::text[] IS NULL OR status = ANY($2::text[]))
	AND ($3::timestamptz IS NULL OR created_at < $3::timestamptz)
ORDER BY created_at DESC, number DESC
LIMIT NULLIF($4::int, 0)
`

func (r *OrderRepo) ListOrders(ctx context.Context, opts repository.ListOrdersOpts) ([]models.Order, error) {
	var (
		userID        *uuid.UUID
		createdBefore *time.Time
	)
	if opts.UserID != uuid.Nil {
		userID = &opts.UserID
	}
	if !opts.CreatedBefore.IsZero() {
		createdBefore = &opts.CreatedBefore
	}

	rows, _ := r.DB.Query(ctx, listOrders, userID, opts.Statuses, createdBefore, opts.Limit)
	orders, err := pgx.CollectRows(rows, rowToOrder)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}

	return orders, nil
}

const listOrderItems = `-- name: ListOrderItems
SELECT ` + itemColumns + ` FROM order_items
WHERE order_id = ANY($1::uuid[])
ORDER BY created_at, id
`

func (r *OrderRepo) attachItems(ctx context.Context, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, 0, len(orders))
	index := make(map[uuid.UUID]int, len(orders))
	for i, o := range orders {
		ids = append(ids, o.ID)
		index[o.ID] = i
		orders[i].Items = []models.OrderItem{}
	}

	rows, _ := r.DB.Query(ctx, listOrderItems, ids)
	items, err := pgx.CollectRows(rows, rowToOrderItem)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	for _, item := range items {
		i := index[item.OrderID]
		orders[i].Items = append(orders[i].Items, item)
	}

	return nil
}

const updateOrder = `-- name: UpdateOrder
UPDATE orders
SET status = $2, payment_id = $3, updated_at = $4
WHERE id = $1
RETURNING ` + orderColumns

func (r *OrderRepo) UpdateOrder(ctx context.Context, o models.Order) (models.Order, error) {
	rows, _ := r.DB.Query(ctx, updateOrder, o.ID, o.Status, o.PaymentID, o.UpdatedAt)
	updated, err := pgx.CollectOneRow(rows, rowToOrder)

	switch {
	case err == nil:
		updated.Items = o.Items
		return updated, nil
	case errors.Is(err, pgx.ErrNoRows):
		return updated, apperrors.ErrOrderNotFound
	default:
		return updated, fmt.Errorf("db error: %w", err)
	}
}

const getOrderItem = `-- name: GetOrderItem
SELECT ` + itemColumns + ` FROM order_items
WHERE id = $1
`

func (r *OrderRepo) GetItem(ctx context.Context, itemID uuid.UUID, forUpdate bool) (models.OrderItem, error) {
	query := getOrderItem
	if forUpdate {
		query += "FOR UPDATE\n"
	}

	rows, _ := r.DB.Query(ctx, query, itemID)
	item, err := pgx.CollectOneRow(rows, rowToOrderItem)

	switch {
	case err == nil:
		return item, nil
	case errors.Is(err, pgx.ErrNoRows):
		return item, apperrors.ErrOrderItemNotFound
	default:
		return item, fmt.Errorf("db error: %w", err)
	}
}

const updateOrderItem = `-- name: UpdateOrderItem
UPDATE order_items
SET instructor_earning = $2,
	admin_earning = $3,
	is_unlocked = $4,
	is_refunded = $5,
	refund_amount = $6,
	refund_initiated_at = $7,
	refund_completed_at = $8,
	updated_at = $9
WHERE id = $1
RETURNING ` + itemColumns

func (r *OrderRepo) UpdateItem(ctx context.Context, i models.OrderItem) (models.OrderItem, error) {
	rows, _ := r.DB.Query(ctx, updateOrderItem,
		i.ID, i.InstructorEarning, i.AdminEarning, i.IsUnlocked, i.IsRefunded,
		i.RefundAmount, i.RefundInitiatedAt, i.RefundCompletedAt, i.UpdatedAt,
	)
	item, err := pgx.CollectOneRow(rows, rowToOrderItem)

	switch {
	case err == nil:
		return item, nil
	case errors.Is(err, pgx.ErrNoRows):
		return item, apperrors.ErrOrderItemNotFound
	default:
		return item, fmt.Errorf("db error: %w", err)
	}
}

const listUnlockable = `-- name: ListUnlockable
SELECT i.id, i.order_id, i.course_id, i.instructor_id, i.course_title, i.price, i.discount,
	i.instructor_earning, i.admin_earning, i.is_unlocked, i.is_refunded,
	i.refund_amount, i.refund_initiated_at, i.refund_completed_at,
	i.locked_until, i.created_at, i.updated_at
FROM order_items i
JOIN orders o ON o.id = i.order_id
WHERE NOT i.is_unlocked
	AND NOT i.is_refunded
	AND i.instructor_earning > 0
	AND i.locked_until <= $1
	AND o.status = 'completed'
ORDER BY i.locked_until, i.id
LIMIT NULLIF($2::int, 0)
`

func (r *OrderRepo) ListUnlockable(ctx context.Context, now time.Time, limit int) ([]models.OrderItem, error) {
	rows, _ := r.DB.Query(ctx, listUnlockable, now, limit)
	items, err := pgx.CollectRows(rows, rowToOrderItem)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return items, nil
}

func rowToOrder(row pgx.CollectableRow) (models.Order, error) {
	var o models.Order
	err := row.Scan(&o.ID, &o.Number, &o.UserID, &o.PaymentID, &o.Total, &o.Discount, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func rowToOrderItem(row pgx.CollectableRow) (models.OrderItem, error) {
	var i models.OrderItem
	err := row.Scan(
		&i.ID, &i.OrderID, &i.CourseID, &i.InstructorID, &i.CourseTitle, &i.Price, &i.Discount,
		&i.InstructorEarning, &i.AdminEarning, &i.IsUnlocked, &i.IsRefunded,
		&i.RefundAmount, &i.RefundInitiatedAt, &i.RefundCompletedAt,
		&i.LockedUntil, &i.CreatedAt, &i.UpdatedAt,
	)
	return i, err
}
