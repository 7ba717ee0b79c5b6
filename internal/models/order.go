package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/skillexa/internal/apperrors"
)

const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
	OrderStatusRefunded  = "refunded"
)

// Hold period of instructor earnings. The refund window is the same period
const LockPeriod = 14 * 24 * time.Hour

type Order struct {
	ID        uuid.UUID
	Number    string
	UserID    uuid.UUID
	PaymentID *uuid.UUID
	Total     decimal.Decimal
	Discount  decimal.Decimal
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time

	Items []OrderItem

	// Filled only when the order is read alone
	Payment *Payment
}

// Amount the buyer has to pay
func (o Order) Payable() decimal.Decimal {
	return o.Total.Sub(o.Discount)
}

func (o Order) Validate() error {
	if o.Status == OrderStatusCompleted && o.PaymentID == nil {
		return fmt.Errorf("completed order %s has no payment: %w", o.Number, apperrors.ErrInvalidState)
	}
	return nil
}

// CanTransit reports whether order may move from its status to the next one
func (o Order) CanTransit(next string) bool {
	switch o.Status {
	case OrderStatusPending:
		return next == OrderStatusCompleted || next == OrderStatusCancelled
	case OrderStatusCompleted:
		return next == OrderStatusRefunded
	default:
		return false
	}
}

type OrderItem struct {
	ID           uuid.UUID
	OrderID      uuid.UUID
	CourseID     uuid.UUID
	InstructorID uuid.UUID

	// Snapshot of the course at purchase time
	CourseTitle string
	Price       decimal.Decimal
	Discount    decimal.Decimal

	InstructorEarning decimal.Decimal
	AdminEarning      decimal.Decimal

	IsUnlocked        bool
	IsRefunded        bool
	RefundAmount      *decimal.Decimal
	RefundInitiatedAt *time.Time
	RefundCompletedAt *time.Time

	LockedUntil time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Price paid for the item
func (i OrderItem) Effective() decimal.Decimal {
	return i.Price.Sub(i.Discount)
}

// Refundable reports whether refund window is still open at the moment
func (i OrderItem) Refundable(now time.Time) bool {
	return now.Before(i.LockedUntil)
}

// Course snapshot handed over by the cart
type CartItem struct {
	CourseID     uuid.UUID
	CourseTitle  string
	InstructorID uuid.UUID
	Price        decimal.Decimal
	Discount     decimal.Decimal
}

type RefundResult struct {
	ItemID       uuid.UUID
	OrderNumber  string
	OrderStatus  string
	RefundAmount decimal.Decimal
	RefundedAt   time.Time
}
