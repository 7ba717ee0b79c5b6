package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
)

type Payment struct {
	ID                   uuid.UUID
	Number               string
	UserID               uuid.UUID
	Method               string
	Amount               decimal.Decimal
	Status               string
	GatewayTransactionID *string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Verified gateway response for an order
type PaymentConfirmation struct {
	Method               string
	Amount               decimal.Decimal
	GatewayTransactionID string
}
