package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type InstructorEarnings struct {
	InstructorID     uuid.UUID
	TotalEarnings    decimal.Decimal
	LockedEarnings   decimal.Decimal
	UnlockedEarnings decimal.Decimal
	SalesCount       int
}

type RevenuePoint struct {
	Day     time.Time
	Revenue decimal.Decimal
}

type RevenueReport struct {
	Since time.Time
	Total decimal.Decimal
	Daily []RevenuePoint

	// Revenue per calendar month starting from MonthlySince
	MonthlySince time.Time
	Monthly      []RevenuePoint
}
