package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")

	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = fmt.Errorf("user %w", ErrNotFound)

	ErrWalletNotFound    = fmt.Errorf("wallet %w", ErrNotFound)
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInsufficientFunds = errors.New("insufficient funds")

	ErrOrderNotFound     = fmt.Errorf("order %w", ErrNotFound)
	ErrOrderItemNotFound = fmt.Errorf("order item %w", ErrNotFound)
	ErrInvalidState      = errors.New("invalid state transition")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrDuplicateCourse   = errors.New("course appears in cart more than once")
	ErrForbidden         = errors.New("resource belongs to another user")

	ErrAlreadyRefunded     = errors.New("order item already refunded")
	ErrRefundWindowExpired = errors.New("refund window expired")
	ErrStillLocked         = errors.New("earnings are still locked")

	// Unique number is used already. Callers regenerate the number and retry
	ErrNumberTaken         = errors.New("generated number already taken")
	ErrGenerationExhausted = errors.New("unique number generation attempts exhausted")
)
