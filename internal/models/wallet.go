package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	TransactionTypeDeposit  = "deposit"
	TransactionTypeWithdraw = "withdraw"
	TransactionTypeRefund   = "refund"
	TransactionTypePurchase = "purchase"
)

const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
)

// Which wallet field the ledger entry moves
const (
	BucketBalance = "balance"
	BucketLocked  = "locked"
)

type Wallet struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	Balance       decimal.Decimal
	LockedBalance decimal.Decimal
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Immutable ledger entry. Amount is always positive, the sign follows from Type
type WalletTransaction struct {
	ID          uuid.UUID
	WalletID    uuid.UUID
	Number      string
	Type        string
	Bucket      string
	Amount      decimal.Decimal
	Description string
	OrderID     *uuid.UUID
	Status      string
	CreatedAt   time.Time
}

// Credit reports whether the entry increases its bucket
func (t WalletTransaction) Credit() bool {
	return t.Type == TransactionTypeDeposit || t.Type == TransactionTypeRefund
}

// Signed change the entry applies to its bucket
func (t WalletTransaction) Signed() decimal.Decimal {
	if t.Credit() {
		return t.Amount
	}
	return t.Amount.Neg()
}

// Deltas returns changes of balance and locked balance
func (t WalletTransaction) Deltas() (balance decimal.Decimal, locked decimal.Decimal) {
	if t.Bucket == BucketLocked {
		return decimal.Zero, t.Signed()
	}
	return t.Signed(), decimal.Zero
}

// Wallet with its ledger, newest entries first
type WalletView struct {
	Wallet
	Transactions []WalletTransaction
}

// Result of replaying the ledger against stored balances
type Reconciliation struct {
	Wallet        Wallet
	LedgerBalance decimal.Decimal
	LedgerLocked  decimal.Decimal
}

func (r Reconciliation) Consistent() bool {
	return r.Wallet.Balance.Equal(r.LedgerBalance) && r.Wallet.LockedBalance.Equal(r.LedgerLocked)
}
