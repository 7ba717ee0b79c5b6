// Package wallet is the only writer of wallet balances.
// Every change of balance or locked balance is applied together with its ledger entry.
package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/skillexa/internal/models"
	"github.com/nkiryanov/skillexa/internal/money"
	"github.com/nkiryanov/skillexa/internal/numgen"
	"github.com/nkiryanov/skillexa/internal/repository"
)

type Service struct {
	storage repository.Storage
	now     func() time.Time
	number  numgen.Generator
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Generator of ledger transaction numbers
func WithNumberGenerator(gen numgen.Generator) Option {
	return func(s *Service) { s.number = gen }
}

func NewService(storage repository.Storage, opts ...Option) *Service {
	s := &Service{
		storage: storage,
		now:     time.Now,
		number:  numgen.TransactionNumber,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithStorage returns copy of the service bound to storage.
// Used to compose wallet changes with other changes in one transaction
func (s *Service) WithStorage(storage repository.Storage) *Service {
	c := *s
	c.storage = storage
	return &c
}

func (s *Service) CreateWallet(ctx context.Context, userID uuid.UUID) (models.Wallet, error) {
	return s.storage.Wallet().CreateWallet(ctx, userID)
}

// Wallet with all its ledger entries, newest first
func (s *Service) GetWallet(ctx context.Context, userID uuid.UUID) (models.WalletView, error) {
	var view models.WalletView

	wallet, err := s.storage.Wallet().GetWallet(ctx, userID)
	if err != nil {
		return view, err
	}

	transactions, err := s.storage.Wallet().ListTransactions(ctx, wallet.ID, repository.ListTransactionsOpts{})
	if err != nil {
		return view, err
	}

	return models.WalletView{Wallet: wallet, Transactions: transactions}, nil
}

// Withdrawals of spendable money, newest first. Zero limit returns all of them
func (s *Service) ListWithdrawals(ctx context.Context, userID uuid.UUID, limit int) ([]models.WalletTransaction, error) {
	wallet, err := s.storage.Wallet().GetWallet(ctx, userID)
	if err != nil {
		return nil, err
	}

	return s.storage.Wallet().ListTransactions(ctx, wallet.ID, repository.ListTransactionsOpts{
		Types:  []string{models.TransactionTypeWithdraw},
		Bucket: models.BucketBalance,
		Limit:  limit,
	})
}

// Add spendable money
func (s *Service) Deposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description string) (models.Wallet, error) {
	return s.apply(ctx, userID, nil, entry{models.TransactionTypeDeposit, models.BucketBalance, amount, description})
}

// Add money that is not spendable until released
func (s *Service) DepositLocked(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description string, orderID *uuid.UUID) (models.Wallet, error) {
	return s.apply(ctx, userID, orderID, entry{models.TransactionTypeDeposit, models.BucketLocked, amount, description})
}

// Take spendable money. Fails with apperrors.ErrInsufficientFunds if balance is less than amount
func (s *Service) Withdraw(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description string, orderID *uuid.UUID) (models.Wallet, error) {
	return s.apply(ctx, userID, orderID, entry{models.TransactionTypeWithdraw, models.BucketBalance, amount, description})
}

// Return money paid for the order
func (s *Service) Refund(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, orderID uuid.UUID, description string) (models.Wallet, error) {
	return s.apply(ctx, userID, &orderID, entry{models.TransactionTypeRefund, models.BucketBalance, amount, description})
}

// Move money from locked balance to spendable balance
func (s *Service) ReleaseLocked(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description string, orderID *uuid.UUID) (models.Wallet, error) {
	return s.apply(ctx, userID, orderID,
		entry{models.TransactionTypeWithdraw, models.BucketLocked, amount, description},
		entry{models.TransactionTypeDeposit, models.BucketBalance, amount, description},
	)
}

// Take back locked money, e.g. when sold item is refunded
func (s *Service) ReverseLocked(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description string, orderID *uuid.UUID) (models.Wallet, error) {
	return s.apply(ctx, userID, orderID, entry{models.TransactionTypeWithdraw, models.BucketLocked, amount, description})
}

// Replay ledger and compare it with stored balances
func (s *Service) Reconcile(ctx context.Context, userID uuid.UUID) (models.Reconciliation, error) {
	var r models.Reconciliation

	wallet, err := s.storage.Wallet().GetWallet(ctx, userID)
	if err != nil {
		return r, err
	}

	balance, locked, err := s.storage.Wallet().LedgerTotals(ctx, wallet.ID)
	if err != nil {
		return r, err
	}

	return models.Reconciliation{Wallet: wallet, LedgerBalance: balance, LedgerLocked: locked}, nil
}

type entry struct {
	typ         string
	bucket      string
	amount      decimal.Decimal
	description string
}

// Apply entries in one transaction, each entry in its own savepoint so number collision may be retried
func (s *Service) apply(ctx context.Context, userID uuid.UUID, orderID *uuid.UUID, entries ...entry) (models.Wallet, error) {
	var wallet models.Wallet

	for _, e := range entries {
		if err := money.Positive(e.amount); err != nil {
			return wallet, fmt.Errorf("%s: %w", e.typ, err)
		}
	}

	now := s.now().UTC().Truncate(time.Microsecond)

	err := s.storage.InTx(ctx, func(tx repository.Storage) error {
		for _, e := range entries {
			w, err := numgen.WithRetry(now, s.number, func(number string) (models.Wallet, error) {
				var w models.Wallet
				err := tx.InTx(ctx, func(sp repository.Storage) error {
					var err error
					w, _, err = sp.Wallet().ApplyTransaction(ctx, userID, models.WalletTransaction{
						ID:          uuid.New(),
						Number:      number,
						Type:        e.typ,
						Bucket:      e.bucket,
						Amount:      e.amount,
						Description: e.description,
						OrderID:     orderID,
						Status:      models.TransactionStatusCompleted,
						CreatedAt:   now,
					})
					return err
				})
				return w, err
			})
			if err != nil {
				return fmt.Errorf("%s %s: %w", e.typ, e.bucket, err)
			}
			wallet = w
		}
		return nil
	})

	return wallet, err
}
