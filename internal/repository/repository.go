package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/skillexa/internal/models"
)

// Storage gives access to every repository bound to the same connection or transaction
type Storage interface {
	User() UserRepo
	Wallet() WalletRepo
	Order() OrderRepo
	Payment() PaymentRepo
	Report() ReportRepo

	// Run fn in transaction. Nested calls create savepoints.
	// Transaction is committed if fn returns nil and rolled back otherwise
	InTx(ctx context.Context, fn func(Storage) error) error
}

// User repository interface
type UserRepo interface {
	// Create user
	// If user with username exists already has to return error apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, username string, hashedPassword string) (models.User, error)

	// Get user by it's id or username
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
}

// Zero fields mean no filter
type ListTransactionsOpts struct {
	Types  []string
	Bucket string
	Limit  int
}

type WalletRepo interface {
	// Create empty wallet for the user
	// If user not exists has to return apperrors.ErrUserNotFound
	CreateWallet(ctx context.Context, userID uuid.UUID) (models.Wallet, error)

	// If wallet not found must return apperrors.ErrWalletNotFound
	GetWallet(ctx context.Context, userID uuid.UUID) (models.Wallet, error)

	// Change user wallet by the entry and append the entry to the ledger atomically.
	// Balances never become negative: has to return apperrors.ErrInsufficientFunds instead.
	// If wallet not found must return apperrors.ErrWalletNotFound
	// If entry number is used already must return apperrors.ErrNumberTaken
	ApplyTransaction(ctx context.Context, userID uuid.UUID, entry models.WalletTransaction) (models.Wallet, models.WalletTransaction, error)

	// Ledger entries of the wallet, newest first
	ListTransactions(ctx context.Context, walletID uuid.UUID, opts ListTransactionsOpts) ([]models.WalletTransaction, error)

	// Balances replayed from completed ledger entries
	LedgerTotals(ctx context.Context, walletID uuid.UUID) (balance decimal.Decimal, locked decimal.Decimal, err error)
}

type GetOrderOpts struct {
	ID     uuid.UUID
	Number string

	// Lock order row till the end of the transaction
	ForUpdate bool
}

type ListOrdersOpts struct {
	UserID        uuid.UUID
	Statuses      []string
	CreatedBefore time.Time
	Limit         int
}

type OrderRepo interface {
	// Create order with its items
	// If order number is used already must return apperrors.ErrNumberTaken
	// If buyer or instructor not exists must return apperrors.ErrUserNotFound
	CreateOrder(ctx context.Context, order models.Order) (models.Order, error)

	// Get order with its items by id or number
	// If order not found must return apperrors.ErrOrderNotFound
	GetOrder(ctx context.Context, opts GetOrderOpts) (models.Order, error)

	// Orders with items, newest first
	ListOrders(ctx context.Context, opts ListOrdersOpts) ([]models.Order, error)

	// Persist order status and payment reference
	UpdateOrder(ctx context.Context, order models.Order) (models.Order, error)

	// If item not found must return apperrors.ErrOrderItemNotFound
	GetItem(ctx context.Context, itemID uuid.UUID, forUpdate bool) (models.OrderItem, error)

	// Persist item settlement state: earnings, unlock and refund fields.
	// Course snapshot and locked_until are never updated
	UpdateItem(ctx context.Context, item models.OrderItem) (models.OrderItem, error)

	// Items of completed orders whose earnings are due to unlock at the moment
	ListUnlockable(ctx context.Context, now time.Time, limit int) ([]models.OrderItem, error)
}

type PaymentRepo interface {
	// If payment number is used already must return apperrors.ErrNumberTaken
	// If gateway transaction is attached to another payment must return apperrors.ErrInvalidState
	CreatePayment(ctx context.Context, payment models.Payment) (models.Payment, error)

	GetPayment(ctx context.Context, paymentID uuid.UUID) (models.Payment, error)
}

// Read-only aggregations over settled order items
type ReportRepo interface {
	InstructorEarnings(ctx context.Context, instructorID uuid.UUID) (models.InstructorEarnings, error)
	AdminRevenue(ctx context.Context, since time.Time) (models.RevenueReport, error)

	// Admin revenue since the moment grouped per UTC calendar month
	MonthlyRevenue(ctx context.Context, since time.Time) ([]models.RevenuePoint, error)
}
