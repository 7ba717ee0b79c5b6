package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/skillexa/internal/apperrors"
	"github.com/nkiryanov/skillexa/internal/models"
	"github.com/nkiryanov/skillexa/internal/repository"
)

type WalletRepo struct {
	DB DBTX
}

const walletColumns = `id, user_id, balance, locked_balance, created_at, updated_at`

const createWallet = `-- name: CreateWallet
INSERT INTO wallets (id, user_id, balance, locked_balance)
VALUES ($1, $2, 0, 0)
RETURNING ` + walletColumns

func (r *WalletRepo) CreateWallet(ctx context.Context, userID uuid.UUID) (models.Wallet, error) {
	rows, _ := r.DB.Query(ctx, createWallet, uuid.New(), userID)
	wallet, err := pgx.CollectOneRow(rows, rowToWallet)

	if err != nil {
		if _, ok := uniqueViolated(err); ok {
			return wallet, fmt.Errorf("user wallet already exists: %w", err)
		}
		if _, ok := foreignKeyViolated(err); ok {
			return wallet, apperrors.ErrUserNotFound
		}

		return wallet, fmt.Errorf("db error: %w", err)
	}

	return wallet, nil
}

const getWallet = `-- name: GetWallet
SELECT ` + walletColumns + ` FROM wallets
WHERE user_id = $1
`

func (r *WalletRepo) GetWallet(ctx context.Context, userID uuid.UUID) (models.Wallet, error) {
	rows, _ := r.DB.Query(ctx, getWallet, userID)
	wallet, err := pgx.CollectOneRow(rows, rowToWallet)

	switch {
	case err == nil:
		return wallet, nil
	case errors.Is(err, pgx.ErrNoRows):
		return wallet, apperrors.ErrWalletNotFound
	default:
		return wallet, fmt.Errorf("db error: %w", err)
	}
}

// Conditional update and ledger insert in one statement.
// Concurrent writers wait for the row lock and re-check the condition against the fresh balances
const applyTransaction = `-- name: ApplyTransaction
WITH updated AS (
	UPDATE wallets
	SET balance = balance + $2::numeric,
		locked_balance = locked_balance + $3::numeric,
		updated_at = $4
	WHERE user_id = $1
		AND balance + $2::numeric >= 0
		AND locked_balance + $3::numeric >= 0
	RETURNING ` + walletColumns + `
), entry AS (
	INSERT INTO wallet_transactions (id, wallet_id, number, type, bucket, amount, description, order_id, status, created_at)
	SELECT $5, updated.id, $6, $7, $8, $9, $10, $11, $12, $4
	FROM updated
	RETURNING ` + transactionColumns + `
)
SELECT
	u.id, u.user_id, u.balance, u.locked_balance, u.created_at, u.updated_at,
	e.id, e.wallet_id, e.number, e.type, e.bucket, e.amount, e.description, e.order_id, e.status, e.created_at
FROM updated u CROSS JOIN entry e
`

const walletExists = `-- name: WalletExists
SELECT EXISTS (SELECT 1 FROM wallets WHERE user_id = $1)
`

func (r *WalletRepo) ApplyTransaction(ctx context.Context, userID uuid.UUID, entry models.WalletTransaction) (models.Wallet, models.WalletTransaction, error) {
	balanceDelta, lockedDelta := entry.Deltas()

	rows, _ := r.DB.Query(ctx, applyTransaction,
		userID, balanceDelta, lockedDelta, entry.CreatedAt,
		entry.ID, entry.Number, entry.Type, entry.Bucket, entry.Amount, entry.Description, entry.OrderID, entry.Status,
	)
	type applied struct {
		wallet models.Wallet
		entry  models.WalletTransaction
	}
	res, err := pgx.CollectOneRow(rows, func(row pgx.CollectableRow) (applied, error) {
		var a applied
		err := row.Scan(
			&a.wallet.ID, &a.wallet.UserID, &a.wallet.Balance, &a.wallet.LockedBalance, &a.wallet.CreatedAt, &a.wallet.UpdatedAt,
			&a.entry.ID, &a.entry.WalletID, &a.entry.Number, &a.entry.Type, &a.entry.Bucket, &a.entry.Amount,
			&a.entry.Description, &a.entry.OrderID, &a.entry.Status, &a.entry.CreatedAt,
		)
		return a, err
	})

	switch {
	case err == nil:
		return res.wallet, res.entry, nil
	case errors.Is(err, pgx.ErrNoRows):
		// Nothing updated: either no wallet or not enough money
	default:
		if constraint, ok := uniqueViolated(err); ok && constraint == "wallet_transactions_number_key" {
			return res.wallet, res.entry, apperrors.ErrNumberTaken
		}
		if constraint, ok := foreignKeyViolated(err); ok && constraint == "wallet_transactions_order_id_fkey" {
			return res.wallet, res.entry, apperrors.ErrOrderNotFound
		}
		return res.wallet, res.entry, fmt.Errorf("db error: %w", err)
	}

	var exists bool
	if err := r.DB.QueryRow(ctx, walletExists, userID).Scan(&exists); err != nil {
		return res.wallet, res.entry, fmt.Errorf("db error: %w", err)
	}
	if !exists {
		return res.wallet, res.entry, apperrors.ErrWalletNotFound
	}

	return res.wallet, res.entry, fmt.Errorf("%s %s of %s: %w", entry.Type, entry.Bucket, entry.Amount, apperrors.ErrInsufficientFunds)
}

const transactionColumns = `id, wallet_id, number, type, bucket, amount, description, order_id, status, created_at`

const listTransactions = `-- name: ListTransactions
SELECT ` + transactionColumns + ` FROM wallet_transactions
WHERE wallet_id = $1
	AND ($2::text[] IS NULL OR type = ANY($2::text[]))
	AND (NULLIF($3::text, '') IS NULL OR bucket = $3::text)
ORDER BY created_at DESC, number DESC
LIMIT NULLIF($4::int, 0)
`

func (r *WalletRepo) ListTransactions(ctx context.Context, walletID uuid.UUID, opts repository.ListTransactionsOpts) ([]models.WalletTransaction, error) {
	rows, _ := r.DB.Query(ctx, listTransactions, walletID, opts.Types, opts.Bucket, opts.Limit)
	transactions, err := pgx.CollectRows(rows, rowToTransaction)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return transactions, nil
}

const ledgerTotals = `-- name: LedgerTotals
SELECT
	COALESCE(SUM(CASE WHEN type IN ('deposit', 'refund') THEN amount ELSE -amount END) FILTER (WHERE bucket = 'balance'), 0),
	COALESCE(SUM(CASE WHEN type IN ('deposit', 'refund') THEN amount ELSE -amount END) FILTER (WHERE bucket = 'locked'), 0)
FROM wallet_transactions
WHERE wallet_id = $1 AND status = 'completed'
`

func (r *WalletRepo) LedgerTotals(ctx context.Context, walletID uuid.UUID) (balance decimal.Decimal, locked decimal.Decimal, err error) {
	err = r.DB.QueryRow(ctx, ledgerTotals, walletID).Scan(&balance, &locked)
	if err != nil {
		return balance, locked, fmt.Errorf("db error: %w", err)
	}

	return balance, locked, nil
}

func rowToWallet(row pgx.CollectableRow) (models.Wallet, error) {
	var w models.Wallet
	err := row.Scan(&w.ID, &w.UserID, &w.Balance, &w.LockedBalance, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}

func rowToTransaction(row pgx.CollectableRow) (models.WalletTransaction, error) {
	var t models.WalletTransaction
	err := row.Scan(&t.ID, &t.WalletID, &t.Number, &t.Type, &t.Bucket, &t.Amount, &t.Description, &t.OrderID, &t.Status, &t.CreatedAt)
	return t, err
}
