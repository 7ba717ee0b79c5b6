package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/skillexa/internal/apperrors"
	"github.com/nkiryanov/skillexa/internal/models"
)

type PaymentRepo struct {
	DB DBTX
}

const paymentColumns = `id, number, user_id, method, amount, status, gateway_transaction_id, created_at, updated_at`

const createPayment = `-- name: CreatePayment
INSERT INTO payments (` + paymentColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + paymentColumns

func (r *PaymentRepo) CreatePayment(ctx context.Context, p models.Payment) (models.Payment, error) {
	rows, _ := r.DB.Query(ctx, createPayment,
		p.ID, p.Number, p.UserID, p.Method, p.Amount, p.Status, p.GatewayTransactionID, p.CreatedAt, p.UpdatedAt,
	)
	payment, err := pgx.CollectOneRow(rows, rowToPayment)

	if err != nil {
		if constraint, ok := uniqueViolated(err); ok {
			switch constraint {
			case "payments_number_key":
				return payment, apperrors.ErrNumberTaken
			case "payments_gateway_transaction_id_key":
				return payment, fmt.Errorf("gateway transaction already used: %w", apperrors.ErrInvalidState)
			}
		}
		if _, ok := foreignKeyViolated(err); ok {
			return payment, apperrors.ErrUserNotFound
		}

		return payment, fmt.Errorf("db error: %w", err)
	}

	return payment, nil
}

const getPayment = `-- name: GetPayment
SELECT ` + paymentColumns + ` FROM payments
WHERE id = $1
`

func (r *PaymentRepo) GetPayment(ctx context.Context, paymentID uuid.UUID) (models.Payment, error) {
	rows, _ := r.DB.Query(ctx, getPayment, paymentID)
	payment, err := pgx.CollectOneRow(rows, rowToPayment)

	switch {
	case err == nil:
		return payment, nil
	case errors.Is(err, pgx.ErrNoRows):
		return payment, fmt.Errorf("payment %w", apperrors.ErrNotFound)
	default:
		return payment, fmt.Errorf("db error: %w", err)
	}
}

func rowToPayment(row pgx.CollectableRow) (models.Payment, error) {
	var p models.Payment
	err := row.Scan(&p.ID, &p.Number, &p.UserID, &p.Method, &p.Amount, &p.Status, &p.GatewayTransactionID, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}
