package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/skillexa/internal/models"
)

type ReportRepo struct {
	DB DBTX
}

// Refunded items have zero earnings but are excluded anyway to keep sales count right
const instructorEarnings = `-- name: InstructorEarnings
SELECT
	COALESCE(SUM(i.instructor_earning), 0),
	COALESCE(SUM(i.instructor_earning) FILTER (WHERE NOT i.is_unlocked), 0),
	COALESCE(SUM(i.instructor_earning) FILTER (WHERE i.is_unlocked), 0),
	COUNT(i.id)
FROM order_items i
JOIN orders o ON o.id = i.order_id
WHERE i.instructor_id = $1
	AND NOT i.is_refunded
	AND o.status = 'completed'
`

func (r *ReportRepo) InstructorEarnings(ctx context.Context, instructorID uuid.UUID) (models.InstructorEarnings, error) {
	e := models.InstructorEarnings{InstructorID: instructorID}

	err := r.DB.QueryRow(ctx, instructorEarnings, instructorID).Scan(
		&e.TotalEarnings, &e.LockedEarnings, &e.UnlockedEarnings, &e.SalesCount,
	)
	if err != nil {
		return e, fmt.Errorf("db error: %w", err)
	}

	return e, nil
}

const adminRevenueDaily = `-- name: AdminRevenueDaily
SELECT date_trunc('day', i.created_at, 'UTC') AS day, SUM(i.admin_earning)
FROM order_items i
JOIN orders o ON o.id = i.order_id
WHERE NOT i.is_refunded
	AND o.status = 'completed'
	AND i.created_at >= $1
GROUP BY day
ORDER BY day
`

func (r *ReportRepo) AdminRevenue(ctx context.Context, since time.Time) (models.RevenueReport, error) {
	report := models.RevenueReport{Since: since}

	rows, _ := r.DB.Query(ctx, adminRevenueDaily, since)
	daily, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.RevenuePoint, error) {
		var p models.RevenuePoint
		err := row.Scan(&p.Day, &p.Revenue)
		return p, err
	})
	if err != nil {
		return report, fmt.Errorf("db error: %w", err)
	}

	report.Daily = daily
	for _, p := range daily {
		report.Total = report.Total.Add(p.Revenue)
	}

	return report, nil
}

const adminRevenueMonthly = `-- name: AdminRevenueMonthly
SELECT date_trunc('month', i.created_at, 'UTC') AS month, SUM(i.admin_earning)
FROM order_items i
JOIN orders o ON o.id = i.order_id
WHERE NOT i.is_refunded
	AND o.status = 'completed'
	AND i.created_at >= $1
GROUP BY month
ORDER BY month
`

func (r *ReportRepo) MonthlyRevenue(ctx context.Context, since time.Time) ([]models.RevenuePoint, error) {
	rows, _ := r.DB.Query(ctx, adminRevenueMonthly, since)
	monthly, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.RevenuePoint, error) {
		var p models.RevenuePoint
		err := row.Scan(&p.Day, &p.Revenue)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return monthly, nil
}
