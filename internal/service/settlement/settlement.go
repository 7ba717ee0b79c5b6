// Package settlement periodically unlocks due instructor earnings and cancels abandoned orders
package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/skillexa/internal/logger"
	"github.com/nkiryanov/skillexa/internal/metrics"
	"github.com/nkiryanov/skillexa/internal/models"
)

const (
	DefaultInterval     = time.Minute
	DefaultBatchSize    = 100
	defaultCountWorkers = 4
	DefaultAbandonAfter = 24 * time.Hour
)

type orderService interface {
	ListUnlockable(ctx context.Context, limit int) ([]models.OrderItem, error)
	UnlockEarnings(ctx context.Context, itemID uuid.UUID) (bool, error)
	CancelAbandoned(ctx context.Context, createdBefore time.Time) (int, error)
}

// Zero values are replaced by defaults
type Config struct {
	Interval  time.Duration
	BatchSize int
	Workers   int

	// Pending orders older than this are cancelled
	AbandonAfter time.Duration
}

// Result of one settlement run
type Report struct {
	Scanned   int
	Unlocked  int
	Skipped   int
	Failed    int
	Cancelled int

	Errors []error
}

type Scheduler struct {
	cfg     Config
	orders  orderService
	metrics *metrics.Metrics
	logger  logger.Logger
	now     func() time.Time
}

func New(cfg Config, orders orderService, m *metrics.Metrics, l logger.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultCountWorkers
	}
	if cfg.AbandonAfter <= 0 {
		cfg.AbandonAfter = DefaultAbandonAfter
	}

	return &Scheduler{
		cfg:     cfg,
		orders:  orders,
		metrics: m,
		logger:  l,
		now:     time.Now,
	}
}

// Run settlement on every tick until context is done.
// Returned channel is closed when scheduler stopped
func (s *Scheduler) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})
	s.logger.Debug("Starting settlement scheduler", "interval", s.cfg.Interval, "batch_size", s.cfg.BatchSize)

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Debug("Settlement scheduler stopped by context")
				return

			case <-ticker.C:
				report, err := s.RunOnce(ctx)
				if err != nil {
					s.logger.Error("Settlement run failed", "error", err)
					continue
				}

				s.logger.Info("Settlement run finished",
					"scanned", report.Scanned,
					"unlocked", report.Unlocked,
					"skipped", report.Skipped,
					"failed", report.Failed,
					"cancelled", report.Cancelled,
				)
			}
		}
	}()

	return idleStopped
}

// RunOnce unlocks one batch of due items and cancels abandoned orders.
// Failure of an item never stops the run, only failed scan does
func (s *Scheduler) RunOnce(ctx context.Context) (Report, error) {
	start := time.Now()
	defer func() { s.metrics.SettlementRun.Observe(time.Since(start).Seconds()) }()

	var report Report

	items, err := s.orders.ListUnlockable(ctx, s.cfg.BatchSize)
	if err != nil {
		return report, fmt.Errorf("scan unlockable items: %w", err)
	}
	report.Scanned = len(items)

	for r := range s.unlock(ctx, items) {
		switch {
		case r.err != nil:
			report.Failed++
			report.Errors = append(report.Errors, r.err)
		case r.unlocked:
			report.Unlocked++
		default:
			report.Skipped++
		}
	}

	cancelled, err := s.orders.CancelAbandoned(ctx, s.now().Add(-s.cfg.AbandonAfter))
	if err != nil {
		s.logger.Error("Failed to cancel abandoned orders", "error", err)
		report.Errors = append(report.Errors, err)
	}
	report.Cancelled = cancelled
	s.metrics.OrdersCancelledTotal.Add(float64(cancelled))

	return report, nil
}
