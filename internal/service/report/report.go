// Package report gives read-only views over settled sales
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/skillexa/internal/apperrors"
	"github.com/nkiryanov/skillexa/internal/models"
	"github.com/nkiryanov/skillexa/internal/repository"
)

// Longest period of admin revenue report
const MaxRevenueDays = 366

// Calendar months in monthly admin revenue, current month included
const RevenueMonths = 12

type ReportService struct {
	storage repository.Storage
	now     func() time.Time
}

type Option func(*ReportService)

func WithClock(now func() time.Time) Option {
	return func(s *ReportService) { s.now = now }
}

func NewService(storage repository.Storage, opts ...Option) *ReportService {
	s := &ReportService{storage: storage, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ReportService) InstructorEarnings(ctx context.Context, instructorID uuid.UUID) (models.InstructorEarnings, error) {
	return s.storage.Report().InstructorEarnings(ctx, instructorID)
}

// Admin revenue of the last days grouped per UTC day,
// and of the last RevenueMonths calendar months grouped per month
func (s *ReportService) AdminRevenue(ctx context.Context, days int) (models.RevenueReport, error) {
	if days < 1 || days > MaxRevenueDays {
		return models.RevenueReport{}, fmt.Errorf("days must be in [1, %d]: %w", MaxRevenueDays, apperrors.ErrInvalidAmount)
	}

	now := s.now().UTC()

	report, err := s.storage.Report().AdminRevenue(ctx, now.AddDate(0, 0, -days))
	if err != nil {
		return report, err
	}

	report.MonthlySince = time.Date(now.Year(), now.Month()-(RevenueMonths-1), 1, 0, 0, 0, 0, time.UTC)
	report.Monthly, err = s.storage.Report().MonthlyRevenue(ctx, report.MonthlySince)
	if err != nil {
		return report, err
	}

	return report, nil
}
