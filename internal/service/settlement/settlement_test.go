package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/skillexa/internal/apperrors"
	"github.com/nkiryanov/skillexa/internal/logger"
	"github.com/nkiryanov/skillexa/internal/metrics"
	"github.com/nkiryanov/skillexa/internal/models"
	"github.com/nkiryanov/skillexa/internal/repository/postgres"
	"github.com/nkiryanov/skillexa/internal/service/order"
	"github.com/nkiryanov/skillexa/internal/service/wallet"
	"github.com/nkiryanov/skillexa/internal/testutil"
)

// Order service stub: unlock result is looked up by item id
type fakeOrders struct {
	mu        sync.Mutex
	items     []models.OrderItem
	listErr   error
	unlock    map[uuid.UUID]error
	skipped   map[uuid.UUID]bool
	calls     int
	cancelled int
	cutoff    time.Time
}

func (f *fakeOrders) ListUnlockable(_ context.Context, limit int) ([]models.OrderItem, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.items[:min(limit, len(f.items))], nil
}

func (f *fakeOrders) UnlockEarnings(_ context.Context, itemID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.unlock[itemID]; err != nil {
		return false, err
	}
	return !f.skipped[itemID], nil
}

func (f *fakeOrders) CancelAbandoned(_ context.Context, createdBefore time.Time) (int, error) {
	f.cutoff = createdBefore
	return f.cancelled, nil
}

func items(n int) []models.OrderItem {
	items := make([]models.OrderItem, n)
	for i := range items {
		items[i] = models.OrderItem{ID: uuid.New(), InstructorEarning: decimal.NewFromInt(1)}
	}
	return items
}

func TestScheduler_RunOnce(t *testing.T) {
	t.Run("failures are collected and run continues", func(t *testing.T) {
		batch := items(5)
		orders := &fakeOrders{
			items:     batch,
			unlock:    map[uuid.UUID]error{batch[1].ID: apperrors.ErrInvalidState, batch[3].ID: errors.New("db is gone")},
			skipped:   map[uuid.UUID]bool{batch[4].ID: true},
			cancelled: 2,
		}
		s := New(Config{Workers: 2, AbandonAfter: time.Hour}, orders, metrics.New(), logger.NewNoOpLogger())
		now := testutil.MustParseTime("2025-03-01T10:00:00Z")
		s.now = func() time.Time { return now }

		report, err := s.RunOnce(t.Context())

		require.NoError(t, err)
		require.Equal(t, 5, orders.calls, "every item is tried")
		require.Equal(t, 5, report.Scanned)
		require.Equal(t, 2, report.Unlocked)
		require.Equal(t, 1, report.Skipped)
		require.Equal(t, 2, report.Failed)
		require.Len(t, report.Errors, 2)
		require.Equal(t, 2, report.Cancelled)
		require.Equal(t, now.Add(-time.Hour), orders.cutoff)
	})

	t.Run("batch size limits scan", func(t *testing.T) {
		orders := &fakeOrders{items: items(10)}
		s := New(Config{BatchSize: 3}, orders, metrics.New(), logger.NewNoOpLogger())

		report, err := s.RunOnce(t.Context())

		require.NoError(t, err)
		require.Equal(t, 3, report.Scanned)
		require.Equal(t, 3, report.Unlocked)
	})

	t.Run("empty batch", func(t *testing.T) {
		s := New(Config{}, &fakeOrders{}, metrics.New(), logger.NewNoOpLogger())

		report, err := s.RunOnce(t.Context())

		require.NoError(t, err)
		require.Zero(t, report.Scanned)
	})

	t.Run("scan failure", func(t *testing.T) {
		s := New(Config{}, &fakeOrders{listErr: errors.New("boom")}, metrics.New(), logger.NewNoOpLogger())

		_, err := s.RunOnce(t.Context())

		require.Error(t, err)
	})
}

func TestScheduler_Run(t *testing.T) {
	orders := &fakeOrders{items: items(1)}
	s := New(Config{Interval: 10 * time.Millisecond}, orders, metrics.New(), logger.NewNoOpLogger())
	ctx, cancel := context.WithCancel(t.Context())

	stopped := s.Run(ctx)
	require.Eventually(t, func() bool {
		orders.mu.Lock()
		defer orders.mu.Unlock()
		return orders.calls >= 2
	}, time.Second, 10*time.Millisecond, "scheduler has to run on every tick")

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("scheduler has to stop when context is done")
	}
}

func TestScheduler_Settlement(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
		storage := postgres.NewStorage(tx)
		now := testutil.MustParseTime("2025-03-01T10:00:00Z")
		clock := func() time.Time { return now }

		buyer, err := storage.User().CreateUser(t.Context(), "student", "hash")
		require.NoError(t, err)
		instructor, err := storage.User().CreateUser(t.Context(), "instructor", "hash")
		require.NoError(t, err)
		for _, u := range []models.User{buyer, instructor} {
			_, err := storage.Wallet().CreateWallet(t.Context(), u.ID)
			require.NoError(t, err)
		}

		wallets := wallet.NewService(storage, wallet.WithClock(clock))
		orders := order.NewService(storage, wallets, order.WithClock(clock))
		purchase := func(price string) models.Order {
			o, err := orders.CreateOrderFromCart(t.Context(), buyer.ID, []models.CartItem{{
				CourseID: uuid.New(), CourseTitle: "Go in practice", InstructorID: instructor.ID, Price: decimal.RequireFromString(price),
			}})
			require.NoError(t, err)
			o, err = orders.CompleteOrder(t.Context(), o.Number, buyer.ID, models.PaymentConfirmation{Method: "card", Amount: o.Payable()})
			require.NoError(t, err)
			return o
		}

		// Due on day 14, not yet due, refunded and abandoned
		purchase("100")
		now = now.Add(2 * 24 * time.Hour)
		purchase("60")
		refunded := purchase("20")
		_, err = orders.RequestRefund(t.Context(), refunded.Items[0].ID, buyer.ID)
		require.NoError(t, err)
		_, err = orders.CreateOrderFromCart(t.Context(), buyer.ID, []models.CartItem{{
			CourseID: uuid.New(), CourseTitle: "Abandoned", InstructorID: instructor.ID, Price: decimal.NewFromInt(5),
		}})
		require.NoError(t, err)

		now = now.Add(12 * 24 * time.Hour)
		s := New(Config{}, orders, metrics.New(), logger.NewNoOpLogger())
		s.now = clock

		report, err := s.RunOnce(t.Context())

		require.NoError(t, err)
		require.Equal(t, 1, report.Scanned)
		require.Equal(t, 1, report.Unlocked)
		require.Empty(t, report.Errors)
		require.Equal(t, 1, report.Cancelled)

		view, err := wallets.GetWallet(t.Context(), instructor.ID)
		require.NoError(t, err)
		require.Equal(t, "50", view.Balance.String())
		require.Equal(t, "30", view.LockedBalance.String())

		report, err = s.RunOnce(t.Context())
		require.NoError(t, err)
		require.Zero(t, report.Scanned, "unlocked item is never scanned again")

		r, err := wallets.Reconcile(t.Context(), instructor.ID)
		require.NoError(t, err)
		require.True(t, r.Consistent())
	})
}
