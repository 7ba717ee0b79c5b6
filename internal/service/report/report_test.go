package report

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/skillexa/internal/apperrors"
	"github.com/nkiryanov/skillexa/internal/models"
	"github.com/nkiryanov/skillexa/internal/repository/postgres"
	"github.com/nkiryanov/skillexa/internal/service/order"
	"github.com/nkiryanov/skillexa/internal/service/wallet"
	"github.com/nkiryanov/skillexa/internal/testutil"
)

func TestReport(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
		storage := postgres.NewStorage(tx)
		now := testutil.MustParseTime("2025-03-20T12:00:00Z")
		at := now
		clock := func() time.Time { return at }

		buyer, err := storage.User().CreateUser(t.Context(), "student", "hash")
		require.NoError(t, err)
		instructor, err := storage.User().CreateUser(t.Context(), "instructor", "hash")
		require.NoError(t, err)
		for _, u := range []models.User{buyer, instructor} {
			_, err := storage.Wallet().CreateWallet(t.Context(), u.ID)
			require.NoError(t, err)
		}

		orders := order.NewService(storage, wallet.NewService(storage, wallet.WithClock(clock)), order.WithClock(clock))
		purchase := func(prices ...string) models.Order {
			cart := make([]models.CartItem, 0, len(prices))
			for _, p := range prices {
				cart = append(cart, models.CartItem{
					CourseID: uuid.New(), CourseTitle: "Course " + p, InstructorID: instructor.ID, Price: decimal.RequireFromString(p),
				})
			}
			o, err := orders.CreateOrderFromCart(t.Context(), buyer.ID, cart)
			require.NoError(t, err)
			o, err = orders.CompleteOrder(t.Context(), o.Number, buyer.ID, models.PaymentConfirmation{Method: "card", Amount: o.Payable()})
			require.NoError(t, err)
			return o
		}

		o := purchase("100", "40")
		_, err = orders.RequestRefund(t.Context(), o.Items[1].ID, buyer.ID)
		require.NoError(t, err)
		purchase("10.01")

		// Older sales: out of daily report, in monthly one except the first
		at = testutil.MustParseTime("2024-03-31T23:00:00Z")
		purchase("60")
		at = testutil.MustParseTime("2024-04-05T10:00:00Z")
		purchase("8")
		at = testutil.MustParseTime("2025-02-01T00:00:00Z")
		purchase("20")
		at = now

		s := NewService(storage, WithClock(clock))

		t.Run("InstructorEarnings", func(t *testing.T) {
			e, err := s.InstructorEarnings(t.Context(), instructor.ID)

			require.NoError(t, err)
			require.Equal(t, "99.01", e.TotalEarnings.String(), "refunded item is not counted")
			require.Equal(t, "99.01", e.LockedEarnings.String())
			require.True(t, e.UnlockedEarnings.IsZero())
			require.Equal(t, 5, e.SalesCount)
		})

		t.Run("AdminRevenue", func(t *testing.T) {
			r, err := s.AdminRevenue(t.Context(), 30)

			require.NoError(t, err)
			require.Equal(t, "55", r.Total.String(), "50 + 5")
			require.Len(t, r.Daily, 1)
			require.Equal(t, time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC), r.Daily[0].Day.UTC())
		})

		t.Run("AdminRevenue monthly", func(t *testing.T) {
			r, err := s.AdminRevenue(t.Context(), 1)

			require.NoError(t, err)
			require.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), r.MonthlySince)
			require.Len(t, r.Monthly, 3, "sale of March 2024 is out of last 12 months")

			expected := []struct {
				month   time.Time
				revenue string
			}{
				{time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), "4"},
				{time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), "10"},
				{time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), "55"},
			}
			for i, e := range expected {
				require.Equal(t, e.month, r.Monthly[i].Day.UTC())
				require.Equal(t, e.revenue, r.Monthly[i].Revenue.String())
			}
		})

		t.Run("AdminRevenue invalid days", func(t *testing.T) {
			for _, days := range []int{0, -1, MaxRevenueDays + 1} {
				_, err := s.AdminRevenue(t.Context(), days)
				require.ErrorIs(t, err, apperrors.ErrInvalidAmount)
			}
		})
	})
}
