package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/skillexa/internal/apperrors"
	"github.com/nkiryanov/skillexa/internal/models"
	"github.com/nkiryanov/skillexa/internal/repository"
	"github.com/nkiryanov/skillexa/internal/testutil"
)

func newOrder(buyer uuid.UUID, instructor uuid.UUID, createdAt time.Time, prices ...string) models.Order {
	createdAt = createdAt.UTC().Truncate(time.Microsecond)
	o := models.Order{
		ID:        uuid.New(),
		Number:    "N" + uuid.NewString()[:12],
		UserID:    buyer,
		Status:    models.OrderStatusPending,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}

	for _, p := range prices {
		price := decimal.RequireFromString(p)
		half := price.Div(decimal.NewFromInt(2)).Round(2)
		o.Total = o.Total.Add(price)
		o.Items = append(o.Items, models.OrderItem{
			ID:                uuid.New(),
			CourseID:          uuid.New(),
			InstructorID:      instructor,
			CourseTitle:       "Course " + p,
			Price:             price,
			InstructorEarning: half,
			AdminEarning:      price.Sub(half),
			LockedUntil:       createdAt.Add(models.LockPeriod),
			CreatedAt:         createdAt,
			UpdatedAt:         createdAt,
		})
	}

	return o
}

func TestOrderRepo(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
		buyer, err := storage.User().CreateUser(t.Context(), "student", "hash")
		require.NoError(t, err)
		instructor, err := storage.User().CreateUser(t.Context(), "instructor", "hash")
		require.NoError(t, err)
		now := time.Now()

		t.Run("CreateOrder", func(t *testing.T) {
			t.Run("create ok", func(t *testing.T) {
				inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					o := newOrder(buyer.ID, instructor.ID, now, "499.00", "100")

					created, err := storage.Order().CreateOrder(t.Context(), o)

					require.NoError(t, err)
					require.Equal(t, o.ID, created.ID)
					require.Equal(t, o.Number, created.Number)
					require.Equal(t, models.OrderStatusPending, created.Status)
					require.Equal(t, "599", created.Total.String())
					require.Nil(t, created.PaymentID)
					require.Len(t, created.Items, 2)
					require.Equal(t, o.ID, created.Items[0].OrderID)
					require.Equal(t, "249.5", created.Items[0].InstructorEarning.String())
					require.Equal(t, o.Items[0].LockedUntil, created.Items[0].LockedUntil.UTC())
				})
			})

			t.Run("number taken", func(t *testing.T) {
				inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					first := newOrder(buyer.ID, instructor.ID, now, "10")
					_, err := storage.Order().CreateOrder(t.Context(), first)
					require.NoError(t, err)

					second := newOrder(buyer.ID, instructor.ID, now, "20")
					second.Number = first.Number
					_, err = storage.Order().CreateOrder(t.Context(), second)

					require.ErrorIs(t, err, apperrors.ErrNumberTaken)
				})
			})

			t.Run("unknown instructor", func(t *testing.T) {
				inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
					o := newOrder(buyer.ID, uuid.New(), now, "10")

					_, err := storage.Order().CreateOrder(t.Context(), o)

					require.ErrorIs(t, err, apperrors.ErrUserNotFound)
				})
			})
		})

		t.Run("GetOrder", func(t *testing.T) {
			inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
				o, err := storage.Order().CreateOrder(t.Context(), newOrder(buyer.ID, instructor.ID, now, "10", "20", "30"))
				require.NoError(t, err)

				byID, err := storage.Order().GetOrder(t.Context(), repository.GetOrderOpts{ID: o.ID})
				require.NoError(t, err)
				require.Equal(t, o.Number, byID.Number)
				require.Len(t, byID.Items, 3)

				byNumber, err := storage.Order().GetOrder(t.Context(), repository.GetOrderOpts{Number: o.Number, ForUpdate: true})
				require.NoError(t, err)
				require.Equal(t, o.ID, byNumber.ID)
				require.Len(t, byNumber.Items, 3)

				_, err = storage.Order().GetOrder(t.Context(), repository.GetOrderOpts{Number: "unknown"})
				require.ErrorIs(t, err, apperrors.ErrOrderNotFound)
			})
		})

		t.Run("ListOrders", func(t *testing.T) {
			inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
				old, err := storage.Order().CreateOrder(t.Context(), newOrder(buyer.ID, instructor.ID, now.Add(-48*time.Hour), "10"))
				require.NoError(t, err)
				fresh, err := storage.Order().CreateOrder(t.Context(), newOrder(buyer.ID, instructor.ID, now, "20", "30"))
				require.NoError(t, err)
				_, err = storage.Order().CreateOrder(t.Context(), newOrder(instructor.ID, instructor.ID, now, "40"))
				require.NoError(t, err)

				mine, err := storage.Order().ListOrders(t.Context(), repository.ListOrdersOpts{UserID: buyer.ID})
				require.NoError(t, err)
				require.Len(t, mine, 2)
				require.Equal(t, fresh.ID, mine[0].ID, "newest first")
				require.Len(t, mine[0].Items, 2)
				require.Len(t, mine[1].Items, 1)

				stale, err := storage.Order().ListOrders(t.Context(), repository.ListOrdersOpts{
					Statuses:      []string{models.OrderStatusPending},
					CreatedBefore: now.Add(-24 * time.Hour),
				})
				require.NoError(t, err)
				require.Len(t, stale, 1)
				require.Equal(t, old.ID, stale[0].ID)

				completed, err := storage.Order().ListOrders(t.Context(), repository.ListOrdersOpts{Statuses: []string{models.OrderStatusCompleted}})
				require.NoError(t, err)
				require.Empty(t, completed)
			})
		})

		t.Run("UpdateOrder and UpdateItem", func(t *testing.T) {
			inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
				o, err := storage.Order().CreateOrder(t.Context(), newOrder(buyer.ID, instructor.ID, now, "10"))
				require.NoError(t, err)

				o.Status = models.OrderStatusCancelled
				o.UpdatedAt = now.Add(time.Minute)
				updated, err := storage.Order().UpdateOrder(t.Context(), o)
				require.NoError(t, err)
				require.Equal(t, models.OrderStatusCancelled, updated.Status)
				require.Len(t, updated.Items, 1)

				item := o.Items[0]
				refundedAt := now.UTC().Truncate(time.Microsecond)
				refund := item.Effective()
				item.IsRefunded = true
				item.InstructorEarning = decimal.Zero
				item.AdminEarning = decimal.Zero
				item.RefundAmount = &refund
				item.RefundInitiatedAt = &refundedAt
				item.RefundCompletedAt = &refundedAt
				item.CourseTitle = "renamed"
				item.LockedUntil = now.Add(time.Hour)

				got, err := storage.Order().UpdateItem(t.Context(), item)
				require.NoError(t, err)
				require.True(t, got.IsRefunded)
				require.True(t, got.InstructorEarning.IsZero())
				require.Equal(t, "10", got.RefundAmount.String())
				require.Equal(t, refundedAt, got.RefundCompletedAt.UTC())
				require.Equal(t, "Course 10", got.CourseTitle, "snapshot is never updated")
				require.Equal(t, o.Items[0].LockedUntil, got.LockedUntil.UTC(), "locked until is never updated")

				_, err = storage.Order().GetItem(t.Context(), uuid.New(), false)
				require.ErrorIs(t, err, apperrors.ErrOrderItemNotFound)
			})
		})

		t.Run("ListUnlockable", func(t *testing.T) {
			inTx(t, tx, func(_ pgx.Tx, storage repository.Storage) {
				payment, err := storage.Payment().CreatePayment(t.Context(), models.Payment{
					ID: uuid.New(), Number: "PAY-1", UserID: buyer.ID, Method: "card",
					Amount: decimal.NewFromInt(30), Status: models.PaymentStatusCompleted, CreatedAt: now, UpdatedAt: now,
				})
				require.NoError(t, err)

				complete := func(o models.Order) models.Order {
					created, err := storage.Order().CreateOrder(t.Context(), o)
					require.NoError(t, err)
					created.Status = models.OrderStatusCompleted
					created.PaymentID = &payment.ID
					created, err = storage.Order().UpdateOrder(t.Context(), created)
					require.NoError(t, err)
					return created
				}

				due := complete(newOrder(buyer.ID, instructor.ID, now.Add(-15*24*time.Hour), "10", "20"))
				complete(newOrder(buyer.ID, instructor.ID, now.Add(-time.Hour), "30"))
				_, err = storage.Order().CreateOrder(t.Context(), newOrder(buyer.ID, instructor.ID, now.Add(-20*24*time.Hour), "40"))
				require.NoError(t, err, "pending order items are never unlockable")

				unlocked := due.Items[1]
				unlocked.IsUnlocked = true
				_, err = storage.Order().UpdateItem(t.Context(), unlocked)
				require.NoError(t, err)

				items, err := storage.Order().ListUnlockable(t.Context(), now, 100)

				require.NoError(t, err)
				require.Len(t, items, 1)
				require.Equal(t, due.Items[0].ID, items[0].ID)
			})
		})
	})
}
