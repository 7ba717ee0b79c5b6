package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/skillexa/internal/apperrors"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestRound(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"10", "10"},
		{"10.004", "10"},
		{"10.005", "10.01"},
		{"249.495", "249.5"},
		{"0.125", "0.13"},
		{"0.124999", "0.12"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Round(d(tt.in))

			require.Truef(t, d(tt.expected).Equal(got), "Round(%s) = %s, expected %s", tt.in, got, tt.expected)
		})
	}
}

func TestSplit(t *testing.T) {
	t.Run("sum is exact", func(t *testing.T) {
		tests := []struct {
			amount    string
			share     string
			remainder string
		}{
			{"499.00", "249.50", "249.50"},
			{"0.01", "0.01", "0"},
			{"0.03", "0.02", "0.01"},
			{"99.99", "50", "49.99"},
			{"0", "0", "0"},
		}

		for _, tt := range tests {
			t.Run(tt.amount, func(t *testing.T) {
				share, remainder, err := Split(d(tt.amount), EarningSplit)
				require.NoError(t, err)

				require.Truef(t, d(tt.share).Equal(share), "share: got %s, expected %s", share, tt.share)
				require.Truef(t, d(tt.remainder).Equal(remainder), "remainder: got %s, expected %s", remainder, tt.remainder)
				require.True(t, share.Add(remainder).Equal(d(tt.amount)), "share + remainder must be equal to amount")
			})
		}
	})

	t.Run("negative amount", func(t *testing.T) {
		_, _, err := Split(d("-1"), EarningSplit)

		require.ErrorIs(t, err, apperrors.ErrInvalidAmount)
	})

	t.Run("more than two decimal places", func(t *testing.T) {
		for _, a := range []string{"1.005", "0.001", "99.999"} {
			share, remainder, err := Split(d(a), EarningSplit)

			require.ErrorIs(t, err, apperrors.ErrInvalidAmount, "amount %s", a)
			require.True(t, share.IsZero())
			require.True(t, remainder.IsZero())
		}
	})

	t.Run("ratio out of range", func(t *testing.T) {
		_, _, err := Split(d("10"), d("1.1"))

		require.ErrorIs(t, err, apperrors.ErrInvalidAmount)
	})
}

func TestPositive(t *testing.T) {
	require.NoError(t, Positive(d("0.01")))
	require.NoError(t, Positive(d("100")))

	require.ErrorIs(t, Positive(d("0")), apperrors.ErrInvalidAmount)
	require.ErrorIs(t, Positive(d("-5")), apperrors.ErrInvalidAmount)
	require.ErrorIs(t, Positive(d("1.001")), apperrors.ErrInvalidAmount)
}
