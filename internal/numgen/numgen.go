// Package numgen generates human readable unique numbers for orders, payments and ledger entries.
// Uniqueness is enforced by the database, the generator only makes collisions unlikely.
package numgen

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/nkiryanov/skillexa/internal/apperrors"
)

// Number of attempts before the generation gives up
const MaxAttempts = 5

const timestampLayout = "060102150405"

// Generator returns new candidate number for the moment
type Generator func(now time.Time) string

// Order number: timestamp and 12 upper-case hex chars, like 250301101530A1B2C3D4E5F6
func OrderNumber(now time.Time) string {
	u := uuid.New()
	return now.UTC().Format(timestampLayout) + strings.ToUpper(strings.ReplaceAll(u.String(), "-", "")[:12])
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

func newULID(now time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(now), entropy).String()
}

// Ledger transaction number, like TXN-01HQ3Z6X0E4W7M2N9R5T8Y1K3P
func TransactionNumber(now time.Time) string {
	return "TXN-" + newULID(now)
}

// Payment number, like PAY-01HQ3Z6X0E4W7M2N9R5T8Y1K3P
func PaymentNumber(now time.Time) string {
	return "PAY-" + newULID(now)
}

// WithRetry calls fn with freshly generated numbers while fn reports apperrors.ErrNumberTaken.
// Fails with apperrors.ErrGenerationExhausted after MaxAttempts collisions.
func WithRetry[T any](now time.Time, gen Generator, fn func(number string) (T, error)) (T, error) {
	var zero T

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		v, err := fn(gen(now))

		switch {
		case err == nil:
			return v, nil
		case errors.Is(err, apperrors.ErrNumberTaken):
			continue
		default:
			return zero, err
		}
	}

	return zero, fmt.Errorf("%d attempts: %w", MaxAttempts, apperrors.ErrGenerationExhausted)
}
