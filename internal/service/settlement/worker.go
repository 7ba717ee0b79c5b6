package settlement

import (
	"context"
	"fmt"
	"sync"

	"github.com/nkiryanov/skillexa/internal/models"
)

type result struct {
	unlocked bool
	err      error
}

// Unlock items by pool of workers.
// Returned channel is closed when every item is processed
func (s *Scheduler) unlock(ctx context.Context, items []models.OrderItem) <-chan result {
	in := make(chan models.OrderItem)
	out := make(chan result)

	go func() {
		defer close(in)
		for _, item := range items {
			select {
			case <-ctx.Done():
				return
			case in <- item:
			}
		}
	}()

	var wg sync.WaitGroup
	for range min(s.cfg.Workers, max(len(items), 1)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker(ctx, in, out)
		}()
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}

func (s *Scheduler) worker(ctx context.Context, in <-chan models.OrderItem, out chan<- result) {
	for item := range in {
		unlocked, err := s.orders.UnlockEarnings(ctx, item.ID)

		switch {
		case err != nil:
			s.metrics.UnlockFailedTotal.Inc()
			s.logger.Error("Failed to unlock earning", "item_id", item.ID, "order_id", item.OrderID, "error", err)
			err = fmt.Errorf("item %s: %w", item.ID, err)
		case unlocked:
			s.metrics.UnlockedTotal.Inc()
			s.logger.Debug("Earning unlocked", "item_id", item.ID, "amount", item.InstructorEarning)
		}

		out <- result{unlocked: unlocked, err: err}
	}
}
