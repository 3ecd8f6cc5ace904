// Package dispatch gives kudos to a batch of activities, staggering the calls
// so the remote service is not hit all at once.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"autokudo/internal/domain"
)

// Stagger is the delay added per position in the dispatched sequence.
const Stagger = 300 * time.Millisecond

// Sink performs the kudo action for one activity.
type Sink interface {
	GiveKudo(ctx context.Context, activity domain.Activity) (domain.KudoReceipt, error)
}

// Stats counts the settled calls of one dispatch.
type Stats struct {
	Eligible  int
	Succeeded int
	Failed    int
}

type Dispatcher struct {
	sink    Sink
	logger  *slog.Logger
	stagger time.Duration
	wait    func(ctx context.Context, d time.Duration) error
}

func New(sink Sink, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		sink:    sink,
		logger:  logger.With("component", "dispatcher"),
		stagger: Stagger,
		wait:    sleep,
	}
}

// Dispatch gives a kudo to every eligible activity. The call for the activity
// at position i starts after i*Stagger, where i counts all activities, not only
// eligible ones.
//
// One KudoOutcome is emitted per settled call, in completion order, and emit is
// never called concurrently. A failed call does not affect the others and is
// not retried. Dispatch returns once every call has settled.
func (d *Dispatcher) Dispatch(ctx context.Context, activities []domain.Activity, emit domain.EventFunc) Stats {
	var (
		g     errgroup.Group
		mu    sync.Mutex
		stats Stats
	)

	for i, a := range activities {
		if !a.Eligible() {
			continue
		}
		stats.Eligible++

		delay := time.Duration(i) * d.stagger
		g.Go(func() error {
			outcome := domain.KudoOutcome{Index: i, Delay: delay, Activity: a}

			if err := d.wait(ctx, delay); err != nil {
				outcome.Err = err
			} else {
				outcome.Receipt, outcome.Err = d.sink.GiveKudo(ctx, a)
			}

			mu.Lock()
			defer mu.Unlock()
			if outcome.OK() {
				stats.Succeeded++
			} else {
				stats.Failed++
				d.logger.Warn("kudo failed", "activity_id", a.ID, "error", outcome.Err)
			}
			if emit != nil {
				emit(outcome)
			}
			return nil
		})
	}

	_ = g.Wait()
	return stats
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
