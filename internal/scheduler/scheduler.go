// Package scheduler provides the recurring run schedule and the cosmetic
// countdown shown between runs. The two are independent: the countdown is not
// a source of truth for when the next run fires.
package scheduler

import (
	"log/slog"
	"sync"
	"time"
)

// Schedule calls fn once per interval until stopped.
type Schedule struct {
	interval time.Duration
	logger   *slog.Logger

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// Start begins calling fn every interval. The first call happens one interval
// from now. fn runs on the schedule goroutine and should hand long work off.
func Start(interval time.Duration, fn func(), logger *slog.Logger) *Schedule {
	s := &Schedule{
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	go s.loop(fn)

	s.logger.Info("schedule started", "interval", interval)
	return s
}

func (s *Schedule) loop(fn func()) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			select {
			case <-s.stop:
				return
			default:
			}
			fn()
		}
	}
}

// Interval returns the period of the schedule.
func (s *Schedule) Interval() time.Duration {
	return s.interval
}

// Stop prevents any further calls. It does not interrupt work fn already
// handed off. Safe to call more than once.
func (s *Schedule) Stop() {
	s.once.Do(func() {
		close(s.stop)
		<-s.done
		s.logger.Info("schedule stopped", "interval", s.interval)
	})
}
