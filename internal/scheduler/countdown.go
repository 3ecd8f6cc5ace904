package scheduler

import (
	"fmt"
	"sync"
	"time"
)

// Countdown pushes a clock string once per tick, counting down from the period
// and wrapping back to it at zero. Nothing is pushed while busy reports true,
// but the count keeps moving. It runs on its own ticker and is not told when
// the schedule fires, so the two drift apart.
type Countdown struct {
	period    int
	remaining int
	busy      func() bool
	push      func(string)

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// StartCountdown starts a countdown over period seconds, ticking every tick.
func StartCountdown(period int, tick time.Duration, busy func() bool, push func(string)) *Countdown {
	c := newCountdown(period, busy, push)
	go c.loop(tick)
	return c
}

func newCountdown(period int, busy func() bool, push func(string)) *Countdown {
	return &Countdown{
		period:    period,
		remaining: period - 1,
		busy:      busy,
		push:      push,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (c *Countdown) loop(tick time.Duration) {
	defer close(c.done)

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

func (c *Countdown) tick() {
	if !c.busy() {
		c.push(FormatClock(c.remaining))
	}
	c.remaining--
	if c.remaining <= 0 {
		c.remaining = c.period
	}
}

// Stop ends the countdown and waits for the last tick to finish.
func (c *Countdown) Stop() {
	c.once.Do(func() {
		close(c.stop)
		<-c.done
	})
}

// FormatClock renders seconds as MM:SS, or HH:MM:SS from one hour up.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h, m, s := seconds/3600, seconds/60%60, seconds%60
	if h == 0 {
		return fmt.Sprintf("%02d:%02d", m, s)
	}
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
