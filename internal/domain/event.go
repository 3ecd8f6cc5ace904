package domain

import "time"

// Event is emitted by the pipeline while a run progresses. It is one of
// PageFetched or KudoOutcome.
type Event interface {
	event()
}

// EventFunc receives pipeline events. Implementations must not block for long.
type EventFunc func(Event)

// PageFetched is emitted once per walked feed page.
type PageFetched struct {
	Page       int
	Depth      int
	Cursor     int64
	Activities []Activity
}

// KudoOutcome is emitted once per settled kudo call.
type KudoOutcome struct {
	// Index is the activity position in the dispatched sequence.
	Index    int
	Delay    time.Duration
	Activity Activity
	Receipt  KudoReceipt
	Err      error
}

// OK reports whether the kudo was given.
func (o KudoOutcome) OK() bool {
	return o.Err == nil
}

func (PageFetched) event() {}
func (KudoOutcome) event() {}
