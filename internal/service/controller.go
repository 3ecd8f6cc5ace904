package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"autokudo/internal/config"
	"autokudo/internal/dispatch"
	"autokudo/internal/domain"
	"autokudo/internal/feed"
	"autokudo/internal/scheduler"
)

// ErrClosed is returned for runs requested after Close.
var ErrClosed = errors.New("controller closed")

// Controller owns the live settings and decides when the kudo pipeline runs:
// on demand, on a recurring schedule, or both. At most one run is in flight;
// a run requested while another is in progress joins it.
type Controller struct {
	walker     *feed.Walker
	dispatcher *dispatch.Dispatcher
	display    Display
	recorder   RunRecorder
	publisher  Publisher
	logger     *slog.Logger
	config     config.RunConfig

	// second is the unit of AutoKudoCheckSeconds and of the countdown tick.
	second time.Duration

	flight   singleflight.Group
	running  atomic.Bool
	statusMu sync.Mutex
	runs     sync.WaitGroup

	mu         sync.Mutex
	settings   domain.Settings
	schedule   *scheduler.Schedule
	countdown  *scheduler.Countdown
	generation uint64
	closed     bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewController creates a controller with default settings and no schedule.
// recorder and publisher may be nil.
func NewController(
	source FeedSource,
	sink KudoSink,
	display Display,
	recorder RunRecorder,
	publisher Publisher,
	logger *slog.Logger,
	cfg config.RunConfig,
) *Controller {
	ctx, cancel := context.WithCancel(context.Background())

	return &Controller{
		walker:     feed.NewWalker(source, logger),
		dispatcher: dispatch.New(sink, logger),
		display:    display,
		recorder:   recorder,
		publisher:  publisher,
		logger:     logger.With("component", "controller"),
		config:     cfg,
		second:     time.Second,
		settings:   domain.DefaultSettings(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Settings returns a copy of the live settings.
func (c *Controller) Settings() domain.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// Running reports whether a run is in flight.
func (c *Controller) Running() bool {
	return c.running.Load()
}

func (c *Controller) State() domain.ExecutionState {
	c.mu.Lock()
	scheduled := c.schedule != nil
	c.mu.Unlock()

	running := c.running.Load()
	switch {
	case scheduled && running:
		return domain.StateScheduledRunning
	case scheduled:
		return domain.StateScheduledIdle
	case running:
		return domain.StateRunning
	default:
		return domain.StateIdle
	}
}

// RunOnce walks the configured number of feed pages and gives kudos to every
// eligible activity.
func (c *Controller) RunOnce(ctx context.Context) (*domain.RunSummary, error) {
	return c.RunDepth(ctx, c.Settings().FeedSearchDepth)
}

// RunDepth is RunOnce with an explicit page count. If a run is already in
// flight the call waits for it and returns its result instead.
func (c *Controller) RunDepth(ctx context.Context, depth int) (*domain.RunSummary, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.runs.Add(1)
	c.mu.Unlock()
	defer c.runs.Done()

	return c.execute(ctx, depth, domain.TriggerManual)
}

// execute joins or starts the shared run and waits for it. The run itself is
// bound to the controller lifetime and the run timeout, never to ctx, so a
// caller that gives up does not abort the run for the callers sharing it.
// The caller must hold a count on c.runs.
func (c *Controller) execute(ctx context.Context, depth int, trigger domain.Trigger) (*domain.RunSummary, error) {
	type result struct {
		summary *domain.RunSummary
		err     error
	}
	done := make(chan result, 1)

	c.runs.Add(1)
	go func() {
		defer c.runs.Done()

		v, err, shared := c.flight.Do("run", func() (any, error) {
			runCtx, cancel := c.runContext()
			defer cancel()
			return c.run(runCtx, depth, trigger)
		})
		if shared {
			c.logger.Debug("run result shared", "trigger", trigger)
		}
		if err != nil {
			done <- result{err: err}
			return
		}
		done <- result{summary: v.(*domain.RunSummary)}
	}()

	select {
	case r := <-done:
		return r.summary, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Controller) runContext() (context.Context, context.CancelFunc) {
	if c.config.Timeout > 0 {
		return context.WithTimeout(c.ctx, c.config.Timeout)
	}
	return context.WithCancel(c.ctx)
}

func (c *Controller) run(ctx context.Context, depth int, trigger domain.Trigger) (*domain.RunSummary, error) {
	record := &domain.RunRecord{
		ID:        uuid.New(),
		Trigger:   trigger,
		Depth:     depth,
		StartedAt: time.Now(),
	}
	logger := c.logger.With("run_id", record.ID, "trigger", trigger)

	c.setRunning(true, "Fetching...")
	defer c.setRunning(false, "")

	logger.Info("starting run", "depth", depth)

	observe := c.observer(ctx, logger, record)

	activities, err := c.walker.Walk(ctx, 0, depth, observe)
	if err != nil {
		record.Error = err.Error()
		c.finish(ctx, logger, record)
		return nil, fmt.Errorf("walk feed: %w", err)
	}

	record.Total = len(activities)
	record.Eligible = domain.CountEligible(activities)
	logger.Info("activities eligible for kudo",
		"eligible", record.Eligible,
		"total", record.Total,
	)

	stats := c.dispatcher.Dispatch(ctx, activities, observe)
	record.Succeeded = stats.Succeeded
	record.Failed = stats.Failed

	c.finish(ctx, logger, record)
	return record.Summary(), nil
}

// setRunning flips the in-flight flag and the status text together, so a
// countdown tick cannot land between them.
func (c *Controller) setRunning(running bool, status string) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	c.running.Store(running)
	c.display.SetStatus(status)
}

// setIdleStatus shows text unless a run is in flight. Countdown clocks and
// the clear after a schedule stop go through here.
func (c *Controller) setIdleStatus(text string) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	if c.running.Load() {
		return
	}
	c.display.SetStatus(text)
}

// observer turns pipeline events into status text, logs and published
// outcomes for one run. Events arrive one at a time.
func (c *Controller) observer(ctx context.Context, logger *slog.Logger, record *domain.RunRecord) domain.EventFunc {
	given := 0

	return func(ev domain.Event) {
		switch e := ev.(type) {
		case domain.PageFetched:
			logger.Info("fetched page",
				"page", e.Page,
				"depth", e.Depth,
				"activities", len(e.Activities),
			)
			c.display.SetStatus(fmt.Sprintf("Fetch (%d/%d)", e.Page, e.Depth))

		case domain.KudoOutcome:
			record.Outcomes = append(record.Outcomes, e)
			c.publish(ctx, logger, record.ID, e)
			if !e.OK() {
				return
			}
			given++
			logger.Info("kudo given",
				"activity_id", e.Receipt.ActivityID,
				"athlete", e.Receipt.Athlete,
				"name", e.Receipt.Name,
			)
			c.display.SetStatus(fmt.Sprintf("Kudo (%d/%d)", given, record.Eligible))
		}
	}
}

func (c *Controller) publish(ctx context.Context, logger *slog.Logger, runID uuid.UUID, outcome domain.KudoOutcome) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(ctx, runID, outcome); err != nil {
		logger.Warn("failed to publish kudo outcome",
			"activity_id", outcome.Activity.ID,
			"error", err,
		)
	}
}

func (c *Controller) finish(ctx context.Context, logger *slog.Logger, record *domain.RunRecord) {
	record.FinishedAt = time.Now()

	if c.recorder != nil {
		if err := c.recorder.Record(context.WithoutCancel(ctx), record); err != nil {
			logger.Error("failed to record run", "error", err)
		}
	}

	logger.Info("run completed",
		"total", record.Total,
		"eligible", record.Eligible,
		"succeeded", record.Succeeded,
		"failed", record.Failed,
		"error", record.Error,
		"duration", record.FinishedAt.Sub(record.StartedAt),
	)
}

// UpdateSettings merges patch into the live settings. When auto kudo is
// switched or its period changes, the current schedule and countdown are
// stopped and, if auto kudo is enabled, started again with the new period.
// Updates that leave both unchanged do not touch the schedule.
func (c *Controller) UpdateSettings(patch domain.SettingsPatch) (domain.Settings, error) {
	c.mu.Lock()

	prev := c.settings
	next := prev.Merge(patch)
	if err := next.Validate(); err != nil {
		c.mu.Unlock()
		return prev, fmt.Errorf("invalid settings: %w", err)
	}

	modeChanged := prev.AutoKudoEnabled != next.AutoKudoEnabled ||
		prev.AutoKudoCheckSeconds != next.AutoKudoCheckSeconds

	var stale handles
	if modeChanged {
		stale = c.detachLocked()
	}

	c.settings = next

	if modeChanged && next.AutoKudoEnabled && !c.closed {
		c.startLocked(next.AutoKudoCheckSeconds)
	}

	c.display.SetTriggerVisible(!(next.AutoKudoEnabled && next.HideButtonWhenAuto))
	c.mu.Unlock()

	if stale.stop() {
		c.setIdleStatus("")
	}

	c.logger.Info("settings updated",
		"feed_search_depth", next.FeedSearchDepth,
		"auto_kudo_enabled", next.AutoKudoEnabled,
		"auto_kudo_check_seconds", next.AutoKudoCheckSeconds,
		"hide_button_when_auto", next.HideButtonWhenAuto,
		"mode_changed", modeChanged,
	)
	return next, nil
}

// Restore loads stored settings and applies them. An empty store is seeded
// with the defaults first.
func (c *Controller) Restore(ctx context.Context, store SettingsStore) error {
	loaded, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if loaded == nil {
		c.logger.Info("no stored settings, seeding defaults")
		defaults := domain.DefaultSettings()
		if err := store.Save(ctx, defaults); err != nil {
			return fmt.Errorf("seed settings: %w", err)
		}
		loaded = &defaults
	}

	if _, err := c.UpdateSettings(loaded.Patch()); err != nil {
		return fmt.Errorf("apply settings: %w", err)
	}
	return nil
}

// Close stops the schedule and countdown, cancels scheduled runs in flight
// and waits for every run to return. Later runs fail with ErrClosed.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	stale := c.detachLocked()
	c.mu.Unlock()

	stale.stop()
	c.cancel()
	c.runs.Wait()
}

func (c *Controller) startLocked(periodSeconds int) {
	c.generation++
	gen := c.generation
	interval := time.Duration(periodSeconds) * c.second

	c.logger.Info("starting auto kudo schedule", "interval", interval)

	c.countdown = scheduler.StartCountdown(periodSeconds, c.second, c.running.Load, c.setIdleStatus)
	c.schedule = scheduler.Start(interval, func() { c.fire(gen) }, c.logger)
}

// fire starts a scheduled run unless the schedule that fired has since been
// replaced. It does not check for a run in flight; the run joins it instead.
func (c *Controller) fire(gen uint64) {
	c.mu.Lock()
	if c.closed || c.schedule == nil || c.generation != gen {
		c.mu.Unlock()
		return
	}
	depth := c.settings.FeedSearchDepth
	c.runs.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.runs.Done()

		if _, err := c.execute(c.ctx, depth, domain.TriggerScheduled); err != nil {
			c.logger.Error("scheduled run failed", "error", err)
		}
	}()
}

type handles struct {
	schedule  *scheduler.Schedule
	countdown *scheduler.Countdown
}

func (c *Controller) detachLocked() handles {
	h := handles{schedule: c.schedule, countdown: c.countdown}
	c.schedule = nil
	c.countdown = nil
	return h
}

// stop stops whatever was detached and reports whether anything was.
func (h handles) stop() bool {
	if h.schedule == nil && h.countdown == nil {
		return false
	}
	if h.countdown != nil {
		h.countdown.Stop()
	}
	if h.schedule != nil {
		h.schedule.Stop()
	}
	return true
}
