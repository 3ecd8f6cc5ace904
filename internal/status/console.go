// Package status renders run progress on the terminal and keeps the last
// status text for the HTTP bridge.
package status

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

const idleText = "idle"

// Console is a Display backed by a progressbar spinner.
type Console struct {
	mu             sync.Mutex
	bar            *progressbar.ProgressBar
	text           string
	triggerVisible bool
	logger         *slog.Logger
}

func NewConsole(w io.Writer, logger *slog.Logger) *Console {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(idleText),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(15),
		progressbar.OptionThrottle(100*time.Millisecond),
	)
	return &Console{
		bar:            bar,
		triggerVisible: true,
		logger:         logger.With("component", "status"),
	}
}

// SetStatus shows text. An empty text returns the spinner to idle.
func (c *Console) SetStatus(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if text == c.text {
		return
	}
	c.text = text

	if text == "" {
		c.bar.Describe(idleText)
		return
	}
	c.bar.Describe(text)
	_ = c.bar.Add(1)
}

func (c *Console) SetTriggerVisible(visible bool) {
	c.mu.Lock()
	changed := c.triggerVisible != visible
	c.triggerVisible = visible
	c.mu.Unlock()

	if changed {
		c.logger.Info("manual trigger visibility changed", "visible", visible)
	}
}

// Text returns the last status text, empty when idle.
func (c *Console) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

func (c *Console) TriggerVisible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.triggerVisible
}

// Close finishes the spinner line.
func (c *Console) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bar.Finish()
}
