package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"autokudo/internal/domain"
)

const SourceID = "strava"

// Config holds Strava client configuration.
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	Headers           map[string]string
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
}

// Client reads the following feed and gives kudos through the Strava web
// endpoints. Session headers are taken from Config as is.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	headers        map[string]string
	limiter        *rate.Limiter
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger
}

// New creates a new Strava client.
func New(cfg Config, logger *slog.Logger) *Client {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:        cfg.BaseURL,
		headers:        cfg.Headers,
		limiter:        rate.NewLimiter(limit, burst),
		maxAttempts:    attempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		logger:         logger.With("source", SourceID),
	}
}

// FetchPage returns the feed entries older than cursor (epoch seconds).
func (c *Client) FetchPage(ctx context.Context, cursor int64) ([]domain.FeedEntry, error) {
	q := url.Values{}
	q.Set("feed_type", "following")
	q.Set("cursor", fmt.Sprintf("%d", cursor))
	endpoint := fmt.Sprintf("%s/dashboard/feed?%s", c.baseURL, q.Encode())

	var (
		resp    FeedResponse
		err     error
		attempt int
	)

	for attempt = 1; attempt <= c.maxAttempts; attempt++ {
		resp = FeedResponse{}
		err = c.doRequest(ctx, http.MethodGet, endpoint, &resp)
		if err == nil {
			entries := c.transform(resp.Entries)
			c.logger.Debug("fetched feed page",
				"cursor", cursor,
				"entries", len(entries),
			)
			return entries, nil
		}

		if attempt == c.maxAttempts || ctx.Err() != nil || !retryable(err) {
			break
		}

		backoff := c.calculateBackoff(attempt)
		c.logger.Warn("request failed, retrying",
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, fmt.Errorf("after %d attempts: %w", attempt, err)
}

// retryable reports whether a failed request may succeed when repeated.
// Client errors other than 429 will not.
func retryable(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return true
	}
	return se.Code == http.StatusTooManyRequests || se.Code >= 500
}

// GiveKudo gives a kudo to activity. It is not retried.
func (c *Client) GiveKudo(ctx context.Context, activity domain.Activity) (domain.KudoReceipt, error) {
	endpoint := fmt.Sprintf("%s/feed/activity/%s/kudo", c.baseURL, url.PathEscape(activity.ID))

	if err := c.doRequest(ctx, http.MethodPost, endpoint, nil); err != nil {
		return domain.KudoReceipt{}, fmt.Errorf("kudo activity %s: %w", activity.ID, err)
	}

	return domain.KudoReceipt{
		ActivityID: activity.ID,
		Athlete:    activity.Athlete,
		Name:       activity.Name,
	}, nil
}

func (c *Client) doRequest(ctx context.Context, method, endpoint string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "AutoKudo/1.0")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d", e.Code)
}

func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := c.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if backoff > c.maxBackoff {
		backoff = c.maxBackoff
	}
	return backoff
}

func (c *Client) transform(entries []FeedEntry) []domain.FeedEntry {
	out := make([]domain.FeedEntry, 0, len(entries))

	for _, e := range entries {
		cursor := int64(e.CursorData.Rank)

		switch e.Entity {
		case entityActivity:
			if e.Activity == nil || e.Activity.ID == "" {
				c.logger.Warn("activity entry without id", "cursor", cursor)
				out = append(out, domain.UnknownEntry{Entity: e.Entity})
				continue
			}
			single := domain.SingleEntry{
				Cursor:  cursor,
				ID:      string(e.Activity.ID),
				Name:    e.Activity.ActivityName,
				Athlete: e.Activity.Athlete.AthleteName,
			}
			if k := e.Activity.KudosAndComments; k != nil {
				single.Kudos = &domain.KudoStatus{HasKudoed: k.HasKudoed, CanKudo: k.CanKudo}
			}
			out = append(out, single)

		case entityGroupActivity:
			group := domain.GroupEntry{Cursor: cursor}
			if e.RowData != nil {
				for _, a := range e.RowData.Activities {
					if a.ActivityID == "" {
						c.logger.Warn("group member without id", "cursor", cursor)
						continue
					}
					group.Members = append(group.Members, domain.GroupMember{
						ID:        string(a.ActivityID),
						Name:      a.Name,
						Athlete:   a.AthleteName,
						HasKudoed: a.HasKudoed,
						CanKudo:   a.CanKudo,
					})
				}
			}
			out = append(out, group)

		default:
			out = append(out, domain.UnknownEntry{Entity: e.Entity})
		}
	}

	return out
}
