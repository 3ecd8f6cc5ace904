package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"autokudo/internal/domain"
)

// Source fetches one page of feed entries older than cursor.
type Source interface {
	FetchPage(ctx context.Context, cursor int64) ([]domain.FeedEntry, error)
}

// Walker pages backwards through the feed.
type Walker struct {
	source Source
	logger *slog.Logger
	now    func() time.Time // injectable for deterministic tests
}

// NewWalker creates a Walker reading from source.
func NewWalker(source Source, logger *slog.Logger) *Walker {
	return &Walker{
		source: source,
		logger: logger.With("component", "walker"),
		now:    time.Now,
	}
}

// Walk fetches up to depth pages, starting below cursor and continuing below
// the lowest cursor of each page. A zero cursor starts at the current time.
//
// Each page is reported through emit as a PageFetched event before the next
// fetch starts. The walk ends early on an empty page or when the cursor stops
// decreasing. Any fetch error fails the whole walk and no activities are
// returned.
func (w *Walker) Walk(ctx context.Context, cursor int64, depth int, emit domain.EventFunc) ([]domain.Activity, error) {
	if depth <= 0 {
		return nil, nil
	}
	if cursor == 0 {
		cursor = w.now().Unix()
	}

	var all []domain.Activity

	for page := 1; page <= depth; page++ {
		entries, err := w.source.FetchPage(ctx, cursor)
		if err != nil {
			return nil, fmt.Errorf("fetch page %d: %w", page, err)
		}

		activities := NormalizeAll(entries)
		all = append(all, activities...)

		w.logger.Debug("fetched page",
			"page", page,
			"depth", depth,
			"cursor", cursor,
			"entries", len(entries),
			"activities", len(activities),
		)

		if emit != nil {
			emit(domain.PageFetched{
				Page:       page,
				Depth:      depth,
				Cursor:     cursor,
				Activities: activities,
			})
		}

		next, ok := MinCursor(activities)
		if !ok {
			w.logger.Debug("empty page, ending walk", "page", page)
			break
		}
		if next >= cursor {
			w.logger.Warn("cursor did not move back, ending walk",
				"page", page,
				"cursor", cursor,
				"next", next,
			)
			break
		}
		cursor = next
	}

	return all, nil
}
