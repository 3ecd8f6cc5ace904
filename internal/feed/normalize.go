// Package feed turns raw feed pages into activities and walks the feed
// backwards from a cursor.
package feed

import "autokudo/internal/domain"

// Normalize converts one feed entry into zero or more activities.
// Unrecognised entries yield nothing.
func Normalize(entry domain.FeedEntry) []domain.Activity {
	switch e := entry.(type) {
	case domain.SingleEntry:
		a := domain.Activity{
			ID:      e.ID,
			Name:    e.Name,
			Athlete: e.Athlete,
			Cursor:  e.Cursor,
		}
		if e.Kudos != nil {
			if e.Kudos.HasKudoed {
				a.HasKudo = true
			} else if e.Kudos.CanKudo {
				a.CanKudo = true
			}
		}
		return []domain.Activity{a}

	case domain.GroupEntry:
		activities := make([]domain.Activity, 0, len(e.Members))
		for _, m := range e.Members {
			activities = append(activities, domain.Activity{
				ID:      m.ID,
				Name:    m.Name,
				Athlete: m.Athlete,
				HasKudo: m.HasKudoed,
				CanKudo: m.CanKudo && !m.HasKudoed,
				Cursor:  e.Cursor,
			})
		}
		return activities

	default:
		return nil
	}
}

// NormalizeAll concatenates Normalize over entries, preserving order.
func NormalizeAll(entries []domain.FeedEntry) []domain.Activity {
	var activities []domain.Activity
	for _, entry := range entries {
		activities = append(activities, Normalize(entry)...)
	}
	return activities
}

// MinCursor returns the lowest cursor among activities and false when there
// are none.
func MinCursor(activities []domain.Activity) (int64, bool) {
	if len(activities) == 0 {
		return 0, false
	}
	lowest := activities[0].Cursor
	for _, a := range activities[1:] {
		if a.Cursor < lowest {
			lowest = a.Cursor
		}
	}
	return lowest, true
}
