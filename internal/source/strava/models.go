package strava

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	entityActivity      = "Activity"
	entityGroupActivity = "GroupActivity"
)

// FeedResponse is the dashboard feed page returned by Strava.
type FeedResponse struct {
	Entries []FeedEntry `json:"entries"`
}

type FeedEntry struct {
	Entity     string           `json:"entity"`
	CursorData CursorData       `json:"cursorData"`
	Activity   *ActivityPayload `json:"activity"`
	RowData    *RowData         `json:"rowData"`
}

type CursorData struct {
	Rank      float64 `json:"rank"`
	UpdatedAt int64   `json:"updated_at"`
}

type ActivityPayload struct {
	ID               ID                `json:"id"`
	ActivityName     string            `json:"activityName"`
	Athlete          AthletePayload    `json:"athlete"`
	KudosAndComments *KudosAndComments `json:"kudosAndComments"`
}

type AthletePayload struct {
	AthleteName string `json:"athleteName"`
}

type KudosAndComments struct {
	HasKudoed bool `json:"hasKudoed"`
	CanKudo   bool `json:"canKudo"`
}

type RowData struct {
	Activities []GroupActivity `json:"activities"`
}

type GroupActivity struct {
	ActivityID  ID     `json:"activity_id"`
	Name        string `json:"name"`
	AthleteName string `json:"athlete_name"`
	HasKudoed   bool   `json:"has_kudoed"`
	CanKudo     bool   `json:"can_kudo"`
}

// ID accepts activity ids encoded either as JSON strings or numbers.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode id: %w", err)
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode id: %w", err)
	}
	*id = ID(n.String())
	return nil
}
