package domain

// Activity is one feed activity in the uniform shape used by the pipeline.
type Activity struct {
	ID      string
	Name    string
	Athlete string
	CanKudo bool
	HasKudo bool
	// Cursor orders activities in time; lower is older. Not for display.
	Cursor int64
}

// Eligible reports whether a kudo can be given and has not been given yet.
func (a Activity) Eligible() bool {
	return a.CanKudo && !a.HasKudo
}

// CountEligible returns how many activities are eligible for a kudo.
func CountEligible(activities []Activity) int {
	n := 0
	for _, a := range activities {
		if a.Eligible() {
			n++
		}
	}
	return n
}

// KudoReceipt echoes the identifying fields of an activity that received a kudo.
type KudoReceipt struct {
	ActivityID string `json:"activity_id"`
	Athlete    string `json:"athlete"`
	Name       string `json:"name"`
}
