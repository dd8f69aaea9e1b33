package entities

import (
	"time"
)

// SearchAnalytics represents a single search interaction for analytics.
// ClickedResults and Refinements grow after the search while the record is
// still buffered in process; a flushed record is never modified again.
type SearchAnalytics struct {
	ID             string    `json:"id" db:"id"`
	Query          string    `json:"query" db:"query"`
	Timestamp      time.Time `json:"timestamp" db:"timestamp"`
	Duration       float64   `json:"duration" db:"duration"`
	ResultCount    int       `json:"result_count" db:"result_count"`
	ClickedResults []string  `json:"clicked_results" db:"clicked_results"`
	Refinements    []string  `json:"refinements" db:"refinements"`
	Abandoned      bool      `json:"abandoned" db:"abandoned"`
	UserID         *string   `json:"user_id,omitempty" db:"user_id"`
	SessionID      string    `json:"session_id" db:"session_id"`
}

// Clone returns a deep copy so callers can hand records across goroutines.
func (a *SearchAnalytics) Clone() *SearchAnalytics {
	c := *a
	c.ClickedResults = append([]string(nil), a.ClickedResults...)
	c.Refinements = append([]string(nil), a.Refinements...)
	if a.UserID != nil {
		uid := *a.UserID
		c.UserID = &uid
	}
	return &c
}

// TimeRange bounds a query by timestamp. Zero bounds are open.
type TimeRange struct {
	From time.Time `json:"from,omitempty"`
	To   time.Time `json:"to,omitempty"`
}

// Contains reports whether t falls inside the range (bounds inclusive).
func (r TimeRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}
