package entities

import "time"

// InvalidationEvent tells search dispatchers that cached results for a table are stale.
// An empty Table means every table.
type InvalidationEvent struct {
	ID        string    `json:"id"`
	Table     string    `json:"table,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
