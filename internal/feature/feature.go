// Package feature owns the persistent work queue: an ordered collection of
// features with priority-based selection and pass/fail completion state,
// backed by a single JSON document that is rewritten atomically on every
// mutation.
package feature

import "time"

// Feature is one schedulable unit of work.
type Feature struct {
	ID          string     `json:"id"`
	Category    string     `json:"category"`
	Description string     `json:"description"`
	Priority    int        `json:"priority"` // 1 (highest) .. 5 (lowest)
	Steps       []string   `json:"steps"`
	Passes      bool       `json:"passes"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

// Summary aggregates completion state across the store.
type Summary struct {
	Total      int     `json:"total"`
	Completed  int     `json:"completed"`
	Pending    int     `json:"pending"`
	Percentage float64 `json:"percentage"`
}

// document is the persisted envelope. Unknown extra fields in an existing
// file are tolerated on read; rewrites emit this canonical shape.
type document struct {
	Version   string    `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
	Features  []Feature `json:"features"`
}

const schemaVersion = "1.0"

func clampPriority(p int) int {
	if p < 1 {
		return 1
	}
	if p > 5 {
		return 5
	}
	return p
}
