// Package record holds the rows and snapshots the pipelines emit.
package record

import "time"

// Request outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeTimeout = "timeout"
	OutcomeError   = "error"
)

// RequestRow is one completed load-test iteration.
type RequestRow struct {
	RunID     string    `json:"run_id"`
	RequestID string    `json:"request_id"`
	Iteration int64     `json:"iteration"`
	VU        int       `json:"vu"`
	RoomID    string    `json:"room_id"`
	UserID    string    `json:"user_id"`
	Status    int       `json:"status"`
	Outcome   string    `json:"outcome"`
	Marker    string    `json:"marker,omitempty"`
	LatencyMs float64   `json:"latency_ms"`
	Error     string    `json:"error,omitempty"`
	FirstOf   string    `json:"first_of,omitempty"`
	Timestamp time.Time `json:"ts"`
}

// RunStatus is a live view of a load run, pushed to writers that render it.
type RunStatus struct {
	RunID        string `json:"run_id"`
	ActiveVUs    int    `json:"active_vus"`
	Requests     int64  `json:"requests"`
	Successes    int64  `json:"successes"`
	Errors       int64  `json:"errors"`
	Timeouts     int64  `json:"timeouts"`
	RateLimited  int64  `json:"rate_limited"`
	StorageError int64  `json:"storage_errors"`
	// First-occurrence iterations, zero while unset.
	FirstTimeout   int64 `json:"first_timeout,omitempty"`
	FirstError     int64 `json:"first_error,omitempty"`
	FirstRateLimit int64 `json:"first_rate_limit,omitempty"`
}
