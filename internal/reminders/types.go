// Package reminders implements the payment-reminder scheduling subsystem for
// the OpsDeck platform: a deterministic, idempotent delayed-job scheduler
// backed by a time-ordered job store, read-side inspection queries, and a
// bounded garbage collector for expired jobs.
//
// The subsystem holds no in-process shared state. All coordination happens
// through the job store's atomic operations (conditional add to the time
// index, TTL set on payload records), so the scheduler and the collector are
// safe to invoke concurrently from request handlers and background workers.
package reminders

import (
	"time"

	"opsdeck/internal/types"
)

// Default tuning parameters. Services accept overrides through their Config
// structs; zero values fall back to these.
const (
	// DefaultGracePeriod is how long past its ETA a job is retained before
	// it becomes a garbage-collection candidate. The window gives the
	// delivery worker time to drain a backlog without losing payloads.
	DefaultGracePeriod = 48 * time.Hour

	// DefaultRetentionWindow is added on top of (eta - now) when computing
	// a payload's TTL, so the payload outlives its ETA by at least the
	// grace period.
	DefaultRetentionWindow = 72 * time.Hour

	// DefaultMinTTL is the floor for payload TTLs. Guards against a TTL of
	// a few seconds for jobs scheduled just before their ETA.
	DefaultMinTTL = 1 * time.Hour
)

// Job is the payload record stored per scheduled reminder. The triple
// (PayableID, OffsetDays, ETAEpoch) fully determines JobID, which is the
// idempotency key for the whole subsystem.
type Job struct {
	JobID      string    `json:"job_id"`
	PayableID  string    `json:"payable_id"`
	BusinessID string    `json:"business_id,omitempty"`
	OffsetDays int       `json:"offset_days"`
	ETA        time.Time `json:"eta"`
	ETAEpoch   int64     `json:"eta_epoch"`
	// Attempts is a consumer-side retry counter. It is initialized to zero
	// here and only ever incremented by the delivery worker.
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
}

// JobEntry is one member of the global time index: a job ID plus its score
// (the ETA in epoch seconds).
type JobEntry struct {
	JobID    string
	ETAEpoch int64
}

// IndexedJob is one member of a payable's reverse index. ETAEpoch is nil when
// the job is no longer present in the global time index (already pruned or
// expired); callers must tolerate the dangling reference.
type IndexedJob struct {
	JobID    string
	ETAEpoch *int64
}

// JobView is a hydrated job record returned by the Inspector. Job is nil when
// the payload has expired, ETA is nil when the time-index entry is gone, and
// Payable is populated only by HydrateJobsWithPayables (nil when the owning
// payable no longer exists).
type JobView struct {
	JobID   string         `json:"job_id"`
	ETA     *time.Time     `json:"eta,omitempty"`
	Job     *Job           `json:"job,omitempty"`
	Payable *types.Payable `json:"payable,omitempty"`
}

// GCResult reports the outcome of one garbage-collection sweep.
type GCResult struct {
	Examined int       `json:"examined"`
	Pruned   int       `json:"pruned"`
	Cutoff   time.Time `json:"cutoff"`
}
