package reminders

import (
	"context"
	"time"

	"opsdeck/internal/types"
)

// JobStore is the narrow contract the subsystem needs from its backing
// key-value store. The production implementation is Redis (redis_store.go);
// tests use the in-memory implementation (memory_store.go).
//
// The store keeps three kinds of records per job:
//
//   - a member of the global time index, scored by ETA epoch seconds;
//   - a JSON payload record with a TTL;
//   - membership in the owning payable's reverse-index set.
//
// Index and payload are separate records on purpose: score-range queries
// never load payloads for jobs outside the queried window.
type JobStore interface {
	// Put writes the payload record with the given TTL, adds the job to the
	// global time index only if not already present (the no-op is how
	// idempotent re-scheduling surfaces: the payload TTL is refreshed
	// without duplicating the index entry), and adds the job to the
	// payable's reverse index.
	Put(ctx context.Context, jobID string, payableID string, etaEpoch int64, payload []byte, ttl time.Duration) error

	// RangeByScore returns jobs whose score lies in [min, max], ascending,
	// capped at limit. Either bound may be math.Inf(-1) or math.Inf(1) for
	// an open interval.
	RangeByScore(ctx context.Context, min, max float64, limit int) ([]JobEntry, error)

	// MembersForPayable returns every job ID in the payable's reverse
	// index, each annotated with its current score. The score is nil for
	// jobs no longer present in the time index.
	MembersForPayable(ctx context.Context, payableID string) ([]IndexedJob, error)

	// GetPayload returns the stored payload for the job, or ok=false when
	// it has expired or was never written.
	GetPayload(ctx context.Context, jobID string) (payload []byte, ok bool, err error)

	// Remove deletes the payload records, time-index members, and
	// reverse-index memberships for the given jobs in one batched write
	// where the backend allows. Removal is idempotent; used by the
	// garbage collector.
	Remove(ctx context.Context, refs []JobRef) error
}

// JobRef pairs a job ID with its owning payable for batched removal.
type JobRef struct {
	JobID     string
	PayableID string
}

// MirrorStore is the document-store side of scheduling: the denormalized
// scheduled_jobs array kept on each payable for UI and diagnostics. The
// mirror is informational only and is never consulted for execution; the
// JobStore is authoritative.
type MirrorStore interface {
	// ReplaceScheduledJobs overwrites the payable's scheduled_jobs array
	// (full replace, not append) and bumps its updated_at.
	ReplaceScheduledJobs(ctx context.Context, payableID string, jobs []types.ScheduledJobRef, updatedAt time.Time) error

	// PullScheduledJobs removes the given job IDs from the payable's
	// scheduled_jobs array, leaving other entries intact.
	PullScheduledJobs(ctx context.Context, payableID string, jobIDs []string) error
}

// PayableSource is the read-side document-store contract used by the
// Inspector for hydration and mirror diagnostics.
type PayableSource interface {
	// GetByIDs batch-fetches payables by ID in a single query. Missing IDs
	// are simply absent from the result; no error is returned for them.
	GetByIDs(ctx context.Context, ids []string) ([]*types.Payable, error)

	// ListWithScheduledJobs returns a business's payables that carry a
	// non-empty scheduled_jobs mirror.
	ListWithScheduledJobs(ctx context.Context, businessID string, limit int) ([]*types.Payable, error)
}

// FieldDecrypter decrypts encrypted-at-rest display fields (contact phone
// numbers) during hydration. Implemented by the crypto package.
type FieldDecrypter interface {
	Decrypt(ciphertext string) (string, error)
}
