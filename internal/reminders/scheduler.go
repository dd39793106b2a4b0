package reminders

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"opsdeck/internal/types"
)

// SchedulerConfig tunes the Scheduler. Zero values fall back to the package
// defaults.
type SchedulerConfig struct {
	// RetentionWindow is added to (eta - now) when computing payload TTLs.
	RetentionWindow time.Duration
	// MinTTL is the floor for payload TTLs.
	MinTTL time.Duration
}

// Scheduler registers reminder jobs for payables. It is safe for concurrent
// use: job identity is deterministic and the store's conditional add makes
// re-registration a no-op, so concurrent calls for the same payable cannot
// create duplicates.
type Scheduler struct {
	store     JobStore
	mirror    MirrorStore
	clk       clock.Clock
	logger    *slog.Logger
	retention time.Duration
	minTTL    time.Duration
}

// NewScheduler creates a Scheduler. The clock is injected so past-offset
// skipping is testable; pass clock.New() in production. A nil logger falls
// back to slog.Default().
func NewScheduler(store JobStore, mirror MirrorStore, clk clock.Clock, logger *slog.Logger, cfg SchedulerConfig) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.New()
	}
	retention := cfg.RetentionWindow
	if retention <= 0 {
		retention = DefaultRetentionWindow
	}
	minTTL := cfg.MinTTL
	if minTTL <= 0 {
		minTTL = DefaultMinTTL
	}
	return &Scheduler{
		store:     store,
		mirror:    mirror,
		clk:       clk,
		logger:    logger,
		retention: retention,
		minTTL:    minTTL,
	}
}

// ScheduleReminderJobs computes one fire time per distinct offset
// (offsetDays calendar days before dueAt), skips offsets whose ETA has
// already passed, and idempotently registers the remaining jobs in the job
// store. The resulting schedule is then mirrored onto the payable document —
// but only when at least one job was registered, so a call where every
// offset is past-due never clobbers a previously valid mirror with an empty
// one.
//
// The function is not transactional across offsets. A failure on one offset
// aborts the loop and propagates, leaving earlier offsets registered; the
// caller retries the whole call, which is safe because registration is
// idempotent and simply fills in whatever is missing.
func (s *Scheduler) ScheduleReminderJobs(ctx context.Context, payableID, businessID string, dueAt time.Time, offsetsDays []int) ([]types.ScheduledJobRef, error) {
	now := s.clk.Now().UTC()
	dueAt = dueAt.UTC()

	scheduled := make([]types.ScheduledJobRef, 0, len(offsetsDays))
	for _, d := range dedupeSortedOffsets(offsetsDays) {
		eta := ReminderETA(dueAt, d)
		if !eta.After(now) {
			s.logger.Info("skipping past-due reminder offset",
				"payable_id", payableID,
				"offset_days", d,
				"eta", eta,
			)
			continue
		}

		etaEpoch := eta.Unix()
		jobID := JobID(payableID, d, etaEpoch)
		job := Job{
			JobID:      jobID,
			PayableID:  payableID,
			BusinessID: businessID,
			OffsetDays: d,
			ETA:        eta,
			ETAEpoch:   etaEpoch,
			Attempts:   0,
			CreatedAt:  now,
		}
		payload, err := json.Marshal(job)
		if err != nil {
			return nil, fmt.Errorf("marshaling reminder job %s: %w", jobID, err)
		}

		ttl := eta.Sub(now) + s.retention
		if ttl < s.minTTL {
			ttl = s.minTTL
		}

		if err := s.store.Put(ctx, jobID, payableID, etaEpoch, payload, ttl); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalJobStore,
				fmt.Sprintf("failed to register reminder job for offset %d", d), err)
		}

		scheduled = append(scheduled, types.ScheduledJobRef{
			JobID:      jobID,
			OffsetDays: d,
			ETA:        eta,
		})
		s.logger.Debug("registered reminder job",
			"payable_id", payableID,
			"job_id", jobID,
			"eta", eta,
			"ttl", ttl,
		)
	}

	if len(scheduled) == 0 {
		// All offsets were past-due. The previous mirror state, possibly
		// from an earlier call, is deliberately left untouched.
		return scheduled, nil
	}

	if err := s.mirror.ReplaceScheduledJobs(ctx, payableID, scheduled, now); err != nil {
		return nil, fmt.Errorf("updating scheduled_jobs mirror for payable %s: %w", payableID, err)
	}

	s.logger.Info("scheduled reminder jobs",
		"payable_id", payableID,
		"count", len(scheduled),
	)
	return scheduled, nil
}
