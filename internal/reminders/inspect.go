package reminders

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"sort"
	"time"
)

// Inspector provides the read side of the reminder subsystem: pure queries
// over the job store and the document mirror with no side effects.
//
// Inspection favors availability over failing hard. Transient store errors on
// any read path are logged and surfaced as empty results, never as errors;
// callers needing stronger guarantees must query the store directly.
type Inspector struct {
	store    JobStore
	payables PayableSource
	dec      FieldDecrypter
	logger   *slog.Logger
}

// NewInspector creates an Inspector. The decrypter may be nil, in which case
// hydration attaches payables with their encrypted fields untouched.
func NewInspector(store JobStore, payables PayableSource, dec FieldDecrypter, logger *slog.Logger) *Inspector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inspector{
		store:    store,
		payables: payables,
		dec:      dec,
		logger:   logger,
	}
}

// ListNextDue returns the limit soonest-firing jobs from the global time
// index, each hydrated with its payload.
func (i *Inspector) ListNextDue(ctx context.Context, limit int) []JobView {
	return i.rangeViews(ctx, math.Inf(-1), math.Inf(1), limit)
}

// ListJobsWindow returns jobs whose ETA lies in [start, end], ascending,
// capped at limit. A nil bound leaves that side of the window open.
func (i *Inspector) ListJobsWindow(ctx context.Context, start, end *time.Time, limit int) []JobView {
	min, max := math.Inf(-1), math.Inf(1)
	if start != nil {
		min = float64(start.Unix())
	}
	if end != nil {
		max = float64(end.Unix())
	}
	return i.rangeViews(ctx, min, max, limit)
}

// ListJobsForPayable returns every job in the payable's reverse index,
// hydrated with payloads. Jobs whose time-index entry has already been
// pruned appear with a nil ETA and sort after all live entries rather than
// being dropped.
func (i *Inspector) ListJobsForPayable(ctx context.Context, payableID string) []JobView {
	members, err := i.store.MembersForPayable(ctx, payableID)
	if err != nil {
		i.logger.Warn("reverse-index read failed; returning empty reminder list",
			"payable_id", payableID, "error", err)
		return []JobView{}
	}

	views := make([]JobView, 0, len(members))
	for _, m := range members {
		v := JobView{JobID: m.JobID}
		if m.ETAEpoch != nil {
			t := time.Unix(*m.ETAEpoch, 0).UTC()
			v.ETA = &t
		}
		v.Job = i.loadPayload(ctx, m.JobID)
		views = append(views, v)
	}

	// Live entries ascending by ETA; dangling entries (nil ETA) last.
	sort.SliceStable(views, func(a, b int) bool {
		va, vb := views[a], views[b]
		switch {
		case va.ETA == nil:
			return false
		case vb.ETA == nil:
			return true
		default:
			return va.ETA.Before(*vb.ETA)
		}
	})
	return views
}

// ListJobsFromMirror reads the denormalized scheduled_jobs arrays for a
// business directly from the document store, without touching the job store
// at all. Useful for UI display and for diagnostics when the authoritative
// store is degraded. The mirror reflects the most recent scheduling call
// only; it is not authoritative if the two stores have diverged.
func (i *Inspector) ListJobsFromMirror(ctx context.Context, businessID string, limitPerPayable int) []JobView {
	payables, err := i.payables.ListWithScheduledJobs(ctx, businessID, 0)
	if err != nil {
		i.logger.Warn("mirror read failed; returning empty reminder list",
			"business_id", businessID, "error", err)
		return []JobView{}
	}

	var views []JobView
	for _, p := range payables {
		jobs := p.ScheduledJobs
		if limitPerPayable > 0 && len(jobs) > limitPerPayable {
			jobs = jobs[:limitPerPayable]
		}
		for _, ref := range jobs {
			eta := ref.ETA
			views = append(views, JobView{
				JobID: ref.JobID,
				ETA:   &eta,
				Job: &Job{
					JobID:      ref.JobID,
					PayableID:  p.ID,
					BusinessID: p.BusinessID,
					OffsetDays: ref.OffsetDays,
					ETA:        ref.ETA,
					ETAEpoch:   ref.ETA.Unix(),
				},
			})
		}
	}
	return views
}

// HydrateJobsWithPayables attaches the owning payable to each job view. All
// referenced payables are fetched in a single batched query (no N+1), and
// encrypted display fields are decrypted before attachment. Views whose
// payable no longer exists keep a nil Payable rather than being dropped.
func (i *Inspector) HydrateJobsWithPayables(ctx context.Context, views []JobView) []JobView {
	idSet := make(map[string]struct{})
	for _, v := range views {
		if v.Job != nil && v.Job.PayableID != "" {
			idSet[v.Job.PayableID] = struct{}{}
		}
	}
	if len(idSet) == 0 {
		return views
	}

	ids := make([]string, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	payables, err := i.payables.GetByIDs(ctx, ids)
	if err != nil {
		i.logger.Warn("payable hydration fetch failed; returning jobs unhydrated",
			"count", len(ids), "error", err)
		return views
	}

	byID := make(map[string]int, len(payables))
	for idx, p := range payables {
		if i.dec != nil && p.ContactPhone != "" {
			plain, derr := i.dec.Decrypt(p.ContactPhone)
			if derr != nil {
				i.logger.Warn("contact phone decryption failed",
					"payable_id", p.ID, "error", derr)
				p.ContactPhone = ""
			} else {
				p.ContactPhone = plain
			}
		}
		byID[p.ID] = idx
	}

	for n := range views {
		if views[n].Job == nil {
			continue
		}
		if idx, ok := byID[views[n].Job.PayableID]; ok {
			views[n].Payable = payables[idx]
		}
	}
	return views
}

// rangeViews runs a score-range query and hydrates each entry with its
// payload. Store errors yield an empty slice.
func (i *Inspector) rangeViews(ctx context.Context, min, max float64, limit int) []JobView {
	entries, err := i.store.RangeByScore(ctx, min, max, limit)
	if err != nil {
		i.logger.Warn("time-index range read failed; returning empty reminder list",
			"error", err)
		return []JobView{}
	}

	views := make([]JobView, 0, len(entries))
	for _, e := range entries {
		t := time.Unix(e.ETAEpoch, 0).UTC()
		views = append(views, JobView{
			JobID: e.JobID,
			ETA:   &t,
			Job:   i.loadPayload(ctx, e.JobID),
		})
	}
	return views
}

// loadPayload fetches and decodes a job payload, returning nil when the
// record has expired, was never written, or fails to decode.
func (i *Inspector) loadPayload(ctx context.Context, jobID string) *Job {
	raw, ok, err := i.store.GetPayload(ctx, jobID)
	if err != nil {
		i.logger.Warn("payload read failed", "job_id", jobID, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		i.logger.Warn("payload decode failed", "job_id", jobID, "error", err)
		return nil
	}
	return &job
}
