package reminders

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
)

// ArchiveSink receives a gzip-compressed JSONL batch of pruned job payloads
// for cold storage. Archival is strictly best-effort: a sink failure is
// logged and never blocks the sweep.
type ArchiveSink interface {
	// StoreArchive persists the compressed batch under the given key,
	// e.g. "reminders/2026/08/pruned_{uuid}.jsonl.gz".
	StoreArchive(ctx context.Context, key string, data []byte) error
}

// CollectorConfig tunes the Collector. A zero GracePeriod falls back to
// DefaultGracePeriod.
type CollectorConfig struct {
	// GracePeriod is how far past its ETA a job must be before it becomes
	// a pruning candidate.
	GracePeriod time.Duration
}

// Collector is the reminder garbage collector. It reclaims jobs whose fire
// time is at least the grace period in the past, in bounded batches suited
// to cron-style invocation.
//
// The sweep may run concurrently with the Scheduler without coordination:
// the collector only touches jobs whose ETA is already past the grace
// window, and the scheduler never registers a job with a past ETA, so the
// two cannot contend for the same entry.
type Collector struct {
	store    JobStore
	mirror   MirrorStore
	archiver ArchiveSink // nil when archival is not configured
	clk      clock.Clock
	logger   *slog.Logger
	grace    time.Duration
}

// NewCollector creates a Collector. The archiver may be nil to disable
// cold-storage archival of pruned payloads.
func NewCollector(store JobStore, mirror MirrorStore, archiver ArchiveSink, clk clock.Clock, logger *slog.Logger, cfg CollectorConfig) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.New()
	}
	grace := cfg.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &Collector{
		store:    store,
		mirror:   mirror,
		archiver: archiver,
		clk:      clk,
		logger:   logger,
		grace:    grace,
	}
}

// PruneExpiredJobsByETA deletes up to maxToPrune jobs whose ETA is at least
// the grace period in the past, oldest first — under sustained backlog the
// oldest expired jobs are reclaimed first, bounding growth deterministically.
//
// For each candidate the payable ID is parsed back out of the job ID so the
// deletion cascades into the per-payable index and the document mirror. A
// job ID that fails to parse is treated as having no associated payable: it
// is still pruned from the store, but no mirror update is attempted.
//
// Store deletions are batched in a single pipelined write. The batch is not
// transactional; every deletion is idempotent, so a partial failure is
// healed by the next sweep finding the same (or fewer) candidates.
func (c *Collector) PruneExpiredJobsByETA(ctx context.Context, maxToPrune int) (GCResult, error) {
	now := c.clk.Now().UTC()
	cutoff := now.Add(-c.grace)
	res := GCResult{Cutoff: cutoff}

	entries, err := c.store.RangeByScore(ctx, math.Inf(-1), float64(cutoff.Unix()), maxToPrune)
	if err != nil {
		return res, fmt.Errorf("listing expired reminder jobs: %w", err)
	}
	res.Examined = len(entries)
	if len(entries) == 0 {
		return res, nil
	}

	// Pull payloads for archival before they are deleted.
	var archive [][]byte
	if c.archiver != nil {
		for _, e := range entries {
			if raw, ok, perr := c.store.GetPayload(ctx, e.JobID); perr == nil && ok {
				archive = append(archive, raw)
			}
		}
	}

	refs := make([]JobRef, 0, len(entries))
	mirrorPulls := make(map[string][]string)
	for _, e := range entries {
		payableID, _, _, perr := ParseJobID(e.JobID)
		if perr != nil {
			// Unparseable ID: prune the store records, skip the mirror.
			c.logger.Warn("pruning job with unparseable id; skipping mirror update",
				"job_id", e.JobID, "error", perr)
			refs = append(refs, JobRef{JobID: e.JobID})
			continue
		}
		refs = append(refs, JobRef{JobID: e.JobID, PayableID: payableID})
		mirrorPulls[payableID] = append(mirrorPulls[payableID], e.JobID)
	}

	if err := c.store.Remove(ctx, refs); err != nil {
		return res, fmt.Errorf("removing expired reminder jobs: %w", err)
	}
	res.Pruned = len(refs)

	// Mirror cleanup is best-effort: the mirror is non-authoritative, so a
	// failed pull is logged rather than failing the sweep.
	for payableID, jobIDs := range mirrorPulls {
		if err := c.mirror.PullScheduledJobs(ctx, payableID, jobIDs); err != nil {
			c.logger.Warn("mirror pull failed for pruned jobs",
				"payable_id", payableID, "count", len(jobIDs), "error", err)
		}
	}

	if c.archiver != nil && len(archive) > 0 {
		c.archivePayloads(ctx, now, archive)
	}

	c.logger.Info("reminder gc sweep complete",
		"examined", res.Examined,
		"pruned", res.Pruned,
		"cutoff", res.Cutoff,
	)
	return res, nil
}

// archivePayloads gzips the pruned payloads as JSONL and hands them to the
// sink. Failures are logged only.
func (c *Collector) archivePayloads(ctx context.Context, now time.Time, payloads [][]byte) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	for _, p := range payloads {
		if _, err := zw.Write(append(p, '\n')); err != nil {
			c.logger.Warn("archive compression failed", "error", err)
			_ = zw.Close()
			return
		}
	}
	if err := zw.Close(); err != nil {
		c.logger.Warn("archive compression failed", "error", err)
		return
	}

	key := fmt.Sprintf("reminders/%04d/%02d/pruned_%s.jsonl.gz",
		now.Year(), int(now.Month()), uuid.New().String())
	if err := c.archiver.StoreArchive(ctx, key, buf.Bytes()); err != nil {
		c.logger.Warn("archive upload failed", "key", key, "error", err)
		return
	}
	c.logger.Info("archived pruned reminder payloads", "key", key, "count", len(payloads))
}
