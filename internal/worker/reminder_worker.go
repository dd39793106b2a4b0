// Package worker runs the background reminder delivery loop: it drains due
// jobs from the reminder store, texts the payable's contact, and announces
// each outcome on the dispatch queue.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"opsdeck/internal/external"
	"opsdeck/internal/observability"
	"opsdeck/internal/queue"
	"opsdeck/internal/reminders"
	"opsdeck/internal/types"
)

// Dispatcher publishes delivery outcomes downstream. Implemented by
// queue.ReminderDispatcher.
type Dispatcher interface {
	Publish(ctx context.Context, msg queue.DispatchMessage) error
}

// SMSCharger debits delivered texts from the business wallet. Implemented by
// wallet.Service.
type SMSCharger interface {
	ChargeSMS(ctx context.Context, businessID, jobID string, costCents int64)
}

// Config tunes the delivery worker.
type Config struct {
	// Poll is the interval between drain passes.
	Poll time.Duration
	// Batch caps how many due jobs one pass examines.
	Batch int
	// Parallel bounds concurrent SMS sends within a pass.
	Parallel int
	// MaxAttempts is how many delivery failures a job survives before it is
	// dropped with a failed dispatch notice.
	MaxAttempts int
	// SMSCostCents is the per-text wallet charge.
	SMSCostCents int64
	// PaymentURL is the public base URL embedded in reminder texts.
	PaymentURL string
}

func (c Config) withDefaults() Config {
	if c.Poll <= 0 {
		c.Poll = 30 * time.Second
	}
	if c.Batch <= 0 {
		c.Batch = 50
	}
	if c.Parallel <= 0 {
		c.Parallel = 8
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.SMSCostCents <= 0 {
		c.SMSCostCents = 5
	}
	return c
}

// ReminderWorker drains due reminder jobs and delivers them over SMS.
type ReminderWorker struct {
	inspector  *reminders.Inspector
	store      reminders.JobStore
	mirror     reminders.MirrorStore
	sms        external.SMSSender
	dispatcher Dispatcher
	charger    SMSCharger
	metrics    observability.MetricsCollector
	clk        clock.Clock
	logger     *slog.Logger
	cfg        Config
}

// NewReminderWorker creates a worker. Pass clock.New() in production; the
// metrics collector may be observability.NoopMetrics.
func NewReminderWorker(
	inspector *reminders.Inspector,
	store reminders.JobStore,
	mirror reminders.MirrorStore,
	sms external.SMSSender,
	dispatcher Dispatcher,
	charger SMSCharger,
	metrics observability.MetricsCollector,
	clk clock.Clock,
	logger *slog.Logger,
	cfg Config,
) *ReminderWorker {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &ReminderWorker{
		inspector:  inspector,
		store:      store,
		mirror:     mirror,
		sms:        sms,
		dispatcher: dispatcher,
		charger:    charger,
		metrics:    metrics,
		clk:        clk,
		logger:     logger,
		cfg:        cfg.withDefaults(),
	}
}

// Run polls until the context is canceled.
func (w *ReminderWorker) Run(ctx context.Context) error {
	ticker := w.clk.Ticker(w.cfg.Poll)
	defer ticker.Stop()

	w.logger.Info("reminder worker started", "poll", w.cfg.Poll, "batch", w.cfg.Batch)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("reminder worker stopping")
			return ctx.Err()
		case <-ticker.C:
			if n := w.ProcessDueJobs(ctx); n > 0 {
				w.logger.Info("drain pass complete", "delivered_or_retried", n)
			}
		}
	}
}

// ProcessDueJobs runs one drain pass: fetch jobs whose ETA has arrived,
// hydrate their payables, and deliver each with bounded parallelism. Returns
// the number of jobs acted on.
func (w *ReminderWorker) ProcessDueJobs(ctx context.Context) int {
	now := w.clk.Now().UTC()
	views := w.inspector.ListJobsWindow(ctx, nil, &now, w.cfg.Batch)
	if len(views) == 0 {
		return 0
	}
	views = w.inspector.HydrateJobsWithPayables(ctx, views)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Parallel)
	for _, v := range views {
		g.Go(func() error {
			w.deliver(gctx, v)
			return nil
		})
	}
	_ = g.Wait()
	return len(views)
}

// deliver handles one due job end to end. Jobs with no payload, no payable,
// or no contact number are dropped; delivery failures are retried up to
// MaxAttempts by incrementing the payload's attempt counter in place.
func (w *ReminderWorker) deliver(ctx context.Context, v reminders.JobView) {
	if v.Job == nil {
		// Payload expired while still indexed; the collector will prune the
		// index entry, nothing to deliver.
		w.logger.Warn("due job has no payload; skipping", "job_id", v.JobID)
		return
	}
	job := v.Job
	ref := reminders.JobRef{JobID: job.JobID, PayableID: job.PayableID}

	if v.Payable == nil {
		w.logger.Warn("due job has no payable; dropping", "job_id", job.JobID)
		w.drop(ctx, ref, job, "orphaned")
		return
	}
	if v.Payable.Status != types.PayableOpen {
		w.logger.Info("payable no longer open; dropping reminder",
			"job_id", job.JobID, "status", v.Payable.Status)
		w.drop(ctx, ref, job, "payable_"+string(v.Payable.Status))
		return
	}
	if v.Payable.ContactPhone == "" {
		w.logger.Warn("payable has no contact phone; dropping reminder", "job_id", job.JobID)
		w.drop(ctx, ref, job, "no_contact")
		return
	}

	msgID, err := w.sms.Send(ctx, v.Payable.ContactPhone, w.composeBody(v.Payable, job))
	if err != nil {
		w.metrics.CountSMSDispatch(ctx, job.BusinessID, false)
		w.retryOrDrop(ctx, ref, job, err)
		return
	}

	w.metrics.CountSMSDispatch(ctx, job.BusinessID, true)
	w.charger.ChargeSMS(ctx, job.BusinessID, job.JobID, w.cfg.SMSCostCents)
	w.publish(ctx, job, msgID, "sent")

	if err := w.store.Remove(ctx, []reminders.JobRef{ref}); err != nil {
		// The job stays due and will be re-delivered next pass; the wallet
		// charge and any downstream consumer dedupe on job ID.
		w.logger.Error("failed to remove delivered job", "job_id", job.JobID, "error", err)
		return
	}
	if err := w.mirror.PullScheduledJobs(ctx, job.PayableID, []string{job.JobID}); err != nil {
		w.logger.Warn("failed to pull delivered job from mirror",
			"job_id", job.JobID, "error", err)
	}
	w.logger.Info("reminder delivered",
		"job_id", job.JobID, "payable_id", job.PayableID, "gateway_msg_id", msgID)
}

// retryOrDrop bumps the job's attempt counter, dropping it once MaxAttempts
// is reached. The updated payload is written back with enough TTL to survive
// until the next passes.
func (w *ReminderWorker) retryOrDrop(ctx context.Context, ref reminders.JobRef, job *reminders.Job, cause error) {
	job.Attempts++
	if job.Attempts >= w.cfg.MaxAttempts {
		w.logger.Error("reminder delivery abandoned",
			"job_id", job.JobID, "attempts", job.Attempts, "error", cause)
		w.drop(ctx, ref, job, "failed")
		return
	}

	payload, err := json.Marshal(job)
	if err != nil {
		w.logger.Error("failed to encode retry payload", "job_id", job.JobID, "error", err)
		return
	}
	// Put refreshes the payload and TTL; the index entry is untouched, so
	// the job stays due and is picked up again next pass.
	if err := w.store.Put(ctx, job.JobID, job.PayableID, job.ETAEpoch, payload, reminders.DefaultRetentionWindow); err != nil {
		w.logger.Error("failed to persist retry counter", "job_id", job.JobID, "error", err)
		return
	}
	w.logger.Warn("reminder delivery failed; will retry",
		"job_id", job.JobID, "attempts", job.Attempts, "error", cause)
}

func (w *ReminderWorker) drop(ctx context.Context, ref reminders.JobRef, job *reminders.Job, result string) {
	w.publish(ctx, job, "", result)
	if err := w.store.Remove(ctx, []reminders.JobRef{ref}); err != nil {
		w.logger.Error("failed to remove job", "job_id", job.JobID, "error", err)
		return
	}
	if err := w.mirror.PullScheduledJobs(ctx, job.PayableID, []string{job.JobID}); err != nil {
		w.logger.Warn("failed to pull job from mirror", "job_id", job.JobID, "error", err)
	}
}

func (w *ReminderWorker) publish(ctx context.Context, job *reminders.Job, gatewayMsgID, result string) {
	err := w.dispatcher.Publish(ctx, queue.DispatchMessage{
		JobID:        job.JobID,
		PayableID:    job.PayableID,
		BusinessID:   job.BusinessID,
		OffsetDays:   job.OffsetDays,
		GatewayMsgID: gatewayMsgID,
		Result:       result,
		DispatchedAt: w.clk.Now().UTC(),
	})
	if err != nil {
		w.logger.Warn("failed to publish dispatch notice",
			"job_id", job.JobID, "result", result, "error", err)
	}
}

// composeBody renders the reminder text.
func (w *ReminderWorker) composeBody(p *types.Payable, job *reminders.Job) string {
	amount := fmt.Sprintf("%s %d.%02d", p.Currency, p.AmountCents/100, p.AmountCents%100)
	body := fmt.Sprintf("Reminder: %s payment of %s is due on %s",
		p.VendorName, amount, p.DueAt.UTC().Format("Jan 2"))
	if p.Reference != "" {
		body += fmt.Sprintf(" (ref %s)", p.Reference)
	}
	if w.cfg.PaymentURL != "" {
		body += fmt.Sprintf(". Details: %s/pay/%s", w.cfg.PaymentURL, p.ID)
	}
	return body
}
