// Package analytics assembles the dashboard report from the document store,
// the wallet ledger, and the reminder mirror.
package analytics

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"opsdeck/internal/db"
	"opsdeck/internal/types"
)

// DueHorizon is the window for the "due soon" payables panel.
const DueHorizon = 7 * 24 * time.Hour

// Stats is the aggregation surface the service needs. Implemented by
// db.AnalyticsRepository.
type Stats interface {
	PayablesByStatus(ctx context.Context, businessID string) ([]db.StatusCount, error)
	PayablesDueWithin(ctx context.Context, businessID string, now time.Time, horizon time.Duration) (int64, int64, error)
	OrdersByStatus(ctx context.Context, businessID string) ([]db.StatusCount, error)
	PostsByStatus(ctx context.Context, businessID string) ([]db.StatusCount, error)
	ScheduledReminderCount(ctx context.Context, businessID string) (int64, error)
}

// WalletReader reports the business's wallet position. Implemented by
// wallet.Service.
type WalletReader interface {
	Balance(ctx context.Context, businessID string) (*types.WalletAccount, int64, error)
}

// Report is the dashboard payload.
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`

	Payables struct {
		ByStatus        map[string]StatusBucket `json:"by_status"`
		DueSoonCount    int64                   `json:"due_soon_count"`
		DueSoonCents    int64                   `json:"due_soon_cents"`
		DueHorizonHours int                     `json:"due_horizon_hours"`
	} `json:"payables"`

	Reminders struct {
		Scheduled int64 `json:"scheduled"`
	} `json:"reminders"`

	Wallet struct {
		BalanceCents int64  `json:"balance_cents"`
		Currency     string `json:"currency"`
	} `json:"wallet"`

	Orders map[string]int64 `json:"orders_by_status"`
	Posts  map[string]int64 `json:"posts_by_status"`
}

// StatusBucket is one payable status slice.
type StatusBucket struct {
	Count       int64 `json:"count"`
	AmountCents int64 `json:"amount_cents"`
}

// Service builds dashboard reports.
type Service struct {
	stats  Stats
	wallet WalletReader
	clk    clock.Clock
	logger *slog.Logger
}

// NewService creates an analytics Service. Pass clock.New() in production.
func NewService(stats Stats, wallet WalletReader, clk clock.Clock, logger *slog.Logger) *Service {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{stats: stats, wallet: wallet, clk: clk, logger: logger}
}

// Dashboard assembles the business's report. Panels degrade independently: a
// failing aggregation logs and leaves its panel zeroed rather than failing
// the whole report.
func (s *Service) Dashboard(ctx context.Context, businessID string) *Report {
	now := s.clk.Now().UTC()
	report := &Report{GeneratedAt: now}
	report.Payables.ByStatus = map[string]StatusBucket{}
	report.Payables.DueHorizonHours = int(DueHorizon.Hours())
	report.Orders = map[string]int64{}
	report.Posts = map[string]int64{}

	if rows, err := s.stats.PayablesByStatus(ctx, businessID); err != nil {
		s.logger.WarnContext(ctx, "payable aggregation failed", "business_id", businessID, "error", err)
	} else {
		for _, row := range rows {
			report.Payables.ByStatus[row.Status] = StatusBucket{Count: row.Count, AmountCents: row.AmountCents}
		}
	}

	if count, cents, err := s.stats.PayablesDueWithin(ctx, businessID, now, DueHorizon); err != nil {
		s.logger.WarnContext(ctx, "due-soon aggregation failed", "business_id", businessID, "error", err)
	} else {
		report.Payables.DueSoonCount = count
		report.Payables.DueSoonCents = cents
	}

	if n, err := s.stats.ScheduledReminderCount(ctx, businessID); err != nil {
		s.logger.WarnContext(ctx, "reminder count failed", "business_id", businessID, "error", err)
	} else {
		report.Reminders.Scheduled = n
	}

	if account, bal, err := s.wallet.Balance(ctx, businessID); err != nil {
		s.logger.WarnContext(ctx, "wallet balance failed", "business_id", businessID, "error", err)
	} else {
		report.Wallet.BalanceCents = bal
		report.Wallet.Currency = account.Currency
	}

	if rows, err := s.stats.OrdersByStatus(ctx, businessID); err != nil {
		s.logger.WarnContext(ctx, "order aggregation failed", "business_id", businessID, "error", err)
	} else {
		for _, row := range rows {
			report.Orders[row.Status] = row.Count
		}
	}

	if rows, err := s.stats.PostsByStatus(ctx, businessID); err != nil {
		s.logger.WarnContext(ctx, "post aggregation failed", "business_id", businessID, "error", err)
	} else {
		for _, row := range rows {
			report.Posts[row.Status] = row.Count
		}
	}

	return report
}
