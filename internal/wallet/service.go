// Package wallet implements the treasury subsystem: an append-only ledger of
// cents-denominated entries per business, topped up through the payment
// provider and debited by transfers and SMS charges.
package wallet

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"opsdeck/internal/external"
	"opsdeck/internal/types"
)

// Ledger is the persistence surface the service needs. Implemented by
// db.WalletRepository.
type Ledger interface {
	EnsureAccount(ctx context.Context, accountID, businessID, currency string) (*types.WalletAccount, error)
	GetAccountByBusiness(ctx context.Context, businessID string) (*types.WalletAccount, error)
	AppendEntry(ctx context.Context, e *types.LedgerEntry) (*types.LedgerEntry, error)
	Balance(ctx context.Context, accountID string) (int64, error)
	ListEntries(ctx context.Context, accountID string, limit int) ([]types.LedgerEntry, error)
	Transfer(ctx context.Context, fromID, toID string, amountCents int64, reference, idemKey string) error
}

// Service coordinates the payment provider and the ledger.
type Service struct {
	ledger  Ledger
	billing external.BillingGateway
	logger  *slog.Logger
}

// NewService creates a wallet Service.
func NewService(ledger Ledger, billing external.BillingGateway, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: ledger, billing: billing, logger: logger}
}

// Balance reports the business's wallet balance and currency, creating the
// account on first access.
func (s *Service) Balance(ctx context.Context, businessID string) (*types.WalletAccount, int64, error) {
	account, err := s.ledger.EnsureAccount(ctx, uuid.NewString(), businessID, "USD")
	if err != nil {
		return nil, 0, err
	}
	bal, err := s.ledger.Balance(ctx, account.ID)
	if err != nil {
		return nil, 0, err
	}
	return account, bal, nil
}

// Statement returns the account's most recent ledger entries.
func (s *Service) Statement(ctx context.Context, businessID string, limit int) ([]types.LedgerEntry, error) {
	account, err := s.ledger.GetAccountByBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.ledger.ListEntries(ctx, account.ID, limit)
}

// TopUp charges the business through the payment provider and credits the
// ledger once the payment settles. The payment intent ID doubles as the
// ledger idempotency key, so a retried top-up can never credit twice.
func (s *Service) TopUp(ctx context.Context, businessID string, amountCents int64, idemKey string) (*types.LedgerEntry, error) {
	if amountCents <= 0 {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidAmount,
			"top-up amount must be positive", nil)
	}

	account, err := s.ledger.EnsureAccount(ctx, uuid.NewString(), businessID, "USD")
	if err != nil {
		return nil, err
	}

	intent, err := s.billing.CreatePaymentIntent(ctx, amountCents, account.Currency, businessID, idemKey)
	if err != nil {
		return nil, err
	}
	if !intent.Succeeded() {
		// Asynchronous settlement: the credit lands when ConfirmTopUp is
		// called with the settled intent (from the client or a webhook).
		s.logger.InfoContext(ctx, "top-up pending settlement",
			"business_id", businessID, "intent_id", intent.ID, "status", intent.Status)
		return nil, types.NewAppErrorWithDetails(types.ErrCodePaymentDeclined,
			"payment has not settled yet", nil,
			map[string]any{"intent_id": intent.ID, "status": intent.Status})
	}

	return s.credit(ctx, account.ID, intent)
}

// ConfirmTopUp re-fetches a payment intent and credits the wallet if it has
// settled. Safe to call repeatedly for the same intent.
func (s *Service) ConfirmTopUp(ctx context.Context, businessID, intentID string) (*types.LedgerEntry, error) {
	account, err := s.ledger.GetAccountByBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}

	intent, err := s.billing.GetPaymentIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if !intent.Succeeded() {
		return nil, types.NewAppErrorWithDetails(types.ErrCodePaymentDeclined,
			"payment has not settled", nil,
			map[string]any{"intent_id": intent.ID, "status": intent.Status})
	}
	return s.credit(ctx, account.ID, intent)
}

// Transfer moves funds between two businesses' wallets.
func (s *Service) Transfer(ctx context.Context, fromBusinessID, toBusinessID string, amountCents int64, reference, idemKey string) error {
	if amountCents <= 0 {
		return types.NewAppError(types.ErrCodeValidationInvalidAmount,
			"transfer amount must be positive", nil)
	}
	if fromBusinessID == toBusinessID {
		return types.NewAppError(types.ErrCodeValidationInvalidAmount,
			"cannot transfer to the same wallet", nil)
	}
	if idemKey == "" {
		idemKey = uuid.NewString()
	}

	from, err := s.ledger.GetAccountByBusiness(ctx, fromBusinessID)
	if err != nil {
		return err
	}
	to, err := s.ledger.EnsureAccount(ctx, uuid.NewString(), toBusinessID, from.Currency)
	if err != nil {
		return err
	}

	if err := s.ledger.Transfer(ctx, from.ID, to.ID, amountCents, reference, idemKey); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "wallet transfer completed",
		"from_business", fromBusinessID, "to_business", toBusinessID, "amount_cents", amountCents)
	return nil
}

// ChargeSMS debits one SMS dispatch from the business's wallet. The job ID is
// the idempotency key, so a retried delivery of the same reminder never
// double-charges. Missing accounts and insufficient balances are logged, not
// propagated: a billing hiccup must never block an outgoing reminder.
func (s *Service) ChargeSMS(ctx context.Context, businessID, jobID string, costCents int64) {
	account, err := s.ledger.GetAccountByBusiness(ctx, businessID)
	if err != nil {
		s.logger.WarnContext(ctx, "sms charge skipped; wallet unavailable",
			"business_id", businessID, "job_id", jobID, "error", err)
		return
	}
	_, err = s.ledger.AppendEntry(ctx, &types.LedgerEntry{
		AccountID:      account.ID,
		AmountCents:    -costCents,
		Kind:           types.LedgerSMSCharge,
		Reference:      jobID,
		IdempotencyKey: "sms:" + jobID,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "sms charge failed",
			"business_id", businessID, "job_id", jobID, "error", err)
	}
}

func (s *Service) credit(ctx context.Context, accountID string, intent *external.PaymentIntent) (*types.LedgerEntry, error) {
	entry, err := s.ledger.AppendEntry(ctx, &types.LedgerEntry{
		AccountID:      accountID,
		AmountCents:    intent.AmountCents,
		Kind:           types.LedgerTopUp,
		Reference:      intent.ID,
		IdempotencyKey: fmt.Sprintf("topup:%s", intent.ID),
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "wallet credited",
		"account_id", accountID, "intent_id", intent.ID, "amount_cents", intent.AmountCents)
	return entry, nil
}
