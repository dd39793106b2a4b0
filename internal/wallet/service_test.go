package wallet

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsdeck/internal/external"
	"opsdeck/internal/types"
)

// mockLedger is an in-memory Ledger keyed by idempotency, mirroring the
// database semantics the service relies on.
type mockLedger struct {
	mu       sync.Mutex
	accounts map[string]*types.WalletAccount // businessID -> account
	entries  []types.LedgerEntry
	byIdem   map[string]int
	nextID   int64

	appendErr   error
	transferErr error
}

func newMockLedger() *mockLedger {
	return &mockLedger{
		accounts: make(map[string]*types.WalletAccount),
		byIdem:   make(map[string]int),
	}
}

func (m *mockLedger) EnsureAccount(_ context.Context, accountID, businessID, currency string) (*types.WalletAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[businessID]; ok {
		return a, nil
	}
	a := &types.WalletAccount{ID: accountID, BusinessID: businessID, Currency: currency, CreatedAt: time.Now().UTC()}
	m.accounts[businessID] = a
	return a, nil
}

func (m *mockLedger) GetAccountByBusiness(_ context.Context, businessID string) (*types.WalletAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[businessID]; ok {
		return a, nil
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundWallet, "wallet account not found", nil)
}

func (m *mockLedger) AppendEntry(_ context.Context, e *types.LedgerEntry) (*types.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return nil, m.appendErr
	}
	if e.IdempotencyKey != "" {
		if idx, ok := m.byIdem[e.IdempotencyKey]; ok {
			existing := m.entries[idx]
			if existing.AccountID != e.AccountID || existing.AmountCents != e.AmountCents || existing.Kind != e.Kind {
				return nil, types.NewAppError(types.ErrCodeConflictIdempotency,
					"idempotency key reused with different parameters", nil)
			}
			return &existing, nil
		}
	}
	m.nextID++
	e.ID = m.nextID
	e.CreatedAt = time.Now().UTC()
	m.entries = append(m.entries, *e)
	if e.IdempotencyKey != "" {
		m.byIdem[e.IdempotencyKey] = len(m.entries) - 1
	}
	return e, nil
}

func (m *mockLedger) Balance(_ context.Context, accountID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var bal int64
	for _, e := range m.entries {
		if e.AccountID == accountID {
			bal += e.AmountCents
		}
	}
	return bal, nil
}

func (m *mockLedger) ListEntries(_ context.Context, accountID string, limit int) ([]types.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.LedgerEntry
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if m.entries[i].AccountID == accountID {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

func (m *mockLedger) Transfer(ctx context.Context, fromID, toID string, amountCents int64, reference, idemKey string) error {
	if m.transferErr != nil {
		return m.transferErr
	}
	bal, _ := m.Balance(ctx, fromID)
	if bal < amountCents {
		return types.NewAppError(types.ErrCodeConflictInsufficient, "insufficient funds for transfer", nil)
	}
	_, err := m.AppendEntry(ctx, &types.LedgerEntry{
		AccountID: fromID, AmountCents: -amountCents, Kind: types.LedgerTransferOut,
		Reference: reference, IdempotencyKey: idemKey + ":out",
	})
	if err != nil {
		return err
	}
	_, err = m.AppendEntry(ctx, &types.LedgerEntry{
		AccountID: toID, AmountCents: amountCents, Kind: types.LedgerTransferIn,
		Reference: reference, IdempotencyKey: idemKey + ":in",
	})
	return err
}

// mockBilling returns a scripted PaymentIntent.
type mockBilling struct {
	intent *external.PaymentIntent
	err    error
	calls  int
}

func (m *mockBilling) CreatePaymentIntent(_ context.Context, amountCents int64, currency, businessID, idemKey string) (*external.PaymentIntent, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	pi := *m.intent
	pi.AmountCents = amountCents
	pi.Currency = currency
	return &pi, nil
}

func (m *mockBilling) GetPaymentIntent(_ context.Context, intentID string) (*external.PaymentIntent, error) {
	if m.err != nil {
		return nil, m.err
	}
	pi := *m.intent
	pi.ID = intentID
	return &pi, nil
}

func newTestService(ledger *mockLedger, billing *mockBilling) *Service {
	return NewService(ledger, billing, slog.New(slog.DiscardHandler))
}

func TestTopUpCreditsSettledPayment(t *testing.T) {
	ledger := newMockLedger()
	billing := &mockBilling{intent: &external.PaymentIntent{ID: "pi_1", Status: "succeeded"}}
	svc := newTestService(ledger, billing)

	entry, err := svc.TopUp(t.Context(), "biz_1", 5000, "idem-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), entry.AmountCents)
	assert.Equal(t, types.LedgerTopUp, entry.Kind)

	_, bal, err := svc.Balance(t.Context(), "biz_1")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), bal)
}

func TestTopUpIsIdempotentPerIntent(t *testing.T) {
	ledger := newMockLedger()
	billing := &mockBilling{intent: &external.PaymentIntent{ID: "pi_1", Status: "succeeded"}}
	svc := newTestService(ledger, billing)

	_, err := svc.TopUp(t.Context(), "biz_1", 5000, "idem-1")
	require.NoError(t, err)
	_, err = svc.TopUp(t.Context(), "biz_1", 5000, "idem-1")
	require.NoError(t, err)

	_, bal, err := svc.Balance(t.Context(), "biz_1")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), bal, "same intent must credit exactly once")
}

func TestTopUpRejectsNonPositiveAmount(t *testing.T) {
	svc := newTestService(newMockLedger(), &mockBilling{})
	_, err := svc.TopUp(t.Context(), "biz_1", 0, "")
	require.Error(t, err)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationInvalidAmount, appErr.Code)
}

func TestTopUpUnsettledPaymentDoesNotCredit(t *testing.T) {
	ledger := newMockLedger()
	billing := &mockBilling{intent: &external.PaymentIntent{ID: "pi_1", Status: "requires_payment_method"}}
	svc := newTestService(ledger, billing)

	_, err := svc.TopUp(t.Context(), "biz_1", 5000, "")
	require.Error(t, err)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodePaymentDeclined, appErr.Code)
	assert.Equal(t, "pi_1", appErr.Details["intent_id"])

	_, bal, err := svc.Balance(t.Context(), "biz_1")
	require.NoError(t, err)
	assert.Zero(t, bal)
}

func TestConfirmTopUpCreditsAfterSettlement(t *testing.T) {
	ledger := newMockLedger()
	billing := &mockBilling{intent: &external.PaymentIntent{Status: "succeeded", AmountCents: 2500}}
	svc := newTestService(ledger, billing)

	_, _, err := svc.Balance(t.Context(), "biz_1") // creates the account
	require.NoError(t, err)

	entry, err := svc.ConfirmTopUp(t.Context(), "biz_1", "pi_9")
	require.NoError(t, err)
	assert.Equal(t, int64(2500), entry.AmountCents)
	assert.Equal(t, "pi_9", entry.Reference)
}

func TestTransferMovesFunds(t *testing.T) {
	ledger := newMockLedger()
	billing := &mockBilling{intent: &external.PaymentIntent{ID: "pi_1", Status: "succeeded"}}
	svc := newTestService(ledger, billing)

	_, err := svc.TopUp(t.Context(), "biz_a", 10000, "idem-a")
	require.NoError(t, err)

	err = svc.Transfer(t.Context(), "biz_a", "biz_b", 4000, "invoice settlement", "tr-1")
	require.NoError(t, err)

	_, balA, _ := svc.Balance(t.Context(), "biz_a")
	_, balB, _ := svc.Balance(t.Context(), "biz_b")
	assert.Equal(t, int64(6000), balA)
	assert.Equal(t, int64(4000), balB)
}

func TestTransferInsufficientFunds(t *testing.T) {
	ledger := newMockLedger()
	billing := &mockBilling{intent: &external.PaymentIntent{ID: "pi_1", Status: "succeeded"}}
	svc := newTestService(ledger, billing)

	_, err := svc.TopUp(t.Context(), "biz_a", 100, "idem-a")
	require.NoError(t, err)

	err = svc.Transfer(t.Context(), "biz_a", "biz_b", 4000, "", "tr-1")
	require.Error(t, err)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeConflictInsufficient, appErr.Code)
}

func TestTransferToSelfRejected(t *testing.T) {
	svc := newTestService(newMockLedger(), &mockBilling{})
	err := svc.Transfer(t.Context(), "biz_a", "biz_a", 100, "", "")
	require.Error(t, err)
}

func TestChargeSMSDebitsOncePerJob(t *testing.T) {
	ledger := newMockLedger()
	billing := &mockBilling{intent: &external.PaymentIntent{ID: "pi_1", Status: "succeeded"}}
	svc := newTestService(ledger, billing)

	_, err := svc.TopUp(t.Context(), "biz_1", 1000, "idem-1")
	require.NoError(t, err)

	jobID := "pay:pb_1:off:2:at:1767225600"
	svc.ChargeSMS(t.Context(), "biz_1", jobID, 5)
	svc.ChargeSMS(t.Context(), "biz_1", jobID, 5)

	_, bal, err := svc.Balance(t.Context(), "biz_1")
	require.NoError(t, err)
	assert.Equal(t, int64(995), bal, "retried delivery must not double-charge")
}

func TestChargeSMSMissingWalletDoesNotPanic(t *testing.T) {
	svc := newTestService(newMockLedger(), &mockBilling{})
	svc.ChargeSMS(t.Context(), "biz_unknown", "pay:x:off:1:at:1", 5)
}
