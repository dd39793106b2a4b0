package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"opsdeck/internal/types"
)

// WalletRepository provides data access for the wallet ledger tables. The
// ledger is append-only: balances are always derived from the sum of entries
// rather than stored, so the entries table is the single source of truth.
//
// Schema:
//
//	CREATE TABLE wallet_accounts (
//	  id          TEXT PRIMARY KEY,
//	  business_id TEXT NOT NULL UNIQUE,
//	  currency    TEXT NOT NULL,
//	  created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
//	CREATE TABLE wallet_entries (
//	  id              BIGSERIAL PRIMARY KEY,
//	  account_id      TEXT NOT NULL REFERENCES wallet_accounts(id),
//	  amount_cents    BIGINT NOT NULL,
//	  kind            TEXT NOT NULL,
//	  reference       TEXT,
//	  idempotency_key TEXT UNIQUE,
//	  created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type WalletRepository struct {
	pool *pgxpool.Pool
}

// NewWalletRepository creates a WalletRepository backed by the given pool.
func NewWalletRepository(pool *pgxpool.Pool) *WalletRepository {
	return &WalletRepository{pool: pool}
}

// EnsureAccount returns the business's wallet account, creating it on first
// use. The INSERT is conditional so concurrent first calls are safe.
func (r *WalletRepository) EnsureAccount(ctx context.Context, accountID, businessID, currency string) (*types.WalletAccount, error) {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO wallet_accounts (id, business_id, currency)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (business_id) DO NOTHING`,
		accountID, businessID, currency,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to ensure wallet account", err)
	}
	return r.GetAccountByBusiness(ctx, businessID)
}

// GetAccountByBusiness fetches the wallet account owned by a business.
func (r *WalletRepository) GetAccountByBusiness(ctx context.Context, businessID string) (*types.WalletAccount, error) {
	var a types.WalletAccount
	err := r.pool.QueryRow(ctx,
		`SELECT id, business_id, currency, created_at
		 FROM wallet_accounts WHERE business_id = $1`,
		businessID,
	).Scan(&a.ID, &a.BusinessID, &a.Currency, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundWallet, "wallet account not found", err)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load wallet account", err)
	}
	return &a, nil
}

// AppendEntry inserts one ledger entry. When an idempotency key is supplied
// and an entry with that key already exists, the existing entry is returned
// unchanged if it matches the request, or a conflict error if it does not.
func (r *WalletRepository) AppendEntry(ctx context.Context, e *types.LedgerEntry) (*types.LedgerEntry, error) {
	return appendEntry(ctx, r.pool, e)
}

// Balance derives the account's balance from its entries.
func (r *WalletRepository) Balance(ctx context.Context, accountID string) (int64, error) {
	return balance(ctx, r.pool, accountID)
}

// ListEntries returns the account's most recent ledger entries.
func (r *WalletRepository) ListEntries(ctx context.Context, accountID string, limit int) ([]types.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, account_id, amount_cents, kind, COALESCE(reference, ''),
		        COALESCE(idempotency_key, ''), created_at
		 FROM wallet_entries
		 WHERE account_id = $1
		 ORDER BY id DESC
		 LIMIT $2`,
		accountID, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list ledger entries", err)
	}
	defer rows.Close()

	var out []types.LedgerEntry
	for rows.Next() {
		var e types.LedgerEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.AmountCents, &e.Kind, &e.Reference, &e.IdempotencyKey, &e.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan ledger entry", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read ledger entries", err)
	}
	return out, nil
}

// Transfer atomically moves funds between two accounts by appending a
// balanced debit/credit pair in one transaction. A per-account advisory lock
// serializes concurrent transfers out of the same account so the balance
// check cannot race.
func (r *WalletRepository) Transfer(ctx context.Context, fromID, toID string, amountCents int64, reference, idemKey string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to begin transfer", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, fromID); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to lock source account", err)
	}

	bal, err := balance(ctx, tx, fromID)
	if err != nil {
		return err
	}
	if bal < amountCents {
		return types.NewAppErrorWithDetails(types.ErrCodeConflictInsufficient,
			"insufficient funds for transfer", nil,
			map[string]any{"balance_cents": bal, "requested_cents": amountCents})
	}

	debit := &types.LedgerEntry{
		AccountID:      fromID,
		AmountCents:    -amountCents,
		Kind:           types.LedgerTransferOut,
		Reference:      reference,
		IdempotencyKey: idemKey + ":out",
	}
	if _, err := appendEntry(ctx, tx, debit); err != nil {
		return err
	}
	credit := &types.LedgerEntry{
		AccountID:      toID,
		AmountCents:    amountCents,
		Kind:           types.LedgerTransferIn,
		Reference:      reference,
		IdempotencyKey: idemKey + ":in",
	}
	if _, err := appendEntry(ctx, tx, credit); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to commit transfer", err)
	}
	return nil
}

func balance(ctx context.Context, db DBTX, accountID string) (int64, error) {
	var bal int64
	err := db.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM wallet_entries WHERE account_id = $1`,
		accountID,
	).Scan(&bal)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to compute balance", err)
	}
	return bal, nil
}

func appendEntry(ctx context.Context, db DBTX, e *types.LedgerEntry) (*types.LedgerEntry, error) {
	var idemKey *string
	if e.IdempotencyKey != "" {
		idemKey = &e.IdempotencyKey
	}

	err := db.QueryRow(ctx,
		`INSERT INTO wallet_entries (account_id, amount_cents, kind, reference, idempotency_key)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		 ON CONFLICT (idempotency_key) DO NOTHING
		 RETURNING id, created_at`,
		e.AccountID, e.AmountCents, string(e.Kind), e.Reference, idemKey,
	).Scan(&e.ID, &e.CreatedAt)
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to append ledger entry", err)
	}

	// Conflict path: an entry with this idempotency key already exists.
	// Return it when it matches the request; reject the replay otherwise.
	var existing types.LedgerEntry
	err = db.QueryRow(ctx,
		`SELECT id, account_id, amount_cents, kind, COALESCE(reference, ''),
		        COALESCE(idempotency_key, ''), created_at
		 FROM wallet_entries WHERE idempotency_key = $1`,
		e.IdempotencyKey,
	).Scan(&existing.ID, &existing.AccountID, &existing.AmountCents, &existing.Kind,
		&existing.Reference, &existing.IdempotencyKey, &existing.CreatedAt)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load conflicting ledger entry", err)
	}
	if existing.AccountID != e.AccountID || existing.AmountCents != e.AmountCents || existing.Kind != e.Kind {
		return nil, types.NewAppError(types.ErrCodeConflictIdempotency,
			"idempotency key reused with different parameters", nil)
	}
	return &existing, nil
}
