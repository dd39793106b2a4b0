package types

import (
	"time"
)

// Payable is an obligation a business owes (invoice, bill, installment).
// It is the owning entity for reminder jobs: when a payable is created or
// updated with a due date and reminder offsets, the scheduler registers one
// job per future offset and mirrors the result into ScheduledJobs.
//
// ContactPhone is stored encrypted at rest; the plaintext only exists in
// memory after explicit decryption during hydration or dispatch.
type Payable struct {
	ID           string    `bson:"_id" json:"id"`
	BusinessID   string    `bson:"business_id" json:"business_id"`
	VendorName   string    `bson:"vendor_name" json:"vendor_name"`
	Reference    string    `bson:"reference,omitempty" json:"reference,omitempty"`
	AmountCents  int64     `bson:"amount_cents" json:"amount_cents"`
	Currency     string    `bson:"currency" json:"currency"`
	ContactPhone string    `bson:"contact_phone,omitempty" json:"contact_phone,omitempty"`
	DueAt        time.Time `bson:"due_at" json:"due_at"`
	// OffsetsDays lists how many days before DueAt a reminder should fire.
	OffsetsDays []int         `bson:"offsets_days" json:"offsets_days"`
	Status      PayableStatus `bson:"status" json:"status"`
	// ScheduledJobs is the denormalized mirror of the most recent scheduling
	// call. It exists for UI and diagnostics only; the job store is
	// authoritative for execution.
	ScheduledJobs []ScheduledJobRef `bson:"scheduled_jobs,omitempty" json:"scheduled_jobs,omitempty"`
	CreatedAt     time.Time         `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time         `bson:"updated_at" json:"updated_at"`
}

// ScheduledJobRef is one entry of the scheduled_jobs mirror array.
type ScheduledJobRef struct {
	JobID      string    `bson:"job_id" json:"job_id"`
	OffsetDays int       `bson:"offset_days" json:"offset_days"`
	ETA        time.Time `bson:"eta" json:"eta"`
}

// WalletAccount is a business's treasury account. Balances are never stored;
// they are derived from the ledger entries so the ledger remains the single
// source of truth.
type WalletAccount struct {
	ID         string    `json:"id"`
	BusinessID string    `json:"business_id"`
	Currency   string    `json:"currency"`
	CreatedAt  time.Time `json:"created_at"`
}

// LedgerEntry is one immutable row in the wallet ledger. AmountCents is
// positive for credits and negative for debits.
type LedgerEntry struct {
	ID             int64           `json:"id"`
	AccountID      string          `json:"account_id"`
	AmountCents    int64           `json:"amount_cents"`
	Kind           LedgerEntryKind `json:"kind"`
	Reference      string          `json:"reference,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// PurchaseOrder tracks goods ordered from a supplier and their receipt.
type PurchaseOrder struct {
	ID         string              `bson:"_id" json:"id"`
	BusinessID string              `bson:"business_id" json:"business_id"`
	Supplier   string              `bson:"supplier" json:"supplier"`
	Items      []PurchaseOrderItem `bson:"items" json:"items"`
	Status     OrderStatus         `bson:"status" json:"status"`
	ReceivedAt *time.Time          `bson:"received_at,omitempty" json:"received_at,omitempty"`
	CreatedAt  time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time           `bson:"updated_at" json:"updated_at"`
}

// PurchaseOrderItem is a single line on a purchase order.
type PurchaseOrderItem struct {
	SKU         string `bson:"sku" json:"sku"`
	Description string `bson:"description,omitempty" json:"description,omitempty"`
	Ordered     int    `bson:"ordered" json:"ordered"`
	Received    int    `bson:"received" json:"received"`
	UnitCents   int64  `bson:"unit_cents" json:"unit_cents"`
}

// SocialPost is a piece of content scheduled for publication on one or more
// external platforms.
type SocialPost struct {
	ID          string     `bson:"_id" json:"id"`
	BusinessID  string     `bson:"business_id" json:"business_id"`
	Body        string     `bson:"body" json:"body"`
	MediaURLs   []string   `bson:"media_urls,omitempty" json:"media_urls,omitempty"`
	Platforms   []Platform `bson:"platforms" json:"platforms"`
	Status      PostStatus `bson:"status" json:"status"`
	PublishAt   *time.Time `bson:"publish_at,omitempty" json:"publish_at,omitempty"`
	PublishedAt *time.Time `bson:"published_at,omitempty" json:"published_at,omitempty"`
	// PlatformResults records per-platform outcomes of the last publish attempt.
	PlatformResults map[string]PublishResult `bson:"platform_results,omitempty" json:"platform_results,omitempty"`
	CreatedAt       time.Time                `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time                `bson:"updated_at" json:"updated_at"`
}

// PublishResult is the outcome of publishing a post to one platform.
type PublishResult struct {
	ExternalID string    `bson:"external_id,omitempty" json:"external_id,omitempty"`
	Error      string    `bson:"error,omitempty" json:"error,omitempty"`
	At         time.Time `bson:"at" json:"at"`
}

// SMSDispatch describes one reminder text handed to the SMS gateway.
type SMSDispatch struct {
	JobID      string `json:"job_id"`
	PayableID  string `json:"payable_id"`
	BusinessID string `json:"business_id"`
	To         string `json:"to"`
	Body       string `json:"body"`
}

// APIKey is a hashed credential granting a business access to the API.
// The raw key is shown once at creation; only the bcrypt hash is stored.
type APIKey struct {
	ID         string     `bson:"_id" json:"id"`
	BusinessID string     `bson:"business_id" json:"business_id"`
	Prefix     string     `bson:"prefix" json:"prefix"`
	Hash       string     `bson:"hash" json:"-"`
	RevokedAt  *time.Time `bson:"revoked_at,omitempty" json:"revoked_at,omitempty"`
	CreatedAt  time.Time  `bson:"created_at" json:"created_at"`
}
