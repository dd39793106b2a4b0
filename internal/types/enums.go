package types

// PayableStatus represents the lifecycle state of a payable.
type PayableStatus string

const (
	PayableOpen     PayableStatus = "open"
	PayablePaid     PayableStatus = "paid"
	PayableCanceled PayableStatus = "canceled"
)

// LedgerEntryKind classifies wallet ledger entries.
type LedgerEntryKind string

const (
	LedgerTopUp       LedgerEntryKind = "topup"
	LedgerTransferIn  LedgerEntryKind = "transfer_in"
	LedgerTransferOut LedgerEntryKind = "transfer_out"
	LedgerSMSCharge   LedgerEntryKind = "sms_charge"
	LedgerAdjustment  LedgerEntryKind = "adjustment"
)

// OrderStatus represents the lifecycle state of a purchase order.
type OrderStatus string

const (
	OrderDraft    OrderStatus = "draft"
	OrderOpen     OrderStatus = "open"
	OrderPartial  OrderStatus = "partially_received"
	OrderReceived OrderStatus = "received"
	OrderCanceled OrderStatus = "canceled"
)

// PostStatus represents the lifecycle state of a social post.
type PostStatus string

const (
	PostDraft     PostStatus = "draft"
	PostScheduled PostStatus = "scheduled"
	PostPublished PostStatus = "published"
	PostFailed    PostStatus = "failed"
)

// Platform identifies an external social platform.
type Platform string

const (
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformPinterest Platform = "pinterest"
	PlatformTikTok    Platform = "tiktok"
	PlatformX         Platform = "x"
	PlatformYouTube   Platform = "youtube"
	PlatformThreads   Platform = "threads"
)

// KnownPlatforms lists every platform the publisher registry may carry.
var KnownPlatforms = []Platform{
	PlatformFacebook,
	PlatformInstagram,
	PlatformLinkedIn,
	PlatformPinterest,
	PlatformTikTok,
	PlatformX,
	PlatformYouTube,
	PlatformThreads,
}
