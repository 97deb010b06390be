package provider

import (
	"context"
	"time"
)

const (
	GatewayStripe = "stripe"
)

// Metadata keys stamped on every intent so that an intent first seen through
// a webhook can be traced back to its owner.
const (
	MetadataOwnerKind = "owner_kind"
	MetadataBookingID = "booking_id"
	MetadataQuoteID   = "quote_id"
	MetadataEmail     = "email"
	MetadataUserID    = "user_id"
)

// Normalized webhook event types.
const (
	EventIntentSucceeded  = "intent.succeeded"
	EventIntentFailed     = "intent.failed"
	EventIntentCancelled  = "intent.cancelled"
	EventIntentProcessing = "intent.processing"
	EventChargeRefunded   = "charge.refunded"
)

type CreateIntentInput struct {
	AmountMinor    int64
	Currency       string
	ReceiptEmail   string
	Metadata       map[string]string
	IdempotencyKey string
}

// Intent is the gateway's authoritative view of a payment intent. Status is
// already mapped onto ledger statuses; GatewayStatus keeps the raw value.
type Intent struct {
	ID            string
	ClientSecret  string
	Status        string
	GatewayStatus string

	AmountMinor    int64
	Currency       string
	AmountRefunded int64

	Metadata map[string]string

	CardBrand string
	CardLast4 string

	FailureCode    string
	FailureMessage string
}

type Refund struct {
	ID          string
	AmountMinor int64
	Status      string
}

type WebhookEvent struct {
	ID       string
	Type     string
	RawType  string
	IntentID string
	Created  time.Time
}

// Gateway is a pure translation layer over the payment gateway API. It does
// no business validation.
type Gateway interface {
	Code() string
	CreateIntent(ctx context.Context, input *CreateIntentInput) (*Intent, error)
	RetrieveIntent(ctx context.Context, intentID string) (*Intent, error)
	CreateRefund(ctx context.Context, intentID, reason, idempotencyKey string) (*Refund, error)
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
}
