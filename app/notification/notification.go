package notification

import (
	"context"
	"errors"
	"time"
)

type Kind string

const (
	KindReceipt             Kind = "receipt"
	KindBookingConfirmation Kind = "booking_confirmation"
	KindRefundNotice        Kind = "refund_notice"
	KindAdminAlert          Kind = "admin_alert"
)

func (k Kind) Valid() bool {
	switch k {
	case KindReceipt, KindBookingConfirmation, KindRefundNotice, KindAdminAlert:
		return true
	default:
		return false
	}
}

var (
	ErrInvalidNotification = errors.New("invalid notification")
	ErrPermanent           = errors.New("permanent delivery failure")
	ErrTransient           = errors.New("transient delivery failure")
	ErrDeliveryFailed      = errors.New("notification delivery failed")
)

// Data is the template input shared by every kind. Fields that do not apply
// to a kind are left empty.
type Data struct {
	RecipientName     string    `json:"recipient_name,omitempty"`
	IntentID          string    `json:"intent_id"`
	PaymentID         uint64    `json:"payment_id"`
	OwnerKind         string    `json:"owner_kind"`
	OwnerID           uint64    `json:"owner_id"`
	AmountMinor       int64     `json:"amount_minor"`
	Currency          string    `json:"currency"`
	CardBrand         string    `json:"card_brand,omitempty"`
	CardLast4         string    `json:"card_last4,omitempty"`
	RefundAmountMinor int64     `json:"refund_amount_minor,omitempty"`
	RefundReason      string    `json:"refund_reason,omitempty"`
	OccurredAt        time.Time `json:"occurred_at"`
}

type Notification struct {
	Kind      Kind   `json:"kind"`
	To        string `json:"to"`
	DedupeKey string `json:"dedupe_key,omitempty"`
	Data      Data   `json:"data"`
}

func (n Notification) Validate() error {
	if !n.Kind.Valid() {
		return ErrInvalidNotification
	}
	if n.To == "" {
		return ErrInvalidNotification
	}
	return nil
}

type Message struct {
	To       string
	Subject  string
	HTMLBody string
}

// Transport delivers one rendered message. Implementations wrap failures
// with ErrTransient or ErrPermanent when they know the class.
type Transport interface {
	Deliver(ctx context.Context, msg Message) error
}

// Queue is the optional asynchronous backend. Enqueue reports false when the
// notification was already queued under the same dedupe key.
type Queue interface {
	Enqueue(ctx context.Context, n Notification) (bool, error)
	Dequeue(ctx context.Context, timeout time.Duration) (*Notification, error)
	DeadLetter(ctx context.Context, n Notification, reason string) error
}
