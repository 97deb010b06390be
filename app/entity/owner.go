package entity

import (
	"errors"
	"strings"
	"time"
)

const (
	OwnerStatusPending   = "pending"
	OwnerStatusConfirmed = "confirmed"
	OwnerStatusCompleted = "completed"
	OwnerStatusCancelled = "cancelled"
)

const (
	OwnerPaymentPending    = "pending"
	OwnerPaymentProcessing = "processing"
	OwnerPaymentCompleted  = "completed"
	OwnerPaymentFailed     = "failed"
	OwnerPaymentRefunded   = "refunded"
)

var ErrInvalidOwnerRef = errors.New("exactly one of booking id or quote id with email is required")

// OwnerRef points at either a booking (authenticated flow) or a guest quote
// addressed by id and email.
type OwnerRef struct {
	Kind  string
	ID    uint64
	Email string
}

func BookingRef(id uint64) OwnerRef {
	return OwnerRef{Kind: OwnerKindBooking, ID: id}
}

func QuoteRef(id uint64, email string) OwnerRef {
	return OwnerRef{Kind: OwnerKindQuote, ID: id, Email: normalizeEmail(email)}
}

func (r OwnerRef) Validate() error {
	switch r.Kind {
	case OwnerKindBooking:
		if r.ID == 0 {
			return ErrInvalidOwnerRef
		}
	case OwnerKindQuote:
		if r.ID == 0 || strings.TrimSpace(r.Email) == "" {
			return ErrInvalidOwnerRef
		}
	default:
		return ErrInvalidOwnerRef
	}
	return nil
}

// Owner is a booking or guest quote as seen by the payment flow.
type Owner struct {
	Kind   string
	ID     uint64
	UserID *string
	Email  string

	ExpectedAmountMinor int64
	Currency            string

	Status           string
	PaymentStatus    string
	PaymentAttemptID *uint64
	PaidAt           *time.Time

	UpdatedAt time.Time
}

func (o *Owner) Ref() OwnerRef {
	return OwnerRef{Kind: o.Kind, ID: o.ID, Email: normalizeEmail(o.Email)}
}

func (o *Owner) IsPaid() bool {
	return o.PaymentStatus == OwnerPaymentCompleted || o.PaymentStatus == OwnerPaymentRefunded
}

// OwnerOutcome is the payment result applied to an owner in the same
// transaction as the attempt transition.
type OwnerOutcome struct {
	PaymentStatus string
	AttemptID     uint64
	At            time.Time
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func EmailsMatch(a, b string) bool {
	return a != "" && normalizeEmail(a) == normalizeEmail(b)
}
