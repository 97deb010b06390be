package entity

import "time"

const (
	AttemptStatusPending    = "pending"
	AttemptStatusProcessing = "processing"
	AttemptStatusSucceeded  = "succeeded"
	AttemptStatusFailed     = "failed"
	AttemptStatusCancelled  = "cancelled"
	AttemptStatusRefunded   = "refunded"
)

const (
	OwnerKindBooking = "booking"
	OwnerKindQuote   = "quote"
)

// PaymentAttempt is the ledger row for one gateway intent. Rows are never deleted.
type PaymentAttempt struct {
	ID uint64

	IntentID string

	OwnerKind string
	BookingID *uint64
	QuoteID   *uint64
	Email     *string
	UserID    *string

	AmountMinor int64
	Currency    string
	Status      string

	CardBrand *string
	CardLast4 *string

	FailureCode   *string
	FailureReason *string

	RefundID     *string
	RefundAmount int64
	RefundReason *string

	WebhookReceived   bool
	WebhookReceivedAt *time.Time

	CreatedAt   time.Time
	ProcessedAt *time.Time
	RefundedAt  *time.Time
	UpdatedAt   time.Time
}

func (a *PaymentAttempt) Owner() OwnerRef {
	ref := OwnerRef{Kind: a.OwnerKind}
	if a.BookingID != nil {
		ref.ID = *a.BookingID
	}
	if a.QuoteID != nil {
		ref.ID = *a.QuoteID
	}
	if a.Email != nil {
		ref.Email = *a.Email
	}
	return ref
}

// ReferredParty identifies the payer for referral bookkeeping: the user id
// for authenticated bookings, the lower-cased email for guest quotes.
func (a *PaymentAttempt) ReferredParty() string {
	if a.UserID != nil && *a.UserID != "" {
		return *a.UserID
	}
	if a.Email != nil {
		return normalizeEmail(*a.Email)
	}
	return ""
}

func IsTerminalAttemptStatus(status string) bool {
	switch status {
	case AttemptStatusSucceeded, AttemptStatusFailed, AttemptStatusCancelled, AttemptStatusRefunded:
		return true
	default:
		return false
	}
}

var attemptTransitions = map[string][]string{
	AttemptStatusPending:    {AttemptStatusProcessing, AttemptStatusSucceeded, AttemptStatusFailed, AttemptStatusCancelled},
	AttemptStatusProcessing: {AttemptStatusSucceeded, AttemptStatusFailed, AttemptStatusCancelled},
	AttemptStatusFailed:     {AttemptStatusProcessing, AttemptStatusSucceeded, AttemptStatusCancelled},
	AttemptStatusSucceeded:  {AttemptStatusRefunded},
}

// CanTransition reports whether the ledger allows moving an attempt from one status to another.
func CanTransition(from, to string) bool {
	for _, candidate := range attemptTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}
