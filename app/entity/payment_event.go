package entity

import "time"

// PaymentEvent is the append-only audit trail of attempt transitions.
type PaymentEvent struct {
	ID uint64

	AttemptID uint64

	EventType string
	Trigger   string

	OldStatus *string
	NewStatus string

	GatewayEventID *string
	FailureCode    *string
	FailureReason  *string

	CreatedAt time.Time
}
