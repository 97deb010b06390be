package entity

import "time"

const (
	WebhookStatusReceived  = "received"
	WebhookStatusProcessed = "processed"
	WebhookStatusIgnored   = "ignored"
	WebhookStatusFailed    = "failed"
)

type WebhookEvent struct {
	ID uint64

	EventID   string
	EventType string
	IntentID  *string

	Status      string
	Error       *string
	PayloadJSON string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Settled reports whether a redelivery of this event can be acknowledged without reprocessing.
func (e *WebhookEvent) Settled() bool {
	return e.Status == WebhookStatusProcessed || e.Status == WebhookStatusIgnored
}
