package types

type ErrorResponse struct {
	Error string `json:"error"`
	Retry bool   `json:"retry,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type CreateIntentResponse struct {
	ClientSecret string `json:"clientSecret"`
	IntentId     string `json:"intentId"`
	PaymentId    uint64 `json:"paymentId"`
}

type ConfirmPaymentResponse struct {
	Success        bool   `json:"success"`
	Status         string `json:"status"`
	Outcome        string `json:"outcome,omitempty"`
	GatewayStatus  string `json:"gatewayStatus,omitempty"`
	PaymentId      uint64 `json:"paymentId"`
	FailureCode    string `json:"failureCode,omitempty"`
	FailureMessage string `json:"failureMessage,omitempty"`
}

type RefundPaymentResponse struct {
	RefundId string `json:"refundId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type PaymentResponse struct {
	Id              uint64 `json:"id"`
	IntentId        string `json:"intentId"`
	OwnerKind       string `json:"ownerKind"`
	BookingId       uint64 `json:"bookingId,omitempty"`
	QuoteId         uint64 `json:"quoteId,omitempty"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	Status          string `json:"status"`
	CardBrand       string `json:"cardBrand,omitempty"`
	CardLast4       string `json:"cardLast4,omitempty"`
	FailureCode     string `json:"failureCode,omitempty"`
	FailureMessage  string `json:"failureMessage,omitempty"`
	RefundId        string `json:"refundId,omitempty"`
	RefundAmount    int64  `json:"refundAmount,omitempty"`
	WebhookReceived bool   `json:"webhookReceived"`
	CreatedAt       string `json:"createdAt"`
	ProcessedAt     string `json:"processedAt,omitempty"`
	RefundedAt      string `json:"refundedAt,omitempty"`
	UpdatedAt       string `json:"updatedAt"`
}

type ReconcileResponse struct {
	Payment *PaymentResponse `json:"payment"`
	Outcome string           `json:"outcome"`
}

type WebhookAckResponse struct {
	Received  bool   `json:"received"`
	EventId   string `json:"eventId,omitempty"`
	Status    string `json:"status,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
}
