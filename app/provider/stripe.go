package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
	"github.com/vibast-solutions/ms-go-booking-payments/app/entity"
	"github.com/vibast-solutions/ms-go-booking-payments/app/factory"
)

type StripeConfig struct {
	SecretKey                 string
	WebhookSecret             string
	APIURL                    string
	SignatureToleranceSeconds int64
	HTTPTimeout               time.Duration
}

type StripeGateway struct {
	cfg       StripeConfig
	api       *client.API
	timeout   time.Duration
	tolerance time.Duration
}

func NewStripeGateway(cfg StripeConfig) *StripeGateway {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	tolerance := cfg.SignatureToleranceSeconds
	if tolerance <= 0 {
		tolerance = 300
	}

	// Retries are owned by the caller so that a bounded budget applies end to end.
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     factory.NewModuleLogger("stripe-gateway"),
	}
	if apiURL := strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/"); apiURL != "" {
		backendCfg.URL = stripe.String(apiURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)

	api := &client.API{}
	api.Init(cfg.SecretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})

	return &StripeGateway{
		cfg:       cfg,
		api:       api,
		timeout:   timeout,
		tolerance: time.Duration(tolerance) * time.Second,
	}
}

func (g *StripeGateway) Code() string {
	return GatewayStripe
}

func (g *StripeGateway) CreateIntent(ctx context.Context, input *CreateIntentInput) (*Intent, error) {
	if strings.TrimSpace(g.cfg.SecretKey) == "" {
		return nil, &Error{Op: "create_intent", Kind: ErrAuthFailure, Err: ErrNotConfigured, Message: "stripe secret key is not configured"}
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(input.AmountMinor),
		Currency: stripe.String(strings.ToLower(input.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if email := strings.TrimSpace(input.ReceiptEmail); email != "" {
		params.ReceiptEmail = stripe.String(email)
	}
	for k, v := range input.Metadata {
		params.AddMetadata(k, v)
	}
	if input.IdempotencyKey != "" {
		params.SetIdempotencyKey(input.IdempotencyKey)
	}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, classifyError("create_intent", err)
	}
	return intentFromStripe(pi), nil
}

func (g *StripeGateway) RetrieveIntent(ctx context.Context, intentID string) (*Intent, error) {
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return nil, &Error{Op: "retrieve_intent", Kind: ErrInvalidRequest, Message: "intent id is required"}
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.PaymentIntentParams{}
	params.AddExpand("latest_charge")
	params.Context = ctx

	pi, err := g.api.PaymentIntents.Get(intentID, params)
	if err != nil {
		return nil, classifyError("retrieve_intent", err)
	}
	return intentFromStripe(pi), nil
}

func (g *StripeGateway) CreateRefund(ctx context.Context, intentID, reason, idempotencyKey string) (*Refund, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intentID),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	if reason = strings.TrimSpace(reason); reason != "" {
		params.AddMetadata("reason", reason)
	}
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}
	params.Context = ctx

	refund, err := g.api.Refunds.New(params)
	if err != nil {
		return nil, classifyError("create_refund", err)
	}

	return &Refund{
		ID:          refund.ID,
		AmountMinor: refund.Amount,
		Status:      string(refund.Status),
	}, nil
}

func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	if strings.TrimSpace(g.cfg.WebhookSecret) == "" {
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, ErrNotConfigured)
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, g.cfg.WebhookSecret, webhook.ConstructEventOptions{
		Tolerance:                g.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	result := &WebhookEvent{
		ID:      event.ID,
		RawType: string(event.Type),
		Type:    normalizeEventType(string(event.Type)),
		Created: time.Unix(event.Created, 0).UTC(),
	}
	if event.Data == nil {
		return result, nil
	}

	switch {
	case strings.HasPrefix(result.RawType, "payment_intent."):
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err == nil {
			result.IntentID = pi.ID
		}
	case strings.HasPrefix(result.RawType, "charge."):
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err == nil && charge.PaymentIntent != nil {
			result.IntentID = charge.PaymentIntent.ID
		}
	}

	return result, nil
}

func intentFromStripe(pi *stripe.PaymentIntent) *Intent {
	out := &Intent{
		ID:            pi.ID,
		ClientSecret:  pi.ClientSecret,
		GatewayStatus: string(pi.Status),
		AmountMinor:   pi.Amount,
		Currency:      strings.ToUpper(string(pi.Currency)),
		Metadata:      pi.Metadata,
	}
	if out.Metadata == nil {
		out.Metadata = map[string]string{}
	}

	if perr := pi.LastPaymentError; perr != nil {
		out.FailureCode = string(perr.Code)
		if perr.DeclineCode != "" {
			out.FailureCode = string(perr.DeclineCode)
		}
		out.FailureMessage = perr.Msg
	}

	refunded := false
	if charge := pi.LatestCharge; charge != nil {
		out.AmountRefunded = charge.AmountRefunded
		refunded = charge.Refunded || charge.AmountRefunded > 0
		if details := charge.PaymentMethodDetails; details != nil && details.Card != nil {
			out.CardBrand = string(details.Card.Brand)
			out.CardLast4 = details.Card.Last4
		}
	}

	out.Status = normalizeIntentStatus(string(pi.Status), pi.LastPaymentError != nil, refunded)
	return out
}

func normalizeIntentStatus(status string, hasPaymentError, refunded bool) string {
	switch stripe.PaymentIntentStatus(status) {
	case stripe.PaymentIntentStatusSucceeded:
		if refunded {
			return entity.AttemptStatusRefunded
		}
		return entity.AttemptStatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return entity.AttemptStatusCancelled
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		if hasPaymentError {
			return entity.AttemptStatusFailed
		}
		return entity.AttemptStatusPending
	case stripe.PaymentIntentStatusProcessing,
		stripe.PaymentIntentStatusRequiresAction,
		stripe.PaymentIntentStatusRequiresConfirmation,
		stripe.PaymentIntentStatusRequiresCapture:
		return entity.AttemptStatusProcessing
	default:
		return entity.AttemptStatusPending
	}
}

func normalizeEventType(raw string) string {
	switch raw {
	case "payment_intent.succeeded":
		return EventIntentSucceeded
	case "payment_intent.payment_failed":
		return EventIntentFailed
	case "payment_intent.canceled":
		return EventIntentCancelled
	case "payment_intent.processing":
		return EventIntentProcessing
	case "charge.refunded":
		return EventChargeRefunded
	default:
		return raw
	}
}
