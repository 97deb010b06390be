package types

import (
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type CreateIntentRequest struct {
	BookingId uint64 `json:"ownerId"`
	QuoteId   uint64 `json:"quoteId"`
	Email     string `json:"email" validate:"omitempty,email"`
	Amount    int64  `json:"amount" validate:"gt=0"`
	Currency  string `json:"currency" validate:"omitempty,len=3,alpha"`
}

func (r *CreateIntentRequest) GetBookingId() uint64 { return r.BookingId }
func (r *CreateIntentRequest) GetQuoteId() uint64   { return r.QuoteId }
func (r *CreateIntentRequest) GetEmail() string     { return r.Email }
func (r *CreateIntentRequest) GetAmount() int64     { return r.Amount }
func (r *CreateIntentRequest) GetCurrency() string  { return r.Currency }

func NewCreateIntentRequestFromContext(ctx echo.Context) (*CreateIntentRequest, error) {
	var body CreateIntentRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.Email = strings.ToLower(strings.TrimSpace(body.Email))
	body.Currency = strings.ToUpper(strings.TrimSpace(body.Currency))

	return &body, nil
}

func (r *CreateIntentRequest) Validate() error {
	if err := validateOwner(r.GetBookingId(), r.GetQuoteId(), r.GetEmail()); err != nil {
		return err
	}
	if err := validate.Struct(r); err != nil {
		return describe(err)
	}
	return nil
}

type ConfirmPaymentRequest struct {
	IntentId  string `json:"intentId" validate:"required"`
	BookingId uint64 `json:"ownerId"`
	QuoteId   uint64 `json:"quoteId"`
	Email     string `json:"email" validate:"omitempty,email"`
}

func (r *ConfirmPaymentRequest) GetIntentId() string  { return r.IntentId }
func (r *ConfirmPaymentRequest) GetBookingId() uint64 { return r.BookingId }
func (r *ConfirmPaymentRequest) GetQuoteId() uint64   { return r.QuoteId }
func (r *ConfirmPaymentRequest) GetEmail() string     { return r.Email }

func NewConfirmPaymentRequestFromContext(ctx echo.Context) (*ConfirmPaymentRequest, error) {
	var body ConfirmPaymentRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.IntentId = strings.TrimSpace(body.IntentId)
	body.Email = strings.ToLower(strings.TrimSpace(body.Email))

	return &body, nil
}

func (r *ConfirmPaymentRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return describe(err)
	}
	if r.GetBookingId() > 0 && r.GetQuoteId() > 0 {
		return errors.New("only one of ownerId or quoteId may be set")
	}
	return nil
}

// RefundPaymentRequest addresses the payment by numeric id or, when the path
// segment is not a number, by gateway intent id.
type RefundPaymentRequest struct {
	PaymentId uint64 `json:"-"`
	IntentId  string `json:"-"`
	Reason    string `json:"reason" validate:"max=255"`
}

func (r *RefundPaymentRequest) GetPaymentId() uint64 { return r.PaymentId }
func (r *RefundPaymentRequest) GetIntentId() string  { return r.IntentId }
func (r *RefundPaymentRequest) GetReason() string    { return r.Reason }

func NewRefundPaymentRequestFromContext(ctx echo.Context) (*RefundPaymentRequest, error) {
	var body RefundPaymentRequest
	if err := ctx.Bind(&body); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	body.PaymentId, body.IntentId = parsePaymentParam(ctx.Param("id"))
	body.Reason = strings.TrimSpace(body.Reason)

	return &body, nil
}

func (r *RefundPaymentRequest) Validate() error {
	if r.GetPaymentId() == 0 && r.GetIntentId() == "" {
		return errors.New("invalid payment id")
	}
	if err := validate.Struct(r); err != nil {
		return describe(err)
	}
	return nil
}

type GetPaymentRequest struct {
	Id uint64
}

func (r *GetPaymentRequest) GetId() uint64 { return r.Id }

func NewGetPaymentRequestFromContext(ctx echo.Context) (*GetPaymentRequest, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return nil, err
	}
	return &GetPaymentRequest{Id: id}, nil
}

func (r *GetPaymentRequest) Validate() error {
	if r.GetId() == 0 {
		return errors.New("invalid payment id")
	}
	return nil
}

// ReconcileRequest backs the internal reconcile endpoint.
type ReconcileRequest struct {
	PaymentId uint64
	IntentId  string
}

func (r *ReconcileRequest) GetPaymentId() uint64 { return r.PaymentId }
func (r *ReconcileRequest) GetIntentId() string  { return r.IntentId }

func NewReconcileRequestFromContext(ctx echo.Context) (*ReconcileRequest, error) {
	id, intentID := parsePaymentParam(ctx.Param("id"))
	return &ReconcileRequest{PaymentId: id, IntentId: intentID}, nil
}

func (r *ReconcileRequest) Validate() error {
	if r.GetPaymentId() == 0 && r.GetIntentId() == "" {
		return errors.New("invalid payment id")
	}
	return nil
}

type WebhookRequest struct {
	Signature string
	Payload   []byte
}

func (r *WebhookRequest) GetSignature() string { return r.Signature }
func (r *WebhookRequest) GetPayload() []byte   { return r.Payload }

// NewWebhookRequestFromContext reads the raw body untouched; the signature is
// computed over the exact bytes the gateway sent.
func NewWebhookRequestFromContext(ctx echo.Context) (*WebhookRequest, error) {
	rawBody, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return nil, err
	}
	return &WebhookRequest{
		Signature: strings.TrimSpace(ctx.Request().Header.Get("Stripe-Signature")),
		Payload:   rawBody,
	}, nil
}

func (r *WebhookRequest) Validate() error {
	if r.GetSignature() == "" {
		return errors.New("signature header is required")
	}
	if len(r.GetPayload()) == 0 {
		return errors.New("payload is required")
	}
	return nil
}

func parsePaymentParam(raw string) (uint64, string) {
	raw = strings.TrimSpace(raw)
	if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
		return id, ""
	}
	return 0, raw
}

func validateOwner(bookingID, quoteID uint64, email string) error {
	switch {
	case bookingID > 0 && quoteID > 0:
		return errors.New("only one of ownerId or quoteId may be set")
	case bookingID == 0 && quoteID == 0:
		return errors.New("ownerId or quoteId is required")
	case quoteID > 0 && strings.TrimSpace(email) == "":
		return errors.New("email is required for quote payments")
	}
	return nil
}

func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	field := jsonName(fe.Field())
	switch fe.Tag() {
	case "required":
		return errors.New(field + " is required")
	case "gt":
		return errors.New(field + " must be > " + fe.Param())
	case "email":
		return errors.New(field + " must be a valid email address")
	case "len", "alpha":
		return errors.New(field + " must be 3 letters")
	case "max":
		return errors.New(field + " must be at most " + fe.Param() + " characters")
	default:
		return errors.New(field + " is invalid")
	}
}

func jsonName(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}
