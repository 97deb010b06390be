package types

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newJSONContext(method, target, body string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestNewCreateIntentRequestFromContextNormalizes(t *testing.T) {
	ctx := newJSONContext("POST", "/payments/create-intent", `{"quoteId":7,"email":" Guest@Example.COM ","amount":9900,"currency":"gbp"}`)

	parsed, err := NewCreateIntentRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if parsed.GetEmail() != "guest@example.com" {
		t.Fatalf("expected normalized email, got %q", parsed.GetEmail())
	}
	if parsed.GetCurrency() != "GBP" {
		t.Fatalf("expected upper-cased currency, got %q", parsed.GetCurrency())
	}
	if err := parsed.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}

func TestCreateIntentValidate(t *testing.T) {
	cases := []struct {
		name    string
		req     CreateIntentRequest
		wantErr string
	}{
		{"missing owner", CreateIntentRequest{Amount: 100}, "ownerId or quoteId is required"},
		{"both owners", CreateIntentRequest{BookingId: 1, QuoteId: 2, Email: "a@b.co", Amount: 100}, "only one of"},
		{"quote without email", CreateIntentRequest{QuoteId: 2, Amount: 100}, "email is required"},
		{"zero amount", CreateIntentRequest{BookingId: 1}, "amount must be > 0"},
		{"bad email", CreateIntentRequest{QuoteId: 2, Email: "nope", Amount: 100}, "email must be a valid email address"},
		{"bad currency", CreateIntentRequest{BookingId: 1, Amount: 100, Currency: "POUND"}, "currency must be 3 letters"},
		{"valid booking", CreateIntentRequest{BookingId: 1, Amount: 15000, Currency: "GBP"}, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("expected valid request, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestConfirmPaymentValidate(t *testing.T) {
	ctx := newJSONContext("POST", "/payments/confirm", `{"intentId":"  pi_1 ","ownerId":42}`)
	parsed, err := NewConfirmPaymentRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if parsed.GetIntentId() != "pi_1" || parsed.GetBookingId() != 42 {
		t.Fatalf("unexpected parse: %+v", parsed)
	}
	if err := parsed.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}

	if err := (&ConfirmPaymentRequest{}).Validate(); err == nil || err.Error() != "intentId is required" {
		t.Fatalf("expected intentId validation error, got %v", err)
	}
}

func TestNewRefundPaymentRequestFromContext(t *testing.T) {
	e := echo.New()

	req := httptest.NewRequest("POST", "/payments/12/refund", bytes.NewBufferString(`{"reason":" duplicate booking "}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	ctx := e.NewContext(req, httptest.NewRecorder())
	ctx.SetParamNames("id")
	ctx.SetParamValues("12")

	parsed, err := NewRefundPaymentRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if parsed.GetPaymentId() != 12 || parsed.GetIntentId() != "" || parsed.GetReason() != "duplicate booking" {
		t.Fatalf("unexpected parse: %+v", parsed)
	}

	req = httptest.NewRequest("POST", "/payments/pi_123/refund", nil)
	ctx = e.NewContext(req, httptest.NewRecorder())
	ctx.SetParamNames("id")
	ctx.SetParamValues("pi_123")

	parsed, err = NewRefundPaymentRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if parsed.GetPaymentId() != 0 || parsed.GetIntentId() != "pi_123" {
		t.Fatalf("expected intent id addressing, got %+v", parsed)
	}
	if err := parsed.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}

	if err := (&RefundPaymentRequest{}).Validate(); err == nil {
		t.Fatal("expected payment id validation error")
	}
}

func TestNewWebhookRequestFromContextKeepsRawBody(t *testing.T) {
	body := `{"id":"evt_1",  "type":"payment_intent.succeeded"}`
	e := echo.New()
	req := httptest.NewRequest("POST", "/webhooks/gateway", bytes.NewBufferString(body))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	ctx := e.NewContext(req, httptest.NewRecorder())

	parsed, err := NewWebhookRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if string(parsed.GetPayload()) != body {
		t.Fatalf("payload must be byte-identical, got %q", parsed.GetPayload())
	}
	if err := parsed.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}

	if err := (&WebhookRequest{Payload: []byte("{}")}).Validate(); err == nil {
		t.Fatal("expected missing signature error")
	}
}

func TestGetPaymentRequest(t *testing.T) {
	ctx := newJSONContext("GET", "/payments/abc", "")
	ctx.SetParamNames("id")
	ctx.SetParamValues("abc")
	if _, err := NewGetPaymentRequestFromContext(ctx); err == nil {
		t.Fatal("expected parse error for non-numeric id")
	}

	if err := (&GetPaymentRequest{}).Validate(); err == nil {
		t.Fatal("expected invalid payment id")
	}
}
