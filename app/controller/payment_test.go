package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/vibast-solutions/ms-go-booking-payments/app/auth"
	"github.com/vibast-solutions/ms-go-booking-payments/app/entity"
	"github.com/vibast-solutions/ms-go-booking-payments/app/service"
	"github.com/vibast-solutions/ms-go-booking-payments/app/types"
)

type controllerPaymentService struct {
	createIntentFn   func(ctx context.Context, caller *service.Caller, req *types.CreateIntentRequest) (*service.CreateIntentResult, error)
	confirmPaymentFn func(ctx context.Context, caller *service.Caller, req *types.ConfirmPaymentRequest) (*service.ConfirmResult, error)
	refundPaymentFn  func(ctx context.Context, caller *service.Caller, req *types.RefundPaymentRequest) (*service.RefundResult, error)
	getPaymentFn     func(ctx context.Context, caller *service.Caller, id uint64) (*entity.PaymentAttempt, error)
	findPaymentFn    func(ctx context.Context, id uint64, intentID string) (*entity.PaymentAttempt, error)
	reconcileFn      func(ctx context.Context, in service.ReconcileInput) (*service.ReconcileResult, error)
}

func (s *controllerPaymentService) CreateIntent(ctx context.Context, caller *service.Caller, req *types.CreateIntentRequest) (*service.CreateIntentResult, error) {
	if s.createIntentFn != nil {
		return s.createIntentFn(ctx, caller, req)
	}
	return nil, fmt.Errorf("unexpected call")
}

func (s *controllerPaymentService) ConfirmPayment(ctx context.Context, caller *service.Caller, req *types.ConfirmPaymentRequest) (*service.ConfirmResult, error) {
	if s.confirmPaymentFn != nil {
		return s.confirmPaymentFn(ctx, caller, req)
	}
	return nil, fmt.Errorf("unexpected call")
}

func (s *controllerPaymentService) RefundPayment(ctx context.Context, caller *service.Caller, req *types.RefundPaymentRequest) (*service.RefundResult, error) {
	if s.refundPaymentFn != nil {
		return s.refundPaymentFn(ctx, caller, req)
	}
	return nil, fmt.Errorf("unexpected call")
}

func (s *controllerPaymentService) GetPayment(ctx context.Context, caller *service.Caller, id uint64) (*entity.PaymentAttempt, error) {
	if s.getPaymentFn != nil {
		return s.getPaymentFn(ctx, caller, id)
	}
	return nil, fmt.Errorf("unexpected call")
}

func (s *controllerPaymentService) FindPayment(ctx context.Context, id uint64, intentID string) (*entity.PaymentAttempt, error) {
	if s.findPaymentFn != nil {
		return s.findPaymentFn(ctx, id, intentID)
	}
	return nil, fmt.Errorf("unexpected call")
}

func (s *controllerPaymentService) Reconcile(ctx context.Context, in service.ReconcileInput) (*service.ReconcileResult, error) {
	if s.reconcileFn != nil {
		return s.reconcileFn(ctx, in)
	}
	return nil, fmt.Errorf("unexpected call")
}

func newJSONRequestContext(method, target, body string, user *auth.User) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if user != nil {
		req = req.WithContext(auth.WithUser(req.Context(), user))
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestCreateIntentBadBody(t *testing.T) {
	ctrl := newPaymentController(&controllerPaymentService{})
	ctx, rec := newJSONRequestContext(http.MethodPost, "/payments/create-intent", "{bad", nil)

	if err := ctrl.CreateIntent(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateIntentValidationRejectedBeforeService(t *testing.T) {
	called := false
	ctrl := newPaymentController(&controllerPaymentService{createIntentFn: func(context.Context, *service.Caller, *types.CreateIntentRequest) (*service.CreateIntentResult, error) {
		called = true
		return nil, nil
	}})
	ctx, rec := newJSONRequestContext(http.MethodPost, "/payments/create-intent", `{"ownerId":42,"amount":0}`, nil)

	_ = ctrl.CreateIntent(ctx)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if called {
		t.Fatal("service must not be called for invalid input")
	}
}

func TestCreateIntentSuccessPassesCaller(t *testing.T) {
	var gotCaller *service.Caller
	ctrl := newPaymentController(&controllerPaymentService{createIntentFn: func(_ context.Context, caller *service.Caller, req *types.CreateIntentRequest) (*service.CreateIntentResult, error) {
		gotCaller = caller
		if req.GetBookingId() != 42 || req.GetAmount() != 15000 {
			t.Fatalf("unexpected request: %+v", req)
		}
		return &service.CreateIntentResult{IntentID: "pi_1", ClientSecret: "pi_1_secret", Attempt: &entity.PaymentAttempt{ID: 5}}, nil
	}})
	ctx, rec := newJSONRequestContext(http.MethodPost, "/payments/create-intent", `{"ownerId":42,"amount":15000,"currency":"GBP"}`, &auth.User{UserID: "user-1", Email: "a@example.com"})

	_ = ctrl.CreateIntent(ctx)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rec.Code, rec.Body.String())
	}
	if gotCaller == nil || gotCaller.UserID != "user-1" {
		t.Fatalf("expected caller from context, got %+v", gotCaller)
	}

	var payload types.CreateIntentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if payload.IntentId != "pi_1" || payload.ClientSecret != "pi_1_secret" || payload.PaymentId != 5 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestServiceErrorMapping(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		wantCode  int
		wantRetry bool
	}{
		{"validation", service.ErrAmountMismatch, http.StatusBadRequest, false},
		{"unauthenticated", service.ErrUnauthenticated, http.StatusUnauthorized, false},
		{"forbidden", service.ErrForbidden, http.StatusForbidden, false},
		{"owner not found", service.ErrOwnerNotFound, http.StatusNotFound, false},
		{"already paid", service.ErrAlreadyPaid, http.StatusConflict, false},
		{"gateway invalid", fmt.Errorf("%w: amount too small", service.ErrGatewayInvalidRequest), http.StatusUnprocessableEntity, false},
		{"gateway transient", fmt.Errorf("%w: timeout", service.ErrGatewayTransient), http.StatusServiceUnavailable, true},
		{"gateway unavailable", service.ErrGatewayUnavailable, http.StatusServiceUnavailable, false},
		{"internal", fmt.Errorf("db down"), http.StatusInternalServerError, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := newPaymentController(&controllerPaymentService{createIntentFn: func(context.Context, *service.Caller, *types.CreateIntentRequest) (*service.CreateIntentResult, error) {
				return nil, tc.err
			}})
			ctx, rec := newJSONRequestContext(http.MethodPost, "/payments/create-intent", `{"ownerId":42,"amount":15000}`, nil)

			_ = ctrl.CreateIntent(ctx)
			if rec.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d", tc.wantCode, rec.Code)
			}
			var payload types.ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
				t.Fatalf("unmarshal failed: %v", err)
			}
			if payload.Retry != tc.wantRetry {
				t.Fatalf("expected retry=%v, got %v", tc.wantRetry, payload.Retry)
			}
		})
	}
}

func TestConfirmPaymentReportsDeclineWithoutError(t *testing.T) {
	ctrl := newPaymentController(&controllerPaymentService{confirmPaymentFn: func(_ context.Context, caller *service.Caller, req *types.ConfirmPaymentRequest) (*service.ConfirmResult, error) {
		if caller != nil {
			t.Fatal("expected guest caller")
		}
		if req.GetEmail() != "guest@example.com" {
			t.Fatalf("unexpected email: %s", req.GetEmail())
		}
		return &service.ConfirmResult{
			Success:        false,
			Status:         entity.AttemptStatusFailed,
			Outcome:        service.OutcomeApplied,
			Attempt:        &entity.PaymentAttempt{ID: 8},
			FailureCode:    "card_declined",
			FailureMessage: "Your card was declined.",
		}, nil
	}})
	ctx, rec := newJSONRequestContext(http.MethodPost, "/payments/confirm", `{"intentId":"pi_1","quoteId":7,"email":"Guest@Example.com"}`, nil)

	_ = ctrl.ConfirmPayment(ctx)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	var payload types.ConfirmPaymentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if payload.Success || payload.FailureCode != "card_declined" || payload.PaymentId != 8 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestConfirmPaymentReportsGatewayStatus(t *testing.T) {
	ctrl := newPaymentController(&controllerPaymentService{confirmPaymentFn: func(_ context.Context, _ *service.Caller, _ *types.ConfirmPaymentRequest) (*service.ConfirmResult, error) {
		return &service.ConfirmResult{
			Status:        entity.AttemptStatusProcessing,
			Outcome:       service.OutcomeNotYetSucceeded,
			GatewayStatus: "requires_action",
			Attempt:       &entity.PaymentAttempt{ID: 9},
		}, nil
	}})
	ctx, rec := newJSONRequestContext(http.MethodPost, "/payments/confirm", `{"intentId":"pi_1","ownerId":42}`, &auth.User{UserID: "user-1"})

	_ = ctrl.ConfirmPayment(ctx)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	var payload types.ConfirmPaymentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if payload.Success || payload.Outcome != service.OutcomeNotYetSucceeded || payload.GatewayStatus != "requires_action" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestConfirmPaymentMissingIntent(t *testing.T) {
	ctrl := newPaymentController(&controllerPaymentService{})
	ctx, rec := newJSONRequestContext(http.MethodPost, "/payments/confirm", `{"ownerId":42}`, nil)

	_ = ctrl.ConfirmPayment(ctx)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRefundPaymentInvalidStatus(t *testing.T) {
	ctrl := newPaymentController(&controllerPaymentService{refundPaymentFn: func(_ context.Context, caller *service.Caller, req *types.RefundPaymentRequest) (*service.RefundResult, error) {
		if caller == nil || caller.Role != "admin" {
			t.Fatalf("expected admin caller, got %+v", caller)
		}
		if req.GetPaymentId() != 3 {
			t.Fatalf("unexpected payment id: %d", req.GetPaymentId())
		}
		return nil, fmt.Errorf("%w: payment is failed", service.ErrInvalidStatus)
	}})
	ctx, rec := newJSONRequestContext(http.MethodPost, "/payments/3/refund", `{"reason":"duplicate"}`, &auth.User{UserID: "admin-1", Role: "admin"})
	ctx.SetParamNames("id")
	ctx.SetParamValues("3")

	_ = ctrl.RefundPayment(ctx)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestRefundPaymentSuccess(t *testing.T) {
	ctrl := newPaymentController(&controllerPaymentService{refundPaymentFn: func(context.Context, *service.Caller, *types.RefundPaymentRequest) (*service.RefundResult, error) {
		return &service.RefundResult{RefundID: "re_1", AmountMinor: 15000, Currency: "GBP"}, nil
	}})
	ctx, rec := newJSONRequestContext(http.MethodPost, "/payments/3/refund", "", &auth.User{UserID: "admin-1", Role: "admin"})
	ctx.SetParamNames("id")
	ctx.SetParamValues("3")

	_ = ctrl.RefundPayment(ctx)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	var payload types.RefundPaymentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if payload.RefundId != "re_1" || payload.Amount != 15000 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestGetPaymentNotFound(t *testing.T) {
	ctrl := newPaymentController(&controllerPaymentService{getPaymentFn: func(context.Context, *service.Caller, uint64) (*entity.PaymentAttempt, error) {
		return nil, service.ErrPaymentNotFound
	}})
	ctx, rec := newJSONRequestContext(http.MethodGet, "/payments/9", "", &auth.User{UserID: "user-1"})
	ctx.SetParamNames("id")
	ctx.SetParamValues("9")

	_ = ctrl.GetPayment(ctx)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestInternalReconcileByPaymentID(t *testing.T) {
	ctrl := newPaymentController(&controllerPaymentService{
		findPaymentFn: func(_ context.Context, id uint64, _ string) (*entity.PaymentAttempt, error) {
			return &entity.PaymentAttempt{ID: id, IntentID: "pi_9"}, nil
		},
		reconcileFn: func(_ context.Context, in service.ReconcileInput) (*service.ReconcileResult, error) {
			if in.IntentID != "pi_9" || in.Trigger != service.TriggerManual {
				t.Fatalf("unexpected reconcile input: %+v", in)
			}
			return &service.ReconcileResult{
				Attempt: &entity.PaymentAttempt{ID: 9, IntentID: "pi_9", Status: entity.AttemptStatusSucceeded},
				Outcome: service.OutcomeApplied,
			}, nil
		},
	})
	ctx, rec := newJSONRequestContext(http.MethodPost, "/internal/payments/9/reconcile", "", nil)
	ctx.SetParamNames("id")
	ctx.SetParamValues("9")

	_ = ctrl.InternalReconcile(ctx)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	var payload types.ReconcileResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if payload.Outcome != service.OutcomeApplied || payload.Payment.Status != entity.AttemptStatusSucceeded {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}
