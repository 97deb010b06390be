package controller

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-booking-payments/app/auth"
	"github.com/vibast-solutions/ms-go-booking-payments/app/entity"
	"github.com/vibast-solutions/ms-go-booking-payments/app/factory"
	"github.com/vibast-solutions/ms-go-booking-payments/app/mapper"
	"github.com/vibast-solutions/ms-go-booking-payments/app/service"
	"github.com/vibast-solutions/ms-go-booking-payments/app/types"
)

type paymentService interface {
	CreateIntent(ctx context.Context, caller *service.Caller, req *types.CreateIntentRequest) (*service.CreateIntentResult, error)
	ConfirmPayment(ctx context.Context, caller *service.Caller, req *types.ConfirmPaymentRequest) (*service.ConfirmResult, error)
	RefundPayment(ctx context.Context, caller *service.Caller, req *types.RefundPaymentRequest) (*service.RefundResult, error)
	GetPayment(ctx context.Context, caller *service.Caller, id uint64) (*entity.PaymentAttempt, error)
	FindPayment(ctx context.Context, id uint64, intentID string) (*entity.PaymentAttempt, error)
	Reconcile(ctx context.Context, in service.ReconcileInput) (*service.ReconcileResult, error)
}

type PaymentController struct {
	paymentService paymentService
	logger         logrus.FieldLogger
}

func NewPaymentController(paymentService *service.PaymentService) *PaymentController {
	return newPaymentController(paymentAdapter{svc: paymentService})
}

func newPaymentController(svc paymentService) *PaymentController {
	return &PaymentController{
		paymentService: svc,
		logger:         factory.NewModuleLogger("payments-controller"),
	}
}

func (c *PaymentController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

func (c *PaymentController) CreateIntent(ctx echo.Context) error {
	req, err := types.NewCreateIntentRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	res, err := c.paymentService.CreateIntent(ctx.Request().Context(), callerFromContext(ctx), req)
	if err != nil {
		return c.writeServiceError(ctx, err, "Create intent failed")
	}

	return ctx.JSON(http.StatusCreated, &types.CreateIntentResponse{
		ClientSecret: res.ClientSecret,
		IntentId:     res.IntentID,
		PaymentId:    res.Attempt.ID,
	})
}

func (c *PaymentController) ConfirmPayment(ctx echo.Context) error {
	req, err := types.NewConfirmPaymentRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	res, err := c.paymentService.ConfirmPayment(ctx.Request().Context(), callerFromContext(ctx), req)
	if err != nil {
		return c.writeServiceError(ctx, err, "Confirm payment failed")
	}

	return ctx.JSON(http.StatusOK, &types.ConfirmPaymentResponse{
		Success:        res.Success,
		Status:         res.Status,
		Outcome:        res.Outcome,
		GatewayStatus:  res.GatewayStatus,
		PaymentId:      res.Attempt.ID,
		FailureCode:    res.FailureCode,
		FailureMessage: res.FailureMessage,
	})
}

func (c *PaymentController) RefundPayment(ctx echo.Context) error {
	req, err := types.NewRefundPaymentRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	res, err := c.paymentService.RefundPayment(ctx.Request().Context(), callerFromContext(ctx), req)
	if err != nil {
		return c.writeServiceError(ctx, err, "Refund payment failed")
	}

	return ctx.JSON(http.StatusOK, &types.RefundPaymentResponse{
		RefundId: res.RefundID,
		Amount:   res.AmountMinor,
		Currency: res.Currency,
	})
}

func (c *PaymentController) GetPayment(ctx echo.Context) error {
	req, err := types.NewGetPaymentRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.paymentService.GetPayment(ctx.Request().Context(), callerFromContext(ctx), req.GetId())
	if err != nil {
		return c.writeServiceError(ctx, err, "Get payment failed")
	}

	return ctx.JSON(http.StatusOK, mapper.PaymentToResponse(item))
}

// InternalGetPayment serves the internal route; access is enforced by middleware.
func (c *PaymentController) InternalGetPayment(ctx echo.Context) error {
	req, err := types.NewReconcileRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	item, err := c.paymentService.FindPayment(ctx.Request().Context(), req.GetPaymentId(), req.GetIntentId())
	if err != nil {
		return c.writeServiceError(ctx, err, "Internal get payment failed")
	}

	return ctx.JSON(http.StatusOK, mapper.PaymentToResponse(item))
}

func (c *PaymentController) InternalReconcile(ctx echo.Context) error {
	req, err := types.NewReconcileRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	intentID := req.GetIntentId()
	if intentID == "" {
		item, err := c.paymentService.FindPayment(ctx.Request().Context(), req.GetPaymentId(), "")
		if err != nil {
			return c.writeServiceError(ctx, err, "Internal reconcile failed")
		}
		intentID = item.IntentID
	}

	res, err := c.paymentService.Reconcile(ctx.Request().Context(), service.ReconcileInput{
		IntentID: intentID,
		Trigger:  service.TriggerManual,
	})
	if err != nil {
		return c.writeServiceError(ctx, err, "Internal reconcile failed")
	}

	return ctx.JSON(http.StatusOK, &types.ReconcileResponse{
		Payment: mapper.PaymentToResponse(res.Attempt),
		Outcome: res.Outcome,
	})
}

func (c *PaymentController) writeServiceError(ctx echo.Context, err error, logMessage string) error {
	switch {
	case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, service.ErrSignatureInvalid):
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrUnauthenticated):
		return c.writeError(ctx, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrForbidden):
		return c.writeError(ctx, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrPaymentNotFound), errors.Is(err, service.ErrOwnerNotFound):
		return c.writeError(ctx, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidStatus), errors.Is(err, service.ErrAlreadyPaid):
		return c.writeError(ctx, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrGatewayInvalidRequest):
		return c.writeError(ctx, http.StatusUnprocessableEntity, "payment gateway rejected the request")
	case errors.Is(err, service.ErrGatewayTransient):
		c.logger.WithError(err).Warn(logMessage)
		return ctx.JSON(http.StatusServiceUnavailable, &types.ErrorResponse{Error: service.ErrGatewayTransient.Error(), Retry: true})
	case errors.Is(err, service.ErrGatewayUnavailable):
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error(logMessage)
		return c.writeError(ctx, http.StatusServiceUnavailable, service.ErrGatewayUnavailable.Error())
	default:
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error(logMessage)
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}
}

func (c *PaymentController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}

func callerFromContext(ctx echo.Context) *service.Caller {
	user := auth.UserFromContext(ctx)
	if user == nil {
		return nil
	}
	return &service.Caller{UserID: user.UserID, Email: user.Email, Role: user.Role}
}

// paymentAdapter narrows the typed requests onto the service's request interfaces.
type paymentAdapter struct {
	svc *service.PaymentService
}

func (a paymentAdapter) CreateIntent(ctx context.Context, caller *service.Caller, req *types.CreateIntentRequest) (*service.CreateIntentResult, error) {
	return a.svc.CreateIntent(ctx, caller, req)
}

func (a paymentAdapter) ConfirmPayment(ctx context.Context, caller *service.Caller, req *types.ConfirmPaymentRequest) (*service.ConfirmResult, error) {
	return a.svc.ConfirmPayment(ctx, caller, req)
}

func (a paymentAdapter) RefundPayment(ctx context.Context, caller *service.Caller, req *types.RefundPaymentRequest) (*service.RefundResult, error) {
	return a.svc.RefundPayment(ctx, caller, req)
}

func (a paymentAdapter) GetPayment(ctx context.Context, caller *service.Caller, id uint64) (*entity.PaymentAttempt, error) {
	return a.svc.GetPayment(ctx, caller, id)
}

func (a paymentAdapter) FindPayment(ctx context.Context, id uint64, intentID string) (*entity.PaymentAttempt, error) {
	return a.svc.FindPayment(ctx, id, intentID)
}

func (a paymentAdapter) Reconcile(ctx context.Context, in service.ReconcileInput) (*service.ReconcileResult, error) {
	return a.svc.Reconcile(ctx, in)
}
