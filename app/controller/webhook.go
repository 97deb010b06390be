package controller

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-booking-payments/app/factory"
	"github.com/vibast-solutions/ms-go-booking-payments/app/service"
	"github.com/vibast-solutions/ms-go-booking-payments/app/types"
)

type webhookService interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*service.WebhookResult, error)
}

type WebhookController struct {
	webhookService webhookService
	logger         logrus.FieldLogger
}

func NewWebhookController(webhookService webhookService) *WebhookController {
	return &WebhookController{
		webhookService: webhookService,
		logger:         factory.NewModuleLogger("webhook-controller"),
	}
}

// Handle acknowledges every verified event with 200. Only requests that fail
// verification, or that could not be stored, get another status so that the
// gateway redelivers.
func (c *WebhookController) Handle(ctx echo.Context) error {
	req, err := types.NewWebhookRequestFromContext(ctx)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, &types.ErrorResponse{Error: "invalid request body"})
	}
	if err := req.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, &types.ErrorResponse{Error: err.Error()})
	}

	res, err := c.webhookService.HandleWebhook(ctx.Request().Context(), req.GetPayload(), req.GetSignature())
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSignatureInvalid):
			return ctx.JSON(http.StatusBadRequest, &types.ErrorResponse{Error: service.ErrSignatureInvalid.Error()})
		case errors.Is(err, service.ErrInvalidRequest):
			return ctx.JSON(http.StatusBadRequest, &types.ErrorResponse{Error: err.Error()})
		case errors.Is(err, service.ErrGatewayUnavailable):
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Webhook received without a configured gateway")
			return ctx.JSON(http.StatusServiceUnavailable, &types.ErrorResponse{Error: service.ErrGatewayUnavailable.Error()})
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Webhook handling failed")
			return ctx.JSON(http.StatusInternalServerError, &types.ErrorResponse{Error: "internal server error"})
		}
	}

	return ctx.JSON(http.StatusOK, &types.WebhookAckResponse{
		Received:  true,
		EventId:   res.EventID,
		Status:    res.Status,
		Duplicate: res.Duplicate,
	})
}
