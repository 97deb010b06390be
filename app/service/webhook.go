package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-booking-payments/app/entity"
	"github.com/vibast-solutions/ms-go-booking-payments/app/provider"
	"github.com/vibast-solutions/ms-go-booking-payments/app/repository"
)

type WebhookResult struct {
	EventID   string
	EventType string
	Status    string
	Duplicate bool
}

// HandleWebhook verifies and processes one gateway event. Once the signature
// is verified the event is always acknowledged; processing failures are
// recorded on the stored event for operator follow-up.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	gateway, err := s.gateways.Default()
	if err != nil {
		return nil, ErrGatewayUnavailable
	}

	event, err := gateway.ParseWebhook(payload, signature)
	if err != nil {
		s.logger.WithError(err).Warn("Rejected webhook with invalid signature")
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	if event.ID == "" {
		return nil, fmt.Errorf("%w: event id is missing", ErrInvalidRequest)
	}

	logger := s.logger.WithFields(logrus.Fields{
		"event_id":   event.ID,
		"event_type": event.RawType,
		"intent_id":  event.IntentID,
	})
	result := &WebhookResult{EventID: event.ID, EventType: event.Type}

	now := s.now()
	record := &entity.WebhookEvent{
		EventID:     event.ID,
		EventType:   event.RawType,
		IntentID:    normalizeOptionalString(event.IntentID),
		Status:      entity.WebhookStatusReceived,
		PayloadJSON: string(payload),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.webhookRepo.Create(ctx, record); err != nil {
		if !errors.Is(err, repository.ErrWebhookEventExists) {
			return nil, err
		}
		existing, err := s.webhookRepo.FindByEventID(ctx, event.ID)
		if err != nil {
			return nil, err
		}
		if existing != nil && existing.Settled() {
			logger.Info("Duplicate webhook delivery acknowledged")
			result.Status = existing.Status
			result.Duplicate = true
			return result, nil
		}
		// A failed or interrupted earlier delivery is processed again.
	}

	status, procErr := s.processWebhookEvent(ctx, event)
	result.Status = status

	var errText *string
	if procErr != nil {
		text := procErr.Error()
		errText = &text
		if status == entity.WebhookStatusFailed {
			logger.WithError(procErr).WithField("operator_alert", true).Error("webhook_processing_failed")
		} else {
			logger.WithError(procErr).Info("Webhook event ignored")
		}
	}

	if err := s.webhookRepo.UpdateStatus(ctx, event.ID, status, errText, s.now()); err != nil {
		logger.WithError(err).Error("Failed to record webhook status")
	}
	return result, nil
}

func (s *PaymentService) processWebhookEvent(ctx context.Context, event *provider.WebhookEvent) (string, error) {
	expect := expectedStatusForEvent(event.Type)
	if expect == "" {
		return entity.WebhookStatusIgnored, nil
	}
	if event.IntentID == "" {
		return entity.WebhookStatusIgnored, errors.New("event does not reference a payment intent")
	}

	res, err := s.Reconcile(ctx, ReconcileInput{
		IntentID:       event.IntentID,
		Trigger:        TriggerWebhook,
		GatewayEventID: event.ID,
		Expect:         expect,
	})
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			return entity.WebhookStatusIgnored, err
		}
		return entity.WebhookStatusFailed, err
	}

	if err := s.attemptRepo.MarkWebhookReceived(ctx, event.IntentID, s.now()); err != nil {
		s.logger.WithError(err).WithField("intent_id", event.IntentID).Warn("Failed to flag webhook receipt")
	}

	if res.Outcome == OutcomeIgnored {
		return entity.WebhookStatusIgnored, fmt.Errorf("transition from %s not allowed for %s", res.Attempt.Status, event.Type)
	}
	return entity.WebhookStatusProcessed, nil
}

func expectedStatusForEvent(eventType string) string {
	switch eventType {
	case provider.EventIntentSucceeded:
		return entity.AttemptStatusSucceeded
	case provider.EventIntentFailed:
		return entity.AttemptStatusFailed
	case provider.EventIntentCancelled:
		return entity.AttemptStatusCancelled
	case provider.EventIntentProcessing:
		return entity.AttemptStatusProcessing
	case provider.EventChargeRefunded:
		return entity.AttemptStatusRefunded
	default:
		return ""
	}
}
