package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-booking-payments/app/entity"
	"github.com/vibast-solutions/ms-go-booking-payments/app/provider"
	"github.com/vibast-solutions/ms-go-booking-payments/app/repository"
)

const (
	OutcomeApplied          = "applied"
	OutcomeAlreadyProcessed = "already_processed"
	OutcomeNotYetSucceeded  = "not_yet_succeeded"
	OutcomeIgnored          = "ignored"
)

var errTransitionLost = errors.New("attempt changed concurrently")

type ReconcileInput struct {
	IntentID       string
	Trigger        string
	GatewayEventID string
	// Expect is the status an event announces. An attempt already in that
	// status is acknowledged without contacting the gateway.
	Expect string
}

type ReconcileResult struct {
	Attempt        *entity.PaymentAttempt
	Outcome        string
	GatewayStatus  string
	FailureCode    string
	FailureMessage string
}

// Reconcile converges the attempt for an intent onto the gateway's
// authoritative status. It is the only writer of attempt status after
// creation and is safe to run concurrently for the same intent from several
// processes: the intent id is unique and every write is a compare-and-update
// on the status read before the gateway call.
func (s *PaymentService) Reconcile(ctx context.Context, in ReconcileInput) (*ReconcileResult, error) {
	intentID := strings.TrimSpace(in.IntentID)
	if intentID == "" {
		return nil, fmt.Errorf("%w: intent id is required", ErrInvalidRequest)
	}
	logger := s.logger.WithField("intent_id", intentID).WithField("trigger", in.Trigger)

	attempt, err := s.attemptRepo.FindByIntentID(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if attempt != nil && alreadySettled(attempt.Status, in.Expect) {
		logger.WithField("status", attempt.Status).Debug("Attempt already settled")
		return &ReconcileResult{Attempt: attempt, Outcome: OutcomeAlreadyProcessed}, nil
	}

	intent, err := s.retrieveIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}

	if attempt == nil {
		attempt, err = s.insertObservedAttempt(ctx, intent, in)
		if err != nil {
			return nil, err
		}
	}

	res, err := s.applyIntent(ctx, attempt, intent, in)
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"payment_id":     res.Attempt.ID,
		"status":         res.Attempt.Status,
		"gateway_status": intent.GatewayStatus,
		"outcome":        res.Outcome,
	}).Info("payment_reconciled")
	return res, nil
}

func (s *PaymentService) applyIntent(ctx context.Context, attempt *entity.PaymentAttempt, intent *provider.Intent, in ReconcileInput) (*ReconcileResult, error) {
	res := &ReconcileResult{
		Attempt:        attempt,
		GatewayStatus:  intent.GatewayStatus,
		FailureCode:    intent.FailureCode,
		FailureMessage: intent.FailureMessage,
	}
	target := intent.Status

	if target == attempt.Status {
		if target == entity.AttemptStatusFailed && failureChanged(attempt, intent) {
			return s.transition(ctx, attempt, intent, in, res)
		}
		if entity.IsTerminalAttemptStatus(target) {
			res.Outcome = OutcomeAlreadyProcessed
		} else {
			res.Outcome = OutcomeNotYetSucceeded
		}
		return res, nil
	}

	if target == entity.AttemptStatusPending {
		res.Outcome = OutcomeNotYetSucceeded
		return res, nil
	}

	if !entity.CanTransition(attempt.Status, target) {
		if target == entity.AttemptStatusRefunded {
			// The gateway captured and refunded a payment the ledger never saw
			// succeed. Refunds only apply to succeeded attempts, so an operator
			// has to settle it.
			s.logger.WithFields(logrus.Fields{
				"intent_id":       attempt.IntentID,
				"payment_id":      attempt.ID,
				"status":          attempt.Status,
				"amount_refunded": intent.AmountRefunded,
				"trigger":         in.Trigger,
				"operator_alert":  true,
			}).Error("Gateway reports a refund for a payment never recorded as succeeded")
			res.Outcome = OutcomeIgnored
			return res, nil
		}
		s.logger.WithFields(logrus.Fields{
			"intent_id": attempt.IntentID,
			"from":      attempt.Status,
			"to":        target,
			"trigger":   in.Trigger,
		}).Warn("Ignoring disallowed payment transition")
		res.Outcome = OutcomeIgnored
		return res, nil
	}

	return s.transition(ctx, attempt, intent, in, res)
}

func (s *PaymentService) transition(ctx context.Context, attempt *entity.PaymentAttempt, intent *provider.Intent, in ReconcileInput, res *ReconcileResult) (*ReconcileResult, error) {
	now := s.now()
	updated := *attempt
	updated.Status = intent.Status
	updated.UpdatedAt = now

	switch intent.Status {
	case entity.AttemptStatusSucceeded:
		updated.CardBrand = normalizeOptionalString(intent.CardBrand)
		updated.CardLast4 = normalizeOptionalString(intent.CardLast4)
		updated.FailureCode = nil
		updated.FailureReason = nil
		updated.ProcessedAt = &now
	case entity.AttemptStatusFailed:
		// Latest failure wins on the attempt; payment_events keeps every one.
		updated.FailureCode = normalizeOptionalString(intent.FailureCode)
		updated.FailureReason = normalizeOptionalString(intent.FailureMessage)
		updated.ProcessedAt = &now
	case entity.AttemptStatusRefunded:
		updated.RefundAmount = intent.AmountRefunded
		if updated.RefundAmount <= 0 {
			updated.RefundAmount = attempt.AmountMinor
		}
		updated.RefundedAt = &now
	case entity.AttemptStatusCancelled:
		updated.ProcessedAt = &now
	}

	applied, err := s.commitTransition(ctx, attempt, &updated, in.Trigger, in.GatewayEventID, "payment_"+updated.Status)
	if err != nil {
		return nil, err
	}
	if !applied {
		current, err := s.attemptRepo.FindByID(ctx, attempt.ID)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, ErrPaymentNotFound
		}
		res.Attempt = current
		res.Outcome = OutcomeAlreadyProcessed
		return res, nil
	}

	res.Attempt = &updated
	res.Outcome = OutcomeApplied
	if !entity.IsTerminalAttemptStatus(updated.Status) {
		res.Outcome = OutcomeNotYetSucceeded
	}
	if updated.Status == entity.AttemptStatusSucceeded || updated.Status == entity.AttemptStatusRefunded {
		s.scheduleFollowUps(ctx, &updated)
	}
	return res, nil
}

// commitTransition writes the attempt, the owner outcome and the audit event
// in one transaction. It reports false when another writer moved the attempt
// first, in which case nothing was written.
func (s *PaymentService) commitTransition(ctx context.Context, previous, updated *entity.PaymentAttempt, trigger, gatewayEventID, eventType string) (bool, error) {
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		ok, err := s.attemptRepo.CompareAndUpdate(ctx, updated, previous.Status)
		if err != nil {
			return err
		}
		if !ok {
			return errTransitionLost
		}

		if paymentStatus := ownerPaymentStatusFor(updated.Status); paymentStatus != "" {
			changed, err := s.ownerRepo.UpdatePaymentOutcome(ctx, updated.Owner(), entity.OwnerOutcome{
				PaymentStatus: paymentStatus,
				AttemptID:     updated.ID,
				At:            updated.UpdatedAt,
			})
			if err != nil {
				return fmt.Errorf("update owner payment outcome: %w", err)
			}
			if !changed {
				s.logger.WithFields(logrus.Fields{
					"payment_id":     updated.ID,
					"owner_kind":     updated.OwnerKind,
					"payment_status": paymentStatus,
				}).Warn("Owner payment outcome left unchanged")
			}
		}

		oldStatus := previous.Status
		return s.eventRepo.Create(ctx, &entity.PaymentEvent{
			AttemptID:      updated.ID,
			EventType:      eventType,
			Trigger:        trigger,
			OldStatus:      &oldStatus,
			NewStatus:      updated.Status,
			GatewayEventID: normalizeOptionalString(gatewayEventID),
			FailureCode:    updated.FailureCode,
			FailureReason:  updated.FailureReason,
			CreatedAt:      updated.UpdatedAt,
		})
	})
	if errors.Is(err, errTransitionLost) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// insertObservedAttempt records an intent first seen through a webhook or
// job. Losing the insert race falls back to the winner's row.
func (s *PaymentService) insertObservedAttempt(ctx context.Context, intent *provider.Intent, in ReconcileInput) (*entity.PaymentAttempt, error) {
	kind := intent.Metadata[provider.MetadataOwnerKind]
	var idRaw string
	switch kind {
	case entity.OwnerKindBooking:
		idRaw = intent.Metadata[provider.MetadataBookingID]
	case entity.OwnerKindQuote:
		idRaw = intent.Metadata[provider.MetadataQuoteID]
	default:
		return nil, fmt.Errorf("%w: intent %s carries no owner metadata", ErrPaymentNotFound, intent.ID)
	}
	ownerID, err := strconv.ParseUint(idRaw, 10, 64)
	if err != nil || ownerID == 0 {
		return nil, fmt.Errorf("%w: intent %s carries an invalid owner id", ErrPaymentNotFound, intent.ID)
	}

	now := s.now()
	attempt := &entity.PaymentAttempt{
		IntentID:    intent.ID,
		OwnerKind:   kind,
		Email:       normalizeOptionalString(strings.ToLower(intent.Metadata[provider.MetadataEmail])),
		UserID:      normalizeOptionalString(intent.Metadata[provider.MetadataUserID]),
		AmountMinor: intent.AmountMinor,
		Currency:    strings.ToUpper(intent.Currency),
		Status:      entity.AttemptStatusProcessing,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	setOwnerID(attempt, kind, ownerID)

	if err := s.attemptRepo.Create(ctx, attempt); err != nil {
		if !errors.Is(err, repository.ErrAttemptAlreadyExists) {
			return nil, err
		}
		existing, findErr := s.attemptRepo.FindByIntentID(ctx, intent.ID)
		if findErr != nil {
			return nil, findErr
		}
		if existing == nil {
			return nil, err
		}
		return existing, nil
	}

	s.recordEvent(ctx, &entity.PaymentEvent{
		AttemptID:      attempt.ID,
		EventType:      "intent_observed",
		Trigger:        in.Trigger,
		NewStatus:      attempt.Status,
		GatewayEventID: normalizeOptionalString(in.GatewayEventID),
		CreatedAt:      now,
	})
	return attempt, nil
}

// retrieveIntent calls the gateway with a bounded number of retries on
// transient failures.
func (s *PaymentService) retrieveIntent(ctx context.Context, intentID string) (*provider.Intent, error) {
	gateway, err := s.gateways.Default()
	if err != nil {
		return nil, ErrGatewayUnavailable
	}

	retries := s.settings.Payments.GatewayMaxRetries
	if retries < 0 {
		retries = 0
	}
	delay := s.settings.Payments.GatewayRetryBackoff
	if delay <= 0 {
		delay = 200 * time.Millisecond
	}

	for attempt := 0; ; attempt++ {
		intent, err := gateway.RetrieveIntent(ctx, intentID)
		if err == nil {
			return intent, nil
		}
		if !provider.IsRetryable(err) || attempt >= retries {
			return nil, mapGatewayError(err)
		}

		s.logger.WithError(err).WithField("intent_id", intentID).WithField("attempt", attempt+1).Warn("Gateway retrieve failed, retrying")
		if waitErr := s.wait(ctx, delay); waitErr != nil {
			return nil, mapGatewayError(err)
		}
		delay *= 2
	}
}

func alreadySettled(status, expect string) bool {
	switch expect {
	case "":
		return status == entity.AttemptStatusSucceeded ||
			status == entity.AttemptStatusRefunded ||
			status == entity.AttemptStatusCancelled
	case entity.AttemptStatusFailed:
		// Each failure event re-reads the gateway so the latest reason is kept.
		return false
	case entity.AttemptStatusSucceeded:
		return status == entity.AttemptStatusSucceeded || status == entity.AttemptStatusRefunded
	default:
		return status == expect
	}
}

func failureChanged(attempt *entity.PaymentAttempt, intent *provider.Intent) bool {
	return derefString(attempt.FailureCode) != intent.FailureCode ||
		derefString(attempt.FailureReason) != intent.FailureMessage
}

func ownerPaymentStatusFor(status string) string {
	switch status {
	case entity.AttemptStatusSucceeded:
		return entity.OwnerPaymentCompleted
	case entity.AttemptStatusFailed:
		return entity.OwnerPaymentFailed
	case entity.AttemptStatusProcessing:
		return entity.OwnerPaymentProcessing
	case entity.AttemptStatusRefunded:
		return entity.OwnerPaymentRefunded
	default:
		return ""
	}
}
