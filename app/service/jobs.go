package service

import (
	"context"
	"errors"
)

// RunReconcileBatch re-checks attempts left pending or processing for longer
// than the configured staleness window, covering lost webhooks and abandoned
// confirm calls.
func (s *PaymentService) RunReconcileBatch(ctx context.Context) error {
	before := s.now().Add(-s.settings.Payments.ReconcileStaleAfter)
	items, err := s.attemptRepo.ListForReconcile(ctx, before, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	applied := 0
	for _, attempt := range items {
		if attempt == nil || attempt.IntentID == "" {
			continue
		}

		res, err := s.Reconcile(ctx, ReconcileInput{IntentID: attempt.IntentID, Trigger: TriggerJob})
		if err != nil {
			if errors.Is(err, ErrPaymentNotFound) {
				s.logger.WithError(err).WithField("intent_id", attempt.IntentID).Warn("Intent unknown to gateway")
				continue
			}
			firstErr = keepFirstErr(firstErr, err)
			continue
		}
		if res.Outcome == OutcomeApplied {
			applied++
		}
	}

	s.logger.WithField("checked", len(items)).WithField("applied", applied).Info("Reconcile batch finished")
	return firstErr
}

func keepFirstErr(current error, candidate error) error {
	if current != nil {
		return current
	}
	return candidate
}
