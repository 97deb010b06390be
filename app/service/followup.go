package service

import (
	"context"
	"fmt"

	"github.com/vibast-solutions/ms-go-booking-payments/app/entity"
	"github.com/vibast-solutions/ms-go-booking-payments/app/notification"
)

// scheduleFollowUps runs notifications and referral credits after the
// transition has committed. Their failures are logged and never reach the
// caller.
func (s *PaymentService) scheduleFollowUps(ctx context.Context, attempt *entity.PaymentAttempt) {
	snapshot := *attempt
	timeout := s.settings.Payments.FollowUpTimeout
	if timeout <= 0 {
		timeout = defaultFollowUpTimeout
	}

	s.followUps.Add(1)
	go func() {
		defer s.followUps.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.WithField("intent_id", snapshot.IntentID).WithField("panic", fmt.Sprint(r)).Error("Payment follow-up panicked")
			}
		}()

		followCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()

		s.runFollowUps(followCtx, &snapshot)
	}()
}

func (s *PaymentService) runFollowUps(ctx context.Context, attempt *entity.PaymentAttempt) {
	logger := s.logger.WithField("intent_id", attempt.IntentID).WithField("payment_id", attempt.ID)

	for _, n := range s.notificationsFor(attempt) {
		if err := s.notifier.Send(ctx, n); err != nil {
			logger.WithError(err).WithField("kind", n.Kind).Error("Payment notification failed")
		}
	}

	if attempt.Status == entity.AttemptStatusSucceeded && s.referrals != nil {
		if err := s.referrals.ApplyIfEligible(ctx, attempt); err != nil {
			logger.WithError(err).Error("Referral credit failed")
		}
	}
}

func (s *PaymentService) notificationsFor(attempt *entity.PaymentAttempt) []notification.Notification {
	if s.notifier == nil {
		return nil
	}

	owner := attempt.Owner()
	data := notification.Data{
		IntentID:          attempt.IntentID,
		PaymentID:         attempt.ID,
		OwnerKind:         attempt.OwnerKind,
		OwnerID:           owner.ID,
		AmountMinor:       attempt.AmountMinor,
		Currency:          attempt.Currency,
		CardBrand:         derefString(attempt.CardBrand),
		CardLast4:         derefString(attempt.CardLast4),
		RefundAmountMinor: attempt.RefundAmount,
		RefundReason:      derefString(attempt.RefundReason),
		OccurredAt:        attempt.UpdatedAt,
	}
	recipient := derefString(attempt.Email)

	var out []notification.Notification
	add := func(kind notification.Kind, to string) {
		if to == "" {
			return
		}
		out = append(out, notification.Notification{
			Kind:      kind,
			To:        to,
			DedupeKey: string(kind) + ":" + attempt.IntentID,
			Data:      data,
		})
	}

	switch attempt.Status {
	case entity.AttemptStatusSucceeded:
		add(notification.KindReceipt, recipient)
		if attempt.OwnerKind == entity.OwnerKindBooking {
			add(notification.KindBookingConfirmation, recipient)
		}
		add(notification.KindAdminAlert, s.settings.AdminEmail)
	case entity.AttemptStatusRefunded:
		add(notification.KindRefundNotice, recipient)
	}
	return out
}
