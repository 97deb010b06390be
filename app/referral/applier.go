package referral

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-booking-payments/app/entity"
	"github.com/vibast-solutions/ms-go-booking-payments/app/factory"
	"github.com/vibast-solutions/ms-go-booking-payments/app/repository"
)

type referralRepository interface {
	FindReferrer(ctx context.Context, referredParty string) (string, error)
	CreateCredit(ctx context.Context, credit *entity.ReferralCredit) error
	AddPoints(ctx context.Context, userID string, points int64) error
}

type settledCounter interface {
	CountSettledForPartyBefore(ctx context.Context, party string, beforeID uint64) (int64, error)
}

type txRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Applier awards the referrer once, on the referred party's first
// successful payment.
type Applier struct {
	referrals referralRepository
	attempts  settledCounter
	tx        txRunner
	points    int64
	logger    logrus.FieldLogger
	now       func() time.Time
}

func NewApplier(referrals referralRepository, attempts settledCounter, tx txRunner, pointsPerReferral int64) *Applier {
	return &Applier{
		referrals: referrals,
		attempts:  attempts,
		tx:        tx,
		points:    pointsPerReferral,
		logger:    factory.NewModuleLogger("referral-applier"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ApplyIfEligible is safe to call more than once for the same attempt; the
// unique (referrer, referred party) key prevents a second award.
func (a *Applier) ApplyIfEligible(ctx context.Context, attempt *entity.PaymentAttempt) error {
	if attempt == nil || attempt.Status != entity.AttemptStatusSucceeded {
		return nil
	}

	party := attempt.ReferredParty()
	if party == "" {
		return nil
	}
	logger := a.logger.WithField("payment_id", attempt.ID).WithField("referred_party", party)

	referrerID, err := a.referrals.FindReferrer(ctx, party)
	if err != nil {
		return fmt.Errorf("find referrer: %w", err)
	}
	if referrerID == "" || referrerID == party {
		return nil
	}

	// Only settled payments older than this one count, so two payments settling
	// back to back still leave exactly one of them first.
	earlier, err := a.attempts.CountSettledForPartyBefore(ctx, party, attempt.ID)
	if err != nil {
		return fmt.Errorf("count settled payments: %w", err)
	}
	if earlier > 0 {
		logger.Debug("Not a first payment, no referral credit")
		return nil
	}

	credit := &entity.ReferralCredit{
		ReferrerID:       referrerID,
		ReferredParty:    party,
		PaymentAttemptID: attempt.ID,
		PointsAwarded:    a.points,
		CompletedAt:      a.now(),
	}

	err = a.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := a.referrals.CreateCredit(ctx, credit); err != nil {
			return err
		}
		return a.referrals.AddPoints(ctx, referrerID, a.points)
	})
	if errors.Is(err, repository.ErrReferralCreditExists) {
		logger.Info("Referral credit already awarded")
		return nil
	}
	if err != nil {
		return fmt.Errorf("award referral credit: %w", err)
	}

	logger.WithField("referrer_id", referrerID).WithField("points", a.points).Info("referral_credit_awarded")
	return nil
}
