package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/vibast-solutions/ms-go-booking-payments/app/entity"
)

var ErrReferralCreditExists = errors.New("referral credit already exists")

type ReferralRepository struct {
	executor
}

func NewReferralRepository(db DBTX) *ReferralRepository {
	return &ReferralRepository{executor{db: db}}
}

// FindReferrer returns the referrer of a party, or "" when the party was not referred.
func (r *ReferralRepository) FindReferrer(ctx context.Context, referredParty string) (string, error) {
	query := `SELECT referrer_id FROM referrals WHERE referred_party = ? LIMIT 1`

	var referrerID string
	err := r.conn(ctx).QueryRowContext(ctx, query, strings.TrimSpace(referredParty)).Scan(&referrerID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return referrerID, nil
}

// CreateCredit inserts the credit row guarded by the unique
// (referrer_id, referred_party) key.
func (r *ReferralRepository) CreateCredit(ctx context.Context, credit *entity.ReferralCredit) error {
	query := `
		INSERT INTO referral_credits (
			referrer_id, referred_party, payment_attempt_id, points_awarded, completed_at
		)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := r.conn(ctx).ExecContext(ctx, query,
		credit.ReferrerID,
		credit.ReferredParty,
		credit.PaymentAttemptID,
		credit.PointsAwarded,
		credit.CompletedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrReferralCreditExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	credit.ID = uint64(id)
	return nil
}

func (r *ReferralRepository) AddPoints(ctx context.Context, userID string, points int64) error {
	query := `
		INSERT INTO referral_balances (user_id, points)
		VALUES (?, ?)
		ON DUPLICATE KEY UPDATE points = points + VALUES(points)
	`
	_, err := r.conn(ctx).ExecContext(ctx, query, userID, points)
	return err
}
