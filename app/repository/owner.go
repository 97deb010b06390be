package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vibast-solutions/ms-go-booking-payments/app/entity"
)

var ErrUnknownOwnerKind = errors.New("unknown owner kind")

// OwnerRepository reads and updates the payment fields of bookings and guest
// quotes. Booking and quote lifecycles outside payment belong to other flows.
type OwnerRepository struct {
	executor
}

func NewOwnerRepository(db DBTX) *OwnerRepository {
	return &OwnerRepository{executor{db: db}}
}

func (r *OwnerRepository) FindOwner(ctx context.Context, ref entity.OwnerRef) (*entity.Owner, error) {
	var query string
	args := []interface{}{ref.ID}

	switch ref.Kind {
	case entity.OwnerKindBooking:
		query = `
			SELECT id, user_id, email, expected_amount_minor, currency,
				status, payment_status, payment_attempt_id, paid_at, updated_at
			FROM bookings
			WHERE id = ?
		`
	case entity.OwnerKindQuote:
		query = `
			SELECT id, NULL, email, expected_amount_minor, currency,
				status, payment_status, payment_attempt_id, paid_at, updated_at
			FROM guest_quotes
			WHERE id = ?
		`
	default:
		return nil, ErrUnknownOwnerKind
	}

	var userID sql.NullString
	var attemptID sql.NullInt64
	var paidAt sql.NullTime
	owner := &entity.Owner{Kind: ref.Kind}
	err := r.conn(ctx).QueryRowContext(ctx, query, args...).Scan(
		&owner.ID,
		&userID,
		&owner.Email,
		&owner.ExpectedAmountMinor,
		&owner.Currency,
		&owner.Status,
		&owner.PaymentStatus,
		&attemptID,
		&paidAt,
		&owner.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	owner.UserID = stringPtrFromNull(userID)
	owner.PaymentAttemptID = uint64PtrFromNull(attemptID)
	owner.PaidAt = timePtrFromNull(paidAt)
	return owner, nil
}

// UpdatePaymentOutcome applies a payment outcome to the owner. Each outcome
// is guarded so that a completed owner is only ever moved on by a refund and
// the first winning attempt reference and paid_at are never rewritten.
func (r *OwnerRepository) UpdatePaymentOutcome(ctx context.Context, ref entity.OwnerRef, outcome entity.OwnerOutcome) (bool, error) {
	table, err := ownerTable(ref.Kind)
	if err != nil {
		return false, err
	}

	var query string
	var args []interface{}

	switch outcome.PaymentStatus {
	case entity.OwnerPaymentCompleted:
		query = `UPDATE ` + table + ` SET
				status = ?,
				payment_status = ?,
				payment_attempt_id = COALESCE(payment_attempt_id, ?),
				paid_at = COALESCE(paid_at, ?),
				updated_at = ?
			WHERE id = ? AND payment_status NOT IN (?, ?)`
		args = []interface{}{
			entity.OwnerStatusConfirmed, entity.OwnerPaymentCompleted, outcome.AttemptID, outcome.At, outcome.At,
			ref.ID, entity.OwnerPaymentCompleted, entity.OwnerPaymentRefunded,
		}
	case entity.OwnerPaymentFailed, entity.OwnerPaymentProcessing:
		query = `UPDATE ` + table + ` SET payment_status = ?, updated_at = ?
			WHERE id = ? AND payment_status NOT IN (?, ?)`
		args = []interface{}{
			outcome.PaymentStatus, outcome.At,
			ref.ID, entity.OwnerPaymentCompleted, entity.OwnerPaymentRefunded,
		}
	case entity.OwnerPaymentRefunded:
		query = `UPDATE ` + table + ` SET status = ?, payment_status = ?, updated_at = ?
			WHERE id = ? AND payment_status = ? AND payment_attempt_id = ?`
		args = []interface{}{
			entity.OwnerStatusCancelled, entity.OwnerPaymentRefunded, outcome.At,
			ref.ID, entity.OwnerPaymentCompleted, outcome.AttemptID,
		}
	default:
		return false, fmt.Errorf("unsupported owner payment status %q", outcome.PaymentStatus)
	}

	result, err := r.conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func ownerTable(kind string) (string, error) {
	switch kind {
	case entity.OwnerKindBooking:
		return "bookings", nil
	case entity.OwnerKindQuote:
		return "guest_quotes", nil
	default:
		return "", ErrUnknownOwnerKind
	}
}
