package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-booking-payments/app/entity"
)

var ErrAttemptAlreadyExists = errors.New("payment attempt already exists")

const attemptColumns = `
	id, intent_id, owner_kind, booking_id, quote_id, email, user_id,
	amount_minor, currency, status, card_brand, card_last4,
	failure_code, failure_reason, refund_id, refund_amount, refund_reason,
	webhook_received, webhook_received_at,
	created_at, processed_at, refunded_at, updated_at
`

type PaymentAttemptRepository struct {
	executor
}

func NewPaymentAttemptRepository(db DBTX) *PaymentAttemptRepository {
	return &PaymentAttemptRepository{executor{db: db}}
}

// Create inserts the attempt only if no row exists for its intent id.
func (r *PaymentAttemptRepository) Create(ctx context.Context, attempt *entity.PaymentAttempt) error {
	query := `
		INSERT INTO payment_attempts (
			intent_id, owner_kind, booking_id, quote_id, email, user_id,
			amount_minor, currency, status, card_brand, card_last4,
			failure_code, failure_reason, refund_id, refund_amount, refund_reason,
			webhook_received, webhook_received_at,
			created_at, processed_at, refunded_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.conn(ctx).ExecContext(ctx, query,
		attempt.IntentID,
		attempt.OwnerKind,
		nullableUint64Value(attempt.BookingID),
		nullableUint64Value(attempt.QuoteID),
		nullableStringValue(attempt.Email),
		nullableStringValue(attempt.UserID),
		attempt.AmountMinor,
		attempt.Currency,
		attempt.Status,
		nullableStringValue(attempt.CardBrand),
		nullableStringValue(attempt.CardLast4),
		nullableStringValue(attempt.FailureCode),
		nullableStringValue(attempt.FailureReason),
		nullableStringValue(attempt.RefundID),
		attempt.RefundAmount,
		nullableStringValue(attempt.RefundReason),
		attempt.WebhookReceived,
		nullableTimeValue(attempt.WebhookReceivedAt),
		attempt.CreatedAt,
		nullableTimeValue(attempt.ProcessedAt),
		nullableTimeValue(attempt.RefundedAt),
		attempt.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrAttemptAlreadyExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	attempt.ID = uint64(id)
	return nil
}

// CompareAndUpdate writes the attempt only while its stored status still
// equals expectedStatus. It reports false when another writer got there first.
func (r *PaymentAttemptRepository) CompareAndUpdate(ctx context.Context, attempt *entity.PaymentAttempt, expectedStatus string) (bool, error) {
	query := `
		UPDATE payment_attempts SET
			status = ?,
			card_brand = ?,
			card_last4 = ?,
			failure_code = ?,
			failure_reason = ?,
			refund_id = ?,
			refund_amount = ?,
			refund_reason = ?,
			processed_at = ?,
			refunded_at = ?,
			updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := r.conn(ctx).ExecContext(ctx, query,
		attempt.Status,
		nullableStringValue(attempt.CardBrand),
		nullableStringValue(attempt.CardLast4),
		nullableStringValue(attempt.FailureCode),
		nullableStringValue(attempt.FailureReason),
		nullableStringValue(attempt.RefundID),
		attempt.RefundAmount,
		nullableStringValue(attempt.RefundReason),
		nullableTimeValue(attempt.ProcessedAt),
		nullableTimeValue(attempt.RefundedAt),
		attempt.UpdatedAt,
		attempt.ID,
		expectedStatus,
	)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *PaymentAttemptRepository) MarkWebhookReceived(ctx context.Context, intentID string, at time.Time) error {
	query := `
		UPDATE payment_attempts SET
			webhook_received = 1,
			webhook_received_at = COALESCE(webhook_received_at, ?)
		WHERE intent_id = ?
	`
	_, err := r.conn(ctx).ExecContext(ctx, query, at, intentID)
	return err
}

func (r *PaymentAttemptRepository) FindByIntentID(ctx context.Context, intentID string) (*entity.PaymentAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM payment_attempts WHERE intent_id = ? LIMIT 1`

	attempt := &entity.PaymentAttempt{}
	if err := scanAttempt(r.conn(ctx).QueryRowContext(ctx, query, strings.TrimSpace(intentID)), attempt); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return attempt, nil
}

func (r *PaymentAttemptRepository) FindByID(ctx context.Context, id uint64) (*entity.PaymentAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM payment_attempts WHERE id = ?`

	attempt := &entity.PaymentAttempt{}
	if err := scanAttempt(r.conn(ctx).QueryRowContext(ctx, query, id), attempt); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return attempt, nil
}

// CountSettledForPartyBefore counts successful (including later refunded)
// payments made by a referred party with an id lower than beforeID.
func (r *PaymentAttemptRepository) CountSettledForPartyBefore(ctx context.Context, party string, beforeID uint64) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM payment_attempts
		WHERE status IN (?, ?)
		  AND (user_id = ? OR (user_id IS NULL AND LOWER(email) = ?))
		  AND id < ?
	`

	var count int64
	err := r.conn(ctx).QueryRowContext(ctx, query,
		entity.AttemptStatusSucceeded,
		entity.AttemptStatusRefunded,
		party,
		strings.ToLower(party),
		beforeID,
	).Scan(&count)
	return count, err
}

func (r *PaymentAttemptRepository) ListForReconcile(ctx context.Context, before time.Time, limit int32) ([]*entity.PaymentAttempt, error) {
	query := `SELECT ` + attemptColumns + `
		FROM payment_attempts
		WHERE status IN (?, ?)
		  AND updated_at <= ?
		ORDER BY updated_at ASC
		LIMIT ?
	`

	rows, err := r.conn(ctx).QueryContext(ctx, query, entity.AttemptStatusPending, entity.AttemptStatusProcessing, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attempts := make([]*entity.PaymentAttempt, 0)
	for rows.Next() {
		item := &entity.PaymentAttempt{}
		if err := scanAttempt(rows, item); err != nil {
			return nil, err
		}
		attempts = append(attempts, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return attempts, nil
}

func scanAttempt(scan rowScanner, attempt *entity.PaymentAttempt) error {
	var bookingID, quoteID sql.NullInt64
	var email, userID sql.NullString
	var cardBrand, cardLast4 sql.NullString
	var failureCode, failureReason sql.NullString
	var refundID, refundReason sql.NullString
	var webhookReceivedAt, processedAt, refundedAt sql.NullTime

	err := scan.Scan(
		&attempt.ID,
		&attempt.IntentID,
		&attempt.OwnerKind,
		&bookingID,
		&quoteID,
		&email,
		&userID,
		&attempt.AmountMinor,
		&attempt.Currency,
		&attempt.Status,
		&cardBrand,
		&cardLast4,
		&failureCode,
		&failureReason,
		&refundID,
		&attempt.RefundAmount,
		&refundReason,
		&attempt.WebhookReceived,
		&webhookReceivedAt,
		&attempt.CreatedAt,
		&processedAt,
		&refundedAt,
		&attempt.UpdatedAt,
	)
	if err != nil {
		return err
	}

	attempt.BookingID = uint64PtrFromNull(bookingID)
	attempt.QuoteID = uint64PtrFromNull(quoteID)
	attempt.Email = stringPtrFromNull(email)
	attempt.UserID = stringPtrFromNull(userID)
	attempt.CardBrand = stringPtrFromNull(cardBrand)
	attempt.CardLast4 = stringPtrFromNull(cardLast4)
	attempt.FailureCode = stringPtrFromNull(failureCode)
	attempt.FailureReason = stringPtrFromNull(failureReason)
	attempt.RefundID = stringPtrFromNull(refundID)
	attempt.RefundReason = stringPtrFromNull(refundReason)
	attempt.WebhookReceivedAt = timePtrFromNull(webhookReceivedAt)
	attempt.ProcessedAt = timePtrFromNull(processedAt)
	attempt.RefundedAt = timePtrFromNull(refundedAt)

	return nil
}
