package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-booking-payments/app/entity"
)

var ErrWebhookEventExists = errors.New("webhook event already recorded")

type WebhookEventRepository struct {
	executor
}

func NewWebhookEventRepository(db DBTX) *WebhookEventRepository {
	return &WebhookEventRepository{executor{db: db}}
}

// Create records a gateway event once; a second insert for the same event id
// returns ErrWebhookEventExists.
func (r *WebhookEventRepository) Create(ctx context.Context, event *entity.WebhookEvent) error {
	query := `
		INSERT INTO webhook_events (
			event_id, event_type, intent_id, status, error, payload_json, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.conn(ctx).ExecContext(ctx, query,
		event.EventID,
		event.EventType,
		nullableStringValue(event.IntentID),
		event.Status,
		nullableStringValue(event.Error),
		event.PayloadJSON,
		event.CreatedAt,
		event.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrWebhookEventExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	event.ID = uint64(id)
	return nil
}

func (r *WebhookEventRepository) FindByEventID(ctx context.Context, eventID string) (*entity.WebhookEvent, error) {
	query := `
		SELECT id, event_id, event_type, intent_id, status, error, payload_json, created_at, updated_at
		FROM webhook_events
		WHERE event_id = ?
		LIMIT 1
	`

	var intentID, errText sql.NullString
	event := &entity.WebhookEvent{}
	err := r.conn(ctx).QueryRowContext(ctx, query, eventID).Scan(
		&event.ID,
		&event.EventID,
		&event.EventType,
		&intentID,
		&event.Status,
		&errText,
		&event.PayloadJSON,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	event.IntentID = stringPtrFromNull(intentID)
	event.Error = stringPtrFromNull(errText)
	return event, nil
}

func (r *WebhookEventRepository) UpdateStatus(ctx context.Context, eventID, status string, errText *string, at time.Time) error {
	if errText != nil {
		trimmed := truncate(*errText, 1024)
		errText = &trimmed
	}

	query := `UPDATE webhook_events SET status = ?, error = ?, updated_at = ? WHERE event_id = ?`
	_, err := r.conn(ctx).ExecContext(ctx, query, status, nullableStringValue(errText), at, eventID)
	return err
}
