package repository

import (
	"context"

	"github.com/vibast-solutions/ms-go-booking-payments/app/entity"
)

type PaymentEventRepository struct {
	executor
}

func NewPaymentEventRepository(db DBTX) *PaymentEventRepository {
	return &PaymentEventRepository{executor{db: db}}
}

func (r *PaymentEventRepository) Create(ctx context.Context, event *entity.PaymentEvent) error {
	query := `
		INSERT INTO payment_events (
			attempt_id, event_type, event_trigger, old_status, new_status,
			gateway_event_id, failure_code, failure_reason, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.conn(ctx).ExecContext(ctx, query,
		event.AttemptID,
		event.EventType,
		event.Trigger,
		nullableStringValue(event.OldStatus),
		event.NewStatus,
		nullableStringValue(event.GatewayEventID),
		nullableStringValue(event.FailureCode),
		nullableStringValue(event.FailureReason),
		event.CreatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	event.ID = uint64(id)

	return nil
}
