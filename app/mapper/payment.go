package mapper

import (
	"time"

	"github.com/vibast-solutions/ms-go-booking-payments/app/entity"
	"github.com/vibast-solutions/ms-go-booking-payments/app/types"
)

func PaymentToResponse(item *entity.PaymentAttempt) *types.PaymentResponse {
	if item == nil {
		return nil
	}

	return &types.PaymentResponse{
		Id:              item.ID,
		IntentId:        item.IntentID,
		OwnerKind:       item.OwnerKind,
		BookingId:       derefUint64(item.BookingID),
		QuoteId:         derefUint64(item.QuoteID),
		Amount:          item.AmountMinor,
		Currency:        item.Currency,
		Status:          item.Status,
		CardBrand:       derefString(item.CardBrand),
		CardLast4:       derefString(item.CardLast4),
		FailureCode:     derefString(item.FailureCode),
		FailureMessage:  derefString(item.FailureReason),
		RefundId:        derefString(item.RefundID),
		RefundAmount:    item.RefundAmount,
		WebhookReceived: item.WebhookReceived,
		CreatedAt:       formatTime(item.CreatedAt),
		ProcessedAt:     formatOptionalTime(item.ProcessedAt),
		RefundedAt:      formatOptionalTime(item.RefundedAt),
		UpdatedAt:       formatTime(item.UpdatedAt),
	}
}

// PaymentToFields flattens a payment for the ops gRPC surface.
func PaymentToFields(item *entity.PaymentAttempt) map[string]any {
	resp := PaymentToResponse(item)
	if resp == nil {
		return map[string]any{}
	}
	return map[string]any{
		"id":               float64(resp.Id),
		"intent_id":        resp.IntentId,
		"owner_kind":       resp.OwnerKind,
		"booking_id":       float64(resp.BookingId),
		"quote_id":         float64(resp.QuoteId),
		"amount":           float64(resp.Amount),
		"currency":         resp.Currency,
		"status":           resp.Status,
		"card_brand":       resp.CardBrand,
		"card_last4":       resp.CardLast4,
		"failure_code":     resp.FailureCode,
		"refund_id":        resp.RefundId,
		"refund_amount":    float64(resp.RefundAmount),
		"webhook_received": resp.WebhookReceived,
		"created_at":       resp.CreatedAt,
		"updated_at":       resp.UpdatedAt,
	}
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func derefUint64(v *uint64) uint64 {
	if v == nil {
		return 0
	}
	return *v
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
