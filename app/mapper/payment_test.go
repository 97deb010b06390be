package mapper

import (
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-booking-payments/app/entity"
)

func TestPaymentToResponse(t *testing.T) {
	bookingID := uint64(42)
	brand := "visa"
	last4 := "4242"
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	processed := created.Add(time.Minute)

	resp := PaymentToResponse(&entity.PaymentAttempt{
		ID:          7,
		IntentID:    "pi_1",
		OwnerKind:   entity.OwnerKindBooking,
		BookingID:   &bookingID,
		AmountMinor: 15000,
		Currency:    "GBP",
		Status:      entity.AttemptStatusSucceeded,
		CardBrand:   &brand,
		CardLast4:   &last4,
		CreatedAt:   created,
		ProcessedAt: &processed,
		UpdatedAt:   processed,
	})

	if resp.Id != 7 || resp.BookingId != 42 || resp.QuoteId != 0 {
		t.Fatalf("unexpected ids: %+v", resp)
	}
	if resp.CardBrand != "visa" || resp.CardLast4 != "4242" {
		t.Fatalf("unexpected card details: %+v", resp)
	}
	if resp.CreatedAt != "2026-03-01T10:00:00Z" || resp.ProcessedAt != "2026-03-01T10:01:00Z" {
		t.Fatalf("unexpected timestamps: %s %s", resp.CreatedAt, resp.ProcessedAt)
	}
	if resp.RefundedAt != "" {
		t.Fatalf("expected empty refunded_at, got %q", resp.RefundedAt)
	}

	if PaymentToResponse(nil) != nil {
		t.Fatal("expected nil for nil attempt")
	}
	if fields := PaymentToFields(nil); len(fields) != 0 {
		t.Fatal("expected empty fields for nil attempt")
	}
	if fields := PaymentToFields(&entity.PaymentAttempt{ID: 3, Status: "pending"}); fields["id"] != float64(3) || fields["status"] != "pending" {
		t.Fatalf("unexpected fields: %+v", fields)
	}
}
