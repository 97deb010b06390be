package entity

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{AttemptStatusPending, AttemptStatusSucceeded, true},
		{AttemptStatusProcessing, AttemptStatusFailed, true},
		{AttemptStatusFailed, AttemptStatusSucceeded, true},
		{AttemptStatusSucceeded, AttemptStatusRefunded, true},
		{AttemptStatusSucceeded, AttemptStatusFailed, false},
		{AttemptStatusPending, AttemptStatusRefunded, false},
		{AttemptStatusRefunded, AttemptStatusSucceeded, false},
		{AttemptStatusCancelled, AttemptStatusProcessing, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestOwnerRefValidate(t *testing.T) {
	if err := BookingRef(7).Validate(); err != nil {
		t.Fatalf("expected booking ref to validate, got %v", err)
	}
	if err := QuoteRef(3, "").Validate(); err == nil {
		t.Fatal("expected quote ref without email to fail")
	}
	if err := (OwnerRef{}).Validate(); err == nil {
		t.Fatal("expected empty ref to fail")
	}
	if got := QuoteRef(3, " Guest@Example.COM ").Email; got != "guest@example.com" {
		t.Fatalf("expected normalized email, got %q", got)
	}
}

func TestReferredParty(t *testing.T) {
	user := "user-1"
	email := "Guest@Example.com"
	if got := (&PaymentAttempt{UserID: &user, Email: &email}).ReferredParty(); got != "user-1" {
		t.Fatalf("expected user id, got %q", got)
	}
	if got := (&PaymentAttempt{Email: &email}).ReferredParty(); got != "guest@example.com" {
		t.Fatalf("expected lower-cased email, got %q", got)
	}
}
