package entity

import "time"

type ReferralCredit struct {
	ID uint64

	ReferrerID    string
	ReferredParty string

	PaymentAttemptID uint64
	PointsAwarded    int64

	CompletedAt time.Time
}
