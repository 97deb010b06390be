package referral

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vibast-solutions/ms-go-booking-payments/app/entity"
	"github.com/vibast-solutions/ms-go-booking-payments/app/repository"
)

type fakeReferralRepo struct {
	mu        sync.Mutex
	referrers map[string]string
	credits   map[string]*entity.ReferralCredit
	balances  map[string]int64
	addErr    error
}

func newFakeReferralRepo() *fakeReferralRepo {
	return &fakeReferralRepo{
		referrers: map[string]string{},
		credits:   map[string]*entity.ReferralCredit{},
		balances:  map[string]int64{},
	}
}

func (r *fakeReferralRepo) FindReferrer(_ context.Context, party string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.referrers[party], nil
}

func (r *fakeReferralRepo) CreateCredit(_ context.Context, credit *entity.ReferralCredit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := credit.ReferrerID + "|" + credit.ReferredParty
	if _, ok := r.credits[key]; ok {
		return repository.ErrReferralCreditExists
	}
	r.credits[key] = credit
	return nil
}

func (r *fakeReferralRepo) AddPoints(_ context.Context, userID string, points int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.addErr != nil {
		return r.addErr
	}
	r.balances[userID] += points
	return nil
}

// fakeCounter lists the settled attempt ids of each party.
type fakeCounter map[string][]uint64

func (c fakeCounter) CountSettledForPartyBefore(_ context.Context, party string, beforeID uint64) (int64, error) {
	var n int64
	for _, id := range c[party] {
		if id < beforeID {
			n++
		}
	}
	return n, nil
}

// fakeTx serializes callbacks and drops credits written by a failed callback.
type fakeTx struct {
	mu   sync.Mutex
	repo *fakeReferralRepo
}

func (tx *fakeTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	tx.repo.mu.Lock()
	snapshot := make(map[string]*entity.ReferralCredit, len(tx.repo.credits))
	for k, v := range tx.repo.credits {
		snapshot[k] = v
	}
	tx.repo.mu.Unlock()

	if err := fn(ctx); err != nil {
		tx.repo.mu.Lock()
		tx.repo.credits = snapshot
		tx.repo.mu.Unlock()
		return err
	}
	return nil
}

func succeededAttempt(id uint64, userID string) *entity.PaymentAttempt {
	return &entity.PaymentAttempt{ID: id, UserID: &userID, Status: entity.AttemptStatusSucceeded}
}

func TestApplyIfEligibleAwardsEachReferredPartyOnce(t *testing.T) {
	repo := newFakeReferralRepo()
	repo.referrers["user-a"] = "referrer-1"
	repo.referrers["user-b"] = "referrer-1"
	counter := fakeCounter{"user-a": {1}, "user-b": {2}}
	applier := NewApplier(repo, counter, &fakeTx{repo: repo}, 100)

	require.NoError(t, applier.ApplyIfEligible(context.Background(), succeededAttempt(1, "user-a")))
	require.NoError(t, applier.ApplyIfEligible(context.Background(), succeededAttempt(2, "user-b")))

	assert.Equal(t, int64(200), repo.balances["referrer-1"])
	assert.Len(t, repo.credits, 2)
}

func TestApplyIfEligibleIsIdempotentUnderConcurrency(t *testing.T) {
	repo := newFakeReferralRepo()
	repo.referrers["user-a"] = "referrer-1"
	applier := NewApplier(repo, fakeCounter{"user-a": {1}}, &fakeTx{repo: repo}, 100)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, applier.ApplyIfEligible(context.Background(), succeededAttempt(1, "user-a")))
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(100), repo.balances["referrer-1"])
	assert.Len(t, repo.credits, 1)
}

func TestApplyIfEligibleSkipsIneligible(t *testing.T) {
	repo := newFakeReferralRepo()
	repo.referrers["user-a"] = "referrer-1"
	repo.referrers["self"] = "self"
	applier := NewApplier(repo, fakeCounter{"user-a": {1, 5}, "user-c": {2}, "self": {3}}, &fakeTx{repo: repo}, 100)

	require.NoError(t, applier.ApplyIfEligible(context.Background(), succeededAttempt(5, "user-a")))
	require.NoError(t, applier.ApplyIfEligible(context.Background(), succeededAttempt(2, "user-c")))
	require.NoError(t, applier.ApplyIfEligible(context.Background(), succeededAttempt(3, "self")))

	failed := succeededAttempt(1, "user-a")
	failed.Status = entity.AttemptStatusFailed
	require.NoError(t, applier.ApplyIfEligible(context.Background(), failed))

	assert.Empty(t, repo.credits)
	assert.Empty(t, repo.balances)
}

func TestApplyIfEligibleGuestPartyIsEmail(t *testing.T) {
	repo := newFakeReferralRepo()
	repo.referrers["guest@example.com"] = "referrer-2"
	applier := NewApplier(repo, fakeCounter{"guest@example.com": {9}}, &fakeTx{repo: repo}, 50)

	email := "Guest@Example.com"
	attempt := &entity.PaymentAttempt{ID: 9, Email: &email, Status: entity.AttemptStatusSucceeded}
	require.NoError(t, applier.ApplyIfEligible(context.Background(), attempt))

	assert.Equal(t, int64(50), repo.balances["referrer-2"])
}

func TestApplyIfEligibleRollsBackCreditWhenPointsFail(t *testing.T) {
	repo := newFakeReferralRepo()
	repo.referrers["user-a"] = "referrer-1"
	repo.addErr = errors.New("deadlock")
	applier := NewApplier(repo, fakeCounter{"user-a": {1}}, &fakeTx{repo: repo}, 100)

	err := applier.ApplyIfEligible(context.Background(), succeededAttempt(1, "user-a"))
	require.Error(t, err)
	assert.Empty(t, repo.credits)
}

func TestApplyIfEligibleBackToBackPaymentsCreditOnce(t *testing.T) {
	repo := newFakeReferralRepo()
	repo.referrers["user-a"] = "referrer-1"
	// Both payments are committed before either follow-up runs.
	counter := fakeCounter{"user-a": {1, 2}}
	applier := NewApplier(repo, counter, &fakeTx{repo: repo}, 100)

	require.NoError(t, applier.ApplyIfEligible(context.Background(), succeededAttempt(2, "user-a")))
	require.NoError(t, applier.ApplyIfEligible(context.Background(), succeededAttempt(1, "user-a")))

	assert.Equal(t, int64(100), repo.balances["referrer-1"])
	require.Len(t, repo.credits, 1)
	assert.Equal(t, uint64(1), repo.credits["referrer-1|user-a"].PaymentAttemptID)
}
