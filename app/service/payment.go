package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-booking-payments/app/entity"
	"github.com/vibast-solutions/ms-go-booking-payments/app/factory"
	"github.com/vibast-solutions/ms-go-booking-payments/app/notification"
	"github.com/vibast-solutions/ms-go-booking-payments/app/provider"
	"github.com/vibast-solutions/ms-go-booking-payments/app/repository"
	"github.com/vibast-solutions/ms-go-booking-payments/config"
)

const (
	defaultBatchSize       = int32(100)
	defaultFollowUpTimeout = time.Minute
)

// Triggers recorded on payment events.
const (
	TriggerCreate  = "create_intent"
	TriggerConfirm = "confirm"
	TriggerWebhook = "webhook"
	TriggerRefund  = "refund"
	TriggerJob     = "reconcile_job"
	TriggerManual  = "manual"
)

type createIntentRequest interface {
	GetBookingId() uint64
	GetQuoteId() uint64
	GetEmail() string
	GetAmount() int64
	GetCurrency() string
}

type confirmPaymentRequest interface {
	GetIntentId() string
	GetBookingId() uint64
	GetQuoteId() uint64
	GetEmail() string
}

type refundPaymentRequest interface {
	GetPaymentId() uint64
	GetIntentId() string
	GetReason() string
}

type paymentAttemptRepository interface {
	Create(ctx context.Context, attempt *entity.PaymentAttempt) error
	CompareAndUpdate(ctx context.Context, attempt *entity.PaymentAttempt, expectedStatus string) (bool, error)
	MarkWebhookReceived(ctx context.Context, intentID string, at time.Time) error
	FindByIntentID(ctx context.Context, intentID string) (*entity.PaymentAttempt, error)
	FindByID(ctx context.Context, id uint64) (*entity.PaymentAttempt, error)
	ListForReconcile(ctx context.Context, before time.Time, limit int32) ([]*entity.PaymentAttempt, error)
}

type paymentEventRepository interface {
	Create(ctx context.Context, event *entity.PaymentEvent) error
}

type webhookEventRepository interface {
	Create(ctx context.Context, event *entity.WebhookEvent) error
	FindByEventID(ctx context.Context, eventID string) (*entity.WebhookEvent, error)
	UpdateStatus(ctx context.Context, eventID, status string, errText *string, at time.Time) error
}

type ownerRepository interface {
	FindOwner(ctx context.Context, ref entity.OwnerRef) (*entity.Owner, error)
	UpdatePaymentOutcome(ctx context.Context, ref entity.OwnerRef, outcome entity.OwnerOutcome) (bool, error)
}

type txManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type notifier interface {
	Send(ctx context.Context, n notification.Notification) error
}

type referralApplier interface {
	ApplyIfEligible(ctx context.Context, attempt *entity.PaymentAttempt) error
}

// Settings carries the configuration the payment service reads.
type Settings struct {
	Payments   config.PaymentsConfig
	AdminRole  string
	AdminEmail string
}

// Caller is the resolved identity of an HTTP caller. A nil *Caller is a guest.
type Caller struct {
	UserID string
	Email  string
	Role   string
}

type PaymentService struct {
	attemptRepo paymentAttemptRepository
	eventRepo   paymentEventRepository
	webhookRepo webhookEventRepository
	ownerRepo   ownerRepository
	tx          txManager
	gateways    *provider.Registry
	notifier    notifier
	referrals   referralApplier
	settings    Settings
	logger      logrus.FieldLogger

	followUps sync.WaitGroup
	wait      func(ctx context.Context, d time.Duration) error
	now       func() time.Time
}

func NewPaymentService(
	attemptRepo paymentAttemptRepository,
	eventRepo paymentEventRepository,
	webhookRepo webhookEventRepository,
	ownerRepo ownerRepository,
	tx txManager,
	gateways *provider.Registry,
	notifier notifier,
	referrals referralApplier,
	settings Settings,
) *PaymentService {
	if settings.AdminRole == "" {
		settings.AdminRole = "admin"
	}
	settings.Payments.DefaultCurrency = strings.ToUpper(strings.TrimSpace(settings.Payments.DefaultCurrency))

	return &PaymentService{
		attemptRepo: attemptRepo,
		eventRepo:   eventRepo,
		webhookRepo: webhookRepo,
		ownerRepo:   ownerRepo,
		tx:          tx,
		gateways:    gateways,
		notifier:    notifier,
		referrals:   referrals,
		settings:    settings,
		logger:      factory.NewModuleLogger("payment-service"),
		wait:        sleepContext,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

type CreateIntentResult struct {
	IntentID     string
	ClientSecret string
	Attempt      *entity.PaymentAttempt
}

// CreateIntent validates the owner, caller and price before the gateway is
// contacted, then records a pending attempt for the new intent.
func (s *PaymentService) CreateIntent(ctx context.Context, caller *Caller, req createIntentRequest) (*CreateIntentResult, error) {
	ref, err := ownerRefFromRequest(req.GetBookingId(), req.GetQuoteId(), req.GetEmail())
	if err != nil {
		return nil, err
	}
	if req.GetAmount() <= 0 {
		return nil, fmt.Errorf("%w: amount must be > 0", ErrInvalidRequest)
	}
	currency := strings.ToUpper(strings.TrimSpace(req.GetCurrency()))
	if currency == "" {
		currency = s.settings.Payments.DefaultCurrency
	}
	if len(currency) != 3 {
		return nil, fmt.Errorf("%w: currency must be 3 letters", ErrInvalidRequest)
	}

	owner, err := s.authorizeOwner(ctx, caller, ref)
	if err != nil {
		return nil, err
	}
	if owner.IsPaid() {
		return nil, ErrAlreadyPaid
	}
	if owner.Status == entity.OwnerStatusCancelled {
		return nil, fmt.Errorf("%w: %s is cancelled", ErrInvalidStatus, owner.Kind)
	}
	if req.GetAmount() != owner.ExpectedAmountMinor {
		return nil, ErrAmountMismatch
	}
	if !strings.EqualFold(currency, owner.Currency) {
		return nil, ErrCurrencyMismatch
	}

	gateway, err := s.gateways.Default()
	if err != nil {
		return nil, ErrGatewayUnavailable
	}

	metadata := map[string]string{provider.MetadataOwnerKind: owner.Kind}
	if owner.Kind == entity.OwnerKindBooking {
		metadata[provider.MetadataBookingID] = strconv.FormatUint(owner.ID, 10)
	} else {
		metadata[provider.MetadataQuoteID] = strconv.FormatUint(owner.ID, 10)
	}
	if owner.Email != "" {
		metadata[provider.MetadataEmail] = strings.ToLower(owner.Email)
	}
	if owner.UserID != nil {
		metadata[provider.MetadataUserID] = *owner.UserID
	}

	intent, err := gateway.CreateIntent(ctx, &provider.CreateIntentInput{
		AmountMinor:    owner.ExpectedAmountMinor,
		Currency:       strings.ToUpper(owner.Currency),
		ReceiptEmail:   owner.Email,
		Metadata:       metadata,
		IdempotencyKey: fmt.Sprintf("intent-%s-%d-%s", owner.Kind, owner.ID, uuid.NewString()),
	})
	if err != nil {
		return nil, mapGatewayError(err)
	}

	now := s.now()
	attempt := &entity.PaymentAttempt{
		IntentID:    intent.ID,
		OwnerKind:   owner.Kind,
		Email:       normalizeOptionalString(strings.ToLower(owner.Email)),
		UserID:      owner.UserID,
		AmountMinor: owner.ExpectedAmountMinor,
		Currency:    strings.ToUpper(owner.Currency),
		Status:      entity.AttemptStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	setOwnerID(attempt, owner.Kind, owner.ID)

	if err := s.attemptRepo.Create(ctx, attempt); err != nil {
		if !errors.Is(err, repository.ErrAttemptAlreadyExists) {
			return nil, err
		}
		// A webhook for this intent was processed before the insert.
		existing, findErr := s.attemptRepo.FindByIntentID(ctx, intent.ID)
		if findErr != nil {
			return nil, findErr
		}
		if existing == nil {
			return nil, err
		}
		attempt = existing
	} else {
		s.recordEvent(ctx, &entity.PaymentEvent{
			AttemptID: attempt.ID,
			EventType: "intent_created",
			Trigger:   TriggerCreate,
			NewStatus: attempt.Status,
			CreatedAt: now,
		})
	}

	s.logger.WithFields(logrus.Fields{
		"intent_id":  intent.ID,
		"payment_id": attempt.ID,
		"owner_kind": owner.Kind,
		"owner_id":   owner.ID,
	}).Info("payment_intent_created")

	return &CreateIntentResult{
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		Attempt:      attempt,
	}, nil
}

type ConfirmResult struct {
	Success        bool
	Status         string
	Outcome        string
	GatewayStatus  string
	Attempt        *entity.PaymentAttempt
	FailureCode    string
	FailureMessage string
}

// ConfirmPayment is the client-driven trigger of the reconciliation engine.
// A non-terminal gateway status is reported, not returned as an error.
func (s *PaymentService) ConfirmPayment(ctx context.Context, caller *Caller, req confirmPaymentRequest) (*ConfirmResult, error) {
	intentID := strings.TrimSpace(req.GetIntentId())
	if intentID == "" {
		return nil, fmt.Errorf("%w: intent id is required", ErrInvalidRequest)
	}

	attempt, err := s.attemptRepo.FindByIntentID(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if attempt == nil {
		return nil, ErrPaymentNotFound
	}
	if err := s.authorizeConfirm(caller, attempt, req); err != nil {
		return nil, err
	}

	res, err := s.Reconcile(ctx, ReconcileInput{IntentID: intentID, Trigger: TriggerConfirm})
	if err != nil {
		return nil, err
	}

	out := &ConfirmResult{
		Success:        res.Attempt.Status == entity.AttemptStatusSucceeded,
		Status:         res.Attempt.Status,
		Outcome:        res.Outcome,
		GatewayStatus:  res.GatewayStatus,
		Attempt:        res.Attempt,
		FailureCode:    res.FailureCode,
		FailureMessage: res.FailureMessage,
	}
	if out.FailureCode == "" && res.Attempt.Status == entity.AttemptStatusFailed {
		out.FailureCode = derefString(res.Attempt.FailureCode)
		out.FailureMessage = derefString(res.Attempt.FailureReason)
	}
	return out, nil
}

type RefundResult struct {
	RefundID    string
	AmountMinor int64
	Currency    string
	Attempt     *entity.PaymentAttempt
}

// RefundPayment refunds a succeeded attempt in full. Only administrators may
// refund. Repeating a refund returns the recorded refund.
func (s *PaymentService) RefundPayment(ctx context.Context, caller *Caller, req refundPaymentRequest) (*RefundResult, error) {
	if caller == nil {
		return nil, ErrUnauthenticated
	}
	if !s.isAdmin(caller) {
		return nil, ErrForbidden
	}

	attempt, err := s.findAttempt(ctx, req.GetPaymentId(), req.GetIntentId())
	if err != nil {
		return nil, err
	}

	switch attempt.Status {
	case entity.AttemptStatusRefunded:
		return refundResult(attempt), nil
	case entity.AttemptStatusSucceeded:
	default:
		return nil, fmt.Errorf("%w: only succeeded payments can be refunded, payment is %s", ErrInvalidStatus, attempt.Status)
	}

	gateway, err := s.gateways.Default()
	if err != nil {
		return nil, ErrGatewayUnavailable
	}

	reason := strings.TrimSpace(req.GetReason())
	refund, err := gateway.CreateRefund(ctx, attempt.IntentID, reason, "refund-"+attempt.IntentID)
	if err != nil {
		return nil, mapGatewayError(err)
	}

	now := s.now()
	updated := *attempt
	updated.Status = entity.AttemptStatusRefunded
	updated.RefundID = normalizeOptionalString(refund.ID)
	updated.RefundAmount = refund.AmountMinor
	if updated.RefundAmount <= 0 {
		updated.RefundAmount = attempt.AmountMinor
	}
	updated.RefundReason = normalizeOptionalString(reason)
	updated.RefundedAt = &now
	updated.UpdatedAt = now

	applied, err := s.commitTransition(ctx, attempt, &updated, TriggerRefund, "", "payment_refunded")
	if err != nil {
		return nil, err
	}
	if !applied {
		// A charge.refunded webhook settled the attempt first.
		current, err := s.attemptRepo.FindByID(ctx, attempt.ID)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, ErrPaymentNotFound
		}
		return refundResult(current), nil
	}

	s.logger.WithField("payment_id", updated.ID).WithField("intent_id", updated.IntentID).Info("payment_refunded")
	s.scheduleFollowUps(ctx, &updated)

	return refundResult(&updated), nil
}

// GetPayment returns a payment visible to caller.
func (s *PaymentService) GetPayment(ctx context.Context, caller *Caller, id uint64) (*entity.PaymentAttempt, error) {
	if caller == nil {
		return nil, ErrUnauthenticated
	}
	attempt, err := s.findAttempt(ctx, id, "")
	if err != nil {
		return nil, err
	}
	if s.isAdmin(caller) {
		return attempt, nil
	}
	if attempt.UserID != nil && *attempt.UserID == caller.UserID {
		return attempt, nil
	}
	if attempt.UserID == nil && attempt.Email != nil && entity.EmailsMatch(caller.Email, *attempt.Email) {
		return attempt, nil
	}
	return nil, ErrForbidden
}

// FindPayment looks a payment up by id or intent id without an ownership
// check. It backs the internal endpoints.
func (s *PaymentService) FindPayment(ctx context.Context, id uint64, intentID string) (*entity.PaymentAttempt, error) {
	return s.findAttempt(ctx, id, intentID)
}

// WaitFollowUps blocks until scheduled notifications and referral credits
// have finished.
func (s *PaymentService) WaitFollowUps() {
	s.followUps.Wait()
}

func (s *PaymentService) findAttempt(ctx context.Context, id uint64, intentID string) (*entity.PaymentAttempt, error) {
	var attempt *entity.PaymentAttempt
	var err error
	switch {
	case id > 0:
		attempt, err = s.attemptRepo.FindByID(ctx, id)
	case strings.TrimSpace(intentID) != "":
		attempt, err = s.attemptRepo.FindByIntentID(ctx, intentID)
	default:
		return nil, fmt.Errorf("%w: payment id is required", ErrInvalidRequest)
	}
	if err != nil {
		return nil, err
	}
	if attempt == nil {
		return nil, ErrPaymentNotFound
	}
	return attempt, nil
}

func (s *PaymentService) authorizeOwner(ctx context.Context, caller *Caller, ref entity.OwnerRef) (*entity.Owner, error) {
	if ref.Kind == entity.OwnerKindBooking && caller == nil {
		return nil, ErrUnauthenticated
	}

	owner, err := s.ownerRepo.FindOwner(ctx, ref)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, ErrOwnerNotFound
	}

	switch ref.Kind {
	case entity.OwnerKindBooking:
		if s.isAdmin(caller) {
			return owner, nil
		}
		if owner.UserID == nil || *owner.UserID != caller.UserID {
			return nil, ErrForbidden
		}
	case entity.OwnerKindQuote:
		if !entity.EmailsMatch(ref.Email, owner.Email) {
			return nil, ErrForbidden
		}
	}
	return owner, nil
}

func (s *PaymentService) authorizeConfirm(caller *Caller, attempt *entity.PaymentAttempt, req confirmPaymentRequest) error {
	if req.GetBookingId() > 0 || req.GetQuoteId() > 0 {
		ref, err := ownerRefFromRequest(req.GetBookingId(), req.GetQuoteId(), req.GetEmail())
		if err != nil {
			return err
		}
		owner := attempt.Owner()
		if ref.Kind != owner.Kind || ref.ID != owner.ID {
			return ErrForbidden
		}
	}

	if s.isAdmin(caller) {
		return nil
	}

	switch attempt.OwnerKind {
	case entity.OwnerKindBooking:
		if caller == nil {
			return ErrUnauthenticated
		}
		if attempt.UserID == nil || *attempt.UserID != caller.UserID {
			return ErrForbidden
		}
	case entity.OwnerKindQuote:
		email := req.GetEmail()
		if email == "" && caller != nil {
			email = caller.Email
		}
		if attempt.Email == nil || !entity.EmailsMatch(email, *attempt.Email) {
			return ErrForbidden
		}
	default:
		return ErrForbidden
	}
	return nil
}

func (s *PaymentService) isAdmin(caller *Caller) bool {
	return caller != nil && caller.Role != "" && caller.Role == s.settings.AdminRole
}

func (s *PaymentService) batchSize() int32 {
	if s.settings.Payments.JobBatchSize > 0 {
		return s.settings.Payments.JobBatchSize
	}
	return defaultBatchSize
}

func (s *PaymentService) recordEvent(ctx context.Context, event *entity.PaymentEvent) {
	if err := s.eventRepo.Create(ctx, event); err != nil {
		s.logger.WithError(err).WithField("payment_id", event.AttemptID).Warn("Failed to record payment event")
	}
}

func ownerRefFromRequest(bookingID, quoteID uint64, email string) (entity.OwnerRef, error) {
	var ref entity.OwnerRef
	switch {
	case bookingID > 0 && quoteID > 0:
		return ref, fmt.Errorf("%w: %v", ErrInvalidRequest, entity.ErrInvalidOwnerRef)
	case bookingID > 0:
		ref = entity.BookingRef(bookingID)
	case quoteID > 0:
		ref = entity.QuoteRef(quoteID, email)
	}
	if err := ref.Validate(); err != nil {
		return ref, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return ref, nil
}

func setOwnerID(attempt *entity.PaymentAttempt, kind string, id uint64) {
	ownerID := id
	if kind == entity.OwnerKindBooking {
		attempt.BookingID = &ownerID
		return
	}
	attempt.QuoteID = &ownerID
}

func refundResult(attempt *entity.PaymentAttempt) *RefundResult {
	return &RefundResult{
		RefundID:    derefString(attempt.RefundID),
		AmountMinor: attempt.RefundAmount,
		Currency:    attempt.Currency,
		Attempt:     attempt,
	}
}

func mapGatewayError(err error) error {
	switch {
	case errors.Is(err, provider.ErrTransientNetwork):
		return fmt.Errorf("%w: %v", ErrGatewayTransient, err)
	case errors.Is(err, provider.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrPaymentNotFound, err)
	case errors.Is(err, provider.ErrInvalidRequest):
		return fmt.Errorf("%w: %v", ErrGatewayInvalidRequest, err)
	case errors.Is(err, provider.ErrAuthFailure):
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	default:
		return err
	}
}

func normalizeOptionalString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
