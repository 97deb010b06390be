package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-booking-payments/app/factory"
)

type DispatcherConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// Dispatcher sends notifications through the queue when one is configured
// and falls back to synchronous delivery otherwise.
type Dispatcher struct {
	transport Transport
	queue     Queue
	renderer  *Renderer
	cfg       DispatcherConfig
	logger    logrus.FieldLogger
	wait      func(ctx context.Context, d time.Duration) error
}

// NewDispatcher accepts a nil queue.
func NewDispatcher(transport Transport, queue Queue, renderer *Renderer, cfg DispatcherConfig) *Dispatcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	return &Dispatcher{
		transport: transport,
		queue:     queue,
		renderer:  renderer,
		cfg:       cfg,
		logger:    factory.NewModuleLogger("notification-dispatcher"),
		wait:      sleepContext,
	}
}

func (d *Dispatcher) Send(ctx context.Context, n Notification) error {
	if err := n.Validate(); err != nil {
		return err
	}

	logger := d.logger.WithField("kind", n.Kind).WithField("intent_id", n.Data.IntentID)
	if d.queue != nil {
		queued, err := d.queue.Enqueue(ctx, n)
		if err == nil {
			if !queued {
				logger.Info("Notification already queued, skipping duplicate")
			}
			return nil
		}
		logger.WithError(err).Warn("Notification queue unavailable, delivering synchronously")
	}

	return d.Deliver(ctx, n)
}

// Deliver renders and sends n with bounded retries on transient failures.
func (d *Dispatcher) Deliver(ctx context.Context, n Notification) error {
	logger := d.logger.WithField("kind", n.Kind).WithField("intent_id", n.Data.IntentID)

	msg, err := d.renderer.Render(n)
	if err != nil {
		d.reportFailure(ctx, n, 0, err)
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	delay := d.cfg.BaseDelay
	for attempt := 1; ; attempt++ {
		err := d.transport.Deliver(ctx, msg)
		if err == nil {
			logger.WithField("attempt", attempt).Info("notification_delivered")
			return nil
		}

		if !IsTransient(err) || attempt >= d.cfg.MaxAttempts {
			d.reportFailure(ctx, n, attempt, err)
			return fmt.Errorf("%w after %d attempt(s): %v", ErrDeliveryFailed, attempt, err)
		}

		logger.WithError(err).WithField("attempt", attempt).WithField("retry_in", delay.String()).Warn("Notification delivery failed, retrying")
		if waitErr := d.wait(ctx, delay); waitErr != nil {
			d.reportFailure(ctx, n, attempt, err)
			return fmt.Errorf("%w: %v", ErrDeliveryFailed, waitErr)
		}
		delay *= 2
	}
}

func (d *Dispatcher) reportFailure(ctx context.Context, n Notification, attempts int, err error) {
	d.logger.WithError(err).WithFields(logrus.Fields{
		"operator_alert": true,
		"kind":           n.Kind,
		"to":             n.To,
		"intent_id":      n.Data.IntentID,
		"attempts":       attempts,
		"retryable":      IsTransient(err),
	}).Error("notification_failed")

	if d.queue == nil {
		return
	}
	// The caller's ctx may already be done; the dead letter must still land.
	dlCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if dlErr := d.queue.DeadLetter(dlCtx, n, err.Error()); dlErr != nil {
		d.logger.WithError(dlErr).Warn("Failed to dead-letter notification")
	}
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
