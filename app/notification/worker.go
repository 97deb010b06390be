package notification

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-booking-payments/app/factory"
)

// Worker drains the notification queue.
type Worker struct {
	queue       Queue
	dispatcher  *Dispatcher
	pollTimeout time.Duration
	logger      logrus.FieldLogger
}

func NewWorker(queue Queue, dispatcher *Dispatcher, pollTimeout time.Duration) *Worker {
	if pollTimeout <= 0 {
		pollTimeout = 5 * time.Second
	}
	return &Worker{
		queue:       queue,
		dispatcher:  dispatcher,
		pollTimeout: pollTimeout,
		logger:      factory.NewModuleLogger("notification-worker"),
	}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		if _, err := w.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.WithError(err).Error("Notification queue poll failed")
			if sleepContext(ctx, time.Second) != nil {
				return nil
			}
		}
	}
}

// RunOnce processes at most one queued notification and reports whether one
// was found. Delivery failures are reported by the dispatcher, not returned.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	n, err := w.queue.Dequeue(ctx, w.pollTimeout)
	if err != nil {
		return false, err
	}
	if n == nil {
		return false, nil
	}

	_ = w.dispatcher.Deliver(ctx, *n)
	return true, nil
}
