package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/stripe/stripe-go/v79"
)

// Error kinds. Only ErrTransientNetwork is retryable.
var (
	ErrInvalidRequest   = errors.New("gateway invalid request")
	ErrAuthFailure      = errors.New("gateway authentication failure")
	ErrNotFound         = errors.New("gateway resource not found")
	ErrTransientNetwork = errors.New("gateway transient failure")
	ErrSignatureInvalid = errors.New("webhook signature invalid")
	ErrNotConfigured    = errors.New("gateway is not configured")
)

type Error struct {
	Op         string
	Kind       error
	Code       string
	Message    string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %v (code=%s status=%d): %s", e.Op, e.Kind, e.Code, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientNetwork)
}

func classifyError(op string, err error) error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{Op: op, Kind: ErrTransientNetwork, Err: err}
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return &Error{
			Op:         op,
			Kind:       kindForStripeError(stripeErr),
			Code:       string(stripeErr.Code),
			Message:    stripeErr.Msg,
			StatusCode: stripeErr.HTTPStatusCode,
			Err:        err,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &Error{Op: op, Kind: ErrTransientNetwork, Err: err}
	}

	// Unrecognised failures never mark a payment as failed; treat them as retryable.
	return &Error{Op: op, Kind: ErrTransientNetwork, Err: err}
}

func kindForStripeError(err *stripe.Error) error {
	status := err.HTTPStatusCode
	switch {
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return ErrTransientNetwork
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrAuthFailure
	case status == http.StatusNotFound || err.Code == stripe.ErrorCodeResourceMissing:
		return ErrNotFound
	case status >= http.StatusBadRequest:
		return ErrInvalidRequest
	case err.Type == stripe.ErrorTypeAPI:
		return ErrTransientNetwork
	default:
		return ErrInvalidRequest
	}
}
