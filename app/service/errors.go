package service

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest        = errors.New("invalid request")
	ErrAmountMismatch        = fmt.Errorf("%w: amount does not match the expected price", ErrInvalidRequest)
	ErrCurrencyMismatch      = fmt.Errorf("%w: currency does not match the expected currency", ErrInvalidRequest)
	ErrUnauthenticated       = errors.New("authentication required")
	ErrForbidden             = errors.New("caller is not allowed to act on this payment")
	ErrOwnerNotFound         = errors.New("booking or quote not found")
	ErrAlreadyPaid           = errors.New("booking or quote is already paid")
	ErrPaymentNotFound       = errors.New("payment not found")
	ErrInvalidStatus         = errors.New("invalid status")
	ErrGatewayInvalidRequest = errors.New("payment gateway rejected the request")
	ErrGatewayTransient      = errors.New("payment gateway temporarily unavailable, try again")
	ErrGatewayUnavailable    = errors.New("payment gateway is not available")
	ErrSignatureInvalid      = errors.New("invalid webhook signature")
)
