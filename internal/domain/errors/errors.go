package errors

import (
	"errors"
)

var (
	ErrConfigUnavailable               = errors.New("payment config unavailable")
	ErrIntentCreationFailed            = errors.New("payment intent creation failed")
	ErrPaymentDeclined                 = errors.New("payment declined")
	ErrOrderCreationFailed             = errors.New("order creation failed")
	ErrOrderCreationFailedAfterPayment = errors.New("order creation failed after payment")
	ErrEmptyCart                       = errors.New("cart is empty, nothing to checkout")

	ErrSessionNotFound         = errors.New("checkout session not found")
	ErrSessionClosed           = errors.New("checkout session closed")
	ErrStaleIntent             = errors.New("payment intent has been superseded")
	ErrNotAwaitingConfirmation = errors.New("checkout is not awaiting payment confirmation")
	ErrNotAwaitingResolution   = errors.New("checkout is not awaiting payment resolution")
	ErrPaymentMismatch         = errors.New("payment does not belong to this checkout")

	ErrCartUnavailable      = errors.New("cart could not be read")
	ErrReconciliationExists = errors.New("reconciliation already recorded for payment")
)
