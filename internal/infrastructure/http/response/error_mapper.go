package response

import (
	"errors"
	"net/http"

	domainErrors "github.com/yuzvak/checkout-service/internal/domain/errors"
	"github.com/yuzvak/checkout-service/internal/domain/notification"
)

type errorMapping struct {
	err        error
	httpStatus int
	status     Status
	message    string
}

// errorMappings is checked in order; the first match wins.
var errorMappings = []errorMapping{
	{
		err:        domainErrors.ErrSessionNotFound,
		httpStatus: http.StatusNotFound,
		status:     StatusNotFound,
		message:    "Checkout session not found",
	},
	{
		err:        domainErrors.ErrSessionClosed,
		httpStatus: http.StatusGone,
		status:     StatusGone,
		message:    "Checkout session closed",
	},
	{
		err:        domainErrors.ErrStaleIntent,
		httpStatus: http.StatusConflict,
		status:     StatusConflict,
		message:    "Payment form is out of date, the cart total changed",
	},
	{
		err:        domainErrors.ErrNotAwaitingConfirmation,
		httpStatus: http.StatusConflict,
		status:     StatusConflict,
		message:    "Checkout is not waiting for payment",
	},
	{
		err:        domainErrors.ErrNotAwaitingResolution,
		httpStatus: http.StatusConflict,
		status:     StatusConflict,
		message:    "Checkout is not waiting for a payment result",
	},
	{
		err:        domainErrors.ErrPaymentMismatch,
		httpStatus: http.StatusBadRequest,
		status:     StatusError,
		message:    "Payment does not belong to this checkout",
	},
	{
		err:        domainErrors.ErrEmptyCart,
		httpStatus: http.StatusBadRequest,
		status:     StatusError,
		message:    "Cart is empty",
	},
	{
		err:        domainErrors.ErrCartUnavailable,
		httpStatus: http.StatusServiceUnavailable,
		status:     StatusServiceUnavailable,
		message:    "Cart could not be loaded",
	},
	{
		err:        notification.ErrInvalidEvent,
		httpStatus: http.StatusBadRequest,
		status:     StatusValidationError,
		message:    "Invalid cart event",
	},
}

func MapDomainError(err error) (int, *ErrorResponse) {
	for _, mapping := range errorMappings {
		if errors.Is(err, mapping.err) {
			return mapping.httpStatus, Error(mapping.status, mapping.message, err.Error())
		}
	}

	return http.StatusInternalServerError, Error(StatusInternalError, "Internal server error")
}

func WriteDomainError(w http.ResponseWriter, err error) {
	status, body := MapDomainError(err)
	WriteJSON(w, status, body)
}
