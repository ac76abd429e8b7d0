package handlers

import (
	"errors"

	"github.com/pocketbase/pocketbase/apis"

	"ticketflow/internal/status"
)

// toAPIError maps service errors onto HTTP responses. Transient
// failures become 503 so clients know a retry is worthwhile.
func toAPIError(err error) error {
	switch {
	case errors.Is(err, status.ErrPaymentNotFound),
		errors.Is(err, status.ErrBookingNotFound),
		errors.Is(err, status.ErrTicketNotFound),
		errors.Is(err, status.ErrEventNotFound):
		return apis.NewNotFoundError(err.Error(), nil)

	case errors.Is(err, status.ErrInvalidAmount),
		errors.Is(err, status.ErrUnknownPurpose),
		errors.Is(err, status.ErrRefundExceedsOriginal):
		return apis.NewBadRequestError(err.Error(), nil)

	case errors.Is(err, status.ErrInvalidSignature),
		errors.Is(err, status.ErrValidatorUnknown),
		errors.Is(err, status.ErrValidatorBadKey):
		return apis.NewUnauthorizedError(err.Error(), nil)

	case errors.Is(err, status.ErrTamperedTicket):
		return apis.NewUnauthorizedError(err.Error(), nil)

	case errors.Is(err, status.ErrPaymentNotCompleted),
		errors.Is(err, status.ErrNotRefundable),
		errors.Is(err, status.ErrNotCancellable),
		errors.Is(err, status.ErrAlreadyUsed),
		errors.Is(err, status.ErrTicketCancelled),
		errors.Is(err, status.ErrCheckinNotOpen),
		errors.Is(err, status.ErrCheckinWindowClosed),
		errors.Is(err, status.ErrCapacityExceeded):
		return apis.NewApiError(409, err.Error(), nil)

	case errors.Is(err, status.ErrGatewayUnavailable):
		return apis.NewApiError(503, err.Error(), nil)

	default:
		return apis.NewInternalServerError("internal error", nil)
	}
}
