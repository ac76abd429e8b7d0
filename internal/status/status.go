package status

import "errors"

// Validation errors. Caller faults, rejected immediately, never retried.
var (
	ErrInvalidAmount    = errors.New("payment: amount must be greater than zero")
	ErrUnknownPurpose   = errors.New("payment: unknown purpose")
	ErrInvalidSignature = errors.New("callback: signature verification failed")
)

// Transient infrastructure errors. Safe to retry with backoff.
var (
	ErrGatewayUnavailable = errors.New("gateway: unavailable")
)

// Business-rule violations. Terminal for the call, state stays intact.
var (
	ErrPaymentNotFound       = errors.New("payment: not found")
	ErrPaymentNotCompleted   = errors.New("payment: not completed")
	ErrNotRefundable         = errors.New("payment: not refundable")
	ErrRefundExceedsOriginal = errors.New("payment: refund exceeds remaining balance")

	ErrBookingNotFound = errors.New("booking: not found")
	ErrNotCancellable  = errors.New("booking: not cancellable")

	ErrCapacityExceeded = errors.New("inventory: capacity exceeded")

	ErrTamperedTicket      = errors.New("ticket: payload signature invalid")
	ErrTicketNotFound      = errors.New("ticket: not found")
	ErrAlreadyUsed         = errors.New("ticket: already used")
	ErrTicketCancelled     = errors.New("ticket: cancelled")
	ErrCheckinNotOpen      = errors.New("checkin: window not open yet")
	ErrCheckinWindowClosed = errors.New("checkin: window closed")

	ErrValidatorUnknown  = errors.New("validator: unknown or inactive")
	ErrValidatorBadKey   = errors.New("validator: device key mismatch")
	ErrEventNotFound     = errors.New("event: not found")
	ErrDuplicateConflict = errors.New("store: conflicting record exists")
)

// Retryable reports whether the caller may retry the operation as-is.
func Retryable(err error) bool {
	return errors.Is(err, ErrGatewayUnavailable)
}
