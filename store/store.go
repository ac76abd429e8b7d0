// Package store persists payments, bookings and tickets. All status
// transitions are single-statement conditional updates so concurrent
// writers race safely: the loser observes a false return and re-reads.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"ticketflow/models"
)

type PaymentStore interface {
	CreatePayment(ctx context.Context, p *models.Payment) error
	PaymentByID(ctx context.Context, id string) (*models.Payment, error)
	PaymentByExternalRef(ctx context.Context, externalRef string) (*models.Payment, error)

	// SetPaymentIntent records the gateway reference once the intent
	// exists. The pending record is kept even when this never happens.
	SetPaymentIntent(ctx context.Context, id, externalRef, qrCode string) error

	// CompletePayment applies pending -> completed. False means the
	// payment already left pending.
	CompletePayment(ctx context.Context, id string, at time.Time) (bool, error)

	// FailPayment applies pending -> failed.
	FailPayment(ctx context.Context, id, reason string) (bool, error)

	// MarkPaymentRefunded moves a refundable payment to the given
	// refund status while advancing the refunded running total from
	// prev to refunded. False when either the status or the total
	// moved concurrently.
	MarkPaymentRefunded(ctx context.Context, id string, from []string, to string, prev, refunded decimal.Decimal) (bool, error)

	// RefundablePaymentsWithCancelledBooking lists captured booking
	// payments whose booking was cancelled but whose compensating
	// refund has not landed yet.
	RefundablePaymentsWithCancelledBooking(ctx context.Context, limit int) ([]*models.Payment, error)

	// CompletedPaymentsWithoutBooking lists captured booking payments
	// that have not been materialized yet. Reconciler catch-up path.
	CompletedPaymentsWithoutBooking(ctx context.Context, limit int) ([]*models.Payment, error)

	// FailStalePending expires pending payments older than the cutoff.
	FailStalePending(ctx context.Context, cutoff time.Time, reason string) (int, error)
}

type BookingStore interface {
	// CreateBooking persists a booking. At most one booking may exist
	// per payment; a second insert returns ErrDuplicateConflict.
	CreateBooking(ctx context.Context, b *models.Booking) error
	BookingByID(ctx context.Context, id string) (*models.Booking, error)
	BookingByPayment(ctx context.Context, paymentID string) (*models.Booking, error)
	BookingsByPayer(ctx context.Context, payer string, limit int) ([]*models.Booking, error)

	// CompleteBooking applies confirmed -> completed.
	CompleteBooking(ctx context.Context, id string) (bool, error)

	// CancelBooking applies {pending, confirmed} -> cancelled.
	CancelBooking(ctx context.Context, id, reason string) (bool, error)

	// SetBookingTickets attaches the issued ticket numbers.
	SetBookingTickets(ctx context.Context, id string, ticketNumbers []string) error
}

type TicketStore interface {
	CreateTicket(ctx context.Context, t *models.Ticket) error
	TicketByNumber(ctx context.Context, number string) (*models.Ticket, error)
	TicketsByBooking(ctx context.Context, bookingID string) ([]*models.Ticket, error)

	// ConsumeTicket applies valid -> used, recording the consumption
	// metadata. Exactly one concurrent caller wins.
	ConsumeTicket(ctx context.Context, number string, usedAt time.Time, validatorID, gate string) (bool, error)

	// CancelTicket applies valid -> cancelled.
	CancelTicket(ctx context.Context, number string) (bool, error)
}

type EventStore interface {
	EventByID(ctx context.Context, id string) (*models.Event, error)

	// AdjustRemainingSeats moves the durable remaining-seats figure by
	// delta. The Redis counter stays authoritative for reservations;
	// this row is what reseeds it after a counter loss.
	AdjustRemainingSeats(ctx context.Context, id string, delta int) error
}

type ValidatorStore interface {
	ValidatorByID(ctx context.Context, id string) (*models.Validator, error)
}
