package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"ticketflow/internal/status"
	"ticketflow/models"
	"ticketflow/monitoring"
	"ticketflow/store"
)

const (
	cancelReasonCapacity  = "capacity exhausted"
	cancelReasonRequested = "cancelled by payer"
)

// Inventory is the seat counter the orchestrator draws from.
type Inventory interface {
	Reserve(ctx context.Context, eventID string, quantity int) (int, error)
	Release(ctx context.Context, eventID string, quantity int) (int, error)
}

// BookingService materializes bookings out of completed payments and
// unwinds them on cancellation. One booking per payment, enforced by
// the store, keeps redelivered completions harmless.
type BookingService struct {
	bookings  store.BookingStore
	payments  *PaymentService
	inventory Inventory
	tickets   *TicketService
	notifier  Notifier
	monitor   *monitoring.Monitor
}

func NewBookingService(
	bookings store.BookingStore,
	payments *PaymentService,
	inventory Inventory,
	tickets *TicketService,
	notifier Notifier,
	monitor *monitoring.Monitor,
) *BookingService {
	return &BookingService{
		bookings:  bookings,
		payments:  payments,
		inventory: inventory,
		tickets:   tickets,
		notifier:  notifier,
		monitor:   monitor,
	}
}

// ConfirmBooking turns a completed booking payment into a completed
// booking with issued tickets. Safe to call repeatedly for the same
// payment: a booking stuck in confirmed from a partial issuance gets
// its ticket set topped up and finished. When capacity ran out between
// payment and confirmation, the booking lands cancelled and the
// payment is refunded in full.
func (s *BookingService) ConfirmBooking(ctx context.Context, paymentID string) (*models.Booking, error) {
	payment, err := s.payments.PaymentByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Purpose != models.PurposeBooking {
		return nil, fmt.Errorf("payment %s is not a booking payment", paymentID)
	}
	if payment.Status != models.PaymentCompleted {
		return nil, status.ErrPaymentNotCompleted
	}

	if existing, err := s.bookings.BookingByPayment(ctx, paymentID); err == nil {
		if existing.Status != models.BookingConfirmed {
			return existing, nil
		}
		// A previous attempt died between insert and completion; seats
		// are still held, so only the ticket set needs finishing.
		return s.materialize(ctx, existing)
	}

	if _, err := s.inventory.Reserve(ctx, payment.EventID, payment.Quantity); err != nil {
		if errors.Is(err, status.ErrCapacityExceeded) {
			return s.rejectOversold(ctx, payment)
		}
		return nil, err
	}

	booking := &models.Booking{
		Payer:     payment.Payer,
		EventID:   payment.EventID,
		PaymentID: payment.ID,
		Quantity:  payment.Quantity,
		Status:    models.BookingConfirmed,
	}

	if err := s.bookings.CreateBooking(ctx, booking); err != nil {
		// Lost the race against a concurrent confirmation; hand the
		// seats back and return the winner.
		if _, relErr := s.inventory.Release(ctx, payment.EventID, payment.Quantity); relErr != nil {
			log.Printf("release after duplicate booking for payment %s: %v\n", paymentID, relErr)
		}
		if errors.Is(err, status.ErrDuplicateConflict) {
			return s.bookings.BookingByPayment(ctx, paymentID)
		}
		return nil, err
	}

	return s.materialize(ctx, booking)
}

// materialize finishes a confirmed booking: issues the full ticket set,
// then flips confirmed to completed. Leaves the booking confirmed on a
// partial issuance so the operation stays retryable, and unwinds the
// issued tickets when a concurrent cancellation won the status race.
func (s *BookingService) materialize(ctx context.Context, booking *models.Booking) (*models.Booking, error) {
	issued, err := s.tickets.IssueTickets(ctx, booking)
	if err != nil {
		return nil, fmt.Errorf("issue tickets for booking %s: %w", booking.ID, err)
	}
	booking.TicketIDs = booking.TicketIDs[:0]
	for _, t := range issued {
		booking.TicketIDs = append(booking.TicketIDs, t.Number)
	}

	changed, err := s.bookings.CompleteBooking(ctx, booking.ID)
	if err != nil {
		return nil, err
	}
	if !changed {
		current, err := s.bookings.BookingByID(ctx, booking.ID)
		if err != nil {
			return nil, err
		}
		if current.Status == models.BookingCancelled {
			// A cancellation landed while the tickets were being
			// written; they must not stay admittable.
			if _, invErr := s.tickets.InvalidateBooking(ctx, booking.ID); invErr != nil {
				log.Printf("invalidate tickets for cancelled booking %s: %v\n", booking.ID, invErr)
			}
		}
		return current, nil
	}

	booking.Status = models.BookingCompleted
	s.monitor.TrackBooking("confirmed")
	s.notifier.BookingConfirmed(booking)

	return booking, nil
}

// rejectOversold records the oversell outcome and pushes the money
// back. A failed refund leaves the payment completed for the
// reconciler to retry; the booking stays cancelled either way.
func (s *BookingService) rejectOversold(ctx context.Context, payment *models.Payment) (*models.Booking, error) {
	booking := &models.Booking{
		Payer:        payment.Payer,
		EventID:      payment.EventID,
		PaymentID:    payment.ID,
		Quantity:     payment.Quantity,
		Status:       models.BookingCancelled,
		CancelReason: cancelReasonCapacity,
	}

	if err := s.bookings.CreateBooking(ctx, booking); err != nil {
		if errors.Is(err, status.ErrDuplicateConflict) {
			return s.bookings.BookingByPayment(ctx, payment.ID)
		}
		return nil, err
	}

	s.monitor.TrackBooking("oversold")

	if _, err := s.payments.Refund(ctx, payment.ID, payment.RemainingRefundable()); err != nil {
		log.Printf("compensating refund for payment %s: %v\n", payment.ID, err)
	}

	s.notifier.BookingCancelled(booking)
	return booking, nil
}

// CancelBooking unwinds a pending or confirmed booking: tickets are
// invalidated, seats returned, and the payment refunded for whatever
// is still refundable.
func (s *BookingService) CancelBooking(ctx context.Context, bookingID, reason string) (*models.Booking, error) {
	booking, err := s.bookings.BookingByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !booking.Cancellable() {
		return nil, status.ErrNotCancellable
	}

	if reason == "" {
		reason = cancelReasonRequested
	}

	changed, err := s.bookings.CancelBooking(ctx, bookingID, reason)
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, status.ErrNotCancellable
	}

	booking.Status = models.BookingCancelled
	booking.CancelReason = reason

	if _, err := s.tickets.InvalidateBooking(ctx, bookingID); err != nil {
		log.Printf("invalidate tickets for booking %s: %v\n", bookingID, err)
	}

	if _, err := s.inventory.Release(ctx, booking.EventID, booking.Quantity); err != nil {
		log.Printf("release seats for booking %s: %v\n", bookingID, err)
	}

	if booking.PaymentID != "" {
		payment, err := s.payments.PaymentByID(ctx, booking.PaymentID)
		if err == nil && payment.Refundable() {
			if _, err := s.payments.Refund(ctx, payment.ID, payment.RemainingRefundable()); err != nil {
				log.Printf("refund for cancelled booking %s: %v\n", bookingID, err)
			}
		}
	}

	s.monitor.TrackBooking("cancelled")
	s.notifier.BookingCancelled(booking)

	return booking, nil
}

func (s *BookingService) BookingByID(ctx context.Context, id string) (*models.Booking, error) {
	return s.bookings.BookingByID(ctx, id)
}

func (s *BookingService) BookingsByPayer(ctx context.Context, payer string, limit int) ([]*models.Booking, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.bookings.BookingsByPayer(ctx, payer, limit)
}
