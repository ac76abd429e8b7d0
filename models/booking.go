package models

import "time"

// Booking statuses. pending -> confirmed -> completed;
// {pending, confirmed} -> cancelled.
const (
	BookingPending   = "pending"
	BookingConfirmed = "confirmed"
	BookingCompleted = "completed"
	BookingCancelled = "cancelled"
)

// Booking is a confirmed claim on event capacity. At most one exists per
// completed payment.
type Booking struct {
	ID           string    `json:"id"`
	Payer        string    `json:"payer"`
	EventID      string    `json:"event_id"`
	PaymentID    string    `json:"payment_id"`
	Quantity     int       `json:"quantity"`
	Status       string    `json:"status"`
	CancelReason string    `json:"cancel_reason,omitempty"`
	TicketIDs    []string  `json:"ticket_ids,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Cancellable reports whether the booking may still be cancelled.
func (b *Booking) Cancellable() bool {
	return b.Status == BookingPending || b.Status == BookingConfirmed
}
