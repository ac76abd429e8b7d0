package models

import "time"

// Ticket statuses. valid -> used (terminal, exactly once) or
// valid -> cancelled (terminal, via booking cancellation).
const (
	TicketValid     = "valid"
	TicketUsed      = "used"
	TicketCancelled = "cancelled"
)

// Ticket is one admittable unit. Immutable except for the single
// consuming transition recorded by the check-in validator. Seat is the
// ordinal within the booking; the unique (booking, seat) pair is what
// keeps concurrent issuers from minting the same admission twice.
type Ticket struct {
	Number      string     `json:"number"`
	BookingID   string     `json:"booking_id"`
	Seat        int        `json:"seat"`
	EventID     string     `json:"event_id"`
	Token       string     `json:"token"`
	Status      string     `json:"status"`
	IssuedAt    time.Time  `json:"issued_at"`
	UsedAt      *time.Time `json:"used_at,omitempty"`
	ValidatorID string     `json:"validator_id,omitempty"`
	Gate        string     `json:"gate,omitempty"`
}

// TicketPayload is the signed portion of a check-in token. The validator
// verifies it without a database round trip.
type TicketPayload struct {
	TicketNumber string    `json:"ticket_number"`
	BookingID    string    `json:"booking_id"`
	EventID      string    `json:"event_id"`
	IssuedAt     time.Time `json:"issued_at"`
}

// CheckinResult is returned on a successful consumption.
type CheckinResult struct {
	TicketNumber string    `json:"ticket_number"`
	BookingID    string    `json:"booking_id"`
	EventID      string    `json:"event_id"`
	UsedAt       time.Time `json:"used_at"`
	ValidatorID  string    `json:"validator_id"`
	Gate         string    `json:"gate,omitempty"`
}
