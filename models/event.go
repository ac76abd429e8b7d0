package models

import "time"

// Event is owned by the external event-management service. The
// coordinator only reads its remaining-capacity counter and time window.
type Event struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Venue          string    `json:"venue"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	TotalSeats     int       `json:"total_seats"`
	RemainingSeats int       `json:"remaining_seats"`
}

// Validator is a check-in device identity. The key hash is bcrypt.
type Validator struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	KeyHash string `json:"-"`
	Active  bool   `json:"active"`
}
