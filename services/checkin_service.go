package services

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	"ticketflow/internal/status"
	"ticketflow/models"
	"ticketflow/monitoring"
	"ticketflow/store"
)

// CheckinRequest is one gate scan.
type CheckinRequest struct {
	Token       string `json:"token"`
	ValidatorID string `json:"validator_id"`
	DeviceKey   string `json:"device_key"`
	Gate        string `json:"gate,omitempty"`
}

// CheckinService validates ticket tokens at the gate. Each ticket
// admits exactly once; a second scan of the same ticket loses no
// matter how the two scans interleave.
type CheckinService struct {
	tickets    store.TicketStore
	validators store.ValidatorStore
	events     store.EventStore
	signer     *TicketSigner
	monitor    *monitoring.Monitor

	earlyEntry  time.Duration
	gracePeriod time.Duration
}

func NewCheckinService(
	tickets store.TicketStore,
	validators store.ValidatorStore,
	events store.EventStore,
	signer *TicketSigner,
	monitor *monitoring.Monitor,
	earlyEntry, gracePeriod time.Duration,
) *CheckinService {
	return &CheckinService{
		tickets:     tickets,
		validators:  validators,
		events:      events,
		signer:      signer,
		monitor:     monitor,
		earlyEntry:  earlyEntry,
		gracePeriod: gracePeriod,
	}
}

// Validate runs the full gate check: device auth, token integrity,
// ticket state, entry window, then the single-use consume.
func (s *CheckinService) Validate(ctx context.Context, req *CheckinRequest) (*models.CheckinResult, error) {
	if err := s.authenticate(ctx, req.ValidatorID, req.DeviceKey); err != nil {
		s.monitor.TrackCheckin("validator_rejected")
		return nil, err
	}

	payload, err := s.signer.DecodeAndVerify(req.Token)
	if err != nil {
		s.monitor.TrackCheckin("tampered")
		return nil, err
	}

	ticket, err := s.tickets.TicketByNumber(ctx, payload.TicketNumber)
	if err != nil {
		s.monitor.TrackCheckin("not_found")
		return nil, err
	}

	// The token binds the number to a booking and event; a mismatch
	// means a token replayed against a reissued number.
	if ticket.BookingID != payload.BookingID || ticket.EventID != payload.EventID {
		s.monitor.TrackCheckin("tampered")
		return nil, status.ErrTamperedTicket
	}

	switch ticket.Status {
	case models.TicketCancelled:
		s.monitor.TrackCheckin("cancelled")
		return nil, status.ErrTicketCancelled
	case models.TicketUsed:
		s.monitor.TrackCheckin("already_used")
		return nil, status.ErrAlreadyUsed
	}

	if err := s.checkWindow(ctx, ticket.EventID); err != nil {
		s.monitor.TrackCheckin("outside_window")
		return nil, err
	}

	usedAt := time.Now().UTC()
	changed, err := s.tickets.ConsumeTicket(ctx, ticket.Number, usedAt, req.ValidatorID, req.Gate)
	if err != nil {
		return nil, err
	}
	if !changed {
		// Lost the consume race; report what actually happened.
		current, err := s.tickets.TicketByNumber(ctx, ticket.Number)
		if err != nil {
			return nil, err
		}
		if current.Status == models.TicketCancelled {
			s.monitor.TrackCheckin("cancelled")
			return nil, status.ErrTicketCancelled
		}
		s.monitor.TrackCheckin("already_used")
		return nil, status.ErrAlreadyUsed
	}

	s.monitor.TrackCheckin("admitted")

	return &models.CheckinResult{
		TicketNumber: ticket.Number,
		BookingID:    ticket.BookingID,
		EventID:      ticket.EventID,
		UsedAt:       usedAt,
		ValidatorID:  req.ValidatorID,
		Gate:         req.Gate,
	}, nil
}

func (s *CheckinService) authenticate(ctx context.Context, validatorID, deviceKey string) error {
	validator, err := s.validators.ValidatorByID(ctx, validatorID)
	if err != nil {
		return err
	}
	if !validator.Active {
		return status.ErrValidatorUnknown
	}

	if bcrypt.CompareHashAndPassword([]byte(validator.KeyHash), []byte(deviceKey)) != nil {
		return status.ErrValidatorBadKey
	}
	return nil
}

// checkWindow admits from earlyEntry before doors to gracePeriod after
// the scheduled end.
func (s *CheckinService) checkWindow(ctx context.Context, eventID string) error {
	event, err := s.events.EventByID(ctx, eventID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if now.Before(event.StartTime.Add(-s.earlyEntry)) {
		return status.ErrCheckinNotOpen
	}
	if now.After(event.EndTime.Add(s.gracePeriod)) {
		return status.ErrCheckinWindowClosed
	}
	return nil
}
