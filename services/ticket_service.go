package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"ticketflow/internal/status"
	"ticketflow/models"
	"ticketflow/store"
	"ticketflow/utils"
)

// TicketSigner mints and verifies self-contained ticket tokens. The
// token is the base64url payload plus a hex HMAC-SHA256 tag, so a
// scanner can reject tampered tickets before any lookup.
type TicketSigner struct {
	key []byte
}

func NewTicketSigner(key string) *TicketSigner {
	return &TicketSigner{key: []byte(key)}
}

func (s *TicketSigner) Sign(payload models.TicketPayload) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("sign ticket: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(body)
	return encoded + "." + s.tag(encoded), nil
}

func (s *TicketSigner) DecodeAndVerify(token string) (*models.TicketPayload, error) {
	encoded, tag, ok := strings.Cut(token, ".")
	if !ok {
		return nil, status.ErrTamperedTicket
	}

	expected, err := hex.DecodeString(tag)
	if err != nil {
		return nil, status.ErrTamperedTicket
	}

	actual, err := hex.DecodeString(s.tag(encoded))
	if err != nil {
		return nil, status.ErrTamperedTicket
	}

	if !hmac.Equal(expected, actual) {
		return nil, status.ErrTamperedTicket
	}

	body, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, status.ErrTamperedTicket
	}

	var payload models.TicketPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, status.ErrTamperedTicket
	}

	return &payload, nil
}

func (s *TicketSigner) tag(encoded string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(encoded))
	return hex.EncodeToString(mac.Sum(nil))
}

// TicketService issues tickets for confirmed bookings and invalidates
// them when the booking is cancelled.
type TicketService struct {
	tickets  store.TicketStore
	bookings store.BookingStore
	signer   *TicketSigner
}

func NewTicketService(tickets store.TicketStore, bookings store.BookingStore, signer *TicketSigner) *TicketService {
	return &TicketService{
		tickets:  tickets,
		bookings: bookings,
		signer:   signer,
	}
}

// IssueTickets creates one ticket per booked seat, keyed by the seat
// ordinal so concurrent issuers for the same booking converge on a
// single set. Re-running for a booking that already holds its full set
// returns the existing tickets unchanged; a partial set from an
// earlier crash is topped up.
func (s *TicketService) IssueTickets(ctx context.Context, booking *models.Booking) ([]*models.Ticket, error) {
	for attempt := 0; attempt < 3; attempt++ {
		existing, err := s.tickets.TicketsByBooking(ctx, booking.ID)
		if err != nil {
			return nil, err
		}
		if len(existing) >= booking.Quantity {
			return s.attach(ctx, booking, existing)
		}

		taken := make(map[int]bool, len(existing))
		for _, t := range existing {
			taken[t.Seat] = true
		}

		for seat := 1; seat <= booking.Quantity; seat++ {
			if taken[seat] {
				continue
			}
			if err := s.issueSeat(ctx, booking, seat); err != nil {
				if errors.Is(err, status.ErrDuplicateConflict) {
					// Another issuer landed this seat first.
					continue
				}
				return nil, err
			}
		}
	}

	return nil, fmt.Errorf("ticket set for booking %s stayed incomplete", booking.ID)
}

func (s *TicketService) issueSeat(ctx context.Context, booking *models.Booking, seat int) error {
	number, err := s.freshNumber(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	token, err := s.signer.Sign(models.TicketPayload{
		TicketNumber: number,
		BookingID:    booking.ID,
		EventID:      booking.EventID,
		IssuedAt:     now,
	})
	if err != nil {
		return err
	}

	return s.tickets.CreateTicket(ctx, &models.Ticket{
		Number:    number,
		BookingID: booking.ID,
		Seat:      seat,
		EventID:   booking.EventID,
		Token:     token,
		Status:    models.TicketValid,
		IssuedAt:  now,
	})
}

func (s *TicketService) attach(ctx context.Context, booking *models.Booking, tickets []*models.Ticket) ([]*models.Ticket, error) {
	sort.Slice(tickets, func(i, j int) bool { return tickets[i].Seat < tickets[j].Seat })

	numbers := make([]string, 0, len(tickets))
	for _, t := range tickets {
		numbers = append(numbers, t.Number)
	}
	if err := s.bookings.SetBookingTickets(ctx, booking.ID, numbers); err != nil {
		return nil, err
	}

	return tickets, nil
}

// InvalidateBooking cancels every still-valid ticket of a booking.
// Used tickets stay used.
func (s *TicketService) InvalidateBooking(ctx context.Context, bookingID string) (int, error) {
	tickets, err := s.tickets.TicketsByBooking(ctx, bookingID)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for _, t := range tickets {
		if t.Status != models.TicketValid {
			continue
		}
		changed, err := s.tickets.CancelTicket(ctx, t.Number)
		if err != nil {
			return cancelled, err
		}
		if changed {
			cancelled++
		}
	}
	return cancelled, nil
}

func (s *TicketService) TicketsForBooking(ctx context.Context, bookingID string) ([]*models.Ticket, error) {
	return s.tickets.TicketsByBooking(ctx, bookingID)
}

// freshNumber generates a ticket number and retries on the unlikely
// collision with an existing one.
func (s *TicketService) freshNumber(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		code, err := utils.GenerateCode(6)
		if err != nil {
			return "", err
		}
		number := fmt.Sprintf("TKT-%s-%s",
			strings.ToUpper(strconv.FormatInt(time.Now().UnixMilli(), 36)),
			code,
		)

		_, err = s.tickets.TicketByNumber(ctx, number)
		if errors.Is(err, status.ErrTicketNotFound) {
			return number, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("ticket number space exhausted")
}
