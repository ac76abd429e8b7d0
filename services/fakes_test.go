package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"ticketflow/internal/gateway"
	"ticketflow/internal/status"
	"ticketflow/models"
)

// memStore is an in-memory stand-in for the record store. The mutex
// plus status guards mirror the conditional updates of the real one,
// which is what the concurrency tests lean on.
type memStore struct {
	mu         sync.Mutex
	seq        int
	payments   map[string]*models.Payment
	bookings   map[string]*models.Booking
	tickets    map[string]*models.Ticket
	events     map[string]*models.Event
	validators map[string]*models.Validator

	// ticketWrites is the number of CreateTicket calls still allowed
	// before the fake starts failing; negative means unlimited.
	ticketWrites int

	// afterCreateBooking runs outside the lock once a booking landed,
	// for interleaving a concurrent actor between insert and issuance.
	afterCreateBooking func(*models.Booking)
}

func newMemStore() *memStore {
	return &memStore{
		payments:     make(map[string]*models.Payment),
		bookings:     make(map[string]*models.Booking),
		tickets:      make(map[string]*models.Ticket),
		events:       make(map[string]*models.Event),
		validators:   make(map[string]*models.Validator),
		ticketWrites: -1,
	}
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s%03d", prefix, m.seq)
}

func clonePayment(p *models.Payment) *models.Payment {
	cp := *p
	return &cp
}

func cloneBooking(b *models.Booking) *models.Booking {
	cb := *b
	cb.TicketIDs = append([]string(nil), b.TicketIDs...)
	return &cb
}

func cloneTicket(t *models.Ticket) *models.Ticket {
	ct := *t
	return &ct
}

func (m *memStore) CreatePayment(_ context.Context, p *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = m.nextID("pay")
	p.CreatedAt = time.Now().UTC()
	m.payments[p.ID] = clonePayment(p)
	return nil
}

func (m *memStore) PaymentByID(_ context.Context, id string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, status.ErrPaymentNotFound
	}
	return clonePayment(p), nil
}

func (m *memStore) PaymentByExternalRef(_ context.Context, ref string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.ExternalRef == ref && ref != "" {
			return clonePayment(p), nil
		}
	}
	return nil, status.ErrPaymentNotFound
}

func (m *memStore) SetPaymentIntent(_ context.Context, id, ref, qr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return status.ErrPaymentNotFound
	}
	p.ExternalRef = ref
	p.QRCode = qr
	return nil
}

func (m *memStore) CompletePayment(_ context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok || p.Status != models.PaymentPending {
		return false, nil
	}
	p.Status = models.PaymentCompleted
	p.CompletedAt = &at
	return true, nil
}

func (m *memStore) FailPayment(_ context.Context, id, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok || p.Status != models.PaymentPending {
		return false, nil
	}
	p.Status = models.PaymentFailed
	p.FailureReason = reason
	return true, nil
}

func (m *memStore) MarkPaymentRefunded(_ context.Context, id string, from []string, to string, prev, refunded decimal.Decimal) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok || !p.RefundedAmount.Equal(prev) {
		return false, nil
	}
	for _, f := range from {
		if p.Status == f {
			p.Status = to
			p.RefundedAmount = refunded
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) RefundablePaymentsWithCancelledBooking(_ context.Context, limit int) ([]*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Payment
	for _, b := range m.bookings {
		if b.Status != models.BookingCancelled {
			continue
		}
		p, ok := m.payments[b.PaymentID]
		if !ok || !(p.Status == models.PaymentCompleted || p.Status == models.PaymentPartiallyRefunded) {
			continue
		}
		out = append(out, clonePayment(p))
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) CompletedPaymentsWithoutBooking(_ context.Context, limit int) ([]*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Payment
	for _, p := range m.payments {
		if p.Status != models.PaymentCompleted || p.Purpose != models.PurposeBooking {
			continue
		}
		booked := false
		for _, b := range m.bookings {
			if b.PaymentID == p.ID {
				booked = true
				break
			}
		}
		if booked {
			continue
		}
		out = append(out, clonePayment(p))
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) FailStalePending(_ context.Context, cutoff time.Time, reason string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.payments {
		if p.Status == models.PaymentPending && p.CreatedAt.Before(cutoff) {
			p.Status = models.PaymentFailed
			p.FailureReason = reason
			n++
		}
	}
	return n, nil
}

func (m *memStore) CreateBooking(_ context.Context, b *models.Booking) error {
	m.mu.Lock()
	for _, existing := range m.bookings {
		if existing.PaymentID == b.PaymentID {
			m.mu.Unlock()
			return status.ErrDuplicateConflict
		}
	}
	b.ID = m.nextID("bkg")
	b.CreatedAt = time.Now().UTC()
	m.bookings[b.ID] = cloneBooking(b)
	hook := m.afterCreateBooking
	m.mu.Unlock()

	if hook != nil {
		hook(cloneBooking(b))
	}
	return nil
}

func (m *memStore) BookingByID(_ context.Context, id string) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, status.ErrBookingNotFound
	}
	return cloneBooking(b), nil
}

func (m *memStore) BookingByPayment(_ context.Context, paymentID string) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bookings {
		if b.PaymentID == paymentID {
			return cloneBooking(b), nil
		}
	}
	return nil, status.ErrBookingNotFound
}

func (m *memStore) BookingsByPayer(_ context.Context, payer string, limit int) ([]*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Booking
	for _, b := range m.bookings {
		if b.Payer == payer {
			out = append(out, cloneBooking(b))
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) CompleteBooking(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok || b.Status != models.BookingConfirmed {
		return false, nil
	}
	b.Status = models.BookingCompleted
	return true, nil
}

func (m *memStore) CancelBooking(_ context.Context, id, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok || (b.Status != models.BookingPending && b.Status != models.BookingConfirmed) {
		return false, nil
	}
	b.Status = models.BookingCancelled
	b.CancelReason = reason
	return true, nil
}

func (m *memStore) SetBookingTickets(_ context.Context, id string, numbers []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return status.ErrBookingNotFound
	}
	b.TicketIDs = append([]string(nil), numbers...)
	return nil
}

func (m *memStore) CreateTicket(_ context.Context, t *models.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ticketWrites == 0 {
		return errors.New("ticket write refused")
	}
	if m.ticketWrites > 0 {
		m.ticketWrites--
	}
	if _, exists := m.tickets[t.Number]; exists {
		return status.ErrDuplicateConflict
	}
	for _, existing := range m.tickets {
		if existing.BookingID == t.BookingID && existing.Seat == t.Seat {
			return status.ErrDuplicateConflict
		}
	}
	m.tickets[t.Number] = cloneTicket(t)
	return nil
}

func (m *memStore) TicketByNumber(_ context.Context, number string) (*models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[number]
	if !ok {
		return nil, status.ErrTicketNotFound
	}
	return cloneTicket(t), nil
}

func (m *memStore) TicketsByBooking(_ context.Context, bookingID string) ([]*models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Ticket
	for _, t := range m.tickets {
		if t.BookingID == bookingID {
			out = append(out, cloneTicket(t))
		}
	}
	return out, nil
}

func (m *memStore) ConsumeTicket(_ context.Context, number string, usedAt time.Time, validatorID, gate string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[number]
	if !ok || t.Status != models.TicketValid {
		return false, nil
	}
	t.Status = models.TicketUsed
	t.UsedAt = &usedAt
	t.ValidatorID = validatorID
	t.Gate = gate
	return true, nil
}

func (m *memStore) CancelTicket(_ context.Context, number string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[number]
	if !ok || t.Status != models.TicketValid {
		return false, nil
	}
	t.Status = models.TicketCancelled
	return true, nil
}

func (m *memStore) EventByID(_ context.Context, id string) (*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return nil, status.ErrEventNotFound
	}
	ce := *e
	return &ce, nil
}

func (m *memStore) AdjustRemainingSeats(_ context.Context, id string, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return status.ErrEventNotFound
	}
	e.RemainingSeats += delta
	return nil
}

func (m *memStore) ValidatorByID(_ context.Context, id string) (*models.Validator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.validators[id]
	if !ok {
		return nil, status.ErrValidatorUnknown
	}
	cv := *v
	return &cv, nil
}

// fakeInventory is a plain atomic counter per event.
type fakeInventory struct {
	mu        sync.Mutex
	remaining map[string]int
}

func newFakeInventory(seed map[string]int) *fakeInventory {
	if seed == nil {
		seed = make(map[string]int)
	}
	return &fakeInventory{remaining: seed}
}

func (f *fakeInventory) Reserve(_ context.Context, eventID string, quantity int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remaining[eventID] < quantity {
		return 0, status.ErrCapacityExceeded
	}
	f.remaining[eventID] -= quantity
	return f.remaining[eventID], nil
}

func (f *fakeInventory) Release(_ context.Context, eventID string, quantity int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remaining[eventID] += quantity
	return f.remaining[eventID], nil
}

// fakeGateway scripts gateway behavior per test.
type fakeGateway struct {
	mu          sync.Mutex
	intentErr   error
	refundErr   error
	intents     int
	refunds     []decimal.Decimal
	verifyOK    bool
	parsedEvent *gateway.CallbackEvent
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{verifyOK: true}
}

func (g *fakeGateway) GetProvider() gateway.Provider { return "fake" }

func (g *fakeGateway) CreateIntent(_ context.Context, req *gateway.IntentRequest) (*gateway.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.intentErr != nil {
		return nil, g.intentErr
	}
	g.intents++
	return &gateway.Intent{
		ExternalRef: "EXT-" + req.ReferenceID,
		QRCode:      "QR-" + req.ReferenceID,
	}, nil
}

func (g *fakeGateway) Refund(_ context.Context, _ string, amount decimal.Decimal) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return "", g.refundErr
	}
	g.refunds = append(g.refunds, amount)
	return fmt.Sprintf("RF-%d", len(g.refunds)), nil
}

func (g *fakeGateway) refundCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.refunds)
}

func (g *fakeGateway) VerifySignature([]byte, string) bool { return g.verifyOK }

func (g *fakeGateway) ParseCallback([]byte) (*gateway.CallbackEvent, error) {
	return g.parsedEvent, nil
}

func (g *fakeGateway) CheckTransaction(_ context.Context, ref string) (*gateway.CallbackEvent, error) {
	return nil, status.ErrPaymentNotFound
}

func (g *fakeGateway) SetCallbackChannel(chan *gateway.CallbackEvent) {}

func (g *fakeGateway) Close(context.Context) error { return nil }

// recordingNotifier counts notifications per kind.
type recordingNotifier struct {
	mu     sync.Mutex
	counts map[string]int
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{counts: make(map[string]int)}
}

func (n *recordingNotifier) bump(kind string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.counts[kind]++
}

func (n *recordingNotifier) count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.counts[kind]
}

func (n *recordingNotifier) PaymentCompleted(*models.Payment) { n.bump("payment.completed") }
func (n *recordingNotifier) PaymentFailed(*models.Payment)    { n.bump("payment.failed") }
func (n *recordingNotifier) BookingConfirmed(*models.Booking) { n.bump("booking.confirmed") }
func (n *recordingNotifier) BookingCancelled(*models.Booking) { n.bump("booking.cancelled") }
