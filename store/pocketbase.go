package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/shopspring/decimal"

	"ticketflow/internal/status"
	"ticketflow/models"
)

// Store is the PocketBase-backed implementation of every store
// interface. Conditional transitions go through raw dbx updates because
// record saves are read-modify-write.
type Store struct {
	app core.App
}

func New(app core.App) *Store {
	return &Store{app: app}
}

// transition runs a conditional status update and reports whether the
// row changed. set values of type time.Time are converted to the
// PocketBase datetime encoding.
func (s *Store) transition(ctx context.Context, table, idColumn, idValue string, from []string, to string, set map[string]any) (bool, error) {
	assigns := []string{"status = {:_to}"}
	params := dbx.Params{"_to": to, "_id": idValue}

	i := 0
	for column, value := range set {
		name := fmt.Sprintf("_s%d", i)
		if t, ok := value.(time.Time); ok {
			dt, err := types.ParseDateTime(t)
			if err != nil {
				return false, fmt.Errorf("transition: parse datetime: %w", err)
			}
			value = dt
		}
		assigns = append(assigns, fmt.Sprintf("%s = {:%s}", column, name))
		params[name] = value
		i++
	}

	conds := make([]string, 0, len(from))
	for j, st := range from {
		name := fmt.Sprintf("_f%d", j)
		conds = append(conds, fmt.Sprintf("{:%s}", name))
		params[name] = st
	}

	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s = {:_id} AND status IN (%s)",
		table, strings.Join(assigns, ", "), idColumn, strings.Join(conds, ", "),
	)

	res, err := s.app.DB().NewQuery(query).Bind(params).WithContext(ctx).Execute()
	if err != nil {
		return false, fmt.Errorf("transition %s: %w", table, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

// ---- payments ----

func (s *Store) CreatePayment(ctx context.Context, p *models.Payment) error {
	collection, err := s.app.FindCollectionByNameOrId("payments")
	if err != nil {
		return err
	}

	record := core.NewRecord(collection)
	record.Set("payer", p.Payer)
	record.Set("amount", p.Amount.String())
	record.Set("currency", p.Currency)
	record.Set("purpose", p.Purpose)
	record.Set("event", p.EventID)
	record.Set("quantity", p.Quantity)
	record.Set("external_ref", p.ExternalRef)
	record.Set("qr_code", p.QRCode)
	record.Set("status", p.Status)
	record.Set("refunded_amount", p.RefundedAmount.String())

	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return fmt.Errorf("create payment: %w", err)
	}

	p.ID = record.Id
	p.CreatedAt = record.GetDateTime("created").Time()
	return nil
}

func (s *Store) PaymentByID(ctx context.Context, id string) (*models.Payment, error) {
	record, err := s.app.FindRecordById("payments", id)
	if err != nil {
		return nil, status.ErrPaymentNotFound
	}
	return paymentFromRecord(record), nil
}

func (s *Store) PaymentByExternalRef(ctx context.Context, externalRef string) (*models.Payment, error) {
	record, err := s.app.FindFirstRecordByData("payments", "external_ref", externalRef)
	if err != nil {
		return nil, status.ErrPaymentNotFound
	}
	return paymentFromRecord(record), nil
}

func (s *Store) SetPaymentIntent(ctx context.Context, id, externalRef, qrCode string) error {
	record, err := s.app.FindRecordById("payments", id)
	if err != nil {
		return status.ErrPaymentNotFound
	}

	record.Set("external_ref", externalRef)
	record.Set("qr_code", qrCode)
	return s.app.SaveWithContext(ctx, record)
}

func (s *Store) CompletePayment(ctx context.Context, id string, at time.Time) (bool, error) {
	return s.transition(ctx, "payments", "id", id,
		[]string{models.PaymentPending}, models.PaymentCompleted,
		map[string]any{"completed_at": at})
}

func (s *Store) FailPayment(ctx context.Context, id, reason string) (bool, error) {
	return s.transition(ctx, "payments", "id", id,
		[]string{models.PaymentPending}, models.PaymentFailed,
		map[string]any{"failure_reason": reason})
}

// MarkPaymentRefunded guards both the status and the running total, so
// concurrent refunds serialize on the refunded_amount column.
func (s *Store) MarkPaymentRefunded(ctx context.Context, id string, from []string, to string, prev, refunded decimal.Decimal) (bool, error) {
	conds := make([]string, 0, len(from))
	params := dbx.Params{
		"_to":   to,
		"_id":   id,
		"_prev": prev.String(),
		"_next": refunded.String(),
	}
	for j, st := range from {
		name := fmt.Sprintf("_f%d", j)
		conds = append(conds, fmt.Sprintf("{:%s}", name))
		params[name] = st
	}

	query := fmt.Sprintf(
		"UPDATE payments SET status = {:_to}, refunded_amount = {:_next} WHERE id = {:_id} AND status IN (%s) AND refunded_amount = {:_prev}",
		strings.Join(conds, ", "),
	)

	res, err := s.app.DB().NewQuery(query).Bind(params).WithContext(ctx).Execute()
	if err != nil {
		return false, fmt.Errorf("mark payment refunded: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *Store) CompletedPaymentsWithoutBooking(ctx context.Context, limit int) ([]*models.Payment, error) {
	var ids []string
	err := s.app.DB().NewQuery(`
		SELECT p.id
		FROM payments p
		LEFT JOIN bookings b ON b.payment = p.id
		WHERE p.status = {:status} AND p.purpose = {:purpose} AND b.id IS NULL
		ORDER BY p.created ASC
		LIMIT {:limit}
	`).Bind(dbx.Params{
		"status":  models.PaymentCompleted,
		"purpose": models.PurposeBooking,
		"limit":   limit,
	}).WithContext(ctx).Column(&ids)
	if err != nil {
		return nil, fmt.Errorf("completed payments without booking: %w", err)
	}

	payments := make([]*models.Payment, 0, len(ids))
	for _, id := range ids {
		p, err := s.PaymentByID(ctx, id)
		if err != nil {
			continue
		}
		payments = append(payments, p)
	}
	return payments, nil
}

func (s *Store) RefundablePaymentsWithCancelledBooking(ctx context.Context, limit int) ([]*models.Payment, error) {
	var ids []string
	err := s.app.DB().NewQuery(`
		SELECT p.id
		FROM payments p
		JOIN bookings b ON b.payment = p.id
		WHERE p.status IN ({:completed}, {:partial}) AND b.status = {:cancelled}
		ORDER BY p.created ASC
		LIMIT {:limit}
	`).Bind(dbx.Params{
		"completed": models.PaymentCompleted,
		"partial":   models.PaymentPartiallyRefunded,
		"cancelled": models.BookingCancelled,
		"limit":     limit,
	}).WithContext(ctx).Column(&ids)
	if err != nil {
		return nil, fmt.Errorf("refundable payments with cancelled booking: %w", err)
	}

	payments := make([]*models.Payment, 0, len(ids))
	for _, id := range ids {
		p, err := s.PaymentByID(ctx, id)
		if err != nil {
			continue
		}
		payments = append(payments, p)
	}
	return payments, nil
}

func (s *Store) FailStalePending(ctx context.Context, cutoff time.Time, reason string) (int, error) {
	dt, err := types.ParseDateTime(cutoff)
	if err != nil {
		return 0, err
	}

	res, err := s.app.DB().NewQuery(`
		UPDATE payments
		SET status = {:failed}, failure_reason = {:reason}
		WHERE status = {:pending} AND created < {:cutoff}
	`).Bind(dbx.Params{
		"failed":  models.PaymentFailed,
		"reason":  reason,
		"pending": models.PaymentPending,
		"cutoff":  dt,
	}).WithContext(ctx).Execute()
	if err != nil {
		return 0, fmt.Errorf("fail stale pending: %w", err)
	}

	affected, err := res.RowsAffected()
	return int(affected), err
}

func paymentFromRecord(record *core.Record) *models.Payment {
	p := &models.Payment{
		ID:             record.Id,
		Payer:          record.GetString("payer"),
		Amount:         decimalField(record, "amount"),
		Currency:       record.GetString("currency"),
		Purpose:        record.GetString("purpose"),
		EventID:        record.GetString("event"),
		Quantity:       record.GetInt("quantity"),
		ExternalRef:    record.GetString("external_ref"),
		QRCode:         record.GetString("qr_code"),
		Status:         record.GetString("status"),
		RefundedAmount: decimalField(record, "refunded_amount"),
		FailureReason:  record.GetString("failure_reason"),
		CreatedAt:      record.GetDateTime("created").Time(),
	}

	if completed := record.GetDateTime("completed_at"); !completed.IsZero() {
		t := completed.Time()
		p.CompletedAt = &t
	}

	return p
}

// ---- bookings ----

func (s *Store) CreateBooking(ctx context.Context, b *models.Booking) error {
	collection, err := s.app.FindCollectionByNameOrId("bookings")
	if err != nil {
		return err
	}

	record := core.NewRecord(collection)
	record.Set("payer", b.Payer)
	record.Set("event", b.EventID)
	record.Set("payment", b.PaymentID)
	record.Set("quantity", b.Quantity)
	record.Set("status", b.Status)
	record.Set("cancel_reason", b.CancelReason)
	record.Set("tickets", b.TicketIDs)

	if err := s.app.SaveWithContext(ctx, record); err != nil {
		// The unique index on payment is the idempotency backstop for
		// concurrent confirmations.
		if existing, lookupErr := s.BookingByPayment(ctx, b.PaymentID); lookupErr == nil && existing != nil {
			return status.ErrDuplicateConflict
		}
		return fmt.Errorf("create booking: %w", err)
	}

	b.ID = record.Id
	b.CreatedAt = record.GetDateTime("created").Time()
	return nil
}

func (s *Store) BookingByID(ctx context.Context, id string) (*models.Booking, error) {
	record, err := s.app.FindRecordById("bookings", id)
	if err != nil {
		return nil, status.ErrBookingNotFound
	}
	return bookingFromRecord(record), nil
}

func (s *Store) BookingByPayment(ctx context.Context, paymentID string) (*models.Booking, error) {
	record, err := s.app.FindFirstRecordByData("bookings", "payment", paymentID)
	if err != nil {
		return nil, status.ErrBookingNotFound
	}
	return bookingFromRecord(record), nil
}

func (s *Store) BookingsByPayer(ctx context.Context, payer string, limit int) ([]*models.Booking, error) {
	records, err := s.app.FindRecordsByFilter(
		"bookings",
		"payer = {:payer}",
		"-created",
		limit,
		0,
		dbx.Params{"payer": payer},
	)
	if err != nil {
		return nil, fmt.Errorf("bookings by payer: %w", err)
	}

	bookings := make([]*models.Booking, 0, len(records))
	for _, record := range records {
		bookings = append(bookings, bookingFromRecord(record))
	}
	return bookings, nil
}

func (s *Store) CompleteBooking(ctx context.Context, id string) (bool, error) {
	return s.transition(ctx, "bookings", "id", id,
		[]string{models.BookingConfirmed}, models.BookingCompleted, nil)
}

func (s *Store) CancelBooking(ctx context.Context, id, reason string) (bool, error) {
	return s.transition(ctx, "bookings", "id", id,
		[]string{models.BookingPending, models.BookingConfirmed}, models.BookingCancelled,
		map[string]any{"cancel_reason": reason})
}

func (s *Store) SetBookingTickets(ctx context.Context, id string, ticketNumbers []string) error {
	record, err := s.app.FindRecordById("bookings", id)
	if err != nil {
		return status.ErrBookingNotFound
	}

	record.Set("tickets", ticketNumbers)
	return s.app.SaveWithContext(ctx, record)
}

func bookingFromRecord(record *core.Record) *models.Booking {
	return &models.Booking{
		ID:           record.Id,
		Payer:        record.GetString("payer"),
		EventID:      record.GetString("event"),
		PaymentID:    record.GetString("payment"),
		Quantity:     record.GetInt("quantity"),
		Status:       record.GetString("status"),
		CancelReason: record.GetString("cancel_reason"),
		TicketIDs:    record.GetStringSlice("tickets"),
		CreatedAt:    record.GetDateTime("created").Time(),
	}
}

// ---- tickets ----

func (s *Store) CreateTicket(ctx context.Context, t *models.Ticket) error {
	collection, err := s.app.FindCollectionByNameOrId("tickets")
	if err != nil {
		return err
	}

	record := core.NewRecord(collection)
	record.Set("number", t.Number)
	record.Set("booking", t.BookingID)
	record.Set("seat", t.Seat)
	record.Set("event", t.EventID)
	record.Set("token", t.Token)
	record.Set("status", t.Status)
	record.Set("issued_at", t.IssuedAt)

	if err := s.app.SaveWithContext(ctx, record); err != nil {
		// Either unique index may have fired: the global number or the
		// per-booking seat.
		if existing, lookupErr := s.TicketByNumber(ctx, t.Number); lookupErr == nil && existing != nil {
			return status.ErrDuplicateConflict
		}
		if taken, lookupErr := s.seatTaken(ctx, t.BookingID, t.Seat); lookupErr == nil && taken {
			return status.ErrDuplicateConflict
		}
		return fmt.Errorf("create ticket: %w", err)
	}

	return nil
}

func (s *Store) seatTaken(ctx context.Context, bookingID string, seat int) (bool, error) {
	records, err := s.app.FindRecordsByFilter(
		"tickets",
		"booking = {:booking} && seat = {:seat}",
		"",
		1,
		0,
		dbx.Params{"booking": bookingID, "seat": seat},
	)
	if err != nil {
		return false, err
	}
	return len(records) > 0, nil
}

func (s *Store) TicketByNumber(ctx context.Context, number string) (*models.Ticket, error) {
	record, err := s.app.FindFirstRecordByData("tickets", "number", number)
	if err != nil {
		return nil, status.ErrTicketNotFound
	}
	return ticketFromRecord(record), nil
}

func (s *Store) TicketsByBooking(ctx context.Context, bookingID string) ([]*models.Ticket, error) {
	records, err := s.app.FindRecordsByFilter(
		"tickets",
		"booking = {:booking}",
		"seat",
		0,
		0,
		dbx.Params{"booking": bookingID},
	)
	if err != nil {
		return nil, fmt.Errorf("tickets by booking: %w", err)
	}

	tickets := make([]*models.Ticket, 0, len(records))
	for _, record := range records {
		tickets = append(tickets, ticketFromRecord(record))
	}
	return tickets, nil
}

func (s *Store) ConsumeTicket(ctx context.Context, number string, usedAt time.Time, validatorID, gate string) (bool, error) {
	return s.transition(ctx, "tickets", "number", number,
		[]string{models.TicketValid}, models.TicketUsed,
		map[string]any{
			"used_at":      usedAt,
			"validator_id": validatorID,
			"gate":         gate,
		})
}

func (s *Store) CancelTicket(ctx context.Context, number string) (bool, error) {
	return s.transition(ctx, "tickets", "number", number,
		[]string{models.TicketValid}, models.TicketCancelled, nil)
}

func ticketFromRecord(record *core.Record) *models.Ticket {
	t := &models.Ticket{
		Number:      record.GetString("number"),
		BookingID:   record.GetString("booking"),
		Seat:        record.GetInt("seat"),
		EventID:     record.GetString("event"),
		Token:       record.GetString("token"),
		Status:      record.GetString("status"),
		IssuedAt:    record.GetDateTime("issued_at").Time(),
		ValidatorID: record.GetString("validator_id"),
		Gate:        record.GetString("gate"),
	}

	if used := record.GetDateTime("used_at"); !used.IsZero() {
		u := used.Time()
		t.UsedAt = &u
	}

	return t
}

// ---- events / validators ----

func (s *Store) EventByID(ctx context.Context, id string) (*models.Event, error) {
	record, err := s.app.FindRecordById("events", id)
	if err != nil {
		return nil, status.ErrEventNotFound
	}

	return &models.Event{
		ID:             record.Id,
		Name:           record.GetString("name"),
		Venue:          record.GetString("venue"),
		StartTime:      record.GetDateTime("starts_at").Time(),
		EndTime:        record.GetDateTime("ends_at").Time(),
		TotalSeats:     record.GetInt("total_seats"),
		RemainingSeats: record.GetInt("remaining_seats"),
	}, nil
}

func (s *Store) AdjustRemainingSeats(ctx context.Context, id string, delta int) error {
	res, err := s.app.DB().NewQuery(`
		UPDATE events
		SET remaining_seats = remaining_seats + {:delta}
		WHERE id = {:id}
	`).Bind(dbx.Params{"delta": delta, "id": id}).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("adjust remaining seats: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return status.ErrEventNotFound
	}
	return nil
}

func (s *Store) ValidatorByID(ctx context.Context, id string) (*models.Validator, error) {
	record, err := s.app.FindRecordById("validators", id)
	if err != nil {
		return nil, status.ErrValidatorUnknown
	}

	return &models.Validator{
		ID:      record.Id,
		Label:   record.GetString("label"),
		KeyHash: record.GetString("key_hash"),
		Active:  record.GetBool("active"),
	}, nil
}

func decimalField(record *core.Record, field string) decimal.Decimal {
	d, err := decimal.NewFromString(record.GetString(field))
	if err != nil {
		return decimal.Zero
	}
	return d
}
