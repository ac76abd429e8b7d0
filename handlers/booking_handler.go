package handlers

import (
	"net/http"
	"strconv"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticketflow/models"
	"ticketflow/services"
)

type BookingHandler struct {
	app            *pocketbase.PocketBase
	bookingService *services.BookingService
	ticketService  *services.TicketService
}

func NewBookingHandler(app *pocketbase.PocketBase, bookingService *services.BookingService, ticketService *services.TicketService) *BookingHandler {
	return &BookingHandler{
		app:            app,
		bookingService: bookingService,
		ticketService:  ticketService,
	}
}

// GetBooking - booking state plus its tickets
func (h *BookingHandler) GetBooking(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	ctx := e.Request.Context()
	booking, err := h.bookingService.BookingByID(ctx, e.Request.PathValue("bookingId"))
	if err != nil {
		return toAPIError(err)
	}

	if booking.Payer != e.Auth.Id {
		return apis.NewForbiddenError("Access denied", nil)
	}

	tickets, err := h.ticketService.TicketsForBooking(ctx, booking.ID)
	if err != nil {
		return toAPIError(err)
	}

	return e.JSON(http.StatusOK, bookingResponse(booking, tickets))
}

// GetBookingHistory - most recent bookings of the caller
func (h *BookingHandler) GetBookingHistory(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	limit, _ := strconv.Atoi(e.Request.URL.Query().Get("limit"))

	bookings, err := h.bookingService.BookingsByPayer(e.Request.Context(), e.Auth.Id, limit)
	if err != nil {
		return toAPIError(err)
	}

	items := make([]map[string]any, 0, len(bookings))
	for _, b := range bookings {
		items = append(items, bookingResponse(b, nil))
	}

	return e.JSON(http.StatusOK, map[string]any{
		"bookings": items,
		"count":    len(items),
	})
}

// CancelBooking - payer-initiated cancellation with automatic refund
func (h *BookingHandler) CancelBooking(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request body", err)
	}

	ctx := e.Request.Context()
	bookingID := e.Request.PathValue("bookingId")

	booking, err := h.bookingService.BookingByID(ctx, bookingID)
	if err != nil {
		return toAPIError(err)
	}
	if booking.Payer != e.Auth.Id {
		return apis.NewForbiddenError("Access denied", nil)
	}

	cancelled, err := h.bookingService.CancelBooking(ctx, bookingID, req.Reason)
	if err != nil {
		return toAPIError(err)
	}

	return e.JSON(http.StatusOK, bookingResponse(cancelled, nil))
}

func bookingResponse(b *models.Booking, tickets []*models.Ticket) map[string]any {
	resp := map[string]any{
		"booking_id": b.ID,
		"event_id":   b.EventID,
		"payment_id": b.PaymentID,
		"quantity":   b.Quantity,
		"status":     b.Status,
		"created_at": b.CreatedAt,
	}
	if b.CancelReason != "" {
		resp["cancel_reason"] = b.CancelReason
	}
	if len(b.TicketIDs) > 0 {
		resp["ticket_numbers"] = b.TicketIDs
	}

	if tickets != nil {
		items := make([]map[string]any, 0, len(tickets))
		for _, t := range tickets {
			item := map[string]any{
				"number":    t.Number,
				"token":     t.Token,
				"status":    t.Status,
				"issued_at": t.IssuedAt,
			}
			if t.UsedAt != nil {
				item["used_at"] = t.UsedAt
				item["gate"] = t.Gate
			}
			items = append(items, item)
		}
		resp["tickets"] = items
	}

	return resp
}
