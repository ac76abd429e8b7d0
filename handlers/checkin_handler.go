package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticketflow/services"
)

type CheckinHandler struct {
	app            *pocketbase.PocketBase
	checkinService *services.CheckinService
}

func NewCheckinHandler(app *pocketbase.PocketBase, checkinService *services.CheckinService) *CheckinHandler {
	return &CheckinHandler{
		app:            app,
		checkinService: checkinService,
	}
}

// ValidateTicket - gate scan. Authentication is the validator's device
// key inside the body, not a user session.
func (h *CheckinHandler) ValidateTicket(e *core.RequestEvent) error {
	var req services.CheckinRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request body", err)
	}

	if req.Token == "" || req.ValidatorID == "" || req.DeviceKey == "" {
		return apis.NewBadRequestError("token, validator_id and device_key are required", nil)
	}

	result, err := h.checkinService.Validate(e.Request.Context(), &req)
	if err != nil {
		return toAPIError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"admitted":      true,
		"ticket_number": result.TicketNumber,
		"booking_id":    result.BookingID,
		"event_id":      result.EventID,
		"used_at":       result.UsedAt,
		"gate":          result.Gate,
	})
}
