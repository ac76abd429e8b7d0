package handlers

import (
	"io"
	"log"
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"

	"ticketflow/internal/gateway"
	"ticketflow/internal/gateway/sandbox"
	"ticketflow/models"
	"ticketflow/services"
)

type PaymentHandler struct {
	app            *pocketbase.PocketBase
	paymentService *services.PaymentService
	gw             gateway.Gateway
}

func NewPaymentHandler(app *pocketbase.PocketBase, paymentService *services.PaymentService, gw gateway.Gateway) *PaymentHandler {
	return &PaymentHandler{
		app:            app,
		paymentService: paymentService,
		gw:             gw,
	}
}

// InitiatePayment - start a payment and hand back the payable QR
func (h *PaymentHandler) InitiatePayment(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		Amount      string `json:"amount"`
		Currency    string `json:"currency"`
		Purpose     string `json:"purpose"`
		EventID     string `json:"event_id"`
		Quantity    int    `json:"quantity"`
		Description string `json:"description"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request body", err)
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return apis.NewBadRequestError("Invalid amount", err)
	}

	payment, err := h.paymentService.CreatePendingPayment(e.Request.Context(), &services.CreatePaymentRequest{
		Payer:       e.Auth.Id,
		Amount:      amount,
		Currency:    req.Currency,
		Purpose:     req.Purpose,
		EventID:     req.EventID,
		Quantity:    req.Quantity,
		Description: req.Description,
	})
	if err != nil {
		return toAPIError(err)
	}

	return e.JSON(http.StatusCreated, paymentResponse(payment))
}

// GetPayment - current state of one payment
func (h *PaymentHandler) GetPayment(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	payment, err := h.paymentService.PaymentByID(e.Request.Context(), e.Request.PathValue("paymentId"))
	if err != nil {
		return toAPIError(err)
	}

	if payment.Payer != e.Auth.Id {
		return apis.NewForbiddenError("Access denied", nil)
	}

	return e.JSON(http.StatusOK, paymentResponse(payment))
}

// RefundPayment - full or partial refund of a captured payment
func (h *PaymentHandler) RefundPayment(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		Amount string `json:"amount"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request body", err)
	}

	ctx := e.Request.Context()
	paymentID := e.Request.PathValue("paymentId")

	payment, err := h.paymentService.PaymentByID(ctx, paymentID)
	if err != nil {
		return toAPIError(err)
	}
	if payment.Payer != e.Auth.Id {
		return apis.NewForbiddenError("Access denied", nil)
	}

	// An omitted amount refunds whatever is left.
	amount := payment.RemainingRefundable()
	if req.Amount != "" {
		amount, err = decimal.NewFromString(req.Amount)
		if err != nil {
			return apis.NewBadRequestError("Invalid amount", err)
		}
	}

	refunded, err := h.paymentService.Refund(ctx, paymentID, amount)
	if err != nil {
		return toAPIError(err)
	}

	return e.JSON(http.StatusOK, paymentResponse(refunded))
}

// GatewayWebhook - inbound settlement notifications. The signature is
// checked against the raw body before anything is decoded.
func (h *PaymentHandler) GatewayWebhook(e *core.RequestEvent) error {
	body, err := io.ReadAll(e.Request.Body)
	if err != nil {
		return apis.NewBadRequestError("Unreadable body", err)
	}

	signature := e.Request.Header.Get("X-Signature")

	if err := h.paymentService.HandleWebhook(e.Request.Context(), body, signature); err != nil {
		log.Printf("gateway webhook rejected: %v", err)
		return toAPIError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{"received": true})
}

// SimulatePayment - development helper that settles a sandbox bill.
func (h *PaymentHandler) SimulatePayment(e *core.RequestEvent) error {
	var req struct {
		ExternalRef string `json:"external_ref"`
		Outcome     string `json:"outcome"`
		Reason      string `json:"reason"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request body", err)
	}

	gw := h.gw
	sb, ok := gw.(interface{ Sandbox() *sandbox.Sandbox })
	if !ok {
		return apis.NewBadRequestError("Simulation requires the sandbox gateway", nil)
	}

	var err error
	if req.Outcome == "failed" {
		_, err = sb.Sandbox().Fail(req.ExternalRef, req.Reason)
	} else {
		_, err = sb.Sandbox().Complete(req.ExternalRef)
	}
	if err != nil {
		return apis.NewBadRequestError(err.Error(), nil)
	}

	return e.JSON(http.StatusOK, map[string]any{"simulated": true})
}

func paymentResponse(p *models.Payment) map[string]any {
	resp := map[string]any{
		"payment_id":      p.ID,
		"amount":          p.Amount.String(),
		"currency":        p.Currency,
		"purpose":         p.Purpose,
		"status":          p.Status,
		"qr_code":         p.QRCode,
		"external_ref":    p.ExternalRef,
		"refunded_amount": p.RefundedAmount.String(),
		"created_at":      p.CreatedAt,
	}
	if p.EventID != "" {
		resp["event_id"] = p.EventID
		resp["quantity"] = p.Quantity
	}
	if p.FailureReason != "" {
		resp["failure_reason"] = p.FailureReason
	}
	if p.CompletedAt != nil {
		resp["completed_at"] = p.CompletedAt
	}
	return resp
}
