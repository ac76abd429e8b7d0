package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment purposes accepted by the ledger.
const (
	PurposeBooking      = "booking"
	PurposeSubscription = "subscription"
	PurposeUpgrade      = "upgrade"
	PurposeRefund       = "refund"
)

// Payment statuses. pending -> {completed, failed};
// completed -> {refunded, partially_refunded}.
const (
	PaymentPending           = "pending"
	PaymentCompleted         = "completed"
	PaymentFailed            = "failed"
	PaymentRefunded          = "refunded"
	PaymentPartiallyRefunded = "partially_refunded"
)

// Payment represents one attempt to move money. Never deleted, it is the
// audit record and the single source of truth for "was money captured".
type Payment struct {
	ID             string          `json:"id"`
	Payer          string          `json:"payer"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Purpose        string          `json:"purpose"`
	EventID        string          `json:"event_id,omitempty"`
	Quantity       int             `json:"quantity,omitempty"`
	ExternalRef    string          `json:"external_ref,omitempty"`
	QRCode         string          `json:"qr_code,omitempty"`
	Status         string          `json:"status"`
	RefundedAmount decimal.Decimal `json:"refunded_amount"`
	FailureReason  string          `json:"failure_reason,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// Refundable reports whether a refund may still be requested.
func (p *Payment) Refundable() bool {
	return p.Status == PaymentCompleted || p.Status == PaymentPartiallyRefunded
}

// RemainingRefundable is the captured amount not yet returned.
func (p *Payment) RemainingRefundable() decimal.Decimal {
	return p.Amount.Sub(p.RefundedAmount)
}

// KnownPurpose reports whether purpose is one the ledger accepts.
func KnownPurpose(purpose string) bool {
	switch purpose {
	case PurposeBooking, PurposeSubscription, PurposeUpgrade, PurposeRefund:
		return true
	}
	return false
}
