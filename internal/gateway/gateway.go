package gateway

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Provider identifies a payment gateway implementation.
type Provider string

const (
	ProviderYesPay  Provider = "yespay"
	ProviderSandbox Provider = "sandbox"
)

// CallbackStatus is the outcome a gateway reports for an intent.
type CallbackStatus string

const (
	CallbackCompleted CallbackStatus = "completed"
	CallbackFailed    CallbackStatus = "failed"
)

// IntentRequest asks the gateway to prepare a capture attempt.
type IntentRequest struct {
	// ReferenceID is the local payment id, echoed back in callbacks
	// through the bill metadata.
	ReferenceID string          `json:"reference_id"`
	Payer       string          `json:"payer"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description,omitempty"`
}

// Intent is the gateway-side record of a capture attempt.
type Intent struct {
	// ExternalRef keys every later callback and refund for this intent.
	ExternalRef string `json:"external_ref"`
	// QRCode is the provider payload the payer scans to pay.
	QRCode string `json:"qr_code,omitempty"`
}

// CallbackEvent is one gateway notification, normalized across
// providers. Delivery is at-least-once; consumers must be idempotent.
type CallbackEvent struct {
	ExternalRef string          `json:"external_ref"`
	Status      CallbackStatus  `json:"status"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Reason      string          `json:"reason,omitempty"`
	ReceivedAt  time.Time       `json:"received_at"`
}

// Gateway is the common interface for all payment providers. Providers
// are selected by configuration, never by inline branching on method
// strings.
type Gateway interface {
	// GetProvider returns the gateway provider type.
	GetProvider() Provider

	// CreateIntent registers a capture attempt and returns its
	// external reference plus the payable QR payload.
	CreateIntent(ctx context.Context, req *IntentRequest) (*Intent, error)

	// Refund returns captured funds for an intent, fully or partially.
	Refund(ctx context.Context, externalRef string, amount decimal.Decimal) (string, error)

	// VerifySignature checks an inbound webhook body against its
	// signature header.
	VerifySignature(payload []byte, signature string) bool

	// ParseCallback decodes a verified webhook body.
	ParseCallback(payload []byte) (*CallbackEvent, error)

	// CheckTransaction polls the gateway for the current state of an
	// intent.
	CheckTransaction(ctx context.Context, externalRef string) (*CallbackEvent, error)

	// SetCallbackChannel sets the channel receiving asynchronous
	// gateway notifications (for providers with a push feed).
	SetCallbackChannel(ch chan *CallbackEvent)

	// Close gracefully closes any connections.
	Close(ctx context.Context) error
}
