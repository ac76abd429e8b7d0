package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"ticketflow/internal/gateway/sandbox"
)

// sandboxAdapter wraps the in-process sandbox to conform to Gateway.
type sandboxAdapter struct {
	sbx    *sandbox.Sandbox
	bridge chan *sandbox.Bill
}

func newSandboxAdapter(config *sandbox.Config) *sandboxAdapter {
	return &sandboxAdapter{
		sbx: sandbox.New(config),
	}
}

// Sandbox exposes the underlying instance so the development simulate
// endpoint can settle bills on demand.
func (s *sandboxAdapter) Sandbox() *sandbox.Sandbox {
	return s.sbx
}

func (s *sandboxAdapter) GetProvider() Provider {
	return ProviderSandbox
}

func (s *sandboxAdapter) CreateIntent(ctx context.Context, req *IntentRequest) (*Intent, error) {
	bill, err := s.sbx.CreateBill(ctx, req.ReferenceID, req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}

	// The QR payload is the external ref itself; dev clients "pay" by
	// posting it back through the simulate endpoint.
	return &Intent{
		ExternalRef: bill.ExternalRef,
		QRCode:      bill.ExternalRef,
	}, nil
}

func (s *sandboxAdapter) Refund(ctx context.Context, externalRef string, amount decimal.Decimal) (string, error) {
	return s.sbx.Refund(ctx, externalRef, amount)
}

func (s *sandboxAdapter) VerifySignature(payload []byte, signature string) bool {
	return s.sbx.Verify(payload, signature)
}

type sandboxCallback struct {
	ExternalRef string          `json:"external_ref"`
	Status      string          `json:"status"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Reason      string          `json:"reason,omitempty"`
}

func (s *sandboxAdapter) ParseCallback(payload []byte) (*CallbackEvent, error) {
	var cb sandboxCallback
	if err := json.Unmarshal(payload, &cb); err != nil {
		return nil, err
	}

	status := CallbackCompleted
	if cb.Status != string(CallbackCompleted) {
		status = CallbackFailed
	}

	return &CallbackEvent{
		ExternalRef: cb.ExternalRef,
		Status:      status,
		Amount:      cb.Amount,
		Currency:    cb.Currency,
		Reason:      cb.Reason,
		ReceivedAt:  time.Now(),
	}, nil
}

func (s *sandboxAdapter) CheckTransaction(ctx context.Context, externalRef string) (*CallbackEvent, error) {
	bill, err := s.sbx.Transaction(externalRef)
	if err != nil {
		return nil, err
	}

	return sandboxCallbackEvent(bill), nil
}

func (s *sandboxAdapter) SetCallbackChannel(ch chan *CallbackEvent) {
	s.bridge = make(chan *sandbox.Bill, cap(ch))
	s.sbx.SetNotifyChannel(s.bridge)

	go func() {
		for bill := range s.bridge {
			ch <- sandboxCallbackEvent(bill)
		}
	}()
}

func (s *sandboxAdapter) Close(ctx context.Context) error {
	if s.bridge != nil {
		close(s.bridge)
	}
	return nil
}

func sandboxCallbackEvent(bill *sandbox.Bill) *CallbackEvent {
	status := CallbackCompleted
	if bill.Status != sandbox.BillCompleted {
		status = CallbackFailed
	}

	return &CallbackEvent{
		ExternalRef: bill.ExternalRef,
		Status:      status,
		Amount:      bill.Amount,
		Currency:    bill.Currency,
		Reason:      bill.Reason,
		ReceivedAt:  time.Now(),
	}
}
