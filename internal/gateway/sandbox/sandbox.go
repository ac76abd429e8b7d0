package sandbox

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"ticketflow/utils"
)

// Bill statuses inside the sandbox.
const (
	BillPending   = "pending"
	BillCompleted = "completed"
	BillFailed    = "failed"
)

var ErrBillNotFound = errors.New("sandbox: bill not found")

type Config struct {
	// WebhookSecret signs and verifies simulated webhook bodies.
	WebhookSecret string
}

// Sandbox is an in-process payment gateway for development and tests.
// Settlement happens only when a test or the simulate endpoint says so.
type Sandbox struct {
	secret string

	mu    sync.Mutex
	bills map[string]*Bill
	ch    chan *Bill
}

// Bill is a sandbox-side capture attempt.
type Bill struct {
	ExternalRef    string
	ReferenceID    string
	Amount         decimal.Decimal
	Currency       string
	Status         string
	Reason         string
	RefundedAmount decimal.Decimal
	CreatedAt      time.Time
}

func New(cfg *Config) *Sandbox {
	return &Sandbox{
		secret: cfg.WebhookSecret,
		bills:  make(map[string]*Bill),
	}
}

// CreateBill registers a pending capture attempt.
func (s *Sandbox) CreateBill(_ context.Context, referenceID string, amount decimal.Decimal, currency string) (*Bill, error) {
	code, err := utils.GenerateCode(6)
	if err != nil {
		return nil, err
	}

	bill := &Bill{
		ExternalRef: fmt.Sprintf("SBX-%s", code),
		ReferenceID: referenceID,
		Amount:      amount,
		Currency:    currency,
		Status:      BillPending,
		CreatedAt:   time.Now(),
	}

	s.mu.Lock()
	s.bills[bill.ExternalRef] = bill
	s.mu.Unlock()

	return bill, nil
}

// Complete marks a bill settled and pushes it to the notify channel.
func (s *Sandbox) Complete(externalRef string) (*Bill, error) {
	return s.settle(externalRef, BillCompleted, "")
}

// Fail marks a bill failed and pushes it to the notify channel.
func (s *Sandbox) Fail(externalRef, reason string) (*Bill, error) {
	return s.settle(externalRef, BillFailed, reason)
}

func (s *Sandbox) settle(externalRef, status, reason string) (*Bill, error) {
	s.mu.Lock()
	bill, ok := s.bills[externalRef]
	if ok && bill.Status == BillPending {
		bill.Status = status
		bill.Reason = reason
	}
	ch := s.ch
	s.mu.Unlock()

	if !ok {
		return nil, ErrBillNotFound
	}

	if ch != nil {
		ch <- bill
	}

	return bill, nil
}

// Refund returns funds on a completed bill, tracked so tests can assert
// the compensating-refund path.
func (s *Sandbox) Refund(_ context.Context, externalRef string, amount decimal.Decimal) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bill, ok := s.bills[externalRef]
	if !ok {
		return "", ErrBillNotFound
	}
	if bill.Status != BillCompleted {
		return "", fmt.Errorf("sandbox: bill %s not refundable in status %s", externalRef, bill.Status)
	}
	if bill.RefundedAmount.Add(amount).GreaterThan(bill.Amount) {
		return "", fmt.Errorf("sandbox: refund exceeds captured amount for bill %s", externalRef)
	}

	bill.RefundedAmount = bill.RefundedAmount.Add(amount)

	code, err := utils.GenerateCode(6)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SBXR-%s", code), nil
}

// Transaction returns the current state of a bill.
func (s *Sandbox) Transaction(externalRef string) (*Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bill, ok := s.bills[externalRef]
	if !ok {
		return nil, ErrBillNotFound
	}

	copied := *bill
	return &copied, nil
}

// SetNotifyChannel sets the channel receiving settled bills.
func (s *Sandbox) SetNotifyChannel(ch chan *Bill) {
	s.mu.Lock()
	s.ch = ch
	s.mu.Unlock()
}

// Sign computes the webhook signature for a body.
func (s *Sandbox) Sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(s.secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a webhook body against its signature in constant time.
func (s *Sandbox) Verify(body []byte, signature string) bool {
	return hmac.Equal([]byte(signature), []byte(s.Sign(body)))
}
