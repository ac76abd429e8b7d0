package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"ticketflow/internal/gateway"
	"ticketflow/internal/status"
	"ticketflow/models"
	"ticketflow/monitoring"
	"ticketflow/store"
	"ticketflow/utils"
)

// CreatePaymentRequest starts a payment flow.
type CreatePaymentRequest struct {
	Payer       string          `json:"payer"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Purpose     string          `json:"purpose"`
	EventID     string          `json:"event_id,omitempty"`
	Quantity    int             `json:"quantity,omitempty"`
	Description string          `json:"description,omitempty"`
}

// PaymentService owns the payment ledger. All gateway traffic, inbound
// and outbound, funnels through here; bookings react to the trigger
// channel rather than polling the ledger.
type PaymentService struct {
	payments store.PaymentStore
	gw       gateway.Gateway
	breaker  *utils.CircuitBreaker
	notifier Notifier
	monitor  *monitoring.Monitor

	gatewayTimeout time.Duration

	// triggers carries ids of booking-purpose payments that just
	// completed and await materialization.
	triggers chan string
}

func NewPaymentService(
	payments store.PaymentStore,
	gw gateway.Gateway,
	notifier Notifier,
	monitor *monitoring.Monitor,
	gatewayTimeout time.Duration,
) *PaymentService {
	return &PaymentService{
		payments:       payments,
		gw:             gw,
		breaker:        utils.NewCircuitBreaker("payment-gateway"),
		notifier:       notifier,
		monitor:        monitor,
		gatewayTimeout: gatewayTimeout,
		triggers:       make(chan string, 256),
	}
}

// Triggers exposes completed booking payments to the orchestrator.
func (s *PaymentService) Triggers() <-chan string {
	return s.triggers
}

// CreatePendingPayment validates the request, records a pending ledger
// entry, and registers a capture intent with the gateway. The pending
// record survives a gateway failure so the attempt stays inspectable.
func (s *PaymentService) CreatePendingPayment(ctx context.Context, req *CreatePaymentRequest) (*models.Payment, error) {
	if !req.Amount.IsPositive() {
		return nil, status.ErrInvalidAmount
	}

	payment := &models.Payment{
		Payer:          req.Payer,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Purpose:        req.Purpose,
		EventID:        req.EventID,
		Quantity:       req.Quantity,
		Status:         models.PaymentPending,
		RefundedAmount: decimal.Zero,
	}

	if !models.KnownPurpose(payment.Purpose) {
		return nil, status.ErrUnknownPurpose
	}
	if payment.Purpose == models.PurposeBooking {
		if payment.EventID == "" || payment.Quantity <= 0 {
			return nil, fmt.Errorf("%w: booking payments need an event and a positive quantity", status.ErrInvalidAmount)
		}
	}

	if err := s.payments.CreatePayment(ctx, payment); err != nil {
		return nil, err
	}

	gw := s.gw
	intent, err := s.callCreateIntent(ctx, gw, &gateway.IntentRequest{
		ReferenceID: payment.ID,
		Payer:       payment.Payer,
		Amount:      payment.Amount,
		Currency:    payment.Currency,
		Description: req.Description,
	})
	if err != nil {
		s.monitor.TrackPayment("intent_error", string(gw.GetProvider()))
		return payment, fmt.Errorf("%w: %v", status.ErrGatewayUnavailable, err)
	}

	if err := s.payments.SetPaymentIntent(ctx, payment.ID, intent.ExternalRef, intent.QRCode); err != nil {
		return nil, err
	}

	payment.ExternalRef = intent.ExternalRef
	payment.QRCode = intent.QRCode
	s.monitor.TrackPayment("initiated", string(gw.GetProvider()))

	return payment, nil
}

func (s *PaymentService) callCreateIntent(ctx context.Context, gw gateway.Gateway, req *gateway.IntentRequest) (*gateway.Intent, error) {
	started := time.Now()
	result, err := s.breaker.Execute(ctx, func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
		defer cancel()
		return gw.CreateIntent(callCtx, req)
	})
	s.monitor.TrackGatewayCall(string(gw.GetProvider()), "create_intent", time.Since(started))
	if err != nil {
		return nil, err
	}
	return result.(*gateway.Intent), nil
}

func (s *PaymentService) PaymentByID(ctx context.Context, id string) (*models.Payment, error) {
	return s.payments.PaymentByID(ctx, id)
}

// ApplyGatewayCallback applies one gateway notification to the ledger.
// Redelivered callbacks for an already settled payment are ignored.
func (s *PaymentService) ApplyGatewayCallback(ctx context.Context, event *gateway.CallbackEvent) error {
	payment, err := s.payments.PaymentByExternalRef(ctx, event.ExternalRef)
	if err != nil {
		return err
	}

	provider := string(s.gw.GetProvider())

	switch event.Status {
	case gateway.CallbackCompleted:
		completedAt := event.ReceivedAt
		if completedAt.IsZero() {
			completedAt = time.Now().UTC()
		}

		changed, err := s.payments.CompletePayment(ctx, payment.ID, completedAt)
		if err != nil {
			return err
		}
		if !changed {
			// Duplicate delivery or a payment already failed by the
			// reconciler; either way this callback is spent.
			return nil
		}

		payment.Status = models.PaymentCompleted
		payment.CompletedAt = &completedAt
		s.monitor.TrackPayment("completed", provider)
		s.notifier.PaymentCompleted(payment)

		if payment.Purpose == models.PurposeBooking {
			s.trigger(payment.ID)
		}
		return nil

	case gateway.CallbackFailed:
		changed, err := s.payments.FailPayment(ctx, payment.ID, event.Reason)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}

		payment.Status = models.PaymentFailed
		payment.FailureReason = event.Reason
		s.monitor.TrackPayment("failed", provider)
		s.notifier.PaymentFailed(payment)
		return nil

	default:
		return fmt.Errorf("unknown callback status %q", event.Status)
	}
}

// HandleWebhook verifies, parses, and applies one raw webhook delivery.
func (s *PaymentService) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	gw := s.gw

	if !gw.VerifySignature(body, signature) {
		return status.ErrInvalidSignature
	}

	event, err := gw.ParseCallback(body)
	if err != nil {
		return err
	}

	return s.ApplyGatewayCallback(ctx, event)
}

// Refund returns amount to the payer. Partial refunds accumulate; the
// last one flips the payment to refunded. The refundable balance is
// claimed in the ledger before the gateway call, so two concurrent
// refunds can never both spend the same remainder; the claim carries a
// compare-and-set on the running total, and the loser re-reads.
func (s *PaymentService) Refund(ctx context.Context, paymentID string, amount decimal.Decimal) (*models.Payment, error) {
	if !amount.IsPositive() {
		return nil, status.ErrInvalidAmount
	}

	for attempt := 0; attempt < 3; attempt++ {
		payment, err := s.payments.PaymentByID(ctx, paymentID)
		if err != nil {
			return nil, err
		}

		if !payment.Refundable() {
			if payment.Status == models.PaymentPending {
				return nil, status.ErrPaymentNotCompleted
			}
			return nil, status.ErrNotRefundable
		}

		if amount.GreaterThan(payment.RemainingRefundable()) {
			return nil, status.ErrRefundExceedsOriginal
		}

		prev := payment.RefundedAmount
		next := prev.Add(amount)
		target := models.PaymentPartiallyRefunded
		if next.GreaterThanOrEqual(payment.Amount) {
			target = models.PaymentRefunded
		}

		claimed, err := s.payments.MarkPaymentRefunded(ctx, payment.ID,
			[]string{models.PaymentCompleted, models.PaymentPartiallyRefunded}, target, prev, next)
		if err != nil {
			return nil, err
		}
		if !claimed {
			// Another refund moved the balance under us; re-judge
			// against the fresh remainder.
			continue
		}

		gw := s.gw
		started := time.Now()
		_, err = s.breaker.Execute(ctx, func() (interface{}, error) {
			callCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
			defer cancel()
			return gw.Refund(callCtx, payment.ExternalRef, amount)
		})
		s.monitor.TrackGatewayCall(string(gw.GetProvider()), "refund", time.Since(started))
		if err != nil {
			// The money never moved; hand the claim back.
			if _, revertErr := s.payments.MarkPaymentRefunded(ctx, payment.ID,
				[]string{target}, payment.Status, next, prev); revertErr != nil {
				log.Printf("revert refund claim for payment %s: %v\n", payment.ID, revertErr)
			}
			return nil, fmt.Errorf("%w: %v", status.ErrGatewayUnavailable, err)
		}

		payment.Status = target
		payment.RefundedAmount = next
		s.monitor.TrackPayment("refunded", string(gw.GetProvider()))

		return payment, nil
	}

	return nil, status.ErrNotRefundable
}

// ConsumeCallbacks drains a gateway push feed until the channel closes.
func (s *PaymentService) ConsumeCallbacks(ch <-chan *gateway.CallbackEvent) {
	for event := range ch {
		if event == nil {
			continue
		}
		if err := s.ApplyGatewayCallback(context.Background(), event); err != nil &&
			!errors.Is(err, status.ErrPaymentNotFound) {
			log.Printf("apply gateway callback %s: %v\n", event.ExternalRef, err)
		}
	}
}

func (s *PaymentService) trigger(paymentID string) {
	select {
	case s.triggers <- paymentID:
	default:
		// Full buffer is fine, the reconciler sweep re-drives anything
		// the channel dropped.
	}
}
