package services

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"ticketflow/internal/status"
	"ticketflow/store"
)

const sweepBatchSize = 100

// Reconciler is the safety net behind the happy path. It drives
// booking materialization off the payment trigger channel, replays
// completed payments that never got a booking (crash between capture
// and confirmation), retries compensating refunds, and expires pending
// payments the gateway went silent on.
type Reconciler struct {
	payments  *PaymentService
	bookings  *BookingService
	ledger    store.PaymentStore
	interval  time.Duration
	pendTTL   time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewReconciler(
	payments *PaymentService,
	bookings *BookingService,
	ledger store.PaymentStore,
	interval, pendingTTL time.Duration,
) *Reconciler {
	return &Reconciler{
		payments: payments,
		bookings: bookings,
		ledger:   ledger,
		interval: interval,
		pendTTL:  pendingTTL,
		stopChan: make(chan struct{}),
	}
}

// Start runs one replay sweep synchronously so nothing captured during
// downtime waits for the first tick, then launches the workers.
func (r *Reconciler) Start(ctx context.Context) {
	r.replayCompleted(ctx)

	r.wg.Add(2)
	go r.consumeTriggers()
	go r.sweepLoop()
}

func (r *Reconciler) Stop() {
	close(r.stopChan)
	r.wg.Wait()
}

func (r *Reconciler) consumeTriggers() {
	defer r.wg.Done()

	for {
		select {
		case <-r.stopChan:
			return
		case paymentID := <-r.payments.Triggers():
			if _, err := r.bookings.ConfirmBooking(context.Background(), paymentID); err != nil {
				log.Printf("confirm booking for payment %s: %v\n", paymentID, err)
			}
		}
	}
}

func (r *Reconciler) sweepLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			ctx := context.Background()
			r.replayCompleted(ctx)
			r.retryRefunds(ctx)
			r.expirePending(ctx)
		}
	}
}

// replayCompleted re-drives captured booking payments that have no
// booking row yet.
func (r *Reconciler) replayCompleted(ctx context.Context) {
	payments, err := r.ledger.CompletedPaymentsWithoutBooking(ctx, sweepBatchSize)
	if err != nil {
		log.Printf("replay sweep: %v\n", err)
		return
	}

	for _, p := range payments {
		if _, err := r.bookings.ConfirmBooking(ctx, p.ID); err != nil {
			log.Printf("replay booking for payment %s: %v\n", p.ID, err)
		}
	}
}

// retryRefunds finishes compensating refunds that failed when the
// booking was cancelled.
func (r *Reconciler) retryRefunds(ctx context.Context) {
	payments, err := r.ledger.RefundablePaymentsWithCancelledBooking(ctx, sweepBatchSize)
	if err != nil {
		log.Printf("refund sweep: %v\n", err)
		return
	}

	for _, p := range payments {
		if !p.Refundable() {
			continue
		}
		if _, err := r.payments.Refund(ctx, p.ID, p.RemainingRefundable()); err != nil &&
			!errors.Is(err, status.ErrNotRefundable) {
			log.Printf("retry refund for payment %s: %v\n", p.ID, err)
		}
	}
}

// expirePending fails pending payments older than the payment timeout.
func (r *Reconciler) expirePending(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-r.pendTTL)
	expired, err := r.ledger.FailStalePending(ctx, cutoff, "payment window expired")
	if err != nil {
		log.Printf("expire sweep: %v\n", err)
		return
	}
	if expired > 0 {
		log.Printf("expired %d stale pending payments\n", expired)
	}
}
