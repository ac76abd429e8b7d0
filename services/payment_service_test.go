package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketflow/internal/gateway"
	"ticketflow/internal/status"
	"ticketflow/models"
	"ticketflow/monitoring"
)

func setupPaymentService() (*PaymentService, *memStore, *fakeGateway, *recordingNotifier) {
	st := newMemStore()
	gw := newFakeGateway()
	notifier := newRecordingNotifier()
	svc := NewPaymentService(st, gw, notifier, &monitoring.Monitor{}, time.Second)
	return svc, st, gw, notifier
}

func bookingPaymentRequest() *CreatePaymentRequest {
	return &CreatePaymentRequest{
		Payer:    "user-1",
		Amount:   decimal.NewFromInt(300),
		Currency: "LAK",
		Purpose:  models.PurposeBooking,
		EventID:  "event-1",
		Quantity: 3,
	}
}

func TestCreatePendingPayment_Success(t *testing.T) {
	svc, st, _, _ := setupPaymentService()

	payment, err := svc.CreatePendingPayment(context.Background(), bookingPaymentRequest())
	require.NoError(t, err)

	assert.Equal(t, models.PaymentPending, payment.Status)
	assert.Equal(t, "EXT-"+payment.ID, payment.ExternalRef)
	assert.NotEmpty(t, payment.QRCode)

	stored, err := st.PaymentByID(context.Background(), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.ExternalRef, stored.ExternalRef)
}

func TestCreatePendingPayment_RejectsNonPositiveAmount(t *testing.T) {
	svc, _, _, _ := setupPaymentService()

	req := bookingPaymentRequest()
	req.Amount = decimal.Zero

	_, err := svc.CreatePendingPayment(context.Background(), req)
	assert.ErrorIs(t, err, status.ErrInvalidAmount)

	req.Amount = decimal.NewFromInt(-5)
	_, err = svc.CreatePendingPayment(context.Background(), req)
	assert.ErrorIs(t, err, status.ErrInvalidAmount)
}

func TestCreatePendingPayment_RejectsUnknownPurpose(t *testing.T) {
	svc, _, _, _ := setupPaymentService()

	req := bookingPaymentRequest()
	req.Purpose = "donation"

	_, err := svc.CreatePendingPayment(context.Background(), req)
	assert.ErrorIs(t, err, status.ErrUnknownPurpose)
}

func TestCreatePendingPayment_GatewayFailureKeepsPendingRecord(t *testing.T) {
	svc, st, gw, _ := setupPaymentService()
	gw.intentErr = errors.New("connection refused")

	payment, err := svc.CreatePendingPayment(context.Background(), bookingPaymentRequest())
	require.ErrorIs(t, err, status.ErrGatewayUnavailable)
	require.NotNil(t, payment)

	stored, err := st.PaymentByID(context.Background(), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, stored.Status)
	assert.Empty(t, stored.ExternalRef)
}

func TestApplyGatewayCallback_CompletedIsIdempotent(t *testing.T) {
	svc, st, _, notifier := setupPaymentService()

	payment, err := svc.CreatePendingPayment(context.Background(), bookingPaymentRequest())
	require.NoError(t, err)

	event := &gateway.CallbackEvent{
		ExternalRef: payment.ExternalRef,
		Status:      gateway.CallbackCompleted,
		Amount:      payment.Amount,
		ReceivedAt:  time.Now().UTC(),
	}

	require.NoError(t, svc.ApplyGatewayCallback(context.Background(), event))
	require.NoError(t, svc.ApplyGatewayCallback(context.Background(), event))
	require.NoError(t, svc.ApplyGatewayCallback(context.Background(), event))

	stored, err := st.PaymentByID(context.Background(), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, stored.Status)
	require.NotNil(t, stored.CompletedAt)

	assert.Equal(t, 1, notifier.count("payment.completed"))

	// Exactly one materialization trigger despite three deliveries.
	select {
	case id := <-svc.Triggers():
		assert.Equal(t, payment.ID, id)
	default:
		t.Fatal("expected a booking trigger")
	}
	select {
	case <-svc.Triggers():
		t.Fatal("duplicate callback must not trigger twice")
	default:
	}
}

func TestApplyGatewayCallback_Failed(t *testing.T) {
	svc, st, _, notifier := setupPaymentService()

	payment, err := svc.CreatePendingPayment(context.Background(), bookingPaymentRequest())
	require.NoError(t, err)

	event := &gateway.CallbackEvent{
		ExternalRef: payment.ExternalRef,
		Status:      gateway.CallbackFailed,
		Reason:      "insufficient funds",
	}
	require.NoError(t, svc.ApplyGatewayCallback(context.Background(), event))

	stored, err := st.PaymentByID(context.Background(), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, stored.Status)
	assert.Equal(t, "insufficient funds", stored.FailureReason)
	assert.Equal(t, 1, notifier.count("payment.failed"))

	select {
	case <-svc.Triggers():
		t.Fatal("failed payment must not trigger a booking")
	default:
	}
}

func TestApplyGatewayCallback_UnknownRef(t *testing.T) {
	svc, _, _, _ := setupPaymentService()

	err := svc.ApplyGatewayCallback(context.Background(), &gateway.CallbackEvent{
		ExternalRef: "EXT-missing",
		Status:      gateway.CallbackCompleted,
	})
	assert.ErrorIs(t, err, status.ErrPaymentNotFound)
}

func TestHandleWebhook_BadSignature(t *testing.T) {
	svc, _, gw, _ := setupPaymentService()
	gw.verifyOK = false

	err := svc.HandleWebhook(context.Background(), []byte(`{}`), "bogus")
	assert.ErrorIs(t, err, status.ErrInvalidSignature)
}

func TestRefund_PartialThenFull(t *testing.T) {
	svc, st, gw, _ := setupPaymentService()
	ctx := context.Background()

	payment, err := svc.CreatePendingPayment(ctx, bookingPaymentRequest())
	require.NoError(t, err)
	require.NoError(t, svc.ApplyGatewayCallback(ctx, &gateway.CallbackEvent{
		ExternalRef: payment.ExternalRef,
		Status:      gateway.CallbackCompleted,
	}))

	partial, err := svc.Refund(ctx, payment.ID, decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPartiallyRefunded, partial.Status)
	assert.True(t, partial.RefundedAmount.Equal(decimal.NewFromInt(100)))

	// The second refund is judged against the remaining balance.
	_, err = svc.Refund(ctx, payment.ID, decimal.NewFromInt(250))
	assert.ErrorIs(t, err, status.ErrRefundExceedsOriginal)

	full, err := svc.Refund(ctx, payment.ID, decimal.NewFromInt(200))
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefunded, full.Status)
	assert.True(t, full.RemainingRefundable().IsZero())

	_, err = svc.Refund(ctx, payment.ID, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, status.ErrNotRefundable)

	assert.Equal(t, 2, gw.refundCount())

	stored, err := st.PaymentByID(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefunded, stored.Status)
}

func TestRefund_ConcurrentRefundsSpendBalanceOnce(t *testing.T) {
	svc, st, gw, _ := setupPaymentService()
	ctx := context.Background()

	payment, err := svc.CreatePendingPayment(ctx, bookingPaymentRequest())
	require.NoError(t, err)
	require.NoError(t, svc.ApplyGatewayCallback(ctx, &gateway.CallbackEvent{
		ExternalRef: payment.ExternalRef,
		Status:      gateway.CallbackCompleted,
	}))

	// Two operators refund 200 of the 300 at the same time. The ledger
	// claim serializes them: only one may spend the balance.
	amount := decimal.NewFromInt(200)
	var wg sync.WaitGroup
	outcomes := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Refund(ctx, payment.ID, amount)
			outcomes <- err
		}()
	}
	wg.Wait()
	close(outcomes)

	var succeeded, rejected int
	for err := range outcomes {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, status.ErrRefundExceedsOriginal)
		rejected++
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)

	assert.Equal(t, 1, gw.refundCount())

	stored, err := st.PaymentByID(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPartiallyRefunded, stored.Status)
	assert.True(t, stored.RefundedAmount.Equal(amount))
}

func TestRefund_PendingPayment(t *testing.T) {
	svc, _, _, _ := setupPaymentService()
	ctx := context.Background()

	payment, err := svc.CreatePendingPayment(ctx, bookingPaymentRequest())
	require.NoError(t, err)

	_, err = svc.Refund(ctx, payment.ID, decimal.NewFromInt(10))
	assert.ErrorIs(t, err, status.ErrPaymentNotCompleted)
}

func TestRefund_GatewayFailureLeavesLedgerUntouched(t *testing.T) {
	svc, st, gw, _ := setupPaymentService()
	ctx := context.Background()

	payment, err := svc.CreatePendingPayment(ctx, bookingPaymentRequest())
	require.NoError(t, err)
	require.NoError(t, svc.ApplyGatewayCallback(ctx, &gateway.CallbackEvent{
		ExternalRef: payment.ExternalRef,
		Status:      gateway.CallbackCompleted,
	}))

	gw.refundErr = errors.New("timeout")
	_, err = svc.Refund(ctx, payment.ID, decimal.NewFromInt(100))
	require.ErrorIs(t, err, status.ErrGatewayUnavailable)

	stored, err := st.PaymentByID(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, stored.Status)
	assert.True(t, stored.RefundedAmount.IsZero())
}
