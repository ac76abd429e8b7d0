package models

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayment_Refundable(t *testing.T) {
	payment := &Payment{Amount: decimal.NewFromInt(100)}

	refundable := map[string]bool{
		PaymentPending:           false,
		PaymentCompleted:         true,
		PaymentFailed:            false,
		PaymentRefunded:          false,
		PaymentPartiallyRefunded: true,
	}
	for status, want := range refundable {
		payment.Status = status
		assert.Equal(t, want, payment.Refundable(), "status %s", status)
	}
}

func TestPayment_RemainingRefundable(t *testing.T) {
	payment := &Payment{
		Amount:         decimal.NewFromInt(300),
		RefundedAmount: decimal.NewFromInt(120),
		Status:         PaymentPartiallyRefunded,
	}

	assert.True(t, payment.RemainingRefundable().Equal(decimal.NewFromInt(180)))

	payment.RefundedAmount = payment.Amount
	assert.True(t, payment.RemainingRefundable().IsZero())
}

func TestKnownPurpose(t *testing.T) {
	for _, purpose := range []string{PurposeBooking, PurposeSubscription, PurposeUpgrade, PurposeRefund} {
		assert.True(t, KnownPurpose(purpose), purpose)
	}
	assert.False(t, KnownPurpose("donation"))
	assert.False(t, KnownPurpose(""))
}

func TestBooking_Cancellable(t *testing.T) {
	booking := &Booking{}

	cancellable := map[string]bool{
		BookingPending:   true,
		BookingConfirmed: true,
		BookingCompleted: false,
		BookingCancelled: false,
	}
	for status, want := range cancellable {
		booking.Status = status
		assert.Equal(t, want, booking.Cancellable(), "status %s", status)
	}
}

func TestPayment_AmountSurvivesJSON(t *testing.T) {
	payment := Payment{
		ID:             "pay001",
		Amount:         decimal.RequireFromString("199.99"),
		RefundedAmount: decimal.RequireFromString("50.01"),
		Status:         PaymentPartiallyRefunded,
	}

	data, err := json.Marshal(payment)
	require.NoError(t, err)

	var decoded Payment
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.True(t, payment.Amount.Equal(decoded.Amount))
	assert.True(t, payment.RefundedAmount.Equal(decoded.RefundedAmount))
}

func TestValidator_KeyHashNeverSerialized(t *testing.T) {
	validator := Validator{
		ID:      "gate-1",
		Label:   "North gate",
		KeyHash: "$2a$10$secret",
		Active:  true,
	}

	data, err := json.Marshal(validator)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret")
}
