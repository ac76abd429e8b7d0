package services

import (
	"fmt"
	"log"

	pubnub "github.com/pubnub/go"

	"ticketflow/models"
)

// Notifier pushes lifecycle updates to payer-facing channels. Delivery
// is best effort; lifecycle state never depends on it.
type Notifier interface {
	PaymentCompleted(payment *models.Payment)
	PaymentFailed(payment *models.Payment)
	BookingConfirmed(booking *models.Booking)
	BookingCancelled(booking *models.Booking)
}

// PubNubNotifier publishes to per-payer channels.
type PubNubNotifier struct {
	client *pubnub.PubNub
}

func NewPubNubNotifier(publishKey, subscribeKey, uuid string) *PubNubNotifier {
	config := pubnub.NewConfig()
	config.PublishKey = publishKey
	config.SubscribeKey = subscribeKey
	config.UUID = uuid

	return &PubNubNotifier{client: pubnub.NewPubNub(config)}
}

func payerChannel(payer string) string {
	return fmt.Sprintf("payer.%s", payer)
}

func (n *PubNubNotifier) publish(channel string, message map[string]any) {
	go func() {
		_, _, err := n.client.Publish().Channel(channel).Message(message).Execute()
		if err != nil {
			log.Printf("notify %s: %v\n", channel, err)
		}
	}()
}

func (n *PubNubNotifier) PaymentCompleted(payment *models.Payment) {
	n.publish(payerChannel(payment.Payer), map[string]any{
		"type":       "payment.completed",
		"payment_id": payment.ID,
		"amount":     payment.Amount.String(),
		"currency":   payment.Currency,
	})
}

func (n *PubNubNotifier) PaymentFailed(payment *models.Payment) {
	n.publish(payerChannel(payment.Payer), map[string]any{
		"type":       "payment.failed",
		"payment_id": payment.ID,
		"reason":     payment.FailureReason,
	})
}

func (n *PubNubNotifier) BookingConfirmed(booking *models.Booking) {
	n.publish(payerChannel(booking.Payer), map[string]any{
		"type":       "booking.confirmed",
		"booking_id": booking.ID,
		"event_id":   booking.EventID,
		"quantity":   booking.Quantity,
		"tickets":    booking.TicketIDs,
	})
}

func (n *PubNubNotifier) BookingCancelled(booking *models.Booking) {
	n.publish(payerChannel(booking.Payer), map[string]any{
		"type":       "booking.cancelled",
		"booking_id": booking.ID,
		"reason":     booking.CancelReason,
	})
}

// NopNotifier is used in tests and when push keys are not configured.
type NopNotifier struct{}

func (NopNotifier) PaymentCompleted(*models.Payment) {}
func (NopNotifier) PaymentFailed(*models.Payment)    {}
func (NopNotifier) BookingConfirmed(*models.Booking) {}
func (NopNotifier) BookingCancelled(*models.Booking) {}
