package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"ticketflow/internal/gateway/yespay"
	"ticketflow/utils"
)

// yesPayAdapter wraps the YesPay client to conform to Gateway.
type yesPayAdapter struct {
	client *yespay.YesPay
	bridge chan *yespay.Transaction
}

func newYesPayAdapter(ctx context.Context, config *yespay.Config) (*yesPayAdapter, error) {
	client, err := yespay.New(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create YesPay client: %w", err)
	}

	return &yesPayAdapter{
		client: client,
	}, nil
}

func (y *yesPayAdapter) GetProvider() Provider {
	return ProviderYesPay
}

func (y *yesPayAdapter) CreateIntent(ctx context.Context, req *IntentRequest) (*Intent, error) {
	code, err := utils.GenerateCode(8)
	if err != nil {
		return nil, err
	}

	billNumber, emv, err := y.client.CreateBill(ctx, &yespay.BillForm{
		BillNumber:     fmt.Sprintf("YP-%s", code),
		ReferenceLabel: req.ReferenceID,
		Amount:         req.Amount,
		Ccy:            req.Currency,
	})
	if err != nil {
		return nil, err
	}

	return &Intent{
		ExternalRef: billNumber,
		QRCode:      emv,
	}, nil
}

func (y *yesPayAdapter) Refund(ctx context.Context, externalRef string, amount decimal.Decimal) (string, error) {
	return y.client.Refund(ctx, externalRef, amount)
}

func (y *yesPayAdapter) VerifySignature(payload []byte, signature string) bool {
	return y.client.VerifyWebhook(payload, signature)
}

func (y *yesPayAdapter) ParseCallback(payload []byte) (*CallbackEvent, error) {
	tran, err := yespay.ParseWebhook(payload)
	if err != nil {
		return nil, err
	}
	return yesPayCallbackEvent(tran), nil
}

func (y *yesPayAdapter) CheckTransaction(ctx context.Context, externalRef string) (*CallbackEvent, error) {
	tran, err := y.client.CheckTransaction(ctx, externalRef)
	if err != nil {
		return nil, err
	}
	return yesPayCallbackEvent(tran), nil
}

// SetCallbackChannel bridges the provider's transaction feed into the
// ledger's normalized callback channel.
func (y *yesPayAdapter) SetCallbackChannel(ch chan *CallbackEvent) {
	y.bridge = make(chan *yespay.Transaction, cap(ch))
	y.client.SetTranChannel(y.bridge)

	go func() {
		for tran := range y.bridge {
			ch <- yesPayCallbackEvent(tran)
		}
	}()
}

func (y *yesPayAdapter) Close(ctx context.Context) error {
	err := y.client.Close(ctx)
	if y.bridge != nil {
		close(y.bridge)
	}
	return err
}

func yesPayCallbackEvent(tran *yespay.Transaction) *CallbackEvent {
	status := CallbackCompleted
	if tran.State == "FAILED" {
		status = CallbackFailed
	}

	return &CallbackEvent{
		ExternalRef: tran.BillNumber,
		Status:      status,
		Amount:      tran.Amount,
		Currency:    tran.Ccy,
		Reason:      tran.Reason,
		ReceivedAt:  time.Now(),
	}
}
