package yespay

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	pubnub "github.com/pubnub/go/v7"
	"github.com/shopspring/decimal"
)

type (
	Config struct {
		MerchantID string `json:"merchantId" mapstructure:"merchant_id"`
		CCy        string `json:"ccy" mapstructure:"ccy"`

		PNSubKey    string `json:"pn_subkey" mapstructure:"pn_subkey"`
		PNSubSecret string `json:"pn_subsecret" mapstructure:"pn_subsecret"`
		PNUUID      string `json:"pn_uuid" mapstructure:"pn_uuid"`
		PNChannel   string `json:"pn_channel" mapstructure:"pn_channel"`
		PNCipherKey string `json:"pn_cipherKey" mapstructure:"pn_cipherkey"`

		BaseURL string `json:"baseUrl" mapstructure:"base_url"`

		PartnerID string `json:"partnerId" mapstructure:"partner_id"`
		ClientID  string `json:"clientId" mapstructure:"client_id"`
		ClientKey string `json:"clientKey" mapstructure:"client_key"`
		HMACKey   string `json:"hmacKey" mapstructure:"hmac_key"`
	}

	YesPay struct {
		MerchantID string
		CCy        string

		pnSubKey    string
		pnSubSecret string
		pnUUID      string
		pnChannels  []string
		pnCipherKey string

		sub *subscribe

		client *Client
	}
)

// Transaction is one settled or failed capture reported by YesPay,
// either through the PubNub feed or the checkTransaction poll.
type Transaction struct {
	RefID         string
	BillNumber    string
	State         string
	Reason        string
	Ccy           string
	Payer         string
	AccountNumber string
	Amount        decimal.Decimal
	CreatedAt     time.Time
}

type payload struct {
	RefID         string          `json:"refNo"`
	BillNumber    string          `json:"billNumber"`
	State         string          `json:"state"`
	Reason        string          `json:"message"`
	Ccy           string          `json:"sourceCurrency"`
	Payer         string          `json:"sourceName"`
	AccountNumber string          `json:"sourceAccount"`
	Amount        decimal.Decimal `json:"txnAmount"`
	CreatedAt     string          `json:"txnDateTime"`
}

// New returns a new YesPay instance connected to the backend and
// subscribed to the transaction feed.
func New(ctx context.Context, cfg *Config) (*YesPay, error) {
	client := newClient(ctx, &ClientConfig{
		BaseURL:   cfg.BaseURL,
		PartnerID: cfg.PartnerID,
		ClientID:  cfg.ClientID,
		ClientKey: cfg.ClientKey,
		HMACKey:   cfg.HMACKey,
	})

	// Connect to the YesPay backend. Get access token.
	token, err := client.connect(ctx)
	if err != nil {
		return nil, err
	}
	client.setAccessToken(token)

	// Notify access token expired.
	go client.notifyAccessTokenExpired(ctx)

	y := &YesPay{
		MerchantID: cfg.MerchantID,
		CCy:        cfg.CCy,

		pnSubKey:    cfg.PNSubKey,
		pnSubSecret: cfg.PNSubSecret,
		pnUUID:      cfg.PNUUID,
		pnChannels:  []string{cfg.PNChannel},
		pnCipherKey: cfg.PNCipherKey,

		client: client,
	}

	// Set YesPay's PubNub config.
	pnCfg := pubnub.NewConfigWithUserId(pubnub.UserId(y.pnUUID))
	pnCfg.SubscribeKey = y.pnSubKey
	pnCfg.CipherKey = y.pnCipherKey
	pnCfg.SecretKey = y.pnSubSecret

	sub, err := y.newSubscription(ctx, pnCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to YesPay's PubNub channel: %v", err)
	}

	sub.pn.AddListener(sub.lis)
	y.sub = sub

	return y, nil
}

type subscribe struct {
	pn  *pubnub.PubNub
	lis *pubnub.Listener
	ch  chan *Transaction
}

func (y *YesPay) newSubscription(ctx context.Context, pnCfg *pubnub.Config) (*subscribe, error) {
	sub := &subscribe{
		pn:  pubnub.NewPubNub(pnCfg),
		lis: pubnub.NewListener(),
	}

	go sub.processSubscription(ctx)

	return sub, nil
}

func (s *subscribe) processSubscription(ctx context.Context) error {
	listener := s.lis
	for {
		select {
		case st := <-listener.Status:
			switch st.Category {
			case pubnub.PNConnectedCategory:
				log.Println("connected to pubnub")

			case pubnub.PNReconnectedCategory:
				log.Println("reconnected to pubnub")

			case pubnub.PNDisconnectedCategory:
				log.Println("disconnected from pubnub")

			case pubnub.PNTimeoutCategory:
				log.Println("timeout connect to pubnub")

			default:
				log.Printf("pubnub status category: %v", st.Category)
			}

		case message := <-listener.Message:
			var p payload
			dec := json.NewDecoder(strings.NewReader(message.Message.(string)))
			if err := dec.Decode(&p); err != nil {
				log.Println(err)
				continue
			}

			tran, err := p.ToDomain()
			if err != nil {
				log.Println(err)
				continue
			}

			if s.ch != nil {
				s.ch <- tran
			}

		case <-ctx.Done():
			log.Println("close yespay subscribe")
			return nil
		}
	}
}

func (p *payload) ToDomain() (*Transaction, error) {
	ts, err := time.ParseInLocation("2006-01-02 15:04:05", p.CreatedAt, time.Local)
	if err != nil {
		return nil, err
	}

	return &Transaction{
		RefID:         p.RefID,
		BillNumber:    p.BillNumber,
		State:         p.State,
		Reason:        p.Reason,
		Ccy:           p.Ccy,
		Payer:         p.Payer,
		AccountNumber: p.AccountNumber,
		Amount:        p.Amount,
		CreatedAt:     ts,
	}, nil
}

// addChannel subscribes to the per-bill channel so the transaction feed
// picks up settlement for a freshly created bill.
func (y *YesPay) addChannel(_ context.Context, billNumber string) {
	channel := fmt.Sprintf("%s_%s", y.MerchantID, billNumber)

	// Get last 2 minutes timetoken.
	tt := time.Now().Add(time.Duration(-2*time.Minute)).Unix() * 10000

	y.sub.pn.Subscribe().Channels([]string{channel}).Timetoken(tt).Execute()
}

func (y *YesPay) Unsubscribe(ctx context.Context, billNumber string) {
	y.sub.pn.Unsubscribe().Channels([]string{fmt.Sprintf("%s_%s", y.MerchantID, billNumber)}).Execute()
}

// SetTranChannel sets the channel receiving settled transactions.
func (y *YesPay) SetTranChannel(ch chan *Transaction) {
	y.sub.ch = ch
}

// CreateBill registers a capture attempt and returns its bill number
// plus the EMV QR payload the payer scans.
func (y *YesPay) CreateBill(ctx context.Context, f *BillForm) (string, string, error) {
	if f.MerchantID == "" {
		f.MerchantID = y.MerchantID
	}
	if f.Ccy == "" {
		f.Ccy = y.CCy
	}

	emvCode, err := y.client.createBill(ctx, f)
	if err != nil {
		return "", "", err
	}

	y.addChannel(ctx, f.BillNumber)

	return f.BillNumber, emvCode, nil
}

// Refund returns captured funds for a bill. Partial amounts are allowed.
func (y *YesPay) Refund(ctx context.Context, billNumber string, amount decimal.Decimal) (string, error) {
	return y.client.refund(ctx, billNumber, amount)
}

// CheckTransaction polls the backend for a bill's settlement state.
func (y *YesPay) CheckTransaction(ctx context.Context, billNumber string) (*Transaction, error) {
	return y.client.checkTransaction(ctx, billNumber)
}

// VerifyWebhook checks an inbound webhook body against its SignedHash
// header, the same HMAC scheme the backend requires on requests.
func (y *YesPay) VerifyWebhook(body []byte, signature string) bool {
	return VerifyHMAC(body, signature, y.client.hmacKey)
}

func (y *YesPay) Close(ctx context.Context) error {
	y.sub.pn.UnsubscribeAll()
	return nil
}
