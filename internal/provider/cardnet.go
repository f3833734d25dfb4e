package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/domain"
)

// signatureHeader carries the hex HMAC-SHA256 of the raw request body.
const signatureHeader = "X-Cardnet-Signature"

// Cardnet is the card-network rail. Deliveries are JSON with amounts already
// in minor units, authenticated by an HMAC signature header over the raw body.
// It is also the outbound payout rail: payout confirmations arrive here with
// the disbursement's idempotency key as the reference.
type Cardnet struct {
	secret []byte
}

// NewCardnet creates the Cardnet adapter with the webhook signing secret.
func NewCardnet(secret string) *Cardnet {
	return &Cardnet{secret: []byte(secret)}
}

func (c *Cardnet) Slug() string { return "cardnet" }

func (c *Cardnet) Ack() string { return `{"received":true}` }

var cardnetStatus = map[string]domain.ReportedStatus{
	"approved":   domain.ReportedSuccess,
	"declined":   domain.ReportedFailed,
	"processing": domain.ReportedPending,
	"reversal":   domain.ReportedReversed,
}

type cardnetIPN struct {
	EventID    string `json:"event_id"`
	Reference  string `json:"reference"`
	Status     string `json:"status"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	OccurredAt string `json:"occurred_at"`
}

func (c *Cardnet) Normalize(payload []byte, meta RequestMeta) (*domain.NormalizedEvent, error) {
	if !c.verifySignature(payload, meta.Headers.Get(signatureHeader)) {
		return nil, &domain.AuthenticationError{Provider: c.Slug(), Reason: "body signature mismatch"}
	}

	var ipn cardnetIPN
	if err := json.Unmarshal(payload, &ipn); err != nil {
		return nil, &domain.MalformedPayloadError{Provider: c.Slug(), Reason: "not valid JSON"}
	}
	if ipn.EventID == "" || ipn.Reference == "" || ipn.Status == "" {
		return nil, &domain.MalformedPayloadError{Provider: c.Slug(), Reason: "missing required field"}
	}
	if ipn.Amount <= 0 {
		return nil, &domain.MalformedPayloadError{Provider: c.Slug(), Reason: "non-positive amount"}
	}

	status, ok := cardnetStatus[ipn.Status]
	if !ok {
		return nil, &domain.MalformedPayloadError{Provider: c.Slug(), Reason: "unknown status " + ipn.Status}
	}

	occurred := time.Now().UTC()
	if ipn.OccurredAt != "" {
		if parsed, err := time.Parse(time.RFC3339, ipn.OccurredAt); err == nil {
			occurred = parsed
		}
	}

	currency := ipn.Currency
	if currency == "" {
		currency = "PKR"
	}

	return &domain.NormalizedEvent{
		ProviderName:      c.Slug(),
		ProviderEventID:   ipn.EventID,
		ProviderReference: ipn.Reference,
		ReportedStatus:    status,
		Amount:            ipn.Amount,
		Currency:          currency,
		OccurredAt:        occurred,
		SignatureValid:    true,
		Raw:               payload,
	}, nil
}

func (c *Cardnet) verifySignature(body []byte, header string) bool {
	if header == "" {
		return false
	}
	got, err := hex.DecodeString(header)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), got)
}

// SignBody computes the signature header value for a body.
func (c *Cardnet) SignBody(body []byte) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
