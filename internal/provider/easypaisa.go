package provider

import (
	"crypto/subtle"
	"encoding/json"
	"time"

	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/domain"
)

// Easypaisa delivers JSON IPNs authenticated by a shared secret carried in the
// body itself. Amounts arrive as decimal rupee strings.
type Easypaisa struct {
	secret string
}

// NewEasypaisa creates the Easypaisa adapter with the store's shared secret.
func NewEasypaisa(secret string) *Easypaisa {
	return &Easypaisa{secret: secret}
}

func (e *Easypaisa) Slug() string { return "easypaisa" }

func (e *Easypaisa) Ack() string { return `{"status":"received"}` }

var easypaisaStatus = map[string]domain.ReportedStatus{
	"PAID":     domain.ReportedSuccess,
	"PENDING":  domain.ReportedPending,
	"FAILED":   domain.ReportedFailed,
	"EXPIRED":  domain.ReportedFailed,
	"REVERSED": domain.ReportedReversed,
}

type easypaisaIPN struct {
	OrderID           string `json:"orderId"`
	TransactionID     string `json:"transactionId"`
	TransactionStatus string `json:"transactionStatus"`
	Amount            string `json:"transactionAmount"`
	Currency          string `json:"currency"`
	DateTime          string `json:"transactionDateTime"`
	StoreSecret       string `json:"storeSecret"`
}

func (e *Easypaisa) Normalize(payload []byte, _ RequestMeta) (*domain.NormalizedEvent, error) {
	var ipn easypaisaIPN
	if err := json.Unmarshal(payload, &ipn); err != nil {
		return nil, &domain.MalformedPayloadError{Provider: e.Slug(), Reason: "not valid JSON"}
	}
	if ipn.OrderID == "" || ipn.TransactionID == "" || ipn.TransactionStatus == "" || ipn.Amount == "" {
		return nil, &domain.MalformedPayloadError{Provider: e.Slug(), Reason: "missing required field"}
	}

	if subtle.ConstantTimeCompare([]byte(ipn.StoreSecret), []byte(e.secret)) != 1 {
		return nil, &domain.AuthenticationError{Provider: e.Slug(), Reason: "store secret mismatch"}
	}

	amount, err := minorUnits(ipn.Amount)
	if err != nil {
		return nil, &domain.MalformedPayloadError{Provider: e.Slug(), Reason: err.Error()}
	}
	if amount <= 0 {
		return nil, &domain.MalformedPayloadError{Provider: e.Slug(), Reason: "amount must be positive"}
	}

	status, ok := easypaisaStatus[ipn.TransactionStatus]
	if !ok {
		return nil, &domain.MalformedPayloadError{Provider: e.Slug(), Reason: "unknown status " + ipn.TransactionStatus}
	}

	occurred := time.Now().UTC()
	if ipn.DateTime != "" {
		if parsed, err := time.Parse(time.RFC3339, ipn.DateTime); err == nil {
			occurred = parsed
		}
	}

	currency := ipn.Currency
	if currency == "" {
		currency = "PKR"
	}

	return &domain.NormalizedEvent{
		ProviderName:      e.Slug(),
		ProviderEventID:   ipn.TransactionID,
		ProviderReference: ipn.OrderID,
		ReportedStatus:    status,
		Amount:            amount,
		Currency:          currency,
		OccurredAt:        occurred,
		SignatureValid:    true,
		Raw:               payload,
	}, nil
}
