package provider

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/domain"
)

// OneLink is the interbank switch rail. The switch does not sign deliveries;
// authenticity rests on a source-IP allowlist agreed with the switch operator.
// Payloads are JSON with ISO 8583 style response codes and rupee amounts.
type OneLink struct {
	allowed []*net.IPNet
}

// NewOneLink creates the 1LINK adapter. cidrs is the agreed source allowlist;
// invalid entries are rejected at wiring time.
func NewOneLink(cidrs []string) (*OneLink, error) {
	o := &OneLink{}
	for _, c := range cidrs {
		_, ipnet, err := net.ParseCIDR(c)
		if err != nil {
			return nil, fmt.Errorf("onelink allowlist entry %q: %w", c, err)
		}
		o.allowed = append(o.allowed, ipnet)
	}
	return o, nil
}

func (o *OneLink) Slug() string { return "onelink" }

func (o *OneLink) Ack() string { return `{"responseCode":"00"}` }

var onelinkStatus = map[string]domain.ReportedStatus{
	"00": domain.ReportedSuccess,
	"09": domain.ReportedPending,
	"21": domain.ReportedReversed,
}

type onelinkIPN struct {
	STAN             string `json:"stan"`
	RRN              string `json:"rrn"`
	ResponseCode     string `json:"responseCode"`
	Amount           string `json:"transactionAmount"`
	Currency         string `json:"currencyCode"`
	TransmissionTime string `json:"transmissionDateTime"`
}

func (o *OneLink) Normalize(payload []byte, meta RequestMeta) (*domain.NormalizedEvent, error) {
	if !o.originAllowed(meta.RemoteAddr) {
		return nil, &domain.AuthenticationError{Provider: o.Slug(), Reason: "source address not in allowlist"}
	}

	var ipn onelinkIPN
	if err := json.Unmarshal(payload, &ipn); err != nil {
		return nil, &domain.MalformedPayloadError{Provider: o.Slug(), Reason: "not valid JSON"}
	}
	if ipn.RRN == "" || ipn.ResponseCode == "" || ipn.Amount == "" {
		return nil, &domain.MalformedPayloadError{Provider: o.Slug(), Reason: "missing required field"}
	}

	amount, err := minorUnits(ipn.Amount)
	if err != nil {
		return nil, &domain.MalformedPayloadError{Provider: o.Slug(), Reason: err.Error()}
	}
	if amount <= 0 {
		return nil, &domain.MalformedPayloadError{Provider: o.Slug(), Reason: "amount must be positive"}
	}

	status, ok := onelinkStatus[ipn.ResponseCode]
	if !ok {
		status = domain.ReportedFailed
	}

	eventID := ipn.STAN
	if eventID == "" {
		eventID = ipn.RRN
	}

	// The transmission timestamp carries no year (MMDDhhmmss); anchor it on
	// the current one.
	occurred := time.Now().UTC()
	if ipn.TransmissionTime != "" {
		if parsed, err := time.Parse("0102150405", ipn.TransmissionTime); err == nil {
			occurred = time.Date(occurred.Year(), parsed.Month(), parsed.Day(),
				parsed.Hour(), parsed.Minute(), parsed.Second(), 0, time.UTC)
		}
	}

	currency := ipn.Currency
	if currency == "" {
		currency = "PKR"
	}

	return &domain.NormalizedEvent{
		ProviderName:      o.Slug(),
		ProviderEventID:   eventID,
		ProviderReference: ipn.RRN,
		ReportedStatus:    status,
		Amount:            amount,
		Currency:          currency,
		OccurredAt:        occurred,
		SignatureValid:    true,
		Raw:               payload,
	}, nil
}

func (o *OneLink) originAllowed(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, ipnet := range o.allowed {
		if ipnet.Contains(ip) {
			return true
		}
	}
	return false
}
