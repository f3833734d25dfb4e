package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/domain"
)

// JazzCash delivers form-encoded IPNs whose pp_ fields are authenticated by an
// HMAC-SHA256 secure hash: the integrity salt, then every non-empty pp_ value
// except the hash itself, sorted by field name and joined with '&'.
type JazzCash struct {
	salt []byte
}

// NewJazzCash creates the JazzCash adapter with the merchant's integrity salt.
func NewJazzCash(integritySalt string) *JazzCash {
	return &JazzCash{salt: []byte(integritySalt)}
}

func (j *JazzCash) Slug() string { return "jazzcash" }

func (j *JazzCash) Ack() string { return `{"pp_ResponseCode":"000","pp_ResponseMessage":"received"}` }

// jazzcashStatus maps pp_ResponseCode onto the canonical vocabulary. Codes not
// listed are treated as failures; JazzCash does not deliver reversal IPNs.
var jazzcashStatus = map[string]domain.ReportedStatus{
	"000": domain.ReportedSuccess,
	"121": domain.ReportedSuccess,
	"124": domain.ReportedPending,
	"157": domain.ReportedPending,
}

func (j *JazzCash) Normalize(payload []byte, _ RequestMeta) (*domain.NormalizedEvent, error) {
	values, err := url.ParseQuery(string(payload))
	if err != nil {
		return nil, &domain.MalformedPayloadError{Provider: j.Slug(), Reason: "not form-encoded"}
	}

	for _, field := range []string{"pp_TxnRefNo", "pp_ResponseCode", "pp_Amount", "pp_SecureHash"} {
		if values.Get(field) == "" {
			return nil, &domain.MalformedPayloadError{Provider: j.Slug(), Reason: "missing " + field}
		}
	}

	if !j.verifySecureHash(values) {
		return nil, &domain.AuthenticationError{Provider: j.Slug(), Reason: "secure hash mismatch"}
	}

	// pp_Amount is already expressed in paisa (minor units).
	amount, err := strconv.ParseInt(values.Get("pp_Amount"), 10, 64)
	if err != nil {
		return nil, &domain.MalformedPayloadError{Provider: j.Slug(), Reason: "pp_Amount not an integer"}
	}
	if amount <= 0 {
		return nil, &domain.MalformedPayloadError{Provider: j.Slug(), Reason: "pp_Amount must be positive"}
	}

	status, ok := jazzcashStatus[values.Get("pp_ResponseCode")]
	if !ok {
		status = domain.ReportedFailed
	}

	eventID := values.Get("pp_RetreivalReferenceNo")
	if eventID == "" {
		eventID = values.Get("pp_TxnRefNo") + "-" + values.Get("pp_TxnDateTime")
	}

	occurred := time.Now().UTC()
	if ts := values.Get("pp_TxnDateTime"); ts != "" {
		if parsed, err := time.Parse("20060102150405", ts); err == nil {
			occurred = parsed
		}
	}

	currency := values.Get("pp_TxnCurrency")
	if currency == "" {
		currency = "PKR"
	}

	return &domain.NormalizedEvent{
		ProviderName:      j.Slug(),
		ProviderEventID:   eventID,
		ProviderReference: values.Get("pp_TxnRefNo"),
		ReportedStatus:    status,
		Amount:            amount,
		Currency:          currency,
		OccurredAt:        occurred,
		SignatureValid:    true,
		Raw:               payload,
	}, nil
}

func (j *JazzCash) verifySecureHash(values url.Values) bool {
	var names []string
	for name := range values {
		if name != "pp_SecureHash" && strings.HasPrefix(name, "pp_") && values.Get(name) != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names)+1)
	parts = append(parts, string(j.salt))
	for _, name := range names {
		parts = append(parts, values.Get(name))
	}

	mac := hmac.New(sha256.New, j.salt)
	mac.Write([]byte(strings.Join(parts, "&")))
	want := hex.EncodeToString(mac.Sum(nil))
	got := strings.ToLower(values.Get("pp_SecureHash"))
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}
