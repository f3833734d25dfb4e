// Package config collects the service's policy knobs from the environment.
// Every cadence and policy the reconciliation core depends on is pinned here
// explicitly rather than assumed.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full runtime configuration of the IPN service.
type Config struct {
	// ListenAddr is the HTTP bind address.
	ListenAddr string

	// DBPath is the BoltDB file path.
	DBPath string

	// SettlementInterval is the cadence of the settlement aggregator.
	SettlementInterval time.Duration

	// RecoverySweepInterval is the cadence of the disbursement recovery sweep
	// and the stale idempotency-reservation cleanup.
	RecoverySweepInterval time.Duration

	// ReservationTTL is how long an uncommitted idempotency reservation may
	// exist before the sweep releases it.
	ReservationTTL time.Duration

	// PayoutCallTimeout bounds the outbound payout call and the sweep's
	// status re-query.
	PayoutCallTimeout time.Duration

	// PayoutStaleAfter is how long a payout may sit in INITIATED/PENDING
	// before the recovery sweep re-queries the provider for it.
	PayoutStaleAfter time.Duration

	// AllowNegativeOnReversal decides whether an approved reversal may drive a
	// merchant's available balance below zero. Chargebacks are forced by the
	// network, so the default is true: the merchant owes the money back even
	// if it has been spent.
	AllowNegativeOnReversal bool

	// PayoutProviderName is the adapter slug of the outbound payout rail.
	PayoutProviderName string

	// PayoutBaseURL and PayoutAPIKey configure the outbound payout client.
	PayoutBaseURL string
	PayoutAPIKey  string

	// Currency for payout transactions.
	Currency string

	// Per-provider webhook credentials.
	JazzCashIntegritySalt string
	EasypaisaSecret       string
	CardnetSecret         string
	OneLinkAllowedCIDRs   []string
}

// FromEnv builds a Config from environment variables, applying defaults where
// unset. Malformed durations and booleans fall back to the default silently;
// main logs the effective configuration at startup.
func FromEnv() *Config {
	return &Config{
		ListenAddr:              getenv("LISTEN_ADDR", ":8080"),
		DBPath:                  getenv("DB_PATH", "ipn.db"),
		SettlementInterval:      duration("SETTLEMENT_INTERVAL", time.Hour),
		RecoverySweepInterval:   duration("RECOVERY_SWEEP_INTERVAL", 2*time.Minute),
		ReservationTTL:          duration("RESERVATION_TTL", 10*time.Minute),
		PayoutCallTimeout:       duration("PAYOUT_CALL_TIMEOUT", 15*time.Second),
		PayoutStaleAfter:        duration("PAYOUT_STALE_AFTER", 5*time.Minute),
		AllowNegativeOnReversal: boolean("ALLOW_NEGATIVE_ON_REVERSAL", true),
		PayoutProviderName:      getenv("PAYOUT_PROVIDER", "cardnet"),
		PayoutBaseURL:           getenv("PAYOUT_BASE_URL", "http://localhost:9090"),
		PayoutAPIKey:            os.Getenv("PAYOUT_API_KEY"),
		Currency:                getenv("CURRENCY", "PKR"),
		JazzCashIntegritySalt:   os.Getenv("JAZZCASH_INTEGRITY_SALT"),
		EasypaisaSecret:         os.Getenv("EASYPAISA_SECRET"),
		CardnetSecret:           os.Getenv("CARDNET_SECRET"),
		OneLinkAllowedCIDRs:     list("ONELINK_ALLOWED_CIDRS", []string{"127.0.0.0/8"}),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func boolean(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func list(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
