// Package provider holds the per-provider adapter contract and its registry.
// An adapter is a pure function of the inbound request: it authenticates the
// delivery with the provider's own scheme, maps the provider's status
// vocabulary onto the canonical reported statuses and normalizes amounts to
// minor units. Adapters never touch storage.
package provider

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/domain"
)

// RequestMeta carries the transport facts an adapter may need to authenticate
// a delivery: headers for signature schemes, the remote address for IP
// allowlists. Authentication is an explicit input to the core, not something a
// middleware chain is trusted to have done.
type RequestMeta struct {
	Headers    http.Header
	RemoteAddr string
}

// Adapter normalizes one provider's webhook deliveries.
//
// Normalize fails with *domain.AuthenticationError when the signature, shared
// secret or origin check fails, and with *domain.MalformedPayloadError when
// required fields are absent or unparseable. In both cases the caller still
// acknowledges the provider; it just applies no state change.
type Adapter interface {
	// Slug is the routing key: the webhook path is /ipn/<slug>.
	Slug() string

	// Normalize parses and authenticates one raw delivery.
	Normalize(payload []byte, meta RequestMeta) (*domain.NormalizedEvent, error)

	// Ack is the acknowledgment body this provider expects with the 200.
	Ack() string
}

// Registry is the closed set of registered adapters, dispatched by slug.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter. Registering the same slug twice is a programming
// error and panics during wiring.
func (r *Registry) Register(a Adapter) {
	slug := a.Slug()
	if _, dup := r.adapters[slug]; dup {
		panic(fmt.Sprintf("provider: duplicate adapter slug %q", slug))
	}
	r.adapters[slug] = a
}

// Get returns the adapter for slug.
func (r *Registry) Get(slug string) (Adapter, bool) {
	a, ok := r.adapters[slug]
	return a, ok
}

// Slugs lists registered slugs in stable order.
func (r *Registry) Slugs() []string {
	out := make([]string, 0, len(r.adapters))
	for slug := range r.adapters {
		out = append(out, slug)
	}
	sort.Strings(out)
	return out
}

// minorUnits converts a decimal amount string ("1500", "1500.5", "1500.50")
// into minor units with two decimal places. Rejects more than two fractional
// digits rather than silently rounding money.
func minorUnits(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("amount %q: more than two decimal places", s)
	}
	for len(frac) < 2 {
		frac += "0"
	}
	if whole == "" {
		whole = "0"
	}
	var n int64
	for _, digits := range []string{whole, frac} {
		for _, c := range digits {
			if c < '0' || c > '9' {
				return 0, fmt.Errorf("amount %q: not a decimal number", s)
			}
			n = n*10 + int64(c-'0')
		}
	}
	if neg {
		n = -n
	}
	return n, nil
}
