// Package handlers is the HTTP glue over the reconciliation core. Handlers
// decode requests, consult the principal, call one core operation, and encode
// the answer; no financial logic lives here.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/api/middleware"
	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/disburse"
	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/domain"
	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/provider"
	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/recon"
	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/settlement"
	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/store"
)

// maxWebhookBody bounds inbound payload size; provider IPNs are small.
const maxWebhookBody = 1 << 20

// WebhookHandler terminates the per-provider IPN endpoints.
type WebhookHandler struct {
	processor *recon.Processor
	log       zerolog.Logger
}

// NewWebhookHandler creates the webhook handler.
func NewWebhookHandler(p *recon.Processor, log zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{processor: p, log: log}
}

// HandleIPN handles POST /ipn/{slug}.
//
// Response contract: 200 with the provider's acknowledgment body whenever the
// event was durably recorded — processed, already-seen duplicate, or
// authentication-rejected-and-logged. Non-200 only when the system cannot
// durably record at all, signaling the provider to retry later.
func (h *WebhookHandler) HandleIPN(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "bad_request", "Could not read request body")
		return
	}

	result, err := h.processor.Process(r.Context(), slug, payload, provider.RequestMeta{
		Headers:    r.Header,
		RemoteAddr: r.RemoteAddr,
	})
	if err != nil {
		if errors.Is(err, recon.ErrUnknownProvider) {
			middleware.WriteError(w, http.StatusNotFound, "unknown_provider", "No such provider endpoint")
			return
		}
		h.log.Error().Err(err).Str("provider", slug).Msg("Could not durably record webhook event")
		middleware.WriteError(w, http.StatusServiceUnavailable, "storage_unavailable", "Temporarily unable to record event, please retry")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, result.AckBody)
}

// DisbursementsHandler serves merchant payout requests.
type DisbursementsHandler struct {
	orchestrator *disburse.Orchestrator
	log          zerolog.Logger
}

// NewDisbursementsHandler creates the disbursements handler.
func NewDisbursementsHandler(o *disburse.Orchestrator, log zerolog.Logger) *DisbursementsHandler {
	return &DisbursementsHandler{orchestrator: o, log: log}
}

type disbursementRequest struct {
	MerchantID  string `json:"merchant_id"`
	Amount      int64  `json:"amount"`
	Destination string `json:"destination"`
}

// Create handles POST /api/disbursements. Merchant principals may only
// disburse their own balance; admins may disburse any merchant's.
func (h *DisbursementsHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "unauthenticated", "Authentication required")
		return
	}

	var req disbursementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "bad_request", "Invalid request body")
		return
	}
	if !principal.IsAdmin() {
		if req.MerchantID == "" {
			req.MerchantID = principal.MerchantID
		}
		if req.MerchantID != principal.MerchantID {
			middleware.WriteError(w, http.StatusForbidden, "forbidden", "Cannot disburse another merchant's balance")
			return
		}
	}
	if req.MerchantID == "" || req.Amount <= 0 || req.Destination == "" {
		middleware.WriteError(w, http.StatusBadRequest, "bad_request", "merchant_id, positive amount and destination are required")
		return
	}

	result, err := h.orchestrator.Disburse(r.Context(), req.MerchantID, req.Amount, req.Destination)
	if err != nil {
		var insufficient *domain.InsufficientFundsError
		if errors.As(err, &insufficient) {
			middleware.WriteError(w, http.StatusUnprocessableEntity, "insufficient_funds", insufficient.Error())
			return
		}
		h.log.Error().Err(err).Str("merchant_id", req.MerchantID).Msg("Disbursement failed")
		middleware.WriteError(w, http.StatusServiceUnavailable, "storage_unavailable", "Temporarily unable to process disbursement")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, result)
}

// TransactionsHandler exposes read-only transaction snapshots for reporting.
type TransactionsHandler struct {
	store store.Store
	log   zerolog.Logger
}

// NewTransactionsHandler creates the transactions handler.
func NewTransactionsHandler(s store.Store, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{store: s, log: log}
}

// List handles GET /api/transactions with optional status and merchant_id
// filters. Merchant principals see only their own records.
func (h *TransactionsHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "unauthenticated", "Authentication required")
		return
	}

	merchantID := r.URL.Query().Get("merchant_id")
	if !principal.IsAdmin() {
		merchantID = principal.MerchantID
	}
	status := domain.TransactionStatus(r.URL.Query().Get("status"))

	transactions := make([]*domain.Transaction, 0)
	err := h.store.View(r.Context(), func(tx store.Tx) error {
		return tx.ForEachTransaction(func(txn *domain.Transaction) error {
			if merchantID != "" && txn.MerchantID != merchantID {
				return nil
			}
			if status != "" && txn.Status != status {
				return nil
			}
			transactions = append(transactions, txn)
			return nil
		})
	})
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list transactions")
		middleware.WriteError(w, http.StatusServiceUnavailable, "storage_unavailable", "Temporarily unable to list transactions")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": transactions,
		"count":        len(transactions),
	})
}

// SettlementsHandler exposes settlement batches and the explicit run trigger.
type SettlementsHandler struct {
	aggregator *settlement.Aggregator
	store      store.Store
	log        zerolog.Logger
}

// NewSettlementsHandler creates the settlements handler.
func NewSettlementsHandler(a *settlement.Aggregator, s store.Store, log zerolog.Logger) *SettlementsHandler {
	return &SettlementsHandler{aggregator: a, store: s, log: log}
}

// List handles GET /api/settlements.
func (h *SettlementsHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "unauthenticated", "Authentication required")
		return
	}

	batches := make([]*domain.SettlementBatch, 0)
	err := h.store.View(r.Context(), func(tx store.Tx) error {
		return tx.ForEachSettlementBatch(func(b *domain.SettlementBatch) error {
			if !principal.IsAdmin() && b.MerchantID != principal.MerchantID {
				return nil
			}
			batches = append(batches, b)
			return nil
		})
	})
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list settlement batches")
		middleware.WriteError(w, http.StatusServiceUnavailable, "storage_unavailable", "Temporarily unable to list settlements")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"batches": batches,
		"count":   len(batches),
	})
}

// Run handles POST /api/settlements/run, the explicit settlement trigger.
// Admin only.
func (h *SettlementsHandler) Run(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok || !principal.IsAdmin() {
		middleware.WriteError(w, http.StatusForbidden, "forbidden", "Admin privilege required")
		return
	}

	batches, err := h.aggregator.RunOnce(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Settlement run failed")
		middleware.WriteError(w, http.StatusServiceUnavailable, "storage_unavailable", "Settlement run failed")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"batches": batches,
		"count":   len(batches),
	})
}

// DisputesHandler serves refund and chargeback processing.
type DisputesHandler struct {
	disputes *settlement.Disputes
	log      zerolog.Logger
}

// NewDisputesHandler creates the disputes handler.
func NewDisputesHandler(d *settlement.Disputes, log zerolog.Logger) *DisputesHandler {
	return &DisputesHandler{disputes: d, log: log}
}

type disputeRequest struct {
	TransactionID string `json:"transaction_id"`
	Kind          string `json:"kind"`
	Amount        int64  `json:"amount"`
	Reason        string `json:"reason"`
}

// Create handles POST /api/disputes. Admin only: disputes arrive through
// provider back offices, not merchants.
func (h *DisputesHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok || !principal.IsAdmin() {
		middleware.WriteError(w, http.StatusForbidden, "forbidden", "Admin privilege required")
		return
	}

	var req disputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "bad_request", "Invalid request body")
		return
	}
	if req.TransactionID == "" || req.Kind == "" {
		middleware.WriteError(w, http.StatusBadRequest, "bad_request", "transaction_id and kind are required")
		return
	}

	dispute, err := h.disputes.Create(r.Context(), req.TransactionID, domain.DisputeKind(req.Kind), req.Amount, req.Reason)
	if err != nil {
		h.writeDisputeError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, dispute)
}

// Approve handles POST /api/disputes/{id}/approve. Admin only.
func (h *DisputesHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.disputes.Approve)
}

// Reject handles POST /api/disputes/{id}/reject. Admin only.
func (h *DisputesHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.resolve(w, r, h.disputes.Reject)
}

func (h *DisputesHandler) resolve(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id string) (*domain.Dispute, error)) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok || !principal.IsAdmin() {
		middleware.WriteError(w, http.StatusForbidden, "forbidden", "Admin privilege required")
		return
	}

	dispute, err := op(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeDisputeError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, dispute)
}

func (h *DisputesHandler) writeDisputeError(w http.ResponseWriter, err error) {
	var target *domain.InvalidDisputeTargetError
	var insufficient *domain.InsufficientFundsError
	switch {
	case errors.As(err, &target):
		middleware.WriteError(w, http.StatusUnprocessableEntity, "invalid_dispute_target", target.Error())
	case errors.As(err, &insufficient):
		middleware.WriteError(w, http.StatusUnprocessableEntity, "insufficient_funds", insufficient.Error())
	case errors.Is(err, store.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, "not_found", "No such record")
	case errors.Is(err, settlement.ErrDisputeResolved):
		middleware.WriteError(w, http.StatusConflict, "dispute_resolved", "Dispute already resolved")
	default:
		h.log.Error().Err(err).Msg("Dispute operation failed")
		middleware.WriteError(w, http.StatusServiceUnavailable, "storage_unavailable", "Temporarily unable to process dispute")
	}
}

// Health handles GET /healthz.
func Health(w http.ResponseWriter, _ *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
