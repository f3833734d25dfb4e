package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/api/handlers"
	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/api/middleware"
	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/config"
	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/disburse"
	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/ledger"
	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/logger"
	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/provider"
	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/recon"
	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/settlement"
	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/store/boltstore"
	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/sweep"
)

func main() {
	log := logger.New()
	cfg := config.FromEnv()

	log.Info().
		Str("listen_addr", cfg.ListenAddr).
		Str("db_path", cfg.DBPath).
		Dur("settlement_interval", cfg.SettlementInterval).
		Dur("recovery_sweep_interval", cfg.RecoverySweepInterval).
		Bool("allow_negative_on_reversal", cfg.AllowNegativeOnReversal).
		Msg("Starting IPN server")

	db, err := boltstore.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer db.Close()

	// Provider adapters: the closed set of rails we accept IPNs from.
	registry := provider.NewRegistry()
	registry.Register(provider.NewJazzCash(cfg.JazzCashIntegritySalt))
	registry.Register(provider.NewEasypaisa(cfg.EasypaisaSecret))
	registry.Register(provider.NewCardnet(cfg.CardnetSecret))
	onelink, err := provider.NewOneLink(cfg.OneLinkAllowedCIDRs)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid 1LINK allowlist")
	}
	registry.Register(onelink)

	machine := recon.NewMachine(cfg.AllowNegativeOnReversal, log)
	processor := recon.NewProcessor(registry, db, machine, log)

	payoutClient := disburse.NewHTTPPayoutClient(cfg.PayoutBaseURL, cfg.PayoutAPIKey, cfg.PayoutCallTimeout)
	orchestrator := disburse.NewOrchestrator(db, payoutClient, disburse.Config{
		ProviderName: cfg.PayoutProviderName,
		Currency:     cfg.Currency,
		CallTimeout:  cfg.PayoutCallTimeout,
		StaleAfter:   cfg.PayoutStaleAfter,
	}, log)

	aggregator := settlement.NewAggregator(db, log)
	disputes := settlement.NewDisputes(db, machine, log)
	idempotency := ledger.NewIdempotency(db)

	// Periodic reconciliation passes.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := sweep.NewRunner(log)
	runner.Add("settlement", cfg.SettlementInterval, func(ctx context.Context) error {
		_, err := aggregator.RunOnce(ctx)
		return err
	})
	runner.Add("payout-recovery", cfg.RecoverySweepInterval, func(ctx context.Context) error {
		_, err := orchestrator.Sweep(ctx)
		return err
	})
	runner.Add("stale-reservations", cfg.RecoverySweepInterval, func(ctx context.Context) error {
		_, err := idempotency.ReleaseStale(ctx, cfg.ReservationTTL, time.Now().UTC())
		return err
	})
	if err := runner.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start sweeps")
	}

	webhook := handlers.NewWebhookHandler(processor, log)
	disbursements := handlers.NewDisbursementsHandler(orchestrator, log)
	transactions := handlers.NewTransactionsHandler(db, log)
	settlements := handlers.NewSettlementsHandler(aggregator, db, log)
	disputesHandler := handlers.NewDisputesHandler(disputes, log)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handlers.Health)
	mux.HandleFunc("POST /ipn/{slug}", webhook.HandleIPN)

	api := http.NewServeMux()
	api.HandleFunc("POST /api/disbursements", disbursements.Create)
	api.HandleFunc("GET /api/transactions", transactions.List)
	api.HandleFunc("GET /api/settlements", settlements.List)
	api.HandleFunc("POST /api/settlements/run", settlements.Run)
	api.HandleFunc("POST /api/disputes", disputesHandler.Create)
	api.HandleFunc("POST /api/disputes/{id}/approve", disputesHandler.Approve)
	api.HandleFunc("POST /api/disputes/{id}/reject", disputesHandler.Reject)
	mux.Handle("/api/", middleware.RequirePrincipal(api))

	handler := middleware.Logger(log)(middleware.Recovery(log)(middleware.RequestID(mux)))

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("HTTP server listening")
		errChan <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	if err := runner.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Sweep runner shutdown failed")
	}
	log.Info().Msg("Shutdown complete")
}
