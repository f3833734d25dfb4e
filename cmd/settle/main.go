// Command settle runs one settlement pass against the database and exits.
// It is the explicit-trigger form of the periodic settlement cadence, meant
// for back-office use and for closing a cycle outside the schedule.
package main

import (
	"context"
	"flag"
	"time"

	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/logger"
	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/settlement"
	"github.com/WARDAH-MANZOOR/qrScanSystem-sub005/internal/store/boltstore"
)

func main() {
	var (
		dbPath  = flag.String("db", "ipn.db", "Path to the BoltDB database file")
		timeout = flag.Duration("timeout", time.Minute, "Overall run timeout")
	)
	flag.Parse()

	log := logger.New()

	db, err := boltstore.Open(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Str("db", *dbPath).Msg("Failed to open store")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	batches, err := settlement.NewAggregator(db, log).RunOnce(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Settlement run failed")
	}

	var total int64
	for _, b := range batches {
		total += b.TotalAmount
	}
	log.Info().
		Int("batches", len(batches)).
		Int64("net_amount", total).
		Msg("Settlement run complete")
}
