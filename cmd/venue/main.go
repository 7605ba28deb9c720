package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"fxsim/internal/common"
	venue "fxsim"
)

func main() {
	seed := flag.Int64("seed", 1, "PRNG seed driving every stochastic step")
	banks := flag.Int("banks", 25, "number of simulated Bank participants")
	others := flag.Int("others", 500, "number of simulated non-bank participants")
	historyLimit := flag.Int("trade-history-limit", 0, "bounded trade ring size (0 = package default)")
	pretty := flag.Bool("pretty", true, "use zerolog's console writer instead of JSON")
	flag.Parse()

	if *pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	v := venue.New(venue.Config{
		Seed:              *seed,
		BankCount:         *banks,
		OtherCount:        *others,
		TradeHistoryLimit: *historyLimit,
	})

	log.Info().Int("banks", *banks).Int("others", *others).Int64("seed", *seed).
		Msg("venue bootstrapped")

	go func() {
		if err := v.Run(ctx); err != nil {
			log.Error().Err(err).Msg("scheduler stopped")
		}
	}()

	// Give the scheduler a moment to start before accepting demo calls.
	time.Sleep(50 * time.Millisecond)

	demoOrder(v)
	go logSnapshots(ctx, v)

	<-ctx.Done()
	log.Info().Msg("venue shutting down")
}

// demoOrder places one illustrative client order so a fresh process has
// visible output beyond the background simulation noise.
func demoOrder(v *venue.Venue) {
	brokers := v.Brokers()
	if len(brokers) == 0 {
		return
	}
	id, err := v.PlaceOrder("EURUSD", common.Buy, 10_000, "demo-client", brokers[0].ID)
	if err != nil {
		log.Error().Err(err).Msg("demo order failed")
		return
	}
	log.Info().Str("order_id", id.String()).Str("broker", brokers[0].Name).Msg("demo order placed")
}

// logSnapshots periodically logs a market snapshot for each built-in
// symbol, standing in for a transport layer that would otherwise push
// these to connected clients.
func logSnapshots(ctx context.Context, v *venue.Venue) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, sym := range venue.DefaultSymbols {
				snap, err := v.MarketData(sym.Symbol, 5)
				if err != nil {
					continue
				}
				log.Info().
					Str("symbol", snap.Symbol).
					Float64("bid", snap.Bid).
					Float64("ask", snap.Ask).
					Float64("last", snap.Last).
					Msg("market snapshot")
			}
		}
	}
}
