// Package runtime runs the venue's two periodic jobs — advancing the
// simulation and publishing quote snapshots to subscribers — as
// ticker-driven loops under a tomb.v2 supervisor.
package runtime

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"fxsim/internal/engine"
	"fxsim/internal/feed"
	"fxsim/internal/simulator"
)

const (
	simulationInterval = 10 * time.Millisecond
	publisherInterval  = 100 * time.Millisecond

	subscriberChanSize = 8
)

// DepthLevel is one aggregated (price, volume) pair in a published depth
// snapshot.
type DepthLevel struct {
	Price  float64
	Volume float64
}

// MarketDataSnapshot is one point-in-time view of a symbol's book depth
// and derived quote, pushed to subscribers on the publisher ticker.
type MarketDataSnapshot struct {
	Symbol    string
	Bid       float64
	Ask       float64
	Last      float64
	Volume    float64
	Bids      []DepthLevel
	Asks      []DepthLevel
	Timestamp time.Time
}

// Scheduler owns the venue's two background loops: a 10ms simulation
// tick and a 100ms quote-publisher fan-out per subscriber. Each
// iteration acquires the engine/feed locks it needs, does its work, and
// releases them before the loop sleeps again — never holding a lock
// across a suspension point, per the engine's single-writer-per-call
// contract.
type Scheduler struct {
	market *engine.Market
	feed   *feed.PriceFeed
	sim    *simulator.Simulator
	rng    *rand.Rand

	t *tomb.Tomb
}

// New returns a Scheduler driving sim/feed updates against market.
func New(market *engine.Market, pf *feed.PriceFeed, sim *simulator.Simulator, rng *rand.Rand) *Scheduler {
	return &Scheduler{market: market, feed: pf, sim: sim, rng: rng}
}

// Run starts the simulation loop under a tomb supervised by ctx and
// blocks until ctx is canceled or the tomb dies. Call it in its own
// goroutine.
func (s *Scheduler) Run(ctx context.Context) error {
	var t *tomb.Tomb
	t, ctx = tomb.WithContext(ctx)
	s.t = t

	t.Go(func() error {
		return s.simulationLoop(ctx)
	})

	<-t.Dying()
	return t.Err()
}

func (s *Scheduler) simulationLoop(ctx context.Context) error {
	ticker := time.NewTicker(simulationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sim.Tick()
			s.market.UpdateStats()
			s.feed.UpdateFromMarket(s.market, s.rng)
		}
	}
}

// Subscribe starts a publisher goroutine, supervised by the same tomb as
// the simulation loop (or unsupervised if Run has not been called yet),
// that pushes a MarketDataSnapshot for symbol every
// 100ms until ctx is canceled. The returned channel is closed when the
// goroutine exits.
func (s *Scheduler) Subscribe(ctx context.Context, symbol string, depth int) <-chan MarketDataSnapshot {
	out := make(chan MarketDataSnapshot, subscriberChanSize)

	publish := func() error {
		defer close(out)
		ticker := time.NewTicker(publisherInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				snap, err := s.Snapshot(symbol, depth)
				if err != nil {
					continue
				}
				select {
				case out <- snap:
				default:
					log.Warn().Str("symbol", symbol).Msg("subscriber channel full, dropping snapshot")
				}
			}
		}
	}

	if s.t != nil {
		s.t.Go(publish)
	} else {
		go func() {
			if err := publish(); err != nil {
				log.Error().Err(err).Msg("publisher exited")
			}
		}()
	}

	return out
}

// Snapshot builds one current depth+quote view for symbol. It is the
// single source of truth for the MarketDataSnapshot shape: both the
// publisher loop and venue.Venue.MarketData call it rather than
// re-deriving the same fields independently.
func (s *Scheduler) Snapshot(symbol string, depth int) (MarketDataSnapshot, error) {
	ob, err := s.market.GetOrderBook(symbol)
	if err != nil {
		return MarketDataSnapshot{}, err
	}

	bid, _ := ob.GetBestBid()
	ask, _ := ob.GetBestAsk()

	bids := ob.GetBids(depth)
	asks := ob.GetAsks(depth)

	snap := MarketDataSnapshot{
		Symbol:    symbol,
		Bid:       bid,
		Ask:       ask,
		Last:      ob.LastTradePrice,
		Volume:    ob.TotalVolume,
		Bids:      make([]DepthLevel, len(bids)),
		Asks:      make([]DepthLevel, len(asks)),
		Timestamp: time.Now(),
	}
	for i, d := range bids {
		snap.Bids[i] = DepthLevel{Price: d.Price, Volume: d.Volume}
	}
	for i, d := range asks {
		snap.Asks[i] = DepthLevel{Price: d.Price, Volume: d.Volume}
	}
	return snap, nil
}
