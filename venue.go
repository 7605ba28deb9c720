// Package venue is the external-facing facade over the matching engine,
// broker pipeline, participant simulator and price feed: a transport
// layer (HTTP/WebSocket/gRPC) is expected to wrap exactly the methods
// below; no such transport layer is implemented here.
package venue

import (
	"context"
	"errors"
	"math/rand"
	"sync"

	"github.com/google/uuid"

	"fxsim/internal/broker"
	"fxsim/internal/common"
	"fxsim/internal/engine"
	"fxsim/internal/feed"
	"fxsim/internal/participant"
	"fxsim/internal/runtime"
	"fxsim/internal/simulator"
)

var ErrNotRunning = errors.New("venue scheduler is not running")

// MarketDataSnapshot is the depth+quote view pushed to subscribers and
// returned by MarketData.
type MarketDataSnapshot = runtime.MarketDataSnapshot

// BrokerSummary is the client-facing projection of a registered broker:
// enough to pick one and estimate its economics, without exposing its
// internal liquidity-provider configuration.
type BrokerSummary struct {
	ID                 string
	Name               string
	Type               string
	Spread             float64
	Commission         float64
	MaxLeverage        float64
	RequoteProbability float64
}

// BuiltinSymbol is one of the venue's default tradable instruments.
type BuiltinSymbol struct {
	Symbol       string
	InitialPrice float64
}

// DefaultSymbols is the venue's bootstrap instrument list.
var DefaultSymbols = []BuiltinSymbol{
	{Symbol: "EURUSD", InitialPrice: 1.0950},
	{Symbol: "GBPUSD", InitialPrice: 1.2650},
	{Symbol: "USDJPY", InitialPrice: 150.25},
}

// Venue composes the broker registry, matching engine, price feed,
// participant simulator and background scheduler into the single
// surface a transport layer talks to.
type Venue struct {
	Market *engine.Market
	Feed   *feed.PriceFeed
	Sim    *simulator.Simulator
	Sched  *runtime.Scheduler

	brokerRegistry *broker.Registry

	// rng drives the client-order path (CanExecute admission draw,
	// broker.Process's slippage/requote draws). It is a distinct
	// *rand.Rand from the one the simulator/scheduler own, since those
	// run concurrently on a background goroutine once Run starts; rngMu
	// serializes it against concurrent PlaceOrder callers, matching the
	// mutex *rand.Rand itself does not provide.
	rngMu sync.Mutex
	rng   *rand.Rand

	running bool
}

// Config controls participant population sizing at bootstrap.
type Config struct {
	Seed              int64
	BankCount         int
	OtherCount        int
	TradeHistoryLimit int
}

// DefaultConfig is a scaled-down demo population: 25 banks plus 500
// other participants.
func DefaultConfig() Config {
	return Config{Seed: 1, BankCount: 25, OtherCount: 500}
}

// New bootstraps a Venue: the three built-in symbols and brokers, a
// participant population per cfg, and the simulator/scheduler wired to
// it all. The background loops are not started until Run is called.
func New(cfg Config) *Venue {
	// Bootstrap (symbol/participant seeding) runs single-threaded before
	// Run is ever called, so it is safe to draw from the client rng here.
	// Past this point, the simulator/scheduler loop and the client-order
	// path run on independent goroutines and must never share one
	// *rand.Rand instance — see the Venue.rng doc comment.
	clientRng := rand.New(rand.NewSource(cfg.Seed))
	simRng := rand.New(rand.NewSource(cfg.Seed + 1))

	opts := []engine.Option{}
	if cfg.TradeHistoryLimit > 0 {
		opts = append(opts, engine.WithTradeHistoryLimit(cfg.TradeHistoryLimit))
	}
	market := engine.New(opts...)
	pf := feed.New()

	for _, s := range DefaultSymbols {
		_ = market.AddSymbol(s.Symbol)
		pf.AddSymbol(s.Symbol, s.InitialPrice, clientRng)
	}

	brokers := broker.NewRegistry()
	brokers.Register(withID(broker.New("Direct Access", broker.DirectAccess, 0.00010, 0), "direct_access"))
	brokers.Register(withID(broker.New("ECN Prime", broker.ECN, 0.00005, 7.0), "ecn_broker"))
	brokers.Register(withID(broker.New("Market Maker Desk", broker.MarketMaker, 0.00040, 0), "market_maker"))

	seedParticipants(market, cfg, clientRng)

	sim := simulator.New(market, simRng)
	sched := runtime.New(market, pf, sim, simRng)

	return &Venue{
		Market:         market,
		Feed:           pf,
		Sim:            sim,
		Sched:          sched,
		brokerRegistry: brokers,
		rng:            clientRng,
	}
}

// withID overrides a freshly constructed broker's generated id with a
// fixed, client-recognizable one. Used only for the bootstrap brokers
// named in spec.md §6 (direct_access/ecn_broker/market_maker); brokers
// registered later still get their random uuid.
func withID(b broker.Broker, id string) broker.Broker {
	b.ID = id
	return b
}

func seedParticipants(market *engine.Market, cfg Config, rng *rand.Rand) {
	for i := 0; i < cfg.BankCount; i++ {
		p := participant.NewOfType(uuid.New().String(), participant.Bank, rng)
		market.AddParticipant(p)
	}

	otherTypes := []participant.Type{
		participant.Trader,
		participant.RetailTrader,
		participant.HedgeFund,
		participant.Corporation,
		participant.Government,
	}
	for i := 0; i < cfg.OtherCount; i++ {
		t := otherTypes[rng.Intn(len(otherTypes))]
		p := participant.NewOfType(uuid.New().String(), t, rng)
		market.AddParticipant(p)
	}
}

// Run starts the background simulation loop and blocks until ctx is
// canceled. Call it in its own goroutine.
func (v *Venue) Run(ctx context.Context) error {
	v.running = true
	defer func() { v.running = false }()
	return v.Sched.Run(ctx)
}

// PlaceOrder routes a client order through brokerID's pipeline and into
// the matching engine, returning the resulting order id. rngMu
// serializes every draw from v.rng against other concurrent callers of
// PlaceOrder; it is unrelated to the simulator/scheduler's own rng.
func (v *Venue) PlaceOrder(symbol string, side common.Side, amount float64, participantID, brokerID string) (uuid.UUID, error) {
	br, err := v.brokerRegistry.Get(brokerID)
	if err != nil {
		return uuid.Nil, err
	}

	v.rngMu.Lock()
	defer v.rngMu.Unlock()

	if !br.CanExecute(common.Order{Symbol: symbol, Side: side, Amount: amount}, v.rng) {
		return uuid.Nil, broker.ErrRejected
	}
	return v.Market.PlaceOrder(symbol, side, amount, participantID, br, v.rng)
}

// MarketData returns one current depth+quote snapshot for symbol,
// matching spec.md §6's { bid, ask, timestamp, volume, bids[top-n],
// asks[top-n] } shape. Delegates to the scheduler's own snapshot builder
// rather than re-deriving it, so the publisher loop and this call site
// can never drift apart.
func (v *Venue) MarketData(symbol string, depth int) (MarketDataSnapshot, error) {
	return v.Sched.Snapshot(symbol, depth)
}

// Brokers lists every registered broker as a client-facing summary.
func (v *Venue) Brokers() []BrokerSummary {
	all := v.brokerRegistry.All()
	out := make([]BrokerSummary, len(all))
	for i, b := range all {
		out[i] = BrokerSummary{
			ID:                 b.ID,
			Name:               b.Name,
			Type:               b.Type.String(),
			Spread:             b.Spread,
			Commission:         b.Commission,
			MaxLeverage:        b.MaxLeverage,
			RequoteProbability: b.RequoteProbability,
		}
	}
	return out
}

// Historical returns up to limit candles for symbol at timeframe.
func (v *Venue) Historical(symbol, timeframe string, limit int) ([]feed.Candle, error) {
	candles := v.Feed.GetHistoricalData(symbol, timeframe, limit)
	if candles == nil {
		return nil, engine.ErrUnknownSymbol
	}
	return candles, nil
}

// SubscribeQuotes starts a 100ms quote-publisher goroutine for every
// built-in symbol and returns a channel carrying them all, closed when
// ctx is canceled. Errors if the venue's scheduler has not been started
// via Run.
func (v *Venue) SubscribeQuotes(ctx context.Context) (<-chan MarketDataSnapshot, error) {
	if !v.running {
		return nil, ErrNotRunning
	}

	merged := make(chan MarketDataSnapshot, subscriberFanInSize)
	var wg sync.WaitGroup
	for _, s := range v.Market.Symbols() {
		ch := v.Sched.Subscribe(ctx, s, defaultSubscriptionDepth)
		wg.Add(1)
		go func(c <-chan MarketDataSnapshot) {
			defer wg.Done()
			for snap := range c {
				select {
				case merged <- snap:
				case <-ctx.Done():
					return
				}
			}
		}(ch)
	}
	go func() {
		wg.Wait()
		close(merged)
	}()
	return merged, nil
}

const (
	subscriberFanInSize      = 32
	defaultSubscriptionDepth = 10
)
