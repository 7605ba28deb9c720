// Package broker implements the order-rewriting pipeline that sits in
// front of the matching engine: spread/slippage/requote price adjustment,
// liquidity-provider aggregation, admission checks, and the commission,
// swap, margin and execution-speed calculators brokers expose to clients.
package broker

import (
	"errors"
	"math/rand"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"fxsim/internal/common"
)

var (
	ErrTradeSizeOutOfBounds = errors.New("trade size outside broker bounds")
	ErrRejected             = errors.New("order rejected by broker")
	ErrUnknownBroker        = errors.New("unknown broker")
)

// Type selects a broker's execution model and derived economics.
type Type int

const (
	DirectAccess Type = iota
	ECN
	MarketMaker
	STP
	Hybrid
)

func (t Type) String() string {
	switch t {
	case DirectAccess:
		return "DirectAccess"
	case ECN:
		return "ECN"
	case MarketMaker:
		return "MarketMaker"
	case STP:
		return "STP"
	case Hybrid:
		return "Hybrid"
	default:
		return "Unknown"
	}
}

// ExecutionModel describes how a broker type fills client orders.
type ExecutionModel int

const (
	InstantExecution ExecutionModel = iota
	MarketExecution
	RequestExecution
	ExchangeExecution
)

// LiquidityProvider is one venue a broker aggregates prices from.
type LiquidityProvider struct {
	Name         string
	Tier         uint8
	Weight       float64
	SpreadMarkup float64
}

// Broker is a stateless configuration record: cheap to copy, never a
// stateful actor. It is passed by value out of a Registry.
type Broker struct {
	ID                 string
	Name               string
	Type               Type
	Spread             float64
	Commission         float64
	ExecutionModel     ExecutionModel
	LiquidityProviders []LiquidityProvider
	SlippageFactor     float64
	RequoteProbability float64
	MaxLeverage        float64
	MinTradeSize       float64
	MaxTradeSize       float64
}

const (
	defaultMinTradeSize = 1_000.0
	defaultMaxTradeSize = 100_000_000.0
)

// New builds a Broker from its type, deriving execution model, liquidity
// providers, slippage/requote coefficients and max leverage from the
// type→config table.
func New(name string, brokerType Type, spread, commission float64) Broker {
	b := Broker{
		ID:           uuid.New().String(),
		Name:         name,
		Type:         brokerType,
		Spread:       spread,
		Commission:   commission,
		MinTradeSize: defaultMinTradeSize,
		MaxTradeSize: defaultMaxTradeSize,
	}

	switch brokerType {
	case DirectAccess:
		b.ExecutionModel = ExchangeExecution
		b.SlippageFactor, b.RequoteProbability = 0.0001, 0.02
		b.MaxLeverage = 500
	case ECN:
		b.ExecutionModel = MarketExecution
		b.SlippageFactor, b.RequoteProbability = 0.0002, 0.01
		b.MaxLeverage = 200
	case MarketMaker:
		b.ExecutionModel = InstantExecution
		b.SlippageFactor, b.RequoteProbability = 0.0005, 0.15
		b.MaxLeverage = 100
	case STP:
		b.ExecutionModel = MarketExecution
		b.SlippageFactor, b.RequoteProbability = 0.0003, 0.05
		b.MaxLeverage = 300
	case Hybrid:
		b.ExecutionModel = RequestExecution
		b.SlippageFactor, b.RequoteProbability = 0.0004, 0.08
		b.MaxLeverage = 200
	}

	b.LiquidityProviders = liquidityProvidersFor(brokerType)
	return b
}

func liquidityProvidersFor(t Type) []LiquidityProvider {
	switch t {
	case DirectAccess:
		return []LiquidityProvider{
			{Name: "Liquidity Pool Direct", Tier: 0, Weight: 1.0, SpreadMarkup: 0.0},
		}
	case ECN:
		return []LiquidityProvider{
			{Name: "Deutsche Bank", Tier: 1, Weight: 0.25, SpreadMarkup: 0.00005},
			{Name: "Citibank", Tier: 1, Weight: 0.25, SpreadMarkup: 0.00008},
			{Name: "JP Morgan", Tier: 1, Weight: 0.25, SpreadMarkup: 0.00006},
			{Name: "UBS", Tier: 1, Weight: 0.25, SpreadMarkup: 0.00007},
		}
	case MarketMaker:
		return []LiquidityProvider{
			{Name: "Internal Market Making", Tier: 3, Weight: 1.0, SpreadMarkup: 0.0002},
		}
	case STP:
		return []LiquidityProvider{
			{Name: "Bank Consortium", Tier: 2, Weight: 0.6, SpreadMarkup: 0.00012},
			{Name: "ECN Pool", Tier: 1, Weight: 0.4, SpreadMarkup: 0.00008},
		}
	case Hybrid:
		return []LiquidityProvider{
			{Name: "Tier 1 Banks", Tier: 1, Weight: 0.7, SpreadMarkup: 0.00010},
			{Name: "Internal MM", Tier: 3, Weight: 0.3, SpreadMarkup: 0.00015},
		}
	default:
		return nil
	}
}

// CanExecute applies admission checks: trade-size bounds, and for
// MarketMaker a 5% stochastic rejection.
func (b Broker) CanExecute(order common.Order, rng *rand.Rand) bool {
	if order.Amount < b.MinTradeSize || order.Amount > b.MaxTradeSize {
		return false
	}
	if b.Type == MarketMaker {
		return rng.Float64() >= 0.05
	}
	return true
}

// Process rewrites order's price through the three ordered stages:
// execution-model adjustment, slippage, requote. Each stage sees the
// previous stage's output.
func (b Broker) Process(order common.Order, rng *rand.Rand) common.Order {
	order.Price = b.adjustForExecution(order.Price, order.Side)

	if rng.Float64() < 0.3 {
		order.Price = b.applySlippage(order.Price, order.Side, rng)
	}

	if rng.Float64() < b.RequoteProbability {
		adjustment := -0.0005 + rng.Float64()*0.001 // Uniform(-0.0005, 0.0005)
		order.Price *= 1.0 + adjustment
	}

	return order
}

func (b Broker) adjustForExecution(price float64, side common.Side) float64 {
	switch b.Type {
	case DirectAccess:
		return price
	case MarketMaker:
		if side == common.Buy {
			return price + b.Spread/2.0
		}
		return price - b.Spread/2.0
	case ECN, STP, Hybrid:
		return b.aggregateLiquidityProviderPrices(price, side)
	default:
		return price
	}
}

func (b Broker) aggregateLiquidityProviderPrices(basePrice float64, side common.Side) float64 {
	var weightedPrice, totalWeight float64
	for _, lp := range b.LiquidityProviders {
		providerPrice := basePrice + lp.SpreadMarkup
		if side == common.Sell {
			providerPrice = basePrice - lp.SpreadMarkup
		}
		weightedPrice += providerPrice * lp.Weight
		totalWeight += lp.Weight
	}
	if totalWeight > 0 {
		return weightedPrice / totalWeight
	}
	return basePrice
}

func (b Broker) applySlippage(price float64, side common.Side, rng *rand.Rand) float64 {
	slippage := rng.Float64() * b.SlippageFactor // Uniform(0, slippageFactor)
	if side == common.Buy {
		return price + slippage
	}
	return price - slippage
}

// CalculateCommission returns the commission due on a filled volume.
func (b Broker) CalculateCommission(volume float64) float64 {
	switch b.Type {
	case ECN:
		return b.Commission * (volume / 100_000.0)
	case DirectAccess:
		return volume * 0.000001
	default:
		return 0
	}
}

var swapRates = map[string][2]float64{
	// [Buy, Sell] per-lot rates.
	"EURUSD": {-0.5, -2.1},
	"GBPUSD": {0.8, -3.2},
	"USDJPY": {2.1, -5.4},
}

// CalculateSwap returns the overnight swap charge for a symbol/side/volume.
func (b Broker) CalculateSwap(symbol string, side common.Side, volume float64) float64 {
	rates, ok := swapRates[symbol]
	if !ok {
		return 0
	}
	rate := rates[0]
	if side == common.Sell {
		rate = rates[1]
	}
	return (rate * volume) / 100_000.0
}

var baseSpreads = map[string]float64{
	"EURUSD": 0.00015,
	"GBPUSD": 0.00020,
	"USDJPY": 0.015,
}

const defaultBaseSpread = 0.0002

// GetEffectiveSpread returns the symbol's base spread plus this broker's
// configured spread.
func (b Broker) GetEffectiveSpread(symbol string) float64 {
	base, ok := baseSpreads[symbol]
	if !ok {
		base = defaultBaseSpread
	}
	return base + b.Spread
}

// GetMarginRequirement returns the margin needed for volume at leverage,
// capped at the broker's max leverage.
func (b Broker) GetMarginRequirement(symbol string, volume, leverage float64) float64 {
	effectiveLeverage := leverage
	if effectiveLeverage > b.MaxLeverage {
		effectiveLeverage = b.MaxLeverage
	}
	return b.notionalValue(symbol, volume) / effectiveLeverage
}

func (b Broker) notionalValue(symbol string, volume float64) float64 {
	if symbol == "USDJPY" {
		return volume * 100.0
	}
	return volume
}

// GetExecutionSpeedMS draws a simulated execution latency for this
// broker's execution model.
func (b Broker) GetExecutionSpeedMS(rng *rand.Rand) uint64 {
	switch b.ExecutionModel {
	case InstantExecution:
		return uint64(1 + rng.Intn(9)) // [1,10)
	case MarketExecution:
		return uint64(10 + rng.Intn(40)) // [10,50)
	case RequestExecution:
		return uint64(100 + rng.Intn(400)) // [100,500)
	case ExchangeExecution:
		return uint64(1 + rng.Intn(4)) // [1,5)
	default:
		return 0
	}
}

// Registry holds every broker known to the venue, keyed by id, guarded
// by its own reader-writer lock per spec.md §5's "broker registry" lock.
type Registry struct {
	mu      sync.RWMutex
	brokers map[string]Broker
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{brokers: make(map[string]Broker)}
}

// Register adds b to the registry.
func (r *Registry) Register(b Broker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.brokers[b.ID] = b
	log.Debug().Str("broker", b.ID).Str("type", b.Type.String()).Msg("broker registered")
}

// Get returns a copy of the broker with id, or ErrUnknownBroker.
func (r *Registry) Get(id string) (Broker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.brokers[id]
	if !ok {
		return Broker{}, ErrUnknownBroker
	}
	return b, nil
}

// All returns every registered broker, in no particular order.
func (r *Registry) All() []Broker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Broker, 0, len(r.brokers))
	for _, b := range r.brokers {
		out = append(out, b)
	}
	return out
}
