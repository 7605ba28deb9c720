// Package participant models the simulated account population that
// trades against the venue: banks, traders, hedge funds, corporations,
// governments and retail traders, each with their own leverage, strategy
// and risk-tolerance profile, plus the open positions they carry.
package participant

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"fxsim/internal/common"
)

var ErrUnknownParticipant = errors.New("unknown participant")

// Type is the category of simulated market participant.
type Type int

const (
	Bank Type = iota
	Trader
	HedgeFund
	Corporation
	Government
	RetailTrader
)

func (t Type) String() string {
	switch t {
	case Bank:
		return "Bank"
	case Trader:
		return "Trader"
	case HedgeFund:
		return "HedgeFund"
	case Corporation:
		return "Corporation"
	case Government:
		return "Government"
	case RetailTrader:
		return "RetailTrader"
	default:
		return "Unknown"
	}
}

// Strategy is the trading behavior a participant follows; it drives the
// per-tick probability of submitting an order.
type Strategy int

const (
	Conservative Strategy = iota
	Moderate
	Aggressive
	HighFrequency
	Arbitrage
	TrendFollowing
	MeanReversion
	MarketMaking
)

func (s Strategy) String() string {
	switch s {
	case Conservative:
		return "Conservative"
	case Moderate:
		return "Moderate"
	case Aggressive:
		return "Aggressive"
	case HighFrequency:
		return "HighFrequency"
	case Arbitrage:
		return "Arbitrage"
	case TrendFollowing:
		return "TrendFollowing"
	case MeanReversion:
		return "MeanReversion"
	case MarketMaking:
		return "MarketMaking"
	default:
		return "Unknown"
	}
}

// tradeProbability is the per-tick Bernoulli parameter for each strategy.
var tradeProbability = map[Strategy]float64{
	HighFrequency:  0.10,
	Aggressive:     0.05,
	Moderate:       0.02,
	Conservative:   0.01,
	MarketMaking:   0.15,
	Arbitrage:      0.08,
	TrendFollowing: 0.03,
	MeanReversion:  0.04,
}

type profile struct {
	leverage      float64
	strategy      Strategy
	riskTolerance float64
}

var profiles = map[Type]profile{
	Bank:         {leverage: 50, strategy: MarketMaking, riskTolerance: 0.3},
	HedgeFund:    {leverage: 10, strategy: Aggressive, riskTolerance: 0.8},
	Corporation:  {leverage: 5, strategy: Conservative, riskTolerance: 0.2},
	Government:   {leverage: 1, strategy: Conservative, riskTolerance: 0.1},
	Trader:       {leverage: 100, strategy: HighFrequency, riskTolerance: 0.6},
	RetailTrader: {leverage: 30, strategy: Moderate, riskTolerance: 0.4},
}

type balanceRange struct{ min, max float64 }

var balanceRanges = map[Type]balanceRange{
	Bank:         {10_000_000, 1_000_000_000},
	Trader:       {100_000, 10_000_000},
	HedgeFund:    {50_000_000, 500_000_000},
	Corporation:  {1_000_000, 100_000_000},
	Government:   {500_000_000, 5_000_000_000},
	RetailTrader: {1_000, 100_000},
}

var typicalTradeSizeRanges = map[Type]balanceRange{
	Bank:         {1_000_000, 10_000_000},
	HedgeFund:    {100_000, 1_000_000},
	Trader:       {10_000, 100_000},
	Corporation:  {50_000, 500_000},
	Government:   {1_000_000, 5_000_000},
	RetailTrader: {1_000, 10_000},
}

var preferredSymbols = map[Type][]string{
	Bank:        {"EURUSD", "GBPUSD", "USDJPY", "USDCHF", "AUDUSD", "USDCAD"},
	HedgeFund:   {"EURUSD", "GBPUSD", "USDJPY"},
	Corporation: {"EURUSD", "USDJPY"},
}

var defaultPreferredSymbols = []string{"EURUSD"}

// Position is a single open exposure in one symbol.
type Position struct {
	Symbol        string
	Side          common.Side
	Volume        float64
	EntryPrice    float64
	CurrentPrice  float64
	UnrealizedPnL float64
	Timestamp     time.Time
}

// NewPosition opens a position at entryPrice with zero unrealized pnl.
func NewPosition(symbol string, side common.Side, volume, entryPrice float64) Position {
	return Position{
		Symbol:       symbol,
		Side:         side,
		Volume:       volume,
		EntryPrice:   entryPrice,
		CurrentPrice: entryPrice,
		Timestamp:    time.Now(),
	}
}

// UpdatePrice marks the position to market and recomputes unrealized pnl.
func (p *Position) UpdatePrice(newPrice float64) {
	p.CurrentPrice = newPrice
	if p.Side == common.Buy {
		p.UnrealizedPnL = (newPrice - p.EntryPrice) * p.Volume
	} else {
		p.UnrealizedPnL = (p.EntryPrice - newPrice) * p.Volume
	}
}

// ReturnPercentage is the position's pnl expressed as a percent of entry.
func (p Position) ReturnPercentage() float64 {
	if p.Side == common.Buy {
		return (p.CurrentPrice - p.EntryPrice) / p.EntryPrice * 100.0
	}
	return (p.EntryPrice - p.CurrentPrice) / p.EntryPrice * 100.0
}

// Participant is one simulated market actor: an account with a balance,
// a leverage/strategy/risk profile, and a book of open positions.
type Participant struct {
	ID            string
	Name          string
	Type          Type
	Balance       float64
	Equity        float64
	MarginUsed    float64
	Leverage      float64
	Positions     map[string]Position
	Strategy      Strategy
	RiskTolerance float64
	Active        bool
}

// New constructs a participant of participantType with initialBalance,
// deriving leverage/strategy/risk-tolerance from the type profile table.
func New(id, name string, participantType Type, initialBalance float64) *Participant {
	prof := profiles[participantType]
	return &Participant{
		ID:            id,
		Name:          name,
		Type:          participantType,
		Balance:       initialBalance,
		Equity:        initialBalance,
		Leverage:      prof.leverage,
		Positions:     make(map[string]Position),
		Strategy:      prof.strategy,
		RiskTolerance: prof.riskTolerance,
		Active:        true,
	}
}

// NewOfType builds a participant of t with a balance drawn from that
// type's range via rng, named after its id.
func NewOfType(id string, t Type, rng *rand.Rand) *Participant {
	br, ok := balanceRanges[t]
	if !ok {
		br = balanceRanges[RetailTrader]
	}
	balance := br.min + rng.Float64()*(br.max-br.min)
	return New(id, fmt.Sprintf("%s %s", t, id), t, balance)
}

// AddPosition opens or replaces the position for symbol and refreshes
// equity.
func (p *Participant) AddPosition(pos Position) {
	p.Positions[pos.Symbol] = pos
	p.updateEquity()
}

// ClosePosition removes symbol's position, realizes its pnl into balance
// and returns it. Returns ok=false if no such position exists.
func (p *Participant) ClosePosition(symbol string) (Position, bool) {
	pos, ok := p.Positions[symbol]
	if !ok {
		return Position{}, false
	}
	delete(p.Positions, symbol)
	p.Balance += pos.UnrealizedPnL
	p.updateEquity()
	return pos, true
}

// UpdatePositionPrice marks symbol's position to newPrice, if held.
func (p *Participant) UpdatePositionPrice(symbol string, newPrice float64) {
	pos, ok := p.Positions[symbol]
	if !ok {
		return
	}
	pos.UpdatePrice(newPrice)
	p.Positions[symbol] = pos
	p.updateEquity()
}

func (p *Participant) updateEquity() {
	var unrealized float64
	for _, pos := range p.Positions {
		unrealized += pos.UnrealizedPnL
	}
	p.Equity = p.Balance + unrealized
}

// FreeMargin is equity not tied up as margin on open positions.
func (p *Participant) FreeMargin() float64 {
	return p.Equity - p.MarginUsed
}

// CanOpenPosition reports whether the participant is active and has
// enough free margin for requiredMargin.
func (p *Participant) CanOpenPosition(requiredMargin float64) bool {
	return p.Active && p.FreeMargin() >= requiredMargin
}

// PositionSize sizes a trade at price for riskPercent of equity (capped
// at the participant's own risk tolerance), leveraged.
func (p *Participant) PositionSize(price, riskPercent float64) float64 {
	risk := riskPercent
	if p.RiskTolerance < risk {
		risk = p.RiskTolerance
	}
	riskAmount := p.Equity * risk
	return (riskAmount / price) * p.Leverage
}

// ShouldTrade draws this tick's Bernoulli decision for whether the
// participant submits an order, per its strategy's trade probability.
func (p *Participant) ShouldTrade(rng *rand.Rand) bool {
	if !p.Active {
		return false
	}
	return rng.Float64() < tradeProbability[p.Strategy]
}

// PreferredSymbols lists the symbols this participant type trades,
// broadest for Banks, narrowing down to a single pair by default.
func (p *Participant) PreferredSymbols() []string {
	if syms, ok := preferredSymbols[p.Type]; ok {
		return syms
	}
	return defaultPreferredSymbols
}

// TypicalTradeSize draws an order size from this participant type's
// characteristic range.
func (p *Participant) TypicalTradeSize(rng *rand.Rand) float64 {
	r, ok := typicalTradeSizeRanges[p.Type]
	if !ok {
		r = typicalTradeSizeRanges[RetailTrader]
	}
	return r.min + rng.Float64()*(r.max-r.min)
}

// MarginRequirement is volume financed at leverage.
func (p *Participant) MarginRequirement(volume, leverage float64) float64 {
	return volume / leverage
}

// Deactivate marks the participant inactive; it stops trading and fails
// CanOpenPosition, but retains its existing positions.
func (p *Participant) Deactivate() { p.Active = false }

// Activate reverses Deactivate.
func (p *Participant) Activate() { p.Active = true }

// Registry holds every participant known to the simulation, keyed by id,
// guarded by its own reader-writer lock per spec.md §5's lock list (the
// engine owns this registry but nests its lock inside the engine's own).
type Registry struct {
	mu           sync.RWMutex
	participants map[string]*Participant
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{participants: make(map[string]*Participant)}
}

// Register adds p to the registry.
func (r *Registry) Register(p *Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants[p.ID] = p
}

// Get returns the participant with id, or ErrUnknownParticipant.
func (r *Registry) Get(id string) (*Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participants[id]
	if !ok {
		return nil, ErrUnknownParticipant
	}
	return p, nil
}

// All returns every registered participant, in no particular order.
func (r *Registry) All() []*Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, p)
	}
	return out
}

// OfType returns every registered participant of type t.
func (r *Registry) OfType(t Type) []*Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Participant
	for _, p := range r.participants {
		if p.Type == t {
			out = append(out, p)
		}
	}
	return out
}
