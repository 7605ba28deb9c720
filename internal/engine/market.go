// Package engine is the venue's matching core: a Market owns one
// OrderBook per symbol, the participant registry, the active-order
// index, a bounded trade log, and the aggregate MarketStats derived from
// it, all guarded by a single lock for the duration of each call.
package engine

import (
	"errors"
	"math"
	"math/rand"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"fxsim/internal/book"
	"fxsim/internal/broker"
	"fxsim/internal/common"
	"fxsim/internal/participant"
)

var (
	ErrUnknownSymbol = errors.New("unknown symbol")
	ErrSymbolExists  = errors.New("symbol already exists")
)

const defaultTradeHistoryLimit = 100_000

// MarketStats summarizes the venue's current aggregate state.
type MarketStats struct {
	TotalVolume        float64
	TotalTrades        uint64
	ActiveParticipants uint64
	LiquidityIndex     float64
	Volatility         float64
}

// Market is the matching engine: every symbol's book, every participant,
// the active-order index and trade history, and derived stats. All
// access goes through a single RWMutex, the venue's "engine" lock.
type Market struct {
	mu sync.RWMutex

	books        map[string]*book.OrderBook
	participants *participant.Registry
	activeOrders map[uuid.UUID]*common.Order

	tradeLog     []common.Trade
	tradeLogHead int
	tradeLogFull bool
	tradeLogCap  int

	Stats MarketStats
}

// Option configures a Market at construction time.
type Option func(*Market)

// WithTradeHistoryLimit overrides the default 100,000-entry trade ring.
func WithTradeHistoryLimit(n int) Option {
	return func(m *Market) { m.tradeLogCap = n }
}

// New returns an empty Market ready to have symbols and participants
// added to it.
func New(opts ...Option) *Market {
	m := &Market{
		books:        make(map[string]*book.OrderBook),
		participants: participant.NewRegistry(),
		activeOrders: make(map[uuid.UUID]*common.Order),
		tradeLogCap:  defaultTradeHistoryLimit,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.tradeLog = make([]common.Trade, 0, m.tradeLogCap)
	return m
}

// AddSymbol registers a fresh, empty order book for symbol.
func (m *Market) AddSymbol(symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.books[symbol]; exists {
		return ErrSymbolExists
	}
	m.books[symbol] = book.New(symbol)
	return nil
}

// AddParticipant registers p in the market's participant population.
func (m *Market) AddParticipant(p *participant.Participant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.participants.Register(p)
	m.Stats.ActiveParticipants = uint64(len(m.participants.All()))
}

// GetOrderBook returns the book for symbol, or ErrUnknownSymbol. An
// unknown symbol is a routine lookup failure, not a programming bug, so
// this never panics.
func (m *Market) GetOrderBook(symbol string) (*book.OrderBook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ob, ok := m.books[symbol]
	if !ok {
		return nil, ErrUnknownSymbol
	}
	return ob, nil
}

// Symbols returns every registered symbol, in no particular order.
func (m *Market) Symbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.books))
	for s := range m.books {
		out = append(out, s)
	}
	return out
}

// Participants exposes the registry for simulator/runtime use. Callers
// must not mutate participants without holding the engine lock.
func (m *Market) Participants() *participant.Registry {
	return m.participants
}

// PlaceOrder runs an order submitted through a broker: the broker
// rewrites the price, the book matches it, resulting trades settle
// against participant balances, and stats are refreshed — all under one
// write-lock acquisition for the duration of the call.
func (m *Market) PlaceOrder(symbol string, side common.Side, amount float64, participantID string, br broker.Broker, rng *rand.Rand) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ob, ok := m.books[symbol]
	if !ok {
		return uuid.Nil, ErrUnknownSymbol
	}

	order := common.Order{
		ID:            uuid.New(),
		Symbol:        symbol,
		Side:          side,
		Kind:          common.Market,
		Amount:        amount,
		TotalAmount:   amount,
		Price:         calculateOrderPrice(ob, side, br),
		ParticipantID: participantID,
	}
	order = br.Process(order, rng)

	trades, err := ob.PlaceOrder(order)
	if err != nil {
		return uuid.Nil, err
	}

	for _, t := range trades {
		m.executeTrade(t)
	}

	m.activeOrders[order.ID] = &order
	return order.ID, nil
}

// PlaceOrderDirect bypasses the broker pipeline entirely — used by the
// participant simulator, whose orders are injected straight into the
// book.
func (m *Market) PlaceOrderDirect(order common.Order) ([]common.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ob, ok := m.books[order.Symbol]
	if !ok {
		return nil, ErrUnknownSymbol
	}

	trades, err := ob.PlaceOrder(order)
	if err != nil {
		return nil, err
	}
	for _, t := range trades {
		m.executeTrade(t)
	}
	m.activeOrders[order.ID] = &order
	return trades, nil
}

func calculateOrderPrice(ob *book.OrderBook, side common.Side, br broker.Broker) float64 {
	var base float64
	if side == common.Buy {
		if ask, ok := ob.GetBestAsk(); ok {
			base = ask
		} else {
			base = 1.0
		}
		return base + br.Spread/2.0
	}
	if bid, ok := ob.GetBestBid(); ok {
		base = bid
	} else {
		base = 1.0
	}
	return base - br.Spread/2.0
}

// executeTrade appends t to the trade log (bounded ring) and settles it
// against participant balances. Caller must hold m.mu.
func (m *Market) executeTrade(t common.Trade) {
	m.appendTrade(t)
	m.Stats.TotalTrades++
	m.Stats.TotalVolume += t.Volume

	if buyer, err := m.participants.Get(t.BuyerID); err == nil {
		buyer.Balance -= t.Price * t.Volume
	}
	if seller, err := m.participants.Get(t.SellerID); err == nil {
		seller.Balance += t.Price * t.Volume
	}

	log.Debug().Str("symbol", t.Symbol).Float64("price", t.Price).
		Float64("volume", t.Volume).Msg("trade executed")
}

func (m *Market) appendTrade(t common.Trade) {
	if len(m.tradeLog) < m.tradeLogCap {
		m.tradeLog = append(m.tradeLog, t)
		return
	}
	m.tradeLog[m.tradeLogHead] = t
	m.tradeLogHead = (m.tradeLogHead + 1) % m.tradeLogCap
	m.tradeLogFull = true
}

// recentTrades returns the trade log in chronological order. Caller must
// hold at least a read lock.
func (m *Market) recentTrades() []common.Trade {
	if !m.tradeLogFull {
		out := make([]common.Trade, len(m.tradeLog))
		copy(out, m.tradeLog)
		return out
	}
	out := make([]common.Trade, 0, len(m.tradeLog))
	out = append(out, m.tradeLog[m.tradeLogHead:]...)
	out = append(out, m.tradeLog[:m.tradeLogHead]...)
	return out
}

// GetRecentTrades returns up to limit most-recent trades for symbol,
// most recent first.
func (m *Market) GetRecentTrades(symbol string, limit int) []common.Trade {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.recentTrades()
	var out []common.Trade
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		if all[i].Symbol == symbol {
			out = append(out, all[i])
		}
	}
	return out
}

// GetParticipantPositions sums net signed volume per symbol from the
// trade log for participantID (positive = net bought, negative = net
// sold). A self-trade counts on both sides and nets to zero.
func (m *Market) GetParticipantPositions(participantID string) map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]float64)
	for _, t := range m.recentTrades() {
		if t.BuyerID == participantID {
			out[t.Symbol] += t.Volume
		}
		if t.SellerID == participantID {
			out[t.Symbol] -= t.Volume
		}
	}
	return out
}

// UpdateStats recomputes liquidity index (mean per-symbol traded volume)
// and volatility (stddev of the last 100 trade prices). Volatility is
// left unchanged until the trade log holds more than 100 trades.
func (m *Market) UpdateStats() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.books) > 0 {
		var total float64
		for _, ob := range m.books {
			total += ob.TotalVolume
		}
		m.Stats.LiquidityIndex = total / float64(len(m.books))
	}

	trades := m.recentTrades()
	if len(trades) <= 100 {
		return
	}
	recent := trades[len(trades)-100:]

	var mean float64
	for _, t := range recent {
		mean += t.Price
	}
	mean /= float64(len(recent))

	var variance float64
	for _, t := range recent {
		d := t.Price - mean
		variance += d * d
	}
	variance /= float64(len(recent))

	m.Stats.Volatility = math.Sqrt(variance)
}

// BestBid, BestAsk, LastTradePrice and TotalVolume implement the narrow
// MarketView interface feed.PriceFeed consumes, without exposing book
// internals.
func (m *Market) BestBid(symbol string) (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ob, ok := m.books[symbol]
	if !ok {
		return 0, false
	}
	return ob.GetBestBid()
}

func (m *Market) BestAsk(symbol string) (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ob, ok := m.books[symbol]
	if !ok {
		return 0, false
	}
	return ob.GetBestAsk()
}

func (m *Market) LastTradePrice(symbol string) (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ob, ok := m.books[symbol]
	if !ok {
		return 0, false
	}
	return ob.LastTradePrice, ob.LastTradePrice != 0
}

func (m *Market) TotalVolume(symbol string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ob, ok := m.books[symbol]
	if !ok {
		return 0
	}
	return ob.TotalVolume
}
