// Package book implements a single-symbol central limit order book:
// price-time priority matching for Market, Limit, Stop and StopLimit
// orders, depth snapshots, and cancellation.
package book

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/btree"

	"fxsim/internal/common"
)

var (
	ErrInvalidAmount = errors.New("amount must be positive")
	ErrInvalidPrice  = errors.New("price must be positive")
	ErrOrderNotFound = errors.New("order not found")
)

// PriceLevel holds every order resting at a single price, in arrival
// (FIFO) order.
type PriceLevel struct {
	Price  float64
	Orders []*common.Order
}

type priceLevels = btree.BTreeG[*PriceLevel]

// OrderBook is the per-symbol CLOB. Bids are stored highest-price-first,
// asks lowest-price-first, so MinMut() on either tree yields top of book.
type OrderBook struct {
	Symbol         string
	Bids           *priceLevels
	Asks           *priceLevels
	LastTradePrice float64
	TotalVolume    float64
}

// New creates an empty book for symbol.
func New(symbol string) *OrderBook {
	bids := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price > b.Price // descending: highest bid first
	})
	asks := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price < b.Price // ascending: lowest ask first
	})
	return &OrderBook{
		Symbol: symbol,
		Bids:   bids,
		Asks:   asks,
	}
}

// PlaceOrder accepts order and returns any trades it produced. Rejections
// (non-positive amount/price) leave the book unchanged.
func (b *OrderBook) PlaceOrder(order common.Order) ([]common.Trade, error) {
	if order.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if order.Kind != common.Market && order.Price <= 0 {
		return nil, ErrInvalidPrice
	}
	if order.Timestamp.IsZero() {
		order.Timestamp = time.Now()
	}

	switch order.Kind {
	case common.Market:
		return b.handleMarket(order), nil
	case common.Limit:
		return b.handleLimit(order), nil
	case common.Stop:
		return b.handleStop(order), nil
	case common.StopLimit:
		return b.handleStopLimit(order), nil
	default:
		return nil, ErrInvalidAmount
	}
}

// handleMarket walks the opposite book until the order is fully filled or
// the book is exhausted; any unfilled residual is discarded.
func (b *OrderBook) handleMarket(order common.Order) []common.Trade {
	levels, tradeType := b.oppositeLevels(order.Side), tradeKindFor(order.Kind)
	return b.sweep(&order, levels, tradeType)
}

// handleLimit executes the marketable portion immediately, then rests any
// residual at its limit price at the tail of that level's FIFO.
func (b *OrderBook) handleLimit(order common.Order) []common.Trade {
	var trades []common.Trade

	if order.Side == common.Buy {
		if best, ok := b.GetBestAsk(); ok && order.Price >= best {
			trades = b.sweepLimit(&order, b.Asks, order.Price)
		}
	} else {
		if best, ok := b.GetBestBid(); ok && order.Price <= best {
			trades = b.sweepLimit(&order, b.Bids, order.Price)
		}
	}

	if order.Amount > 0 {
		b.restOrder(order)
	}
	return trades
}

// handleStop converts to Market iff the trigger condition holds at
// arrival; otherwise the order is dropped.
func (b *OrderBook) handleStop(order common.Order) []common.Trade {
	if !b.triggered(order) {
		return nil
	}
	converted := order
	converted.Kind = common.Market
	return b.handleMarket(converted)
}

// handleStopLimit converts to Limit iff the trigger condition holds at
// arrival; otherwise the order is dropped.
func (b *OrderBook) handleStopLimit(order common.Order) []common.Trade {
	if !b.triggered(order) {
		return nil
	}
	converted := order
	converted.Kind = common.Limit
	return b.handleLimit(converted)
}

func (b *OrderBook) triggered(order common.Order) bool {
	if order.Side == common.Buy {
		return b.LastTradePrice >= order.Price
	}
	return b.LastTradePrice <= order.Price
}

func (b *OrderBook) oppositeLevels(side common.Side) *priceLevels {
	if side == common.Buy {
		return b.Asks
	}
	return b.Bids
}

func tradeKindFor(kind common.OrderKind) common.TradeType {
	switch kind {
	case common.Limit:
		return common.TradeLimit
	case common.Stop, common.StopLimit:
		return common.TradeStop
	default:
		return common.TradeMarket
	}
}

// sweep consumes levels in priority order on behalf of a pure market
// (unbounded price) order. Unfilled residual amount is left on incoming
// but never rested.
func (b *OrderBook) sweep(incoming *common.Order, levels *priceLevels, tradeType common.TradeType) []common.Trade {
	var trades []common.Trade

	for incoming.Amount > 0 {
		level, ok := levels.MinMut()
		if !ok {
			break
		}

		var consumed int
		for consumed < len(level.Orders) && incoming.Amount > 0 {
			resting := level.Orders[consumed]
			fill := min(incoming.Amount, resting.Amount)

			trade := makeTrade(b.Symbol, incoming, resting, level.Price, fill, tradeType)
			trades = append(trades, trade)

			incoming.Amount -= fill
			resting.Amount -= fill
			b.LastTradePrice = level.Price
			b.TotalVolume += fill

			if resting.Amount <= 0 {
				consumed++
			} else {
				break
			}
		}

		if consumed > 0 {
			level.Orders = level.Orders[consumed:]
		}
		if len(level.Orders) == 0 {
			levels.Delete(level)
		}
	}

	checkInvariants(b)
	return trades
}

// sweepLimit is sweep bounded by a limit price: it only consumes levels
// that remain marketable against limitPrice.
func (b *OrderBook) sweepLimit(incoming *common.Order, levels *priceLevels, limitPrice float64) []common.Trade {
	var trades []common.Trade

	for incoming.Amount > 0 {
		level, ok := levels.MinMut()
		if !ok {
			break
		}
		if incoming.Side == common.Buy && level.Price > limitPrice {
			break
		}
		if incoming.Side == common.Sell && level.Price < limitPrice {
			break
		}

		var consumed int
		for consumed < len(level.Orders) && incoming.Amount > 0 {
			resting := level.Orders[consumed]
			fill := min(incoming.Amount, resting.Amount)

			trade := makeTrade(b.Symbol, incoming, resting, level.Price, fill, common.TradeLimit)
			trades = append(trades, trade)

			incoming.Amount -= fill
			resting.Amount -= fill
			b.LastTradePrice = level.Price
			b.TotalVolume += fill

			if resting.Amount <= 0 {
				consumed++
			} else {
				break
			}
		}

		if consumed > 0 {
			level.Orders = level.Orders[consumed:]
		}
		if len(level.Orders) == 0 {
			levels.Delete(level)
		}
	}

	checkInvariants(b)
	return trades
}

func makeTrade(symbol string, incoming, resting *common.Order, price, volume float64, kind common.TradeType) common.Trade {
	trade := common.Trade{
		ID:        uuid.New(),
		Symbol:    symbol,
		Price:     price,
		Volume:    volume,
		Timestamp: time.Now(),
		Kind:      kind,
	}
	if incoming.Side == common.Buy {
		trade.BuyerID = incoming.ParticipantID
		trade.SellerID = resting.ParticipantID
	} else {
		trade.BuyerID = resting.ParticipantID
		trade.SellerID = incoming.ParticipantID
	}
	return trade
}

// restOrder appends order to the tail of its price level's FIFO,
// preserving time priority.
func (b *OrderBook) restOrder(order common.Order) {
	levels := b.Bids
	if order.Side == common.Sell {
		levels = b.Asks
	}

	stored := order
	if level, ok := levels.GetMut(&PriceLevel{Price: order.Price}); ok {
		level.Orders = append(level.Orders, &stored)
	} else {
		levels.Set(&PriceLevel{Price: order.Price, Orders: []*common.Order{&stored}})
	}
}

// GetBestBid returns the highest resting bid price, if any.
func (b *OrderBook) GetBestBid() (float64, bool) {
	level, ok := b.Bids.MinMut()
	if !ok {
		return 0, false
	}
	return level.Price, true
}

// GetBestAsk returns the lowest resting ask price, if any.
func (b *OrderBook) GetBestAsk() (float64, bool) {
	level, ok := b.Asks.MinMut()
	if !ok {
		return 0, false
	}
	return level.Price, true
}

// DepthEntry is one (price, aggregated volume) pair in a depth snapshot.
type DepthEntry struct {
	Price  float64
	Volume float64
}

// GetBids returns the top n bid levels, highest price first.
func (b *OrderBook) GetBids(n int) []DepthEntry {
	return depth(b.Bids, n)
}

// GetAsks returns the top n ask levels, lowest price first.
func (b *OrderBook) GetAsks(n int) []DepthEntry {
	return depth(b.Asks, n)
}

func depth(levels *priceLevels, n int) []DepthEntry {
	var result []DepthEntry
	for _, level := range levels.Items() {
		if len(result) >= n {
			break
		}
		var vol float64
		for _, o := range level.Orders {
			vol += o.Amount
		}
		result = append(result, DepthEntry{Price: level.Price, Volume: vol})
	}
	return result
}

// RemoveOrder scans both sides for id and removes it, preserving FIFO
// order of whatever remains at that level. Returns whether it was found.
func (b *OrderBook) RemoveOrder(id uuid.UUID) bool {
	if removeFrom(b.Bids, id.String()) {
		return true
	}
	return removeFrom(b.Asks, id.String())
}

func removeFrom(levels *priceLevels, id string) bool {
	for _, level := range levels.Items() {
		for i, o := range level.Orders {
			if o.ID.String() != id {
				continue
			}
			level.Orders = append(level.Orders[:i], level.Orders[i+1:]...)
			if len(level.Orders) == 0 {
				levels.Delete(level)
			}
			return true
		}
	}
	return false
}

// OrderCount returns the total number of resting orders across both sides.
func (b *OrderBook) OrderCount() int {
	count := 0
	for _, l := range b.Bids.Items() {
		count += len(l.Orders)
	}
	for _, l := range b.Asks.Items() {
		count += len(l.Orders)
	}
	return count
}

// checkInvariants aborts the process if the book has reached an
// impossible state — these are bugs, not recoverable errors.
func checkInvariants(b *OrderBook) {
	bid, hasBid := b.GetBestBid()
	ask, hasAsk := b.GetBestAsk()
	if hasBid && hasAsk && bid >= ask {
		log.Error().Str("symbol", b.Symbol).Float64("bid", bid).Float64("ask", ask).
			Msg("invariant violation: best_bid >= best_ask")
		panic("book: best_bid >= best_ask")
	}
	if b.TotalVolume < 0 {
		panic("book: negative total volume")
	}
}
