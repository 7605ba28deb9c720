// Package common holds the value types shared by every fxsim package: the
// order/trade wire shapes, and the small enums (Side, OrderKind, TradeType)
// that drive matching and broker logic.
package common

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Side is the direction of an order.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "Buy"
	}
	return "Sell"
}

// OrderKind selects the matching policy an order is subject to.
type OrderKind int

const (
	// Market orders walk the opposite book until filled or it is empty;
	// any unfilled residual is discarded.
	Market OrderKind = iota
	// Limit orders execute the marketable portion immediately and rest
	// the residual at their limit price.
	Limit
	// Stop orders convert to Market once the trigger condition is met on
	// arrival; otherwise they are dropped (no deferred-trigger queue).
	Stop
	// StopLimit orders convert to Limit once the trigger condition is
	// met on arrival; otherwise they are dropped.
	StopLimit
)

func (k OrderKind) String() string {
	switch k {
	case Market:
		return "Market"
	case Limit:
		return "Limit"
	case Stop:
		return "Stop"
	case StopLimit:
		return "StopLimit"
	default:
		return "Unknown"
	}
}

// TradeType records which order kind triggered a trade.
type TradeType int

const (
	TradeMarket TradeType = iota
	TradeLimit
	TradeStop
)

func (t TradeType) String() string {
	switch t {
	case TradeMarket:
		return "Market"
	case TradeLimit:
		return "Limit"
	case TradeStop:
		return "Stop"
	default:
		return "Unknown"
	}
}

// Order is ephemeral unless it rests on a book. Amount is the remaining
// quantity; TotalAmount is the quantity originally submitted, kept around
// for fill-ratio bookkeeping once an order rests and is partially filled.
type Order struct {
	ID            uuid.UUID
	Symbol        string
	Side          Side
	Kind          OrderKind
	Amount        float64
	TotalAmount   float64
	Price         float64 // limit/stop price; ignored for Market
	ParticipantID string
	Timestamp     time.Time
}

func (o Order) String() string {
	return fmt.Sprintf(
		"Order{id=%s symbol=%s side=%s kind=%s amount=%.2f/%.2f price=%.5f owner=%s}",
		o.ID, o.Symbol, o.Side, o.Kind, o.Amount, o.TotalAmount, o.Price, o.ParticipantID,
	)
}

// Trade is immutable once created: buyer's side was Buy, seller's side was
// Sell, and self-trade (buyer == seller) is permitted as a simulation
// artifact.
type Trade struct {
	ID        uuid.UUID
	Symbol    string
	BuyerID   string
	SellerID  string
	Price     float64
	Volume    float64
	Timestamp time.Time
	Kind      TradeType
}

func (t Trade) String() string {
	return fmt.Sprintf(
		"Trade{id=%s symbol=%s buyer=%s seller=%s price=%.5f volume=%.2f kind=%s}",
		t.ID, t.Symbol, t.BuyerID, t.SellerID, t.Price, t.Volume, t.Kind,
	)
}
