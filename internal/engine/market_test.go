package engine_test

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fxsim/internal/broker"
	"fxsim/internal/common"
	"fxsim/internal/engine"
	"fxsim/internal/participant"
)

func newMarketWithEURUSD(t *testing.T) *engine.Market {
	t.Helper()
	m := engine.New()
	require.NoError(t, m.AddSymbol("EURUSD"))
	return m
}

func restingSell(symbol string, price, amount float64, owner string) common.Order {
	return common.Order{
		ID:            uuid.New(),
		Symbol:        symbol,
		Side:          common.Sell,
		Kind:          common.Limit,
		Price:         price,
		Amount:        amount,
		TotalAmount:   amount,
		ParticipantID: owner,
	}
}

func takerBuy(symbol string, amount float64, owner string) common.Order {
	return common.Order{
		ID:            uuid.New(),
		Symbol:        symbol,
		Side:          common.Buy,
		Kind:          common.Market,
		Amount:        amount,
		TotalAmount:   amount,
		ParticipantID: owner,
	}
}

func TestAddSymbolRejectsDuplicate(t *testing.T) {
	m := newMarketWithEURUSD(t)
	assert.ErrorIs(t, m.AddSymbol("EURUSD"), engine.ErrSymbolExists)
}

func TestGetOrderBookErrorsOnUnknownSymbol(t *testing.T) {
	m := newMarketWithEURUSD(t)
	_, err := m.GetOrderBook("GBPUSD")
	assert.ErrorIs(t, err, engine.ErrUnknownSymbol)
}

func TestPlaceOrderSettlesParticipantBalances(t *testing.T) {
	m := newMarketWithEURUSD(t)

	seller := participant.New("seller", "Seller", participant.Trader, 1_000_000)
	buyer := participant.New("buyer", "Buyer", participant.Trader, 1_000_000)
	m.AddParticipant(seller)
	m.AddParticipant(buyer)

	ob, err := m.GetOrderBook("EURUSD")
	require.NoError(t, err)
	_, err = ob.PlaceOrder(restingSell("EURUSD", 1.1000, 10000, "seller"))
	require.NoError(t, err)

	br := broker.New("Direct", broker.DirectAccess, 0, 0)
	_, err = m.PlaceOrder("EURUSD", common.Buy, 10000, "buyer", br, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	assert.Less(t, buyer.Balance, 1_000_000.0)
	assert.Greater(t, seller.Balance, 1_000_000.0)
	assert.EqualValues(t, 1, m.Stats.TotalTrades)
}

func TestPlaceOrderUnknownSymbolErrors(t *testing.T) {
	m := engine.New()
	br := broker.New("Direct", broker.DirectAccess, 0, 0)
	_, err := m.PlaceOrder("EURUSD", common.Buy, 1000, "x", br, rand.New(rand.NewSource(1)))
	assert.ErrorIs(t, err, engine.ErrUnknownSymbol)
}

func TestPlaceOrderDirectBypassesBroker(t *testing.T) {
	m := newMarketWithEURUSD(t)
	trades, err := m.PlaceOrderDirect(takerBuy("EURUSD", 1000, "x"))
	require.NoError(t, err)
	assert.Empty(t, trades) // empty book, nothing to match
}

func TestGetRecentTradesFiltersBySymbolAndOrdersMostRecentFirst(t *testing.T) {
	m := engine.New()
	require.NoError(t, m.AddSymbol("EURUSD"))
	require.NoError(t, m.AddSymbol("GBPUSD"))

	_, err := m.PlaceOrderDirect(restingSell("EURUSD", 1.1, 1000, "a"))
	require.NoError(t, err)
	_, err = m.PlaceOrderDirect(takerBuy("EURUSD", 1000, "b"))
	require.NoError(t, err)

	trades := m.GetRecentTrades("EURUSD", 10)
	require.Len(t, trades, 1)
	assert.Empty(t, m.GetRecentTrades("GBPUSD", 10))
}

func TestUpdateStatsComputesLiquidityIndex(t *testing.T) {
	m := newMarketWithEURUSD(t)
	_, err := m.PlaceOrderDirect(restingSell("EURUSD", 1.1, 5000, "a"))
	require.NoError(t, err)
	_, err = m.PlaceOrderDirect(takerBuy("EURUSD", 5000, "b")) // trade it, so the book has traded volume
	require.NoError(t, err)

	m.UpdateStats()
	assert.Greater(t, m.Stats.LiquidityIndex, 0.0)
}

func TestGetParticipantPositionsNetsBuySellVolume(t *testing.T) {
	m := newMarketWithEURUSD(t)
	_, err := m.PlaceOrderDirect(restingSell("EURUSD", 1.1, 10000, "a"))
	require.NoError(t, err)
	_, err = m.PlaceOrderDirect(takerBuy("EURUSD", 4000, "a")) // a self-trades 4000 against its own resting sell
	require.NoError(t, err)

	// a bought and sold the same 4000; the unfilled 6000 never traded.
	positions := m.GetParticipantPositions("a")
	assert.InDelta(t, 4000.0-4000.0, positions["EURUSD"], 1e-9)
}
