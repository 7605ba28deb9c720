package participant_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fxsim/internal/common"
	"fxsim/internal/participant"
)

func TestNewDerivesProfileFromType(t *testing.T) {
	p := participant.New("1", "HF 1", participant.HedgeFund, 100_000_000)
	assert.Equal(t, 10.0, p.Leverage)
	assert.Equal(t, participant.Aggressive, p.Strategy)
	assert.Equal(t, 0.8, p.RiskTolerance)
	assert.True(t, p.Active)
	assert.Equal(t, p.Balance, p.Equity)
}

func TestAddPositionUpdatesEquity(t *testing.T) {
	p := participant.New("1", "Trader 1", participant.Trader, 100_000)
	pos := participant.NewPosition("EURUSD", common.Buy, 10000, 1.1000)
	p.AddPosition(pos)
	assert.Equal(t, p.Balance, p.Equity) // unrealized pnl starts at zero

	p.UpdatePositionPrice("EURUSD", 1.1010)
	assert.InDelta(t, 10.0, p.Equity-p.Balance, 1e-9) // (1.1010-1.1000)*10000
}

func TestClosePositionRealizesPnLIntoBalance(t *testing.T) {
	p := participant.New("1", "Trader 1", participant.Trader, 100_000)
	pos := participant.NewPosition("EURUSD", common.Buy, 10000, 1.1000)
	p.AddPosition(pos)
	p.UpdatePositionPrice("EURUSD", 1.1010)

	startBalance := p.Balance
	closed, ok := p.ClosePosition("EURUSD")
	require.True(t, ok)
	assert.InDelta(t, 10.0, closed.UnrealizedPnL, 1e-9)
	assert.InDelta(t, startBalance+10.0, p.Balance, 1e-9)
	assert.InDelta(t, p.Balance, p.Equity, 1e-9)

	_, ok = p.ClosePosition("EURUSD")
	assert.False(t, ok)
}

func TestSellPositionPnLIsMirrorOfBuy(t *testing.T) {
	buy := participant.NewPosition("EURUSD", common.Buy, 10000, 1.1000)
	buy.UpdatePrice(1.0990)
	sell := participant.NewPosition("EURUSD", common.Sell, 10000, 1.1000)
	sell.UpdatePrice(1.0990)

	assert.InDelta(t, -buy.UnrealizedPnL, sell.UnrealizedPnL, 1e-9)
}

func TestCanOpenPositionRespectsFreeMarginAndActive(t *testing.T) {
	p := participant.New("1", "Corp 1", participant.Corporation, 10_000)
	assert.True(t, p.CanOpenPosition(5_000))
	assert.False(t, p.CanOpenPosition(20_000))

	p.Deactivate()
	assert.False(t, p.CanOpenPosition(1))
	p.Activate()
	assert.True(t, p.CanOpenPosition(1))
}

func TestShouldTradeNeverFiresWhenInactive(t *testing.T) {
	p := participant.New("1", "Trader 1", participant.Trader, 100_000)
	p.Deactivate()
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		assert.False(t, p.ShouldTrade(rng))
	}
}

func TestNewOfTypeDrawsBalanceWithinRange(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		p := participant.NewOfType("1", participant.RetailTrader, rng)
		assert.GreaterOrEqual(t, p.Balance, 1_000.0)
		assert.Less(t, p.Balance, 100_000.0)
	}
}

func TestRegistryOfTypeFiltersByType(t *testing.T) {
	r := participant.NewRegistry()
	r.Register(participant.New("1", "Bank 1", participant.Bank, 1_000_000))
	r.Register(participant.New("2", "Trader 1", participant.Trader, 1_000_000))
	r.Register(participant.New("3", "Bank 2", participant.Bank, 1_000_000))

	banks := r.OfType(participant.Bank)
	assert.Len(t, banks, 2)
	assert.Len(t, r.All(), 3)

	_, err := r.Get("missing")
	assert.ErrorIs(t, err, participant.ErrUnknownParticipant)
}
