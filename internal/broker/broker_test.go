package broker_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fxsim/internal/broker"
	"fxsim/internal/common"
)

func testOrder(side common.Side, price, amount float64) common.Order {
	return common.Order{
		Symbol:      "EURUSD",
		Side:        side,
		Kind:        common.Limit,
		Price:       price,
		Amount:      amount,
		TotalAmount: amount,
	}
}

// Scenario 4: MarketMaker widens a buy by half the configured spread,
// then the bounded slippage/requote stages only ever nudge it within a
// small band of that markup.
func TestMarketMakerWidensQuoteBySpread(t *testing.T) {
	b := broker.New("MM Desk", broker.MarketMaker, 0.0004, 0)

	base := 1.1000
	for seed := int64(0); seed < 50; seed++ {
		rng := rand.New(rand.NewSource(seed))
		out := b.Process(testOrder(common.Buy, base, 10000), rng)
		assert.InDelta(t, base+0.0004/2.0, out.Price, 0.002)
	}
}

// Scenario 5: ECN aggregates multiple LP quotes into a single weighted
// price, staying within a small band of the raw mid once the bounded
// slippage/requote stages are layered on.
func TestECNAggregatesLiquidityProviders(t *testing.T) {
	b := broker.New("ECN Prime", broker.ECN, 0.0001, 5.0)
	require.Len(t, b.LiquidityProviders, 4)

	base := 1.1000
	for seed := int64(0); seed < 50; seed++ {
		rng := rand.New(rand.NewSource(seed))
		out := b.Process(testOrder(common.Buy, base, 100000), rng)
		assert.InDelta(t, base, out.Price, 0.003)
	}
}

func TestCanExecuteRejectsOutOfBoundsSize(t *testing.T) {
	b := broker.New("Direct", broker.DirectAccess, 0.0001, 0)
	rng := rand.New(rand.NewSource(1))
	assert.False(t, b.CanExecute(testOrder(common.Buy, 1.1, 1), rng))
	assert.True(t, b.CanExecute(testOrder(common.Buy, 1.1, 10000), rng))
}

func TestMarginRequirementCapsAtMaxLeverage(t *testing.T) {
	b := broker.New("ECN Prime", broker.ECN, 0.0001, 5.0) // MaxLeverage 200
	unclamped := b.GetMarginRequirement("EURUSD", 100000, 50)
	clamped := b.GetMarginRequirement("EURUSD", 100000, 1000)

	assert.InDelta(t, 100000.0/50.0, unclamped, 1e-6)
	assert.InDelta(t, 100000.0/200.0, clamped, 1e-6)
	assert.Less(t, clamped, unclamped)
}

func TestMarginRequirementMonotonicInVolume(t *testing.T) {
	b := broker.New("Direct", broker.DirectAccess, 0.0001, 0)
	small := b.GetMarginRequirement("EURUSD", 10000, 50)
	large := b.GetMarginRequirement("EURUSD", 50000, 50)
	assert.Less(t, small, large)
}

func TestCalculateSwapDiffersByDirection(t *testing.T) {
	b := broker.New("Direct", broker.DirectAccess, 0.0001, 0)
	buySwap := b.CalculateSwap("GBPUSD", common.Buy, 100000)
	sellSwap := b.CalculateSwap("GBPUSD", common.Sell, 100000)
	assert.Greater(t, buySwap, 0.0)
	assert.Less(t, sellSwap, 0.0)
}

func TestGetEffectiveSpreadAddsBrokerSpread(t *testing.T) {
	b1 := broker.New("Tight", broker.ECN, 0.0, 0)
	b2 := broker.New("Wide", broker.ECN, 0.0010, 0)
	assert.Less(t, b1.GetEffectiveSpread("EURUSD"), b2.GetEffectiveSpread("EURUSD"))
}

func TestRegistryGetUnknownBroker(t *testing.T) {
	r := broker.NewRegistry()
	_, err := r.Get("nonexistent")
	assert.ErrorIs(t, err, broker.ErrUnknownBroker)
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := broker.NewRegistry()
	b := broker.New("Direct", broker.DirectAccess, 0.0001, 0)
	r.Register(b)

	got, err := r.Get(b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.Name, got.Name)
	assert.Len(t, r.All(), 1)
}
