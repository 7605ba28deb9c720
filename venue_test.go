package venue_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fxsim/internal/common"
	venue "fxsim"
)

func testConfig() venue.Config {
	return venue.Config{Seed: 7, BankCount: 2, OtherCount: 10}
}

func TestNewBootstrapsDefaultSymbolsAndBrokers(t *testing.T) {
	v := venue.New(testConfig())

	assert.Len(t, v.Brokers(), 3)
	snap, err := v.MarketData("EURUSD", 5)
	require.NoError(t, err)
	assert.Equal(t, "EURUSD", snap.Symbol)
}

func TestMarketDataUnknownSymbolErrors(t *testing.T) {
	v := venue.New(testConfig())
	_, err := v.MarketData("ZZZ", 5)
	assert.Error(t, err)
}

func TestPlaceOrderRoutesThroughNamedBroker(t *testing.T) {
	v := venue.New(testConfig())
	brokerID := v.Brokers()[0].ID

	id, err := v.PlaceOrder("EURUSD", common.Buy, 10000, "client-1", brokerID)
	require.NoError(t, err)
	assert.NotEqual(t, id.String(), "00000000-0000-0000-0000-000000000000")
}

func TestPlaceOrderUnknownBrokerErrors(t *testing.T) {
	v := venue.New(testConfig())
	_, err := v.PlaceOrder("EURUSD", common.Buy, 10000, "client-1", "nope")
	assert.Error(t, err)
}

func TestHistoricalReturnsSeededCandles(t *testing.T) {
	v := venue.New(testConfig())
	candles, err := v.Historical("EURUSD", "1m", 50)
	require.NoError(t, err)
	assert.Len(t, candles, 50)
}

func TestSubscribeQuotesRequiresRunningScheduler(t *testing.T) {
	v := venue.New(testConfig())
	_, err := v.SubscribeQuotes(context.Background())
	assert.ErrorIs(t, err, venue.ErrNotRunning)
}

func TestSubscribeQuotesStreamsSnapshotsOnceRunning(t *testing.T) {
	v := venue.New(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = v.Run(ctx) }()
	time.Sleep(5 * time.Millisecond) // let Run flip v.running

	ch, err := v.SubscribeQuotes(ctx)
	require.NoError(t, err)

	select {
	case _, ok := <-ch:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a quote snapshot")
	}
}
