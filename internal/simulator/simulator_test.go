package simulator_test

import (
	"math/rand"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"fxsim/internal/engine"
	"fxsim/internal/participant"
	"fxsim/internal/simulator"
)

func TestTickInjectsOrdersWithoutPanicking(t *testing.T) {
	m := engine.New()
	require.NoError(t, m.AddSymbol("EURUSD"))

	for i := 0; i < 5; i++ {
		bank := participant.NewOfType(strconv.Itoa(i), participant.Bank, rand.New(rand.NewSource(int64(i))))
		m.AddParticipant(bank)
	}
	for i := 5; i < 30; i++ {
		trader := participant.NewOfType(strconv.Itoa(i), participant.Trader, rand.New(rand.NewSource(int64(i))))
		m.AddParticipant(trader)
	}

	sim := simulator.New(m, rand.New(rand.NewSource(99)), simulator.WithCohortSizes(5, 25))

	require.NotPanics(t, func() {
		for i := 0; i < 20; i++ {
			sim.Tick()
		}
	})
}

func TestTickNeverExceedsCohortSizeEvenWithZeroParticipants(t *testing.T) {
	m := engine.New()
	require.NoError(t, m.AddSymbol("EURUSD"))
	sim := simulator.New(m, rand.New(rand.NewSource(1)))
	require.NotPanics(t, sim.Tick)
}
