// Package simulator drives the background order flow that makes the
// venue feel alive between real client calls: on every tick, a bounded
// cohort of banks and a bounded cohort of every other participant type
// each roll their strategy's Bernoulli "should trade" draw and, on a
// hit, inject an order straight into the matching engine.
package simulator

import (
	"math/rand"

	"github.com/google/uuid"

	"fxsim/internal/common"
	"fxsim/internal/engine"
	"fxsim/internal/participant"
)

const (
	defaultBankCohort  = 50
	defaultOtherCohort = 1000

	priceNoiseBand = 0.001
)

// Simulator injects synthetic order flow into an engine.Market once per
// Tick, drawing every random choice from an injected rng. Cohort
// membership and the symbol list come from map iteration (participant
// registry, engine symbols), so the same seed alone does not reproduce
// the same orders.
type Simulator struct {
	market      *engine.Market
	rng         *rand.Rand
	bankCohort  int
	otherCohort int
}

// Option configures a Simulator at construction time.
type Option func(*Simulator)

// WithCohortSizes overrides the default bank/other per-tick processing
// caps (50 banks, 1000 others).
func WithCohortSizes(banks, others int) Option {
	return func(s *Simulator) { s.bankCohort, s.otherCohort = banks, others }
}

// New returns a Simulator over market, drawing all randomness from rng.
func New(market *engine.Market, rng *rand.Rand, opts ...Option) *Simulator {
	s := &Simulator{
		market:      market,
		rng:         rng,
		bankCohort:  defaultBankCohort,
		otherCohort: defaultOtherCohort,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tick runs one bank-cohort pass and one pass over every other
// participant type, each participant independently drawing its
// strategy's Bernoulli "should trade" decision and its own type's
// typical trade size.
func (s *Simulator) Tick() {
	banks := s.market.Participants().OfType(participant.Bank)
	s.processCohort(banks, s.bankCohort, common.Limit)

	var others []*participant.Participant
	for _, p := range s.market.Participants().All() {
		if p.Type != participant.Bank {
			others = append(others, p)
		}
	}
	s.processCohort(others, s.otherCohort, common.Market)
}

func (s *Simulator) processCohort(participants []*participant.Participant, limit int, kind common.OrderKind) {
	if limit > len(participants) {
		limit = len(participants)
	}
	for _, p := range participants[:limit] {
		if !p.ShouldTrade(s.rng) {
			continue
		}

		symbol := s.randomSymbol()
		side := common.Buy
		if s.rng.Float64() < 0.5 {
			side = common.Sell
		}
		volume := p.TypicalTradeSize(s.rng)
		price := s.marketPrice(symbol, side)

		order := common.Order{
			ID:            uuid.New(),
			Symbol:        symbol,
			Side:          side,
			Kind:          kind,
			Amount:        volume,
			TotalAmount:   volume,
			Price:         price,
			ParticipantID: p.ID,
		}
		_, _ = s.market.PlaceOrderDirect(order)
	}
}

func (s *Simulator) randomSymbol() string {
	symbols := s.market.Symbols()
	if len(symbols) == 0 {
		return "EURUSD"
	}
	return symbols[s.rng.Intn(len(symbols))]
}

// marketPrice draws a noisy quote around the current best price on side,
// falling back to 1.0 when the book has nothing resting on that side.
func (s *Simulator) marketPrice(symbol string, side common.Side) float64 {
	var base float64 = 1.0
	if side == common.Buy {
		if ask, ok := s.market.BestAsk(symbol); ok {
			base = ask
		}
	} else if bid, ok := s.market.BestBid(symbol); ok {
		base = bid
	}
	noise := -priceNoiseBand + s.rng.Float64()*(2*priceNoiseBand)
	return base * (1.0 + noise)
}
