package exchange

import (
	"math/rand/v2"
	"sync"

	"github.com/xtrntr/nuamexchange/internal/models"

	"github.com/shopspring/decimal"
)

// Bounds of the fabricated price for orders without a limit
const (
	MinMarketPrice = 90.00
	MaxMarketPrice = 100.00
)

// DefaultFillProbability is the chance that a new order fills on arrival
const DefaultFillProbability = 0.7

// FillOutcome is the matching decision for one order
type FillOutcome struct {
	Filled bool
	Price  float64
}

// Matcher decides whether a freshly stored order fills
type Matcher interface {
	Decide(order models.Order) FillOutcome
}

// MatcherFunc adapts a function to Matcher
type MatcherFunc func(order models.Order) FillOutcome

func (f MatcherFunc) Decide(order models.Order) FillOutcome {
	return f(order)
}

// RandomMatcher fills with a fixed probability. There is no book: a counter
// party is assumed to exist whenever the draw succeeds.
type RandomMatcher struct {
	mu          sync.Mutex
	rng         *rand.Rand
	probability float64
}

// NewRandomMatcher creates a matcher drawing from src
func NewRandomMatcher(src rand.Source, probability float64) *RandomMatcher {
	return &RandomMatcher{rng: rand.New(src), probability: probability}
}

// NewSeededMatcher creates a matcher on a randomly seeded PCG source
func NewSeededMatcher(probability float64) *RandomMatcher {
	return NewRandomMatcher(rand.NewPCG(rand.Uint64(), rand.Uint64()), probability)
}

func (m *RandomMatcher) Decide(order models.Order) FillOutcome {
	m.mu.Lock()
	draw := m.rng.Float64()
	u := m.rng.Float64()
	m.mu.Unlock()

	if draw >= m.probability {
		return FillOutcome{}
	}
	if order.LimitPrice != nil {
		return FillOutcome{Filled: true, Price: *order.LimitPrice}
	}
	return FillOutcome{Filled: true, Price: MarketPrice(u)}
}

// MarketPrice maps u in [0,1) onto the market price range, rounded to cents
func MarketPrice(u float64) float64 {
	span := decimal.NewFromFloat(MaxMarketPrice - MinMarketPrice)
	price, _ := decimal.NewFromFloat(MinMarketPrice).
		Add(span.Mul(decimal.NewFromFloat(u))).
		Round(2).
		Float64()
	return price
}
