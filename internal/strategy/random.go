package strategy

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// RandomStrategy is the default stand-in decision generator: randomized
// signals shaped by the team's risk profile, executed against a uniform
// simulated market move. Intentionally unrealistic: it exists so the
// engine can run without any model backend.
type RandomStrategy struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomStrategy creates a random strategy. A zero seed uses the clock.
func NewRandomStrategy(seed int64) *RandomStrategy {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandomStrategy{rng: rand.New(rand.NewSource(seed))}
}

// Decide draws 3–5 symbols without replacement and assigns each a random
// BUY/SELL signal, confidence in [0,100) and base position size in [0,0.10).
// Conservative teams drop anything below 70 confidence; aggressive teams
// size up by 1.5x.
func (s *RandomStrategy) Decide(_ context.Context, team TeamInfo, watchlist []string, _ int) ([]Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 3 + s.rng.Intn(3)
	if count > len(watchlist) {
		count = len(watchlist)
	}

	picks := make([]string, len(watchlist))
	copy(picks, watchlist)
	s.rng.Shuffle(len(picks), func(i, j int) {
		picks[i], picks[j] = picks[j], picks[i]
	})

	decisions := make([]Decision, 0, count)
	for _, symbol := range picks[:count] {
		d := Decision{
			Symbol:       symbol,
			Confidence:   s.rng.Float64() * 100,
			PositionSize: s.rng.Float64() * 0.10,
		}
		if s.rng.Float64() > 0.5 {
			d.Signal = SignalBuy
		} else {
			d.Signal = SignalSell
		}

		switch team.RiskProfile {
		case RiskConservative:
			if d.Confidence < 70 {
				d.Signal = SignalHold
			}
		case RiskAggressive:
			d.PositionSize *= 1.5
		}

		if d.Signal == SignalHold {
			continue
		}
		decisions = append(decisions, d)
	}

	return decisions, nil
}

// Apply draws one simulated market move in [-5%, +5%] per decision. A BUY
// contributes move*size to the day's return, a SELL the negated value.
// Every decision yields a trade record regardless of sign.
func (s *RandomStrategy) Apply(_ TeamInfo, decisions []Decision, day int) (float64, []Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dayReturn float64
	trades := make([]Trade, 0, len(decisions))

	for _, d := range decisions {
		move := (s.rng.Float64() - 0.5) * 10
		contribution := move * d.PositionSize

		switch d.Signal {
		case SignalBuy:
			dayReturn += contribution
		case SignalSell:
			dayReturn -= contribution
		}

		trades = append(trades, Trade{
			Day:        day,
			Symbol:     d.Symbol,
			Signal:     d.Signal,
			Return:     contribution,
			Confidence: d.Confidence,
		})
	}

	return dayReturn, trades, nil
}
