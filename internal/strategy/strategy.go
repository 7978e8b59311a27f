package strategy

import "context"

// Signal is a trading action on a single symbol.
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
	SignalHold Signal = "HOLD"
)

// RiskProfile shapes decision generation for a team.
type RiskProfile string

const (
	RiskAggressive   RiskProfile = "aggressive"
	RiskBalanced     RiskProfile = "balanced"
	RiskConservative RiskProfile = "conservative"
	RiskDynamic      RiskProfile = "dynamic"
)

// Decision is one actionable signal produced for a trading cycle.
// HOLD decisions are filtered out before execution and never appear
// in a Decide result.
type Decision struct {
	Symbol       string  `json:"symbol"`
	Signal       Signal  `json:"signal"`
	Confidence   float64 `json:"confidence"`    // 0–100
	PositionSize float64 `json:"position_size"` // fraction of portfolio
}

// Trade is the executed record of a decision, attached to the owning team.
type Trade struct {
	Day        int     `json:"day"`
	Symbol     string  `json:"symbol"`
	Signal     Signal  `json:"signal"`
	Return     float64 `json:"return"` // percent contribution before signal direction
	Confidence float64 `json:"confidence"`
}

// TeamInfo is the read-only view of a team a strategy decides for.
type TeamInfo struct {
	Name        string
	Model       string
	RiskProfile RiskProfile
}

// DecisionStrategy generates and executes per-team trading decisions.
// Implementations must be safe for concurrent use: every tournament loop
// shares one strategy instance.
type DecisionStrategy interface {
	// Decide produces the decisions for one trading day. The returned
	// slice contains no HOLD signals.
	Decide(ctx context.Context, team TeamInfo, watchlist []string, day int) ([]Decision, error)

	// Apply executes the decisions against a simulated market move and
	// returns the day's percent return plus one trade record per decision.
	Apply(team TeamInfo, decisions []Decision, day int) (float64, []Trade, error)
}
