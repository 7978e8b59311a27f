package tournament

import (
	"fmt"
	"sort"
	"time"

	"TradeArena/internal/strategy"
)

// Status is the lifecycle state of a tournament.
// Transitions: running→paused→running (repeatable), running→completed (terminal).
type Status string

const (
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

const (
	// MaxDays caps tournament duration, including extensions.
	MaxDays = 90

	// DefaultDays applies when the config omits a duration.
	DefaultDays = 30

	// DefaultSpeedMs is the display-pacing hint when the config omits one.
	DefaultSpeedMs = 2000

	// StartingCapital is each team's initial portfolio value in dollars.
	StartingCapital = 100_000.0
)

// Config is the caller-supplied tournament setup.
type Config struct {
	Days              int      `json:"days"`
	SimulationSpeedMs int      `json:"simulation_speed_ms"`
	RealTime          bool     `json:"real_time"`
	Teams             []int    `json:"teams"`
	Watchlist         []string `json:"watchlist"`
}

// Team is one simulated trading participant.
type Team struct {
	ID             int                  `json:"team_id"`
	Name           string               `json:"name"`
	Model          string               `json:"model"`
	RiskProfile    strategy.RiskProfile `json:"risk_profile"`
	PortfolioValue float64              `json:"portfolio_value"`
	TotalReturn    float64              `json:"total_return"`
	Returns        []float64            `json:"returns"`
	Trades         []strategy.Trade     `json:"trades"`
	Active         bool                 `json:"active"`

	// Rank is populated on leaderboard copies only.
	Rank int `json:"rank,omitempty"`
}

// Info returns the strategy-facing view of the team.
func (t *Team) Info() strategy.TeamInfo {
	return strategy.TeamInfo{Name: t.Name, Model: t.Model, RiskProfile: t.RiskProfile}
}

// LogEntry is one append-only tournament log line.
type LogEntry struct {
	Time     time.Time `json:"time"`
	Message  string    `json:"message"`
	Severity string    `json:"severity"`
}

// Tournament is the full serializable state of one tournament run.
type Tournament struct {
	ID          string     `json:"id"`
	Config      Config     `json:"config"`
	Status      Status     `json:"status"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     time.Time  `json:"end_time,omitempty"`
	CurrentDay  int        `json:"current_day"`
	Teams       []*Team    `json:"teams"`
	Logs        []LogEntry `json:"logs"`
	Leaderboard []Team     `json:"leaderboard"`
}

// Clone returns a deep copy safe to hand out while the loop keeps mutating.
func (t *Tournament) Clone() *Tournament {
	out := *t

	out.Config.Teams = append([]int(nil), t.Config.Teams...)
	out.Config.Watchlist = append([]string(nil), t.Config.Watchlist...)
	out.Logs = append([]LogEntry(nil), t.Logs...)
	out.Leaderboard = append([]Team(nil), t.Leaderboard...)

	out.Teams = make([]*Team, len(t.Teams))
	for i, team := range t.Teams {
		cp := *team
		cp.Returns = append([]float64(nil), team.Returns...)
		cp.Trades = append([]strategy.Trade(nil), team.Trades...)
		out.Teams[i] = &cp
	}
	for i := range out.Leaderboard {
		out.Leaderboard[i].Returns = append([]float64(nil), t.Leaderboard[i].Returns...)
		out.Leaderboard[i].Trades = append([]strategy.Trade(nil), t.Leaderboard[i].Trades...)
	}

	return &out
}

// Checkpoint is a durable tournament snapshot for pause/resume across restarts.
type Checkpoint struct {
	Tournament    Tournament `json:"tournament"`
	SavedAt       time.Time  `json:"saved_at"`
	CheckpointDay int        `json:"checkpoint_day"`
}

// CheckpointStore persists snapshots of active and paused tournaments,
// one per tournament id. Pure I/O: it owns no in-memory state.
type CheckpointStore interface {
	Save(cp Checkpoint) error
	LoadAll() ([]Checkpoint, error)
	Delete(id string) error
}

// ResultsStore archives completed tournaments, independent of checkpoints.
type ResultsStore interface {
	Save(t Tournament) error
	LoadAll() ([]Tournament, error)
	Latest() (*Tournament, error)
}

// Clock answers market-hours questions. Satisfied by market.Clock.
type Clock interface {
	IsOpen(now time.Time) bool
	NextOpen(now time.Time) time.Time
}

// teamPreset is a known team roster entry.
type teamPreset struct {
	name        string
	model       string
	riskProfile strategy.RiskProfile
}

var teamPresets = map[int]teamPreset{
	1: {name: "Team Alpha", model: "Claude-3-Sonnet", riskProfile: strategy.RiskAggressive},
	2: {name: "Team Beta", model: "GPT-4-Turbo", riskProfile: strategy.RiskBalanced},
	3: {name: "Team Gamma", model: "DeepSeek-V3", riskProfile: strategy.RiskConservative},
	4: {name: "Team Delta", model: "Gemini-Pro", riskProfile: strategy.RiskDynamic},
}

// NewTeam builds a fresh team from the preset roster.
func NewTeam(id int) (*Team, error) {
	preset, ok := teamPresets[id]
	if !ok {
		return nil, fmt.Errorf("unknown team id %d", id)
	}
	return &Team{
		ID:             id,
		Name:           preset.name,
		Model:          preset.model,
		RiskProfile:    preset.riskProfile,
		PortfolioValue: StartingCapital,
		Returns:        []float64{},
		Trades:         []strategy.Trade{},
		Active:         true,
	}, nil
}

// computeLeaderboard returns teams ranked by cumulative return, descending.
// The sort is stable so equal returns keep configured team order, and ranks
// are always exactly 1..N.
func computeLeaderboard(teams []*Team) []Team {
	board := make([]Team, len(teams))
	for i, team := range teams {
		board[i] = *team
	}

	sort.SliceStable(board, func(i, j int) bool {
		return board[i].TotalReturn > board[j].TotalReturn
	})

	for i := range board {
		board[i].Rank = i + 1
	}
	return board
}
