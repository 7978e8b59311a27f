package tournament

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"TradeArena/internal/events"
	"TradeArena/internal/observability"
	"TradeArena/internal/strategy"
)

var (
	ErrNotFound   = errors.New("tournament not found")
	ErrNotRunning = errors.New("tournament is not running")
	ErrNotPaused  = errors.New("tournament is not paused")
)

// Deps wires the manager's collaborators. Checkpoints, Results, Events,
// Strategy and Clock are required; Metrics may be nil. The tuning fields
// default to production cadence when zero; tests shrink them.
type Deps struct {
	Checkpoints CheckpointStore
	Results     ResultsStore
	Events      *events.Channel
	Strategy    strategy.DecisionStrategy
	Clock       Clock
	Metrics     *observability.Metrics
	Logger      zerolog.Logger

	// CycleInterval is the wait between trading cycles while the market
	// is open (default 1h, ~4 cycles per session).
	CycleInterval time.Duration

	// PausePoll is the re-check interval while paused (default 60s).
	PausePoll time.Duration

	// ClosedPollMax caps a single market-closed wait (default 1h) so
	// control operations are observed promptly.
	ClosedPollMax time.Duration

	// TeamStepTimeout bounds one team's decide+apply step (default 30s).
	// Expiry deactivates the team like any other failure.
	TeamStepTimeout time.Duration

	// Now is the wall clock, injectable for tests (default time.Now).
	Now func() time.Time
}

// handle pairs one tournament's state with its control machinery. All
// access to state goes through mu; wake interrupts the loop's waits.
type handle struct {
	mu          sync.Mutex
	state       *Tournament
	savedAt     time.Time
	wake        chan struct{}
	loopRunning bool
}

// notify wakes the simulation loop without blocking.
func (h *handle) notify() {
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// Manager owns the id→tournament registry and every simulation loop.
type Manager struct {
	deps Deps

	mu          sync.RWMutex
	tournaments map[string]*handle

	rootCtx    context.Context
	rootCancel context.CancelFunc
	wg         sync.WaitGroup
}

// NewManager creates a manager. Loops launched by Start/Resume run until
// Shutdown.
func NewManager(deps Deps) *Manager {
	if deps.CycleInterval <= 0 {
		deps.CycleInterval = time.Hour
	}
	if deps.PausePoll <= 0 {
		deps.PausePoll = 60 * time.Second
	}
	if deps.ClosedPollMax <= 0 {
		deps.ClosedPollMax = time.Hour
	}
	if deps.TeamStepTimeout <= 0 {
		deps.TeamStepTimeout = 30 * time.Second
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		deps:        deps,
		tournaments: make(map[string]*handle),
		rootCtx:     ctx,
		rootCancel:  cancel,
	}
}

// StartResult is the synchronous response to Start.
type StartResult struct {
	ID      string `json:"id"`
	Status  Status `json:"status"`
	Days    int    `json:"days"`
	MaxDays int    `json:"max_days"`
}

// Start validates the config, registers a new running tournament and
// launches its simulation loop. It returns immediately; the loop advances
// in the background.
func (m *Manager) Start(cfg Config) (StartResult, error) {
	if len(cfg.Teams) == 0 {
		return StartResult{}, errors.New("config requires at least one team")
	}
	if len(cfg.Watchlist) == 0 {
		return StartResult{}, errors.New("config requires a non-empty watchlist")
	}

	if cfg.Days <= 0 {
		cfg.Days = DefaultDays
	}
	if cfg.Days > MaxDays {
		cfg.Days = MaxDays
	}
	if cfg.SimulationSpeedMs <= 0 {
		cfg.SimulationSpeedMs = DefaultSpeedMs
	}

	teams := make([]*Team, 0, len(cfg.Teams))
	for _, id := range cfg.Teams {
		team, err := NewTeam(id)
		if err != nil {
			return StartResult{}, err
		}
		teams = append(teams, team)
	}

	now := m.deps.Now()
	id := fmt.Sprintf("tourney_%d_%s", now.UnixMilli(), uuid.NewString()[:8])

	h := &handle{
		state: &Tournament{
			ID:          id,
			Config:      cfg,
			Status:      StatusRunning,
			StartTime:   now,
			Teams:       teams,
			Logs:        []LogEntry{},
			Leaderboard: []Team{},
		},
		wake: make(chan struct{}, 1),
	}

	m.mu.Lock()
	m.tournaments[id] = h
	m.mu.Unlock()

	m.deps.Logger.Info().
		Str("tournament_id", id).
		Int("teams", len(teams)).
		Int("days", cfg.Days).
		Msg("tournament started")

	if m.deps.Metrics != nil {
		m.deps.Metrics.TournamentsStarted.Inc()
	}
	m.refreshGauges()

	m.launchLoop(h)

	return StartResult{ID: id, Status: StatusRunning, Days: cfg.Days, MaxDays: MaxDays}, nil
}

// Get returns a deep copy of the tournament's current state.
func (m *Manager) Get(id string) (*Tournament, error) {
	h, err := m.handleFor(id)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state.Clone(), nil
}

// Extend lengthens a running tournament, never beyond MaxDays. The new
// duration takes effect on the loop's next wakeup.
func (m *Manager) Extend(id string, additionalDays int) error {
	h, err := m.handleFor(id)
	if err != nil {
		return err
	}
	if additionalDays <= 0 {
		return fmt.Errorf("additional days must be positive, got %d", additionalDays)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state.Status != StatusRunning {
		return ErrNotRunning
	}

	newDays := h.state.Config.Days + additionalDays
	if newDays > MaxDays {
		return fmt.Errorf("cannot extend beyond %d days (current %d, requested +%d)",
			MaxDays, h.state.Config.Days, additionalDays)
	}

	h.state.Config.Days = newDays
	m.logLocked(h, "info", fmt.Sprintf("Tournament extended by %d days, new duration %d days", additionalDays, newDays))
	h.notify()
	return nil
}

// SetSpeed adjusts the display-pacing hint. The real-time loop cadence is
// not affected.
func (m *Manager) SetSpeed(id string, speedMs int) error {
	h, err := m.handleFor(id)
	if err != nil {
		return err
	}
	if speedMs <= 0 {
		return fmt.Errorf("speed must be positive, got %dms", speedMs)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	old := h.state.Config.SimulationSpeedMs
	h.state.Config.SimulationSpeedMs = speedMs
	m.logLocked(h, "info", fmt.Sprintf("Simulation speed changed from %dms to %dms per day", old, speedMs))
	return nil
}

// Pause suspends the loop and forces an immediate checkpoint.
func (m *Manager) Pause(id string) error {
	h, err := m.handleFor(id)
	if err != nil {
		return err
	}

	h.mu.Lock()
	if h.state.Status == StatusCompleted {
		h.mu.Unlock()
		return ErrNotRunning
	}

	h.state.Status = StatusPaused
	m.logLocked(h, "info", "Tournament paused")
	m.checkpointLocked(h)
	h.notify()
	h.mu.Unlock()

	m.refreshGauges()
	return nil
}

// Resume restarts a paused tournament from its current day. The loop is
// relaunched only if none is running, so concurrent resumes cannot spawn
// duplicates.
func (m *Manager) Resume(id string) error {
	h, err := m.handleFor(id)
	if err != nil {
		return err
	}

	h.mu.Lock()
	if h.state.Status != StatusPaused {
		h.mu.Unlock()
		return ErrNotPaused
	}

	h.state.Status = StatusRunning
	m.logLocked(h, "info", fmt.Sprintf("Resuming tournament from day %d", h.state.CurrentDay))
	h.notify()
	h.mu.Unlock()

	if m.deps.Metrics != nil {
		m.deps.Metrics.TournamentsResumed.Inc()
	}
	m.refreshGauges()
	m.launchLoop(h)
	return nil
}

// ResumeResult reports where a checkpoint resume picked up.
type ResumeResult struct {
	CurrentDay int `json:"current_day"`
	TotalDays  int `json:"total_days"`
}

// ResumeFromCheckpoint resumes a tournament registered from a saved
// checkpoint, reporting the day it continues from.
func (m *Manager) ResumeFromCheckpoint(id string) (ResumeResult, error) {
	h, err := m.handleFor(id)
	if err != nil {
		return ResumeResult{}, err
	}

	h.mu.Lock()
	day := h.state.CurrentDay
	total := h.state.Config.Days
	h.mu.Unlock()

	if err := m.Resume(id); err != nil {
		return ResumeResult{}, err
	}
	return ResumeResult{CurrentDay: day, TotalDays: total}, nil
}

// SavedSummary describes one paused tournament.
type SavedSummary struct {
	ID          string    `json:"id"`
	CurrentDay  int       `json:"current_day"`
	TotalDays   int       `json:"total_days"`
	Teams       int       `json:"teams"`
	SavedAt     time.Time `json:"saved_at"`
	Leaderboard []Team    `json:"leaderboard"`
}

// ListSaved returns summaries of every paused tournament.
func (m *Manager) ListSaved() []SavedSummary {
	m.mu.RLock()
	handles := make([]*handle, 0, len(m.tournaments))
	for _, h := range m.tournaments {
		handles = append(handles, h)
	}
	m.mu.RUnlock()

	saved := make([]SavedSummary, 0)
	for _, h := range handles {
		h.mu.Lock()
		if h.state.Status == StatusPaused {
			saved = append(saved, SavedSummary{
				ID:          h.state.ID,
				CurrentDay:  h.state.CurrentDay,
				TotalDays:   h.state.Config.Days,
				Teams:       len(h.state.Teams),
				SavedAt:     h.savedAt,
				Leaderboard: append([]Team(nil), h.state.Leaderboard...),
			})
		}
		h.mu.Unlock()
	}

	sort.Slice(saved, func(i, j int) bool { return saved[i].ID < saved[j].ID })
	return saved
}

// AllResults returns persisted results, falling back to snapshots of the
// in-memory tournaments when nothing has been persisted yet.
func (m *Manager) AllResults() ([]Tournament, error) {
	results, err := m.deps.Results.LoadAll()
	if err != nil {
		return nil, err
	}
	if len(results) > 0 {
		return results, nil
	}

	m.mu.RLock()
	handles := make([]*handle, 0, len(m.tournaments))
	for _, h := range m.tournaments {
		handles = append(handles, h)
	}
	m.mu.RUnlock()

	inMemory := make([]Tournament, 0, len(handles))
	for _, h := range handles {
		h.mu.Lock()
		inMemory = append(inMemory, *h.state.Clone())
		h.mu.Unlock()
	}
	sort.Slice(inMemory, func(i, j int) bool {
		return inMemory[i].StartTime.Before(inMemory[j].StartTime)
	})
	return inMemory, nil
}

// LatestResult prefers the most recently started active tournament, then
// the most recent persisted result.
func (m *Manager) LatestResult() (*Tournament, error) {
	m.mu.RLock()
	handles := make([]*handle, 0, len(m.tournaments))
	for _, h := range m.tournaments {
		handles = append(handles, h)
	}
	m.mu.RUnlock()

	var latest *handle
	var latestStart time.Time
	for _, h := range handles {
		h.mu.Lock()
		start := h.state.StartTime
		h.mu.Unlock()
		if latest == nil || start.After(latestStart) {
			latest = h
			latestStart = start
		}
	}

	if latest != nil {
		latest.mu.Lock()
		defer latest.mu.Unlock()
		return latest.state.Clone(), nil
	}

	return m.deps.Results.Latest()
}

// LoadSaved registers every checkpointed tournament that was running or
// paused, forced to paused. Nothing auto-resumes; an explicit resume call
// relaunches the loop.
func (m *Manager) LoadSaved() (int, error) {
	checkpoints, err := m.deps.Checkpoints.LoadAll()
	if err != nil {
		return 0, fmt.Errorf("load checkpoints: %w", err)
	}

	loaded := 0
	for _, cp := range checkpoints {
		state := cp.Tournament
		if state.Status != StatusRunning && state.Status != StatusPaused {
			continue
		}
		state.Status = StatusPaused

		h := &handle{
			state:   &state,
			savedAt: cp.SavedAt,
			wake:    make(chan struct{}, 1),
		}

		m.mu.Lock()
		m.tournaments[state.ID] = h
		m.mu.Unlock()

		m.deps.Logger.Info().
			Str("tournament_id", state.ID).
			Int("current_day", state.CurrentDay).
			Int("days", state.Config.Days).
			Msg("loaded saved tournament")
		loaded++
	}

	m.refreshGauges()
	return loaded, nil
}

// Shutdown stops every loop and checkpoints all non-completed tournaments.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.rootCancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.deps.Logger.Warn().Msg("shutdown timed out waiting for simulation loops")
	}

	m.mu.RLock()
	handles := make([]*handle, 0, len(m.tournaments))
	for _, h := range m.tournaments {
		handles = append(handles, h)
	}
	m.mu.RUnlock()

	for _, h := range handles {
		h.mu.Lock()
		if h.state.Status != StatusCompleted {
			m.checkpointLocked(h)
		}
		h.mu.Unlock()
	}

	m.deps.Logger.Info().Int("tournaments", len(handles)).Msg("manager shut down")
	return nil
}

func (m *Manager) handleFor(id string) (*handle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h, ok := m.tournaments[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return h, nil
}

// LogEvent is the payload of a log event.
type LogEvent struct {
	ID       string `json:"id"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// LeaderboardEvent is the payload of a leaderboardUpdate event.
type LeaderboardEvent struct {
	ID          string `json:"id"`
	Leaderboard []Team `json:"leaderboard"`
}

// CompleteEvent is the payload of a tournamentComplete event.
type CompleteEvent struct {
	ID          string      `json:"id"`
	Leaderboard []Team      `json:"leaderboard"`
	Results     *Tournament `json:"results"`
}

// logLocked appends to the tournament log and publishes a log event.
// Callers must hold h.mu.
func (m *Manager) logLocked(h *handle, severity, message string) {
	h.state.Logs = append(h.state.Logs, LogEntry{
		Time:     m.deps.Now(),
		Message:  message,
		Severity: severity,
	})

	evt := m.deps.Logger.Info()
	if severity == "error" {
		evt = m.deps.Logger.Error()
	}
	evt.Str("tournament_id", h.state.ID).Msg(message)

	m.deps.Events.Publish(events.Event{
		Type:         events.TypeLog,
		TournamentID: h.state.ID,
		Payload:      LogEvent{ID: h.state.ID, Message: message, Severity: severity},
	})
}

// checkpointLocked snapshots the tournament to the checkpoint store.
// Failures are logged and non-fatal. Callers must hold h.mu.
func (m *Manager) checkpointLocked(h *handle) {
	start := time.Now()
	now := m.deps.Now()

	cp := Checkpoint{
		Tournament:    *h.state,
		SavedAt:       now,
		CheckpointDay: h.state.CurrentDay,
	}

	if err := m.deps.Checkpoints.Save(cp); err != nil {
		m.deps.Logger.Warn().Err(err).
			Str("tournament_id", h.state.ID).
			Msg("checkpoint save failed")
		if m.deps.Metrics != nil {
			m.deps.Metrics.CheckpointErrors.WithLabelValues("save").Inc()
		}
		return
	}

	h.savedAt = now
	if m.deps.Metrics != nil {
		m.deps.Metrics.CheckpointsSaved.Inc()
		m.deps.Metrics.CheckpointDuration.Observe(time.Since(start).Seconds())
	}
}

// refreshGauges recounts tournament statuses for the gauges.
func (m *Manager) refreshGauges() {
	if m.deps.Metrics == nil {
		return
	}

	m.mu.RLock()
	handles := make([]*handle, 0, len(m.tournaments))
	for _, h := range m.tournaments {
		handles = append(handles, h)
	}
	m.mu.RUnlock()

	var running, paused int
	for _, h := range handles {
		h.mu.Lock()
		switch h.state.Status {
		case StatusRunning:
			running++
		case StatusPaused:
			paused++
		}
		h.mu.Unlock()
	}

	m.deps.Metrics.ActiveTournaments.Set(float64(running))
	m.deps.Metrics.PausedTournaments.Set(float64(paused))
}
