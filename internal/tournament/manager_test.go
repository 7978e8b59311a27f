package tournament_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"TradeArena/internal/events"
	"TradeArena/internal/persistence"
	"TradeArena/internal/testutil"
	"TradeArena/internal/tournament"
)

// fakeNow is an advanceable wall clock for completion tests.
type fakeNow struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeNow) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeNow) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

type env struct {
	mgr         *tournament.Manager
	checkpoints *persistence.FileCheckpointStore
	results     *persistence.FileResultsStore
	clock       *testutil.StubClock
	strat       *testutil.StubStrategy
	ch          *events.Channel
	now         *fakeNow
}

func newEnv(t *testing.T, marketOpen bool) *env {
	t.Helper()

	logger := testutil.DiscardLogger()
	checkpoints, err := persistence.NewFileCheckpointStore(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("checkpoint store: %v", err)
	}
	results, err := persistence.NewFileResultsStore(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("results store: %v", err)
	}

	e := &env{
		checkpoints: checkpoints,
		results:     results,
		clock:       testutil.NewStubClock(marketOpen),
		strat:       &testutil.StubStrategy{DayReturn: 1.5},
		ch:          events.NewChannel(64, nil),
		now:         &fakeNow{t: time.Now()},
	}

	e.mgr = tournament.NewManager(tournament.Deps{
		Checkpoints:   checkpoints,
		Results:       results,
		Events:        e.ch,
		Strategy:      e.strat,
		Clock:         e.clock,
		Logger:        logger,
		CycleInterval: 2 * time.Millisecond,
		PausePoll:     2 * time.Millisecond,
		ClosedPollMax: 2 * time.Millisecond,
		Now:           e.now.Now,
	})

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		e.mgr.Shutdown(ctx)
	})
	return e
}

func defaultConfig() tournament.Config {
	return tournament.Config{
		Teams:     []int{1, 2},
		Watchlist: []string{"AAPL", "MSFT", "NVDA"},
	}
}

func (e *env) get(t *testing.T, id string) *tournament.Tournament {
	t.Helper()
	state, err := e.mgr.Get(id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return state
}

// ===========================================================================
// Start validation
// ===========================================================================

func TestStartValidation(t *testing.T) {
	e := newEnv(t, true)

	if _, err := e.mgr.Start(tournament.Config{Watchlist: []string{"AAPL"}}); err == nil {
		t.Error("start with no teams should fail")
	}
	if _, err := e.mgr.Start(tournament.Config{Teams: []int{1}}); err == nil {
		t.Error("start with empty watchlist should fail")
	}
	if _, err := e.mgr.Start(tournament.Config{Teams: []int{99}, Watchlist: []string{"AAPL"}}); err == nil {
		t.Error("start with unknown team id should fail")
	}
}

func TestStartDefaultsAndClamping(t *testing.T) {
	e := newEnv(t, false)

	res, err := e.mgr.Start(defaultConfig())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if res.Days != tournament.DefaultDays {
		t.Errorf("default days = %d, want %d", res.Days, tournament.DefaultDays)
	}
	if res.Status != tournament.StatusRunning {
		t.Errorf("status = %q, want running", res.Status)
	}

	cfg := defaultConfig()
	cfg.Days = 500
	res, err = e.mgr.Start(cfg)
	if err != nil {
		t.Fatalf("start clamped: %v", err)
	}
	if res.Days != tournament.MaxDays {
		t.Errorf("clamped days = %d, want %d", res.Days, tournament.MaxDays)
	}

	state := e.get(t, res.ID)
	if state.Config.SimulationSpeedMs != tournament.DefaultSpeedMs {
		t.Errorf("default speed = %d, want %d", state.Config.SimulationSpeedMs, tournament.DefaultSpeedMs)
	}
	for _, team := range state.Teams {
		if team.PortfolioValue != tournament.StartingCapital {
			t.Errorf("%s starts with $%.2f, want $%.2f", team.Name, team.PortfolioValue, tournament.StartingCapital)
		}
		if !team.Active {
			t.Errorf("%s should start active", team.Name)
		}
	}
}

// ===========================================================================
// Trading cycles
// ===========================================================================

func TestCyclesAdvanceAndRankLeaderboard(t *testing.T) {
	e := newEnv(t, true)

	res, err := e.mgr.Start(defaultConfig())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	testutil.Eventually(t, 2*time.Second, func() bool {
		return e.get(t, res.ID).CurrentDay >= 3
	}, "tournament never reached day 3")

	state := e.get(t, res.ID)
	for _, team := range state.Teams {
		if len(team.Returns) == 0 {
			t.Errorf("%s recorded no returns", team.Name)
		}
		var total float64
		for _, r := range team.Returns {
			total += r
		}
		if diff := total - team.TotalReturn; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("%s total return %.6f != sum of returns %.6f", team.Name, team.TotalReturn, total)
		}
		wantValue := tournament.StartingCapital * (1 + team.TotalReturn/100)
		if diff := wantValue - team.PortfolioValue; diff > 1e-6 || diff < -1e-6 {
			t.Errorf("%s portfolio value %.2f, want %.2f", team.Name, team.PortfolioValue, wantValue)
		}
	}

	if len(state.Leaderboard) != len(state.Teams) {
		t.Fatalf("leaderboard has %d entries, want %d", len(state.Leaderboard), len(state.Teams))
	}
	for i, entry := range state.Leaderboard {
		if entry.Rank != i+1 {
			t.Errorf("leaderboard[%d].Rank = %d, want %d", i, entry.Rank, i+1)
		}
		if i > 0 && entry.TotalReturn > state.Leaderboard[i-1].TotalReturn {
			t.Errorf("leaderboard not sorted descending at %d", i)
		}
	}
}

func TestMarketClosedGatesTrading(t *testing.T) {
	e := newEnv(t, false)

	res, err := e.mgr.Start(defaultConfig())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if state := e.get(t, res.ID); state.CurrentDay != 0 {
		t.Fatalf("traded %d days while market closed, want 0", state.CurrentDay)
	}

	e.clock.SetOpen(true)
	testutil.Eventually(t, 2*time.Second, func() bool {
		return e.get(t, res.ID).CurrentDay >= 1
	}, "tournament never traded after market opened")
}

// ===========================================================================
// Pause / resume
// ===========================================================================

func TestPauseCheckpointsAndHaltsTrading(t *testing.T) {
	e := newEnv(t, true)

	res, err := e.mgr.Start(defaultConfig())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	testutil.Eventually(t, 2*time.Second, func() bool {
		return e.get(t, res.ID).CurrentDay >= 2
	}, "tournament never reached day 2")

	if err := e.mgr.Pause(res.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}

	paused := e.get(t, res.ID)
	if paused.Status != tournament.StatusPaused {
		t.Fatalf("status = %q, want paused", paused.Status)
	}

	cps, err := e.checkpoints.LoadAll()
	if err != nil {
		t.Fatalf("load checkpoints: %v", err)
	}
	if len(cps) != 1 {
		t.Fatalf("pause wrote %d checkpoints, want 1", len(cps))
	}
	cp := cps[0]
	if cp.Tournament.Status != tournament.StatusPaused {
		t.Errorf("checkpoint status = %q, want paused", cp.Tournament.Status)
	}
	if cp.CheckpointDay != paused.CurrentDay {
		t.Errorf("checkpoint day = %d, want %d", cp.CheckpointDay, paused.CurrentDay)
	}

	time.Sleep(30 * time.Millisecond)
	if state := e.get(t, res.ID); state.CurrentDay != paused.CurrentDay {
		t.Errorf("paused tournament advanced from day %d to %d", paused.CurrentDay, state.CurrentDay)
	}
}

func TestResumeContinuesFromPausedDay(t *testing.T) {
	e := newEnv(t, true)

	res, err := e.mgr.Start(defaultConfig())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	testutil.Eventually(t, 2*time.Second, func() bool {
		return e.get(t, res.ID).CurrentDay >= 1
	}, "tournament never started trading")

	if err := e.mgr.Pause(res.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}
	pausedDay := e.get(t, res.ID).CurrentDay
	pausedReturn := e.get(t, res.ID).Teams[0].TotalReturn

	if err := e.mgr.Resume(res.ID); err != nil {
		t.Fatalf("resume: %v", err)
	}

	testutil.Eventually(t, 2*time.Second, func() bool {
		return e.get(t, res.ID).CurrentDay > pausedDay
	}, "tournament never advanced after resume")

	state := e.get(t, res.ID)
	if state.Teams[0].TotalReturn <= pausedReturn {
		t.Errorf("total return did not grow after resume: %.2f -> %.2f", pausedReturn, state.Teams[0].TotalReturn)
	}
}

func TestResumeRequiresPaused(t *testing.T) {
	e := newEnv(t, false)

	res, err := e.mgr.Start(defaultConfig())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := e.mgr.Resume(res.ID); !errors.Is(err, tournament.ErrNotPaused) {
		t.Errorf("resume running = %v, want ErrNotPaused", err)
	}

	if err := e.mgr.Pause(res.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := e.mgr.Resume(res.ID); err != nil {
		t.Fatalf("resume: %v", err)
	}
	// The first resume flipped the state; a duplicate is rejected.
	if err := e.mgr.Resume(res.ID); !errors.Is(err, tournament.ErrNotPaused) {
		t.Errorf("duplicate resume = %v, want ErrNotPaused", err)
	}
}

// ===========================================================================
// Extend / speed
// ===========================================================================

func TestExtendRules(t *testing.T) {
	e := newEnv(t, false)

	res, err := e.mgr.Start(defaultConfig())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := e.mgr.Extend(res.ID, 30); err != nil {
		t.Fatalf("extend: %v", err)
	}
	if days := e.get(t, res.ID).Config.Days; days != 60 {
		t.Errorf("days after extend = %d, want 60", days)
	}

	if err := e.mgr.Extend(res.ID, 100); err == nil {
		t.Error("extend past cap should fail")
	}
	if days := e.get(t, res.ID).Config.Days; days != 60 {
		t.Errorf("rejected extend changed days to %d", days)
	}

	if err := e.mgr.Extend(res.ID, 0); err == nil {
		t.Error("extend by zero should fail")
	}

	if err := e.mgr.Pause(res.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := e.mgr.Extend(res.ID, 10); !errors.Is(err, tournament.ErrNotRunning) {
		t.Errorf("extend paused = %v, want ErrNotRunning", err)
	}
}

func TestSetSpeed(t *testing.T) {
	e := newEnv(t, false)

	res, err := e.mgr.Start(defaultConfig())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if err := e.mgr.SetSpeed(res.ID, -5); err == nil {
		t.Error("negative speed should fail")
	}
	if err := e.mgr.SetSpeed(res.ID, 500); err != nil {
		t.Fatalf("set speed: %v", err)
	}
	if got := e.get(t, res.ID).Config.SimulationSpeedMs; got != 500 {
		t.Errorf("speed = %d, want 500", got)
	}
}

// ===========================================================================
// Unknown ids
// ===========================================================================

func TestUnknownTournament(t *testing.T) {
	e := newEnv(t, false)

	if _, err := e.mgr.Get("tourney_nope"); !errors.Is(err, tournament.ErrNotFound) {
		t.Errorf("get = %v, want ErrNotFound", err)
	}
	if err := e.mgr.Pause("tourney_nope"); !errors.Is(err, tournament.ErrNotFound) {
		t.Errorf("pause = %v, want ErrNotFound", err)
	}
	if err := e.mgr.Resume("tourney_nope"); !errors.Is(err, tournament.ErrNotFound) {
		t.Errorf("resume = %v, want ErrNotFound", err)
	}
	if err := e.mgr.Extend("tourney_nope", 5); !errors.Is(err, tournament.ErrNotFound) {
		t.Errorf("extend = %v, want ErrNotFound", err)
	}
	if err := e.mgr.SetSpeed("tourney_nope", 100); !errors.Is(err, tournament.ErrNotFound) {
		t.Errorf("set speed = %v, want ErrNotFound", err)
	}
}

// ===========================================================================
// Team failure isolation
// ===========================================================================

func TestFailingTeamIsDeactivated(t *testing.T) {
	e := newEnv(t, true)
	e.strat.FailTeams = map[string]error{"Team Beta": errors.New("model unreachable")}

	res, err := e.mgr.Start(defaultConfig())
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	testutil.Eventually(t, 2*time.Second, func() bool {
		return e.get(t, res.ID).CurrentDay >= 2
	}, "tournament never reached day 2")

	state := e.get(t, res.ID)
	var alpha, beta *tournament.Team
	for _, team := range state.Teams {
		switch team.Name {
		case "Team Alpha":
			alpha = team
		case "Team Beta":
			beta = team
		}
	}

	if beta.Active {
		t.Error("failing team was not deactivated")
	}
	if len(beta.Returns) != 0 {
		t.Errorf("failing team recorded %d returns, want 0", len(beta.Returns))
	}
	if !alpha.Active || len(alpha.Returns) == 0 {
		t.Error("healthy team should keep trading after another team fails")
	}
	if state.Status != tournament.StatusRunning {
		t.Errorf("tournament status = %q, want running", state.Status)
	}
}

// ===========================================================================
// Completion
// ===========================================================================

func TestCompletionArchivesAndCleansUp(t *testing.T) {
	e := newEnv(t, true)

	sub := e.ch.Subscribe("")
	defer sub.Unsubscribe()

	cfg := defaultConfig()
	cfg.Days = 1
	res, err := e.mgr.Start(cfg)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	testutil.Eventually(t, 2*time.Second, func() bool {
		return e.get(t, res.ID).CurrentDay >= 1
	}, "tournament never traded")

	e.now.Advance(25 * time.Hour)

	testutil.Eventually(t, 2*time.Second, func() bool {
		return e.get(t, res.ID).Status == tournament.StatusCompleted
	}, "tournament never completed")

	state := e.get(t, res.ID)
	if state.EndTime.IsZero() {
		t.Error("completed tournament has no end time")
	}

	results, err := e.results.LoadAll()
	if err != nil {
		t.Fatalf("load results: %v", err)
	}
	if len(results) != 1 || results[0].ID != res.ID {
		t.Fatalf("results store holds %d entries, want the completed tournament", len(results))
	}

	cps, err := e.checkpoints.LoadAll()
	if err != nil {
		t.Fatalf("load checkpoints: %v", err)
	}
	if len(cps) != 0 {
		t.Errorf("completed tournament left %d checkpoints behind", len(cps))
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case evt := <-sub.C:
			if evt.Type == events.TypeTournamentComplete {
				if evt.TournamentID != res.ID {
					t.Errorf("complete event for %q, want %q", evt.TournamentID, res.ID)
				}
				return
			}
		case <-deadline:
			t.Fatal("no tournamentComplete event received")
		}
	}
}

// ===========================================================================
// Saved tournaments
// ===========================================================================

func TestListSavedShowsOnlyPaused(t *testing.T) {
	e := newEnv(t, false)

	first, err := e.mgr.Start(defaultConfig())
	if err != nil {
		t.Fatalf("start first: %v", err)
	}
	if _, err := e.mgr.Start(defaultConfig()); err != nil {
		t.Fatalf("start second: %v", err)
	}

	if err := e.mgr.Pause(first.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}

	saved := e.mgr.ListSaved()
	if len(saved) != 1 {
		t.Fatalf("list saved returned %d entries, want 1", len(saved))
	}
	if saved[0].ID != first.ID {
		t.Errorf("saved id = %q, want %q", saved[0].ID, first.ID)
	}
	if saved[0].Teams != 2 || saved[0].TotalDays != tournament.DefaultDays {
		t.Errorf("saved summary = %+v", saved[0])
	}
	if saved[0].SavedAt.IsZero() {
		t.Error("saved summary has no saved-at time")
	}
}

func TestLoadSavedRegistersPausedAndResumes(t *testing.T) {
	e := newEnv(t, true)

	cp := tournament.Checkpoint{
		Tournament: tournament.Tournament{
			ID: "tourney_restored",
			Config: tournament.Config{
				Days:              30,
				SimulationSpeedMs: 2000,
				Teams:             []int{1, 2},
				Watchlist:         []string{"AAPL", "MSFT"},
			},
			Status:     tournament.StatusRunning,
			StartTime:  e.now.Now(),
			CurrentDay: 12,
			Teams:      mustTeams(t, 1, 2),
		},
		SavedAt:       e.now.Now(),
		CheckpointDay: 12,
	}
	if err := e.checkpoints.Save(cp); err != nil {
		t.Fatalf("seed checkpoint: %v", err)
	}

	loaded, err := e.mgr.LoadSaved()
	if err != nil {
		t.Fatalf("load saved: %v", err)
	}
	if loaded != 1 {
		t.Fatalf("loaded %d tournaments, want 1", loaded)
	}

	state := e.get(t, "tourney_restored")
	if state.Status != tournament.StatusPaused {
		t.Fatalf("restored status = %q, want paused", state.Status)
	}
	if state.CurrentDay != 12 {
		t.Fatalf("restored day = %d, want 12", state.CurrentDay)
	}

	info, err := e.mgr.ResumeFromCheckpoint("tourney_restored")
	if err != nil {
		t.Fatalf("resume from checkpoint: %v", err)
	}
	if info.CurrentDay != 12 || info.TotalDays != 30 {
		t.Errorf("resume info = %+v, want day 12 of 30", info)
	}

	testutil.Eventually(t, 2*time.Second, func() bool {
		return e.get(t, "tourney_restored").CurrentDay > 12
	}, "restored tournament never advanced")
}

func mustTeams(t *testing.T, ids ...int) []*tournament.Team {
	t.Helper()
	teams := make([]*tournament.Team, 0, len(ids))
	for _, id := range ids {
		team, err := tournament.NewTeam(id)
		if err != nil {
			t.Fatalf("new team %d: %v", id, err)
		}
		teams = append(teams, team)
	}
	return teams
}

// ===========================================================================
// Shutdown
// ===========================================================================

func TestShutdownCheckpointsActiveTournaments(t *testing.T) {
	e := newEnv(t, true)

	res, err := e.mgr.Start(defaultConfig())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	testutil.Eventually(t, 2*time.Second, func() bool {
		return e.get(t, res.ID).CurrentDay >= 1
	}, "tournament never traded")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := e.mgr.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	cps, err := e.checkpoints.LoadAll()
	if err != nil {
		t.Fatalf("load checkpoints: %v", err)
	}
	if len(cps) != 1 || cps[0].Tournament.ID != res.ID {
		t.Fatalf("shutdown wrote %d checkpoints, want 1 for %s", len(cps), res.ID)
	}
	if cps[0].Tournament.CurrentDay < 1 {
		t.Errorf("checkpointed day = %d, want >= 1", cps[0].Tournament.CurrentDay)
	}
}

func TestLatestResultPrefersNewestActive(t *testing.T) {
	e := newEnv(t, false)

	if _, err := e.mgr.Start(defaultConfig()); err != nil {
		t.Fatalf("start first: %v", err)
	}
	e.now.Advance(time.Minute)
	second, err := e.mgr.Start(defaultConfig())
	if err != nil {
		t.Fatalf("start second: %v", err)
	}

	latest, err := e.mgr.LatestResult()
	if err != nil {
		t.Fatalf("latest result: %v", err)
	}
	if latest == nil || latest.ID != second.ID {
		t.Fatalf("latest = %+v, want %s", latest, second.ID)
	}
}
