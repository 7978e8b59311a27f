package tournament

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"TradeArena/internal/events"
	"TradeArena/internal/strategy"
)

// checkpointEvery is the trading-day cadence of periodic checkpoints.
const checkpointEvery = 5

// launchLoop starts the simulation goroutine for h unless one is already
// running. The loopRunning flag makes concurrent resumes safe.
func (m *Manager) launchLoop(h *handle) {
	h.mu.Lock()
	if h.loopRunning {
		h.mu.Unlock()
		return
	}
	h.loopRunning = true
	h.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.runLoop(m.rootCtx, h)
	}()
}

// runLoop drives one tournament until its end date, pausing and waking as
// control operations dictate. Exactly one runLoop runs per tournament.
func (m *Manager) runLoop(ctx context.Context, h *handle) {
	defer func() {
		h.mu.Lock()
		h.loopRunning = false
		h.mu.Unlock()
	}()

	h.mu.Lock()
	days := h.state.Config.Days
	start := h.state.StartTime
	m.logLocked(h, "info", fmt.Sprintf("Starting %d-day real-time tournament", days))
	m.logLocked(h, "info", fmt.Sprintf("Start: %s, projected end: %s",
		start.Format("2006-01-02"), start.AddDate(0, 0, days).Format("2006-01-02")))
	m.logLocked(h, "info", fmt.Sprintf("Universe: %s", strings.Join(h.state.Config.Watchlist, ", ")))
	m.logLocked(h, "info", "Trading cycles run during US market hours (9:30-16:00 ET, weekdays)")
	h.mu.Unlock()

	for {
		if ctx.Err() != nil {
			return
		}

		now := m.deps.Now()

		h.mu.Lock()
		status := h.state.Status
		endTime := h.state.StartTime.AddDate(0, 0, h.state.Config.Days)
		h.mu.Unlock()

		if !now.Before(endTime) {
			m.complete(h)
			return
		}

		switch {
		case status == StatusPaused:
			if !m.wait(ctx, h, m.deps.PausePoll) {
				return
			}

		case m.deps.Clock.IsOpen(now):
			m.runCycle(ctx, h)
			if !m.wait(ctx, h, m.deps.CycleInterval) {
				return
			}

		default:
			next := m.deps.Clock.NextOpen(now)
			delay := next.Sub(now)
			if delay > m.deps.ClosedPollMax {
				delay = m.deps.ClosedPollMax
			}
			h.mu.Lock()
			m.logLocked(h, "info", fmt.Sprintf("Market closed. Next open: %s",
				next.Format("Mon Jan 2 15:04 MST")))
			h.mu.Unlock()
			if !m.wait(ctx, h, delay) {
				return
			}
		}
	}
}

// wait blocks for d, a wake signal, or cancellation. It returns false only
// when the context is done and the loop must exit.
func (m *Manager) wait(ctx context.Context, h *handle, d time.Duration) bool {
	if d <= 0 {
		d = time.Millisecond
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-h.wake:
		return true
	case <-timer.C:
		return true
	}
}

// runCycle advances the tournament one trading day: every active team
// decides and applies trades, the leaderboard is recomputed and published,
// and every fifth day is checkpointed.
func (m *Manager) runCycle(ctx context.Context, h *handle) {
	cycleStart := time.Now()

	h.mu.Lock()
	h.state.CurrentDay++
	day := h.state.CurrentDay
	id := h.state.ID
	watchlist := append([]string(nil), h.state.Config.Watchlist...)
	teams := h.state.Teams
	m.logLocked(h, "info", fmt.Sprintf("=== Trading Day %d ===", day))
	h.mu.Unlock()

	for _, team := range teams {
		if ctx.Err() != nil {
			return
		}

		h.mu.Lock()
		active := team.Active
		info := team.Info()
		h.mu.Unlock()
		if !active {
			continue
		}

		stepCtx, cancel := context.WithTimeout(ctx, m.deps.TeamStepTimeout)
		dayReturn, trades, err := m.teamStep(stepCtx, info, watchlist, day)
		cancel()

		h.mu.Lock()
		if err != nil {
			team.Active = false
			m.logLocked(h, "error", fmt.Sprintf("%s failed and was deactivated: %v", info.Name, err))
			if m.deps.Metrics != nil {
				reason := "strategy_error"
				if errors.Is(err, context.DeadlineExceeded) {
					reason = "timeout"
				}
				m.deps.Metrics.TeamFailures.WithLabelValues(reason).Inc()
			}
			h.mu.Unlock()
			continue
		}

		team.Returns = append(team.Returns, dayReturn)
		team.TotalReturn += dayReturn
		team.PortfolioValue = StartingCapital * (1 + team.TotalReturn/100)
		team.Trades = append(team.Trades, trades...)

		m.logLocked(h, "info", fmt.Sprintf("%s: %+.2f%% today, %+.2f%% total ($%.2f)",
			info.Name, dayReturn, team.TotalReturn, team.PortfolioValue))

		if m.deps.Metrics != nil {
			m.deps.Metrics.TeamSteps.WithLabelValues(string(info.RiskProfile)).Inc()
			for _, tr := range trades {
				m.deps.Metrics.DecisionsApplied.WithLabelValues(string(tr.Signal)).Inc()
			}
		}
		h.mu.Unlock()
	}

	h.mu.Lock()
	h.state.Leaderboard = computeLeaderboard(h.state.Teams)
	board := append([]Team(nil), h.state.Leaderboard...)
	m.logLocked(h, "info", leaderboardLine(board))
	h.mu.Unlock()

	m.deps.Events.Publish(events.Event{
		Type:         events.TypeLeaderboardUpdate,
		TournamentID: id,
		Payload:      LeaderboardEvent{ID: id, Leaderboard: board},
	})

	if day%checkpointEvery == 0 {
		h.mu.Lock()
		m.checkpointLocked(h)
		h.mu.Unlock()
	}

	if m.deps.Metrics != nil {
		m.deps.Metrics.TradingCycles.WithLabelValues(id).Inc()
		m.deps.Metrics.CycleDuration.Observe(time.Since(cycleStart).Seconds())
	}
}

// teamStep runs one team's decide+apply under the step deadline.
func (m *Manager) teamStep(ctx context.Context, info strategy.TeamInfo, watchlist []string, day int) (float64, []strategy.Trade, error) {
	decisions, err := m.deps.Strategy.Decide(ctx, info, watchlist, day)
	if err != nil {
		return 0, nil, fmt.Errorf("decide: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}

	dayReturn, trades, err := m.deps.Strategy.Apply(info, decisions, day)
	if err != nil {
		return 0, nil, fmt.Errorf("apply: %w", err)
	}
	return dayReturn, trades, nil
}

// complete finalizes the tournament: archive the result, drop the
// checkpoint and broadcast the final standings.
func (m *Manager) complete(h *handle) {
	h.mu.Lock()
	h.state.Status = StatusCompleted
	h.state.EndTime = m.deps.Now()
	h.state.Leaderboard = computeLeaderboard(h.state.Teams)

	if len(h.state.Leaderboard) > 0 {
		winner := h.state.Leaderboard[0]
		m.logLocked(h, "info", fmt.Sprintf("Tournament complete. Winner: %s with %+.2f%%",
			winner.Name, winner.TotalReturn))
	} else {
		m.logLocked(h, "info", "Tournament complete")
	}

	id := h.state.ID
	snapshot := h.state.Clone()
	board := append([]Team(nil), h.state.Leaderboard...)
	h.mu.Unlock()

	if err := m.deps.Results.Save(*snapshot); err != nil {
		m.deps.Logger.Warn().Err(err).Str("tournament_id", id).Msg("result save failed")
		if m.deps.Metrics != nil {
			m.deps.Metrics.ResultErrors.WithLabelValues("save").Inc()
		}
	} else if m.deps.Metrics != nil {
		m.deps.Metrics.ResultsSaved.Inc()
	}

	if err := m.deps.Checkpoints.Delete(id); err != nil {
		m.deps.Logger.Warn().Err(err).Str("tournament_id", id).Msg("checkpoint delete failed")
		if m.deps.Metrics != nil {
			m.deps.Metrics.CheckpointErrors.WithLabelValues("delete").Inc()
		}
	}

	m.deps.Events.Publish(events.Event{
		Type:         events.TypeTournamentComplete,
		TournamentID: id,
		Payload:      CompleteEvent{ID: id, Leaderboard: board, Results: snapshot},
	})

	if m.deps.Metrics != nil {
		m.deps.Metrics.TournamentsCompleted.Inc()
	}
	m.refreshGauges()
}

func leaderboardLine(board []Team) string {
	parts := make([]string, len(board))
	for i, team := range board {
		parts[i] = fmt.Sprintf("%d. %s %+.2f%%", team.Rank, team.Name, team.TotalReturn)
	}
	return "Leaderboard: " + strings.Join(parts, " | ")
}
