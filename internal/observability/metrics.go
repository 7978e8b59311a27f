package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for TradeArena.
type Metrics struct {
	// --- Tournament lifecycle ---
	TournamentsStarted   prometheus.Counter
	TournamentsCompleted prometheus.Counter
	TournamentsResumed   prometheus.Counter
	ActiveTournaments    prometheus.Gauge
	PausedTournaments    prometheus.Gauge

	// --- Simulation loop ---
	TradingCycles    *prometheus.CounterVec
	CycleDuration    prometheus.Histogram
	TeamSteps        *prometheus.CounterVec
	TeamFailures     *prometheus.CounterVec
	DecisionsApplied *prometheus.CounterVec

	// --- Persistence ---
	CheckpointsSaved   prometheus.Counter
	CheckpointErrors   *prometheus.CounterVec
	CheckpointDuration prometheus.Histogram
	ResultsSaved       prometheus.Counter
	ResultErrors       *prometheus.CounterVec

	// --- Event stream ---
	EventsPublished *prometheus.CounterVec
	EventsDropped   *prometheus.CounterVec
	Subscribers     prometheus.Gauge
	BridgePublished *prometheus.CounterVec
	BridgeErrors    prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	cycleBuckets := []float64{
		0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5,
	}

	return &Metrics{
		// Tournament lifecycle
		TournamentsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "arena_tournaments_started_total",
			Help: "Tournaments started",
		}),

		TournamentsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "arena_tournaments_completed_total",
			Help: "Tournaments that reached their end date",
		}),

		TournamentsResumed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "arena_tournaments_resumed_total",
			Help: "Resume operations that relaunched a simulation loop",
		}),

		ActiveTournaments: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "arena_tournaments_active",
			Help: "Tournaments currently in the running state",
		}),

		PausedTournaments: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "arena_tournaments_paused",
			Help: "Tournaments currently in the paused state",
		}),

		// Simulation loop
		TradingCycles: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_trading_cycles_total",
			Help: "Trading cycles executed",
		}, []string{"tournament_id"}),

		CycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "arena_trading_cycle_duration_seconds",
			Help:    "Time to run one trading cycle across all teams",
			Buckets: cycleBuckets,
		}),

		TeamSteps: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_team_steps_total",
			Help: "Per-team decide+apply steps executed",
		}, []string{"risk_profile"}),

		TeamFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_team_failures_total",
			Help: "Team steps that failed and deactivated the team",
		}, []string{"reason"}),

		DecisionsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_decisions_applied_total",
			Help: "Trading decisions applied",
		}, []string{"signal"}),

		// Persistence
		CheckpointsSaved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "arena_checkpoints_saved_total",
			Help: "Checkpoint files written",
		}),

		CheckpointErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_checkpoint_errors_total",
			Help: "Checkpoint operations that failed",
		}, []string{"op"}),

		CheckpointDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "arena_checkpoint_duration_seconds",
			Help:    "Time to serialize and write a checkpoint",
			Buckets: cycleBuckets,
		}),

		ResultsSaved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "arena_results_saved_total",
			Help: "Completed tournament results persisted",
		}),

		ResultErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_result_errors_total",
			Help: "Result persistence operations that failed",
		}, []string{"op"}),

		// Event stream
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_events_published_total",
			Help: "Events delivered to at least the publish stage",
		}, []string{"type"}),

		EventsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_events_dropped_total",
			Help: "Events dropped because a subscriber buffer was full",
		}, []string{"type"}),

		Subscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "arena_event_subscribers",
			Help: "Currently registered event subscribers",
		}),

		BridgePublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_bridge_published_total",
			Help: "Events forwarded to NATS",
		}, []string{"type"}),

		BridgeErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "arena_bridge_errors_total",
			Help: "NATS publish failures in the event bridge",
		}),
	}
}
