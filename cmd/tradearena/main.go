package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"TradeArena/internal/events"
	"TradeArena/internal/market"
	"TradeArena/internal/observability"
	"TradeArena/internal/persistence"
	"TradeArena/internal/strategy"
	"TradeArena/internal/tournament"
)

// Config holds all application configuration, loaded from environment
// variables (optionally via a .env file).
type Config struct {
	CheckpointDir string
	ResultsDir    string

	// Optional sinks: enabled only when set.
	NATSURL     string
	PostgresDSN string

	MetricsAddr string

	// Strategy selection: "random" or "model".
	Strategy      string
	RandomSeed    int
	ModelBaseURL  string
	ModelAPIKey   string
	ModelName     string
	ModelTimeout  time.Duration
	EventBufSize  int
	StepTimeout   time.Duration
	CycleInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		CheckpointDir: envOrDefault("ARENA_CHECKPOINT_DIR", "tournament_checkpoints"),
		ResultsDir:    envOrDefault("ARENA_RESULTS_DIR", "tournament_results"),
		NATSURL:       os.Getenv("ARENA_NATS_URL"),
		PostgresDSN:   os.Getenv("ARENA_POSTGRES_DSN"),
		MetricsAddr:   envOrDefault("ARENA_METRICS_ADDR", ":9091"),
		Strategy:      envOrDefault("ARENA_STRATEGY", "random"),
		RandomSeed:    envIntOrDefault("ARENA_RANDOM_SEED", 0),
		ModelBaseURL:  envOrDefault("ARENA_MODEL_BASE_URL", "http://localhost:8000/v1"),
		ModelAPIKey:   os.Getenv("ARENA_MODEL_API_KEY"),
		ModelName:     envOrDefault("ARENA_MODEL_NAME", "gpt-4-turbo"),
		ModelTimeout:  envDurationOrDefault("ARENA_MODEL_TIMEOUT", 20*time.Second),
		EventBufSize:  envIntOrDefault("ARENA_EVENT_BUF_SIZE", 256),
		StepTimeout:   envDurationOrDefault("ARENA_TEAM_STEP_TIMEOUT", 30*time.Second),
		CycleInterval: envDurationOrDefault("ARENA_CYCLE_INTERVAL", time.Hour),
	}
}

func main() {
	_ = godotenv.Load()

	logger := observability.NewLogger("main")
	logger.Info().Msg("TradeArena starting")

	cfg := DefaultConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker()

	// --- Stores ---
	checkpoints, err := persistence.NewFileCheckpointStore(cfg.CheckpointDir, observability.NewLogger("checkpoints"))
	if err != nil {
		logger.Fatal().Err(err).Msg("checkpoint store init failed")
	}
	fileResults, err := persistence.NewFileResultsStore(cfg.ResultsDir, observability.NewLogger("results"))
	if err != nil {
		logger.Fatal().Err(err).Msg("results store init failed")
	}

	var results tournament.ResultsStore = fileResults
	if cfg.PostgresDSN != "" {
		archive, err := persistence.OpenArchive(ctx, cfg.PostgresDSN, observability.NewLogger("archive"))
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres archive init failed")
		}
		defer archive.Close()
		results = persistence.NewArchivingResultsStore(fileResults, archive, observability.NewLogger("archive"))
		logger.Info().Msg("Postgres result archive enabled")
	}

	// --- Events ---
	channel := events.NewChannel(cfg.EventBufSize, metrics)

	if cfg.NATSURL != "" {
		nc, js, err := events.ConnectNATS(cfg.NATSURL, observability.NewLogger("nats"))
		if err != nil {
			logger.Fatal().Err(err).Msg("nats connect failed")
		}
		defer nc.Close()

		if err := events.EnsureStream(ctx, js); err != nil {
			logger.Fatal().Err(err).Msg("ensure nats stream failed")
		}

		bridge := events.NewBridge(js, channel, metrics, observability.NewLogger("bridge"))
		go bridge.Run(ctx)
		logger.Info().Str("url", cfg.NATSURL).Msg("NATS event bridge enabled")
	}

	// --- Strategy ---
	var strat strategy.DecisionStrategy
	switch cfg.Strategy {
	case "model":
		strat = strategy.NewModelStrategy(strategy.ModelConfig{
			BaseURL: cfg.ModelBaseURL,
			APIKey:  cfg.ModelAPIKey,
			Model:   cfg.ModelName,
			Timeout: cfg.ModelTimeout,
		}, observability.NewLogger("strategy"))
		logger.Info().Str("model", cfg.ModelName).Msg("model-backed strategy enabled")
	default:
		strat = strategy.NewRandomStrategy(int64(cfg.RandomSeed))
	}

	// --- Manager ---
	manager := tournament.NewManager(tournament.Deps{
		Checkpoints:     checkpoints,
		Results:         results,
		Events:          channel,
		Strategy:        strat,
		Clock:           market.NewClock(),
		Metrics:         metrics,
		Logger:          observability.NewLogger("tournament"),
		CycleInterval:   cfg.CycleInterval,
		TeamStepTimeout: cfg.StepTimeout,
	})

	loaded, err := manager.LoadSaved()
	if err != nil {
		logger.Fatal().Err(err).Msg("loading saved tournaments failed")
	}
	if loaded > 0 {
		logger.Info().Int("count", loaded).Msg("saved tournaments loaded (paused, awaiting resume)")
	}

	// --- Metrics + health server ---
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", healthChecker.LivenessHandler)
	mux.HandleFunc("/readyz", healthChecker.ReadinessHandler)

	httpServer := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
		defer c()
		httpServer.Shutdown(shutCtx)
	}()
	go func() {
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()

	healthChecker.SetReady(true)
	logger.Info().
		Str("checkpoints", cfg.CheckpointDir).
		Str("results", cfg.ResultsDir).
		Str("strategy", cfg.Strategy).
		Msg("TradeArena ready")

	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("shutting down")

	healthChecker.SetReady(false)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("manager shutdown failed")
	}

	logger.Info().Msg("TradeArena shutdown complete")
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var i int
	if _, err := fmt.Sscanf(v, "%d", &i); err != nil {
		return defaultVal
	}
	return i
}

func envDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
