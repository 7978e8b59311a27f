package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"TradeArena/internal/tournament"
)

// Archive mirrors completed tournament results into Postgres for querying
// alongside the file store. The file store stays authoritative; Archive is
// a secondary sink and its write failures are reported but should be
// treated as non-fatal by callers.
type Archive struct {
	db     *sql.DB
	logger zerolog.Logger
}

// OpenArchive connects to Postgres and ensures the results table exists.
func OpenArchive(ctx context.Context, dsn string, logger zerolog.Logger) (*Archive, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	a := &Archive{db: db, logger: logger}
	if err := a.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func (a *Archive) ensureSchema(ctx context.Context) error {
	_, err := a.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS tournament_results (
			tournament_id TEXT PRIMARY KEY,
			started_at    TIMESTAMPTZ NOT NULL,
			ended_at      TIMESTAMPTZ NOT NULL,
			days          INT NOT NULL,
			winner        TEXT,
			winner_return DOUBLE PRECISION,
			data          JSONB NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure results table: %w", err)
	}
	return nil
}

// Insert upserts one completed tournament.
func (a *Archive) Insert(ctx context.Context, t tournament.Tournament) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal result %s: %w", t.ID, err)
	}

	var winner sql.NullString
	var winnerReturn sql.NullFloat64
	if len(t.Leaderboard) > 0 {
		winner = sql.NullString{String: t.Leaderboard[0].Name, Valid: true}
		winnerReturn = sql.NullFloat64{Float64: t.Leaderboard[0].TotalReturn, Valid: true}
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO tournament_results
			(tournament_id, started_at, ended_at, days, winner, winner_return, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tournament_id) DO UPDATE SET
			ended_at = $3, days = $4, winner = $5, winner_return = $6, data = $7
	`, t.ID, t.StartTime, t.EndTime, t.Config.Days, winner, winnerReturn, data)
	if err != nil {
		return fmt.Errorf("insert result %s: %w", t.ID, err)
	}
	return nil
}

// Close releases the database connection pool.
func (a *Archive) Close() error {
	return a.db.Close()
}

// ArchivingResultsStore wraps a primary results store and mirrors saves to
// the Postgres archive. Reads always come from the primary.
type ArchivingResultsStore struct {
	primary tournament.ResultsStore
	archive *Archive
	logger  zerolog.Logger
}

// NewArchivingResultsStore composes the file store with the archive.
func NewArchivingResultsStore(primary tournament.ResultsStore, archive *Archive, logger zerolog.Logger) *ArchivingResultsStore {
	return &ArchivingResultsStore{primary: primary, archive: archive, logger: logger}
}

// Save writes to the primary store and mirrors to Postgres. An archive
// failure is logged but does not fail the save.
func (s *ArchivingResultsStore) Save(t tournament.Tournament) error {
	if err := s.primary.Save(t); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.archive.Insert(ctx, t); err != nil {
		s.logger.Warn().Err(err).Str("tournament_id", t.ID).Msg("postgres archive failed")
	}
	return nil
}

// LoadAll delegates to the primary store.
func (s *ArchivingResultsStore) LoadAll() ([]tournament.Tournament, error) {
	return s.primary.LoadAll()
}

// Latest delegates to the primary store.
func (s *ArchivingResultsStore) Latest() (*tournament.Tournament, error) {
	return s.primary.Latest()
}
