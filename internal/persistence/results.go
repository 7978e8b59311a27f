package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"TradeArena/internal/tournament"
)

// FileResultsStore archives completed tournaments as <id>.json files,
// kept separate from checkpoints so finished runs survive checkpoint
// cleanup.
type FileResultsStore struct {
	dir    string
	logger zerolog.Logger
}

// NewFileResultsStore creates the directory if needed.
func NewFileResultsStore(dir string, logger zerolog.Logger) (*FileResultsStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create results dir %s: %w", dir, err)
	}
	return &FileResultsStore{dir: dir, logger: logger}, nil
}

// Save writes the completed tournament, overwriting any earlier save.
func (s *FileResultsStore) Save(t tournament.Tournament) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result %s: %w", t.ID, err)
	}

	path := filepath.Join(s.dir, t.ID+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write result %s: %w", t.ID, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit result %s: %w", t.ID, err)
	}

	s.logger.Debug().Str("tournament_id", t.ID).Str("path", path).Msg("result saved")
	return nil
}

// LoadAll returns every archived result ordered oldest first by end time.
func (s *FileResultsStore) LoadAll() ([]tournament.Tournament, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read results dir %s: %w", s.dir, err)
	}

	results := make([]tournament.Tournament, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasSuffix(name, checkpointSuffix) {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			s.logger.Warn().Err(err).Str("file", name).Msg("skipping unreadable result")
			continue
		}

		var t tournament.Tournament
		if err := json.Unmarshal(data, &t); err != nil {
			s.logger.Warn().Err(err).Str("file", name).Msg("skipping malformed result")
			continue
		}
		results = append(results, t)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].EndTime.Equal(results[j].EndTime) {
			return results[i].StartTime.Before(results[j].StartTime)
		}
		return results[i].EndTime.Before(results[j].EndTime)
	})
	return results, nil
}

// Latest returns the most recently finished result, or nil when none exist.
func (s *FileResultsStore) Latest() (*tournament.Tournament, error) {
	results, err := s.LoadAll()
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	latest := results[len(results)-1]
	return &latest, nil
}
