package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"TradeArena/internal/tournament"
)

const checkpointSuffix = "_checkpoint.json"

// FileCheckpointStore persists tournament checkpoints as one JSON file per
// tournament, named <id>_checkpoint.json under the configured directory.
type FileCheckpointStore struct {
	dir    string
	logger zerolog.Logger
}

// NewFileCheckpointStore creates the directory if needed.
func NewFileCheckpointStore(dir string, logger zerolog.Logger) (*FileCheckpointStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir %s: %w", dir, err)
	}
	return &FileCheckpointStore{dir: dir, logger: logger}, nil
}

// Save writes the checkpoint, replacing any previous one for the same
// tournament. The write goes through a temp file so readers never see a
// partial checkpoint.
func (s *FileCheckpointStore) Save(cp tournament.Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint %s: %w", cp.Tournament.ID, err)
	}

	path := s.path(cp.Tournament.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint %s: %w", cp.Tournament.ID, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit checkpoint %s: %w", cp.Tournament.ID, err)
	}

	s.logger.Debug().
		Str("tournament_id", cp.Tournament.ID).
		Int("day", cp.CheckpointDay).
		Str("path", path).
		Msg("checkpoint saved")
	return nil
}

// LoadAll reads every checkpoint file in the directory. Unreadable or
// malformed files are skipped with a warning so one corrupt checkpoint
// cannot block startup.
func (s *FileCheckpointStore) LoadAll() ([]tournament.Checkpoint, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint dir %s: %w", s.dir, err)
	}

	checkpoints := make([]tournament.Checkpoint, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), checkpointSuffix) {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			s.logger.Warn().Err(err).Str("file", entry.Name()).Msg("skipping unreadable checkpoint")
			continue
		}

		var cp tournament.Checkpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			s.logger.Warn().Err(err).Str("file", entry.Name()).Msg("skipping malformed checkpoint")
			continue
		}
		checkpoints = append(checkpoints, cp)
	}

	return checkpoints, nil
}

// Delete removes the tournament's checkpoint. A missing file is not an
// error: completion and deletion can race a restart.
func (s *FileCheckpointStore) Delete(id string) error {
	err := os.Remove(s.path(id))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete checkpoint %s: %w", id, err)
	}
	return nil
}

func (s *FileCheckpointStore) path(id string) string {
	return filepath.Join(s.dir, id+checkpointSuffix)
}
