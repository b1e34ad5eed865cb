package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"floorVault/internal/model"
)

// State is the persisted form of the registry.
type State struct {
	Version   uint64          `json:"version"`
	Positions model.Positions `json:"positions"`
	UpdatedAt string          `json:"updated_at"`
}

// StateStore persists registry state between keeper runs.
type StateStore interface {
	Load(ctx context.Context) (State, bool, error)
	Save(ctx context.Context, state State) error
}

// FileStateStore stores state as a JSON file, replaced atomically.
type FileStateStore struct {
	Path string
}

func (s *FileStateStore) Load(_ context.Context) (State, bool, error) {
	if s.Path == "" {
		return State{}, false, nil
	}
	stat, err := os.Stat(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, false, nil
		}
		return State{}, false, fmt.Errorf("stat state: %w", err)
	}
	if stat.IsDir() {
		return State{}, false, fmt.Errorf("state path is a directory")
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		return State{}, false, fmt.Errorf("read state: %w", err)
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, false, fmt.Errorf("parse state: %w", err)
	}
	return state, true, nil
}

func (s *FileStateStore) Save(_ context.Context, state State) error {
	if s.Path == "" {
		return nil
	}
	dir := filepath.Dir(s.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	state.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmpPath := s.Path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write state tmp: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path); err != nil {
		return fmt.Errorf("rename state: %w", err)
	}
	return nil
}
