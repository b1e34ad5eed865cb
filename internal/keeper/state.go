package keeper

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"floorVault/internal/model"
)

// StateStore persists what the keeper remembers between runs.
// storage/postgres.Store implements it.
type StateStore interface {
	LoadKeeperState(ctx context.Context) (model.KeeperState, bool, error)
	SaveKeeperState(ctx context.Context, state model.KeeperState) error
}

// FileStateStore keeps keeper state in a JSON file.
type FileStateStore struct {
	path string
}

func NewFileStateStore(path string) *FileStateStore {
	return &FileStateStore{path: path}
}

func (s *FileStateStore) LoadKeeperState(_ context.Context) (model.KeeperState, bool, error) {
	stat, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.KeeperState{}, false, nil
		}
		return model.KeeperState{}, false, fmt.Errorf("stat keeper state: %w", err)
	}
	if stat.IsDir() {
		return model.KeeperState{}, false, fmt.Errorf("keeper state path is a directory")
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return model.KeeperState{}, false, fmt.Errorf("read keeper state: %w", err)
	}

	var state model.KeeperState
	if err := json.Unmarshal(data, &state); err != nil {
		return model.KeeperState{}, false, fmt.Errorf("parse keeper state: %w", err)
	}
	return state, true, nil
}

func (s *FileStateStore) SaveKeeperState(_ context.Context, state model.KeeperState) error {
	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create keeper state dir: %w", err)
		}
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal keeper state: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write keeper state tmp: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename keeper state: %w", err)
	}
	return nil
}

// MemoryStateStore keeps keeper state for the life of the process.
type MemoryStateStore struct {
	mu    sync.Mutex
	state *model.KeeperState
}

func (s *MemoryStateStore) LoadKeeperState(_ context.Context) (model.KeeperState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return model.KeeperState{}, false, nil
	}
	return *s.state, true, nil
}

func (s *MemoryStateStore) SaveKeeperState(_ context.Context, state model.KeeperState) error {
	s.mu.Lock()
	s.state = &state
	s.mu.Unlock()
	return nil
}
