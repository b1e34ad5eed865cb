package registry

import (
	"errors"
	"sync"

	"floorVault/internal/model"
)

var ErrNotInitialized = errors.New("registry: positions not initialized")

// Registry owns the vault's three positions. Readers always get copies;
// only Commit replaces them.
type Registry struct {
	mu          sync.RWMutex
	positions   model.Positions
	initialized bool
	version     uint64
}

func New() *Registry {
	return &Registry{}
}

// Positions returns a copy of the current positions.
func (r *Registry) Positions() (model.Positions, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.initialized {
		return model.Positions{}, ErrNotInitialized
	}
	return r.positions.Clone(), nil
}

// Initialized reports whether genesis positions exist.
func (r *Registry) Initialized() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.initialized
}

// Version increments on every commit.
func (r *Registry) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// Commit validates and replaces all three positions at once.
func (r *Registry) Commit(positions model.Positions) (uint64, error) {
	if err := positions.Validate(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions = positions.Clone()
	r.initialized = true
	r.version++
	return r.version, nil
}

// Restore loads persisted state without bumping the version.
func (r *Registry) Restore(state State) error {
	if err := state.Positions.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions = state.Positions.Clone()
	r.initialized = true
	r.version = state.Version
	return nil
}

// State returns the registry contents for persistence.
func (r *Registry) State() (State, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.initialized {
		return State{}, ErrNotInitialized
	}
	return State{Version: r.version, Positions: r.positions.Clone()}, nil
}

// Reset forgets all positions, returning the registry to its pre-genesis state.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions = model.Positions{}
	r.initialized = false
	r.version = 0
}
