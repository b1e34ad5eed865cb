package events

import (
	"context"
	"errors"
	"sync"

	"floorVault/internal/model"
)

// Sink receives vault events and VaultInfo snapshots.
type Sink interface {
	PutEvents(ctx context.Context, events []model.VaultEvent) error
	PutSnapshot(ctx context.Context, snapshot model.VaultSnapshot) error
}

// Multi writes to every sink and joins their errors.
type Multi []Sink

// PutEvents forwards events to every sink.
func (m Multi) PutEvents(ctx context.Context, events []model.VaultEvent) error {
	var errs []error
	for _, s := range m {
		if err := s.PutEvents(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PutSnapshot forwards the snapshot to every sink.
func (m Multi) PutSnapshot(ctx context.Context, snapshot model.VaultSnapshot) error {
	var errs []error
	for _, s := range m {
		if err := s.PutSnapshot(ctx, snapshot); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps the most recent events and snapshots in memory.
type Recorder struct {
	mu        sync.RWMutex
	limit     int
	events    []model.VaultEvent
	snapshots []model.VaultSnapshot
}

// NewRecorder keeps at most limit entries of each kind; zero means unbounded.
func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit}
}

func (r *Recorder) PutEvents(_ context.Context, events []model.VaultEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	if r.limit > 0 && len(r.events) > r.limit {
		r.events = append([]model.VaultEvent(nil), r.events[len(r.events)-r.limit:]...)
	}
	return nil
}

func (r *Recorder) PutSnapshot(_ context.Context, snapshot model.VaultSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, snapshot)
	if r.limit > 0 && len(r.snapshots) > r.limit {
		r.snapshots = append([]model.VaultSnapshot(nil), r.snapshots[len(r.snapshots)-r.limit:]...)
	}
	return nil
}

// Events returns a copy of the recorded events, oldest first.
func (r *Recorder) Events() []model.VaultEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]model.VaultEvent(nil), r.events...)
}

// Snapshots returns a copy of the recorded snapshots, oldest first.
func (r *Recorder) Snapshots() []model.VaultSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]model.VaultSnapshot(nil), r.snapshots...)
}
