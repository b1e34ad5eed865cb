package events

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"floorVault/internal/model"
)

// record is one JSON line; exactly one of Event or Snapshot is set.
type record struct {
	Type     string               `json:"type"`
	Event    *model.VaultEvent    `json:"event,omitempty"`
	Snapshot *model.VaultSnapshot `json:"snapshot,omitempty"`
}

// JSONL appends events and snapshots to a JSON lines file.
type JSONL struct {
	path string
	mu   sync.Mutex
}

func NewJSONL(path string) *JSONL {
	return &JSONL{path: path}
}

// PutEvents appends events as JSON lines.
func (s *JSONL) PutEvents(_ context.Context, events []model.VaultEvent) error {
	if len(events) == 0 {
		return nil
	}
	records := make([]record, 0, len(events))
	for i := range events {
		records = append(records, record{Type: "event", Event: &events[i]})
	}
	return s.append(records)
}

// PutSnapshot appends one snapshot line.
func (s *JSONL) PutSnapshot(_ context.Context, snapshot model.VaultSnapshot) error {
	return s.append([]record{{Type: "snapshot", Snapshot: &snapshot}})
}

func (s *JSONL) append(records []record) error {
	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, rec := range records {
		line, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", rec.Type, err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write %s: %w", rec.Type, err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}
