package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"roas-notifier/internal/types"
)

const defaultFilePath = "data/processed_records.json"

// FileLedger keeps every entry in one JSON array on disk. The file is
// rewritten through a temp file and rename so a crash never leaves it half
// written.
type FileLedger struct {
	path    string
	mu      sync.Mutex
	entries []types.LedgerEntry
	index   map[string]struct{}
	now     func() time.Time
}

// NewFileLedger loads path, creating its directory when needed.
func NewFileLedger(path string) (*FileLedger, error) {
	if path == "" {
		path = defaultFilePath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ledger: create dir: %w", err)
	}

	l := &FileLedger{path: path, index: make(map[string]struct{}), now: time.Now}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return l, nil
	case err != nil:
		return nil, fmt.Errorf("ledger: read %s: %w", path, err)
	}
	if len(data) == 0 {
		return l, nil
	}
	if err := json.Unmarshal(data, &l.entries); err != nil {
		return nil, fmt.Errorf("ledger: decode %s: %w", path, err)
	}
	for _, e := range l.entries {
		l.index[e.Identity] = struct{}{}
	}
	return l, nil
}

func (l *FileLedger) IsProcessed(_ context.Context, identity string) (bool, error) {
	if identity == "" {
		return false, ErrEmptyIdentity
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.index[identity]
	return ok, nil
}

func (l *FileLedger) MarkProcessed(ctx context.Context, identity string, payload any) error {
	entry, err := newEntry(ctx, identity, payload, l.now())
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.index[identity]; ok {
		return nil
	}

	entries := append(l.entries, entry)
	if err := l.write(entries); err != nil {
		return err
	}
	l.entries = entries
	l.index[identity] = struct{}{}
	return nil
}

// Entries returns a copy of every stored entry, oldest first.
func (l *FileLedger) Entries() []types.LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]types.LedgerEntry(nil), l.entries...)
}

func (l *FileLedger) Close() error { return nil }

func (l *FileLedger) write(entries []types.LedgerEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("ledger: encode: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(l.path), ".ledger-*.json")
	if err != nil {
		return fmt.Errorf("ledger: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("ledger: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("ledger: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("ledger: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), l.path); err != nil {
		return fmt.Errorf("ledger: rename: %w", err)
	}
	return nil
}
