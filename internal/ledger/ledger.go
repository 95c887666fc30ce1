// Package ledger remembers which results were already announced.
//
// An identity is "{entity}_{dateText}" built from the raw date text of the
// sheet, so "04/03" and "4/3" are different identities. Entries are only ever
// added: marking an existing identity is a no-op and nothing here deletes.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"roas-notifier/internal/interfaces"
	"roas-notifier/internal/types"
)

var ErrEmptyIdentity = errors.New("ledger: empty identity")

// Identity builds the ledger key of one (entity, date) pair.
func Identity(entity, dateText string) string {
	return entity + "_" + dateText
}

// Record is the payload written for one announced result.
type Record struct {
	ID             string                 `json:"id"`
	Title          string                 `json:"titulo"`
	Date           string                 `json:"data"`
	Blocks         []types.ChannelResult  `json:"blocos,omitempty"`
	Aggregate      *types.AggregateResult `json:"agregado,omitempty"`
	ProcessedAtISO string                 `json:"data_processamento"`
}

type runIDKey struct{}

// WithRunID tags ctx so entries marked under it carry runID.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFrom returns the run id stored by WithRunID.
func RunIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// Config selects and configures a backend.
type Config struct {
	Backend string `yaml:"backend"` // file, sqlite or postgres
	Path    string `yaml:"path"`    // file and sqlite
	DSN     string `yaml:"-"`       // postgres, from LEDGER_DSN
}

// Open returns the backend named by cfg.Backend.
func Open(ctx context.Context, cfg Config) (interfaces.Ledger, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "file", "json":
		return NewFileLedger(cfg.Path)
	case "sqlite":
		return NewSQLiteLedger(cfg.Path)
	case "postgres", "postgresql":
		return NewPostgresLedger(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("ledger: unknown backend %q", cfg.Backend)
	}
}

func newEntry(ctx context.Context, identity string, payload any, now time.Time) (types.LedgerEntry, error) {
	if strings.TrimSpace(identity) == "" {
		return types.LedgerEntry{}, ErrEmptyIdentity
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return types.LedgerEntry{}, fmt.Errorf("ledger: encode payload for %s: %w", identity, err)
	}
	return types.LedgerEntry{
		Identity:    identity,
		Payload:     raw,
		RunID:       RunIDFrom(ctx),
		ProcessedAt: now,
	}, nil
}
