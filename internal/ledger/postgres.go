package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"roas-notifier/internal/db"
)

// PostgresLedger stores entries in the processed_records table created by
// the migrations in internal/db.
type PostgresLedger struct {
	pool  *pgxpool.Pool
	owned bool
	now   func() time.Time
}

// NewPostgresLedger connects to dsn and applies pending migrations.
func NewPostgresLedger(ctx context.Context, dsn string) (*PostgresLedger, error) {
	if dsn == "" {
		return nil, fmt.Errorf("ledger: postgres backend needs LEDGER_DSN")
	}
	if err := db.Migrate(dsn); err != nil {
		return nil, err
	}
	conn, err := db.NewConnection(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &PostgresLedger{pool: conn.Pool, owned: true, now: time.Now}, nil
}

// NewPostgresLedgerFromPool shares an existing pool; Close leaves it open.
func NewPostgresLedgerFromPool(pool *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool, now: time.Now}
}

func (l *PostgresLedger) IsProcessed(ctx context.Context, identity string) (bool, error) {
	if identity == "" {
		return false, ErrEmptyIdentity
	}
	var exists bool
	err := l.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_records WHERE identity = $1)`,
		identity,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ledger: lookup %s: %w", identity, err)
	}
	return exists, nil
}

func (l *PostgresLedger) MarkProcessed(ctx context.Context, identity string, payload any) error {
	entry, err := newEntry(ctx, identity, payload, l.now())
	if err != nil {
		return err
	}
	var runID any
	if entry.RunID != "" {
		runID = entry.RunID
	}
	_, err = l.pool.Exec(ctx,
		`INSERT INTO processed_records (identity, payload, run_id, processed_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (identity) DO NOTHING`,
		entry.Identity,
		string(entry.Payload),
		runID,
		entry.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("ledger: mark %s: %w", identity, err)
	}
	return nil
}

func (l *PostgresLedger) Close() error {
	if l.owned && l.pool != nil {
		l.pool.Close()
	}
	return nil
}
