package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"roas-notifier/internal/db"
	"roas-notifier/internal/types"
)

// PostgresRegistry reads the sites table created by the migrations.
type PostgresRegistry struct {
	pool  *pgxpool.Pool
	owned bool
}

func NewPostgresRegistry(ctx context.Context, dsn string) (*PostgresRegistry, error) {
	if dsn == "" {
		return nil, errors.New("registry: postgres backend needs REGISTRY_DSN")
	}
	conn, err := db.NewConnection(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	return &PostgresRegistry{pool: conn.Pool, owned: true}, nil
}

// NewPostgresRegistryFromPool shares an existing pool; Close leaves it open.
func NewPostgresRegistryFromPool(pool *pgxpool.Pool) *PostgresRegistry {
	return &PostgresRegistry{pool: pool}
}

func (r *PostgresRegistry) GetSiteConfig(ctx context.Context, name string) (types.Site, error) {
	var s types.Site
	err := r.pool.QueryRow(ctx,
		`SELECT name, sheet_url, slack_webhook_url FROM sites WHERE name = $1 AND active`,
		name,
	).Scan(&s.Name, &s.SourceLocator, &s.NotifyLocator)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Site{}, notFound(name)
	}
	if err != nil {
		return types.Site{}, fmt.Errorf("registry: query site %q: %w", name, err)
	}
	return s, nil
}

func (r *PostgresRegistry) ListSiteNames(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT name FROM sites WHERE active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("registry: list sites: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("registry: list sites: %w", err)
	}
	return names, nil
}

func (r *PostgresRegistry) Close() error {
	if r.owned && r.pool != nil {
		r.pool.Close()
	}
	return nil
}
