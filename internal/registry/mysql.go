package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"roas-notifier/internal/types"
)

const createSitesTableMySQL = `
CREATE TABLE IF NOT EXISTS sites (
	id INT AUTO_INCREMENT PRIMARY KEY,
	name VARCHAR(191) NOT NULL UNIQUE,
	sheet_url TEXT NOT NULL,
	slack_webhook_url TEXT NOT NULL,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
)`

// MySQLRegistry reads sites from a MySQL sites table, creating it if needed.
type MySQLRegistry struct {
	db *sql.DB
}

func NewMySQLRegistry(ctx context.Context, dsn string) (*MySQLRegistry, error) {
	normalized, err := mysqlDSN(dsn)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open("mysql", normalized)
	if err != nil {
		return nil, fmt.Errorf("registry: open mysql: %w", err)
	}
	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("registry: ping mysql: %w", err)
	}
	if _, err := conn.ExecContext(ctx, createSitesTableMySQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("registry: create sites table: %w", err)
	}
	return &MySQLRegistry{db: conn}, nil
}

// mysqlDSN validates dsn and forces parseTime.
func mysqlDSN(dsn string) (string, error) {
	if dsn == "" {
		return "", errors.New("registry: mysql backend needs REGISTRY_DSN")
	}
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("registry: invalid mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

func (r *MySQLRegistry) GetSiteConfig(ctx context.Context, name string) (types.Site, error) {
	var s types.Site
	err := r.db.QueryRowContext(ctx,
		`SELECT name, sheet_url, slack_webhook_url FROM sites WHERE name = ? AND active`,
		name,
	).Scan(&s.Name, &s.SourceLocator, &s.NotifyLocator)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Site{}, notFound(name)
	}
	if err != nil {
		return types.Site{}, fmt.Errorf("registry: query site %q: %w", name, err)
	}
	return s, nil
}

func (r *MySQLRegistry) ListSiteNames(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name FROM sites WHERE active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("registry: list sites: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("registry: scan site: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (r *MySQLRegistry) Close() error {
	return r.db.Close()
}
