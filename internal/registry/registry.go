// Package registry resolves tracked sites to their sheet and webhook.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"roas-notifier/internal/interfaces"
)

var ErrSiteNotFound = errors.New("registry: site not found")

// Config selects and configures a backend.
type Config struct {
	Backend string `yaml:"backend"` // file, postgres or mysql
	Path    string `yaml:"path"`    // file backend
	Watch   bool   `yaml:"watch"`   // file backend: reload on change
	DSN     string `yaml:"-"`       // from REGISTRY_DSN
}

// Open returns the backend named by cfg.Backend.
func Open(ctx context.Context, cfg Config) (interfaces.SiteRegistry, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "file", "yaml":
		r, err := NewFileRegistry(cfg.Path)
		if err != nil {
			return nil, err
		}
		if cfg.Watch {
			r.Watch()
		}
		return r, nil
	case "postgres", "postgresql":
		return NewPostgresRegistry(ctx, cfg.DSN)
	case "mysql":
		return NewMySQLRegistry(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("registry: unknown backend %q", cfg.Backend)
	}
}

func notFound(name string) error {
	return fmt.Errorf("%w: %q", ErrSiteNotFound, name)
}
