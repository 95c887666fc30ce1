package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"roas-notifier/internal/logger"
	"roas-notifier/internal/types"
)

// FileRegistry reads sites from a YAML file:
//
//	sites:
//	  - name: Acme
//	    sheet_url: https://docs.google.com/spreadsheets/d/e/.../pubhtml
//	    slack_webhook_url: https://hooks.slack.com/services/...
type FileRegistry struct {
	v *viper.Viper

	mu    sync.RWMutex
	sites []types.Site
}

type siteFile struct {
	Sites []types.Site `mapstructure:"sites"`
}

func NewFileRegistry(path string) (*FileRegistry, error) {
	if path == "" {
		path = "sites.yaml"
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("registry: read %s: %w", path, err)
	}

	r := &FileRegistry{v: v}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

// Watch reloads the file whenever it changes. A reload that fails keeps the
// previous site list.
func (r *FileRegistry) Watch() {
	r.v.OnConfigChange(func(e fsnotify.Event) {
		ctx := context.Background()
		if err := r.load(); err != nil {
			logger.ErrorWithErr(ctx, "Failed to reload site registry", err, "file", e.Name)
			return
		}
		logger.Info(ctx, "Site registry reloaded", "file", e.Name, "sites", r.count())
	})
	r.v.WatchConfig()
}

func (r *FileRegistry) load() error {
	var f siteFile
	if err := r.v.Unmarshal(&f); err != nil {
		return fmt.Errorf("registry: decode sites: %w", err)
	}

	seen := make(map[string]bool, len(f.Sites))
	sites := make([]types.Site, 0, len(f.Sites))
	for _, s := range f.Sites {
		s.Name = strings.TrimSpace(s.Name)
		if s.Name == "" {
			continue
		}
		if seen[s.Name] {
			return fmt.Errorf("registry: duplicate site %q", s.Name)
		}
		seen[s.Name] = true
		sites = append(sites, s)
	}

	r.mu.Lock()
	r.sites = sites
	r.mu.Unlock()
	return nil
}

func (r *FileRegistry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sites)
}

func (r *FileRegistry) GetSiteConfig(ctx context.Context, name string) (types.Site, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sites {
		if s.Name == name {
			return s, nil
		}
	}
	return types.Site{}, notFound(name)
}

func (r *FileRegistry) ListSiteNames(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.sites))
	for i, s := range r.sites {
		names[i] = s.Name
	}
	return names, nil
}

func (r *FileRegistry) Close() error { return nil }
