// Package deliverylog keeps an append-only audit trail of notification
// attempts, one JSON line per message, one file per São Paulo calendar day.
package deliverylog

import (
	"compress/gzip"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const fileExt = ".log"

// Entry is one notification attempt.
type Entry struct {
	RunID       string
	Site        string
	Destination string // notification locator; only its host is written
	OK          bool
	Text        string
}

type Log struct {
	dir string
	loc *time.Location
	now func() time.Time

	mu     sync.Mutex
	day    string
	file   *os.File
	logger *zap.Logger
}

// New returns a Log writing under dir. Files are opened lazily.
func New(dir string, loc *time.Location) *Log {
	if dir == "" {
		dir = filepath.Join("logs", "deliveries")
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Log{dir: dir, loc: loc, now: time.Now}
}

// Append writes e to today's file.
func (l *Log) Append(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().In(l.loc)
	if err := l.rotate(now.Format("2006-01-02")); err != nil {
		return err
	}

	l.logger.Info("delivery",
		zap.Time("at", now),
		zap.String("run_id", e.RunID),
		zap.String("site", e.Site),
		zap.String("destination", Host(e.Destination)),
		zap.Bool("ok", e.OK),
		zap.String("text", e.Text),
	)
	return nil
}

func (l *Log) rotate(day string) error {
	if l.logger != nil && day == l.day {
		return nil
	}
	if err := l.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("deliverylog: create dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(l.dir, day+fileExt), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("deliverylog: open: %w", err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = ""
	encCfg.LevelKey = ""
	encCfg.CallerKey = ""
	encCfg.StacktraceKey = ""
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), zapcore.InfoLevel)

	l.file = f
	l.logger = zap.New(core)
	l.day = day
	return nil
}

// Close flushes and closes the current file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeLocked()
}

func (l *Log) closeLocked() error {
	if l.logger == nil {
		return nil
	}
	_ = l.logger.Sync()
	err := l.file.Close()
	l.logger, l.file, l.day = nil, nil, ""
	return err
}

// CompressOlder gzips day files last modified more than retentionDays ago
// and removes the originals. A non-positive retention disables it.
func (l *Log) CompressOlder(retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := l.now().AddDate(0, 0, -retentionDays)
	compressed := 0
	for _, de := range entries {
		if de.IsDir() || filepath.Ext(de.Name()) != fileExt {
			continue
		}
		info, err := de.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		p := filepath.Join(l.dir, de.Name())
		if err := gzipFile(p); err != nil {
			return compressed, err
		}
		compressed++
	}
	return compressed, nil
}

func gzipFile(p string) error {
	gz := p + ".gz"
	if _, err := os.Stat(gz); err == nil {
		return os.Remove(p)
	}

	in, err := os.Open(p)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(gz, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		gw.Close()
		out.Close()
		os.Remove(gz)
		return fmt.Errorf("deliverylog: compress %s: %w", p, err)
	}
	if err := gw.Close(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(p)
}

// Host reduces a webhook URL to its host; webhook paths are credentials.
func Host(locator string) string {
	u, err := url.Parse(locator)
	if err != nil || u.Host == "" {
		if i := strings.IndexByte(locator, '/'); i > 0 {
			return locator[:i]
		}
		return locator
	}
	return u.Host
}
