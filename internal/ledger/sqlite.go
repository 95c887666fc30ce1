package ledger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const defaultSQLitePath = "data/ledger.db"

// processedRecord is the gorm model of one ledger entry.
type processedRecord struct {
	ID          uint   `gorm:"primaryKey"`
	Identity    string `gorm:"uniqueIndex;not null"`
	Payload     string `gorm:"type:text"`
	RunID       string `gorm:"index"`
	ProcessedAt time.Time
}

func (processedRecord) TableName() string { return "processed_records" }

type SQLiteLedger struct {
	db  *gorm.DB
	now func() time.Time
}

// NewSQLiteLedger opens (or creates) the database at path and migrates it.
func NewSQLiteLedger(path string) (*SQLiteLedger, error) {
	if path == "" {
		path = defaultSQLitePath
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("ledger: create dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: open sqlite %s: %w", path, err)
	}
	if err := db.AutoMigrate(&processedRecord{}); err != nil {
		return nil, fmt.Errorf("ledger: migrate sqlite: %w", err)
	}
	return &SQLiteLedger{db: db, now: time.Now}, nil
}

func (l *SQLiteLedger) IsProcessed(ctx context.Context, identity string) (bool, error) {
	if identity == "" {
		return false, ErrEmptyIdentity
	}
	var n int64
	err := l.db.WithContext(ctx).
		Model(&processedRecord{}).
		Where("identity = ?", identity).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("ledger: lookup %s: %w", identity, err)
	}
	return n > 0, nil
}

func (l *SQLiteLedger) MarkProcessed(ctx context.Context, identity string, payload any) error {
	entry, err := newEntry(ctx, identity, payload, l.now())
	if err != nil {
		return err
	}
	rec := processedRecord{
		Identity:    entry.Identity,
		Payload:     string(entry.Payload),
		RunID:       entry.RunID,
		ProcessedAt: entry.ProcessedAt,
	}
	err = l.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "identity"}}, DoNothing: true}).
		Create(&rec).Error
	if err != nil {
		return fmt.Errorf("ledger: mark %s: %w", identity, err)
	}
	return nil
}

func (l *SQLiteLedger) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
