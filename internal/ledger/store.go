// Package ledger keeps a sqlite history of analysis runs. The per-site
// output files remain the source of truth for resume; the ledger only
// answers "what happened" for the history command and for operators.
package ledger

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/d-singer/batdetect2-CLI/internal/errors"
	"github.com/d-singer/batdetect2-CLI/internal/logger"
)

const slowQueryThreshold = 500 * time.Millisecond

// Store is a handle on the ledger database.
type Store struct {
	db   *gorm.DB
	path string
}

// Open opens or creates the ledger at path and migrates its schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.New(err).
				Category(errors.CategoryDatabase).
				Context("operation", "create-ledger-dir").
				Context("path", dir).
				Build()
		}
	}

	gormLogger := logger.NewGormLogger(GetLogger(), slowQueryThreshold)
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000&_journal_mode=WAL"), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryDatabase).
			Context("operation", "open-ledger").
			Context("path", path).
			Build()
	}

	store := &Store{db: db, path: path}
	if err := store.migrate(); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) migrate() error {
	start := time.Now()
	if err := s.db.AutoMigrate(&RunRecord{}, &SiteRecord{}, &FailureRecord{}); err != nil {
		return errors.New(err).
			Category(errors.CategoryDatabase).
			Context("operation", "auto-migrate").
			Build()
	}
	GetLogger().Debug("ledger schema migrated",
		logger.String("path", s.path),
		logger.Duration("duration", time.Since(start)))
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// SaveRun stores a run with its sites and failures in one transaction.
func (s *Store) SaveRun(ctx context.Context, run *RunRecord) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(run).Error
	})
	if err != nil {
		return errors.New(err).
			Category(errors.CategoryDatabase).
			Context("operation", "save-run").
			Context("run_id", run.RunID).
			Build()
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first, with their sites.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	var runs []RunRecord
	err := s.db.WithContext(ctx).
		Preload("Sites", func(db *gorm.DB) *gorm.DB { return db.Order("site_id") }).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryDatabase).
			Context("operation", "recent-runs").
			Build()
	}
	return runs, nil
}

// SiteHistory returns up to limit outcomes for one site, newest first,
// including the files that failed.
func (s *Store) SiteHistory(ctx context.Context, siteID string, limit int) ([]SiteRecord, error) {
	var sites []SiteRecord
	err := s.db.WithContext(ctx).
		Preload("Failures").
		Where("site_id = ?", siteID).
		Order("id DESC").
		Limit(limit).
		Find(&sites).Error
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryDatabase).
			Context("operation", "site-history").
			SiteContext(siteID).
			Build()
	}
	return sites, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.New(err).
			Category(errors.CategoryDatabase).
			Context("operation", "close-ledger").
			Build()
	}
	if err := sqlDB.Close(); err != nil {
		return errors.New(err).
			Category(errors.CategoryDatabase).
			Context("operation", "close-ledger").
			Build()
	}
	return nil
}
