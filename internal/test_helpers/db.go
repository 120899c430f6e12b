package testhelpers

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fedspending/data-broker/internal/config"
	"github.com/fedspending/data-broker/internal/store"
	"gorm.io/gorm"
)

// NewSQLiteStore opens a migrated store on a fresh SQLite file in dir.
// Write transactions start with BEGIN IMMEDIATE so concurrent writers queue on the
// busy timeout instead of failing.
func NewSQLiteStore(dir string) (store.Store, *gorm.DB, error) {
	cfg, err := config.NewDefault()
	if err != nil {
		return nil, nil, err
	}
	cfg.Database.Type = "sqlite"
	cfg.Database.Name = fmt.Sprintf("%s?_txlock=immediate&_busy_timeout=10000", filepath.Join(dir, "broker.db"))

	db, err := store.InitDB(cfg)
	if err != nil {
		return nil, nil, err
	}

	s := store.NewStore(db)
	if err := s.InitialMigration(context.Background()); err != nil {
		_ = s.Close()
		return nil, nil, err
	}
	return s, db, nil
}

// Date builds a UTC calendar day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Truncate removes every row written by the broker tables.
func Truncate(db *gorm.DB) {
	for _, table := range []string{"generation_tasks", "error_metadata", "file_requests", "jobs", "submissions"} {
		db.Exec(fmt.Sprintf("DELETE FROM %s;", table))
	}
}
