package infra

import (
	"errors"
	"fmt"
	"sync"

	postgres_wrapper "github.com/bhanukaranwal/SetuBond/pkg/infra/postgres"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const DefaultMigrationSource = "file://migration/sql"

// IMigrateTool migrates the schema.
type IMigrateTool interface {
	// ConnectAndMigrate connects with backoff, then migrates to the latest version.
	ConnectAndMigrate(cfg *postgres_wrapper.PostgresConfig) (*gorm.DB, error)

	// Migrate from current version to latest version.
	Migrate(source string, connStr string) error

	// Down rolls back the given number of steps.
	Down(source string, connStr string, steps int) error
}

type migrateTool struct{}

var once sync.Once         // nolint
var mutex = &sync.Mutex{}  // nolint
var singleton IMigrateTool // nolint

// GetMigrateTool get singleton instance for migrate tool
func GetMigrateTool() IMigrateTool { // nolint
	once.Do(func() {
		singleton = &migrateTool{}
	})
	return singleton
}

func source(s string) string {
	if s == "" {
		return DefaultMigrationSource
	}
	return s
}

// Migrate executes migrations serially.
func (mt *migrateTool) Migrate(src string, connStr string) error {
	mutex.Lock()
	defer mutex.Unlock()

	mg, err := migrate.New(source(src), connStr)
	if err != nil {
		return fmt.Errorf("create migration: %w", err)
	}
	defer mg.Close()

	version, dirty, err := mg.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read migration version: %w", err)
	}
	if dirty {
		zap.S().Warnf("schema version %d is dirty, forcing back one step", version)
		if err := mg.Force(int(version) - 1); err != nil {
			return fmt.Errorf("force version: %w", err)
		}
	}

	if err := mg.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	version, _, _ = mg.Version()
	zap.S().Infof("schema at version %d", version)
	return nil
}

func (mt *migrateTool) Down(src string, connStr string, steps int) error {
	mutex.Lock()
	defer mutex.Unlock()

	mg, err := migrate.New(source(src), connStr)
	if err != nil {
		return fmt.Errorf("create migration: %w", err)
	}
	defer mg.Close()
	if err := mg.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

func (mt *migrateTool) ConnectAndMigrate(cfg *postgres_wrapper.PostgresConfig) (*gorm.DB, error) {
	db, err := postgres_wrapper.InitPostgresWithBackoff(cfg)
	if err != nil {
		return nil, err
	}
	zap.S().Info("connect postgres successful")
	if err := mt.Migrate(cfg.MigrationSource, cfg.MigrationConnURL); err != nil {
		return nil, err
	}
	return db, nil
}
