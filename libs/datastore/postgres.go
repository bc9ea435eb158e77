// Package datastore holds the postgres plumbing shared by the portal's
// storage layers: pooled connections, migrations and transaction helpers.
package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dlmiddlecote/sqlstats"
	"github.com/getsentry/sentry-go"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"

	appctx "github.com/portal-pay/portal-go/libs/context"
	"github.com/portal-pay/portal-go/libs/logging"

	// file source driver for migrations
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

var (
	dbs = map[string]*sqlx.DB{}

	// CurrentMigrationVersion holds the migration version the code expects
	CurrentMigrationVersion = uint(2)
)

// Datastore holds the methods common to every portal store.
type Datastore interface {
	RawDB() *sqlx.DB
	NewMigrate() (*migrate.Migrate, error)
	Migrate(...uint) error
	RollbackTxAndHandle(tx *sqlx.Tx) error
	RollbackTx(tx *sqlx.Tx)
	BeginTx() (*sqlx.Tx, error)
}

// Postgres wraps a postgres database handle.
type Postgres struct {
	*sqlx.DB
}

// NewPostgres opens (or reuses) a connection pool for databaseURL, optionally
// running pending migrations. dbStatsPrefix labels the sqlstats collector.
func NewPostgres(databaseURL string, performMigration bool, dbStatsPrefix ...string) (*Postgres, error) {
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}

	statsPrefix := ""
	if len(dbStatsPrefix) > 0 {
		statsPrefix = dbStatsPrefix[0]
	}

	// pools are shared per prefix and url so repeated service setup reuses
	// the same connections
	key := statsPrefix + ":" + databaseURL
	if dbs[key] != nil {
		return &Postgres{dbs[key]}, nil
	}

	db, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	dbs[key] = db

	if statsPrefix != "" {
		if err := registerDBStats(db, statsPrefix); err != nil {
			return nil, err
		}
	}

	db.SetConnMaxLifetime(5 * time.Minute)

	// defaults to 80 unless overridden via environment
	maxOpenConns := 80
	if mc, err := strconv.Atoi(os.Getenv("DATABASE_MAX_OPEN_CONNS")); err == nil && mc > 0 {
		maxOpenConns = mc
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxOpenConns / 2)

	pg := &Postgres{db}

	if performMigration {
		if err := pg.Migrate(); err != nil {
			return nil, err
		}
	}

	return pg, nil
}

// registerDBStats exports the database/sql pool gauges labelled with name.
func registerDBStats(db *sqlx.DB, name string) error {
	if err := prometheus.Register(sqlstats.NewStatsCollector(name, db)); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return fmt.Errorf("failed to register db stats collector: %w", err)
		}
	}
	return nil
}

// RawDB returns the underlying database handle.
func (pg *Postgres) RawDB() *sqlx.DB {
	return pg.DB
}

// NewMigrate builds a migrate instance over the open connection, sourcing
// migrations from DATABASE_MIGRATIONS_URL (default file://migrations).
func (pg *Postgres) NewMigrate() (*migrate.Migrate, error) {
	driver, err := postgres.WithInstance(pg.RawDB().DB, &postgres.Config{})
	if err != nil {
		return nil, err
	}

	migrationsURL := os.Getenv("DATABASE_MIGRATIONS_URL")
	if migrationsURL == "" {
		migrationsURL = "file://migrations"
	}

	return migrate.NewWithDatabaseInstance(migrationsURL, "postgres", driver)
}

// Migrate brings the database to the version the code expects. A database
// ahead of the code or in a dirty state is left alone and reported.
func (pg *Postgres) Migrate(currentMigrationVersions ...uint) error {
	ctx := context.WithValue(context.Background(), appctx.EnvironmentCTXKey, os.Getenv("ENV"))
	_, logger := logging.SetupLogger(ctx)

	logger.Info().Msg("attempting database migration")

	m, err := pg.NewMigrate()
	if err != nil {
		logger.Error().Err(err).Msg("failed to create a new migration")
		return err
	}

	codeVersion := CurrentMigrationVersion
	if len(currentMigrationVersions) > 0 {
		codeVersion = currentMigrationVersions[0]
	}

	dbVersion, dirty, err := m.Version()

	subLogger := logger.With().
		Bool("dirty", dirty).
		Int("db_version", int(dbVersion)).
		Uint("code_version", codeVersion).
		Logger()

	subLogger.Info().Msg("database status")

	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		subLogger.Error().Err(err).Msg("failed to get migration version")
		sentry.CaptureMessage(err.Error())
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if codeVersion < dbVersion || dirty {
		subLogger.Error().Msg("migration not attempted")
		sentry.CaptureMessage(fmt.Sprintf(
			"migration not attempted, dirty: %t; code version: %d; db version: %d",
			dirty, codeVersion, dbVersion))
		return nil
	}

	if err := m.Migrate(codeVersion); err != nil && err != migrate.ErrNoChange {
		subLogger.Error().Err(err).Msg("migration failed")
		return err
	}

	return nil
}

// RollbackTxAndHandle rolls back tx, reporting unexpected failures to sentry.
func (pg *Postgres) RollbackTxAndHandle(tx *sqlx.Tx) error {
	err := tx.Rollback()
	if err != nil && err != sql.ErrTxDone {
		sentry.CaptureMessage(err.Error())
	}
	return err
}

// RollbackTx rolls back tx, for use with defer.
func (pg *Postgres) RollbackTx(tx *sqlx.Tx) {
	_ = pg.RollbackTxAndHandle(tx)
}

// BeginTx starts a transaction.
func (pg *Postgres) BeginTx() (*sqlx.Tx, error) {
	return pg.RawDB().Beginx()
}
