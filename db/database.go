// Package db persists routing table snapshots to sqlite.
//
// Persistence lives outside the discovery core: the CLI drives
// Snapshot() into the database on a timer and re-seeds the table from
// stored rows at startup.
package db

import (
	"embed"
	"fmt"
	"sync/atomic"

	_ "github.com/glebarez/go-sqlite"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Database wraps the sqlite handle used for snapshot persistence.
type Database struct {
	db     *sqlx.DB
	logger logrus.FieldLogger

	queryCount atomic.Int64
}

// NewDatabase opens (or creates) the database at path and applies
// pending schema migrations. Use ":memory:" for an ephemeral database.
func NewDatabase(path string, logger logrus.FieldLogger) (*Database, error) {
	if logger == nil {
		logger = logrus.StandardLogger().WithField("module", "db")
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("db: open %q: %w", path, err)
	}
	// sqlite handles one writer; serialize all access
	db.SetMaxOpenConns(1)

	goose.SetBaseFS(schemaFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("db: set dialect: %w", err)
	}
	if err := goose.Up(db.DB, "schema"); err != nil {
		db.Close()
		return nil, fmt.Errorf("db: migrate: %w", err)
	}

	logger.WithField("path", path).Debug("db: opened")
	return &Database{db: db, logger: logger}, nil
}

// Close closes the database handle.
func (d *Database) Close() error {
	return d.db.Close()
}

// RunTransaction executes fn inside a transaction, committing on nil
// and rolling back on error.
func (d *Database) RunTransaction(fn func(tx *sqlx.Tx) error) error {
	tx, err := d.db.Beginx()
	if err != nil {
		return fmt.Errorf("db: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			d.logger.WithError(rbErr).Warn("db: rollback failed")
		}
		return err
	}
	return tx.Commit()
}

// QueryCount returns the number of queries executed, for the status
// page.
func (d *Database) QueryCount() int64 {
	return d.queryCount.Load()
}

func (d *Database) trackQuery() {
	d.queryCount.Add(1)
}
