// Package db opens the SQLite run ledger and keeps its schema current.
package db

import (
	"database/sql"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/errors"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/logger"
)

// SQLiteBusyTimeoutMS is how long a connection waits on a locked database.
const SQLiteBusyTimeoutMS = 5000

var pragmas = []struct {
	stmt string
	what string
}{
	// Concurrent reads (dkg history) while a run writes
	{"PRAGMA journal_mode = WAL", "enable WAL mode"},
	{"PRAGMA foreign_keys = ON", "enable foreign keys"},
	{"PRAGMA busy_timeout = " + strconv.Itoa(SQLiteBusyTimeoutMS), "set busy timeout"},
}

// Open opens a SQLite database at path.
// If l is provided, logs database operations; otherwise operates silently.
func Open(path string, l *zap.SugaredLogger) (*sql.DB, error) {
	if l != nil {
		l.Debugw("Opening database", logger.FieldFile, path)
	}
	// Per-connection settings go in the DSN so every pooled connection gets them
	dsn := path + "?_foreign_keys=on&_busy_timeout=" + strconv.Itoa(SQLiteBusyTimeoutMS)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	for _, p := range pragmas {
		if _, err := db.Exec(p.stmt); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "failed to %s", p.what)
		}
	}

	if l != nil {
		l.Infow("Database opened",
			logger.FieldFile, path,
			"wal_mode", true,
			"foreign_keys", true,
		)
	}
	return db, nil
}

// OpenWithMigrations opens path and applies pending migrations.
func OpenWithMigrations(path string, l *zap.SugaredLogger) (*sql.DB, error) {
	db, err := Open(path, l)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db, l); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to migrate %s", path)
	}
	return db, nil
}
