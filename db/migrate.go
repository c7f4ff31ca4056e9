package db

import (
	"database/sql"
	"embed"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/errors"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/logger"
)

//go:embed sqlite/migrations/*.sql
var migrations embed.FS

const migrationsDir = "sqlite/migrations"

// Migrate runs all pending migrations, in file name order.
// If l is provided, logs migration progress; otherwise operates silently.
func Migrate(db *sql.DB, l *zap.SugaredLogger) error {
	entries, err := migrations.ReadDir(migrationsDir)
	if err != nil {
		return errors.Wrap(err, "read migrations")
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	applied := 0
	for _, filename := range files {
		version := strings.Split(filename, "_")[0]

		// schema_migrations is created by 000
		var exists bool
		err := db.QueryRow("SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)", version).Scan(&exists)
		if err != nil {
			if version != "000" {
				return errors.Newf("schema_migrations table missing, but migration is not 000: %s", filename)
			}
		} else if exists {
			if l != nil {
				l.Debugw("Skipping migration (already applied)", "migration", filename)
			}
			continue
		}

		stmts, err := migrations.ReadFile(path.Join(migrationsDir, filename))
		if err != nil {
			return errors.Wrapf(err, "read %s", filename)
		}
		if l != nil {
			l.Infow("Applying migration", "migration", filename, "version", version)
		}
		if err := apply(db, version, string(stmts)); err != nil {
			return errors.Wrapf(err, "apply %s", filename)
		}
		applied++
	}

	if l != nil {
		l.Debugw("Migrations complete", "total_migrations", len(files), logger.FieldCount, applied)
	}
	return nil
}

func apply(db *sql.DB, version, stmts string) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	if _, err := tx.Exec(stmts); err != nil {
		_ = tx.Rollback()
		return errors.Wrap(err, "execute")
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
		_ = tx.Rollback()
		return errors.Wrap(err, "record")
	}
	return errors.Wrap(tx.Commit(), "commit")
}
