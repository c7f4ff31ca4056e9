package writer

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/dataset"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/db"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/errors"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/graph"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/logger"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/pipeline"
)

// Run is one recorded pipeline run.
type Run struct {
	ID           string
	StartedAt    time.Time
	FinishedAt   *time.Time
	Datasets     int
	Succeeded    int
	Failed       int
	NotSupported int
	Writes       int
	WriteErrors  int
}

// DatasetWrite is one dataset written during a run.
type DatasetWrite struct {
	RunID     string
	Dataset   string
	Triples   int
	WrittenAt time.Time
}

// Ledger records runs and the datasets they wrote in SQLite.
type Ledger struct {
	db       *sql.DB
	fallback string // run ID for writes outside a pipeline run
	now      func() time.Time
	logger   *zap.SugaredLogger
}

// OpenLedger opens (and migrates) the ledger database at path.
func OpenLedger(path string, l *zap.SugaredLogger) (*Ledger, error) {
	if l == nil {
		l = logger.ComponentLogger("writer.ledger")
	}
	conn, err := db.OpenWithMigrations(path, l)
	if err != nil {
		return nil, err
	}
	return NewLedger(conn, l), nil
}

// NewLedger wraps an already migrated database.
func NewLedger(conn *sql.DB, l *zap.SugaredLogger) *Ledger {
	if l == nil {
		l = logger.ComponentLogger("writer.ledger")
	}
	return &Ledger{db: conn, fallback: uuid.NewString(), now: time.Now, logger: l}
}

func (l *Ledger) Name() string {
	return "ledger"
}

// Write records that g was written for ds in the current run.
func (l *Ledger) Write(ctx context.Context, ds *dataset.Dataset, g *graph.Graph) error {
	runID := pipeline.RunID(ctx)
	if runID == "" {
		runID = l.fallback
	}
	now := l.now().UTC()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return l.wrap(err, "begin ledger write")
	}
	if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO runs (id, started_at) VALUES (?, ?)", runID, now); err != nil {
		_ = tx.Rollback()
		return l.wrap(err, "record run")
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO dataset_writes (run_id, dataset, triples, written_at) VALUES (?, ?, ?, ?)",
		runID, ds.IRI, g.Len(), now,
	); err != nil {
		_ = tx.Rollback()
		return l.wrap(err, "record dataset write")
	}
	return l.wrap(tx.Commit(), "commit ledger write")
}

// RecordRun stores the totals of a finished run.
func (l *Ledger) RecordRun(ctx context.Context, s *pipeline.Summary) error {
	finished := s.Started.Add(s.Duration).UTC()
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, finished_at, datasets, succeeded, failed, not_supported, writes, write_errors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			started_at = excluded.started_at,
			finished_at = excluded.finished_at,
			datasets = excluded.datasets,
			succeeded = excluded.succeeded,
			failed = excluded.failed,
			not_supported = excluded.not_supported,
			writes = excluded.writes,
			write_errors = excluded.write_errors`,
		s.RunID, s.Started.UTC(), finished, s.Datasets, s.Succeeded, s.Failed, s.NotSupported, s.Writes, s.WriteErrors,
	)
	if err != nil {
		return l.wrap(err, "record run summary")
	}
	l.logger.Debugw("Recorded run", logger.FieldRunID, s.RunID)
	return nil
}

// Runs returns the most recent runs, newest first.
func (l *Ledger) Runs(ctx context.Context, limit int) ([]Run, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, datasets, succeeded, failed, not_supported, writes, write_errors
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, l.wrap(err, "query runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.StartedAt, &finished, &r.Datasets, &r.Succeeded,
			&r.Failed, &r.NotSupported, &r.Writes, &r.WriteErrors); err != nil {
			return nil, l.wrap(err, "scan run")
		}
		if finished.Valid {
			r.FinishedAt = &finished.Time
		}
		runs = append(runs, r)
	}
	return runs, l.wrap(rows.Err(), "iterate runs")
}

// Writes returns the datasets written during run, in write order.
func (l *Ledger) Writes(ctx context.Context, runID string) ([]DatasetWrite, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT run_id, dataset, triples, written_at
		FROM dataset_writes
		WHERE run_id = ?
		ORDER BY id`, runID)
	if err != nil {
		return nil, l.wrap(err, "query dataset writes")
	}
	defer rows.Close()

	var writes []DatasetWrite
	for rows.Next() {
		var w DatasetWrite
		if err := rows.Scan(&w.RunID, &w.Dataset, &w.Triples, &w.WrittenAt); err != nil {
			return nil, l.wrap(err, "scan dataset write")
		}
		writes = append(writes, w)
	}
	return writes, l.wrap(rows.Err(), "iterate dataset writes")
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) wrap(err error, what string) error {
	if err == nil {
		return nil
	}
	if db.IsDatabaseClosed(err) {
		return errors.Mark(errors.Wrap(err, what), db.ErrDatabaseClosed)
	}
	return errors.Wrap(err, what)
}
