package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/sigjitter/internal/errors"
	"codeberg.org/mutker/sigjitter/internal/logger"
	"codeberg.org/mutker/sigjitter/internal/report"
	"github.com/mattn/go-sqlite3"
)

type repository struct {
	db     *sql.DB
	logger logger.Logger
	cfg    Config
	mu     sync.Mutex
}

func NewRepository(cfg Config, log logger.Logger) (Repository, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	// Ensure the directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	if err := ValidateAndUpdateSchema(db, cfg.DBPath, cfg.BackupOnMigrate, log); err != nil {
		db.Close()
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "schema_version",
			Error: err.Error(),
		})
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Msg("Results repository initialized")

	return &repository{
		db:     db,
		logger: log,
		cfg:    cfg,
	}, nil
}

func (r *repository) Insert(ctx context.Context, rep *report.RunReport) error {
	errFactory := errors.New()

	times, err := json.Marshal(rep.Times())
	if err != nil {
		return errFactory.Wrap(ErrInvalidReport, err)
	}
	states, err := json.Marshal(rep.States())
	if err != nil {
		return errFactory.Wrap(ErrInvalidReport, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to begin transaction")
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	if _, err := tx.ExecContext(ctx, insertRunSQL,
		rep.UUID(),
		rep.Timestamp().UnixNano(),
		rep.Name(),
		string(rep.Kind()),
		boolToInt(rep.Passed()),
		string(times),
		string(states),
		rep.Log(),
	); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.logger.Error().Err(rbErr).Msg("Failed to roll back transaction")
		}
		var sqlErr sqlite3.Error
		if errors.As(err, &sqlErr) && sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return errFactory.WithData(ErrDuplicateRun, struct {
				UUID string
				Name string
			}{
				UUID: rep.UUID(),
				Name: rep.Name(),
			})
		}
		r.logger.Error().Err(err).Msg("Failed to execute insert")
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	if err := tx.Commit(); err != nil {
		r.logger.Error().Err(err).Msg("Failed to commit transaction")
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	r.logger.Debug().
		Str("uuid", rep.UUID()).
		Str("name", rep.Name()).
		Msg("Recorded run")

	return nil
}

func (r *repository) Batches(ctx context.Context) ([]Batch, error) {
	errFactory := errors.New()

	rows, err := r.db.QueryContext(ctx, selectBatchesSQL)
	if err != nil {
		return nil, errFactory.Wrap(ErrQueryFailed, err)
	}
	defer rows.Close()

	var out []Batch
	for rows.Next() {
		var (
			b      Batch
			ts     int64
			passed int
		)
		if err := rows.Scan(&b.UUID, &ts, &b.Runs, &passed); err != nil {
			return nil, errFactory.Wrap(ErrQueryFailed, err)
		}
		b.Timestamp = time.Unix(0, ts).UTC()
		b.Passed = passed == 1
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrQueryFailed, err)
	}

	return out, nil
}

func (r *repository) Runs(ctx context.Context, uuid string) ([]*report.RunReport, error) {
	errFactory := errors.New()

	rows, err := r.db.QueryContext(ctx, selectRunsSQL, uuid)
	if err != nil {
		return nil, errFactory.Wrap(ErrQueryFailed, err)
	}
	defer rows.Close()

	var out []*report.RunReport
	for rows.Next() {
		rep, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrQueryFailed, err)
	}

	return out, nil
}

func (r *repository) Run(ctx context.Context, uuid, name string) (*report.RunReport, error) {
	rep, err := scanRun(r.db.QueryRowContext(ctx, selectRunSQL, uuid, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.New().WithData(ErrRunNotFound, struct {
			UUID string
			Name string
		}{
			UUID: uuid,
			Name: name,
		})
	}
	return rep, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*report.RunReport, error) {
	errFactory := errors.New()

	var (
		meta          report.Meta
		ts            int64
		kind          string
		passed        int
		times, states string
		log           string
		decodedTimes  []float64
		decodedStates []int
	)
	if err := s.Scan(&meta.UUID, &ts, &meta.Name, &kind, &passed, &times, &states, &log); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errFactory.Wrap(ErrQueryFailed, err)
	}

	if err := json.Unmarshal([]byte(times), &decodedTimes); err != nil {
		return nil, errFactory.Wrap(ErrQueryFailed, err)
	}
	if err := json.Unmarshal([]byte(states), &decodedStates); err != nil {
		return nil, errFactory.Wrap(ErrQueryFailed, err)
	}
	meta.Timestamp = time.Unix(0, ts).UTC()

	return report.Restore(meta, report.Kind(kind), passed == 1, decodedTimes, decodedStates, log), nil
}

func (r *repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Checkpoint WAL and cleanup on close
	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "checkpoint_wal",
			Error: err.Error(),
		})
	}

	if err := r.db.Close(); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	r.logger.Info().Msg("Results repository closed gracefully")

	return nil
}
