package store

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/catchment-cli/internal/catchment"
	"github.com/sells-group/catchment-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	plan_path   TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	datasets    INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS run_thresholds (
	run_id               TEXT NOT NULL REFERENCES runs(id),
	dataset              TEXT NOT NULL,
	label                TEXT NOT NULL,
	threshold            REAL NOT NULL,
	retained_rows        INTEGER NOT NULL DEFAULT 0,
	origins              INTEGER NOT NULL DEFAULT 0,
	facilities           INTEGER NOT NULL DEFAULT 0,
	undefined_ratios     INTEGER NOT NULL DEFAULT 0,
	unmatched_origins    INTEGER NOT NULL DEFAULT 0,
	unmatched_facilities INTEGER NOT NULL DEFAULT 0,
	error                TEXT,
	PRIMARY KEY (run_id, dataset, label)
);

CREATE TABLE IF NOT EXISTS run_scores (
	run_id    TEXT NOT NULL REFERENCES runs(id),
	dataset   TEXT NOT NULL,
	origin_id TEXT NOT NULL,
	score     REAL NOT NULL,
	x         REAL,
	y         REAL,
	PRIMARY KEY (run_id, dataset, origin_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, planPath string, datasets int) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, plan_path, status, datasets, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, planPath, string(model.RunStatusRunning), datasets, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		PlanPath:  planPath,
		Status:    model.RunStatusRunning,
		Datasets:  datasets,
		CreatedAt: now,
	}, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, failed int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, failed = ?, finished_at = ? WHERE id = ?`,
		string(status), failed, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, plan_path, status, datasets, failed, created_at, finished_at FROM runs WHERE id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, plan_path, status, datasets, failed, created_at, finished_at FROM runs`
	var args []any
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

func (s *SQLiteStore) SaveThreshold(ctx context.Context, t model.ThresholdSummary) error {
	var errText sql.NullString
	if t.Error != "" {
		errText = sql.NullString{String: t.Error, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO run_thresholds
			(run_id, dataset, label, threshold, retained_rows, origins, facilities,
			 undefined_ratios, unmatched_origins, unmatched_facilities, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.RunID, t.Dataset, t.Label, t.Threshold, t.RetainedRows, t.Origins, t.Facilities,
		t.UndefinedRatios, t.UnmatchedOrigins, t.UnmatchedFacilities, errText,
	)
	return eris.Wrapf(err, "sqlite: save threshold %s/%s", t.Dataset, t.Label)
}

func (s *SQLiteStore) ListThresholds(ctx context.Context, runID string) ([]model.ThresholdSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, dataset, label, threshold, retained_rows, origins, facilities,
			undefined_ratios, unmatched_origins, unmatched_facilities, error
		 FROM run_thresholds WHERE run_id = ? ORDER BY dataset, threshold`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list thresholds")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ThresholdSummary
	for rows.Next() {
		var t model.ThresholdSummary
		var errText sql.NullString
		if err := rows.Scan(&t.RunID, &t.Dataset, &t.Label, &t.Threshold, &t.RetainedRows, &t.Origins,
			&t.Facilities, &t.UndefinedRatios, &t.UnmatchedOrigins, &t.UnmatchedFacilities, &errText); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan threshold")
		}
		t.Error = errText.String
		out = append(out, t)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate thresholds")
}

// SaveScores replaces the stored scores of each dataset present in scores.
func (s *SQLiteStore) SaveScores(ctx context.Context, runID string, scores []model.DatasetScore) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin scores tx")
	}
	defer tx.Rollback() //nolint:errcheck

	cleared := make(map[string]bool)
	for _, sc := range scores {
		if cleared[sc.Dataset] {
			continue
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM run_scores WHERE run_id = ? AND dataset = ?`, runID, sc.Dataset); err != nil {
			return eris.Wrap(err, "sqlite: clear scores")
		}
		cleared[sc.Dataset] = true
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO run_scores (run_id, dataset, origin_id, score, x, y) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare scores insert")
	}
	defer stmt.Close() //nolint:errcheck

	for _, sc := range scores {
		if _, err := stmt.ExecContext(ctx, runID, sc.Dataset, sc.OriginID, sc.Score, nullFloat(sc.X), nullFloat(sc.Y)); err != nil {
			return eris.Wrapf(err, "sqlite: insert score %s/%s", sc.Dataset, sc.OriginID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit scores")
}

func (s *SQLiteStore) ListScores(ctx context.Context, runID, dataset string) ([]model.DatasetScore, error) {
	query := `SELECT dataset, origin_id, score, x, y FROM run_scores WHERE run_id = ?`
	args := []any{runID}
	if dataset != "" {
		query += ` AND dataset = ?`
		args = append(args, dataset)
	}
	query += ` ORDER BY dataset`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list scores")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.DatasetScore
	for rows.Next() {
		var sc model.DatasetScore
		var x, y sql.NullFloat64
		if err := rows.Scan(&sc.Dataset, &sc.OriginID, &sc.Score, &x, &y); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan score")
		}
		if x.Valid && y.Valid {
			sc.X, sc.Y = &x.Float64, &y.Float64
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate scores")
	}
	// Origins follow the numeric-aware order of the exported tables.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Dataset != out[j].Dataset {
			return out[i].Dataset < out[j].Dataset
		}
		return catchment.LessID(out[i].OriginID, out[j].OriginID)
	})
	return out, nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var status string
	var finished sql.NullTime
	if err := row.Scan(&r.ID, &r.PlanPath, &status, &r.Datasets, &r.Failed, &r.CreatedAt, &finished); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return &r, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
