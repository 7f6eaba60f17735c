package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/sells-group/catchment-cli/internal/model"
)

// PublishConfig names the target table for published scores.
type PublishConfig struct {
	Schema string
	Table  string
	SRID   int
}

const scoresTempTable = "_tmp_publish_scores"

var scoreColumns = []string{"run_id", "dataset", "origin_id", "score", "geom_ewkb"}

// PublishScores upserts a run's composite scores into a PostGIS table keyed by
// (run_id, dataset, origin_id). Scores with coordinates carry a point geometry.
func PublishScores(ctx context.Context, pool Pool, cfg PublishConfig, runID string, scores []model.DatasetScore) (int64, error) {
	if len(scores) == 0 {
		return 0, nil
	}
	if cfg.Table == "" {
		return 0, eris.New("db: publish: no table specified")
	}
	if cfg.SRID <= 0 {
		cfg.SRID = 4326
	}

	rows := make([][]any, 0, len(scores))
	for _, s := range scores {
		g, err := EncodePoint(s.X, s.Y, cfg.SRID)
		if err != nil {
			return 0, err
		}
		rows = append(rows, []any{runID, s.Dataset, s.OriginID, s.Score, g})
	}

	target := qualified(cfg.Schema, cfg.Table)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: publish: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if cfg.Schema != "" {
		if _, err := tx.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{cfg.Schema}.Sanitize()); err != nil {
			return 0, eris.Wrapf(err, "db: publish: create schema %s", cfg.Schema)
		}
	}

	createSQL := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	run_id    TEXT NOT NULL,
	dataset   TEXT NOT NULL,
	origin_id TEXT NOT NULL,
	score     DOUBLE PRECISION NOT NULL,
	geom      geometry(Point, %d),
	PRIMARY KEY (run_id, dataset, origin_id)
)`, target, cfg.SRID)
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return 0, eris.Wrapf(err, "db: publish: create table %s", target)
	}

	tempSQL := fmt.Sprintf(
		"CREATE TEMP TABLE %s (run_id TEXT, dataset TEXT, origin_id TEXT, score DOUBLE PRECISION, geom_ewkb BYTEA) ON COMMIT DROP",
		pgx.Identifier{scoresTempTable}.Sanitize(),
	)
	if _, err := tx.Exec(ctx, tempSQL); err != nil {
		return 0, eris.Wrap(err, "db: publish: create temp table")
	}

	if _, err := CopyFrom(ctx, tx, scoresTempTable, scoreColumns, rows); err != nil {
		return 0, eris.Wrap(err, "db: publish")
	}

	upsertSQL := fmt.Sprintf(
		`INSERT INTO %s (run_id, dataset, origin_id, score, geom)
SELECT run_id, dataset, origin_id, score, ST_GeomFromEWKB(geom_ewkb) FROM %s
ON CONFLICT (run_id, dataset, origin_id) DO UPDATE SET score = EXCLUDED.score, geom = EXCLUDED.geom`,
		target, pgx.Identifier{scoresTempTable}.Sanitize(),
	)
	tag, err := tx.Exec(ctx, upsertSQL)
	if err != nil {
		return 0, eris.Wrapf(err, "db: publish: upsert into %s", target)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: publish: commit tx")
	}

	zap.L().Info("db: published scores",
		zap.String("table", target),
		zap.String("run_id", runID),
		zap.Int64("rows", tag.RowsAffected()),
	)
	return tag.RowsAffected(), nil
}

// EncodePoint returns EWKB bytes for a point, or nil when either coordinate
// is missing.
func EncodePoint(x, y *float64, srid int) ([]byte, error) {
	if x == nil || y == nil {
		return nil, nil
	}
	p := geom.NewPointFlat(geom.XY, []float64{*x, *y}).SetSRID(srid)
	data, err := ewkb.Marshal(p, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "db: encode point")
	}
	return data, nil
}

// qualified handles an optional schema, or a schema already embedded in the
// table name like "public.scores".
func qualified(schema, table string) string {
	if schema == "" {
		parts := strings.SplitN(table, ".", 2)
		if len(parts) == 2 {
			return pgx.Identifier{parts[0], parts[1]}.Sanitize()
		}
		return pgx.Identifier{table}.Sanitize()
	}
	return pgx.Identifier{schema, table}.Sanitize()
}
