// Package db provides Postgres helpers for bulk copy and score publishing.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/catchment-cli/internal/resilience"
)

// Pool is the subset of *pgxpool.Pool used by this package. pgxmock pools
// satisfy it in tests.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

var _ Pool = (*pgxpool.Pool)(nil)

// Connect opens a pgx pool and verifies it with a ping, retrying while the
// server is unreachable.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, eris.New("db: database url is empty")
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "db: connect")
	}

	cfg := resilience.DefaultRetryConfig()
	cfg.OnRetry = resilience.RetryLogger("db", "ping")
	if err := resilience.Do(ctx, cfg, pool.Ping); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "db: ping")
	}
	return pool, nil
}
