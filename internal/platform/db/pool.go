package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

type PoolOptions struct {
	MaxConns int32
	MinConns int32
	// SlowQuery is the latency above which a query is logged at warn level.
	// Zero disables query logging.
	SlowQuery time.Duration
	Logger    zerolog.Logger
}

func NewPool(ctx context.Context, databaseURL string, opts PoolOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	cfg.MaxConns = opts.MaxConns
	cfg.MinConns = opts.MinConns
	if opts.SlowQuery > 0 {
		cfg.ConnConfig.Tracer = &queryLogger{logger: opts.Logger, slow: opts.SlowQuery}
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

type queryStartKey struct{}

type queryStart struct {
	at  time.Time
	sql string
}

// queryLogger is a pgx.QueryTracer reporting failed and slow queries.
type queryLogger struct {
	logger zerolog.Logger
	slow   time.Duration
}

func (q *queryLogger) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryStartKey{}, queryStart{at: time.Now(), sql: data.SQL})
}

func (q *queryLogger) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(queryStartKey{}).(queryStart)
	if !ok {
		return
	}
	elapsed := time.Since(start.at)
	switch {
	case data.Err != nil:
		q.logger.Debug().Err(data.Err).Str("sql", start.sql).Dur("latency", elapsed).Msg("query failed")
	case elapsed > q.slow:
		q.logger.Warn().Str("sql", start.sql).Dur("latency", elapsed).Str("tag", data.CommandTag.String()).Msg("slow query")
	}
}
