// Package database contains the logic for establishing connections to the
// PostgreSQL database and handing out transactions.
//
// It handles:
//   - creating a pgx connection pool (pgxpool) from a connection string
//   - applying pending schema migrations before the pool is returned
//   - wiring query tracing/logging (pgx tracelog, optional New Relic)
//   - classifying every driver error through sqlerr
//
// Code that only needs to run queries should accept an Executor so it works
// the same against the pool and against an open transaction.
package database

import (
	"context"
	"fmt"
	"io/fs"
	"math"
	"time"

	pgxzero "github.com/jackc/pgx-zerolog"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/newrelic/go-agent/v3/integrations/nrpgx5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/uwececa/dblayer/internal/config"
	loggerConfig "github.com/uwececa/dblayer/internal/logger"
	"github.com/uwececa/dblayer/internal/sqlerr"
)

// DatabasePingTimeout is the default time to wait for the initial ping
// before the database is considered unreachable.
const DatabasePingTimeout = 10 * time.Second

// Executor is anything queries can be run against: the pool or an open
// transaction. Every error it returns, including those surfaced later by
// Row.Scan or Rows.Err, is already classified.
type Executor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (*Tx, error)
}

// DB is the subset of *pgxpool.Pool the Pool relies on. It is satisfied by
// pgxmock pools as well, which is what unit tests use.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

var (
	_ Executor = (*Pool)(nil)
	_ Executor = (*Tx)(nil)
	_ DB       = (*pgxpool.Pool)(nil)
)

// Pool is the shared handle to the connection pool. It is safe for
// concurrent use; hand the same *Pool to every caller.
type Pool struct {
	db     DB
	pgx    *pgxpool.Pool // nil when wrapping a test double
	log    *zerolog.Logger
	errors *prometheus.CounterVec
	unreg  func()
}

// NewPool wraps an existing DB. No migrations are run; use Connect for
// that.
func NewPool(db DB, logger *zerolog.Logger) *Pool {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Pool{db: db, log: logger}
}

// Option customises Connect.
type Option func(*options)

type options struct {
	log         *zerolog.Logger
	migrations  fs.FS
	settings    *config.DatabaseConfig
	tracers     []pgx.QueryTracer
	registerer  prometheus.Registerer
	pingTimeout time.Duration
}

// WithLogger sets the lifecycle logger. nil keeps logging disabled.
func WithLogger(logger *zerolog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.log = logger
		}
	}
}

// WithMigrations replaces the embedded migration set. fsys must contain the
// tern-format files at its root.
func WithMigrations(fsys fs.FS) Option {
	return func(o *options) { o.migrations = fsys }
}

// WithPoolSettings applies connection limits and lifetimes from cfg.
// Zero values keep pgx's defaults.
func WithPoolSettings(cfg config.DatabaseConfig) Option {
	return func(o *options) { o.settings = &cfg }
}

// WithTracer adds a pgx tracer. Several tracers are chained in the order
// they were added.
func WithTracer(tracer pgx.QueryTracer) Option {
	return func(o *options) { o.tracers = append(o.tracers, tracer) }
}

// WithMetrics registers pool and error metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithPingTimeout overrides DatabasePingTimeout.
func WithPingTimeout(d time.Duration) Option {
	return func(o *options) { o.pingTimeout = d }
}

// Connect establishes the pool and applies every pending migration before
// returning it. The returned pool is always fully migrated.
//
// Errors are classified: a bad connection string or an unreachable server
// is sqlerr.Unknown, anything that fails while migrating is
// sqlerr.MigrateError.
func Connect(ctx context.Context, connString string, opts ...Option) (*Pool, error) {
	nop := zerolog.Nop()
	o := &options{log: &nop, pingTimeout: DatabasePingTimeout}
	for _, opt := range opts {
		opt(o)
	}
	if o.migrations == nil {
		sub, err := embeddedMigrations()
		if err != nil {
			return nil, migrationError(nil, err)
		}
		o.migrations = sub
	}

	pgxPoolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, sqlerr.Classify(fmt.Errorf("failed to parse pgx pool config: %w", err))
	}
	applySettings(pgxPoolConfig, o.settings)
	if tracer := chainTracers(o.tracers); tracer != nil {
		pgxPoolConfig.ConnConfig.Tracer = tracer
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxPoolConfig)
	if err != nil {
		return nil, sqlerr.Classify(fmt.Errorf("failed to create pgx pool: %w", err))
	}

	pingCtx, cancel := context.WithTimeout(ctx, o.pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, sqlerr.Classify(fmt.Errorf("failed to ping database: %w", err))
	}

	if err := migratePool(ctx, pool, o); err != nil {
		pool.Close()
		return nil, err
	}

	p := &Pool{db: pool, pgx: pool, log: o.log}
	if o.registerer != nil {
		if err := p.RegisterMetrics(o.registerer); err != nil {
			o.log.Warn().Err(err).Msg("database metrics not registered, continuing without them")
		}
	}

	o.log.Info().
		Str("host", pgxPoolConfig.ConnConfig.Host).
		Str("database", pgxPoolConfig.ConnConfig.Database).
		Int32("max_conns", pgxPoolConfig.MaxConns).
		Msg("connected to the database")

	return p, nil
}

// migratePool runs migrations on a single connection borrowed from pool.
func migratePool(ctx context.Context, pool *pgxpool.Pool, o *options) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return sqlerr.Classify(fmt.Errorf("failed to acquire migration connection: %w", err))
	}
	defer conn.Release()

	_, err = Migrate(ctx, conn.Conn(), o.migrations, o.log)
	return err
}

// New creates the application pool from config, with instrumentation.
//
// Behavior:
//   - Build the DSN from config
//   - Attach the New Relic tracer if New Relic is running
//   - In development, attach the SQL tracelogger (chained with New Relic)
//   - Log slow queries above the configured threshold
//   - Connect, which pings and migrates
//
// extra options are applied last.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger, loggerService *loggerConfig.LoggerService, extra ...Option) (*Pool, error) {
	opts := []Option{
		WithLogger(loggerConfig.WithComponent(logger, "database")),
		WithPoolSettings(cfg.Database),
	}

	if loggerService.GetApplication() != nil {
		opts = append(opts, WithTracer(nrpgx5.NewTracer()))
	}

	if cfg.Primary.Env == config.Development.String() || cfg.Primary.Env == "local" {
		globalLevel := logger.GetLevel()
		pgxLogger := loggerConfig.NewPgxLogger(globalLevel)
		opts = append(opts, WithTracer(&tracelog.TraceLog{
			Logger:   pgxzero.NewLogger(pgxLogger),
			LogLevel: tracelog.LogLevel(loggerConfig.GetPgxTraceLogLevel(globalLevel)),
		}))
	}

	if cfg.Observability != nil && cfg.Observability.Logging.SlowQueryThreshold > 0 {
		opts = append(opts, WithTracer(newSlowQueryTracer(logger, cfg.Observability.Logging.SlowQueryThreshold)))
	}

	return Connect(ctx, cfg.Database.DSN(), append(opts, extra...)...)
}

func applySettings(poolCfg *pgxpool.Config, cfg *config.DatabaseConfig) {
	if cfg == nil {
		return
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = clampInt32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolCfg.MinConns = min(clampInt32(cfg.MaxIdleConns), poolCfg.MaxConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	if cfg.ConnMaxIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime
	}
}

func clampInt32(v int) int32 {
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(v)
}

// Exec runs sql on any pooled connection.
func (p *Pool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	tag, err := p.db.Exec(ctx, sql, args...)
	return tag, p.classify(err)
}

// Query runs sql on any pooled connection. The returned rows classify
// errors from Scan and Err.
func (p *Pool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	rs, err := p.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, p.classify(err)
	}
	return &rows{Rows: rs, classify: p.classify}, nil
}

// QueryRow runs sql expecting at most one row. A missing row surfaces from
// Scan as sqlerr.RowNotFound.
func (p *Pool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return &row{row: p.db.QueryRow(ctx, sql, args...), classify: p.classify}
}

// Begin reserves a connection and opens a transaction on it, waiting for a
// free connection if the pool is exhausted.
func (p *Pool) Begin(ctx context.Context) (*Tx, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return nil, p.classify(err)
	}
	return &Tx{tx: tx, classify: p.classify}, nil
}

// Ping checks that the database is reachable.
func (p *Pool) Ping(ctx context.Context) error {
	return p.classify(p.db.Ping(ctx))
}

// Stat returns pool statistics. It is nil for pools built with NewPool.
func (p *Pool) Stat() *pgxpool.Stat {
	if p.pgx == nil {
		return nil
	}
	return p.pgx.Stat()
}

// Close releases every connection. The pool must not be used afterwards.
func (p *Pool) Close() {
	if p.unreg != nil {
		p.unreg()
	}
	p.log.Info().Msg("closing database connection pool")
	p.db.Close()
}

// classify runs err through the taxonomy and counts the result.
func (p *Pool) classify(err error) error {
	err = sqlerr.Classify(err)
	if err != nil && p.errors != nil {
		p.errors.WithLabelValues(sqlerr.KindOf(err).String()).Inc()
	}
	return err
}

type row struct {
	row      pgx.Row
	classify func(error) error
}

func (r *row) Scan(dest ...any) error {
	return r.classify(r.row.Scan(dest...))
}

type rows struct {
	pgx.Rows
	classify func(error) error
}

func (r *rows) Scan(dest ...any) error {
	return r.classify(r.Rows.Scan(dest...))
}

func (r *rows) Err() error {
	return r.classify(r.Rows.Err())
}
