// Package dbtest hands tests a transaction on a shared, migrated pool.
//
// The pool is created on first use from the connection string in an
// environment variable and then reused by every test in the process. Each
// call to Tx starts a new transaction that is rolled back when the test
// ends, so tests must never commit.
//
//	func TestCreateUser(t *testing.T) {
//		tx := dbtest.Tx(t)
//		_, err := tx.Exec(t.Context(), "insert into users (email, password) values ($1, $2)", "a@b.c", "x")
//		require.NoError(t, err)
//	}
package dbtest

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/uwececa/dblayer/internal/database"
)

// EnvDatabaseURL names the variable holding the test connection string.
const EnvDatabaseURL = "DATABASE_URL"

// initTimeout bounds the one-time connect and migrate.
const initTimeout = 2 * time.Minute

// Connector opens a migrated pool. database.Connect is the default.
type Connector func(ctx context.Context, connString string, opts ...database.Option) (*database.Pool, error)

// Option customises a Harness.
type Option func(*Harness)

// WithConnector replaces database.Connect.
func WithConnector(c Connector) Option {
	return func(h *Harness) { h.connect = c }
}

// WithConnectOptions forwards opts to the connector.
func WithConnectOptions(opts ...database.Option) Option {
	return func(h *Harness) { h.opts = append(h.opts, opts...) }
}

// Harness owns one lazily created pool.
type Harness struct {
	envVar  string
	connect Connector
	opts    []database.Option

	once sync.Once
	pool *database.Pool
	err  error
}

// New returns a harness reading its connection string from envVar.
func New(envVar string, opts ...Option) *Harness {
	h := &Harness{envVar: envVar, connect: database.Connect}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Pool returns the shared pool, creating it on first call. Concurrent first
// callers wait for the one initialization. A missing variable or a failed
// connect fails t immediately, and every later call fails the same way.
func (h *Harness) Pool(t testing.TB) *database.Pool {
	t.Helper()
	h.once.Do(h.init)
	require.NoError(t, h.err, "test database unavailable")
	return h.pool
}

func (h *Harness) init() {
	url, ok := os.LookupEnv(h.envVar)
	if !ok || url == "" {
		h.err = fmt.Errorf("%s must be set to the test database connection string", h.envVar)
		return
	}

	// The pool outlives the test that created it, so it must not use that
	// test's context.
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	h.pool, h.err = h.connect(ctx, url, h.opts...)
}

// Tx begins a new transaction on the shared pool. It is rolled back when t
// and its subtests finish.
func (h *Harness) Tx(t testing.TB) *database.Tx {
	t.Helper()
	tx, err := h.Pool(t).Begin(context.Background())
	require.NoError(t, err, "begin test transaction")
	t.Cleanup(func() {
		if err := tx.Rollback(context.Background()); err != nil {
			t.Logf("rolling back test transaction: %v", err)
		}
	})
	return tx
}

// Close closes the pool if it was created. Call it from TestMain after
// m.Run.
func (h *Harness) Close() {
	if h.pool != nil {
		h.pool.Close()
	}
}

var defaultHarness = New(EnvDatabaseURL)

// Pool returns the process-wide pool configured by DATABASE_URL.
func Pool(t testing.TB) *database.Pool {
	t.Helper()
	return defaultHarness.Pool(t)
}

// Tx returns a new transaction on the process-wide pool.
func Tx(t testing.TB) *database.Tx {
	t.Helper()
	return defaultHarness.Tx(t)
}

// Close closes the process-wide pool.
func Close() {
	defaultHarness.Close()
}
