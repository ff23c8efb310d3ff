package dbtest

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresImage is the image StartPostgres runs.
const PostgresImage = "postgres:16-alpine"

// StartPostgres runs a disposable PostgreSQL container and returns its
// connection string and a function that removes it.
func StartPostgres(ctx context.Context) (string, func(), error) {
	container, err := postgres.Run(ctx,
		PostgresImage,
		postgres.WithDatabase("dblayer_test"),
		postgres.WithUsername("dblayer"),
		postgres.WithPassword("dblayer"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return "", nil, fmt.Errorf("starting postgres container: %w", err)
	}

	terminate := func() {
		terminateCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := testcontainers.TerminateContainer(container, testcontainers.StopContext(terminateCtx)); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to terminate container: %s\n", err)
		}
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		terminate()
		return "", nil, fmt.Errorf("reading container connection string: %w", err)
	}
	return connStr, terminate, nil
}

// Main is a TestMain body. When DATABASE_URL is unset it starts a container
// and exports its connection string for the duration of the run.
//
//	func TestMain(m *testing.M) { dbtest.Main(m) }
func Main(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	if os.Getenv(EnvDatabaseURL) == "" {
		connStr, terminate, err := StartPostgres(context.Background())
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		defer terminate()
		if err := os.Setenv(EnvDatabaseURL, connStr); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}
	defer Close()
	return m.Run()
}
