package database

import (
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5"
	tern "github.com/jackc/tern/v2/migrate"
	"github.com/rs/zerolog"
	"github.com/uwececa/dblayer/internal/sqlerr"
)

// The binary carries its migrations; nothing is read from disk at runtime.
//
//go:embed migrations/*.sql
var migrations embed.FS

const (
	// VersionTable is where tern stores the current schema version.
	VersionTable = "schema_version"
	// LedgerTable records each applied migration with its checksum.
	LedgerTable = "schema_migrations"

	// migrateLockID serialises concurrent Migrate calls across processes.
	// It differs from tern's own lock so both can be held by one session.
	migrateLockID int64 = 7_301_402_199_417_025
)

// Result reports the schema version before and after Migrate.
type Result struct {
	From int32
	To   int32
}

// Changed reports whether any migration was applied.
func (r Result) Changed() bool {
	return r.From != r.To
}

// AppliedMigration is one row of the migration ledger.
type AppliedMigration struct {
	Version   int32     `db:"version"`
	Name      string    `db:"name"`
	Checksum  string    `db:"checksum"`
	AppliedAt time.Time `db:"applied_at"`
}

// ChecksumMismatchError means a migration that was already applied has
// since been edited.
type ChecksumMismatchError struct {
	Version  int32
	Name     string
	Recorded string
	Current  string
}

// Error names the migration and both checksums.
func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("migration %d (%s) was modified after it was applied: recorded checksum %s, current %s",
		e.Version, e.Name, e.Recorded, e.Current)
}

// Migrations returns the embedded migration set.
func Migrations() fs.FS {
	sub, err := embeddedMigrations()
	if err != nil {
		panic(err)
	}
	return sub
}

func embeddedMigrations() (fs.FS, error) {
	subtree, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("retrieving database migrations subtree: %w", err)
	}
	return subtree, nil
}

// Checksum is the hex SHA-256 of a migration's rendered up SQL.
func Checksum(upSQL string) string {
	sum := sha256.Sum256([]byte(upSQL))
	return hex.EncodeToString(sum[:])
}

// Migrate brings the schema on conn up to the latest migration in fsys.
//
// Behavior:
//   - Take an advisory lock so concurrent callers apply each migration once
//   - Load migrations from fsys (tern naming: 001_name.sql)
//   - Verify the checksum of every already-applied migration
//   - Run the pending ones with tern, then record them in the ledger
//
// Every error is classified as sqlerr.MigrateError. Migrations that
// succeeded before a failure stay applied and recorded.
func Migrate(ctx context.Context, conn *pgx.Conn, fsys fs.FS, logger *zerolog.Logger) (Result, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	if _, err := conn.Exec(ctx, "select pg_advisory_lock($1)", migrateLockID); err != nil {
		return Result{}, migrationError(nil, fmt.Errorf("acquiring migration lock: %w", err))
	}
	defer func() {
		// The lock is session scoped; release it even if ctx is done.
		_, _ = conn.Exec(context.WithoutCancel(ctx), "select pg_advisory_unlock($1)", migrateLockID)
	}()

	m, err := tern.NewMigrator(ctx, conn, VersionTable)
	if err != nil {
		return Result{}, migrationError(nil, fmt.Errorf("constructing database migrator: %w", err))
	}
	if err := m.LoadMigrations(fsys); err != nil {
		return Result{}, migrationError(nil, fmt.Errorf("loading database migrations: %w", err))
	}
	if err := ensureTables(ctx, conn); err != nil {
		return Result{}, migrationError(nil, err)
	}

	from, err := m.GetCurrentVersion(ctx)
	if err != nil {
		return Result{}, migrationError(nil, fmt.Errorf("retrieving current database migration version: %w", err))
	}
	res := Result{From: from, To: from}

	if err := verifyApplied(ctx, conn, m.Migrations, from); err != nil {
		return res, err
	}

	m.OnStart = func(sequence int32, name, direction, _ string) {
		logger.Info().Int32("version", sequence).Str("name", name).Str("direction", direction).Msg("applying migration")
	}
	migrateErr := m.Migrate(ctx)

	// Record whatever tern got through, even after a failure.
	to, err := m.GetCurrentVersion(context.WithoutCancel(ctx))
	if err != nil {
		return res, migrationError(nil, errors.Join(migrateErr, fmt.Errorf("retrieving migrated version: %w", err)))
	}
	res.To = to

	if err := record(context.WithoutCancel(ctx), conn, m.Migrations, from, to); err != nil {
		return res, migrationError(nil, errors.Join(migrateErr, err))
	}

	if migrateErr != nil {
		return res, migrationError(pendingAt(m.Migrations, to), migrateErr)
	}

	if !res.Changed() {
		logger.Info().Msgf("database schema up to date, version %d", to)
	} else {
		logger.Info().Msgf("migrated database schema, from %d to %d", from, to)
	}
	return res, nil
}

// Applied lists the ledger in version order.
func Applied(ctx context.Context, ex Executor) ([]AppliedMigration, error) {
	rows, err := ex.Query(ctx, "select version, name, checksum, applied_at from "+LedgerTable+" order by version")
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[AppliedMigration])
}

func ensureTables(ctx context.Context, conn *pgx.Conn) error {
	_, err := conn.Exec(ctx, `
create table if not exists `+VersionTable+` (version int4 not null);
insert into `+VersionTable+` (version) select 0 where 0 = (select count(*) from `+VersionTable+`);
create table if not exists `+LedgerTable+` (
  version int4 primary key,
  name text not null,
  checksum text not null,
  applied_at timestamptz not null default now()
);`)
	if err != nil {
		return fmt.Errorf("ensuring migration tables: %w", err)
	}
	return nil
}

// verifyApplied compares each applied migration against the ledger.
// Versions applied before the ledger existed are backfilled.
func verifyApplied(ctx context.Context, conn *pgx.Conn, ms []*tern.Migration, current int32) error {
	for _, mig := range ms {
		if mig.Sequence > current {
			break
		}
		sum := Checksum(mig.UpSQL)

		var recorded string
		err := conn.QueryRow(ctx, "select checksum from "+LedgerTable+" where version = $1", mig.Sequence).Scan(&recorded)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			if err := insertLedger(ctx, conn, mig, sum); err != nil {
				return migrationError(mig, err)
			}
		case err != nil:
			return migrationError(mig, fmt.Errorf("reading migration ledger: %w", err))
		case recorded != sum:
			return migrationError(mig, &ChecksumMismatchError{
				Version:  mig.Sequence,
				Name:     mig.Name,
				Recorded: recorded,
				Current:  sum,
			})
		}
	}
	return nil
}

func record(ctx context.Context, conn *pgx.Conn, ms []*tern.Migration, from, to int32) error {
	for _, mig := range ms {
		if mig.Sequence <= from || mig.Sequence > to {
			continue
		}
		if err := insertLedger(ctx, conn, mig, Checksum(mig.UpSQL)); err != nil {
			return err
		}
	}
	return nil
}

func insertLedger(ctx context.Context, conn *pgx.Conn, mig *tern.Migration, sum string) error {
	_, err := conn.Exec(ctx,
		"insert into "+LedgerTable+" (version, name, checksum) values ($1, $2, $3) on conflict (version) do nothing",
		mig.Sequence, mig.Name, sum)
	if err != nil {
		return fmt.Errorf("recording migration %d: %w", mig.Sequence, err)
	}
	return nil
}

// pendingAt is the migration tern would apply next from version v.
func pendingAt(ms []*tern.Migration, v int32) *tern.Migration {
	if v >= 0 && int(v) < len(ms) {
		return ms[v]
	}
	return nil
}

func migrationError(mig *tern.Migration, err error) error {
	f := &sqlerr.MigrationFailure{Err: err}
	if mig != nil {
		f.Version = mig.Sequence
		f.Name = mig.Name
	}
	return sqlerr.FromMigration(f)
}
