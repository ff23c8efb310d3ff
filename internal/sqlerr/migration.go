package sqlerr

import (
	"errors"
	"fmt"

	tern "github.com/jackc/tern/v2/migrate"
	pkgerrors "github.com/pkg/errors"
)

// MigrationFailure marks an error as raised while applying schema
// migrations. Whatever its cause, it classifies as MigrateError.
type MigrationFailure struct {
	// Version and Name identify the migration being applied, if any.
	Version int32
	Name    string
	Err     error
}

func (f *MigrationFailure) Error() string {
	if f.Name == "" {
		return fmt.Sprintf("migration: %v", f.Err)
	}
	return fmt.Sprintf("migration %d (%s): %v", f.Version, f.Name, f.Err)
}

func (f *MigrationFailure) Unwrap() error {
	return f.Err
}

// ReportMigration builds the diagnostic report for a migration failure.
func ReportMigration(f *MigrationFailure) *Report {
	return &Report{cause: pkgerrors.WithStack(f)}
}

// FromMigration classifies err as MigrateError. err does not need to be a
// *MigrationFailure already; it is wrapped in one when it is not.
func FromMigration(err error) *Error {
	var f *MigrationFailure
	if !errors.As(err, &f) {
		f = &MigrationFailure{Err: err}
	}
	return migrationToError(f)
}

// isMigrationFailure recognises our own marker as well as the error types
// tern raises directly.
func isMigrationFailure(err error) bool {
	var (
		f      *MigrationFailure
		pgVal  tern.MigrationPgError
		pgPtr  *tern.MigrationPgError
		badVer tern.BadVersionError
	)
	return errors.As(err, &f) ||
		errors.As(err, &pgVal) ||
		errors.As(err, &pgPtr) ||
		errors.As(err, &badVer)
}
