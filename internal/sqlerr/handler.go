package sqlerr

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Classify converts a low-level database error into an *Error.
//
// Order matters:
//   - nil stays nil
//   - an error that already carries an *Error is returned unchanged, so
//     layers above the boundary never re-classify or double wrap
//   - migration failures win over everything else, including an inner
//     classification, because tern embeds the server's *pgconn.PgError in
//     its own errors
//   - server errors are mapped by SQLSTATE (see FromPgError)
//   - pgx.ErrNoRows / sql.ErrNoRows become RowNotFound
//   - everything else (connectivity, protocol, timeouts, pool exhaustion)
//     becomes Unknown with a Report
//
// The return type is error, not *Error, so that a nil result compares equal
// to nil.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	migration := isMigrationFailure(err)

	var classified *Error
	if errors.As(err, &classified) && (!migration || classified.Kind == MigrateError) {
		return err
	}

	if migration {
		return FromMigration(err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return FromPgError(pgErr)
	}

	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
		return &Error{Kind: RowNotFound}
	}

	return driverToError(err)
}

// FromPgError maps a server-reported error by its SQLSTATE code. Codes
// outside the four constraint kinds, exclusion violations included, are
// Unknown.
func FromPgError(pgErr *pgconn.PgError) *Error {
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		return &Error{Kind: UniqueViolation}
	case pgerrcode.ForeignKeyViolation:
		return &Error{Kind: ForeignKeyViolation}
	case pgerrcode.NotNullViolation:
		return &Error{Kind: NotNullViolation}
	case pgerrcode.CheckViolation:
		return &Error{Kind: CheckViolation}
	default:
		return driverToError(pgErr)
	}
}

// KindOf reports the kind of err. Errors that were never classified are
// Unknown. A nil error has no kind; KindOf(nil) is Unknown as well, so check
// for nil first.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// AsError returns the *Error inside err, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
