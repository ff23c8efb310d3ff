package sqlerr

import "fmt"

// Kind is the semantic category of a database failure.
//
// The set is closed. Unknown is the zero value so that a Kind which was
// never assigned still falls into the opaque bucket.
type Kind uint8

const (
	Unknown Kind = iota
	UniqueViolation
	ForeignKeyViolation
	NotNullViolation
	CheckViolation
	RowNotFound
	MigrateError
)

// String returns the snake_case name of the kind. It is also used as the
// metrics label.
func (k Kind) String() string {
	switch k {
	case UniqueViolation:
		return "unique_violation"
	case ForeignKeyViolation:
		return "foreign_key_violation"
	case NotNullViolation:
		return "not_null_violation"
	case CheckViolation:
		return "check_violation"
	case RowNotFound:
		return "row_not_found"
	case MigrateError:
		return "migrate_error"
	default:
		return "unknown"
	}
}

// Kinds lists every kind in declaration order.
func Kinds() []Kind {
	return []Kind{Unknown, UniqueViolation, ForeignKeyViolation, NotNullViolation, CheckViolation, RowNotFound, MigrateError}
}

// Error is a classified database failure.
//
// Report is only set for Unknown and MigrateError. The constraint kinds and
// RowNotFound carry nothing else; switch on Kind.
type Error struct {
	Kind   Kind
	Report *Report
}

// Sentinels for errors.Is. Matching is by Kind only.
var (
	ErrUniqueViolation     = &Error{Kind: UniqueViolation}
	ErrForeignKeyViolation = &Error{Kind: ForeignKeyViolation}
	ErrNotNullViolation    = &Error{Kind: NotNullViolation}
	ErrCheckViolation      = &Error{Kind: CheckViolation}
	ErrRowNotFound         = &Error{Kind: RowNotFound}
	ErrMigrate             = &Error{Kind: MigrateError}
	ErrUnknown             = &Error{Kind: Unknown}
)

// Error describes the kind, followed by the report when there is one.
func (e *Error) Error() string {
	var msg string
	switch e.Kind {
	case UniqueViolation:
		msg = "unique constraint violation"
	case ForeignKeyViolation:
		msg = "foreign key violation"
	case NotNullViolation:
		msg = "not null violation"
	case CheckViolation:
		msg = "check constraint violation"
	case RowNotFound:
		msg = "row not found"
	case MigrateError:
		msg = "migration failed"
	default:
		msg = "unknown database error"
	}
	if e.Report != nil {
		return fmt.Sprintf("%s: %s", msg, e.Report.Error())
	}
	return msg
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Unwrap exposes the report, and through it the original driver error.
func (e *Error) Unwrap() error {
	if e.Report == nil {
		return nil
	}
	return e.Report
}
