package sqlerr

// Via composes two existing conversions into a third: a value of type A
// converts into T by first converting into C.
//
// Both halves must already exist with matching types, so a broken chain is a
// compile error rather than a runtime lookup failure.
func Via[A, C, T any](first func(A) C, then func(C) T) func(A) T {
	return func(a A) T {
		return then(first(a))
	}
}

// FromReport converts a report into the opaque kind.
func FromReport(r *Report) *Error {
	return &Error{Kind: Unknown, Report: r}
}

func fromMigrationReport(r *Report) *Error {
	return &Error{Kind: MigrateError, Report: r}
}

var (
	// driverToError turns any unrecognised failure into Unknown.
	driverToError = Via(NewReport, FromReport)

	// migrationToError turns a migration failure into MigrateError,
	// keeping the failure's context in the report.
	migrationToError = Via(ReportMigration, fromMigrationReport)
)
