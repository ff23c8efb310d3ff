// Package sqlerr classifies database driver errors.
//
// Every failure coming out of pgx is mapped into one of a small, closed set
// of kinds (see Kind). Callers branch on the kind, never on driver codes or
// message text:
//
//	if errors.Is(err, sqlerr.ErrUniqueViolation) {
//	    // duplicate entry
//	}
//
// Anything that is not a known constraint violation, a missing row or a
// migration failure ends up as Unknown, carrying a Report with the full
// diagnostic chain for logging.
//
// MigrateError carries a Report as well, naming the migration that failed
// and its cause. It is the only kind besides Unknown that does; operators
// need that context and end users never see it.
package sqlerr
