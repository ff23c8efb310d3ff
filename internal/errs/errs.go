// Package errs turns failures into errors that are safe to show to users.
//
// Lower layers return classified errors (see sqlerr). Code at the edge of
// the application calls FromDB to get an *HTTPError with a status, a stable
// machine code, and a message that names the entity involved without
// leaking table, constraint, or driver details.
package errs
