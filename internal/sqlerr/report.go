package sqlerr

import (
	"errors"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5/pgconn"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Report is the diagnostic payload of an opaque failure.
//
// It keeps the original error chain intact (errors.Is / errors.As keep
// working through it) and records a stack trace at the point the report was
// created. Context can be layered on with Wrap.
type Report struct {
	msg   string
	cause error
}

// NewReport builds a report around err, capturing the current stack.
// A nil err yields a nil report and an existing report is returned as is.
func NewReport(err error) *Report {
	if err == nil {
		return nil
	}
	if r, ok := err.(*Report); ok {
		return r
	}
	return &Report{cause: pkgerrors.WithStack(err)}
}

// Wrap returns a new report that prefixes msg to r.
func (r *Report) Wrap(msg string) *Report {
	return &Report{msg: msg, cause: r}
}

func (r *Report) Error() string {
	if r.msg == "" {
		return r.cause.Error()
	}
	return r.msg + ": " + r.cause.Error()
}

func (r *Report) Unwrap() error {
	return r.cause
}

// Format supports %+v, which prints the message followed by the stack
// captured in NewReport.
func (r *Report) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			if r.msg != "" {
				_, _ = io.WriteString(s, r.msg+": ")
			}
			fmt.Fprintf(s, "%+v", r.cause)
			return
		}
		fallthrough
	case 's':
		_, _ = io.WriteString(s, r.Error())
	case 'q':
		fmt.Fprintf(s, "%q", r.Error())
	}
}

// Chain returns the messages of every error in the chain, outermost first.
// The stack wrapper added by NewReport is skipped.
func (r *Report) Chain() []string {
	var chain []string
	var last string
	for err := error(r); err != nil; err = errors.Unwrap(err) {
		msg := err.Error()
		if msg == last {
			continue
		}
		chain = append(chain, msg)
		last = msg
	}
	return chain
}

// MarshalZerologObject lets a report be logged with Event.Object.
func (r *Report) MarshalZerologObject(e *zerolog.Event) {
	e.Str("message", r.Error())
	e.Strs("chain", r.Chain())

	var pgErr *pgconn.PgError
	if errors.As(r, &pgErr) {
		e.Str("sqlstate", pgErr.Code).
			Str("severity", pgErr.Severity).
			Str("table", pgErr.TableName).
			Str("column", pgErr.ColumnName).
			Str("constraint", pgErr.ConstraintName)
	}
}
