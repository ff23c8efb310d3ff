package errs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/uwececa/dblayer/internal/sqlerr"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// FromDB converts a database error into an *HTTPError that refers to
// entity, a snake_case name such as "user" or "api_key".
//
// Constraint violations become 400s, a missing row becomes a 404, and
// everything else is a generic 500. An error that already is an *HTTPError
// is returned unchanged. nil stays nil.
func FromDB(err error, entity string) error {
	if err == nil {
		return nil
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return err
	}

	kind := sqlerr.KindOf(sqlerr.Classify(err))
	if entity == "" {
		entity = "record"
	}
	name := humanizeText(entity)
	code := errorCode(entity, kind)

	switch kind {
	case sqlerr.UniqueViolation:
		return NewBadRequestError(fmt.Sprintf("A %s with this identifier already exists", name), true, &code)
	case sqlerr.ForeignKeyViolation:
		return NewBadRequestError(fmt.Sprintf("The referenced %s does not exist", strings.ToLower(name)), false, &code)
	case sqlerr.NotNullViolation:
		return NewBadRequestError("A required field is missing", true, &code)
	case sqlerr.CheckViolation:
		return NewBadRequestError("One or more values do not meet required conditions", true, &code)
	case sqlerr.RowNotFound:
		return NewNotFoundError(fmt.Sprintf("%s not found", name), true, &code)
	default:
		return NewInternalServerError()
	}
}

// errorCode builds <ENTITY>_<ACTION>, e.g. USER_ALREADY_EXISTS.
func errorCode(entity string, kind sqlerr.Kind) string {
	action := "ERROR"
	switch kind {
	case sqlerr.UniqueViolation:
		action = "ALREADY_EXISTS"
	case sqlerr.ForeignKeyViolation, sqlerr.RowNotFound:
		action = "NOT_FOUND"
	case sqlerr.NotNullViolation:
		action = "REQUIRED"
	case sqlerr.CheckViolation:
		action = "INVALID"
	}
	return fmt.Sprintf("%s_%s", strings.ToUpper(entity), action)
}

// humanizeText turns "api_key" into "Api Key".
func humanizeText(text string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(text, "_", " "))
}
