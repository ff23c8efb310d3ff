package errs

import "strings"

// HTTPError is an error meant for API clients. It serialises directly to
// JSON.
type HTTPError struct {
	// Code is machine readable, e.g. "USER_ALREADY_EXISTS".
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	// Override marks messages the client may show verbatim.
	Override bool `json:"override"`
}

// Error returns Message, so logging the error shows what the client sees.
func (e *HTTPError) Error() string {
	return e.Message
}

// Is matches any *HTTPError, regardless of code or status.
func (e *HTTPError) Is(target error) bool {
	_, ok := target.(*HTTPError)
	return ok
}

// WithMessage returns a copy of e with Message replaced.
func (e *HTTPError) WithMessage(message string) *HTTPError {
	cp := *e
	cp.Message = message
	return &cp
}

// MakeUpperCaseWithUnderscores turns "Bad Request" into "BAD_REQUEST".
func MakeUpperCaseWithUnderscores(str string) string {
	return strings.ToUpper(strings.ReplaceAll(str, " ", "_"))
}
