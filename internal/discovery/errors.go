package discovery

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds surfaced to the HTTP layer.
const (
	KindAuthFailure            = "AuthFailure"
	KindUnknownXdsType         = "UnknownXdsType"
	KindTemplateRenderError    = "TemplateRenderError"
	KindConfigDeserializeError = "ConfigDeserializeError"
)

// Error is a request-path failure with an attached status code and a
// client-safe description. The wrapped error carries the raw detail, which
// only reaches logs.
type Error struct {
	Kind        string
	StatusCode  int
	Description string
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind
}

func (e *Error) Unwrap() error { return e.Err }

// AsError extracts an *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func authFailure(err error) *Error {
	return &Error{
		Kind:        KindAuthFailure,
		StatusCode:  http.StatusUnauthorized,
		Description: "the request was not authenticated",
		Err:         err,
	}
}

// NewAuthFailure wraps an authentication failure. The underlying cause is
// redacted from the response.
func NewAuthFailure(err error) *Error { return authFailure(err) }

// NewUnknownXdsType rejects an xds_type outside the configured universe.
func NewUnknownXdsType(xdsType string) *Error {
	return &Error{
		Kind:        KindUnknownXdsType,
		StatusCode:  http.StatusNotFound,
		Description: fmt.Sprintf("no templates configured for type %q", xdsType),
		Err:         fmt.Errorf("unknown xds type %q", xdsType),
	}
}

// NewTemplateRenderError wraps a render failure with a generic client detail.
func NewTemplateRenderError(err error) *Error {
	return &Error{
		Kind:        KindTemplateRenderError,
		StatusCode:  http.StatusInternalServerError,
		Description: "failed to render the configured templates",
		Err:         err,
	}
}

// NewConfigDeserializeError wraps a YAML parse failure of rendered template
// output. The parser detail goes to logs, never to the client.
func NewConfigDeserializeError(err error) *Error {
	return &Error{
		Kind:        KindConfigDeserializeError,
		StatusCode:  http.StatusInternalServerError,
		Description: "failed to load configuration, there may be a syntax error in the configured templates",
		Err:         err,
	}
}
