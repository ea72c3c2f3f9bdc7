package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	kivik "github.com/go-kivik/kivik/v4"

	"github.com/ericnething/roll2d6-client/internal/doc"
)

// ErrUnreachable wraps transport-level failures: the remote could not be
// contacted or the connection broke before a status was read.
var ErrUnreachable = errors.New("remote unreachable")

// ErrClosed is returned by every call made after Close.
var ErrClosed = errors.New("remote handle closed")

// StatusError is a non-2xx response from the remote store.
type StatusError struct {
	// Code is the HTTP status code.
	Code int

	// Method and Path identify the request.
	Method string
	Path   string

	// Reason is the server's explanation as reported by the driver.
	Reason string

	err error
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s %s: %d: %s", e.Method, e.Path, e.Code, e.Reason)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Code, http.StatusText(e.Code))
}

// Unwrap returns the driver error.
func (e *StatusError) Unwrap() error {
	return e.err
}

// Is maps 404 to doc.ErrNotFound and 409 to doc.ErrConflict.
func (e *StatusError) Is(target error) bool {
	switch target {
	case doc.ErrNotFound:
		return e.Code == http.StatusNotFound
	case doc.ErrConflict:
		return e.Code == http.StatusConflict
	}
	return false
}

// StatusCode returns the HTTP status carried by err, or 0 if err is not a
// StatusError. Uses errors.As to handle wrapped errors.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// IsNotFound returns true for a 404 response.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// IsConflict returns true for a 409 response.
func IsConflict(err error) bool {
	return StatusCode(err) == http.StatusConflict
}

// IsUnauthorized returns true for 401 and 403 responses.
func IsUnauthorized(err error) bool {
	code := StatusCode(err)
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

// IsFatal returns true for any response outside 2xx that is not 404.
// Unauthorized responses are fatal as well.
func IsFatal(err error) bool {
	code := StatusCode(err)
	return code != 0 && code != http.StatusNotFound
}

// IsUnreachable returns true for transport failures.
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrUnreachable)
}

// classify converts a driver error for a request made under ctx. The
// caller's own cancellation is returned as is; transport failures and the
// per-request timeout wrap ErrUnreachable; everything else becomes a
// *StatusError carrying kivik.HTTPStatus(err).
func classify(ctx context.Context, method, path string, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s %s: %w: %v", method, path, ErrUnreachable, err)
	}
	return &StatusError{
		Code:   kivik.HTTPStatus(err),
		Method: method,
		Path:   path,
		Reason: err.Error(),
		err:    err,
	}
}
