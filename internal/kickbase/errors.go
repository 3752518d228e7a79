package kickbase

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnauthorized matches an UpstreamError carrying 401 or 403.
var ErrUnauthorized = errors.New("kickbase: unauthorized")

// ErrNotFound matches an UpstreamError carrying 404.
var ErrNotFound = errors.New("kickbase: not found")

// TransportError is a network or connection failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("kickbase %s: transport failure: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// UpstreamError is a non-success HTTP status.
type UpstreamError struct {
	Op         string
	StatusCode int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("kickbase %s: upstream status %d", e.Op, e.StatusCode)
}

func (e *UpstreamError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// MalformedResponseError is a payload that does not match the expected shape.
type MalformedResponseError struct {
	Op  string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("kickbase %s: malformed response: %v", e.Op, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// IsMalformed reports whether err is or wraps a MalformedResponseError.
func IsMalformed(err error) bool {
	var m *MalformedResponseError
	return errors.As(err, &m)
}
