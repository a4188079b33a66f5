// Package xpan is a client for the Baidu Netdisk open platform ("xpan")
// REST API: OAuth token flows, listing and search, file metadata, file
// management, chunked upload with fast-upload dedup, ranged download, and
// account info.
package xpan

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by a call that reaches (or would reach)
// the network matches exactly one of these with errors.Is, so callers can decide between retrying (transport,
// api) and fixing their input (param) without parsing message text.
var (
	// ErrTransport covers connection, TLS, DNS, and timeout failures, and
	// failures reading a response body.
	ErrTransport = errors.New("xpan: transport failure")

	// ErrAPI is the kind of every *APIError: a non-zero envelope errno or an
	// HTTP status other than 2xx/206.
	ErrAPI = errors.New("xpan: api error")

	// ErrParam reports caller input rejected before any request was sent.
	ErrParam = errors.New("xpan: invalid parameter")

	// ErrDecode reports a response body that matched neither the enveloped
	// nor the bare shape of the expected result.
	ErrDecode = errors.New("xpan: decoding response")

	// ErrIO reports a local file read or write failure.
	ErrIO = errors.New("xpan: local i/o")

	// ErrNotFound is returned by Stat when no entry has the requested path.
	// The provider itself has no not-found code for listings.
	ErrNotFound = errors.New("xpan: no such file or directory")
)

// APIError carries the provider's numeric code and message verbatim.
// For HTTP-level failures Errno is the HTTP status and Message the raw body.
type APIError struct {
	Errno      int
	Message    string
	HTTPStatus int
	RequestID  string
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("xpan: errno %d (request-id: %s): %s", e.Errno, e.RequestID, e.Message)
	}

	return fmt.Sprintf("xpan: errno %d: %s", e.Errno, e.Message)
}

func (e *APIError) Unwrap() error {
	return ErrAPI
}

// Errno extracts the provider code from err, if err wraps an *APIError.
func Errno(err error) (int, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Errno, true
	}

	return 0, false
}

func paramError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrParam, fmt.Sprintf(format, args...))
}

func ioError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrIO, op, err)
}

func transportError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}

func decodeError(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrDecode, what, err)
}
