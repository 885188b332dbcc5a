// Package epgerr holds the error kinds shared by the fetch, decode, parse and
// pipeline stages. Callers test kinds with errors.Is.
package epgerr

import (
	"errors"
	"strconv"

	"github.com/snapetech/epgnorm/internal/safeurl"
)

var (
	ErrUpstreamFetch      = errors.New("upstream fetch failed")
	ErrDecompression      = errors.New("decompression failed")
	ErrMalformedTimestamp = errors.New("malformed timestamp")
	ErrInvalidDocument    = errors.New("invalid document")
	// ErrNoData is only returned when the caller asked for empty results to be
	// treated as a failure.
	ErrNoData = errors.New("no data")
)

// UpstreamError describes a failed request to a remote source.
// StatusCode is 0 for transport errors.
type UpstreamError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	msg := "upstream " + safeurl.Redact(e.URL)
	if e.StatusCode != 0 {
		msg += ": status " + strconv.Itoa(e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UpstreamError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUpstreamFetch}
	}
	return []error{ErrUpstreamFetch, e.Err}
}
