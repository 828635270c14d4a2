// Package httputil bounds how much of an upstream HTTP payload is read
// into memory.
package httputil

import (
	"errors"
	"io"
)

// MaxCompletionBody caps provider response bodies at 10MB.
const MaxCompletionBody int64 = 10 << 20

// ErrBodyTooLarge reports a response body over the configured cap.
var ErrBodyTooLarge = errors.New("response body exceeds size cap")

// ReadLimitedBody reads at most maxBytes from r. When the payload is
// larger it returns the truncated prefix together with ErrBodyTooLarge.
// A non-positive maxBytes reads everything.
func ReadLimitedBody(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		return io.ReadAll(r)
	}
	body, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return body, err
	}
	if int64(len(body)) > maxBytes {
		return body[:maxBytes], ErrBodyTooLarge
	}
	return body, nil
}
