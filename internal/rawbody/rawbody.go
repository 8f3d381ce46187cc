// Package rawbody reads request bodies into memory while enforcing a size limit.
package rawbody

import (
	"bytes"
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
)

// ErrLengthMismatch is returned when the number of bytes read differs from the declared length.
var ErrLengthMismatch = errors.New("request size did not match content length")

// TooLargeError is returned when the body is, or is declared to be, larger than the limit.
type TooLargeError struct {
	Limit  int64
	Length int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("request entity too large: %d bytes exceeds limit of %d", e.Length, e.Limit)
}

// IsTooLarge reports whether 'err' is or wraps a [*TooLargeError].
func IsTooLarge(err error) bool {
	var tle *TooLargeError
	return errors.As(err, &tle)
}

// Read reads all of 'r' but at most 'limit' bytes. The declared 'length' is used to fail early and to size
// the buffer, a negative length means it is unknown.
func Read(r io.Reader, limit, length int64) ([]byte, error) {
	if length > limit {
		return nil, &TooLargeError{Limit: limit, Length: length}
	}

	var buf bytes.Buffer
	if length > 0 {
		buf.Grow(int(length))
	}

	// one extra byte tells us the limit was exceeded.
	n, err := buf.ReadFrom(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}

	if n > limit {
		return nil, &TooLargeError{Limit: limit, Length: n}
	}

	if length >= 0 && n != length {
		return nil, errors.Wrapf(ErrLengthMismatch, "expected %d bytes, got %d", length, n)
	}

	return buf.Bytes(), nil
}
