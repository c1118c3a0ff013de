package multipart

import (
	"errors"
	"fmt"

	"github.com/indigo-web/formstream/http/status"
)

var (
	ErrMalformedHeader   = fmt.Errorf("%w: malformed part header", status.ErrMalformedMultipart)
	ErrMalformedBoundary = fmt.Errorf("%w: malformed boundary", status.ErrMalformedMultipart)
	ErrUnexpectedEOF     = fmt.Errorf("%w: stream ended unexpectedly", status.ErrMalformedMultipart)
	ErrInterrupted       = errors.New("multipart parser was interrupted by its consumer")
	ErrUninitialized     = errors.New("multipart parser has no boundary installed")
)

// SyntaxError describes the position at which the parser gave up.
type SyntaxError struct {
	// Offset is the index of the offending byte within the chunk, or -1 when the
	// stream ended before the final boundary.
	Offset int
	State  string
	Err    error
}

func (s *SyntaxError) Error() string {
	return fmt.Sprintf("%s (offset %d, state %s)", s.Err, s.Offset, s.State)
}

func (s *SyntaxError) Unwrap() error {
	return s.Err
}
