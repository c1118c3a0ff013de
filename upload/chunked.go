package upload

import (
	"io"

	"github.com/indigo-web/chunkedbody"
)

const chunkedReadBufferSize = 4096

// ChunkedReader decodes a body sent with Transfer-Encoding: chunked.
type ChunkedReader struct {
	src     io.Reader
	parser  *chunkedbody.Parser
	trailer bool
	buf     []byte
	// pending is the read but not yet decoded input
	pending []byte
	// chunk is the decoded but not yet returned data
	chunk []byte
	eof   bool
}

// NewChunkedReader wraps the source, which must start with the first chunk. If trailer
// is set, trailer fields after the last chunk are expected and skipped.
func NewChunkedReader(src io.Reader, trailer bool) *ChunkedReader {
	return &ChunkedReader{
		src:     src,
		parser:  chunkedbody.NewParser(chunkedbody.DefaultSettings()),
		trailer: trailer,
		buf:     make([]byte, chunkedReadBufferSize),
	}
}

// Read returns io.EOF after the terminating chunk. If the source ends before it,
// io.ErrUnexpectedEOF is returned instead.
func (c *ChunkedReader) Read(b []byte) (n int, err error) {
	for len(c.chunk) == 0 {
		if c.eof {
			return 0, io.EOF
		}

		if len(c.pending) == 0 {
			n, err = c.src.Read(c.buf)
			c.pending = c.buf[:n]

			if n == 0 {
				switch err {
				case nil:
					continue
				case io.EOF:
					return 0, io.ErrUnexpectedEOF
				default:
					return 0, err
				}
			}
		}

		chunk, extra, err := c.parser.Parse(c.pending, c.trailer)
		switch err {
		case nil:
		case io.EOF:
			c.eof = true
		default:
			return 0, err
		}

		c.chunk, c.pending = chunk, extra
	}

	n = copy(b, c.chunk)
	c.chunk = c.chunk[n:]

	return n, nil
}
