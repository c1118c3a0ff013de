package codec

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/indigo-web/formstream/http/status"
)

// identity stands for "no encoding", according to RFC
const identity = "identity"

// Decoders maps coding tokens to codecs.
type Decoders struct {
	codecs map[string]Codec
}

func NewDecoders(codecs ...Codec) Decoders {
	d := Decoders{codecs: make(map[string]Codec, len(codecs))}
	for _, codec := range codecs {
		d.Add(codec)
	}

	return d
}

// Default returns decoders for gzip, deflate and zstd.
func Default() Decoders {
	return NewDecoders(NewGZIP(), NewDeflate(), NewZSTD())
}

// Add registers the codec. For gzip, the legacy x-gzip token is registered as well,
// see https://developer.mozilla.org/en-US/docs/Web/HTTP/Headers/Content-Encoding#directives
func (d Decoders) Add(codec Codec) {
	d.codecs[codec.Token()] = codec
	if codec.Token() == "gzip" {
		d.codecs["x-gzip"] = codec
	}
}

// Acceptable lists every supported token, sorted.
func (d Decoders) Acceptable() []string {
	return slices.Sorted(maps.Keys(d.codecs))
}

// Decode wraps the body into decompressors for every coding listed in the header
// value, undoing them in reverse order of application. Closing the returned reader
// releases the decompressors but leaves the body itself open.
func (d Decoders) Decode(contentEncoding string, body io.Reader) (io.ReadCloser, error) {
	tokens := parseTokens(contentEncoding)
	c := &chain{top: body}

	for i := len(tokens) - 1; i >= 0; i-- {
		token := tokens[i]
		if token == identity {
			continue
		}

		codec, found := d.codecs[token]
		if !found {
			_ = c.Close()
			return nil, fmt.Errorf("%w: %s", status.ErrUnsupportedEncoding, token)
		}

		dc := codec.New()
		if err := dc.Reset(c.top); err != nil {
			_ = dc.Close()
			_ = c.Close()
			return nil, fmt.Errorf("%w: %s: %w", status.ErrMalformedEncoding, token, err)
		}

		c.decompressors = append(c.decompressors, dc)
		c.top = dc
	}

	return c, nil
}

func parseTokens(value string) (tokens []string) {
	for token := range strings.SplitSeq(value, ",") {
		token = strings.ToLower(strings.TrimSpace(token))
		if len(token) > 0 {
			tokens = append(tokens, token)
		}
	}

	return tokens
}

type chain struct {
	top           io.Reader
	decompressors []Decompressor
}

func (c *chain) Read(p []byte) (n int, err error) {
	n, err = c.top.Read(p)
	if err != nil && err != io.EOF && len(c.decompressors) > 0 {
		err = fmt.Errorf("%w: %w", status.ErrMalformedEncoding, err)
	}

	return n, err
}

func (c *chain) Close() error {
	var errs []error
	for _, dc := range c.decompressors {
		errs = append(errs, dc.Close())
	}

	return errors.Join(errs...)
}
