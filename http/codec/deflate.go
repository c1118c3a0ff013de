package codec

import (
	"io"

	"github.com/klauspost/compress/zlib"
)

// NewDeflate returns the "deflate" coding, which is the zlib format (RFC 9110, 8.4.1.2)
// and not a raw deflate stream.
func NewDeflate() Codec {
	return newBaseCodec("deflate", func() Decompressor {
		return newBaseInstance(nil, func(r io.Reader, src io.Reader) (io.Reader, error) {
			if r == nil {
				// the zlib reader refuses to exist without a valid header
				return zlib.NewReader(src)
			}

			return r, r.(zlib.Resetter).Reset(src, nil)
		})
	})
}
