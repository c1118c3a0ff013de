package codec

import (
	"github.com/klauspost/compress/gzip"
)

func NewGZIP() Codec {
	return newBaseCodec("gzip", func() Decompressor {
		return newBaseInstance(new(gzip.Reader), genericResetter)
	})
}
