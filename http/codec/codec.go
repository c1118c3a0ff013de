// Package codec decodes request bodies sent with a Content-Encoding.
package codec

import "io"

type Codec interface {
	// Token returns a coding token associated with the codec itself.
	Token() string
	New() Decompressor
}

// Decompressor is a decoding reader, reusable over different sources.
type Decompressor interface {
	io.ReadCloser
	Reset(src io.Reader) error
}
