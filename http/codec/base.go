package codec

import "io"

var _ Codec = baseCodec{}

type instantiator = func() Decompressor

type baseCodec struct {
	token   string
	newInst instantiator
}

func newBaseCodec(token string, newInst instantiator) baseCodec {
	return baseCodec{
		token:   token,
		newInst: newInst,
	}
}

func (b baseCodec) Token() string {
	return b.token
}

func (b baseCodec) New() Decompressor {
	return b.newInst()
}

var _ Decompressor = new(baseInstance)

type decoderResetter = func(r io.Reader, src io.Reader) (io.Reader, error)

type baseInstance struct {
	reset decoderResetter
	r     io.Reader
	// ready is set once the decoder was successfully reset at least once. Some of
	// them can't be closed before that.
	ready bool
}

func newBaseInstance(decoder io.Reader, reset decoderResetter) *baseInstance {
	return &baseInstance{
		reset: reset,
		r:     decoder,
	}
}

func (b *baseInstance) Reset(src io.Reader) error {
	r, err := b.reset(b.r, src)
	if r != nil {
		b.r = r
	}

	b.ready = b.ready || err == nil
	return err
}

func (b *baseInstance) Read(p []byte) (n int, err error) {
	if b.r == nil {
		return 0, io.ErrUnexpectedEOF
	}

	return b.r.Read(p)
}

func (b *baseInstance) Close() error {
	if !b.ready {
		return nil
	}

	switch c := b.r.(type) {
	case io.Closer:
		return c.Close()
	case interface{ Close() }:
		c.Close()
	}

	return nil
}

func genericResetter(r io.Reader, src io.Reader) (io.Reader, error) {
	type resetter interface {
		Reset(r io.Reader) error
	}

	if reset, ok := r.(resetter); ok {
		return r, reset.Reset(src)
	}

	return r, nil
}
