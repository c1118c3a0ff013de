// Package imagesize measures image dimensions out of the leading bytes of a file,
// without decoding the pixels.
package imagesize

import (
	"bytes"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/indigo-web/formstream/http/mime"
)

type Size struct {
	Width  int
	Height int
}

type Measurer func(head []byte) (Size, bool)

func MeasureJPEG(head []byte) (Size, bool) {
	return measure(head, jpeg.DecodeConfig)
}

func MeasureGIF(head []byte) (Size, bool) {
	return measure(head, gif.DecodeConfig)
}

func MeasurePNG(head []byte) (Size, bool) {
	return measure(head, png.DecodeConfig)
}

// For returns a measurer suitable for the content type, if any.
func For(contentType string) (Measurer, bool) {
	switch mime.Essence(contentType) {
	case mime.JPEG:
		return MeasureJPEG, true
	case mime.GIF:
		return MeasureGIF, true
	case mime.PNG:
		return MeasurePNG, true
	default:
		return nil, false
	}
}

// Measure returns dimensions of the image declared by the content type. Unsupported
// types, as well as corrupted or too short heads, report false.
func Measure(contentType string, head []byte) (Size, bool) {
	measurer, ok := For(contentType)
	if !ok {
		return Size{}, false
	}

	return measurer(head)
}

func measure(head []byte, decode func(r io.Reader) (image.Config, error)) (Size, bool) {
	if len(head) == 0 {
		return Size{}, false
	}

	cfg, err := decode(bytes.NewReader(head))
	if err != nil || cfg.Width <= 0 || cfg.Height <= 0 {
		return Size{}, false
	}

	return Size{Width: cfg.Width, Height: cfg.Height}, true
}
