package mime

import (
	"strings"

	"github.com/indigo-web/formstream/internal/strutil"
)

type MIME = string

const (
	OctetStream MIME = "application/octet-stream"
	Plain       MIME = "text/plain"
	HTML        MIME = "text/html"
	JSON        MIME = "application/json"
	NDJSON      MIME = "application/x-ndjson"
	Multipart   MIME = "multipart/form-data"
	Mixed       MIME = "multipart/mixed"
	GIF         MIME = "image/gif"
	JPEG        MIME = "image/jpeg"
	PNG         MIME = "image/png"
)

// Complies returns whether two MIMEs are compatible. Empty MIME is
// considered compatible with any other MIME
func Complies(mime MIME, with string) bool {
	// get rid of parameters if any
	with, _ = strutil.CutHeader(with)
	with = strutil.RStripWS(with)
	return len(with) == 0 || strutil.CmpFold(with, mime)
}

// IsImage reports whether the MIME belongs to the image/* family.
func IsImage(mime MIME) bool {
	return hasType(mime, "image/")
}

// IsVideo reports whether the MIME belongs to the video/* family.
func IsVideo(mime MIME) bool {
	return hasType(mime, "video/")
}

// IsAudio reports whether the MIME belongs to the audio/* family.
func IsAudio(mime MIME) bool {
	return hasType(mime, "audio/")
}

func hasType(mime MIME, prefix string) bool {
	return len(mime) >= len(prefix) && strutil.CmpFold(mime[:len(prefix)], prefix)
}

// Essence lowercases the type/subtype pair and drops any parameters.
func Essence(mime string) MIME {
	mime, _ = strutil.CutHeader(mime)
	return strings.ToLower(strutil.RStripWS(strutil.LStripWS(mime)))
}
