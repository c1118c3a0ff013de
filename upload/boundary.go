package upload

import (
	"github.com/indigo-web/formstream/http/mime"
	"github.com/indigo-web/formstream/http/status"
	"github.com/indigo-web/formstream/internal/strutil"
)

// maxBoundaryLen is the limit set by RFC 2046.
const maxBoundaryLen = 70

// Boundary extracts the boundary token out of a multipart Content-Type header value,
// e.g. `multipart/form-data; boundary="XYZ"`. Any media type other than
// multipart/form-data or multipart/mixed results in status.ErrUnsupportedMediaType.
func Boundary(contentType string) (string, error) {
	value, params := strutil.CutHeader(contentType)
	value = strutil.RStripWS(strutil.LStripWS(value))

	if !strutil.CmpFold(value, mime.Multipart) && !strutil.CmpFold(value, mime.Mixed) {
		return "", status.ErrUnsupportedMediaType
	}

	for key, param := range strutil.WalkKV(params) {
		if len(key) == 0 {
			// malformed parameters section
			break
		}

		if !strutil.CmpFold(key, "boundary") {
			continue
		}

		if len(param) == 0 || len(param) > maxBoundaryLen {
			break
		}

		return param, nil
	}

	return "", status.ErrInvalidBoundary
}
