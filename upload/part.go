package upload

import (
	"fmt"
	"strings"

	"github.com/indigo-web/utils/uf"

	"github.com/indigo-web/formstream/http/mime"
	"github.com/indigo-web/formstream/http/status"
	"github.com/indigo-web/formstream/internal/imagesize"
	"github.com/indigo-web/formstream/internal/spool"
	"github.com/indigo-web/formstream/internal/strutil"
)

type phase uint8

const (
	// phaseHeaders lasts until the headers section of a part is over.
	phaseHeaders phase = iota
	// phaseBody means the part data is being consumed.
	phaseBody
	// phaseSkip means the rest of the part is ignored.
	phaseSkip
)

// part is the state of the part being currently processed. It's reused for all the
// parts of a body.
type part struct {
	phase       phase
	name        string
	filename    string
	contentType string
	isFile      bool

	// a header line may come in any number of fragments
	headerField []byte
	headerValue []byte
	headerSize  int

	value   []byte
	file    *spool.File
	size    int64
	head    []byte
	measure imagesize.Measurer
}

func (p *part) reset() {
	p.phase = phaseHeaders
	p.name, p.filename, p.contentType = "", "", ""
	p.isFile = false
	p.headerField = p.headerField[:0]
	p.headerValue = p.headerValue[:0]
	p.headerSize = 0
	p.value = p.value[:0]
	p.file = nil
	p.size = 0
	p.head = p.head[:0]
	p.measure = nil
}

func (p *part) appendHeader(dst *[]byte, data []byte, limit int) error {
	p.headerSize += len(data)
	if p.headerSize > limit {
		return status.ErrHeaderFieldsTooLarge
	}

	*dst = append(*dst, data...)
	return nil
}

// header applies the complete header line to the part. Headers other than
// Content-Disposition and Content-Type are ignored.
func (p *part) header() error {
	name := uf.B2S(p.headerField)
	value := strutil.RStripWS(uf.B2S(p.headerValue))

	defer func() {
		p.headerField = p.headerField[:0]
		p.headerValue = p.headerValue[:0]
	}()

	switch {
	case strutil.CmpFold(name, "Content-Disposition"):
		_, params := strutil.CutHeader(value)
		for key, param := range strutil.WalkKV(params) {
			switch {
			case len(key) == 0:
				return fmt.Errorf("%w: malformed Content-Disposition", status.ErrMalformedMultipart)
			case strutil.CmpFold(key, "name"):
				p.name = strings.Clone(param)
			case strutil.CmpFold(key, "filename"):
				p.filename = strings.Clone(param)
				p.isFile = true
			}
		}
	case strutil.CmpFold(name, "Content-Type"):
		p.contentType = strings.Clone(mime.Essence(value))
	}

	return nil
}

// sniff keeps the leading bytes of the part until there are enough of them.
func (p *part) sniff(data []byte, limit int) {
	if room := limit - len(p.head); room > 0 {
		p.head = append(p.head, data[:min(room, len(data))]...)
	}
}
