package multipart

import (
	"iter"

	"github.com/indigo-web/formstream/http/status"
)

const (
	boundaryPrefix = "\r\n--"
	// lookbehindPadding is the lookbehind space over the boundary length, fitting
	// the trailing "--" or CRLF of a boundary candidate.
	lookbehindPadding = 8
)

// Parser is an incremental multipart/form-data parser. It is fed with body chunks
// of arbitrary size as they arrive and never buffers the body: everything it finds
// is reported as events pointing into the chunk itself. The only data it keeps
// between chunks is a partially matched boundary candidate, which is either
// confirmed or flushed back as part data.
//
// Parser is not safe for concurrent use.
type Parser struct {
	boundary   []byte
	chars      [256]bool
	lookbehind []byte
	state      parserState
	flags      boundaryFlags
	index      int

	headerFieldMark int
	headerValueMark int
	partDataMark    int

	consumed int
	err      error
}

// New returns a parser ready to consume a body delimited by the boundary.
func New(boundary string) (*Parser, error) {
	p := new(Parser)
	return p, p.Init(boundary)
}

// Init installs the boundary token (as found in the Content-Type parameter) and
// resets the parser, so it can be reused for another body.
func (p *Parser) Init(boundary string) error {
	if len(boundary) == 0 {
		return status.ErrInvalidBoundary
	}

	p.boundary = append(append(p.boundary[:0], boundaryPrefix...), boundary...)

	size := len(p.boundary) + lookbehindPadding
	if cap(p.lookbehind) < size {
		p.lookbehind = make([]byte, size)
	}
	p.lookbehind = p.lookbehind[:size]

	p.chars = [256]bool{}
	for _, c := range p.boundary {
		p.chars[c] = true
	}

	p.state = eStart
	p.flags = 0
	p.index = 0
	p.headerFieldMark, p.headerValueMark, p.partDataMark = -1, -1, -1
	p.consumed = 0
	p.err = nil

	return nil
}

// Parse returns an iterator over events found in the chunk. The iterator must be
// exhausted before the parser is touched again. When the chunk violates the grammar,
// a single SyntaxError is yielded as the last element and the parser stays failed
// for the rest of its life. Breaking out of the iteration early fails the parser
// as well, with ErrInterrupted.
func (p *Parser) Parse(chunk []byte) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		p.consumed = 0

		if p.err != nil {
			yield(Event{}, p.err)
			return
		}

		if p.state == eUninitialized {
			p.err = ErrUninitialized
			yield(Event{}, p.err)
			return
		}

		var err error
		p.consumed, err = p.run(chunk, yield)
		if err != nil {
			p.err = err
			if err != ErrInterrupted {
				yield(Event{}, err)
			}
		}
	}
}

// Consumed returns how many bytes of the most recent chunk were accepted. Anything
// less than the chunk length means the rest of it is malformed.
func (p *Parser) Consumed() int {
	return p.consumed
}

// Finish must be called once no more chunks are expected. The stream is considered
// complete either after the final boundary or when it ends right after a boundary;
// in the latter case the closing PartEnd and End events are synthesized. Otherwise
// ErrUnexpectedEOF is yielded.
func (p *Parser) Finish() iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		if p.err != nil {
			yield(Event{}, p.err)
			return
		}

		switch {
		case p.state == eEnd:
		case p.state == eHeaderFieldStart && p.index == 0,
			p.state == ePartData && p.index == len(p.boundary):
			p.state = eEnd
			if yield(Event{Kind: PartEnd}, nil) {
				yield(Event{Kind: End}, nil)
			}
		default:
			p.err = &SyntaxError{
				Offset: -1,
				State:  p.state.String(),
				Err:    ErrUnexpectedEOF,
			}
			yield(Event{}, p.err)
		}
	}
}

// Done reports whether the final boundary was seen.
func (p *Parser) Done() bool {
	return p.state == eEnd
}

func (p *Parser) run(data []byte, yield func(Event, error) bool) (int, error) {
	var (
		boundary    = p.boundary
		boundaryLen = len(boundary)
		boundaryEnd = boundaryLen - 1
		index       = p.index
		state       = p.state
		flags       = p.flags
		prevIndex   int
		i           int
	)

	emit := func(kind EventKind, buf []byte) bool {
		return yield(Event{Kind: kind, Data: buf}, nil)
	}

	// cut emits the data between the mark and the current position, dropping the mark
	cut := func(kind EventKind, mark *int) bool {
		if *mark < 0 {
			return true
		}

		start := *mark
		*mark = -1
		if start == i {
			return true
		}

		return emit(kind, data[start:i])
	}

	// carry emits the data between the mark and the end of the chunk, keeping the mark
	// at the beginning of the next one
	carry := func(kind EventKind, mark *int) bool {
		if *mark < 0 {
			return true
		}

		start := *mark
		*mark = 0
		if start == len(data) {
			return true
		}

		return emit(kind, data[start:])
	}

	fail := func(err error) (int, error) {
		p.state, p.index, p.flags = state, index, flags
		return i, &SyntaxError{
			Offset: i,
			State:  state.String(),
			Err:    err,
		}
	}

	interrupted := func() (int, error) {
		p.state, p.index, p.flags = state, index, flags
		return i, ErrInterrupted
	}

scan:
	for i = 0; i < len(data); i++ {
		c := data[i]

		switch state {
		case eStart:
			index = 0
			state = eStartBoundary
			fallthrough
		case eStartBoundary:
			// the very first boundary comes without the leading CRLF, therefore the
			// index is shifted by 2. Negative index values are spent on resyncing
			// on CRLF when a preamble is present.
			if index == boundaryLen-2 {
				switch c {
				case '-':
					flags |= fLastBoundary
				case '\r':
				default:
					return fail(ErrMalformedBoundary)
				}

				index++
				break
			} else if index-1 == boundaryLen-2 {
				switch {
				case flags&fLastBoundary != 0 && c == '-':
					if !emit(End, nil) {
						return interrupted()
					}

					state = eEnd
					flags = 0
				case flags&fLastBoundary == 0 && c == '\n':
					index = 0
					if !emit(PartBegin, nil) {
						return interrupted()
					}

					state = eHeaderFieldStart
				default:
					return fail(ErrMalformedBoundary)
				}

				break
			}

			if c != boundary[index+2] {
				index = -2
			}
			if c == boundary[index+2] {
				index++
			}
		case eHeaderFieldStart:
			state = eHeaderField
			p.headerFieldMark = i
			index = 0
			fallthrough
		case eHeaderField:
			if c == '\r' {
				if index > 0 {
					// header line without a colon
					return fail(ErrMalformedHeader)
				}

				p.headerFieldMark = -1
				state = eHeadersAlmostDone
				break
			}

			index++
			if c == '-' {
				break
			}

			if c == ':' {
				if index == 1 {
					// empty header field
					return fail(ErrMalformedHeader)
				}

				if !cut(HeaderField, &p.headerFieldMark) {
					return interrupted()
				}

				state = eHeaderValueStart
				break
			}

			if cl := c | 0x20; cl < 'a' || cl > 'z' {
				return fail(ErrMalformedHeader)
			}
		case eHeaderValueStart:
			if c == ' ' || c == '\t' {
				break
			}

			p.headerValueMark = i
			state = eHeaderValue
			fallthrough
		case eHeaderValue:
			if c == '\r' {
				if !cut(HeaderValue, &p.headerValueMark) || !emit(HeaderEnd, nil) {
					return interrupted()
				}

				state = eHeaderValueAlmostDone
			}
		case eHeaderValueAlmostDone:
			if c != '\n' {
				return fail(ErrMalformedHeader)
			}

			state = eHeaderFieldStart
		case eHeadersAlmostDone:
			if c != '\n' {
				return fail(ErrMalformedHeader)
			}

			if !emit(HeadersEnd, nil) {
				return interrupted()
			}

			state = ePartDataStart
		case ePartDataStart:
			state = ePartData
			p.partDataMark = i
			fallthrough
		case ePartData:
			prevIndex = index

			if index == 0 {
				// no boundary can start within the window unless its last byte
				// belongs to the boundary alphabet, so the whole window is skipped
				i += boundaryEnd
				for i < len(data) && !p.chars[data[i]] {
					i += boundaryLen
				}
				i -= boundaryEnd

				if i >= len(data) {
					break scan
				}

				c = data[i]
			}

			if index < boundaryLen {
				if boundary[index] == c {
					if index == 0 {
						if !cut(PartData, &p.partDataMark) {
							return interrupted()
						}
					}

					index++
				} else {
					index = 0
				}
			} else if index == boundaryLen {
				index++
				flags &^= fPartBoundary | fLastBoundary

				switch c {
				case '\r':
					flags |= fPartBoundary
				case '-':
					flags |= fLastBoundary
				default:
					index = 0
				}
			} else if index-1 == boundaryLen {
				switch {
				case flags&fPartBoundary != 0:
					index = 0

					if c == '\n' {
						flags &^= fPartBoundary
						if !emit(PartEnd, nil) || !emit(PartBegin, nil) {
							return interrupted()
						}

						state = eHeaderFieldStart
					}
				case flags&fLastBoundary != 0:
					if c == '-' {
						if !emit(PartEnd, nil) || !emit(End, nil) {
							return interrupted()
						}

						state = eEnd
						flags = 0
					} else {
						index = 0
					}
				default:
					index = 0
				}

				if state == eHeaderFieldStart {
					break
				}
			}

			if index > 0 {
				// keep the candidate in case it turns out to be a false lead
				p.lookbehind[index-1] = c
			} else if prevIndex > 0 {
				// the candidate was rubbish, so it belongs to the part data
				if !emit(PartData, p.lookbehind[:prevIndex]) {
					return interrupted()
				}

				prevIndex = 0
				p.partDataMark = i
				// the byte breaking the sequence may as well start a new one
				i--
			}
		case eEnd:
			// epilogue is ignored
		default:
			return fail(ErrMalformedBoundary)
		}
	}

	if !carry(HeaderField, &p.headerFieldMark) ||
		!carry(HeaderValue, &p.headerValueMark) ||
		!carry(PartData, &p.partDataMark) {
		return interrupted()
	}

	p.index = index
	p.state = state
	p.flags = flags

	return len(data), nil
}
