package multipart

type parserState uint8

const (
	eUninitialized parserState = iota
	eStart
	eStartBoundary
	eHeaderFieldStart
	eHeaderField
	eHeaderValueStart
	eHeaderValue
	eHeaderValueAlmostDone
	eHeadersAlmostDone
	ePartDataStart
	ePartData
	ePartEnd
	eEnd
)

func (s parserState) String() string {
	switch s {
	case eUninitialized:
		return "uninitialized"
	case eStart:
		return "start"
	case eStartBoundary:
		return "start boundary"
	case eHeaderFieldStart:
		return "header field start"
	case eHeaderField:
		return "header field"
	case eHeaderValueStart:
		return "header value start"
	case eHeaderValue:
		return "header value"
	case eHeaderValueAlmostDone:
		return "header value almost done"
	case eHeadersAlmostDone:
		return "headers almost done"
	case ePartDataStart:
		return "part data start"
	case ePartData:
		return "part data"
	case ePartEnd:
		return "part end"
	case eEnd:
		return "end"
	default:
		return "unknown"
	}
}

type boundaryFlags uint8

const (
	fPartBoundary boundaryFlags = 1 << iota
	fLastBoundary
)
