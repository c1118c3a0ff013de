package multipart

type EventKind uint8

const (
	PartBegin EventKind = iota + 1
	HeaderField
	HeaderValue
	// HeaderEnd marks the end of a single header line.
	HeaderEnd
	// HeadersEnd marks the end of the whole headers section of a part.
	HeadersEnd
	PartData
	PartEnd
	End
)

func (k EventKind) String() string {
	switch k {
	case PartBegin:
		return "PartBegin"
	case HeaderField:
		return "HeaderField"
	case HeaderValue:
		return "HeaderValue"
	case HeaderEnd:
		return "HeaderEnd"
	case HeadersEnd:
		return "HeadersEnd"
	case PartData:
		return "PartData"
	case PartEnd:
		return "PartEnd"
	case End:
		return "End"
	default:
		return "Unknown"
	}
}

// Event is a single parser notification. Data is set only for HeaderField,
// HeaderValue and PartData and is never empty for them. It may point either into
// the chunk passed to Parser.Parse or into the parser's own lookbehind buffer, so
// it stays valid only until the next call to the parser. A single header field,
// value or part body may be split across any number of events.
type Event struct {
	Kind EventKind
	Data []byte
}
