package strutil

import (
	"iter"
	"strings"
)

// WalkKV iterates over `key=value` pairs of a header parameters section, e.g.
// `name="avatar"; filename="pic.png"`. Values may be quoted strings, in which case
// quotes are dropped and `\"`, `\\` escapes are resolved. Keys without a value are
// yielded with an empty value. On malformed input a pair of empty strings is yielded
// and the iteration stops.
func WalkKV(data string) iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		for {
			data = LStripWS(data)
			if len(data) == 0 {
				return
			}

			if data[0] == ';' {
				data = data[1:]
				continue
			}

			sep := strings.IndexAny(data, "=;")
			if sep == -1 || data[sep] == ';' {
				var key string
				if sep == -1 {
					key, data = RStripWS(data), ""
				} else {
					key, data = RStripWS(data[:sep]), data[sep+1:]
				}

				if !isToken(key) {
					yield("", "")
					return
				}

				if !yield(key, "") {
					return
				}

				continue
			}

			key := RStripWS(data[:sep])
			if !isToken(key) {
				yield("", "")
				return
			}

			data = LStripWS(data[sep+1:])

			var value string
			if len(data) > 0 && data[0] == '"' {
				var ok bool
				value, data, ok = cutQuoted(data)
				if !ok {
					yield("", "")
					return
				}

				data = LStripWS(data)
				if len(data) > 0 && data[0] != ';' {
					yield("", "")
					return
				}
			} else {
				end := strings.IndexByte(data, ';')
				if end == -1 {
					end = len(data)
				}

				value, data = RStripWS(data[:end]), data[end:]
			}

			if !yield(key, value) {
				return
			}
		}
	}
}

func isToken(str string) bool {
	if len(str) == 0 {
		return false
	}

	for i := 0; i < len(str); i++ {
		switch c := str[i]; {
		case c <= ' ', c >= 0x7f, c == '"', c == ',', c == '(', c == ')':
			return false
		}
	}

	return true
}

// cutQuoted expects str to begin with a quote. It returns the unquoted value and
// whatever follows the closing quote.
func cutQuoted(str string) (value, rest string, ok bool) {
	escaped := false

	for i := 1; i < len(str); i++ {
		switch str[i] {
		case '\\':
			if i+1 < len(str) && (str[i+1] == '"' || str[i+1] == '\\') {
				escaped = true
				i++
			}
		case '"':
			value = str[1:i]
			if escaped {
				value = unescape(value)
			}

			return value, str[i+1:], true
		}
	}

	return "", "", false
}

func unescape(str string) string {
	var b strings.Builder
	b.Grow(len(str))

	for i := 0; i < len(str); i++ {
		if str[i] == '\\' && i+1 < len(str) && (str[i+1] == '"' || str[i+1] == '\\') {
			i++
		}

		b.WriteByte(str[i])
	}

	return b.String()
}
