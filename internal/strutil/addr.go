package strutil

import "strings"

// StripAddress turns a client address into something safe to embed into a file
// name: the port (if any) is dropped, together with dots and colons.
func StripAddress(addr string) string {
	if host, _, ok := splitHostPort(addr); ok {
		addr = host
	}

	var b strings.Builder
	b.Grow(len(addr))

	for i := 0; i < len(addr); i++ {
		switch c := addr[i]; c {
		case '.', ':', '[', ']', '/', '\\':
		default:
			b.WriteByte(c)
		}
	}

	if b.Len() == 0 {
		return "0"
	}

	return b.String()
}

func splitHostPort(addr string) (host, port string, ok bool) {
	if len(addr) > 0 && addr[0] == '[' {
		end := strings.IndexByte(addr, ']')
		if end == -1 {
			return "", "", false
		}

		if end+1 < len(addr) && addr[end+1] == ':' {
			return addr[1:end], addr[end+2:], true
		}

		return addr[1:end], "", true
	}

	// more than one colon is a bare IPv6 address without a port
	if strings.Count(addr, ":") != 1 {
		return "", "", false
	}

	colon := strings.IndexByte(addr, ':')
	return addr[:colon], addr[colon+1:], true
}
