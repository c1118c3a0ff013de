package multipart

import (
	"strings"
	"testing"

	"github.com/dchest/uniuri"
	"github.com/stretchr/testify/require"

	"github.com/indigo-web/formstream/http/status"
)

type record struct {
	Kind EventKind
	Data string
}

func splitIntoParts(data []byte, n int) (parts [][]byte) {
	for ; len(data) > n; data = data[n:] {
		parts = append(parts, data[:n])
	}

	if len(data) > 0 {
		parts = append(parts, data)
	}

	return parts
}

// collect feeds the chunks one by one and glues together the fragments of
// headers and part data, so the result doesn't depend on how the body was split.
func collect(t *testing.T, p *Parser, chunks [][]byte) ([]record, error) {
	var records []record

	push := func(ev Event) {
		require.False(t, ev.Data != nil && len(ev.Data) == 0, "empty data event")

		if n := len(records); n > 0 && ev.Data != nil && records[n-1].Kind == ev.Kind {
			records[n-1].Data += string(ev.Data)
			return
		}

		records = append(records, record{Kind: ev.Kind, Data: string(ev.Data)})
	}

	for _, chunk := range chunks {
		for ev, err := range p.Parse(chunk) {
			if err != nil {
				return records, err
			}

			push(ev)
		}
	}

	for ev, err := range p.Finish() {
		if err != nil {
			return records, err
		}

		push(ev)
	}

	return records, nil
}

func testDifferentPartSizes(t *testing.T, boundary, body string, want []record) {
	for i := 1; i <= len(body); i++ {
		p, err := New(boundary)
		require.NoError(t, err)

		records, err := collect(t, p, splitIntoParts([]byte(body), i))
		require.NoErrorf(t, err, "happened with part size: %d", i)
		require.Equalf(t, want, records, "happened with part size: %d", i)
	}
}

func part(headers [][2]string, data string) []record {
	records := []record{{Kind: PartBegin}}
	for _, h := range headers {
		records = append(records,
			record{Kind: HeaderField, Data: h[0]},
			record{Kind: HeaderValue, Data: h[1]},
			record{Kind: HeaderEnd},
		)
	}

	records = append(records, record{Kind: HeadersEnd})
	if len(data) > 0 {
		records = append(records, record{Kind: PartData, Data: data})
	}

	return append(records, record{Kind: PartEnd})
}

func join(parts ...[]record) (records []record) {
	for _, p := range parts {
		records = append(records, p...)
	}

	return append(records, record{Kind: End})
}

func TestParser(t *testing.T) {
	t.Run("real-world example", func(t *testing.T) {
		body := "------WebKitFormBoundary7MA4YWxkTrZu0gW\r\nContent-Disposition: form-data; " +
			"name=\"username\"\r\n\r\nAlice\r\n------WebKitFormBoundary7MA4YWxkTrZu0gW\r\nCo" +
			"ntent-Disposition: form-data; name=\"profile_pic\"; filename=\"profile.png\"\r\n" +
			"Content-Type: image/png\r\n\r\n[binary file content]\r\n------WebKitFormBoundary7MA4YWxkTrZu0gW--\r\n"

		want := join(
			part([][2]string{
				{"Content-Disposition", `form-data; name="username"`},
			}, "Alice"),
			part([][2]string{
				{"Content-Disposition", `form-data; name="profile_pic"; filename="profile.png"`},
				{"Content-Type", "image/png"},
			}, "[binary file content]"),
		)

		testDifferentPartSizes(t, "----WebKitFormBoundary7MA4YWxkTrZu0gW", body, want)
	})

	t.Run("empty part body", func(t *testing.T) {
		body := "--XYZ\r\nContent-Disposition: form-data; name=\"a\"\r\n\r\n\r\n--XYZ--"
		want := join(part([][2]string{{"Content-Disposition", `form-data; name="a"`}}, ""))
		testDifferentPartSizes(t, "XYZ", body, want)
	})

	t.Run("no parts at all", func(t *testing.T) {
		testDifferentPartSizes(t, "XYZ", "--XYZ--\r\n", []record{{Kind: End}})
	})

	t.Run("preamble", func(t *testing.T) {
		body := "this is a preamble\r\n--XYZ\r\nX-A: b\r\n\r\nhello\r\n--XYZ--"
		want := join(part([][2]string{{"X-A", "b"}}, "hello"))
		testDifferentPartSizes(t, "XYZ", body, want)
	})

	t.Run("epilogue", func(t *testing.T) {
		body := "--XYZ\r\nX-A: b\r\n\r\nhello\r\n--XYZ--\r\nwhatever goes here --XYZ\r\n"
		want := join(part([][2]string{{"X-A", "b"}}, "hello"))
		testDifferentPartSizes(t, "XYZ", body, want)
	})

	t.Run("false partial match", func(t *testing.T) {
		data := "x\r\n--XY\r\n-\r\n--XYa"
		body := "--XYZ\r\nX-A: b\r\n\r\n" + data + "\r\n--XYZ--"
		want := join(part([][2]string{{"X-A", "b"}}, data))
		testDifferentPartSizes(t, "XYZ", body, want)
	})

	t.Run("breaking byte starts a new candidate", func(t *testing.T) {
		body := "--XYZ\r\nX-A: b\r\n\r\nx\r\n--XY\r\n--XYZ--"
		want := join(part([][2]string{{"X-A", "b"}}, "x\r\n--XY"))
		testDifferentPartSizes(t, "XYZ", body, want)
	})

	t.Run("stale boundary flags", func(t *testing.T) {
		data := "\r\n--XYZ-a\r\n--XYZ\rb"
		body := "--XYZ\r\nX-A: b\r\n\r\n" + data + "\r\n--XYZ--"
		want := join(part([][2]string{{"X-A", "b"}}, data))
		testDifferentPartSizes(t, "XYZ", body, want)
	})

	t.Run("random boundary and payload", func(t *testing.T) {
		boundary := uniuri.NewLen(40)
		first, second := uniuri.NewLen(300), strings.Repeat(uniuri.NewLen(7)+"\r\n-", 20)
		body := "--" + boundary + "\r\nContent-Disposition: form-data; name=\"first\"\r\n\r\n" + first +
			"\r\n--" + boundary + "\r\nContent-Disposition: form-data; name=\"second\"\r\n\r\n" + second +
			"\r\n--" + boundary + "--\r\n"

		want := join(
			part([][2]string{{"Content-Disposition", `form-data; name="first"`}}, first),
			part([][2]string{{"Content-Disposition", `form-data; name="second"`}}, second),
		)

		testDifferentPartSizes(t, boundary, body, want)
	})

	t.Run("ends right after a boundary", func(t *testing.T) {
		want := []record{{Kind: PartBegin}, {Kind: PartEnd}, {Kind: End}}
		testDifferentPartSizes(t, "XYZ", "--XYZ\r\n", want)
	})

	t.Run("ends with the boundary without suffix", func(t *testing.T) {
		body := "--XYZ\r\nX-A: b\r\n\r\nhello\r\n--XYZ"
		want := join(part([][2]string{{"X-A", "b"}}, "hello"))
		testDifferentPartSizes(t, "XYZ", body, want)
	})
}

func TestParser_Negative(t *testing.T) {
	t.Run("empty boundary", func(t *testing.T) {
		_, err := New("")
		require.ErrorIs(t, err, status.ErrInvalidBoundary)
	})

	t.Run("uninitialized", func(t *testing.T) {
		var p Parser
		_, err := collect(t, &p, [][]byte{[]byte("--XYZ\r\n")})
		require.ErrorIs(t, err, ErrUninitialized)
	})

	t.Run("malformed header field", func(t *testing.T) {
		body := "--XYZ\r\nContent_Type: text/plain\r\n\r\nhi\r\n--XYZ--"
		p, err := New("XYZ")
		require.NoError(t, err)

		_, err = collect(t, p, [][]byte{[]byte(body)})
		require.ErrorIs(t, err, ErrMalformedHeader)
		require.ErrorIs(t, err, status.ErrMalformedMultipart)
		require.Equal(t, strings.IndexByte(body, '_'), p.Consumed())

		var syntaxErr *SyntaxError
		require.ErrorAs(t, err, &syntaxErr)
		require.Equal(t, p.Consumed(), syntaxErr.Offset)
		require.Equal(t, "header field", syntaxErr.State)
	})

	t.Run("header line without colon", func(t *testing.T) {
		p, err := New("XYZ")
		require.NoError(t, err)

		_, err = collect(t, p, [][]byte{[]byte("--XYZ\r\nContent\r\n\r\n")})
		require.ErrorIs(t, err, ErrMalformedHeader)
	})

	t.Run("empty header field", func(t *testing.T) {
		p, err := New("XYZ")
		require.NoError(t, err)

		_, err = collect(t, p, [][]byte{[]byte("--XYZ\r\n: value\r\n\r\n")})
		require.ErrorIs(t, err, ErrMalformedHeader)
	})

	t.Run("missing LF after header", func(t *testing.T) {
		p, err := New("XYZ")
		require.NoError(t, err)

		_, err = collect(t, p, [][]byte{[]byte("--XYZ\r\nX-A: b\rX")})
		require.ErrorIs(t, err, ErrMalformedHeader)
	})

	t.Run("malformed first boundary", func(t *testing.T) {
		p, err := New("XYZ")
		require.NoError(t, err)

		_, err = collect(t, p, [][]byte{[]byte("--XYZ!\r\n")})
		require.ErrorIs(t, err, ErrMalformedBoundary)
		require.Equal(t, 5, p.Consumed())
	})

	t.Run("truncated in the middle of headers", func(t *testing.T) {
		body := "--XYZ\r\nContent-Disposition: form-da"
		for i := 1; i <= len(body); i++ {
			p, err := New("XYZ")
			require.NoError(t, err)

			_, err = collect(t, p, splitIntoParts([]byte(body), i))
			require.ErrorIs(t, err, ErrUnexpectedEOF)
			require.ErrorIs(t, err, status.ErrMalformedMultipart)
		}
	})

	t.Run("truncated in the middle of data", func(t *testing.T) {
		p, err := New("XYZ")
		require.NoError(t, err)

		_, err = collect(t, p, [][]byte{[]byte("--XYZ\r\nX-A: b\r\n\r\nhello\r\n--XY")})
		require.ErrorIs(t, err, ErrUnexpectedEOF)
	})

	t.Run("failed parser stays failed", func(t *testing.T) {
		p, err := New("XYZ")
		require.NoError(t, err)

		_, err = collect(t, p, [][]byte{[]byte("--XYZ\r\n?\r\n")})
		require.ErrorIs(t, err, ErrMalformedHeader)

		for _, err := range p.Parse([]byte("whatever")) {
			require.ErrorIs(t, err, ErrMalformedHeader)
		}
		require.Zero(t, p.Consumed())
	})

	t.Run("interrupted", func(t *testing.T) {
		p, err := New("XYZ")
		require.NoError(t, err)

		for range p.Parse([]byte("--XYZ\r\nX-A: b\r\n\r\nhello\r\n--XYZ--")) {
			break
		}

		for _, err := range p.Finish() {
			require.ErrorIs(t, err, ErrInterrupted)
		}
	})

	t.Run("reusable after init", func(t *testing.T) {
		p, err := New("XYZ")
		require.NoError(t, err)

		_, err = collect(t, p, [][]byte{[]byte("--XYZ\r\n?")})
		require.Error(t, err)

		require.NoError(t, p.Init("ABC"))
		records, err := collect(t, p, [][]byte{[]byte("--ABC--")})
		require.NoError(t, err)
		require.Equal(t, []record{{Kind: End}}, records)
		require.True(t, p.Done())
	})
}
