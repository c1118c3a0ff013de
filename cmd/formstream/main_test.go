package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/json-iterator/go"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

const body = "--XYZ\r\n" +
	"Content-Disposition: form-data; name=\"username\"\r\n\r\n" +
	"Alice\r\n" +
	"--XYZ\r\n" +
	"Content-Disposition: form-data; name=\"doc\"; filename=\"notes.txt\"\r\n" +
	"Content-Type: text/plain\r\n\r\n" +
	"hello\r\n" +
	"--XYZ--\r\n"

type printedResult struct {
	Fields map[string]any `json:"fields"`
	Files  []struct {
		Filename    string `json:"filename"`
		Path        string `json:"path"`
		Size        int64  `json:"size"`
		ContentType string `json:"content_type"`
	} `json:"files"`
	Exceeded bool `json:"exceeded"`
}

func chunked(data string) string {
	var out strings.Builder
	for len(data) > 0 {
		n := min(len(data), 7)
		_, _ = fmt.Fprintf(&out, "%x\r\n%s\r\n", n, data[:n])
		data = data[n:]
	}

	out.WriteString("0\r\n\r\n")
	return out.String()
}

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"-b", "XYZ", "--keep", "body.bin"})
	require.NoError(t, err)
	require.Equal(t, "multipart/form-data; boundary=XYZ", opts.contentType)
	require.Equal(t, "body.bin", opts.input)
	require.True(t, opts.keep)

	opts, err = parseFlags([]string{"-t", "multipart/mixed; boundary=a"})
	require.NoError(t, err)
	require.Equal(t, "-", opts.input)

	_, err = parseFlags(nil)
	require.Error(t, err)

	_, err = parseFlags([]string{"-b", "XYZ", "a", "b"})
	require.Error(t, err)
}

func TestRun(t *testing.T) {
	parse := func(t *testing.T, input string, args ...string) (*options, printedResult) {
		opts, err := parseFlags(append([]string{"--temp-dir", t.TempDir()}, args...))
		require.NoError(t, err)

		out := new(bytes.Buffer)
		require.NoError(t, run(context.Background(), opts, strings.NewReader(input), out))

		var result printedResult
		require.NoError(t, json.Unmarshal(out.Bytes(), &result))
		return opts, result
	}

	t.Run("stdin", func(t *testing.T) {
		opts, result := parse(t, body, "-b", "XYZ")
		require.Equal(t, map[string]any{"username": "Alice"}, result.Fields)
		require.Len(t, result.Files, 1)
		require.Equal(t, "notes.txt", result.Files[0].Filename)
		require.Equal(t, int64(5), result.Files[0].Size)
		require.Equal(t, "text/plain", result.Files[0].ContentType)
		require.NoFileExists(t, result.Files[0].Path)

		entries, err := os.ReadDir(opts.tempDir)
		require.NoError(t, err)
		require.Empty(t, entries)
	})

	t.Run("keep", func(t *testing.T) {
		_, result := parse(t, body, "-b", "XYZ", "--keep")
		require.Len(t, result.Files, 1)

		data, err := os.ReadFile(result.Files[0].Path)
		require.NoError(t, err)
		require.Equal(t, "hello", string(data))
	})

	t.Run("file input", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "body.bin")
		require.NoError(t, os.WriteFile(path, []byte(body), 0600))

		_, result := parse(t, "", "-b", "XYZ", path)
		require.Equal(t, map[string]any{"username": "Alice"}, result.Fields)
	})

	t.Run("chunked", func(t *testing.T) {
		_, result := parse(t, chunked(body), "-b", "XYZ", "--chunked")
		require.Equal(t, map[string]any{"username": "Alice"}, result.Fields)
		require.Len(t, result.Files, 1)
	})

	t.Run("gzip", func(t *testing.T) {
		encoded := new(bytes.Buffer)
		gz := gzip.NewWriter(encoded)
		_, err := gz.Write([]byte(body))
		require.NoError(t, err)
		require.NoError(t, gz.Close())

		_, result := parse(t, encoded.String(), "-b", "XYZ", "-e", "gzip")
		require.Equal(t, map[string]any{"username": "Alice"}, result.Fields)
	})

	t.Run("exceeded", func(t *testing.T) {
		_, result := parse(t, body, "-b", "XYZ", "--max-size", "3")
		require.True(t, result.Exceeded)
		require.Empty(t, result.Files)
	})

	t.Run("mixed", func(t *testing.T) {
		opts, err := parseFlags([]string{"--temp-dir", t.TempDir(), "-b", "XYZ", "--mixed"})
		require.NoError(t, err)

		out := new(bytes.Buffer)
		require.NoError(t, run(context.Background(), opts, strings.NewReader(body), out))

		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		require.Len(t, lines, 1)
		require.Contains(t, lines[0], `"filename":"notes.txt"`)
	})

	t.Run("malformed", func(t *testing.T) {
		opts, err := parseFlags([]string{"--temp-dir", t.TempDir(), "-b", "XYZ"})
		require.NoError(t, err)

		err = run(context.Background(), opts, strings.NewReader("--XYZ\r\n:\r\n"), new(bytes.Buffer))
		require.Error(t, err)
	})
}
