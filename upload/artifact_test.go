package upload

import (
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zeebo/blake3"
)

func newArtifact(t *testing.T, content string) *Artifact {
	path := filepath.Join(t.TempDir(), "127001-1-1.upload")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	return &Artifact{
		FieldName:   "doc",
		Filename:    "hello.txt",
		Path:        path,
		Size:        int64(len(content)),
		ContentType: "text/plain",
	}
}

func TestArtifact(t *testing.T) {
	const content = "Hello, world!"

	t.Run("read", func(t *testing.T) {
		a := newArtifact(t, content)
		data, err := a.ReadAll()
		require.NoError(t, err)
		require.Equal(t, content, string(data))

		f, err := a.Open()
		require.NoError(t, err)
		data, err = io.ReadAll(f)
		require.NoError(t, err)
		require.NoError(t, f.Close())
		require.Equal(t, content, string(data))
	})

	t.Run("copy", func(t *testing.T) {
		a := newArtifact(t, content)
		dst := filepath.Join(t.TempDir(), "nested", "dir", "copy.txt")
		require.NoError(t, a.CopyTo(dst))

		data, err := os.ReadFile(dst)
		require.NoError(t, err)
		require.Equal(t, content, string(data))
		require.FileExists(t, a.Path)
	})

	t.Run("digests", func(t *testing.T) {
		a := newArtifact(t, content)
		sum, err := a.MD5()
		require.NoError(t, err)
		require.Equal(t, "6cd3556deb0da54bca060b4c39479839", sum)

		want := blake3.Sum256([]byte(content))
		sum, err = a.Checksum()
		require.NoError(t, err)
		require.Equal(t, hex.EncodeToString(want[:]), sum)
	})

	t.Run("gone", func(t *testing.T) {
		a := newArtifact(t, content)
		require.NoError(t, a.Remove())

		_, err := a.ReadAll()
		require.ErrorIs(t, err, os.ErrNotExist)
		_, err = a.MD5()
		require.ErrorIs(t, err, os.ErrNotExist)
		_, err = a.Checksum()
		require.ErrorIs(t, err, os.ErrNotExist)
		require.ErrorIs(t, a.CopyTo(filepath.Join(t.TempDir(), "x")), os.ErrNotExist)
		require.ErrorIs(t, a.Remove(), os.ErrNotExist)
	})

	t.Run("families", func(t *testing.T) {
		a := &Artifact{ContentType: "image/png"}
		require.True(t, a.IsImage())
		require.False(t, a.IsVideo())

		a.ContentType = "video/mp4"
		require.True(t, a.IsVideo())
		require.False(t, a.IsAudio())

		a.ContentType = "audio/ogg"
		require.True(t, a.IsAudio())
		require.False(t, a.IsImage())
	})

	t.Run("safe filename", func(t *testing.T) {
		for filename, want := range map[string]string{
			"pic.png":              "pic.png",
			"../../etc/passwd":     "passwd",
			`C:\Users\me\pic.png`:  "pic.png",
			"..":                   "unnamed",
			"":                     "unnamed",
			"/":                    "unnamed",
			"evil\x00.png":         "evil.png",
			"dir/sub/report.v2.md": "report.v2.md",
		} {
			a := &Artifact{Filename: filename}
			require.Equal(t, want, a.SafeFilename(), filename)
		}
	})
}

func TestResult_Remove(t *testing.T) {
	first, second := newArtifact(t, "a"), newArtifact(t, "b")
	require.NoError(t, second.Remove())

	result := &Result{Files: []*Artifact{first, second}}
	require.NoError(t, result.Remove())
	require.NoFileExists(t, first.Path)
}
