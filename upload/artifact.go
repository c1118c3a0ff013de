package upload

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/indigo-web/formstream/http/mime"
)

// Artifact describes a file part that was completely written to disk.
type Artifact struct {
	// FieldName is the name of the form field the file was sent under.
	FieldName string `json:"field"`
	// Filename is the file name as the client declared it. Never use it for paths
	// as is, see SafeFilename instead.
	Filename string `json:"filename"`
	// Path points to the spooled file in the temporary directory.
	Path        string `json:"path"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	// Width and Height are set for JPEG, GIF and PNG images only, and only when
	// their headers could be read.
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
}

func (a *Artifact) IsImage() bool {
	return mime.IsImage(a.ContentType)
}

func (a *Artifact) IsVideo() bool {
	return mime.IsVideo(a.ContentType)
}

func (a *Artifact) IsAudio() bool {
	return mime.IsAudio(a.ContentType)
}

// Open opens the spooled file for reading.
func (a *Artifact) Open() (*os.File, error) {
	return os.Open(a.Path)
}

// ReadAll reads the whole file into memory.
func (a *Artifact) ReadAll() ([]byte, error) {
	return os.ReadFile(a.Path)
}

// CopyTo copies the file to the destination path, creating missing directories.
// The spooled file itself stays untouched.
func (a *Artifact) CopyTo(dst string) (err error) {
	src, err := a.Open()
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	if err = os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}

		if err != nil {
			_ = os.Remove(dst)
		}
	}()

	_, err = io.Copy(out, src)
	return err
}

// MD5 returns the hex-encoded MD5 digest of the file.
func (a *Artifact) MD5() (string, error) {
	return a.digest(md5.New())
}

// Checksum returns the hex-encoded BLAKE3 digest of the file.
func (a *Artifact) Checksum() (string, error) {
	return a.digest(blake3.New())
}

func (a *Artifact) digest(h hash.Hash) (string, error) {
	f, err := a.Open()
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	if _, err = io.Copy(h, f); err != nil {
		return "", fmt.Errorf("digest %s: %w", a.Path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// SafeFilename returns the base name of the declared file name, with no path
// separators or NUL bytes left. Meaningless names become "unnamed".
func (a *Artifact) SafeFilename() string {
	name := strings.ReplaceAll(a.Filename, "\\", "/")
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "\x00", "")

	switch name {
	case ".", "..", "/", "":
		return "unnamed"
	}

	return name
}

// Remove deletes the spooled file.
func (a *Artifact) Remove() error {
	return os.Remove(a.Path)
}
