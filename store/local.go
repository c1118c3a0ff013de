package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"github.com/indigo-web/formstream/upload"
)

// Local keeps files in a directory. Every key is confined to it.
type Local struct {
	baseDir string
	baseURL string
}

func NewLocal(baseDir, baseURL string) (*Local, error) {
	if len(baseDir) == 0 {
		return nil, fmt.Errorf("%w: empty directory", ErrInvalidConfig)
	}

	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if err = os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}

	return &Local{
		baseDir: abs,
		baseURL: withSlash(baseURL),
	}, nil
}

// Save moves the artifact into the directory. When the temporary directory lives on
// another device, the file is copied instead.
func (l *Local) Save(ctx context.Context, artifact *upload.Artifact, key string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key, dst, err := l.resolve(key)
	if err != nil {
		return nil, err
	}

	checksum, err := artifact.Checksum()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}

	if err = os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}

	if err = os.Rename(artifact.Path, dst); err != nil {
		if !errors.Is(err, syscall.EXDEV) {
			return nil, fmt.Errorf("%w: %w", ErrOperationFailed, err)
		}

		if err = artifact.CopyTo(dst); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrOperationFailed, err)
		}

		_ = artifact.Remove()
	}

	artifact.Path = dst

	return &Object{
		Key:         key,
		URL:         l.URL(key),
		Size:        artifact.Size,
		ContentType: artifact.ContentType,
		Checksum:    checksum,
	}, nil
}

func (l *Local) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, dst, err := l.resolve(key)
	if err != nil {
		return err
	}

	info, err := os.Stat(dst)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	case err != nil:
		return fmt.Errorf("%w: %v", ErrOperationFailed, err)
	case info.IsDir():
		return fmt.Errorf("%w: %s is a directory", ErrInvalidKey, key)
	}

	if err = os.Remove(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrOperationFailed, err)
	}

	return nil
}

// Dir returns the absolute path of the directory.
func (l *Local) Dir() string {
	return l.baseDir
}

func (l *Local) URL(key string) string {
	return l.baseURL + key
}

// Path returns the absolute path of the key within the directory.
func (l *Local) Path(key string) (string, error) {
	_, abs, err := l.resolve(key)
	return abs, err
}

func (l *Local) resolve(key string) (clean, abs string, err error) {
	clean, err = cleanKey(key)
	if err != nil {
		return "", "", err
	}

	abs = filepath.Join(l.baseDir, filepath.FromSlash(clean))
	return clean, abs, nil
}
