// Package store persists uploaded files once they are out of the temporary directory.
package store

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/indigo-web/formstream/config"
	"github.com/indigo-web/formstream/upload"
)

var (
	ErrInvalidKey      = errors.New("invalid object key")
	ErrNotFound        = errors.New("object not found")
	ErrInvalidConfig   = errors.New("invalid storage configuration")
	ErrBucketNotFound  = errors.New("bucket not found")
	ErrAccessDenied    = errors.New("access denied")
	ErrUnavailable     = errors.New("storage temporarily unavailable")
	ErrOperationFailed = errors.New("storage operation failed")
)

// Object describes a persisted file.
type Object struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	// Checksum is the hex-encoded BLAKE3 digest of the content.
	Checksum string `json:"checksum"`
}

// Storage persists artifacts under keys. Save consumes the artifact: on success its
// temporary file no longer exists.
type Storage interface {
	Save(ctx context.Context, artifact *upload.Artifact, key string) (*Object, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// New builds the storage the config selects. An empty backend means no persistence,
// in which case nil is returned.
func New(ctx context.Context, cfg config.Store) (Storage, error) {
	switch cfg.Backend {
	case "":
		return nil, nil
	case config.BackendLocal:
		return NewLocal(cfg.Local.Dir, cfg.Local.BaseURL)
	case config.BackendS3:
		return NewS3(ctx, cfg.S3)
	default:
		return nil, ErrInvalidConfig
	}
}

// cleanKey normalizes a slash-separated key, refusing anything escaping the root.
func cleanKey(key string) (string, error) {
	key = strings.ReplaceAll(key, "\\", "/")
	if strings.Contains(key, "\x00") {
		return "", ErrInvalidKey
	}

	for _, segment := range strings.Split(key, "/") {
		if segment == ".." {
			return "", ErrInvalidKey
		}
	}

	key = strings.TrimPrefix(path.Clean("/"+key), "/")
	if len(key) == 0 {
		return "", ErrInvalidKey
	}

	return key, nil
}

func withSlash(url string) string {
	if len(url) > 0 && !strings.HasSuffix(url, "/") {
		return url + "/"
	}

	return url
}
