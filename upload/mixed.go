package upload

import (
	"context"
	"io"
	"log/slog"

	"github.com/indigo-web/formstream/internal/spool"
)

// ParseMixed consumes a multipart body, caring only about file parts: regular fields
// are skipped and no size ceiling is applied. Every file is passed to onFile once
// completely written, after which it belongs to the callee. When the body is over,
// onFile is called with nil.
//
// An error returned by onFile stops the parsing and is returned as is. Files not yet
// delivered are removed in that case, as well as on any other error.
func (s *Session) ParseMixed(ctx context.Context, body io.Reader, contentType string, onFile func(*Artifact) error) error {
	c := s.newCollector(true, onFile)
	if err := s.consume(ctx, body, contentType, c); err != nil {
		c.abort()
		s.Logger.Debug("multipart body rejected", slog.Any("error", err))
		return err
	}

	c.group.Wait()
	return onFile(nil)
}

func (c *collector) deliver(artifact *Artifact, file *spool.File) error {
	if _, err := file.Wait(); err != nil {
		c.dropped(artifact, err)
		c.disown(artifact.Path)
		return nil
	}

	c.disown(artifact.Path)
	return c.onFile(artifact)
}
