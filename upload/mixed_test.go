package upload

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/require"

	"github.com/indigo-web/formstream/config"
	"github.com/indigo-web/formstream/http/status"
)

func TestSession_ParseMixed(t *testing.T) {
	avatar := encodePNG(t, 4, 3)
	body := buildBody("XYZ",
		file("avatar", "a.png", "image/png", avatar),
		field("ignored", "some value"),
		file("notes", "notes.txt", "text/plain", "Hello, world!"),
	)

	t.Run("delivers every file", func(t *testing.T) {
		s, dir := newTestSession(t, func(cfg *config.Config) {
			// the ceiling is not applied to mixed mode
			cfg.Upload.MaxSize = 1
		})

		var delivered []*Artifact
		sentinels := 0
		err := s.ParseMixed(context.Background(), iotest.OneByteReader(strings.NewReader(body)), contentType,
			func(artifact *Artifact) error {
				if artifact == nil {
					sentinels++
					return nil
				}

				require.Zero(t, sentinels, "file delivered after the sentinel")
				// the file must be complete by the time it's delivered
				data, err := artifact.ReadAll()
				require.NoError(t, err)
				require.Equal(t, artifact.Size, int64(len(data)))

				delivered = append(delivered, artifact)
				return nil
			})

		require.NoError(t, err)
		require.Equal(t, 1, sentinels)
		require.Len(t, delivered, 2)
		require.Equal(t, "avatar", delivered[0].FieldName)
		require.Equal(t, 4, delivered[0].Width)
		require.Equal(t, 3, delivered[0].Height)
		require.Equal(t, "notes", delivered[1].FieldName)
		require.Equal(t, "notes.txt", delivered[1].Filename)
		require.Len(t, dirEntries(t, dir), 2)
	})

	t.Run("callback error aborts", func(t *testing.T) {
		s, dir := newTestSession(t)
		errStop := errors.New("enough")

		var delivered []*Artifact
		err := s.ParseMixed(context.Background(), strings.NewReader(body), contentType,
			func(artifact *Artifact) error {
				require.NotNil(t, artifact)
				delivered = append(delivered, artifact)
				return errStop
			})

		require.ErrorIs(t, err, errStop)
		require.Len(t, delivered, 1)
		// delivered files belong to the callee
		require.FileExists(t, delivered[0].Path)
		require.Len(t, dirEntries(t, dir), 1)
	})

	t.Run("malformed body", func(t *testing.T) {
		s, dir := newTestSession(t)
		truncated := body[:len(body)-len("Hello, world!\r\n--XYZ--\r\n")]

		var delivered []*Artifact
		err := s.ParseMixed(context.Background(), strings.NewReader(truncated), contentType,
			func(artifact *Artifact) error {
				require.NotNil(t, artifact, "sentinel must not be sent on failure")
				delivered = append(delivered, artifact)
				return nil
			})

		require.ErrorIs(t, err, status.ErrMalformedMultipart)
		require.Len(t, delivered, 1)
		entries := dirEntries(t, dir)
		require.Len(t, entries, 1)

		_, err = os.Stat(delivered[0].Path)
		require.NoError(t, err)
	})
}
