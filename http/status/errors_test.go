package status

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	t.Run("plain", func(t *testing.T) {
		require.Equal(t, BadRequest, CodeOf(ErrMalformedMultipart))
	})

	t.Run("wrapped", func(t *testing.T) {
		err := fmt.Errorf("%w: unexpected end of stream", ErrMalformedMultipart)
		require.Equal(t, BadRequest, CodeOf(err))
		require.ErrorIs(t, err, ErrMalformedMultipart)
	})

	t.Run("joined", func(t *testing.T) {
		err := errors.Join(ErrBadGateway, context.DeadlineExceeded)
		require.Equal(t, BadGateway, CodeOf(err))
	})

	t.Run("foreign", func(t *testing.T) {
		require.Equal(t, InternalServerError, CodeOf(context.Canceled))
	})
}

func TestText(t *testing.T) {
	require.Equal(t, Status("Request Entity Too Large"), Text(RequestEntityTooLarge))
	require.Empty(t, Text(Code(299)))
}
