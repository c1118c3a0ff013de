package server

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogRequests(t *testing.T) {
	buff := new(bytes.Buffer)
	logger := slog.New(slog.NewTextHandler(buff, nil))

	handler := LogRequests(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/teapot" {
			w.WriteHeader(http.StatusTeapot)
		}

		_, _ = w.Write([]byte("hi"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/hello%20world", nil))
	require.Contains(t, buff.String(), "method=GET")
	require.Contains(t, buff.String(), "path=/hello%20world")
	require.Contains(t, buff.String(), "status=200")
	require.Contains(t, buff.String(), "bytes=2")

	buff.Reset()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/teapot", nil))
	require.Contains(t, buff.String(), "status=418")
}
