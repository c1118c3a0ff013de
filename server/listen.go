package server

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/crypto/acme/autocert"

	"github.com/indigo-web/formstream/config"
)

const shutdownTimeout = 5 * time.Second

// ListenAndServe serves the handler until the context is done, then shuts down
// gracefully. When domains are configured, certificates for them are obtained
// automatically and the server speaks TLS only.
func ListenAndServe(ctx context.Context, cfg config.Server, handler http.Handler) error {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	if len(cfg.Domains) > 0 {
		tlsConfig, err := autoTLS(cfg)
		if err != nil {
			return err
		}

		srv.TLSConfig = tlsConfig
	}

	errCh := make(chan error, 1)
	go func() {
		if srv.TLSConfig != nil {
			errCh <- srv.ListenAndServeTLS("", "")
		} else {
			errCh <- srv.ListenAndServe()
		}
	}()

	var err error
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			return serr
		}

		err = <-errCh
	case err = <-errCh:
	}

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}

func autoTLS(cfg config.Server) (*tls.Config, error) {
	m := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(cfg.Domains...),
	}

	if len(cfg.CertCache) > 0 {
		if err := os.MkdirAll(cfg.CertCache, 0700); err != nil {
			return nil, err
		}

		m.Cache = autocert.DirCache(cfg.CertCache)
	}

	return m.TLSConfig(), nil
}
