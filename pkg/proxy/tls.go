package proxy

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/doseidotio/doseid/pkg/log"
	"github.com/doseidotio/doseid/pkg/store"
)

const certLookupTimeout = 5 * time.Second

// GetCertificate resolves the handshake's SNI server name to a stored
// certificate. Handshakes for unknown names fail.
func (p *Proxy) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	if hello.ServerName == "" {
		return nil, fmt.Errorf("missing server name")
	}
	ctx, cancel := context.WithTimeout(context.Background(), certLookupTimeout)
	defer cancel()

	cert, err := p.store.GetCertificateByDomain(ctx, hello.ServerName)
	if err == store.ErrNotFound {
		return nil, fmt.Errorf("no certificate for %s", hello.ServerName)
	}
	if err != nil {
		return nil, fmt.Errorf("certificate lookup failed for %s: %w", hello.ServerName, err)
	}

	pair, err := tls.X509KeyPair([]byte(cert.Certificate), []byte(cert.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("failed to load key pair for %s: %w", hello.ServerName, err)
	}
	return &pair, nil
}

// ListenAndServeTLS serves the proxy over TLS on addr, resolving certificates
// per handshake from the store. Blocks until the context is cancelled or the
// listener fails.
func (p *Proxy) ListenAndServeTLS(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:    addr,
		Handler: p,
		TLSConfig: &tls.Config{
			GetCertificate: p.GetCertificate,
			MinVersion:     tls.VersionTLS12,
		},
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger := log.WithComponent("proxy")
			logger.Error().Err(err).Msg("proxy shutdown failed")
		}
	}()
	logger := log.WithComponent("proxy")
	logger.Info().Str("address", addr).Msg("proxy server running")
	err := server.ListenAndServeTLS("", "")
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
