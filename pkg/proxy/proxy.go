// Package proxy terminates TLS and forwards requests by Host header to the
// locally bound port of the matching service's most recent deployment.
package proxy

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/doseidotio/doseid/pkg/log"
	"github.com/doseidotio/doseid/pkg/metrics"
	"github.com/doseidotio/doseid/pkg/store"
)

// Store is the slice of the data layer the proxy needs.
type Store interface {
	FindDeploymentByHost(ctx context.Context, host string) (*store.Deployment, error)
	GetCertificateByDomain(ctx context.Context, domain string) (*store.Certificate, error)
}

// Toucher records deployment traffic asynchronously.
type Toucher interface {
	TouchLastAccessed(id uuid.UUID)
}

// Proxy routes inbound requests to deployment containers.
type Proxy struct {
	store   Store
	toucher Toucher
}

// New creates a proxy over the given store.
func New(st Store, toucher Toucher) *Proxy {
	return &Proxy{store: st, toucher: toucher}
}

// ServeHTTP resolves the request's Host header to a deployment and forwards
// the request to 127.0.0.1:<host_port>, preserving path and query. Unknown
// hosts and unexposed deployments yield 404; upstream failures yield 400.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	host := requestHost(r)
	if host == "" {
		p.reply(w, http.StatusNotFound, "not_found", start)
		return
	}

	deployment, err := p.store.FindDeploymentByHost(r.Context(), host)
	if err == store.ErrNotFound {
		p.reply(w, http.StatusNotFound, "not_found", start)
		return
	}
	if err != nil {
		logger := log.WithComponent("proxy")
		logger.Error().Err(err).Str("host", host).Msg("deployment lookup failed")
		p.reply(w, http.StatusNotFound, "not_found", start)
		return
	}
	if deployment.HostPort == nil {
		p.reply(w, http.StatusNotFound, "not_found", start)
		return
	}

	target := &url.URL{Scheme: "http", Host: fmt.Sprintf("127.0.0.1:%d", *deployment.HostPort)}
	rp := httputil.NewSingleHostReverseProxy(target)
	rp.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger := log.WithComponent("proxy")
		logger.Error().Err(err).Str("host", host).Msg("upstream request failed")
		p.reply(w, http.StatusBadRequest, "upstream_error", start)
	}
	rp.ModifyResponse = func(*http.Response) error {
		p.toucher.TouchLastAccessed(deployment.ID)
		metrics.ProxyRequestsTotal.WithLabelValues("ok").Inc()
		metrics.ProxyRequestDuration.Observe(time.Since(start).Seconds())
		return nil
	}
	rp.ServeHTTP(w, r)
}

func (p *Proxy) reply(w http.ResponseWriter, status int, outcome string, start time.Time) {
	metrics.ProxyRequestsTotal.WithLabelValues(outcome).Inc()
	metrics.ProxyRequestDuration.Observe(time.Since(start).Seconds())
	w.WriteHeader(status)
}

// requestHost strips any port from the Host header.
func requestHost(r *http.Request) string {
	host := r.Host
	if host == "" {
		return ""
	}
	for i := 0; i < len(host); i++ {
		if host[i] == ':' {
			return host[:i]
		}
	}
	return host
}
