package certificate

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/crypto/acme"

	"github.com/doseidotio/doseid/pkg/log"
	"github.com/doseidotio/doseid/pkg/metrics"
)

const (
	externalBaseBackoff = 250 * time.Millisecond
	externalBackoffStep = 4
)

// internalCheckLoop probes every pending domain from this node before the CA
// is ever asked to. A domain whose DNS does not point here yet stays pending
// until the cache evicts it.
func (m *Manager) internalCheckLoop(ctx context.Context) {
	ticker := time.NewTicker(internalCheckSpan)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for domain, item := range m.pending.Items() {
				pc, ok := item.Object.(*pendingCertificate)
				if !ok {
					m.pending.Delete(domain)
					continue
				}
				go m.internalCheck(ctx, pc)
			}
		}
	}
}

// internalCheck resolves the domain fresh, fetches the challenge file from
// the resolved address directly, and on a byte-for-byte match hands the
// pending certificate to the external verification task.
func (m *Manager) internalCheck(ctx context.Context, pc *pendingCertificate) {
	logger := log.WithDomain(pc.domainName)

	body, err := fetchChallenge(ctx, pc.domainName, pc.token)
	if err != nil {
		logger.Debug().Err(err).Msg("internal challenge check failed")
		return
	}
	if body != pc.tokenValue {
		logger.Debug().Msg("challenge content mismatch")
		return
	}

	if !m.claimVerified(pc) {
		return
	}
	logger.Info().Msg("internal challenge check passed")
	go m.externalCheck(ctx, pc)
}

// claimVerified marks the pending certificate as handed off and removes it
// from the pending cache. Checks for the same domain can overlap across
// ticks; the flag guarantees exactly one external task per entry.
func (m *Manager) claimVerified(pc *pendingCertificate) bool {
	if !pc.verified.CompareAndSwap(false, true) {
		return false
	}
	m.pending.Delete(pc.domainName)
	return true
}

// fetchChallenge looks up the domain with a fresh resolver and requests the
// well-known challenge path from the resolved IP, bypassing any proxy and any
// local DNS cache.
func fetchChallenge(ctx context.Context, domain, token string) (string, error) {
	resolver := &net.Resolver{PreferGo: true}
	addrs, err := resolver.LookupIP(ctx, "ip4", domain)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", domain, err)
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("no A records for %s", domain)
	}

	client := &http.Client{
		Transport: &http.Transport{Proxy: nil},
		Timeout:   10 * time.Second,
	}
	url := fmt.Sprintf("http://%s/.well-known/acme-challenge/%s", addrs[0], token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch challenge: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read challenge body: %w", err)
	}
	return string(body), nil
}

// externalCheck accepts the challenge with the CA and polls the order until
// it is ready to finalize, backing off exponentially. Gives up after
// externalMaxChecks attempts.
func (m *Manager) externalCheck(ctx context.Context, pc *pendingCertificate) {
	logger := log.WithDomain(pc.domainName)
	backoff := externalBaseBackoff

	for attempt := 1; attempt <= externalMaxChecks; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= externalBackoffStep

		ready, err := m.progressOrder(ctx, pc)
		if err != nil {
			logger.Warn().Err(err).Int("attempt", attempt).Msg("external challenge check failed")
			continue
		}
		if !ready {
			logger.Debug().Int("attempt", attempt).Msg("order not ready yet")
			continue
		}
		if err := m.issue(ctx, pc); err != nil {
			logger.Error().Err(err).Msg("certificate issuance failed")
			metrics.CertificateFailures.Inc()
			return
		}
		logger.Info().Msg("certificate issued")
		return
	}
	logger.Error().Msg("abandoning certificate order after max attempts")
	metrics.CertificateFailures.Inc()
}

// progressOrder accepts the order's http-01 challenge and reports whether the
// order has reached the ready state.
func (m *Manager) progressOrder(ctx context.Context, pc *pendingCertificate) (bool, error) {
	pc.order.mu.Lock()
	defer pc.order.mu.Unlock()
	client := pc.order.client

	order, err := client.GetOrder(ctx, pc.order.orderURI)
	if err != nil {
		return false, fmt.Errorf("failed to fetch order: %w", err)
	}
	if order.Status == acme.StatusReady || order.Status == acme.StatusValid {
		return true, nil
	}
	if len(order.AuthzURLs) == 0 {
		return false, fmt.Errorf("authorization not found")
	}
	authz, err := client.GetAuthorization(ctx, order.AuthzURLs[0])
	if err != nil {
		return false, fmt.Errorf("failed to fetch authorization: %w", err)
	}
	challenge := findHTTP01Challenge(authz)
	if challenge == nil {
		return false, fmt.Errorf("http-01 challenge not found")
	}
	if challenge.Status == acme.StatusPending {
		if _, err := client.Accept(ctx, challenge); err != nil {
			return false, fmt.Errorf("failed to accept challenge: %w", err)
		}
	}

	order, err = client.GetOrder(ctx, pc.order.orderURI)
	if err != nil {
		return false, fmt.Errorf("failed to refresh order: %w", err)
	}
	return order.Status == acme.StatusReady || order.Status == acme.StatusValid, nil
}
