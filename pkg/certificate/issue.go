package certificate

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"

	"github.com/doseidotio/doseid/pkg/log"
	"github.com/doseidotio/doseid/pkg/metrics"
	"github.com/doseidotio/doseid/pkg/store"
)

// issue finalizes a ready order with a fresh key pair, downloads the chain,
// and persists the certificate. An existing row for the domain is updated in
// place, which is the renewal path.
func (m *Manager) issue(ctx context.Context, pc *pendingCertificate) error {
	pc.order.mu.Lock()
	defer pc.order.mu.Unlock()
	client := pc.order.client

	order, err := client.GetOrder(ctx, pc.order.orderURI)
	if err != nil {
		return fmt.Errorf("failed to fetch order: %w", err)
	}

	certKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate certificate key: %w", err)
	}
	csr, err := x509.CreateCertificateRequest(rand.Reader, &x509.CertificateRequest{
		DNSNames: []string{pc.domainName},
	}, certKey)
	if err != nil {
		return fmt.Errorf("failed to create CSR: %w", err)
	}

	chain, _, err := client.CreateOrderCert(ctx, order.FinalizeURL, csr, true)
	if err != nil {
		return fmt.Errorf("failed to finalize order: %w", err)
	}
	if len(chain) == 0 {
		return fmt.Errorf("empty certificate chain")
	}
	leaf, err := x509.ParseCertificate(chain[0])
	if err != nil {
		return fmt.Errorf("failed to parse leaf certificate: %w", err)
	}

	certPEM, err := encodeChainPEM(chain)
	if err != nil {
		return err
	}
	keyPEM, err := encodeKeyPEM(certKey)
	if err != nil {
		return err
	}

	expiresAt := leaf.NotAfter.UTC()
	if err := m.persist(ctx, pc, certPEM, keyPEM, expiresAt); err != nil {
		return err
	}
	metrics.CertificatesIssued.Inc()
	return nil
}

func (m *Manager) persist(ctx context.Context, pc *pendingCertificate, certPEM, keyPEM string, expiresAt time.Time) error {
	cert := &store.Certificate{
		DomainName:  pc.domainName,
		Certificate: certPEM,
		PrivateKey:  keyPEM,
		ExpiresAt:   expiresAt,
		OwnerID:     pc.ownerID,
	}
	_, err := m.store.CreateCertificate(ctx, cert)
	if err == nil {
		return nil
	}
	if !store.IsUniqueViolation(err) {
		return fmt.Errorf("failed to store certificate: %w", err)
	}
	if _, err := m.store.UpdateCertificate(ctx, cert); err != nil {
		return fmt.Errorf("failed to update certificate: %w", err)
	}
	return nil
}

func encodeChainPEM(chain [][]byte) (string, error) {
	var out []byte
	for _, der := range chain {
		block := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
		if block == nil {
			return "", fmt.Errorf("failed to encode certificate PEM")
		}
		out = append(out, block...)
	}
	return string(out), nil
}

func encodeKeyPEM(key *ecdsa.PrivateKey) (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return "", fmt.Errorf("failed to marshal private key: %w", err)
	}
	block := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	if block == nil {
		return "", fmt.Errorf("failed to encode private key PEM")
	}
	return string(block), nil
}

// renewalLoop re-requests every certificate expiring within the renewal
// threshold, once per sweep interval.
func (m *Manager) renewalLoop(ctx context.Context) {
	ticker := time.NewTicker(renewalCheckSpan)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.CheckForRenewals(ctx); err != nil {
				logger := log.WithComponent("certificate")
				logger.Error().Err(err).Msg("renewal sweep failed")
			}
		}
	}
}

// CheckForRenewals requests a fresh certificate for every stored certificate
// expiring within the renewal threshold.
func (m *Manager) CheckForRenewals(ctx context.Context) error {
	logger := log.WithComponent("certificate")
	cutoff := time.Now().UTC().Add(renewalThreshold)
	certs, err := m.store.ListCertificatesExpiringBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to list expiring certificates: %w", err)
	}
	for i := range certs {
		cert := &certs[i]
		logger.Info().
			Str("domain", cert.DomainName).
			Time("expires_at", cert.ExpiresAt).
			Msg("renewing certificate")
		if err := m.request(ctx, cert.OwnerID, cert.DomainName); err != nil {
			logger.Error().Err(err).Str("domain", cert.DomainName).Msg("renewal request failed")
			continue
		}
		metrics.CertificateRenewals.Inc()
	}
	return nil
}
