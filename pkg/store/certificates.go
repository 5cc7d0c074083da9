package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CreateCertificate persists an issued certificate. The domain name is
// unique; re-issuing for the same domain surfaces a uniqueness violation.
func (s *Store) CreateCertificate(ctx context.Context, cert *Certificate) (*Certificate, error) {
	now := time.Now().UTC()
	var created Certificate
	err := s.db.GetContext(ctx, &created,
		`INSERT INTO certificate (id, domain_name, certificate, private_key, expires_at, owner_id, updated_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING *`,
		uuid.New(), cert.DomainName, cert.Certificate, cert.PrivateKey,
		cert.ExpiresAt, cert.OwnerID, now, now,
	)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateCertificate replaces the stored chain and key after a renewal.
func (s *Store) UpdateCertificate(ctx context.Context, cert *Certificate) (*Certificate, error) {
	var updated Certificate
	err := s.db.GetContext(ctx, &updated,
		`UPDATE certificate
		 SET certificate = $1, private_key = $2, expires_at = $3, updated_at = $4
		 WHERE domain_name = $5
		 RETURNING *`,
		cert.Certificate, cert.PrivateKey, cert.ExpiresAt, time.Now().UTC(), cert.DomainName,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &updated, nil
}

// GetCertificateByDomain returns the certificate for a domain or ErrNotFound.
func (s *Store) GetCertificateByDomain(ctx context.Context, domain string) (*Certificate, error) {
	var cert Certificate
	err := s.db.GetContext(ctx, &cert,
		`SELECT * FROM certificate WHERE domain_name = $1`, domain)
	if err != nil {
		return nil, notFound(err)
	}
	return &cert, nil
}

// ListCertificatesByOwner returns all certificates owned by an account.
func (s *Store) ListCertificatesByOwner(ctx context.Context, ownerID uuid.UUID) ([]Certificate, error) {
	certs := []Certificate{}
	err := s.db.SelectContext(ctx, &certs,
		`SELECT * FROM certificate WHERE owner_id = $1`, ownerID)
	if err != nil {
		return nil, err
	}
	return certs, nil
}

// ListCertificatesExpiringBefore returns certificates whose expiry falls
// before the given cutoff. Used by the renewal sweep.
func (s *Store) ListCertificatesExpiringBefore(ctx context.Context, cutoff time.Time) ([]Certificate, error) {
	certs := []Certificate{}
	err := s.db.SelectContext(ctx, &certs,
		`SELECT * FROM certificate WHERE expires_at < $1`, cutoff)
	if err != nil {
		return nil, err
	}
	return certs, nil
}
