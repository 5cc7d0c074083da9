package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CreateIngress binds a host to a service. At most one ingress may exist per
// (service, host); duplicates surface as uniqueness violations.
func (s *Store) CreateIngress(ctx context.Context, host string, serviceID, ownerID uuid.UUID) (*Ingress, error) {
	now := time.Now().UTC()
	var ingress Ingress
	err := s.db.GetContext(ctx, &ingress,
		`INSERT INTO ingress (id, service_id, owner_id, host, updated_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING *`,
		uuid.New(), serviceID, ownerID, host, now, now,
	)
	if err != nil {
		return nil, err
	}
	return &ingress, nil
}

// ListIngressesByService returns all ingresses of a service.
func (s *Store) ListIngressesByService(ctx context.Context, serviceID uuid.UUID) ([]Ingress, error) {
	ingresses := []Ingress{}
	err := s.db.SelectContext(ctx, &ingresses,
		`SELECT * FROM ingress WHERE service_id = $1`, serviceID)
	if err != nil {
		return nil, err
	}
	return ingresses, nil
}

// UpdateIngressHost repoints a service's ingress at a new host.
func (s *Store) UpdateIngressHost(ctx context.Context, serviceID uuid.UUID, host string) (*Ingress, error) {
	var ingress Ingress
	err := s.db.GetContext(ctx, &ingress,
		`UPDATE ingress SET host = $1, updated_at = $2 WHERE service_id = $3 RETURNING *`,
		host, time.Now().UTC(), serviceID,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &ingress, nil
}
