package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CreateService inserts a new service. A duplicate name surfaces as a
// uniqueness violation.
func (s *Store) CreateService(ctx context.Context, name string, ownerID uuid.UUID) (*Service, error) {
	now := time.Now().UTC()
	var service Service
	err := s.db.GetContext(ctx, &service,
		`INSERT INTO service (id, name, owner_id, updated_at, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING *`,
		uuid.New(), name, ownerID, now, now,
	)
	if err != nil {
		return nil, err
	}
	return &service, nil
}

// GetServiceByID returns the service with the given id or ErrNotFound.
func (s *Store) GetServiceByID(ctx context.Context, id uuid.UUID) (*Service, error) {
	var service Service
	err := s.db.GetContext(ctx, &service, `SELECT * FROM service WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err)
	}
	return &service, nil
}

// GetServiceByName returns the service with the given name or ErrNotFound.
func (s *Store) GetServiceByName(ctx context.Context, name string) (*Service, error) {
	var service Service
	err := s.db.GetContext(ctx, &service, `SELECT * FROM service WHERE name = $1`, name)
	if err != nil {
		return nil, notFound(err)
	}
	return &service, nil
}

// ListServicesByOwner returns all services owned by an account.
func (s *Store) ListServicesByOwner(ctx context.Context, ownerID uuid.UUID) ([]Service, error) {
	services := []Service{}
	err := s.db.SelectContext(ctx, &services,
		`SELECT * FROM service WHERE owner_id = $1`, ownerID)
	if err != nil {
		return nil, err
	}
	return services, nil
}
