package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CreateDeployment inserts a new deployment row. Port allocation happens in
// the deployment manager; the store only persists the result.
func (s *Store) CreateDeployment(ctx context.Context, serviceID, ownerID uuid.UUID, containerPort, hostPort *int16) (*Deployment, error) {
	now := time.Now().UTC()
	var deployment Deployment
	err := s.db.GetContext(ctx, &deployment,
		`INSERT INTO deployment (id, service_id, owner_id, host_port, container_port, updated_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING *`,
		uuid.New(), serviceID, ownerID, hostPort, containerPort, now, now,
	)
	if err != nil {
		return nil, err
	}
	return &deployment, nil
}

// ListDeploymentsByService returns all deployments of a service.
func (s *Store) ListDeploymentsByService(ctx context.Context, serviceID uuid.UUID) ([]Deployment, error) {
	deployments := []Deployment{}
	err := s.db.SelectContext(ctx, &deployments,
		`SELECT * FROM deployment WHERE service_id = $1`, serviceID)
	if err != nil {
		return nil, err
	}
	return deployments, nil
}

// FindDeploymentByHost returns the most recently created deployment whose
// service has an ingress for the given host, or ErrNotFound.
func (s *Store) FindDeploymentByHost(ctx context.Context, host string) (*Deployment, error) {
	var deployment Deployment
	err := s.db.GetContext(ctx, &deployment,
		`SELECT deployment.* FROM deployment
		 JOIN ingress ON deployment.service_id = ingress.service_id
		 WHERE ingress.host = $1
		 ORDER BY deployment.created_at DESC
		 LIMIT 1`,
		host,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &deployment, nil
}

// TouchDeployment sets last_accessed_at to now. Returns ErrNotFound when no
// row matches.
func (s *Store) TouchDeployment(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE deployment SET last_accessed_at = $1 WHERE id = $2`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
