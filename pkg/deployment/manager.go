// Package deployment owns the port-allocation policy and the build→run
// pipeline that turns uploaded bundles into running containers.
package deployment

import (
	"bytes"
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/doseidotio/doseid/pkg/app"
	"github.com/doseidotio/doseid/pkg/container"
	"github.com/doseidotio/doseid/pkg/log"
	"github.com/doseidotio/doseid/pkg/metrics"
	"github.com/doseidotio/doseid/pkg/store"
)

// CertificateRequester enqueues an ACME request for a domain. Implemented by
// the certificate manager.
type CertificateRequester interface {
	Request(ctx context.Context, ownerID uuid.UUID, domain string) error
}

// Manager materialises services and deployments from uploaded bundles.
type Manager struct {
	store  *store.Store
	driver *container.Driver
	certs  CertificateRequester
}

// NewManager creates a deployment manager.
func NewManager(st *store.Store, driver *container.Driver, certs CertificateRequester) *Manager {
	return &Manager{store: st, driver: driver, certs: certs}
}

// ImageTag returns the image tag for a deployment.
//
// Format structure: {owner_id}/{service_id}:{deployment_id}
func ImageTag(d *store.Deployment) string {
	return fmt.Sprintf("%s/%s:%s", d.OwnerID, d.ServiceID, d.ID)
}

// New creates a deployment row, allocating a host port when the deployment
// declares a container port and none was requested explicitly.
func (m *Manager) New(ctx context.Context, serviceID, ownerID uuid.UUID, containerPort, hostPort *int16) (*store.Deployment, error) {
	if containerPort != nil && hostPort == nil {
		port, err := FindAvailableHostPort()
		if err != nil {
			return nil, err
		}
		hostPort = &port
	}
	if containerPort == nil {
		hostPort = nil
	}
	deployment, err := m.store.CreateDeployment(ctx, serviceID, ownerID, containerPort, hostPort)
	if err != nil {
		return nil, fmt.Errorf("failed to create deployment: %w", err)
	}
	metrics.DeploymentsTotal.Inc()
	logger := log.WithComponent("deployment")
	logger.Info().
		Str("deployment_id", deployment.ID.String()).
		Interface("host_port", deployment.HostPort).
		Msg("created deployment")
	return deployment, nil
}

// Build builds the deployment's image from a tar build context and returns
// the accumulated build log.
func (m *Manager) Build(ctx context.Context, d *store.Deployment, tar []byte) ([]string, error) {
	logs, err := m.driver.Build(ctx, ImageTag(d), bytes.NewReader(tar))
	if err != nil {
		metrics.ImageBuildsTotal.WithLabelValues("failure").Inc()
		return logs, err
	}
	metrics.ImageBuildsTotal.WithLabelValues("success").Inc()
	return logs, nil
}

// Start creates and starts the deployment's container, named by the
// deployment id. An empty imageTag falls back to the deployment's own tag.
func (m *Manager) Start(ctx context.Context, d *store.Deployment, imageTag string, env map[string]string) error {
	if imageTag == "" {
		imageTag = ImageTag(d)
	}
	id, err := m.driver.Create(ctx, container.CreateConfig{
		Name:          d.ID.String(),
		Image:         imageTag,
		ContainerPort: d.ContainerPort,
		HostPort:      d.HostPort,
		Env:           env,
	})
	if err != nil {
		return err
	}
	return m.driver.Start(ctx, id)
}

// Stop stops the deployment's container.
func (m *Manager) Stop(ctx context.Context, d *store.Deployment) error {
	return m.driver.Stop(ctx, d.ID.String())
}

// Remove removes the deployment's container.
func (m *Manager) Remove(ctx context.Context, d *store.Deployment) error {
	return m.driver.Remove(ctx, d.ID.String())
}

// Deploy runs the full pipeline for an uploaded bundle: get-or-create the
// service, create a deployment, build the image, start the container, and
// enqueue certificate and ingress creation for the manifest's domain.
// It returns once the container has started; certificate issuance is
// asynchronous.
func (m *Manager) Deploy(ctx context.Context, ownerID uuid.UUID, manifest *app.App, tar []byte) (*store.Deployment, []string, error) {
	logger := log.WithComponent("deployment")

	service, err := m.store.CreateService(ctx, manifest.Name, ownerID)
	if err != nil {
		if !store.IsUniqueViolation(err) {
			return nil, nil, fmt.Errorf("failed to create service: %w", err)
		}
		service, err = m.store.GetServiceByName(ctx, manifest.Name)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to look up service %s: %w", manifest.Name, err)
		}
	}

	deployment, err := m.New(ctx, service.ID, service.OwnerID, manifest.Port, nil)
	if err != nil {
		return nil, nil, err
	}

	logs, err := m.Build(ctx, deployment, tar)
	if err != nil {
		return deployment, logs, err
	}

	if err := m.Start(ctx, deployment, "", manifest.Env); err != nil {
		return deployment, logs, err
	}

	for _, job := range manifest.CronJobs {
		logger.Info().
			Str("name", job.Name).
			Str("run", job.Run).
			Bool("is_async", job.IsAsync).
			Msg("registered cron job")
	}

	for _, domain := range manifest.Domains {
		if _, err := m.store.GetCertificateByDomain(ctx, domain); err != store.ErrNotFound || !app.ValidateDomain(domain) {
			continue
		}
		if err := m.certs.Request(ctx, service.OwnerID, domain); err != nil {
			logger.Error().Err(err).Str("domain", domain).Msg("certificate request failed")
		}
		if _, err := m.store.CreateIngress(ctx, domain, service.ID, service.OwnerID); err != nil && !store.IsUniqueViolation(err) {
			logger.Error().Err(err).Str("domain", domain).Msg("failed to create ingress")
		}
	}

	return deployment, logs, nil
}

// TouchLastAccessed fires an asynchronous last_accessed_at update for a
// deployment. Failures are logged, never surfaced.
func (m *Manager) TouchLastAccessed(id uuid.UUID) {
	go func() {
		logger := log.WithComponent("deployment")
		err := m.store.TouchDeployment(context.Background(), id)
		switch err {
		case nil:
			logger.Debug().Str("deployment_id", id.String()).Msg("updated last_accessed_at")
		case store.ErrNotFound:
			logger.Warn().Str("deployment_id", id.String()).Msg("no deployment found")
		default:
			logger.Error().Err(err).Str("deployment_id", id.String()).Msg("failed to update last_accessed_at")
		}
	}()
}
