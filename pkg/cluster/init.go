package cluster

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/doseidotio/doseid/pkg/app"
	"github.com/doseidotio/doseid/pkg/container"
	"github.com/doseidotio/doseid/pkg/log"
	"github.com/doseidotio/doseid/pkg/sshauth"
	"github.com/doseidotio/doseid/pkg/store"
	"github.com/doseidotio/doseid/pkg/version"
)

const (
	apiPort          int16 = 80
	dashboardPort    int16 = 8844
	dashboardName          = "dashboard"
	dashboardRuntime       = "dosei-dashboard"
)

// CertificateRequester enqueues an ACME request for a domain.
type CertificateRequester interface {
	Request(ctx context.Context, ownerID uuid.UUID, domain string) error
}

// Init brings the node to its declared state. Every step is idempotent, so
// re-running on restart converges instead of duplicating.
func Init(ctx context.Context, st *store.Store, driver *container.Driver, certs CertificateRequester, bootstrap *Bootstrap) error {
	logger := log.WithComponent("cluster")
	SetName(bootstrap.Name)
	logger.Info().Str("name", bootstrap.Name).Msg("initializing cluster")

	system, err := ensureAccount(ctx, st, SystemAccountName, []string{bootstrap.DoseiPublicKey})
	if err != nil {
		return err
	}

	if err := reconcileAccounts(ctx, st, bootstrap); err != nil {
		return err
	}

	if err := ensureCertificate(ctx, st, certs, system.ID, bootstrap.Name); err != nil {
		return err
	}

	if err := ensureAPIService(ctx, st, system.ID, bootstrap.Name); err != nil {
		return err
	}

	if err := ensureDashboard(ctx, st, driver, certs, system.ID, bootstrap.Name); err != nil {
		return err
	}

	logger.Info().Str("name", bootstrap.Name).Msg("cluster initialized")
	return nil
}

// ensureAccount gets or creates an account and registers any missing keys.
func ensureAccount(ctx context.Context, st *store.Store, name string, keys []string) (*store.Account, error) {
	account, err := st.GetAccountByName(ctx, name)
	if err == store.ErrNotFound {
		account, err = st.CreateAccount(ctx, name, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to ensure account %s: %w", name, err)
	}

	for _, key := range keys {
		fingerprint, err := sshauth.Fingerprint(key)
		if err != nil {
			return nil, fmt.Errorf("invalid ssh key for account %s: %w", name, err)
		}
		_, err = st.GetSSHKeyByFingerprint(ctx, fingerprint)
		if err == nil {
			continue
		}
		if err != store.ErrNotFound {
			return nil, fmt.Errorf("failed to look up ssh key: %w", err)
		}
		if _, err := st.CreateSSHKey(ctx, account.ID, fingerprint, key); err != nil {
			return nil, fmt.Errorf("failed to register ssh key for %s: %w", name, err)
		}
	}
	return account, nil
}

// reconcileAccounts creates the declared operator accounts and removes any
// account that is neither declared nor the system account.
func reconcileAccounts(ctx context.Context, st *store.Store, bootstrap *Bootstrap) error {
	logger := log.WithComponent("cluster")

	declared := map[string]bool{SystemAccountName: true}
	for _, acct := range bootstrap.Accounts {
		declared[acct.Name] = true
		if _, err := ensureAccount(ctx, st, acct.Name, acct.SSHKeys); err != nil {
			return err
		}
	}

	accounts, err := st.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}
	for _, account := range accounts {
		if declared[account.Name] {
			continue
		}
		logger.Warn().Str("account", account.Name).Msg("removing undeclared account")
		if err := st.DeleteAccount(ctx, account.ID); err != nil {
			return fmt.Errorf("failed to delete account %s: %w", account.Name, err)
		}
	}
	return nil
}

// ensureCertificate requests a certificate for the domain unless one is
// already stored or the domain is not a FQDN. A failed request is logged,
// not fatal: the renewal sweep or the next boot retries, and the daemon
// must come up even when the CA is unreachable.
func ensureCertificate(ctx context.Context, st *store.Store, certs CertificateRequester, ownerID uuid.UUID, domain string) error {
	if !app.ValidateDomain(domain) {
		return nil
	}
	_, err := st.GetCertificateByDomain(ctx, domain)
	if err == nil {
		return nil
	}
	if err != store.ErrNotFound {
		return fmt.Errorf("failed to look up certificate for %s: %w", domain, err)
	}
	if err := certs.Request(ctx, ownerID, domain); err != nil {
		logger := log.WithDomain(domain)
		logger.Error().Err(err).Msg("certificate request failed")
	}
	return nil
}

// ensureService gets or creates a service and its fixed-port deployment row.
func ensureService(ctx context.Context, st *store.Store, ownerID uuid.UUID, name string, port int16) (*store.Service, error) {
	service, err := st.GetServiceByName(ctx, name)
	if err == store.ErrNotFound {
		service, err = st.CreateService(ctx, name, ownerID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to ensure service %s: %w", name, err)
	}

	deployments, err := st.ListDeploymentsByService(ctx, service.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list deployments of %s: %w", name, err)
	}
	if len(deployments) == 0 {
		if _, err := st.CreateDeployment(ctx, service.ID, ownerID, &port, &port); err != nil {
			return nil, fmt.Errorf("failed to create deployment for %s: %w", name, err)
		}
	}
	return service, nil
}

// ensureIngress binds a host to a service, repointing the existing ingress
// when the host changed between boots.
func ensureIngress(ctx context.Context, st *store.Store, serviceID, ownerID uuid.UUID, host string) error {
	_, err := st.CreateIngress(ctx, host, serviceID, ownerID)
	if err == nil {
		return nil
	}
	if !store.IsUniqueViolation(err) {
		return fmt.Errorf("failed to create ingress for %s: %w", host, err)
	}
	if _, err := st.UpdateIngressHost(ctx, serviceID, host); err != nil {
		return fmt.Errorf("failed to update ingress for %s: %w", host, err)
	}
	return nil
}

// ensureAPIService registers the daemon's own API as the dosei service so the
// proxy routes the cluster name to it.
func ensureAPIService(ctx context.Context, st *store.Store, ownerID uuid.UUID, clusterName string) error {
	service, err := ensureService(ctx, st, ownerID, SystemAccountName, apiPort)
	if err != nil {
		return err
	}
	return ensureIngress(ctx, st, service.ID, ownerID, clusterName)
}

// DashboardDomain derives the dashboard's hostname from the cluster name.
func DashboardDomain(clusterName string) string {
	return strings.Replace(clusterName, "api", dashboardName, 1)
}

// ensureDashboard registers the dashboard service and converges its container
// on the image pinned to this daemon's version. The container is recreated
// only when the running image differs.
func ensureDashboard(ctx context.Context, st *store.Store, driver *container.Driver, certs CertificateRequester, ownerID uuid.UUID, clusterName string) error {
	logger := log.WithComponent("cluster")
	domain := DashboardDomain(clusterName)

	service, err := ensureService(ctx, st, ownerID, dashboardName, dashboardPort)
	if err != nil {
		return err
	}
	if err := ensureCertificate(ctx, st, certs, ownerID, domain); err != nil {
		return err
	}
	if err := ensureIngress(ctx, st, service.ID, ownerID, domain); err != nil {
		return err
	}

	image := version.DashboardImage()
	current, err := driver.ImageOf(ctx, dashboardRuntime)
	if err == nil && current == image {
		logger.Debug().Str("image", image).Msg("dashboard up to date")
		return nil
	}
	if err == nil {
		logger.Info().Str("from", current).Str("to", image).Msg("replacing dashboard container")
		if err := driver.Stop(ctx, dashboardRuntime); err != nil {
			logger.Warn().Err(err).Msg("failed to stop dashboard container")
		}
		if err := driver.Remove(ctx, dashboardRuntime); err != nil {
			return fmt.Errorf("failed to remove dashboard container: %w", err)
		}
	} else if !container.IsNotFound(err) {
		return fmt.Errorf("failed to inspect dashboard container: %w", err)
	}

	if err := driver.Pull(ctx, image); err != nil {
		return err
	}
	port := dashboardPort
	id, err := driver.Create(ctx, container.CreateConfig{
		Name:          dashboardRuntime,
		Image:         image,
		ContainerPort: &port,
		HostPort:      &port,
	})
	if err != nil {
		return err
	}
	if err := driver.Start(ctx, id); err != nil {
		return err
	}
	logger.Info().Str("image", image).Msg("dashboard container running")
	return nil
}
