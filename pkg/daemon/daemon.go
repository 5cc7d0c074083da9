// Package daemon wires the subsystems together and runs them until shutdown.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/doseidotio/doseid/pkg/api"
	"github.com/doseidotio/doseid/pkg/certificate"
	"github.com/doseidotio/doseid/pkg/cluster"
	"github.com/doseidotio/doseid/pkg/config"
	"github.com/doseidotio/doseid/pkg/container"
	"github.com/doseidotio/doseid/pkg/deployment"
	"github.com/doseidotio/doseid/pkg/log"
	"github.com/doseidotio/doseid/pkg/proxy"
	"github.com/doseidotio/doseid/pkg/session"
	"github.com/doseidotio/doseid/pkg/store"
)

const jobTickInterval = time.Second

// Daemon owns the subsystem lifecycles.
type Daemon struct {
	cfg         *config.Config
	store       *store.Store
	driver      *container.Driver
	sessions    *session.Manager
	certs       *certificate.Manager
	deployments *deployment.Manager
	proxy       *proxy.Proxy
	api         *api.Server
}

// New connects to the database, migrates it, and checks the container
// runtime. A dead runtime is fatal: nothing the daemon does works without it.
func New(cfg *config.Config) (*Daemon, error) {
	st, err := store.New(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := st.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	driver := container.NewDriver()
	if err := driver.Ping(ctx); err != nil {
		return nil, err
	}

	sessions := session.NewManager(st)
	certs := certificate.NewManager(st)
	deployments := deployment.NewManager(st, driver, certs)

	return &Daemon{
		cfg:         cfg,
		store:       st,
		driver:      driver,
		sessions:    sessions,
		certs:       certs,
		deployments: deployments,
		proxy:       proxy.New(st, deployments),
		api:         api.NewServer(st, sessions, certs, deployments),
	}, nil
}

// Run initializes the cluster, starts the background loops, and serves the
// API and the proxy until a termination signal arrives.
func (d *Daemon) Run() error {
	logger := log.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootstrap, err := cluster.Load(config.ClusterInitPath)
	if err != nil {
		return err
	}
	if err := cluster.Init(ctx, d.store, d.driver, d.certs, bootstrap); err != nil {
		return fmt.Errorf("failed to initialize cluster: %w", err)
	}

	d.driver.StartEventListener(ctx)
	d.driver.StartMonitor(ctx)
	d.certs.Start(ctx)
	go d.jobLoop(ctx)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return d.api.ListenAndServe(ctx, d.cfg.Address())
	})
	group.Go(func() error {
		return d.proxy.ListenAndServeTLS(ctx, d.cfg.ProxyAddress())
	})

	logger.Info().Str("cluster", cluster.Name()).Msg("daemon running")
	err = group.Wait()
	logger.Info().Msg("daemon stopped")
	return err
}

// jobLoop is the scheduler heartbeat. Cron job execution is not implemented
// yet; the tick keeps time so due jobs can be dispatched from here.
func (d *Daemon) jobLoop(ctx context.Context) {
	ticker := time.NewTicker(jobTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
