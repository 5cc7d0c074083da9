// Package container is a thin driver over the Docker Engine API. Each call
// opens a fresh client against the local socket; the daemon shares no
// long-lived channel with the runtime.
package container

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/docker/docker/api/types"
	containertypes "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	imagetypes "github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"github.com/doseidotio/doseid/pkg/log"
)

// Driver talks to the container runtime through its local socket.
type Driver struct{}

// NewDriver creates a Docker-backed driver.
func NewDriver() *Driver {
	return &Driver{}
}

func newClient() (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Docker: %w", err)
	}
	return cli, nil
}

// Ping checks runtime liveness. A failed ping at startup terminates the
// daemon.
func (d *Driver) Ping(ctx context.Context) error {
	cli, err := newClient()
	if err != nil {
		return err
	}
	defer cli.Close()
	if _, err := cli.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping Docker: %w", err)
	}
	return nil
}

// Build builds an image from a tar build context and returns the collected
// log lines. The runtime's build error is surfaced verbatim as the final
// log line and as the returned error.
func (d *Driver) Build(ctx context.Context, imageTag string, buildContext io.Reader) ([]string, error) {
	cli, err := newClient()
	if err != nil {
		return nil, err
	}
	defer cli.Close()

	resp, err := cli.ImageBuild(ctx, buildContext, types.ImageBuildOptions{
		Dockerfile: "Dockerfile",
		Tags:       []string{imageTag},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build image %s: %w", imageTag, err)
	}
	defer resp.Body.Close()

	var logs []string
	decoder := json.NewDecoder(resp.Body)
	for {
		var msg struct {
			Stream string `json:"stream"`
			Error  string `json:"error"`
		}
		if err := decoder.Decode(&msg); err != nil {
			if err == io.EOF {
				break
			}
			return logs, fmt.Errorf("failed to read build output: %w", err)
		}
		if msg.Error != "" {
			logs = append(logs, msg.Error)
			return logs, fmt.Errorf("build failed: %s", msg.Error)
		}
		if msg.Stream != "" {
			logs = append(logs, msg.Stream)
		}
	}
	return logs, nil
}

// Pull pulls an image from its registry, draining the progress stream until
// the pull completes.
func (d *Driver) Pull(ctx context.Context, image string) error {
	cli, err := newClient()
	if err != nil {
		return err
	}
	defer cli.Close()
	reader, err := cli.ImagePull(ctx, image, imagetypes.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", image, err)
	}
	defer reader.Close()
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("failed to read pull output for %s: %w", image, err)
	}
	return nil
}

// CreateConfig describes a container to create.
type CreateConfig struct {
	Name          string
	Image         string
	ContainerPort *int16
	HostPort      *int16
	Env           map[string]string
}

// Create creates a container with tty enabled, binding the container port
// to the host port on 127.0.0.1 when both are set.
func (d *Driver) Create(ctx context.Context, cfg CreateConfig) (string, error) {
	cli, err := newClient()
	if err != nil {
		return "", err
	}
	defer cli.Close()

	var exposedPorts nat.PortSet
	var hostConfig *containertypes.HostConfig
	if cfg.ContainerPort != nil {
		port := nat.Port(fmt.Sprintf("%d/tcp", *cfg.ContainerPort))
		exposedPorts = nat.PortSet{port: struct{}{}}
		if cfg.HostPort != nil {
			hostConfig = &containertypes.HostConfig{
				PortBindings: nat.PortMap{
					port: []nat.PortBinding{{
						HostIP:   "127.0.0.1",
						HostPort: strconv.Itoa(int(*cfg.HostPort)),
					}},
				},
			}
		}
	}

	var env []string
	for key, value := range cfg.Env {
		env = append(env, fmt.Sprintf("%s=%s", key, value))
	}

	created, err := cli.ContainerCreate(ctx, &containertypes.Config{
		Image:        cfg.Image,
		ExposedPorts: exposedPorts,
		Env:          env,
		Tty:          true,
	}, hostConfig, nil, nil, cfg.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create container %s: %w", cfg.Name, err)
	}
	return created.ID, nil
}

// Start starts a created container.
func (d *Driver) Start(ctx context.Context, id string) error {
	cli, err := newClient()
	if err != nil {
		return err
	}
	defer cli.Close()
	if err := cli.ContainerStart(ctx, id, containertypes.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container %s: %w", id, err)
	}
	return nil
}

// Stop stops a running container.
func (d *Driver) Stop(ctx context.Context, id string) error {
	cli, err := newClient()
	if err != nil {
		return err
	}
	defer cli.Close()
	if err := cli.ContainerStop(ctx, id, containertypes.StopOptions{}); err != nil {
		return fmt.Errorf("failed to stop container %s: %w", id, err)
	}
	return nil
}

// Remove removes a container.
func (d *Driver) Remove(ctx context.Context, id string) error {
	cli, err := newClient()
	if err != nil {
		return err
	}
	defer cli.Close()
	if err := cli.ContainerRemove(ctx, id, containertypes.RemoveOptions{}); err != nil {
		return fmt.Errorf("failed to remove container %s: %w", id, err)
	}
	return nil
}

// ImageOf returns the image a container was created from, or ErrNotFound
// semantics via the runtime's own not-found error.
func (d *Driver) ImageOf(ctx context.Context, name string) (string, error) {
	cli, err := newClient()
	if err != nil {
		return "", err
	}
	defer cli.Close()
	inspect, err := cli.ContainerInspect(ctx, name)
	if err != nil {
		return "", fmt.Errorf("failed to inspect container %s: %w", name, err)
	}
	return inspect.Config.Image, nil
}

// IsNotFound reports whether err is the runtime's missing-container error.
func IsNotFound(err error) bool {
	return client.IsErrNotFound(err)
}

// ListRunning returns summaries of all running containers.
func (d *Driver) ListRunning(ctx context.Context) ([]containertypes.Summary, error) {
	cli, err := newClient()
	if err != nil {
		return nil, err
	}
	defer cli.Close()
	containers, err := cli.ContainerList(ctx, containertypes.ListOptions{
		Filters: filters.NewArgs(filters.Arg("status", "running")),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}
	return containers, nil
}

// StartMonitor logs a summary of running containers every interval. Runs
// until the context is cancelled.
func (d *Driver) StartMonitor(ctx context.Context) {
	logger := log.WithComponent("container")
	logger.Info().Msg("container monitoring running")
	go d.monitorLoop(ctx)
}
