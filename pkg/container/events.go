package container

import (
	"context"
	"time"

	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/filters"
	"github.com/rs/zerolog"

	"github.com/doseidotio/doseid/pkg/log"
)

const monitorInterval = 60 * time.Second

// StartEventListener streams container lifecycle events from the runtime and
// logs them. Event handling never blocks the stream; it runs until the
// context is cancelled.
func (d *Driver) StartEventListener(ctx context.Context) {
	logger := log.WithComponent("container")
	logger.Info().Msg("container event listener running")
	go d.eventLoop(ctx)
}

func (d *Driver) eventLoop(ctx context.Context) {
	logger := log.WithComponent("container")
	cli, err := newClient()
	if err != nil {
		logger.Error().Err(err).Msg("event listener failed to connect")
		return
	}
	defer cli.Close()

	msgCh, errCh := cli.Events(ctx, events.ListOptions{
		Filters: filters.NewArgs(filters.Arg("type", "container")),
	})
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errCh:
			if err != nil {
				logger.Error().Err(err).Msg("Docker event stream failed")
			}
			return
		case msg := <-msgCh:
			handleEvent(logger, msg)
		}
	}
}

func handleEvent(logger zerolog.Logger, msg events.Message) {
	switch msg.Type {
	case events.ContainerEventType:
		attr := msg.Actor.Attributes
		switch msg.Action {
		case "create":
			logger.Info().
				Str("name", attr["name"]).
				Msg("container created")
		case "start":
			logger.Info().
				Str("name", attr["name"]).
				Str("image", attr["image"]).
				Str("id", msg.Actor.ID).
				Msg("container started")
		case "die":
			logger.Error().
				Str("name", attr["name"]).
				Str("image", attr["image"]).
				Str("exit_code", attr["exitCode"]).
				Str("id", msg.Actor.ID).
				Msg("container stopped")
		default:
			logger.Warn().
				Str("action", string(msg.Action)).
				Msg("unhandled container event action")
		}
	case events.BuilderEventType:
		logger.Warn().Msg("unhandled Docker builder event")
	}
}

func (d *Driver) monitorLoop(ctx context.Context) {
	logger := log.WithComponent("container")
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			containers, err := d.ListRunning(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("failed to list running containers")
				continue
			}
			for _, c := range containers {
				logger.Info().
					Str("id", c.ID).
					Strs("names", c.Names).
					Str("image", c.Image).
					Str("status", c.Status).
					Str("state", string(c.State)).
					Int64("created", c.Created).
					Msg("container running")
			}
		}
	}
}
