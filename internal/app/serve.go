package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/rbright/voicehook/internal/agent"
	"github.com/rbright/voicehook/internal/audio"
	"github.com/rbright/voicehook/internal/bridge"
	"github.com/rbright/voicehook/internal/capture"
	"github.com/rbright/voicehook/internal/config"
	"github.com/rbright/voicehook/internal/encoder"
	"github.com/rbright/voicehook/internal/indicator"
	"github.com/rbright/voicehook/internal/ipc"
	"github.com/rbright/voicehook/internal/output"
	"github.com/rbright/voicehook/internal/protocol"
	"github.com/rbright/voicehook/internal/session"
	"github.com/rbright/voicehook/internal/webhook"
	"golang.org/x/sync/errgroup"
)

const (
	acquireProbeTimeout = 180 * time.Millisecond
	acquireRetries      = 8
)

// commandServe runs the session controller until ctx ends.
func (r Runner) commandServe(ctx context.Context, loaded config.Loaded, logger *slog.Logger) int {
	if err := r.serve(ctx, loaded, logger); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("controller stopped", "error", err.Error())
		return 1
	}
	return 0
}

func (r Runner) serve(ctx context.Context, loaded config.Loaded, logger *slog.Logger) error {
	cfg := loaded.Config

	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		return err
	}
	bridgePath, err := bridge.SocketPath(cfg.Bridge.Socket)
	if err != nil {
		return err
	}

	listener, err := ipc.Acquire(ctx, socketPath, acquireProbeTimeout, acquireRetries, func(context.Context) error {
		return removeIfExists(bridgePath)
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = listener.Close()
		_ = removeIfExists(socketPath)
	}()

	bridgeListener, err := bridge.Listen(bridgePath)
	if err != nil {
		return err
	}
	defer func() { _ = removeIfExists(bridgePath) }()

	hub := bridge.NewHub(logger)
	badge := indicator.NewBadge(cfg.Indicator, logger)
	client := webhook.NewClient(time.Duration(cfg.Webhook.TimeoutMS)*time.Millisecond, logger)
	ctrl := session.NewController(logger, hub, client, settingsLoader(loaded.Path), badge)
	hub.Bind(ctrl)
	defer ctrl.Close()

	logger.Info("controller listening", "socket", socketPath, "bridge", bridgePath)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ipc.Serve(gctx, listener, ctrl) })
	g.Go(func() error { return bridge.Serve(gctx, bridgeListener, hub) })
	err = g.Wait()

	badge.Show(context.Background(), indicator.StatusIdle)
	return err
}

// settingsLoader re-reads the config file for every session start.
func settingsLoader(path string) session.SettingsFunc {
	return func() (session.Settings, error) {
		loaded, err := config.Load(path)
		if err != nil {
			return session.Settings{}, err
		}
		return settingsFrom(loaded.Config), nil
	}
}

func settingsFrom(cfg config.Config) session.Settings {
	return session.Settings{
		Target: webhook.Target{
			URL:      cfg.Webhook.URL,
			Username: cfg.Webhook.Username,
			Password: cfg.Webhook.Password,
		},
		MinDuration: time.Duration(cfg.Capture.MinDurationSeconds * float64(time.Second)),
	}
}

// commandAgent runs one capture agent attached to the controller until ctx ends.
func (r Runner) commandAgent(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	bridgePath, err := bridge.SocketPath(cfg.Bridge.Socket)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	var link *bridge.Link
	emit := capture.EmitterFunc(func(ctx context.Context, ev protocol.Event) error {
		return link.Emit(ctx, ev)
	})
	engine := capture.NewEngine(audio.NewInput(cfg.Audio.Input, cfg.Audio.Fallback, logger), encoder.Default(), emit, logger)
	ag := agent.New(engine, output.NewInjector(cfg, logger), nil, logger)
	link = bridge.NewLink(bridgePath, ag, logger)
	defer ag.Close()

	logger.Info("agent starting", "bridge", bridgePath, "context_id", link.ID())
	if err := link.Run(ctx); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
