// Package agent is the capture side of a session: it executes controller
// commands against the capture engine and delivers results locally.
package agent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gen2brain/beeep"
	"github.com/rbright/voicehook/internal/capture"
	"github.com/rbright/voicehook/internal/protocol"
)

const notifyTitle = "voicehook"

// Engine is the capture surface the agent drives.
type Engine interface {
	Start(ctx context.Context, minDuration time.Duration) error
	Stop(ctx context.Context) protocol.Event
	Unload()
}

// Injector delivers recognized text to the focused application.
type Injector interface {
	Inject(ctx context.Context, text string) error
}

// Notifier surfaces a user-facing error message.
type Notifier func(message string) error

// DesktopNotifier posts messages as desktop notifications.
func DesktopNotifier(message string) error {
	return beeep.Notify(notifyTitle, message, "")
}

// Agent implements bridge.CommandHandler for one capture context.
type Agent struct {
	engine   Engine
	injector Injector
	notify   Notifier
	logger   *slog.Logger
}

// New wires an agent. A nil notifier uses DesktopNotifier.
func New(engine Engine, injector Injector, notify Notifier, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if notify == nil {
		notify = DesktopNotifier
	}
	return &Agent{
		engine:   engine,
		injector: injector,
		notify:   notify,
		logger:   logger.With("component", "agent"),
	}
}

// HandleCommand executes one controller command.
func (a *Agent) HandleCommand(ctx context.Context, cmd protocol.Command) {
	switch cmd := cmd.(type) {
	case protocol.StartRecording:
		minDuration := time.Duration(cmd.MinDurationSeconds * float64(time.Second))
		err := a.engine.Start(ctx, minDuration)
		switch {
		case err == nil:
		case errors.Is(err, capture.ErrAlreadyCapturing):
			a.logger.Debug("start ignored; capture already active")
		default:
			// The engine already emitted capture-error.
			a.logger.Warn("capture start failed", "error", err.Error())
		}
	case protocol.StopRecording:
		if ev := a.engine.Stop(ctx); ev == nil {
			a.logger.Debug("stop ignored; nothing capturing")
		}
	case protocol.InjectResult:
		if err := a.injector.Inject(ctx, cmd.Text); err != nil {
			a.logger.Error("text delivery failed", "error", err.Error())
			a.showError("Transcription ready but could not be delivered: " + err.Error())
		}
	case protocol.ShowError:
		a.showError(cmd.Message)
	}
}

// Detached releases the microphone when the controller goes away.
func (a *Agent) Detached() {
	a.engine.Unload()
}

// Close releases every capture resource.
func (a *Agent) Close() {
	a.engine.Unload()
}

func (a *Agent) showError(message string) {
	if err := a.notify(message); err != nil {
		a.logger.Debug("error notification failed", "error", err.Error())
	}
}
