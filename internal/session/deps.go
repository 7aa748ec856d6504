package session

import (
	"context"
	"time"

	"github.com/rbright/voicehook/internal/indicator"
	"github.com/rbright/voicehook/internal/protocol"
	"github.com/rbright/voicehook/internal/webhook"
)

// Pages addresses attached capture contexts.
type Pages interface {
	Active() (string, bool)
	Send(contextID string, cmd protocol.Command) error
}

// Dispatcher performs the single remote transcription attempt.
type Dispatcher interface {
	Dispatch(ctx context.Context, target webhook.Target, audio string) (string, error)
	TestConnection(ctx context.Context, target webhook.Target) webhook.ConnectionResult
}

// Indicator is the session-facing subset of indicator behavior.
type Indicator interface {
	Show(context.Context, indicator.Status)
}

// noopIndicator preserves session flow when no indicator is wired.
type noopIndicator struct{}

func (noopIndicator) Show(context.Context, indicator.Status) {}

// Settings is the configuration read at the start of every session.
type Settings struct {
	Target      webhook.Target
	MinDuration time.Duration
}

// SettingsFunc loads the current settings.
type SettingsFunc func() (Settings, error)
