// Package indicator renders the session status badge and plays audio cues.
package indicator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/voicehook/internal/config"
	"github.com/rbright/voicehook/internal/hypr"
)

const (
	defaultSuccessRevert = 2 * time.Second
	defaultErrorRevert   = 3 * time.Second
)

// backend draws or clears the badge surface.
type backend interface {
	Render(ctx context.Context, v view) error
	Clear(ctx context.Context) error
}

// Badge tracks the displayed status. Success and error revert to idle after a
// delay; any newer status cancels a pending reversion.
type Badge struct {
	cfg     config.IndicatorConfig
	logger  *slog.Logger
	backend backend
	play    func([]int16) error

	successRevert time.Duration
	errorRevert   time.Duration

	mu      sync.Mutex
	gen     uint64
	current Status
	revert  *time.Timer

	soundMu sync.Mutex
}

// NewBadge creates a badge for the configured backend.
func NewBadge(cfg config.IndicatorConfig, logger *slog.Logger) *Badge {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	b := &Badge{
		cfg:           cfg,
		logger:        logger.With("component", "indicator"),
		play:          playSynthCue,
		successRevert: millisOr(cfg.SuccessTimeoutMS, defaultSuccessRevert),
		errorRevert:   millisOr(cfg.ErrorTimeoutMS, defaultErrorRevert),
		current:       StatusIdle,
	}
	b.backend = newBackend(cfg)
	return b
}

func newBackend(cfg config.IndicatorConfig) backend {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "desktop":
		appName := strings.TrimSpace(cfg.DesktopAppName)
		if appName == "" {
			appName = "voicehook"
		}
		return &desktopBackend{appName: appName}
	case "none":
		return noneBackend{}
	default:
		return hyprBackend{}
	}
}

// Current returns the displayed status.
func (b *Badge) Current() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Show displays status and schedules reversion for terminal statuses.
func (b *Badge) Show(ctx context.Context, status Status) {
	b.mu.Lock()
	b.gen++
	gen := b.gen
	b.current = status
	if b.revert != nil {
		b.revert.Stop()
		b.revert = nil
	}
	if delay := b.revertDelay(status); delay > 0 {
		b.revert = time.AfterFunc(delay, func() { b.expire(gen) })
	}
	b.mu.Unlock()

	b.playCue(status)
	b.render(ctx, status)
}

func (b *Badge) expire(gen uint64) {
	b.mu.Lock()
	if gen != b.gen {
		b.mu.Unlock()
		return
	}
	b.gen++
	b.current = StatusIdle
	b.revert = nil
	b.mu.Unlock()

	b.render(context.Background(), StatusIdle)
}

func (b *Badge) revertDelay(status Status) time.Duration {
	switch status {
	case StatusSuccess:
		return b.successRevert
	case StatusError:
		return b.errorRevert
	default:
		return 0
	}
}

func (b *Badge) render(ctx context.Context, status Status) {
	if !b.cfg.Enable {
		return
	}
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 400*time.Millisecond)
	defer cancel()

	var err error
	if status == StatusIdle {
		err = b.backend.Clear(runCtx)
	} else {
		err = b.backend.Render(runCtx, viewFor(status, int(b.successRevert.Milliseconds()), int(b.errorRevert.Milliseconds())))
	}
	if err != nil {
		b.logger.Debug("indicator dispatch failed", "status", string(status), "error", err.Error())
	}
}

// playCue serializes cue playback and emits audio asynchronously.
func (b *Badge) playCue(status Status) {
	if !b.cfg.SoundEnable {
		return
	}
	samples := cueSamples(cueFor(status))
	if len(samples) == 0 {
		return
	}
	go func() {
		b.soundMu.Lock()
		defer b.soundMu.Unlock()
		if err := b.play(samples); err != nil {
			b.logger.Debug("indicator audio cue failed", "error", err.Error())
		}
	}()
}

func millisOr(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

type hyprBackend struct{}

func (hyprBackend) Render(ctx context.Context, v view) error {
	return hypr.Notify(ctx, v.icon, v.timeoutMS, v.color, v.text)
}

func (hyprBackend) Clear(ctx context.Context) error {
	return hypr.DismissNotify(ctx)
}

type noneBackend struct{}

func (noneBackend) Render(context.Context, view) error { return nil }
func (noneBackend) Clear(context.Context) error        { return nil }

// desktopBackend replaces one freedesktop notification in place.
type desktopBackend struct {
	appName string

	mu sync.Mutex
	id uint32
}

func (d *desktopBackend) Render(ctx context.Context, v view) error {
	d.mu.Lock()
	replaceID := d.id
	d.mu.Unlock()

	id, err := desktopNotify(ctx, d.appName, replaceID, v.text, v.timeoutMS)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.id = id
	d.mu.Unlock()
	return nil
}

func (d *desktopBackend) Clear(ctx context.Context) error {
	d.mu.Lock()
	id := d.id
	d.id = 0
	d.mu.Unlock()

	if id == 0 {
		return nil
	}
	return desktopDismiss(ctx, id)
}
