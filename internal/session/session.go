// Package session owns the authoritative recording state and the one-shot
// dispatch of captured audio.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rbright/voicehook/internal/fsm"
	"github.com/rbright/voicehook/internal/indicator"
	"github.com/rbright/voicehook/internal/protocol"
	"github.com/rbright/voicehook/internal/webhook"
)

const (
	// DefaultAckTimeout bounds the wait for a started acknowledgment.
	DefaultAckTimeout = 5 * time.Second
	// DefaultStopTimeout bounds the wait for a stop outcome, encoding included.
	DefaultStopTimeout = 60 * time.Second
	// DefaultMinDuration applies when configuration leaves it unset.
	DefaultMinDuration = time.Second
)

var (
	// ErrConfiguration blocks a start when the endpoint is missing or settings fail to load.
	ErrConfiguration = errors.New("configuration error")
	// ErrNoActivePage blocks a start when no capture context is attached.
	ErrNoActivePage = errors.New("no active capture page")
)

// Status is a point-in-time view of the controller.
type Status struct {
	State     fsm.State
	SessionID string
	Owner     string
	Elapsed   time.Duration
	LastError string
}

// Option configures a Controller.
type Option func(*Controller)

// WithTimeouts overrides the acknowledgment and stop timeouts.
func WithTimeouts(ack, stop time.Duration) Option {
	return func(c *Controller) {
		if ack > 0 {
			c.ackTimeout = ack
		}
		if stop > 0 {
			c.stopTimeout = stop
		}
	}
}

// Controller serializes toggles and reacts to capture events.
type Controller struct {
	logger     *slog.Logger
	pages      Pages
	dispatcher Dispatcher
	settings   SettingsFunc
	indicator  Indicator

	ackTimeout  time.Duration
	stopTimeout time.Duration
	now         func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	state     fsm.State
	gen       uint64
	sessionID string
	owner     string
	target    webhook.Target
	startedAt time.Time
	timer     *time.Timer
	lastError string
}

// NewController constructs a session controller with safe default fallbacks.
func NewController(
	logger *slog.Logger,
	pages Pages,
	dispatcher Dispatcher,
	settings SettingsFunc,
	ind Indicator,
	opts ...Option,
) *Controller {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if ind == nil {
		ind = noopIndicator{}
	}
	if settings == nil {
		settings = func() (Settings, error) { return Settings{MinDuration: DefaultMinDuration}, nil }
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		logger:      logger.With("component", "session"),
		pages:       pages,
		dispatcher:  dispatcher,
		settings:    settings,
		indicator:   ind,
		ackTimeout:  DefaultAckTimeout,
		stopTimeout: DefaultStopTimeout,
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
		state:       fsm.StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current FSM state snapshot.
func (c *Controller) State() fsm.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns the current session snapshot.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Controller) statusLocked() Status {
	st := Status{
		State:     c.state,
		SessionID: c.sessionID,
		Owner:     c.owner,
		LastError: c.lastError,
	}
	if c.state == fsm.StateRecording || c.state == fsm.StateStopping {
		st.Elapsed = c.now().Sub(c.startedAt)
	}
	return st
}

// Toggle starts a session from idle or stops the recording one. Any other
// state is busy and the call is a no-op.
func (c *Controller) Toggle(ctx context.Context) (Status, error) {
	st, _, err := c.toggle(ctx)
	return st, err
}

// toggle also reports whether the call moved the session to a new phase.
func (c *Controller) toggle(ctx context.Context) (Status, bool, error) {
	switch state := c.State(); state {
	case fsm.StateIdle:
		return c.start(ctx)
	case fsm.StateRecording:
		return c.stop()
	default:
		c.logger.Debug("toggle ignored while busy", "state", string(state))
		return c.Status(), false, nil
	}
}

func (c *Controller) start(_ context.Context) (Status, bool, error) {
	settings, err := c.settings()
	if err == nil && strings.TrimSpace(settings.Target.URL) == "" {
		err = errors.New("webhook URL is not set")
	}
	if err != nil {
		cfgErr := fmt.Errorf("%w: %v", ErrConfiguration, err)
		if page, ok := c.pages.Active(); ok {
			c.sendBestEffort(page, protocol.ShowError{Message: "Set a webhook URL before recording: " + err.Error()})
		}
		c.logger.Warn("start blocked", "error", cfgErr.Error())
		return c.Status(), false, cfgErr
	}

	page, ok := c.pages.Active()
	if !ok {
		return c.Status(), false, ErrNoActivePage
	}

	minDuration := settings.MinDuration
	if minDuration < 0 {
		minDuration = 0
	}

	c.mu.Lock()
	if c.state != fsm.StateIdle || !c.transitionLocked(fsm.EventStart) {
		st := c.statusLocked()
		c.mu.Unlock()
		return st, false, nil
	}
	c.gen++
	gen := c.gen
	c.sessionID = uuid.NewString()
	c.owner = page
	c.target = settings.Target
	c.lastError = ""
	c.armLocked(gen, c.ackTimeout, fsm.StateStarting)
	logger := c.sessionLogger()
	st := c.statusLocked()
	c.mu.Unlock()

	logger.Info("session starting", "owner", page, "min_duration_ms", minDuration.Milliseconds())
	if err := c.pages.Send(page, protocol.StartRecording{MinDurationSeconds: minDuration.Seconds()}); err != nil {
		c.fail(gen, fmt.Sprintf("could not reach capture page: %v", err), false)
		return c.Status(), false, fmt.Errorf("send start-recording: %w", err)
	}
	return st, true, nil
}

func (c *Controller) stop() (Status, bool, error) {
	c.mu.Lock()
	if c.state != fsm.StateRecording || !c.transitionLocked(fsm.EventStop) {
		st := c.statusLocked()
		c.mu.Unlock()
		return st, false, nil
	}
	gen := c.gen
	owner := c.owner
	c.armLocked(gen, c.stopTimeout, fsm.StateStopping)
	logger := c.sessionLogger()
	st := c.statusLocked()
	c.mu.Unlock()

	c.indicator.Show(c.ctx, indicator.StatusProcessing)
	logger.Info("session stopping", "elapsed_ms", st.Elapsed.Milliseconds())
	if err := c.pages.Send(owner, protocol.StopRecording{}); err != nil {
		// The owner may still hold the microphone.
		c.sendBestEffort(owner, protocol.StopRecording{})
		c.fail(gen, fmt.Sprintf("could not reach capture page: %v", err), false)
		return c.Status(), false, fmt.Errorf("send stop-recording: %w", err)
	}
	return st, true, nil
}

// TestConnection probes the endpoint. Empty arguments fall back to configured values.
func (c *Controller) TestConnection(ctx context.Context, url, username, password string) webhook.ConnectionResult {
	target := webhook.Target{URL: url, Username: username, Password: password}
	if strings.TrimSpace(target.URL) == "" {
		settings, err := c.settings()
		if err != nil {
			return webhook.ConnectionResult{Message: fmt.Sprintf("%v: %v", ErrConfiguration, err)}
		}
		target.URL = settings.Target.URL
		if target.Username == "" && target.Password == "" {
			target.Username = settings.Target.Username
			target.Password = settings.Target.Password
		}
	}

	result := c.dispatcher.TestConnection(ctx, target)
	c.logger.Info("connection test", "success", result.Success, "status", result.Status)
	return result
}

// Close cancels in-flight dispatches and waits for them to return.
func (c *Controller) Close() {
	c.cancel()
	c.mu.Lock()
	c.disarmLocked()
	c.mu.Unlock()
	c.wg.Wait()
}

// fail moves a live session through failed back to idle.
func (c *Controller) fail(gen uint64, reason string, notifyOwner bool) {
	c.mu.Lock()
	if gen != c.gen || c.state == fsm.StateIdle {
		c.mu.Unlock()
		return
	}
	owner := c.owner
	logger := c.sessionLogger()
	c.transitionLocked(fsm.EventFail)
	c.lastError = reason
	c.finishLocked()
	c.mu.Unlock()

	logger.Error("session failed", "reason", reason)
	c.indicator.Show(c.ctx, indicator.StatusError)
	if notifyOwner && owner != "" {
		c.sendBestEffort(owner, protocol.ShowError{Message: reason})
	}
}

// finishLocked resets a terminal or aborted session to idle.
func (c *Controller) finishLocked() {
	c.disarmLocked()
	if c.state != fsm.StateIdle {
		c.transitionLocked(fsm.EventReset)
	}
	c.gen++
	c.owner = ""
	c.sessionID = ""
	c.target = webhook.Target{}
	c.startedAt = time.Time{}
}

func (c *Controller) transitionLocked(event fsm.Event) bool {
	next, err := fsm.Transition(c.state, event)
	if err != nil {
		c.logger.Warn("state transition rejected", "state", string(c.state), "event", string(event), "error", err.Error())
		return false
	}
	c.state = next
	return true
}

// armLocked replaces the pending timeout. The callback only acts when the
// session generation and the expected phase still match.
func (c *Controller) armLocked(gen uint64, d time.Duration, phase fsm.State) {
	c.disarmLocked()
	c.timer = time.AfterFunc(d, func() { c.onTimeout(gen, phase) })
}

func (c *Controller) disarmLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) onTimeout(gen uint64, phase fsm.State) {
	c.mu.Lock()
	if gen != c.gen || c.state != phase {
		c.mu.Unlock()
		return
	}
	owner := c.owner
	c.mu.Unlock()

	// The owner may still hold the microphone.
	c.sendBestEffort(owner, protocol.StopRecording{})

	reason := "capture page did not acknowledge start"
	if phase == fsm.StateStopping {
		reason = "capture page did not finish stopping"
	}
	c.fail(gen, reason, true)
}

func (c *Controller) sendBestEffort(page string, cmd protocol.Command) {
	if err := c.pages.Send(page, cmd); err != nil {
		c.logger.Warn("command not delivered", "context_id", page, "kind", string(cmd.Kind()), "error", err.Error())
	}
}

func (c *Controller) sessionLogger() *slog.Logger {
	if c.sessionID == "" {
		return c.logger
	}
	return c.logger.With("session_id", c.sessionID)
}
