package session

import (
	"context"
	"fmt"

	"github.com/rbright/voicehook/internal/fsm"
	"github.com/rbright/voicehook/internal/indicator"
	"github.com/rbright/voicehook/internal/protocol"
	"github.com/rbright/voicehook/internal/webhook"
)

// HandleEvent consumes one event from contextID. Events from contexts other
// than the session owner are ignored, except that a stray started is answered
// with stop-recording so the orphaned capture releases its microphone.
func (c *Controller) HandleEvent(_ context.Context, contextID string, ev protocol.Event) {
	switch ev := ev.(type) {
	case protocol.Started:
		c.onStarted(contextID)
	case protocol.StoppedWithPayload:
		c.onPayload(contextID, ev.Payload)
	case protocol.StoppedTooShort:
		c.onAbort(contextID, tooShortMessage(ev.Reason))
	case protocol.CaptureError:
		c.onAbort(contextID, captureErrorMessage(ev.Reason))
	default:
		c.logger.Warn("unhandled event", "context_id", contextID, "kind", fmt.Sprintf("%T", ev))
	}
}

// HandleDetach fails the live session when its owner goes away.
func (c *Controller) HandleDetach(contextID string) {
	c.mu.Lock()
	if c.owner != contextID || !fsm.Busy(c.state) {
		c.mu.Unlock()
		return
	}
	gen := c.gen
	c.mu.Unlock()

	c.fail(gen, "capture page detached", false)
}

func (c *Controller) onStarted(contextID string) {
	c.mu.Lock()
	if contextID == c.owner && c.state == fsm.StateRecording {
		c.mu.Unlock()
		return
	}
	if contextID != c.owner || c.state != fsm.StateStarting {
		c.mu.Unlock()
		c.logger.Warn("stray started event; stopping orphaned capture", "context_id", contextID)
		c.sendBestEffort(contextID, protocol.StopRecording{})
		return
	}

	c.transitionLocked(fsm.EventAcknowledge)
	c.disarmLocked()
	c.startedAt = c.now()
	logger := c.sessionLogger()
	c.mu.Unlock()

	logger.Info("session recording")
	c.indicator.Show(c.ctx, indicator.StatusRecording)
}

func (c *Controller) onPayload(contextID string, payload string) {
	c.mu.Lock()
	if contextID != c.owner || (c.state != fsm.StateRecording && c.state != fsm.StateStopping) {
		state := c.state
		c.mu.Unlock()
		c.logger.Warn("ignoring payload outside an owned session", "context_id", contextID, "state", string(state))
		return
	}

	c.transitionLocked(fsm.EventPayload)
	c.disarmLocked()
	gen := c.gen
	target := c.target
	logger := c.sessionLogger()
	c.mu.Unlock()

	logger.Info("session processing", "payload_bytes", len(payload))
	c.indicator.Show(c.ctx, indicator.StatusProcessing)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.dispatch(gen, target, payload)
	}()
}

func (c *Controller) onAbort(contextID string, message string) {
	c.mu.Lock()
	if contextID != c.owner {
		c.mu.Unlock()
		c.logger.Debug("ignoring event from non-owner", "context_id", contextID)
		return
	}
	switch c.state {
	case fsm.StateStarting, fsm.StateRecording, fsm.StateStopping:
	default:
		c.mu.Unlock()
		return
	}

	logger := c.sessionLogger()
	c.transitionLocked(fsm.EventAbort)
	c.lastError = message
	c.finishLocked()
	c.mu.Unlock()

	logger.Warn("session ended without dispatch", "reason", message)
	c.indicator.Show(c.ctx, indicator.StatusError)
	c.sendBestEffort(contextID, protocol.ShowError{Message: message})
}

// dispatch makes exactly one remote attempt and delivers its outcome.
func (c *Controller) dispatch(gen uint64, target webhook.Target, payload string) {
	text, err := c.dispatcher.Dispatch(c.ctx, target, payload)

	c.mu.Lock()
	if gen != c.gen || c.state != fsm.StateProcessing {
		c.mu.Unlock()
		return
	}
	if err != nil {
		c.mu.Unlock()
		c.fail(gen, "Transcription failed: "+err.Error(), true)
		return
	}

	owner := c.owner
	logger := c.sessionLogger()
	c.transitionLocked(fsm.EventDispatched)
	c.lastError = ""
	c.finishLocked()
	c.mu.Unlock()

	logger.Info("session succeeded", "text_chars", len([]rune(text)))
	c.indicator.Show(c.ctx, indicator.StatusSuccess)
	c.sendBestEffort(owner, protocol.InjectResult{Text: text})
}

func tooShortMessage(reason string) string {
	if reason == "" {
		return "Recording too short"
	}
	return "Recording too short: " + reason
}

func captureErrorMessage(reason string) string {
	if reason == "" {
		return "Capture failed"
	}
	return "Capture failed: " + reason
}
