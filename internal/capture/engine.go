// Package capture owns the microphone session and sample buffer of one agent.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rbright/voicehook/internal/encoder"
	"github.com/rbright/voicehook/internal/protocol"
)

// DefaultMaxDuration is the hard safety limit on one capture.
const DefaultMaxDuration = 5 * time.Minute

// DefaultBlockSamples is the device callback size requested from backends.
const DefaultBlockSamples = 4096

// ErrAlreadyCapturing is returned by Start unless the engine is inactive.
var ErrAlreadyCapturing = errors.New("capture already in progress")

// ErrUnloaded is returned by Start when Unload raced the device acquisition.
var ErrUnloaded = errors.New("capture engine unloaded during start")

// DeviceError wraps a failure to open the input device.
type DeviceError struct {
	Err error
}

func (e *DeviceError) Error() string { return "audio device unavailable: " + e.Err.Error() }
func (e *DeviceError) Unwrap() error { return e.Err }

// State is the local capture lifecycle.
type State int

const (
	StateInactive State = iota
	StateAcquiring
	StateCapturing
	StateFinalizing
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "inactive"
	case StateAcquiring:
		return "acquiring"
	case StateCapturing:
		return "capturing"
	case StateFinalizing:
		return "finalizing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Encoder is the subset of encoder.Pipeline the engine needs.
type Encoder interface {
	Encode(blocks [][]float32) (encoder.Payload, error)
}

// Emitter delivers events to the controller on a best-effort basis.
type Emitter interface {
	Emit(context.Context, protocol.Event) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(context.Context, protocol.Event) error

func (f EmitterFunc) Emit(ctx context.Context, ev protocol.Event) error {
	return f(ctx, ev)
}

// Snapshot is a point-in-time view used for status output.
type Snapshot struct {
	State   State
	Elapsed time.Duration
	Blocks  int
	Samples int
}

// Option customizes an Engine.
type Option func(*Engine)

// WithMaxDuration overrides the safety timeout.
func WithMaxDuration(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.maxDuration = d
		}
	}
}

// WithClock overrides the time source used for elapsed-duration checks.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine captures mono float PCM between Start and Stop.
type Engine struct {
	device  Device
	encoder Encoder
	emitter Emitter
	logger  *slog.Logger

	maxDuration time.Duration
	now         func() time.Time

	mu          sync.Mutex
	state       State
	seq         uint64
	stream      Stream
	timer       *time.Timer
	startedAt   time.Time
	minDuration time.Duration
	blocks      [][]float32
	samples     int
}

// NewEngine wires an engine to its device, encoder, and event channel.
func NewEngine(device Device, enc Encoder, emitter Emitter, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if emitter == nil {
		emitter = EmitterFunc(func(context.Context, protocol.Event) error { return nil })
	}
	e := &Engine{
		device:      device,
		encoder:     enc,
		emitter:     emitter,
		logger:      logger.With("component", "capture"),
		maxDuration: DefaultMaxDuration,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start opens the device and begins buffering samples.
func (e *Engine) Start(ctx context.Context, minDuration time.Duration) error {
	e.mu.Lock()
	if e.state != StateInactive {
		state := e.state
		e.mu.Unlock()
		e.logger.Debug("start ignored", "state", state.String())
		return ErrAlreadyCapturing
	}
	stale := e.takeStreamLocked()
	e.state = StateAcquiring
	e.seq++
	seq := e.seq
	e.blocks = nil
	e.samples = 0
	e.mu.Unlock()

	e.release(stale)

	if e.device == nil {
		return e.failStart(ctx, seq, errors.New("no capture device configured"))
	}

	format := Format{SampleRate: encoder.SampleRate, Channels: encoder.Channels, BlockSamples: DefaultBlockSamples}
	stream, err := e.device.Open(ctx, format, func(block []float32) { e.ingest(seq, block) })
	if err != nil {
		return e.failStart(ctx, seq, err)
	}

	e.mu.Lock()
	if e.seq != seq || e.state != StateAcquiring {
		e.mu.Unlock()
		e.release(stream)
		return ErrUnloaded
	}
	e.stream = stream
	e.state = StateCapturing
	e.startedAt = e.now()
	if minDuration < 0 {
		minDuration = 0
	}
	e.minDuration = minDuration
	e.timer = time.AfterFunc(e.maxDuration, func() {
		e.logger.Warn("safety timeout reached; stopping capture", "max_duration", e.maxDuration.String())
		e.stop(context.Background(), seq)
	})
	e.mu.Unlock()

	e.logger.Info("capture started", "min_duration", minDuration.String())
	e.emit(ctx, protocol.Started{})
	return nil
}

// Stop ends the current capture and emits exactly one outcome event.
// It returns the emitted event, or nil when nothing was capturing.
func (e *Engine) Stop(ctx context.Context) protocol.Event {
	return e.stop(ctx, 0)
}

// Unload releases every resource without encoding or emitting events.
func (e *Engine) Unload() {
	e.mu.Lock()
	state := e.state
	e.seq++
	e.disarmLocked()
	stream := e.takeStreamLocked()
	e.blocks = nil
	e.samples = 0
	e.state = StateInactive
	e.mu.Unlock()

	e.release(stream)
	if state != StateInactive {
		e.logger.Info("capture unloaded", "state", state.String())
	}
}

// Snapshot reports the current state and buffer size.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	snap := Snapshot{State: e.state, Blocks: len(e.blocks), Samples: e.samples}
	if e.state == StateCapturing {
		snap.Elapsed = e.now().Sub(e.startedAt)
	}
	return snap
}

func (e *Engine) stop(ctx context.Context, seq uint64) protocol.Event {
	e.mu.Lock()
	if e.state != StateCapturing || (seq != 0 && seq != e.seq) {
		var stream Stream
		if e.state == StateInactive {
			stream = e.takeStreamLocked()
		}
		e.mu.Unlock()
		e.release(stream)
		return nil
	}

	e.state = StateFinalizing
	elapsed := e.now().Sub(e.startedAt)
	e.disarmLocked()
	blocks := e.blocks
	samples := e.samples
	e.blocks = nil
	e.samples = 0
	stream := e.takeStreamLocked()
	minDuration := e.minDuration
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		if e.state == StateFinalizing {
			e.state = StateInactive
		}
		e.mu.Unlock()
	}()

	e.release(stream)

	if elapsed < minDuration {
		reason := fmt.Sprintf("recording too short (%.1fs < %.1fs)", elapsed.Seconds(), minDuration.Seconds())
		e.logger.Info("capture discarded", "elapsed", elapsed.String(), "min_duration", minDuration.String())
		ev := protocol.StoppedTooShort{Reason: reason}
		e.emit(ctx, ev)
		return ev
	}

	var ev protocol.Event
	payload, err := e.encode(blocks)
	if err != nil {
		e.logger.Error("encode failed", "error", err.Error(), "samples", samples)
		ev = protocol.CaptureError{Reason: err.Error()}
	} else {
		e.logger.Info("capture encoded",
			"elapsed", elapsed.String(),
			"samples", payload.Samples,
			"mp3_bytes", payload.Bytes,
			"base64_bytes", len(payload.Base64),
		)
		ev = protocol.StoppedWithPayload{Payload: payload.Base64}
	}
	e.emit(ctx, ev)
	return ev
}

func (e *Engine) encode(blocks [][]float32) (encoder.Payload, error) {
	if e.encoder == nil {
		return encoder.Payload{}, encoder.ErrEncoderUnavailable
	}
	return e.encoder.Encode(blocks)
}

func (e *Engine) failStart(ctx context.Context, seq uint64, cause error) error {
	e.mu.Lock()
	var stream Stream
	if e.seq == seq {
		stream = e.takeStreamLocked()
		e.state = StateInactive
		e.blocks = nil
		e.samples = 0
	}
	e.mu.Unlock()
	e.release(stream)

	err := &DeviceError{Err: cause}
	e.logger.Error("capture start failed", "error", err.Error())
	e.emit(ctx, protocol.CaptureError{Reason: err.Error()})
	return err
}

// ingest appends a copy of block; the device reuses its buffer after return.
func (e *Engine) ingest(seq uint64, block []float32) {
	if len(block) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateCapturing || e.seq != seq {
		return
	}
	e.blocks = append(e.blocks, append([]float32(nil), block...))
	e.samples += len(block)
}

func (e *Engine) disarmLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

func (e *Engine) takeStreamLocked() Stream {
	stream := e.stream
	e.stream = nil
	return stream
}

// release disconnects then closes stream, swallowing already-closed races.
func (e *Engine) release(stream Stream) {
	if stream == nil {
		return
	}
	if err := stream.Disconnect(); err != nil && !errors.Is(err, ErrStreamClosed) {
		e.logger.Debug("stream disconnect failed", "error", err.Error())
	}
	if err := stream.Close(); err != nil && !errors.Is(err, ErrStreamClosed) {
		e.logger.Debug("stream close failed", "error", err.Error())
	}
}

func (e *Engine) emit(ctx context.Context, ev protocol.Event) {
	if err := e.emitter.Emit(ctx, ev); err != nil {
		e.logger.Warn("event delivery failed", "kind", ev.Kind(), "error", err.Error())
	}
}
