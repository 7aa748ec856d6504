package agent

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rbright/voicehook/internal/bridge"
	"github.com/rbright/voicehook/internal/capture"
	"github.com/rbright/voicehook/internal/encoder"
	"github.com/rbright/voicehook/internal/fsm"
	"github.com/rbright/voicehook/internal/protocol"
	"github.com/rbright/voicehook/internal/session"
	"github.com/rbright/voicehook/internal/webhook"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	mu       sync.Mutex
	starts   []time.Duration
	startErr error
	stops    int
	unloads  int
}

func (e *fakeEngine) Start(_ context.Context, minDuration time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.starts = append(e.starts, minDuration)
	return e.startErr
}

func (e *fakeEngine) Stop(context.Context) protocol.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stops++
	return nil
}

func (e *fakeEngine) Unload() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.unloads++
}

type recordingInjector struct {
	mu    sync.Mutex
	err   error
	texts []string
}

func (r *recordingInjector) Inject(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return r.err
}

func (r *recordingInjector) Texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) notify(message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return nil
}

func (n *recordingNotifier) Messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

func TestHandleCommandDrivesEngine(t *testing.T) {
	engine := &fakeEngine{}
	a := New(engine, &recordingInjector{}, (&recordingNotifier{}).notify, nil)

	a.HandleCommand(context.Background(), protocol.StartRecording{MinDurationSeconds: 1.5})
	a.HandleCommand(context.Background(), protocol.StopRecording{})
	a.Detached()

	require.Equal(t, []time.Duration{1500 * time.Millisecond}, engine.starts)
	require.Equal(t, 1, engine.stops)
	require.Equal(t, 1, engine.unloads)
}

func TestHandleCommandDeliversTextAndErrors(t *testing.T) {
	injector := &recordingInjector{}
	notifier := &recordingNotifier{}
	a := New(&fakeEngine{}, injector, notifier.notify, nil)

	a.HandleCommand(context.Background(), protocol.InjectResult{Text: "hello world"})
	a.HandleCommand(context.Background(), protocol.ShowError{Message: "Transcription failed: webhook returned HTTP 500"})

	require.Equal(t, []string{"hello world"}, injector.Texts())
	require.Equal(t, []string{"Transcription failed: webhook returned HTTP 500"}, notifier.Messages())
}

func TestHandleCommandReportsDeliveryFailure(t *testing.T) {
	injector := &recordingInjector{err: errors.New("set clipboard: wl-copy missing")}
	notifier := &recordingNotifier{}
	a := New(&fakeEngine{}, injector, notifier.notify, nil)

	a.HandleCommand(context.Background(), protocol.InjectResult{Text: "hello"})

	require.Len(t, notifier.Messages(), 1)
	require.Contains(t, notifier.Messages()[0], "wl-copy missing")
}

func TestHandleCommandToleratesStartFailures(t *testing.T) {
	engine := &fakeEngine{startErr: capture.ErrAlreadyCapturing}
	a := New(engine, &recordingInjector{}, (&recordingNotifier{}).notify, nil)

	a.HandleCommand(context.Background(), protocol.StartRecording{})
	engine.startErr = &capture.DeviceError{Err: errors.New("no such source")}
	a.HandleCommand(context.Background(), protocol.StartRecording{})

	require.Len(t, engine.starts, 2)
}

// End-to-end: controller and agent joined by a loopback, real capture engine
// and MP3 encoder, fake microphone and dispatcher.

type fakeStream struct {
	mu     sync.Mutex
	closed bool
}

func (s *fakeStream) Disconnect() error { return nil }

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return capture.ErrStreamClosed
	}
	s.closed = true
	return nil
}

func (s *fakeStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeMic struct {
	mu      sync.Mutex
	onBlock func([]float32)
	streams []*fakeStream
}

func (m *fakeMic) Open(_ context.Context, _ capture.Format, onBlock func([]float32)) (capture.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onBlock = onBlock
	stream := &fakeStream{}
	m.streams = append(m.streams, stream)
	return stream, nil
}

func (m *fakeMic) speak(samples int) {
	m.mu.Lock()
	fn := m.onBlock
	m.mu.Unlock()

	block := make([]float32, capture.DefaultBlockSamples)
	for sent := 0; sent < samples; sent += len(block) {
		for i := range block {
			block[i] = float32(0.3 * math.Sin(2*math.Pi*440*float64(sent+i)/encoder.SampleRate))
		}
		fn(block)
	}
}

func (m *fakeMic) lastStream() *fakeStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.streams) == 0 {
		return nil
	}
	return m.streams[len(m.streams)-1]
}

type capturingDispatcher struct {
	mu     sync.Mutex
	audio  []string
	result string
}

func (d *capturingDispatcher) Dispatch(_ context.Context, _ webhook.Target, audio string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.audio = append(d.audio, audio)
	return d.result, nil
}

func (d *capturingDispatcher) TestConnection(context.Context, webhook.Target) webhook.ConnectionResult {
	return webhook.ConnectionResult{Success: true}
}

func (d *capturingDispatcher) Audio() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.audio...)
}

type pipeline struct {
	ctrl       *session.Controller
	mic        *fakeMic
	dispatcher *capturingDispatcher
	injector   *recordingInjector
	notifier   *recordingNotifier
	cancel     context.CancelFunc
	done       chan struct{}
}

func newPipeline(t *testing.T, minDuration time.Duration) *pipeline {
	t.Helper()

	loop := bridge.NewLoopback("page-1", 0)
	p := &pipeline{
		mic:        &fakeMic{},
		dispatcher: &capturingDispatcher{result: "hello from the webhook"},
		injector:   &recordingInjector{},
		notifier:   &recordingNotifier{},
		done:       make(chan struct{}),
	}
	settings := func() (session.Settings, error) {
		return session.Settings{Target: webhook.Target{URL: "https://hooks.example.com/stt"}, MinDuration: minDuration}, nil
	}
	p.ctrl = session.NewController(nil, loop, p.dispatcher, settings, nil)
	loop.Bind(p.ctrl)

	engine := capture.NewEngine(p.mic, encoder.Default(), loop, nil)
	a := New(engine, p.injector, p.notifier.notify, nil)

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go func() {
		defer close(p.done)
		loop.Run(ctx, a)
	}()
	t.Cleanup(func() {
		cancel()
		<-p.done
		p.ctrl.Close()
	})

	require.Eventually(t, func() bool {
		_, ok := loop.Active()
		return ok
	}, 2*time.Second, 5*time.Millisecond)
	return p
}

func (p *pipeline) waitForState(t *testing.T, want fsm.State) {
	t.Helper()
	require.Eventually(t, func() bool { return p.ctrl.State() == want }, 5*time.Second, 5*time.Millisecond)
}

func TestPipelineRecordsEncodesDispatchesAndInjects(t *testing.T) {
	p := newPipeline(t, 0)

	_, err := p.ctrl.Toggle(context.Background())
	require.NoError(t, err)
	p.waitForState(t, fsm.StateRecording)

	p.mic.speak(encoder.SampleRate)

	_, err = p.ctrl.Toggle(context.Background())
	require.NoError(t, err)
	p.waitForState(t, fsm.StateIdle)

	require.Eventually(t, func() bool { return len(p.injector.Texts()) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"hello from the webhook"}, p.injector.Texts())
	require.Len(t, p.dispatcher.Audio(), 1)
	require.NotEmpty(t, p.dispatcher.Audio()[0])
	require.True(t, p.mic.lastStream().Closed())
	require.Empty(t, p.notifier.Messages())
}

func TestPipelineTooShortSkipsDispatch(t *testing.T) {
	p := newPipeline(t, time.Minute)

	_, err := p.ctrl.Toggle(context.Background())
	require.NoError(t, err)
	p.waitForState(t, fsm.StateRecording)
	p.mic.speak(capture.DefaultBlockSamples)

	_, err = p.ctrl.Toggle(context.Background())
	require.NoError(t, err)
	p.waitForState(t, fsm.StateIdle)

	require.Eventually(t, func() bool { return len(p.notifier.Messages()) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Contains(t, p.notifier.Messages()[0], "Recording too short")
	require.Empty(t, p.dispatcher.Audio())
	require.True(t, p.mic.lastStream().Closed())
}

func TestPipelineDetachReleasesMicrophone(t *testing.T) {
	p := newPipeline(t, 0)

	_, err := p.ctrl.Toggle(context.Background())
	require.NoError(t, err)
	p.waitForState(t, fsm.StateRecording)

	p.cancel()
	<-p.done

	p.waitForState(t, fsm.StateIdle)
	require.Equal(t, "capture page detached", p.ctrl.Status().LastError)
	require.True(t, p.mic.lastStream().Closed())
	require.Empty(t, p.dispatcher.Audio())
}
