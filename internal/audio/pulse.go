//go:build linux

package audio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
	"github.com/rbright/voicehook/internal/capture"
)

const applicationName = "voicehook"

func newPulseClient() (*pulse.Client, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName(applicationName),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	return client, nil
}

// ListDevices returns Pulse input sources with default/availability metadata.
func ListDevices(_ context.Context) ([]Device, error) {
	client, err := newPulseClient()
	if err != nil {
		return nil, err
	}
	defer client.Close()

	defaultSource, err := client.DefaultSource()
	if err != nil {
		return nil, fmt.Errorf("read default source: %w", err)
	}

	var infos pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &infos); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	devices := make([]Device, 0, len(infos))
	for _, info := range infos {
		if info == nil {
			continue
		}
		devices = append(devices, Device{
			ID:          info.SourceName,
			Description: info.Device,
			State:       sourceStateString(info.State),
			Available:   sourceAvailable(info),
			Muted:       info.Mute,
			Default:     info.SourceName == defaultSource.ID(),
		})
	}
	return devices, nil
}

// Input opens float32 record streams on the selected Pulse source.
type Input struct {
	preferred string
	fallback  string
	logger    *slog.Logger
}

// NewInput returns a capture.Device honoring audio.input/audio.fallback.
func NewInput(preferred, fallback string, logger *slog.Logger) *Input {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Input{preferred: preferred, fallback: fallback, logger: logger}
}

// Open selects a source and starts recording into onBlock.
func (in *Input) Open(ctx context.Context, format capture.Format, onBlock func([]float32)) (capture.Stream, error) {
	selection, err := SelectDevice(ctx, in.preferred, in.fallback)
	if err != nil {
		return nil, err
	}
	if selection.Warning != "" {
		in.logger.Warn("audio fallback", "warning", selection.Warning)
	}

	client, err := newPulseClient()
	if err != nil {
		return nil, err
	}
	source, err := client.SourceByID(selection.Device.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve source %q: %w", selection.Device.ID, err)
	}

	ps := &pulseStream{client: client}
	writer := pulse.Float32Writer(func(buf []float32) (int, error) {
		if ps.detached.Load() {
			return 0, io.EOF
		}
		onBlock(buf)
		return len(buf), nil
	})

	opts := []pulse.RecordOption{
		pulse.RecordSource(source),
		pulse.RecordSampleRate(format.SampleRate),
		pulse.RecordMediaName("voicehook capture"),
	}
	if format.Channels == 1 {
		opts = append(opts, pulse.RecordMono)
	}
	if format.BlockSamples > 0 {
		opts = append(opts, pulse.RecordBufferFragmentSize(uint32(format.BlockSamples*format.Channels*4)))
	}

	stream, err := client.NewRecord(writer, opts...)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}
	ps.stream = stream
	stream.Start()

	in.logger.Info("pulse capture opened", "device", selection.Device.ID, "sample_rate", format.SampleRate)
	return ps, nil
}

type pulseStream struct {
	client *pulse.Client
	stream *pulse.RecordStream

	detached atomic.Bool
	closed   atomic.Bool
}

// Disconnect stops sample delivery.
func (s *pulseStream) Disconnect() error {
	if s.closed.Load() {
		return capture.ErrStreamClosed
	}
	if s.detached.Swap(true) {
		return nil
	}
	s.stream.Stop()
	return nil
}

// Close releases the record stream and the server connection.
func (s *pulseStream) Close() error {
	if s.closed.Swap(true) {
		return capture.ErrStreamClosed
	}
	s.detached.Store(true)
	s.stream.Close()
	s.client.Close()
	return nil
}

// sourceStateString maps Pulse source state constants to readable values.
func sourceStateString(state uint32) string {
	switch state {
	case 0:
		return "running"
	case 1:
		return "idle"
	case 2:
		return "suspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

// sourceAvailable reports whether the active port is usable.
func sourceAvailable(source *pulseproto.GetSourceInfoReply) bool {
	if source == nil {
		return false
	}
	for _, port := range source.Ports {
		if port.Name == source.ActivePortName {
			// PulseAudio values: unknown=0, no=1, yes=2.
			return port.Available != 1
		}
	}
	return true
}
