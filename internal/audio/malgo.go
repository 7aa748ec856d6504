//go:build !linux

package audio

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/gen2brain/malgo"
	"github.com/rbright/voicehook/internal/capture"
)

// ListDevices returns miniaudio capture devices.
func ListDevices(_ context.Context) ([]Device, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("list capture devices: %w", err)
	}

	devices := make([]Device, 0, len(infos))
	for _, info := range infos {
		devices = append(devices, Device{
			ID:          hex.EncodeToString(info.ID.Pointer()[:]),
			Description: info.Name(),
			State:       "idle",
			Available:   true,
			Default:     info.IsDefault != 0,
		})
	}
	return devices, nil
}

// Input opens float32 capture devices through miniaudio.
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

// Open selects a device and starts recording into onBlock.
func (in *Input) Open(ctx context.Context, format capture.Format, onBlock func([]float32)) (capture.Stream, error) {
	selection, err := SelectDevice(ctx, in.preferred, in.fallback)
	if err != nil {
		return nil, err
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = uint32(format.Channels)
	cfg.SampleRate = uint32(format.SampleRate)
	if format.BlockSamples > 0 {
		cfg.PeriodSizeInFrames = uint32(format.BlockSamples)
	}

	idBytes, err := hex.DecodeString(selection.Device.ID)
	if err == nil {
		var id malgo.DeviceID
		copy(id[:], idBytes)
		cfg.Capture.DeviceID = id.Pointer()
	}

	ms := &malgoStream{ctx: mctx}
	var scratch []float32
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			if ms.detached.Load() {
				return
			}
			n := len(input) / 4
			if cap(scratch) < n {
				scratch = make([]float32, n)
			}
			scratch = scratch[:n]
			for i := range scratch {
				scratch[i] = math.Float32frombits(binary.LittleEndian.Uint32(input[i*4:]))
			}
			onBlock(scratch)
		},
	}

	dev, err := malgo.InitDevice(mctx.Context, cfg, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("init capture device: %w", err)
	}
	ms.device = dev
	if err := dev.Start(); err != nil {
		dev.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("start capture device: %w", err)
	}

	in.logger.Info("miniaudio capture opened", "device", selection.Device.Description, "sample_rate", format.SampleRate)
	return ms, nil
}

type malgoStream struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	detached atomic.Bool
	closed   atomic.Bool
}

func (s *malgoStream) Disconnect() error {
	if s.closed.Load() {
		return capture.ErrStreamClosed
	}
	if s.detached.Swap(true) {
		return nil
	}
	return s.device.Stop()
}

func (s *malgoStream) Close() error {
	if s.closed.Swap(true) {
		return capture.ErrStreamClosed
	}
	s.detached.Store(true)
	s.device.Uninit()
	_ = s.ctx.Uninit()
	s.ctx.Free()
	return nil
}
