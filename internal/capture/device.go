package capture

import (
	"context"
	"errors"
)

// ErrStreamClosed is returned by a Stream torn down more than once.
var ErrStreamClosed = errors.New("capture stream already closed")

// Format is the requested input format.
type Format struct {
	SampleRate   int
	Channels     int
	BlockSamples int
}

// Device opens input streams. onBlock is called from the backend's goroutine
// and must not retain block after it returns.
type Device interface {
	Open(ctx context.Context, format Format, onBlock func(block []float32)) (Stream, error)
}

// Stream is one open input session. Disconnect detaches the processing
// callback; Close releases the device handle.
type Stream interface {
	Disconnect() error
	Close() error
}

// DeviceFunc adapts a function to Device.
type DeviceFunc func(ctx context.Context, format Format, onBlock func([]float32)) (Stream, error)

func (f DeviceFunc) Open(ctx context.Context, format Format, onBlock func([]float32)) (Stream, error) {
	return f(ctx, format, onBlock)
}
