// Package encoder transcodes captured float PCM into a base64 MP3 payload.
package encoder

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

const (
	SampleRate   = 44100
	Channels     = 1
	FrameSamples = 1152
	BitrateKbps  = 128
)

var (
	// ErrNoAudioCaptured is returned for an empty sample sequence.
	ErrNoAudioCaptured = errors.New("no audio captured")
	// ErrEncoderUnavailable is returned when no frame encoder can be created or it faults.
	ErrEncoderUnavailable = errors.New("mp3 encoder unavailable")
	// ErrEmptyEncodedResult is returned when non-empty input produced no bytes.
	ErrEmptyEncodedResult = errors.New("mp3 encoder produced no output")
)

// FrameEncoder consumes fixed-size int16 frames and returns compressed chunks.
type FrameEncoder interface {
	EncodeFrame(frame []int16) ([]byte, error)
	Flush() ([]byte, error)
}

// Factory creates a fresh FrameEncoder for one payload.
type Factory func(sampleRate, channels int) (FrameEncoder, error)

// Payload is the immutable result of one encode.
type Payload struct {
	Base64   string
	Bytes    int
	Samples  int
	Duration time.Duration
}

// Pipeline turns a complete capture buffer into a Payload.
type Pipeline struct {
	factory Factory
}

// NewPipeline builds a pipeline around factory. A nil factory yields
// ErrEncoderUnavailable on every non-empty encode.
func NewPipeline(factory Factory) *Pipeline {
	return &Pipeline{factory: factory}
}

// Default returns a pipeline backed by the shine MP3 encoder.
func Default() *Pipeline {
	return NewPipeline(NewShine)
}

// Encode concatenates blocks, converts them to int16, and encodes whole frames.
func (p *Pipeline) Encode(blocks [][]float32) (payload Payload, err error) {
	total := 0
	for _, block := range blocks {
		total += len(block)
	}
	if total == 0 {
		return Payload{}, ErrNoAudioCaptured
	}

	if p == nil || p.factory == nil {
		return Payload{}, ErrEncoderUnavailable
	}
	enc, err := p.factory(SampleRate, Channels)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrEncoderUnavailable, err)
	}
	if enc == nil {
		return Payload{}, ErrEncoderUnavailable
	}

	defer func() {
		if r := recover(); r != nil {
			payload = Payload{}
			err = fmt.Errorf("%w: encoder panic: %v", ErrEncoderUnavailable, r)
		}
	}()

	pcm := make([]int16, 0, total)
	for _, block := range blocks {
		for _, s := range block {
			pcm = append(pcm, FloatToInt16(s))
		}
	}

	var out []byte
	for start := 0; start < len(pcm); start += FrameSamples {
		end := min(start+FrameSamples, len(pcm))
		chunk, err := enc.EncodeFrame(pcm[start:end])
		if err != nil {
			return Payload{}, fmt.Errorf("encode frame at sample %d: %w", start, err)
		}
		out = append(out, chunk...)
	}

	tail, err := enc.Flush()
	if err != nil {
		return Payload{}, fmt.Errorf("flush encoder: %w", err)
	}
	out = append(out, tail...)

	if len(out) == 0 {
		return Payload{}, ErrEmptyEncodedResult
	}

	return Payload{
		Base64:   base64.StdEncoding.EncodeToString(out),
		Bytes:    len(out),
		Samples:  total,
		Duration: SamplesDuration(total),
	}, nil
}

// FloatToInt16 clamps s to [-1, 1] and scales it to the int16 range.
func FloatToInt16(s float32) int16 {
	switch {
	case s != s: // NaN
		return 0
	case s > 1:
		s = 1
	case s < -1:
		s = -1
	}
	if s < 0 {
		return int16(s * 0x8000)
	}
	return int16(s * 0x7FFF)
}

// SamplesDuration converts a mono sample count to wall time at SampleRate.
func SamplesDuration(samples int) time.Duration {
	return time.Duration(samples) * time.Second / SampleRate
}
