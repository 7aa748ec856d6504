package encoder

import (
	"bytes"
	"encoding/base64"
	"errors"
	"math"
	"runtime"
	"testing"

	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/stretchr/testify/require"
)

type fakeFrameEncoder struct {
	frames   []int
	samples  []int16
	flushOut []byte
	frameOut []byte
	frameErr error
	panicOn  int
}

func (f *fakeFrameEncoder) EncodeFrame(frame []int16) ([]byte, error) {
	f.frames = append(f.frames, len(frame))
	f.samples = append(f.samples, frame...)
	if f.panicOn > 0 && len(f.frames) == f.panicOn {
		panic("boom")
	}
	if f.frameErr != nil {
		return nil, f.frameErr
	}
	return f.frameOut, nil
}

func (f *fakeFrameEncoder) Flush() ([]byte, error) {
	return f.flushOut, nil
}

func factoryFor(enc FrameEncoder) Factory {
	return func(int, int) (FrameEncoder, error) { return enc, nil }
}

func TestFloatToInt16ClampsAndScales(t *testing.T) {
	tests := []struct {
		in   float32
		want int16
	}{
		{in: 0, want: 0},
		{in: 1, want: 32767},
		{in: -1, want: -32768},
		{in: 2.5, want: 32767},
		{in: -7, want: -32768},
		{in: 0.5, want: 16383},
		{in: -0.5, want: -16384},
		{in: float32(math.NaN()), want: 0},
	}

	for _, tc := range tests {
		require.Equal(t, tc.want, FloatToInt16(tc.in), "input %v", tc.in)
	}
}

func TestEncodeEmptyInputFailsBeforeFactory(t *testing.T) {
	called := false
	p := NewPipeline(func(int, int) (FrameEncoder, error) {
		called = true
		return &fakeFrameEncoder{}, nil
	})

	_, err := p.Encode(nil)
	require.ErrorIs(t, err, ErrNoAudioCaptured)
	_, err = p.Encode([][]float32{{}, {}})
	require.ErrorIs(t, err, ErrNoAudioCaptured)
	require.False(t, called)
}

func TestEncodeEncoderUnavailable(t *testing.T) {
	_, err := NewPipeline(nil).Encode([][]float32{{0.1}})
	require.ErrorIs(t, err, ErrEncoderUnavailable)

	failing := NewPipeline(func(int, int) (FrameEncoder, error) { return nil, errors.New("no lib") })
	_, err = failing.Encode([][]float32{{0.1}})
	require.ErrorIs(t, err, ErrEncoderUnavailable)
	require.Contains(t, err.Error(), "no lib")
}

func TestEncodeFramesInFixedSizeChunks(t *testing.T) {
	fake := &fakeFrameEncoder{frameOut: []byte{0xAA}, flushOut: []byte{0xBB, 0xCC}}
	blocks := [][]float32{make([]float32, 1000), make([]float32, 2000)}
	blocks[1][0] = 2 // clamped

	payload, err := NewPipeline(factoryFor(fake)).Encode(blocks)
	require.NoError(t, err)
	require.Equal(t, []int{1152, 1152, 696}, fake.frames)
	require.Equal(t, int16(32767), fake.samples[1000])
	require.Equal(t, 3000, payload.Samples)

	raw, err := base64.StdEncoding.DecodeString(payload.Base64)
	require.NoError(t, err)
	require.Equal(t, []byte{0xAA, 0xAA, 0xAA, 0xBB, 0xCC}, raw)
	require.Equal(t, 5, payload.Bytes)
	require.NotContains(t, payload.Base64, "\n")
}

func TestEncodeEmptyOutputFails(t *testing.T) {
	_, err := NewPipeline(factoryFor(&fakeFrameEncoder{})).Encode([][]float32{{0.1, 0.2}})
	require.ErrorIs(t, err, ErrEmptyEncodedResult)
}

func TestEncodeFrameErrorPropagates(t *testing.T) {
	_, err := NewPipeline(factoryFor(&fakeFrameEncoder{frameErr: errors.New("bad frame")})).Encode([][]float32{{0.1}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "bad frame")
}

func TestEncodeRecoversEncoderPanic(t *testing.T) {
	fake := &fakeFrameEncoder{panicOn: 1}
	_, err := NewPipeline(factoryFor(fake)).Encode([][]float32{make([]float32, 10)})
	require.ErrorIs(t, err, ErrEncoderUnavailable)
	require.Contains(t, err.Error(), "panic")
}

func TestSamplesDuration(t *testing.T) {
	require.Equal(t, int64(1000), SamplesDuration(SampleRate).Milliseconds())
	require.Zero(t, SamplesDuration(0))
}

func TestShineRoundTripPreservesDuration(t *testing.T) {
	const seconds = 3
	samples := seconds * SampleRate
	blocks := make([][]float32, 0, samples/4096+1)
	for remaining := samples; remaining > 0; remaining -= 4096 {
		n := min(4096, remaining)
		block := make([]float32, n)
		for i := range block {
			block[i] = float32(0.2 * math.Sin(2*math.Pi*440*float64(i)/SampleRate))
		}
		blocks = append(blocks, block)
	}

	payload, err := Default().Encode(blocks)
	require.NoError(t, err)
	require.NotEmpty(t, payload.Base64)
	require.Equal(t, samples, payload.Samples)

	raw, err := base64.StdEncoding.DecodeString(payload.Base64)
	require.NoError(t, err)
	require.Equal(t, payload.Bytes, len(raw))

	dec, err := gomp3.NewDecoder(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, SampleRate, dec.SampleRate())

	// go-mp3 always yields 16-bit stereo.
	decodedSamples := dec.Length() / 4
	require.InDelta(t, samples, decodedSamples, FrameSamples)
}

func TestShineSilenceProducesPayload(t *testing.T) {
	payload, err := Default().Encode([][]float32{make([]float32, 3*SampleRate)})
	require.NoError(t, err)
	require.Greater(t, payload.Bytes, 0)
	require.InDelta(t, 3.0, payload.Duration.Seconds(), 0.001)
}

func TestShineHoldsPartialFramesUntilFlush(t *testing.T) {
	enc, err := NewShine(SampleRate, Channels)
	require.NoError(t, err)

	out, err := enc.EncodeFrame(make([]int16, 100))
	require.NoError(t, err)
	require.Empty(t, out)

	_, err = enc.Flush()
	require.NoError(t, err)

	_, err = NewShine(0, 1)
	require.Error(t, err)
}

func TestShineSurvivesConcurrentGC(t *testing.T) {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
				runtime.GC()
			}
		}
	}()
	defer func() {
		close(stop)
		<-done
	}()

	for i := range 200 {
		payload, err := Default().Encode([][]float32{make([]float32, 3*FrameSamples+1+i*7)})
		require.NoError(t, err)
		require.Greater(t, payload.Bytes, 0)
	}
}

func TestShineEncodesEveryFrameOfALongChunk(t *testing.T) {
	enc, err := NewShine(SampleRate, Channels)
	require.NoError(t, err)

	const frames = 8
	pcm := make([]int16, frames*FrameSamples)
	for i := range pcm {
		pcm[i] = int16(6000 * math.Sin(2*math.Pi*440*float64(i)/SampleRate))
	}

	out, err := enc.EncodeFrame(pcm)
	require.NoError(t, err)
	tail, err := enc.Flush()
	require.NoError(t, err)
	out = append(out, tail...)

	dec, err := gomp3.NewDecoder(bytes.NewReader(out))
	require.NoError(t, err)
	require.InDelta(t, len(pcm), dec.Length()/4, FrameSamples)
}
