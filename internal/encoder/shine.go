package encoder

import (
	"bytes"
	"fmt"

	"github.com/braheezy/shine-mp3/pkg/mp3"
)

// Shine adapts the pure-Go shine MP3 encoder (fixed 128 kbps) to FrameEncoder.
// Partial frames are held back until Flush pads them with silence.
//
// mp3.Encoder.Write walks each channel with pointer arithmetic and keeps a
// cursor one sample past the frame after it returns. Frames are therefore
// always handed over one at a time from a scratch buffer with room past the
// end, so the cursor stays inside a live allocation.
type Shine struct {
	enc      *mp3.Encoder
	frameLen int
	frame    []int16
	buf      bytes.Buffer
	pending  []int16
}

// NewShine is the default Factory.
func NewShine(sampleRate, channels int) (FrameEncoder, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid shine format %d Hz x %d", sampleRate, channels)
	}
	frameLen := FrameSamples * channels
	return &Shine{
		enc:      mp3.NewEncoder(sampleRate, channels),
		frameLen: frameLen,
		frame:    make([]int16, frameLen+channels),
	}, nil
}

func (s *Shine) EncodeFrame(frame []int16) ([]byte, error) {
	s.pending = append(s.pending, frame...)

	consumed := 0
	for len(s.pending)-consumed >= s.frameLen {
		copy(s.frame, s.pending[consumed:consumed+s.frameLen])
		if err := s.writeFrame(); err != nil {
			return nil, fmt.Errorf("shine write: %w", err)
		}
		consumed += s.frameLen
	}
	if consumed > 0 {
		s.pending = append(s.pending[:0], s.pending[consumed:]...)
	}
	return s.drain(), nil
}

func (s *Shine) Flush() ([]byte, error) {
	if len(s.pending) > 0 {
		clear(s.frame)
		copy(s.frame, s.pending)
		s.pending = s.pending[:0]
		if err := s.writeFrame(); err != nil {
			return nil, fmt.Errorf("shine flush: %w", err)
		}
	}
	return s.drain(), nil
}

// writeFrame encodes exactly one frame. Write skips every other frame when
// given more than one, so it never sees a longer slice.
func (s *Shine) writeFrame() error {
	return s.enc.Write(&s.buf, s.frame[:s.frameLen])
}

func (s *Shine) drain() []byte {
	if s.buf.Len() == 0 {
		return nil
	}
	out := make([]byte, s.buf.Len())
	copy(out, s.buf.Bytes())
	s.buf.Reset()
	return out
}
