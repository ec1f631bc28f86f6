package codec

import (
	"errors"
	"fmt"
)

// ErrTruncatedFrame is returned when a PCM packet ends in the middle of a
// sample frame.
var ErrTruncatedFrame = errors.New("truncated PCM frame")

// PCM is the passthrough codec for containers that already carry
// interleaved signed 16-bit little-endian samples (WAV, decoded MP3).
type PCM struct {
	rate          int
	channels      int
	bytesPerFrame int
}

// NewPCM creates a passthrough codec for 16-bit PCM.
func NewPCM(rate, channels int) (*PCM, error) {
	if rate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid PCM format: rate=%d channels=%d", rate, channels)
	}
	return &PCM{
		rate:          rate,
		channels:      channels,
		bytesPerFrame: channels * 2,
	}, nil
}

// Decode copies as many whole sample frames from src as fit into dst.
func (c *PCM) Decode(src, dst []byte) (int, int, error) {
	n := min(len(src), len(dst))
	n -= n % c.bytesPerFrame
	if n == 0 && len(src) > 0 && len(src) < c.bytesPerFrame {
		return 0, 0, ErrTruncatedFrame
	}
	copy(dst[:n], src[:n])
	return n, n, nil
}

// Format returns the PCM format (rate, channels, bits per sample)
func (c *PCM) Format() (int, int, int) {
	return c.rate, c.channels, 16
}

func (c *PCM) Close() error {
	return nil
}
