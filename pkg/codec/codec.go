package codec

import (
	"fmt"

	"github.com/drgolem/musicviz/pkg/types"
)

// New creates the codec matching stream. Returns types.ErrUnsupportedCodec
// when no implementation exists.
func New(stream types.StreamInfo) (types.Codec, error) {
	switch stream.Codec {
	case types.CodecVorbis:
		return NewVorbis(stream.Headers)
	case types.CodecPCMS16LE:
		return NewPCM(stream.SampleRate, stream.Channels)
	default:
		return nil, fmt.Errorf("%w: %q (stream %d)", types.ErrUnsupportedCodec, stream.Codec, stream.Index)
	}
}

// Float32ToInt16 clamps x to [-1, 1] and scales it to a signed 16-bit sample.
func Float32ToInt16(x float32) int16 {
	if x > 1 {
		x = 1
	} else if x < -1 {
		x = -1
	}
	return int16(x * 32767.0)
}

// putFloats writes samples as little-endian int16 into dst.
// dst must hold 2*len(samples) bytes.
func putFloats(dst []byte, samples []float32) {
	for i, s := range samples {
		v := uint16(Float32ToInt16(s))
		dst[2*i] = byte(v)
		dst[2*i+1] = byte(v >> 8)
	}
}
