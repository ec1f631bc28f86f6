package codec

import (
	"fmt"

	"github.com/jfreymuth/vorbis"
)

// Vorbis decodes Vorbis audio packets with github.com/jfreymuth/vorbis.
//
// A Vorbis packet decodes as a whole. When its PCM does not fit into the
// destination, the remainder is kept and the packet is reported as not yet
// consumed, so the caller offers the same packet again and receives the rest.
type Vorbis struct {
	dec     vorbis.Decoder
	pending []byte // PCM of the current packet not yet handed out
	pcm     []byte
}

// NewVorbis creates a decoder primed with the identification, comment and
// setup headers from the container.
func NewVorbis(headers [][]byte) (*Vorbis, error) {
	v := &Vorbis{}
	for i, h := range headers {
		if err := v.dec.ReadHeader(h); err != nil {
			return nil, fmt.Errorf("vorbis header %d: %w", i, err)
		}
	}
	if !v.dec.HeadersRead() {
		return nil, fmt.Errorf("vorbis: incomplete headers (%d of 3)", len(headers))
	}
	return v, nil
}

// Decode decodes src into 16-bit PCM in dst.
// consumed is len(src) once all PCM of the packet has been returned, 0 otherwise.
func (v *Vorbis) Decode(src, dst []byte) (int, int, error) {
	if len(v.pending) == 0 {
		samples, err := v.dec.Decode(src)
		if err != nil {
			return 0, 0, fmt.Errorf("vorbis decode: %w", err)
		}
		need := len(samples) * 2
		if cap(v.pcm) < need {
			v.pcm = make([]byte, need)
		}
		v.pcm = v.pcm[:need]
		putFloats(v.pcm, samples)
		v.pending = v.pcm
	}

	n := copy(dst, v.pending)
	v.pending = v.pending[n:]
	if len(v.pending) > 0 {
		return n, 0, nil
	}
	return n, len(src), nil
}

// Format returns the PCM format (rate, channels, bits per sample)
func (v *Vorbis) Format() (int, int, int) {
	return v.dec.SampleRate(), v.dec.Channels(), 16
}

// Reset drops PCM held back from a partially returned packet. The next
// packet is not contiguous with the last one, so it only primes the overlap
// and decodes to no samples.
func (v *Vorbis) Reset() {
	v.pending = nil
	v.dec.Clear()
}

func (v *Vorbis) Close() error {
	v.pending = nil
	return nil
}
