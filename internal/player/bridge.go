package player

import (
	"errors"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/drgolem/musicviz/pkg/circularbuffer"
	"github.com/drgolem/musicviz/pkg/dsp"
)

// FrameDecoder produces PCM on demand (see decoder.Decoder).
type FrameDecoder interface {
	DecodeInto(buf []byte) (int, error)
}

// Bridge adapts the pull-style audio callback to the decoder.
//
// Each Fill hands freshly decoded PCM to the signal processor, stores it in
// a circular buffer of DelaySlots snapshots and plays the oldest snapshot,
// so the listener hears audio DelaySlots-1 callbacks after it was analysed.
// The visuals are rendered from the analysis and therefore stay ahead of
// the output by that margin.
//
// All methods except the status accessors run on the audio callback thread.
type Bridge struct {
	dec    FrameDecoder
	proc   dsp.Processor
	logger *slog.Logger

	ringCap int
	ring    *circularbuffer.CircularBuffer

	scratch []byte
	pos     int // next unread byte in scratch
	end     int // bytes of valid PCM in scratch

	eof       bool
	remaining int // callbacks still to play after end of stream

	drained      atomic.Bool
	callbacks    atomic.Uint64
	playedBytes  atomic.Uint64
	silentBlocks atomic.Uint64
}

// NewBridge creates a bridge with a delay ring of ringCap snapshots and a
// decode scratch buffer of maxFrame bytes.
func NewBridge(dec FrameDecoder, proc dsp.Processor, ringCap, maxFrame int, logger *slog.Logger) *Bridge {
	if proc == nil {
		proc = dsp.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if ringCap < 1 {
		ringCap = 1
	}
	return &Bridge{
		dec:     dec,
		proc:    proc,
		logger:  logger,
		ringCap: ringCap,
		scratch: make([]byte, maxFrame),
	}
}

// Fill writes exactly len(out) bytes of output.
func (b *Bridge) Fill(out []byte) {
	b.callbacks.Add(1)

	filled := 0
	for filled < len(out) {
		if b.pos >= b.end {
			if b.eof {
				clear(out[filled:])
				break
			}
			if !b.refill() {
				continue
			}
		}
		n := copy(out[filled:], b.scratch[b.pos:b.end])
		filled += n
		b.pos += n
	}

	b.proc.ProcessAudioPCM(out)
	b.delay(out)
	b.playedBytes.Add(uint64(len(out)))

	if b.eof {
		if b.remaining == 0 {
			b.drained.Store(true)
		} else {
			b.remaining--
		}
	}
}

// refill decodes the next block into scratch and reports whether it holds
// data. A failing decoder yields a block of silence.
func (b *Bridge) refill() bool {
	n, err := b.dec.DecodeInto(b.scratch)
	switch {
	case errors.Is(err, io.EOF):
		b.eof = true
		b.remaining = b.ringCap - 1
		b.logger.Debug("Decoder reached end of stream",
			"callbacks", b.callbacks.Load())
		return false
	case err != nil:
		b.logger.Debug("Decode failed, emitting silence", "error", err)
		clear(b.scratch)
		n = len(b.scratch)
		b.silentBlocks.Add(1)
	}
	b.pos, b.end = 0, n
	return n > 0
}

// delay stores out in the ring and replaces it with the oldest snapshot.
func (b *Bridge) delay(out []byte) {
	if b.ring == nil || b.ring.SlotSize() != len(out) {
		if b.ring != nil {
			b.logger.Warn("Audio buffer size changed, restarting delay line",
				"old_size", b.ring.SlotSize(),
				"new_size", len(out))
		}
		b.ring = circularbuffer.New(b.ringCap)
		silence := make([]byte, len(out))
		for i := 0; i < b.ringCap-1; i++ {
			if err := b.ring.Write(silence); err != nil {
				// retried on the next callback; out is passed through undelayed
				b.logger.Error("Failed to prime delay line", "error", err)
				b.ring = nil
				return
			}
		}
	}

	if err := b.ring.Write(out); err != nil {
		b.logger.Error("Failed to store audio snapshot", "error", err)
		b.ring = nil
		return
	}
	b.ring.Oldest(out)
}

// Callback returns Fill as a device callback that ends the stream once the
// delayed tail has been played.
func (b *Bridge) Callback() func(out []byte) bool {
	return func(out []byte) bool {
		b.Fill(out)
		return !b.Drained()
	}
}

// Drained reports whether end of stream was reached and every delayed
// snapshot has been played.
func (b *Bridge) Drained() bool {
	return b.drained.Load()
}

// Callbacks returns the number of Fill calls.
func (b *Bridge) Callbacks() uint64 {
	return b.callbacks.Load()
}

// PlayedBytes returns the number of PCM bytes handed to the device.
func (b *Bridge) PlayedBytes() uint64 {
	return b.playedBytes.Load()
}

// SilentBlocks returns how many silence blocks replaced failed decodes.
func (b *Bridge) SilentBlocks() uint64 {
	return b.silentBlocks.Load()
}
