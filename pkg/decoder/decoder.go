package decoder

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/drgolem/musicviz/pkg/packetqueue"
	"github.com/drgolem/musicviz/pkg/ringbuffer"
	"github.com/drgolem/musicviz/pkg/types"

	soxr "github.com/zaf/resample"
)

var (
	// ErrNoProgress is recorded when the codec neither consumed input nor
	// produced output for a packet.
	ErrNoProgress = errors.New("codec made no progress")

	// ErrCodecContract is recorded when the codec reports counts outside
	// the buffers it was given.
	ErrCodecContract = errors.New("codec returned invalid byte counts")
)

// resampleChunk is the codec output block fed to the resampler at once.
const resampleChunk = 16 * 1024

// PacketSource supplies compressed packets in container order.
// Get blocks until a packet is available and returns
// packetqueue.ErrShutdown once the stream has ended.
type PacketSource interface {
	Get() (types.Packet, error)
}

// resetter is implemented by codecs that buffer output between calls.
type resetter interface {
	Reset()
}

// Stats is a snapshot of decoder counters.
type Stats struct {
	Packets  uint64 // Packets taken from the source
	Consumed uint64 // Source bytes accepted by the codec
	Dropped  uint64 // Source bytes discarded after decode errors
	Produced uint64 // PCM bytes returned to callers
	Errors   uint64 // Decode errors (each drops the rest of a packet)
}

// Decoder pulls packets from a PacketSource and turns them into PCM on
// demand. It keeps a cursor over the packet being decoded: the unconsumed
// tail always moves forward by the byte count the codec reports, and a new
// packet is fetched only after the tail is empty.
//
// A Decoder is owned by one goroutine (the audio callback). Stats may be
// read from any goroutine.
type Decoder struct {
	source PacketSource
	codec  types.Codec
	logger *slog.Logger

	tail []byte
	eof  bool

	// resample stage, nil when the output rate equals the codec rate
	outRate   int
	quality   int
	resampler *soxr.Resampler
	fifo      *ringbuffer.RingBuffer
	chunk     []byte
	flushed   bool

	packets  atomic.Uint64
	consumed atomic.Uint64
	dropped  atomic.Uint64
	produced atomic.Uint64
	errs     atomic.Uint64
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithLogger sets the logger used for decode error reports.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Decoder) {
		d.logger = logger
	}
}

// WithOutputRate resamples codec output to rate Hz when it differs from the
// codec's native rate.
func WithOutputRate(rate int) Option {
	return func(d *Decoder) {
		d.outRate = rate
	}
}

// WithQuality sets the SoX resampler quality (soxr.Quick .. soxr.VeryHighQ).
func WithQuality(quality int) Option {
	return func(d *Decoder) {
		d.quality = quality
	}
}

// New creates a decoder reading packets from source and decoding them with
// codec.
func New(source PacketSource, codec types.Codec, opts ...Option) (*Decoder, error) {
	d := &Decoder{
		source:  source,
		codec:   codec,
		logger:  slog.Default(),
		quality: soxr.HighQ,
	}
	for _, opt := range opts {
		opt(d)
	}

	rate, channels, bps := codec.Format()
	if d.outRate > 0 && d.outRate != rate {
		if bps != 16 {
			return nil, fmt.Errorf("resampling requires 16-bit PCM, codec produces %d-bit", bps)
		}
		ratio := float64(d.outRate)/float64(rate) + 1
		// room for one resampled chunk plus the flush at end of stream
		d.fifo = ringbuffer.New(uint64(float64(resampleChunk)*ratio) * 2)
		d.chunk = make([]byte, resampleChunk-resampleChunk%(channels*2))

		rs, err := soxr.New(d.fifo, float64(rate), float64(d.outRate), channels, soxr.I16, d.quality)
		if err != nil {
			return nil, fmt.Errorf("failed to create resampler: %w", err)
		}
		d.resampler = rs

		d.logger.Debug("Resampling enabled",
			"from_rate", rate,
			"to_rate", d.outRate,
			"channels", channels)
	}
	return d, nil
}

// Format returns the PCM format produced by DecodeInto.
func (d *Decoder) Format() (rate, channels, bitsPerSample int) {
	rate, channels, bitsPerSample = d.codec.Format()
	if d.resampler != nil {
		rate = d.outRate
	}
	return rate, channels, bitsPerSample
}

// DecodeInto writes up to len(buf) bytes of PCM into buf and returns the
// count. It blocks while the source is empty.
//
// A codec failure drops the rest of the current packet and returns (0, nil)
// so the caller may retry with the next packet. io.EOF is returned once the
// source is shut down and drained.
func (d *Decoder) DecodeInto(buf []byte) (int, error) {
	var n int
	var err error
	if d.resampler != nil {
		n, err = d.drainResampled(buf)
	} else {
		n, err = d.decode(buf)
	}
	d.produced.Add(uint64(n))
	return n, err
}

func (d *Decoder) decode(buf []byte) (int, error) {
	if len(d.tail) == 0 {
		if d.eof {
			return 0, io.EOF
		}
		pkt, err := d.source.Get()
		if err != nil {
			if errors.Is(err, packetqueue.ErrShutdown) {
				d.eof = true
				return 0, io.EOF
			}
			return 0, fmt.Errorf("failed to get packet: %w", err)
		}
		d.packets.Add(1)
		d.tail = pkt.Data
		if len(d.tail) == 0 {
			return 0, nil
		}
	}

	produced, consumed, err := d.codec.Decode(d.tail, buf)
	if err == nil && (consumed < 0 || consumed > len(d.tail) || produced < 0 || produced > len(buf)) {
		err = fmt.Errorf("%w: consumed %d of %d, produced %d of %d",
			ErrCodecContract, consumed, len(d.tail), produced, len(buf))
	}
	if err == nil && consumed == 0 && produced == 0 {
		err = ErrNoProgress
	}
	if err != nil {
		d.dropTail(err)
		return 0, nil
	}

	d.tail = d.tail[consumed:]
	d.consumed.Add(uint64(consumed))
	return produced, nil
}

// dropTail abandons the current packet after a decode error.
func (d *Decoder) dropTail(err error) {
	d.errs.Add(1)
	d.dropped.Add(uint64(len(d.tail)))
	d.logger.Debug("Dropping undecodable packet data",
		"bytes", len(d.tail),
		"error", err)
	d.tail = nil
	if r, ok := d.codec.(resetter); ok {
		r.Reset()
	}
}

// drainResampled serves buf from the resampler FIFO, decoding and
// resampling another chunk whenever the FIFO runs dry.
func (d *Decoder) drainResampled(buf []byte) (int, error) {
	for d.fifo.AvailableRead() == 0 {
		if d.flushed {
			return 0, io.EOF
		}

		n, err := d.decode(d.chunk)
		if errors.Is(err, io.EOF) {
			// flush the resampler's delayed tail into the FIFO
			if err := d.resampler.Close(); err != nil {
				return 0, fmt.Errorf("failed to flush resampler: %w", err)
			}
			d.flushed = true
			continue
		}
		if err != nil {
			return 0, err
		}
		if n == 0 {
			return 0, nil
		}
		if _, err := d.resampler.Write(d.chunk[:n]); err != nil {
			return 0, fmt.Errorf("failed to resample: %w", err)
		}
	}

	n, err := d.fifo.Read(buf)
	if err != nil && !errors.Is(err, ringbuffer.ErrInsufficientData) {
		return n, err
	}
	return n, nil
}

// Stats returns the current decoder counters.
func (d *Decoder) Stats() Stats {
	return Stats{
		Packets:  d.packets.Load(),
		Consumed: d.consumed.Load(),
		Dropped:  d.dropped.Load(),
		Produced: d.produced.Load(),
		Errors:   d.errs.Load(),
	}
}

// Close releases the resampler. The codec is owned by the caller.
func (d *Decoder) Close() error {
	if d.resampler != nil && !d.flushed {
		d.flushed = true
		return d.resampler.Close()
	}
	return nil
}
