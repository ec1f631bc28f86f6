package ringbuffer

import (
	"sync/atomic"

	"github.com/drgolem/musicviz/pkg/types"
)

// Re-export common ringbuffer errors
var (
	ErrInsufficientSpace = types.ErrInsufficientSpace
	ErrInsufficientData  = types.ErrInsufficientData
)

// RingBuffer is a lock-free single-producer single-consumer byte FIFO.
// The decoder uses it to hold resampled PCM between codec output and the
// audio callback's fixed-size requests.
//
// RingBuffer implements io.Reader and io.Writer:
//   - Write() must only be called by the producer side
//   - Read() must only be called by the consumer side
type RingBuffer struct {
	buffer   []byte
	size     uint64 // power of 2
	mask     uint64
	writePos atomic.Uint64
	readPos  atomic.Uint64
}

// New creates a ring buffer of at least size bytes.
// Size is rounded up to the next power of 2.
func New(size uint64) *RingBuffer {
	size = nextPowerOf2(size)
	return &RingBuffer{
		buffer: make([]byte, size),
		size:   size,
		mask:   size - 1,
	}
}

// Write appends all of data or nothing. It returns ErrInsufficientSpace
// without writing when data does not fit.
func (rb *RingBuffer) Write(data []byte) (int, error) {
	n := uint64(len(data))
	if n == 0 {
		return 0, nil
	}
	if n > rb.AvailableWrite() {
		return 0, ErrInsufficientSpace
	}

	writePos := rb.writePos.Load()
	start := writePos & rb.mask
	first := copy(rb.buffer[start:], data)
	copy(rb.buffer, data[first:])

	rb.writePos.Store(writePos + n)
	return int(n), nil
}

// Read copies up to len(data) buffered bytes into data.
// An empty buffer returns (0, ErrInsufficientData).
func (rb *RingBuffer) Read(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}
	available := rb.AvailableRead()
	if available == 0 {
		return 0, ErrInsufficientData
	}

	n := min(uint64(len(data)), available)
	readPos := rb.readPos.Load()
	start := readPos & rb.mask

	first := copy(data[:n], rb.buffer[start:])
	copy(data[first:n], rb.buffer)

	rb.readPos.Store(readPos + n)
	return int(n), nil
}

// AvailableWrite returns the number of bytes that can be written
func (rb *RingBuffer) AvailableWrite() uint64 {
	return rb.size - rb.AvailableRead()
}

// AvailableRead returns the number of buffered bytes
func (rb *RingBuffer) AvailableRead() uint64 {
	return rb.writePos.Load() - rb.readPos.Load()
}

// Size returns the total capacity in bytes
func (rb *RingBuffer) Size() uint64 {
	return rb.size
}

// nextPowerOf2 rounds up to the next power of 2
func nextPowerOf2(n uint64) uint64 {
	if n == 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	n++
	return n
}
