package circularbuffer

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrSlotSize indicates a write whose size differs from the slot size
	// fixed by the first write. It is a programming error on the caller side.
	ErrSlotSize = errors.New("circular buffer slot size mismatch")

	// ErrEmpty indicates Pop on a buffer holding no snapshots
	ErrEmpty = errors.New("circular buffer is empty")
)

// DefaultCapacity is the number of PCM snapshots retained by default.
// Each extra slot adds one audio callback period of output delay.
const DefaultCapacity = 5

// CircularBuffer is a fixed-depth ring of equally sized PCM snapshots.
// Writing to a full ring evicts the oldest snapshot.
//
// The slot size is unknown at construction and is fixed by the first Add;
// slot memory is allocated lazily at that point.
//
// Thread safety:
//   - One exclusive writer (Add/Write/Pop)
//   - Readers (Snapshot, Oldest) may run on other goroutines and always see
//     whole slots, never a partially written one
type CircularBuffer struct {
	mu       sync.RWMutex
	slots    [][]byte
	slotSize int
	readPos  int // index of the oldest retained slot
	count    int // number of retained slots
}

// New creates a ring holding at most capacity snapshots.
// It panics if capacity is less than 1.
func New(capacity int) *CircularBuffer {
	if capacity < 1 {
		panic(fmt.Sprintf("circularbuffer: capacity must be >= 1, got %d", capacity))
	}
	return &CircularBuffer{
		slots: make([][]byte, capacity),
	}
}

// Add claims the next ring position and returns it for writing, evicting the
// oldest snapshot when the ring is full. The first call fixes the slot size;
// later calls with a different size return ErrSlotSize.
//
// The returned slice aliases ring memory and is only valid until the next
// Add. Concurrent readers must use Snapshot or Oldest, which copy under lock;
// use Write when readers run on other goroutines.
func (cb *CircularBuffer) Add(size int) ([]byte, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.add(size)
}

// Write copies p into the next ring position (see Add).
func (cb *CircularBuffer) Write(p []byte) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	slot, err := cb.add(len(p))
	if err != nil {
		return err
	}
	copy(slot, p)
	return nil
}

func (cb *CircularBuffer) add(size int) ([]byte, error) {
	if cb.slotSize == 0 {
		if size <= 0 {
			return nil, fmt.Errorf("%w: first write has size %d", ErrSlotSize, size)
		}
		cb.slotSize = size
		backing := make([]byte, size*len(cb.slots))
		for i := range cb.slots {
			cb.slots[i] = backing[i*size : (i+1)*size : (i+1)*size]
		}
	} else if size != cb.slotSize {
		return nil, fmt.Errorf("%w: got %d bytes, slot size is %d", ErrSlotSize, size, cb.slotSize)
	}

	capacity := len(cb.slots)
	writePos := (cb.readPos + cb.count) % capacity
	if cb.count == capacity {
		// Full: overwrite the oldest
		cb.readPos = (cb.readPos + 1) % capacity
	} else {
		cb.count++
	}
	return cb.slots[writePos], nil
}

// Pop removes the oldest snapshot and returns it. The returned slice aliases
// ring memory and stays valid until the slot is reused by a later Add.
func (cb *CircularBuffer) Pop() ([]byte, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.count == 0 {
		return nil, ErrEmpty
	}
	slot := cb.slots[cb.readPos]
	cb.readPos = (cb.readPos + 1) % len(cb.slots)
	cb.count--
	return slot, nil
}

// Snapshot returns copies of all retained snapshots, oldest first.
func (cb *CircularBuffer) Snapshot() [][]byte {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	out := make([][]byte, cb.count)
	for i := range out {
		slot := cb.slots[(cb.readPos+i)%len(cb.slots)]
		out[i] = append([]byte(nil), slot...)
	}
	return out
}

// Oldest copies the oldest retained snapshot into dst without removing it.
// With a full ring of capacity K this is the snapshot written K-1 writes ago.
func (cb *CircularBuffer) Oldest(dst []byte) (int, bool) {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	if cb.count == 0 {
		return 0, false
	}
	return copy(dst, cb.slots[cb.readPos]), true
}

// Len returns the number of retained snapshots.
func (cb *CircularBuffer) Len() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.count
}

// Cap returns the fixed capacity in snapshots.
func (cb *CircularBuffer) Cap() int {
	return len(cb.slots)
}

// SlotSize returns the fixed slot size, or 0 before the first write.
func (cb *CircularBuffer) SlotSize() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.slotSize
}
