package packetqueue

import (
	"context"
	"errors"
	"sync"

	"github.com/drgolem/musicviz/pkg/types"
)

// ErrShutdown is returned by Put after Shutdown, and by Get once the queue
// is shut down and every queued packet has been delivered.
var ErrShutdown = errors.New("packet queue shut down")

// PacketQueue is the mailbox between the demux goroutine (producer) and the
// decoder running in the audio callback (consumer).
//
// Thread Safety Model:
//   - One logical producer calls Put, one logical consumer calls Get
//   - All state is guarded by mu; cond wakes a consumer blocked on an empty queue
//   - Shutdown broadcasts so no consumer stays blocked during teardown
type PacketQueue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	packets  []types.Packet
	head     int
	bytes    int
	shutdown bool
}

// New creates an empty, running queue.
func New() *PacketQueue {
	q := &PacketQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Put appends pkt to the tail of the queue. The caller gives up ownership
// of pkt.Data and must not touch it afterwards.
func (q *PacketQueue) Put(pkt types.Packet) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.shutdown {
		return ErrShutdown
	}

	q.packets = append(q.packets, pkt)
	q.bytes += pkt.Size()
	q.cond.Signal()
	return nil
}

// Get removes and returns the oldest packet, blocking while the queue is
// empty. Packets queued before Shutdown are still delivered; ErrShutdown is
// returned only when the queue is both shut down and drained.
func (q *PacketQueue) Get() (types.Packet, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.len() == 0 && !q.shutdown {
		q.cond.Wait()
	}
	return q.pop()
}

// GetContext is Get with cancellation. A cancelled ctx wakes the waiter and
// ctx.Err() is returned.
func (q *PacketQueue) GetContext(ctx context.Context) (types.Packet, error) {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for q.len() == 0 && !q.shutdown {
		if err := ctx.Err(); err != nil {
			return types.Packet{}, err
		}
		q.cond.Wait()
	}
	return q.pop()
}

// Shutdown stops accepting packets and wakes all blocked consumers.
// Packets already queued remain readable. Safe to call multiple times.
func (q *PacketQueue) Shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.shutdown = true
	q.cond.Broadcast()
}

// Abort shuts the queue down and drops every queued packet, so the next
// Get returns ErrShutdown immediately.
func (q *PacketQueue) Abort() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.shutdown = true
	clear(q.packets)
	q.packets = q.packets[:0]
	q.head = 0
	q.bytes = 0
	q.cond.Broadcast()
}

// IsShutdown reports whether Shutdown or Abort has been called.
func (q *PacketQueue) IsShutdown() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.shutdown
}

// Len returns the number of queued packets.
func (q *PacketQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.len()
}

// Bytes returns the total payload size of queued packets.
func (q *PacketQueue) Bytes() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.bytes
}

func (q *PacketQueue) len() int {
	return len(q.packets) - q.head
}

// pop must be called with mu held.
func (q *PacketQueue) pop() (types.Packet, error) {
	if q.len() == 0 {
		return types.Packet{}, ErrShutdown
	}

	pkt := q.packets[q.head]
	q.packets[q.head] = types.Packet{}
	q.head++
	q.bytes -= pkt.Size()

	// Compact once the consumed prefix dominates the backing array
	if q.head == len(q.packets) {
		q.packets = q.packets[:0]
		q.head = 0
	} else if q.head > 64 && q.head*2 >= len(q.packets) {
		n := copy(q.packets, q.packets[q.head:])
		clear(q.packets[n:])
		q.packets = q.packets[:n]
		q.head = 0
	}

	return pkt, nil
}
