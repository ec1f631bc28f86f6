package circularbuffer

import (
	"bytes"
	"errors"
	"sync"
	"testing"
)

func snapshot(id byte, size int) []byte {
	return bytes.Repeat([]byte{id}, size)
}

func TestNewPanicsOnZeroCapacity(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("New(0) did not panic")
		}
	}()
	New(0)
}

func TestLazySlotAllocation(t *testing.T) {
	cb := New(DefaultCapacity)

	if cb.SlotSize() != 0 {
		t.Errorf("SlotSize before first write: got %d, want 0", cb.SlotSize())
	}
	if cb.Cap() != DefaultCapacity {
		t.Errorf("Cap: got %d, want %d", cb.Cap(), DefaultCapacity)
	}

	slot, err := cb.Add(16)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if len(slot) != 16 {
		t.Errorf("slot length: got %d, want 16", len(slot))
	}
	if cb.SlotSize() != 16 {
		t.Errorf("SlotSize: got %d, want 16", cb.SlotSize())
	}
}

func TestSlotSizeMismatchRejected(t *testing.T) {
	cb := New(3)

	if err := cb.Write(snapshot(1, 8)); err != nil {
		t.Fatalf("first Write failed: %v", err)
	}

	for _, size := range []int{4, 9, 0} {
		err := cb.Write(snapshot(2, size))
		if !errors.Is(err, ErrSlotSize) {
			t.Errorf("Write(%d bytes): got %v, want ErrSlotSize", size, err)
		}
	}

	// Rejected writes must not disturb stored data
	if cb.Len() != 1 {
		t.Fatalf("Len: got %d, want 1", cb.Len())
	}
	got, _ := cb.Pop()
	if !bytes.Equal(got, snapshot(1, 8)) {
		t.Errorf("stored snapshot corrupted: %v", got)
	}
}

func TestZeroSizedFirstWriteRejected(t *testing.T) {
	cb := New(2)
	if _, err := cb.Add(0); !errors.Is(err, ErrSlotSize) {
		t.Errorf("Add(0): got %v, want ErrSlotSize", err)
	}
	if cb.SlotSize() != 0 {
		t.Errorf("SlotSize after rejected write: got %d, want 0", cb.SlotSize())
	}
}

func TestPopEmpty(t *testing.T) {
	cb := New(2)
	if _, err := cb.Pop(); !errors.Is(err, ErrEmpty) {
		t.Errorf("Pop on empty: got %v, want ErrEmpty", err)
	}
}

func TestRetainsLastKWrites(t *testing.T) {
	tests := []struct {
		capacity int
		writes   int
	}{
		{1, 1},
		{1, 4},
		{3, 2},
		{5, 6},
		{5, 17},
	}

	for _, tt := range tests {
		cb := New(tt.capacity)
		for i := 0; i < tt.writes; i++ {
			if err := cb.Write(snapshot(byte(i), 4)); err != nil {
				t.Fatalf("Write failed: %v", err)
			}
		}

		retained := min(tt.writes, tt.capacity)
		if cb.Len() != retained {
			t.Errorf("cap=%d writes=%d: Len got %d, want %d", tt.capacity, tt.writes, cb.Len(), retained)
		}

		first := tt.writes - retained
		for i, got := range cb.Snapshot() {
			want := snapshot(byte(first+i), 4)
			if !bytes.Equal(got, want) {
				t.Errorf("cap=%d writes=%d: snapshot %d got %v, want %v", tt.capacity, tt.writes, i, got, want)
			}
		}
	}
}

func TestDelayLine(t *testing.T) {
	const k = 5
	cb := New(k)

	// After K+1 writes the first snapshot is evicted and never returned
	for i := 0; i <= k; i++ {
		cb.Write(snapshot(byte(i), 2))
	}
	oldest, err := cb.Pop()
	if err != nil {
		t.Fatalf("Pop failed: %v", err)
	}
	if oldest[0] != 1 {
		t.Errorf("oldest after eviction: got %d, want 1", oldest[0])
	}

	// Steady state: add followed by pop yields snapshots in write order
	for i := k + 1; i < 50; i++ {
		cb.Write(snapshot(byte(i), 2))
		got, err := cb.Pop()
		if err != nil {
			t.Fatalf("Pop failed: %v", err)
		}
		want := byte(i - (k - 1))
		if got[0] != want {
			t.Fatalf("write %d: popped %d, want %d", i, got[0], want)
		}
	}
}

func TestAddPopSameRing(t *testing.T) {
	// With K-1 slots pre-filled, add then pop delays by exactly K-1 writes
	const k = 4
	cb := New(k)
	for i := 0; i < k-1; i++ {
		cb.Write(snapshot(0xFF, 1))
	}

	for i := 0; i < 20; i++ {
		cb.Write(snapshot(byte(i), 1))
		got, err := cb.Pop()
		if err != nil {
			t.Fatalf("Pop failed: %v", err)
		}
		want := byte(0xFF)
		if i >= k-1 {
			want = byte(i - (k - 1))
		}
		if got[0] != want {
			t.Fatalf("step %d: got %d, want %d", i, got[0], want)
		}
	}
}

func TestOldestKeepsSnapshot(t *testing.T) {
	cb := New(3)
	cb.Write(snapshot(1, 4))
	cb.Write(snapshot(2, 4))

	dst := make([]byte, 4)
	n, ok := cb.Oldest(dst)
	if !ok || n != 4 || dst[0] != 1 {
		t.Errorf("Oldest: got n=%d ok=%v first=%d", n, ok, dst[0])
	}
	if cb.Len() != 2 {
		t.Errorf("Oldest removed a snapshot: len %d, want 2", cb.Len())
	}

	slot, err := cb.Pop()
	if err != nil || len(slot) != 4 || slot[0] != 1 {
		t.Errorf("Pop: got %v err=%v, want slot 1", slot, err)
	}
}

func TestOldestEmpty(t *testing.T) {
	if _, ok := New(2).Oldest(make([]byte, 4)); ok {
		t.Error("Oldest on empty ring reported a snapshot")
	}
}

func TestConcurrentReadersSeeWholeSlots(t *testing.T) {
	const size = 256
	cb := New(DefaultCapacity)

	stop := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			cb.Write(snapshot(byte(i), size))
		}
	}()

	var readers sync.WaitGroup
	for r := 0; r < 2; r++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for i := 0; i < 2000; i++ {
				for _, s := range cb.Snapshot() {
					for _, b := range s {
						if b != s[0] {
							t.Errorf("torn snapshot: %d != %d", b, s[0])
							return
						}
					}
				}
			}
		}()
	}

	readers.Add(1)
	go func() {
		defer readers.Done()
		dst := make([]byte, size)
		for i := 0; i < 2000; i++ {
			if n, ok := cb.Oldest(dst); ok {
				for _, b := range dst[:n] {
					if b != dst[0] {
						t.Errorf("torn oldest slot")
						return
					}
				}
			}
		}
	}()

	readers.Wait()
	close(stop)
	<-writerDone
}
