package ringbuffer

import (
	"bytes"
	"errors"
	"sync"
	"testing"
)

func TestNewRoundsToPowerOf2(t *testing.T) {
	tests := []struct {
		input    uint64
		expected uint64
	}{
		{0, 1},
		{1, 1},
		{3, 4},
		{1000, 1024},
		{4096, 4096},
	}

	for _, tt := range tests {
		rb := New(tt.input)
		if rb.Size() != tt.expected {
			t.Errorf("New(%d): got size %d, want %d", tt.input, rb.Size(), tt.expected)
		}
	}
}

func TestWriteAllOrNothing(t *testing.T) {
	rb := New(8)

	if _, err := rb.Write(make([]byte, 6)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	n, err := rb.Write(make([]byte, 3))
	if !errors.Is(err, ErrInsufficientSpace) || n != 0 {
		t.Errorf("overfull Write: got n=%d err=%v", n, err)
	}
	if rb.AvailableRead() != 6 {
		t.Errorf("AvailableRead: got %d, want 6", rb.AvailableRead())
	}
}

func TestReadPartialAndEmpty(t *testing.T) {
	rb := New(16)
	rb.Write([]byte{1, 2, 3})

	buf := make([]byte, 10)
	n, err := rb.Read(buf)
	if err != nil || n != 3 {
		t.Fatalf("Read: got n=%d err=%v", n, err)
	}
	if !bytes.Equal(buf[:3], []byte{1, 2, 3}) {
		t.Errorf("Read data: got %v", buf[:3])
	}

	if _, err := rb.Read(buf); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("Read empty: got %v, want ErrInsufficientData", err)
	}
}

func TestWrapAround(t *testing.T) {
	rb := New(8)
	out := make([]byte, 5)

	for round := 0; round < 20; round++ {
		in := []byte{byte(round), byte(round + 1), byte(round + 2), byte(round + 3), byte(round + 4)}
		if _, err := rb.Write(in); err != nil {
			t.Fatalf("round %d: Write failed: %v", round, err)
		}
		n, err := rb.Read(out)
		if err != nil || n != 5 {
			t.Fatalf("round %d: Read got n=%d err=%v", round, n, err)
		}
		if !bytes.Equal(out, in) {
			t.Fatalf("round %d: got %v, want %v", round, out, in)
		}
	}
}

func TestProducerConsumer(t *testing.T) {
	rb := New(64)
	const total = 100000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; {
			if _, err := rb.Write([]byte{byte(i)}); err == nil {
				i++
			}
		}
	}()

	buf := make([]byte, 7)
	next := 0
	for next < total {
		n, _ := rb.Read(buf)
		for _, b := range buf[:n] {
			if b != byte(next) {
				t.Fatalf("byte %d: got %d, want %d", next, b, byte(next))
			}
			next++
		}
	}
	wg.Wait()
}
