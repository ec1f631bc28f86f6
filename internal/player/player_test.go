package player

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/drgolem/musicviz/pkg/output"
	"github.com/drgolem/musicviz/pkg/packetqueue"
	"github.com/drgolem/musicviz/pkg/types"
)

// memContainer serves packets from memory.
type memContainer struct {
	streams []types.StreamInfo
	packets []types.Packet
	readErr error // returned instead of io.EOF when set
	closed  bool
	mu      sync.Mutex
}

func (c *memContainer) Streams() []types.StreamInfo { return c.streams }

func (c *memContainer) ReadPacket() (types.Packet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.packets) == 0 {
		if c.readErr != nil {
			return types.Packet{}, c.readErr
		}
		return types.Packet{}, io.EOF
	}
	pkt := c.packets[0]
	c.packets = c.packets[1:]
	return pkt, nil
}

func (c *memContainer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *memContainer) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func drainQueue(t *testing.T, q *packetqueue.PacketQueue) []string {
	t.Helper()
	var got []string
	for {
		pkt, err := q.Get()
		if errors.Is(err, packetqueue.ErrShutdown) {
			return got
		}
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		got = append(got, string(pkt.Data))
	}
}

func TestDemuxRoutesAudioStream(t *testing.T) {
	c := &memContainer{packets: []types.Packet{
		{StreamIndex: 0, Data: []byte("v0")},
		{StreamIndex: 1, Data: []byte("a0")},
		{StreamIndex: 2, Data: []byte("d0")},
		{StreamIndex: 1, Data: []byte("a1")},
		{StreamIndex: 0, Data: []byte("v1")},
		{StreamIndex: 1, Data: []byte("a2")},
	}}
	q := packetqueue.New()
	w := &DemuxWorker{Container: c, StreamIndex: 1, Queue: q}

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !q.IsShutdown() {
		t.Error("queue not shut down at end of file")
	}

	got := drainQueue(t, q)
	want := []string{"a0", "a1", "a2"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("packet %d: got %s, want %s", i, got[i], want[i])
		}
	}
	if w.Forwarded() != 3 || w.Dropped() != 3 {
		t.Errorf("got forwarded %d dropped %d, want 3 and 3", w.Forwarded(), w.Dropped())
	}
}

func TestDemuxReadError(t *testing.T) {
	readErr := errors.New("disk on fire")
	c := &memContainer{
		packets: []types.Packet{{Data: []byte("a0")}},
		readErr: readErr,
	}
	q := packetqueue.New()
	w := &DemuxWorker{Container: c, Queue: q}

	err := w.Run(context.Background())
	if !errors.Is(err, readErr) {
		t.Fatalf("got %v, want wrapped read error", err)
	}
	// queued audio survives the failure
	if got := drainQueue(t, q); len(got) != 1 || got[0] != "a0" {
		t.Errorf("got %v, want [a0]", got)
	}
}

func TestDemuxStopsOnAbort(t *testing.T) {
	c := &memContainer{}
	for i := 0; i < 100; i++ {
		c.packets = append(c.packets, types.Packet{Data: []byte{byte(i)}})
	}
	q := packetqueue.New()
	q.Abort()

	w := &DemuxWorker{Container: c, Queue: q}
	if err := w.Run(context.Background()); err != nil {
		t.Errorf("got %v, want nil", err)
	}
	if w.Forwarded() != 0 {
		t.Errorf("forwarded %d packets to an aborted queue", w.Forwarded())
	}
}

func TestDemuxThrottleCancel(t *testing.T) {
	c := &memContainer{packets: []types.Packet{
		{Data: make([]byte, 64)},
		{Data: make([]byte, 64)},
		{Data: make([]byte, 64)},
	}}
	q := packetqueue.New()
	w := &DemuxWorker{Container: c, Queue: q, MaxQueueBytes: 32}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for w.Forwarded() < 1 {
		if time.Now().After(deadline) {
			t.Fatal("worker forwarded nothing")
		}
		time.Sleep(time.Millisecond)
	}
	time.Sleep(30 * time.Millisecond)
	if w.Forwarded() != 1 {
		t.Errorf("worker ignored the queue limit: forwarded %d", w.Forwarded())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("got %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop on cancel")
	}
	if !q.IsShutdown() {
		t.Error("queue not shut down after cancel")
	}
}

// recordingDevice drives the callback from a goroutine and keeps all output.
type recordingDevice struct {
	spec types.AudioSpec
	cb   output.Callback

	mu       sync.Mutex
	recorded []byte
	stop     chan struct{}
	done     chan struct{}
}

func (d *recordingDevice) Open(want types.AudioSpec, cb output.Callback) (types.AudioSpec, error) {
	d.spec = want
	d.cb = cb
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	return want, nil
}

func (d *recordingDevice) Start() error {
	go func() {
		defer close(d.done)
		buf := make([]byte, d.spec.CallbackBytes())
		for {
			select {
			case <-d.stop:
				return
			default:
			}
			more := d.cb(buf)
			d.mu.Lock()
			d.recorded = append(d.recorded, buf...)
			d.mu.Unlock()
			if !more {
				return
			}
		}
	}()
	return nil
}

func (d *recordingDevice) Pause(bool) error { return nil }

func (d *recordingDevice) Close() error {
	if d.stop != nil {
		select {
		case <-d.stop:
		default:
			close(d.stop)
		}
		<-d.done
	}
	return nil
}

func (d *recordingDevice) output() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.recorded...)
}

func pcmContainer(pcm []byte, packetSize int) *memContainer {
	c := &memContainer{streams: []types.StreamInfo{
		{Index: 0, Type: types.MediaVideo, Codec: "theora"},
		{Index: 1, Type: types.MediaAudio, Codec: types.CodecPCMS16LE, SampleRate: 8000, Channels: 1},
	}}
	for off := 0; off < len(pcm); off += packetSize {
		c.packets = append(c.packets,
			types.Packet{StreamIndex: 0, Data: []byte("video")},
			types.Packet{StreamIndex: 1, Data: pcm[off:min(off+packetSize, len(pcm))]})
	}
	return c
}

func TestQueueSourceEndsOnCancel(t *testing.T) {
	q := packetqueue.New()
	q.Put(types.Packet{Data: []byte("queued")})
	ctx, cancel := context.WithCancel(context.Background())
	src := queueSource{ctx: ctx, queue: q}

	pkt, err := src.Get()
	if err != nil || string(pkt.Data) != "queued" {
		t.Fatalf("got %q, %v, want queued packet", pkt.Data, err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := src.Get()
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, packetqueue.ErrShutdown) {
			t.Errorf("got %v, want ErrShutdown", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Get still blocked after cancel")
	}
}

func TestSessionEndToEnd(t *testing.T) {
	const framesPerBuffer = 64
	cfg := DefaultConfig()
	cfg.FramesPerBuffer = framesPerBuffer

	pcm := make([]byte, 2000)
	for i := range pcm {
		pcm[i] = byte(i%251) + 1
	}
	c := pcmContainer(pcm, 300)
	dev := &recordingDevice{}

	s := NewSession(cfg, dev, nil)
	if err := s.OpenContainer(c, "memory.raw"); err != nil {
		t.Fatalf("OpenContainer: %v", err)
	}
	if err := s.Play(context.Background()); err != nil {
		t.Fatalf("Play: %v", err)
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- s.Wait() }()
	select {
	case err := <-waitErr:
		if err != nil {
			t.Fatalf("Wait: %v", err)
		}
	case <-time.After(10 * time.Second):
		s.Stop()
		t.Fatal("playback did not complete")
	}

	status := s.GetPlaybackStatus()
	if err := s.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
	if !c.isClosed() {
		t.Error("container not closed by Stop")
	}

	got := dev.output()
	callbackBytes := framesPerBuffer * 2
	warmup := (cfg.DelaySlots - 1) * callbackBytes

	if len(got)%callbackBytes != 0 {
		t.Fatalf("output is %d bytes, not whole callbacks", len(got))
	}
	if !bytes.Equal(got[:warmup], make([]byte, warmup)) {
		t.Error("warm-up output is not silent")
	}
	if !bytes.Equal(got[warmup:warmup+len(pcm)], pcm) {
		t.Error("delayed output does not match the decoded PCM")
	}
	tail := got[warmup+len(pcm):]
	if !bytes.Equal(tail, make([]byte, len(tail))) {
		t.Error("output after end of stream is not silent")
	}
	if len(tail) >= callbackBytes {
		t.Errorf("played %d bytes of trailing silence, want less than one callback", len(tail))
	}

	if status.PlayedSamples != uint64(len(got)/2) {
		t.Errorf("played samples: got %d, want %d", status.PlayedSamples, len(got)/2)
	}
	if status.DecodeErrors != 0 {
		t.Errorf("decode errors: got %d, want 0", status.DecodeErrors)
	}
	if a := s.Analysis(); a == nil || a.Buffers != uint64(len(got)/callbackBytes) {
		t.Errorf("analysis did not see every callback: %+v", a)
	}
}

func TestSessionStopDuringPlayback(t *testing.T) {
	pcm := make([]byte, 1<<20)
	c := pcmContainer(pcm, 4096)

	cfg := DefaultConfig()
	dev := output.NewNullDevice(true)
	s := NewSession(cfg, dev, nil)
	if err := s.OpenContainer(c, "long.raw"); err != nil {
		t.Fatalf("OpenContainer: %v", err)
	}
	if err := s.Play(context.Background()); err != nil {
		t.Fatalf("Play: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	if err := s.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
	select {
	case <-s.Done():
	default:
		t.Error("Done not closed after Stop")
	}
	if !c.isClosed() {
		t.Error("container not closed by Stop")
	}
}

func TestSessionOpenErrors(t *testing.T) {
	tests := []struct {
		name    string
		streams []types.StreamInfo
		want    error
	}{
		{
			name:    "no audio stream",
			streams: []types.StreamInfo{{Index: 0, Type: types.MediaVideo, Codec: "theora"}},
			want:    types.ErrNoAudioStream,
		},
		{
			name:    "unsupported codec",
			streams: []types.StreamInfo{{Index: 0, Type: types.MediaAudio, Codec: "opus", SampleRate: 48000, Channels: 2}},
			want:    types.ErrUnsupportedCodec,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &memContainer{streams: tt.streams}
			s := NewSession(DefaultConfig(), output.NewNullDevice(false), nil)
			err := s.OpenContainer(c, "x")
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
			if !c.isClosed() {
				t.Error("container not closed after failed open")
			}
		})
	}
}

func TestSessionPlayWithoutOpen(t *testing.T) {
	s := NewSession(DefaultConfig(), output.NewNullDevice(false), nil)
	if err := s.Play(context.Background()); err == nil {
		t.Error("Play succeeded without an open file")
	}
}
