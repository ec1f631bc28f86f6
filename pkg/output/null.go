package output

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/drgolem/musicviz/pkg/types"
)

// NullDevice discards PCM. It drives the callback from a goroutine,
// either paced to the buffer duration or as fast as possible, and is used
// for headless playback and tests.
type NullDevice struct {
	realtime bool

	mu      sync.Mutex
	spec    types.AudioSpec
	cb      Callback
	stopCh  chan struct{}
	doneCh  chan struct{}
	paused  atomic.Bool
	started bool

	callbacks atomic.Uint64
}

// NewNullDevice creates a null output. When realtime is set, callbacks are
// spaced by the playback duration of one buffer.
func NewNullDevice(realtime bool) *NullDevice {
	return &NullDevice{realtime: realtime}
}

// Open accepts any 16, 24 or 32-bit format as requested.
func (d *NullDevice) Open(want types.AudioSpec, cb Callback) (types.AudioSpec, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if want.SampleRate <= 0 || want.Channels <= 0 || want.FramesPerBuffer <= 0 {
		return types.AudioSpec{}, fmt.Errorf("invalid audio spec: %+v", want)
	}
	switch want.BitsPerSample {
	case 16, 24, 32:
	default:
		return types.AudioSpec{}, fmt.Errorf("unsupported bit depth: %d", want.BitsPerSample)
	}

	d.spec = want
	d.cb = cb
	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})
	return want, nil
}

func (d *NullDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cb == nil {
		return ErrNotOpen
	}
	if d.started {
		return nil
	}
	d.started = true
	go d.run()
	return nil
}

func (d *NullDevice) run() {
	defer close(d.doneCh)

	buf := make([]byte, d.spec.CallbackBytes())
	period := time.Duration(d.spec.FramesPerBuffer) * time.Second / time.Duration(d.spec.SampleRate)

	var ticker *time.Ticker
	if d.realtime {
		ticker = time.NewTicker(period)
		defer ticker.Stop()
	}

	for {
		if ticker != nil {
			select {
			case <-d.stopCh:
				return
			case <-ticker.C:
			}
		} else {
			select {
			case <-d.stopCh:
				return
			default:
			}
		}

		if d.paused.Load() {
			if ticker == nil {
				time.Sleep(time.Millisecond)
			}
			continue
		}

		d.callbacks.Add(1)
		if !d.cb(buf) {
			return
		}
	}
}

func (d *NullDevice) Pause(paused bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cb == nil {
		return ErrNotOpen
	}
	d.paused.Store(paused)
	return nil
}

// Done is closed when the callback goroutine has exited.
func (d *NullDevice) Done() <-chan struct{} {
	return d.doneCh
}

// Callbacks returns the number of callbacks issued.
func (d *NullDevice) Callbacks() uint64 {
	return d.callbacks.Load()
}

// Close stops the callback goroutine and waits for it. Safe to call more
// than once.
func (d *NullDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cb == nil {
		return nil
	}
	if d.started {
		close(d.stopCh)
		<-d.doneCh
	}
	d.cb = nil
	d.started = false
	return nil
}
