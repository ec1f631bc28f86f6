package output

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/drgolem/musicviz/pkg/types"

	"github.com/drgolem/go-portaudio/portaudio"
)

// DefaultFallbackRates are tried in order when the device rejects the
// requested sample rate.
var DefaultFallbackRates = []int{48000, 44100}

// PortAudioDevice plays PCM through a PortAudio output stream in callback
// mode. portaudio.Initialize must have been called before Open.
//
// The callback runs on PortAudio's audio thread, not a Go goroutine.
type PortAudioDevice struct {
	deviceIndex   int
	fallbackRates []int
	logger        *slog.Logger

	mu      sync.Mutex
	stream  *portaudio.PaStream
	spec    types.AudioSpec
	cb      Callback
	running bool
}

// NewPortAudio creates a device for the PortAudio output device index.
func NewPortAudio(deviceIndex int, logger *slog.Logger) *PortAudioDevice {
	if logger == nil {
		logger = slog.Default()
	}
	return &PortAudioDevice{
		deviceIndex:   deviceIndex,
		fallbackRates: DefaultFallbackRates,
		logger:        logger,
	}
}

// Open opens a callback stream, trying want.SampleRate first and then the
// fallback rates.
func (d *PortAudioDevice) Open(want types.AudioSpec, cb Callback) (types.AudioSpec, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stream != nil {
		return types.AudioSpec{}, fmt.Errorf("stream already open")
	}

	var sampleFormat portaudio.PaSampleFormat
	switch want.BitsPerSample {
	case 16:
		sampleFormat = portaudio.SampleFmtInt16
	case 24:
		sampleFormat = portaudio.SampleFmtInt24
	case 32:
		sampleFormat = portaudio.SampleFmtInt32
	default:
		return types.AudioSpec{}, fmt.Errorf("unsupported bit depth: %d", want.BitsPerSample)
	}

	rates := []int{want.SampleRate}
	for _, r := range d.fallbackRates {
		if !slices.Contains(rates, r) {
			rates = append(rates, r)
		}
	}

	d.cb = cb
	var lastErr error
	for _, rate := range rates {
		stream := &portaudio.PaStream{
			OutputParameters: &portaudio.PaStreamParameters{
				DeviceIndex:  d.deviceIndex,
				ChannelCount: want.Channels,
				SampleFormat: sampleFormat,
			},
			SampleRate: float64(rate),
		}

		if err := stream.OpenCallback(want.FramesPerBuffer, d.audioCallback); err != nil {
			d.logger.Warn("Sample rate rejected by device",
				"device", d.deviceIndex,
				"sample_rate", rate,
				"error", err)
			lastErr = err
			continue
		}

		d.stream = stream
		d.spec = want
		d.spec.SampleRate = rate

		d.logger.Debug("Audio stream opened",
			"device", d.deviceIndex,
			"sample_rate", rate,
			"channels", want.Channels,
			"bits_per_sample", want.BitsPerSample,
			"frames_per_buffer", want.FramesPerBuffer)
		return d.spec, nil
	}

	return types.AudioSpec{}, fmt.Errorf("failed to open stream with callback: %w", lastErr)
}

// audioCallback is called by PortAudio to fill the output buffer.
//
// Real-time constraints:
// - Must be fast (runs in real-time audio context)
// - Runs independently from Go's scheduler
func (d *PortAudioDevice) audioCallback(
	input, output []byte,
	frameCount uint,
	timeInfo *portaudio.StreamCallbackTimeInfo,
	statusFlags portaudio.StreamCallbackFlags,
) portaudio.StreamCallbackResult {
	n := min(int(frameCount)*d.spec.BytesPerFrame(), len(output))
	if !d.cb(output[:n]) {
		return portaudio.Complete
	}
	return portaudio.Continue
}

func (d *PortAudioDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stream == nil {
		return ErrNotOpen
	}
	if d.running {
		return nil
	}
	if err := d.stream.StartStream(); err != nil {
		return fmt.Errorf("failed to start stream: %w", err)
	}
	d.running = true
	return nil
}

// Pause stops or restarts the stream. A paused stream keeps its
// negotiated format and resumes with the next callback.
func (d *PortAudioDevice) Pause(paused bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stream == nil {
		return ErrNotOpen
	}
	switch {
	case paused && d.running:
		if err := d.stream.StopStream(); err != nil {
			return fmt.Errorf("failed to pause stream: %w", err)
		}
		d.running = false
	case !paused && !d.running:
		if err := d.stream.StartStream(); err != nil {
			return fmt.Errorf("failed to resume stream: %w", err)
		}
		d.running = true
	}
	return nil
}

// Close stops and closes the stream. Safe to call more than once.
func (d *PortAudioDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stream == nil {
		return nil
	}
	if d.running {
		if err := d.stream.StopStream(); err != nil {
			d.logger.Warn("Failed to stop stream", "error", err)
		}
		d.running = false
	}
	err := d.stream.CloseCallback()
	d.stream = nil
	if err != nil {
		return fmt.Errorf("failed to close stream: %w", err)
	}
	return nil
}
