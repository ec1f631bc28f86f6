package player

import (
	"github.com/drgolem/musicviz/pkg/circularbuffer"
	"github.com/drgolem/musicviz/pkg/dsp"
)

// maxFrameSize is the largest PCM block a single decode may produce
// (192000 bytes), with headroom for resampling.
const maxFrameSize = 192000 * 3 / 2

// Config holds playback configuration
type Config struct {
	DelaySlots      int     // Circular buffer depth; output lags analysis by DelaySlots-1 callbacks
	FramesPerBuffer int     // Frames per audio callback
	DeviceIndex     int     // PortAudio output device index
	MaxQueueBytes   int     // Demuxing pauses while the packet queue holds more, 0 = unbounded
	MaxFrameBytes   int     // Decode scratch size, also the silence block emitted on decoder failure
	Smoothing       float64 // Spectrum smoothing in [0, 1), weight of the previous frame
}

// DefaultConfig returns default playback configuration
func DefaultConfig() Config {
	return Config{
		DelaySlots:      circularbuffer.DefaultCapacity,
		FramesPerBuffer: 1024,
		DeviceIndex:     1,
		MaxQueueBytes:   8 * 1024 * 1024,
		MaxFrameBytes:   maxFrameSize,
		Smoothing:       dsp.DefaultSmoothing,
	}
}
