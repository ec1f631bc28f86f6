package types

import (
	"errors"
	"time"

	"github.com/drgolem/ringbuffer"
)

// MediaType identifies the kind of elementary stream inside a container.
type MediaType int

const (
	MediaUnknown MediaType = iota
	MediaAudio
	MediaVideo
	MediaData
)

func (m MediaType) String() string {
	switch m {
	case MediaAudio:
		return "audio"
	case MediaVideo:
		return "video"
	case MediaData:
		return "data"
	default:
		return "unknown"
	}
}

// Codec identifiers understood by pkg/codec.
const (
	CodecVorbis   = "vorbis"
	CodecPCMS16LE = "pcm_s16le"
)

// StreamInfo describes one elementary stream of an opened container.
type StreamInfo struct {
	Index      int       // Position of the stream in the container
	Type       MediaType // audio, video, ...
	Codec      string    // Codec identifier (see Codec* constants)
	SampleRate int       // Audio sample rate in Hz
	Channels   int       // Number of audio channels
	// Headers holds codec setup packets (e.g. the three Vorbis headers).
	Headers [][]byte
}

// Packet is one compressed unit read from a container.
// Ownership of Data passes to whoever the packet is handed to.
type Packet struct {
	StreamIndex int
	Data        []byte
	Granule     int64 // Container timestamp, -1 when unknown
}

// Size returns the payload length in bytes.
func (p Packet) Size() int {
	return len(p.Data)
}

// Container is the demultiplexing capability over a local media file.
type Container interface {
	// Streams returns the elementary streams found while opening.
	Streams() []StreamInfo

	// ReadPacket returns the next packet of any stream, io.EOF at the end.
	ReadPacket() (Packet, error)

	// Close releases the underlying file.
	Close() error
}

// Codec turns compressed packet bytes into interleaved signed 16-bit PCM.
type Codec interface {
	// Decode decodes from src into dst.
	// Returns: PCM bytes written to dst, source bytes consumed, decode error
	Decode(src, dst []byte) (produced, consumed int, err error)

	// Format returns the PCM format produced by Decode
	// Returns: sample rate (Hz), channels, bits per sample
	Format() (rate, channels, bitsPerSample int)

	Close() error
}

// AudioSpec is the format negotiated with an audio output device.
type AudioSpec struct {
	SampleRate      int
	Channels        int
	BitsPerSample   int
	FramesPerBuffer int // Samples per channel handed to each callback
}

// BytesPerFrame returns the size of one interleaved sample frame.
func (s AudioSpec) BytesPerFrame() int {
	return s.Channels * s.BitsPerSample / 8
}

// CallbackBytes returns the PCM byte count requested by each callback.
func (s AudioSpec) CallbackBytes() int {
	return s.FramesPerBuffer * s.BytesPerFrame()
}

// PlaybackStatus holds unified playback information for audio players.
// This struct provides real-time metrics for monitoring audio playback.
type PlaybackStatus struct {
	FileName        string        // Name of the currently playing file
	SampleRate      int           // Device sample rate in Hz (e.g., 44100, 48000)
	Channels        int           // Number of audio channels (1=mono, 2=stereo)
	BitsPerSample   int           // Bit depth
	FramesPerBuffer int           // Frames per audio callback
	PlayedSamples   uint64        // Samples actually sent to audio output (played)
	BufferedSamples uint64        // Samples held by the delay line (decoded, not yet played)
	QueuedPackets   int           // Packets waiting in the packet queue
	DecodeErrors    uint64        // Packets dropped as undecodable
	ElapsedTime     time.Duration // Wall-clock time since playback started
}

// PlaybackMonitor is an interface for types that can report playback status.
type PlaybackMonitor interface {
	GetPlaybackStatus() PlaybackStatus
}

var (
	// ErrUnsupportedFormat indicates the container format is not recognised
	ErrUnsupportedFormat = errors.New("unsupported container format")

	// ErrNoAudioStream indicates the container holds no audio stream
	ErrNoAudioStream = errors.New("no audio stream found")

	// ErrUnsupportedCodec indicates no codec is available for the stream
	ErrUnsupportedCodec = errors.New("unsupported codec")
)

// Re-export common ringbuffer errors from github.com/drgolem/ringbuffer
var (
	// ErrInsufficientSpace indicates the ringbuffer doesn't have enough space for the write operation
	ErrInsufficientSpace = ringbuffer.ErrInsufficientSpace

	// ErrInsufficientData indicates the ringbuffer doesn't have enough data for the read operation
	ErrInsufficientData = ringbuffer.ErrInsufficientData
)
