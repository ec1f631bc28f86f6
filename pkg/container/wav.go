package container

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/drgolem/musicviz/pkg/types"

	"github.com/youpy/go-wav"
)

// wavPacketSamples is the number of sample frames carried by one packet.
const wavPacketSamples = 1024

// WAVContainer exposes a PCM WAV file as a single audio stream whose packets
// are blocks of signed 16-bit little-endian samples.
// 8, 24 and 32-bit files are converted to 16-bit while reading.
type WAVContainer struct {
	file     *os.File
	reader   *wav.Reader
	stream   types.StreamInfo
	bps      int
	position int64 // sample frames read so far
}

// OpenWAV opens a WAV file for demultiplexing.
func OpenWAV(fileName string) (*WAVContainer, error) {
	file, err := os.Open(fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAV file: %w", err)
	}

	reader := wav.NewReader(file)
	format, err := reader.Format()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: failed to read WAV format: %w", ErrNoStreamInfo, err)
	}

	// Validate format
	if format.AudioFormat != wav.AudioFormatPCM {
		file.Close()
		return nil, fmt.Errorf("%w: WAV format %d (only PCM supported)", types.ErrUnsupportedCodec, format.AudioFormat)
	}
	if format.NumChannels < 1 || format.NumChannels > 2 {
		file.Close()
		return nil, fmt.Errorf("%w: %d channels (mono or stereo supported)", types.ErrUnsupportedCodec, format.NumChannels)
	}
	switch format.BitsPerSample {
	case 8, 16, 24, 32:
	default:
		file.Close()
		return nil, fmt.Errorf("%w: %d bits per sample", types.ErrUnsupportedCodec, format.BitsPerSample)
	}

	return &WAVContainer{
		file:   file,
		reader: reader,
		bps:    int(format.BitsPerSample),
		stream: types.StreamInfo{
			Index:      0,
			Type:       types.MediaAudio,
			Codec:      types.CodecPCMS16LE,
			SampleRate: int(format.SampleRate),
			Channels:   int(format.NumChannels),
		},
	}, nil
}

func (c *WAVContainer) Streams() []types.StreamInfo {
	return []types.StreamInfo{c.stream}
}

// ReadPacket reads the next block of up to wavPacketSamples sample frames.
func (c *WAVContainer) ReadPacket() (types.Packet, error) {
	samples, err := c.reader.ReadSamples(wavPacketSamples)
	if len(samples) == 0 {
		if err == nil || errors.Is(err, io.EOF) {
			return types.Packet{}, io.EOF
		}
		return types.Packet{}, fmt.Errorf("failed to read WAV samples: %w", err)
	}

	channels := c.stream.Channels
	data := make([]byte, len(samples)*channels*2)
	offset := 0
	for _, s := range samples {
		for ch := 0; ch < channels; ch++ {
			v := uint16(toInt16(s.Values[ch], c.bps))
			data[offset] = byte(v)
			data[offset+1] = byte(v >> 8)
			offset += 2
		}
	}

	pkt := types.Packet{StreamIndex: 0, Data: data, Granule: c.position}
	c.position += int64(len(samples))
	return pkt, nil
}

// toInt16 scales a sample value of the given bit depth to 16 bits.
func toInt16(value, bps int) int16 {
	switch bps {
	case 8:
		// 8-bit WAV is unsigned
		return int16((value - 128) << 8)
	case 24:
		return int16(value >> 8)
	case 32:
		return int16(value >> 16)
	default:
		return int16(value)
	}
}

func (c *WAVContainer) Close() error {
	if c.file != nil {
		return c.file.Close()
	}
	return nil
}
