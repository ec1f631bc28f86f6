package container

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/drgolem/musicviz/pkg/types"

	gomp3 "github.com/hajimehoshi/go-mp3"
)

// mp3PacketBytes is one MPEG-1 Layer III frame of stereo 16-bit output
// (1152 samples * 2 channels * 2 bytes).
const mp3PacketBytes = 1152 * 2 * 2

// MP3Container exposes an MP3 elementary stream as a single audio stream.
// github.com/hajimehoshi/go-mp3 parses and decodes frames in one step, so
// packets carry its 16-bit stereo output and use the PCM passthrough codec.
type MP3Container struct {
	file     *os.File
	dec      *gomp3.Decoder
	stream   types.StreamInfo
	position int64
}

// OpenMP3 opens an MP3 file for demultiplexing.
func OpenMP3(fileName string) (*MP3Container, error) {
	file, err := os.Open(fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 file: %w", err)
	}

	dec, err := gomp3.NewDecoder(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: %w", ErrNoStreamInfo, err)
	}

	return &MP3Container{
		file: file,
		dec:  dec,
		stream: types.StreamInfo{
			Index:      0,
			Type:       types.MediaAudio,
			Codec:      types.CodecPCMS16LE,
			SampleRate: dec.SampleRate(),
			Channels:   2, // go-mp3 always outputs stereo
		},
	}, nil
}

func (c *MP3Container) Streams() []types.StreamInfo {
	return []types.StreamInfo{c.stream}
}

// ReadPacket returns the next frame-sized block of PCM.
func (c *MP3Container) ReadPacket() (types.Packet, error) {
	data := make([]byte, mp3PacketBytes)
	n, err := io.ReadFull(c.dec, data)
	if n == 0 {
		if err == nil || errors.Is(err, io.EOF) {
			return types.Packet{}, io.EOF
		}
		return types.Packet{}, fmt.Errorf("failed to read MP3 frame: %w", err)
	}
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return types.Packet{}, fmt.Errorf("failed to read MP3 frame: %w", err)
	}

	pkt := types.Packet{StreamIndex: 0, Data: data[:n], Granule: c.position}
	c.position += int64(n / 4)
	return pkt, nil
}

func (c *MP3Container) Close() error {
	if c.file != nil {
		return c.file.Close()
	}
	return nil
}
