package container

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/drgolem/musicviz/pkg/types"
)

// Open opens a local media container and parses its stream layout.
// Supports .ogg/.oga (Vorbis), .wav (PCM) and .mp3. Files with another
// extension are identified by their leading bytes.
func Open(fileName string) (types.Container, error) {
	ext := strings.ToLower(filepath.Ext(fileName))

	switch ext {
	case ".ogg", ".oga":
		return OpenOgg(fileName)
	case ".wav":
		return OpenWAV(fileName)
	case ".mp3":
		return OpenMP3(fileName)
	}

	kind, err := sniff(fileName)
	if err != nil {
		return nil, err
	}
	switch kind {
	case "ogg":
		return OpenOgg(fileName)
	case "wav":
		return OpenWAV(fileName)
	case "mp3":
		return OpenMP3(fileName)
	}
	return nil, fmt.Errorf("%w: %s (supported: .ogg, .oga, .wav, .mp3)", types.ErrUnsupportedFormat, fileName)
}

func sniff(fileName string) (string, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", fileName, err)
	}
	defer f.Close()

	head := make([]byte, 12)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return "", fmt.Errorf("failed to read %s: %w", fileName, err)
	}
	head = head[:n]

	switch {
	case bytes.HasPrefix(head, []byte("OggS")):
		return "ogg", nil
	case len(head) >= 12 && bytes.Equal(head[0:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WAVE")):
		return "wav", nil
	case bytes.HasPrefix(head, []byte("ID3")),
		len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0:
		return "mp3", nil
	}
	return "", nil
}

// FirstAudioStream returns the first audio stream in streams.
func FirstAudioStream(streams []types.StreamInfo) (types.StreamInfo, error) {
	for _, s := range streams {
		if s.Type == types.MediaAudio {
			return s, nil
		}
	}
	return types.StreamInfo{}, types.ErrNoAudioStream
}
