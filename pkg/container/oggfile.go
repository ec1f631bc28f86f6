package container

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/drgolem/musicviz/pkg/types"

	"mccoy.space/g/ogg"
)

// ErrNoStreamInfo indicates the container ended or misbehaved before the
// stream layout could be determined.
var ErrNoStreamInfo = errors.New("could not find stream information")

const (
	// maxProbePackets bounds how far Open scans for codec headers.
	maxProbePackets = 512
	// maxOggPacket bounds a packet reassembled across pages.
	maxOggPacket = 16 << 20
)

// OggContainer demultiplexes an Ogg physical stream. Each logical
// bitstream (serial number) becomes one stream, indexed in order of
// appearance. Vorbis header packets are moved into StreamInfo.Headers and
// are not returned by ReadPacket.
type OggContainer struct {
	closer  io.Closer
	packets *packetReader
	streams []types.StreamInfo
	index   map[uint32]int
	pending []types.Packet // data packets read while probing
}

// OpenOgg opens an Ogg file.
func OpenOgg(fileName string) (*OggContainer, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to open Ogg file: %w", err)
	}
	c, err := NewOgg(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	c.closer = f
	return c, nil
}

// NewOgg probes the stream layout of r.
func NewOgg(r io.Reader) (*OggContainer, error) {
	c := &OggContainer{
		packets: newPacketReader(r),
		index:   make(map[uint32]int),
	}
	if err := c.probe(); err != nil {
		return nil, err
	}
	return c, nil
}

// probe reads packets until every logical stream seen so far has its codec
// headers. Streams begin with BOS pages, all of which precede data pages.
func (c *OggContainer) probe() error {
	for i := 0; i < maxProbePackets; i++ {
		pkt, err := c.packets.next()
		if err != nil {
			if errors.Is(err, io.EOF) && len(c.streams) > 0 && c.ready() {
				return nil
			}
			return fmt.Errorf("%w: %w", ErrNoStreamInfo, err)
		}

		idx, known := c.index[pkt.serial]
		if !known {
			if !pkt.bos {
				// Data for an undeclared stream; skip it
				continue
			}
			idx = len(c.streams)
			c.index[pkt.serial] = idx
			c.streams = append(c.streams, identify(idx, pkt.data))
		}

		stream := &c.streams[idx]
		switch {
		case stream.Codec == types.CodecVorbis && len(stream.Headers) < 3:
			stream.Headers = append(stream.Headers, pkt.data)
		case !known:
			// identification packet of a stream we do not decode
		default:
			c.pending = append(c.pending, c.toPacket(pkt))
		}

		if !pkt.bos && c.ready() {
			return nil
		}
	}
	return fmt.Errorf("%w: headers not found in first %d packets", ErrNoStreamInfo, maxProbePackets)
}

func (c *OggContainer) ready() bool {
	for _, s := range c.streams {
		if s.Codec == types.CodecVorbis && len(s.Headers) < 3 {
			return false
		}
	}
	return true
}

func (c *OggContainer) toPacket(pkt oggPacket) types.Packet {
	return types.Packet{
		StreamIndex: c.index[pkt.serial],
		Data:        pkt.data,
		Granule:     pkt.granule,
	}
}

// identify classifies a logical stream by its first packet.
func identify(index int, first []byte) types.StreamInfo {
	info := types.StreamInfo{Index: index, Type: types.MediaData}

	switch {
	case len(first) >= 30 && first[0] == 0x01 && bytes.Equal(first[1:7], []byte("vorbis")):
		info.Type = types.MediaAudio
		info.Codec = types.CodecVorbis
		info.Channels = int(first[11])
		info.SampleRate = int(binary.LittleEndian.Uint32(first[12:16]))
	case len(first) >= 19 && bytes.Equal(first[0:8], []byte("OpusHead")):
		info.Type = types.MediaAudio
		info.Codec = "opus"
		info.Channels = int(first[9])
		info.SampleRate = 48000
	case len(first) >= 7 && first[0] == 0x80 && bytes.Equal(first[1:7], []byte("theora")):
		info.Type = types.MediaVideo
		info.Codec = "theora"
	case bytes.HasPrefix(first, []byte("\x7fFLAC")):
		info.Type = types.MediaAudio
		info.Codec = "flac"
	}
	return info
}

// Streams returns the logical streams found while probing.
func (c *OggContainer) Streams() []types.StreamInfo {
	return c.streams
}

// ReadPacket returns the next data packet of any known stream.
func (c *OggContainer) ReadPacket() (types.Packet, error) {
	if len(c.pending) > 0 {
		pkt := c.pending[0]
		c.pending = c.pending[1:]
		return pkt, nil
	}

	for {
		pkt, err := c.packets.next()
		if err != nil {
			return types.Packet{}, err
		}
		if _, ok := c.index[pkt.serial]; !ok {
			continue
		}
		return c.toPacket(pkt), nil
	}
}

func (c *OggContainer) Close() error {
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// oggPacket is one complete packet of a logical bitstream.
type oggPacket struct {
	serial  uint32
	data    []byte
	granule int64 // -1 unless the packet is the last one completed on its page
	bos     bool
}

// packetReader reassembles packets that span pages. ogg.Decoder splits each
// page by its lacing values, so the last packet on a page is ambiguous when
// its length there is a nonzero multiple of 255: it either ends on the page
// boundary or continues on the next page of the same bitstream. Such a packet
// is held until that next page settles it.
type packetReader struct {
	pages *ogg.Decoder
	held  []oggPacket
	queue []oggPacket
	eof   bool
}

func newPacketReader(r io.Reader) *packetReader {
	return &packetReader{pages: ogg.NewDecoder(r)}
}

func (r *packetReader) next() (oggPacket, error) {
	for len(r.queue) == 0 {
		if r.eof {
			return oggPacket{}, io.EOF
		}
		if err := r.readPage(); err != nil {
			if !errors.Is(err, io.EOF) {
				return oggPacket{}, err
			}
			r.eof = true
			r.queue = append(r.queue, r.held...)
			r.held = nil
		}
	}
	pkt := r.queue[0]
	r.queue = r.queue[1:]
	return pkt, nil
}

// take removes and returns the held packet of serial, if any.
func (r *packetReader) take(serial uint32) (oggPacket, bool) {
	for i, pkt := range r.held {
		if pkt.serial == serial {
			r.held = append(r.held[:i], r.held[i+1:]...)
			return pkt, true
		}
	}
	return oggPacket{}, false
}

func (r *packetReader) readPage() error {
	page, err := r.pages.Decode()
	if err != nil {
		return err
	}

	bos := page.Type&ogg.BOS != 0
	eos := page.Type&ogg.EOS != 0
	frags := page.Packets

	prev, continued := r.take(page.Serial)
	if page.Type&ogg.COP == 0 {
		if continued {
			r.queue = append(r.queue, prev)
		}
		continued = false
	} else if !continued && len(frags) > 0 {
		// the start of this packet was never seen
		frags = frags[1:]
	} else if continued && len(frags) == 0 {
		r.held = append(r.held, prev)
	}

	for i, frag := range frags {
		var pkt oggPacket
		if i == 0 && continued {
			if len(prev.data)+len(frag) > maxOggPacket {
				return fmt.Errorf("ogg packet on stream %d exceeds %d bytes", page.Serial, maxOggPacket)
			}
			pkt = prev
			pkt.data = append(pkt.data, frag...)
			pkt.granule = -1
		} else {
			// ogg.Decoder reuses its buffers between pages
			pkt = oggPacket{serial: page.Serial, data: bytes.Clone(frag), granule: -1, bos: bos}
		}

		if i < len(frags)-1 {
			r.queue = append(r.queue, pkt)
			continue
		}
		pkt.granule = page.Granule
		if !eos && len(frag) > 0 && len(frag)%255 == 0 {
			r.held = append(r.held, pkt)
			continue
		}
		r.queue = append(r.queue, pkt)
	}
	return nil
}
