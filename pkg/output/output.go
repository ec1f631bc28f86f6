package output

import (
	"errors"

	"github.com/drgolem/musicviz/pkg/types"
)

// ErrNotOpen is returned by operations on a device without an open stream.
var ErrNotOpen = errors.New("audio device not open")

// Callback fills out with exactly len(out) bytes of PCM in the negotiated
// format. Returning false ends the stream after out has been played.
type Callback func(out []byte) bool

// Device is an audio output that pulls PCM through a callback.
//
// Open negotiates the format: the returned AudioSpec is what the device
// actually granted and may differ from want (sample rate in particular).
type Device interface {
	Open(want types.AudioSpec, cb Callback) (types.AudioSpec, error)
	Start() error
	Pause(paused bool) error
	Close() error
}
