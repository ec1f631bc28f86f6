package glwindow

import (
	"github.com/drgolem/musicviz/internal/visualiser"
	"github.com/drgolem/musicviz/pkg/dsp"

	"github.com/go-gl/gl/v2.1/gl"
)

// StateSource supplies the analysis to draw, nil when none is available yet.
type StateSource func() *dsp.State

// Bars draws the spectrum as vertical bars with an RMS meter and the
// waveform on top.
type Bars struct {
	window *Window
	state  StateSource
	gap    float32
}

// NewBars creates a bars visualisation for w.
func NewBars(w *Window, state StateSource) *Bars {
	return &Bars{window: w, state: state, gap: 0.2}
}

// Draw renders one frame.
func (b *Bars) Draw() {
	width, height := b.window.FramebufferSize()
	gl.Viewport(0, 0, int32(width), int32(height))
	gl.MatrixMode(gl.PROJECTION)
	gl.LoadIdentity()
	gl.MatrixMode(gl.MODELVIEW)
	gl.LoadIdentity()

	gl.ClearColor(0.05, 0.05, 0.08, 1)
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)

	s := b.state()
	if s == nil {
		return
	}

	rects := visualiser.BarLayout(s.Spectrum, b.gap)
	gl.Begin(gl.QUADS)
	for i, r := range rects {
		t := float32(i) / float32(max(len(rects)-1, 1))
		gl.Color3f(0.2+0.8*t, 0.8-0.5*t, 1-0.6*t)
		gl.Vertex2f(r.X0, r.Y0)
		gl.Vertex2f(r.X1, r.Y0)
		gl.Color3f(1, 1, 1)
		gl.Vertex2f(r.X1, r.Y1)
		gl.Vertex2f(r.X0, r.Y1)
	}

	// level meter along the left edge
	level := float32(s.RMS) * 2
	gl.Color3f(0.9, 0.3, 0.2)
	gl.Vertex2f(-1, -1)
	gl.Vertex2f(-0.98, -1)
	gl.Vertex2f(-0.98, -1+level)
	gl.Vertex2f(-1, -1+level)
	gl.End()

	if n := len(s.Waveform); n > 1 {
		gl.Color3f(1, 1, 1)
		gl.Begin(gl.LINE_STRIP)
		for i, v := range s.Waveform {
			x := -1 + 2*float32(i)/float32(n-1)
			gl.Vertex2f(x, 0.5+float32(v)*0.4)
		}
		gl.End()
	}
}
