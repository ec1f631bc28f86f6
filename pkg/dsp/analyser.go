package dsp

import (
	"math"
	"sync/atomic"

	fft "github.com/mjibson/go-dsp/fft"
)

const (
	// FFTSize is the analysis window; it gives FFTSize/2 frequency bins.
	FFTSize = 2048

	// DefaultBands is the number of spectrum bands published per frame.
	DefaultBands = 64

	// DefaultSmoothing is the weight given to the previous spectrum.
	DefaultSmoothing = 0.8

	minDecibels = -100.0
	maxDecibels = -30.0
)

// Processor consumes PCM handed over by the audio callback.
// ProcessAudioPCM runs on the audio thread and must not block.
type Processor interface {
	ProcessAudioPCM(pcm []byte)
}

// State is one published analysis result. A State is never modified after
// it is published, so readers may keep it for the duration of a frame.
type State struct {
	Spectrum []float64 // Smoothed band levels scaled to [0, 1], low to high frequency
	Waveform []float64 // Most recent mono samples in [-1, 1]
	RMS      float64   // RMS level of the last buffer
	Peak     float64   // Absolute peak of the last buffer
	Buffers  uint64    // Buffers processed so far
}

// Analyser computes a smoothed magnitude spectrum and level meters from
// interleaved signed 16-bit PCM.
//
// Thread Safety Model:
//   - ProcessAudioPCM is called by a single producer (the audio callback)
//   - Latest may be called from any goroutine (the render loop)
//   - Results are exchanged through an atomic pointer, no locks on the audio path
type Analyser struct {
	channels  int
	bands     int
	smoothing float64

	history []float64 // mono history, circular
	pos     int
	window  []float64
	frame   []float64
	lastDB  []float64 // previous smoothed spectrum in dB, one per bin
	buffers uint64

	latest atomic.Pointer[State]
}

// Option configures an Analyser.
type Option func(*Analyser)

// WithBands sets the number of published spectrum bands.
func WithBands(n int) Option {
	return func(a *Analyser) {
		if n > 0 && n <= FFTSize/2 {
			a.bands = n
		}
	}
}

// WithSmoothing sets the temporal smoothing factor in [0, 1).
func WithSmoothing(f float64) Option {
	return func(a *Analyser) {
		if f >= 0 && f < 1 {
			a.smoothing = f
		}
	}
}

// NewAnalyser creates an analyser for PCM with the given channel count.
func NewAnalyser(channels int, opts ...Option) *Analyser {
	if channels < 1 {
		channels = 1
	}
	a := &Analyser{
		channels:  channels,
		bands:     DefaultBands,
		smoothing: DefaultSmoothing,
		history:   make([]float64, FFTSize),
		window:    blackmanWindow(FFTSize),
		frame:     make([]float64, FFTSize),
		lastDB:    make([]float64, FFTSize/2),
	}
	for _, opt := range opts {
		opt(a)
	}
	for i := range a.lastDB {
		a.lastDB[i] = minDecibels
	}
	a.latest.Store(&State{
		Spectrum: make([]float64, a.bands),
	})
	return a
}

// ProcessAudioPCM analyses one buffer of interleaved s16le PCM and publishes
// a new State.
func (a *Analyser) ProcessAudioPCM(pcm []byte) {
	frameBytes := a.channels * 2
	frames := len(pcm) / frameBytes
	if frames == 0 {
		return
	}

	var sumSquares, peak float64
	for i := 0; i < frames; i++ {
		var mono float64
		for ch := 0; ch < a.channels; ch++ {
			off := i*frameBytes + ch*2
			s := float64(int16(uint16(pcm[off])|uint16(pcm[off+1])<<8)) / 32768.0
			mono += s
			sumSquares += s * s
			peak = max(peak, math.Abs(s))
		}
		a.history[a.pos] = mono / float64(a.channels)
		a.pos = (a.pos + 1) % FFTSize
	}
	a.buffers++

	state := &State{
		Spectrum: a.spectrum(),
		Waveform: a.waveform(min(frames, FFTSize)),
		RMS:      math.Sqrt(sumSquares / float64(frames*a.channels)),
		Peak:     peak,
		Buffers:  a.buffers,
	}
	a.latest.Store(state)
}

// spectrum windows the history, transforms it and reduces the smoothed bins
// to the loudest bin of each band.
func (a *Analyser) spectrum() []float64 {
	for i := range a.frame {
		a.frame[i] = a.history[(a.pos+i)%FFTSize] * a.window[i]
	}
	result := fft.FFTReal(a.frame)

	bins := FFTSize / 2
	for i := 0; i < bins; i++ {
		re := real(result[i])
		im := imag(result[i])
		magnitude := math.Sqrt(re*re+im*im) * (2.0 / FFTSize)
		db := 20 * math.Log10(magnitude+1e-9)
		a.lastDB[i] = a.smoothing*a.lastDB[i] + (1.0-a.smoothing)*db
	}

	bands := make([]float64, a.bands)
	for b := range bands {
		lo, hi := bandRange(b, a.bands, bins)
		loudest := a.lastDB[lo]
		for i := lo + 1; i < hi; i++ {
			loudest = max(loudest, a.lastDB[i])
		}
		bands[b] = scaleDB(loudest)
	}
	return bands
}

func (a *Analyser) waveform(n int) []float64 {
	out := make([]float64, n)
	start := a.pos - n
	for i := range out {
		out[i] = a.history[(start+i+FFTSize)%FFTSize]
	}
	return out
}

// Latest returns the most recently published state.
func (a *Analyser) Latest() *State {
	return a.latest.Load()
}

// bandRange maps band b of n onto a logarithmically spaced bin range
// within [1, bins). Every band covers at least one bin.
func bandRange(b, n, bins int) (int, int) {
	edge := func(k int) int {
		return int(math.Pow(float64(bins), float64(k)/float64(n)))
	}
	lo := max(edge(b), 1+b)
	hi := max(edge(b+1), lo+1)
	if hi > bins {
		hi = bins
	}
	if lo >= hi {
		lo = hi - 1
	}
	return lo, hi
}

func scaleDB(db float64) float64 {
	switch {
	case db < minDecibels:
		return 0
	case db > maxDecibels:
		return 1
	default:
		return (db - minDecibels) / (maxDecibels - minDecibels)
	}
}

// blackmanWindow generates a Blackman window of the given size.
func blackmanWindow(size int) []float64 {
	window := make([]float64, size)
	a0 := 0.42
	a1 := 0.5
	a2 := 0.08
	invSize := 1.0 / float64(size-1)
	for i := range window {
		t := float64(i) * invSize
		window[i] = a0 - (a1 * math.Cos(2*math.Pi*t)) + (a2 * math.Cos(4*math.Pi*t))
	}
	return window
}

// Nop discards PCM.
type Nop struct{}

func (Nop) ProcessAudioPCM([]byte) {}
