package visualiser

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// DefaultFPS is the frame rate targeted when vsync is off.
const DefaultFPS = 60

// EventSource delivers window input. It is only called from the render
// thread.
type EventSource interface {
	// PollEvent returns a pending event without blocking.
	PollEvent() (Event, bool)

	// WaitEvent blocks until an event arrives. Wake interrupts it with an
	// EventNone.
	WaitEvent() Event

	// Wake may be called from any goroutine.
	Wake()
}

// Surface presents a finished frame.
type Surface interface {
	SwapBuffers()
}

// Visualisation draws one frame into the current surface.
type Visualisation interface {
	Draw()
}

// Config holds render loop configuration
type Config struct {
	TargetFPS int  // Frame rate cap when VSync is off
	VSync     bool // Swap is paced by the display; no sleeping between frames
}

// Loop runs the event/render cycle of a window on the calling thread.
//
// Without a visualisation the loop blocks on events. With one it polls
// events, draws, presents and paces itself to TargetFPS.
type Loop struct {
	cfg        Config
	events     EventSource
	surface    Surface
	dispatcher *Dispatcher
	logger     *slog.Logger

	vis    Visualisation
	closed atomic.Bool
	frames uint64

	// Now and Sleep are the clock; tests replace them.
	Now   func() time.Time
	Sleep func(time.Duration)
}

// NewLoop creates a loop with the stock quit handlers registered: a quit
// request closes the loop, as do the Escape and Q keys.
func NewLoop(cfg Config, events EventSource, surface Surface, logger *slog.Logger) *Loop {
	if cfg.TargetFPS <= 0 {
		cfg.TargetFPS = DefaultFPS
	}
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loop{
		cfg:        cfg,
		events:     events,
		surface:    surface,
		dispatcher: NewDispatcher(),
		logger:     logger,
		Now:        time.Now,
		Sleep:      time.Sleep,
	}

	l.dispatcher.Register(EventQuit, HandlerFunc(func(Event) {
		l.logger.Debug("Quit requested")
		l.close()
	}))
	l.dispatcher.Register(EventKeyDown, HandlerFunc(func(ev Event) {
		if ev.Key == KeyEscape || ev.Key == KeyQ {
			l.logger.Debug("Quit key pressed")
			l.close()
		}
	}))
	return l
}

// Dispatcher returns the loop's handler registry.
func (l *Loop) Dispatcher() *Dispatcher {
	return l.dispatcher
}

// SetVisualisation sets the frame drawer; nil makes the loop idle on events.
// Call from the render thread.
func (l *Loop) SetVisualisation(v Visualisation) {
	l.vis = v
}

// Close asks the loop to return after the current iteration. Safe to call
// from any goroutine.
func (l *Loop) Close() {
	l.close()
	l.events.Wake()
}

func (l *Loop) close() {
	l.closed.Store(true)
}

// Closed reports whether the loop has been asked to stop.
func (l *Loop) Closed() bool {
	return l.closed.Load()
}

// Frames returns the number of frames drawn.
func (l *Loop) Frames() uint64 {
	return l.frames
}

// Run processes events and frames until the loop is closed or ctx is
// cancelled.
func (l *Loop) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, l.events.Wake)
	defer stop()

	for !l.Closed() {
		if ctx.Err() != nil {
			return nil
		}

		if l.vis == nil {
			l.dispatcher.Dispatch(l.events.WaitEvent())
			continue
		}

		for {
			ev, ok := l.events.PollEvent()
			if !ok {
				break
			}
			l.dispatcher.Dispatch(ev)
		}
		if l.Closed() {
			break
		}

		start := l.Now()
		l.vis.Draw()
		elapsed := l.Now().Sub(start)
		l.surface.SwapBuffers()
		l.frames++

		if !l.cfg.VSync {
			if delay := FrameDelay(l.cfg.TargetFPS, elapsed); delay > 0 {
				l.Sleep(delay)
			}
		}
	}
	l.logger.Debug("Render loop finished", "frames", l.frames)
	return nil
}

// FrameDelay returns how long to wait after a frame that took elapsed to
// keep fps frames per second. It is never negative.
func FrameDelay(fps int, elapsed time.Duration) time.Duration {
	if fps <= 0 {
		return 0
	}
	return max(time.Second/time.Duration(fps)-elapsed, 0)
}
