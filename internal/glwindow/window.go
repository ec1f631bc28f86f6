package glwindow

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/drgolem/musicviz/internal/visualiser"

	"github.com/go-gl/gl/v2.1/gl"
	glfw "github.com/go-gl/glfw/v3.3/glfw"
)

// Config holds window creation parameters
type Config struct {
	Title  string
	Width  int
	Height int
	VSync  bool
}

// Window is a double-buffered GLFW window with a 24-bit depth buffer. It
// implements visualiser.EventSource and visualiser.Surface.
//
// All methods except Wake must be called from the thread that called Init.
type Window struct {
	win    *glfw.Window
	queue  []visualiser.Event
	logger *slog.Logger
}

// Init initializes GLFW. Must be called from the main thread; the calling
// goroutine stays locked to it.
func Init() error {
	runtime.LockOSThread()
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("failed to initialize GLFW: %w", err)
	}
	return nil
}

// Terminate shuts GLFW down. Must be called from the main thread.
func Terminate() {
	glfw.Terminate()
}

// New creates the window and makes its GL context current.
func New(cfg Config, logger *slog.Logger) (*Window, error) {
	if logger == nil {
		logger = slog.Default()
	}

	glfw.WindowHint(glfw.ContextVersionMajor, 2)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.DoubleBuffer, glfw.True)
	glfw.WindowHint(glfw.DepthBits, 24)
	glfw.WindowHint(glfw.Resizable, glfw.True)

	win, err := glfw.CreateWindow(cfg.Width, cfg.Height, cfg.Title, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create window: %w", err)
	}
	win.MakeContextCurrent()

	if err := gl.Init(); err != nil {
		win.Destroy()
		return nil, fmt.Errorf("failed to initialize OpenGL: %w", err)
	}

	if cfg.VSync {
		glfw.SwapInterval(1)
	} else {
		glfw.SwapInterval(0)
	}

	w := &Window{win: win, logger: logger}
	win.SetKeyCallback(w.keyCallback)
	win.SetCloseCallback(w.closeCallback)
	win.SetFramebufferSizeCallback(w.sizeCallback)

	logger.Debug("Window created",
		"width", cfg.Width,
		"height", cfg.Height,
		"vsync", cfg.VSync,
		"gl_version", gl.GoStr(gl.GetString(gl.VERSION)))
	return w, nil
}

func (w *Window) keyCallback(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
	var kind visualiser.EventKind
	switch action {
	case glfw.Press:
		kind = visualiser.EventKeyDown
	case glfw.Release:
		kind = visualiser.EventKeyUp
	default:
		return
	}
	w.queue = append(w.queue, visualiser.Event{Kind: kind, Key: translateKey(key)})
}

func (w *Window) closeCallback(win *glfw.Window) {
	// the render loop decides when to close
	win.SetShouldClose(false)
	w.queue = append(w.queue, visualiser.Event{Kind: visualiser.EventQuit})
}

func (w *Window) sizeCallback(_ *glfw.Window, width, height int) {
	w.queue = append(w.queue, visualiser.Event{Kind: visualiser.EventResize, Width: width, Height: height})
}

func translateKey(key glfw.Key) visualiser.Key {
	switch key {
	case glfw.KeyEscape:
		return visualiser.KeyEscape
	case glfw.KeyQ:
		return visualiser.KeyQ
	case glfw.KeySpace:
		return visualiser.KeySpace
	case glfw.KeyF:
		return visualiser.KeyF
	default:
		return visualiser.KeyUnknown
	}
}

func (w *Window) pop() (visualiser.Event, bool) {
	if len(w.queue) == 0 {
		return visualiser.Event{}, false
	}
	ev := w.queue[0]
	w.queue = w.queue[1:]
	return ev, true
}

// PollEvent processes pending window events and returns the oldest one.
func (w *Window) PollEvent() (visualiser.Event, bool) {
	if len(w.queue) == 0 {
		glfw.PollEvents()
	}
	return w.pop()
}

// WaitEvent sleeps until a window event arrives or Wake is called.
func (w *Window) WaitEvent() visualiser.Event {
	if len(w.queue) == 0 {
		glfw.WaitEvents()
	}
	if ev, ok := w.pop(); ok {
		return ev
	}
	return visualiser.Event{Kind: visualiser.EventNone}
}

// Wake interrupts WaitEvent. Safe to call from any goroutine.
func (w *Window) Wake() {
	glfw.PostEmptyEvent()
}

func (w *Window) SwapBuffers() {
	w.win.SwapBuffers()
}

// FramebufferSize returns the drawable size in pixels.
func (w *Window) FramebufferSize() (int, int) {
	return w.win.GetFramebufferSize()
}

// Destroy closes the window.
func (w *Window) Destroy() {
	w.win.Destroy()
}
