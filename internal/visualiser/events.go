package visualiser

// EventKind identifies a class of window events. Handlers are registered
// per kind.
type EventKind int

const (
	EventNone EventKind = iota // wake-up without payload
	EventQuit                  // window close requested
	EventKeyDown
	EventKeyUp
	EventResize
)

func (k EventKind) String() string {
	switch k {
	case EventNone:
		return "none"
	case EventQuit:
		return "quit"
	case EventKeyDown:
		return "key_down"
	case EventKeyUp:
		return "key_up"
	case EventResize:
		return "resize"
	default:
		return "unknown"
	}
}

// Key is a keyboard key, independent of the windowing library.
type Key int

const (
	KeyUnknown Key = iota
	KeyEscape
	KeyQ
	KeySpace
	KeyF
)

// Event is one input event delivered by an EventSource.
type Event struct {
	Kind   EventKind
	Key    Key // EventKeyDown, EventKeyUp
	Width  int // EventResize
	Height int // EventResize
}

// Handler reacts to events of the kinds it is registered for.
type Handler interface {
	HandleEvent(ev Event)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ev Event)

func (f HandlerFunc) HandleEvent(ev Event) {
	f(ev)
}

// Dispatcher routes events to handlers by kind. Handlers of one kind run
// in registration order. A Dispatcher is used from the render thread only.
type Dispatcher struct {
	handlers map[EventKind][]Handler
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[EventKind][]Handler)}
}

// Register adds h for events of kind.
func (d *Dispatcher) Register(kind EventKind, h Handler) {
	d.handlers[kind] = append(d.handlers[kind], h)
}

// Dispatch calls every handler registered for ev.Kind and returns how many
// ran.
func (d *Dispatcher) Dispatch(ev Event) int {
	hs := d.handlers[ev.Kind]
	for _, h := range hs {
		h.HandleEvent(ev)
	}
	return len(hs)
}
