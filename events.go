package vkframe

// Event is delivered by the windowing layer to GraphicsApp.HandleEvent, usually
// through the channel given to Run.
type Event interface {
	isEvent()
}

// ResizeEvent reports a new framebuffer size. Minimized windows report zero.
type ResizeEvent struct {
	Width, Height int
	Minimized     bool
}

// ResizeBeginEvent starts an interactive drag of the window border.
type ResizeBeginEvent struct{}

// ResizeEndEvent ends the drag; the last reported size is applied once.
type ResizeEndEvent struct{}

type MouseButton int

const (
	MouseLeft MouseButton = iota
	MouseRight
	MouseMiddle
)

type InputAction int

const (
	ActionRelease InputAction = iota
	ActionPress
	ActionRepeat
	ActionMove
)

type ModifierKey int

const (
	ModShift ModifierKey = 1 << iota
	ModControl
	ModAlt
	ModSuper
)

type MouseEvent struct {
	Button MouseButton
	Action InputAction
	X, Y   float64
	Mods   ModifierKey
}

type KeyEvent struct {
	Key      int
	Scancode int
	Action   InputAction
	Mods     ModifierKey
}

// ActivateEvent reports focus changes; an inactive app pauses its clock.
type ActivateEvent struct {
	Active bool
}

type CloseEvent struct{}

func (ResizeEvent) isEvent()      {}
func (ResizeBeginEvent) isEvent() {}
func (ResizeEndEvent) isEvent()   {}
func (MouseEvent) isEvent()       {}
func (KeyEvent) isEvent()         {}
func (ActivateEvent) isEvent()    {}
func (CloseEvent) isEvent()       {}

// Hooks are the per-sample callbacks. Nil hooks are no-ops.
type Hooks struct {
	// OnInitPipelines runs once from Start with an open command list that is
	// executed and flushed afterwards.
	OnInitPipelines func(app *GraphicsApp, cmd CommandList) error
	// OnFrameMoved updates scene state before a frame is recorded.
	OnFrameMoved func(app *GraphicsApp, clock *FrameClock) error
	// OnRenderFrame records the frame between PrepareNextFrame and EndRenderFrame.
	OnRenderFrame func(app *GraphicsApp, cmd CommandList, slot *FrameSlot) error
	OnResizeFrame func(app *GraphicsApp, width, height int) error
	// OnMessage sees every event first; returning true stops default handling.
	OnMessage    func(app *GraphicsApp, ev Event) bool
	OnMouseEvent func(app *GraphicsApp, ev MouseEvent)
	OnKeyEvent   func(app *GraphicsApp, ev KeyEvent)
	// OnDestroy releases sample resources after the final flush.
	OnDestroy func(app *GraphicsApp)
}
