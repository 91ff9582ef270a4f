// Package platform opens glfw windows that vkframe can present to and turns
// their callbacks into vkframe events.
package platform

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/vulkan-go/glfw/v3.3/glfw"
	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkframe"
)

func init() {
	// glfw must be driven from the main thread.
	runtime.LockOSThread()
}

// InitVulkan initializes glfw and loads Vulkan through it. Call Terminate when
// done.
func InitVulkan() error {
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("platform: init glfw: %w", err)
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return fmt.Errorf("%w: vulkan is not supported", vkframe.ErrNotImplemented)
	}
	vk.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())
	if err := vk.Init(); err != nil {
		glfw.Terminate()
		return fmt.Errorf("platform: init vulkan: %w", err)
	}
	return nil
}

func Terminate() {
	glfw.Terminate()
}

// Window is a glfw window without a client API. It implements
// vkbackend.SurfaceTarget.
type Window struct {
	*glfw.Window

	events chan vkframe.Event
	stop   chan struct{}

	width, height atomic.Int32
	cursorX       float64
	cursorY       float64
}

// eventBacklog bounds the events queued while a frame is being rendered.
const eventBacklog = 64

// NewWindow creates a hidden resizable window; GraphicsApp shows it once the
// first frame can be drawn.
func NewWindow(width, height int, title string) (*Window, error) {
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.Visible, glfw.False)
	gw, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("platform: create window: %w", err)
	}
	w := &Window{
		Window: gw,
		events: make(chan vkframe.Event, eventBacklog),
		stop:   make(chan struct{}),
	}
	fw, fh := gw.GetFramebufferSize()
	w.width.Store(int32(fw))
	w.height.Store(int32(fh))
	w.install()
	return w, nil
}

// RequiredExtensions lists the instance extensions glfw needs to create
// surfaces.
func (w *Window) RequiredExtensions() []string {
	return w.GetRequiredInstanceExtensions()
}

// FramebufferSize is the size last reported by glfw; it is safe to call from
// any goroutine.
func (w *Window) FramebufferSize() (int, int) {
	return int(w.width.Load()), int(w.height.Load())
}

// Events is the channel GraphicsApp.Run consumes.
func (w *Window) Events() <-chan vkframe.Event {
	return w.events
}

func (w *Window) post(ev vkframe.Event) {
	select {
	case w.events <- ev:
	case <-w.stop:
	}
}

func mods(m glfw.ModifierKey) vkframe.ModifierKey {
	var out vkframe.ModifierKey
	if m&glfw.ModShift != 0 {
		out |= vkframe.ModShift
	}
	if m&glfw.ModControl != 0 {
		out |= vkframe.ModControl
	}
	if m&glfw.ModAlt != 0 {
		out |= vkframe.ModAlt
	}
	if m&glfw.ModSuper != 0 {
		out |= vkframe.ModSuper
	}
	return out
}

func action(a glfw.Action) vkframe.InputAction {
	switch a {
	case glfw.Press:
		return vkframe.ActionPress
	case glfw.Repeat:
		return vkframe.ActionRepeat
	}
	return vkframe.ActionRelease
}

func button(b glfw.MouseButton) (vkframe.MouseButton, bool) {
	switch b {
	case glfw.MouseButtonLeft:
		return vkframe.MouseLeft, true
	case glfw.MouseButtonRight:
		return vkframe.MouseRight, true
	case glfw.MouseButtonMiddle:
		return vkframe.MouseMiddle, true
	}
	return 0, false
}

func (w *Window) install() {
	w.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		w.width.Store(int32(width))
		w.height.Store(int32(height))
		w.post(vkframe.ResizeEvent{Width: width, Height: height, Minimized: width == 0 || height == 0})
	})
	w.SetIconifyCallback(func(_ *glfw.Window, iconified bool) {
		if iconified {
			w.post(vkframe.ResizeEvent{Minimized: true})
			return
		}
		width, height := w.FramebufferSize()
		w.post(vkframe.ResizeEvent{Width: width, Height: height})
	})
	w.SetFocusCallback(func(_ *glfw.Window, focused bool) {
		w.post(vkframe.ActivateEvent{Active: focused})
	})
	w.SetCursorPosCallback(func(_ *glfw.Window, x, y float64) {
		w.cursorX, w.cursorY = x, y
		// Moves are dropped rather than stalling the event pump.
		select {
		case w.events <- vkframe.MouseEvent{Action: vkframe.ActionMove, X: x, Y: y}:
		default:
		}
	})
	w.SetMouseButtonCallback(func(_ *glfw.Window, b glfw.MouseButton, a glfw.Action, m glfw.ModifierKey) {
		mb, ok := button(b)
		if !ok {
			return
		}
		w.post(vkframe.MouseEvent{Button: mb, Action: action(a), X: w.cursorX, Y: w.cursorY, Mods: mods(m)})
	})
	w.SetKeyCallback(func(_ *glfw.Window, k glfw.Key, scancode int, a glfw.Action, m glfw.ModifierKey) {
		w.post(vkframe.KeyEvent{Key: int(k), Scancode: scancode, Action: action(a), Mods: mods(m)})
	})
	w.SetCloseCallback(func(*glfw.Window) {
		w.post(vkframe.CloseEvent{})
	})
}

// pollInterval is how long the event pump sleeps when no events arrive.
const pollInterval = 0.01

// Loop runs run on its own goroutine and pumps glfw events on the calling
// goroutine, which must be the main one, until run returns.
func (w *Window) Loop(ctx context.Context, run func(ctx context.Context, events <-chan vkframe.Event) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		err := run(ctx, w.events)
		close(w.stop)
		glfw.PostEmptyEvent()
		done <- err
	}()

	for {
		select {
		case err := <-done:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		default:
		}
		glfw.WaitEventsTimeout(pollInterval)
	}
}

// Destroy closes the window. The loop must have returned.
func (w *Window) Destroy() {
	w.Window.Destroy()
	vkframe.Logger().Debug("platform: window destroyed")
}
