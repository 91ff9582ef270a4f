package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vulkan-go/glfw/v3.3/glfw"

	"github.com/celer/vkframe"
)

func TestMods(t *testing.T) {
	assert.Equal(t, vkframe.ModifierKey(0), mods(0))
	assert.Equal(t, vkframe.ModShift|vkframe.ModAlt, mods(glfw.ModShift|glfw.ModAlt))
	assert.Equal(t, vkframe.ModControl|vkframe.ModSuper, mods(glfw.ModControl|glfw.ModSuper))
}

func TestAction(t *testing.T) {
	assert.Equal(t, vkframe.ActionPress, action(glfw.Press))
	assert.Equal(t, vkframe.ActionRepeat, action(glfw.Repeat))
	assert.Equal(t, vkframe.ActionRelease, action(glfw.Release))
}

func TestButton(t *testing.T) {
	b, ok := button(glfw.MouseButtonRight)
	assert.True(t, ok)
	assert.Equal(t, vkframe.MouseRight, b)

	_, ok = button(glfw.MouseButton4)
	assert.False(t, ok)
}

func TestPostAfterStop(t *testing.T) {
	w := &Window{events: make(chan vkframe.Event), stop: make(chan struct{})}
	close(w.stop)
	assert.NotPanics(t, func() { w.post(vkframe.CloseEvent{}) })

	w = &Window{events: make(chan vkframe.Event, 1), stop: make(chan struct{})}
	w.width.Store(640)
	w.height.Store(480)
	w.post(vkframe.ResizeEvent{Width: 640, Height: 480})
	assert.Equal(t, vkframe.ResizeEvent{Width: 640, Height: 480}, <-w.Events())
	width, height := w.FramebufferSize()
	assert.Equal(t, 640, width)
	assert.Equal(t, 480, height)
}
