package vkbackend

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/celer/vkframe"
)

func TestFlipViewport(t *testing.T) {
	v := flipViewport(vkframe.Viewport{X: 10, Y: 20, Width: 640, Height: 480, MaxDepth: 1})
	assert.Equal(t, float32(10), v.X)
	assert.Equal(t, float32(500), v.Y)
	assert.Equal(t, float32(640), v.Width)
	assert.Equal(t, float32(-480), v.Height)
	assert.Equal(t, float32(1), v.MaxDepth)
}

type otherAllocator struct{}

func (otherAllocator) Reset() error { return nil }
func (otherAllocator) Release()     {}

func TestCommandListStickyError(t *testing.T) {
	cl := &CommandList{}
	err := cl.Reset(otherAllocator{}, nil)
	assert.ErrorIs(t, err, vkframe.ErrInvalidArgument)

	// Recording into a closed list is remembered, not recorded.
	cl.DrawInstanced(3, 1, 0, 0)
	assert.Error(t, cl.err)
	assert.ErrorIs(t, cl.Close(), vkframe.ErrInvalidArgument)
}

func TestCommandListRejectsForeignObjects(t *testing.T) {
	cl := &CommandList{open: true}
	cl.SetGraphicsRootConstantBufferView(0, vkframe.UploadView{})
	assert.ErrorIs(t, cl.err, vkframe.ErrInvalidArgument)

	cl = &CommandList{open: true}
	cl.BeginQuery(&QueryHeap{count: 2}, 2)
	assert.ErrorIs(t, cl.err, vkframe.ErrInvalidArgument)

	cl = &CommandList{open: true}
	cl.BeginRenderPass(vkframe.RenderPassDesc{})
	assert.ErrorIs(t, cl.err, vkframe.ErrInvalidArgument)
}

func TestCommandListSetPredicationRecordsNothing(t *testing.T) {
	cl := &CommandList{open: true}
	cl.SetPredication(nil, 0, vkframe.PredicationEqualZero)
	assert.NoError(t, cl.err)
	assert.Nil(t, cl.VKCommandBuffer)

	closed := &CommandList{}
	closed.SetPredication(nil, 0, vkframe.PredicationNotEqualZero)
	assert.Error(t, closed.err, "closed list")
}
