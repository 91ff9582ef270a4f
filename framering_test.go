package vkframe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRingSlotCount(t *testing.T) {
	dev := newFakeDevice()
	for _, n := range []int{0, MaxFrameSlots + 1} {
		_, err := NewFrameRing(dev, n, 64, 0, 1024, 1)
		assert.ErrorIs(t, err, ErrInvalidArgument, "slots %d", n)
	}
	_, err := NewFrameRing(dev, 3, 64, 10, 1024, 1)
	assert.ErrorIs(t, err, ErrInvalidArgument, "10 elements over 3 slots")

	r, err := NewFrameRing(dev, MaxFrameSlots, 64, 8, 1024, 1)
	require.NoError(t, err)
	assert.Equal(t, MaxFrameSlots, r.Len())
	assert.Len(t, dev.allocators, MaxFrameSlots)
}

func TestFrameRingConstantRegions(t *testing.T) {
	dev := newFakeDevice()
	r, err := NewFrameRing(dev, 2, 100, 6, 1024, 1)
	require.NoError(t, err)

	require.Len(t, dev.fakeBlockSource.blocks, 1)
	backing := dev.fakeBlockSource.blocks[0]
	assert.Equal(t, uint64(6*256), backing.Size())

	s0, s1 := r.Slot(0).Constants, r.Slot(1).Constants
	assert.Equal(t, 3, s0.Len())
	assert.Equal(t, uint64(256), s0.Stride())
	assert.Equal(t, uint64(0), s0.View(0).Offset)
	assert.Equal(t, uint64(3*256), s1.View(0).Offset)
	assert.Equal(t, uint64(5*256), s1.View(2).Offset)

	require.NoError(t, s1.Write(1, []byte{9, 9, 9}))
	assert.Equal(t, []byte{9, 9, 9}, backing.data[4*256:4*256+3])
	assert.ErrorIs(t, s1.Write(3, nil), ErrInvalidArgument)
	assert.ErrorIs(t, s1.Write(0, make([]byte, 300)), ErrInvalidArgument)
}

func TestFrameRingAdvanceWraps(t *testing.T) {
	r, err := NewFrameRing(newFakeDevice(), 3, 0, 0, 1024, 1)
	require.NoError(t, err)
	var seen []int
	for i := 0; i < 5; i++ {
		seen = append(seen, r.Current().Index)
		r.Advance()
	}
	assert.Equal(t, []int{0, 1, 2, 0, 1}, seen)
}

func TestFrameRingWaitsOnlyForReusedSlot(t *testing.T) {
	dev := newFakeDevice()
	q := &fakeQueue{}
	fence := NewFence(dev.fence, time.Second)
	r, err := NewFrameRing(dev, 3, 0, 0, 1024, 1)
	require.NoError(t, err)

	// The GPU never finishes on its own: the first reuse has to wait.
	for frame := 0; frame < 3; frame++ {
		s, err := r.Begin(fence)
		require.NoError(t, err)
		assert.Equal(t, frame, s.Index)
		require.NoError(t, r.End(fence, q))
	}
	assert.Equal(t, 0, dev.fence.waits)
	assert.Equal(t, uint64(1), r.Slot(0).FenceValue)
	assert.Equal(t, uint64(3), r.Slot(2).FenceValue)

	s, err := r.Begin(fence)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Index)
	assert.Equal(t, 1, dev.fence.waits, "one wait per frame, on the reused slot")
	assert.Equal(t, 2, dev.allocators[0].resets)

	// Slot 1's checkpoint is now behind the completed value: no wait.
	dev.fence.completed = 3
	require.NoError(t, r.End(fence, q))
	_, err = r.Begin(fence)
	require.NoError(t, err)
	assert.Equal(t, 1, dev.fence.waits)
}

func TestFrameRingBeginClearsUploads(t *testing.T) {
	dev := newFakeDevice()
	fence := NewFence(dev.fence, time.Second)
	r, err := NewFrameRing(dev, 1, 0, 0, 1024, 1)
	require.NoError(t, err)

	s, err := r.Begin(fence)
	require.NoError(t, err)
	require.NoError(t, s.Uploads.Push(make([]byte, 600)))
	require.NoError(t, s.Uploads.Push(make([]byte, 600)))
	require.NoError(t, r.End(fence, dev.queue))

	s, err = r.Begin(fence)
	require.NoError(t, err)
	assert.Equal(t, UploadView{}, s.Uploads.Top())
	require.NoError(t, s.Uploads.Push([]byte{1}))
	assert.Equal(t, uint64(0), s.Uploads.Top().Offset)
	assert.Equal(t, 2, s.Uploads.BlockCount())
}

func TestFrameRingEndFailureKeepsSlot(t *testing.T) {
	dev := newFakeDevice()
	fence := NewFence(dev.fence, time.Second)
	r, err := NewFrameRing(dev, 2, 0, 0, 1024, 1)
	require.NoError(t, err)

	_, err = r.Begin(fence)
	require.NoError(t, err)
	err = r.End(fence, &fakeQueue{signalErr: errFake})
	assert.ErrorIs(t, err, ErrDeviceFailure)
	assert.Equal(t, 0, r.Current().Index)
	assert.Equal(t, uint64(0), fence.LastSubmitted())
}

func TestFrameRingRelease(t *testing.T) {
	dev := newFakeDevice()
	r, err := NewFrameRing(dev, 2, 64, 2, 1024, 1)
	require.NoError(t, err)
	r.Release()
	for _, a := range dev.allocators {
		assert.True(t, a.released)
	}
	assert.True(t, dev.fakeBlockSource.blocks[0].released)
}
