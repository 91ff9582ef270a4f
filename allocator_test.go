package vkframe

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlign(t *testing.T) {
	assert.Equal(t, uint64(12), makeAlignUp(12, 3))
	assert.Equal(t, uint64(12), makeAlignUp(10, 3))
	assert.Equal(t, uint64(512), makeAlignUp(300, ConstantBufferAlignment))
	assert.Equal(t, uint64(256), makeAlignUp(256, ConstantBufferAlignment))
}

func TestUploadAllocatorRejectsOversizedPush(t *testing.T) {
	src := &fakeBlockSource{}
	u, err := NewUploadAllocator(src, 1024, 1)
	require.NoError(t, err)

	err = u.Push(make([]byte, 2048))
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, 0, u.BlockCount())

	require.NoError(t, u.Push(make([]byte, 1024)))
	assert.Equal(t, 1, u.BlockCount())
}

func TestUploadAllocatorBadConfig(t *testing.T) {
	_, err := NewUploadAllocator(&fakeBlockSource{}, 100, 1)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = NewUploadAllocator(&fakeBlockSource{}, 4096, -1)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestUploadAllocatorTenPushesTwoBlocks(t *testing.T) {
	src := &fakeBlockSource{}
	u, err := NewUploadAllocator(src, 4096, 2)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, u.Push(bytes.Repeat([]byte{byte(i + 1)}, 300)))
		top := u.Top()
		assert.Equal(t, uint64(512), top.Size)
		assert.Zero(t, top.Offset%ConstantBufferAlignment)
	}
	assert.Equal(t, 2, u.BlockCount())
	assert.Equal(t, 2, src.created)
	assert.Equal(t, uint64(512), u.Top().Offset, "tenth push is the second in block 1")

	u.ClearCapacity()
	assert.Equal(t, 2, u.BlockCount())
}

func TestUploadAllocatorNoSpanning(t *testing.T) {
	src := &fakeBlockSource{}
	u, err := NewUploadAllocator(src, 1024, 0)
	require.NoError(t, err)

	require.NoError(t, u.Push(make([]byte, 700)))
	first := u.Top()
	require.NoError(t, u.Push(make([]byte, 300)))
	second := u.Top()

	assert.NotSame(t, first.Block, second.Block)
	assert.Equal(t, uint64(0), second.Offset)
	assert.LessOrEqual(t, second.Offset+second.Size, second.Block.Size())
}

func TestUploadAllocatorNoAliasing(t *testing.T) {
	src := &fakeBlockSource{}
	u, err := NewUploadAllocator(src, 2048, 1)
	require.NoError(t, err)

	sizes := []int{1, 300, 256, 900, 17, 2048, 513, 5}
	var views []UploadView
	for i, n := range sizes {
		require.NoError(t, u.Push(bytes.Repeat([]byte{byte(i + 1)}, n)))
		views = append(views, u.Top())
	}
	for i, v := range views {
		data := v.Bytes()
		n := sizes[i]
		assert.Equal(t, bytes.Repeat([]byte{byte(i + 1)}, n), data[:n], "push %d was overwritten", i)
		assert.Equal(t, make([]byte, len(data)-n), data[n:], "padding of push %d is zeroed", i)
	}
}

func TestUploadAllocatorClearReusesBlockZero(t *testing.T) {
	src := &fakeBlockSource{}
	u, err := NewUploadAllocator(src, 1024, 1)
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		require.NoError(t, u.Push(make([]byte, 400)))
	}
	created := src.created
	block0 := src.blocks[0]

	u.Clear()
	assert.Equal(t, UploadView{}, u.Top())
	require.NoError(t, u.Push([]byte{1, 2, 3}))
	assert.Equal(t, created, src.created)
	assert.Same(t, block0, u.Top().Block)
	assert.Equal(t, uint64(0), u.Top().Offset)
}

func TestUploadAllocatorClearCapacity(t *testing.T) {
	src := &fakeBlockSource{}
	u, err := NewUploadAllocator(src, 512, 2)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, u.Push(make([]byte, 512)))
	}
	require.Equal(t, 5, u.BlockCount())

	u.ClearCapacity()
	assert.Equal(t, 2, u.BlockCount())
	for i, b := range src.blocks {
		assert.Equal(t, i >= 2, b.released, "block %d", i)
	}

	// Fewer blocks than the reserve are never grown.
	u2, err := NewUploadAllocator(&fakeBlockSource{}, 512, 3)
	require.NoError(t, err)
	require.NoError(t, u2.Push([]byte{1}))
	u2.ClearCapacity()
	assert.Equal(t, 1, u2.BlockCount())
}

func TestUploadAllocatorBlockFailure(t *testing.T) {
	src := &fakeBlockSource{failAt: 2}
	u, err := NewUploadAllocator(src, 256, 1)
	require.NoError(t, err)

	require.NoError(t, u.Push([]byte{1}))
	err = u.Push([]byte{2})
	assert.ErrorIs(t, err, ErrDeviceFailure)
	assert.Equal(t, 1, u.BlockCount())
}

func TestUploadAllocatorRelease(t *testing.T) {
	src := &fakeBlockSource{}
	u, err := NewUploadAllocator(src, 256, 1)
	require.NoError(t, err)
	require.NoError(t, u.Push([]byte{1}))
	require.NoError(t, u.Push([]byte{2}))

	u.Release()
	assert.Equal(t, 0, u.BlockCount())
	for _, b := range src.blocks {
		assert.True(t, b.released)
	}
}
