package vkframe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadMesh(t *testing.T) {
	src := &fakeBlockSource{}
	vertices := make([]byte, 4*StandardVertexStride)
	vertices[0] = 0xaa
	m, err := UploadMesh(src, vertices, StandardVertexStride, []uint16{0, 1, 2, 0x0302})
	require.NoError(t, err)

	require.Len(t, src.blocks, 2)
	assert.Equal(t, uint64(len(vertices)), m.Vertices.View.Size)
	assert.Equal(t, byte(0xaa), m.Vertices.View.Bytes()[0])
	assert.Equal(t, uint32(StandardVertexStride), m.Vertices.Stride)

	assert.Equal(t, FormatR16Uint, m.Indices.Format)
	assert.Equal(t, []byte{0, 0, 1, 0, 2, 0, 2, 3}, m.Indices.View.Bytes())
	assert.Equal(t, []Submesh{{IndexCount: 4}}, m.Submeshes)

	m.Release()
	assert.True(t, src.blocks[0].released)
	assert.True(t, src.blocks[1].released)
}

func TestUploadMeshInvalid(t *testing.T) {
	src := &fakeBlockSource{}
	_, err := UploadMesh(src, make([]byte, 33), StandardVertexStride, []uint16{0})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = UploadMesh(src, make([]byte, 32), 0, []uint16{0})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = UploadMesh(src, make([]byte, 32), StandardVertexStride, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Zero(t, src.created)
}

func TestUploadMeshIndexFailure(t *testing.T) {
	src := &fakeBlockSource{failAt: 2}
	_, err := UploadMesh(src, make([]byte, 32), StandardVertexStride, []uint16{0})
	assert.ErrorIs(t, err, ErrDeviceFailure)
	require.Len(t, src.blocks, 1)
	assert.True(t, src.blocks[0].released)
}

func TestMeshDraw(t *testing.T) {
	m := testMesh(t, &fakeBlockSource{})
	m.Submeshes = append(m.Submeshes, Submesh{IndexCount: 3, StartIndex: 3})

	cmd := &fakeCmdList{}
	DrawItem{Mesh: m, Submesh: 1}.Draw(cmd, 1)
	assert.Equal(t, []string{"draw"}, cmd.ops)

	cmd.ops = nil
	DrawItem{Mesh: m, Submesh: -1}.Draw(cmd, 1)
	assert.Equal(t, []string{"draw", "draw"}, cmd.ops)
}

func TestMeshCopyViews(t *testing.T) {
	m := &Mesh{Textures: []Resource{&fakeResource{name: "a"}, &fakeResource{name: "b"}}}
	heap := &fakeHeap{kind: HeapCBVSRVUAV, n: 4, views: map[int]Resource{}}

	h, err := m.CopyViews(heap, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, h.Index)
	assert.Equal(t, m.Textures[0], heap.views[2])
	assert.Equal(t, m.Textures[1], heap.views[3])

	_, err = m.CopyViews(heap, 3)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = m.CopyViews(heap, -1)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
