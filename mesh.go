package vkframe

import (
	"encoding/binary"
	"fmt"
)

// Submesh is a range of a mesh's index buffer.
type Submesh struct {
	IndexCount uint32
	StartIndex uint32
	BaseVertex int32
}

// Mesh is geometry supplied by a model loader, kept in persistently mapped upload
// blocks, plus the texture resources its materials reference.
type Mesh struct {
	Vertices  VertexBufferView
	Indices   IndexBufferView
	Submeshes []Submesh
	Textures  []Resource

	blocks []UploadBlock
}

// UploadMesh copies vertices and 16-bit indices into new upload blocks. The whole
// index range becomes the only submesh.
func UploadMesh(src BlockSource, vertices []byte, stride uint32, indices []uint16) (*Mesh, error) {
	if stride == 0 || len(vertices) == 0 || uint32(len(vertices))%stride != 0 {
		return nil, fmt.Errorf("%w: %d vertex bytes with stride %d", ErrInvalidArgument, len(vertices), stride)
	}
	if len(indices) == 0 {
		return nil, fmt.Errorf("%w: mesh without indices", ErrInvalidArgument)
	}
	m := &Mesh{}
	vb, err := m.upload(src, vertices)
	if err != nil {
		return nil, err
	}
	ib := make([]byte, 0, 2*len(indices))
	for _, i := range indices {
		ib = binary.LittleEndian.AppendUint16(ib, i)
	}
	iv, err := m.upload(src, ib)
	if err != nil {
		m.Release()
		return nil, err
	}
	m.Vertices = VertexBufferView{View: vb, Stride: stride}
	m.Indices = IndexBufferView{View: iv, Format: FormatR16Uint}
	m.Submeshes = []Submesh{{IndexCount: uint32(len(indices))}}
	return m, nil
}

func (m *Mesh) upload(src BlockSource, data []byte) (UploadView, error) {
	b, err := src.CreateUploadBlock(makeAlignUp(uint64(len(data)), ConstantBufferAlignment))
	if err != nil {
		return UploadView{}, deviceErr("create mesh buffer", err)
	}
	m.blocks = append(m.blocks, b)
	copy(b.Bytes(), data)
	return UploadView{Block: b, Size: uint64(len(data))}, nil
}

// Bind sets the vertex and index buffers.
func (m *Mesh) Bind(cmd CommandList) {
	cmd.SetVertexBuffers(0, m.Vertices)
	cmd.SetIndexBuffer(m.Indices)
}

// DrawSubmesh draws submesh i; a negative i draws every submesh.
func (m *Mesh) DrawSubmesh(cmd CommandList, i int, instances uint32) {
	if i >= 0 {
		s := m.Submeshes[i]
		cmd.DrawIndexedInstanced(s.IndexCount, instances, s.StartIndex, s.BaseVertex, 0)
		return
	}
	for _, s := range m.Submeshes {
		cmd.DrawIndexedInstanced(s.IndexCount, instances, s.StartIndex, s.BaseVertex, 0)
	}
}

// CopyViews creates a shader resource view for each texture in heap starting at
// base and returns the handle of the first one.
func (m *Mesh) CopyViews(heap DescriptorHeap, base int) (DescriptorHandle, error) {
	if base < 0 || base+len(m.Textures) > heap.Len() {
		return DescriptorHandle{}, fmt.Errorf("%w: %d views at %d in a heap of %d", ErrInvalidArgument, len(m.Textures), base, heap.Len())
	}
	for i, t := range m.Textures {
		if err := heap.CreateShaderResourceView(t, base+i); err != nil {
			return DescriptorHandle{}, deviceErr("copy mesh view", err)
		}
	}
	return DescriptorHandle{Heap: heap, Index: base}, nil
}

// Release frees the geometry. Textures belong to the loader.
func (m *Mesh) Release() {
	for _, b := range m.blocks {
		b.Release()
	}
	m.blocks = nil
}

// DrawItem is one draw of a mesh with its object constants.
type DrawItem struct {
	Mesh *Mesh
	// Submesh selects one submesh; -1 draws all of them.
	Submesh   int
	Constants UploadView
	Instances uint32
}

// Draw binds the item's constants to slot and issues the draw.
func (d DrawItem) Draw(cmd CommandList, slot int) {
	if d.Constants.Block != nil {
		cmd.SetGraphicsRootConstantBufferView(slot, d.Constants)
	}
	d.Mesh.Bind(cmd)
	d.Mesh.DrawSubmesh(cmd, d.Submesh, max(d.Instances, 1))
}

// StandardVertexStride is the stride of StandardInputLayout vertices.
const StandardVertexStride = 32

// StandardInputLayout is position, normal and texture coordinate.
var StandardInputLayout = []InputElement{
	{Semantic: "POSITION", Format: FormatR32G32B32Float, Offset: 0},
	{Semantic: "NORMAL", Format: FormatR32G32B32Float, Offset: 12},
	{Semantic: "TEXCOORD", Format: FormatR32G32Float, Offset: 24},
}
