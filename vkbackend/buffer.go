package vkbackend

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkframe"
)

// Buffer is a Vulkan buffer with its own memory allocation.
type Buffer struct {
	Device   *Device
	VKBuffer vk.Buffer
	Size     uint64
	Memory   *DeviceMemory
}

const uploadUsage = vk.BufferUsageUniformBufferBit |
	vk.BufferUsageVertexBufferBit |
	vk.BufferUsageIndexBufferBit |
	vk.BufferUsageTransferSrcBit

const gpuBufferUsage = vk.BufferUsageTransferDstBit |
	vk.BufferUsageTransferSrcBit |
	vk.BufferUsageUniformBufferBit |
	vk.BufferUsageStorageBufferBit

func (d *Device) CreateBufferWithOptions(sizeInBytes uint64, usage vk.BufferUsageFlags, sharing vk.SharingMode) (*Buffer, error) {
	bufferCreateInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(sizeInBytes),
		Usage:       usage,
		SharingMode: sharing,
	}

	var buffer vk.Buffer
	if err := vkErr("create buffer", vk.CreateBuffer(d.VKDevice, &bufferCreateInfo, nil, &buffer)); err != nil {
		return nil, err
	}
	return &Buffer{Device: d, VKBuffer: buffer, Size: sizeInBytes}, nil
}

// createBoundBuffer creates a buffer and binds fresh memory with props to it.
func (d *Device) createBoundBuffer(size uint64, usage vk.BufferUsageFlagBits, props vk.MemoryPropertyFlagBits) (*Buffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("%w: zero sized buffer", vkframe.ErrInvalidArgument)
	}
	b, err := d.CreateBufferWithOptions(size, vk.BufferUsageFlags(usage), vk.SharingModeExclusive)
	if err != nil {
		return nil, err
	}
	mem, err := d.AllocateForBuffer(b, props)
	if err != nil {
		b.destroy()
		return nil, err
	}
	if err := b.Bind(mem, 0); err != nil {
		mem.Destroy()
		b.destroy()
		return nil, err
	}
	b.Memory = mem
	return b, nil
}

// CreateBuffer creates a device-local buffer. Buffers have no layout, so the
// initial state needs no transition.
func (d *Device) CreateBuffer(size uint64, initial vkframe.ResourceState) (vkframe.Resource, error) {
	return d.createBoundBuffer(size, gpuBufferUsage, vk.MemoryPropertyDeviceLocalBit)
}

func (b *Buffer) VKMemoryRequirements() vk.MemoryRequirements {
	var memoryRequirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(b.Device.VKDevice, b.VKBuffer, &memoryRequirements)
	return memoryRequirements
}

func (b *Buffer) AllocationRequirments() *AllocationRequirements {
	mr := b.VKMemoryRequirements()
	mr.Deref()
	return &AllocationRequirements{
		Size:           int(mr.Size),
		MemoryTypeBits: mr.MemoryTypeBits,
	}
}

func (b *Buffer) Bind(memory *DeviceMemory, offset uint64) error {
	return vkErr("bind buffer memory", vk.BindBufferMemory(b.Device.VKDevice, b.VKBuffer, memory.VKDeviceMemory, vk.DeviceSize(offset)))
}

func (b *Buffer) destroy() {
	vk.DestroyBuffer(b.Device.VKDevice, b.VKBuffer, nil)
}

func (b *Buffer) Release() {
	if b.VKBuffer == vk.NullBuffer {
		return
	}
	b.Device.forgetBuffer(b.VKBuffer)
	b.destroy()
	if b.Memory != nil {
		b.Memory.Destroy()
		b.Memory = nil
	}
	b.VKBuffer = vk.NullBuffer
}

// UploadBlock is host-visible coherent memory that stays mapped until it is
// released. It implements vkframe.UploadBlock.
type UploadBlock struct {
	Buffer
	data []byte
}

var _ vkframe.UploadBlock = (*UploadBlock)(nil)

func (d *Device) CreateUploadBlock(size uint64) (vkframe.UploadBlock, error) {
	b, err := d.createBoundBuffer(size, uploadUsage, vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit)
	if err != nil {
		return nil, err
	}
	ptr, err := b.Memory.Map()
	if err != nil {
		b.Release()
		return nil, err
	}
	return &UploadBlock{Buffer: *b, data: toBytes(ptr, int(size))}, nil
}

func (u *UploadBlock) Size() uint64  { return uint64(len(u.data)) }
func (u *UploadBlock) Bytes() []byte { return u.data }

// GPUAddress is zero: Vulkan binds upload memory by buffer and offset.
func (u *UploadBlock) GPUAddress() uint64 { return 0 }

func (u *UploadBlock) Release() {
	u.data = nil
	u.Buffer.Release()
}

// bufferOf returns the Vulkan buffer behind an upload block or GPU buffer.
func bufferOf(res vkframe.Resource) (vk.Buffer, error) {
	switch r := res.(type) {
	case *UploadBlock:
		return r.VKBuffer, nil
	case *Buffer:
		return r.VKBuffer, nil
	}
	return vk.NullBuffer, fmt.Errorf("%w: %T is not a buffer", vkframe.ErrInvalidArgument, res)
}
