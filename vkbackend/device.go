package vkbackend

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkframe"
)

// Device is a logical Vulkan device with a single graphics queue. It implements
// vkframe.Device.
type Device struct {
	PhysicalDevice *PhysicalDevice
	VKDevice       vk.Device

	family *QueueFamily
	queue  *Queue
	caps   vkframe.Capabilities
	limits vk.PhysicalDeviceLimits

	// depthStencil replaces D24S8 on devices that cannot attach it.
	depthStencil vk.Format

	pool          *CommandPool
	passes        *renderPassCache
	pipelineCache *PipelineCache

	rootSignatures map[*RootSignature]struct{}
}

var _ vkframe.Device = (*Device)(nil)

func newDevice(p *PhysicalDevice, ldevice vk.Device, family *QueueFamily) (*Device, error) {
	d := &Device{
		PhysicalDevice: p,
		VKDevice:       ldevice,
		family:         family,
		limits:         p.VKPhysicalDeviceProperties.Limits,
		// Predication stays off; see CommandList.SetPredication.
		caps: vkframe.Capabilities{
			Raytracing: raytracingTier(p.extensions),
		},
		rootSignatures: make(map[*RootSignature]struct{}),
	}
	d.queue = d.GetQueue(family)
	d.passes = newRenderPassCache(ldevice)
	d.depthStencil = d.chooseDepthStencil()

	pool, err := d.CreateCommandPool(family)
	if err != nil {
		vk.DestroyDevice(ldevice, nil)
		return nil, err
	}
	d.pool = pool

	cache, err := d.CreatePipelineCache()
	if err != nil {
		pool.Release()
		vk.DestroyDevice(ldevice, nil)
		return nil, err
	}
	d.pipelineCache = cache

	vkframe.Logger().Info("vkbackend: device created",
		"device", p.DeviceName,
		"queueFamily", family.Index,
		"raytracing", d.caps.Raytracing,
		"depthStencil", d.depthStencil)
	return d, nil
}

func (d *Device) String() string {
	return fmt.Sprintf("{ PhysicalDevice: %s }", d.PhysicalDevice)
}

func (d *Device) Capabilities() vkframe.Capabilities { return d.caps }

func (d *Device) chooseDepthStencil() vk.Format {
	var props vk.FormatProperties
	vk.GetPhysicalDeviceFormatProperties(d.PhysicalDevice.VKPhysicalDevice, vk.FormatD24UnormS8Uint, &props)
	props.Deref()
	if props.OptimalTilingFeatures&vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit) != 0 {
		return vk.FormatD24UnormS8Uint
	}
	return vk.FormatD32SfloatS8Uint
}

// format maps f to the Vulkan format used for images on this device.
func (d *Device) format(f vkframe.Format) vk.Format {
	if f == vkframe.FormatD24UnormS8Uint {
		return d.depthStencil
	}
	return vkFormat(f)
}

// MultisampleQualityLevels reports one level for every supported sample count;
// Vulkan has no vendor quality levels.
func (d *Device) MultisampleQualityLevels(format vkframe.Format, sampleCount int) (int, error) {
	bit, ok := sampleCountBit(sampleCount)
	if !ok {
		return 0, nil
	}
	counts := d.limits.FramebufferColorSampleCounts
	if isDepthFormat(format) {
		counts = d.limits.FramebufferDepthSampleCounts
	}
	if counts&vk.SampleCountFlags(bit) == 0 {
		return 0, nil
	}
	return 1, nil
}

func (d *Device) WaitIdle() {
	vk.DeviceWaitIdle(d.VKDevice)
}

func (d *Device) GetQueue(qf *QueueFamily) *Queue {
	var vkq vk.Queue
	vk.GetDeviceQueue(d.VKDevice, uint32(qf.Index), 0, &vkq)
	return &Queue{Device: d, QueueFamily: qf, VKQueue: vkq}
}

// CreateCommandQueue returns the device's only queue; repeated calls return the
// same queue.
func (d *Device) CreateCommandQueue() (vkframe.Queue, error) {
	return d.queue, nil
}

// submitOnce records a command buffer with record and waits for the queue to
// drain after submitting it.
func (d *Device) submitOnce(record func(cb vk.CommandBuffer)) error {
	cb, err := d.pool.AllocateBuffer()
	if err != nil {
		return err
	}
	defer d.pool.FreeBuffer(cb)

	if err := cb.BeginOneTime(); err != nil {
		return err
	}
	record(cb.VKCommandBuffer)
	if err := cb.End(); err != nil {
		return err
	}
	return d.queue.SubmitWaitIdle(cb)
}

type AllocationRequirements struct {
	Size           int
	MemoryTypeBits uint32
}

func (d *Device) AllocateForBuffer(b *Buffer, props vk.MemoryPropertyFlagBits) (*DeviceMemory, error) {
	ar := b.AllocationRequirments()
	return d.Allocate(ar.Size, ar.MemoryTypeBits, props)
}

func (d *Device) Allocate(sizeInBytes int, memoryTypeBits uint32, props vk.MemoryPropertyFlagBits) (*DeviceMemory, error) {
	typeIndex, err := d.PhysicalDevice.FindMemoryType(memoryTypeBits, props)
	if err != nil {
		return nil, err
	}
	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(sizeInBytes),
		MemoryTypeIndex: typeIndex,
	}

	var deviceMemory vk.DeviceMemory
	if err := vkErr("allocate memory", vk.AllocateMemory(d.VKDevice, &allocateInfo, nil, &deviceMemory)); err != nil {
		return nil, err
	}
	return &DeviceMemory{Device: d, VKDeviceMemory: deviceMemory, Size: uint64(sizeInBytes)}, nil
}

// forgetBuffer drops every cached descriptor set that references buf.
func (d *Device) forgetBuffer(buf vk.Buffer) {
	for rs := range d.rootSignatures {
		rs.forgetBuffer(buf)
	}
}

// forgetHeap drops every cached descriptor set built from h.
func (d *Device) forgetHeap(h *DescriptorHeap) {
	for rs := range d.rootSignatures {
		rs.forgetHeap(h)
	}
}

// Release waits for the device to go idle and destroys it. Every object created
// from the device must have been released first.
func (d *Device) Release() {
	if d.VKDevice == nil {
		return
	}
	d.WaitIdle()
	d.queue.release()
	d.passes.release()
	d.pipelineCache.Destroy()
	d.pool.Release()
	vk.DestroyDevice(d.VKDevice, nil)
	d.VKDevice = nil
	vkframe.Logger().Info("vkbackend: device released", "device", d.PhysicalDevice.DeviceName)
}
