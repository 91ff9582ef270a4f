package vkbackend

import (
	"fmt"
	"slices"

	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkframe"
)

const (
	extSwapchain          = "VK_KHR_swapchain"
	extMaintenance1       = "VK_KHR_maintenance1"
	extRaytracingPipeline = "VK_KHR_ray_tracing_pipeline"
	extRayQuery           = "VK_KHR_ray_query"
)

// PhysicalDevice is an enumerated GPU; it implements vkframe.Adapter.
type PhysicalDevice struct {
	DeviceName                 string
	VKPhysicalDevice           vk.PhysicalDevice
	VKPhysicalDeviceProperties vk.PhysicalDeviceProperties

	backend    *Backend
	index      int
	memory     vk.PhysicalDeviceMemoryProperties
	extensions []string
}

var _ vkframe.Adapter = (*PhysicalDevice)(nil)

func newPhysicalDevice(b *Backend, index int, pd vk.PhysicalDevice) *PhysicalDevice {
	p := &PhysicalDevice{backend: b, index: index, VKPhysicalDevice: pd}
	vk.GetPhysicalDeviceProperties(pd, &p.VKPhysicalDeviceProperties)
	p.VKPhysicalDeviceProperties.Deref()
	p.VKPhysicalDeviceProperties.Limits.Deref()
	p.DeviceName = vk.ToString(p.VKPhysicalDeviceProperties.DeviceName[:])

	vk.GetPhysicalDeviceMemoryProperties(pd, &p.memory)
	p.memory.Deref()

	exts, err := p.SupportedExtensions()
	if err != nil {
		vkframe.Logger().Warn("vkbackend: device extensions unavailable", "device", p.DeviceName, "err", err)
	}
	p.extensions = exts
	return p
}

func (p *PhysicalDevice) String() string {
	return p.DeviceName
}

func (p *PhysicalDevice) Info() vkframe.AdapterInfo {
	props := p.VKPhysicalDeviceProperties
	heaps := make([]vk.MemoryHeap, p.memory.MemoryHeapCount)
	for i := range heaps {
		heaps[i] = p.memory.MemoryHeaps[i]
		heaps[i].Deref()
	}
	return vkframe.AdapterInfo{
		Index:           p.index,
		Name:            p.DeviceName,
		Software:        props.DeviceType == vk.PhysicalDeviceTypeCpu,
		VendorID:        props.VendorID,
		DeviceID:        props.DeviceID,
		DedicatedMemory: deviceLocalBytes(heaps),
	}
}

func deviceLocalBytes(heaps []vk.MemoryHeap) uint64 {
	var n uint64
	for _, h := range heaps {
		if h.Flags&vk.MemoryHeapFlags(vk.MemoryHeapDeviceLocalBit) != 0 {
			n += uint64(h.Size)
		}
	}
	return n
}

// apiVersionFor maps a feature level to the Vulkan API version a device must
// report to provide it.
func apiVersionFor(level vkframe.FeatureLevel) uint32 {
	switch level {
	case vkframe.FeatureLevel11_1:
		return vk.MakeVersion(1, 1, 0)
	case vkframe.FeatureLevel12_0:
		return vk.MakeVersion(1, 2, 0)
	case vkframe.FeatureLevel12_1:
		return vk.MakeVersion(1, 3, 0)
	}
	return vk.MakeVersion(1, 0, 0)
}

func raytracingTier(extensions []string) vkframe.RaytracingTier {
	if !slices.Contains(extensions, extRaytracingPipeline) {
		return vkframe.RaytracingNotSupported
	}
	if slices.Contains(extensions, extRayQuery) {
		return vkframe.RaytracingTier1_1
	}
	return vkframe.RaytracingTier1_0
}

func (p *PhysicalDevice) QueueFamilies() QueueFamilySlice {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(p.VKPhysicalDevice, &count, nil)
	if count == 0 {
		return nil
	}
	props := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(p.VKPhysicalDevice, &count, props)

	ret := make(QueueFamilySlice, count)
	for i := range props {
		ret[i] = &QueueFamily{Index: i, PhysicalDevice: p, VKQueueFamilyProperties: props[i]}
		ret[i].VKQueueFamilyProperties.Deref()
	}
	return ret
}

// CreateDevice creates a logical device with one graphics queue. It fails when
// the reported API version is below the one level requires.
func (p *PhysicalDevice) CreateDevice(level vkframe.FeatureLevel) (vkframe.Device, error) {
	if p.VKPhysicalDeviceProperties.ApiVersion < apiVersionFor(level) {
		return nil, fmt.Errorf("%w: %s does not support feature level %v", vkframe.ErrNotImplemented, p.DeviceName, level)
	}
	if !slices.Contains(p.extensions, extSwapchain) {
		return nil, fmt.Errorf("%w: %s has no %s", vkframe.ErrNotImplemented, p.DeviceName, extSwapchain)
	}

	gqueues := p.QueueFamilies().FilterGraphics()
	if len(gqueues) == 0 {
		return nil, fmt.Errorf("%w: no graphics capable queues found on device: %v", vkframe.ErrNotImplemented, p)
	}
	family := gqueues[0]

	queueCreateInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: uint32(family.Index),
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}

	// Negative viewport heights need maintenance1 on a 1.0 instance.
	extensions := []string{extSwapchain}
	if slices.Contains(p.extensions, extMaintenance1) {
		extensions = append(extensions, extMaintenance1)
	} else {
		vkframe.Logger().Warn("vkbackend: device lacks "+extMaintenance1+", viewports will not be flipped", "device", p.DeviceName)
	}
	extensions = safeStrings(extensions)
	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{p.VKPhysicalDeviceFeatures()},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
	}

	var ldevice vk.Device
	if err := vkErr("create device", vk.CreateDevice(p.VKPhysicalDevice, &deviceCreateInfo, nil, &ldevice)); err != nil {
		return nil, err
	}
	return newDevice(p, ldevice, family)
}

func (p *PhysicalDevice) VKPhysicalDeviceFeatures() vk.PhysicalDeviceFeatures {
	var deviceFeatures vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(p.VKPhysicalDevice, &deviceFeatures)
	deviceFeatures.Deref()
	return deviceFeatures
}

func (p *PhysicalDevice) FindMemoryType(memoryTypeBits uint32, properties vk.MemoryPropertyFlagBits) (uint32, error) {
	mp := p.memory
	var i uint32
	for i = 0; i < mp.MemoryTypeCount; i++ {
		mt := mp.MemoryTypes[i]
		mt.Deref()
		if memoryTypeBits&(1<<i) != 0 &&
			vk.MemoryPropertyFlagBits(mt.PropertyFlags)&properties == properties {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: no memory type with properties %#x", vkframe.ErrDeviceFailure, properties)
}

func (p *PhysicalDevice) SupportedExtensions() ([]string, error) {
	var count uint32
	if err := vkErr("enumerate device extensions", vk.EnumerateDeviceExtensionProperties(p.VKPhysicalDevice, "", &count, nil)); err != nil {
		return nil, err
	}
	props := make([]vk.ExtensionProperties, count)
	if err := vkErr("enumerate device extensions", vk.EnumerateDeviceExtensionProperties(p.VKPhysicalDevice, "", &count, props)); err != nil {
		return nil, err
	}
	names := make([]string, 0, count)
	for _, ext := range props {
		ext.Deref()
		names = append(names, vk.ToString(ext.ExtensionName[:]))
	}
	return names, nil
}

func (p *PhysicalDevice) surfaceCapabilities(surface vk.Surface) (vk.SurfaceCapabilities, error) {
	var caps vk.SurfaceCapabilities
	err := vkErr("get surface capabilities", vk.GetPhysicalDeviceSurfaceCapabilities(p.VKPhysicalDevice, surface, &caps))
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()
	return caps, err
}

func (p *PhysicalDevice) surfaceFormats(surface vk.Surface) ([]vk.SurfaceFormat, error) {
	var count uint32
	if err := vkErr("get surface formats", vk.GetPhysicalDeviceSurfaceFormats(p.VKPhysicalDevice, surface, &count, nil)); err != nil {
		return nil, err
	}
	f := make([]vk.SurfaceFormat, count)
	if err := vkErr("get surface formats", vk.GetPhysicalDeviceSurfaceFormats(p.VKPhysicalDevice, surface, &count, f)); err != nil {
		return nil, err
	}
	for i := range f {
		f[i].Deref()
	}
	return f, nil
}

func (p *PhysicalDevice) surfacePresentModes(surface vk.Surface) ([]vk.PresentMode, error) {
	var count uint32
	if err := vkErr("get present modes", vk.GetPhysicalDeviceSurfacePresentModes(p.VKPhysicalDevice, surface, &count, nil)); err != nil {
		return nil, err
	}
	m := make([]vk.PresentMode, count)
	if err := vkErr("get present modes", vk.GetPhysicalDeviceSurfacePresentModes(p.VKPhysicalDevice, surface, &count, m)); err != nil {
		return nil, err
	}
	return m, nil
}
