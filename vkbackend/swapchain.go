package vkbackend

import (
	"fmt"
	"time"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkframe"
)

// SurfaceTarget is a present target that can create a Vulkan surface for
// itself, such as a glfw window.
type SurfaceTarget interface {
	vkframe.PresentTarget
	CreateWindowSurface(instance interface{}, allocCallbacks unsafe.Pointer) (uintptr, error)
}

// swapImage is an image owned by the presentation engine.
type swapImage struct {
	Image
}

// Release does nothing; the swap chain destroys its images.
func (*swapImage) Release() {}

// Swapchain implements vkframe.SwapChain. The presentation engine chooses
// which image comes next, so it also reports CurrentBackBufferIndex.
type Swapchain struct {
	Device      *Device
	Queue       *Queue
	VKSwapchain vk.Swapchain
	Surface     vk.Surface
	Format      vk.SurfaceFormat
	Extent      vk.Extent2D

	desc   vkframe.SwapChainDesc
	mode   vk.PresentMode
	images []*swapImage

	// acquire semaphores rotate; renderDone has one per image and is
	// signalled right before that image is presented.
	acquire    []vk.Semaphore
	nextSem    int
	renderDone []vk.Semaphore
	current    uint32
	acquired   bool
}

func (d *Device) CreateSwapChain(queue vkframe.Queue, target vkframe.PresentTarget, desc vkframe.SwapChainDesc) (vkframe.SwapChain, error) {
	q, ok := queue.(*Queue)
	if !ok {
		return nil, fmt.Errorf("%w: queue %T is not a vkbackend queue", vkframe.ErrInvalidArgument, queue)
	}
	st, ok := target.(SurfaceTarget)
	if !ok {
		return nil, fmt.Errorf("%w: present target %T cannot create a surface", vkframe.ErrInvalidArgument, target)
	}
	if desc.BufferCount <= 0 {
		return nil, fmt.Errorf("%w: swap chain of %d buffers", vkframe.ErrInvalidArgument, desc.BufferCount)
	}

	instance := d.PhysicalDevice.backend.VKInstance
	ptr, err := st.CreateWindowSurface(instance, nil)
	if err != nil {
		return nil, fmt.Errorf("vkbackend: create window surface: %w", err)
	}
	surface := vk.SurfaceFromPointer(ptr)
	if !d.family.SupportsPresent(surface) {
		vk.DestroySurface(instance, surface, nil)
		return nil, fmt.Errorf("%w: queue family %d cannot present to the surface", vkframe.ErrNotImplemented, d.family.Index)
	}

	s := &Swapchain{Device: d, Queue: q, Surface: surface, desc: desc}
	if err := s.chooseFormat(vkFormat(desc.Format)); err != nil {
		s.Release()
		return nil, err
	}
	modes, err := d.PhysicalDevice.surfacePresentModes(surface)
	if err != nil {
		s.Release()
		return nil, err
	}
	s.mode = choosePresentMode(modes, desc.AllowTearing)

	if err := s.create(desc.BufferCount, desc.Width, desc.Height); err != nil {
		s.Release()
		return nil, err
	}
	vkframe.Logger().Info("vkbackend: swap chain created",
		"images", len(s.images),
		"width", s.Extent.Width,
		"height", s.Extent.Height,
		"format", s.Format.Format,
		"presentMode", s.mode)
	return s, nil
}

func (s *Swapchain) chooseFormat(want vk.Format) error {
	formats, err := s.Device.PhysicalDevice.surfaceFormats(s.Surface)
	if err != nil {
		return err
	}
	if len(formats) == 0 {
		return fmt.Errorf("%w: surface reports no formats", vkframe.ErrDeviceFailure)
	}
	s.Format = formats[0]
	for _, f := range formats {
		if f.Format == want {
			s.Format = f
			return nil
		}
	}
	if !(len(formats) == 1 && formats[0].Format == vk.FormatUndefined) {
		return fmt.Errorf("%w: surface does not support format %v", vkframe.ErrNotImplemented, want)
	}
	s.Format.Format = want
	return nil
}

// swapExtent clamps the requested size to what the surface allows. A surface
// that reports its own extent wins.
func swapExtent(caps vk.SurfaceCapabilities, width, height int) vk.Extent2D {
	if caps.CurrentExtent.Width != vk.MaxUint32 {
		return caps.CurrentExtent
	}
	clamp := func(v int, lo, hi uint32) uint32 {
		return min(max(uint32(max(v, 0)), lo), hi)
	}
	return vk.Extent2D{
		Width:  clamp(width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: clamp(height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

// imageCount clamps n to the surface limits; MaxImageCount zero means no limit.
func imageCount(caps vk.SurfaceCapabilities, n int) uint32 {
	c := max(uint32(n), caps.MinImageCount)
	if caps.MaxImageCount > 0 {
		c = min(c, caps.MaxImageCount)
	}
	return c
}

func compositeAlpha(supported vk.CompositeAlphaFlags) vk.CompositeAlphaFlagBits {
	for _, f := range []vk.CompositeAlphaFlagBits{
		vk.CompositeAlphaOpaqueBit,
		vk.CompositeAlphaPreMultipliedBit,
		vk.CompositeAlphaPostMultipliedBit,
		vk.CompositeAlphaInheritBit,
	} {
		if supported&vk.CompositeAlphaFlags(f) != 0 {
			return f
		}
	}
	return vk.CompositeAlphaOpaqueBit
}

// create builds the swap chain, replacing the current one if there is one, and
// acquires the first image.
func (s *Swapchain) create(count, width, height int) error {
	d := s.Device
	caps, err := d.PhysicalDevice.surfaceCapabilities(s.Surface)
	if err != nil {
		return err
	}
	extent := swapExtent(caps, width, height)
	if extent.Width == 0 || extent.Height == 0 {
		return fmt.Errorf("%w: swap chain of size %dx%d", vkframe.ErrInvalidArgument, extent.Width, extent.Height)
	}

	old := s.VKSwapchain
	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          s.Surface,
		MinImageCount:    imageCount(caps, count),
		ImageFormat:      s.Format.Format,
		ImageColorSpace:  s.Format.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   compositeAlpha(caps.SupportedCompositeAlpha),
		PresentMode:      s.mode,
		Clipped:          vk.True,
		OldSwapchain:     old,
	}
	var swapchain vk.Swapchain
	if err := vkErr("create swapchain", vk.CreateSwapchain(d.VKDevice, &createInfo, nil, &swapchain)); err != nil {
		return err
	}
	if old != vk.NullSwapchain {
		vk.DestroySwapchain(d.VKDevice, old, nil)
	}
	s.VKSwapchain, s.Extent = swapchain, extent

	var n uint32
	if err := vkErr("get swapchain images", vk.GetSwapchainImages(d.VKDevice, swapchain, &n, nil)); err != nil {
		return err
	}
	if int(n) != count {
		return fmt.Errorf("%w: presentation engine made %d images, %d requested", vkframe.ErrNotImplemented, n, count)
	}
	vkImages := make([]vk.Image, n)
	if err := vkErr("get swapchain images", vk.GetSwapchainImages(d.VKDevice, swapchain, &n, vkImages)); err != nil {
		return err
	}
	s.images = make([]*swapImage, n)
	for i, img := range vkImages {
		s.images[i] = &swapImage{Image{
			Device:    d,
			VKImage:   img,
			VKFormat:  s.Format.Format,
			Format:    s.desc.Format,
			Extent:    extent,
			Samples:   vk.SampleCount1Bit,
			undefined: true,
		}}
	}

	d.VKDestroySemaphores(s.acquire)
	d.VKDestroySemaphores(s.renderDone)
	s.acquire, s.renderDone = nil, nil
	if s.acquire, err = d.VKCreateSemaphores(int(n) + 1); err != nil {
		return err
	}
	if s.renderDone, err = d.VKCreateSemaphores(int(n)); err != nil {
		return err
	}
	s.nextSem = 0
	return s.acquireNext()
}

func (s *Swapchain) acquireNext() error {
	sem := s.acquire[s.nextSem]
	var idx uint32
	res := vk.AcquireNextImage(s.Device.VKDevice, s.VKSwapchain, acquireTimeout(s.desc.Timeout), sem, vk.NullFence, &idx)
	switch res {
	case vk.Success, vk.Suboptimal:
	case vk.ErrorOutOfDate:
		s.acquired = false
		vkframe.Logger().Warn("vkbackend: swap chain out of date, waiting for a resize")
		return nil
	default:
		return acquireErr(res, s.desc.Timeout)
	}
	s.nextSem = (s.nextSem + 1) % len(s.acquire)
	s.current, s.acquired = idx, true
	s.Queue.setAcquired(sem)
	return nil
}

// acquireTimeout converts a wait bound to nanoseconds, zero meaning forever.
func acquireTimeout(d time.Duration) uint64 {
	if d <= 0 {
		return vk.MaxUint64
	}
	return uint64(d.Nanoseconds())
}

// acquireErr maps a failed acquire. A presentation engine that hands out no
// image within the bound is treated like a lost device.
func acquireErr(res vk.Result, timeout time.Duration) error {
	switch res {
	case vk.Timeout, vk.NotReady:
		return fmt.Errorf("%w: no swap chain image within %v", vkframe.ErrDeviceLost, timeout)
	}
	return vkErr("acquire next image", res)
}

func (s *Swapchain) CurrentBackBufferIndex() int { return int(s.current) }

func (s *Swapchain) Buffer(i int) (vkframe.Resource, error) {
	if i < 0 || i >= len(s.images) {
		return nil, fmt.Errorf("%w: swap chain buffer %d of %d", vkframe.ErrInvalidArgument, i, len(s.images))
	}
	return s.images[i], nil
}

// Present queues the current image and acquires the next one. The present
// mode is fixed when the swap chain is created, so syncInterval and
// allowTearing only matter through SwapChainDesc.AllowTearing.
func (s *Swapchain) Present(syncInterval int, allowTearing bool) error {
	if allowTearing && !s.desc.AllowTearing {
		return fmt.Errorf("%w: tearing present on a swap chain created without it", vkframe.ErrInvalidArgument)
	}
	if !s.acquired {
		return s.acquireNext()
	}
	wait := s.renderDone[s.current]
	if err := s.Queue.signalPresent(wait); err != nil {
		return err
	}
	info := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{wait},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{s.VKSwapchain},
		PImageIndices:      []uint32{s.current},
	}
	s.acquired = false
	switch res := vk.QueuePresent(s.Queue.VKQueue, &info); res {
	case vk.Success:
	case vk.Suboptimal, vk.ErrorOutOfDate:
		vkframe.Logger().Debug("vkbackend: present reported a stale swap chain", "result", res)
	default:
		return vkErr("queue present", res)
	}
	return s.acquireNext()
}

// ResizeBuffers recreates the swap chain at the new size. A zero count keeps
// the current number of buffers.
func (s *Swapchain) ResizeBuffers(count, width, height int) error {
	if count == 0 {
		count = len(s.images)
	}
	s.Device.WaitIdle()
	s.Queue.release()
	s.acquired = false
	return s.create(count, width, height)
}

func (s *Swapchain) Release() {
	d := s.Device
	if s.VKSwapchain != vk.NullSwapchain || s.acquire != nil {
		d.WaitIdle()
	}
	if s.Queue != nil {
		s.Queue.release()
	}
	d.VKDestroySemaphores(s.acquire)
	d.VKDestroySemaphores(s.renderDone)
	s.acquire, s.renderDone, s.images = nil, nil, nil
	if s.VKSwapchain != vk.NullSwapchain {
		vk.DestroySwapchain(d.VKDevice, s.VKSwapchain, nil)
		s.VKSwapchain = vk.NullSwapchain
	}
	if s.Surface != vk.NullSurface {
		vk.DestroySurface(d.PhysicalDevice.backend.VKInstance, s.Surface, nil)
		s.Surface = vk.NullSurface
	}
}
