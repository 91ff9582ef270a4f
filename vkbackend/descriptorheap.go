package vkbackend

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkframe"
)

// heapEntry is one slot of a DescriptorHeap: an image view or a buffer range.
type heapEntry struct {
	view   *ImageView
	buffer vk.Buffer
	offset uint64
	size   uint64
}

// DescriptorHeap is a CPU-side table of views. Render passes read render target
// and depth views from it; descriptor tables are turned into descriptor sets
// when they are bound.
type DescriptorHeap struct {
	Device  *Device
	kind    vkframe.HeapKind
	entries []heapEntry
}

var _ vkframe.DescriptorHeap = (*DescriptorHeap)(nil)

func (d *Device) CreateDescriptorHeap(kind vkframe.HeapKind, count int) (vkframe.DescriptorHeap, error) {
	if count <= 0 {
		return nil, fmt.Errorf("%w: descriptor heap of %d entries", vkframe.ErrInvalidArgument, count)
	}
	return &DescriptorHeap{Device: d, kind: kind, entries: make([]heapEntry, count)}, nil
}

func (h *DescriptorHeap) Kind() vkframe.HeapKind { return h.kind }
func (h *DescriptorHeap) Len() int               { return len(h.entries) }

func (h *DescriptorHeap) entry(i int) (*heapEntry, error) {
	if i < 0 || i >= len(h.entries) {
		return nil, fmt.Errorf("%w: descriptor index %d out of range [0,%d)", vkframe.ErrInvalidArgument, i, len(h.entries))
	}
	return &h.entries[i], nil
}

// clear destroys whatever slot i holds and drops the framebuffers and
// descriptor sets built from it.
func (h *DescriptorHeap) clear(e *heapEntry) {
	if e.view != nil {
		h.Device.passes.evictView(e.view.VKImageView)
		e.view.Destroy()
	}
	*e = heapEntry{}
	h.Device.forgetHeap(h)
}

func (h *DescriptorHeap) createView(res vkframe.Resource, i int, mask func(*Image) vk.ImageAspectFlags) error {
	e, err := h.entry(i)
	if err != nil {
		return err
	}
	img, err := imageOf(res)
	if err != nil {
		return err
	}
	view, err := img.CreateImageViewWithAspectMask(mask(img))
	if err != nil {
		return err
	}
	h.clear(e)
	e.view = view
	return nil
}

func (h *DescriptorHeap) CreateRenderTargetView(res vkframe.Resource, i int) error {
	return h.createView(res, i, func(img *Image) vk.ImageAspectFlags {
		return vk.ImageAspectFlags(vk.ImageAspectColorBit)
	})
}

func (h *DescriptorHeap) CreateDepthStencilView(res vkframe.Resource, i int) error {
	return h.createView(res, i, func(img *Image) vk.ImageAspectFlags {
		return aspectMask(img.Format)
	})
}

// CreateShaderResourceView views depth formats through their depth aspect only.
func (h *DescriptorHeap) CreateShaderResourceView(res vkframe.Resource, i int) error {
	return h.createView(res, i, func(img *Image) vk.ImageAspectFlags {
		if isDepthFormat(img.Format) {
			return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
		}
		return vk.ImageAspectFlags(vk.ImageAspectColorBit)
	})
}

func (h *DescriptorHeap) CreateConstantBufferView(view vkframe.UploadView, size uint64, i int) error {
	e, err := h.entry(i)
	if err != nil {
		return err
	}
	buf, err := bufferOf(view.Block)
	if err != nil {
		return err
	}
	if size == 0 || view.Offset+size > view.Block.Size() {
		return fmt.Errorf("%w: constant buffer view [%d,%d) exceeds block", vkframe.ErrInvalidArgument, view.Offset, view.Offset+size)
	}
	h.clear(e)
	e.buffer, e.offset, e.size = buf, view.Offset, size
	return nil
}

// imageView returns the view stored at the handle, or nil for a zero handle.
func imageView(handle vkframe.DescriptorHandle) *ImageView {
	if !handle.Valid() {
		return nil
	}
	h, ok := handle.Heap.(*DescriptorHeap)
	if !ok || handle.Index < 0 || handle.Index >= len(h.entries) {
		return nil
	}
	return h.entries[handle.Index].view
}

func (h *DescriptorHeap) Release() {
	for i := range h.entries {
		if h.entries[i].view != nil {
			h.Device.passes.evictView(h.entries[i].view.VKImageView)
			h.entries[i].view.Destroy()
		}
	}
	h.entries = nil
	h.Device.forgetHeap(h)
}

// references reports whether a constant buffer view in h points into buf.
func (h *DescriptorHeap) references(buf vk.Buffer) bool {
	for i := range h.entries {
		if h.entries[i].buffer == buf {
			return true
		}
	}
	return false
}
