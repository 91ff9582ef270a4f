package vkframe

import (
	"fmt"
)

// MaxFrameSlots is the deepest frame ring supported.
const MaxFrameSlots = 4

// ConstantRegion is one slot's share of the ring's constant buffer.
type ConstantRegion struct {
	block  UploadBlock
	base   uint64
	stride uint64
	count  int
}

func (r ConstantRegion) Len() int       { return r.count }
func (r ConstantRegion) Stride() uint64 { return r.stride }

// View addresses element i of the region.
func (r ConstantRegion) View(i int) UploadView {
	if i < 0 || i >= r.count {
		panic(fmt.Sprintf("vkframe: constant element %d out of range [0,%d)", i, r.count))
	}
	return UploadView{Block: r.block, Offset: r.base + uint64(i)*r.stride, Size: r.stride}
}

// Write copies data into element i, zeroing the rest of the element.
func (r ConstantRegion) Write(i int, data []byte) error {
	if i < 0 || i >= r.count {
		return fmt.Errorf("%w: constant element %d out of range [0,%d)", ErrInvalidArgument, i, r.count)
	}
	if uint64(len(data)) > r.stride {
		return fmt.Errorf("%w: %d bytes exceed constant stride %d", ErrInvalidArgument, len(data), r.stride)
	}
	dst := r.View(i).Bytes()
	n := copy(dst, data)
	clear(dst[n:])
	return nil
}

// FrameSlot holds everything one in-flight frame writes. None of it may be reused
// before the GPU reaches FenceValue.
type FrameSlot struct {
	Index      int
	Allocator  CommandAllocator
	FenceValue uint64
	Constants  ConstantRegion
	Uploads    *UploadAllocator
}

// FrameRing cycles through the slots of the frames in flight.
type FrameRing struct {
	slots   []*FrameSlot
	current int
	backing UploadBlock
	stride  uint64
}

// NewFrameRing creates slotCount slots sharing one constant buffer of
// totalElementCount elements of bufferStride bytes, split evenly between slots.
func NewFrameRing(device Device, slotCount int, bufferStride uint64, totalElementCount int, uploadBlockSize uint64, uploadReserve int) (*FrameRing, error) {
	if slotCount < 1 || slotCount > MaxFrameSlots {
		return nil, fmt.Errorf("%w: %d frame slots, supported [1,%d]", ErrInvalidArgument, slotCount, MaxFrameSlots)
	}
	if totalElementCount < 0 || totalElementCount%slotCount != 0 {
		return nil, fmt.Errorf("%w: %d constant elements cannot be split across %d slots", ErrInvalidArgument, totalElementCount, slotCount)
	}
	if totalElementCount > 0 && bufferStride == 0 {
		return nil, fmt.Errorf("%w: zero constant stride", ErrInvalidArgument)
	}

	r := &FrameRing{stride: makeAlignUp(max(bufferStride, 1), ConstantBufferAlignment)}
	if totalElementCount > 0 {
		b, err := device.CreateUploadBlock(uint64(totalElementCount) * r.stride)
		if err != nil {
			return nil, deviceErr("create frame constants", err)
		}
		r.backing = b
	}

	perSlot := totalElementCount / slotCount
	for i := 0; i < slotCount; i++ {
		alloc, err := device.CreateCommandAllocator()
		if err != nil {
			r.Release()
			return nil, deviceErr("create frame allocator", err)
		}
		uploads, err := NewUploadAllocator(device, uploadBlockSize, uploadReserve)
		if err != nil {
			alloc.Release()
			r.Release()
			return nil, err
		}
		r.slots = append(r.slots, &FrameSlot{
			Index:     i,
			Allocator: alloc,
			Uploads:   uploads,
			Constants: ConstantRegion{
				block:  r.backing,
				base:   uint64(i*perSlot) * r.stride,
				stride: r.stride,
				count:  perSlot,
			},
		})
	}
	return r, nil
}

func (r *FrameRing) Len() int            { return len(r.slots) }
func (r *FrameRing) Current() *FrameSlot { return r.slots[r.current] }
func (r *FrameRing) Slot(i int) *FrameSlot {
	return r.slots[i]
}

// Advance moves to the next slot.
func (r *FrameRing) Advance() {
	r.current = (r.current + 1) % len(r.slots)
}

// Begin waits until the GPU is done with the current slot, then resets its
// allocator and clears its uploads.
func (r *FrameRing) Begin(fence *Fence) (*FrameSlot, error) {
	s := r.Current()
	if err := fence.WaitForCheckpoint(s.FenceValue); err != nil {
		return nil, err
	}
	if err := s.Allocator.Reset(); err != nil {
		return nil, deviceErr("reset frame allocator", err)
	}
	s.Uploads.Clear()
	return s, nil
}

// End signals a checkpoint for the current slot and advances the ring.
func (r *FrameRing) End(fence *Fence, q Queue) error {
	v, err := fence.Signal(q)
	if err != nil {
		return err
	}
	r.Current().FenceValue = v
	r.Advance()
	return nil
}

// TrimUploads releases upload blocks beyond each slot's reserve. Every slot must
// be idle, so callers flush the queue first.
func (r *FrameRing) TrimUploads() {
	for _, s := range r.slots {
		s.Uploads.ClearCapacity()
	}
}

func (r *FrameRing) Release() {
	for _, s := range r.slots {
		s.Uploads.Release()
		s.Allocator.Release()
	}
	r.slots = nil
	if r.backing != nil {
		r.backing.Release()
		r.backing = nil
	}
}
