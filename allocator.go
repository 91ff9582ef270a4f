package vkframe

import (
	"fmt"
)

// ConstantBufferAlignment is the placement granularity of every upload.
const ConstantBufferAlignment = 256

func makeAlignUp(a uint64, align uint64) uint64 {
	m := a % align
	if m == 0 {
		return a
	}
	return (a - m) + align
}

// UploadView locates a pushed allocation.
type UploadView struct {
	Block  UploadBlock
	Offset uint64
	Size   uint64
}

// GPUAddress is the device address of the view when the backend exposes one.
func (v UploadView) GPUAddress() uint64 {
	if v.Block == nil {
		return 0
	}
	return v.Block.GPUAddress() + v.Offset
}

// Bytes returns the mapped memory behind the view.
func (v UploadView) Bytes() []byte {
	if v.Block == nil {
		return nil
	}
	return v.Block.Bytes()[v.Offset : v.Offset+v.Size]
}

func (v UploadView) String() string {
	return fmt.Sprintf("[%d %d]", v.Offset, v.Size)
}

// UploadAllocator hands out aligned, persistently mapped upload memory from a stack
// of fixed-size blocks. A single push never spans two blocks.
type UploadAllocator struct {
	source    BlockSource
	blockSize uint64
	reserve   int

	blocks  []UploadBlock
	current int
	cursor  uint64
	top     UploadView
}

func NewUploadAllocator(source BlockSource, blockSize uint64, reserve int) (*UploadAllocator, error) {
	if blockSize < ConstantBufferAlignment || blockSize%ConstantBufferAlignment != 0 {
		return nil, fmt.Errorf("%w: upload block size %d", ErrInvalidArgument, blockSize)
	}
	if reserve < 0 {
		return nil, fmt.Errorf("%w: upload reserve %d", ErrInvalidArgument, reserve)
	}
	return &UploadAllocator{source: source, blockSize: blockSize, reserve: reserve}, nil
}

// Push copies data into the current block, rolling to the next block when the
// aligned size does not fit. The resulting view is returned by Top.
func (u *UploadAllocator) Push(data []byte) error {
	size := uint64(len(data))
	if size > u.blockSize {
		return fmt.Errorf("%w: push of %d bytes exceeds block size %d", ErrInvalidArgument, size, u.blockSize)
	}
	aligned := makeAlignUp(max(size, 1), ConstantBufferAlignment)

	if len(u.blocks) == 0 || u.cursor+aligned > u.blockSize {
		next := u.current + 1
		if len(u.blocks) == 0 {
			next = 0
		}
		if next == len(u.blocks) {
			b, err := u.source.CreateUploadBlock(u.blockSize)
			if err != nil {
				return deviceErr("create upload block", err)
			}
			u.blocks = append(u.blocks, b)
			Logger().Debug("vkframe: upload block allocated", "blocks", len(u.blocks), "size", u.blockSize)
		}
		u.current = next
		u.cursor = 0
	}

	b := u.blocks[u.current]
	dst := b.Bytes()[u.cursor : u.cursor+aligned]
	n := copy(dst, data)
	clear(dst[n:])

	u.top = UploadView{Block: b, Offset: u.cursor, Size: aligned}
	u.cursor += aligned
	return nil
}

// Top returns the view produced by the most recent Push.
func (u *UploadAllocator) Top() UploadView { return u.top }

// Clear rewinds to block 0 and keeps every block for reuse. The fence checkpoint
// guarding the memory must have been reached.
func (u *UploadAllocator) Clear() {
	u.current = 0
	u.cursor = 0
	u.top = UploadView{}
}

// ClearCapacity clears and releases every block beyond the reserve.
func (u *UploadAllocator) ClearCapacity() {
	u.Clear()
	if len(u.blocks) <= u.reserve {
		return
	}
	for _, b := range u.blocks[u.reserve:] {
		b.Release()
	}
	clear(u.blocks[u.reserve:])
	u.blocks = u.blocks[:u.reserve]
}

func (u *UploadAllocator) BlockCount() int   { return len(u.blocks) }
func (u *UploadAllocator) BlockSize() uint64 { return u.blockSize }
func (u *UploadAllocator) Reserve() int      { return u.reserve }

// Release frees all blocks.
func (u *UploadAllocator) Release() {
	for _, b := range u.blocks {
		b.Release()
	}
	u.blocks = nil
	u.Clear()
}
