package vkbackend

import (
	"fmt"
	"time"

	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkframe"
)

// Fence is a monotonic counter built from binary Vulkan fences: each Signal
// submits one fence tagged with the value it completes. It implements
// vkframe.FenceObject.
type Fence struct {
	Device *Device

	completed uint64
	pending   []pendingFence
	free      []vk.Fence
}

type pendingFence struct {
	value uint64
	fence vk.Fence
}

var _ vkframe.FenceObject = (*Fence)(nil)

func (d *Device) VKGetFenceStatus(f vk.Fence) vk.Result {
	return vk.GetFenceStatus(d.VKDevice, f)
}

func (d *Device) VKDestroyFence(f vk.Fence) {
	vk.DestroyFence(d.VKDevice, f, nil)
}

func (d *Device) VKCreateFence(signaled bool) (vk.Fence, error) {
	fenceCreateInfo := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	if signaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	if err := vkErr("create fence", vk.CreateFence(d.VKDevice, &fenceCreateInfo, nil, &fence)); err != nil {
		return vk.NullFence, err
	}
	return fence, nil
}

func (d *Device) CreateFence(initial uint64) (vkframe.FenceObject, error) {
	return &Fence{Device: d, completed: initial}, nil
}

// take returns an unsignalled fence, reusing a completed one when possible.
func (f *Fence) take() (vk.Fence, error) {
	if n := len(f.free); n > 0 {
		vkf := f.free[n-1]
		f.free = f.free[:n-1]
		return vkf, nil
	}
	return f.Device.VKCreateFence(false)
}

// poll retires signalled fences in submission order.
func (f *Fence) poll() error {
	for len(f.pending) > 0 {
		p := f.pending[0]
		res := f.Device.VKGetFenceStatus(p.fence)
		if res == vk.NotReady {
			return nil
		}
		if err := vkErr("get fence status", res); err != nil {
			return err
		}
		if err := vkErr("reset fence", vk.ResetFences(f.Device.VKDevice, 1, []vk.Fence{p.fence})); err != nil {
			return err
		}
		f.free = append(f.free, p.fence)
		f.pending = f.pending[1:]
		if p.value > f.completed {
			f.completed = p.value
		}
	}
	return nil
}

func (f *Fence) CompletedValue() uint64 {
	if err := f.poll(); err != nil {
		vkframe.Logger().Warn("vkbackend: fence poll failed", "err", err)
	}
	return f.completed
}

// Wait blocks on the first submitted fence whose value reaches value. Waiting
// for a value that was never signalled is an error rather than a hang.
func (f *Fence) Wait(value uint64, timeout time.Duration) (bool, error) {
	if err := f.poll(); err != nil {
		return false, err
	}
	if f.completed >= value {
		return true, nil
	}

	idx := -1
	for i, p := range f.pending {
		if p.value >= value {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, fmt.Errorf("%w: fence value %d was never signalled", vkframe.ErrInvalidArgument, value)
	}

	res := vk.WaitForFences(f.Device.VKDevice, 1, []vk.Fence{f.pending[idx].fence}, vk.True, uint64(timeout.Nanoseconds()))
	if res == vk.Timeout {
		return false, nil
	}
	if err := vkErr("wait for fences", res); err != nil {
		return false, err
	}
	if err := f.poll(); err != nil {
		return false, err
	}
	return f.completed >= value, nil
}

func (f *Fence) Release() {
	for _, p := range f.pending {
		f.Device.VKDestroyFence(p.fence)
	}
	for _, vkf := range f.free {
		f.Device.VKDestroyFence(vkf)
	}
	f.pending, f.free = nil, nil
}
