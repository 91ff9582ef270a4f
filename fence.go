package vkframe

import (
	"fmt"
	"time"
)

// Fence is a monotonic CPU/GPU checkpoint counter. The value returned by Signal
// is reached by the GPU once every command submitted before it has finished.
type Fence struct {
	obj       FenceObject
	submitted uint64
	observed  uint64
	timeout   time.Duration
}

func NewFence(obj FenceObject, timeout time.Duration) *Fence {
	c := obj.CompletedValue()
	return &Fence{obj: obj, submitted: c, observed: c, timeout: timeout}
}

// Signal enqueues the next checkpoint on q and returns its value. When the
// queue rejects the signal the counter is left untouched.
func (f *Fence) Signal(q Queue) (uint64, error) {
	next := f.submitted + 1
	if err := q.Signal(f.obj, next); err != nil {
		return 0, deviceErr("fence signal", err)
	}
	f.submitted = next
	return next, nil
}

// Completed returns the largest value the GPU has been seen to reach.
func (f *Fence) Completed() uint64 {
	if v := f.obj.CompletedValue(); v > f.observed {
		f.observed = min(v, f.submitted)
	}
	return f.observed
}

func (f *Fence) LastSubmitted() uint64 { return f.submitted }

// WaitForCheckpoint returns at once when k has already been reached and otherwise
// blocks for at most the fence timeout.
func (f *Fence) WaitForCheckpoint(k uint64) error {
	if f.Completed() >= k {
		return nil
	}
	if k > f.submitted {
		return fmt.Errorf("%w: checkpoint %d was never signalled (last %d)", ErrInvalidArgument, k, f.submitted)
	}
	Logger().Debug("vkframe: waiting for fence", "checkpoint", k, "completed", f.observed)
	ok, err := f.obj.Wait(k, f.timeout)
	if err != nil {
		return deviceErr("fence wait", err)
	}
	if !ok {
		return fmt.Errorf("%w: checkpoint %d not reached after %v", ErrDeviceLost, k, f.timeout)
	}
	f.Completed()
	return nil
}

// Flush signals a new checkpoint and waits for it, draining the queue.
func (f *Fence) Flush(q Queue) error {
	v, err := f.Signal(q)
	if err != nil {
		return err
	}
	return f.WaitForCheckpoint(v)
}

func (f *Fence) Release() {
	if f.obj != nil {
		f.obj.Release()
		f.obj = nil
	}
}
