package vkframe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFenceSignalIncrements(t *testing.T) {
	obj := &fakeFence{}
	q := &fakeQueue{}
	f := NewFence(obj, time.Second)

	v, err := f.Signal(q)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)
	v, err = f.Signal(q)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v)
	assert.Equal(t, []uint64{1, 2}, q.signals)
	assert.Equal(t, uint64(2), f.LastSubmitted())
}

func TestFenceFailedSignalDoesNotAdvance(t *testing.T) {
	obj := &fakeFence{}
	q := &fakeQueue{signalErr: errFake}
	f := NewFence(obj, time.Second)

	_, err := f.Signal(q)
	assert.ErrorIs(t, err, ErrDeviceFailure)
	assert.ErrorIs(t, err, errFake)
	assert.Equal(t, uint64(0), f.LastSubmitted())

	q.signalErr = nil
	v, err := f.Signal(q)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v, "next checkpoint is still reachable")
}

func TestFenceWaitReachedDoesNotBlock(t *testing.T) {
	obj := &fakeFence{}
	q := &fakeQueue{}
	f := NewFence(obj, time.Second)
	f.Signal(q)
	f.Signal(q)
	obj.completed = 2

	require.NoError(t, f.WaitForCheckpoint(1))
	require.NoError(t, f.WaitForCheckpoint(2))
	assert.Equal(t, 0, obj.waits)
}

func TestFenceWaitBlocksWhenBehind(t *testing.T) {
	obj := &fakeFence{}
	q := &fakeQueue{}
	f := NewFence(obj, time.Second)
	f.Signal(q)

	require.NoError(t, f.WaitForCheckpoint(1))
	assert.Equal(t, 1, obj.waits)
	assert.Equal(t, uint64(1), f.Completed())
}

func TestFenceWaitTimeoutIsDeviceLost(t *testing.T) {
	obj := &fakeFence{hang: true}
	q := &fakeQueue{}
	f := NewFence(obj, time.Millisecond)
	f.Signal(q)

	err := f.WaitForCheckpoint(1)
	assert.ErrorIs(t, err, ErrDeviceLost)
}

func TestFenceWaitUnsignalledValue(t *testing.T) {
	f := NewFence(&fakeFence{}, time.Second)
	assert.ErrorIs(t, f.WaitForCheckpoint(3), ErrInvalidArgument)
	assert.NoError(t, f.WaitForCheckpoint(0))
}

func TestFenceCompletedMonotonic(t *testing.T) {
	obj := &fakeFence{}
	q := &fakeQueue{}
	f := NewFence(obj, time.Second)
	for i := 0; i < 4; i++ {
		f.Signal(q)
	}

	var last uint64
	for _, c := range []uint64{1, 3, 2, 4, 0} {
		obj.completed = c
		got := f.Completed()
		assert.GreaterOrEqual(t, got, last)
		last = got
	}
	assert.Equal(t, uint64(4), last)
}

func TestFenceFlush(t *testing.T) {
	obj := &fakeFence{}
	q := &fakeQueue{}
	f := NewFence(obj, time.Second)

	require.NoError(t, f.Flush(q))
	assert.Equal(t, uint64(1), f.Completed())
	assert.Equal(t, 1, obj.waits)
}
