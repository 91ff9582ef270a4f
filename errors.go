package vkframe

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument reports bad caller-supplied sizes or counts.
	ErrInvalidArgument = errors.New("vkframe: invalid argument")
	// ErrNotImplemented reports a requested device feature that no adapter provides.
	ErrNotImplemented = errors.New("vkframe: not implemented")
	// ErrDeviceFailure wraps any failing call into the graphics backend.
	ErrDeviceFailure = errors.New("vkframe: device failure")
	// ErrDeviceLost is returned when a fence wait exceeds its timeout. It is fatal.
	ErrDeviceLost = errors.New("vkframe: device lost")
)

// deviceErr tags a backend error as ErrDeviceFailure while keeping the cause reachable.
func deviceErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrDeviceFailure, op, err)
}
