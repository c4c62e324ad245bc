// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package engine

import (
	"github.com/gogpu/krnl/internal/engine/track"
	"github.com/gogpu/krnl/internal/enginehal"
)

// BufferArg binds one DeviceBuffer sub-range to the binding index equal to
// its position in the slice.
type BufferArg struct {
	Buffer  *DeviceBuffer
	Offset  uint64
	Size    uint64
	Mutable bool
}

// Dispatch submits groups workgroups of pipeline against bufs with the
// given packed push-constant bytes. A dispatch with any zero group
// dimension is elided: it returns a handle that is already complete and
// issues no backend call.
func (e *Engine) Dispatch(pipeline *Pipeline, groups [3]uint32, bufs []BufferArg, pushBytes []byte) (*Completion, error) {
	if groups[0] == 0 || groups[1] == 0 || groups[2] == 0 {
		return &Completion{engine: e, queue: enginehal.QueueCompute, fenceValue: 0}, nil
	}

	dev, guard, err := e.device()
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	bindings := make([]enginehal.BufferBinding, len(bufs))
	for i, b := range bufs {
		usage := track.UsesStorageRead
		if b.Mutable {
			usage = track.UsesStorageWrite
		}
		e.recordUse(b.Buffer.id, usage)
		bindings[i] = enginehal.BufferBinding{Binding: i, Buffer: b.Buffer.raw, Offset: b.Offset, Size: b.Size}
	}

	fence, err := dev.Dispatch(pipeline.handle, groups, bindings, pushBytes, enginehal.QueueCompute)
	if err != nil {
		if err == enginehal.ErrDeviceLost {
			return nil, e.poison(err)
		}
		return nil, err
	}
	return &Completion{engine: e, queue: enginehal.QueueCompute, fenceValue: fence}, nil
}
