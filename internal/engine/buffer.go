// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package engine

import (
	"fmt"
	"sync/atomic"

	"github.com/gogpu/krnl/internal/engine/track"
	"github.com/gogpu/krnl/internal/enginehal"
)

// DeviceBuffer is a reference-counted device allocation rooted in the
// engine that created it. User handles and sub-slices hold counted
// references, never raw back-pointers into the allocator.
type DeviceBuffer struct {
	id     uint64
	engine *Engine
	raw    enginehal.Buffer
	size   uint64
	refs   atomic.Int64
}

// Engine returns the owning engine, used to check buffer/engine identity
// before a dispatch.
func (b *DeviceBuffer) Engine() *Engine { return b.engine }

// Size is the buffer's byte capacity.
func (b *DeviceBuffer) Size() uint64 { return b.size }

// Retain adds a reference and returns the buffer, for the common
// retain-and-store call pattern.
func (b *DeviceBuffer) Retain() *DeviceBuffer {
	b.refs.Add(1)
	return b
}

// Release drops a reference. The backing allocation is freed back to the
// allocator when the last reference is released.
func (b *DeviceBuffer) Release() {
	if b.refs.Add(-1) == 0 {
		b.engine.freeBuffer(b)
	}
}

// Alloc allocates nbytes of device-local, storage-capable memory. The
// returned buffer starts with one reference.
func (e *Engine) Alloc(nbytes uint64) (*DeviceBuffer, error) {
	dev, guard, err := e.device()
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	raw, err := dev.CreateBuffer(nbytes, enginehal.BufferUsageStorage|enginehal.BufferUsageTransferSrc|enginehal.BufferUsageTransferDst)
	if err != nil {
		if err == enginehal.ErrDeviceLost {
			return nil, e.poison(err)
		}
		return nil, &OutOfMemoryError{BytesRequested: nbytes, Backing: "device"}
	}

	buf := &DeviceBuffer{id: e.nextBufferID.Add(1), engine: e, raw: raw, size: nbytes}
	buf.refs.Store(1)
	return buf, nil
}

func (e *Engine) freeBuffer(b *DeviceBuffer) {
	dev, guard, err := e.device()
	if err != nil {
		return // engine already poisoned/destroyed; nothing to free
	}
	defer guard.Release()
	dev.DestroyBuffer(b.raw)
	e.trackerMu.Lock()
	e.tracker.Forget(b.id)
	e.trackerMu.Unlock()
}

func (e *Engine) recordUse(id uint64, usage track.Uses) track.Transition {
	e.trackerMu.Lock()
	defer e.trackerMu.Unlock()
	return e.tracker.Use(id, usage)
}

// Upload queues a host-to-device copy into buf and returns a completion
// handle. buf must have capacity >= len(hostBytes).
func (e *Engine) Upload(buf *DeviceBuffer, hostBytes []byte) (*Completion, error) {
	if uint64(len(hostBytes)) > buf.Size() {
		return nil, fmt.Errorf("engine: upload of %d bytes exceeds buffer capacity %d", len(hostBytes), buf.Size())
	}
	dev, guard, err := e.device()
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	e.recordUse(buf.id, track.UsesCopyDst)
	if err := dev.WriteHostVisible(buf.raw, 0, hostBytes); err != nil {
		if err == enginehal.ErrDeviceLost {
			return nil, e.poison(err)
		}
		return nil, fmt.Errorf("engine: upload: %w", err)
	}
	fence, err := dev.Flush(enginehal.QueueTransfer)
	if err != nil {
		if err == enginehal.ErrDeviceLost {
			return nil, e.poison(err)
		}
		return nil, fmt.Errorf("engine: upload fence: %w", err)
	}
	return &Completion{engine: e, queue: enginehal.QueueTransfer, fenceValue: fence}, nil
}

// Download queues a device-to-host copy of the full buffer contents and
// returns a future completion that produces the host bytes.
func (e *Engine) Download(buf *DeviceBuffer) (*DownloadCompletion, error) {
	dev, guard, err := e.device()
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	e.recordUse(buf.id, track.UsesMapRead)
	fence, err := dev.Flush(enginehal.QueueTransfer)
	if err != nil {
		if err == enginehal.ErrDeviceLost {
			return nil, e.poison(err)
		}
		return nil, fmt.Errorf("engine: download fence: %w", err)
	}
	return &DownloadCompletion{
		Completion: Completion{engine: e, queue: enginehal.QueueTransfer, fenceValue: fence},
		read: func() ([]byte, error) {
			d, g, err := e.device()
			if err != nil {
				return nil, err
			}
			defer g.Release()
			return d.ReadHostVisible(buf.raw, 0, buf.Size())
		},
	}, nil
}

// Transfer queues a device-to-device copy between two buffers of the same
// engine and equal length.
func (e *Engine) Transfer(src, dst *DeviceBuffer) (*Completion, error) {
	if src.engine != e || dst.engine != e {
		return nil, fmt.Errorf("engine: transfer requires both buffers to belong to engine %d", e.index)
	}
	if src.Size() != dst.Size() {
		return nil, fmt.Errorf("engine: transfer requires equal length, got %d and %d", src.Size(), dst.Size())
	}
	dev, guard, err := e.device()
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	e.recordUse(src.id, track.UsesCopySrc)
	e.recordUse(dst.id, track.UsesCopyDst)
	fence, err := dev.CopyBuffer(src.raw, dst.raw, 0, 0, src.Size(), enginehal.QueueTransfer)
	if err != nil {
		if err == enginehal.ErrDeviceLost {
			return nil, e.poison(err)
		}
		return nil, fmt.Errorf("engine: transfer: %w", err)
	}
	return &Completion{engine: e, queue: enginehal.QueueTransfer, fenceValue: fence}, nil
}
