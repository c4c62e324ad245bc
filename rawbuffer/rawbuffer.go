// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package rawbuffer provides an untyped byte-range view over either a host
// allocation or an engine-owned device buffer. It is the layer the typed
// buffer façade (Buffer[T]/Slice[T]) is built on: it tracks only a
// scalar.Type tag, a capacity, and which side of the host/device boundary
// currently backs the bytes.
package rawbuffer

import (
	"errors"
	"fmt"

	"github.com/gogpu/krnl/internal/engine"
	"github.com/gogpu/krnl/scalar"
)

// SliceOnDeviceError reports an attempt to view a device-resident buffer as
// host bytes.
type SliceOnDeviceError struct {
	DeviceIndex int
}

func (e *SliceOnDeviceError) Error() string {
	return fmt.Sprintf("rawbuffer: buffer resides on device %d, not accessible as a host slice", e.DeviceIndex)
}

var errCrossEngineTransfer = errors.New("rawbuffer: cannot move a buffer directly between two different engines")

// Buffer is an untyped view over host memory or an engine device buffer.
// Two Buffers produced by SplitAt share the same underlying allocation.
type Buffer struct {
	scalarType scalar.Type
	host       []byte
	dev        *engine.DeviceBuffer
	devOffset  uint64
	length     uint64
}

// OnDevice reports whether the buffer is currently device-resident.
func (b *Buffer) OnDevice() bool { return b.dev != nil }

// ScalarType returns the element type this buffer was allocated with.
func (b *Buffer) ScalarType() scalar.Type { return b.scalarType }

// LenBytes returns the view's length in bytes.
func (b *Buffer) LenBytes() uint64 { return b.length }

// Len returns the view's length in elements.
func (b *Buffer) Len() int { return int(b.length) / b.scalarType.SizeBytes() }

// Engine returns the backing engine, or nil when the buffer is host-resident.
func (b *Buffer) Engine() *engine.Engine {
	if b.dev == nil {
		return nil
	}
	return b.dev.Engine()
}

// Device returns the underlying engine device buffer and this view's byte
// offset into it. Only valid when OnDevice() is true.
func (b *Buffer) Device() (buf *engine.DeviceBuffer, offset uint64) { return b.dev, b.devOffset }

// Alloc allocates n elements of t. dev == nil allocates zeroed host memory;
// otherwise n*t.SizeBytes() bytes are allocated through the engine.
func Alloc(dev *engine.Engine, t scalar.Type, n int) (*Buffer, error) {
	nbytes := uint64(n) * uint64(t.SizeBytes())
	if dev == nil {
		return &Buffer{scalarType: t, host: make([]byte, nbytes), length: nbytes}, nil
	}
	db, err := dev.Alloc(nbytes)
	if err != nil {
		return nil, err
	}
	return &Buffer{scalarType: t, dev: db, length: nbytes}, nil
}

// FromHostBytes wraps an existing host allocation of elements of type t.
// len(data) must be a multiple of t.SizeBytes().
func FromHostBytes(t scalar.Type, data []byte) (*Buffer, error) {
	if len(data)%t.SizeBytes() != 0 {
		return nil, fmt.Errorf("rawbuffer: length %d is not a multiple of %s size %d", len(data), t, t.SizeBytes())
	}
	return &Buffer{scalarType: t, host: data, length: uint64(len(data))}, nil
}

// Future is an awaitable handle for an async transfer, returning the
// resulting Buffer once the underlying submission completes.
type Future struct {
	result     *Buffer
	completion *engine.Completion
	download   *engine.DownloadCompletion
}

// Wait blocks until the transfer completes and returns the resulting Buffer.
func (f *Future) Wait() (*Buffer, error) {
	if f.download != nil {
		data, err := f.download.Bytes()
		if err != nil {
			return nil, err
		}
		f.result.host = data
		return f.result, nil
	}
	if f.completion != nil {
		if err := f.completion.Wait(); err != nil {
			return nil, err
		}
	}
	return f.result, nil
}

func immediate(b *Buffer) *Future { return &Future{result: b} }

// ToDevice resolves the buffer against target (nil means host):
//   - already on target: returns self unchanged, no copy.
//   - host -> device: allocates a device buffer and uploads.
//   - device -> host: downloads into a fresh host allocation.
func (b *Buffer) ToDevice(target *engine.Engine) (*Future, error) {
	switch {
	case target == nil && b.dev == nil:
		return immediate(b), nil
	case target != nil && b.dev != nil && b.dev.Engine() == target:
		return immediate(b), nil
	case target != nil && b.dev == nil:
		db, err := target.Alloc(b.length)
		if err != nil {
			return nil, err
		}
		upload, err := target.Upload(db, b.host)
		if err != nil {
			return nil, err
		}
		return &Future{result: &Buffer{scalarType: b.scalarType, dev: db, length: b.length}, completion: upload}, nil
	case target == nil && b.dev != nil:
		download, err := b.dev.Engine().Download(b.dev)
		if err != nil {
			return nil, err
		}
		return &Future{result: &Buffer{scalarType: b.scalarType, length: b.length}, download: download}, nil
	default:
		return nil, errCrossEngineTransfer
	}
}

// AsHostSlice returns the backing bytes, failing if the buffer is device
// resident.
func (b *Buffer) AsHostSlice() ([]byte, error) {
	if b.dev != nil {
		return nil, &SliceOnDeviceError{DeviceIndex: b.dev.Engine().Index()}
	}
	return b.host, nil
}

// SplitAt splits the buffer at element index mid into two views sharing the
// same allocation. Panics if mid exceeds the buffer's length, surfacing the
// condition explicitly rather than silently truncating.
func (b *Buffer) SplitAt(mid int) (left, right *Buffer) {
	midBytes := uint64(mid) * uint64(b.scalarType.SizeBytes())
	if midBytes > b.length {
		panic(fmt.Sprintf("rawbuffer: SplitAt(%d): index exceeds length %d", mid, b.Len()))
	}

	if b.dev != nil {
		b.dev.Retain()
		b.dev.Retain()
		left = &Buffer{scalarType: b.scalarType, dev: b.dev, devOffset: b.devOffset, length: midBytes}
		right = &Buffer{scalarType: b.scalarType, dev: b.dev, devOffset: b.devOffset + midBytes, length: b.length - midBytes}
		return left, right
	}

	left = &Buffer{scalarType: b.scalarType, host: b.host[:midBytes:midBytes], length: midBytes}
	right = &Buffer{scalarType: b.scalarType, host: b.host[midBytes:b.length:b.length], length: b.length - midBytes}
	return left, right
}

// Release drops this view's reference to its device buffer. A no-op for
// host-resident buffers, which are reclaimed by the garbage collector.
func (b *Buffer) Release() {
	if b.dev != nil {
		b.dev.Release()
	}
}
