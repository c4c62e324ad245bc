// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package krnl

import (
	"sync"

	"github.com/gogpu/krnl/rawbuffer"
)

// ArcBuffer is the shared typed buffer variant: immutable, cloned cheaply,
// with a lifetime extending to its longest-lived holder.
type ArcBuffer[T Numeric] struct {
	shared *arcState[T]
}

type arcState[T Numeric] struct {
	mu   sync.Mutex
	refs int
	raw  *rawbuffer.Buffer
}

// NewArcBuffer wraps owned, giving up direct ownership in exchange for a
// shared handle with an initial reference count of 1.
func NewArcBuffer[T Numeric](owned *Buffer[T]) ArcBuffer[T] {
	return ArcBuffer[T]{shared: &arcState[T]{refs: 1, raw: owned.raw}}
}

// Clone increments the shared reference count and returns a new handle
// onto the same underlying buffer.
func (a ArcBuffer[T]) Clone() ArcBuffer[T] {
	a.shared.mu.Lock()
	a.shared.refs++
	a.shared.mu.Unlock()
	return a
}

// AsSlice borrows the shared buffer immutably; concurrent AsSlice calls
// from any clone are always permitted.
func (a ArcBuffer[T]) AsSlice() Slice[T] { return Slice[T]{raw: a.shared.raw} }

// RefCount reports the current number of live holders.
func (a ArcBuffer[T]) RefCount() int {
	a.shared.mu.Lock()
	defer a.shared.mu.Unlock()
	return a.shared.refs
}

// IntoBuffer drops this handle's reference. If it was the last holder, it
// extracts the unique underlying buffer; otherwise it clones the device
// data into a fresh owned buffer.
func (a ArcBuffer[T]) IntoBuffer() (*Buffer[T], error) {
	a.shared.mu.Lock()
	a.shared.refs--
	remaining := a.shared.refs
	raw := a.shared.raw
	a.shared.mu.Unlock()

	if remaining == 0 {
		return &Buffer[T]{raw: raw}, nil
	}
	return cloneRaw[T](raw)
}

// cloneRaw produces an independent copy of raw's contents. Host buffers are
// copied directly; device buffers round-trip through a fresh host
// allocation so the clone never aliases the original's storage.
func cloneRaw[T Numeric](raw *rawbuffer.Buffer) (*Buffer[T], error) {
	if !raw.OnDevice() {
		hostBytes, err := raw.AsHostSlice()
		if err != nil {
			return nil, err
		}
		cp := make([]byte, len(hostBytes))
		copy(cp, hostBytes)
		clone, err := rawbuffer.FromHostBytes(raw.ScalarType(), cp)
		if err != nil {
			return nil, err
		}
		return &Buffer[T]{raw: clone}, nil
	}

	target := raw.Engine()
	downloadFuture, err := raw.ToDevice(nil)
	if err != nil {
		return nil, err
	}
	hostCopy, err := downloadFuture.Wait()
	if err != nil {
		return nil, err
	}
	uploadFuture, err := hostCopy.ToDevice(target)
	if err != nil {
		return nil, err
	}
	clone, err := uploadFuture.Wait()
	if err != nil {
		return nil, err
	}
	return &Buffer[T]{raw: clone}, nil
}
