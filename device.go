// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package krnl is the public façade over the device engine, buffer
// layers, and kernel dispatch: Device, Buffer[T], Slice[T], SliceMut[T],
// ArcBuffer[T], CopyOnWrite[T], and Kernel. Everything below internal/ is
// an implementation detail; this package is the only supported entry point.
package krnl

import (
	"github.com/gogpu/krnl/internal/engine"
	"github.com/gogpu/krnl/internal/enginehal"
	"github.com/gogpu/krnl/internal/enginehal/vulkan"
)

// FeatureSet is the capability bitset a device may support or a kernel may
// require.
type FeatureSet = enginehal.FeatureSet

const (
	FeatureInt8    = enginehal.FeatureInt8
	FeatureInt16   = enginehal.FeatureInt16
	FeatureInt64   = enginehal.FeatureInt64
	FeatureFloat16 = enginehal.FeatureFloat16
	FeatureFloat64 = enginehal.FeatureFloat64
)

// Info reports what a device actually opened with.
type Info = enginehal.DeviceInfo

// Device is either the host sentinel (no Vulkan state) or a shared handle
// onto an engine. Equality between two device handles is by engine
// identity, not by index.
type Device struct {
	eng *engine.Engine
}

// Host returns the host device sentinel: buffers on Host are plain Go byte
// slices, and Kernel.Build rejects it.
func Host() *Device { return &Device{} }

// IsHost reports whether d is the host sentinel.
func (d *Device) IsHost() bool { return d == nil || d.eng == nil }

// Equal reports whether two device handles name the same underlying
// engine. Two Host() values, and two handles from the same Builder.Build
// call, are equal; handles from separate Build calls are not, even at the
// same index.
func (d *Device) Equal(other *Device) bool {
	if d.IsHost() || other.IsHost() {
		return d.IsHost() == other.IsHost()
	}
	return d.eng == other.eng
}

// Info returns what this device actually opened with. Calling it on Host
// panics, matching the "host carries no state" contract.
func (d *Device) Info() Info {
	if d.IsHost() {
		panic("krnl: Info() called on the host device")
	}
	return d.eng.Info()
}

// Wait blocks until every previously submitted operation on this device
// has completed, or returns the engine's poisoning DeviceLost error. A
// no-op on Host.
func (d *Device) Wait() error {
	if d.IsHost() {
		return nil
	}
	return d.eng.Wait()
}

func (d *Device) engineOrNil() *engine.Engine {
	if d == nil {
		return nil
	}
	return d.eng
}

// Builder configures and opens a device.
type Builder struct {
	index    int
	features FeatureSet
	appName  string
	backend  enginehal.Backend
}

// NewBuilder starts a device builder defaulting to index 0, no optional
// features, and the Vulkan backend.
func NewBuilder() *Builder {
	return &Builder{appName: "krnl"}
}

// Index selects which enumerated adapter to open.
func (b *Builder) Index(i int) *Builder {
	b.index = i
	return b
}

// Features requests optional capabilities; the device enables whatever
// subset is actually supported.
func (b *Builder) Features(f FeatureSet) *Builder {
	b.features = f
	return b
}

// AppName sets the application name reported to the Vulkan instance.
func (b *Builder) AppName(name string) *Builder {
	b.appName = name
	return b
}

// withBackend overrides the opened backend; used by tests to substitute
// the noop backend instead of initializing a real Vulkan instance.
func (b *Builder) withBackend(backend enginehal.Backend) *Builder {
	b.backend = backend
	return b
}

// Build enumerates physical devices meeting the minimum Vulkan version (>=
// 1.2), opens the adapter at Index, and returns a Device wrapping the
// resulting engine. Failure to find a Vulkan loader surfaces
// ErrDeviceUnavailable; an out-of-range index surfaces
// *DeviceIndexOutOfRangeError.
func (b *Builder) Build() (*Device, error) {
	backend := b.backend
	if backend == nil {
		opened, err := vulkan.Open(b.appName)
		if err != nil {
			return nil, engine.ErrDeviceUnavailable
		}
		backend = opened
	}

	eng, err := engine.New(engine.Options{
		DeviceIndex:     b.index,
		OptimalFeatures: b.features,
		Backend:         backend,
	})
	if err != nil {
		return nil, err
	}
	return &Device{eng: eng}, nil
}
