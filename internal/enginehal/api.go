// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package enginehal is the hardware abstraction boundary between the device
// engine and a concrete backend (Vulkan in production, an in-process fake
// for tests). The engine never talks to a loader directly; it only calls
// through these interfaces, the way the wgpu-derived hal.Backend/hal.Device
// split keeps backend code out of the core.
package enginehal

// Backend identifies a compute backend implementation and enumerates its
// adapters. Exactly one backend (Vulkan) ships in production; enginehal/noop
// provides a second for tests that should not require a GPU.
type Backend interface {
	Name() string
	EnumerateAdapters() ([]AdapterInfo, error)
	OpenDevice(adapter AdapterInfo, want FeatureSet) (Device, error)
}

// AdapterInfo describes one physical device as enumerated by a backend.
// Only physical devices meeting the minimum API version are ever returned.
type AdapterInfo struct {
	Index         int
	Name          string
	APIVersion    uint32
	DriverVersion uint32
	Features      FeatureSet
	// HasDedicatedTransferQueue reports whether a transfer-only queue
	// family is available, distinct from the compute family.
	HasDedicatedTransferQueue bool
}

// FeatureSet is the capability bitset a device may support or a kernel may
// require, mirroring kerneldesc.Features.
type FeatureSet uint8

const (
	FeatureInt8 FeatureSet = 1 << iota
	FeatureInt16
	FeatureInt64
	FeatureFloat16
	FeatureFloat64
)

func (f FeatureSet) Contains(want FeatureSet) bool { return f&want == want }

// Intersect returns the features present in both sets, used to compute the
// subset of requested features a device actually supports.
func (f FeatureSet) Intersect(other FeatureSet) FeatureSet { return f & other }

// QueueKind selects which queue family a submission targets.
type QueueKind uint8

const (
	QueueCompute QueueKind = iota
	QueueTransfer
)

// BufferUsage is a bitset of how a device buffer may be used, matching the
// Vulkan usage flags the allocator needs to pick a memory type.
type BufferUsage uint32

const (
	BufferUsageTransferSrc BufferUsage = 1 << iota
	BufferUsageTransferDst
	BufferUsageStorage
	BufferUsageHostVisible
)

// Buffer is an opaque device buffer handle.
type Buffer interface {
	Size() uint64
}

// ShaderModule is an opaque compiled SPIR-V module handle.
type ShaderModule interface{}

// Pipeline is an opaque compute pipeline handle.
type Pipeline interface{}

// BufferBinding attaches a concrete sub-range of a device buffer to a fixed
// descriptor binding index.
type BufferBinding struct {
	Binding int
	Buffer  Buffer
	Offset  uint64
	Size    uint64
}

// DeviceInfo reports what Device actually opened with.
type DeviceInfo struct {
	Index           int
	Name            string
	Features        FeatureSet
	ComputeQueues   int
	TransferQueues  int
	MaxWorkgroup    [3]uint32
	MaxPushConstant uint32
}

// Device owns one logical device: buffer allocation, transfer, pipeline
// build and dispatch submission. All methods must be safe for concurrent
// use by multiple queue workers.
type Device interface {
	Info() DeviceInfo

	CreateBuffer(size uint64, usage BufferUsage) (Buffer, error)
	DestroyBuffer(b Buffer)

	// WriteHostVisible copies data into a host-visible buffer's mapped
	// memory at offset; the buffer must have been created with
	// BufferUsageHostVisible.
	WriteHostVisible(b Buffer, offset uint64, data []byte) error
	// ReadHostVisible copies length bytes out of a host-visible buffer's
	// mapped memory at offset.
	ReadHostVisible(b Buffer, offset, length uint64) ([]byte, error)

	// CopyBuffer records and submits a device-side copy on the given
	// queue, returning the fence value that will be signaled on
	// completion.
	CopyBuffer(src, dst Buffer, srcOffset, dstOffset, size uint64, queue QueueKind) (uint64, error)

	// Flush submits a fence-only marker on queue covering every host-side
	// write (WriteHostVisible/ReadHostVisible) issued so far, returning the
	// fence value a caller can wait on for those writes to be visible to
	// the device. Used by upload/download, which move bytes through
	// coherent mapped memory without a copy command of their own.
	Flush(queue QueueKind) (uint64, error)

	CreateShaderModule(spirv []uint32) (ShaderModule, error)
	DestroyShaderModule(m ShaderModule)

	CreateComputePipeline(module ShaderModule, entryPoint string, pushConstantBytes uint32, bindingCount int) (Pipeline, error)
	DestroyComputePipeline(p Pipeline)

	// Dispatch records and submits groups workgroups of pipeline with the
	// given bindings and push-constant bytes on the given queue, returning
	// the fence value signaled on completion.
	Dispatch(pipeline Pipeline, groups [3]uint32, bindings []BufferBinding, pushConstants []byte, queue QueueKind) (uint64, error)

	CompletedFence(queue QueueKind) uint64
	WaitFence(queue QueueKind, value uint64) error
	WaitIdle() error

	Destroy()
}
