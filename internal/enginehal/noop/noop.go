// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package noop is an in-process fake enginehal.Backend. It performs real
// copies and dispatch bookkeeping against plain Go byte slices instead of a
// GPU, so the engine and kernel packages can be exercised in tests that do
// not require a Vulkan-capable machine, the way hal/noop backed the
// teacher's own HAL tests.
package noop

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/krnl/internal/enginehal"
)

// Backend is the noop enginehal.Backend implementation.
type Backend struct{}

func (Backend) Name() string { return "noop" }

func (Backend) EnumerateAdapters() ([]enginehal.AdapterInfo, error) {
	return []enginehal.AdapterInfo{{
		Index:                     0,
		Name:                      "noop virtual device",
		APIVersion:                1<<22 | 2<<12, // 1.2.0, Vulkan version encoding
		Features:                  enginehal.FeatureInt8 | enginehal.FeatureInt16 | enginehal.FeatureInt64 | enginehal.FeatureFloat16 | enginehal.FeatureFloat64,
		HasDedicatedTransferQueue: true,
	}}, nil
}

func (Backend) OpenDevice(adapter enginehal.AdapterInfo, want enginehal.FeatureSet) (enginehal.Device, error) {
	return &Device{
		index:    adapter.Index,
		features: adapter.Features.Intersect(want),
	}, nil
}

// buffer is a fake device buffer backed by a plain Go byte slice.
type buffer struct {
	mu   sync.Mutex
	data []byte
}

func (b *buffer) Size() uint64 { return uint64(len(b.data)) }

// Device is the noop enginehal.Device implementation. All "submissions"
// execute synchronously and bump a monotonically increasing fence counter
// kept per queue kind, satisfying the program-order guarantee the real engine relies on
// without any actual concurrency.
type Device struct {
	index    int
	features enginehal.FeatureSet

	fenceMu        sync.Mutex
	completedFence [2]uint64 // indexed by enginehal.QueueKind

	lost atomic.Bool

	pipelines sync.Map // Pipeline -> *pipelineState
}

type pipelineState struct {
	entryPoint        string
	pushConstantBytes uint32
	bindingCount      int
}

func (d *Device) Info() enginehal.DeviceInfo {
	return enginehal.DeviceInfo{
		Index:           d.index,
		Name:            "noop virtual device",
		Features:        d.features,
		ComputeQueues:   1,
		TransferQueues:  1,
		MaxWorkgroup:    [3]uint32{1024, 1024, 64},
		MaxPushConstant: 256,
	}
}

func (d *Device) checkLost() error {
	if d.lost.Load() {
		return enginehal.ErrDeviceLost
	}
	return nil
}

// Poison simulates a device-lost fault for tests.
func (d *Device) Poison() {
	d.lost.Store(true)
}

func (d *Device) CreateBuffer(size uint64, usage enginehal.BufferUsage) (enginehal.Buffer, error) {
	if err := d.checkLost(); err != nil {
		return nil, err
	}
	return &buffer{data: make([]byte, size)}, nil
}

func (d *Device) DestroyBuffer(b enginehal.Buffer) {}

func (d *Device) WriteHostVisible(b enginehal.Buffer, offset uint64, data []byte) error {
	if err := d.checkLost(); err != nil {
		return err
	}
	buf := b.(*buffer)
	buf.mu.Lock()
	defer buf.mu.Unlock()
	if offset+uint64(len(data)) > uint64(len(buf.data)) {
		return fmt.Errorf("noop: write out of range: offset %d len %d cap %d", offset, len(data), len(buf.data))
	}
	copy(buf.data[offset:], data)
	return nil
}

func (d *Device) ReadHostVisible(b enginehal.Buffer, offset, length uint64) ([]byte, error) {
	if err := d.checkLost(); err != nil {
		return nil, err
	}
	buf := b.(*buffer)
	buf.mu.Lock()
	defer buf.mu.Unlock()
	if offset+length > uint64(len(buf.data)) {
		return nil, fmt.Errorf("noop: read out of range: offset %d len %d cap %d", offset, length, len(buf.data))
	}
	out := make([]byte, length)
	copy(out, buf.data[offset:offset+length])
	return out, nil
}

func (d *Device) CopyBuffer(src, dst enginehal.Buffer, srcOffset, dstOffset, size uint64, queue enginehal.QueueKind) (uint64, error) {
	if err := d.checkLost(); err != nil {
		return 0, err
	}
	s, dd := src.(*buffer), dst.(*buffer)
	s.mu.Lock()
	dd.mu.Lock()
	copy(dd.data[dstOffset:dstOffset+size], s.data[srcOffset:srcOffset+size])
	dd.mu.Unlock()
	s.mu.Unlock()
	return d.bumpFence(queue), nil
}

func (d *Device) Flush(queue enginehal.QueueKind) (uint64, error) {
	if err := d.checkLost(); err != nil {
		return 0, err
	}
	return d.bumpFence(queue), nil
}

func (d *Device) CreateShaderModule(spirv []uint32) (enginehal.ShaderModule, error) {
	if err := d.checkLost(); err != nil {
		return nil, err
	}
	words := make([]uint32, len(spirv))
	copy(words, spirv)
	return words, nil
}

func (d *Device) DestroyShaderModule(m enginehal.ShaderModule) {}

func (d *Device) CreateComputePipeline(module enginehal.ShaderModule, entryPoint string, pushConstantBytes uint32, bindingCount int) (enginehal.Pipeline, error) {
	if err := d.checkLost(); err != nil {
		return nil, err
	}
	p := &pipelineState{entryPoint: entryPoint, pushConstantBytes: pushConstantBytes, bindingCount: bindingCount}
	d.pipelines.Store(p, p)
	return p, nil
}

func (d *Device) DestroyComputePipeline(p enginehal.Pipeline) {
	d.pipelines.Delete(p)
}

// Dispatch records the dispatch for inspection by tests and applies no
// actual compute -- kernels passed to the noop backend are never executed,
// only scheduled and fenced.
func (d *Device) Dispatch(pipeline enginehal.Pipeline, groups [3]uint32, bindings []enginehal.BufferBinding, pushConstants []byte, queue enginehal.QueueKind) (uint64, error) {
	if err := d.checkLost(); err != nil {
		return 0, err
	}
	if _, ok := pipeline.(*pipelineState); !ok {
		return 0, fmt.Errorf("noop: dispatch with foreign pipeline handle")
	}
	atomic.AddUint64(&dispatchCount, 1)
	return d.bumpFence(queue), nil
}

// dispatchCount is a process-wide counter tests use to observe pipeline
// cache hits.
var dispatchCount uint64

// DispatchCount returns the number of Dispatch calls made across all noop
// devices in this process.
func DispatchCount() uint64 { return atomic.LoadUint64(&dispatchCount) }

func (d *Device) bumpFence(queue enginehal.QueueKind) uint64 {
	d.fenceMu.Lock()
	defer d.fenceMu.Unlock()
	d.completedFence[queue]++
	return d.completedFence[queue]
}

func (d *Device) CompletedFence(queue enginehal.QueueKind) uint64 {
	d.fenceMu.Lock()
	defer d.fenceMu.Unlock()
	return d.completedFence[queue]
}

func (d *Device) WaitFence(queue enginehal.QueueKind, value uint64) error {
	if err := d.checkLost(); err != nil {
		return err
	}
	// All noop submissions are synchronous, so the fence has always
	// already reached any value it was asked to produce.
	if d.CompletedFence(queue) < value {
		return fmt.Errorf("noop: fence %d never reached value %d", queue, value)
	}
	return nil
}

func (d *Device) WaitIdle() error {
	return d.checkLost()
}

func (d *Device) Destroy() {}
