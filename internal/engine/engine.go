// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package engine owns one logical compute device: buffer allocation,
// host<->device transfer, pipeline caching, and dispatch submission. It is
// kept behind internal/ so the public krnl package is the only supported
// entry point.
package engine

import (
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/gogpu/krnl/internal/engine/track"
	"github.com/gogpu/krnl/internal/enginehal"
)

// Options configures Engine construction.
type Options struct {
	DeviceIndex     int
	OptimalFeatures enginehal.FeatureSet
	Backend         enginehal.Backend
}

// Engine is one logical device plus its queues, allocator, and caches. No
// state is shared between Engine instances in the same process.
type Engine struct {
	index int
	info  enginehal.DeviceInfo

	lock  *SnatchLock
	state *Snatchable[enginehal.Device]

	group      singleflight.Group
	pipelineMu sync.RWMutex
	pipelines  map[KernelKey]*Pipeline

	nextBufferID atomic.Uint64
	trackerMu    sync.Mutex
	tracker      *track.Tracker

	poisoned atomic.Bool
	lastErr  atomic.Pointer[error]
}

// New enumerates physical devices meeting the minimum API version,
// opens options.DeviceIndex, enables the supported subset of
// options.OptimalFeatures, and instantiates the allocator and caches. The
// backend itself is responsible for the minimum-version filter during
// EnumerateAdapters.
func New(opts Options) (*Engine, error) {
	if opts.Backend == nil {
		return nil, ErrDeviceUnavailable
	}

	adapters, err := opts.Backend.EnumerateAdapters()
	if err != nil {
		return nil, fmt.Errorf("engine: enumerate adapters: %w", err)
	}
	if opts.DeviceIndex < 0 || opts.DeviceIndex >= len(adapters) {
		return nil, &DeviceIndexOutOfRangeError{Index: opts.DeviceIndex, Count: len(adapters)}
	}
	adapter := adapters[opts.DeviceIndex]

	dev, err := opts.Backend.OpenDevice(adapter, opts.OptimalFeatures)
	if err != nil {
		return nil, fmt.Errorf("engine: open device %d: %w", opts.DeviceIndex, err)
	}

	e := &Engine{
		index:     opts.DeviceIndex,
		info:      dev.Info(),
		lock:      NewSnatchLock(),
		state:     NewSnatchable(dev),
		pipelines: make(map[KernelKey]*Pipeline),
		tracker:   track.NewTracker(),
	}

	enginehal.Logger().Info("engine opened device",
		"index", e.index, "name", e.info.Name, "computeQueues", e.info.ComputeQueues,
		"transferQueues", e.info.TransferQueues)
	if e.info.TransferQueues == 0 {
		enginehal.Logger().Warn("no dedicated transfer queue, falling back to compute queue", "index", e.index)
	}

	return e, nil
}

// Info reports the device this engine opened, including the actually
// enabled feature subset.
func (e *Engine) Info() enginehal.DeviceInfo { return e.info }

// Index is this engine's position in the backend's filtered adapter list.
func (e *Engine) Index() int { return e.index }

func (e *Engine) device() (enginehal.Device, *SnatchGuard, error) {
	if e.poisoned.Load() {
		return nil, nil, e.poisonError()
	}
	guard := e.lock.Read()
	dev := e.state.Get(guard)
	if dev == nil {
		guard.Release()
		return nil, nil, e.poisonError()
	}
	return *dev, guard, nil
}

func (e *Engine) poisonError() error {
	if p := e.lastErr.Load(); p != nil {
		return *p
	}
	return &DeviceLostError{Index: e.index}
}

// poison marks the engine unusable after a fatal backend error: subsequent
// calls fail fast.
func (e *Engine) poison(err error) error {
	wrapped := fmt.Errorf("engine %d: %w", e.index, err)
	e.lastErr.Store(&wrapped)
	if e.poisoned.CompareAndSwap(false, true) {
		enginehal.Logger().Error("device lost, engine poisoned", "index", e.index, "error", err)
		guard := e.lock.Write()
		if dev := e.state.Snatch(guard); dev != nil {
			(*dev).Destroy()
		}
		guard.Release()
	}
	return wrapped
}

// Wait is a full barrier: on return every previously submitted operation is
// complete, or the engine is lost.
func (e *Engine) Wait() error {
	dev, guard, err := e.device()
	if err != nil {
		return err
	}
	defer guard.Release()
	if err := dev.WaitIdle(); err != nil {
		return e.poison(err)
	}
	return nil
}

// Destroy releases the engine's device. Safe to call more than once.
func (e *Engine) Destroy() {
	e.poison(fmt.Errorf("engine destroyed"))
}
