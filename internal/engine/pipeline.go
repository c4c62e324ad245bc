// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package engine

import (
	"fmt"

	"github.com/gogpu/krnl/internal/enginehal"
)

// KernelKey deduplicates compiled pipelines by (kernel identity,
// specialization bytes). KernelID is a stable per-process token for one
// pre-specialization kernel descriptor; SpecBytes is the concatenation of
// each spec constant's little-endian bytes in declaration order.
type KernelKey struct {
	KernelID  uintptr
	SpecBytes string
}

// Pipeline is a cached, specialized compute pipeline plus the metadata
// needed to pack a dispatch against it.
type Pipeline struct {
	handle            enginehal.Pipeline
	threads           [3]uint32
	bindingCount      int
	pushConstantBytes uint32
}

func (p *Pipeline) Threads() [3]uint32    { return p.threads }
func (p *Pipeline) BindingCount() int     { return p.bindingCount }
func (p *Pipeline) PushConstantBytes() uint32 { return p.pushConstantBytes }

// BuildDesc is what a descriptor producer returns to CompileOrFetch: the
// (possibly already specialized) SPIR-V module and the fixed metadata
// needed to build a VkPipeline.
type BuildDesc struct {
	SPIRV             []uint32
	EntryPoint        string
	Threads           [3]uint32
	BindingCount      int
	PushConstantBytes uint32
}

// CompileOrFetch returns the cached pipeline for key, building it via
// descFn on a cache miss. Concurrent misses for the same key collapse into
// a single build via singleflight; the losing callers observe the
// winner's result.
func (e *Engine) CompileOrFetch(key KernelKey, descFn func() (BuildDesc, error)) (*Pipeline, error) {
	e.pipelineMu.RLock()
	if p, ok := e.pipelines[key]; ok {
		e.pipelineMu.RUnlock()
		enginehal.Logger().Debug("pipeline cache hit", "kernelID", key.KernelID)
		return p, nil
	}
	e.pipelineMu.RUnlock()

	groupKey := fmt.Sprintf("%d:%x", key.KernelID, key.SpecBytes)
	v, err, _ := e.group.Do(groupKey, func() (any, error) {
		// Re-check under the group: another goroutine may have inserted
		// the pipeline while we were waiting for the singleflight slot.
		e.pipelineMu.RLock()
		if p, ok := e.pipelines[key]; ok {
			e.pipelineMu.RUnlock()
			return p, nil
		}
		e.pipelineMu.RUnlock()

		enginehal.Logger().Debug("pipeline cache miss, building", "kernelID", key.KernelID)
		built, err := descFn()
		if err != nil {
			return nil, err
		}

		dev, guard, err := e.device()
		if err != nil {
			return nil, err
		}
		defer guard.Release()

		module, err := dev.CreateShaderModule(built.SPIRV)
		if err != nil {
			if err == enginehal.ErrDeviceLost {
				return nil, e.poison(err)
			}
			return nil, fmt.Errorf("engine: create shader module: %w", err)
		}

		handle, err := dev.CreateComputePipeline(module, built.EntryPoint, built.PushConstantBytes, built.BindingCount)
		dev.DestroyShaderModule(module)
		if err != nil {
			if err == enginehal.ErrDeviceLost {
				return nil, e.poison(err)
			}
			return nil, fmt.Errorf("engine: create compute pipeline: %w", err)
		}

		p := &Pipeline{
			handle:            handle,
			threads:           built.Threads,
			bindingCount:      built.BindingCount,
			pushConstantBytes: built.PushConstantBytes,
		}

		e.pipelineMu.Lock()
		e.pipelines[key] = p
		e.pipelineMu.Unlock()

		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Pipeline), nil
}
