// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package kernel builds a dispatchable Kernel from a decoded kernel
// descriptor: it resolves specialization constants, builds (or fetches) the
// compiled pipeline, packs push constants, and validates and submits a
// dispatch.
package kernel

import (
	"bytes"
	"fmt"
	"unsafe"

	"github.com/gogpu/krnl/internal/engine"
	"github.com/gogpu/krnl/kerneldesc"
	"github.com/gogpu/krnl/rawbuffer"
	"github.com/gogpu/krnl/scalar"
	"github.com/gogpu/krnl/spirv"
)

// Builder resolves a decoded descriptor's specialization constants before
// compiling it into a Kernel.
type Builder struct {
	desc       *kerneldesc.Desc
	id         uintptr
	specValues []scalar.Elem
	specSet    []bool
}

// FromDescriptor starts a builder from a decoded kernel descriptor. id is a stable
// per-process token identifying this pre-specialization descriptor, used as
// half of the pipeline cache key.
func FromDescriptor(desc *kerneldesc.Desc) *Builder {
	return &Builder{
		desc:       desc,
		id:         uintptr(unsafe.Pointer(desc)),
		specValues: make([]scalar.Elem, len(desc.Specs)),
		specSet:    make([]bool, len(desc.Specs)),
	}
}

// Specialize records one value per spec_desc, positionally. len(values) must
// equal len(spec_descs); each value's scalar type must match the
// corresponding descriptor, and any thread_dim-tagged value must be a
// nonzero u32.
func (b *Builder) Specialize(values []scalar.Elem) (*Builder, error) {
	if len(values) != len(b.desc.Specs) {
		return nil, fmt.Errorf("kernel %q: specialize: got %d values, want %d", b.desc.Name, len(values), len(b.desc.Specs))
	}
	for i, sd := range b.desc.Specs {
		v := values[i]
		if v.Tag != sd.Type {
			return nil, fmt.Errorf("kernel %q: spec_descs[%d] %q: value type %s does not match descriptor type %s", b.desc.Name, i, sd.Name, v.Tag, sd.Type)
		}
		if sd.ThreadDim != nil {
			if v.Tag.SizeBytes() != 4 || v.AsU32() == 0 {
				return nil, fmt.Errorf("kernel %q: spec_descs[%d] %q: thread_dim constant must be a nonzero u32", b.desc.Name, i, sd.Name)
			}
		}
		b.specValues[i] = v
		b.specSet[i] = true
	}
	return b, nil
}

// Kernel is a handle to a cached, specialized compute pipeline plus the
// descriptor it was built from.
type Kernel struct {
	desc     *kerneldesc.Desc
	engine   *engine.Engine
	pipeline *engine.Pipeline
}

// Build compiles (or fetches from cache) the pipeline for this specialization
// on device.
func (b *Builder) Build(device *engine.Engine) (*Kernel, error) {
	if device == nil {
		return nil, fmt.Errorf("kernel %q: expected device, found host", b.desc.Name)
	}

	key := engine.KernelKey{KernelID: b.id, SpecBytes: b.specBytes()}
	pipeline, err := device.CompileOrFetch(key, func() (engine.BuildDesc, error) {
		return b.buildDesc()
	})
	if err != nil {
		return nil, err
	}

	return &Kernel{desc: b.desc, engine: device, pipeline: pipeline}, nil
}

// specBytes concatenates each recorded spec value's little-endian bytes in
// spec_descs order, forming the specialization half of the cache key.
func (b *Builder) specBytes() string {
	var buf bytes.Buffer
	for _, v := range b.specValues {
		buf.Write(v.Bytes())
	}
	return buf.String()
}

func (b *Builder) buildDesc() (engine.BuildDesc, error) {
	specValues := make([]spirv.SpecValue, 0, len(b.desc.Specs))
	for i, sd := range b.desc.Specs {
		if !b.specSet[i] {
			continue
		}
		specValues = append(specValues, spirv.SpecValue{SpecID: uint32(i), Value: b.specValues[i], ThreadDim: sd.ThreadDim})
	}

	result, err := spirv.Specialize(spirv.Module(b.desc.SPIRV), b.desc.FixedThreads(), specValues)
	if err != nil {
		return engine.BuildDesc{}, fmt.Errorf("kernel %q: specialize: %w", b.desc.Name, err)
	}

	return engine.BuildDesc{
		SPIRV:             result.Module,
		EntryPoint:        "main",
		Threads:           result.Threads,
		BindingCount:      len(b.desc.Slices),
		PushConstantBytes: pushConstantBytes(b.desc),
	}, nil
}

// pushConstantBytes computes the total push-constant block size: the named
// pushes rounded up to the next multiple of 4, plus an (offset, pad) word
// pair per slice binding.
func pushConstantBytes(desc *kerneldesc.Desc) uint32 {
	var named uint32
	for _, p := range desc.Pushes {
		named += uint32(p.Type.SizeBytes())
	}
	named = ((named + 3) / 4) * 4
	return named + 8*uint32(len(desc.Slices))
}

// SliceArg binds one positional slice argument to a dispatch.
type SliceArg struct {
	Buffer *rawbuffer.Buffer
}

// PushArg binds one positional named push-constant argument to a dispatch.
type PushArg struct {
	Value scalar.Elem
}
