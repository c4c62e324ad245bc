// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package krnl

import (
	"io"

	"github.com/gogpu/krnl/internal/engine"
	"github.com/gogpu/krnl/kernel"
	"github.com/gogpu/krnl/kerneldesc"
	"github.com/gogpu/krnl/scalar"
)

// KernelBuilder resolves a decoded descriptor's specialization constants
// before compiling it into a Kernel.
type KernelBuilder struct {
	builder *kernel.Builder
}

// NewKernelBuilder decodes a kernel-descriptor blob and starts a builder.
func NewKernelBuilder(r io.Reader) (*KernelBuilder, error) {
	desc, err := kerneldesc.Decode(r)
	if err != nil {
		return nil, err
	}
	return &KernelBuilder{builder: kernel.FromDescriptor(desc)}, nil
}

// Specialize records one value per declared specialization constant,
// positionally.
func (b *KernelBuilder) Specialize(values []scalar.Elem) (*KernelBuilder, error) {
	if _, err := b.builder.Specialize(values); err != nil {
		return nil, err
	}
	return b, nil
}

// Build compiles (or fetches from the device's pipeline cache) the
// specialized pipeline. Building against Host() fails with an error naming
// the kernel.
func (b *KernelBuilder) Build(device *Device) (*Kernel, error) {
	k, err := b.builder.Build(device.engineOrNil())
	if err != nil {
		return nil, err
	}
	return &Kernel{k: k}, nil
}

// Kernel is a handle to a cached, specialized compute pipeline, ready to
// be dispatched with concrete buffer arguments.
type Kernel struct {
	k *kernel.Kernel
}

// GlobalThreads converts a global thread count per axis into a group
// count.
func (k *Kernel) GlobalThreads(gt [3]uint32) ([3]uint32, error) {
	return k.k.GlobalThreads(gt)
}

// Groups returns g unchanged, for call-site symmetry with GlobalThreads.
func (k *Kernel) Groups(g [3]uint32) [3]uint32 { return k.k.Groups(g) }

// Arg binds one positional slice argument to a dispatch. Use BindBuffer,
// BindSlice, or BindSliceMut to construct one.
type Arg = kernel.SliceArg

// Push binds one positional named push-constant argument to a dispatch.
type Push = kernel.PushArg

// BindBuffer binds an owned buffer to a dispatch slot.
func BindBuffer[T Numeric](b *Buffer[T]) Arg { return Arg{Buffer: b.raw} }

// BindSlice binds a borrowed immutable slice to a dispatch slot.
func BindSlice[T Numeric](s Slice[T]) Arg { return Arg{Buffer: s.raw} }

// BindSliceMut binds a borrowed mutable slice to a dispatch slot.
func BindSliceMut[T Numeric](s SliceMut[T]) Arg { return Arg{Buffer: s.raw} }

// PushValue wraps a tagged scalar as a named push-constant argument.
func PushValue(v scalar.Elem) Push { return Push{Value: v} }

// Dispatch validates slices and push constants against the descriptor,
// packs the push-constant block, and submits the dispatch -- or infers
// groups from the shortest "item" slice when groups is the zero value.
func (k *Kernel) Dispatch(groups [3]uint32, slices []Arg, pushConsts []Push) (*engine.Completion, error) {
	return k.k.Dispatch(groups, slices, pushConsts)
}
