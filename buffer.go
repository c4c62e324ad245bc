// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package krnl

import (
	"fmt"
	"unsafe"

	"github.com/gogpu/krnl/rawbuffer"
	"github.com/gogpu/krnl/scalar"
)

// Numeric is the closed set of Go types a Buffer[T] may hold. It excludes
// scalar.F16 and scalar.BF16, which have no native Go representation;
// callers needing those use rawbuffer directly with an explicit scalar.Type.
type Numeric interface {
	uint8 | int8 | uint16 | int16 | uint32 | int32 | float32 | uint64 | int64 | float64
}

func scalarTypeOf[T Numeric]() scalar.Type {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return scalar.U8
	case int8:
		return scalar.I8
	case uint16:
		return scalar.U16
	case int16:
		return scalar.I16
	case uint32:
		return scalar.U32
	case int32:
		return scalar.I32
	case float32:
		return scalar.F32
	case uint64:
		return scalar.U64
	case int64:
		return scalar.I64
	case float64:
		return scalar.F64
	default:
		panic(fmt.Sprintf("krnl: unreachable: %T is not in Numeric", zero))
	}
}

func asBytes[T Numeric](v []T) []byte {
	if len(v) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v)*int(unsafe.Sizeof(zero)))
}

func asTyped[T Numeric](b []byte) []T {
	if len(b) == 0 {
		return nil
	}
	var zero T
	size := int(unsafe.Sizeof(zero))
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), len(b)/size)
}

// Buffer is the exclusive, mutable, owned typed buffer variant. It wraps a
// raw buffer whose scalar type was fixed to T at construction.
type Buffer[T Numeric] struct {
	raw *rawbuffer.Buffer
}

// FromVec takes ownership of a host slice, fixing Buffer[T]'s scalar type
// to T.
func FromVec[T Numeric](v []T) (*Buffer[T], error) {
	raw, err := rawbuffer.FromHostBytes(scalarTypeOf[T](), asBytes(v))
	if err != nil {
		return nil, err
	}
	return &Buffer[T]{raw: raw}, nil
}

// AllocUninit allocates n uninitialized elements of T on device (or zeroed
// host memory for Host()). The caller must write every element before
// reading it back.
func AllocUninit[T Numeric](device *Device, n int) (*Buffer[T], error) {
	raw, err := rawbuffer.Alloc(device.engineOrNil(), scalarTypeOf[T](), n)
	if err != nil {
		return nil, err
	}
	return &Buffer[T]{raw: raw}, nil
}

// Device reports the device this buffer currently resides on, or the Host()
// sentinel when the buffer is host-resident.
func (b *Buffer[T]) Device() *Device {
	if b.raw.Engine() == nil {
		return Host()
	}
	return &Device{eng: b.raw.Engine()}
}

// Len returns the buffer's length in elements.
func (b *Buffer[T]) Len() int { return b.raw.Len() }

// ScalarType returns the wire scalar-type tag this buffer was fixed to.
func (b *Buffer[T]) ScalarType() scalar.Type { return b.raw.ScalarType() }

// AsHostSlice exposes the backing elements directly, failing with
// *rawbuffer.SliceOnDeviceError when the buffer is device-resident.
func (b *Buffer[T]) AsHostSlice() ([]T, error) {
	bytes, err := b.raw.AsHostSlice()
	if err != nil {
		return nil, err
	}
	return asTyped[T](bytes), nil
}

// IntoDevice resolves this buffer onto target, returning a future that
// completes once any required transfer lands. A no-op future when already
// on target.
func (b *Buffer[T]) IntoDevice(target *Device) (*Future[T], error) {
	future, err := b.raw.ToDevice(target.engineOrNil())
	if err != nil {
		return nil, err
	}
	return &Future[T]{future: future}, nil
}

// IntoVec surrenders the buffer's contents as a plain Go slice, issuing a
// download first when device-resident.
func (b *Buffer[T]) IntoVec() ([]T, error) {
	future, err := b.raw.ToDevice(nil)
	if err != nil {
		return nil, err
	}
	hostRaw, err := future.Wait()
	if err != nil {
		return nil, err
	}
	bytes, err := hostRaw.AsHostSlice()
	if err != nil {
		return nil, err
	}
	return asTyped[T](bytes), nil
}

// SplitAt splits the buffer at element index mid into two immutable
// slices sharing the same allocation. Panics if mid exceeds Len().
func (b *Buffer[T]) SplitAt(mid int) (Slice[T], Slice[T]) {
	left, right := b.raw.SplitAt(mid)
	return Slice[T]{raw: left}, Slice[T]{raw: right}
}

// SplitAtMut splits the buffer at element index mid into two disjoint
// mutable slices sharing the same allocation but never aliasing each
// other's element range.
func (b *Buffer[T]) SplitAtMut(mid int) (SliceMut[T], SliceMut[T]) {
	left, right := b.raw.SplitAt(mid)
	return SliceMut[T]{raw: left}, SliceMut[T]{raw: right}
}

// AsSlice borrows the whole buffer immutably.
func (b *Buffer[T]) AsSlice() Slice[T] { return Slice[T]{raw: b.raw} }

// AsSliceMut borrows the whole buffer exclusively and mutably.
func (b *Buffer[T]) AsSliceMut() SliceMut[T] { return SliceMut[T]{raw: b.raw} }

// Release drops this buffer's reference to its device allocation. A no-op
// for host-resident buffers.
func (b *Buffer[T]) Release() { b.raw.Release() }

func (b *Buffer[T]) rawBuffer() *rawbuffer.Buffer { return b.raw }

// Slice is an immutable, borrowed view over a Buffer[T] or a sub-range of
// one.
type Slice[T Numeric] struct {
	raw *rawbuffer.Buffer
}

// Len returns the slice's length in elements.
func (s Slice[T]) Len() int { return s.raw.Len() }

// AsHostSlice exposes the view's bytes directly as a typed slice, failing
// when device-resident.
func (s Slice[T]) AsHostSlice() ([]T, error) {
	bytes, err := s.raw.AsHostSlice()
	if err != nil {
		return nil, err
	}
	return asTyped[T](bytes), nil
}

// ToDevice resolves the slice's backing onto target, mirroring
// Buffer[T].IntoDevice.
func (s Slice[T]) ToDevice(target *Device) (*Future[T], error) {
	future, err := s.raw.ToDevice(target.engineOrNil())
	if err != nil {
		return nil, err
	}
	return &Future[T]{future: future}, nil
}

func (s Slice[T]) rawBuffer() *rawbuffer.Buffer { return s.raw }

// SliceMut is an exclusive, mutable, borrowed view over a Buffer[T] or a
// sub-range of one.
type SliceMut[T Numeric] struct {
	raw *rawbuffer.Buffer
}

// Len returns the slice's length in elements.
func (s SliceMut[T]) Len() int { return s.raw.Len() }

// AsHostSlice exposes the view's bytes directly as a typed slice, failing
// when device-resident.
func (s SliceMut[T]) AsHostSlice() ([]T, error) {
	bytes, err := s.raw.AsHostSlice()
	if err != nil {
		return nil, err
	}
	return asTyped[T](bytes), nil
}

func (s SliceMut[T]) rawBuffer() *rawbuffer.Buffer { return s.raw }

// Future is an awaitable handle for an async transfer producing a
// Buffer[T].
type Future[T Numeric] struct {
	future *rawbuffer.Future
}

// Wait blocks until the transfer completes and returns the resulting
// buffer.
func (f *Future[T]) Wait() (*Buffer[T], error) {
	raw, err := f.future.Wait()
	if err != nil {
		return nil, err
	}
	return &Buffer[T]{raw: raw}, nil
}
