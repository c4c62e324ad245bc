// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package scalar defines the closed set of element types the runtime moves
// between host and device, and a tagged value type used for push constants
// and specialization constants.
package scalar

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Type tags one of the scalar element types the runtime understands. The
// numeric value of each constant is the wire tag used in kernel-descriptor
// blobs (§6) and must never be renumbered.
type Type uint8

const (
	U8 Type = iota
	I8
	U16
	I16
	F16
	BF16
	U32
	I32
	F32
	U64
	I64
	F64
)

// String names the type for diagnostics.
func (t Type) String() string {
	switch t {
	case U8:
		return "u8"
	case I8:
		return "i8"
	case U16:
		return "u16"
	case I16:
		return "i16"
	case F16:
		return "f16"
	case BF16:
		return "bf16"
	case U32:
		return "u32"
	case I32:
		return "i32"
	case F32:
		return "f32"
	case U64:
		return "u64"
	case I64:
		return "i64"
	case F64:
		return "f64"
	default:
		return fmt.Sprintf("scalar.Type(%d)", uint8(t))
	}
}

// SizeBytes returns the element size in bytes, one of {1, 2, 4, 8}.
func (t Type) SizeBytes() int {
	switch t {
	case U8, I8:
		return 1
	case U16, I16, F16, BF16:
		return 2
	case U32, I32, F32:
		return 4
	case U64, I64, F64:
		return 8
	default:
		panic(fmt.Sprintf("scalar: unknown type tag %d", uint8(t)))
	}
}

// Alignment equals SizeBytes for every scalar type in this closed set.
func (t Type) Alignment() int {
	return t.SizeBytes()
}

// Valid reports whether t is one of the twelve known tags.
func (t Type) Valid() bool {
	return t <= F64
}

// Elem is a tagged union holding exactly one value whose type matches Tag.
// Equality between two Elem values is bitwise on the little-endian encoding
// of the payload, so two NaN float payloads with the same bit pattern
// compare equal -- required for using Elem as part of a cache key.
type Elem struct {
	Tag   Type
	bytes [8]byte
}

// Bytes returns the little-endian encoding of the value, truncated to
// Tag.SizeBytes().
func (e Elem) Bytes() []byte {
	return e.bytes[:e.Tag.SizeBytes()]
}

// Equal compares two Elem values bitwise, including the tag.
func (e Elem) Equal(o Elem) bool {
	if e.Tag != o.Tag {
		return false
	}
	n := e.Tag.SizeBytes()
	for i := 0; i < n; i++ {
		if e.bytes[i] != o.bytes[i] {
			return false
		}
	}
	return true
}

func newElem(tag Type, n int) Elem {
	return Elem{Tag: tag}
}

// ElemU8, ElemI8, ... construct a tagged scalar from a Go value.

func ElemU8(v uint8) Elem { e := newElem(U8, 1); e.bytes[0] = v; return e }
func ElemI8(v int8) Elem  { e := newElem(I8, 1); e.bytes[0] = byte(v); return e }

func ElemU16(v uint16) Elem {
	e := newElem(U16, 2)
	binary.LittleEndian.PutUint16(e.bytes[:2], v)
	return e
}

func ElemI16(v int16) Elem {
	return ElemU16(uint16(v)).retag(I16)
}

func ElemU32(v uint32) Elem {
	e := newElem(U32, 4)
	binary.LittleEndian.PutUint32(e.bytes[:4], v)
	return e
}

func ElemI32(v int32) Elem {
	return ElemU32(uint32(v)).retag(I32)
}

func ElemF32(v float32) Elem {
	return ElemU32(math.Float32bits(v)).retag(F32)
}

func ElemU64(v uint64) Elem {
	e := newElem(U64, 8)
	binary.LittleEndian.PutUint64(e.bytes[:8], v)
	return e
}

func ElemI64(v int64) Elem {
	return ElemU64(uint64(v)).retag(I64)
}

func ElemF64(v float64) Elem {
	return ElemU64(math.Float64bits(v)).retag(F64)
}

func (e Elem) retag(tag Type) Elem {
	e.Tag = tag
	return e
}

// AsU32 decodes the payload as a little-endian uint32. It panics if Tag's
// size is not 4 bytes; callers relying on a thread-dimension constant being
// a u32 should check Tag first.
func (e Elem) AsU32() uint32 {
	if e.Tag.SizeBytes() != 4 {
		panic(fmt.Sprintf("scalar: AsU32 on %d-byte type %s", e.Tag.SizeBytes(), e.Tag))
	}
	return binary.LittleEndian.Uint32(e.bytes[:4])
}

// FromLEBytes decodes a value of the given type from a little-endian byte
// slice of exactly Tag.SizeBytes() length.
func FromLEBytes(tag Type, b []byte) (Elem, error) {
	n := tag.SizeBytes()
	if len(b) != n {
		return Elem{}, fmt.Errorf("scalar: %s requires %d bytes, got %d", tag, n, len(b))
	}
	e := Elem{Tag: tag}
	copy(e.bytes[:n], b)
	return e, nil
}
