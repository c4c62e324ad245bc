// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package spirv rewrites OpSpecConstant literals inside an already-compiled
// SPIR-V module to hard-bake specialization constant values, without
// otherwise touching the module's IR.
package spirv

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/krnl/scalar"
)

const (
	magicNumber = 0x07230203

	opDecorate      = 71
	opSpecConstant  = 50
	decorationSpecID = 1
)

// Module is a SPIR-V binary as a sequence of 32-bit words, little-endian.
type Module []uint32

// Validate checks that the module holds at least the 5-word header and that
// its first word is the SPIR-V magic number, before any instruction is
// interpreted; the version, generator, bound and schema words are not
// inspected. Every instruction word in this walk follows the standard
// SPIR-V layout: opcode = word & 0xffff, wordCount = word >> 16.
func (m Module) Validate() error {
	if len(m) < 5 {
		return fmt.Errorf("spirv: module too short for header: %d words", len(m))
	}
	if m[0] != magicNumber {
		return fmt.Errorf("spirv: bad magic number 0x%08x", m[0])
	}
	return nil
}

// ThreadDim names which workgroup axis a specialization constant fixes.
type ThreadDim = uint8

// SpecValue is one value to bake into a spec constant identified by its
// SpecId decoration.
type SpecValue struct {
	SpecID uint32
	Value  scalar.Elem
	// ThreadDim, when non-nil, requires Value to decode as a nonzero u32
	// and reports the resolved value back to the caller via Specialize's
	// return so it can be folded into Threads.
	ThreadDim *ThreadDim
}

// Result is the outcome of a Specialize call: the patched module plus any
// workgroup dimensions resolved from thread_dim-tagged spec constants.
type Result struct {
	Module  Module
	Threads [3]uint32
	// ThreadsSet records which of Threads[0..2] were actually touched by a
	// thread_dim spec constant, so callers can tell "resolved to 1" apart
	// from "untouched."
	ThreadsSet [3]bool
}

// Specialize patches OpSpecConstant literals in module for every entry in
// values whose SpecID has a matching SpecId decoration. Entries with no
// matching decoration are silently skipped: leaving a constant
// unspecialized, or supplying a value with no corresponding decoration,
// are both treated as a no-op rather than an error.
// module is never mutated; Specialize returns a fresh copy.
func Specialize(module Module, baseThreads [3]uint32, values []SpecValue) (Result, error) {
	if err := module.Validate(); err != nil {
		return Result{}, err
	}

	specIDToResult, err := collectSpecIDs(module)
	if err != nil {
		return Result{}, err
	}

	out := make(Module, len(module))
	copy(out, module)

	res := Result{Module: out, Threads: baseThreads}

	for _, v := range values {
		resultID, ok := specIDToResult[v.SpecID]
		if !ok {
			continue
		}
		if v.ThreadDim != nil {
			if v.Value.Tag.SizeBytes() != 4 {
				return Result{}, fmt.Errorf("spirv: thread_dim spec constant must be u32, got %s", v.Value.Tag)
			}
			axis := *v.ThreadDim
			dimVal := v.Value.AsU32()
			if dimVal == 0 {
				return Result{}, fmt.Errorf("spirv: threads.%s cannot be zero", axisName(axis))
			}
			if axis > 2 {
				return Result{}, fmt.Errorf("spirv: thread_dim axis out of range: %d", axis)
			}
			res.Threads[axis] = dimVal
			res.ThreadsSet[axis] = true
		}
		if err := patchSpecConstant(out, resultID, v.Value); err != nil {
			return Result{}, err
		}
	}

	return res, nil
}

func axisName(axis uint8) string {
	switch axis {
	case 0:
		return "x"
	case 1:
		return "y"
	case 2:
		return "z"
	default:
		return fmt.Sprintf("axis[%d]", axis)
	}
}

// collectSpecIDs walks the annotation section building spec_id -> result_id
// from OpDecorate ... SpecId <id> instructions.
func collectSpecIDs(m Module) (map[uint32]uint32, error) {
	out := make(map[uint32]uint32)
	i := 5 // past the 5-word header
	for i < len(m) {
		word := m[i]
		opcode := word & 0xffff
		wordCount := int(word >> 16)
		if wordCount == 0 || i+wordCount > len(m) {
			return nil, fmt.Errorf("spirv: invalid instruction word count at offset %d", i)
		}
		if opcode == opDecorate && wordCount >= 4 {
			target := m[i+1]
			decoration := m[i+2]
			if decoration == decorationSpecID {
				out[m[i+3]] = target
			}
		}
		i += wordCount
	}
	return out, nil
}

// patchSpecConstant finds the OpSpecConstant instruction whose result id
// matches resultID and overwrites its literal operand(s) with value's
// bytes: one literal word for 32-bit types, two for 64-bit types (the
// second literal begins at byte offset 4 of the value).
func patchSpecConstant(m Module, resultID uint32, value scalar.Elem) error {
	i := 5
	for i < len(m) {
		word := m[i]
		opcode := word & 0xffff
		wordCount := int(word >> 16)
		if wordCount == 0 || i+wordCount > len(m) {
			return fmt.Errorf("spirv: invalid instruction word count at offset %d", i)
		}
		if opcode == opSpecConstant && wordCount >= 3 && m[i+2] == resultID {
			literalWords := wordCount - 3
			size := value.Tag.SizeBytes()
			switch {
			case size <= 4 && literalWords == 1:
				m[i+3] = binary.LittleEndian.Uint32(pad4(value.Bytes()))
			case size == 8 && literalWords == 2:
				b := value.Bytes()
				m[i+3] = binary.LittleEndian.Uint32(b[0:4])
				m[i+4] = binary.LittleEndian.Uint32(b[4:8])
			default:
				return fmt.Errorf("spirv: unhandled spec constant literal width: %d words for a %d-byte value", literalWords, size)
			}
			return nil
		}
		i += wordCount
	}
	return fmt.Errorf("spirv: no OpSpecConstant found for result id %%%d", resultID)
}

func pad4(b []byte) []byte {
	if len(b) == 4 {
		return b
	}
	out := make([]byte, 4)
	copy(out, b)
	return out
}
