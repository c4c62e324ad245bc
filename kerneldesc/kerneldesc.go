// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package kerneldesc decodes the kernel-descriptor blob produced by the
// offline kernel compiler: SPIR-V words plus the metadata describing slice
// bindings, push constants, and specialization constants.
package kerneldesc

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/gogpu/krnl/scalar"
)

// Features is the capability bitset a kernel may require of a device.
type Features uint8

const (
	FeatureInt8 Features = 1 << iota
	FeatureInt16
	FeatureInt64
	FeatureFloat16
	FeatureFloat64
)

func (f Features) Contains(want Features) bool { return f&want == want }

// SpecDesc describes one specialization constant slot.
type SpecDesc struct {
	Name string
	Type scalar.Type
	// ThreadDim, when non-nil, names which axis of Threads this constant
	// fixes (0, 1 or 2); the resolved value must be >= 1.
	ThreadDim *uint8
}

// SliceDesc describes one buffer-slice binding. Binding index is this
// descriptor's position within Desc.Slices.
type SliceDesc struct {
	Name    string
	Type    scalar.Type
	Mutable bool
	// Item marks this slice as an elementwise participant: when the
	// dispatch has no explicit group/thread count, the shortest Item
	// slice's length drives the inferred global thread count.
	Item bool
}

// PushDesc describes one named push constant.
type PushDesc struct {
	Name string
	Type scalar.Type
}

// Desc is the decoded form of a kernel-descriptor blob.
type Desc struct {
	Name    string
	Hash    uint64
	SPIRV   []uint32
	Feature Features
	// Threads holds 1-3 workgroup dimensions, each >= 1.
	Threads []uint32
	Safe    bool
	Specs   []SpecDesc
	Slices  []SliceDesc
	Pushes  []PushDesc
}

// FixedThreads returns Threads padded with trailing 1s to exactly three
// dimensions, as required by the builder contract.
func (d *Desc) FixedThreads() [3]uint32 {
	var t [3]uint32
	t[0], t[1], t[2] = 1, 1, 1
	copy(t[:], d.Threads)
	return t
}

// Decode parses a kernel-descriptor blob per the wire schema.
// Every length-prefixed field uses a little-endian uint32 count prefix
// unless noted otherwise.
func Decode(r io.Reader) (*Desc, error) {
	br := bufio.NewReader(r)
	d := &Desc{}

	name, err := readString(br)
	if err != nil {
		return nil, fmt.Errorf("kerneldesc: name: %w", err)
	}
	d.Name = name

	if err := binary.Read(br, binary.LittleEndian, &d.Hash); err != nil {
		return nil, fmt.Errorf("kerneldesc: hash: %w", err)
	}

	spirvLen, err := readU32(br)
	if err != nil {
		return nil, fmt.Errorf("kerneldesc: spirv length: %w", err)
	}
	d.SPIRV = make([]uint32, spirvLen)
	for i := range d.SPIRV {
		if d.SPIRV[i], err = readU32(br); err != nil {
			return nil, fmt.Errorf("kerneldesc: spirv[%d]: %w", i, err)
		}
	}

	featBytes := make([]byte, 5)
	if _, err := io.ReadFull(br, featBytes); err != nil {
		return nil, fmt.Errorf("kerneldesc: features: %w", err)
	}
	d.Feature = decodeFeatures(featBytes)

	threadsLen, err := readU32(br)
	if err != nil {
		return nil, fmt.Errorf("kerneldesc: threads length: %w", err)
	}
	if threadsLen < 1 || threadsLen > 3 {
		return nil, fmt.Errorf("kerneldesc: threads length must be 1..=3, got %d", threadsLen)
	}
	d.Threads = make([]uint32, threadsLen)
	for i := range d.Threads {
		if d.Threads[i], err = readU32(br); err != nil {
			return nil, fmt.Errorf("kerneldesc: threads[%d]: %w", i, err)
		}
		if d.Threads[i] == 0 {
			return nil, fmt.Errorf("kerneldesc: threads[%d] must be >= 1", i)
		}
	}

	safeByte, err := br.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("kerneldesc: safe: %w", err)
	}
	d.Safe = safeByte != 0

	if d.Specs, err = readSpecDescs(br); err != nil {
		return nil, err
	}
	if d.Slices, err = readSliceDescs(br); err != nil {
		return nil, err
	}
	if d.Pushes, err = readPushDescs(br); err != nil {
		return nil, err
	}

	return d, nil
}

func decodeFeatures(b []byte) Features {
	var f Features
	if b[0] != 0 {
		f |= FeatureInt8
	}
	if b[1] != 0 {
		f |= FeatureInt16
	}
	if b[2] != 0 {
		f |= FeatureInt64
	}
	if b[3] != 0 {
		f |= FeatureFloat16
	}
	if b[4] != 0 {
		f |= FeatureFloat64
	}
	return f
}

func readSpecDescs(r *bufio.Reader) ([]SpecDesc, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("kerneldesc: spec_descs length: %w", err)
	}
	out := make([]SpecDesc, n)
	for i := range out {
		name, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("kerneldesc: spec_descs[%d].name: %w", i, err)
		}
		tagByte, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("kerneldesc: spec_descs[%d].scalar_type: %w", i, err)
		}
		hasDim, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("kerneldesc: spec_descs[%d].thread_dim flag: %w", i, err)
		}
		var dim *uint8
		if hasDim != 0 {
			d, err := r.ReadByte()
			if err != nil {
				return nil, fmt.Errorf("kerneldesc: spec_descs[%d].thread_dim: %w", i, err)
			}
			if d > 2 {
				return nil, fmt.Errorf("kerneldesc: spec_descs[%d].thread_dim out of range: %d", i, d)
			}
			dim = &d
		}
		out[i] = SpecDesc{Name: name, Type: scalar.Type(tagByte), ThreadDim: dim}
	}
	return out, nil
}

func readSliceDescs(r *bufio.Reader) ([]SliceDesc, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("kerneldesc: slice_descs length: %w", err)
	}
	out := make([]SliceDesc, n)
	for i := range out {
		name, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("kerneldesc: slice_descs[%d].name: %w", i, err)
		}
		tagByte, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("kerneldesc: slice_descs[%d].scalar_type: %w", i, err)
		}
		mutByte, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("kerneldesc: slice_descs[%d].mutable: %w", i, err)
		}
		itemByte, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("kerneldesc: slice_descs[%d].item: %w", i, err)
		}
		out[i] = SliceDesc{
			Name:    name,
			Type:    scalar.Type(tagByte),
			Mutable: mutByte != 0,
			Item:    itemByte != 0,
		}
	}
	return out, nil
}

func readPushDescs(r *bufio.Reader) ([]PushDesc, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("kerneldesc: push_descs length: %w", err)
	}
	out := make([]PushDesc, n)
	for i := range out {
		name, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("kerneldesc: push_descs[%d].name: %w", i, err)
		}
		tagByte, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("kerneldesc: push_descs[%d].scalar_type: %w", i, err)
		}
		out[i] = PushDesc{Name: name, Type: scalar.Type(tagByte)}
	}
	return out, nil
}

func readU32(r io.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func readString(r *bufio.Reader) (string, error) {
	n, err := readU32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
