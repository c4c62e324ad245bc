// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package kernel

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/gogpu/krnl/internal/engine"
)

// GlobalThreads converts a global thread count per axis into a group count,
// groups[i] = ceil(gt[i] / threads[i]). Any axis beyond the descriptor's
// declared dimensionality must be 1.
func (k *Kernel) GlobalThreads(gt [3]uint32) ([3]uint32, error) {
	threads := k.pipeline.Threads()
	declared := len(k.desc.Threads)

	var groups [3]uint32
	for i := 0; i < 3; i++ {
		if i >= declared && gt[i] != 1 {
			return [3]uint32{}, fmt.Errorf("kernel %q: global_threads[%d] must be 1 beyond the declared %d dimension(s)", k.desc.Name, i, declared)
		}
		groups[i] = ceilDiv(gt[i], threads[i])
	}
	return groups, nil
}

// Groups returns g unchanged; it exists so callers can choose between an
// explicit group count and GlobalThreads with the same call shape.
func (k *Kernel) Groups(g [3]uint32) [3]uint32 { return g }

func ceilDiv(a, b uint32) uint32 {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// Dispatch validates slices and pushConsts against the descriptor, packs the
// push-constant block, and submits the dispatch.
func (k *Kernel) Dispatch(groups [3]uint32, slices []SliceArg, pushConsts []PushArg) (*engine.Completion, error) {
	if len(slices) != len(k.desc.Slices) {
		return nil, fmt.Errorf("kernel %q: dispatch: got %d slices, want %d", k.desc.Name, len(slices), len(k.desc.Slices))
	}
	if len(pushConsts) != len(k.desc.Pushes) {
		return nil, fmt.Errorf("kernel %q: dispatch: got %d push constants, want %d", k.desc.Name, len(pushConsts), len(k.desc.Pushes))
	}

	itemLen := -1
	bufArgs := make([]engine.BufferArg, len(slices))
	for i, sd := range k.desc.Slices {
		arg := slices[i].Buffer
		if arg.ScalarType() != sd.Type {
			return nil, fmt.Errorf("kernel %q: slice %q: scalar type %s does not match descriptor type %s", k.desc.Name, sd.Name, arg.ScalarType(), sd.Type)
		}
		if !arg.OnDevice() {
			return nil, fmt.Errorf("kernel %q: slice %q: argument is host-resident, expected device", k.desc.Name, sd.Name)
		}
		if arg.Engine() != k.engine {
			return nil, fmt.Errorf("kernel %q: slice %q: argument belongs to a different engine (device %d) than the kernel (device %d)", k.desc.Name, sd.Name, arg.Engine().Index(), k.engine.Index())
		}

		db, offset := arg.Device()
		bufArgs[i] = engine.BufferArg{Buffer: db, Offset: offset, Size: arg.LenBytes(), Mutable: sd.Mutable}

		if sd.Item {
			n := arg.Len()
			if itemLen < 0 || n < itemLen {
				itemLen = n
			}
		}
	}

	if groups == ([3]uint32{}) && itemLen >= 0 {
		threads := k.pipeline.Threads()
		if threads[1] != 1 || threads[2] != 1 {
			return nil, fmt.Errorf("kernel %q: elementwise dispatch requires threads.y == threads.z == 1, got %v", k.desc.Name, threads)
		}
		groups = [3]uint32{ceilDiv(uint32(itemLen), threads[0]), 1, 1}
	}

	pushBytes, err := packPushConstants(k, pushConsts, slices)
	if err != nil {
		return nil, err
	}

	return k.engine.Dispatch(k.pipeline, groups, bufArgs, pushBytes)
}

// packPushConstants concatenates the named push values followed by an
// (offset_in_elements, pad) word pair per slice.
func packPushConstants(k *Kernel, pushConsts []PushArg, slices []SliceArg) ([]byte, error) {
	var buf bytes.Buffer
	for i, pd := range k.desc.Pushes {
		v := pushConsts[i].Value
		if v.Tag != pd.Type {
			return nil, fmt.Errorf("kernel %q: push %q: value type %s does not match descriptor type %s", k.desc.Name, pd.Name, v.Tag, pd.Type)
		}
		buf.Write(v.Bytes())
	}
	for buf.Len()%4 != 0 {
		buf.WriteByte(0)
	}

	for i, sd := range k.desc.Slices {
		_, offset := slices[i].Buffer.Device()
		offsetElems := offset / uint64(sd.Type.SizeBytes())
		var word [4]byte
		binary.LittleEndian.PutUint32(word[:], uint32(offsetElems))
		buf.Write(word[:])
		buf.Write([]byte{0, 0, 0, 0}) // pad
	}

	return buf.Bytes(), nil
}
