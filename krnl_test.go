// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package krnl

import (
	"bytes"
	"testing"

	"github.com/gogpu/krnl/internal/enginehal/noop"
	"github.com/gogpu/krnl/scalar"
)

func testDevice(t *testing.T) *Device {
	t.Helper()
	d, err := NewBuilder().withBackend(noop.Backend{}).Build()
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestFromVecIntoVecRoundTrip(t *testing.T) {
	want := []float32{1, 2, 3, 4}
	buf, err := FromVec(want)
	if err != nil {
		t.Fatal(err)
	}
	got, err := buf.IntoVec()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestFromVecIntoDeviceIntoVecRoundTrip(t *testing.T) {
	d := testDevice(t)
	want := []uint32{10, 20, 30, 40}
	buf, err := FromVec(want)
	if err != nil {
		t.Fatal(err)
	}
	future, err := buf.IntoDevice(d)
	if err != nil {
		t.Fatal(err)
	}
	devBuf, err := future.Wait()
	if err != nil {
		t.Fatal(err)
	}
	got, err := devBuf.IntoVec()
	if err != nil {
		t.Fatal(err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestAsHostSliceFailsOnDeviceResidentBuffer(t *testing.T) {
	d := testDevice(t)
	buf, err := AllocUninit[float32](d, 4)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := buf.AsHostSlice(); err == nil {
		t.Fatal("expected error reading a device-resident buffer's host slice")
	}
}

func TestArcBufferCloneIntoBufferClonesWhenShared(t *testing.T) {
	owned, err := FromVec([]int32{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	arc := NewArcBuffer(owned)
	clone := arc.Clone()
	if arc.RefCount() != 2 {
		t.Fatalf("RefCount() = %d, want 2", arc.RefCount())
	}

	a, err := arc.IntoBuffer()
	if err != nil {
		t.Fatal(err)
	}
	b, err := clone.IntoBuffer()
	if err != nil {
		t.Fatal(err)
	}

	av, _ := a.AsHostSlice()
	bv, _ := b.AsHostSlice()
	if len(av) != 3 || len(bv) != 3 {
		t.Fatalf("expected both clones to keep all 3 elements, got %d and %d", len(av), len(bv))
	}
}

func TestCopyOnWriteClonesOnlyOnFirstMutableAccess(t *testing.T) {
	owned, err := FromVec([]float32{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	borrowed := owned.AsSlice()
	cow := NewCopyOnWriteBorrowed(borrowed)

	mut1, err := cow.AsSliceMut()
	if err != nil {
		t.Fatal(err)
	}
	mut2, err := cow.AsSliceMut()
	if err != nil {
		t.Fatal(err)
	}
	if mut1.rawBuffer() != mut2.rawBuffer() {
		t.Fatal("second AsSliceMut must reuse the already-owned clone, not clone again")
	}
}

func TestKernelBuilderRejectsHostDevice(t *testing.T) {
	desc := testDescBytes(t)
	b, err := NewKernelBuilder(bytes.NewReader(desc))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Specialize([]scalar.Elem{scalar.ElemU32(64)}); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Build(Host()); err == nil {
		t.Fatal("expected error building a kernel against the host device")
	}
}

func TestKernelDispatchEndToEndAgainstNoop(t *testing.T) {
	d := testDevice(t)
	desc := testDescBytes(t)

	b, err := NewKernelBuilder(bytes.NewReader(desc))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Specialize([]scalar.Elem{scalar.ElemU32(64)}); err != nil {
		t.Fatal(err)
	}
	k, err := b.Build(d)
	if err != nil {
		t.Fatal(err)
	}

	x, err := AllocUninit[float32](d, 4)
	if err != nil {
		t.Fatal(err)
	}
	y, err := AllocUninit[float32](d, 4)
	if err != nil {
		t.Fatal(err)
	}

	completion, err := k.Dispatch([3]uint32{}, []Arg{BindBuffer(x), BindBuffer(y)}, []Push{PushValue(scalar.ElemF32(0.5))})
	if err != nil {
		t.Fatal(err)
	}
	if err := completion.Wait(); err != nil {
		t.Fatal(err)
	}
}

// testDescBytes encodes a minimal saxpy-shaped descriptor via the
// kerneldesc wire schema, exercising kerneldesc.Decode the same way a
// real offline-compiler blob would be consumed.
func testDescBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	writeString(&buf, "saxpy")
	writeU64(&buf, 1)

	spirv := saxpySPIRV()
	writeU32(&buf, uint32(len(spirv)))
	for _, w := range spirv {
		writeU32(&buf, w)
	}

	buf.Write([]byte{0, 0, 0, 0, 0}) // features

	writeU32(&buf, 1)
	writeU32(&buf, 1) // threads[0]

	buf.WriteByte(1) // safe

	writeU32(&buf, 1) // spec_descs count
	writeString(&buf, "threads_x")
	buf.WriteByte(byte(scalar.U32))
	buf.WriteByte(1) // has thread_dim
	buf.WriteByte(0) // axis x

	writeU32(&buf, 2) // slice_descs count
	writeString(&buf, "x")
	buf.WriteByte(byte(scalar.F32))
	buf.WriteByte(0) // immutable
	buf.WriteByte(1) // item
	writeString(&buf, "y")
	buf.WriteByte(byte(scalar.F32))
	buf.WriteByte(1) // mutable
	buf.WriteByte(1) // item

	writeU32(&buf, 1) // push_descs count
	writeString(&buf, "alpha")
	buf.WriteByte(byte(scalar.F32))

	return buf.Bytes()
}

func saxpySPIRV() []uint32 {
	word := func(opcode, wordCount uint32) uint32 { return wordCount<<16 | opcode }
	return []uint32{
		0x07230203, 0x00010300, 0, 11, 0,
		word(71, 4), 10, 1, 0,
		word(50, 4), 0, 10, 1,
	}
}

func writeString(buf *bytes.Buffer, s string) {
	writeU32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func writeU32(buf *bytes.Buffer, v uint32) {
	buf.WriteByte(byte(v))
	buf.WriteByte(byte(v >> 8))
	buf.WriteByte(byte(v >> 16))
	buf.WriteByte(byte(v >> 24))
}

func writeU64(buf *bytes.Buffer, v uint64) {
	writeU32(buf, uint32(v))
	writeU32(buf, uint32(v>>32))
}
