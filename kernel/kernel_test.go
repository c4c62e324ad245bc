package kernel

import (
	"testing"

	"github.com/gogpu/krnl/internal/engine"
	"github.com/gogpu/krnl/internal/enginehal/noop"
	"github.com/gogpu/krnl/kerneldesc"
	"github.com/gogpu/krnl/rawbuffer"
	"github.com/gogpu/krnl/scalar"
)

func word(opcode, wordCount uint32) uint32 { return wordCount<<16 | opcode }

// saxpyModule builds a minimal valid SPIR-V module with one SpecId(0)
// decoration on result %10, and an OpSpecConstant %type %10 = 1 carrying a
// single 32-bit literal operand, bound to thread_dim axis x.
func saxpyModule() []uint32 {
	return []uint32{
		0x07230203, 0x00010300, 0, 11, 0, // header
		word(71, 4), 10, 1, 0, // OpDecorate %10 SpecId 0
		word(50, 4), 0, 10, 1, // OpSpecConstant %type %10 1
	}
}

func saxpyDesc() *kerneldesc.Desc {
	threadDim := uint8(0)
	return &kerneldesc.Desc{
		Name:    "saxpy",
		Hash:    1,
		SPIRV:   append([]uint32{}, saxpyModule()...),
		Threads: []uint32{1},
		Safe:    true,
		Specs: []kerneldesc.SpecDesc{
			{Name: "threads_x", Type: scalar.U32, ThreadDim: &threadDim},
		},
		Slices: []kerneldesc.SliceDesc{
			{Name: "x", Type: scalar.F32, Mutable: false, Item: true},
			{Name: "y", Type: scalar.F32, Mutable: true, Item: true},
		},
		Pushes: []kerneldesc.PushDesc{
			{Name: "alpha", Type: scalar.F32},
		},
	}
}

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e, err := engine.New(engine.Options{Backend: noop.Backend{}})
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func buildSaxpyKernel(t *testing.T, e *engine.Engine) *Kernel {
	t.Helper()
	b := FromDescriptor(saxpyDesc())
	if _, err := b.Specialize([]scalar.Elem{scalar.ElemU32(64)}); err != nil {
		t.Fatal(err)
	}
	k, err := b.Build(e)
	if err != nil {
		t.Fatal(err)
	}
	return k
}

func TestBuildRejectsHostDevice(t *testing.T) {
	b := FromDescriptor(saxpyDesc())
	if _, err := b.Specialize([]scalar.Elem{scalar.ElemU32(64)}); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Build(nil); err == nil {
		t.Fatal("expected error building against a nil (host) device")
	}
}

func TestSpecializeRejectsWrongCount(t *testing.T) {
	b := FromDescriptor(saxpyDesc())
	if _, err := b.Specialize(nil); err == nil {
		t.Fatal("expected error for missing specialization value")
	}
}

func TestSpecializeRejectsZeroThreadDim(t *testing.T) {
	b := FromDescriptor(saxpyDesc())
	if _, err := b.Specialize([]scalar.Elem{scalar.ElemU32(0)}); err == nil {
		t.Fatal("expected error for zero thread_dim value")
	}
}

func TestDispatchElementwiseInfersGroupsFromItemLength(t *testing.T) {
	e := newTestEngine(t)
	k := buildSaxpyKernel(t, e)

	x, err := rawbuffer.Alloc(e, scalar.F32, 4)
	if err != nil {
		t.Fatal(err)
	}
	y, err := rawbuffer.Alloc(e, scalar.F32, 4)
	if err != nil {
		t.Fatal(err)
	}

	completion, err := k.Dispatch([3]uint32{}, []SliceArg{{Buffer: x}, {Buffer: y}}, []PushArg{{Value: scalar.ElemF32(0.5)}})
	if err != nil {
		t.Fatal(err)
	}
	if err := completion.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestDispatchElidesOnZeroLengthItemSlice(t *testing.T) {
	e := newTestEngine(t)
	k := buildSaxpyKernel(t, e)

	x, err := rawbuffer.Alloc(e, scalar.F32, 0)
	if err != nil {
		t.Fatal(err)
	}
	y, err := rawbuffer.Alloc(e, scalar.F32, 0)
	if err != nil {
		t.Fatal(err)
	}

	before := noop.DispatchCount()
	completion, err := k.Dispatch([3]uint32{}, []SliceArg{{Buffer: x}, {Buffer: y}}, []PushArg{{Value: scalar.ElemF32(0.5)}})
	if err != nil {
		t.Fatal(err)
	}
	if !completion.Done() {
		t.Fatal("zero-length elementwise dispatch must report Done() immediately")
	}
	if noop.DispatchCount() != before {
		t.Fatal("zero-length elementwise dispatch must not reach the backend")
	}
}

func TestDispatchRejectsWrongDeviceSlice(t *testing.T) {
	e1 := newTestEngine(t)
	e2 := newTestEngine(t)
	k := buildSaxpyKernel(t, e1)

	x, _ := rawbuffer.Alloc(e2, scalar.F32, 4)
	y, _ := rawbuffer.Alloc(e1, scalar.F32, 4)

	if _, err := k.Dispatch([3]uint32{1, 1, 1}, []SliceArg{{Buffer: x}, {Buffer: y}}, []PushArg{{Value: scalar.ElemF32(0.5)}}); err == nil {
		t.Fatal("expected error dispatching a slice from a different engine")
	}
}

func TestGlobalThreadsConvertsToGroups(t *testing.T) {
	e := newTestEngine(t)
	k := buildSaxpyKernel(t, e)

	groups, err := k.GlobalThreads([3]uint32{4, 1, 1})
	if err != nil {
		t.Fatal(err)
	}
	if groups[0] != 1 {
		t.Fatalf("groups[0] = %d, want 1 (ceil(4/64))", groups[0])
	}
}

func TestCompileOrFetchCachesAcrossIdenticalSpecialization(t *testing.T) {
	e := newTestEngine(t)
	desc := saxpyDesc()

	b1 := FromDescriptor(desc)
	b1.Specialize([]scalar.Elem{scalar.ElemU32(64)})
	k1, err := b1.Build(e)
	if err != nil {
		t.Fatal(err)
	}

	b2 := FromDescriptor(desc)
	b2.Specialize([]scalar.Elem{scalar.ElemU32(64)})
	k2, err := b2.Build(e)
	if err != nil {
		t.Fatal(err)
	}

	if k1.pipeline != k2.pipeline {
		t.Fatal("identical descriptor pointer + identical specialization must hit the pipeline cache")
	}
}
