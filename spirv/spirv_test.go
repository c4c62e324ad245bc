package spirv

import (
	"testing"

	"github.com/gogpu/krnl/scalar"
)

func word(opcode, wordCount uint32) uint32 {
	return wordCount<<16 | opcode
}

// buildModule assembles a minimal module: header, one OpDecorate SpecId
// annotation for resultID 10 with spec id 0, and one 32-bit OpSpecConstant
// with that result id and an initial literal of 256.
func buildModule() Module {
	m := Module{
		magicNumber, 0x00010200, 0, 20, 0, // 5-word header
		word(opDecorate, 4), 10, decorationSpecID, 0, // OpDecorate %10 SpecId 0
		word(opSpecConstant, 4), 1 /* type id */, 10 /* result id */, 256,
	}
	return m
}

func TestSpecializeOverwritesLiteral(t *testing.T) {
	base := buildModule()
	dim := uint8(0)
	result, err := Specialize(base, [3]uint32{256, 1, 1}, []SpecValue{
		{SpecID: 0, Value: scalar.ElemU32(64), ThreadDim: &dim},
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Module[len(result.Module)-1] != 64 {
		t.Fatalf("literal not patched: %v", result.Module)
	}
	if result.Threads[0] != 64 {
		t.Fatalf("Threads[0] = %d, want 64", result.Threads[0])
	}
	if !result.ThreadsSet[0] {
		t.Fatal("expected ThreadsSet[0]")
	}
	if base[len(base)-1] != 256 {
		t.Fatal("Specialize must not mutate the input module")
	}
}

func TestSpecializeZeroThreadDimFails(t *testing.T) {
	base := buildModule()
	dim := uint8(0)
	_, err := Specialize(base, [3]uint32{256, 1, 1}, []SpecValue{
		{SpecID: 0, Value: scalar.ElemU32(0), ThreadDim: &dim},
	})
	if err == nil {
		t.Fatal("expected error for zero thread dimension")
	}
}

func TestSpecializeMissingSpecIDIsNoop(t *testing.T) {
	base := buildModule()
	result, err := Specialize(base, [3]uint32{256, 1, 1}, []SpecValue{
		{SpecID: 99, Value: scalar.ElemU32(64)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Module[len(result.Module)-1] != 256 {
		t.Fatal("unmatched spec id must leave the literal untouched")
	}
}

func TestSpecializeIsPure(t *testing.T) {
	base := buildModule()
	dim := uint8(0)
	values := []SpecValue{{SpecID: 0, Value: scalar.ElemU32(64), ThreadDim: &dim}}

	r1, err := Specialize(base, [3]uint32{256, 1, 1}, values)
	if err != nil {
		t.Fatal(err)
	}
	r2, err := Specialize(base, [3]uint32{256, 1, 1}, values)
	if err != nil {
		t.Fatal(err)
	}
	if len(r1.Module) != len(r2.Module) {
		t.Fatal("output length differs across identical calls")
	}
	for i := range r1.Module {
		if r1.Module[i] != r2.Module[i] {
			t.Fatalf("non-deterministic output at word %d", i)
		}
	}
}

func TestValidateRejectsBadMagic(t *testing.T) {
	m := Module{0, 0, 0, 0, 0}
	if err := m.Validate(); err == nil {
		t.Fatal("expected error for bad magic number")
	}
}

func TestValidateRejectsShortModule(t *testing.T) {
	m := Module{magicNumber, 0}
	if err := m.Validate(); err == nil {
		t.Fatal("expected error for short module")
	}
}
