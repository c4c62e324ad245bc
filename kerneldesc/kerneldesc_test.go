package kerneldesc

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/gogpu/krnl/scalar"
)

func writeString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.LittleEndian, uint32(len(s)))
	buf.WriteString(s)
}

func encodeMinimal(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer

	writeString(&buf, "saxpy")
	binary.Write(&buf, binary.LittleEndian, uint64(42))

	spirv := []uint32{0x07230203, 1, 2, 3}
	binary.Write(&buf, binary.LittleEndian, uint32(len(spirv)))
	for _, w := range spirv {
		binary.Write(&buf, binary.LittleEndian, w)
	}

	buf.Write([]byte{0, 0, 0, 1, 0}) // features: float16 only

	threads := []uint32{64, 1, 1}
	binary.Write(&buf, binary.LittleEndian, uint32(len(threads)))
	for _, w := range threads {
		binary.Write(&buf, binary.LittleEndian, w)
	}

	buf.WriteByte(1) // safe

	binary.Write(&buf, binary.LittleEndian, uint32(1)) // spec_descs
	writeString(&buf, "threads_x")
	buf.WriteByte(byte(scalar.U32))
	buf.WriteByte(1) // has thread_dim
	buf.WriteByte(0) // dim 0

	binary.Write(&buf, binary.LittleEndian, uint32(2)) // slice_descs
	writeString(&buf, "x")
	buf.WriteByte(byte(scalar.F32))
	buf.WriteByte(0) // immutable
	buf.WriteByte(1) // item
	writeString(&buf, "y")
	buf.WriteByte(byte(scalar.F32))
	buf.WriteByte(1) // mutable
	buf.WriteByte(1) // item

	binary.Write(&buf, binary.LittleEndian, uint32(1)) // push_descs
	writeString(&buf, "alpha")
	buf.WriteByte(byte(scalar.F32))

	return buf.Bytes()
}

func TestDecodeRoundTrip(t *testing.T) {
	blob := encodeMinimal(t)
	d, err := Decode(bytes.NewReader(blob))
	if err != nil {
		t.Fatal(err)
	}
	if d.Name != "saxpy" {
		t.Errorf("Name = %q, want saxpy", d.Name)
	}
	if d.Hash != 42 {
		t.Errorf("Hash = %d, want 42", d.Hash)
	}
	if !d.Feature.Contains(FeatureFloat16) {
		t.Error("expected FeatureFloat16 to be set")
	}
	if d.Feature.Contains(FeatureInt8) {
		t.Error("did not expect FeatureInt8 to be set")
	}
	if len(d.Specs) != 1 || d.Specs[0].ThreadDim == nil || *d.Specs[0].ThreadDim != 0 {
		t.Fatalf("unexpected specs: %+v", d.Specs)
	}
	if len(d.Slices) != 2 || !d.Slices[0].Item || !d.Slices[1].Mutable {
		t.Fatalf("unexpected slices: %+v", d.Slices)
	}
	if len(d.Pushes) != 1 || d.Pushes[0].Name != "alpha" {
		t.Fatalf("unexpected pushes: %+v", d.Pushes)
	}
	want := [3]uint32{64, 1, 1}
	if got := d.FixedThreads(); got != want {
		t.Errorf("FixedThreads() = %v, want %v", got, want)
	}
}

func TestDecodeRejectsEmptyThreads(t *testing.T) {
	var buf bytes.Buffer
	writeString(&buf, "k")
	binary.Write(&buf, binary.LittleEndian, uint64(1))
	binary.Write(&buf, binary.LittleEndian, uint32(0)) // spirv len
	buf.Write([]byte{0, 0, 0, 0, 0})
	binary.Write(&buf, binary.LittleEndian, uint32(0)) // threads len 0: invalid

	if _, err := Decode(bytes.NewReader(buf.Bytes())); err == nil {
		t.Fatal("expected error for zero-length threads")
	}
}

func TestDecodeTruncated(t *testing.T) {
	if _, err := Decode(bytes.NewReader([]byte{1, 2, 3})); err == nil {
		t.Fatal("expected error decoding truncated blob")
	}
}
