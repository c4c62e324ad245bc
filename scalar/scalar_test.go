package scalar

import "testing"

func TestSizeBytes(t *testing.T) {
	tests := []struct {
		name string
		typ  Type
		want int
	}{
		{"u8", U8, 1},
		{"i8", I8, 1},
		{"u16", U16, 2},
		{"f16", F16, 2},
		{"bf16", BF16, 2},
		{"u32", U32, 4},
		{"f32", F32, 4},
		{"u64", U64, 8},
		{"f64", F64, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.typ.SizeBytes(); got != tt.want {
				t.Errorf("SizeBytes() = %d, want %d", got, tt.want)
			}
			if got := tt.typ.Alignment(); got != tt.want {
				t.Errorf("Alignment() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestElemEqualityIsBitwise(t *testing.T) {
	a := ElemF32(0.5)
	b := ElemF32(0.5)
	if !a.Equal(b) {
		t.Fatal("equal float payloads should compare equal")
	}

	nan1 := ElemU32(0x7fc00001).retag(F32)
	nan2 := ElemU32(0x7fc00002).retag(F32)
	if nan1.Equal(nan2) {
		t.Fatal("distinct NaN bit patterns must not compare equal")
	}
}

func TestElemRoundTrip(t *testing.T) {
	v := ElemU64(0xdeadbeefcafef00d)
	got, err := FromLEBytes(U64, v.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(v) {
		t.Fatalf("round trip mismatch: %v != %v", got, v)
	}
}

func TestFromLEBytesWrongLength(t *testing.T) {
	if _, err := FromLEBytes(F64, []byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for short byte slice")
	}
}

func TestAsU32PanicsOnWrongWidth(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic decoding AsU32 from an 8-byte value")
		}
	}()
	ElemU64(1).AsU32()
}
