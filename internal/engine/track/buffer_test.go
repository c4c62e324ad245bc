package track

import "testing"

func TestIsCompatible(t *testing.T) {
	tests := []struct {
		name string
		a, b Uses
		want bool
	}{
		{"empty is compatible with anything", UsesNone, UsesStorageWrite, true},
		{"two reads are compatible", UsesStorageRead, UsesCopySrc, true},
		{"identical writes are compatible", UsesStorageWrite, UsesStorageWrite, true},
		{"read and write are incompatible", UsesStorageRead, UsesStorageWrite, false},
		{"two distinct writes are incompatible", UsesCopyDst, UsesStorageWrite, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.IsCompatible(tt.b); got != tt.want {
				t.Errorf("%v.IsCompatible(%v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestNeedsBarrier(t *testing.T) {
	tests := []struct {
		name       string
		transition Transition
		want       bool
	}{
		{"no change", Transition{UsesStorageRead, UsesStorageRead}, false},
		{"read to read", Transition{UsesStorageRead, UsesCopySrc}, false},
		{"write to read", Transition{UsesStorageWrite, UsesStorageRead}, true},
		{"read to write", Transition{UsesCopySrc, UsesCopyDst}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.transition.NeedsBarrier(); got != tt.want {
				t.Errorf("NeedsBarrier() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTrackerRecordsTransitions(t *testing.T) {
	tr := NewTracker()

	first := tr.Use(1, UsesCopyDst)
	if first.From != UsesNone || first.To != UsesCopyDst {
		t.Fatalf("first use = %+v", first)
	}

	second := tr.Use(1, UsesStorageRead)
	if second.From != UsesCopyDst || second.To != UsesStorageRead {
		t.Fatalf("second use = %+v", second)
	}
	if !second.NeedsBarrier() {
		t.Fatal("copy-dst -> storage-read must need a barrier")
	}

	tr.Forget(1)
	third := tr.Use(1, UsesStorageRead)
	if third.From != UsesNone {
		t.Fatalf("expected Forget to reset tracked state, got %+v", third)
	}
}
