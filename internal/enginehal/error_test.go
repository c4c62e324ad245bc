package enginehal

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelErrorsWrapAndUnwrap(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"device lost", ErrDeviceLost},
		{"out of memory", ErrDeviceOutOfMemory},
		{"timeout", ErrTimeout},
		{"backend not found", ErrBackendNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("device 0: %w", tt.err)
			if !errors.Is(wrapped, tt.err) {
				t.Fatalf("errors.Is failed to unwrap %v from %v", tt.err, wrapped)
			}
		})
	}
}
