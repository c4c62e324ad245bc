package enginehal

import "errors"

// Sentinel errors representing unrecoverable device states. Callers wrap
// these with context (device index, kernel name) via fmt.Errorf("...: %w").
var (
	// ErrBackendNotFound indicates no Vulkan loader/backend is registered.
	ErrBackendNotFound = errors.New("enginehal: backend not found")

	// ErrDeviceOutOfMemory indicates the device has exhausted its memory.
	// Unrecoverable for the failed allocation; the engine itself is not
	// poisoned.
	ErrDeviceOutOfMemory = errors.New("enginehal: device out of memory")

	// ErrDeviceLost indicates the device has been lost (driver crash or
	// reset, hardware disconnect, driver timeout). The device cannot be
	// recovered; the owning engine is poisoned.
	ErrDeviceLost = errors.New("enginehal: device lost")

	// ErrTimeout indicates a fence wait timed out.
	ErrTimeout = errors.New("enginehal: timeout")
)
