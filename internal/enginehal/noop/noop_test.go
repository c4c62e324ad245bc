package noop

import (
	"testing"

	"github.com/gogpu/krnl/internal/enginehal"
)

func openDevice(t *testing.T) *Device {
	t.Helper()
	var b Backend
	adapters, err := b.EnumerateAdapters()
	if err != nil || len(adapters) != 1 {
		t.Fatalf("EnumerateAdapters() = %v, %v", adapters, err)
	}
	dev, err := b.OpenDevice(adapters[0], adapters[0].Features)
	if err != nil {
		t.Fatal(err)
	}
	return dev.(*Device)
}

func TestCreateBufferAndRoundTrip(t *testing.T) {
	dev := openDevice(t)
	buf, err := dev.CreateBuffer(16, enginehal.BufferUsageHostVisible)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{1, 2, 3, 4}
	if err := dev.WriteHostVisible(buf, 4, want); err != nil {
		t.Fatal(err)
	}
	got, err := dev.ReadHostVisible(buf, 4, 4)
	if err != nil {
		t.Fatal(err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ReadHostVisible = %v, want %v", got, want)
		}
	}
}

func TestCopyBufferBumpsFence(t *testing.T) {
	dev := openDevice(t)
	src, _ := dev.CreateBuffer(8, enginehal.BufferUsageTransferSrc)
	dst, _ := dev.CreateBuffer(8, enginehal.BufferUsageTransferDst)
	dev.WriteHostVisible(src, 0, []byte{9, 9, 9, 9, 9, 9, 9, 9})

	before := dev.CompletedFence(enginehal.QueueTransfer)
	fence, err := dev.CopyBuffer(src, dst, 0, 0, 8, enginehal.QueueTransfer)
	if err != nil {
		t.Fatal(err)
	}
	if fence <= before {
		t.Fatalf("fence did not advance: before=%d after=%d", before, fence)
	}
	if err := dev.WaitFence(enginehal.QueueTransfer, fence); err != nil {
		t.Fatal(err)
	}

	got, _ := dev.ReadHostVisible(dst, 0, 8)
	for _, b := range got {
		if b != 9 {
			t.Fatalf("copy did not transfer bytes: %v", got)
		}
	}
}

func TestPoisonFailsFast(t *testing.T) {
	dev := openDevice(t)
	dev.Poison()

	if _, err := dev.CreateBuffer(4, 0); err != enginehal.ErrDeviceLost {
		t.Fatalf("CreateBuffer after Poison() = %v, want ErrDeviceLost", err)
	}
	if err := dev.WaitIdle(); err != enginehal.ErrDeviceLost {
		t.Fatalf("WaitIdle after Poison() = %v, want ErrDeviceLost", err)
	}
}

func TestDispatchCountObservesCacheBehavior(t *testing.T) {
	dev := openDevice(t)
	module, err := dev.CreateShaderModule([]uint32{0x07230203, 1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	pipeline, err := dev.CreateComputePipeline(module, "main", 8, 2)
	if err != nil {
		t.Fatal(err)
	}

	before := DispatchCount()
	if _, err := dev.Dispatch(pipeline, [3]uint32{1, 1, 1}, nil, nil, enginehal.QueueCompute); err != nil {
		t.Fatal(err)
	}
	if DispatchCount() != before+1 {
		t.Fatalf("DispatchCount() = %d, want %d", DispatchCount(), before+1)
	}
}
