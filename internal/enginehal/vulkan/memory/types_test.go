package memory

import (
	"testing"

	"github.com/christerso/vulkan-go/pkg/vulkan"
)

func testProps() DeviceMemoryProperties {
	return DeviceMemoryProperties{
		MemoryTypes: []MemoryType{
			{PropertyFlags: vulkan.MemoryPropertyFlags(vulkan.MemoryPropertyDeviceLocalBit), HeapIndex: 0},
			{PropertyFlags: vulkan.MemoryPropertyFlags(vulkan.MemoryPropertyHostVisibleBit | vulkan.MemoryPropertyHostCoherentBit), HeapIndex: 1},
			{PropertyFlags: vulkan.MemoryPropertyFlags(vulkan.MemoryPropertyHostVisibleBit | vulkan.MemoryPropertyHostCachedBit), HeapIndex: 1},
		},
		MemoryHeaps: []MemoryHeap{
			{Size: 8 << 30},
			{Size: 2 << 30},
		},
	}
}

func TestSelectMemoryTypePrefersDeviceLocalForFastAccess(t *testing.T) {
	s := NewMemoryTypeSelector(testProps())
	idx, ok := s.SelectMemoryType(AllocationRequest{Size: 1024, Usage: UsageFastDeviceAccess, MemoryTypeBits: 0b111})
	if !ok {
		t.Fatal("expected a memory type to be found")
	}
	if idx != 0 {
		t.Fatalf("SelectMemoryType = %d, want 0 (device local)", idx)
	}
}

func TestSelectMemoryTypePrefersCachedForDownload(t *testing.T) {
	s := NewMemoryTypeSelector(testProps())
	idx, ok := s.SelectMemoryType(AllocationRequest{Size: 1024, Usage: UsageDownload, MemoryTypeBits: 0b111})
	if !ok {
		t.Fatal("expected a memory type to be found")
	}
	if idx != 2 {
		t.Fatalf("SelectMemoryType = %d, want 2 (host cached)", idx)
	}
}

func TestSelectMemoryTypeRespectsTypeBitsMask(t *testing.T) {
	s := NewMemoryTypeSelector(testProps())
	// Exclude index 0 (device local) from the mask; fast-access request must
	// fall back to a host-visible type instead of reporting failure.
	idx, ok := s.SelectMemoryType(AllocationRequest{Size: 1024, Usage: UsageFastDeviceAccess, MemoryTypeBits: 0b110})
	if !ok {
		t.Fatal("expected fallback memory type")
	}
	if idx == 0 {
		t.Fatal("masked-out type must not be selected")
	}
}

func TestIsDeviceLocalAndHostVisible(t *testing.T) {
	s := NewMemoryTypeSelector(testProps())
	if !s.IsDeviceLocal(0) {
		t.Fatal("type 0 should be device local")
	}
	if s.IsDeviceLocal(1) {
		t.Fatal("type 1 should not be device local")
	}
	if !s.IsHostVisible(1) {
		t.Fatal("type 1 should be host visible")
	}
}

func TestGetHeapSizeOutOfRange(t *testing.T) {
	s := NewMemoryTypeSelector(testProps())
	if got := s.GetHeapSize(99); got != 0 {
		t.Fatalf("GetHeapSize(99) = %d, want 0", got)
	}
	if got := s.GetHeapSize(0); got != 8<<30 {
		t.Fatalf("GetHeapSize(0) = %d, want %d", got, 8<<30)
	}
}
