// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package vulkan

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/christerso/vulkan-go/pkg/vulkan"
)

// fenceTrack is a per-queue monotonic counter plus the binary VkFences
// currently in flight for it. Submissions are tagged with the counter value
// taken after increment; CompletedFence is the highest value whose VkFence
// has been observed signaled.
type fenceTrack struct {
	mu        sync.Mutex
	device    vulkan.Device
	next      uint64
	completed uint64
	free      []vulkan.Fence
	pending   []pendingFence
}

type pendingFence struct {
	value uint64
	fence vulkan.Fence
}

func newFenceTrack(device vulkan.Device) *fenceTrack {
	return &fenceTrack{device: device}
}

// take returns a free VkFence (creating one if the pool is empty) and the
// next submission value to tag it with.
func (t *fenceTrack) take() (vulkan.Fence, uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.next++
	value := t.next

	if n := len(t.free); n > 0 {
		f := t.free[n-1]
		t.free = t.free[:n-1]
		if result := vulkan.ResetFences(t.device, 1, &f); result != vulkan.Success {
			return 0, 0, fmt.Errorf("vulkan: ResetFences: result %d", result)
		}
		t.pending = append(t.pending, pendingFence{value: value, fence: f})
		return f, value, nil
	}

	info := vulkan.FenceCreateInfo{SType: vulkan.StructureTypeFenceCreateInfo}
	var f vulkan.Fence
	if result := vulkan.CreateFence(t.device, unsafe.Pointer(&info), nil, &f); result != vulkan.Success {
		return 0, 0, fmt.Errorf("vulkan: CreateFence: result %d", result)
	}
	t.pending = append(t.pending, pendingFence{value: value, fence: f})
	return f, value, nil
}

// poll reclaims any pending fence that has signaled, advancing completed.
func (t *fenceTrack) poll() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	live := t.pending[:0]
	for _, p := range t.pending {
		if vulkan.GetFenceStatus(t.device, p.fence) == vulkan.Success {
			if p.value > t.completed {
				t.completed = p.value
			}
			t.free = append(t.free, p.fence)
			continue
		}
		live = append(live, p)
	}
	t.pending = live
	return t.completed
}

// wait blocks until value is signaled or the device is lost.
func (t *fenceTrack) wait(value uint64) error {
	for {
		t.mu.Lock()
		if t.completed >= value {
			t.mu.Unlock()
			return nil
		}
		var target vulkan.Fence
		found := false
		for _, p := range t.pending {
			if p.value == value {
				target = p.fence
				found = true
				break
			}
		}
		t.mu.Unlock()
		if !found {
			// Already reclaimed as a free fence by an earlier poll means
			// it was signaled and counted; otherwise it genuinely never
			// existed, which would be a programmer error upstream.
			t.poll()
			if t.completed >= value {
				return nil
			}
			return fmt.Errorf("vulkan: wait on unknown fence value %d", value)
		}
		result := vulkan.WaitForFences(t.device, 1, &target, vulkan.True, ^uint64(0))
		t.poll()
		if result != vulkan.Success {
			return fmt.Errorf("vulkan: WaitForFences: result %d", result)
		}
	}
}

func (t *fenceTrack) destroy() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.pending {
		vulkan.DestroyFence(t.device, p.fence, nil)
	}
	for _, f := range t.free {
		vulkan.DestroyFence(t.device, f, nil)
	}
	t.pending = nil
	t.free = nil
}
