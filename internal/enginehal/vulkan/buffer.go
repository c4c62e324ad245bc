// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package vulkan

import (
	"github.com/christerso/vulkan-go/pkg/vulkan"

	"github.com/gogpu/krnl/internal/enginehal"
	"github.com/gogpu/krnl/internal/enginehal/vulkan/memory"
)

// vulkanBuffer is the concrete type behind enginehal.Buffer for this
// backend: a VkBuffer plus the memory block it is bound to.
type vulkanBuffer struct {
	handle vulkan.Buffer
	block  *memory.MemoryBlock
	size   uint64
	hostVisible bool
}

var _ enginehal.Buffer = (*vulkanBuffer)(nil)

func (b *vulkanBuffer) Size() uint64 { return b.size }

func toVulkanUsage(usage enginehal.BufferUsage) vulkan.BufferUsageFlags {
	var flags vulkan.BufferUsageFlags
	if usage&enginehal.BufferUsageTransferSrc != 0 {
		flags |= vulkan.BufferUsageTransferSrcBit
	}
	if usage&enginehal.BufferUsageTransferDst != 0 {
		flags |= vulkan.BufferUsageTransferDstBit
	}
	if usage&enginehal.BufferUsageStorage != 0 {
		flags |= vulkan.BufferUsageStorageBufferBit
	}
	return flags
}
