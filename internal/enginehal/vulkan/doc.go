// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package vulkan implements enginehal.Backend and enginehal.Device against a
// real Vulkan 1.2+ driver via github.com/christerso/vulkan-go.
//
// # Architecture
//
// Open creates one VkInstance; Backend.EnumerateAdapters walks its physical
// devices, keeping only those that report at least Vulkan 1.2 and a queue
// family with VK_QUEUE_COMPUTE_BIT. OpenDevice creates the VkDevice, its
// compute (and, when present, dedicated transfer) queues, a descriptor pool
// sized for the lifetime of the device, and a memory.GpuAllocator seeded
// from vkGetPhysicalDeviceMemoryProperties.
//
// Device is the only type the engine package talks to; everything else in
// this package (command recording, fence bookkeeping, descriptor set
// allocation) is private.
//
// # Fences
//
// Each queue kind has its own monotonically increasing fence counter.
// Submissions are tagged with the counter value after increment; a binary
// VkFence is taken from a small per-queue pool for each submission and
// returned to the pool once CompletedFence observes it signaled.
package vulkan
