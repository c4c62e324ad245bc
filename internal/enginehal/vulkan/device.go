// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package vulkan

import (
	"fmt"
	"unsafe"

	"github.com/christerso/vulkan-go/pkg/vulkan"

	"github.com/gogpu/krnl/internal/enginehal"
	"github.com/gogpu/krnl/internal/enginehal/vulkan/memory"
)

type deviceResources struct {
	physical       vulkan.PhysicalDevice
	logical        vulkan.Device
	computeFamily  uint32
	transferFamily uint32
	computeQueue   vulkan.Queue
	transferQueue  vulkan.Queue
	memoryProps    vulkan.PhysicalDeviceMemoryProperties
	limits         vulkan.PhysicalDeviceProperties
	adapter        enginehal.AdapterInfo
	features       enginehal.FeatureSet
}

// Device is the production enginehal.Device, backed by one VkDevice.
type Device struct {
	res deviceResources

	allocator *memory.GpuAllocator

	computeFence  *fenceTrack
	transferFence *fenceTrack

	computePool  vulkan.CommandPool
	transferPool vulkan.CommandPool

	descriptorPool vulkan.DescriptorPool
}

var _ enginehal.Device = (*Device)(nil)

func newDevice(res deviceResources) (*Device, error) {
	props := memory.DeviceMemoryProperties{
		MemoryTypes: make([]memory.MemoryType, res.memoryProps.MemoryTypeCount),
		MemoryHeaps: make([]memory.MemoryHeap, res.memoryProps.MemoryHeapCount),
	}
	for i := uint32(0); i < res.memoryProps.MemoryTypeCount; i++ {
		mt := res.memoryProps.MemoryTypes[i]
		props.MemoryTypes[i] = memory.MemoryType{
			PropertyFlags: mt.PropertyFlags,
			HeapIndex:     mt.HeapIndex,
		}
	}
	for i := uint32(0); i < res.memoryProps.MemoryHeapCount; i++ {
		props.MemoryHeaps[i] = memory.MemoryHeap{Size: res.memoryProps.MemoryHeaps[i].Size}
	}

	allocator, err := memory.NewGpuAllocator(res.logical, props, memory.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("vulkan: memory allocator: %w", err)
	}

	computePool, err := createCommandPool(res.logical, res.computeFamily)
	if err != nil {
		return nil, err
	}
	transferPool := computePool
	if res.transferFamily != res.computeFamily {
		transferPool, err = createCommandPool(res.logical, res.transferFamily)
		if err != nil {
			return nil, err
		}
	}

	descPool, err := createDescriptorPool(res.logical)
	if err != nil {
		return nil, err
	}

	return &Device{
		res:            res,
		allocator:      allocator,
		computeFence:   newFenceTrack(res.logical),
		transferFence:  newFenceTrack(res.logical),
		computePool:    computePool,
		transferPool:   transferPool,
		descriptorPool: descPool,
	}, nil
}

func createCommandPool(device vulkan.Device, family uint32) (vulkan.CommandPool, error) {
	info := vulkan.CommandPoolCreateInfo{
		SType:            vulkan.StructureTypeCommandPoolCreateInfo,
		Flags:            vulkan.CommandPoolCreateResetCommandBufferBit,
		QueueFamilyIndex: family,
	}
	var pool vulkan.CommandPool
	if result := vulkan.CreateCommandPool(device, unsafe.Pointer(&info), nil, &pool); result != vulkan.Success {
		return 0, fmt.Errorf("vulkan: CreateCommandPool: result %d", result)
	}
	return pool, nil
}

func createDescriptorPool(device vulkan.Device) (vulkan.DescriptorPool, error) {
	const maxSets = 4096
	sizes := []vulkan.DescriptorPoolSize{
		{Type: vulkan.DescriptorTypeStorageBuffer, DescriptorCount: maxSets * 8},
	}
	info := vulkan.DescriptorPoolCreateInfo{
		SType:         vulkan.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vulkan.DescriptorPoolCreateFreeDescriptorSetBit,
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    &sizes[0],
	}
	var pool vulkan.DescriptorPool
	if result := vulkan.CreateDescriptorPool(device, unsafe.Pointer(&info), nil, &pool); result != vulkan.Success {
		return 0, fmt.Errorf("vulkan: CreateDescriptorPool: result %d", result)
	}
	return pool, nil
}

func (d *Device) Info() enginehal.DeviceInfo {
	return enginehal.DeviceInfo{
		Index:           d.res.adapter.Index,
		Name:            d.res.adapter.Name,
		Features:        d.res.features,
		ComputeQueues:   1,
		TransferQueues:  boolToInt(d.res.transferFamily != d.res.computeFamily),
		MaxWorkgroup:    d.res.limits.Limits.MaxComputeWorkGroupSize,
		MaxPushConstant: d.res.limits.Limits.MaxPushConstantsSize,
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (d *Device) CreateBuffer(size uint64, usage enginehal.BufferUsage) (enginehal.Buffer, error) {
	info := vulkan.BufferCreateInfo{
		SType:       vulkan.StructureTypeBufferCreateInfo,
		Size:        vulkan.DeviceSize(size),
		Usage:       toVulkanUsage(usage),
		SharingMode: vulkan.SharingModeExclusive,
	}
	var handle vulkan.Buffer
	if result := vulkan.CreateBuffer(d.res.logical, unsafe.Pointer(&info), nil, &handle); result != vulkan.Success {
		return nil, fmt.Errorf("vulkan: CreateBuffer: result %d", result)
	}

	var reqs vulkan.MemoryRequirements
	vulkan.GetBufferMemoryRequirements(d.res.logical, handle, &reqs)

	memUsage := memory.UsageFastDeviceAccess
	hostVisible := usage&enginehal.BufferUsageHostVisible != 0
	if hostVisible {
		memUsage = memory.UsageUpload | memory.UsageDownload
	}

	block, err := d.allocator.Alloc(memory.AllocationRequest{
		Size:           uint64(reqs.Size),
		Alignment:      uint64(reqs.Alignment),
		Usage:          memUsage,
		MemoryTypeBits: reqs.MemoryTypeBits,
	})
	if err != nil {
		vulkan.DestroyBuffer(d.res.logical, handle, nil)
		return nil, enginehal.ErrDeviceOutOfMemory
	}

	if result := vulkan.BindBufferMemory(d.res.logical, handle, block.Memory, vulkan.DeviceSize(block.Offset)); result != vulkan.Success {
		d.allocator.Free(block)
		vulkan.DestroyBuffer(d.res.logical, handle, nil)
		return nil, fmt.Errorf("vulkan: BindBufferMemory: result %d", result)
	}

	return &vulkanBuffer{handle: handle, block: block, size: size, hostVisible: hostVisible}, nil
}

func (d *Device) DestroyBuffer(b enginehal.Buffer) {
	vb, ok := b.(*vulkanBuffer)
	if !ok {
		return
	}
	vulkan.DestroyBuffer(d.res.logical, vb.handle, nil)
	d.allocator.Free(vb.block)
}

func (d *Device) WriteHostVisible(b enginehal.Buffer, offset uint64, data []byte) error {
	vb, ok := b.(*vulkanBuffer)
	if !ok || !vb.hostVisible {
		return fmt.Errorf("vulkan: WriteHostVisible: buffer is not host visible")
	}
	if offset+uint64(len(data)) > vb.size {
		return fmt.Errorf("vulkan: WriteHostVisible: out of range")
	}
	var mapped unsafe.Pointer
	if result := vulkan.MapMemory(d.res.logical, vb.block.Memory, vulkan.DeviceSize(vb.block.Offset+offset), vulkan.DeviceSize(len(data)), 0, &mapped); result != vulkan.Success {
		return fmt.Errorf("vulkan: MapMemory: result %d", result)
	}
	dst := unsafe.Slice((*byte)(mapped), len(data))
	copy(dst, data)
	vulkan.UnmapMemory(d.res.logical, vb.block.Memory)
	return nil
}

func (d *Device) ReadHostVisible(b enginehal.Buffer, offset, length uint64) ([]byte, error) {
	vb, ok := b.(*vulkanBuffer)
	if !ok || !vb.hostVisible {
		return nil, fmt.Errorf("vulkan: ReadHostVisible: buffer is not host visible")
	}
	if offset+length > vb.size {
		return nil, fmt.Errorf("vulkan: ReadHostVisible: out of range")
	}
	var mapped unsafe.Pointer
	if result := vulkan.MapMemory(d.res.logical, vb.block.Memory, vulkan.DeviceSize(vb.block.Offset+offset), vulkan.DeviceSize(length), 0, &mapped); result != vulkan.Success {
		return nil, fmt.Errorf("vulkan: MapMemory: result %d", result)
	}
	out := make([]byte, length)
	copy(out, unsafe.Slice((*byte)(mapped), length))
	vulkan.UnmapMemory(d.res.logical, vb.block.Memory)
	return out, nil
}

func (d *Device) CopyBuffer(src, dst enginehal.Buffer, srcOffset, dstOffset, size uint64, queue enginehal.QueueKind) (uint64, error) {
	vsrc, ok := src.(*vulkanBuffer)
	if !ok {
		return 0, fmt.Errorf("vulkan: CopyBuffer: src is not a vulkan buffer")
	}
	vdst, ok := dst.(*vulkanBuffer)
	if !ok {
		return 0, fmt.Errorf("vulkan: CopyBuffer: dst is not a vulkan buffer")
	}

	cb, pool, err := d.beginOneShot(queue)
	if err != nil {
		return 0, err
	}
	region := vulkan.BufferCopy{SrcOffset: vulkan.DeviceSize(srcOffset), DstOffset: vulkan.DeviceSize(dstOffset), Size: vulkan.DeviceSize(size)}
	vulkan.CmdCopyBuffer(cb, vsrc.handle, vdst.handle, 1, &region)
	return d.submitOneShot(cb, pool, queue)
}

func (d *Device) Flush(queue enginehal.QueueKind) (uint64, error) {
	track, vkQueue := d.queueOf(queue)
	fence, value, err := track.take()
	if err != nil {
		return 0, err
	}
	submit := vulkan.SubmitInfo{SType: vulkan.StructureTypeSubmitInfo}
	if result := vulkan.QueueSubmit(vkQueue, 1, &submit, fence); result != vulkan.Success {
		return 0, fmt.Errorf("vulkan: QueueSubmit: result %d", result)
	}
	return value, nil
}

func (d *Device) CreateShaderModule(spirv []uint32) (enginehal.ShaderModule, error) {
	info := vulkan.ShaderModuleCreateInfo{
		SType:    vulkan.StructureTypeShaderModuleCreateInfo,
		CodeSize: uintptr(len(spirv)) * 4,
		PCode:    &spirv[0],
	}
	var module vulkan.ShaderModule
	if result := vulkan.CreateShaderModule(d.res.logical, unsafe.Pointer(&info), nil, &module); result != vulkan.Success {
		return nil, fmt.Errorf("vulkan: CreateShaderModule: result %d", result)
	}
	return shaderModule(module), nil
}

func (d *Device) DestroyShaderModule(m enginehal.ShaderModule) {
	sm, ok := m.(shaderModule)
	if !ok {
		return
	}
	vulkan.DestroyShaderModule(d.res.logical, vulkan.ShaderModule(sm), nil)
}

func (d *Device) CompletedFence(queue enginehal.QueueKind) uint64 {
	track, _ := d.queueOf(queue)
	return track.poll()
}

func (d *Device) WaitFence(queue enginehal.QueueKind, value uint64) error {
	track, _ := d.queueOf(queue)
	return track.wait(value)
}

func (d *Device) WaitIdle() error {
	if result := vulkan.DeviceWaitIdle(d.res.logical); result != vulkan.Success {
		return fmt.Errorf("vulkan: DeviceWaitIdle: result %d", result)
	}
	return nil
}

func (d *Device) Destroy() {
	d.computeFence.destroy()
	if d.transferFence != d.computeFence {
		d.transferFence.destroy()
	}
	vulkan.DestroyDescriptorPool(d.res.logical, d.descriptorPool, nil)
	vulkan.DestroyCommandPool(d.res.logical, d.computePool, nil)
	if d.transferPool != d.computePool {
		vulkan.DestroyCommandPool(d.res.logical, d.transferPool, nil)
	}
	d.allocator.Destroy()
	vulkan.DestroyDevice(d.res.logical, nil)
}

func (d *Device) queueOf(queue enginehal.QueueKind) (*fenceTrack, vulkan.Queue) {
	if queue == enginehal.QueueTransfer {
		return d.transferFence, d.res.transferQueue
	}
	return d.computeFence, d.res.computeQueue
}

func (d *Device) poolOf(queue enginehal.QueueKind) vulkan.CommandPool {
	if queue == enginehal.QueueTransfer {
		return d.transferPool
	}
	return d.computePool
}

// beginOneShot allocates and begins a single-use primary command buffer on
// the command pool backing queue.
func (d *Device) beginOneShot(queue enginehal.QueueKind) (vulkan.CommandBuffer, vulkan.CommandPool, error) {
	pool := d.poolOf(queue)
	allocInfo := vulkan.CommandBufferAllocateInfo{
		SType:              vulkan.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		Level:              vulkan.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	var cb vulkan.CommandBuffer
	if result := vulkan.AllocateCommandBuffers(d.res.logical, unsafe.Pointer(&allocInfo), &cb); result != vulkan.Success {
		return 0, 0, fmt.Errorf("vulkan: AllocateCommandBuffers: result %d", result)
	}
	beginInfo := vulkan.CommandBufferBeginInfo{
		SType: vulkan.StructureTypeCommandBufferBeginInfo,
		Flags: vulkan.CommandBufferUsageOneTimeSubmitBit,
	}
	if result := vulkan.BeginCommandBuffer(cb, unsafe.Pointer(&beginInfo)); result != vulkan.Success {
		return 0, 0, fmt.Errorf("vulkan: BeginCommandBuffer: result %d", result)
	}
	return cb, pool, nil
}

// submitOneShot ends, submits and frees a one-shot command buffer, returning
// the fence value its completion is tagged with.
func (d *Device) submitOneShot(cb vulkan.CommandBuffer, pool vulkan.CommandPool, queue enginehal.QueueKind) (uint64, error) {
	if result := vulkan.EndCommandBuffer(cb); result != vulkan.Success {
		return 0, fmt.Errorf("vulkan: EndCommandBuffer: result %d", result)
	}

	track, vkQueue := d.queueOf(queue)
	fence, value, err := track.take()
	if err != nil {
		return 0, err
	}

	submit := vulkan.SubmitInfo{
		SType:              vulkan.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    &cb,
	}
	if result := vulkan.QueueSubmit(vkQueue, 1, &submit, fence); result != vulkan.Success {
		return 0, fmt.Errorf("vulkan: QueueSubmit: result %d", result)
	}
	vulkan.FreeCommandBuffers(d.res.logical, pool, 1, &cb)
	return value, nil
}

// shaderModule adapts vulkan.ShaderModule (a plain handle type) to the
// enginehal.ShaderModule marker interface.
type shaderModule vulkan.ShaderModule
