// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package vulkan

import (
	"fmt"
	"unsafe"

	"github.com/christerso/vulkan-go/pkg/vulkan"

	"github.com/gogpu/krnl/internal/enginehal"
)

// vulkanPipeline is the concrete type behind enginehal.Pipeline: a compute
// pipeline plus the layout objects a dispatch needs to bind buffers and
// push constants against it.
type vulkanPipeline struct {
	pipeline          vulkan.Pipeline
	layout            vulkan.PipelineLayout
	setLayout         vulkan.DescriptorSetLayout
	bindingCount      int
	pushConstantBytes uint32
}

var _ enginehal.Pipeline = (*vulkanPipeline)(nil)

func (d *Device) CreateComputePipeline(module enginehal.ShaderModule, entryPoint string, pushConstantBytes uint32, bindingCount int) (enginehal.Pipeline, error) {
	sm, ok := module.(shaderModule)
	if !ok {
		return nil, fmt.Errorf("vulkan: CreateComputePipeline: module is not a vulkan shader module")
	}

	bindings := make([]vulkan.DescriptorSetLayoutBinding, bindingCount)
	for i := range bindings {
		bindings[i] = vulkan.DescriptorSetLayoutBinding{
			Binding:         uint32(i),
			DescriptorType:  vulkan.DescriptorTypeStorageBuffer,
			DescriptorCount: 1,
			StageFlags:      vulkan.ShaderStageComputeBit,
		}
	}
	setLayoutInfo := vulkan.DescriptorSetLayoutCreateInfo{
		SType:        vulkan.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(bindingCount),
	}
	if bindingCount > 0 {
		setLayoutInfo.PBindings = &bindings[0]
	}
	var setLayout vulkan.DescriptorSetLayout
	if result := vulkan.CreateDescriptorSetLayout(d.res.logical, unsafe.Pointer(&setLayoutInfo), nil, &setLayout); result != vulkan.Success {
		return nil, fmt.Errorf("vulkan: CreateDescriptorSetLayout: result %d", result)
	}

	layoutInfo := vulkan.PipelineLayoutCreateInfo{
		SType:          vulkan.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: 1,
		PSetLayouts:    &setLayout,
	}
	var pushRange vulkan.PushConstantRange
	if pushConstantBytes > 0 {
		pushRange = vulkan.PushConstantRange{StageFlags: vulkan.ShaderStageComputeBit, Offset: 0, Size: pushConstantBytes}
		layoutInfo.PushConstantRangeCount = 1
		layoutInfo.PPushConstantRanges = &pushRange
	}
	var layout vulkan.PipelineLayout
	if result := vulkan.CreatePipelineLayout(d.res.logical, unsafe.Pointer(&layoutInfo), nil, &layout); result != vulkan.Success {
		vulkan.DestroyDescriptorSetLayout(d.res.logical, setLayout, nil)
		return nil, fmt.Errorf("vulkan: CreatePipelineLayout: result %d", result)
	}

	entry := append([]byte(entryPoint), 0)
	stageInfo := vulkan.PipelineShaderStageCreateInfo{
		SType:  vulkan.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vulkan.ShaderStageComputeBit,
		Module: vulkan.ShaderModule(sm),
		PName:  &entry[0],
	}
	createInfo := vulkan.ComputePipelineCreateInfo{
		SType:  vulkan.StructureTypeComputePipelineCreateInfo,
		Stage:  stageInfo,
		Layout: layout,
	}
	var pipeline vulkan.Pipeline
	if result := vulkan.CreateComputePipelines(d.res.logical, 0, 1, unsafe.Pointer(&createInfo), nil, &pipeline); result != vulkan.Success {
		vulkan.DestroyPipelineLayout(d.res.logical, layout, nil)
		vulkan.DestroyDescriptorSetLayout(d.res.logical, setLayout, nil)
		return nil, fmt.Errorf("vulkan: CreateComputePipelines: result %d", result)
	}

	return &vulkanPipeline{
		pipeline:          pipeline,
		layout:            layout,
		setLayout:         setLayout,
		bindingCount:      bindingCount,
		pushConstantBytes: pushConstantBytes,
	}, nil
}

func (d *Device) DestroyComputePipeline(p enginehal.Pipeline) {
	vp, ok := p.(*vulkanPipeline)
	if !ok {
		return
	}
	vulkan.DestroyPipeline(d.res.logical, vp.pipeline, nil)
	vulkan.DestroyPipelineLayout(d.res.logical, vp.layout, nil)
	vulkan.DestroyDescriptorSetLayout(d.res.logical, vp.setLayout, nil)
}

// Dispatch allocates a transient descriptor set bound to bindings, records
// one compute dispatch with pushConstants, and submits it on the compute
// queue.
func (d *Device) Dispatch(pipeline enginehal.Pipeline, groups [3]uint32, bindings []enginehal.BufferBinding, pushConstants []byte, queue enginehal.QueueKind) (uint64, error) {
	vp, ok := pipeline.(*vulkanPipeline)
	if !ok {
		return 0, fmt.Errorf("vulkan: Dispatch: pipeline is not a vulkan pipeline")
	}

	set, err := d.allocateDescriptorSet(vp.setLayout)
	if err != nil {
		return 0, err
	}
	d.writeBufferBindings(set, bindings)

	cb, pool, err := d.beginOneShot(queue)
	if err != nil {
		return 0, err
	}

	vulkan.CmdBindPipeline(cb, vulkan.PipelineBindPointCompute, vp.pipeline)
	vulkan.CmdBindDescriptorSets(cb, vulkan.PipelineBindPointCompute, vp.layout, 0, 1, &set, 0, nil)
	if len(pushConstants) > 0 {
		vulkan.CmdPushConstants(cb, vp.layout, vulkan.ShaderStageComputeBit, 0, uint32(len(pushConstants)), unsafe.Pointer(&pushConstants[0]))
	}
	vulkan.CmdDispatch(cb, groups[0], groups[1], groups[2])

	value, err := d.submitOneShot(cb, pool, queue)
	vulkan.FreeDescriptorSets(d.res.logical, d.descriptorPool, 1, &set)
	return value, err
}

func (d *Device) allocateDescriptorSet(layout vulkan.DescriptorSetLayout) (vulkan.DescriptorSet, error) {
	info := vulkan.DescriptorSetAllocateInfo{
		SType:              vulkan.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     d.descriptorPool,
		DescriptorSetCount: 1,
		PSetLayouts:        &layout,
	}
	var set vulkan.DescriptorSet
	if result := vulkan.AllocateDescriptorSets(d.res.logical, unsafe.Pointer(&info), &set); result != vulkan.Success {
		return 0, fmt.Errorf("vulkan: AllocateDescriptorSets: result %d", result)
	}
	return set, nil
}

func (d *Device) writeBufferBindings(set vulkan.DescriptorSet, bindings []enginehal.BufferBinding) {
	if len(bindings) == 0 {
		return
	}
	infos := make([]vulkan.DescriptorBufferInfo, len(bindings))
	writes := make([]vulkan.WriteDescriptorSet, len(bindings))
	for i, b := range bindings {
		vb := b.Buffer.(*vulkanBuffer)
		infos[i] = vulkan.DescriptorBufferInfo{Buffer: vb.handle, Offset: vulkan.DeviceSize(b.Offset), Range: vulkan.DeviceSize(b.Size)}
		writes[i] = vulkan.WriteDescriptorSet{
			SType:           vulkan.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      uint32(b.Binding),
			DescriptorCount: 1,
			DescriptorType:  vulkan.DescriptorTypeStorageBuffer,
			PBufferInfo:     &infos[i],
		}
	}
	vulkan.UpdateDescriptorSets(d.res.logical, uint32(len(writes)), &writes[0], 0, nil)
}
