// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package vulkan

import (
	"fmt"
	"unsafe"

	"github.com/christerso/vulkan-go/pkg/vulkan"

	"github.com/gogpu/krnl/internal/enginehal"
)

const minAPIVersion = uint32(1)<<22 | uint32(2)<<12 // VK_API_VERSION_1_2

// Backend is the production enginehal.Backend, backed by one VkInstance.
type Backend struct {
	instance vulkan.Instance
}

var _ enginehal.Backend = Backend{}

// Open initializes the Vulkan loader and creates the instance used for
// adapter enumeration. Call once per process.
func Open(appName string) (Backend, error) {
	if err := vulkan.Init(); err != nil {
		return Backend{}, fmt.Errorf("vulkan: init: %w", err)
	}

	appInfo := vulkan.ApplicationInfo{
		SType:         vulkan.StructureTypeApplicationInfo,
		PApplicationName: cString(appName),
		ApiVersion:    minAPIVersion,
	}
	createInfo := vulkan.InstanceCreateInfo{
		SType:            vulkan.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &appInfo,
	}

	var instance vulkan.Instance
	if result := vulkan.CreateInstance(unsafe.Pointer(&createInfo), nil, &instance); result != vulkan.Success {
		return Backend{}, fmt.Errorf("vulkan: CreateInstance: result %d", result)
	}
	return Backend{instance: instance}, nil
}

func (b Backend) Name() string { return "vulkan" }

// EnumerateAdapters returns every physical device that reports at least
// Vulkan 1.2 and exposes a compute-capable queue family.
func (b Backend) EnumerateAdapters() ([]enginehal.AdapterInfo, error) {
	var count uint32
	if result := vulkan.EnumeratePhysicalDevices(b.instance, &count, nil); result != vulkan.Success {
		return nil, fmt.Errorf("vulkan: EnumeratePhysicalDevices(count): result %d", result)
	}
	if count == 0 {
		return nil, enginehal.ErrBackendNotFound
	}
	devices := make([]vulkan.PhysicalDevice, count)
	if result := vulkan.EnumeratePhysicalDevices(b.instance, &count, &devices[0]); result != vulkan.Success {
		return nil, fmt.Errorf("vulkan: EnumeratePhysicalDevices(list): result %d", result)
	}

	adapters := make([]enginehal.AdapterInfo, 0, len(devices))
	for i, pd := range devices {
		var props vulkan.PhysicalDeviceProperties
		vulkan.GetPhysicalDeviceProperties(pd, &props)
		if props.ApiVersion < minAPIVersion {
			continue
		}

		families := queueFamilyProperties(pd)
		if findComputeFamily(families) < 0 {
			continue
		}

		var feats vulkan.PhysicalDeviceFeatures
		vulkan.GetPhysicalDeviceFeatures(pd, &feats)

		adapters = append(adapters, enginehal.AdapterInfo{
			Index:                     i,
			Name:                      goString(props.DeviceName[:]),
			APIVersion:                props.ApiVersion,
			DriverVersion:             props.DriverVersion,
			Features:                  featureSetFromVulkan(feats),
			HasDedicatedTransferQueue: findDedicatedTransferFamily(families) >= 0,
		})
	}
	if len(adapters) == 0 {
		return nil, enginehal.ErrBackendNotFound
	}
	return adapters, nil
}

// OpenDevice creates a logical device for adapter with a compute queue and,
// when available, a dedicated transfer queue.
func (b Backend) OpenDevice(adapter enginehal.AdapterInfo, want enginehal.FeatureSet) (enginehal.Device, error) {
	var count uint32
	if result := vulkan.EnumeratePhysicalDevices(b.instance, &count, nil); result != vulkan.Success || int(count) <= adapter.Index {
		return nil, enginehal.ErrBackendNotFound
	}
	devices := make([]vulkan.PhysicalDevice, count)
	vulkan.EnumeratePhysicalDevices(b.instance, &count, &devices[0])
	pd := devices[adapter.Index]

	families := queueFamilyProperties(pd)
	computeFamily := findComputeFamily(families)
	if computeFamily < 0 {
		return nil, enginehal.ErrBackendNotFound
	}
	transferFamily := findDedicatedTransferFamily(families)
	if transferFamily < 0 {
		transferFamily = computeFamily
	}

	priority := float32(1.0)
	queueInfos := []vulkan.DeviceQueueCreateInfo{{
		SType:            vulkan.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: uint32(computeFamily),
		QueueCount:       1,
		PQueuePriorities: &priority,
	}}
	if transferFamily != computeFamily {
		queueInfos = append(queueInfos, vulkan.DeviceQueueCreateInfo{
			SType:            vulkan.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: uint32(transferFamily),
			QueueCount:       1,
			PQueuePriorities: &priority,
		})
	}

	deviceInfo := vulkan.DeviceCreateInfo{
		SType:                vulkan.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: uint32(len(queueInfos)),
		PQueueCreateInfos:    &queueInfos[0],
	}

	var device vulkan.Device
	if result := vulkan.CreateDevice(pd, unsafe.Pointer(&deviceInfo), nil, &device); result != vulkan.Success {
		return nil, fmt.Errorf("vulkan: CreateDevice: result %d", result)
	}

	var computeQueue, transferQueue vulkan.Queue
	vulkan.GetDeviceQueue(device, uint32(computeFamily), 0, &computeQueue)
	if transferFamily != computeFamily {
		vulkan.GetDeviceQueue(device, uint32(transferFamily), 0, &transferQueue)
	} else {
		transferQueue = computeQueue
	}

	var memProps vulkan.PhysicalDeviceMemoryProperties
	vulkan.GetPhysicalDeviceMemoryProperties(pd, &memProps)

	var limits vulkan.PhysicalDeviceProperties
	vulkan.GetPhysicalDeviceProperties(pd, &limits)

	return newDevice(deviceResources{
		physical:       pd,
		logical:        device,
		computeFamily:  uint32(computeFamily),
		transferFamily: uint32(transferFamily),
		computeQueue:   computeQueue,
		transferQueue:  transferQueue,
		memoryProps:    memProps,
		limits:         limits,
		adapter:        adapter,
		features:       adapter.Features.Intersect(want),
	})
}

func queueFamilyProperties(pd vulkan.PhysicalDevice) []vulkan.QueueFamilyProperties {
	var count uint32
	vulkan.GetPhysicalDeviceQueueFamilyProperties(pd, &count, nil)
	if count == 0 {
		return nil
	}
	families := make([]vulkan.QueueFamilyProperties, count)
	vulkan.GetPhysicalDeviceQueueFamilyProperties(pd, &count, &families[0])
	return families
}

func findComputeFamily(families []vulkan.QueueFamilyProperties) int {
	for i, f := range families {
		if f.QueueFlags&vulkan.QueueComputeBit != 0 {
			return i
		}
	}
	return -1
}

// findDedicatedTransferFamily returns a family advertising transfer but not
// compute or graphics, preferred for host<->device copies so they do not
// contend with compute dispatch submission.
func findDedicatedTransferFamily(families []vulkan.QueueFamilyProperties) int {
	for i, f := range families {
		if f.QueueFlags&vulkan.QueueTransferBit == 0 {
			continue
		}
		if f.QueueFlags&(vulkan.QueueComputeBit|vulkan.QueueGraphicsBit) != 0 {
			continue
		}
		return i
	}
	return -1
}

func featureSetFromVulkan(f vulkan.PhysicalDeviceFeatures) enginehal.FeatureSet {
	var out enginehal.FeatureSet
	if f.ShaderInt16 != 0 {
		out |= enginehal.FeatureInt16
	}
	if f.ShaderInt64 != 0 {
		out |= enginehal.FeatureInt64
	}
	if f.ShaderFloat64 != 0 {
		out |= enginehal.FeatureFloat64
	}
	return out
}

func cString(s string) *uint8 {
	b := append([]byte(s), 0)
	return &b[0]
}

func goString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
