package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/lumen/engine/core"
)

type physicalDevice struct {
	handle     vk.PhysicalDevice
	properties vk.PhysicalDeviceProperties
	features   vk.PhysicalDeviceFeatures
	memory     vk.PhysicalDeviceMemoryProperties
	queues     queueFamilyInfo
	support    swapchainSupportInfo
}

type queueFamilyInfo struct {
	graphics int32
	present  int32
	compute  int32
}

func (q queueFamilyInfo) complete() bool {
	return q.graphics >= 0 && q.present >= 0 && q.compute >= 0
}

type swapchainSupportInfo struct {
	capabilities vk.SurfaceCapabilities
	formats      []vk.SurfaceFormat
	presentModes []vk.PresentMode
}

type deviceRequirements struct {
	extensions        []string
	samplerAnisotropy bool
}

func (d *Device) createLogicalDevice() error {
	if err := d.selectPhysicalDevice(); err != nil {
		return err
	}

	core.LogInfo("Creating logical device...")
	q := d.physical.queues
	families := []uint32{uint32(q.graphics)}
	if q.present != q.graphics {
		families = append(families, uint32(q.present))
	}
	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(families))
	for i, family := range families {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	deviceFeatures := vk.PhysicalDeviceFeatures{
		SamplerAnisotropy: vk.True,
	}

	extensions := []string{vk.KhrSwapchainExtensionName}
	if hasDeviceExtension(d.physical.handle, "VK_KHR_portability_subset") {
		core.LogInfo("Adding required extension 'VK_KHR_portability_subset'.")
		extensions = append(extensions, "VK_KHR_portability_subset")
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{deviceFeatures},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensions),
	}

	var logical vk.Device
	if res := vk.CreateDevice(d.physical.handle, &deviceCreateInfo, d.allocator, &logical); res != vk.Success {
		err := fmt.Errorf("failed to create logical device: %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}
	d.logical = logical
	core.LogInfo("Logical device created.")

	vk.GetDeviceQueue(d.logical, uint32(q.graphics), 0, &d.graphicsQueue)
	vk.GetDeviceQueue(d.logical, uint32(q.present), 0, &d.presentQueue)
	core.LogInfo("Queues obtained.")

	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: uint32(q.graphics),
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	if res := vk.CreateCommandPool(d.logical, &poolCreateInfo, d.allocator, &d.commandPool); res != vk.Success {
		err := fmt.Errorf("failed to create graphics command pool: %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}
	core.LogInfo("Graphics command pool created.")
	return nil
}

func (d *Device) selectPhysicalDevice() error {
	var count uint32
	if res := vk.EnumeratePhysicalDevices(d.instance, &count, nil); res != vk.Success {
		return fmt.Errorf("enumerate physical devices: %s", VulkanResultString(res, true))
	}
	if count == 0 {
		err := fmt.Errorf("no devices which support Vulkan were found")
		core.LogError(err.Error())
		return err
	}
	devices := make([]vk.PhysicalDevice, count)
	if res := vk.EnumeratePhysicalDevices(d.instance, &count, devices); res != vk.Success {
		return fmt.Errorf("enumerate physical devices: %s", VulkanResultString(res, true))
	}

	requirements := deviceRequirements{
		extensions:        []string{vk.KhrSwapchainExtensionName},
		samplerAnisotropy: true,
	}

	// Discrete GPUs win over the first suitable device.
	var chosen *physicalDevice
	for _, handle := range devices {
		candidate, ok := d.evaluatePhysicalDevice(handle, requirements)
		if !ok {
			continue
		}
		if chosen == nil || candidate.properties.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu {
			chosen = candidate
		}
		if candidate.properties.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu {
			break
		}
	}
	if chosen == nil {
		err := fmt.Errorf("no physical devices were found which meet the requirements")
		core.LogError(err.Error())
		return err
	}
	d.physical = *chosen

	props := chosen.properties
	core.LogInfo("Selected device: '%s'.", vk.ToString(props.DeviceName[:]))
	switch props.DeviceType {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		core.LogInfo("GPU type is Integrated.")
	case vk.PhysicalDeviceTypeDiscreteGpu:
		core.LogInfo("GPU type is Discrete.")
	case vk.PhysicalDeviceTypeVirtualGpu:
		core.LogInfo("GPU type is Virtual.")
	case vk.PhysicalDeviceTypeCpu:
		core.LogInfo("GPU type is CPU.")
	default:
		core.LogInfo("GPU type is Unknown.")
	}
	core.LogInfo(
		"Vulkan API version: %d.%d.%d",
		vk.Version(props.ApiVersion).Major(),
		vk.Version(props.ApiVersion).Minor(),
		vk.Version(props.ApiVersion).Patch(),
	)
	for j := 0; j < int(chosen.memory.MemoryHeapCount); j++ {
		chosen.memory.MemoryHeaps[j].Deref()
		heap := chosen.memory.MemoryHeaps[j]
		gib := float64(heap.Size) / 1024 / 1024 / 1024
		if vk.MemoryHeapFlagBits(heap.Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			core.LogInfo("Local GPU memory: %.2f GiB", gib)
		} else {
			core.LogInfo("Shared System memory: %.2f GiB", gib)
		}
	}
	return nil
}

func (d *Device) evaluatePhysicalDevice(handle vk.PhysicalDevice, requirements deviceRequirements) (*physicalDevice, bool) {
	pd := &physicalDevice{handle: handle}
	vk.GetPhysicalDeviceProperties(handle, &pd.properties)
	pd.properties.Deref()
	vk.GetPhysicalDeviceFeatures(handle, &pd.features)
	pd.features.Deref()
	vk.GetPhysicalDeviceMemoryProperties(handle, &pd.memory)
	pd.memory.Deref()

	name := vk.ToString(pd.properties.DeviceName[:])
	pd.queues = findQueueFamilies(handle, d.surface)
	if !pd.queues.complete() {
		core.LogInfo("Device '%s' lacks a graphics, present or compute queue, skipping.", name)
		return nil, false
	}
	core.LogDebug("Graphics Family Index: %d", pd.queues.graphics)
	core.LogDebug("Present Family Index:  %d", pd.queues.present)
	core.LogDebug("Compute Family Index:  %d", pd.queues.compute)

	support, err := querySwapchainSupport(handle, d.surface)
	if err != nil || len(support.formats) == 0 || len(support.presentModes) == 0 {
		core.LogInfo("Required swapchain support not present, skipping device '%s'.", name)
		return nil, false
	}
	pd.support = support

	for _, ext := range requirements.extensions {
		if !hasDeviceExtension(handle, ext) {
			core.LogInfo("Required extension not found: '%s', skipping device '%s'.", ext, name)
			return nil, false
		}
	}
	if requirements.samplerAnisotropy && pd.features.SamplerAnisotropy == vk.False {
		core.LogInfo("Device '%s' does not support samplerAnisotropy, skipping.", name)
		return nil, false
	}
	return pd, true
}

func findQueueFamilies(handle vk.PhysicalDevice, surface vk.Surface) queueFamilyInfo {
	info := queueFamilyInfo{graphics: -1, present: -1, compute: -1}

	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(handle, &count, nil)
	families := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(handle, &count, families)

	for i := range families {
		families[i].Deref()
		flags := vk.QueueFlagBits(families[i].QueueFlags)
		if flags&vk.QueueGraphicsBit != 0 && info.graphics < 0 {
			info.graphics = int32(i)
		}
		if flags&vk.QueueComputeBit != 0 && info.compute < 0 {
			info.compute = int32(i)
		}
		var supportsPresent vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(handle, uint32(i), surface, &supportsPresent)
		if supportsPresent == vk.True && (info.present < 0 || int32(i) == info.graphics) {
			info.present = int32(i)
		}
	}
	return info
}

func querySwapchainSupport(handle vk.PhysicalDevice, surface vk.Surface) (swapchainSupportInfo, error) {
	var info swapchainSupportInfo
	if res := vk.GetPhysicalDeviceSurfaceCapabilities(handle, surface, &info.capabilities); res != vk.Success {
		return info, fmt.Errorf("surface capabilities: %s", VulkanResultString(res, false))
	}
	info.capabilities.Deref()
	info.capabilities.CurrentExtent.Deref()
	info.capabilities.MinImageExtent.Deref()
	info.capabilities.MaxImageExtent.Deref()

	var formatCount uint32
	if res := vk.GetPhysicalDeviceSurfaceFormats(handle, surface, &formatCount, nil); res != vk.Success {
		return info, fmt.Errorf("surface formats: %s", VulkanResultString(res, false))
	}
	if formatCount > 0 {
		info.formats = make([]vk.SurfaceFormat, formatCount)
		if res := vk.GetPhysicalDeviceSurfaceFormats(handle, surface, &formatCount, info.formats); res != vk.Success {
			return info, fmt.Errorf("surface formats: %s", VulkanResultString(res, false))
		}
		for i := range info.formats {
			info.formats[i].Deref()
		}
	}

	var modeCount uint32
	if res := vk.GetPhysicalDeviceSurfacePresentModes(handle, surface, &modeCount, nil); res != vk.Success {
		return info, fmt.Errorf("failed to get physical device surface present modes: %s", VulkanResultString(res, false))
	}
	if modeCount > 0 {
		info.presentModes = make([]vk.PresentMode, modeCount)
		if res := vk.GetPhysicalDeviceSurfacePresentModes(handle, surface, &modeCount, info.presentModes); res != vk.Success {
			return info, fmt.Errorf("failed to get physical device surface present modes: %s", VulkanResultString(res, false))
		}
	}
	return info, nil
}

func hasDeviceExtension(handle vk.PhysicalDevice, name string) bool {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(handle, "", &count, nil); res != vk.Success || count == 0 {
		return false
	}
	available := make([]vk.ExtensionProperties, count)
	if res := vk.EnumerateDeviceExtensionProperties(handle, "", &count, available); res != vk.Success {
		return false
	}
	for i := range available {
		available[i].Deref()
		if vk.ToString(available[i].ExtensionName[:]) == name {
			return true
		}
	}
	return false
}

// detectDepthFormat maps a requested depth format onto one the device
// supports for optimal tiling.
func (d *Device) detectDepthFormat(preferred vk.Format) vk.Format {
	candidates := []vk.Format{preferred, vk.FormatD32Sfloat, vk.FormatD32SfloatS8Uint, vk.FormatD24UnormS8Uint}
	flags := vk.FormatFeatureDepthStencilAttachmentBit
	for _, c := range candidates {
		var properties vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(d.physical.handle, c, &properties)
		properties.Deref()
		if vk.FormatFeatureFlagBits(properties.OptimalTilingFeatures)&flags == flags {
			return c
		}
	}
	return preferred
}
