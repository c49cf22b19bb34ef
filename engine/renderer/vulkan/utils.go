package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

var resultNames = map[vk.Result]string{
	vk.Success:                   "VK_SUCCESS",
	vk.NotReady:                  "VK_NOT_READY",
	vk.Timeout:                   "VK_TIMEOUT",
	vk.EventSet:                  "VK_EVENT_SET",
	vk.EventReset:                "VK_EVENT_RESET",
	vk.Incomplete:                "VK_INCOMPLETE",
	vk.Suboptimal:                "VK_SUBOPTIMAL_KHR",
	vk.ErrorOutOfHostMemory:      "VK_ERROR_OUT_OF_HOST_MEMORY",
	vk.ErrorOutOfDeviceMemory:    "VK_ERROR_OUT_OF_DEVICE_MEMORY",
	vk.ErrorInitializationFailed: "VK_ERROR_INITIALIZATION_FAILED",
	vk.ErrorDeviceLost:           "VK_ERROR_DEVICE_LOST",
	vk.ErrorMemoryMapFailed:      "VK_ERROR_MEMORY_MAP_FAILED",
	vk.ErrorLayerNotPresent:      "VK_ERROR_LAYER_NOT_PRESENT",
	vk.ErrorExtensionNotPresent:  "VK_ERROR_EXTENSION_NOT_PRESENT",
	vk.ErrorFeatureNotPresent:    "VK_ERROR_FEATURE_NOT_PRESENT",
	vk.ErrorIncompatibleDriver:   "VK_ERROR_INCOMPATIBLE_DRIVER",
	vk.ErrorTooManyObjects:       "VK_ERROR_TOO_MANY_OBJECTS",
	vk.ErrorFormatNotSupported:   "VK_ERROR_FORMAT_NOT_SUPPORTED",
	vk.ErrorFragmentedPool:       "VK_ERROR_FRAGMENTED_POOL",
	vk.ErrorSurfaceLost:          "VK_ERROR_SURFACE_LOST_KHR",
	vk.ErrorNativeWindowInUse:    "VK_ERROR_NATIVE_WINDOW_IN_USE_KHR",
	vk.ErrorOutOfDate:            "VK_ERROR_OUT_OF_DATE_KHR",
	vk.ErrorIncompatibleDisplay:  "VK_ERROR_INCOMPATIBLE_DISPLAY_KHR",
	vk.ErrorOutOfPoolMemory:      "VK_ERROR_OUT_OF_POOL_MEMORY",
	vk.ErrorUnknown:              "VK_ERROR_UNKNOWN",
}

var resultDetails = map[vk.Result]string{
	vk.Timeout:                "A wait operation has not completed in the specified time",
	vk.Suboptimal:             "A swapchain no longer matches the surface properties exactly",
	vk.ErrorOutOfHostMemory:   "A host memory allocation has failed",
	vk.ErrorOutOfDeviceMemory: "A device memory allocation has failed",
	vk.ErrorDeviceLost:        "The logical or physical device has been lost",
	vk.ErrorOutOfDate:         "The surface changed and the swapchain must be recreated",
	vk.ErrorOutOfPoolMemory:   "A descriptor pool allocation has failed",
	vk.ErrorSurfaceLost:       "A surface is no longer available",
}

// VulkanResultString names result; extended appends a short description
// when one is known.
func VulkanResultString(result vk.Result, extended bool) string {
	name, ok := resultNames[result]
	if !ok {
		name = fmt.Sprintf("VkResult(%d)", int32(result))
	}
	if detail, ok := resultDetails[result]; ok && extended {
		return name + " " + detail
	}
	return name
}

func VulkanResultIsSuccess(result vk.Result) bool {
	return result >= 0
}

const end = "\x00"

// VulkanSafeString null terminates s for the C side.
func VulkanSafeString(s string) string {
	if len(s) == 0 || s[len(s)-1] != 0 {
		return s + end
	}
	return s
}

func VulkanSafeStrings(list []string) []string {
	out := make([]string, len(list))
	for i := range list {
		out[i] = VulkanSafeString(list[i])
	}
	return out
}

var formats = map[gpu.Format]vk.Format{
	gpu.FormatRGBA8Unorm:  vk.FormatR8g8b8a8Unorm,
	gpu.FormatRGBA8SRGB:   vk.FormatR8g8b8a8Srgb,
	gpu.FormatBGRA8Unorm:  vk.FormatB8g8r8a8Unorm,
	gpu.FormatBGRA8SRGB:   vk.FormatB8g8r8a8Srgb,
	gpu.FormatR8Unorm:     vk.FormatR8Unorm,
	gpu.FormatR16Float:    vk.FormatR16Sfloat,
	gpu.FormatRGBA16Float: vk.FormatR16g16b16a16Sfloat,
	gpu.FormatRGBA32Float: vk.FormatR32g32b32a32Sfloat,
	gpu.FormatD32Float:    vk.FormatD32Sfloat,
	gpu.FormatD24UnormS8:  vk.FormatD24UnormS8Uint,
}

func toVkFormat(f gpu.Format) (vk.Format, error) {
	v, ok := formats[f]
	if !ok {
		return vk.FormatUndefined, fmt.Errorf("format %s has no vulkan equivalent", f)
	}
	return v, nil
}

func fromVkFormat(v vk.Format) gpu.Format {
	for f, vf := range formats {
		if vf == v {
			return f
		}
	}
	return gpu.FormatUndefined
}

// format resolves f for this device; depth formats fall back to what the
// device can render to.
func (d *Device) format(f gpu.Format) (vk.Format, error) {
	v, err := toVkFormat(f)
	if err != nil {
		return v, err
	}
	if f.IsDepth() {
		return d.detectDepthFormat(v), nil
	}
	return v, nil
}

func aspectMask(f gpu.Format) vk.ImageAspectFlags {
	switch {
	case f.HasStencil():
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit | vk.ImageAspectStencilBit)
	case f.IsDepth():
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	return vk.ImageAspectFlags(vk.ImageAspectColorBit)
}

// restingLayout is the layout an image is kept in between passes: where
// later passes sample it, or where presentation expects it.
func restingLayout(f gpu.Format, usage gpu.ImageUsage, present bool) vk.ImageLayout {
	switch {
	case present:
		return vk.ImageLayoutPresentSrc
	case usage.Has(gpu.UsageStorage):
		return vk.ImageLayoutGeneral
	case f.IsDepth():
		return vk.ImageLayoutDepthStencilReadOnlyOptimal
	}
	return vk.ImageLayoutShaderReadOnlyOptimal
}

func imageUsageFlags(f gpu.Format, usage gpu.ImageUsage) vk.ImageUsageFlags {
	var flags vk.ImageUsageFlagBits
	if usage.Has(gpu.UsageColorAttachment) || usage.Has(gpu.UsageDepthAttachment) {
		if f.IsDepth() {
			flags |= vk.ImageUsageDepthStencilAttachmentBit
		} else {
			flags |= vk.ImageUsageColorAttachmentBit
		}
	}
	if usage.Has(gpu.UsageSampled) {
		flags |= vk.ImageUsageSampledBit
	}
	if usage.Has(gpu.UsageStorage) {
		flags |= vk.ImageUsageStorageBit
	}
	// every image can be captured and uploaded into
	flags |= vk.ImageUsageTransferSrcBit | vk.ImageUsageTransferDstBit
	return vk.ImageUsageFlags(flags)
}

func bufferUsageFlags(usage gpu.BufferUsage) vk.BufferUsageFlags {
	switch usage {
	case gpu.BufferUniform, gpu.BufferStorage:
		// both kinds are bound as storage buffers
		return vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit | vk.BufferUsageStorageBufferBit)
	case gpu.BufferVertex:
		return vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit)
	case gpu.BufferIndex:
		return vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit)
	}
	return vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit)
}

func loadOp(op gpu.LoadOp) vk.AttachmentLoadOp {
	switch op {
	case gpu.LoadOpLoad:
		return vk.AttachmentLoadOpLoad
	case gpu.LoadOpDontCare:
		return vk.AttachmentLoadOpDontCare
	}
	return vk.AttachmentLoadOpClear
}

func storeOp(op gpu.StoreOp) vk.AttachmentStoreOp {
	if op == gpu.StoreOpDontCare {
		return vk.AttachmentStoreOpDontCare
	}
	return vk.AttachmentStoreOpStore
}

func presentMode(m gpu.PresentMode) vk.PresentMode {
	switch m {
	case gpu.PresentImmediate:
		return vk.PresentModeImmediate
	case gpu.PresentMailbox:
		return vk.PresentModeMailbox
	}
	return vk.PresentModeFifo
}
