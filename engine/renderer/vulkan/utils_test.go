package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

func TestVulkanResultString(t *testing.T) {
	assert.Equal(t, "VK_SUCCESS", VulkanResultString(vk.Success, true))
	assert.Equal(t, "VK_ERROR_OUT_OF_DATE_KHR", VulkanResultString(vk.ErrorOutOfDate, false))
	assert.Contains(t, VulkanResultString(vk.ErrorOutOfDate, true), "recreated")
	assert.Equal(t, "VkResult(-9999)", VulkanResultString(vk.Result(-9999), true))

	assert.True(t, VulkanResultIsSuccess(vk.Suboptimal))
	assert.False(t, VulkanResultIsSuccess(vk.ErrorDeviceLost))
}

func TestVulkanSafeString(t *testing.T) {
	assert.Equal(t, "main\x00", VulkanSafeString("main"))
	assert.Equal(t, "main\x00", VulkanSafeString("main\x00"))
	assert.Equal(t, "\x00", VulkanSafeString(""))
	assert.Equal(t, []string{"a\x00", "b\x00"}, VulkanSafeStrings([]string{"a", "b\x00"}))
}

func TestFormatRoundTrip(t *testing.T) {
	for f := range formats {
		v, err := toVkFormat(f)
		assert.NoError(t, err)
		assert.Equal(t, f, fromVkFormat(v), f.String())
	}
	_, err := toVkFormat(gpu.FormatUndefined)
	assert.Error(t, err)
}

func TestRestingLayout(t *testing.T) {
	assert.Equal(t, vk.ImageLayoutPresentSrc, restingLayout(gpu.FormatBGRA8SRGB, gpu.UsageColorAttachment, true))
	assert.Equal(t, vk.ImageLayoutGeneral, restingLayout(gpu.FormatRGBA16Float, gpu.UsageStorage|gpu.UsageSampled, false))
	assert.Equal(t, vk.ImageLayoutDepthStencilReadOnlyOptimal, restingLayout(gpu.FormatD32Float, gpu.UsageDepthAttachment|gpu.UsageSampled, false))
	assert.Equal(t, vk.ImageLayoutShaderReadOnlyOptimal, restingLayout(gpu.FormatRGBA8Unorm, gpu.UsageColorAttachment|gpu.UsageSampled, false))
}

func TestImageUsageFlags(t *testing.T) {
	depth := imageUsageFlags(gpu.FormatD32Float, gpu.UsageDepthAttachment|gpu.UsageSampled)
	assert.NotZero(t, depth&vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit))
	assert.Zero(t, depth&vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit))
	assert.NotZero(t, depth&vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit))

	color := imageUsageFlags(gpu.FormatRGBA8Unorm, gpu.UsageColorAttachment)
	assert.NotZero(t, color&vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit))
	assert.Zero(t, color&vk.ImageUsageFlags(vk.ImageUsageSampledBit))
}

func TestVertexInputState(t *testing.T) {
	none := vertexInputState(gpu.VertexNone)
	assert.Zero(t, none.VertexBindingDescriptionCount)

	mesh := vertexInputState(gpu.VertexMesh)
	assert.Equal(t, uint32(3), mesh.VertexAttributeDescriptionCount)
	assert.Equal(t, uint32(32), mesh.PVertexBindingDescriptions[0].Stride)

	glyph := vertexInputState(gpu.VertexGlyph)
	assert.Equal(t, uint32(16), glyph.PVertexBindingDescriptions[0].Stride)
	assert.Equal(t, uint32(8), glyph.PVertexAttributeDescriptions[1].Offset)
}

func TestDescriptorType(t *testing.T) {
	typ, err := descriptorType(gpu.LayoutBinding{Kind: gpu.BindingImage})
	assert.NoError(t, err)
	assert.Equal(t, vk.DescriptorTypeCombinedImageSampler, typ)

	typ, err = descriptorType(gpu.LayoutBinding{Kind: gpu.BindingImage, Compute: true})
	assert.NoError(t, err)
	assert.Equal(t, vk.DescriptorTypeStorageImage, typ)

	_, err = descriptorType(gpu.LayoutBinding{Kind: gpu.BindingAccelerationStructure})
	assert.Error(t, err)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, uint32(5), clamp(1, 5, 10))
	assert.Equal(t, uint32(10), clamp(20, 5, 10))
	assert.Equal(t, uint32(7), clamp(7, 5, 10))
}
