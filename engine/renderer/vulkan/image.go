package vulkan

import (
	"fmt"
	"image"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

type Image struct {
	device   *Device
	name     string
	extent   gpu.Extent
	format   gpu.Format
	vkFormat vk.Format

	handle vk.Image
	memory vk.DeviceMemory
	view   vk.ImageView
	// layout is where the image rests between passes.
	layout vk.ImageLayout
	// borrowed images belong to the swapchain.
	borrowed bool
}

func (i *Image) Name() string       { return i.name }
func (i *Image) Extent() gpu.Extent { return i.extent }
func (i *Image) Format() gpu.Format { return i.format }

func (i *Image) Destroy() {
	if i.borrowed {
		return
	}
	d := i.device
	i.destroyView()
	if i.handle != vk.NullImage {
		vk.DestroyImage(d.logical, i.handle, d.allocator)
		i.handle = vk.NullImage
	}
	if i.memory != vk.NullDeviceMemory {
		vk.FreeMemory(d.logical, i.memory, d.allocator)
		i.memory = vk.NullDeviceMemory
	}
}

func (d *Device) CreateImage(desc gpu.ImageDesc) (gpu.Image, error) {
	if desc.Extent.Empty() {
		return nil, fmt.Errorf("image %q: empty extent", desc.Name)
	}
	vkFormat, err := d.format(desc.Format)
	if err != nil {
		return nil, fmt.Errorf("image %q: %w", desc.Name, err)
	}
	img := &Image{
		device:   d,
		name:     desc.Name,
		extent:   desc.Extent,
		format:   desc.Format,
		vkFormat: vkFormat,
		layout:   restingLayout(desc.Format, desc.Usage, false),
	}

	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  desc.Extent.Width,
			Height: desc.Extent.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        vkFormat,
		Tiling:        vk.ImageTilingOptimal,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         imageUsageFlags(desc.Format, desc.Usage),
		Samples:       vk.SampleCount1Bit,
		SharingMode:   vk.SharingModeExclusive,
	}
	if res := vk.CreateImage(d.logical, &imageCreateInfo, d.allocator, &img.handle); res != vk.Success {
		err := fmt.Errorf("image %q: vkCreateImage failed with %s", desc.Name, VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}

	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.logical, img.handle, &req)
	req.Deref()
	mem, err := d.allocate(req, vk.MemoryPropertyDeviceLocalBit)
	if err != nil {
		img.Destroy()
		return nil, fmt.Errorf("image %q: %w", desc.Name, err)
	}
	img.memory = mem
	if res := vk.BindImageMemory(d.logical, img.handle, img.memory, 0); res != vk.Success {
		img.Destroy()
		return nil, fmt.Errorf("image %q: vkBindImageMemory failed with %s", desc.Name, VulkanResultString(res, true))
	}
	if err := img.createView(); err != nil {
		img.Destroy()
		return nil, err
	}

	if len(desc.Data) > 0 {
		err = img.upload(desc.Data)
	} else {
		err = d.singleUse(func(cmd vk.CommandBuffer) {
			transition(cmd, img, vk.ImageLayoutUndefined, img.layout)
		})
	}
	if err != nil {
		img.Destroy()
		return nil, fmt.Errorf("image %q: %w", desc.Name, err)
	}
	return img, nil
}

func (i *Image) createView() error {
	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    i.handle,
		ViewType: vk.ImageViewType2d,
		Format:   i.vkFormat,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspectMask(i.format),
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	if res := vk.CreateImageView(i.device.logical, &viewInfo, i.device.allocator, &i.view); res != vk.Success {
		err := fmt.Errorf("image %q: failed to create image view: %s", i.name, VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}
	return nil
}

func (i *Image) destroyView() {
	if i.view != vk.NullImageView {
		vk.DestroyImageView(i.device.logical, i.view, i.device.allocator)
		i.view = vk.NullImageView
	}
}

func (i *Image) byteSize() int {
	return int(i.extent.Width) * int(i.extent.Height) * i.format.BytesPerPixel()
}

func (i *Image) copyRegion() vk.BufferImageCopy {
	// depth and stencil cannot be copied together
	aspect := aspectMask(i.format)
	if i.format.IsDepth() {
		aspect = vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	return vk.BufferImageCopy{
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask: aspect,
			LayerCount: 1,
		},
		ImageExtent: vk.Extent3D{
			Width:  i.extent.Width,
			Height: i.extent.Height,
			Depth:  1,
		},
	}
}

func (i *Image) upload(data []byte) error {
	if len(data) != i.byteSize() {
		return fmt.Errorf("upload of %d bytes into %s image of %d", len(data), i.extent, i.byteSize())
	}
	staging, err := i.device.newStagingBuffer(i.name+"_upload", len(data))
	if err != nil {
		return err
	}
	defer staging.Destroy()
	copy(staging.Mapped(), data)

	return i.device.singleUse(func(cmd vk.CommandBuffer) {
		transition(cmd, i, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal)
		vk.CmdCopyBufferToImage(cmd, staging.handle, i.handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{i.copyRegion()})
		transition(cmd, i, vk.ImageLayoutTransferDstOptimal, i.layout)
	})
}

// ReadImage copies img into a host buffer and converts it to 8-bit RGBA.
func (d *Device) ReadImage(img gpu.Image) (*image.RGBA, error) {
	i, ok := img.(*Image)
	if !ok {
		return nil, fmt.Errorf("vulkan: foreign image %T", img)
	}
	if i.handle == vk.NullImage {
		return nil, fmt.Errorf("read image %q: destroyed", i.name)
	}
	if err := d.WaitIdle(); err != nil {
		return nil, err
	}
	staging, err := d.newStagingBuffer(i.name+"_readback", i.byteSize())
	if err != nil {
		return nil, err
	}
	defer staging.Destroy()

	err = d.singleUse(func(cmd vk.CommandBuffer) {
		transition(cmd, i, i.layout, vk.ImageLayoutTransferSrcOptimal)
		vk.CmdCopyImageToBuffer(cmd, i.handle, vk.ImageLayoutTransferSrcOptimal, staging.handle, 1, []vk.BufferImageCopy{i.copyRegion()})
		transition(cmd, i, vk.ImageLayoutTransferSrcOptimal, i.layout)
	})
	if err != nil {
		return nil, fmt.Errorf("read image %q: %w", i.name, err)
	}
	return toRGBA(i.format, i.extent, staging.Mapped())
}

func transition(cmd vk.CommandBuffer, img *Image, from, to vk.ImageLayout) {
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           from,
		NewLayout:           to,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               img.handle,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspectMask(img.format),
			LevelCount: 1,
			LayerCount: 1,
		},
		SrcAccessMask: vk.AccessFlags(vk.AccessMemoryWriteBit),
		DstAccessMask: vk.AccessFlags(vk.AccessMemoryReadBit | vk.AccessMemoryWriteBit),
	}
	vk.CmdPipelineBarrier(cmd,
		vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

// mapped views size bytes of host visible memory at ptr.
func mapped(ptr unsafe.Pointer, size int) []byte {
	if ptr == nil || size == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(ptr), size)
}
