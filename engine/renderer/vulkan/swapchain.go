package vulkan

import (
	"fmt"
	"math"
	"time"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

type swapchain struct {
	handle      vk.Swapchain
	imageFormat vk.SurfaceFormat
	format      gpu.Format
	extent      gpu.Extent
	images      []*Image
}

func (d *Device) Surface() gpu.SurfaceInfo {
	if d.swapchain == nil {
		return gpu.SurfaceInfo{}
	}
	images := make([]gpu.Image, len(d.swapchain.images))
	for i, img := range d.swapchain.images {
		images[i] = img
	}
	return gpu.SurfaceInfo{
		Images: images,
		Format: d.swapchain.format,
		Extent: d.swapchain.extent,
	}
}

func (d *Device) AcquireNextImage(signal gpu.Semaphore, timeout time.Duration) (uint32, error) {
	sem, err := asSemaphore(signal)
	if err != nil {
		return 0, err
	}
	if d.swapchain == nil {
		return 0, gpu.ErrSurfaceStale
	}
	if sem == nil {
		return 0, fmt.Errorf("acquire needs a semaphore to signal")
	}
	var index uint32
	res := vk.AcquireNextImage(d.logical, d.swapchain.handle, uint64(timeout.Nanoseconds()), sem.handle, vk.NullFence, &index)
	switch res {
	case vk.Success, vk.Suboptimal:
		return index, nil
	case vk.ErrorOutOfDate:
		return 0, gpu.ErrSurfaceStale
	case vk.Timeout, vk.NotReady:
		return 0, core.ErrDeviceTimeout
	}
	err = fmt.Errorf("failed to acquire swapchain image: %s", VulkanResultString(res, true))
	core.LogError(err.Error())
	return 0, err
}

func (d *Device) Present(imageIndex uint32, wait gpu.Semaphore) error {
	sem, err := asSemaphore(wait)
	if err != nil {
		return err
	}
	if d.swapchain == nil {
		return gpu.ErrSurfaceStale
	}
	presentInfo := vk.PresentInfo{
		SType:          vk.StructureTypePresentInfo,
		SwapchainCount: 1,
		PSwapchains:    []vk.Swapchain{d.swapchain.handle},
		PImageIndices:  []uint32{imageIndex},
	}
	if sem != nil {
		presentInfo.WaitSemaphoreCount = 1
		presentInfo.PWaitSemaphores = []vk.Semaphore{sem.handle}
	}
	var res vk.Result
	_ = d.locks.SafeCall(QueueManagement, func() error {
		res = vk.QueuePresent(d.presentQueue, &presentInfo)
		return nil
	})
	switch res {
	case vk.Success:
		return nil
	case vk.ErrorOutOfDate, vk.Suboptimal:
		return gpu.ErrSurfaceStale
	}
	err = fmt.Errorf("failed to present swap chain image: %s", VulkanResultString(res, true))
	core.LogError(err.Error())
	return err
}

// RecreateSurface replaces the swapchain. The previous images are
// destroyed, so callers must drop every framebuffer built on them first.
func (d *Device) RecreateSurface(extent gpu.Extent) error {
	if err := d.WaitIdle(); err != nil {
		return err
	}
	support, err := querySwapchainSupport(d.physical.handle, d.surface)
	if err != nil {
		return err
	}
	d.physical.support = support

	old := d.swapchain
	next, err := d.createSwapchain(extent, old)
	if err != nil {
		return err
	}
	if old != nil {
		old.destroy(d)
	}
	d.swapchain = next
	return nil
}

func (d *Device) createSwapchain(requested gpu.Extent, old *swapchain) (*swapchain, error) {
	support := d.physical.support
	caps := support.capabilities
	sc := &swapchain{}

	preferred, _ := toVkFormat(d.cfg.SurfaceFormat)
	sc.imageFormat = support.formats[0]
	for _, f := range support.formats {
		if f.Format == preferred && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			sc.imageFormat = f
			break
		}
		if f.Format == vk.FormatB8g8r8a8Unorm && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			sc.imageFormat = f
		}
	}
	sc.format = fromVkFormat(sc.imageFormat.Format)

	mode := vk.PresentModeFifo
	want := presentMode(d.cfg.PresentMode)
	for _, m := range support.presentModes {
		if m == want {
			mode = m
			break
		}
	}

	extent := vk.Extent2D{Width: requested.Width, Height: requested.Height}
	if caps.CurrentExtent.Width != math.MaxUint32 {
		extent = caps.CurrentExtent
	}
	extent.Width = clamp(extent.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width)
	extent.Height = clamp(extent.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height)
	sc.extent = gpu.Extent{Width: extent.Width, Height: extent.Height}

	imageCount := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && imageCount > caps.MaxImageCount {
		imageCount = caps.MaxImageCount
	}

	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          d.surface,
		MinImageCount:    imageCount,
		ImageFormat:      sc.imageFormat.Format,
		ImageColorSpace:  sc.imageFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferSrcBit),
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      mode,
		Clipped:          vk.True,
	}
	q := d.physical.queues
	if q.graphics != q.present {
		createInfo.ImageSharingMode = vk.SharingModeConcurrent
		createInfo.QueueFamilyIndexCount = 2
		createInfo.PQueueFamilyIndices = []uint32{uint32(q.graphics), uint32(q.present)}
	} else {
		createInfo.ImageSharingMode = vk.SharingModeExclusive
	}
	if old != nil {
		createInfo.OldSwapchain = old.handle
	}

	if res := vk.CreateSwapchain(d.logical, &createInfo, d.allocator, &sc.handle); res != vk.Success {
		err := fmt.Errorf("failed to create swapchain: %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}

	var count uint32
	if res := vk.GetSwapchainImages(d.logical, sc.handle, &count, nil); res != vk.Success {
		sc.destroy(d)
		return nil, fmt.Errorf("failed to get swapchain images: %s", VulkanResultString(res, false))
	}
	handles := make([]vk.Image, count)
	if res := vk.GetSwapchainImages(d.logical, sc.handle, &count, handles); res != vk.Success {
		sc.destroy(d)
		return nil, fmt.Errorf("failed to get swapchain images: %s", VulkanResultString(res, false))
	}

	for i, h := range handles {
		img := &Image{
			device:   d,
			name:     fmt.Sprintf("surface_%d", i),
			extent:   sc.extent,
			format:   sc.format,
			vkFormat: sc.imageFormat.Format,
			handle:   h,
			layout:   vk.ImageLayoutPresentSrc,
			borrowed: true,
		}
		if err := img.createView(); err != nil {
			sc.destroy(d)
			return nil, err
		}
		sc.images = append(sc.images, img)
	}

	core.LogInfo("Swapchain created: %s, %d images, %s.", sc.extent, len(sc.images), sc.format)
	return sc, nil
}

func (sc *swapchain) destroy(d *Device) {
	// only the views; the images belong to the swapchain
	for _, img := range sc.images {
		img.destroyView()
	}
	sc.images = nil
	if sc.handle != vk.NullSwapchain {
		vk.DestroySwapchain(d.logical, sc.handle, d.allocator)
		sc.handle = vk.NullSwapchain
	}
}

func clamp(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if hi > 0 && v > hi {
		return hi
	}
	return v
}
