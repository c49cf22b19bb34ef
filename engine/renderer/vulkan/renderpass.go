package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

// RenderPass has a single subpass writing every color attachment and at
// most one depth attachment. Attachments end in the layout later passes
// sample them in, or in the present layout.
type RenderPass struct {
	device      *Device
	name        string
	handle      vk.RenderPass
	attachments []gpu.RenderPassAttachment
}

func (rp *RenderPass) Name() string { return rp.name }

func (rp *RenderPass) Destroy() {
	if rp.handle != vk.NullRenderPass {
		vk.DestroyRenderPass(rp.device.logical, rp.handle, rp.device.allocator)
		rp.handle = vk.NullRenderPass
	}
}

func (d *Device) CreateRenderPass(desc gpu.RenderPassDesc) (gpu.RenderPass, error) {
	rp := &RenderPass{device: d, name: desc.Name, attachments: desc.Attachments}

	descriptions := make([]vk.AttachmentDescription, 0, len(desc.Attachments))
	var colorRefs []vk.AttachmentReference
	var depthRef *vk.AttachmentReference

	for i, a := range desc.Attachments {
		format, err := d.attachmentFormat(a)
		if err != nil {
			return nil, fmt.Errorf("render pass %q: attachment %d: %w", desc.Name, i, err)
		}
		final := restingLayout(a.Format, gpu.UsageSampled, a.Present)
		initial := vk.ImageLayoutUndefined
		if a.Load == gpu.LoadOpLoad {
			initial = final
		}
		descriptions = append(descriptions, vk.AttachmentDescription{
			Format:         format,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         loadOp(a.Load),
			StoreOp:        storeOp(a.Store),
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  initial,
			FinalLayout:    final,
		})

		if a.Format.IsDepth() && !a.Present {
			if depthRef != nil {
				return nil, fmt.Errorf("render pass %q: more than one depth attachment", desc.Name)
			}
			depthRef = &vk.AttachmentReference{
				Attachment: uint32(i),
				Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
			}
			continue
		}
		colorRefs = append(colorRefs, vk.AttachmentReference{
			Attachment: uint32(i),
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		})
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:       vk.PipelineBindPointGraphics,
		ColorAttachmentCount:    uint32(len(colorRefs)),
		PColorAttachments:       colorRefs,
		PDepthStencilAttachment: depthRef,
	}

	attachmentStages := vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit)
	attachmentWrites := vk.AccessFlags(vk.AccessColorAttachmentWriteBit | vk.AccessDepthStencilAttachmentWriteBit)
	dependencies := []vk.SubpassDependency{
		{
			// earlier passes sampling what this one overwrites, and the
			// acquire semaphore wait
			SrcSubpass:    vk.SubpassExternal,
			DstSubpass:    0,
			SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit) | attachmentStages,
			SrcAccessMask: vk.AccessFlags(vk.AccessShaderReadBit),
			DstStageMask:  attachmentStages,
			DstAccessMask: attachmentWrites,
		},
		{
			// later passes sampling what this one wrote
			SrcSubpass:    0,
			DstSubpass:    vk.SubpassExternal,
			SrcStageMask:  attachmentStages,
			SrcAccessMask: attachmentWrites,
			DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit | vk.PipelineStageComputeShaderBit),
			DstAccessMask: vk.AccessFlags(vk.AccessShaderReadBit),
		},
	}

	renderpassCreateInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(descriptions)),
		PAttachments:    descriptions,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: uint32(len(dependencies)),
		PDependencies:   dependencies,
	}
	if res := vk.CreateRenderPass(d.logical, &renderpassCreateInfo, d.allocator, &rp.handle); res != vk.Success {
		err := fmt.Errorf("render pass %q: vkCreateRenderPass failed with %s", desc.Name, VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}
	return rp, nil
}

// attachmentFormat resolves the vulkan format of a; presented
// attachments use whatever the swapchain was created with.
func (d *Device) attachmentFormat(a gpu.RenderPassAttachment) (vk.Format, error) {
	if a.Present && d.swapchain != nil {
		return d.swapchain.imageFormat.Format, nil
	}
	return d.format(a.Format)
}

type Framebuffer struct {
	device     *Device
	handle     vk.Framebuffer
	renderPass *RenderPass
	extent     gpu.Extent
}

func (fb *Framebuffer) Extent() gpu.Extent { return fb.extent }

func (fb *Framebuffer) Destroy() {
	if fb.handle != vk.NullFramebuffer {
		vk.DestroyFramebuffer(fb.device.logical, fb.handle, fb.device.allocator)
		fb.handle = vk.NullFramebuffer
	}
	fb.renderPass = nil
}

func (d *Device) CreateFramebuffer(desc gpu.FramebufferDesc) (gpu.Framebuffer, error) {
	rp, ok := desc.RenderPass.(*RenderPass)
	if !ok || rp == nil {
		return nil, fmt.Errorf("framebuffer %q: foreign render pass %T", desc.Name, desc.RenderPass)
	}
	if len(desc.Attachments) != len(rp.attachments) {
		return nil, fmt.Errorf("framebuffer %q: %d attachments for render pass %q expecting %d",
			desc.Name, len(desc.Attachments), rp.name, len(rp.attachments))
	}
	views := make([]vk.ImageView, len(desc.Attachments))
	for i, a := range desc.Attachments {
		img, ok := a.(*Image)
		if !ok || img == nil {
			return nil, fmt.Errorf("framebuffer %q: attachment %d is a foreign image %T", desc.Name, i, a)
		}
		if img.view == vk.NullImageView {
			return nil, fmt.Errorf("framebuffer %q: attachment %q is destroyed", desc.Name, img.name)
		}
		views[i] = img.view
	}

	fb := &Framebuffer{device: d, renderPass: rp, extent: desc.Extent}
	framebufferCreateInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      rp.handle,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           desc.Extent.Width,
		Height:          desc.Extent.Height,
		Layers:          1,
	}
	if res := vk.CreateFramebuffer(d.logical, &framebufferCreateInfo, d.allocator, &fb.handle); res != vk.Success {
		err := fmt.Errorf("framebuffer %q: failed to create framebuffer: %s", desc.Name, VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}
	return fb, nil
}
