package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

// Pipeline holds a Vulkan pipeline and its layout.
type Pipeline struct {
	device     *Device
	name       string
	handle     vk.Pipeline
	layout     vk.PipelineLayout
	bindPoint  vk.PipelineBindPoint
	pushStages vk.ShaderStageFlags
	pushSize   uint32
}

func (p *Pipeline) Name() string { return p.name }

func (p *Pipeline) Destroy() {
	d := p.device
	_ = d.locks.SafeCall(PipelineManagement, func() error {
		if p.handle != vk.NullPipeline {
			vk.DestroyPipeline(d.logical, p.handle, d.allocator)
			p.handle = vk.NullPipeline
		}
		if p.layout != vk.NullPipelineLayout {
			vk.DestroyPipelineLayout(d.logical, p.layout, d.allocator)
			p.layout = vk.NullPipelineLayout
		}
		return nil
	})
}

func (d *Device) CreatePipeline(desc gpu.PipelineDesc) (gpu.Pipeline, error) {
	p := &Pipeline{
		device:     d,
		name:       desc.Name,
		bindPoint:  vk.PipelineBindPointGraphics,
		pushStages: stageFlags(desc.Compute),
		pushSize:   desc.PushConstantSize,
	}
	if desc.Compute {
		p.bindPoint = vk.PipelineBindPointCompute
	}

	if err := p.createLayout(desc.Layouts); err != nil {
		return nil, err
	}

	stages, err := d.createShaderStages(desc.Stages)
	if err != nil {
		p.Destroy()
		return nil, fmt.Errorf("pipeline %q: %w", desc.Name, err)
	}
	defer d.destroyShaderStages(stages)

	if desc.Compute {
		err = p.createCompute(stages)
	} else {
		err = p.createGraphics(desc, stages)
	}
	if err != nil {
		p.Destroy()
		core.LogError(err.Error())
		return nil, err
	}
	core.LogDebug("pipeline %s created", desc.Name)
	return p, nil
}

func (p *Pipeline) createLayout(layouts []gpu.DescriptorLayout) error {
	setLayouts := make([]vk.DescriptorSetLayout, len(layouts))
	for i, l := range layouts {
		dl, ok := l.(*DescriptorLayout)
		if !ok || dl == nil {
			return fmt.Errorf("pipeline %q: foreign descriptor layout %T", p.name, l)
		}
		setLayouts[i] = dl.handle
	}

	pipelineLayoutCreateInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(setLayouts)),
		PSetLayouts:    setLayouts,
	}
	if p.pushSize > 0 {
		// 128 bytes is the smallest push constant block devices guarantee
		if p.pushSize > 128 {
			return fmt.Errorf("pipeline %q: push constant block of %d bytes exceeds 128", p.name, p.pushSize)
		}
		pipelineLayoutCreateInfo.PushConstantRangeCount = 1
		pipelineLayoutCreateInfo.PPushConstantRanges = []vk.PushConstantRange{{
			StageFlags: p.pushStages,
			Offset:     0,
			Size:       p.pushSize,
		}}
	}

	return p.device.locks.SafeCall(PipelineManagement, func() error {
		res := vk.CreatePipelineLayout(p.device.logical, &pipelineLayoutCreateInfo, p.device.allocator, &p.layout)
		if !VulkanResultIsSuccess(res) {
			return fmt.Errorf("pipeline %q: vkCreatePipelineLayout failed with %s", p.name, VulkanResultString(res, true))
		}
		return nil
	})
}

func (p *Pipeline) createCompute(stages []vk.PipelineShaderStageCreateInfo) error {
	if len(stages) != 1 {
		return fmt.Errorf("pipeline %q: compute pipelines take one stage, got %d", p.name, len(stages))
	}
	info := vk.ComputePipelineCreateInfo{
		SType:  vk.StructureTypeComputePipelineCreateInfo,
		Stage:  stages[0],
		Layout: p.layout,
	}
	pipelines := make([]vk.Pipeline, 1)
	err := p.device.locks.SafeCall(PipelineManagement, func() error {
		res := vk.CreateComputePipelines(p.device.logical, vk.NullPipelineCache, 1, []vk.ComputePipelineCreateInfo{info}, p.device.allocator, pipelines)
		if !VulkanResultIsSuccess(res) {
			return fmt.Errorf("pipeline %q: vkCreateComputePipelines failed with %s", p.name, VulkanResultString(res, true))
		}
		return nil
	})
	if err != nil {
		return err
	}
	p.handle = pipelines[0]
	return nil
}

func (p *Pipeline) createGraphics(desc gpu.PipelineDesc, stages []vk.PipelineShaderStageCreateInfo) error {
	rp, ok := desc.RenderPass.(*RenderPass)
	if !ok || rp == nil {
		return fmt.Errorf("pipeline %q: foreign render pass %T", p.name, desc.RenderPass)
	}

	// viewport and scissor are dynamic; these only set the counts
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	rasterizer := vk.PipelineRasterizationStateCreateInfo{
		SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: vk.PolygonModeFill,
		LineWidth:   1.0,
		CullMode:    vk.CullModeFlags(vk.CullModeBackBit),
		FrontFace:   vk.FrontFaceCounterClockwise,
	}
	if desc.Vertex != gpu.VertexMesh {
		// fullscreen triangles and overlay quads have no defined winding
		rasterizer.CullMode = vk.CullModeFlags(vk.CullModeNone)
	}

	multisampling := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
		MinSampleShading:     1.0,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:            vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:  vkBool(desc.DepthTest),
		DepthWriteEnable: vkBool(desc.DepthWrite),
		DepthCompareOp:   vk.CompareOpLessOrEqual,
	}

	colorWrite := vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit | vk.ColorComponentBBit | vk.ColorComponentABit)
	blendAttachments := make([]vk.PipelineColorBlendAttachmentState, desc.ColorAttachments)
	for i := range blendAttachments {
		blendAttachments[i] = vk.PipelineColorBlendAttachmentState{
			BlendEnable:    vkBool(desc.Blend),
			ColorWriteMask: colorWrite,
		}
		if desc.Blend {
			blendAttachments[i].SrcColorBlendFactor = vk.BlendFactorSrcAlpha
			blendAttachments[i].DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
			blendAttachments[i].ColorBlendOp = vk.BlendOpAdd
			blendAttachments[i].SrcAlphaBlendFactor = vk.BlendFactorOne
			blendAttachments[i].DstAlphaBlendFactor = vk.BlendFactorOneMinusSrcAlpha
			blendAttachments[i].AlphaBlendOp = vk.BlendOpAdd
		}
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: uint32(len(blendAttachments)),
		PAttachments:    blendAttachments,
	}

	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	vertexInput := vertexInputState(desc.Vertex)
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: vk.PrimitiveTopologyTriangleList,
	}

	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizer,
		PMultisampleState:   &multisampling,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlend,
		PDynamicState:       &dynamicState,
		Layout:              p.layout,
		RenderPass:          rp.handle,
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	err := p.device.locks.SafeCall(PipelineManagement, func() error {
		res := vk.CreateGraphicsPipelines(p.device.logical, vk.NullPipelineCache, 1, []vk.GraphicsPipelineCreateInfo{pipelineCreateInfo}, p.device.allocator, pipelines)
		if !VulkanResultIsSuccess(res) {
			return fmt.Errorf("pipeline %q: vkCreateGraphicsPipelines failed with %s", p.name, VulkanResultString(res, true))
		}
		return nil
	})
	if err != nil {
		return err
	}
	p.handle = pipelines[0]
	return nil
}

func vertexInputState(layout gpu.VertexLayout) vk.PipelineVertexInputStateCreateInfo {
	info := vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
	}
	var stride uint32
	var attributes []vk.VertexInputAttributeDescription
	switch layout {
	case gpu.VertexMesh:
		stride = gpu.VertexStride * 4
		attributes = []vk.VertexInputAttributeDescription{
			{Location: 0, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: 0},
			{Location: 1, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: 12},
			{Location: 2, Binding: 0, Format: vk.FormatR32g32Sfloat, Offset: 24},
		}
	case gpu.VertexGlyph:
		stride = 16
		attributes = []vk.VertexInputAttributeDescription{
			{Location: 0, Binding: 0, Format: vk.FormatR32g32Sfloat, Offset: 0},
			{Location: 1, Binding: 0, Format: vk.FormatR32g32Sfloat, Offset: 8},
		}
	default:
		return info
	}
	info.VertexBindingDescriptionCount = 1
	info.PVertexBindingDescriptions = []vk.VertexInputBindingDescription{{
		Binding:   0,
		Stride:    stride,
		InputRate: vk.VertexInputRateVertex,
	}}
	info.VertexAttributeDescriptionCount = uint32(len(attributes))
	info.PVertexAttributeDescriptions = attributes
	return info
}

var shaderStageBits = map[gpu.ShaderStageKind]vk.ShaderStageFlagBits{
	gpu.StageVertex:   vk.ShaderStageVertexBit,
	gpu.StageFragment: vk.ShaderStageFragmentBit,
	gpu.StageCompute:  vk.ShaderStageComputeBit,
}

func (d *Device) createShaderStages(stages []gpu.ShaderStage) ([]vk.PipelineShaderStageCreateInfo, error) {
	out := make([]vk.PipelineShaderStageCreateInfo, 0, len(stages))
	for _, s := range stages {
		module, err := d.createShaderModule(s)
		if err != nil {
			d.destroyShaderStages(out)
			return nil, err
		}
		out = append(out, vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  shaderStageBits[s.Kind],
			Module: module,
			PName:  VulkanSafeString("main"),
		})
	}
	return out, nil
}

func (d *Device) createShaderModule(s gpu.ShaderStage) (vk.ShaderModule, error) {
	if len(s.Code) == 0 || len(s.Code)%4 != 0 {
		return vk.NullShaderModule, fmt.Errorf("shader %s: %d bytes is not SPIR-V", s.FileName(), len(s.Code))
	}
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(s.Code)),
		PCode:    sliceUint32(s.Code),
	}
	var module vk.ShaderModule
	if res := vk.CreateShaderModule(d.logical, &createInfo, d.allocator, &module); res != vk.Success {
		return vk.NullShaderModule, fmt.Errorf("shader %s: vkCreateShaderModule failed with %s", s.FileName(), VulkanResultString(res, true))
	}
	return module, nil
}

// destroyShaderStages drops the modules; a built pipeline no longer needs
// them.
func (d *Device) destroyShaderStages(stages []vk.PipelineShaderStageCreateInfo) {
	for _, s := range stages {
		vk.DestroyShaderModule(d.logical, s.Module, d.allocator)
	}
}

func sliceUint32(data []byte) []uint32 {
	return unsafe.Slice((*uint32)(unsafe.Pointer(&data[0])), len(data)/4)
}

func vkBool(b bool) vk.Bool32 {
	if b {
		return vk.True
	}
	return vk.False
}

// CreateAccelerationStructure always fails: ray tracing extensions are not
// enabled on this device and Features reports as much.
func (d *Device) CreateAccelerationStructure(name string, maxInstances int) (gpu.AccelerationStructure, error) {
	return nil, fmt.Errorf("acceleration structure %q: %w", name, core.ErrUnsupported)
}
