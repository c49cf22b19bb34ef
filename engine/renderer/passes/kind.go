package passes

import (
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// Kind is what a pass implementation provides. Pass does the bookkeeping
// (images, framebuffers, descriptor sets, pipelines) around it.
type Kind interface {
	// SetupOutAttachments declares the outputs. An empty result makes the
	// pass non-graphical: no render pass and no framebuffers.
	SetupOutAttachments(ctx *Context) []AttachmentDesc
	SetupUniforms(ctx *Context) UniformLayout
	SetupShaderStages(ctx *Context) []Program
	// LinkInputAttachments is called after the pass has bound inputs into
	// its descriptor sets.
	LinkInputAttachments(inputs []*Attachment) error
	Execute(rec *Recording)
}

// FixedExtent is implemented by kinds that do not follow the surface size.
type FixedExtent interface {
	FixedExtent(ctx *Context) gpu.Extent
}

type Context struct {
	Name      string
	Device    gpu.Device
	Resources *Resources
	Settings  *metadata.Settings
	Extent    gpu.Extent
}

// UniformLayout declares the pass descriptor set. Inputs take slots
// 0..len(Inputs)-1 in order; Static bindings follow and are rewritten on
// every link with their slot adjusted.
type UniformLayout struct {
	Inputs           []string
	Static           []gpu.Binding
	PushConstantSize uint32
}

func (u UniformLayout) empty() bool {
	return len(u.Inputs) == 0 && len(u.Static) == 0
}

// Program is one pipeline of a pass.
type Program struct {
	Name       string
	Stages     []gpu.ShaderStage
	Vertex     gpu.VertexLayout
	DepthTest  bool
	DepthWrite bool
	Blend      bool
	Compute    bool
}

func vertex(name string) gpu.ShaderStage {
	return gpu.ShaderStage{Kind: gpu.StageVertex, Name: name}
}

func fragment(name string) gpu.ShaderStage {
	return gpu.ShaderStage{Kind: gpu.StageFragment, Name: name}
}
