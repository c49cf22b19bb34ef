package passes

import (
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

// GBuffer rasterises the opaque draws into albedo, normal, material and
// depth targets.
type GBuffer struct{}

func NewGBuffer(res *Resources) (Kind, error) {
	return &GBuffer{}, nil
}

func (g *GBuffer) SetupOutAttachments(ctx *Context) []AttachmentDesc {
	return []AttachmentDesc{
		{Name: "albedo", Format: gpu.FormatRGBA8Unorm},
		{Name: "normal", Format: gpu.FormatRGBA16Float},
		{Name: "material", Format: gpu.FormatRGBA8Unorm},
		{Name: "depth", Format: gpu.FormatD32Float, Clear: gpu.ClearValue{Depth: 1}},
	}
}

func (g *GBuffer) SetupUniforms(ctx *Context) UniformLayout {
	return UniformLayout{}
}

func (g *GBuffer) SetupShaderStages(ctx *Context) []Program {
	return []Program{{
		Name:       "gbuffer",
		Stages:     []gpu.ShaderStage{vertex("mesh"), fragment("gbuffer")},
		Vertex:     gpu.VertexMesh,
		DepthTest:  true,
		DepthWrite: true,
	}}
}

func (g *GBuffer) LinkInputAttachments(inputs []*Attachment) error {
	return nil
}

func (g *GBuffer) Execute(rec *Recording) {
	rec.Begin()
	rec.Use(0)
	rec.DrawAll(rec.View.Opaque)
	rec.End()
}
