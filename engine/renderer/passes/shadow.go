package passes

import (
	"math"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

// Shadow renders the shadow casting draws into a square depth map whose
// size follows the shadow quality setting, not the surface.
type Shadow struct{}

func NewShadow(res *Resources) (Kind, error) {
	return &Shadow{}, nil
}

func (s *Shadow) FixedExtent(ctx *Context) gpu.Extent {
	// keep a valid target around while shadows are switched off
	r := max(ctx.Settings.ShadowQuality.Resolution(), 1)
	return gpu.Extent{Width: r, Height: r}
}

func (s *Shadow) SetupOutAttachments(ctx *Context) []AttachmentDesc {
	return []AttachmentDesc{{
		Name:   "depth",
		Format: gpu.FormatD32Float,
		Clear:  gpu.ClearValue{Depth: 1},
	}}
}

func (s *Shadow) SetupUniforms(ctx *Context) UniformLayout {
	return UniformLayout{PushConstantSize: 4}
}

func (s *Shadow) SetupShaderStages(ctx *Context) []Program {
	return []Program{{
		Name:       "depth",
		Stages:     []gpu.ShaderStage{vertex("shadow")},
		Vertex:     gpu.VertexMesh,
		DepthTest:  true,
		DepthWrite: true,
	}}
}

func (s *Shadow) LinkInputAttachments(inputs []*Attachment) error {
	return nil
}

func (s *Shadow) Execute(rec *Recording) {
	rec.Begin()
	rec.Use(0)
	light := uint32(math.MaxUint32)
	if rec.View.ShadowLight >= 0 {
		light = uint32(rec.View.ShadowLight)
	}
	rec.PushU32(light)
	rec.DrawAll(rec.View.Shadow)
	rec.End()
}
