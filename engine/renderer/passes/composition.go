package passes

import (
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

// Composition lights the G-buffer into an HDR target and then blends the
// transparent draws on top, back to front.
type Composition struct {
	res *Resources
}

func NewComposition(res *Resources) (Kind, error) {
	return &Composition{res: res}, nil
}

func (c *Composition) SetupOutAttachments(ctx *Context) []AttachmentDesc {
	return []AttachmentDesc{{
		Name:   "hdr",
		Format: gpu.FormatRGBA16Float,
		Clear:  gpu.ClearValue{Color: ctx.Settings.Clear()},
	}}
}

func (c *Composition) SetupUniforms(ctx *Context) UniformLayout {
	layout := UniformLayout{
		Inputs: []string{"albedo", "normal", "material", "depth", "ao", "shadow"},
	}
	if ctx.Resources.Accel != nil {
		layout.Static = append(layout.Static, gpu.AccelBinding(0, ctx.Resources.Accel))
	}
	return layout
}

func (c *Composition) SetupShaderStages(ctx *Context) []Program {
	return []Program{
		{
			Name:   "lighting",
			Stages: []gpu.ShaderStage{vertex("fullscreen"), fragment("composition")},
			Vertex: gpu.VertexNone,
		},
		{
			Name:   "forward",
			Stages: []gpu.ShaderStage{vertex("mesh"), fragment("forward")},
			Vertex: gpu.VertexMesh,
			Blend:  true,
		},
	}
}

func (c *Composition) LinkInputAttachments(inputs []*Attachment) error {
	return nil
}

func (c *Composition) Execute(rec *Recording) {
	// the clear colour is hot reloadable
	rec.Pass.clears[0].Color = rec.Settings.Clear()
	rec.Begin()
	rec.Use(0)
	rec.Fullscreen()
	if len(rec.View.Transparent) > 0 {
		rec.Use(1)
		rec.DrawAll(rec.View.Transparent)
	}
	rec.End()
}
