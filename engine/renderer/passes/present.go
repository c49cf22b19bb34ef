package passes

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/frame"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

// Present copies the tonemapped image onto the acquired surface image and
// draws the stats overlay on top when the UI is enabled.
type Present struct {
	res      *Resources
	warnedUI bool
}

func NewPresent(res *Resources) (Kind, error) {
	return &Present{res: res}, nil
}

func (p *Present) SetupOutAttachments(ctx *Context) []AttachmentDesc {
	return []AttachmentDesc{{
		Name:    "color",
		Surface: true,
		Clear:   gpu.ClearValue{Color: mgl32.Vec4{0, 0, 0, 1}},
	}}
}

func (p *Present) SetupUniforms(ctx *Context) UniformLayout {
	atlas := ctx.Resources.FontAtlas
	if atlas == nil {
		atlas = ctx.Resources.White
	}
	return UniformLayout{
		Inputs: []string{"ldr"},
		Static: []gpu.Binding{gpu.ImageBinding(0, atlas.Image(0))},
	}
}

func (p *Present) SetupShaderStages(ctx *Context) []Program {
	return []Program{
		{
			Name:   "blit",
			Stages: []gpu.ShaderStage{vertex("fullscreen"), fragment("blit")},
			Vertex: gpu.VertexNone,
		},
		{
			Name:   "overlay",
			Stages: []gpu.ShaderStage{vertex("glyph"), fragment("glyph")},
			Vertex: gpu.VertexGlyph,
			Blend:  true,
		},
	}
}

func (p *Present) LinkInputAttachments(inputs []*Attachment) error {
	return nil
}

func (p *Present) Execute(rec *Recording) {
	rec.Begin()
	rec.Use(0)
	rec.Fullscreen()
	if rec.Settings.EnableUI && len(rec.View.Overlay) > 0 {
		p.overlay(rec)
	}
	rec.End()
}

func (p *Present) overlay(rec *Recording) {
	if p.res.Font == nil {
		if !p.warnedUI {
			core.LogWarn("ui enabled but no overlay font is loaded")
			p.warnedUI = true
		}
		return
	}
	buf := rec.Frame.Buffer(frame.BufferOverlay)
	if buf == nil {
		return
	}
	verts := LayoutText(p.res.Font, rec.View.Overlay, mgl32.Vec2{12, 12}, rec.View.Extent)
	count := writeVertices(buf.Mapped(), verts)
	if count == 0 {
		return
	}
	rec.Use(1)
	rec.Cmd.BindVertexBuffer(buf)
	rec.Cmd.Draw(count, 1)
}
