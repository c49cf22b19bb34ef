package passes

import (
	"encoding/binary"
	"math"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

// PostProcess is the shared shape of screen space effects: sample the
// named inputs, run one fragment shader over a fullscreen triangle and
// write a single output.
type PostProcess struct {
	Inputs   []string
	Output   AttachmentDesc
	Fragment string
	// Params, when set, produces push constants for each execution.
	Params     func(rec *Recording) []float32
	ParamCount int
}

func (pp *PostProcess) SetupOutAttachments(ctx *Context) []AttachmentDesc {
	return []AttachmentDesc{pp.Output}
}

func (pp *PostProcess) SetupUniforms(ctx *Context) UniformLayout {
	return UniformLayout{
		Inputs:           pp.Inputs,
		PushConstantSize: uint32(4 * pp.ParamCount),
	}
}

func (pp *PostProcess) SetupShaderStages(ctx *Context) []Program {
	return []Program{{
		Name:   pp.Fragment,
		Stages: []gpu.ShaderStage{vertex("fullscreen"), fragment(pp.Fragment)},
		Vertex: gpu.VertexNone,
	}}
}

func (pp *PostProcess) LinkInputAttachments(inputs []*Attachment) error {
	return nil
}

func (pp *PostProcess) Execute(rec *Recording) {
	rec.Begin()
	rec.Use(0)
	if pp.Params != nil {
		rec.Push(packFloats(pp.Params(rec)))
	}
	rec.Fullscreen()
	rec.End()
}

func packFloats(values []float32) []byte {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// NewPrecomposition computes ambient occlusion from the G-buffer.
func NewPrecomposition(res *Resources) (Kind, error) {
	return &PostProcess{
		Inputs:   []string{"normal", "depth"},
		Fragment: "ssao",
		Output: AttachmentDesc{
			Name:   "ao",
			Format: gpu.FormatR8Unorm,
			Clear:  gpu.ClearValue{Color: [4]float32{1, 1, 1, 1}},
		},
		ParamCount: 2,
		Params: func(rec *Recording) []float32 {
			return []float32{0.5, 0.025} // radius, bias
		},
	}, nil
}

// NewBloom extracts and blurs the bright parts of the lit image at half
// resolution.
func NewBloom(res *Resources) (Kind, error) {
	return &PostProcess{
		Inputs:   []string{"hdr"},
		Fragment: "bloom",
		Output: AttachmentDesc{
			Name:   "bloom",
			Format: gpu.FormatRGBA16Float,
			Scale:  0.5,
		},
		ParamCount: 2,
		Params: func(rec *Recording) []float32 {
			return []float32{1.0, 0.04} // threshold, intensity
		},
	}, nil
}

// NewAntiAliasing is FXAA over the lit image.
func NewAntiAliasing(res *Resources) (Kind, error) {
	return &PostProcess{
		Inputs:   []string{"hdr"},
		Fragment: "fxaa",
		Output: AttachmentDesc{
			Name:   "color",
			Format: gpu.FormatRGBA16Float,
		},
		ParamCount: 2,
		Params: func(rec *Recording) []float32 {
			ext := rec.Pass.Extent()
			return []float32{1 / float32(ext.Width), 1 / float32(ext.Height)}
		},
	}, nil
}

// NewTonemap combines the anti-aliased image with bloom and maps it into
// the display format.
func NewTonemap(res *Resources) (Kind, error) {
	return &PostProcess{
		Inputs:   []string{"color", "bloom"},
		Fragment: "tonemap",
		Output: AttachmentDesc{
			Name:   "ldr",
			Format: res.Settings.DisplayColorFormat,
		},
		ParamCount: 1,
		Params: func(rec *Recording) []float32 {
			return []float32{1.0} // exposure
		},
	}, nil
}
