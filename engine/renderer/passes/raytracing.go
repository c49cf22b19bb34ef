package passes

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

// RayTracing has no attachments. It rebuilds the scene acceleration
// structure from the shadow casters each frame for the composition pass
// to trace against.
type RayTracing struct {
	res *Resources
}

func NewRayTracing(res *Resources) (Kind, error) {
	return &RayTracing{res: res}, nil
}

func (r *RayTracing) SetupOutAttachments(ctx *Context) []AttachmentDesc {
	return nil
}

func (r *RayTracing) SetupUniforms(ctx *Context) UniformLayout {
	if ctx.Resources.Accel == nil {
		return UniformLayout{}
	}
	return UniformLayout{Static: []gpu.Binding{gpu.AccelBinding(0, ctx.Resources.Accel)}}
}

func (r *RayTracing) SetupShaderStages(ctx *Context) []Program {
	return nil
}

func (r *RayTracing) LinkInputAttachments(inputs []*Attachment) error {
	return nil
}

func (r *RayTracing) Execute(rec *Recording) {
	if r.res.Accel == nil {
		return
	}
	instances := make([]mgl32.Mat4, 0, len(rec.View.Shadow))
	for _, dc := range rec.View.Shadow {
		if int(dc.Object) < len(rec.View.Objects) {
			instances = append(instances, rec.View.Objects[dc.Object].Model)
		}
	}
	rec.Cmd.BuildAccelerationStructure(r.res.Accel, instances)
}
