package systems

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/exp/slices"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/frame"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// RenderViewBuilder turns scene state into the uniforms and draw lists of
// one frame. It keeps no per frame data, only whether it already warned
// about truncation.
type RenderViewBuilder struct {
	maxObjects    int
	warnedLights  bool
	warnedObjects bool
}

func NewRenderViewBuilder(maxObjects int) *RenderViewBuilder {
	return &RenderViewBuilder{maxObjects: maxObjects}
}

// Build gathers camera, lights and visible meshes of scene. When f is not
// nil the uniforms are also encoded into its mapped buffers.
func (b *RenderViewBuilder) Build(scene metadata.Scene, f *frame.Frame, extent gpu.Extent) (*metadata.RenderView, error) {
	if scene == nil {
		return nil, core.ErrNoActiveCamera
	}
	cam := scene.ActiveCamera()
	if cam == nil {
		return nil, core.ErrNoActiveCamera
	}

	view := &metadata.RenderView{
		Extent:      extent,
		ShadowLight: -1,
	}

	v := cam.View()
	p := cam.Projection(extent.Aspect())
	view.Camera = metadata.CameraUniform{
		View:          v,
		Projection:    p,
		InvView:       v.Inv(),
		InvProjection: p.Inv(),
		Position:      cam.Position(),
		Near:          cam.Near(),
		Far:           cam.Far(),
	}

	b.gatherLights(view, scene.Lights())
	b.gatherMeshes(view, scene.Meshes())

	// back to front so blending composes correctly
	slices.SortStableFunc(view.Transparent, func(x, y metadata.DrawCall) int {
		switch {
		case x.Distance > y.Distance:
			return -1
		case x.Distance < y.Distance:
			return 1
		}
		return 0
	})

	if f != nil {
		if err := b.encode(view, f); err != nil {
			return nil, err
		}
	}
	return view, nil
}

func (b *RenderViewBuilder) gatherLights(view *metadata.RenderView, lights []metadata.Light) {
	if len(lights) > metadata.MaxLights {
		if !b.warnedLights {
			core.LogWarn("render view: scene has %d lights, only the first %d are used", len(lights), metadata.MaxLights)
			b.warnedLights = true
		}
		lights = lights[:metadata.MaxLights]
	}
	view.Lights = make([]metadata.LightUniform, 0, len(lights))
	for i, l := range lights {
		view.Lights = append(view.Lights, metadata.LightUniform{
			Light:          l,
			ViewProjection: lightViewProjection(l, view.Camera),
		})
		if l.CastShadow && view.ShadowLight < 0 {
			view.ShadowLight = i
		}
	}
}

func (b *RenderViewBuilder) gatherMeshes(view *metadata.RenderView, meshes []*metadata.MeshInstance) {
	eye := view.Camera.Position
	for _, m := range meshes {
		if m == nil || !m.Visible {
			continue
		}
		if b.maxObjects > 0 && len(view.Objects) == b.maxObjects {
			if !b.warnedObjects {
				core.LogWarn("render view: more than %d visible meshes, the rest is dropped", b.maxObjects)
				b.warnedObjects = true
			}
			break
		}

		var flags metadata.ObjectFlags
		if m.AffectedByFog {
			flags |= metadata.FlagFog
		}
		if m.ReceiveShadow {
			flags |= metadata.FlagReceiveShadow
		}
		if m.CastShadow {
			flags |= metadata.FlagCastShadow
		}
		if m.Selected {
			flags |= metadata.FlagSelected
		}

		index := uint32(len(view.Objects))
		view.Objects = append(view.Objects, metadata.ObjectUniform{Model: m.Transform, Flags: flags})

		dc := metadata.DrawCall{Geometry: m.Geometry, Object: index}
		if m.Transparent {
			dc.Distance = m.Transform.Col(3).Vec3().Sub(eye).Len()
			view.Transparent = append(view.Transparent, dc)
		} else {
			view.Opaque = append(view.Opaque, dc)
		}
		if m.CastShadow {
			view.Shadow = append(view.Shadow, metadata.DrawCall{Geometry: m.Geometry, Object: index})
		}
	}
}

func (b *RenderViewBuilder) encode(view *metadata.RenderView, f *frame.Frame) error {
	camera := f.Buffer(frame.BufferCamera)
	lights := f.Buffer(frame.BufferLights)
	objects := f.Buffer(frame.BufferObjects)
	if camera == nil || lights == nil || objects == nil {
		return fmt.Errorf("render view: frame %d is missing view buffers", f.Index)
	}
	view.Camera.Encode(camera.Mapped())
	metadata.EncodeLights(lights.Mapped(), view.Lights)
	if n := metadata.EncodeObjects(objects.Mapped(), view.Objects); n < len(view.Objects) {
		return fmt.Errorf("render view: object buffer of frame %d holds %d of %d objects", f.Index, n, len(view.Objects))
	}
	return nil
}

// lightViewProjection maps world space into the shadow map of l. A
// directional light covers the camera's far range around the camera.
func lightViewProjection(l metadata.Light, cam metadata.CameraUniform) mgl32.Mat4 {
	dir := l.Direction
	if dir.Len() == 0 {
		dir = mgl32.Vec3{0, -1, 0}
	}
	dir = dir.Normalize()
	up := mgl32.Vec3{0, 1, 0}
	if mgl32.Abs(dir.Dot(up)) > 0.99 {
		up = mgl32.Vec3{0, 0, 1}
	}

	switch l.Type {
	case metadata.LightPoint:
		far := l.Range
		if far <= 0 {
			far = cam.Far
		}
		proj := mgl32.Perspective(mgl32.DegToRad(90), 1, 0.1, far)
		return proj.Mul4(mgl32.LookAtV(l.Position, l.Position.Add(dir), up))
	default:
		radius := cam.Far / 2
		center := cam.Position
		eye := center.Sub(dir.Mul(radius))
		proj := mgl32.Ortho(-radius, radius, -radius, radius, 0, 2*radius)
		return proj.Mul4(mgl32.LookAtV(eye, center, up))
	}
}
