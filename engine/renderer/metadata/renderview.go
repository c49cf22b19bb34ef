package metadata

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

// MaxLights bounds the light array uploaded each frame.
const MaxLights = 16

const (
	CameraUniformSize = 4*64 + 16 + 16
	LightUniformSize  = 3*16 + 64
	LightsHeaderSize  = 16
	LightsBufferSize  = LightsHeaderSize + MaxLights*LightUniformSize
	ObjectUniformSize = 64 + 16
)

type CameraUniform struct {
	View          mgl32.Mat4
	Projection    mgl32.Mat4
	InvView       mgl32.Mat4
	InvProjection mgl32.Mat4
	Position      mgl32.Vec3
	Near          float32
	Far           float32
}

type LightUniform struct {
	Light
	// ViewProjection maps world space into the light's shadow map.
	ViewProjection mgl32.Mat4
}

type ObjectFlags uint32

const (
	FlagFog ObjectFlags = 1 << iota
	FlagReceiveShadow
	FlagCastShadow
	FlagSelected
)

func (f ObjectFlags) Has(flag ObjectFlags) bool {
	return f&flag != 0
}

type ObjectUniform struct {
	Model mgl32.Mat4
	Flags ObjectFlags
}

// DrawCall draws Geometry with the object uniform at index Object.
type DrawCall struct {
	Geometry gpu.Geometry
	Object   uint32
	// Distance from the camera, only filled for transparent draws.
	Distance float32
}

// RenderView is the per frame translation of a scene into uniforms and
// draw lists. It lives for a single Render call.
type RenderView struct {
	Extent  gpu.Extent
	Camera  CameraUniform
	Lights  []LightUniform
	Objects []ObjectUniform

	Opaque      []DrawCall
	Shadow      []DrawCall
	Transparent []DrawCall

	// ShadowLight indexes Lights, -1 when nothing casts shadows.
	ShadowLight int
	// Overlay lines drawn by the UI overlay when enabled.
	Overlay []string
}

func (c CameraUniform) Encode(dst []byte) {
	w := std140Writer{buf: dst}
	w.mat4(c.View)
	w.mat4(c.Projection)
	w.mat4(c.InvView)
	w.mat4(c.InvProjection)
	w.vec4(c.Position.Vec4(1))
	w.f32(c.Near)
	w.f32(c.Far)
}

// EncodeLights writes the count header followed by at most MaxLights
// entries. It returns how many were written.
func EncodeLights(dst []byte, lights []LightUniform) int {
	n := min(len(lights), MaxLights)
	w := std140Writer{buf: dst}
	w.u32(uint32(n))
	w.align(LightsHeaderSize)
	for _, l := range lights[:n] {
		w.vec4(l.Position.Vec4(float32(l.Type)))
		w.vec4(l.Direction.Vec4(l.Range))
		w.vec4(l.Color.Vec4(l.Intensity))
		w.mat4(l.ViewProjection)
	}
	return n
}

// EncodeObjects writes as many objects as fit in dst and returns the count.
func EncodeObjects(dst []byte, objects []ObjectUniform) int {
	n := min(len(objects), len(dst)/ObjectUniformSize)
	w := std140Writer{buf: dst}
	for _, o := range objects[:n] {
		w.mat4(o.Model)
		w.u32(uint32(o.Flags))
		w.align(ObjectUniformSize)
	}
	return n
}
