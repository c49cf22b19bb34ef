package metadata

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

// Camera is the part of a scene camera the renderer reads each frame.
type Camera interface {
	Position() mgl32.Vec3
	View() mgl32.Mat4
	Projection(aspect float32) mgl32.Mat4
	Near() float32
	Far() float32
}

type LightType uint8

const (
	LightDirectional LightType = iota
	LightPoint
)

type Light struct {
	Type       LightType
	Position   mgl32.Vec3
	Direction  mgl32.Vec3
	Color      mgl32.Vec3
	Intensity  float32
	Range      float32
	CastShadow bool
	ShadowBias float32
}

// MeshInstance is one placement of GPU resident geometry. Geometry upload
// and teardown belong to whoever composed the scene.
type MeshInstance struct {
	Name          string
	Geometry      gpu.Geometry
	Transform     mgl32.Mat4
	Visible       bool
	Transparent   bool
	AffectedByFog bool
	ReceiveShadow bool
	CastShadow    bool
	Selected      bool
}

type Scene interface {
	// ActiveCamera returns nil when the scene has no camera to render from.
	ActiveCamera() Camera
	Lights() []Light
	Meshes() []*MeshInstance
}

// Releaser is implemented by scenes that own device resources and want
// them returned when the renderer shuts down.
type Releaser interface {
	Release()
}
