package testbed

import (
	"fmt"
	gomath "math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/lumen/engine"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/components"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

const (
	orbitRadius = float32(9)
	orbitHeight = float32(3)
	orbitSpeed  = float32(0.25)
	spinSpeed   = float32(0.8)
	// large frame times would make the cubes jump after a stall
	maxStep = 0.1
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	scene       *components.Scene
	WorldCamera *components.Camera

	orbit float32
	spin  float32

	width  uint32
	height uint32
}

func NewTestGame(config *engine.ApplicationConfig) *TestGame {
	scene := components.NewScene()
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: config,
			Scene:             scene,
			State: &gameState{
				scene:       scene,
				WorldCamera: components.NewCamera(),
			},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) Initialize(device gpu.Device) error {
	core.LogDebug("TestGame Initialize fn....")

	state := g.State.(*gameState)
	state.scene.SetCamera(state.WorldCamera)
	g.placeCamera(state)

	cube, err := upload(device, math.GenerateCubeConfig(1, 1, 1, 1, 1, "test_cube"))
	if err != nil {
		return err
	}
	ground, err := upload(device, math.GeneratePlaneConfig(20, 20, 4, 4, 8, 8, "test_ground"))
	if err != nil {
		return err
	}
	glass, err := upload(device, math.GeneratePlaneConfig(2, 2, 1, 1, 1, 1, "test_glass"))
	if err != nil {
		return err
	}

	state.scene.AddMesh(&metadata.MeshInstance{
		Name:          "ground",
		Geometry:      ground,
		Transform:     mgl32.Ident4(),
		Visible:       true,
		ReceiveShadow: true,
		AffectedByFog: true,
	})
	for i, pos := range []mgl32.Vec3{{-2.5, 0.5, 0}, {0, 1.5, 0}, {2.5, 0.5, 0}} {
		state.scene.AddMesh(&metadata.MeshInstance{
			Name:          fmt.Sprintf("cube_%d", i),
			Geometry:      cube,
			Transform:     mgl32.Translate3D(pos.X(), pos.Y(), pos.Z()),
			Visible:       true,
			CastShadow:    true,
			ReceiveShadow: true,
			AffectedByFog: true,
		})
	}
	// upright quad in front of the cubes
	state.scene.AddMesh(&metadata.MeshInstance{
		Name:        "glass",
		Geometry:    glass,
		Transform:   mgl32.Translate3D(0, 1, 2).Mul4(mgl32.HomogRotate3DX(mgl32.DegToRad(90))),
		Visible:     true,
		Transparent: true,
	})

	state.scene.AddLight(metadata.Light{
		Type:       metadata.LightDirectional,
		Direction:  mgl32.Vec3{-0.4, -1, -0.3}.Normalize(),
		Color:      mgl32.Vec3{1, 0.95, 0.9},
		Intensity:  3,
		CastShadow: true,
		ShadowBias: 0.005,
	})
	state.scene.AddLight(metadata.Light{
		Type:      metadata.LightPoint,
		Position:  mgl32.Vec3{0, 3, 3},
		Color:     mgl32.Vec3{0.3, 0.5, 1},
		Intensity: 8,
		Range:     10,
	})

	return nil
}

func upload(device gpu.Device, config *math.GeometryConfig) (gpu.Geometry, error) {
	geometry, err := device.CreateGeometry(config.Desc())
	if err != nil {
		core.LogError("failed to upload geometry %s: %s", config.Name, err)
		return nil, err
	}
	return geometry, nil
}

func (g *TestGame) Update(deltaTime float64) error {
	state := g.State.(*gameState)
	dt := float32(math.Clamp(deltaTime, 0, maxStep))

	state.orbit += orbitSpeed * dt
	state.spin += spinSpeed * dt
	g.placeCamera(state)

	rotation := mgl32.HomogRotate3DY(state.spin)
	for _, m := range state.scene.Meshes() {
		if m.CastShadow {
			pos := m.Transform.Col(3)
			m.Transform = mgl32.Translate3D(pos.X(), pos.Y(), pos.Z()).Mul4(rotation)
		}
	}
	return nil
}

// placeCamera keeps the camera on a circle around the origin looking in.
func (g *TestGame) placeCamera(state *gameState) {
	sin, cos := gomath.Sincos(float64(state.orbit))
	state.WorldCamera.SetPosition(mgl32.Vec3{
		orbitRadius * float32(sin),
		orbitHeight,
		orbitRadius * float32(cos),
	})
	state.WorldCamera.SetEulerRotation(mgl32.Vec3{0, state.orbit, 0})
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	state := g.State.(*gameState)

	state.width = width
	state.height = height
	return nil
}

func (g *TestGame) Shutdown() error {
	state := g.State.(*gameState)
	state.scene.Release()
	return nil
}
