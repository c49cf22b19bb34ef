package systems

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/components"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

var viewExtent = gpu.Extent{Width: 1280, Height: 720}

func placed(name string, x, y, z float32) *metadata.MeshInstance {
	return &metadata.MeshInstance{
		Name:      name,
		Transform: mgl32.Translate3D(x, y, z),
		Visible:   true,
	}
}

func TestBuildWithoutCamera(t *testing.T) {
	b := NewRenderViewBuilder(16)
	_, err := b.Build(components.NewScene(), nil, viewExtent)
	assert.ErrorIs(t, err, core.ErrNoActiveCamera)
	_, err = b.Build(nil, nil, viewExtent)
	assert.ErrorIs(t, err, core.ErrNoActiveCamera)
}

func TestBuildSortsMeshesIntoDrawLists(t *testing.T) {
	scene := cameraScene()

	opaque := placed("wall", 0, 0, 0)
	opaque.CastShadow = true
	opaque.ReceiveShadow = true
	hidden := placed("hidden", 0, 0, 0)
	hidden.Visible = false
	glass := placed("glass", 0, 0, 5)
	glass.Transparent = true
	glass.AffectedByFog = true
	smoke := placed("smoke", 0, 0, -20)
	smoke.Transparent = true
	smoke.Selected = true

	for _, m := range []*metadata.MeshInstance{opaque, hidden, nil, glass, smoke} {
		scene.AddMesh(m)
	}

	view, err := NewRenderViewBuilder(16).Build(scene, nil, viewExtent)
	require.NoError(t, err)

	require.Len(t, view.Objects, 3)
	assert.Len(t, view.Opaque, 1)
	assert.Len(t, view.Shadow, 1)
	require.Len(t, view.Transparent, 2)
	assert.Equal(t, view.Opaque[0].Object, view.Shadow[0].Object)

	// farthest first
	assert.Equal(t, uint32(2), view.Transparent[0].Object)
	assert.Equal(t, uint32(1), view.Transparent[1].Object)
	assert.Greater(t, view.Transparent[0].Distance, view.Transparent[1].Distance)

	flags := view.Objects[0].Flags
	assert.True(t, flags.Has(metadata.FlagCastShadow))
	assert.True(t, flags.Has(metadata.FlagReceiveShadow))
	assert.False(t, flags.Has(metadata.FlagFog))
	assert.True(t, view.Objects[1].Flags.Has(metadata.FlagFog))
	assert.True(t, view.Objects[2].Flags.Has(metadata.FlagSelected))
	assert.Equal(t, mgl32.Translate3D(0, 0, 5), view.Objects[1].Model)
}

func TestBuildCameraUniform(t *testing.T) {
	scene := cameraScene()
	view, err := NewRenderViewBuilder(16).Build(scene, nil, viewExtent)
	require.NoError(t, err)

	cam := scene.Camera()
	assert.Equal(t, cam.Position(), view.Camera.Position)
	assert.True(t, view.Camera.View.Mul4(view.Camera.InvView).ApproxEqualThreshold(mgl32.Ident4(), 1e-4))
	assert.True(t, view.Camera.Projection.Mul4(view.Camera.InvProjection).ApproxEqualThreshold(mgl32.Ident4(), 1e-4))
	assert.Equal(t, cam.Near(), view.Camera.Near)
	assert.Equal(t, cam.Far(), view.Camera.Far)
	assert.Equal(t, viewExtent, view.Extent)
}

func TestBuildTruncatesLights(t *testing.T) {
	scene := components.NewScene()
	scene.SetCamera(components.NewCamera())
	for i := 0; i < metadata.MaxLights+4; i++ {
		scene.AddLight(metadata.Light{
			Type:       metadata.LightPoint,
			Position:   mgl32.Vec3{float32(i), 1, 0},
			Direction:  mgl32.Vec3{0, -1, 0},
			Range:      10,
			CastShadow: i == 3,
		})
	}

	view, err := NewRenderViewBuilder(16).Build(scene, nil, viewExtent)
	require.NoError(t, err)
	assert.Len(t, view.Lights, metadata.MaxLights)
	assert.Equal(t, 3, view.ShadowLight)
}

func TestBuildWithoutShadowCaster(t *testing.T) {
	scene := components.NewScene()
	scene.SetCamera(components.NewCamera())
	scene.AddLight(metadata.Light{Type: metadata.LightDirectional, Direction: mgl32.Vec3{0, -1, 0}})

	view, err := NewRenderViewBuilder(16).Build(scene, nil, viewExtent)
	require.NoError(t, err)
	assert.Equal(t, -1, view.ShadowLight)
	assert.Empty(t, view.Shadow)
}

func TestBuildCapsObjects(t *testing.T) {
	scene := cameraScene()
	for i := 0; i < 10; i++ {
		scene.AddMesh(placed("m", float32(i), 0, 0))
	}
	view, err := NewRenderViewBuilder(4).Build(scene, nil, viewExtent)
	require.NoError(t, err)
	assert.Len(t, view.Objects, 4)
	assert.Len(t, view.Opaque, 4)
}

func TestLightViewProjectionKeepsCameraInFront(t *testing.T) {
	cam := metadata.CameraUniform{Position: mgl32.Vec3{0, 0, 0}, Far: 100}
	l := metadata.Light{Type: metadata.LightDirectional, Direction: mgl32.Vec3{0, -1, 0}}

	clip := lightViewProjection(l, cam).Mul4x1(cam.Position.Vec4(1))
	ndc := clip.Vec3().Mul(1 / clip.W())
	assert.InDelta(t, 0, ndc.X(), 1e-4)
	assert.InDelta(t, 0, ndc.Y(), 1e-4)
	assert.True(t, ndc.Z() > -1 && ndc.Z() < 1)
}
