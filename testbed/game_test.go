package testbed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/lumen/engine"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu/headless"
)

func TestInitializeComposesScene(t *testing.T) {
	device := headless.New(headless.DefaultConfig())

	tg := NewTestGame(&engine.ApplicationConfig{Name: "testbed"})
	require.NoError(t, tg.FnInitialize(device))

	state := tg.State.(*gameState)
	meshes := state.scene.Meshes()
	require.Len(t, meshes, 5)
	assert.Len(t, state.scene.Lights(), 2)
	assert.NotNil(t, tg.Scene.ActiveCamera())

	casters, transparent := 0, 0
	for _, m := range meshes {
		if m.CastShadow {
			casters++
		}
		if m.Transparent {
			transparent++
		}
	}
	assert.Equal(t, 3, casters)
	assert.Equal(t, 1, transparent)

	assert.Equal(t, 3, device.Live("geometry"))

	require.NoError(t, tg.FnShutdown())
	assert.Empty(t, state.scene.Meshes())
	assert.Zero(t, device.Live("geometry"))
}

func TestUpdateSpinsCastersInPlace(t *testing.T) {
	device := headless.New(headless.DefaultConfig())

	tg := NewTestGame(&engine.ApplicationConfig{Name: "testbed"})
	require.NoError(t, tg.FnInitialize(device))
	defer tg.FnShutdown()

	state := tg.State.(*gameState)
	cube := state.scene.Mesh("cube_0")
	before := cube.Transform
	ground := state.scene.Mesh("ground").Transform
	camera := state.WorldCamera.Position()

	require.NoError(t, tg.FnUpdate(0.05))
	assert.NotEqual(t, before, cube.Transform)
	assert.Equal(t, before.Col(3), cube.Transform.Col(3))
	assert.Equal(t, ground, state.scene.Mesh("ground").Transform)
	assert.NotEqual(t, camera, state.WorldCamera.Position())
}
