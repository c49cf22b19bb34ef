package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/fsnotify/fsnotify"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/lumen/engine/assets"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/platform"
	"github.com/spaghettifunk/lumen/engine/renderer/components"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu/headless"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

const settingsTOML = `
capture_dir = %q
font = ""
shadow_quality = %q

[window]
width = 320
height = 240
`

func writeSettings(t *testing.T, path, captureDir, shadows string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(settingsTOML, captureDir, shadows)), 0o644))
}

func newHeadlessEngine(t *testing.T, frames int, captures ...string) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()
	settingsPath := filepath.Join(dir, "settings.toml")
	writeSettings(t, settingsPath, filepath.Join(dir, "captures"), "medium")

	scene := components.NewScene()
	cam := components.NewCamera()
	cam.SetPosition(mgl32.Vec3{0, 1, 5})
	scene.SetCamera(cam)

	e, err := New(&Game{
		ApplicationConfig: &ApplicationConfig{
			Name:           "engine-test",
			SettingsPath:   settingsPath,
			AssetsDir:      dir,
			Headless:       true,
			HeadlessFrames: frames,
			CaptureOnExit:  captures,
		},
		Scene: scene,
	})
	require.NoError(t, err)
	return e, dir
}

func TestHeadlessRunCapturesOnExit(t *testing.T) {
	e, dir := newHeadlessEngine(t, 3, DefaultCaptureID)
	updates := 0
	e.gameInstance.FnUpdate = func(float64) error {
		updates++
		return nil
	}

	require.NoError(t, e.Initialize())
	w, h := e.GetFramebufferSize()
	assert.Equal(t, uint32(320), w)
	assert.Equal(t, uint32(240), h)

	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, 3, updates)
	assert.Equal(t, uint64(3), e.Renderer().Stats().Frames)

	require.NoError(t, e.Shutdown())
	assert.Equal(t, EngineStageShutdown, e.Stage())

	matches, err := filepath.Glob(filepath.Join(dir, "captures", "tonemap_ldr_*.bmp"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestRunBeforeInitialize(t *testing.T) {
	e, _ := newHeadlessEngine(t, 1)
	defer e.Shutdown()
	assert.ErrorIs(t, e.Run(context.Background()), core.ErrNotInitialized)
}

func TestRunStopsWithContext(t *testing.T) {
	e, _ := newHeadlessEngine(t, 0)
	require.NoError(t, e.Initialize())
	defer e.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, e.Run(ctx))
	assert.Zero(t, e.Renderer().Stats().Frames)
}

func TestFailedInitializeReleasesDevice(t *testing.T) {
	e, _ := newHeadlessEngine(t, 1)
	defer e.Shutdown()

	var device *headless.Device
	e.gameInstance.FnInitialize = func(d gpu.Device) error {
		device = d.(*headless.Device)
		geo, err := d.CreateGeometry(gpu.GeometryDesc{
			Name:     "half_loaded",
			Vertices: make([]float32, 3*gpu.VertexStride),
			Indices:  []uint32{0, 1, 2},
		})
		require.NoError(t, err)
		e.gameInstance.Scene.(*components.Scene).AddMesh(&metadata.MeshInstance{Name: "half_loaded", Geometry: geo})
		return errors.New("missing level data")
	}

	assert.EqualError(t, e.Initialize(), "missing level data")
	assert.Equal(t, EngineStageUninitialized, e.Stage())
	assert.Nil(t, e.Renderer())
	require.NotNil(t, device)
	assert.Zero(t, device.LiveTotal())
	assert.Empty(t, device.Violations())

	assert.ErrorIs(t, e.Run(context.Background()), core.ErrNotInitialized)
}

func TestNewRejectsGameWithoutScene(t *testing.T) {
	_, err := New(&Game{ApplicationConfig: &ApplicationConfig{Name: "empty"}})
	assert.Error(t, err)
	_, err = New(nil)
	assert.Error(t, err)
}

func TestCaptureKeyQueuesBoundedRequests(t *testing.T) {
	e, _ := newHeadlessEngine(t, 1)
	defer e.Shutdown()

	for i := 0; i < maxPendingCaptures+3; i++ {
		e.onKey(platform.KeyF12)
	}
	assert.Equal(t, maxPendingCaptures, e.pendingCaptures.Len())

	e.onKey(platform.KeyEscape)
	assert.False(t, e.isRunning)
}

func TestSettingsChangeReconfiguresRenderer(t *testing.T) {
	e, dir := newHeadlessEngine(t, 0)
	require.NoError(t, e.Initialize())
	defer e.Shutdown()

	settingsPath := e.gameInstance.ApplicationConfig.SettingsPath
	writeSettings(t, settingsPath, filepath.Join(dir, "captures"), "high")
	e.onAssetChanged(assets.Change{Path: settingsPath, Type: assets.AssetTypeSettings, Op: fsnotify.Write})

	require.NoError(t, e.Renderer().Render(e.gameInstance.Scene))
	assert.Equal(t, metadata.ShadowHigh, e.Renderer().Settings().ShadowQuality)
}

func TestShaderName(t *testing.T) {
	assert.Equal(t, "geometry", shaderName("assets/shaders/geometry.frag.spv"))
	assert.Equal(t, "fullscreen", shaderName("fullscreen.vert.spv"))
	assert.Equal(t, "noext", shaderName("/tmp/noext"))
}
