package systems

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/components"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu/headless"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/passes"
)

func testSettings() metadata.Settings {
	s := metadata.DefaultSettings()
	s.ResizeSettleFrames = 0
	s.MaxObjects = 64
	return s
}

func newTestRenderer(t *testing.T, cfg headless.Config, settings metadata.Settings) (*headless.Device, *RendererSystem) {
	t.Helper()
	d := headless.New(cfg)
	r := NewRendererSystem(d, settings, nil, nil)
	require.NoError(t, r.Initialize())
	return d, r
}

func cameraScene() *components.Scene {
	scene := components.NewScene()
	cam := components.NewCamera()
	cam.SetPosition(mgl32.Vec3{0, 2, 10})
	scene.SetCamera(cam)
	scene.AddLight(metadata.Light{
		Type:       metadata.LightDirectional,
		Direction:  mgl32.Vec3{-0.3, -1, -0.2},
		Color:      mgl32.Vec3{1, 1, 1},
		Intensity:  1,
		CastShadow: true,
	})
	return scene
}

func addMesh(t *testing.T, d *headless.Device, scene *components.Scene, name string, castShadow bool) *metadata.MeshInstance {
	t.Helper()
	geo, err := d.CreateGeometry(gpu.GeometryDesc{
		Name:     name,
		Vertices: make([]float32, 3*gpu.VertexStride),
		Indices:  []uint32{0, 1, 2},
	})
	require.NoError(t, err)
	m := &metadata.MeshInstance{
		Name:          name,
		Geometry:      geo,
		Transform:     mgl32.Ident4(),
		Visible:       true,
		ReceiveShadow: true,
		CastShadow:    castShadow,
	}
	scene.AddMesh(m)
	return m
}

func TestInitializeBuildsDeferredPipeline(t *testing.T) {
	d, r := newTestRenderer(t, headless.DefaultConfig(), testSettings())
	defer r.Shutdown(nil)

	assert.Equal(t, StageInitialized, r.Stage())
	var names []string
	for _, p := range r.Graph().Passes() {
		names = append(names, p.Name())
		// every wiring supplies exactly the declared inputs
		if len(p.InputSlots()) > 0 && p.Active() {
			assert.Len(t, p.Inputs(), len(p.InputSlots()), p.Name())
		}
	}
	assert.Equal(t, pipelineOrder, names)

	rt, err := r.Graph().Pass(passes.KeyRayTracing)
	require.NoError(t, err)
	assert.False(t, rt.Graphical())
	assert.False(t, rt.Active())
	assert.Empty(t, d.Violations())
}

func TestRenderEmptySceneRecordsNoDraws(t *testing.T) {
	d, r := newTestRenderer(t, headless.DefaultConfig(), testSettings())
	scene := cameraScene()
	defer r.Shutdown(scene)

	require.NoError(t, r.Render(scene))

	sub := d.LastSubmission()
	assert.Equal(t, 0, sub.TotalGeometryDraws())
	assert.Equal(t, []string{
		passes.KeyShadow,
		passes.KeyGeometry,
		passes.KeyPrecomposition,
		passes.KeyComposition,
		passes.KeyBloom,
		passes.KeyAntiAliasing,
		passes.KeyTonemap,
		passes.KeyPresent,
	}, sub.Passes())
	assert.Len(t, d.Presented(), 1)
	assert.Empty(t, d.Violations())
}

func TestRenderPartitionsShadowCasters(t *testing.T) {
	d, r := newTestRenderer(t, headless.DefaultConfig(), testSettings())
	scene := cameraScene()
	defer r.Shutdown(scene)

	addMesh(t, d, scene, "crate", true)
	addMesh(t, d, scene, "barrel", true)
	addMesh(t, d, scene, "decal", false)

	require.NoError(t, r.Render(scene))

	sub := d.LastSubmission()
	assert.Equal(t, 2, sub.GeometryDraws(passes.KeyShadow))
	assert.Equal(t, 3, sub.GeometryDraws(passes.KeyGeometry))

	stats := r.Stats()
	assert.Equal(t, 2, stats.Draws[passes.KeyShadow])
	assert.Equal(t, 3, stats.Draws[passes.KeyGeometry])
}

func TestInactivePassReportsNoDraws(t *testing.T) {
	d, r := newTestRenderer(t, headless.DefaultConfig(), testSettings())
	scene := cameraScene()
	defer r.Shutdown(scene)

	addMesh(t, d, scene, "crate", true)
	addMesh(t, d, scene, "barrel", true)

	require.NoError(t, r.Render(scene))
	require.Equal(t, 2, r.Stats().Draws[passes.KeyShadow])

	require.NoError(t, r.Graph().SetActive(passes.KeyShadow, false))
	require.NoError(t, r.Render(scene))

	assert.Zero(t, d.LastSubmission().GeometryDraws(passes.KeyShadow))
	assert.Zero(t, r.Stats().Draws[passes.KeyShadow])
	assert.Equal(t, 2, r.Stats().Draws[passes.KeyGeometry])
	assert.Empty(t, d.Violations())
}

func TestFrameSlotAdvancesOncePerRender(t *testing.T) {
	d, r := newTestRenderer(t, headless.DefaultConfig(), testSettings())
	scene := cameraScene()
	defer r.Shutdown(scene)
	k := r.Stats().FramesInFlight
	require.Equal(t, 3, k)

	for n := 1; n <= 7; n++ {
		require.NoError(t, r.Render(scene))
		assert.Equal(t, n%k, r.FrameIndex())
	}

	before := r.FrameIndex()
	submissions := len(d.Submissions())
	d.StaleNextAcquire(1)
	require.NoError(t, r.Render(scene))
	assert.Equal(t, before, r.FrameIndex())
	assert.Len(t, d.Submissions(), submissions)
	assert.Equal(t, uint64(1), r.Stats().StaleAcquires)
	assert.Equal(t, uint64(1), r.Stats().Regenerations)

	require.NoError(t, r.Render(scene))
	assert.Equal(t, (before+1)%k, r.FrameIndex())
	assert.Empty(t, d.Violations())
}

func TestResizeRebuildsResizeablePasses(t *testing.T) {
	d, r := newTestRenderer(t, headless.DefaultConfig(), testSettings())
	scene := cameraScene()
	defer r.Shutdown(scene)
	require.NoError(t, r.Render(scene))

	shadow, err := r.Graph().Pass(passes.KeyShadow)
	require.NoError(t, err)
	fixed := shadow.Extent()

	next := gpu.Extent{Width: 800, Height: 600}
	d.Resize(next)
	require.NoError(t, r.Render(scene))
	require.NoError(t, r.Render(scene))

	for _, p := range r.Graph().Passes() {
		if p.Resizeable() {
			assert.Equal(t, next, p.Extent(), p.Name())
		}
	}
	assert.False(t, shadow.Resizeable())
	assert.Equal(t, fixed, shadow.Extent())

	// non-graphical passes own no images but still follow the surface
	rt, err := r.Graph().Pass(passes.KeyRayTracing)
	require.NoError(t, err)
	assert.True(t, rt.Resizeable())
	assert.Equal(t, next, rt.Extent())

	bloom, err := r.Graph().Pass(passes.KeyBloom)
	require.NoError(t, err)
	assert.Equal(t, gpu.Extent{Width: 400, Height: 300}, bloom.Outputs()[0].Images[0].Extent())
	assert.Empty(t, d.Violations())
}

func TestResizeWaitsForWindowToSettle(t *testing.T) {
	settings := testSettings()
	settings.ResizeSettleFrames = 3
	d, r := newTestRenderer(t, headless.DefaultConfig(), settings)
	scene := cameraScene()
	defer r.Shutdown(scene)

	next := gpu.Extent{Width: 640, Height: 480}
	d.Resize(next)
	r.OnResize(next.Width, next.Height)

	submissions := len(d.Submissions())
	for i := 0; i < 2; i++ {
		require.NoError(t, r.Render(scene))
	}
	assert.Len(t, d.Submissions(), submissions)
	assert.Equal(t, uint64(0), r.Stats().Regenerations)

	require.NoError(t, r.Render(scene))
	assert.Equal(t, uint64(1), r.Stats().Regenerations)
	assert.Len(t, d.Submissions(), submissions+1)
	assert.Equal(t, next, d.Surface().Extent)
}

func TestMinimisedWindowSuspendsRendering(t *testing.T) {
	d, r := newTestRenderer(t, headless.DefaultConfig(), testSettings())
	scene := cameraScene()
	defer r.Shutdown(scene)

	r.OnResize(0, 0)
	require.NoError(t, r.Render(scene))
	assert.Empty(t, d.Submissions())

	r.OnResize(1280, 720)
	require.NoError(t, r.Render(scene))
	assert.Len(t, d.Submissions(), 1)
	assert.Equal(t, uint64(1), r.Stats().Regenerations)
}

func TestStalePresentRegeneratesOnNextCall(t *testing.T) {
	d, r := newTestRenderer(t, headless.DefaultConfig(), testSettings())
	scene := cameraScene()
	defer r.Shutdown(scene)

	d.StaleNextPresent(1)
	require.NoError(t, r.Render(scene))
	assert.Equal(t, 1, r.FrameIndex())
	assert.Equal(t, uint64(0), r.Stats().Regenerations)
	assert.Equal(t, uint64(1), r.Stats().StalePresents)

	require.NoError(t, r.Render(scene))
	assert.Equal(t, uint64(1), r.Stats().Regenerations)
	assert.Equal(t, 2, r.FrameIndex())
	assert.Empty(t, d.Violations())
}

func TestMissingCameraSkipsFrame(t *testing.T) {
	d, r := newTestRenderer(t, headless.DefaultConfig(), testSettings())
	defer r.Shutdown(nil)

	err := r.Render(components.NewScene())
	require.ErrorIs(t, err, core.ErrNoActiveCamera)
	assert.Empty(t, d.Submissions())
	assert.Equal(t, 0, r.FrameIndex())
	assert.Equal(t, uint64(1), r.Stats().SkippedFrames)

	// the next frame with a camera must not trip over leftover state
	require.NoError(t, r.Render(cameraScene()))
	assert.Empty(t, d.Violations())
}

func TestRunStopsWithContext(t *testing.T) {
	_, r := newTestRenderer(t, headless.DefaultConfig(), testSettings())
	defer r.Shutdown(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, r.Run(ctx, components.NewScene()))
	assert.Positive(t, r.Stats().SkippedFrames)
	assert.Zero(t, r.Stats().Frames)
}

func TestDeactivatingGeometryRewiresDependents(t *testing.T) {
	d, r := newTestRenderer(t, headless.DefaultConfig(), testSettings())
	scene := cameraScene()
	defer r.Shutdown(scene)
	addMesh(t, d, scene, "crate", true)
	require.NoError(t, r.Render(scene))
	images := d.LiveImages()

	require.NoError(t, r.Graph().SetActive(passes.KeyGeometry, false))
	require.NoError(t, r.Render(scene))
	assert.Equal(t, []string{passes.KeyShadow, passes.KeyPresent}, d.LastSubmission().Passes())

	present, err := r.Graph().Pass(passes.KeyPresent)
	require.NoError(t, err)
	assert.Same(t, r.Resources().Black, present.Inputs()[0])
	for _, name := range []string{passes.KeyPrecomposition, passes.KeyComposition, passes.KeyTonemap} {
		p, err := r.Graph().Pass(name)
		require.NoError(t, err)
		assert.True(t, p.Suppressed(), name)
	}

	require.NoError(t, r.Graph().SetActive(passes.KeyGeometry, true))
	require.NoError(t, r.Render(scene))
	assert.Len(t, d.LastSubmission().Passes(), 8)
	tonemap, err := r.Graph().Pass(passes.KeyTonemap)
	require.NoError(t, err)
	assert.Same(t, tonemap.Outputs()[0], present.Inputs()[0])
	assert.Equal(t, images, d.LiveImages())
	assert.Empty(t, d.Violations())
}

func TestDisablingAntiAliasingFallsBackToComposition(t *testing.T) {
	_, r := newTestRenderer(t, headless.DefaultConfig(), testSettings())
	defer r.Shutdown(nil)

	require.NoError(t, r.Graph().SetActive(passes.KeyAntiAliasing, false))
	tonemap, err := r.Graph().Pass(passes.KeyTonemap)
	require.NoError(t, err)
	composition, err := r.Graph().Pass(passes.KeyComposition)
	require.NoError(t, err)
	assert.True(t, tonemap.Active())
	assert.Same(t, composition.Outputs()[0], tonemap.Inputs()[0])
}

func TestReconfigureShadowQuality(t *testing.T) {
	d, r := newTestRenderer(t, headless.DefaultConfig(), testSettings())
	scene := cameraScene()
	defer r.Shutdown(scene)

	shadow, err := r.Graph().Pass(passes.KeyShadow)
	require.NoError(t, err)
	composition, err := r.Graph().Pass(passes.KeyComposition)
	require.NoError(t, err)

	s := r.Settings()
	s.ShadowQuality = metadata.ShadowHigh
	require.NoError(t, r.Reconfigure(s))
	require.NoError(t, r.Render(scene))
	assert.Equal(t, gpu.Extent{Width: 4096, Height: 4096}, shadow.Extent())
	assert.Same(t, shadow.Outputs()[0], composition.Inputs()[5])

	s.ShadowQuality = metadata.ShadowOff
	require.NoError(t, r.Reconfigure(s))
	require.NoError(t, r.Render(scene))
	assert.False(t, shadow.Active())
	assert.Same(t, r.Resources().White, composition.Inputs()[5])
	assert.NotContains(t, d.LastSubmission().Passes(), passes.KeyShadow)

	s.ShadowQuality = metadata.ShadowLow
	require.NoError(t, r.Reconfigure(s))
	require.NoError(t, r.Render(scene))
	assert.True(t, shadow.Active())
	assert.Equal(t, gpu.Extent{Width: 1024, Height: 1024}, shadow.Extent())
	assert.Empty(t, d.Violations())
}

func TestReconfigureRejectsInvalidSettings(t *testing.T) {
	_, r := newTestRenderer(t, headless.DefaultConfig(), testSettings())
	defer r.Shutdown(nil)

	s := r.Settings()
	s.FrameTimeoutMS = 0
	assert.Error(t, r.Reconfigure(s))
}

func TestReconfigureKeepsRestartOnlySettings(t *testing.T) {
	_, r := newTestRenderer(t, headless.DefaultConfig(), testSettings())
	scene := cameraScene()
	defer r.Shutdown(scene)

	s := r.Settings()
	s.Buffering = metadata.BufferingDouble
	s.EnableUI = false
	require.NoError(t, r.Reconfigure(s))
	require.NoError(t, r.Render(scene))

	assert.Equal(t, metadata.BufferingTriple, r.Settings().Buffering)
	assert.False(t, r.Settings().EnableUI)
	assert.Equal(t, 3, r.Stats().FramesInFlight)
}

func TestRaytracingFollowsDeviceSupport(t *testing.T) {
	settings := testSettings()
	settings.EnableRaytracing = true

	cfg := headless.DefaultConfig()
	cfg.RayTracing = true
	d, r := newTestRenderer(t, cfg, settings)
	scene := cameraScene()
	defer r.Shutdown(scene)
	addMesh(t, d, scene, "crate", true)

	rt, err := r.Graph().Pass(passes.KeyRayTracing)
	require.NoError(t, err)
	assert.True(t, rt.Active())
	require.NoError(t, r.Render(scene))
	assert.Equal(t, 1, d.LastSubmission().Count(headless.OpBuildAccelerationStructure))

	d2, r2 := newTestRenderer(t, headless.DefaultConfig(), settings)
	defer r2.Shutdown(nil)
	rt2, err := r2.Graph().Pass(passes.KeyRayTracing)
	require.NoError(t, err)
	assert.False(t, rt2.Active())
	assert.Zero(t, d2.Live("acceleration_structure"))
}

func TestReloadShaderRebuildsPipelines(t *testing.T) {
	d, r := newTestRenderer(t, headless.DefaultConfig(), testSettings())
	scene := cameraScene()
	defer r.Shutdown(scene)
	pipelines := d.Live("pipeline")

	r.ReloadShader("composition")
	r.ReloadShader("composition")
	r.ReloadShader("not_a_shader")
	require.NoError(t, r.Render(scene))

	assert.Equal(t, uint64(1), r.Stats().ShaderReloads)
	assert.Equal(t, pipelines, d.Live("pipeline"))
	assert.Empty(t, d.Violations())
}

func TestCaptureTexture(t *testing.T) {
	_, r := newTestRenderer(t, headless.DefaultConfig(), testSettings())
	scene := cameraScene()
	defer r.Shutdown(scene)

	_, err := r.CaptureTexture("composition.hdr")
	assert.Error(t, err)

	require.NoError(t, r.Render(scene))
	img, err := r.CaptureTexture("composition.hdr")
	require.NoError(t, err)
	assert.Equal(t, 1280, img.Bounds().Dx())
	assert.Equal(t, 720, img.Bounds().Dy())
	px := img.RGBAAt(0, 0)
	assert.Zero(t, px.R)
	assert.NotZero(t, px.B)

	img, err = r.CaptureTexture("present.color")
	require.NoError(t, err)
	assert.Equal(t, 1280, img.Bounds().Dx())

	_, err = r.CaptureTexture("composition.nope")
	assert.ErrorIs(t, err, core.ErrUnknownAttachment)
}

func TestShutdownReleasesEverything(t *testing.T) {
	d, r := newTestRenderer(t, headless.DefaultConfig(), testSettings())
	scene := cameraScene()
	addMesh(t, d, scene, "crate", true)
	addMesh(t, d, scene, "barrel", false)
	for i := 0; i < 4; i++ {
		require.NoError(t, r.Render(scene))
	}
	idle := d.IdleWaits()

	require.NoError(t, r.Shutdown(scene))
	assert.Equal(t, StageDisposed, r.Stage())
	assert.Greater(t, d.IdleWaits(), idle)
	assert.Zero(t, d.LiveTotal())
	assert.Empty(t, d.Violations())

	assert.NoError(t, r.Shutdown(scene))
	assert.ErrorIs(t, r.Render(scene), core.ErrNotInitialized)
}

func TestInitializeFailureNamesPassAndCleansUp(t *testing.T) {
	d := headless.New(headless.DefaultConfig())
	boom := errors.New("out of device memory")
	d.FailCreate("bloom", boom)

	r := NewRendererSystem(d, testSettings(), nil, nil)
	err := r.Initialize()
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), fmt.Sprintf("%q", passes.KeyBloom))
	assert.Zero(t, d.LiveTotal())
	assert.Equal(t, StageUninitialized, r.Stage())
}
