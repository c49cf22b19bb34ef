package systems

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/spaghettifunk/lumen/engine/assets/loaders"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/frame"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/graph"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/passes"
)

type RendererStage uint8

const (
	StageUninitialized RendererStage = iota
	StageInitialized
	StageRendering
	StageShuttingDown
	StageDisposed
)

func (s RendererStage) String() string {
	switch s {
	case StageUninitialized:
		return "uninitialized"
	case StageInitialized:
		return "initialized"
	case StageRendering:
		return "rendering"
	case StageShuttingDown:
		return "shutting down"
	case StageDisposed:
		return "disposed"
	}
	return "unknown"
}

// overlayGlyphs bounds the text the stats overlay can draw per frame.
const overlayGlyphs = 2048

// pipelineOrder is the execution order of the deferred pipeline.
var pipelineOrder = []string{
	passes.KeyShadow,
	passes.KeyGeometry,
	passes.KeyRayTracing,
	passes.KeyPrecomposition,
	passes.KeyComposition,
	passes.KeyBloom,
	passes.KeyAntiAliasing,
	passes.KeyTonemap,
	passes.KeyPresent,
}

// G-buffer output indices.
const (
	gbufferAlbedo = iota
	gbufferNormal
	gbufferMaterial
	gbufferDepth
)

var pipelineDependencies = []graph.ImageDependency{
	{
		Consumer:   passes.KeyPrecomposition,
		Producer:   passes.KeyGeometry,
		Indices:    []int{gbufferNormal, gbufferDepth},
		OnInactive: graph.Deactivate,
	},
	{
		Consumer:   passes.KeyComposition,
		Producer:   passes.KeyGeometry,
		Indices:    []int{gbufferAlbedo, gbufferNormal, gbufferMaterial, gbufferDepth},
		OnInactive: graph.Deactivate,
	},
	{
		Consumer:      passes.KeyComposition,
		Producer:      passes.KeyPrecomposition,
		Indices:       []int{0},
		FallbackImage: passes.ResourceWhite,
	},
	{
		Consumer:      passes.KeyComposition,
		Producer:      passes.KeyShadow,
		Indices:       []int{0},
		FallbackImage: passes.ResourceWhite,
	},
	{
		Consumer:   passes.KeyBloom,
		Producer:   passes.KeyComposition,
		Indices:    []int{0},
		OnInactive: graph.Deactivate,
	},
	{
		Consumer:   passes.KeyAntiAliasing,
		Producer:   passes.KeyComposition,
		Indices:    []int{0},
		OnInactive: graph.Deactivate,
	},
	{
		Consumer:   passes.KeyTonemap,
		Producer:   passes.KeyAntiAliasing,
		Indices:    []int{0},
		Else:       &graph.ImageDependency{Producer: passes.KeyComposition, Indices: []int{0}},
		OnInactive: graph.Deactivate,
	},
	{
		Consumer:      passes.KeyTonemap,
		Producer:      passes.KeyBloom,
		Indices:       []int{0},
		FallbackImage: passes.ResourceBlack,
	},
	{
		Consumer:      passes.KeyPresent,
		Producer:      passes.KeyTonemap,
		Indices:       []int{0},
		FallbackImage: passes.ResourceBlack,
	},
}

// RendererStats are counters since Initialize plus the per pass draw
// counts of the last completed frame.
type RendererStats struct {
	Frames         uint64
	SkippedFrames  uint64
	StaleAcquires  uint64
	StalePresents  uint64
	Regenerations  uint64
	ShaderReloads  uint64
	Draws          map[string]int
	FrameIndex     int
	FramesInFlight int
}

// pendingChanges are posted from other goroutines (window callbacks, the
// asset watcher) and applied at the start of the next Render.
type pendingChanges struct {
	resized  bool
	extent   gpu.Extent
	settings *metadata.Settings
	shaders  []string
}

// RendererSystem drives the frame loop: acquire, build the view, run the
// pass graph, submit, present, and regenerate targets when the surface
// goes stale. Everything except OnResize, Reconfigure and ReloadShader
// must be called from the render goroutine.
type RendererSystem struct {
	device   gpu.Device
	settings metadata.Settings
	shaders  passes.ShaderSource
	font     *loaders.BitmapFont

	stage     RendererStage
	resources *passes.Resources
	registry  *passes.Registry
	graph     *graph.Graph
	frames    *frame.Ring
	views     *RenderViewBuilder

	windowExtent      gpu.Extent
	regenerate        bool
	resizing          bool
	framesSinceResize int
	suspended         bool
	warnedCamera      bool
	warnedRaytracing  bool

	overlay []string
	stats   RendererStats

	mu      sync.Mutex
	pending pendingChanges
}

func NewRendererSystem(device gpu.Device, settings metadata.Settings, shaders passes.ShaderSource, font *loaders.BitmapFont) *RendererSystem {
	return &RendererSystem{
		device:   device,
		settings: settings,
		shaders:  shaders,
		font:     font,
		views:    NewRenderViewBuilder(settings.MaxObjects),
		stats:    RendererStats{Draws: map[string]int{}},
	}
}

func (r *RendererSystem) Stage() RendererStage {
	return r.stage
}

func (r *RendererSystem) Settings() metadata.Settings {
	return r.settings
}

// Graph exposes the pass graph for inspection. It is nil before
// Initialize.
func (r *RendererSystem) Graph() *graph.Graph {
	return r.graph
}

func (r *RendererSystem) Resources() *passes.Resources {
	return r.resources
}

func (r *RendererSystem) FrameIndex() int {
	if r.frames == nil {
		return 0
	}
	return r.frames.Index()
}

func (r *RendererSystem) Stats() RendererStats {
	s := r.stats
	s.Draws = make(map[string]int, len(r.stats.Draws))
	for k, v := range r.stats.Draws {
		s.Draws[k] = v
	}
	s.FrameIndex = r.FrameIndex()
	if r.frames != nil {
		s.FramesInFlight = r.frames.Len()
	}
	return s
}

// SetOverlay replaces the text lines drawn by the UI overlay.
func (r *RendererSystem) SetOverlay(lines []string) {
	r.overlay = lines
}

func (r *RendererSystem) Initialize() error {
	if r.stage != StageUninitialized {
		return fmt.Errorf("renderer: initialize in stage %s", r.stage)
	}
	if err := r.settings.Validate(); err != nil {
		return err
	}

	count := r.settings.Buffering.Frames()
	if limit := r.device.Features().MaxFramesInFlight; limit > 0 && count > limit {
		core.LogWarn("renderer: device supports %d frames in flight, %d requested", limit, count)
		count = limit
	}
	r.windowExtent = r.device.Surface().Extent

	r.resources = passes.NewResources(r.device, &r.settings, r.shaders, r.font)
	if err := r.resources.Initialize(); err != nil {
		core.LogError("renderer: %s", err)
		return err
	}

	r.registry = passes.NewRegistry()
	if err := passes.Bootstrap(r.registry); err != nil {
		r.resources.Shutdown()
		return err
	}

	g, err := r.buildGraph()
	if err != nil {
		r.resources.Shutdown()
		return err
	}
	if err := g.Setup(count); err != nil {
		core.LogError("renderer: %s", err)
		r.resources.Shutdown()
		return err
	}
	r.graph = g

	ring, err := frame.NewRing(r.device, frame.Config{
		Count:      count,
		ViewLayout: r.resources.ViewLayout,
		Buffers: []frame.BufferSpec{
			{Name: frame.BufferCamera, Size: metadata.CameraUniformSize, Usage: gpu.BufferUniform, Slot: passes.ViewSlotCamera},
			{Name: frame.BufferLights, Size: metadata.LightsBufferSize, Usage: gpu.BufferStorage, Slot: passes.ViewSlotLights},
			{Name: frame.BufferObjects, Size: r.settings.MaxObjects * metadata.ObjectUniformSize, Usage: gpu.BufferStorage, Slot: passes.ViewSlotObjects},
			{Name: frame.BufferOverlay, Size: overlayGlyphs * 6 * passes.GlyphVertexSize, Usage: gpu.BufferVertex, Slot: -1},
		},
	})
	if err != nil {
		core.LogError("renderer: %s", err)
		r.graph.Dispose()
		r.resources.Shutdown()
		return err
	}
	r.frames = ring

	if err := r.applyToggles(); err != nil {
		r.frames.Destroy()
		r.graph.Dispose()
		r.resources.Shutdown()
		return err
	}

	r.stage = StageInitialized
	core.LogInfo("renderer: initialized with %d frames in flight at %s", count, r.windowExtent)
	return nil
}

func (r *RendererSystem) buildGraph() (*graph.Graph, error) {
	g := graph.New(r.resources)
	for _, key := range pipelineOrder {
		p, err := r.registry.Create(key, r.resources)
		if err != nil {
			return nil, err
		}
		if err := g.Add(p); err != nil {
			return nil, err
		}
	}
	for _, dep := range pipelineDependencies {
		if err := g.Depend(dep); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// applyToggles turns optional passes on or off according to the current
// settings and device features.
func (r *RendererSystem) applyToggles() error {
	if err := r.graph.SetActive(passes.KeyShadow, r.settings.ShadowQuality != metadata.ShadowOff); err != nil {
		return err
	}
	raytracing := r.settings.EnableRaytracing && r.device.Features().RayTracing
	if r.settings.EnableRaytracing && !raytracing && !r.warnedRaytracing {
		core.LogWarn("renderer: raytracing requested but the device does not support it")
		r.warnedRaytracing = true
	}
	return r.graph.SetActive(passes.KeyRayTracing, raytracing)
}

// Run renders until ctx is done or a fatal error happens. Frames skipped
// for lack of a camera are not fatal.
func (r *RendererSystem) Run(ctx context.Context, scene metadata.Scene) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if err := r.Render(scene); err != nil && !errors.Is(err, core.ErrNoActiveCamera) {
			return err
		}
	}
}

// Render draws one frame. A stale surface is recovered from and returns
// nil; the slot only advances when a frame was submitted.
func (r *RendererSystem) Render(scene metadata.Scene) error {
	if r.stage != StageInitialized {
		return fmt.Errorf("renderer: render in stage %s: %w", r.stage, core.ErrNotInitialized)
	}
	r.stage = StageRendering
	defer func() { r.stage = StageInitialized }()

	if err := r.applyPending(); err != nil {
		return err
	}
	if r.suspended {
		return nil
	}
	if r.resizing {
		// wait for the window size to settle before rebuilding targets
		r.framesSinceResize++
		if r.framesSinceResize < r.settings.ResizeSettleFrames {
			return nil
		}
		r.resizing = false
		r.framesSinceResize = 0
		r.regenerate = true
	}
	if r.regenerate {
		if err := r.regenerateTargets(); err != nil {
			return err
		}
		if r.suspended {
			return nil
		}
	}

	if scene == nil || scene.ActiveCamera() == nil {
		r.stats.SkippedFrames++
		if !r.warnedCamera {
			core.LogWarn("renderer: scene has no active camera, skipping frames")
			r.warnedCamera = true
		}
		return core.ErrNoActiveCamera
	}
	r.warnedCamera = false

	timeout := r.settings.FrameTimeout()
	f := r.frames.Current()
	if err := f.Wait(timeout); err != nil {
		core.LogError("renderer: %s", err)
		return err
	}

	imageIndex, err := r.device.AcquireNextImage(f.ImageAvailable, timeout)
	if errors.Is(err, gpu.ErrSurfaceStale) {
		r.stats.StaleAcquires++
		core.LogDebug("renderer: surface stale on acquire")
		return r.regenerateTargets()
	}
	if err != nil {
		core.LogError("renderer: acquire failed: %s", err)
		return fmt.Errorf("renderer: acquire: %w", err)
	}
	f.ImageIndex = imageIndex

	view, err := r.views.Build(scene, f, r.device.Surface().Extent)
	if err != nil {
		return err
	}
	view.Overlay = r.overlay

	if err := f.Start(); err != nil {
		return err
	}
	if err := r.graph.Execute(f, view); err != nil {
		f.End()
		core.LogError("renderer: %s", err)
		return err
	}
	if err := f.End(); err != nil {
		return err
	}
	if err := f.Submit(r.device); err != nil {
		core.LogError("renderer: %s", err)
		return err
	}

	if err := r.device.Present(imageIndex, f.RenderFinished); err != nil {
		if !errors.Is(err, gpu.ErrSurfaceStale) {
			core.LogError("renderer: present failed: %s", err)
			return fmt.Errorf("renderer: present: %w", err)
		}
		// the frame was submitted, rebuild on the next call
		r.stats.StalePresents++
		r.regenerate = true
	}

	r.frames.Advance()
	r.stats.Frames++
	for _, p := range r.graph.Passes() {
		r.stats.Draws[p.Name()] = p.LastDrawCount()
	}
	return nil
}

// regenerateTargets recreates the surface and every resizeable target,
// then rewires the graph. The slot index is left alone.
func (r *RendererSystem) regenerateTargets() error {
	if r.windowExtent.Empty() {
		r.suspended = true
		return nil
	}
	if err := r.device.WaitIdle(); err != nil {
		return fmt.Errorf("renderer: wait idle: %w", err)
	}
	if err := r.device.RecreateSurface(r.windowExtent); err != nil {
		core.LogError("renderer: recreate surface: %s", err)
		return fmt.Errorf("renderer: recreate surface: %w", err)
	}
	extent := r.device.Surface().Extent
	if err := r.graph.Resize(extent); err != nil {
		core.LogError("renderer: %s", err)
		return err
	}
	r.regenerate = false
	r.stats.Regenerations++
	core.LogInfo("renderer: targets regenerated at %s", extent)
	return nil
}

// OnResize records a new window size. Targets are rebuilt once the size
// has been stable for the configured number of frames. A zero size
// suspends rendering.
func (r *RendererSystem) OnResize(width, height uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending.resized = true
	r.pending.extent = gpu.Extent{Width: width, Height: height}
}

// Reconfigure validates s and queues it for the next Render.
func (r *RendererSystem) Reconfigure(s metadata.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending.settings = &s
	return nil
}

// ReloadShader queues a pipeline rebuild for every pass using the named
// shader stage.
func (r *RendererSystem) ReloadShader(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.pending.shaders {
		if n == name {
			return
		}
	}
	r.pending.shaders = append(r.pending.shaders, name)
}

func (r *RendererSystem) applyPending() error {
	r.mu.Lock()
	pending := r.pending
	r.pending = pendingChanges{}
	r.mu.Unlock()

	if pending.resized {
		r.windowExtent = pending.extent
		if pending.extent.Empty() {
			if !r.suspended {
				core.LogInfo("renderer: window minimised, rendering suspended")
			}
			r.suspended = true
		} else {
			if r.suspended {
				// coming back from minimised: rebuild right away
				r.suspended = false
				r.regenerate = true
			} else {
				r.resizing = true
				r.framesSinceResize = 0
			}
		}
	}

	if pending.settings != nil || len(pending.shaders) > 0 {
		if err := r.device.WaitIdle(); err != nil {
			return fmt.Errorf("renderer: wait idle: %w", err)
		}
	}
	if pending.settings != nil {
		if err := r.reconfigure(*pending.settings); err != nil {
			return err
		}
	}
	for _, name := range pending.shaders {
		n, err := r.graph.ReloadShader(name)
		if err != nil {
			core.LogError("renderer: %s", err)
			return err
		}
		if n > 0 {
			r.stats.ShaderReloads++
			core.LogInfo("renderer: reloaded shader %s in %d passes", name, n)
		}
	}
	return nil
}

// reconfigure applies settings that can change at runtime. The device is
// idle.
func (r *RendererSystem) reconfigure(next metadata.Settings) error {
	prev := r.settings

	// these shape the frames and the surface and need a restart
	if next.Buffering != prev.Buffering || next.SyncMode != prev.SyncMode ||
		next.DisplayColorFormat != prev.DisplayColorFormat || next.MaxObjects != prev.MaxObjects {
		core.LogWarn("renderer: buffering, sync mode, display format and max objects apply after a restart")
		next.Buffering = prev.Buffering
		next.SyncMode = prev.SyncMode
		next.DisplayColorFormat = prev.DisplayColorFormat
		next.MaxObjects = prev.MaxObjects
	}
	if next.LogLevel != prev.LogLevel {
		core.SetLogLevel(next.LogLevel)
	}

	// passes read the settings through the shared pointer
	r.settings = next

	if next.ShadowQuality != prev.ShadowQuality && next.ShadowQuality != metadata.ShadowOff {
		if err := r.graph.Refresh(passes.KeyShadow); err != nil {
			core.LogError("renderer: %s", err)
			return err
		}
	}
	if next.EnableRaytracing != prev.EnableRaytracing {
		r.warnedRaytracing = false
	}
	if err := r.applyToggles(); err != nil {
		return err
	}
	core.LogInfo("renderer: settings applied (shadows=%s ui=%t raytracing=%t)",
		next.ShadowQuality, next.EnableUI, next.EnableRaytracing)
	return nil
}

// CaptureTexture reads back an attachment as rendered by the last
// completed frame. id is "<pass>.<attachment>", e.g. "composition.hdr".
func (r *RendererSystem) CaptureTexture(id string) (*image.RGBA, error) {
	if r.stage != StageInitialized {
		return nil, fmt.Errorf("renderer: capture in stage %s: %w", r.stage, core.ErrNotInitialized)
	}
	if r.stats.Frames == 0 {
		return nil, fmt.Errorf("renderer: capture %q before the first frame", id)
	}
	att, err := r.graph.Attachment(id)
	if err != nil {
		return nil, err
	}
	if err := r.device.WaitIdle(); err != nil {
		return nil, fmt.Errorf("renderer: wait idle: %w", err)
	}

	last := r.frames.Previous()
	slot := last.Index
	if att.Desc.Surface {
		slot = int(last.ImageIndex)
	}
	img := att.Image(slot)
	if img == nil {
		return nil, fmt.Errorf("renderer: %q has no image: %w", id, core.ErrUnknownAttachment)
	}
	return r.device.ReadImage(img)
}

// Shutdown waits for the device to go idle and releases everything in
// reverse creation order, then the scene's own device resources.
func (r *RendererSystem) Shutdown(scene metadata.Scene) error {
	switch r.stage {
	case StageUninitialized, StageDisposed:
		return nil
	}
	r.stage = StageShuttingDown

	var err error
	if werr := r.device.WaitIdle(); werr != nil {
		// a lost device has nothing left in flight
		core.LogError("renderer: wait idle on shutdown: %s", werr)
		err = werr
	}
	r.graph.Dispose()
	r.frames.Destroy()
	r.resources.Shutdown()
	if rel, ok := scene.(metadata.Releaser); ok {
		rel.Release()
	}

	r.stage = StageDisposed
	core.LogInfo("renderer: shut down after %d frames", r.stats.Frames)
	return err
}
