package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/lumen/engine/assets"
	"github.com/spaghettifunk/lumen/engine/assets/loaders"
	"github.com/spaghettifunk/lumen/engine/containers"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/platform"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu/headless"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/passes"
	"github.com/spaghettifunk/lumen/engine/renderer/vulkan"
	"github.com/spaghettifunk/lumen/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine released everything
	EngineStageShutdown
)

const (
	// DefaultCaptureID is the attachment written when F12 is pressed.
	DefaultCaptureID = passes.KeyTonemap + ".ldr"

	maxPendingCaptures = 8
	statsInterval      = 5.0
	suspendedPoll      = 50 * time.Millisecond
	captureWorkers     = 2
	captureQueue       = 16
)

type Engine struct {
	currentStage Stage
	gameInstance *Game
	isRunning    bool
	isSuspended  bool

	settings     metadata.Settings
	platform     *platform.Platform
	device       gpu.Device
	assetManager *assets.AssetManager
	renderer     *systems.RendererSystem
	jobs         *systems.JobSystem
	captures     *systems.CaptureWriter

	// filled by key callbacks inside PumpMessages, drained after Render
	pendingCaptures *containers.RingQueue[string]

	width      uint32
	height     uint32
	clock      *core.Clock
	metrics    *core.Metrics
	lastTime   float64
	lastReport float64
}

func New(g *Game) (*Engine, error) {
	if g == nil || g.ApplicationConfig == nil {
		return nil, fmt.Errorf("engine: game without application config")
	}
	if g.Scene == nil {
		return nil, fmt.Errorf("engine: game %q has no scene", g.ApplicationConfig.Name)
	}

	settings, err := systems.LoadSettings(g.ApplicationConfig.SettingsPath)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	core.SetLogLevel(settings.LogLevel)

	am, err := assets.NewAssetManager()
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	jobs, err := systems.NewJobSystem(captureWorkers, captureQueue)
	if err != nil {
		core.LogError(err.Error())
		am.Close()
		return nil, err
	}

	return &Engine{
		currentStage:    EngineStageUninitialized,
		gameInstance:    g,
		settings:        settings,
		assetManager:    am,
		jobs:            jobs,
		captures:        systems.NewCaptureWriter(settings.CaptureDir, jobs),
		pendingCaptures: containers.NewRingQueue[string](maxPendingCaptures),
		clock:           core.NewClock(),
		metrics:         core.NewMetrics(),
		isRunning:       true,
		width:           settings.Window.Width,
		height:          settings.Window.Height,
	}, nil
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

// Renderer is nil before Initialize.
func (e *Engine) Renderer() *systems.RendererSystem {
	return e.renderer
}

func (e *Engine) Initialize() error {
	if e.currentStage != EngineStageUninitialized {
		return fmt.Errorf("engine: initialize called twice")
	}
	e.currentStage = EngineStageInitializing
	cfg := e.gameInstance.ApplicationConfig

	if err := e.initialize(); err != nil {
		core.LogError("engine: %s failed to initialize: %s", cfg.Name, err)
		e.abortInitialize()
		return err
	}
	// registered last so no change is dispatched to a half built renderer
	e.assetManager.OnChange(e.onAssetChanged)

	e.currentStage = EngineStageInitialized
	core.LogInfo("engine: %s initialized (%dx%d, headless=%t)", cfg.Name, e.width, e.height, cfg.Headless)
	return nil
}

func (e *Engine) initialize() error {
	cfg := e.gameInstance.ApplicationConfig

	if err := e.createDevice(); err != nil {
		return err
	}

	if err := e.assetManager.Initialize(cfg.AssetsDir, e.settings.ShaderDir); err != nil {
		return err
	}
	if cfg.SettingsPath != "" {
		if err := e.assetManager.WatchFile(cfg.SettingsPath); err != nil {
			core.LogWarn("settings %s will not be hot reloaded: %s", cfg.SettingsPath, err)
		}
	}

	// the headless device runs without shader code
	var shaders passes.ShaderSource
	if !cfg.Headless {
		shaders = e.assetManager
	}
	e.renderer = systems.NewRendererSystem(e.device, e.settings, shaders, e.loadFont())
	if err := e.renderer.Initialize(); err != nil {
		return err
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(e.device); err != nil {
			return err
		}
	}

	extent := e.device.Surface().Extent
	e.width, e.height = extent.Width, extent.Height
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
			return err
		}
	}
	return nil
}

// abortInitialize releases what a failed Initialize created, back to the
// state New left. The asset manager and job pool stay for Shutdown.
func (e *Engine) abortInitialize() {
	if e.renderer != nil {
		// also releases whatever the game uploaded into the scene
		if err := e.renderer.Shutdown(e.gameInstance.Scene); err != nil {
			core.LogWarn("engine: renderer teardown after failed initialize: %s", err)
		}
		e.renderer = nil
	}
	if err := e.releaseDevice(); err != nil {
		core.LogWarn("engine: platform teardown after failed initialize: %s", err)
	}
	e.currentStage = EngineStageUninitialized
}

// releaseDevice destroys the device and closes the window, if any.
func (e *Engine) releaseDevice() error {
	if d, ok := e.device.(interface{ Destroy() }); ok {
		d.Destroy()
	}
	e.device = nil

	var err error
	if e.platform != nil {
		err = e.platform.Shutdown()
		e.platform = nil
	}
	return err
}

func (e *Engine) createDevice() error {
	cfg := e.gameInstance.ApplicationConfig
	ws := e.settings.Window

	if cfg.Headless {
		e.device = headless.New(headless.Config{
			Extent:     gpu.Extent{Width: ws.Width, Height: ws.Height},
			RayTracing: e.settings.EnableRaytracing,
		})
		return nil
	}

	e.platform = platform.New()
	if err := e.platform.Startup(ws); err != nil {
		return err
	}
	e.platform.SetResizeHandler(e.onResized)
	e.platform.SetKeyHandler(e.onKey)

	device, err := vulkan.New(e.platform, vulkan.Config{
		ApplicationName: cfg.Name,
		Debug:           cfg.Debug,
		PresentMode:     e.settings.SyncMode.PresentMode(),
		SurfaceFormat:   gpu.FormatBGRA8SRGB,
	})
	if err != nil {
		return err
	}
	e.device = device
	return nil
}

func (e *Engine) loadFont() *loaders.BitmapFont {
	if e.settings.Font == "" {
		return nil
	}
	font, err := e.assetManager.LoadFont(e.settings.Font)
	if err != nil {
		core.LogWarn("overlay font %s not loaded, the overlay stays empty: %s", e.settings.Font, err)
		return nil
	}
	return font
}

// Run drives the main loop until the window closes, Quit is called, ctx
// is done, the headless frame budget runs out or a frame fails.
func (e *Engine) Run(ctx context.Context) error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("engine: run before initialize: %w", core.ErrNotInitialized)
	}
	e.currentStage = EngineStageRunning
	cfg := e.gameInstance.ApplicationConfig

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	frames := 0
	for e.isRunning {
		select {
		case <-ctx.Done():
			e.isRunning = false
			continue
		default:
		}

		if e.platform != nil && !e.platform.PumpMessages() {
			e.isRunning = false
			break
		}

		if e.isSuspended {
			time.Sleep(suspendedPoll)
			continue
		}

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		frameStart := time.Now()

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(delta); err != nil {
				core.LogError("Game update failed, shutting down: %s", err)
				return err
			}
		}

		e.renderer.SetOverlay(e.overlayLines())
		if err := e.renderer.Render(e.gameInstance.Scene); err != nil && !errors.Is(err, core.ErrNoActiveCamera) {
			core.LogError("Render failed, shutting down: %s", err)
			return err
		}
		e.drainCaptures()

		e.metrics.Update(time.Since(frameStart).Seconds())
		if currentTime-e.lastReport >= statsInterval {
			e.reportStats()
			e.lastReport = currentTime
		}
		e.lastTime = currentTime

		frames++
		if cfg.Headless && cfg.HeadlessFrames > 0 && frames >= cfg.HeadlessFrames {
			e.isRunning = false
		}
	}

	for _, id := range cfg.CaptureOnExit {
		if _, err := e.Capture(id); err != nil {
			core.LogWarn("capture %s on exit: %s", id, err)
		}
	}
	e.currentStage = EngineStageInitialized
	return nil
}

// Quit stops Run after the current frame.
func (e *Engine) Quit() {
	e.isRunning = false
	if e.platform != nil {
		e.platform.Close()
	}
}

// Capture reads back an attachment of the last frame and writes it to the
// capture directory on the job pool. It returns the file path.
func (e *Engine) Capture(id string) (string, error) {
	img, err := e.renderer.CaptureTexture(id)
	if err != nil {
		core.LogError("capture %s: %s", id, err)
		return "", err
	}
	return e.captures.Write(id, img, nil)
}

func (e *Engine) drainCaptures() {
	for !e.pendingCaptures.IsEmpty() {
		id, err := e.pendingCaptures.Dequeue()
		if err != nil {
			return
		}
		if path, err := e.Capture(id); err == nil {
			core.LogInfo("capture of %s queued as %s", id, path)
		}
	}
}

func (e *Engine) overlayLines() []string {
	if !e.renderer.Settings().EnableUI {
		return nil
	}
	fps, ms := e.metrics.Frame()
	stats := e.renderer.Stats()
	return []string{
		fmt.Sprintf("%s  %.0f fps  %.2f ms", e.gameInstance.ApplicationConfig.Name, fps, ms),
		fmt.Sprintf("frame %d  slot %d/%d", stats.Frames, stats.FrameIndex, stats.FramesInFlight),
		fmt.Sprintf("draws  shadow %d  geometry %d  composition %d",
			stats.Draws[passes.KeyShadow], stats.Draws[passes.KeyGeometry], stats.Draws[passes.KeyComposition]),
		fmt.Sprintf("skipped %d  regenerated %d", stats.SkippedFrames, stats.Regenerations),
	}
}

func (e *Engine) reportStats() {
	fps, ms := e.metrics.Frame()
	stats := e.renderer.Stats()
	core.Logger().Info("frame stats",
		"fps", fps,
		"frame_ms", ms,
		"frames", stats.Frames,
		"skipped", stats.SkippedFrames,
		"regenerations", stats.Regenerations,
		"shader_reloads", stats.ShaderReloads,
	)
}

func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShutdown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown

	var errs []error
	// the renderer waits for the device before anything the game uploaded
	// is released
	if e.renderer != nil {
		errs = append(errs, e.renderer.Shutdown(e.gameInstance.Scene))
	}
	if e.gameInstance.FnShutdown != nil {
		errs = append(errs, e.gameInstance.FnShutdown())
	}
	errs = append(errs, e.assetManager.Close())
	// pending captures are flushed before the process goes away
	errs = append(errs, e.jobs.Shutdown())
	errs = append(errs, e.releaseDevice())

	e.currentStage = EngineStageShutdown
	return errors.Join(errs...)
}

func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) onKey(k platform.Key) {
	switch k {
	case platform.KeyEscape:
		core.LogInfo("Escape pressed, shutting down.")
		e.Quit()
	case platform.KeyF12:
		if err := e.pendingCaptures.Enqueue(DefaultCaptureID); err != nil {
			core.LogWarn("capture dropped: %s", err)
		}
	}
}

func (e *Engine) onResized(width, height uint32) {
	if e.renderer == nil || (width == e.width && height == e.height) {
		return
	}
	e.width = width
	e.height = height
	e.renderer.OnResize(width, height)

	if width == 0 || height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(width, height); err != nil {
			core.LogError(err.Error())
		}
	}
}

// onAssetChanged runs on the watcher goroutine; it only posts requests to
// the renderer.
func (e *Engine) onAssetChanged(change assets.Change) {
	if e.renderer == nil || change.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}
	settingsPath := e.gameInstance.ApplicationConfig.SettingsPath
	switch {
	case settingsPath != "" && change.Path == filepath.Clean(settingsPath):
		s, err := systems.LoadSettings(settingsPath)
		if err != nil {
			core.LogWarn("settings reload ignored: %s", err)
			return
		}
		if err := e.renderer.Reconfigure(s); err != nil {
			core.LogWarn("settings reload ignored: %s", err)
		}
	case change.Type == assets.AssetTypeShader:
		e.renderer.ReloadShader(shaderName(change.Path))
	}
}

// shaderName maps "assets/shaders/geometry.frag.spv" to "geometry".
func shaderName(path string) string {
	name := filepath.Base(path)
	if i := strings.IndexByte(name, '.'); i > 0 {
		name = name[:i]
	}
	return name
}
