package platform

import (
	"fmt"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

// Key is one of the few keys the engine reacts to.
type Key uint8

const (
	KeyEscape Key = iota
	KeyF12
)

// Platform owns the glfw window. It satisfies vulkan.Window.
type Platform struct {
	window   *glfw.Window
	onResize func(width, height uint32)
	onKey    func(k Key)
}

func New() *Platform {
	return &Platform{}
}

func (p *Platform) Startup(ws metadata.WindowSettings) error {
	if err := glfw.Init(); err != nil {
		core.LogFatal("failed to initialize glfw: %s", err)
		return err
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return fmt.Errorf("glfw: vulkan is not supported on this system: %w", core.ErrUnsupported)
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(ws.Width), int(ws.Height), ws.Title, nil, nil)
	if err != nil {
		core.LogFatal("failed to create window: %s", err)
		glfw.Terminate()
		return err
	}
	p.window = window

	p.window.SetKeyCallback(p.keyCallback)
	p.window.SetFramebufferSizeCallback(p.framebufferSizeCallback)
	p.window.SetPos(int(ws.PosX), int(ws.PosY))
	p.window.Show()
	return nil
}

// SetResizeHandler registers fn for framebuffer size changes. fn runs
// inside PumpMessages.
func (p *Platform) SetResizeHandler(fn func(width, height uint32)) {
	p.onResize = fn
}

func (p *Platform) SetKeyHandler(fn func(k Key)) {
	p.onKey = fn
}

// PumpMessages processes pending window events. It returns false once the
// window was asked to close.
func (p *Platform) PumpMessages() bool {
	if p.window == nil {
		return false
	}
	glfw.PollEvents()
	return !p.window.ShouldClose()
}

func (p *Platform) Close() {
	if p.window != nil {
		p.window.SetShouldClose(true)
	}
}

func (p *Platform) Shutdown() error {
	if p.window != nil {
		p.window.Destroy()
		p.window = nil
	}
	glfw.Terminate()
	return nil
}

func (p *Platform) RequiredExtensions() []string {
	return p.window.GetRequiredInstanceExtensions()
}

func (p *Platform) CreateSurface(instance interface{}) (uintptr, error) {
	return p.window.CreateWindowSurface(instance, nil)
}

func (p *Platform) FramebufferSize() (int, int) {
	return p.window.GetFramebufferSize()
}

// GetAbsoluteTime returns seconds since glfw was initialized.
func GetAbsoluteTime() float64 {
	return glfw.GetTime()
}

func (p *Platform) keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if action != glfw.Press || p.onKey == nil {
		return
	}
	switch key {
	case glfw.KeyEscape:
		p.onKey(KeyEscape)
	case glfw.KeyF12:
		p.onKey(KeyF12)
	}
}

func (p *Platform) framebufferSizeCallback(w *glfw.Window, width, height int) {
	core.LogDebug("Window resize: %d, %d", width, height)
	if p.onResize != nil {
		p.onResize(uint32(width), uint32(height))
	}
}
