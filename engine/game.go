package engine

import (
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// Game is what an application plugs into the engine. Scene is read by the
// renderer every frame; the callbacks run on the render goroutine.
type Game struct {
	ApplicationConfig *ApplicationConfig
	Scene             metadata.Scene
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnOnResize        OnResize
	FnShutdown        Shutdown
}

// Initialize receives the device so the game can upload its geometry.
type Initialize func(device gpu.Device) error
type Update func(deltaTime float64) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
