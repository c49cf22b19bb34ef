// Package gpu describes the graphics device the renderer drives. The
// renderer only ever talks to a Device; the Vulkan backend and the
// headless recorder both implement it.
package gpu

import (
	"image"
	"time"

	"github.com/spaghettifunk/lumen/engine/core"
)

// ErrSurfaceStale is returned by AcquireNextImage and Present when the
// surface must be recreated before it can be used again.
var ErrSurfaceStale = core.ErrSurfaceStale

type Features struct {
	RayTracing bool
	// MaxFramesInFlight caps the requested buffering; zero means no cap.
	MaxFramesInFlight int
}

type PresentMode uint8

const (
	PresentImmediate PresentMode = iota
	PresentFIFO
	PresentMailbox
)

func (m PresentMode) String() string {
	switch m {
	case PresentImmediate:
		return "immediate"
	case PresentFIFO:
		return "fifo"
	case PresentMailbox:
		return "mailbox"
	}
	return "unknown"
}

// SurfaceInfo describes the current presentable images. The images are
// owned by the device and change on every RecreateSurface.
type SurfaceInfo struct {
	Images []Image
	Format Format
	Extent Extent
}

type Device interface {
	Features() Features

	CreateImage(desc ImageDesc) (Image, error)
	CreateBuffer(desc BufferDesc) (Buffer, error)
	CreateGeometry(desc GeometryDesc) (Geometry, error)
	CreateRenderPass(desc RenderPassDesc) (RenderPass, error)
	CreateFramebuffer(desc FramebufferDesc) (Framebuffer, error)
	CreateDescriptorLayout(name string, bindings []LayoutBinding) (DescriptorLayout, error)
	CreateDescriptorPool(name string, maxSets uint32) (DescriptorPool, error)
	// UpdateDescriptorSet writes the bindings into set. Slots not named keep
	// their previous contents.
	UpdateDescriptorSet(set DescriptorSet, bindings ...Binding) error
	CreatePipeline(desc PipelineDesc) (Pipeline, error)
	CreateAccelerationStructure(name string, maxInstances int) (AccelerationStructure, error)

	CreateFence(signaled bool) (Fence, error)
	CreateSemaphore(name string) (Semaphore, error)
	CreateCommandStream(name string) (CommandStream, error)

	Surface() SurfaceInfo
	// AcquireNextImage returns the index of the next presentable image and
	// arranges for signal to fire once it can be written.
	AcquireNextImage(signal Semaphore, timeout time.Duration) (uint32, error)
	Submit(cmd CommandStream, wait, signal Semaphore, fence Fence) error
	Present(imageIndex uint32, wait Semaphore) error
	RecreateSurface(extent Extent) error

	// ReadImage copies img back to host memory. It stalls the device.
	ReadImage(img Image) (*image.RGBA, error)
	WaitIdle() error
}
