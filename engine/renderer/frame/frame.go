// Package frame holds the per slot resources that let the CPU prepare one
// frame while the GPU still works on earlier ones.
package frame

import (
	"errors"
	"fmt"
	"time"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

// Per frame buffer names.
const (
	BufferCamera  = "camera"
	BufferLights  = "lights"
	BufferObjects = "objects"
	BufferOverlay = "overlay"
)

// BufferSpec declares a per frame buffer. Slot is its binding in the view
// descriptor set, or -1 when it is not bound there.
type BufferSpec struct {
	Name  string
	Size  int
	Usage gpu.BufferUsage
	Slot  int
}

type Config struct {
	Count int
	// ViewLayout is the layout of the per frame view set built from the
	// buffers that declare a slot.
	ViewLayout gpu.DescriptorLayout
	Buffers    []BufferSpec
	// PoolSets sizes each frame's transient descriptor pool.
	PoolSets uint32
}

type Frame struct {
	Index int

	InFlight       gpu.Fence
	ImageAvailable gpu.Semaphore
	RenderFinished gpu.Semaphore
	Commands       gpu.CommandStream
	Pool           gpu.DescriptorPool
	ViewSet        gpu.DescriptorSet

	// ImageIndex is the surface image acquired for this frame.
	ImageIndex uint32

	buffers   map[string]gpu.Buffer
	recording bool
}

func New(device gpu.Device, index int, cfg Config) (*Frame, error) {
	f := &Frame{Index: index, buffers: map[string]gpu.Buffer{}}
	if err := f.create(device, cfg); err != nil {
		f.Destroy()
		return nil, fmt.Errorf("frame %d: %w", index, err)
	}
	return f, nil
}

func (f *Frame) create(device gpu.Device, cfg Config) error {
	var err error
	// signaled so the first wait on a fresh slot returns immediately
	if f.InFlight, err = device.CreateFence(true); err != nil {
		return err
	}
	if f.ImageAvailable, err = device.CreateSemaphore(fmt.Sprintf("frame_%d_image_available", f.Index)); err != nil {
		return err
	}
	if f.RenderFinished, err = device.CreateSemaphore(fmt.Sprintf("frame_%d_render_finished", f.Index)); err != nil {
		return err
	}
	if f.Commands, err = device.CreateCommandStream(fmt.Sprintf("frame_%d", f.Index)); err != nil {
		return err
	}
	sets := max(cfg.PoolSets, 1)
	if f.Pool, err = device.CreateDescriptorPool(fmt.Sprintf("frame_%d_pool", f.Index), sets); err != nil {
		return err
	}

	var bindings []gpu.Binding
	for _, spec := range cfg.Buffers {
		buf, err := device.CreateBuffer(gpu.BufferDesc{
			Name:  fmt.Sprintf("frame_%d_%s", f.Index, spec.Name),
			Size:  spec.Size,
			Usage: spec.Usage,
		})
		if err != nil {
			return err
		}
		f.buffers[spec.Name] = buf
		if spec.Slot >= 0 {
			bindings = append(bindings, gpu.BufferBinding(uint32(spec.Slot), buf))
		}
	}

	if cfg.ViewLayout != nil {
		if f.ViewSet, err = f.Pool.Allocate(cfg.ViewLayout); err != nil {
			return err
		}
		if err := device.UpdateDescriptorSet(f.ViewSet, bindings...); err != nil {
			return err
		}
	}
	return nil
}

// Buffer returns the named per frame buffer, or nil.
func (f *Frame) Buffer(name string) gpu.Buffer {
	return f.buffers[name]
}

// Wait blocks until the GPU retired the previous submission of this slot.
func (f *Frame) Wait(timeout time.Duration) error {
	if err := f.InFlight.Wait(timeout); err != nil {
		if errors.Is(err, core.ErrDeviceTimeout) {
			return fmt.Errorf("frame %d: %w", f.Index, err)
		}
		return fmt.Errorf("frame %d: wait: %w", f.Index, err)
	}
	return nil
}

// Start resets the slot's fence and command stream and begins recording.
// Only call it once a surface image has been acquired: a reset fence with
// no submission behind it never signals again.
func (f *Frame) Start() error {
	if f.recording {
		return fmt.Errorf("frame %d: start while recording", f.Index)
	}
	if err := f.InFlight.Reset(); err != nil {
		return fmt.Errorf("frame %d: reset fence: %w", f.Index, err)
	}
	if err := f.Commands.Reset(); err != nil {
		return fmt.Errorf("frame %d: reset commands: %w", f.Index, err)
	}
	if err := f.Commands.Begin(); err != nil {
		return fmt.Errorf("frame %d: begin: %w", f.Index, err)
	}
	f.recording = true
	return nil
}

func (f *Frame) End() error {
	if !f.recording {
		return fmt.Errorf("frame %d: end without start", f.Index)
	}
	f.recording = false
	if err := f.Commands.End(); err != nil {
		return fmt.Errorf("frame %d: end: %w", f.Index, err)
	}
	return nil
}

// Recording reports whether Start was called without a matching End.
func (f *Frame) Recording() bool {
	return f.recording
}

// Submit queues the recorded stream. It waits on the acquire signal and
// signals RenderFinished, which presentation waits on.
func (f *Frame) Submit(device gpu.Device) error {
	if f.recording {
		return fmt.Errorf("frame %d: submit while recording", f.Index)
	}
	if err := device.Submit(f.Commands, f.ImageAvailable, f.RenderFinished, f.InFlight); err != nil {
		return fmt.Errorf("frame %d: submit: %w", f.Index, err)
	}
	return nil
}

// Destroy releases everything the frame created. The caller must make
// sure the device is idle.
func (f *Frame) Destroy() {
	for name, b := range f.buffers {
		b.Destroy()
		delete(f.buffers, name)
	}
	if f.Pool != nil {
		f.Pool.Destroy()
		f.Pool = nil
	}
	f.ViewSet = nil
	if f.Commands != nil {
		f.Commands.Destroy()
		f.Commands = nil
	}
	if f.RenderFinished != nil {
		f.RenderFinished.Destroy()
		f.RenderFinished = nil
	}
	if f.ImageAvailable != nil {
		f.ImageAvailable.Destroy()
		f.ImageAvailable = nil
	}
	if f.InFlight != nil {
		f.InFlight.Destroy()
		f.InFlight = nil
	}
}
