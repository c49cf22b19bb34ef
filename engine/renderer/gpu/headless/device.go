// Package headless implements gpu.Device without a GPU. Work completes at
// submission time, commands are kept for inspection and every handle is
// tracked so tests can check for leaks and use-after-destroy.
package headless

import (
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

type Config struct {
	Extent        gpu.Extent
	SurfaceImages int
	SurfaceFormat gpu.Format
	RayTracing    bool
}

func DefaultConfig() Config {
	return Config{
		Extent:        gpu.Extent{Width: 1280, Height: 720},
		SurfaceImages: 3,
		SurfaceFormat: gpu.FormatBGRA8SRGB,
	}
}

type Device struct {
	mu sync.Mutex

	cfg          Config
	window       gpu.Extent
	surface      []*Image
	surfaceExt   gpu.Extent
	nextImage    uint32
	staleAcquire int
	stalePresent int
	failCreate   map[string]error

	live        map[string]int
	submissions []Submission
	presented   []uint32
	violations  []error
	idleWaits   int
}

func New(cfg Config) *Device {
	def := DefaultConfig()
	if cfg.Extent.Empty() {
		cfg.Extent = def.Extent
	}
	if cfg.SurfaceImages == 0 {
		cfg.SurfaceImages = def.SurfaceImages
	}
	if cfg.SurfaceFormat == gpu.FormatUndefined {
		cfg.SurfaceFormat = def.SurfaceFormat
	}
	d := &Device{
		cfg:        cfg,
		window:     cfg.Extent,
		failCreate: map[string]error{},
		live:       map[string]int{},
	}
	d.buildSurface(cfg.Extent)
	return d
}

func (d *Device) Features() gpu.Features {
	return gpu.Features{RayTracing: d.cfg.RayTracing}
}

// Resize simulates the window changing size. The surface is stale until
// RecreateSurface is called.
func (d *Device) Resize(extent gpu.Extent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.window = extent
}

// StaleNextAcquire makes the next n acquisitions report a stale surface.
func (d *Device) StaleNextAcquire(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.staleAcquire += n
}

// StaleNextPresent makes the next n presentations report a stale surface.
func (d *Device) StaleNextPresent(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stalePresent += n
}

// FailCreate makes every creation whose name contains match return err.
func (d *Device) FailCreate(match string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failCreate[match] = err
}

// Live returns how many objects of kind ("image", "framebuffer", ...) are
// currently alive. Surface images are not counted.
func (d *Device) Live(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live[kind]
}

func (d *Device) LiveImages() int {
	return d.Live("image")
}

// LiveTotal sums every tracked kind.
func (d *Device) LiveTotal() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.live {
		n += c
	}
	return n
}

func (d *Device) Submissions() []Submission {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Submission(nil), d.submissions...)
}

func (d *Device) LastSubmission() Submission {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.submissions) == 0 {
		return Submission{}
	}
	return d.submissions[len(d.submissions)-1]
}

// Presented lists the surface image indices in presentation order.
func (d *Device) Presented() []uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uint32(nil), d.presented...)
}

// Violations lists misuse detected so far: stale handles bound or
// rendered to, double destroys, unsignaled semaphore waits.
func (d *Device) Violations() []error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]error(nil), d.violations...)
}

func (d *Device) IdleWaits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.idleWaits
}

func (d *Device) violate(format string, args ...interface{}) {
	err := fmt.Errorf(format, args...)
	core.LogDebug("headless violation: %s", err)
	d.violations = append(d.violations, err)
}

func (d *Device) acquire(kind, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for match, err := range d.failCreate {
		if match != "" && strings.Contains(name, match) {
			return fmt.Errorf("create %s %q: %w", kind, name, err)
		}
	}
	d.live[kind]++
	return nil
}

func (d *Device) release(kind, name string, destroyed *bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if *destroyed {
		d.violate("%s %q destroyed twice", kind, name)
		return
	}
	*destroyed = true
	d.live[kind]--
}

func (d *Device) buildSurface(extent gpu.Extent) {
	for _, img := range d.surface {
		img.destroyed = true
	}
	d.surface = make([]*Image, d.cfg.SurfaceImages)
	for i := range d.surface {
		d.surface[i] = newImage(d, gpu.ImageDesc{
			Name:   fmt.Sprintf("surface_%d", i),
			Extent: extent,
			Format: d.cfg.SurfaceFormat,
			Usage:  gpu.UsageColorAttachment | gpu.UsageTransferSrc,
		})
		d.surface[i].surface = true
	}
	d.surfaceExt = extent
	d.nextImage = 0
}

func (d *Device) Surface() gpu.SurfaceInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	images := make([]gpu.Image, len(d.surface))
	for i, img := range d.surface {
		images[i] = img
	}
	return gpu.SurfaceInfo{Images: images, Format: d.cfg.SurfaceFormat, Extent: d.surfaceExt}
}

func (d *Device) AcquireNextImage(signal gpu.Semaphore, timeout time.Duration) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.staleAcquire > 0 {
		d.staleAcquire--
		return 0, gpu.ErrSurfaceStale
	}
	if d.window != d.surfaceExt {
		return 0, gpu.ErrSurfaceStale
	}
	sem, err := asSemaphore(signal)
	if err != nil {
		return 0, err
	}
	if sem.signaled {
		d.violate("acquire signals semaphore %q that is already signaled", sem.name)
	}
	sem.signaled = true
	idx := d.nextImage
	d.nextImage = (d.nextImage + 1) % uint32(len(d.surface))
	return idx, nil
}

func (d *Device) Submit(cmd gpu.CommandStream, wait, signal gpu.Semaphore, fence gpu.Fence) error {
	stream, ok := cmd.(*CommandStream)
	if !ok {
		return fmt.Errorf("headless: foreign command stream %T", cmd)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if stream.recording {
		return fmt.Errorf("submit %q: command stream is still recording", stream.name)
	}
	if wait != nil {
		sem, err := asSemaphore(wait)
		if err != nil {
			return err
		}
		if !sem.signaled {
			d.violate("submit %q waits on unsignaled semaphore %q", stream.name, sem.name)
		}
		sem.signaled = false
	}
	if signal != nil {
		sem, err := asSemaphore(signal)
		if err != nil {
			return err
		}
		sem.signaled = true
	}
	if fence != nil {
		f, ok := fence.(*Fence)
		if !ok {
			return fmt.Errorf("headless: foreign fence %T", fence)
		}
		if f.signaled {
			d.violate("submit %q with a fence that was not reset", stream.name)
		}
		f.signaled = true
	}
	d.submissions = append(d.submissions, Submission{
		Stream:   stream.name,
		Commands: append([]Command(nil), stream.commands...),
	})
	return nil
}

func (d *Device) Present(imageIndex uint32, wait gpu.Semaphore) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if wait != nil {
		sem, err := asSemaphore(wait)
		if err != nil {
			return err
		}
		if !sem.signaled {
			d.violate("present waits on unsignaled semaphore %q", sem.name)
		}
		sem.signaled = false
	}
	if int(imageIndex) >= len(d.surface) {
		return fmt.Errorf("present: image index %d out of range", imageIndex)
	}
	if d.stalePresent > 0 {
		d.stalePresent--
		return gpu.ErrSurfaceStale
	}
	if d.window != d.surfaceExt {
		return gpu.ErrSurfaceStale
	}
	d.presented = append(d.presented, imageIndex)
	return nil
}

// RecreateSurface rebuilds the surface at the window size. The requested
// extent is only used while the window reports no size.
func (d *Device) RecreateSurface(extent gpu.Extent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	target := d.window
	if target.Empty() {
		target = extent
	}
	if target.Empty() {
		return errors.New("recreate surface: zero extent")
	}
	d.buildSurface(target)
	d.window = target
	return nil
}

func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.idleWaits++
	return nil
}

func (d *Device) ReadImage(img gpu.Image) (*image.RGBA, error) {
	i, ok := img.(*Image)
	if !ok {
		return nil, fmt.Errorf("headless: foreign image %T", img)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if i.destroyed {
		d.violate("read of destroyed image %q", i.name)
		return nil, fmt.Errorf("read image %q: destroyed", i.name)
	}
	out := image.NewRGBA(image.Rect(0, 0, int(i.extent.Width), int(i.extent.Height)))
	copy(out.Pix, i.pixels)
	return out, nil
}

func asSemaphore(s gpu.Semaphore) (*Semaphore, error) {
	sem, ok := s.(*Semaphore)
	if !ok {
		return nil, fmt.Errorf("headless: foreign semaphore %T", s)
	}
	return sem, nil
}
