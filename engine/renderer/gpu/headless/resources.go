package headless

import (
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

type Image struct {
	dev       *Device
	name      string
	extent    gpu.Extent
	format    gpu.Format
	usage     gpu.ImageUsage
	surface   bool
	destroyed bool
	// pixels is RGBA8 and only materialised on upload or clear.
	pixels []byte
}

func newImage(d *Device, desc gpu.ImageDesc) *Image {
	img := &Image{
		dev:    d,
		name:   desc.Name,
		extent: desc.Extent,
		format: desc.Format,
		usage:  desc.Usage,
	}
	n := int(desc.Extent.Width * desc.Extent.Height * 4)
	if len(desc.Data) == n {
		img.pixels = append([]byte(nil), desc.Data...)
	}
	return img
}

func (i *Image) Name() string       { return i.name }
func (i *Image) Extent() gpu.Extent { return i.extent }
func (i *Image) Format() gpu.Format { return i.format }

// Destroyed reports whether the image has been released, either directly
// or, for surface images, by a surface recreation.
func (i *Image) Destroyed() bool {
	i.dev.mu.Lock()
	defer i.dev.mu.Unlock()
	return i.destroyed
}

func (i *Image) Destroy() {
	if i.surface {
		return
	}
	i.dev.release("image", i.name, &i.destroyed)
}

func (i *Image) clear(c mgl32.Vec4) {
	n := int(i.extent.Width * i.extent.Height)
	if len(i.pixels) != n*4 {
		i.pixels = make([]byte, n*4)
	}
	px := [4]byte{unorm(c[0]), unorm(c[1]), unorm(c[2]), unorm(c[3])}
	for p := 0; p < n; p++ {
		copy(i.pixels[p*4:], px[:])
	}
}

func unorm(v float32) byte {
	return byte(mgl32.Clamp(v, 0, 1)*255 + 0.5)
}

func (d *Device) CreateImage(desc gpu.ImageDesc) (gpu.Image, error) {
	if desc.Extent.Empty() {
		return nil, fmt.Errorf("create image %q: empty extent", desc.Name)
	}
	if err := d.acquire("image", desc.Name); err != nil {
		return nil, err
	}
	return newImage(d, desc), nil
}

type Buffer struct {
	dev       *Device
	name      string
	data      []byte
	usage     gpu.BufferUsage
	destroyed bool
}

func (b *Buffer) Name() string   { return b.name }
func (b *Buffer) Size() int      { return len(b.data) }
func (b *Buffer) Mapped() []byte { return b.data }
func (b *Buffer) Destroy()       { b.dev.release("buffer", b.name, &b.destroyed) }

func (d *Device) CreateBuffer(desc gpu.BufferDesc) (gpu.Buffer, error) {
	if desc.Size <= 0 {
		return nil, fmt.Errorf("create buffer %q: size %d", desc.Name, desc.Size)
	}
	if err := d.acquire("buffer", desc.Name); err != nil {
		return nil, err
	}
	return &Buffer{dev: d, name: desc.Name, data: make([]byte, desc.Size), usage: desc.Usage}, nil
}

type Geometry struct {
	dev       *Device
	name      string
	vertices  uint32
	indices   uint32
	destroyed bool
}

func (g *Geometry) Name() string        { return g.name }
func (g *Geometry) VertexCount() uint32 { return g.vertices }
func (g *Geometry) IndexCount() uint32  { return g.indices }
func (g *Geometry) Destroy()            { g.dev.release("geometry", g.name, &g.destroyed) }

func (d *Device) CreateGeometry(desc gpu.GeometryDesc) (gpu.Geometry, error) {
	if len(desc.Vertices) == 0 || len(desc.Vertices)%gpu.VertexStride != 0 {
		return nil, fmt.Errorf("create geometry %q: %d floats is not a whole number of vertices", desc.Name, len(desc.Vertices))
	}
	if err := d.acquire("geometry", desc.Name); err != nil {
		return nil, err
	}
	return &Geometry{
		dev:      d,
		name:     desc.Name,
		vertices: uint32(len(desc.Vertices) / gpu.VertexStride),
		indices:  uint32(len(desc.Indices)),
	}, nil
}

type RenderPass struct {
	dev       *Device
	desc      gpu.RenderPassDesc
	destroyed bool
}

func (r *RenderPass) Name() string { return r.desc.Name }
func (r *RenderPass) Destroy()     { r.dev.release("renderpass", r.desc.Name, &r.destroyed) }

func (d *Device) CreateRenderPass(desc gpu.RenderPassDesc) (gpu.RenderPass, error) {
	if len(desc.Attachments) == 0 {
		return nil, fmt.Errorf("create render pass %q: no attachments", desc.Name)
	}
	if err := d.acquire("renderpass", desc.Name); err != nil {
		return nil, err
	}
	return &RenderPass{dev: d, desc: desc}, nil
}

type Framebuffer struct {
	dev         *Device
	name        string
	renderPass  *RenderPass
	attachments []*Image
	extent      gpu.Extent
	destroyed   bool
}

func (f *Framebuffer) Extent() gpu.Extent { return f.extent }
func (f *Framebuffer) Destroy()           { f.dev.release("framebuffer", f.name, &f.destroyed) }

// Attachments returns the images the framebuffer renders into.
func (f *Framebuffer) Attachments() []*Image {
	return f.attachments
}

func (d *Device) CreateFramebuffer(desc gpu.FramebufferDesc) (gpu.Framebuffer, error) {
	rp, ok := desc.RenderPass.(*RenderPass)
	if !ok {
		return nil, fmt.Errorf("create framebuffer %q: foreign render pass %T", desc.Name, desc.RenderPass)
	}
	if len(desc.Attachments) != len(rp.desc.Attachments) {
		return nil, fmt.Errorf("create framebuffer %q: %d attachments for a render pass with %d",
			desc.Name, len(desc.Attachments), len(rp.desc.Attachments))
	}
	atts := make([]*Image, len(desc.Attachments))
	for i, a := range desc.Attachments {
		img, ok := a.(*Image)
		if !ok {
			return nil, fmt.Errorf("create framebuffer %q: foreign image %T", desc.Name, a)
		}
		if img.extent != desc.Extent {
			return nil, fmt.Errorf("create framebuffer %q: attachment %q is %s, framebuffer is %s",
				desc.Name, img.name, img.extent, desc.Extent)
		}
		atts[i] = img
	}
	if err := d.acquire("framebuffer", desc.Name); err != nil {
		return nil, err
	}
	return &Framebuffer{dev: d, name: desc.Name, renderPass: rp, attachments: atts, extent: desc.Extent}, nil
}

type DescriptorLayout struct {
	dev       *Device
	name      string
	bindings  []gpu.LayoutBinding
	destroyed bool
}

func (l *DescriptorLayout) Bindings() []gpu.LayoutBinding { return l.bindings }
func (l *DescriptorLayout) Destroy()                      { l.dev.release("descriptor_layout", l.name, &l.destroyed) }

func (d *Device) CreateDescriptorLayout(name string, bindings []gpu.LayoutBinding) (gpu.DescriptorLayout, error) {
	if err := d.acquire("descriptor_layout", name); err != nil {
		return nil, err
	}
	return &DescriptorLayout{dev: d, name: name, bindings: append([]gpu.LayoutBinding(nil), bindings...)}, nil
}

type DescriptorPool struct {
	dev       *Device
	name      string
	maxSets   uint32
	allocated uint32
	destroyed bool
}

func (p *DescriptorPool) Allocate(layout gpu.DescriptorLayout) (gpu.DescriptorSet, error) {
	if p.allocated >= p.maxSets {
		return nil, fmt.Errorf("descriptor pool %q exhausted (%d sets)", p.name, p.maxSets)
	}
	p.allocated++
	return &DescriptorSet{layout: layout, bound: map[uint32]gpu.Binding{}}, nil
}

func (p *DescriptorPool) Reset() error {
	p.allocated = 0
	return nil
}

func (p *DescriptorPool) Destroy() { p.dev.release("descriptor_pool", p.name, &p.destroyed) }

func (d *Device) CreateDescriptorPool(name string, maxSets uint32) (gpu.DescriptorPool, error) {
	if maxSets == 0 {
		return nil, fmt.Errorf("create descriptor pool %q: zero sets", name)
	}
	if err := d.acquire("descriptor_pool", name); err != nil {
		return nil, err
	}
	return &DescriptorPool{dev: d, name: name, maxSets: maxSets}, nil
}

type DescriptorSet struct {
	layout gpu.DescriptorLayout
	bound  map[uint32]gpu.Binding
}

func (s *DescriptorSet) Layout() gpu.DescriptorLayout { return s.layout }

// Bound returns what was last written into slot.
func (s *DescriptorSet) Bound(slot uint32) (gpu.Binding, bool) {
	b, ok := s.bound[slot]
	return b, ok
}

func (d *Device) UpdateDescriptorSet(set gpu.DescriptorSet, bindings ...gpu.Binding) error {
	s, ok := set.(*DescriptorSet)
	if !ok {
		return fmt.Errorf("headless: foreign descriptor set %T", set)
	}
	for _, b := range bindings {
		if err := b.Validate(s.layout); err != nil {
			return err
		}
		if b.Kind == gpu.BindingImage {
			if img, ok := b.Image.(*Image); ok && img.Destroyed() {
				return fmt.Errorf("binding slot %d: image %q is destroyed", b.Slot, img.name)
			}
		}
		s.bound[b.Slot] = b
	}
	return nil
}

type Pipeline struct {
	dev       *Device
	desc      gpu.PipelineDesc
	destroyed bool
}

func (p *Pipeline) Name() string { return p.desc.Name }
func (p *Pipeline) Destroy()     { p.dev.release("pipeline", p.desc.Name, &p.destroyed) }

func (d *Device) CreatePipeline(desc gpu.PipelineDesc) (gpu.Pipeline, error) {
	if !desc.Compute && desc.RenderPass == nil {
		return nil, fmt.Errorf("create pipeline %q: graphics pipeline without render pass", desc.Name)
	}
	if len(desc.Stages) == 0 {
		return nil, fmt.Errorf("create pipeline %q: no shader stages", desc.Name)
	}
	if err := d.acquire("pipeline", desc.Name); err != nil {
		return nil, err
	}
	return &Pipeline{dev: d, desc: desc}, nil
}

type AccelerationStructure struct {
	dev       *Device
	name      string
	instances int
	destroyed bool
}

func (a *AccelerationStructure) Name() string { return a.name }
func (a *AccelerationStructure) Destroy()     { a.dev.release("acceleration_structure", a.name, &a.destroyed) }

// Instances is the instance count of the last build.
func (a *AccelerationStructure) Instances() int { return a.instances }

func (d *Device) CreateAccelerationStructure(name string, maxInstances int) (gpu.AccelerationStructure, error) {
	if !d.cfg.RayTracing {
		return nil, fmt.Errorf("create acceleration structure %q: %w", name, core.ErrUnsupported)
	}
	if err := d.acquire("acceleration_structure", name); err != nil {
		return nil, err
	}
	return &AccelerationStructure{dev: d, name: name}, nil
}

type Fence struct {
	dev       *Device
	signaled  bool
	destroyed bool
}

func (f *Fence) Wait(timeout time.Duration) error {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	if f.signaled {
		return nil
	}
	// nothing in flight can ever signal it
	return fmt.Errorf("fence wait after %s: %w", timeout, core.ErrDeviceTimeout)
}

func (f *Fence) Reset() error {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	f.signaled = false
	return nil
}

func (f *Fence) Destroy() { f.dev.release("fence", "fence", &f.destroyed) }

func (d *Device) CreateFence(signaled bool) (gpu.Fence, error) {
	if err := d.acquire("fence", "fence"); err != nil {
		return nil, err
	}
	return &Fence{dev: d, signaled: signaled}, nil
}

type Semaphore struct {
	dev       *Device
	name      string
	signaled  bool
	destroyed bool
}

func (s *Semaphore) Destroy() { s.dev.release("semaphore", s.name, &s.destroyed) }

func (d *Device) CreateSemaphore(name string) (gpu.Semaphore, error) {
	if err := d.acquire("semaphore", name); err != nil {
		return nil, err
	}
	return &Semaphore{dev: d, name: name}, nil
}
