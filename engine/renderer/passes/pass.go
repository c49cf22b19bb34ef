package passes

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/frame"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

type State uint8

const (
	StateUninitialized State = iota
	StateInitialized
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateDisposed:
		return "disposed"
	}
	return "unknown"
}

type Pass struct {
	name  string
	kind  Kind
	res   *Resources
	state State

	// enabled is what the owner asked for; suppressed is set by the graph
	// when a producer this pass depends on is gone.
	enabled    bool
	suppressed bool
	resizeable bool
	extent     gpu.Extent
	frames     int

	descs        []AttachmentDesc
	outputs      []*Attachment
	renderPass   gpu.RenderPass
	framebuffers []gpu.Framebuffer
	clears       []gpu.ClearValue

	layout      UniformLayout
	inputLayout gpu.DescriptorLayout
	pool        gpu.DescriptorPool
	sets        []gpu.DescriptorSet
	programs    []Program
	pipelines   []gpu.Pipeline

	inputs []*Attachment
	linked bool
	draws  int
}

func New(name string, kind Kind, res *Resources) *Pass {
	return &Pass{
		name:    name,
		kind:    kind,
		res:     res,
		enabled: true,
	}
}

func (p *Pass) Name() string           { return p.name }
func (p *Pass) Kind() Kind             { return p.kind }
func (p *Pass) State() State           { return p.state }
func (p *Pass) Extent() gpu.Extent     { return p.extent }
func (p *Pass) Resizeable() bool       { return p.resizeable }
func (p *Pass) Outputs() []*Attachment { return p.outputs }
func (p *Pass) Inputs() []*Attachment  { return p.inputs }
func (p *Pass) InputSlots() []string   { return p.layout.Inputs }
func (p *Pass) Linked() bool           { return p.linked }

// Graphical reports whether the pass renders into attachments. A pass
// without outputs only records compute or descriptor work.
func (p *Pass) Graphical() bool {
	return len(p.descs) > 0
}

// Active is true when the pass is enabled and not suppressed by the graph.
func (p *Pass) Active() bool {
	return p.enabled && !p.suppressed
}

func (p *Pass) Enabled() bool    { return p.enabled }
func (p *Pass) Suppressed() bool { return p.suppressed }

// SetActive toggles execution. Inactive passes keep their resources but
// are skipped by Execute and do not produce for dependents.
func (p *Pass) SetActive(active bool) {
	if p.enabled != active {
		core.LogDebug("pass %s: active=%t", p.name, active)
	}
	p.enabled = active
}

// Suppress is driven by the graph when wiring cannot find an active
// producer for this pass.
func (p *Pass) Suppress(suppressed bool) {
	if p.suppressed != suppressed {
		core.LogDebug("pass %s: suppressed=%t", p.name, suppressed)
	}
	p.suppressed = suppressed
}

// LastDrawCount is the number of scene draws of the last Execute.
func (p *Pass) LastDrawCount() int {
	return p.draws
}

// DescriptorSets returns the per slot input sets, nil when the pass has no
// inputs or static bindings.
func (p *Pass) DescriptorSets() []gpu.DescriptorSet {
	return p.sets
}

// Output finds an output attachment by name.
func (p *Pass) Output(name string) (*Attachment, error) {
	for _, o := range p.outputs {
		if o.Desc.Name == name {
			return o, nil
		}
	}
	return nil, fmt.Errorf("pass %q has no attachment %q: %w", p.name, name, core.ErrUnknownAttachment)
}

func (p *Pass) context() *Context {
	return &Context{
		Name:      p.name,
		Device:    p.res.Device,
		Resources: p.res,
		Settings:  p.res.Settings,
		Extent:    p.extent,
	}
}

// Setup builds everything the pass needs for frames slots. It can run
// again after Dispose. On failure nothing created by the call survives.
func (p *Pass) Setup(frames int) error {
	if p.state == StateInitialized {
		return fmt.Errorf("pass %q: setup called twice", p.name)
	}
	if frames < 1 {
		return fmt.Errorf("pass %q: setup with %d frames", p.name, frames)
	}
	p.frames = frames
	p.resizeable = true
	p.extent = p.res.Device.Surface().Extent
	if fx, ok := p.kind.(FixedExtent); ok {
		p.resizeable = false
		p.extent = fx.FixedExtent(p.context())
	}

	if err := p.setup(); err != nil {
		p.release()
		p.state = StateUninitialized
		core.LogError("pass %s: setup failed: %s", p.name, err)
		return err
	}
	p.state = StateInitialized
	core.LogDebug("pass %s: initialized (%s, %d outputs, %d inputs, graphical=%t)",
		p.name, p.extent, len(p.outputs), len(p.layout.Inputs), p.Graphical())
	return nil
}

func (p *Pass) setup() error {
	ctx := p.context()
	dev := p.res.Device

	p.descs = p.kind.SetupOutAttachments(ctx)
	if p.Graphical() {
		rpDesc := gpu.RenderPassDesc{Name: p.name}
		p.clears = make([]gpu.ClearValue, len(p.descs))
		for i, d := range p.descs {
			format := d.Format
			if d.Surface {
				format = dev.Surface().Format
			}
			rpDesc.Attachments = append(rpDesc.Attachments, gpu.RenderPassAttachment{
				Format:  format,
				Load:    d.Load,
				Store:   gpu.StoreOpStore,
				Present: d.Surface,
			})
			p.clears[i] = d.Clear
		}
		rp, err := dev.CreateRenderPass(rpDesc)
		if err != nil {
			return fmt.Errorf("pass %q: create render pass: %w", p.name, err)
		}
		p.renderPass = rp
		if err := p.buildTargets(); err != nil {
			return err
		}
	}

	p.layout = p.kind.SetupUniforms(ctx)
	if !p.layout.empty() {
		var bindings []gpu.LayoutBinding
		for i := range p.layout.Inputs {
			bindings = append(bindings, gpu.LayoutBinding{Slot: uint32(i), Kind: gpu.BindingImage})
		}
		for i, b := range p.layout.Static {
			bindings = append(bindings, gpu.LayoutBinding{Slot: uint32(len(p.layout.Inputs) + i), Kind: b.Kind})
		}
		layout, err := dev.CreateDescriptorLayout(p.name+"_inputs", bindings)
		if err != nil {
			return fmt.Errorf("pass %q: create descriptor layout: %w", p.name, err)
		}
		p.inputLayout = layout
		pool, err := dev.CreateDescriptorPool(p.name+"_pool", uint32(p.frames))
		if err != nil {
			return fmt.Errorf("pass %q: create descriptor pool: %w", p.name, err)
		}
		p.pool = pool
		p.sets = make([]gpu.DescriptorSet, p.frames)
		for i := range p.sets {
			set, err := pool.Allocate(layout)
			if err != nil {
				return fmt.Errorf("pass %q: allocate descriptor set %d: %w", p.name, i, err)
			}
			p.sets[i] = set
		}
	}

	p.programs = p.kind.SetupShaderStages(ctx)
	return p.buildPipelines()
}

// buildTargets creates the output images and framebuffers for the current
// extent. Descriptor layouts and sets are not touched.
func (p *Pass) buildTargets() error {
	dev := p.res.Device
	surface := dev.Surface()

	p.outputs = make([]*Attachment, len(p.descs))
	var fbExtent gpu.Extent
	targets := p.frames
	for i, d := range p.descs {
		att := &Attachment{Desc: d, Pass: p.name}
		p.outputs[i] = att
		if d.Surface {
			att.Images = append([]gpu.Image(nil), surface.Images...)
			targets = len(surface.Images)
			if fbExtent.Empty() {
				fbExtent = surface.Extent
			}
			continue
		}
		ext := p.extent.Scale(d.Scale)
		if fbExtent.Empty() {
			fbExtent = ext
		} else if fbExtent != ext {
			return fmt.Errorf("pass %q: attachment %q is %s but the pass renders at %s", p.name, d.Name, ext, fbExtent)
		}
		usage := gpu.UsageSampled | gpu.UsageTransferSrc
		if d.Format.IsDepth() {
			usage |= gpu.UsageDepthAttachment
		} else {
			usage |= gpu.UsageColorAttachment
		}
		for slot := 0; slot < p.frames; slot++ {
			img, err := dev.CreateImage(gpu.ImageDesc{
				Name:   fmt.Sprintf("%s_%s_%s", p.name, d.Name, uuid.New().String()),
				Extent: ext,
				Format: d.Format,
				Usage:  usage,
			})
			if err != nil {
				return fmt.Errorf("pass %q: create attachment %q: %w", p.name, d.Name, err)
			}
			att.Images = append(att.Images, img)
		}
	}

	p.framebuffers = make([]gpu.Framebuffer, 0, targets)
	for t := 0; t < targets; t++ {
		images := make([]gpu.Image, len(p.outputs))
		for i, o := range p.outputs {
			images[i] = o.Image(t)
		}
		fb, err := dev.CreateFramebuffer(gpu.FramebufferDesc{
			Name:        fmt.Sprintf("%s_framebuffer_%d", p.name, t),
			RenderPass:  p.renderPass,
			Attachments: images,
			Extent:      fbExtent,
		})
		if err != nil {
			return fmt.Errorf("pass %q: create framebuffer %d: %w", p.name, t, err)
		}
		p.framebuffers = append(p.framebuffers, fb)
	}
	return nil
}

func (p *Pass) destroyTargets() {
	for _, fb := range p.framebuffers {
		fb.Destroy()
	}
	p.framebuffers = nil
	for _, o := range p.outputs {
		o.destroy()
	}
	p.outputs = nil
}

func (p *Pass) buildPipelines() error {
	layouts := []gpu.DescriptorLayout{p.res.ViewLayout}
	if p.inputLayout != nil {
		layouts = append(layouts, p.inputLayout)
	}
	color := 0
	for _, d := range p.descs {
		if !d.Format.IsDepth() || d.Surface {
			color++
		}
	}
	p.pipelines = make([]gpu.Pipeline, 0, len(p.programs))
	for _, prog := range p.programs {
		stages := make([]gpu.ShaderStage, len(prog.Stages))
		for i, s := range prog.Stages {
			loaded, err := p.res.Stage(s)
			if err != nil {
				return fmt.Errorf("pass %q: program %q: %w", p.name, prog.Name, err)
			}
			stages[i] = loaded
		}
		desc := gpu.PipelineDesc{
			Name:             p.name + "." + prog.Name,
			Stages:           stages,
			Layouts:          layouts,
			Vertex:           prog.Vertex,
			ColorAttachments: color,
			DepthTest:        prog.DepthTest,
			DepthWrite:       prog.DepthWrite,
			Blend:            prog.Blend,
			PushConstantSize: p.layout.PushConstantSize,
			Compute:          prog.Compute,
		}
		if !prog.Compute {
			desc.RenderPass = p.renderPass
		}
		pl, err := p.res.Device.CreatePipeline(desc)
		if err != nil {
			return fmt.Errorf("pass %q: create pipeline %q: %w", p.name, desc.Name, err)
		}
		p.pipelines = append(p.pipelines, pl)
	}
	return nil
}

func (p *Pass) destroyPipelines() {
	for _, pl := range p.pipelines {
		pl.Destroy()
	}
	p.pipelines = nil
}

// ResizeAttachments rebuilds the outputs and framebuffers for extent.
// Descriptor layouts and sets survive; dependents must be relinked since
// the images they sampled are gone. Passes with a fixed extent keep it.
// Non-graphical passes only take the new extent.
func (p *Pass) ResizeAttachments(extent gpu.Extent) error {
	if p.state != StateInitialized {
		return fmt.Errorf("pass %q: resize: %w", p.name, core.ErrNotInitialized)
	}
	if !p.resizeable {
		return nil
	}
	if extent.Empty() {
		return fmt.Errorf("pass %q: resize to empty extent", p.name)
	}
	if !p.Graphical() {
		p.extent = extent
		return nil
	}
	p.destroyTargets()
	p.extent = extent
	if err := p.buildTargets(); err != nil {
		core.LogError("pass %s: resize failed: %s", p.name, err)
		return err
	}
	core.LogDebug("pass %s: resized to %s", p.name, extent)
	return nil
}

// Refresh re-reads a fixed extent from the settings and rebuilds the
// outputs when it changed. It reports whether anything was rebuilt.
func (p *Pass) Refresh() (bool, error) {
	if p.state != StateInitialized {
		return false, fmt.Errorf("pass %q: refresh: %w", p.name, core.ErrNotInitialized)
	}
	fx, ok := p.kind.(FixedExtent)
	if !ok {
		return false, nil
	}
	next := fx.FixedExtent(p.context())
	if next == p.extent || next.Empty() {
		return false, nil
	}
	p.destroyTargets()
	p.extent = next
	if err := p.buildTargets(); err != nil {
		return false, err
	}
	core.LogDebug("pass %s: extent now %s", p.name, next)
	return true, nil
}

// ReloadShaders recreates the pipelines with freshly loaded stages.
// Descriptor sets and bound inputs are kept.
func (p *Pass) ReloadShaders() error {
	if p.state != StateInitialized {
		return fmt.Errorf("pass %q: reload: %w", p.name, core.ErrNotInitialized)
	}
	p.destroyPipelines()
	if err := p.buildPipelines(); err != nil {
		core.LogError("pass %s: shader reload failed: %s", p.name, err)
		return err
	}
	return nil
}

// UsesShader reports whether any program of the pass uses the named stage.
func (p *Pass) UsesShader(name string) bool {
	for _, prog := range p.programs {
		for _, s := range prog.Stages {
			if s.Name == name {
				return true
			}
		}
	}
	return false
}

// LinkInputAttachments binds inputs into the declared input slots of
// every frame slot. The count must match the declaration exactly.
func (p *Pass) LinkInputAttachments(inputs []*Attachment) error {
	if p.state != StateInitialized {
		return fmt.Errorf("pass %q: link: %w", p.name, core.ErrNotInitialized)
	}
	if len(inputs) != len(p.layout.Inputs) {
		return fmt.Errorf("pass %q: %w: declares %d input slots %v, got %d",
			p.name, core.ErrAttachmentCountMismatch, len(p.layout.Inputs), p.layout.Inputs, len(inputs))
	}
	for i, in := range inputs {
		if in == nil || len(in.Images) == 0 {
			return fmt.Errorf("pass %q: input slot %q has no image", p.name, p.layout.Inputs[i])
		}
	}
	if err := p.writeSets(inputs); err != nil {
		return err
	}
	p.inputs = inputs
	p.linked = true
	return p.kind.LinkInputAttachments(inputs)
}

// Unlink points every input slot at the black fallback so that nothing
// the pass holds refers to another pass's images.
func (p *Pass) Unlink() error {
	if p.state != StateInitialized {
		return nil
	}
	placeholders := make([]*Attachment, len(p.layout.Inputs))
	for i := range placeholders {
		placeholders[i] = p.res.Black
	}
	if err := p.writeSets(placeholders); err != nil {
		return err
	}
	p.inputs = nil
	p.linked = false
	return nil
}

func (p *Pass) writeSets(inputs []*Attachment) error {
	for slot, set := range p.sets {
		bindings := make([]gpu.Binding, 0, len(inputs)+len(p.layout.Static))
		for i, in := range inputs {
			bindings = append(bindings, gpu.ImageBinding(uint32(i), in.Image(slot)))
		}
		for i, b := range p.layout.Static {
			b.Slot = uint32(len(inputs) + i)
			bindings = append(bindings, b)
		}
		if err := p.res.Device.UpdateDescriptorSet(set, bindings...); err != nil {
			return fmt.Errorf("pass %q: update descriptor set %d: %w", p.name, slot, err)
		}
	}
	return nil
}

// Execute records the pass into the frame's command stream. Inactive
// passes record nothing.
func (p *Pass) Execute(f *frame.Frame, view *metadata.RenderView) error {
	if !p.Active() {
		p.draws = 0
		return nil
	}
	if p.state != StateInitialized {
		return fmt.Errorf("pass %q: execute: %w", p.name, core.ErrNotInitialized)
	}
	if !p.layout.empty() && !p.linked {
		return fmt.Errorf("pass %q: execute before its inputs were linked", p.name)
	}
	rec := &Recording{
		Pass:     p,
		Frame:    f,
		View:     view,
		Cmd:      f.Commands,
		Settings: p.res.Settings,
	}
	p.kind.Execute(rec)
	if rec.open {
		rec.End()
	}
	p.draws = rec.draws
	return rec.err
}

// Dispose releases every device object of the pass. The device must be
// idle.
func (p *Pass) Dispose() {
	p.release()
	p.inputs = nil
	p.linked = false
	p.state = StateDisposed
}

func (p *Pass) release() {
	p.destroyPipelines()
	p.sets = nil
	if p.pool != nil {
		p.pool.Destroy()
		p.pool = nil
	}
	if p.inputLayout != nil {
		p.inputLayout.Destroy()
		p.inputLayout = nil
	}
	p.destroyTargets()
	if p.renderPass != nil {
		p.renderPass.Destroy()
		p.renderPass = nil
	}
}
