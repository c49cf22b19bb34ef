// Package graph holds the ordered pass list of a renderer together with
// the image dependencies between passes, and keeps the input bindings of
// every consumer pointing at live images.
//
// All mutating operations (Setup, Connect, Resize, SetActive, Refresh,
// Dispose) rewrite descriptor sets and must run while the device is idle.
// Execute only reads.
package graph

import (
	"fmt"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/frame"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/passes"
)

// OnInactive says what a consumer does when none of the producers of a
// dependency is active.
type OnInactive uint8

const (
	// Fallback binds a resources image in place of every missing output.
	Fallback OnInactive = iota
	// Deactivate suppresses the consumer, which in turn starves its own
	// dependents.
	Deactivate
)

func (o OnInactive) String() string {
	if o == Deactivate {
		return "deactivate"
	}
	return "fallback"
}

// ImageDependency feeds outputs of one producer into the next input slots
// of a consumer. Dependencies of a consumer fill its slots in the order
// they were declared.
type ImageDependency struct {
	Consumer string
	// Producer names a pass declared before Consumer. Leave it empty and
	// set Resource to read a shared resources image instead.
	Producer string
	Resource string
	// Indices are output indices of Producer. For a Resource dependency
	// only the length matters.
	Indices []int
	// Else is tried when Producer is inactive. Its Consumer and OnInactive
	// are ignored.
	Else       *ImageDependency
	OnInactive OnInactive
	// FallbackImage is the resources image used by Fallback, White when
	// empty.
	FallbackImage string
}

func (d *ImageDependency) width() int {
	if len(d.Indices) == 0 {
		return 1
	}
	return len(d.Indices)
}

type Graph struct {
	res    *passes.Resources
	passes []*passes.Pass
	index  map[string]int
	deps   map[string][]ImageDependency
}

func New(res *passes.Resources) *Graph {
	return &Graph{
		res:   res,
		index: map[string]int{},
		deps:  map[string][]ImageDependency{},
	}
}

// Add appends a pass. Its position is its execution order.
func (g *Graph) Add(p *passes.Pass) error {
	if _, ok := g.index[p.Name()]; ok {
		return fmt.Errorf("graph: pass %q added twice", p.Name())
	}
	g.index[p.Name()] = len(g.passes)
	g.passes = append(g.passes, p)
	return nil
}

func (g *Graph) Len() int {
	return len(g.passes)
}

func (g *Graph) Passes() []*passes.Pass {
	return g.passes
}

func (g *Graph) Pass(name string) (*passes.Pass, error) {
	i, ok := g.index[name]
	if !ok {
		return nil, fmt.Errorf("graph: %q: %w", name, core.ErrUnknownPass)
	}
	return g.passes[i], nil
}

// Dependencies returns the declared dependencies of consumer in slot order.
func (g *Graph) Dependencies(consumer string) []ImageDependency {
	return g.deps[consumer]
}

// Depend declares a dependency. Every producer in the Else chain must come
// before the consumer in execution order.
func (g *Graph) Depend(dep ImageDependency) error {
	ci, ok := g.index[dep.Consumer]
	if !ok {
		return fmt.Errorf("graph: consumer %q: %w", dep.Consumer, core.ErrUnknownPass)
	}
	for d := &dep; d != nil; d = d.Else {
		if d.Producer == "" {
			if d.Resource == "" {
				return fmt.Errorf("graph: dependency of %q names neither a producer nor a resource", dep.Consumer)
			}
			continue
		}
		pi, ok := g.index[d.Producer]
		if !ok {
			return fmt.Errorf("graph: producer %q of %q: %w", d.Producer, dep.Consumer, core.ErrUnknownPass)
		}
		if pi >= ci {
			return fmt.Errorf("graph: producer %q must run before its consumer %q", d.Producer, dep.Consumer)
		}
	}
	g.deps[dep.Consumer] = append(g.deps[dep.Consumer], dep)
	return nil
}

// Setup builds every pass for frames slots and wires them. On failure all
// passes are disposed again.
func (g *Graph) Setup(frames int) error {
	for i, p := range g.passes {
		if err := p.Setup(frames); err != nil {
			for j := i - 1; j >= 0; j-- {
				g.passes[j].Dispose()
			}
			return fmt.Errorf("graph: setup pass %q: %w", p.Name(), err)
		}
	}
	if err := g.ConnectAll(); err != nil {
		core.LogError("graph: wiring failed: %s", err)
		g.Dispose()
		return err
	}
	core.LogInfo("graph: %d passes set up for %d frames", len(g.passes), frames)
	return nil
}

// ConnectAll connects every pass in execution order, so suppression
// cascades down the pipeline.
func (g *Graph) ConnectAll() error {
	for i := range g.passes {
		if err := g.Connect(i); err != nil {
			return err
		}
	}
	return nil
}

// Connect resolves the dependencies of pass i against the current images
// of its producers and links them into the pass.
func (g *Graph) Connect(i int) error {
	if i < 0 || i >= len(g.passes) {
		return fmt.Errorf("graph: connect %d: %w", i, core.ErrUnknownPass)
	}
	consumer := g.passes[i]
	deps := g.deps[consumer.Name()]
	if len(deps) == 0 && len(consumer.InputSlots()) == 0 {
		consumer.Suppress(false)
		if consumer.State() == passes.StateInitialized && consumer.DescriptorSets() != nil && !consumer.Linked() {
			// static bindings only
			return consumer.LinkInputAttachments(nil)
		}
		return nil
	}

	var inputs []*passes.Attachment
	for _, dep := range deps {
		atts, err := g.resolve(&dep)
		if err != nil {
			return fmt.Errorf("graph: connect %q: %w", consumer.Name(), err)
		}
		if atts == nil {
			if dep.OnInactive == Deactivate {
				core.LogDebug("graph: %s has no active producer for %s, deactivating", consumer.Name(), dep.Producer)
				consumer.Suppress(true)
				return consumer.Unlink()
			}
			name := dep.FallbackImage
			if name == "" {
				name = passes.ResourceWhite
			}
			fb, err := g.res.Image(name)
			if err != nil {
				return fmt.Errorf("graph: connect %q: %w", consumer.Name(), err)
			}
			atts = repeat(fb, dep.width())
		}
		inputs = append(inputs, atts...)
	}

	if want := len(consumer.InputSlots()); len(inputs) != want {
		return fmt.Errorf("graph: connect %q: %w: dependencies supply %d images for %d slots",
			consumer.Name(), core.ErrAttachmentCountMismatch, len(inputs), want)
	}
	consumer.Suppress(false)
	return consumer.LinkInputAttachments(inputs)
}

// resolve returns the images of the first active producer in the chain,
// or nil when there is none.
func (g *Graph) resolve(dep *ImageDependency) ([]*passes.Attachment, error) {
	for d := dep; d != nil; d = d.Else {
		if d.Producer == "" {
			img, err := g.res.Image(d.Resource)
			if err != nil {
				return nil, err
			}
			return repeat(img, d.width()), nil
		}
		producer := g.passes[g.index[d.Producer]]
		if !producer.Active() {
			continue
		}
		outs := producer.Outputs()
		atts := make([]*passes.Attachment, 0, len(d.Indices))
		for _, idx := range d.Indices {
			if idx < 0 || idx >= len(outs) {
				return nil, fmt.Errorf("producer %q has %d outputs, index %d: %w",
					d.Producer, len(outs), idx, core.ErrUnknownAttachment)
			}
			atts = append(atts, outs[idx])
		}
		return atts, nil
	}
	return nil, nil
}

func repeat(att *passes.Attachment, n int) []*passes.Attachment {
	out := make([]*passes.Attachment, n)
	for i := range out {
		out[i] = att
	}
	return out
}

// connectDependents reconnects every pass that reads, directly or through
// other passes, from the pass at index from.
func (g *Graph) connectDependents(from int) error {
	dirty := map[string]bool{g.passes[from].Name(): true}
	for j := from + 1; j < len(g.passes); j++ {
		p := g.passes[j]
		if !g.readsFrom(p.Name(), dirty) {
			continue
		}
		if err := g.Connect(j); err != nil {
			return err
		}
		dirty[p.Name()] = true
	}
	return nil
}

func (g *Graph) readsFrom(consumer string, producers map[string]bool) bool {
	for _, dep := range g.deps[consumer] {
		for d := &dep; d != nil; d = d.Else {
			if producers[d.Producer] {
				return true
			}
		}
	}
	return false
}

// SetActive toggles a pass and rewires everything downstream of it.
func (g *Graph) SetActive(name string, active bool) error {
	i, ok := g.index[name]
	if !ok {
		return fmt.Errorf("graph: %q: %w", name, core.ErrUnknownPass)
	}
	p := g.passes[i]
	if p.Enabled() == active {
		return nil
	}
	p.SetActive(active)
	core.LogInfo("graph: pass %s active=%t", name, active)
	return g.connectDependents(i)
}

// Resize rebuilds the targets of every resizeable pass for extent, then
// rewires the whole graph since every resized image handle changed.
func (g *Graph) Resize(extent gpu.Extent) error {
	for _, p := range g.passes {
		if !p.Resizeable() {
			continue
		}
		if err := p.ResizeAttachments(extent); err != nil {
			return fmt.Errorf("graph: resize %q: %w", p.Name(), err)
		}
	}
	return g.ConnectAll()
}

// Refresh re-reads the fixed extent of a pass from the settings and
// rewires its dependents when it changed.
func (g *Graph) Refresh(name string) error {
	i, ok := g.index[name]
	if !ok {
		return fmt.Errorf("graph: %q: %w", name, core.ErrUnknownPass)
	}
	changed, err := g.passes[i].Refresh()
	if err != nil {
		return fmt.Errorf("graph: refresh %q: %w", name, err)
	}
	if !changed {
		return nil
	}
	return g.connectDependents(i)
}

// ReloadShader rebuilds the pipelines of every pass using the named stage
// and returns how many passes were affected.
func (g *Graph) ReloadShader(stage string) (int, error) {
	n := 0
	for _, p := range g.passes {
		if !p.UsesShader(stage) {
			continue
		}
		if err := p.ReloadShaders(); err != nil {
			return n, fmt.Errorf("graph: reload %q: %w", p.Name(), err)
		}
		n++
	}
	return n, nil
}

// Attachment finds an output by its "<pass>.<attachment>" id.
func (g *Graph) Attachment(id string) (*passes.Attachment, error) {
	for _, p := range g.passes {
		for _, o := range p.Outputs() {
			if o.ID() == id {
				return o, nil
			}
		}
	}
	return nil, fmt.Errorf("graph: %q: %w", id, core.ErrUnknownAttachment)
}

// Execute records every active pass in order. Inactive passes are still
// visited so their draw counts drop to zero.
func (g *Graph) Execute(f *frame.Frame, view *metadata.RenderView) error {
	for _, p := range g.passes {
		if err := p.Execute(f, view); err != nil {
			return fmt.Errorf("graph: execute: %w", err)
		}
	}
	return nil
}

// Dispose releases all passes, consumers first.
func (g *Graph) Dispose() {
	for i := len(g.passes) - 1; i >= 0; i-- {
		if g.passes[i].State() == passes.StateInitialized {
			g.passes[i].Dispose()
		}
	}
}
