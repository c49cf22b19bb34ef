package headless

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

type Op uint8

const (
	OpBeginRenderPass Op = iota
	OpEndRenderPass
	OpBindPipeline
	OpBindDescriptorSets
	OpPushConstants
	OpBindVertexBuffer
	OpDraw
	OpDrawGeometry
	OpDispatch
	OpBuildAccelerationStructure
)

var opNames = [...]string{
	"begin_render_pass",
	"end_render_pass",
	"bind_pipeline",
	"bind_descriptor_sets",
	"push_constants",
	"bind_vertex_buffer",
	"draw",
	"draw_geometry",
	"dispatch",
	"build_acceleration_structure",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// Command is one recorded call. Pass is the render pass open at the time,
// Pipeline the last bound pipeline.
type Command struct {
	Op            Op
	Pass          string
	Pipeline      string
	Geometry      string
	Vertices      uint32
	Instances     uint32
	FirstInstance uint32
}

type Submission struct {
	Stream   string
	Commands []Command
}

// GeometryDraws counts scene draws recorded inside the named render pass.
func (s Submission) GeometryDraws(pass string) int {
	n := 0
	for _, c := range s.Commands {
		if c.Op == OpDrawGeometry && c.Pass == pass {
			n++
		}
	}
	return n
}

// TotalGeometryDraws counts scene draws across every pass.
func (s Submission) TotalGeometryDraws() int {
	n := 0
	for _, c := range s.Commands {
		if c.Op == OpDrawGeometry {
			n++
		}
	}
	return n
}

// Passes lists render passes in the order they were begun.
func (s Submission) Passes() []string {
	var out []string
	for _, c := range s.Commands {
		if c.Op == OpBeginRenderPass {
			out = append(out, c.Pass)
		}
	}
	return out
}

func (s Submission) Count(op Op) int {
	n := 0
	for _, c := range s.Commands {
		if c.Op == op {
			n++
		}
	}
	return n
}

type CommandStream struct {
	dev       *Device
	name      string
	recording bool
	commands  []Command
	pass      string
	pipeline  string
	destroyed bool
}

func (d *Device) CreateCommandStream(name string) (gpu.CommandStream, error) {
	if err := d.acquire("command_stream", name); err != nil {
		return nil, err
	}
	return &CommandStream{dev: d, name: name}, nil
}

func (c *CommandStream) Reset() error {
	if c.recording {
		return fmt.Errorf("reset %q while recording", c.name)
	}
	c.commands = c.commands[:0]
	c.pass = ""
	c.pipeline = ""
	return nil
}

func (c *CommandStream) Begin() error {
	if c.recording {
		return fmt.Errorf("begin %q: already recording", c.name)
	}
	c.recording = true
	return nil
}

func (c *CommandStream) End() error {
	if !c.recording {
		return fmt.Errorf("end %q: not recording", c.name)
	}
	if c.pass != "" {
		return fmt.Errorf("end %q: render pass %q still open", c.name, c.pass)
	}
	c.recording = false
	return nil
}

func (c *CommandStream) record(cmd Command) {
	if !c.recording {
		c.dev.mu.Lock()
		c.dev.violate("%s recorded into %q outside Begin/End", cmd.Op, c.name)
		c.dev.mu.Unlock()
		return
	}
	cmd.Pass = c.pass
	cmd.Pipeline = c.pipeline
	c.commands = append(c.commands, cmd)
}

func (c *CommandStream) BeginRenderPass(rp gpu.RenderPass, fb gpu.Framebuffer, clears []gpu.ClearValue) {
	r, _ := rp.(*RenderPass)
	f, _ := fb.(*Framebuffer)
	c.dev.mu.Lock()
	if r == nil || f == nil {
		c.dev.violate("begin render pass with foreign handles")
	} else {
		if r.destroyed || f.destroyed {
			c.dev.violate("begin render pass %q with a destroyed render pass or framebuffer", r.desc.Name)
		}
		for i, img := range f.attachments {
			if img.destroyed {
				c.dev.violate("render pass %q writes destroyed image %q", r.desc.Name, img.name)
				continue
			}
			if i < len(r.desc.Attachments) && r.desc.Attachments[i].Load == gpu.LoadOpClear && i < len(clears) {
				if img.format.IsDepth() {
					dv := clears[i].Depth
					img.clear(mgl32.Vec4{dv, dv, dv, 1})
				} else {
					img.clear(clears[i].Color)
				}
			}
		}
	}
	c.dev.mu.Unlock()
	if r != nil {
		c.pass = r.desc.Name
	}
	c.record(Command{Op: OpBeginRenderPass})
}

func (c *CommandStream) EndRenderPass() {
	c.record(Command{Op: OpEndRenderPass})
	c.pass = ""
}

func (c *CommandStream) BindPipeline(p gpu.Pipeline) {
	if p != nil {
		c.pipeline = p.Name()
		if hp, ok := p.(*Pipeline); ok && hp.destroyed {
			c.dev.mu.Lock()
			c.dev.violate("bind of destroyed pipeline %q", hp.desc.Name)
			c.dev.mu.Unlock()
		}
	}
	c.record(Command{Op: OpBindPipeline})
}

func (c *CommandStream) BindDescriptorSets(p gpu.Pipeline, first uint32, sets ...gpu.DescriptorSet) {
	c.dev.mu.Lock()
	for _, s := range sets {
		hs, ok := s.(*DescriptorSet)
		if !ok {
			c.dev.violate("bind of foreign descriptor set %T", s)
			continue
		}
		for slot, b := range hs.bound {
			if img, ok := b.Image.(*Image); ok && img.destroyed {
				c.dev.violate("descriptor slot %d references destroyed image %q", slot, img.name)
			}
		}
		for _, lb := range hs.layout.Bindings() {
			if _, ok := hs.bound[lb.Slot]; !ok {
				c.dev.violate("descriptor slot %d bound without being written", lb.Slot)
			}
		}
	}
	c.dev.mu.Unlock()
	c.record(Command{Op: OpBindDescriptorSets})
}

func (c *CommandStream) PushConstants(p gpu.Pipeline, data []byte) {
	c.record(Command{Op: OpPushConstants})
}

func (c *CommandStream) BindVertexBuffer(buf gpu.Buffer) {
	c.record(Command{Op: OpBindVertexBuffer})
}

func (c *CommandStream) Draw(vertexCount, instanceCount uint32) {
	c.record(Command{Op: OpDraw, Vertices: vertexCount, Instances: instanceCount})
}

func (c *CommandStream) DrawGeometry(g gpu.Geometry, firstInstance uint32) {
	cmd := Command{Op: OpDrawGeometry, Instances: 1, FirstInstance: firstInstance}
	if g != nil {
		cmd.Geometry = g.Name()
		cmd.Vertices = g.VertexCount()
		if hg, ok := g.(*Geometry); ok && hg.destroyed {
			c.dev.mu.Lock()
			c.dev.violate("draw of destroyed geometry %q", hg.name)
			c.dev.mu.Unlock()
		}
	}
	c.record(cmd)
}

func (c *CommandStream) Dispatch(x, y, z uint32) {
	c.record(Command{Op: OpDispatch, Vertices: x * y * z})
}

func (c *CommandStream) BuildAccelerationStructure(as gpu.AccelerationStructure, instances []mgl32.Mat4) {
	if a, ok := as.(*AccelerationStructure); ok {
		a.instances = len(instances)
	}
	c.record(Command{Op: OpBuildAccelerationStructure, Instances: uint32(len(instances))})
}

func (c *CommandStream) Destroy() {
	c.dev.release("command_stream", c.name, &c.destroyed)
}
