package passes

import (
	"encoding/binary"
	"fmt"

	"github.com/spaghettifunk/lumen/engine/renderer/frame"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// Recording is handed to Kind.Execute. It wraps the frame's command stream
// with the pass's own render pass, framebuffers and pipelines.
type Recording struct {
	Pass     *Pass
	Frame    *frame.Frame
	View     *metadata.RenderView
	Cmd      gpu.CommandStream
	Settings *metadata.Settings

	open     bool
	pipeline gpu.Pipeline
	draws    int
	err      error
}

func (r *Recording) fail(format string, args ...interface{}) {
	if r.err == nil {
		r.err = fmt.Errorf("pass %q: "+format, append([]interface{}{r.Pass.name}, args...)...)
	}
}

func (r *Recording) framebuffer() gpu.Framebuffer {
	p := r.Pass
	idx := r.Frame.Index
	if len(p.descs) > 0 && p.descs[0].Surface {
		idx = int(r.Frame.ImageIndex)
	}
	if idx >= len(p.framebuffers) {
		return nil
	}
	return p.framebuffers[idx]
}

// Begin opens the pass's render pass on the framebuffer of this frame.
func (r *Recording) Begin() {
	if !r.Pass.Graphical() {
		r.fail("begin on a non-graphical pass")
		return
	}
	fb := r.framebuffer()
	if fb == nil {
		r.fail("no framebuffer for frame %d", r.Frame.Index)
		return
	}
	r.Cmd.BeginRenderPass(r.Pass.renderPass, fb, r.Pass.clears)
	r.open = true
}

func (r *Recording) End() {
	if !r.open {
		return
	}
	r.Cmd.EndRenderPass()
	r.open = false
}

// Use binds program i with the frame's view set and the pass's input set.
func (r *Recording) Use(i int) {
	p := r.Pass
	if i >= len(p.pipelines) {
		r.fail("program %d out of range", i)
		return
	}
	r.pipeline = p.pipelines[i]
	r.Cmd.BindPipeline(r.pipeline)
	sets := []gpu.DescriptorSet{r.Frame.ViewSet}
	if len(p.sets) > 0 {
		sets = append(sets, p.sets[r.Frame.Index%len(p.sets)])
	}
	r.Cmd.BindDescriptorSets(r.pipeline, 0, sets...)
}

// Push sends push constants to the bound program.
func (r *Recording) Push(data []byte) {
	if r.pipeline == nil {
		r.fail("push constants without a bound program")
		return
	}
	r.Cmd.PushConstants(r.pipeline, data)
}

func (r *Recording) PushU32(values ...uint32) {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], v)
	}
	r.Push(buf)
}

// Fullscreen draws the single triangle covering the target.
func (r *Recording) Fullscreen() {
	r.Cmd.Draw(3, 1)
}

// Draw records one scene draw call.
func (r *Recording) Draw(dc metadata.DrawCall) {
	if dc.Geometry == nil {
		return
	}
	r.Cmd.DrawGeometry(dc.Geometry, dc.Object)
	r.draws++
}

func (r *Recording) DrawAll(calls []metadata.DrawCall) {
	for _, dc := range calls {
		r.Draw(dc)
	}
}
