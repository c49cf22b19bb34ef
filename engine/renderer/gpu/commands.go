package gpu

import "github.com/go-gl/mathgl/mgl32"

// CommandStream records work for one submission. Recording calls do not
// report errors; the device surfaces them at End or Submit.
type CommandStream interface {
	Reset() error
	Begin() error
	End() error

	BeginRenderPass(rp RenderPass, fb Framebuffer, clears []ClearValue)
	EndRenderPass()
	BindPipeline(p Pipeline)
	BindDescriptorSets(p Pipeline, first uint32, sets ...DescriptorSet)
	PushConstants(p Pipeline, data []byte)
	BindVertexBuffer(buf Buffer)
	// Draw issues non-indexed vertices without scene geometry, e.g. a
	// fullscreen triangle or overlay quads.
	Draw(vertexCount, instanceCount uint32)
	// DrawGeometry draws a scene mesh; firstInstance selects its object
	// uniform entry.
	DrawGeometry(g Geometry, firstInstance uint32)
	Dispatch(x, y, z uint32)
	BuildAccelerationStructure(as AccelerationStructure, instances []mgl32.Mat4)

	Destroy()
}
