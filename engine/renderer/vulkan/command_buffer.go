package vulkan

import (
	"fmt"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

type commandStreamState int

const (
	commandStreamReady commandStreamState = iota
	commandStreamRecording
	commandStreamInRenderPass
	commandStreamRecordingEnded
	commandStreamSubmitted
	commandStreamNotAllocated
)

// CommandStream wraps a primary command buffer. Recording mistakes are
// kept and reported by End.
type CommandStream struct {
	device *Device
	name   string
	handle vk.CommandBuffer
	state  commandStreamState
	bound  *Pipeline
	err    error
}

func (d *Device) CreateCommandStream(name string) (gpu.CommandStream, error) {
	cs := &CommandStream{device: d, name: name, state: commandStreamNotAllocated}
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.commandPool,
		CommandBufferCount: 1,
		Level:              vk.CommandBufferLevelPrimary,
	}
	buffers := make([]vk.CommandBuffer, 1)
	err := d.locks.SafeCall(CommandPoolManagement, func() error {
		if res := vk.AllocateCommandBuffers(d.logical, &allocateInfo, buffers); res != vk.Success {
			return fmt.Errorf("command stream %q: failed to allocate command buffer: %s", name, VulkanResultString(res, true))
		}
		return nil
	})
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	cs.handle = buffers[0]
	cs.state = commandStreamReady
	return cs, nil
}

func (c *CommandStream) Reset() error {
	if c.state == commandStreamNotAllocated {
		return fmt.Errorf("command stream %q: %w", c.name, core.ErrNotInitialized)
	}
	if res := vk.ResetCommandBuffer(c.handle, 0); res != vk.Success {
		return fmt.Errorf("command stream %q: reset failed with %s", c.name, VulkanResultString(res, true))
	}
	c.state = commandStreamReady
	c.bound = nil
	c.err = nil
	return nil
}

func (c *CommandStream) Begin() error {
	if c.state != commandStreamReady {
		return fmt.Errorf("command stream %q: begin while not ready", c.name)
	}
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if res := vk.BeginCommandBuffer(c.handle, &beginInfo); res != vk.Success {
		return fmt.Errorf("command stream %q: vkBeginCommandBuffer failed with %s", c.name, VulkanResultString(res, true))
	}
	c.state = commandStreamRecording
	return nil
}

func (c *CommandStream) End() error {
	if c.state == commandStreamInRenderPass {
		c.fail("ended inside a render pass")
	}
	if c.err != nil {
		return c.err
	}
	if res := vk.EndCommandBuffer(c.handle); res != vk.Success {
		return fmt.Errorf("command stream %q: vkEndCommandBuffer failed with %s", c.name, VulkanResultString(res, true))
	}
	c.state = commandStreamRecordingEnded
	return nil
}

// fail keeps the first recording error.
func (c *CommandStream) fail(format string, args ...interface{}) {
	if c.err == nil {
		c.err = fmt.Errorf("command stream %q: "+format, append([]interface{}{c.name}, args...)...)
	}
}

func (c *CommandStream) recording() bool {
	if c.state != commandStreamRecording && c.state != commandStreamInRenderPass {
		c.fail("not recording")
		return false
	}
	return true
}

func (c *CommandStream) BeginRenderPass(rp gpu.RenderPass, fb gpu.Framebuffer, clears []gpu.ClearValue) {
	if !c.recording() {
		return
	}
	pass, ok := rp.(*RenderPass)
	if !ok || pass == nil {
		c.fail("foreign render pass %T", rp)
		return
	}
	frame, ok := fb.(*Framebuffer)
	if !ok || frame == nil {
		c.fail("foreign framebuffer %T", fb)
		return
	}

	clearValues := make([]vk.ClearValue, len(pass.attachments))
	for i, a := range pass.attachments {
		var cv gpu.ClearValue
		if i < len(clears) {
			cv = clears[i]
		}
		if a.Format.IsDepth() && !a.Present {
			clearValues[i] = vk.NewClearDepthStencil(cv.Depth, cv.Stencil)
			continue
		}
		clearValues[i] = vk.NewClearValue(cv.Color[:])
	}

	extent := vk.Extent2D{Width: frame.extent.Width, Height: frame.extent.Height}
	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  pass.handle,
		Framebuffer: frame.handle,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: extent,
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(c.handle, &beginInfo, vk.SubpassContentsInline)

	// negative height keeps +Y up in clip space
	viewport := vk.Viewport{
		X:        0,
		Y:        float32(extent.Height),
		Width:    float32(extent.Width),
		Height:   -float32(extent.Height),
		MinDepth: 0.0,
		MaxDepth: 1.0,
	}
	scissor := vk.Rect2D{Offset: vk.Offset2D{X: 0, Y: 0}, Extent: extent}
	vk.CmdSetViewport(c.handle, 0, 1, []vk.Viewport{viewport})
	vk.CmdSetScissor(c.handle, 0, 1, []vk.Rect2D{scissor})
	c.state = commandStreamInRenderPass
}

func (c *CommandStream) EndRenderPass() {
	if c.state != commandStreamInRenderPass {
		c.fail("end render pass without a begin")
		return
	}
	vk.CmdEndRenderPass(c.handle)
	c.state = commandStreamRecording
}

func (c *CommandStream) pipeline(p gpu.Pipeline) *Pipeline {
	pl, ok := p.(*Pipeline)
	if !ok || pl == nil {
		c.fail("foreign pipeline %T", p)
		return nil
	}
	return pl
}

func (c *CommandStream) BindPipeline(p gpu.Pipeline) {
	if !c.recording() {
		return
	}
	pl := c.pipeline(p)
	if pl == nil {
		return
	}
	vk.CmdBindPipeline(c.handle, pl.bindPoint, pl.handle)
	c.bound = pl
}

func (c *CommandStream) BindDescriptorSets(p gpu.Pipeline, first uint32, sets ...gpu.DescriptorSet) {
	if !c.recording() || len(sets) == 0 {
		return
	}
	pl := c.pipeline(p)
	if pl == nil {
		return
	}
	handles := make([]vk.DescriptorSet, len(sets))
	for i, s := range sets {
		ds, ok := s.(*DescriptorSet)
		if !ok || ds == nil {
			c.fail("foreign descriptor set %T", s)
			return
		}
		handles[i] = ds.handle
	}
	vk.CmdBindDescriptorSets(c.handle, pl.bindPoint, pl.layout, first, uint32(len(handles)), handles, 0, nil)
}

func (c *CommandStream) PushConstants(p gpu.Pipeline, data []byte) {
	if !c.recording() || len(data) == 0 {
		return
	}
	pl := c.pipeline(p)
	if pl == nil {
		return
	}
	if uint32(len(data)) > pl.pushSize {
		c.fail("%d push constant bytes for pipeline %q taking %d", len(data), pl.name, pl.pushSize)
		return
	}
	vk.CmdPushConstants(c.handle, pl.layout, pl.pushStages, 0, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (c *CommandStream) BindVertexBuffer(buf gpu.Buffer) {
	if !c.recording() {
		return
	}
	b, ok := buf.(*Buffer)
	if !ok || b == nil {
		c.fail("foreign buffer %T", buf)
		return
	}
	vk.CmdBindVertexBuffers(c.handle, 0, 1, []vk.Buffer{b.handle}, []vk.DeviceSize{0})
}

func (c *CommandStream) Draw(vertexCount, instanceCount uint32) {
	if !c.recording() {
		return
	}
	vk.CmdDraw(c.handle, vertexCount, instanceCount, 0, 0)
}

func (c *CommandStream) DrawGeometry(g gpu.Geometry, firstInstance uint32) {
	if !c.recording() {
		return
	}
	geo, ok := g.(*Geometry)
	if !ok || geo == nil || geo.vertices == nil {
		c.fail("geometry %T is not drawable", g)
		return
	}
	vk.CmdBindVertexBuffers(c.handle, 0, 1, []vk.Buffer{geo.vertices.handle}, []vk.DeviceSize{0})
	if geo.indices != nil && geo.indexN > 0 {
		vk.CmdBindIndexBuffer(c.handle, geo.indices.handle, 0, vk.IndexTypeUint32)
		vk.CmdDrawIndexed(c.handle, geo.indexN, 1, 0, 0, firstInstance)
		return
	}
	vk.CmdDraw(c.handle, geo.vertexN, 1, 0, firstInstance)
}

func (c *CommandStream) Dispatch(x, y, z uint32) {
	if !c.recording() {
		return
	}
	if c.state == commandStreamInRenderPass {
		c.fail("dispatch inside a render pass")
		return
	}
	vk.CmdDispatch(c.handle, x, y, z)
}

// BuildAccelerationStructure is never reached: the device reports no ray
// tracing support, so no acceleration structure can exist.
func (c *CommandStream) BuildAccelerationStructure(as gpu.AccelerationStructure, instances []mgl32.Mat4) {
	c.fail("build acceleration structure: %v", core.ErrUnsupported)
}

func (c *CommandStream) Destroy() {
	if c.state == commandStreamNotAllocated {
		return
	}
	d := c.device
	_ = d.locks.SafeCall(CommandPoolManagement, func() error {
		vk.FreeCommandBuffers(d.logical, d.commandPool, 1, []vk.CommandBuffer{c.handle})
		return nil
	})
	c.handle = nil
	c.bound = nil
	c.state = commandStreamNotAllocated
}

func (d *Device) Submit(cmd gpu.CommandStream, wait, signal gpu.Semaphore, fence gpu.Fence) error {
	c, ok := cmd.(*CommandStream)
	if !ok || c == nil {
		return fmt.Errorf("vulkan: foreign command stream %T", cmd)
	}
	if c.state != commandStreamRecordingEnded {
		return fmt.Errorf("command stream %q: submitted before End", c.name)
	}
	waitSem, err := asSemaphore(wait)
	if err != nil {
		return err
	}
	signalSem, err := asSemaphore(signal)
	if err != nil {
		return err
	}
	f, err := asFence(fence)
	if err != nil {
		return err
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{c.handle},
	}
	if waitSem != nil {
		submitInfo.WaitSemaphoreCount = 1
		submitInfo.PWaitSemaphores = []vk.Semaphore{waitSem.handle}
		submitInfo.PWaitDstStageMask = []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)}
	}
	if signalSem != nil {
		submitInfo.SignalSemaphoreCount = 1
		submitInfo.PSignalSemaphores = []vk.Semaphore{signalSem.handle}
	}
	fenceHandle := vk.NullFence
	if f != nil {
		fenceHandle = f.handle
	}

	err = d.locks.SafeCall(QueueManagement, func() error {
		if res := vk.QueueSubmit(d.graphicsQueue, 1, []vk.SubmitInfo{submitInfo}, fenceHandle); res != vk.Success {
			return fmt.Errorf("command stream %q: vkQueueSubmit failed with %s", c.name, VulkanResultString(res, true))
		}
		return nil
	})
	if err != nil {
		core.LogError(err.Error())
		return err
	}
	if f != nil {
		f.signaled = false
	}
	c.state = commandStreamSubmitted
	return nil
}

// singleUse records fn into a throwaway command buffer and waits for the
// graphics queue to drain it.
func (d *Device) singleUse(fn func(cmd vk.CommandBuffer)) error {
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.commandPool,
		CommandBufferCount: 1,
		Level:              vk.CommandBufferLevelPrimary,
	}
	buffers := make([]vk.CommandBuffer, 1)
	err := d.locks.SafeCall(CommandPoolManagement, func() error {
		if res := vk.AllocateCommandBuffers(d.logical, &allocateInfo, buffers); res != vk.Success {
			return fmt.Errorf("failed to allocate single use command buffer: %s", VulkanResultString(res, true))
		}
		return nil
	})
	if err != nil {
		return err
	}
	cmd := buffers[0]
	defer func() {
		_ = d.locks.SafeCall(CommandPoolManagement, func() error {
			vk.FreeCommandBuffers(d.logical, d.commandPool, 1, buffers)
			return nil
		})
	}()

	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if res := vk.BeginCommandBuffer(cmd, &beginInfo); res != vk.Success {
		return fmt.Errorf("vkBeginCommandBuffer failed with %s", VulkanResultString(res, true))
	}
	fn(cmd)
	if res := vk.EndCommandBuffer(cmd); res != vk.Success {
		return fmt.Errorf("vkEndCommandBuffer failed with %s", VulkanResultString(res, true))
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    buffers,
	}
	return d.locks.SafeCall(QueueManagement, func() error {
		if res := vk.QueueSubmit(d.graphicsQueue, 1, []vk.SubmitInfo{submitInfo}, vk.NullFence); res != vk.Success {
			return fmt.Errorf("vkQueueSubmit failed with %s", VulkanResultString(res, true))
		}
		if res := vk.QueueWaitIdle(d.graphicsQueue); res != vk.Success {
			return fmt.Errorf("vkQueueWaitIdle failed with %s", VulkanResultString(res, true))
		}
		return nil
	})
}
