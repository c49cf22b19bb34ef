package vulkan

import (
	"encoding/binary"
	"fmt"
	"math"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

// Buffer lives in host visible, coherent memory and stays mapped for its
// whole life.
type Buffer struct {
	device *Device
	name   string
	size   int
	handle vk.Buffer
	memory vk.DeviceMemory
	data   []byte
}

func (b *Buffer) Name() string   { return b.name }
func (b *Buffer) Size() int      { return b.size }
func (b *Buffer) Mapped() []byte { return b.data }

func (b *Buffer) Destroy() {
	d := b.device
	if b.data != nil {
		vk.UnmapMemory(d.logical, b.memory)
		b.data = nil
	}
	if b.handle != vk.NullBuffer {
		vk.DestroyBuffer(d.logical, b.handle, d.allocator)
		b.handle = vk.NullBuffer
	}
	if b.memory != vk.NullDeviceMemory {
		vk.FreeMemory(d.logical, b.memory, d.allocator)
		b.memory = vk.NullDeviceMemory
	}
}

func (d *Device) CreateBuffer(desc gpu.BufferDesc) (gpu.Buffer, error) {
	return d.createBuffer(desc.Name, desc.Size, bufferUsageFlags(desc.Usage))
}

func (d *Device) newStagingBuffer(name string, size int) (*Buffer, error) {
	return d.createBuffer(name, size, vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit|vk.BufferUsageTransferDstBit))
}

func (d *Device) createBuffer(name string, size int, usage vk.BufferUsageFlags) (*Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("buffer %q: size %d", name, size)
	}
	b := &Buffer{device: d, name: name, size: size}

	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}
	if res := vk.CreateBuffer(d.logical, &bufferInfo, d.allocator, &b.handle); res != vk.Success {
		err := fmt.Errorf("buffer %q: vkCreateBuffer failed with %s", name, VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}

	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.logical, b.handle, &req)
	req.Deref()
	mem, err := d.allocate(req, vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit)
	if err != nil {
		b.Destroy()
		return nil, fmt.Errorf("buffer %q: %w", name, err)
	}
	b.memory = mem
	if res := vk.BindBufferMemory(d.logical, b.handle, b.memory, 0); res != vk.Success {
		b.Destroy()
		return nil, fmt.Errorf("buffer %q: vkBindBufferMemory failed with %s", name, VulkanResultString(res, true))
	}

	var ptr unsafe.Pointer
	if res := vk.MapMemory(d.logical, b.memory, 0, vk.DeviceSize(size), 0, &ptr); res != vk.Success {
		b.Destroy()
		return nil, fmt.Errorf("buffer %q: vkMapMemory failed with %s", name, VulkanResultString(res, true))
	}
	b.data = mapped(ptr, size)
	return b, nil
}

type Geometry struct {
	name     string
	vertices *Buffer
	indices  *Buffer
	vertexN  uint32
	indexN   uint32
}

func (g *Geometry) Name() string        { return g.name }
func (g *Geometry) VertexCount() uint32 { return g.vertexN }
func (g *Geometry) IndexCount() uint32  { return g.indexN }

func (g *Geometry) Destroy() {
	if g.vertices != nil {
		g.vertices.Destroy()
		g.vertices = nil
	}
	if g.indices != nil {
		g.indices.Destroy()
		g.indices = nil
	}
}

func (d *Device) CreateGeometry(desc gpu.GeometryDesc) (gpu.Geometry, error) {
	if len(desc.Vertices) == 0 || len(desc.Vertices)%gpu.VertexStride != 0 {
		return nil, fmt.Errorf("geometry %q: %d floats is not a whole number of vertices", desc.Name, len(desc.Vertices))
	}
	g := &Geometry{
		name:    desc.Name,
		vertexN: uint32(len(desc.Vertices) / gpu.VertexStride),
		indexN:  uint32(len(desc.Indices)),
	}

	vb, err := d.createBuffer(desc.Name+"_vertices", len(desc.Vertices)*4, vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit))
	if err != nil {
		return nil, err
	}
	g.vertices = vb
	for i, v := range desc.Vertices {
		binary.LittleEndian.PutUint32(vb.data[i*4:], math.Float32bits(v))
	}

	if len(desc.Indices) > 0 {
		ib, err := d.createBuffer(desc.Name+"_indices", len(desc.Indices)*4, vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit))
		if err != nil {
			g.Destroy()
			return nil, err
		}
		g.indices = ib
		for i, idx := range desc.Indices {
			binary.LittleEndian.PutUint32(ib.data[i*4:], idx)
		}
	}
	return g, nil
}
