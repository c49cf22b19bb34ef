package gpu

import (
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

type ImageUsage uint8

const (
	UsageColorAttachment ImageUsage = 1 << iota
	UsageDepthAttachment
	UsageSampled
	UsageTransferSrc
	UsageTransferDst
	UsageStorage
)

func (u ImageUsage) Has(flag ImageUsage) bool {
	return u&flag != 0
}

type ImageDesc struct {
	Name   string
	Extent Extent
	Format Format
	Usage  ImageUsage
	// Data, when set, is uploaded once after creation. It must hold
	// Extent.Width*Extent.Height*Format.BytesPerPixel() bytes.
	Data []byte
}

type Image interface {
	Name() string
	Extent() Extent
	Format() Format
	Destroy()
}

type BufferUsage uint8

const (
	BufferUniform BufferUsage = iota
	BufferStorage
	BufferVertex
	BufferIndex
)

type BufferDesc struct {
	Name  string
	Size  int
	Usage BufferUsage
}

// Buffer is host visible and persistently mapped.
type Buffer interface {
	Name() string
	Size() int
	Mapped() []byte
	Destroy()
}

// GeometryDesc carries interleaved vertices (position, normal, uv) and
// optional 32-bit indices.
type GeometryDesc struct {
	Name     string
	Vertices []float32
	Indices  []uint32
}

// VertexStride is the float count of one interleaved mesh vertex.
const VertexStride = 8

type Geometry interface {
	Name() string
	VertexCount() uint32
	IndexCount() uint32
	Destroy()
}

type LoadOp uint8

const (
	LoadOpClear LoadOp = iota
	LoadOpLoad
	LoadOpDontCare
)

type StoreOp uint8

const (
	StoreOpStore StoreOp = iota
	StoreOpDontCare
)

type RenderPassAttachment struct {
	Format Format
	Load   LoadOp
	Store  StoreOp
	// Present marks an attachment that ends up on screen instead of being
	// sampled by a later pass.
	Present bool
}

type RenderPassDesc struct {
	Name        string
	Attachments []RenderPassAttachment
}

type RenderPass interface {
	Name() string
	Destroy()
}

type FramebufferDesc struct {
	Name        string
	RenderPass  RenderPass
	Attachments []Image
	Extent      Extent
}

type Framebuffer interface {
	Extent() Extent
	Destroy()
}

type ShaderStageKind uint8

const (
	StageVertex ShaderStageKind = iota
	StageFragment
	StageCompute
)

func (k ShaderStageKind) String() string {
	switch k {
	case StageVertex:
		return "vert"
	case StageFragment:
		return "frag"
	case StageCompute:
		return "comp"
	}
	return "unknown"
}

// ShaderStage names a compiled shader. Code holds SPIR-V and may be nil
// for devices that do not execute shaders.
type ShaderStage struct {
	Kind ShaderStageKind
	Name string
	Code []byte
}

// FileName is the conventional on-disk name of the compiled stage.
func (s ShaderStage) FileName() string {
	return s.Name + "." + s.Kind.String() + ".spv"
}

type VertexLayout uint8

const (
	// VertexNone draws without vertex buffers (fullscreen triangle).
	VertexNone VertexLayout = iota
	// VertexMesh is position, normal, uv as in GeometryDesc.
	VertexMesh
	// VertexGlyph is position xy, uv for overlay text.
	VertexGlyph
)

type PipelineDesc struct {
	Name             string
	RenderPass       RenderPass
	Stages           []ShaderStage
	Layouts          []DescriptorLayout
	Vertex           VertexLayout
	ColorAttachments int
	DepthTest        bool
	DepthWrite       bool
	Blend            bool
	PushConstantSize uint32
	Compute          bool
}

type Pipeline interface {
	Name() string
	Destroy()
}

type AccelerationStructure interface {
	Name() string
	Destroy()
}

type Fence interface {
	// Wait blocks until the fence is signaled or the timeout elapses, in
	// which case core.ErrDeviceTimeout is returned.
	Wait(timeout time.Duration) error
	Reset() error
	Destroy()
}

type Semaphore interface {
	Destroy()
}

type ClearValue struct {
	Color   mgl32.Vec4
	Depth   float32
	Stencil uint32
}
