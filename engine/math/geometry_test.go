package math

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

// frontFacing reports whether every triangle winds counter clockwise when
// seen from the side its normal points to.
func frontFacing(c *GeometryConfig) bool {
	for i := 0; i+2 < len(c.Indices); i += 3 {
		a := c.Vertices[c.Indices[i]]
		b := c.Vertices[c.Indices[i+1]]
		d := c.Vertices[c.Indices[i+2]]
		face := b.Position.Sub(a.Position).Cross(d.Position.Sub(a.Position))
		if face.Dot(a.Normal) <= 0 {
			return false
		}
	}
	return true
}

func TestGenerateCubeConfig(t *testing.T) {
	c := GenerateCubeConfig(2, 4, 6, 1, 1, "box")
	assert.Len(t, c.Vertices, 24)
	assert.Len(t, c.Indices, 36)
	assert.True(t, frontFacing(c))

	for _, v := range c.Vertices {
		assert.InDelta(t, 1, abs(v.Position.X()), 1e-6)
		assert.InDelta(t, 2, abs(v.Position.Y()), 1e-6)
		assert.InDelta(t, 3, abs(v.Position.Z()), 1e-6)
	}
}

func TestGeneratePlaneConfig(t *testing.T) {
	c := GeneratePlaneConfig(10, 10, 2, 3, 4, 4, "ground")
	assert.Len(t, c.Vertices, 2*3*4)
	assert.Len(t, c.Indices, 2*3*6)
	assert.True(t, frontFacing(c))
	for _, v := range c.Vertices {
		assert.Equal(t, mgl32.Vec3{0, 1, 0}, v.Normal)
		assert.Zero(t, v.Position.Y())
	}

	zero := GeneratePlaneConfig(0, 0, 0, 0, 0, 0, "degenerate")
	assert.Len(t, zero.Vertices, 4)
}

func TestGenerateNormalsMatchesWinding(t *testing.T) {
	c := GenerateCubeConfig(1, 1, 1, 1, 1, "box")
	want := make([]mgl32.Vec3, len(c.Vertices))
	for i, v := range c.Vertices {
		want[i] = v.Normal
		c.Vertices[i].Normal = mgl32.Vec3{}
	}
	GeometryGenerateNormals(c.Vertices, c.Indices)
	for i, v := range c.Vertices {
		assert.True(t, v.Normal.ApproxEqual(want[i]), "vertex %d: %v != %v", i, v.Normal, want[i])
	}
}

func TestDeduplicateVertices(t *testing.T) {
	v := Vertex3D{Position: mgl32.Vec3{1, 2, 3}}
	w := Vertex3D{Position: mgl32.Vec3{4, 5, 6}}
	verts, idx := GeometryDeduplicateVertices([]Vertex3D{v, w, v, w}, []uint32{0, 1, 2, 3, 2, 1})
	assert.Len(t, verts, 2)
	assert.Equal(t, []uint32{0, 1, 0, 1, 0, 1}, idx)
}

func TestDescInterleaves(t *testing.T) {
	c := GenerateCubeConfig(1, 1, 1, 1, 1, "box")
	desc := c.Desc()
	require.Len(t, desc.Vertices, 24*gpu.VertexStride)
	assert.Equal(t, "box", desc.Name)
	first := c.Vertices[0]
	assert.Equal(t, first.Position.X(), desc.Vertices[0])
	assert.Equal(t, first.Normal.Z(), desc.Vertices[5])
	assert.Equal(t, first.Texcoord.Y(), desc.Vertices[7])
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 5, Clamp(9, 0, 5))
	assert.Equal(t, float32(-1), Clamp(float32(-3), -1, 1))
}

func abs(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}
