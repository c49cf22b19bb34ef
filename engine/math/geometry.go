package math

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

// Vertex3D matches the interleaved layout of gpu.GeometryDesc.
type Vertex3D struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	Texcoord mgl32.Vec2
}

// GeometryConfig is generated geometry before upload.
type GeometryConfig struct {
	Name     string
	Vertices []Vertex3D
	Indices  []uint32
}

// Desc interleaves the vertices for Device.CreateGeometry.
func (c *GeometryConfig) Desc() gpu.GeometryDesc {
	out := make([]float32, 0, len(c.Vertices)*gpu.VertexStride)
	for _, v := range c.Vertices {
		out = append(out,
			v.Position[0], v.Position[1], v.Position[2],
			v.Normal[0], v.Normal[1], v.Normal[2],
			v.Texcoord[0], v.Texcoord[1],
		)
	}
	return gpu.GeometryDesc{
		Name:     c.Name,
		Vertices: out,
		Indices:  append([]uint32(nil), c.Indices...),
	}
}

// quad appends one face spanning center±u±v. Triangles wind counter
// clockwise seen from u×v.
func (c *GeometryConfig) quad(center, u, v, normal mgl32.Vec3, uv0, uv1 mgl32.Vec2) {
	base := uint32(len(c.Vertices))
	c.Vertices = append(c.Vertices,
		Vertex3D{Position: center.Sub(u).Sub(v), Normal: normal, Texcoord: uv0},
		Vertex3D{Position: center.Add(u).Add(v), Normal: normal, Texcoord: uv1},
		Vertex3D{Position: center.Sub(u).Add(v), Normal: normal, Texcoord: mgl32.Vec2{uv0[0], uv1[1]}},
		Vertex3D{Position: center.Add(u).Sub(v), Normal: normal, Texcoord: mgl32.Vec2{uv1[0], uv0[1]}},
	)
	c.Indices = append(c.Indices, base+0, base+1, base+2, base+0, base+3, base+1)
}

func nonZero(what string, v float32) float32 {
	if v == 0 {
		core.LogWarn("%s must be nonzero. Defaulting to one.", what)
		return 1
	}
	return v
}

// GeneratePlaneConfig builds a ground plane on XZ facing +Y, split into
// xSegments by zSegments quads.
func GeneratePlaneConfig(width, depth float32, xSegments, zSegments uint32, tileX, tileY float32, name string) *GeometryConfig {
	width = nonZero("Width", width)
	depth = nonZero("Depth", depth)
	tileX = nonZero("tileX", tileX)
	tileY = nonZero("tileY", tileY)
	if xSegments < 1 {
		core.LogWarn("xSegments must be a positive number. Defaulting to one.")
		xSegments = 1
	}
	if zSegments < 1 {
		core.LogWarn("zSegments must be a positive number. Defaulting to one.")
		zSegments = 1
	}

	config := &GeometryConfig{
		Name:     name,
		Vertices: make([]Vertex3D, 0, xSegments*zSegments*4),
		Indices:  make([]uint32, 0, xSegments*zSegments*6),
	}
	segWidth := width / float32(xSegments)
	segDepth := depth / float32(zSegments)
	up := mgl32.Vec3{0, 1, 0}
	u := mgl32.Vec3{segWidth * 0.5, 0, 0}
	v := mgl32.Vec3{0, 0, -segDepth * 0.5}
	for z := uint32(0); z < zSegments; z++ {
		for x := uint32(0); x < xSegments; x++ {
			center := mgl32.Vec3{
				-width*0.5 + (float32(x)+0.5)*segWidth,
				0,
				depth*0.5 - (float32(z)+0.5)*segDepth,
			}
			uv0 := mgl32.Vec2{float32(x) / float32(xSegments) * tileX, float32(z) / float32(zSegments) * tileY}
			uv1 := mgl32.Vec2{float32(x+1) / float32(xSegments) * tileX, float32(z+1) / float32(zSegments) * tileY}
			config.quad(center, u, v, up, uv0, uv1)
		}
	}
	return config
}

// GenerateCubeConfig builds an axis aligned box centred on the origin with
// one quad per side.
func GenerateCubeConfig(width, height, depth, tileX, tileY float32, name string) *GeometryConfig {
	half := mgl32.Vec3{
		nonZero("Width", width) * 0.5,
		nonZero("Height", height) * 0.5,
		nonZero("Depth", depth) * 0.5,
	}
	tile := mgl32.Vec2{nonZero("tileX", tileX), nonZero("tileY", tileY)}

	// normal, u, v with u×v == normal
	sides := [6][3]mgl32.Vec3{
		{{0, 0, 1}, {1, 0, 0}, {0, 1, 0}},   // front
		{{0, 0, -1}, {-1, 0, 0}, {0, 1, 0}}, // back
		{{-1, 0, 0}, {0, 0, 1}, {0, 1, 0}},  // left
		{{1, 0, 0}, {0, 0, -1}, {0, 1, 0}},  // right
		{{0, -1, 0}, {1, 0, 0}, {0, 0, 1}},  // bottom
		{{0, 1, 0}, {1, 0, 0}, {0, 0, -1}},  // top
	}
	config := &GeometryConfig{
		Name:     name,
		Vertices: make([]Vertex3D, 0, 24),
		Indices:  make([]uint32, 0, 36),
	}
	for _, s := range sides {
		n, u, v := s[0], s[1], s[2]
		config.quad(scale(n, half), scale(u, half), scale(v, half), n, mgl32.Vec2{}, tile)
	}
	return config
}

func scale(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}

// GeometryGenerateNormals assigns face normals. Smoothing is left to the
// caller.
func GeometryGenerateNormals(vertices []Vertex3D, indices []uint32) {
	for i := 0; i+2 < len(indices); i += 3 {
		i0, i1, i2 := indices[i], indices[i+1], indices[i+2]
		edge1 := vertices[i1].Position.Sub(vertices[i0].Position)
		edge2 := vertices[i2].Position.Sub(vertices[i0].Position)
		normal := edge1.Cross(edge2).Normalize()

		vertices[i0].Normal = normal
		vertices[i1].Normal = normal
		vertices[i2].Normal = normal
	}
}

// GeometryDeduplicateVertices merges identical vertices and rewrites the
// indices to match.
func GeometryDeduplicateVertices(vertices []Vertex3D, indices []uint32) ([]Vertex3D, []uint32) {
	unique := make([]Vertex3D, 0, len(vertices))
	seen := make(map[Vertex3D]uint32, len(vertices))
	remap := make([]uint32, len(vertices))
	for i, v := range vertices {
		idx, ok := seen[v]
		if !ok {
			idx = uint32(len(unique))
			seen[v] = idx
			unique = append(unique, v)
		}
		remap[i] = idx
	}
	out := make([]uint32, len(indices))
	for i, idx := range indices {
		out[i] = remap[idx]
	}
	core.LogDebug("geometry_deduplicate_vertices: removed %d vertices, orig/now %d/%d.", len(vertices)-len(unique), len(vertices), len(unique))
	return unique, out
}
