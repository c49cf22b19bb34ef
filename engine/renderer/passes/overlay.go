package passes

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/lumen/engine/assets/loaders"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

// GlyphVertexSize is the byte size of one overlay vertex: xy in NDC, uv.
const GlyphVertexSize = 4 * 4

// LayoutText turns lines of text into two triangles per visible glyph.
// origin is the top left corner in pixels of target.
func LayoutText(font *loaders.BitmapFont, lines []string, origin mgl32.Vec2, target gpu.Extent) []float32 {
	if font == nil || target.Empty() || font.ScaleW == 0 || font.ScaleH == 0 {
		return nil
	}
	w, h := float32(target.Width), float32(target.Height)
	aw, ah := float32(font.ScaleW), float32(font.ScaleH)
	ndc := func(x, y float32) (float32, float32) {
		return x/w*2 - 1, y/h*2 - 1
	}

	var out []float32
	y := origin.Y()
	for _, line := range lines {
		x := origin.X()
		prev := rune(-1)
		for _, r := range line {
			g, ok := font.Glyphs[r]
			if !ok {
				if g, ok = font.Glyphs['?']; !ok {
					continue
				}
			}
			if prev >= 0 {
				x += float32(font.Kerning[[2]rune{prev, r}])
			}
			prev = r
			if g.Width > 0 && g.Height > 0 {
				x0, y0 := ndc(x+float32(g.XOffset), y+float32(g.YOffset))
				x1, y1 := ndc(x+float32(g.XOffset+g.Width), y+float32(g.YOffset+g.Height))
				u0, v0 := float32(g.X)/aw, float32(g.Y)/ah
				u1, v1 := float32(g.X+g.Width)/aw, float32(g.Y+g.Height)/ah
				out = append(out,
					x0, y0, u0, v0,
					x1, y0, u1, v0,
					x1, y1, u1, v1,
					x0, y0, u0, v0,
					x1, y1, u1, v1,
					x0, y1, u0, v1,
				)
			}
			x += float32(g.XAdvance)
		}
		y += float32(font.LineHeight)
	}
	return out
}

// writeVertices copies whole glyphs into dst and returns the vertex count.
func writeVertices(dst []byte, verts []float32) uint32 {
	const glyphBytes = 6 * GlyphVertexSize
	n := min(len(verts)*4, len(dst)/glyphBytes*glyphBytes)
	for i := 0; i < n/4; i++ {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(verts[i]))
	}
	return uint32(n / GlyphVertexSize)
}
