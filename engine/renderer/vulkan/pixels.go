package vulkan

import (
	"encoding/binary"
	"fmt"
	"image"
	"math"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

// toRGBA converts tightly packed texels of format f into an 8-bit image.
// Float formats are clamped to [0, 1]; single channel formats become gray.
func toRGBA(f gpu.Format, extent gpu.Extent, data []byte) (*image.RGBA, error) {
	bpp := f.BytesPerPixel()
	n := int(extent.Width) * int(extent.Height)
	if bpp == 0 {
		return nil, fmt.Errorf("cannot read back %s images", f)
	}
	if len(data) < n*bpp {
		return nil, fmt.Errorf("readback of %dx%d: got %d bytes, need %d", extent.Width, extent.Height, len(data), n*bpp)
	}
	out := image.NewRGBA(image.Rect(0, 0, int(extent.Width), int(extent.Height)))
	le := binary.LittleEndian

	for p := 0; p < n; p++ {
		src := data[p*bpp : (p+1)*bpp]
		dst := out.Pix[p*4 : p*4+4]
		switch f {
		case gpu.FormatRGBA8Unorm, gpu.FormatRGBA8SRGB:
			copy(dst, src)
		case gpu.FormatBGRA8Unorm, gpu.FormatBGRA8SRGB:
			dst[0], dst[1], dst[2], dst[3] = src[2], src[1], src[0], src[3]
		case gpu.FormatR8Unorm:
			gray(dst, src[0])
		case gpu.FormatR16Float:
			gray(dst, unorm8(halfToFloat(le.Uint16(src))))
		case gpu.FormatRGBA16Float:
			for c := 0; c < 4; c++ {
				dst[c] = unorm8(halfToFloat(le.Uint16(src[c*2:])))
			}
		case gpu.FormatRGBA32Float:
			for c := 0; c < 4; c++ {
				dst[c] = unorm8(math.Float32frombits(le.Uint32(src[c*4:])))
			}
		case gpu.FormatD32Float:
			gray(dst, unorm8(math.Float32frombits(le.Uint32(src))))
		case gpu.FormatD24UnormS8:
			depth := le.Uint32(src) & 0xFFFFFF
			gray(dst, unorm8(float32(depth)/0xFFFFFF))
		}
	}
	return out, nil
}

func gray(dst []byte, v byte) {
	dst[0], dst[1], dst[2], dst[3] = v, v, v, 0xFF
}

func unorm8(v float32) byte {
	if v != v || v <= 0 {
		return 0
	}
	if v >= 1 {
		return 0xFF
	}
	return byte(v*255 + 0.5)
}

// halfToFloat decodes an IEEE 754 binary16 value.
func halfToFloat(h uint16) float32 {
	sign := uint32(h>>15) << 31
	exp := uint32(h>>10) & 0x1F
	mant := uint32(h) & 0x3FF

	switch exp {
	case 0:
		if mant == 0 {
			return math.Float32frombits(sign)
		}
		// subnormal
		f := float32(mant) / (1 << 24)
		if sign != 0 {
			return -f
		}
		return f
	case 0x1F:
		return math.Float32frombits(sign | 0x7F800000 | mant<<13)
	}
	return math.Float32frombits(sign | (exp+112)<<23 | mant<<13)
}
