package vulkan

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

func TestHalfToFloat(t *testing.T) {
	assert.Equal(t, float32(0), halfToFloat(0x0000))
	assert.Equal(t, float32(1), halfToFloat(0x3C00))
	assert.Equal(t, float32(-2), halfToFloat(0xC000))
	assert.Equal(t, float32(0.5), halfToFloat(0x3800))
	assert.Equal(t, float32(65504), halfToFloat(0x7BFF))
	assert.InDelta(t, 5.96e-8, halfToFloat(0x0001), 1e-10)
	assert.True(t, math.IsInf(float64(halfToFloat(0x7C00)), 1))
	assert.True(t, math.IsInf(float64(halfToFloat(0xFC00)), -1))
	v := halfToFloat(0x7E00)
	assert.True(t, v != v)
}

func TestUnorm8(t *testing.T) {
	assert.Equal(t, byte(0), unorm8(-1))
	assert.Equal(t, byte(0), unorm8(float32(math.NaN())))
	assert.Equal(t, byte(128), unorm8(0.5))
	assert.Equal(t, byte(255), unorm8(3))
}

func TestToRGBA(t *testing.T) {
	extent := gpu.Extent{Width: 2, Height: 1}

	t.Run("bgra swizzle", func(t *testing.T) {
		img, err := toRGBA(gpu.FormatBGRA8Unorm, extent, []byte{1, 2, 3, 4, 5, 6, 7, 8})
		require.NoError(t, err)
		assert.Equal(t, []byte{3, 2, 1, 4, 7, 6, 5, 8}, img.Pix)
	})

	t.Run("half float", func(t *testing.T) {
		data := make([]byte, 16)
		for i, h := range []uint16{0x3C00, 0x3800, 0x0000, 0x3C00, 0xBC00, 0x4000, 0x3C00, 0x3C00} {
			binary.LittleEndian.PutUint16(data[i*2:], h)
		}
		img, err := toRGBA(gpu.FormatRGBA16Float, extent, data)
		require.NoError(t, err)
		assert.Equal(t, []byte{255, 128, 0, 255, 0, 255, 255, 255}, img.Pix)
	})

	t.Run("depth as gray", func(t *testing.T) {
		data := make([]byte, 8)
		binary.LittleEndian.PutUint32(data, math.Float32bits(1))
		binary.LittleEndian.PutUint32(data[4:], math.Float32bits(0))
		img, err := toRGBA(gpu.FormatD32Float, extent, data)
		require.NoError(t, err)
		assert.Equal(t, []byte{255, 255, 255, 255, 0, 0, 0, 255}, img.Pix)
	})

	t.Run("short data", func(t *testing.T) {
		_, err := toRGBA(gpu.FormatRGBA8Unorm, extent, []byte{1, 2, 3})
		assert.ErrorContains(t, err, "got 3 bytes, need 8")
	})
}
