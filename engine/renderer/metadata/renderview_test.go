package metadata

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func readF32(b []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
}

func TestCameraEncodeLayout(t *testing.T) {
	c := CameraUniform{
		View:       mgl32.Translate3D(1, 2, 3),
		Projection: mgl32.Ident4(),
		Position:   mgl32.Vec3{4, 5, 6},
		Near:       0.1,
		Far:        100,
	}
	buf := make([]byte, CameraUniformSize)
	c.Encode(buf)

	// translation lives in the fourth column
	assert.Equal(t, float32(1), readF32(buf, 12*4))
	assert.Equal(t, float32(4), readF32(buf, 256))
	assert.Equal(t, float32(1), readF32(buf, 268))
	assert.InDelta(t, 0.1, readF32(buf, 272), 1e-6)
	assert.Equal(t, float32(100), readF32(buf, 276))
}

func TestEncodeLightsIsBounded(t *testing.T) {
	lights := make([]LightUniform, MaxLights+4)
	buf := make([]byte, LightsBufferSize)
	n := EncodeLights(buf, lights)
	assert.Equal(t, MaxLights, n)
	assert.Equal(t, uint32(MaxLights), binary.LittleEndian.Uint32(buf))
}

func TestEncodeObjectsFlags(t *testing.T) {
	objs := []ObjectUniform{
		{Model: mgl32.Ident4(), Flags: FlagCastShadow | FlagSelected},
		{Model: mgl32.Ident4(), Flags: FlagFog},
	}
	buf := make([]byte, ObjectUniformSize)
	n := EncodeObjects(buf, objs)
	assert.Equal(t, 1, n)
	assert.Equal(t, uint32(FlagCastShadow|FlagSelected), binary.LittleEndian.Uint32(buf[64:]))
}
