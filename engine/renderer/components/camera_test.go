package components

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestCameraViewIsInverseOfTransform(t *testing.T) {
	c := NewCamera()
	c.SetPosition(mgl32.Vec3{0, 0, 10})

	v := c.View()
	p := v.Mul4x1(mgl32.Vec4{0, 0, 10, 1})
	assert.InDelta(t, 0, p.Z(), 1e-5)
	assert.True(t, c.Forward().ApproxEqual(mgl32.Vec3{0, 0, -1}))
}

func TestCameraPitchClamped(t *testing.T) {
	c := NewCamera()
	c.Pitch(10)
	assert.Equal(t, pitchLimit, c.EulerRotation().X())
}

func TestSceneActiveCameraNilWhenUnset(t *testing.T) {
	s := NewScene()
	assert.Nil(t, s.ActiveCamera())
	s.SetCamera(NewCamera())
	assert.NotNil(t, s.ActiveCamera())
}
