package components

import (
	"github.com/go-gl/mathgl/mgl32"
)

// pitch is clamped just short of straight up/down to avoid gimbal lock
const pitchLimit = float32(1.55334306) // 89 degrees

/**
 * Camera holds a position and euler rotation (pitch, yaw, roll) and
 * lazily rebuilds its view matrix when either changes.
 */
type Camera struct {
	position      mgl32.Vec3
	eulerRotation mgl32.Vec3
	fov           float32
	near          float32
	far           float32
	/** Set whenever position or rotation change. */
	isDirty    bool
	viewMatrix mgl32.Mat4
}

func NewCamera() *Camera {
	camera := &Camera{}
	camera.Reset()
	return camera
}

func (c *Camera) Reset() {
	c.eulerRotation = mgl32.Vec3{}
	c.position = mgl32.Vec3{}
	c.fov = mgl32.DegToRad(45)
	c.near = 0.1
	c.far = 1000
	c.isDirty = false
	c.viewMatrix = mgl32.Ident4()
}

func (c *Camera) Position() mgl32.Vec3 {
	return c.position
}

func (c *Camera) SetPosition(position mgl32.Vec3) {
	c.position = position
	c.isDirty = true
}

func (c *Camera) EulerRotation() mgl32.Vec3 {
	return c.eulerRotation
}

func (c *Camera) SetEulerRotation(rotation mgl32.Vec3) {
	c.eulerRotation = rotation
	c.isDirty = true
}

func (c *Camera) SetClip(near, far float32) {
	c.near = near
	c.far = far
}

func (c *Camera) SetFOV(radians float32) {
	c.fov = radians
}

func (c *Camera) Near() float32 { return c.near }

func (c *Camera) Far() float32 { return c.far }

func (c *Camera) View() mgl32.Mat4 {
	if c.isDirty {
		rotation := mgl32.HomogRotate3DX(c.eulerRotation.X()).
			Mul4(mgl32.HomogRotate3DY(c.eulerRotation.Y())).
			Mul4(mgl32.HomogRotate3DZ(c.eulerRotation.Z()))
		translation := mgl32.Translate3D(c.position.X(), c.position.Y(), c.position.Z())

		c.viewMatrix = translation.Mul4(rotation).Inv()
		c.isDirty = false
	}
	return c.viewMatrix
}

// Projection is a right handed perspective projection for the given
// aspect ratio.
func (c *Camera) Projection(aspect float32) mgl32.Mat4 {
	return mgl32.Perspective(c.fov, aspect, c.near, c.far)
}

func (c *Camera) Forward() mgl32.Vec3 {
	inv := c.View().Inv()
	return inv.Mul4x1(mgl32.Vec4{0, 0, -1, 0}).Vec3().Normalize()
}

func (c *Camera) Right() mgl32.Vec3 {
	inv := c.View().Inv()
	return inv.Mul4x1(mgl32.Vec4{1, 0, 0, 0}).Vec3().Normalize()
}

func (c *Camera) MoveForward(amount float32) {
	c.SetPosition(c.position.Add(c.Forward().Mul(amount)))
}

func (c *Camera) MoveBackward(amount float32) {
	c.SetPosition(c.position.Sub(c.Forward().Mul(amount)))
}

func (c *Camera) MoveLeft(amount float32) {
	c.SetPosition(c.position.Sub(c.Right().Mul(amount)))
}

func (c *Camera) MoveRight(amount float32) {
	c.SetPosition(c.position.Add(c.Right().Mul(amount)))
}

func (c *Camera) MoveUp(amount float32) {
	c.SetPosition(c.position.Add(mgl32.Vec3{0, amount, 0}))
}

func (c *Camera) Yaw(amount float32) {
	c.eulerRotation[1] += amount
	c.isDirty = true
}

func (c *Camera) Pitch(amount float32) {
	c.eulerRotation[0] = mgl32.Clamp(c.eulerRotation[0]+amount, -pitchLimit, pitchLimit)
	c.isDirty = true
}
