package headless

import (
	"errors"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

func TestAcquireSubmitPresent(t *testing.T) {
	d := New(Config{})
	avail, err := d.CreateSemaphore("available")
	require.NoError(t, err)
	done, err := d.CreateSemaphore("done")
	require.NoError(t, err)
	fence, err := d.CreateFence(false)
	require.NoError(t, err)
	cmd, err := d.CreateCommandStream("cmd")
	require.NoError(t, err)

	idx, err := d.AcquireNextImage(avail, time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), idx)

	require.NoError(t, cmd.Begin())
	require.NoError(t, cmd.End())
	require.NoError(t, d.Submit(cmd, avail, done, fence))
	require.NoError(t, fence.Wait(time.Second))
	require.NoError(t, d.Present(idx, done))

	assert.Empty(t, d.Violations())
	assert.Equal(t, []uint32{0}, d.Presented())
}

func TestUnsignaledFenceTimesOut(t *testing.T) {
	d := New(Config{})
	fence, err := d.CreateFence(false)
	require.NoError(t, err)
	assert.ErrorIs(t, fence.Wait(time.Millisecond), core.ErrDeviceTimeout)
}

func TestDoubleAcquireWithoutSubmitIsAViolation(t *testing.T) {
	d := New(Config{})
	sem, err := d.CreateSemaphore("available")
	require.NoError(t, err)
	_, err = d.AcquireNextImage(sem, time.Second)
	require.NoError(t, err)
	_, err = d.AcquireNextImage(sem, time.Second)
	require.NoError(t, err)
	assert.Len(t, d.Violations(), 1)
}

func TestResizeMakesSurfaceStale(t *testing.T) {
	d := New(Config{})
	sem, err := d.CreateSemaphore("available")
	require.NoError(t, err)

	old := d.Surface().Images
	d.Resize(gpu.Extent{Width: 800, Height: 600})
	_, err = d.AcquireNextImage(sem, time.Second)
	assert.True(t, errors.Is(err, gpu.ErrSurfaceStale))

	require.NoError(t, d.RecreateSurface(gpu.Extent{Width: 1, Height: 1}))
	assert.Equal(t, gpu.Extent{Width: 800, Height: 600}, d.Surface().Extent)
	assert.True(t, old[0].(*Image).Destroyed())

	_, err = d.AcquireNextImage(sem, time.Second)
	assert.NoError(t, err)
}

func TestLeakAccounting(t *testing.T) {
	d := New(Config{})
	img, err := d.CreateImage(gpu.ImageDesc{Name: "a", Extent: gpu.Extent{Width: 4, Height: 4}, Format: gpu.FormatRGBA8Unorm})
	require.NoError(t, err)
	assert.Equal(t, 1, d.LiveImages())
	img.Destroy()
	assert.Equal(t, 0, d.LiveImages())
	img.Destroy()
	assert.Len(t, d.Violations(), 1)
}

func TestFailCreate(t *testing.T) {
	d := New(Config{})
	d.FailCreate("bloom", errors.New("out of memory"))
	_, err := d.CreateImage(gpu.ImageDesc{Name: "bloom_color", Extent: gpu.Extent{Width: 4, Height: 4}})
	assert.ErrorContains(t, err, "out of memory")
	assert.Equal(t, 0, d.LiveImages())
}

func TestClearAndRead(t *testing.T) {
	d := New(Config{})
	ext := gpu.Extent{Width: 2, Height: 2}
	img, err := d.CreateImage(gpu.ImageDesc{Name: "c", Extent: ext, Format: gpu.FormatRGBA8Unorm})
	require.NoError(t, err)
	rp, err := d.CreateRenderPass(gpu.RenderPassDesc{Name: "p", Attachments: []gpu.RenderPassAttachment{{Format: gpu.FormatRGBA8Unorm}}})
	require.NoError(t, err)
	fb, err := d.CreateFramebuffer(gpu.FramebufferDesc{Name: "fb", RenderPass: rp, Attachments: []gpu.Image{img}, Extent: ext})
	require.NoError(t, err)
	cmd, err := d.CreateCommandStream("cmd")
	require.NoError(t, err)

	require.NoError(t, cmd.Begin())
	cmd.BeginRenderPass(rp, fb, []gpu.ClearValue{{Color: mgl32.Vec4{1, 0, 0, 1}}})
	cmd.EndRenderPass()
	require.NoError(t, cmd.End())

	out, err := d.ReadImage(img)
	require.NoError(t, err)
	assert.Equal(t, []uint8{255, 0, 0, 255}, out.Pix[:4])
}

func TestDescriptorRejectsDestroyedImage(t *testing.T) {
	d := New(Config{})
	layout, err := d.CreateDescriptorLayout("l", []gpu.LayoutBinding{{Slot: 0, Kind: gpu.BindingImage}})
	require.NoError(t, err)
	pool, err := d.CreateDescriptorPool("p", 1)
	require.NoError(t, err)
	set, err := pool.Allocate(layout)
	require.NoError(t, err)
	_, err = pool.Allocate(layout)
	assert.ErrorContains(t, err, "exhausted")

	img, err := d.CreateImage(gpu.ImageDesc{Name: "x", Extent: gpu.Extent{Width: 1, Height: 1}})
	require.NoError(t, err)
	img.Destroy()
	assert.ErrorContains(t, d.UpdateDescriptorSet(set, gpu.ImageBinding(0, img)), "destroyed")
}
