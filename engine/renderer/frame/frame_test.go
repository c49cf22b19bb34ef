package frame

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu/headless"
)

func testConfig(t *testing.T, d *headless.Device, count int) Config {
	layout, err := d.CreateDescriptorLayout("view", []gpu.LayoutBinding{{Slot: 0, Kind: gpu.BindingBuffer}})
	require.NoError(t, err)
	return Config{
		Count:      count,
		ViewLayout: layout,
		Buffers: []BufferSpec{
			{Name: "camera", Size: 64, Usage: gpu.BufferUniform, Slot: 0},
			{Name: "overlay", Size: 64, Usage: gpu.BufferVertex, Slot: -1},
		},
	}
}

func TestRingAdvanceWraps(t *testing.T) {
	d := headless.New(headless.Config{})
	r, err := NewRing(d, testConfig(t, d, 3))
	require.NoError(t, err)

	for i := 0; i < 7; i++ {
		assert.Equal(t, i%3, r.Index())
		assert.Equal(t, i%3, r.Current().Index)
		r.Advance()
	}
	assert.Equal(t, 0, r.Previous().Index)
}

func TestFrameLifecycle(t *testing.T) {
	d := headless.New(headless.Config{})
	f, err := New(d, 0, testConfig(t, d, 1))
	require.NoError(t, err)
	require.NotNil(t, f.Buffer("camera"))
	assert.Nil(t, f.Buffer("lights"))

	require.NoError(t, f.Wait(time.Second))
	_, err = d.AcquireNextImage(f.ImageAvailable, time.Second)
	require.NoError(t, err)
	require.NoError(t, f.Start())
	assert.Error(t, f.Submit(d))
	require.NoError(t, f.End())
	require.NoError(t, f.Submit(d))
	require.NoError(t, f.Wait(time.Second))
	assert.Empty(t, d.Violations())
}

func TestStartWithoutSubmitTimesOut(t *testing.T) {
	d := headless.New(headless.Config{})
	f, err := New(d, 0, testConfig(t, d, 1))
	require.NoError(t, err)

	require.NoError(t, f.Start())
	require.NoError(t, f.End())
	err = f.Wait(time.Millisecond)
	assert.True(t, errors.Is(err, core.ErrDeviceTimeout))
}

func TestRingDestroyReleasesEverything(t *testing.T) {
	d := headless.New(headless.Config{})
	cfg := testConfig(t, d, 2)
	before := d.LiveTotal()
	r, err := NewRing(d, cfg)
	require.NoError(t, err)
	assert.Greater(t, d.LiveTotal(), before)
	r.Destroy()
	assert.Equal(t, before, d.LiveTotal())
}

func TestRingCreationFailureCleansUp(t *testing.T) {
	d := headless.New(headless.Config{})
	cfg := testConfig(t, d, 3)
	before := d.LiveTotal()
	d.FailCreate("frame_2", errors.New("out of memory"))
	_, err := NewRing(d, cfg)
	assert.ErrorContains(t, err, "frame 2")
	assert.Equal(t, before, d.LiveTotal())
}
