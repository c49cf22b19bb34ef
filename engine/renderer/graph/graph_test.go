package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/frame"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu/headless"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/passes"
)

const frames = 2

func newResources(t *testing.T) (*headless.Device, *passes.Resources) {
	d := headless.New(headless.DefaultConfig())
	settings := metadata.DefaultSettings()
	res := passes.NewResources(d, &settings, nil, nil)
	require.NoError(t, res.Initialize())
	return d, res
}

func effect(name string, inputs ...string) *passes.PostProcess {
	return &passes.PostProcess{
		Inputs:   inputs,
		Fragment: name,
		Output:   passes.AttachmentDesc{Name: "out", Format: gpu.FormatRGBA8Unorm},
	}
}

func add(t *testing.T, g *Graph, res *passes.Resources, name string, kind passes.Kind) *passes.Pass {
	p := passes.New(name, kind, res)
	require.NoError(t, g.Add(p))
	return p
}

// chain builds A -> B -> C where C falls back to black without B.
func chain(t *testing.T, res *passes.Resources, onInactive OnInactive) (*Graph, *passes.Pass, *passes.Pass, *passes.Pass) {
	g := New(res)
	a := add(t, g, res, "a", effect("a"))
	b := add(t, g, res, "b", effect("b", "src"))
	c := add(t, g, res, "c", effect("c", "src"))
	require.NoError(t, g.Depend(ImageDependency{Consumer: "b", Producer: "a", Indices: []int{0}}))
	require.NoError(t, g.Depend(ImageDependency{
		Consumer:      "c",
		Producer:      "b",
		Indices:       []int{0},
		OnInactive:    onInactive,
		FallbackImage: passes.ResourceBlack,
	}))
	return g, a, b, c
}

// boundImages returns what each slot's descriptor set of p has at binding 0.
func boundImages(t *testing.T, p *passes.Pass) []gpu.Image {
	var out []gpu.Image
	for _, set := range p.DescriptorSets() {
		b, ok := set.(*headless.DescriptorSet).Bound(0)
		require.True(t, ok)
		out = append(out, b.Image)
	}
	return out
}

func render(t *testing.T, d *headless.Device, ring *frame.Ring, g *Graph) headless.Submission {
	f := ring.Current()
	require.NoError(t, f.Wait(time.Second))
	idx, err := d.AcquireNextImage(f.ImageAvailable, time.Second)
	require.NoError(t, err)
	f.ImageIndex = idx
	require.NoError(t, f.Start())
	require.NoError(t, g.Execute(f, &metadata.RenderView{}))
	require.NoError(t, f.End())
	require.NoError(t, f.Submit(d))
	require.NoError(t, d.Present(idx, f.RenderFinished))
	ring.Advance()
	return d.LastSubmission()
}

func newRing(t *testing.T, d *headless.Device, res *passes.Resources) *frame.Ring {
	ring, err := frame.NewRing(d, frame.Config{
		Count:      frames,
		ViewLayout: res.ViewLayout,
		Buffers: []frame.BufferSpec{
			{Name: frame.BufferCamera, Size: metadata.CameraUniformSize, Usage: gpu.BufferUniform, Slot: passes.ViewSlotCamera},
			{Name: frame.BufferLights, Size: metadata.LightsBufferSize, Usage: gpu.BufferStorage, Slot: passes.ViewSlotLights},
			{Name: frame.BufferObjects, Size: metadata.ObjectUniformSize, Usage: gpu.BufferStorage, Slot: passes.ViewSlotObjects},
		},
	})
	require.NoError(t, err)
	return ring
}

func TestConnectSuppliesDeclaredInputCount(t *testing.T) {
	_, res := newResources(t)
	g, _, b, c := chain(t, res, Fallback)
	require.NoError(t, g.Setup(frames))
	defer g.Dispose()

	for _, p := range []*passes.Pass{b, c} {
		assert.True(t, p.Linked())
		assert.Len(t, p.Inputs(), len(p.InputSlots()))
	}
	assert.Same(t, b.Outputs()[0], c.Inputs()[0])
}

func TestDependRejectsProducerAfterConsumer(t *testing.T) {
	_, res := newResources(t)
	g := New(res)
	add(t, g, res, "a", effect("a", "src"))
	add(t, g, res, "b", effect("b"))

	err := g.Depend(ImageDependency{Consumer: "a", Producer: "b", Indices: []int{0}})
	assert.Error(t, err)
	err = g.Depend(ImageDependency{Consumer: "a", Producer: "missing", Indices: []int{0}})
	assert.ErrorIs(t, err, core.ErrUnknownPass)
	err = g.Depend(ImageDependency{Consumer: "a"})
	assert.Error(t, err)
}

func TestSetupFailsOnCountMismatchAndReleasesEverything(t *testing.T) {
	d, res := newResources(t)
	before := d.LiveTotal()

	g := New(res)
	add(t, g, res, "a", effect("a"))
	add(t, g, res, "b", effect("b", "first", "second"))
	require.NoError(t, g.Depend(ImageDependency{Consumer: "b", Producer: "a", Indices: []int{0}}))

	err := g.Setup(frames)
	require.ErrorIs(t, err, core.ErrAttachmentCountMismatch)
	assert.Equal(t, before, d.LiveTotal())
}

func TestSetupFailureNamesThePass(t *testing.T) {
	d, res := newResources(t)
	before := d.LiveTotal()
	d.FailCreate("c_pool", core.ErrUnknown)

	g, _, _, _ := chain(t, res, Fallback)
	err := g.Setup(frames)
	require.ErrorIs(t, err, core.ErrUnknown)
	assert.Contains(t, err.Error(), `"c"`)
	assert.Equal(t, before, d.LiveTotal())
}

func TestDeactivatedProducerFallsBack(t *testing.T) {
	d, res := newResources(t)
	g, _, b, c := chain(t, res, Fallback)
	require.NoError(t, g.Setup(frames))
	defer g.Dispose()
	ring := newRing(t, d, res)
	defer ring.Destroy()

	images := d.LiveImages()
	bImages := b.Outputs()[0].Images

	require.NoError(t, g.SetActive("b", false))
	sub := render(t, d, ring, g)
	assert.Equal(t, []string{"a", "c"}, sub.Passes())
	assert.True(t, c.Active())
	assert.Same(t, res.Black, c.Inputs()[0])
	for _, img := range boundImages(t, c) {
		assert.NotContains(t, bImages, img)
		assert.Same(t, res.Black.Images[0], img)
	}

	require.NoError(t, g.SetActive("b", true))
	sub = render(t, d, ring, g)
	assert.Equal(t, []string{"a", "b", "c"}, sub.Passes())
	assert.Equal(t, bImages, boundImages(t, c))
	assert.Equal(t, images, d.LiveImages())
	assert.Empty(t, d.Violations())
}

func TestDeactivationCascades(t *testing.T) {
	d, res := newResources(t)
	g, _, _, c := chain(t, res, Deactivate)
	e := add(t, g, res, "e", effect("e", "src"))
	require.NoError(t, g.Depend(ImageDependency{Consumer: "e", Producer: "c", Indices: []int{0}, OnInactive: Deactivate}))
	require.NoError(t, g.Setup(frames))
	defer g.Dispose()
	ring := newRing(t, d, res)
	defer ring.Destroy()

	require.NoError(t, g.SetActive("b", false))
	assert.False(t, c.Active())
	assert.True(t, c.Suppressed())
	assert.False(t, e.Active())
	assert.False(t, c.Linked())
	assert.Equal(t, []string{"a"}, render(t, d, ring, g).Passes())

	require.NoError(t, g.SetActive("b", true))
	assert.True(t, c.Active())
	assert.True(t, e.Active())
	assert.Equal(t, []string{"a", "b", "c", "e"}, render(t, d, ring, g).Passes())
	assert.Empty(t, d.Violations())
}

func TestElseChainPicksFirstActiveProducer(t *testing.T) {
	_, res := newResources(t)
	g := New(res)
	add(t, g, res, "hdr", effect("hdr"))
	aa := add(t, g, res, "aa", effect("aa", "src"))
	tm := add(t, g, res, "tonemap", effect("tonemap", "src"))
	require.NoError(t, g.Depend(ImageDependency{Consumer: "aa", Producer: "hdr", Indices: []int{0}}))
	require.NoError(t, g.Depend(ImageDependency{
		Consumer: "tonemap",
		Producer: "aa",
		Indices:  []int{0},
		Else:     &ImageDependency{Producer: "hdr", Indices: []int{0}},
	}))
	require.NoError(t, g.Setup(frames))
	defer g.Dispose()

	assert.Same(t, aa.Outputs()[0], tm.Inputs()[0])

	require.NoError(t, g.SetActive("aa", false))
	hdr, err := g.Pass("hdr")
	require.NoError(t, err)
	assert.Same(t, hdr.Outputs()[0], tm.Inputs()[0])
}

func TestResizeFollowsSurfaceExceptFixedPasses(t *testing.T) {
	d, res := newResources(t)
	g := New(res)
	shadowKind, err := passes.NewShadow(res)
	require.NoError(t, err)
	shadow := add(t, g, res, "shadow", shadowKind)
	a := add(t, g, res, "a", effect("a", "shadow"))
	require.NoError(t, g.Depend(ImageDependency{Consumer: "a", Producer: "shadow", Indices: []int{0}}))
	require.NoError(t, g.Setup(frames))
	defer g.Dispose()

	fixed := shadow.Extent()
	assert.Equal(t, gpu.Extent{Width: 2048, Height: 2048}, fixed)

	before := a.Outputs()[0].Images
	next := gpu.Extent{Width: 800, Height: 600}
	d.Resize(next)
	require.NoError(t, d.RecreateSurface(next))
	require.NoError(t, g.Resize(next))

	assert.Equal(t, next, a.Extent())
	assert.Equal(t, next, a.Outputs()[0].Images[0].Extent())
	assert.Equal(t, fixed, shadow.Extent())
	for _, img := range before {
		assert.True(t, img.(*headless.Image).Destroyed())
	}
	assert.Same(t, shadow.Outputs()[0], a.Inputs()[0])
}

func TestAttachmentLookup(t *testing.T) {
	_, res := newResources(t)
	g, _, b, _ := chain(t, res, Fallback)
	require.NoError(t, g.Setup(frames))
	defer g.Dispose()

	att, err := g.Attachment("b.out")
	require.NoError(t, err)
	assert.Same(t, b.Outputs()[0], att)

	_, err = g.Attachment("b.missing")
	assert.ErrorIs(t, err, core.ErrUnknownAttachment)
}

func TestDisposeReleasesPassResources(t *testing.T) {
	d, res := newResources(t)
	before := d.LiveTotal()
	g, _, _, _ := chain(t, res, Fallback)
	require.NoError(t, g.Setup(frames))
	assert.Greater(t, d.LiveTotal(), before)

	g.Dispose()
	assert.Equal(t, before, d.LiveTotal())
	for _, p := range g.Passes() {
		assert.Equal(t, passes.StateDisposed, p.State())
	}
}
