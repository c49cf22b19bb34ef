package gpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeLayout []LayoutBinding

func (l fakeLayout) Bindings() []LayoutBinding { return l }
func (l fakeLayout) Destroy()                  {}

type fakeImage struct{}

func (fakeImage) Name() string   { return "img" }
func (fakeImage) Extent() Extent { return Extent{1, 1} }
func (fakeImage) Format() Format { return FormatRGBA8Unorm }
func (fakeImage) Destroy()       {}

func TestBindingValidate(t *testing.T) {
	layout := fakeLayout{
		{Slot: 0, Kind: BindingImage},
		{Slot: 1, Kind: BindingAccelerationStructure},
	}

	assert.NoError(t, ImageBinding(0, fakeImage{}).Validate(layout))
	assert.ErrorContains(t, ImageBinding(0, nil).Validate(layout), "nil image")
	assert.ErrorContains(t, ImageBinding(1, fakeImage{}).Validate(layout), "expects acceleration_structure")
	assert.ErrorContains(t, BufferBinding(4, nil).Validate(layout), "not declared")
}

func TestExtentScale(t *testing.T) {
	e := Extent{Width: 1280, Height: 720}
	assert.Equal(t, e, e.Scale(0))
	assert.Equal(t, Extent{Width: 640, Height: 360}, e.Scale(0.5))
	assert.Equal(t, Extent{Width: 1, Height: 1}, Extent{Width: 1, Height: 1}.Scale(0.25))
}

func TestParseFormat(t *testing.T) {
	for f := range formatNames {
		got, err := ParseFormat(f.String())
		assert.NoError(t, err)
		assert.Equal(t, f, got)
	}
	_, err := ParseFormat("rgb565")
	assert.Error(t, err)
}
