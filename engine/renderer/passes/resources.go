package passes

import (
	"fmt"
	"image"

	"github.com/spaghettifunk/lumen/engine/assets/loaders"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

const (
	ResourceWhite      = "white"
	ResourceBlack      = "black"
	ResourceFlatNormal = "flat_normal"
	ResourceFontAtlas  = "font_atlas"
)

// View set bindings shared by every pass at set 0.
const (
	ViewSlotCamera = iota
	ViewSlotLights
	ViewSlotObjects
)

// ShaderSource resolves compiled shader stages.
type ShaderSource interface {
	Load(stage gpu.ShaderStage) ([]byte, error)
}

// Resources is the state shared by all passes of one renderer: the view
// set layout, fallback images and optional device features. It lives
// between Initialize and Shutdown of that renderer.
type Resources struct {
	Device   gpu.Device
	Settings *metadata.Settings
	Shaders  ShaderSource
	Font     *loaders.BitmapFont

	ViewLayout gpu.DescriptorLayout

	White      *Attachment
	Black      *Attachment
	FlatNormal *Attachment
	FontAtlas  *Attachment

	Accel gpu.AccelerationStructure
}

func NewResources(device gpu.Device, settings *metadata.Settings, shaders ShaderSource, font *loaders.BitmapFont) *Resources {
	return &Resources{
		Device:   device,
		Settings: settings,
		Shaders:  shaders,
		Font:     font,
	}
}

func (r *Resources) Initialize() error {
	layout, err := r.Device.CreateDescriptorLayout("view", []gpu.LayoutBinding{
		{Slot: ViewSlotCamera, Kind: gpu.BindingBuffer},
		{Slot: ViewSlotLights, Kind: gpu.BindingBuffer},
		{Slot: ViewSlotObjects, Kind: gpu.BindingBuffer},
	})
	if err != nil {
		return fmt.Errorf("resources: create view layout: %w", err)
	}
	r.ViewLayout = layout

	fallbacks := []struct {
		name  string
		color [4]byte
		dst   **Attachment
	}{
		{ResourceWhite, [4]byte{255, 255, 255, 255}, &r.White},
		{ResourceBlack, [4]byte{0, 0, 0, 255}, &r.Black},
		{ResourceFlatNormal, [4]byte{128, 128, 255, 255}, &r.FlatNormal},
	}
	for _, fb := range fallbacks {
		att, err := r.solid(fb.name, fb.color)
		if err != nil {
			r.Shutdown()
			return err
		}
		*fb.dst = att
	}

	if r.Font != nil && r.Font.Atlas != nil {
		att, err := r.upload(ResourceFontAtlas, r.Font.Atlas)
		if err != nil {
			r.Shutdown()
			return err
		}
		r.FontAtlas = att
	}

	if r.Device.Features().RayTracing {
		as, err := r.Device.CreateAccelerationStructure("scene_tlas", r.Settings.MaxObjects)
		if err != nil {
			r.Shutdown()
			return fmt.Errorf("resources: create acceleration structure: %w", err)
		}
		r.Accel = as
	}
	return nil
}

func (r *Resources) solid(name string, c [4]byte) (*Attachment, error) {
	img, err := r.Device.CreateImage(gpu.ImageDesc{
		Name:   name,
		Extent: gpu.Extent{Width: 1, Height: 1},
		Format: gpu.FormatRGBA8Unorm,
		Usage:  gpu.UsageSampled | gpu.UsageTransferDst,
		Data:   c[:],
	})
	if err != nil {
		return nil, fmt.Errorf("resources: create fallback %q: %w", name, err)
	}
	return &Attachment{Desc: AttachmentDesc{Name: name, Format: gpu.FormatRGBA8Unorm}, Pass: "resources", Images: []gpu.Image{img}}, nil
}

func (r *Resources) upload(name string, src *image.RGBA) (*Attachment, error) {
	b := src.Bounds()
	img, err := r.Device.CreateImage(gpu.ImageDesc{
		Name:   name,
		Extent: gpu.Extent{Width: uint32(b.Dx()), Height: uint32(b.Dy())},
		Format: gpu.FormatRGBA8Unorm,
		Usage:  gpu.UsageSampled | gpu.UsageTransferDst,
		Data:   src.Pix,
	})
	if err != nil {
		return nil, fmt.Errorf("resources: upload %q: %w", name, err)
	}
	return &Attachment{Desc: AttachmentDesc{Name: name, Format: gpu.FormatRGBA8Unorm}, Pass: "resources", Images: []gpu.Image{img}}, nil
}

// Image returns a named resource image for dependencies that read a
// fallback instead of a pass output.
func (r *Resources) Image(name string) (*Attachment, error) {
	var att *Attachment
	switch name {
	case ResourceWhite:
		att = r.White
	case ResourceBlack:
		att = r.Black
	case ResourceFlatNormal:
		att = r.FlatNormal
	case ResourceFontAtlas:
		att = r.FontAtlas
	}
	if att == nil {
		return nil, fmt.Errorf("resource image %q: %w", name, core.ErrUnknownAttachment)
	}
	return att, nil
}

// Stage fills in the code of a shader stage when a source is configured.
func (r *Resources) Stage(s gpu.ShaderStage) (gpu.ShaderStage, error) {
	if r.Shaders == nil {
		return s, nil
	}
	code, err := r.Shaders.Load(s)
	if err != nil {
		return s, fmt.Errorf("load shader %s: %w", s.FileName(), err)
	}
	s.Code = code
	return s, nil
}

// Shutdown destroys everything Initialize created. The device must be
// idle.
func (r *Resources) Shutdown() {
	if r.Accel != nil {
		r.Accel.Destroy()
		r.Accel = nil
	}
	for _, att := range []**Attachment{&r.FontAtlas, &r.FlatNormal, &r.Black, &r.White} {
		if *att != nil {
			(*att).destroy()
			*att = nil
		}
	}
	if r.ViewLayout != nil {
		r.ViewLayout.Destroy()
		r.ViewLayout = nil
	}
}
