package gpu

import "fmt"

type BindingKind uint8

const (
	BindingImage BindingKind = iota
	BindingBuffer
	BindingAccelerationStructure
)

func (k BindingKind) String() string {
	switch k {
	case BindingImage:
		return "image"
	case BindingBuffer:
		return "buffer"
	case BindingAccelerationStructure:
		return "acceleration_structure"
	}
	return fmt.Sprintf("binding(%d)", uint8(k))
}

type LayoutBinding struct {
	Slot uint32
	Kind BindingKind
	// Compute marks bindings read by compute stages instead of graphics.
	Compute bool
}

type DescriptorLayout interface {
	Bindings() []LayoutBinding
	Destroy()
}

type DescriptorPool interface {
	Allocate(layout DescriptorLayout) (DescriptorSet, error)
	// Reset returns every set allocated from the pool.
	Reset() error
	Destroy()
}

type DescriptorSet interface {
	Layout() DescriptorLayout
}

// Binding is one resource written into a descriptor slot. Kind selects
// which of the handle fields is meaningful.
type Binding struct {
	Slot   uint32
	Kind   BindingKind
	Image  Image
	Buffer Buffer
	Accel  AccelerationStructure
}

func ImageBinding(slot uint32, img Image) Binding {
	return Binding{Slot: slot, Kind: BindingImage, Image: img}
}

func BufferBinding(slot uint32, buf Buffer) Binding {
	return Binding{Slot: slot, Kind: BindingBuffer, Buffer: buf}
}

func AccelBinding(slot uint32, as AccelerationStructure) Binding {
	return Binding{Slot: slot, Kind: BindingAccelerationStructure, Accel: as}
}

// Validate checks that the handle matching Kind is set and that it fits
// the layout slot it targets.
func (b Binding) Validate(layout DescriptorLayout) error {
	var lb *LayoutBinding
	for _, l := range layout.Bindings() {
		if l.Slot == b.Slot {
			l := l
			lb = &l
			break
		}
	}
	if lb == nil {
		return fmt.Errorf("binding slot %d is not declared by the layout", b.Slot)
	}
	if lb.Kind != b.Kind {
		return fmt.Errorf("binding slot %d expects %s, got %s", b.Slot, lb.Kind, b.Kind)
	}
	switch b.Kind {
	case BindingImage:
		if b.Image == nil {
			return fmt.Errorf("binding slot %d: nil image", b.Slot)
		}
	case BindingBuffer:
		if b.Buffer == nil {
			return fmt.Errorf("binding slot %d: nil buffer", b.Slot)
		}
	case BindingAccelerationStructure:
		if b.Accel == nil {
			return fmt.Errorf("binding slot %d: nil acceleration structure", b.Slot)
		}
	default:
		return fmt.Errorf("binding slot %d: unknown kind %s", b.Slot, b.Kind)
	}
	return nil
}
