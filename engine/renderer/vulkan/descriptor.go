package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

// Descriptors available per set when sizing a pool.
const (
	poolImagesPerSet  = 8
	poolBuffersPerSet = 4
)

type DescriptorLayout struct {
	device   *Device
	name     string
	handle   vk.DescriptorSetLayout
	bindings []gpu.LayoutBinding
}

func (l *DescriptorLayout) Bindings() []gpu.LayoutBinding { return l.bindings }

func (l *DescriptorLayout) Destroy() {
	if l.handle != vk.NullDescriptorSetLayout {
		vk.DestroyDescriptorSetLayout(l.device.logical, l.handle, l.device.allocator)
		l.handle = vk.NullDescriptorSetLayout
	}
}

// descriptorType maps a binding kind. Buffers are always bound as storage
// buffers, which lets one layout slot take uniform and storage data.
func descriptorType(b gpu.LayoutBinding) (vk.DescriptorType, error) {
	switch b.Kind {
	case gpu.BindingImage:
		if b.Compute {
			return vk.DescriptorTypeStorageImage, nil
		}
		return vk.DescriptorTypeCombinedImageSampler, nil
	case gpu.BindingBuffer:
		return vk.DescriptorTypeStorageBuffer, nil
	case gpu.BindingAccelerationStructure:
		return 0, fmt.Errorf("acceleration structure binding: %w", core.ErrUnsupported)
	}
	return 0, fmt.Errorf("unknown binding kind %s", b.Kind)
}

func stageFlags(compute bool) vk.ShaderStageFlags {
	if compute {
		return vk.ShaderStageFlags(vk.ShaderStageComputeBit)
	}
	return vk.ShaderStageFlags(vk.ShaderStageVertexBit | vk.ShaderStageFragmentBit)
}

func (d *Device) CreateDescriptorLayout(name string, bindings []gpu.LayoutBinding) (gpu.DescriptorLayout, error) {
	vkBindings := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	for i, b := range bindings {
		t, err := descriptorType(b)
		if err != nil {
			return nil, fmt.Errorf("descriptor layout %q: slot %d: %w", name, b.Slot, err)
		}
		vkBindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Slot,
			DescriptorType:  t,
			DescriptorCount: 1,
			StageFlags:      stageFlags(b.Compute),
		}
	}
	layout := &DescriptorLayout{
		device:   d,
		name:     name,
		bindings: append([]gpu.LayoutBinding(nil), bindings...),
	}
	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(vkBindings)),
		PBindings:    vkBindings,
	}
	if res := vk.CreateDescriptorSetLayout(d.logical, &layoutInfo, d.allocator, &layout.handle); res != vk.Success {
		err := fmt.Errorf("descriptor layout %q: vkCreateDescriptorSetLayout failed with %s", name, VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}
	return layout, nil
}

type DescriptorPool struct {
	device *Device
	name   string
	handle vk.DescriptorPool
}

func (d *Device) CreateDescriptorPool(name string, maxSets uint32) (gpu.DescriptorPool, error) {
	if maxSets == 0 {
		maxSets = 1
	}
	sizes := []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: maxSets * poolImagesPerSet},
		{Type: vk.DescriptorTypeStorageImage, DescriptorCount: maxSets * poolImagesPerSet},
		{Type: vk.DescriptorTypeStorageBuffer, DescriptorCount: maxSets * poolBuffersPerSet},
	}
	pool := &DescriptorPool{device: d, name: name}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	if res := vk.CreateDescriptorPool(d.logical, &poolInfo, d.allocator, &pool.handle); res != vk.Success {
		err := fmt.Errorf("descriptor pool %q: vkCreateDescriptorPool failed with %s", name, VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}
	return pool, nil
}

func (p *DescriptorPool) Allocate(layout gpu.DescriptorLayout) (gpu.DescriptorSet, error) {
	l, ok := layout.(*DescriptorLayout)
	if !ok || l == nil {
		return nil, fmt.Errorf("descriptor pool %q: foreign layout %T", p.name, layout)
	}
	set := &DescriptorSet{layout: l}
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     p.handle,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{l.handle},
	}
	err := p.device.locks.SafeCall(DescriptorManagement, func() error {
		if res := vk.AllocateDescriptorSets(p.device.logical, &allocInfo, &set.handle); res != vk.Success {
			return fmt.Errorf("descriptor pool %q: vkAllocateDescriptorSets failed with %s", p.name, VulkanResultString(res, true))
		}
		return nil
	})
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	return set, nil
}

func (p *DescriptorPool) Reset() error {
	return p.device.locks.SafeCall(DescriptorManagement, func() error {
		if res := vk.ResetDescriptorPool(p.device.logical, p.handle, 0); res != vk.Success {
			return fmt.Errorf("descriptor pool %q: reset failed with %s", p.name, VulkanResultString(res, true))
		}
		return nil
	})
}

func (p *DescriptorPool) Destroy() {
	if p.handle != vk.NullDescriptorPool {
		vk.DestroyDescriptorPool(p.device.logical, p.handle, p.device.allocator)
		p.handle = vk.NullDescriptorPool
	}
}

type DescriptorSet struct {
	layout *DescriptorLayout
	handle vk.DescriptorSet
}

func (s *DescriptorSet) Layout() gpu.DescriptorLayout { return s.layout }

func (d *Device) UpdateDescriptorSet(set gpu.DescriptorSet, bindings ...gpu.Binding) error {
	s, ok := set.(*DescriptorSet)
	if !ok || s == nil {
		return fmt.Errorf("vulkan: foreign descriptor set %T", set)
	}
	writes := make([]vk.WriteDescriptorSet, 0, len(bindings))
	for _, b := range bindings {
		if err := b.Validate(s.layout); err != nil {
			return fmt.Errorf("descriptor layout %q: %w", s.layout.name, err)
		}
		lb := layoutBinding(s.layout, b.Slot)
		t, err := descriptorType(lb)
		if err != nil {
			return err
		}
		write := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          s.handle,
			DstBinding:      b.Slot,
			DescriptorCount: 1,
			DescriptorType:  t,
		}
		switch b.Kind {
		case gpu.BindingImage:
			img, ok := b.Image.(*Image)
			if !ok {
				return fmt.Errorf("slot %d: foreign image %T", b.Slot, b.Image)
			}
			sampler, err := d.defaultSampler()
			if err != nil {
				return err
			}
			layout := img.layout
			if t == vk.DescriptorTypeStorageImage {
				layout = vk.ImageLayoutGeneral
			}
			write.PImageInfo = []vk.DescriptorImageInfo{{
				ImageLayout: layout,
				ImageView:   img.view,
				Sampler:     sampler,
			}}
		case gpu.BindingBuffer:
			buf, ok := b.Buffer.(*Buffer)
			if !ok {
				return fmt.Errorf("slot %d: foreign buffer %T", b.Slot, b.Buffer)
			}
			write.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: buf.handle,
				Offset: 0,
				Range:  vk.DeviceSize(buf.size),
			}}
		}
		writes = append(writes, write)
	}
	if len(writes) == 0 {
		return nil
	}
	return d.locks.SafeCall(DescriptorManagement, func() error {
		vk.UpdateDescriptorSets(d.logical, uint32(len(writes)), writes, 0, nil)
		return nil
	})
}

func layoutBinding(l *DescriptorLayout, slot uint32) gpu.LayoutBinding {
	for _, b := range l.bindings {
		if b.Slot == slot {
			return b
		}
	}
	return gpu.LayoutBinding{Slot: slot}
}

// defaultSampler is a linear, clamped sampler shared by every image
// binding. It is created on first use and lives as long as the device.
func (d *Device) defaultSampler() (vk.Sampler, error) {
	if d.sampler != vk.NullSampler {
		return d.sampler, nil
	}
	samplerInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.FilterLinear,
		MinFilter:               vk.FilterLinear,
		MipmapMode:              vk.SamplerMipmapModeLinear,
		AddressModeU:            vk.SamplerAddressModeClampToEdge,
		AddressModeV:            vk.SamplerAddressModeClampToEdge,
		AddressModeW:            vk.SamplerAddressModeClampToEdge,
		MaxAnisotropy:           1,
		BorderColor:             vk.BorderColorFloatOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareOp:               vk.CompareOpAlways,
	}
	if res := vk.CreateSampler(d.logical, &samplerInfo, d.allocator, &d.sampler); res != vk.Success {
		err := fmt.Errorf("vkCreateSampler failed with %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return vk.NullSampler, err
	}
	return d.sampler, nil
}
