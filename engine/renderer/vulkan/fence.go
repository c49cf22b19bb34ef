package vulkan

import (
	"fmt"
	"time"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

type Fence struct {
	device   *Device
	handle   vk.Fence
	signaled bool
}

func (d *Device) CreateFence(signaled bool) (gpu.Fence, error) {
	fence := &Fence{device: d, signaled: signaled}
	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	if res := vk.CreateFence(d.logical, &fenceCreateInfo, d.allocator, &fence.handle); res != vk.Success {
		err := fmt.Errorf("failed to create fence: %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}
	return fence, nil
}

func (f *Fence) Wait(timeout time.Duration) error {
	if f.signaled {
		return nil
	}
	res := vk.WaitForFences(f.device.logical, 1, []vk.Fence{f.handle}, vk.True, uint64(timeout.Nanoseconds()))
	switch res {
	case vk.Success:
		f.signaled = true
		return nil
	case vk.Timeout:
		core.LogWarn("vk_fence_wait - Timed out")
		return core.ErrDeviceTimeout
	}
	err := fmt.Errorf("vk_fence_wait - %s", VulkanResultString(res, true))
	core.LogError(err.Error())
	return err
}

func (f *Fence) Reset() error {
	if !f.signaled {
		return nil
	}
	if res := vk.ResetFences(f.device.logical, 1, []vk.Fence{f.handle}); res != vk.Success {
		err := fmt.Errorf("failed to reset fence: %s", VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}
	f.signaled = false
	return nil
}

func (f *Fence) Destroy() {
	if f.handle != vk.NullFence {
		vk.DestroyFence(f.device.logical, f.handle, f.device.allocator)
		f.handle = vk.NullFence
	}
	f.signaled = false
}

type Semaphore struct {
	device *Device
	name   string
	handle vk.Semaphore
}

func (d *Device) CreateSemaphore(name string) (gpu.Semaphore, error) {
	sem := &Semaphore{device: d, name: name}
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	if res := vk.CreateSemaphore(d.logical, &semaphoreCreateInfo, d.allocator, &sem.handle); res != vk.Success {
		err := fmt.Errorf("failed to create semaphore %q: %s", name, VulkanResultString(res, true))
		core.LogError(err.Error())
		return nil, err
	}
	return sem, nil
}

func (s *Semaphore) Destroy() {
	if s.handle != vk.NullSemaphore {
		vk.DestroySemaphore(s.device.logical, s.handle, s.device.allocator)
		s.handle = vk.NullSemaphore
	}
}

// asSemaphore accepts nil, meaning no semaphore.
func asSemaphore(s gpu.Semaphore) (*Semaphore, error) {
	if s == nil {
		return nil, nil
	}
	sem, ok := s.(*Semaphore)
	if !ok || sem == nil {
		return nil, fmt.Errorf("vulkan: foreign semaphore %T", s)
	}
	return sem, nil
}

func asFence(f gpu.Fence) (*Fence, error) {
	if f == nil {
		return nil, nil
	}
	fence, ok := f.(*Fence)
	if !ok || fence == nil {
		return nil, fmt.Errorf("vulkan: foreign fence %T", f)
	}
	return fence, nil
}
