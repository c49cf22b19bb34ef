// Package vulkan implements gpu.Device on top of goki/vulkan and a GLFW
// window surface.
package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

// Window is what the device needs from the platform layer.
type Window interface {
	RequiredExtensions() []string
	CreateSurface(instance interface{}) (uintptr, error)
	FramebufferSize() (int, int)
}

type Config struct {
	ApplicationName string
	// Debug enables the validation layer and routes its reports to the log.
	Debug bool
	// PresentMode is a preference; FIFO is used when the surface lacks it.
	PresentMode gpu.PresentMode
	// SurfaceFormat is a preference; the first reported format is the
	// fallback.
	SurfaceFormat gpu.Format
}

// Device owns the instance, the logical device and the swapchain. All of
// its methods are meant to be called from the render thread except where
// noted; queue access is serialized through the lock pool.
type Device struct {
	cfg    Config
	window Window

	instance       vk.Instance
	allocator      *vk.AllocationCallbacks
	surface        vk.Surface
	debugMessenger vk.DebugReportCallback

	physical physicalDevice
	logical  vk.Device

	graphicsQueue vk.Queue
	presentQueue  vk.Queue
	commandPool   vk.CommandPool
	sampler       vk.Sampler

	swapchain *swapchain
	locks     *lockPool
}

func New(w Window, cfg Config) (*Device, error) {
	d := &Device{
		cfg:    cfg,
		window: w,
		locks:  newLockPool(),
	}
	if err := d.createInstance(); err != nil {
		return nil, err
	}
	if err := d.createSurface(); err != nil {
		d.Destroy()
		return nil, err
	}
	if err := d.createLogicalDevice(); err != nil {
		d.Destroy()
		return nil, err
	}
	width, height := w.FramebufferSize()
	sc, err := d.createSwapchain(gpu.Extent{Width: uint32(width), Height: uint32(height)}, nil)
	if err != nil {
		d.Destroy()
		return nil, err
	}
	d.swapchain = sc
	core.LogInfo("Vulkan device initialized successfully.")
	return d, nil
}

func (d *Device) createInstance() error {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		err := fmt.Errorf("GetInstanceProcAddress is nil")
		core.LogError(err.Error())
		return err
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return err
	}

	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(d.cfg.ApplicationName),
		PEngineName:        VulkanSafeString("Lumen"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	extensions := []string{"VK_KHR_surface"}
	extensions = append(extensions, d.window.RequiredExtensions()...)
	if runtime.GOOS == "darwin" {
		extensions = append(extensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}
	if d.cfg.Debug {
		extensions = append(extensions, vk.ExtDebugReportExtensionName)
	}
	core.LogDebug("Required extensions: %v", extensions)
	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(extensions)

	var layers []string
	if d.cfg.Debug {
		layers = []string{"VK_LAYER_KHRONOS_validation"}
		if err := checkValidationLayers(layers); err != nil {
			core.LogError(err.Error())
			return err
		}
	}
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	if res := vk.CreateInstance(&createInfo, d.allocator, &d.instance); res != vk.Success {
		err := fmt.Errorf("failed in creating the Vulkan Instance with error `%s`", VulkanResultString(res, true))
		core.LogError(err.Error())
		return err
	}
	if err := vk.InitInstance(d.instance); err != nil {
		core.LogError(err.Error())
		return err
	}
	core.LogInfo("Vulkan Instance created.")

	if d.cfg.Debug {
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := vk.Error(vk.CreateDebugReportCallback(d.instance, &debugCreateInfo, d.allocator, &dbg)); err != nil {
			core.LogError("vk.CreateDebugReportCallback failed with %s", err)
			return err
		}
		d.debugMessenger = dbg
		core.LogDebug("Vulkan debugger created.")
	}
	return nil
}

func checkValidationLayers(required []string) error {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return fmt.Errorf("enumerate instance layers: %s", VulkanResultString(res, false))
	}
	available := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, available); res != vk.Success {
		return fmt.Errorf("enumerate instance layers: %s", VulkanResultString(res, false))
	}
	for _, name := range required {
		found := false
		for j := range available {
			available[j].Deref()
			if vk.ToString(available[j].LayerName[:]) == name {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("required validation layer is missing: %s", name)
		}
	}
	return nil
}

func (d *Device) createSurface() error {
	surface, err := d.window.CreateSurface(d.instance)
	if err != nil || surface == 0 {
		err = fmt.Errorf("failed to create platform surface: %v", err)
		core.LogError(err.Error())
		return err
	}
	d.surface = vk.SurfaceFromPointer(surface)
	core.LogDebug("Vulkan surface created.")
	return nil
}

func (d *Device) Features() gpu.Features {
	n := 3
	if d.swapchain != nil && len(d.swapchain.images) > 0 {
		n = len(d.swapchain.images)
	}
	return gpu.Features{MaxFramesInFlight: n}
}

func (d *Device) WaitIdle() error {
	if d.logical == nil {
		return nil
	}
	return d.locks.SafeCall(QueueManagement, func() error {
		if res := vk.DeviceWaitIdle(d.logical); res != vk.Success {
			return fmt.Errorf("vkDeviceWaitIdle failed with %s", VulkanResultString(res, true))
		}
		return nil
	})
}

// Destroy releases the swapchain and the device. Every resource created
// through the device must be destroyed before.
func (d *Device) Destroy() {
	if d.logical != nil {
		vk.DeviceWaitIdle(d.logical)
	}
	if d.swapchain != nil {
		d.swapchain.destroy(d)
		d.swapchain = nil
	}
	if d.logical != nil {
		if d.sampler != vk.NullSampler {
			vk.DestroySampler(d.logical, d.sampler, d.allocator)
			d.sampler = vk.NullSampler
		}
		core.LogInfo("Destroying command pools...")
		vk.DestroyCommandPool(d.logical, d.commandPool, d.allocator)
		core.LogInfo("Destroying logical device...")
		vk.DestroyDevice(d.logical, d.allocator)
		d.logical = nil
	}
	if d.surface != vk.NullSurface {
		vk.DestroySurface(d.instance, d.surface, d.allocator)
		d.surface = vk.NullSurface
	}
	if d.debugMessenger != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(d.instance, d.debugMessenger, d.allocator)
		d.debugMessenger = vk.NullDebugReportCallback
	}
	if d.instance != nil {
		vk.DestroyInstance(d.instance, d.allocator)
		d.instance = nil
	}
}

// FindMemoryIndex returns the first memory type allowed by typeFilter
// that has all of propertyFlags, or -1.
func (d *Device) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlagBits) int32 {
	memory := d.physical.memory
	for i := uint32(0); i < memory.MemoryTypeCount; i++ {
		memory.MemoryTypes[i].Deref()
		flags := vk.MemoryPropertyFlagBits(memory.MemoryTypes[i].PropertyFlags)
		if typeFilter&(1<<i) != 0 && flags&propertyFlags == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return -1
}

func (d *Device) allocate(req vk.MemoryRequirements, flags vk.MemoryPropertyFlagBits) (vk.DeviceMemory, error) {
	index := d.FindMemoryIndex(req.MemoryTypeBits, flags)
	if index < 0 {
		return vk.NullDeviceMemory, fmt.Errorf("no memory type with flags %#x", uint32(flags))
	}
	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: uint32(index),
	}
	var mem vk.DeviceMemory
	if res := vk.AllocateMemory(d.logical, &allocInfo, d.allocator, &mem); res != vk.Success {
		return vk.NullDeviceMemory, fmt.Errorf("vkAllocateMemory failed with %s", VulkanResultString(res, true))
	}
	return mem, nil
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
