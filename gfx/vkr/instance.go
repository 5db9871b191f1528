// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package vkr implements gfx.Device on top of Vulkan.
package vkr

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/devblok/mydemo/core"
	vk "github.com/devblok/vulkan"
)

// DefaultApplicationInfo describes the application to the driver
var DefaultApplicationInfo = &vk.ApplicationInfo{
	SType:              vk.StructureTypeApplicationInfo,
	ApiVersion:         vk.MakeVersion(1, 0, 0),
	ApplicationVersion: vk.MakeVersion(1, 0, 0),
	PApplicationName:   core.SafeString("MyDemo"),
	PEngineName:        core.SafeString("MyDemo"),
}

// ValidationLayer is enabled in debug mode
const ValidationLayer = "VK_LAYER_KHRONOS_validation"

// InstanceConfiguration configures the Vulkan instance
type InstanceConfiguration struct {
	DebugMode  bool
	Extensions []string
	Layers     []string
}

// PhysicalDeviceInfo describes available physical properties of a rendering device
type PhysicalDeviceInfo struct {
	ID            int
	VendorID      int
	DriverVersion int
	Name          string
	Invalid       bool
	Extensions    []string
	Layers        []string
	Memory        uint
}

// HasExtension reports whether the device supports the named extension
func (p PhysicalDeviceInfo) HasExtension(name string) bool {
	for _, ext := range p.Extensions {
		if ext == name {
			return true
		}
	}
	return false
}

// NewInstance loads Vulkan and creates an instance. procAddr is the
// vkGetInstanceProcAddr of the windowing library, nil loads the system one.
func NewInstance(appInfo *vk.ApplicationInfo, procAddr unsafe.Pointer, cfg InstanceConfiguration) (*Instance, error) {
	if cfg.DebugMode {
		cfg.Layers = append(cfg.Layers, ValidationLayer)
		cfg.Extensions = append(cfg.Extensions, "VK_EXT_debug_report")
	}

	if procAddr == nil {
		if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
			return nil, fmt.Errorf("vk.SetDefaultGetInstanceProcAddr(): %w", err)
		}
	} else {
		vk.SetGetInstanceProcAddr(procAddr)
	}

	if err := vk.Init(); err != nil {
		return nil, fmt.Errorf("vk.Init(): %w", err)
	}

	instanceInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        appInfo,
		EnabledExtensionCount:   uint32(len(cfg.Extensions)),
		PpEnabledExtensionNames: core.SafeStrings(cfg.Extensions),
		EnabledLayerCount:       uint32(len(cfg.Layers)),
		PpEnabledLayerNames:     core.SafeStrings(cfg.Layers),
	}

	var instance vk.Instance
	if err := vk.Error(vk.CreateInstance(&instanceInfo, nil, &instance)); err != nil {
		return nil, fmt.Errorf("vk.CreateInstance(): %w", err)
	}
	vk.InitInstance(instance)

	physicalDevices, err := enumerateDevices(instance)
	if err != nil {
		vk.DestroyInstance(instance, nil)
		return nil, err
	}
	if len(physicalDevices) == 0 {
		vk.DestroyInstance(instance, nil)
		return nil, fmt.Errorf("vk.EnumeratePhysicalDevices(): no devices: %w", core.ErrNotFound)
	}

	return &Instance{
		configuration:    cfg,
		instance:         instance,
		availableDevices: physicalDevices,
	}, nil
}

// Instance is a Vulkan API instance with its physical devices
type Instance struct {
	configuration    InstanceConfiguration
	availableDevices []vk.PhysicalDevice
	instance         vk.Instance
}

func enumerateDevices(instance vk.Instance) ([]vk.PhysicalDevice, error) {
	var deviceCount uint32
	if err := vk.Error(vk.EnumeratePhysicalDevices(instance, &deviceCount, nil)); err != nil {
		return nil, fmt.Errorf("vk.EnumeratePhysicalDevices(): %w", err)
	}
	availableDevices := make([]vk.PhysicalDevice, deviceCount)
	if err := vk.Error(vk.EnumeratePhysicalDevices(instance, &deviceCount, availableDevices)); err != nil {
		return nil, fmt.Errorf("vk.EnumeratePhysicalDevices(): %w", err)
	}
	return availableDevices, nil
}

// PhysicalDevicesInfo lists what every physical device offers
func (v *Instance) PhysicalDevicesInfo() []PhysicalDeviceInfo {
	pdi := make([]PhysicalDeviceInfo, len(v.availableDevices))
	for i, dev := range v.availableDevices {
		pdi[i] = physicalDeviceInfo(dev)
	}
	return pdi
}

func physicalDeviceInfo(dev vk.PhysicalDevice) PhysicalDeviceInfo {
	var info PhysicalDeviceInfo

	// Get extension info
	var numDeviceExtensions uint32
	if err := vk.Error(vk.EnumerateDeviceExtensionProperties(dev, "", &numDeviceExtensions, nil)); err != nil {
		info.Invalid = true
	}
	deviceExt := make([]vk.ExtensionProperties, numDeviceExtensions)
	if err := vk.Error(vk.EnumerateDeviceExtensionProperties(dev, "", &numDeviceExtensions, deviceExt)); err != nil {
		info.Invalid = true
	}
	for _, ext := range deviceExt {
		ext.Deref()
		info.Extensions = append(info.Extensions, vk.ToString(ext.ExtensionName[:]))
	}

	// Get layers info
	var numDeviceLayers uint32
	if err := vk.Error(vk.EnumerateDeviceLayerProperties(dev, &numDeviceLayers, nil)); err != nil {
		info.Invalid = true
	}
	deviceLayers := make([]vk.LayerProperties, numDeviceLayers)
	if err := vk.Error(vk.EnumerateDeviceLayerProperties(dev, &numDeviceLayers, deviceLayers)); err != nil {
		info.Invalid = true
	}
	for _, layer := range deviceLayers {
		layer.Deref()
		info.Layers = append(info.Layers, vk.ToString(layer.LayerName[:]))
	}

	// Get memory info
	var memoryProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(dev, &memoryProperties)
	memoryProperties.Deref()
	for iMem := uint32(0); iMem < memoryProperties.MemoryHeapCount; iMem++ {
		memoryProperties.MemoryHeaps[iMem].Deref()
		info.Memory += uint(memoryProperties.MemoryHeaps[iMem].Size)
	}

	// Get general device info
	var physicalDeviceProperties vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(dev, &physicalDeviceProperties)
	physicalDeviceProperties.Deref()
	info.ID = int(physicalDeviceProperties.DeviceID)
	info.VendorID = int(physicalDeviceProperties.VendorID)
	info.Name = vk.ToString(physicalDeviceProperties.DeviceName[:])
	info.DriverVersion = int(physicalDeviceProperties.DriverVersion)
	return info
}

// Handle returns the vk.Instance, windowing libraries create surfaces from it
func (v *Instance) Handle() vk.Instance {
	return v.instance
}

// Extensions returns the enabled instance extensions
func (v *Instance) Extensions() []string {
	return v.configuration.Extensions
}

// SurfaceFromPointer converts a surface created by the windowing library
func SurfaceFromPointer(p unsafe.Pointer) (vk.Surface, error) {
	if p == nil {
		return vk.NullSurface, errors.New("vk.Surface: nil surface")
	}
	return vk.SurfaceFromPointer(uintptr(p)), nil
}

// pickDevice returns the first physical device able to present
// to surface with the required extensions.
func (v *Instance) pickDevice(surface vk.Surface, extensions []string) (vk.PhysicalDevice, uint32, error) {
	for _, dev := range v.availableDevices {
		info := physicalDeviceInfo(dev)
		if ok, _ := DeviceIsSuitable(info, extensions); !ok {
			continue
		}
		if family, ok := graphicsQueueFamily(dev, surface); ok {
			return dev, family, nil
		}
	}
	return nil, 0, fmt.Errorf("vulkan: no device can present to the surface: %w", core.ErrNotFound)
}

// DeviceIsSuitable checks a device against the required extensions and
// tells what is missing.
func DeviceIsSuitable(info PhysicalDeviceInfo, extensions []string) (bool, string) {
	if info.Invalid {
		return false, "device properties could not be read"
	}
	for _, ext := range extensions {
		if !info.HasExtension(ext) {
			return false, "missing extension " + ext
		}
	}
	return true, ""
}

func graphicsQueueFamily(dev vk.PhysicalDevice, surface vk.Surface) (uint32, bool) {
	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(dev, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(dev, &queueFamilyCount, queueFamilies)

	for i := uint32(0); i < queueFamilyCount; i++ {
		queueFamilies[i].Deref()
		if queueFamilies[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) == 0 {
			continue
		}
		var supportsPresent vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(dev, i, surface, &supportsPresent)
		if supportsPresent.B() {
			return i, true
		}
	}
	return 0, false
}

// Destroy releases the instance, devices created from it must be destroyed before
func (v *Instance) Destroy() {
	v.availableDevices = nil
	vk.DestroyInstance(v.instance, nil)
}
