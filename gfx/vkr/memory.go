// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"fmt"
	"unsafe"

	"github.com/devblok/mydemo/core"
	vk "github.com/devblok/vulkan"
)

// Memory defines a usable memory region.
type Memory struct {
	size   uint
	device vk.Device
	memory vk.DeviceMemory
}

// Len returns the length of assigned memory.
func (m *Memory) Len() uint {
	return m.size
}

// Get returns the vulkan memory handle.
func (m *Memory) Get() vk.DeviceMemory {
	return m.memory
}

// Write maps the memory, copies data at offset and unmaps it again.
// Only host visible memory can be written.
func (m *Memory) Write(offset int, data []byte) error {
	if err := checkRange(int(m.size), offset, len(data)); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	var mapped unsafe.Pointer
	if err := vk.Error(vk.MapMemory(m.device, m.memory, vk.DeviceSize(offset), vk.DeviceSize(len(data)), 0, &mapped)); err != nil {
		return fmt.Errorf("vk.MapMemory(): %w", err)
	}
	copy(unsafe.Slice((*byte)(mapped), len(data)), data)
	vk.UnmapMemory(m.device, m.memory)
	return nil
}

// Release frees memory.
func (m *Memory) Release() {
	vk.FreeMemory(m.device, m.memory, nil)
}

func checkRange(size, offset, n int) error {
	if offset < 0 || offset+n > size {
		return fmt.Errorf("vulkan: %d bytes at %d outside of %d: %w", n, offset, size, core.ErrInvalidData)
	}
	return nil
}

// NewMemoryAllocator creates a new memory allocator. Allocates for the logical device,
// reads memory properties of the physical device to influence allocation.
func NewMemoryAllocator(device vk.Device, phyDevice vk.PhysicalDevice) *MemoryAllocator {
	var memProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(phyDevice, &memProperties)
	memProperties.Deref()

	types := make([]vk.MemoryPropertyFlags, memProperties.MemoryTypeCount)
	for idx := range types {
		memProperties.MemoryTypes[idx].Deref()
		types[idx] = memProperties.MemoryTypes[idx].PropertyFlags
	}
	return &MemoryAllocator{
		device: device,
		types:  types,
	}
}

// MemoryAllocator is responsible returning usable
// memory for any resources that may need it.
type MemoryAllocator struct {
	device vk.Device
	types  []vk.MemoryPropertyFlags
}

// Malloc returns a usable memory chunk ready for use.
func (ma *MemoryAllocator) Malloc(req vk.MemoryRequirements, prop vk.MemoryPropertyFlagBits) (Memory, error) {
	memTypeIdx, err := findMemoryType(ma.types, req.MemoryTypeBits, vk.MemoryPropertyFlags(prop))
	if err != nil {
		return Memory{}, err
	}

	mai := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: memTypeIdx,
	}

	var memory vk.DeviceMemory
	if err := vk.Error(vk.AllocateMemory(ma.device, &mai, nil, &memory)); err != nil {
		return Memory{}, fmt.Errorf("vk.AllocateMemory(): %w", err)
	}
	return Memory{
		size:   uint(req.Size),
		device: ma.device,
		memory: memory,
	}, nil
}

// findMemoryType returns the first type allowed by filter that has every prop flag
func findMemoryType(types []vk.MemoryPropertyFlags, filter uint32, prop vk.MemoryPropertyFlags) (uint32, error) {
	for idx := uint32(0); idx < uint32(len(types)); idx++ {
		if filter&(1<<idx) != 0 && types[idx]&prop == prop {
			return idx, nil
		}
	}
	return 0, fmt.Errorf("vulkan: suitable memory type not found: %w", core.ErrNotFound)
}

// BindBuffer allocates memory for buffer and binds it
func (ma *MemoryAllocator) BindBuffer(buffer vk.Buffer, prop vk.MemoryPropertyFlagBits) (Memory, error) {
	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(ma.device, buffer, &req)
	req.Deref()

	memory, err := ma.Malloc(req, prop)
	if err != nil {
		return Memory{}, err
	}
	if err := vk.Error(vk.BindBufferMemory(ma.device, buffer, memory.Get(), 0)); err != nil {
		memory.Release()
		return Memory{}, fmt.Errorf("vk.BindBufferMemory(): %w", err)
	}
	return memory, nil
}

// BindImage allocates memory for image and binds it
func (ma *MemoryAllocator) BindImage(image vk.Image, prop vk.MemoryPropertyFlagBits) (Memory, error) {
	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(ma.device, image, &req)
	req.Deref()

	memory, err := ma.Malloc(req, prop)
	if err != nil {
		return Memory{}, err
	}
	if err := vk.Error(vk.BindImageMemory(ma.device, image, memory.Get(), 0)); err != nil {
		memory.Release()
		return Memory{}, fmt.Errorf("vk.BindImageMemory(): %w", err)
	}
	return memory, nil
}
