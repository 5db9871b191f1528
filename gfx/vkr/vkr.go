// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"fmt"

	"github.com/devblok/mydemo/core"
	"github.com/devblok/mydemo/gfx"
	vk "github.com/devblok/vulkan"
)

// NewBuffer creates, configures, allocates and binds a new host visible buffer.
func NewBuffer(dev vk.Device, size int, usage vk.BufferUsageFlagBits, ma *MemoryAllocator) (*Buffer, error) {
	createInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       vk.BufferUsageFlags(usage),
		SharingMode: vk.SharingModeExclusive,
	}
	var buffer vk.Buffer
	if err := vk.Error(vk.CreateBuffer(dev, &createInfo, nil, &buffer)); err != nil {
		return nil, fmt.Errorf("vk.CreateBuffer(): %w", err)
	}

	memory, err := ma.BindBuffer(buffer, vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit)
	if err != nil {
		vk.DestroyBuffer(dev, buffer, nil)
		return nil, err
	}

	return &Buffer{
		device: dev,
		buffer: buffer,
		memory: memory,
		size:   size,
	}, nil
}

// Buffer implements gfx.Buffer
type Buffer struct {
	device vk.Device
	buffer vk.Buffer
	memory Memory
	size   int
	usage  gfx.BufferUsage
}

// Get returns the vulkan Buffer handle.
func (b *Buffer) Get() vk.Buffer {
	return b.buffer
}

// Size implements interface
func (b *Buffer) Size() int {
	return b.size
}

// Usage implements interface
func (b *Buffer) Usage() gfx.BufferUsage {
	return b.usage
}

// Write implements interface
func (b *Buffer) Write(offset int, data []byte) error {
	if err := gfx.CheckWrite(b.size, offset, len(data)); err != nil {
		return err
	}
	return b.memory.Write(offset, data)
}

// Release destroys the buffer and memory asociated with it.
func (b *Buffer) Release() {
	vk.DestroyBuffer(b.device, b.buffer, nil)
	b.memory.Release()
}

// imageConfig describes a device local 2D image
type imageConfig struct {
	extent gfx.Extent
	format vk.Format
	usage  vk.ImageUsageFlagBits
	aspect vk.ImageAspectFlagBits
}

// newImage creates a device local image with memory and a view.
func newImage(dev vk.Device, ma *MemoryAllocator, cfg imageConfig) (*Image, error) {
	createInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  cfg.extent.Width,
			Height: cfg.extent.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        cfg.format,
		Tiling:        vk.ImageTilingOptimal,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         vk.ImageUsageFlags(cfg.usage),
		SharingMode:   vk.SharingModeExclusive,
		Samples:       vk.SampleCount1Bit,
	}

	var image vk.Image
	if err := vk.Error(vk.CreateImage(dev, &createInfo, nil, &image)); err != nil {
		return nil, fmt.Errorf("vk.CreateImage(): %w", err)
	}

	memory, err := ma.BindImage(image, vk.MemoryPropertyDeviceLocalBit)
	if err != nil {
		vk.DestroyImage(dev, image, nil)
		return nil, err
	}

	view, err := newImageView(dev, image, cfg.format, cfg.aspect)
	if err != nil {
		vk.DestroyImage(dev, image, nil)
		memory.Release()
		return nil, err
	}

	return &Image{
		device: dev,
		image:  image,
		view:   view,
		memory: memory,
		format: cfg.format,
		extent: cfg.extent,
	}, nil
}

func newImageView(dev vk.Device, image vk.Image, format vk.Format, aspect vk.ImageAspectFlagBits) (vk.ImageView, error) {
	ivci := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(aspect),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}

	var view vk.ImageView
	if err := vk.Error(vk.CreateImageView(dev, &ivci, nil, &view)); err != nil {
		return nil, fmt.Errorf("vk.CreateImageView(): %w", err)
	}
	return view, nil
}

// Image is a device local image with its view. It implements gfx.Texture.
type Image struct {
	device vk.Device
	image  vk.Image
	view   vk.ImageView
	memory Memory
	format vk.Format
	extent gfx.Extent

	// borrowed images belong to a framebuffer and are released with it
	borrowed bool
}

// Extent implements interface
func (i *Image) Extent() gfx.Extent {
	return i.extent
}

// Release implements interface
func (i *Image) Release() {
	if i.borrowed {
		return
	}
	i.destroy()
}

func (i *Image) destroy() {
	vk.DestroyImageView(i.device, i.view, nil)
	vk.DestroyImage(i.device, i.image, nil)
	i.memory.Release()
}

// Sampler implements gfx.Sampler
type Sampler struct {
	device  vk.Device
	sampler vk.Sampler
}

// Release implements interface
func (s *Sampler) Release() {
	vk.DestroySampler(s.device, s.sampler, nil)
}

// Shader implements gfx.Shader
type Shader struct {
	device vk.Device
	module vk.ShaderModule
	stage  gfx.ShaderStage
}

// Stage implements interface
func (s *Shader) Stage() gfx.ShaderStage {
	return s.stage
}

// Release implements interface
func (s *Shader) Release() {
	vk.DestroyShaderModule(s.device, s.module, nil)
}

func newShader(dev vk.Device, code []byte, stage gfx.ShaderStage) (*Shader, error) {
	if err := checkSPIRV(code); err != nil {
		return nil, err
	}
	smci := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    core.SliceUint32(code),
	}

	var module vk.ShaderModule
	if err := vk.Error(vk.CreateShaderModule(dev, &smci, nil, &module)); err != nil {
		return nil, fmt.Errorf("vk.CreateShaderModule(stage %d): %w", stage, err)
	}
	return &Shader{device: dev, module: module, stage: stage}, nil
}
