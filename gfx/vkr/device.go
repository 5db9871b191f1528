// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"fmt"
	"image"

	"github.com/devblok/mydemo/core"
	"github.com/devblok/mydemo/gfx"
	vk "github.com/devblok/vulkan"
	log "github.com/sirupsen/logrus"
)

// Config configures a Device
type Config struct {
	Width, Height    uint32
	SwapchainSize    uint32
	DeviceExtensions []string
	Logger           log.FieldLogger
}

// ConfigFrom builds a device configuration from the renderer settings
func ConfigFrom(cfg core.RendererConfiguration, width, height uint32) Config {
	return Config{
		Width:            width,
		Height:           height,
		SwapchainSize:    cfg.SwapchainSize,
		DeviceExtensions: cfg.DeviceExtensions,
	}
}

// descriptorPoolSize is the number of descriptors of each type the pool holds
const descriptorPoolSize = 100

// NewDevice creates a logical device presenting to surface. The device
// takes ownership of the surface and destroys it with itself.
func NewDevice(inst *Instance, surface vk.Surface, cfg Config) (*Device, error) {
	if cfg.Logger == nil {
		cfg.Logger = log.StandardLogger()
	}
	if len(cfg.DeviceExtensions) == 0 {
		cfg.DeviceExtensions = []string{vk.KhrSwapchainExtensionName}
	}

	physicalDevice, family, err := inst.pickDevice(surface, cfg.DeviceExtensions)
	if err != nil {
		vk.DestroySurface(inst.instance, surface, nil)
		return nil, err
	}

	queueInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: family,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}
	dci := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(cfg.DeviceExtensions)),
		PpEnabledExtensionNames: core.SafeStrings(cfg.DeviceExtensions),
	}

	var vkDevice vk.Device
	if err := vk.Error(vk.CreateDevice(physicalDevice, &dci, nil, &vkDevice)); err != nil {
		vk.DestroySurface(inst.instance, surface, nil)
		return nil, fmt.Errorf("vk.CreateDevice(): %w", err)
	}

	var deviceQueue vk.Queue
	vk.GetDeviceQueue(vkDevice, family, 0, &deviceQueue)

	d := &Device{
		instance:       inst,
		surface:        surface,
		physicalDevice: physicalDevice,
		device:         vkDevice,
		queue:          deviceQueue,
		queueFamily:    family,
		allocator:      NewMemoryAllocator(vkDevice, physicalDevice),
		log:            cfg.Logger.WithField("backend", gfx.Vulkan.String()),
	}

	steps := []func() error{
		func() error {
			d.swapchain, err = newSwapchain(vkDevice, physicalDevice, surface, deviceQueue, cfg)
			return err
		},
		d.createCommandPool,
		d.createDescriptorPool,
		d.createPipelineCache,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			d.Destroy()
			return nil, err
		}
	}

	d.log.WithFields(log.Fields{
		"device": physicalDeviceInfo(physicalDevice).Name,
		"slots":  d.swapchain.Len(),
		"format": d.swapchain.format,
	}).Debug("device created")
	return d, nil
}

// Device implements gfx.Device
type Device struct {
	instance       *Instance
	surface        vk.Surface
	physicalDevice vk.PhysicalDevice
	device         vk.Device
	queue          vk.Queue
	queueFamily    uint32
	allocator      *MemoryAllocator
	swapchain      *Swapchain

	commandPool    vk.CommandPool
	descriptorPool vk.DescriptorPool
	pipelineCache  vk.PipelineCache

	log log.FieldLogger
}

func (d *Device) createCommandPool() error {
	cpci := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.queueFamily,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	if err := vk.Error(vk.CreateCommandPool(d.device, &cpci, nil, &d.commandPool)); err != nil {
		return fmt.Errorf("vk.CreateCommandPool(): %w", err)
	}
	return nil
}

func (d *Device) createDescriptorPool() error {
	poolSizes := []vk.DescriptorPoolSize{{
		Type:            vk.DescriptorTypeUniformBuffer,
		DescriptorCount: uint32(d.swapchain.Len()) * descriptorPoolSize,
	}, {
		Type:            vk.DescriptorTypeCombinedImageSampler,
		DescriptorCount: uint32(d.swapchain.Len()) * descriptorPoolSize,
	}}
	dpci := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       uint32(d.swapchain.Len()) * uint32(len(poolSizes)) * descriptorPoolSize,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	if err := vk.Error(vk.CreateDescriptorPool(d.device, &dpci, nil, &d.descriptorPool)); err != nil {
		return fmt.Errorf("vk.CreateDescriptorPool(): %w", err)
	}
	return nil
}

func (d *Device) createPipelineCache() error {
	pcci := vk.PipelineCacheCreateInfo{
		SType: vk.StructureTypePipelineCacheCreateInfo,
	}
	if err := vk.Error(vk.CreatePipelineCache(d.device, &pcci, nil, &d.pipelineCache)); err != nil {
		return fmt.Errorf("vk.CreatePipelineCache(): %w", err)
	}
	return nil
}

// API implements interface
func (d *Device) API() gfx.API {
	return gfx.Vulkan
}

// Swapchain implements interface
func (d *Device) Swapchain() gfx.Swapchain {
	return d.swapchain
}

// CreateBuffer implements interface
func (d *Device) CreateBuffer(usage gfx.BufferUsage, size int) (gfx.Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("vulkan: buffer size %d: %w", size, core.ErrInvalidData)
	}
	buf, err := NewBuffer(d.device, size, bufferUsage(usage), d.allocator)
	if err != nil {
		return nil, err
	}
	buf.usage = usage
	return buf, nil
}

// CreateShader implements interface, code must be SPIR-V
func (d *Device) CreateShader(code []byte, stage gfx.ShaderStage) (gfx.Shader, error) {
	if stage != gfx.VertexStage && stage != gfx.FragmentStage {
		return nil, fmt.Errorf("vulkan: shader stage %d: %w", stage, core.ErrInvalidData)
	}
	return newShader(d.device, code, stage)
}

// CreateTexture implements interface. The pixels go through a staging
// buffer into a device local image left in shader read layout.
func (d *Device) CreateTexture(img image.Image) (gfx.Texture, error) {
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("vulkan: empty texture: %w", core.ErrInvalidData)
	}
	extent := gfx.Extent{Width: uint32(bounds.Dx()), Height: uint32(bounds.Dy())}
	pixels := core.GetPixels(img, 0)

	staging, err := NewBuffer(d.device, len(pixels), vk.BufferUsageTransferSrcBit, d.allocator)
	if err != nil {
		return nil, err
	}
	defer staging.Release()
	if err := staging.memory.Write(0, pixels); err != nil {
		return nil, err
	}

	texture, err := newImage(d.device, d.allocator, imageConfig{
		extent: extent,
		format: vk.FormatR8g8b8a8Unorm,
		usage:  vk.ImageUsageTransferDstBit | vk.ImageUsageSampledBit,
		aspect: vk.ImageAspectColorBit,
	})
	if err != nil {
		return nil, err
	}

	err = d.singleTimeCommands(func(cb *CommandBuffer) {
		cb.barrier(texture.image, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal,
			0, vk.AccessTransferWriteBit,
			vk.PipelineStageTopOfPipeBit, vk.PipelineStageTransferBit)

		bic := vk.BufferImageCopy{
			ImageExtent: vk.Extent3D{
				Width:  extent.Width,
				Height: extent.Height,
				Depth:  1,
			},
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
				MipLevel:       0,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
		}
		vk.CmdCopyBufferToImage(cb.cmd, staging.buffer, texture.image, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{bic})

		cb.barrier(texture.image, vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal,
			vk.AccessTransferWriteBit, vk.AccessShaderReadBit,
			vk.PipelineStageTransferBit, vk.PipelineStageFragmentShaderBit)
	})
	if err != nil {
		texture.destroy()
		return nil, err
	}
	return texture, nil
}

// singleTimeCommands records with fn, submits and waits for the queue
func (d *Device) singleTimeCommands(fn func(cb *CommandBuffer)) error {
	cbai := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		Level:              vk.CommandBufferLevelPrimary,
		CommandPool:        d.commandPool,
		CommandBufferCount: 1,
	}
	commandBuffers := make([]vk.CommandBuffer, 1)
	if err := vk.Error(vk.AllocateCommandBuffers(d.device, &cbai, commandBuffers)); err != nil {
		return fmt.Errorf("vk.AllocateCommandBuffers(): %w", err)
	}
	defer vk.FreeCommandBuffers(d.device, d.commandPool, 1, commandBuffers)

	cbbi := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if err := vk.Error(vk.BeginCommandBuffer(commandBuffers[0], &cbbi)); err != nil {
		return fmt.Errorf("vk.BeginCommandBuffer(): %w", err)
	}

	fn(&CommandBuffer{device: d.device, pool: d.commandPool, cmd: commandBuffers[0], recording: true})

	if err := vk.Error(vk.EndCommandBuffer(commandBuffers[0])); err != nil {
		return fmt.Errorf("vk.EndCommandBuffer(): %w", err)
	}
	si := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    commandBuffers,
	}
	if err := vk.Error(vk.QueueSubmit(d.queue, 1, []vk.SubmitInfo{si}, vk.NullFence)); err != nil {
		return fmt.Errorf("vk.QueueSubmit(): %w", err)
	}
	if err := vk.Error(vk.QueueWaitIdle(d.queue)); err != nil {
		return fmt.Errorf("vk.QueueWaitIdle(): %w", err)
	}
	return nil
}

// CreateSampler implements interface
func (d *Device) CreateSampler(cfg gfx.SamplerConfig) (gfx.Sampler, error) {
	sci := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               filter(cfg.MagFilter),
		MinFilter:               filter(cfg.MinFilter),
		AddressModeU:            vk.SamplerAddressModeRepeat,
		AddressModeV:            vk.SamplerAddressModeRepeat,
		AddressModeW:            vk.SamplerAddressModeRepeat,
		AnisotropyEnable:        vk.False,
		MaxAnisotropy:           1,
		BorderColor:             vk.BorderColorFloatOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MipmapMode:              vk.SamplerMipmapModeLinear,
	}

	var sampler vk.Sampler
	if err := vk.Error(vk.CreateSampler(d.device, &sci, nil, &sampler)); err != nil {
		return nil, fmt.Errorf("vk.CreateSampler(): %w", err)
	}
	return &Sampler{device: d.device, sampler: sampler}, nil
}

// CreateRenderPass implements interface
func (d *Device) CreateRenderPass(cfg gfx.RenderPassConfig) (gfx.RenderPass, error) {
	return newRenderPass(d.device, cfg, d.swapchain.format)
}

// CreateOnScreenFramebuffers implements interface
func (d *Device) CreateOnScreenFramebuffers(pass gfx.RenderPass) ([]gfx.Framebuffer, error) {
	rp, ok := pass.(*RenderPass)
	if !ok {
		return nil, fmt.Errorf("vulkan: on-screen framebuffers without render pass: %w", core.ErrInvalidData)
	}
	if rp.config.Offscreen {
		return nil, fmt.Errorf("vulkan: offscreen render pass used on-screen: %w", core.ErrInvalidData)
	}

	fbs := make([]gfx.Framebuffer, 0, d.swapchain.Len())
	for idx, view := range d.swapchain.views {
		fb, err := newFramebuffer(d.device, d.allocator, rp, d.swapchain.extent, d.swapchain.images[idx], view)
		if err != nil {
			for _, created := range fbs {
				created.Release()
			}
			return nil, err
		}
		fbs = append(fbs, fb)
	}
	return fbs, nil
}

// CreateFramebuffer implements interface
func (d *Device) CreateFramebuffer(cfg gfx.FramebufferConfig) (gfx.Framebuffer, error) {
	rp, ok := cfg.RenderPass.(*RenderPass)
	if !ok || cfg.Extent.Width == 0 || cfg.Extent.Height == 0 {
		return nil, fmt.Errorf("vulkan: framebuffer config: %w", core.ErrInvalidData)
	}
	return newFramebuffer(d.device, d.allocator, rp, cfg.Extent, nil, nil)
}

// CreatePipeline implements interface
func (d *Device) CreatePipeline(cfg gfx.PipelineConfig) (gfx.Pipeline, error) {
	return newPipeline(d.device, d.pipelineCache, cfg)
}

// CreateDescriptorSet implements interface
func (d *Device) CreateDescriptorSet(p gfx.Pipeline, writes ...gfx.DescriptorWrite) (gfx.DescriptorSet, error) {
	vp, ok := p.(*Pipeline)
	if !ok {
		return nil, fmt.Errorf("vulkan: descriptor set without pipeline: %w", core.ErrInvalidData)
	}
	return newDescriptorSet(d.device, d.descriptorPool, vp, writes)
}

// CreateCommandBuffers implements interface
func (d *Device) CreateCommandBuffers(n int) ([]gfx.CommandBuffer, error) {
	if n <= 0 {
		return nil, fmt.Errorf("vulkan: %d command buffers: %w", n, core.ErrInvalidData)
	}
	cbai := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.commandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(n),
	}
	commandBuffers := make([]vk.CommandBuffer, n)
	if err := vk.Error(vk.AllocateCommandBuffers(d.device, &cbai, commandBuffers)); err != nil {
		return nil, fmt.Errorf("vk.AllocateCommandBuffers(): %w", err)
	}

	cbs := make([]gfx.CommandBuffer, n)
	for idx, cmd := range commandBuffers {
		cbs[idx] = &CommandBuffer{device: d.device, pool: d.commandPool, cmd: cmd}
	}
	return cbs, nil
}

// Submit implements interface
func (d *Device) Submit(slot int, cb gfx.CommandBuffer) error {
	vcb, ok := cb.(*CommandBuffer)
	if !ok || vcb.device != d.device {
		return fmt.Errorf("vulkan: foreign command buffer: %w", core.ErrInvalidData)
	}
	if vcb.recording {
		return fmt.Errorf("vulkan: command buffer still recording: %w", core.ErrInvalidData)
	}
	if err := d.swapchain.submit(slot, vcb.cmd); err != nil {
		return err
	}
	d.log.WithField("slot", slot).Debug("submitted")
	return nil
}

// WaitIdle implements interface
func (d *Device) WaitIdle() error {
	if err := vk.Error(vk.DeviceWaitIdle(d.device)); err != nil {
		return fmt.Errorf("vk.DeviceWaitIdle(): %w", err)
	}
	return nil
}

// Destroy implements interface
func (d *Device) Destroy() {
	vk.DeviceWaitIdle(d.device)

	if d.pipelineCache != vk.NullPipelineCache {
		vk.DestroyPipelineCache(d.device, d.pipelineCache, nil)
	}
	if d.descriptorPool != vk.NullDescriptorPool {
		vk.DestroyDescriptorPool(d.device, d.descriptorPool, nil)
	}
	if d.commandPool != vk.NullCommandPool {
		vk.DestroyCommandPool(d.device, d.commandPool, nil)
	}
	if d.swapchain != nil {
		d.swapchain.destroy()
	}
	vk.DestroyDevice(d.device, nil)
	vk.DestroySurface(d.instance.instance, d.surface, nil)
}
