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

// RenderPass implements gfx.RenderPass
type RenderPass struct {
	device      vk.Device
	renderPass  vk.RenderPass
	config      gfx.RenderPassConfig
	colorFormat vk.Format
	depthFormat vk.Format
}

// Config implements interface
func (r *RenderPass) Config() gfx.RenderPassConfig {
	return r.config
}

// Release implements interface
func (r *RenderPass) Release() {
	vk.DestroyRenderPass(r.device, r.renderPass, nil)
}

func newRenderPass(dev vk.Device, cfg gfx.RenderPassConfig, surface vk.Format) (*RenderPass, error) {
	if isDepth(cfg.Color.Format) {
		return nil, fmt.Errorf("vulkan: depth format as colour attachment: %w", core.ErrInvalidData)
	}
	colorFormat := format(cfg.Color.Format, surface)
	initial, final := colorLayouts(cfg)

	attachments := []vk.AttachmentDescription{{
		Format:         colorFormat,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         loadOp(cfg.Color.Load),
		StoreOp:        storeOp(cfg.Color.Store),
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  initial,
		FinalLayout:    final,
	}}

	colorAttachmentRef := []vk.AttachmentReference{{
		Attachment: 0,
		Layout:     vk.ImageLayoutColorAttachmentOptimal,
	}}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorAttachmentRef)),
		PColorAttachments:    colorAttachmentRef,
	}

	var depthFormat vk.Format
	if cfg.Depth != nil {
		if !isDepth(cfg.Depth.Format) {
			return nil, fmt.Errorf("vulkan: depth attachment of colour format: %w", core.ErrInvalidData)
		}
		depthFormat = format(cfg.Depth.Format, surface)
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         depthFormat,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         loadOp(cfg.Depth.Load),
			StoreOp:        storeOp(cfg.Depth.Store),
			StencilLoadOp:  loadOp(cfg.Depth.Load),
			StencilStoreOp: storeOp(cfg.Depth.Store),
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		})
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: 1,
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}

	subpassDependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit),
	}

	rpci := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{subpassDependency},
	}

	var renderPass vk.RenderPass
	if err := vk.Error(vk.CreateRenderPass(dev, &rpci, nil, &renderPass)); err != nil {
		return nil, fmt.Errorf("vk.CreateRenderPass(): %w", err)
	}
	return &RenderPass{
		device:      dev,
		renderPass:  renderPass,
		config:      cfg,
		colorFormat: colorFormat,
		depthFormat: depthFormat,
	}, nil
}

// Framebuffer implements gfx.Framebuffer. On-screen framebuffers borrow
// the swapchain image of their slot, offscreen ones own a colour image.
// Both own their depth image.
type Framebuffer struct {
	device      vk.Device
	framebuffer vk.Framebuffer
	pass        *RenderPass
	extent      gfx.Extent

	// image is the colour target, blits read and write it
	image vk.Image
	color *Image
	depth *Image
}

// Extent implements interface
func (f *Framebuffer) Extent() gfx.Extent {
	return f.extent
}

// RenderPass implements interface
func (f *Framebuffer) RenderPass() gfx.RenderPass {
	return f.pass
}

// Color implements interface
func (f *Framebuffer) Color() gfx.Texture {
	if f.color == nil {
		return nil
	}
	return f.color
}

// Offscreen reports whether the framebuffer owns its colour image
func (f *Framebuffer) Offscreen() bool {
	return f.color != nil
}

// Release implements interface
func (f *Framebuffer) Release() {
	vk.DestroyFramebuffer(f.device, f.framebuffer, nil)
	if f.color != nil {
		f.color.destroy()
	}
	if f.depth != nil {
		f.depth.destroy()
	}
}

func newFramebuffer(dev vk.Device, ma *MemoryAllocator, pass *RenderPass, extent gfx.Extent, image vk.Image, view vk.ImageView) (*Framebuffer, error) {
	fb := &Framebuffer{
		device: dev,
		pass:   pass,
		extent: extent,
		image:  image,
	}

	if view == nil {
		color, err := newImage(dev, ma, imageConfig{
			extent: extent,
			format: pass.colorFormat,
			usage:  vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferSrcBit | vk.ImageUsageTransferDstBit | vk.ImageUsageSampledBit,
			aspect: vk.ImageAspectColorBit,
		})
		if err != nil {
			return nil, err
		}
		color.borrowed = true
		fb.color = color
		fb.image = color.image
		view = color.view
	}
	attachments := []vk.ImageView{view}

	if pass.config.Depth != nil {
		depth, err := newImage(dev, ma, imageConfig{
			extent: extent,
			format: pass.depthFormat,
			usage:  vk.ImageUsageDepthStencilAttachmentBit,
			aspect: vk.ImageAspectDepthBit | vk.ImageAspectStencilBit,
		})
		if err != nil {
			fb.releaseImages()
			return nil, err
		}
		fb.depth = depth
		attachments = append(attachments, depth.view)
	}

	fci := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      pass.renderPass,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		Width:           extent.Width,
		Height:          extent.Height,
		Layers:          1,
	}
	if err := vk.Error(vk.CreateFramebuffer(dev, &fci, nil, &fb.framebuffer)); err != nil {
		fb.releaseImages()
		return nil, fmt.Errorf("vk.CreateFramebuffer(): %w", err)
	}
	return fb, nil
}

func (f *Framebuffer) releaseImages() {
	if f.color != nil {
		f.color.destroy()
	}
	if f.depth != nil {
		f.depth.destroy()
	}
}

// Pipeline implements gfx.Pipeline
type Pipeline struct {
	device    vk.Device
	pipeline  vk.Pipeline
	layout    vk.PipelineLayout
	setLayout vk.DescriptorSetLayout
	bindings  []gfx.Binding
	viewport  gfx.Extent
}

// Bindings implements interface
func (p *Pipeline) Bindings() []gfx.Binding {
	return p.bindings
}

// Release implements interface
func (p *Pipeline) Release() {
	vk.DestroyPipeline(p.device, p.pipeline, nil)
	vk.DestroyPipelineLayout(p.device, p.layout, nil)
	vk.DestroyDescriptorSetLayout(p.device, p.setLayout, nil)
}

func vertexInput(layout gfx.VertexLayout) ([]vk.VertexInputBindingDescription, []vk.VertexInputAttributeDescription, error) {
	if len(layout.Attributes) == 0 {
		return nil, nil, nil
	}
	bindings := []vk.VertexInputBindingDescription{{
		Binding:   0,
		Stride:    layout.Stride,
		InputRate: vk.VertexInputRateVertex,
	}}
	attributes := make([]vk.VertexInputAttributeDescription, len(layout.Attributes))
	for idx, attr := range layout.Attributes {
		f, err := attribFormat(attr.Format)
		if err != nil {
			return nil, nil, err
		}
		attributes[idx] = vk.VertexInputAttributeDescription{
			Binding:  0,
			Location: attr.Location,
			Format:   f,
			Offset:   attr.Offset,
		}
	}
	return bindings, attributes, nil
}

func newPipeline(dev vk.Device, cache vk.PipelineCache, cfg gfx.PipelineConfig) (*Pipeline, error) {
	vs, ok := cfg.VertexShader.(*Shader)
	if !ok || vs.stage != gfx.VertexStage {
		return nil, fmt.Errorf("vulkan: pipeline needs a vertex shader: %w", core.ErrInvalidData)
	}
	fs, ok := cfg.FragmentShader.(*Shader)
	if !ok || fs.stage != gfx.FragmentStage {
		return nil, fmt.Errorf("vulkan: pipeline needs a fragment shader: %w", core.ErrInvalidData)
	}
	pass, ok := cfg.RenderPass.(*RenderPass)
	if !ok {
		return nil, fmt.Errorf("vulkan: pipeline without render pass: %w", core.ErrInvalidData)
	}
	vertexBindings, vertexAttributes, err := vertexInput(cfg.Vertex)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		device:   dev,
		bindings: cfg.Bindings,
		viewport: cfg.Viewport,
	}

	layoutBindings := make([]vk.DescriptorSetLayoutBinding, len(cfg.Bindings))
	for idx, b := range cfg.Bindings {
		layoutBindings[idx] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  descriptorType(b.Type),
			DescriptorCount: 1,
			StageFlags:      stageFlags(b.Stages),
		}
	}
	dslci := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(layoutBindings)),
		PBindings:    layoutBindings,
	}
	if err := vk.Error(vk.CreateDescriptorSetLayout(dev, &dslci, nil, &p.setLayout)); err != nil {
		return nil, fmt.Errorf("vk.CreateDescriptorSetLayout(): %w", err)
	}

	plci := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: 1,
		PSetLayouts:    []vk.DescriptorSetLayout{p.setLayout},
	}
	if err := vk.Error(vk.CreatePipelineLayout(dev, &plci, nil, &p.layout)); err != nil {
		vk.DestroyDescriptorSetLayout(dev, p.setLayout, nil)
		return nil, fmt.Errorf("vk.CreatePipelineLayout(): %w", err)
	}

	stages := []vk.PipelineShaderStageCreateInfo{{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageVertexBit,
		Module: vs.module,
		PName:  core.SafeString("main"),
	}, {
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageFragmentBit,
		Module: fs.module,
		PName:  core.SafeString("main"),
	}}

	var blend vk.Bool32 = vk.False
	if cfg.Blend {
		blend = vk.True
	}
	depthTest, depthWrite := vk.Bool32(vk.False), vk.Bool32(vk.False)
	if cfg.DepthTest && pass.config.Depth != nil {
		depthTest = vk.True
		if cfg.DepthWrite {
			depthWrite = vk.True
		}
	}

	gpci := []vk.GraphicsPipelineCreateInfo{{
		SType:      vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount: uint32(len(stages)),
		PStages:    stages,
		PVertexInputState: &vk.PipelineVertexInputStateCreateInfo{
			SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
			VertexBindingDescriptionCount:   uint32(len(vertexBindings)),
			PVertexBindingDescriptions:      vertexBindings,
			VertexAttributeDescriptionCount: uint32(len(vertexAttributes)),
			PVertexAttributeDescriptions:    vertexAttributes,
		},
		PInputAssemblyState: &vk.PipelineInputAssemblyStateCreateInfo{
			SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
			Topology: topology(cfg.Topology),
		},
		PViewportState: &vk.PipelineViewportStateCreateInfo{
			SType:         vk.StructureTypePipelineViewportStateCreateInfo,
			ViewportCount: 1,
			ScissorCount:  1,
		},
		PRasterizationState: &vk.PipelineRasterizationStateCreateInfo{
			SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
			PolygonMode: vk.PolygonModeFill,
			CullMode:    cullMode(cfg.Cull),
			FrontFace:   vk.FrontFaceCounterClockwise,
			LineWidth:   1.0,
		},
		PDepthStencilState: &vk.PipelineDepthStencilStateCreateInfo{
			SType:            vk.StructureTypePipelineDepthStencilStateCreateInfo,
			DepthTestEnable:  depthTest,
			DepthWriteEnable: depthWrite,
			DepthCompareOp:   vk.CompareOpLessOrEqual,
			Back: vk.StencilOpState{
				FailOp:    vk.StencilOpKeep,
				PassOp:    vk.StencilOpKeep,
				CompareOp: vk.CompareOpAlways,
			},
			Front: vk.StencilOpState{
				FailOp:    vk.StencilOpKeep,
				PassOp:    vk.StencilOpKeep,
				CompareOp: vk.CompareOpAlways,
			},
		},
		PMultisampleState: &vk.PipelineMultisampleStateCreateInfo{
			SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
			RasterizationSamples: vk.SampleCount1Bit,
		},
		PColorBlendState: &vk.PipelineColorBlendStateCreateInfo{
			SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
			AttachmentCount: 1,
			PAttachments: []vk.PipelineColorBlendAttachmentState{{
				ColorWriteMask:      0xF,
				BlendEnable:         blend,
				SrcColorBlendFactor: vk.BlendFactorSrcAlpha,
				DstColorBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
				ColorBlendOp:        vk.BlendOpAdd,
				SrcAlphaBlendFactor: vk.BlendFactorOne,
				DstAlphaBlendFactor: vk.BlendFactorZero,
				AlphaBlendOp:        vk.BlendOpAdd,
			}},
		},
		PDynamicState: &vk.PipelineDynamicStateCreateInfo{
			SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
			DynamicStateCount: 2,
			PDynamicStates: []vk.DynamicState{
				vk.DynamicStateScissor,
				vk.DynamicStateViewport,
			},
		},
		Layout:     p.layout,
		RenderPass: pass.renderPass,
	}}

	pipelines := make([]vk.Pipeline, len(gpci))
	if err := vk.Error(vk.CreateGraphicsPipelines(dev, cache, uint32(len(gpci)), gpci, nil, pipelines)); err != nil {
		vk.DestroyPipelineLayout(dev, p.layout, nil)
		vk.DestroyDescriptorSetLayout(dev, p.setLayout, nil)
		return nil, fmt.Errorf("vk.CreateGraphicsPipelines(): %w", err)
	}
	p.pipeline = pipelines[0]
	return p, nil
}

// DescriptorSet implements gfx.DescriptorSet
type DescriptorSet struct {
	device vk.Device
	pool   vk.DescriptorPool
	set    vk.DescriptorSet
}

// Release implements interface
func (d *DescriptorSet) Release() {
	vk.FreeDescriptorSets(d.device, d.pool, 1, &d.set)
}

func newDescriptorSet(dev vk.Device, pool vk.DescriptorPool, p *Pipeline, writes []gfx.DescriptorWrite) (*DescriptorSet, error) {
	declared := make(map[uint32]gfx.Binding, len(p.bindings))
	for _, b := range p.bindings {
		declared[b.Binding] = b
	}

	dsai := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{p.setLayout},
	}
	var set vk.DescriptorSet
	if err := vk.Error(vk.AllocateDescriptorSets(dev, &dsai, &set)); err != nil {
		return nil, fmt.Errorf("vk.AllocateDescriptorSets(): %w", err)
	}
	ds := &DescriptorSet{device: dev, pool: pool, set: set}

	wds := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		b, ok := declared[w.Binding]
		if !ok {
			ds.Release()
			return nil, fmt.Errorf("vulkan: binding %d not declared by pipeline: %w", w.Binding, core.ErrInvalidData)
		}
		wd := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      w.Binding,
			DstArrayElement: 0,
			DescriptorType:  descriptorType(b.Type),
			DescriptorCount: 1,
		}
		switch b.Type {
		case gfx.UniformBufferDescriptor:
			buf, ok := w.Buffer.(*Buffer)
			if !ok {
				ds.Release()
				return nil, fmt.Errorf("vulkan: binding %d needs a uniform buffer: %w", w.Binding, core.ErrInvalidData)
			}
			wd.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: buf.buffer,
				Offset: 0,
				Range:  vk.DeviceSize(buf.size),
			}}
		case gfx.CombinedImageSamplerDescriptor:
			tex, okTex := w.Texture.(*Image)
			smp, okSmp := w.Sampler.(*Sampler)
			if !okTex || !okSmp {
				ds.Release()
				return nil, fmt.Errorf("vulkan: binding %d needs texture and sampler: %w", w.Binding, core.ErrInvalidData)
			}
			wd.PImageInfo = []vk.DescriptorImageInfo{{
				ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
				ImageView:   tex.view,
				Sampler:     smp.sampler,
			}}
		}
		wds = append(wds, wd)
	}
	if len(wds) > 0 {
		vk.UpdateDescriptorSets(dev, uint32(len(wds)), wds, 0, nil)
	}
	return ds, nil
}
