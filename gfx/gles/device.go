// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gles

import (
	"fmt"
	"image"
	"strings"

	"github.com/devblok/mydemo/core"
	"github.com/devblok/mydemo/gfx"
	"github.com/go-gl/gl/v4.1-core/gl"
	log "github.com/sirupsen/logrus"
)

// Config configures a Device
type Config struct {
	Width, Height uint32
	SwapchainSize int

	// Swap presents the default framebuffer, usually the window swap
	Swap func() error

	Logger log.FieldLogger
}

// NewDevice loads the GL functions of the current context and creates
// a device on it. The context must stay current on the calling thread.
func NewDevice(cfg Config) (*Device, error) {
	if cfg.SwapchainSize <= 0 {
		return nil, fmt.Errorf("gl: swapchain size %d: %w", cfg.SwapchainSize, core.ErrInvalidData)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, fmt.Errorf("gl: extent %dx%d: %w", cfg.Width, cfg.Height, core.ErrInvalidData)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.StandardLogger()
	}
	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("gl: gl.Init(): %w: %s", core.ErrNotFound, err.Error())
	}

	d := &Device{
		log:       cfg.Logger.WithField("backend", gfx.OpenGL.String()),
		swapchain: newSwapchain(cfg),
	}
	gl.GenVertexArrays(1, &d.vao)
	gl.BindVertexArray(d.vao)

	d.log.WithFields(log.Fields{
		"version":  gl.GoStr(gl.GetString(gl.VERSION)),
		"renderer": gl.GoStr(gl.GetString(gl.RENDERER)),
		"slots":    cfg.SwapchainSize,
	}).Debug("device created")
	return d, nil
}

// Device implements gfx.Device
type Device struct {
	log       log.FieldLogger
	swapchain *Swapchain
	vao       uint32
}

// API implements interface
func (d *Device) API() gfx.API {
	return gfx.OpenGL
}

// Swapchain implements interface
func (d *Device) Swapchain() gfx.Swapchain {
	return d.swapchain
}

// CreateBuffer implements interface
func (d *Device) CreateBuffer(usage gfx.BufferUsage, size int) (gfx.Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("gl: buffer size %d: %w", size, core.ErrInvalidData)
	}
	b := &Buffer{size: size, usage: usage}
	gl.GenBuffers(1, &b.id)
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, b.id)
	gl.BufferData(gl.COPY_WRITE_BUFFER, size, nil, gl.DYNAMIC_DRAW)
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, 0)
	return b, nil
}

// CreateShader implements interface, code must be GLSL source
func (d *Device) CreateShader(code []byte, stage gfx.ShaderStage) (gfx.Shader, error) {
	if err := checkGLSL(code); err != nil {
		return nil, err
	}
	xtype, err := shaderType(stage)
	if err != nil {
		return nil, err
	}

	id := gl.CreateShader(xtype)
	csources, free := gl.Strs(core.SafeString(string(code)))
	gl.ShaderSource(id, 1, csources, nil)
	free()
	gl.CompileShader(id)

	var status int32
	gl.GetShaderiv(id, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(id, gl.INFO_LOG_LENGTH, &logLength)
		msg := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(id, logLength, nil, gl.Str(msg))
		gl.DeleteShader(id)

		msg = strings.TrimRight(msg, "\x00")
		d.log.WithField("stage", stage).Error(msg)
		return nil, fmt.Errorf("gl: compile shader: %w: %s", core.ErrInvalidData, msg)
	}
	return &Shader{id: id, stage: stage}, nil
}

// CreateTexture implements interface
func (d *Device) CreateTexture(img image.Image) (gfx.Texture, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("gl: empty texture: %w", core.ErrInvalidData)
	}
	t := &Texture{extent: gfx.Extent{Width: uint32(b.Dx()), Height: uint32(b.Dy())}}
	pixels := core.GetPixels(img, 0)

	gl.GenTextures(1, &t.id)
	gl.BindTexture(gl.TEXTURE_2D, t.id)
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, int32(b.Dx()), int32(b.Dy()), 0, gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(pixels))
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAX_LEVEL, 0)
	gl.BindTexture(gl.TEXTURE_2D, 0)
	return t, nil
}

// CreateSampler implements interface
func (d *Device) CreateSampler(cfg gfx.SamplerConfig) (gfx.Sampler, error) {
	s := &Sampler{}
	gl.GenSamplers(1, &s.id)
	gl.SamplerParameteri(s.id, gl.TEXTURE_MIN_FILTER, filter(cfg.MinFilter))
	gl.SamplerParameteri(s.id, gl.TEXTURE_MAG_FILTER, filter(cfg.MagFilter))
	gl.SamplerParameteri(s.id, gl.TEXTURE_WRAP_S, gl.REPEAT)
	gl.SamplerParameteri(s.id, gl.TEXTURE_WRAP_T, gl.REPEAT)
	return s, nil
}

// CreateRenderPass implements interface
func (d *Device) CreateRenderPass(cfg gfx.RenderPassConfig) (gfx.RenderPass, error) {
	if cfg.Depth != nil && cfg.Depth.Format != gfx.Depth24Stencil8 {
		return nil, fmt.Errorf("gl: depth attachment format %d: %w", cfg.Depth.Format, core.ErrInvalidData)
	}
	if cfg.Color.Format == gfx.Depth24Stencil8 {
		return nil, fmt.Errorf("gl: colour attachment with depth format: %w", core.ErrInvalidData)
	}
	return &RenderPass{config: cfg}, nil
}

// CreateOnScreenFramebuffers implements interface
func (d *Device) CreateOnScreenFramebuffers(pass gfx.RenderPass) ([]gfx.Framebuffer, error) {
	rp, ok := pass.(*RenderPass)
	if !ok {
		return nil, fmt.Errorf("gl: on-screen framebuffers without render pass: %w", core.ErrInvalidData)
	}
	if rp.config.Offscreen {
		return nil, fmt.Errorf("gl: offscreen render pass used on-screen: %w", core.ErrInvalidData)
	}
	fbs := make([]gfx.Framebuffer, d.swapchain.Len())
	for idx := range fbs {
		fbs[idx] = &Framebuffer{pass: rp, extent: d.swapchain.Extent()}
	}
	return fbs, nil
}

// CreateFramebuffer implements interface
func (d *Device) CreateFramebuffer(cfg gfx.FramebufferConfig) (gfx.Framebuffer, error) {
	rp, ok := cfg.RenderPass.(*RenderPass)
	if !ok || cfg.Extent.Width == 0 || cfg.Extent.Height == 0 {
		return nil, fmt.Errorf("gl: framebuffer config: %w", core.ErrInvalidData)
	}
	w, h := int32(cfg.Extent.Width), int32(cfg.Extent.Height)

	fb := &Framebuffer{
		pass:   rp,
		extent: cfg.Extent,
		color:  &Texture{extent: cfg.Extent, borrowed: true},
	}
	gl.GenFramebuffers(1, &fb.id)
	gl.BindFramebuffer(gl.FRAMEBUFFER, fb.id)

	gl.GenTextures(1, &fb.color.id)
	gl.BindTexture(gl.TEXTURE_2D, fb.color.id)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, w, h, 0, gl.RGBA, gl.UNSIGNED_BYTE, nil)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAX_LEVEL, 0)
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, fb.color.id, 0)
	gl.BindTexture(gl.TEXTURE_2D, 0)

	if rp.config.Depth != nil {
		gl.GenRenderbuffers(1, &fb.depth)
		gl.BindRenderbuffer(gl.RENDERBUFFER, fb.depth)
		gl.RenderbufferStorage(gl.RENDERBUFFER, gl.DEPTH24_STENCIL8, w, h)
		gl.FramebufferRenderbuffer(gl.FRAMEBUFFER, gl.DEPTH_STENCIL_ATTACHMENT, gl.RENDERBUFFER, fb.depth)
		gl.BindRenderbuffer(gl.RENDERBUFFER, 0)
	}

	status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	if status != gl.FRAMEBUFFER_COMPLETE {
		fb.Release()
		return nil, fmt.Errorf("gl: framebuffer incomplete, status 0x%x: %w", status, core.ErrInvalidData)
	}
	return fb, nil
}

// CreatePipeline implements interface. Vertex attributes are bound to
// their locations by name before linking, uniform blocks and samplers
// get the binding number of their declaration.
func (d *Device) CreatePipeline(cfg gfx.PipelineConfig) (gfx.Pipeline, error) {
	vs, okv := cfg.VertexShader.(*Shader)
	fs, okf := cfg.FragmentShader.(*Shader)
	if !okv || !okf || vs.stage != gfx.VertexStage || fs.stage != gfx.FragmentStage {
		return nil, fmt.Errorf("gl: pipeline shader stages mismatch: %w", core.ErrInvalidData)
	}
	if cfg.RenderPass == nil {
		return nil, fmt.Errorf("gl: pipeline without render pass: %w", core.ErrInvalidData)
	}
	for _, attr := range cfg.Vertex.Attributes {
		if attr.Name == "" {
			return nil, fmt.Errorf("gl: vertex attribute %d has no name: %w", attr.Location, core.ErrInvalidData)
		}
	}

	program := gl.CreateProgram()
	gl.AttachShader(program, vs.id)
	gl.AttachShader(program, fs.id)
	for _, attr := range cfg.Vertex.Attributes {
		gl.BindAttribLocation(program, attr.Location, gl.Str(core.SafeString(attr.Name)))
	}
	gl.LinkProgram(program)
	gl.DetachShader(program, vs.id)
	gl.DetachShader(program, fs.id)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLength)
		msg := strings.Repeat("\x00", int(logLength+1))
		gl.GetProgramInfoLog(program, logLength, nil, gl.Str(msg))
		gl.DeleteProgram(program)

		msg = strings.TrimRight(msg, "\x00")
		d.log.Error(msg)
		return nil, fmt.Errorf("gl: link program: %w: %s", core.ErrInvalidData, msg)
	}

	gl.UseProgram(program)
	for _, b := range cfg.Bindings {
		name := gl.Str(core.SafeString(b.Name))
		switch b.Type {
		case gfx.UniformBufferDescriptor:
			idx := gl.GetUniformBlockIndex(program, name)
			if idx == gl.INVALID_INDEX {
				d.log.WithField("block", b.Name).Debug("uniform block not active")
				continue
			}
			gl.UniformBlockBinding(program, idx, b.Binding)
		case gfx.CombinedImageSamplerDescriptor:
			loc := gl.GetUniformLocation(program, name)
			if loc < 0 {
				d.log.WithField("sampler", b.Name).Debug("sampler not active")
				continue
			}
			gl.Uniform1i(loc, int32(b.Binding))
		}
	}
	gl.UseProgram(0)

	return &Pipeline{program: program, config: cfg}, nil
}

// CreateDescriptorSet implements interface
func (d *Device) CreateDescriptorSet(p gfx.Pipeline, writes ...gfx.DescriptorWrite) (gfx.DescriptorSet, error) {
	if p == nil {
		return nil, fmt.Errorf("gl: descriptor set without pipeline: %w", core.ErrInvalidData)
	}
	bindings := make(map[uint32]gfx.Binding)
	for _, b := range p.Bindings() {
		bindings[b.Binding] = b
	}
	for _, w := range writes {
		b, ok := bindings[w.Binding]
		if !ok {
			return nil, fmt.Errorf("gl: binding %d not declared by pipeline: %w", w.Binding, core.ErrInvalidData)
		}
		switch b.Type {
		case gfx.UniformBufferDescriptor:
			if _, ok := w.Buffer.(*Buffer); !ok || w.Buffer.Usage()&gfx.UniformBuffer == 0 {
				return nil, fmt.Errorf("gl: binding %d needs a uniform buffer: %w", w.Binding, core.ErrInvalidData)
			}
		case gfx.CombinedImageSamplerDescriptor:
			_, okt := w.Texture.(*Texture)
			_, oks := w.Sampler.(*Sampler)
			if !okt || !oks {
				return nil, fmt.Errorf("gl: binding %d needs texture and sampler: %w", w.Binding, core.ErrInvalidData)
			}
		}
	}
	return &DescriptorSet{writes: writes}, nil
}

// CreateCommandBuffers implements interface
func (d *Device) CreateCommandBuffers(n int) ([]gfx.CommandBuffer, error) {
	if n <= 0 {
		return nil, fmt.Errorf("gl: %d command buffers: %w", n, core.ErrInvalidData)
	}
	cbs := make([]gfx.CommandBuffer, n)
	for idx := range cbs {
		cbs[idx] = &CommandBuffer{device: d}
	}
	return cbs, nil
}

// Submit implements interface
func (d *Device) Submit(slot int, cb gfx.CommandBuffer) error {
	gcb, ok := cb.(*CommandBuffer)
	if !ok || gcb.device != d {
		return fmt.Errorf("gl: foreign command buffer: %w", core.ErrInvalidData)
	}
	if !gcb.recorded {
		return fmt.Errorf("gl: command buffer not recorded: %w", core.ErrInvalidData)
	}
	if slot != d.swapchain.acquired {
		return fmt.Errorf("gl: submit to slot %d which is not acquired: %w", slot, core.ErrInvalidData)
	}

	gl.BindVertexArray(d.vao)
	gcb.replay()
	if err := d.swapchain.submitted(slot); err != nil {
		return err
	}
	d.log.WithField("slot", slot).Debug("submitted")
	return nil
}

// WaitIdle implements interface
func (d *Device) WaitIdle() error {
	d.swapchain.drain()
	if code := gl.GetError(); code != gl.NO_ERROR {
		return fmt.Errorf("gl: glGetError() 0x%x: %w", code, core.ErrUnknown)
	}
	return nil
}

// Destroy implements interface
func (d *Device) Destroy() {
	d.swapchain.drain()
	gl.BindVertexArray(0)
	gl.DeleteVertexArrays(1, &d.vao)
}
