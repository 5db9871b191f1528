// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gles

import (
	"github.com/devblok/mydemo/gfx"
	"github.com/go-gl/gl/v4.1-core/gl"
)

// Buffer implements gfx.Buffer
type Buffer struct {
	id    uint32
	size  int
	usage gfx.BufferUsage
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
	if len(data) == 0 {
		return nil
	}
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, b.id)
	gl.BufferSubData(gl.COPY_WRITE_BUFFER, offset, len(data), gl.Ptr(data))
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, 0)
	return nil
}

// Release implements interface
func (b *Buffer) Release() {
	gl.DeleteBuffers(1, &b.id)
}

// Shader implements gfx.Shader
type Shader struct {
	id    uint32
	stage gfx.ShaderStage
}

// Stage implements interface
func (s *Shader) Stage() gfx.ShaderStage {
	return s.stage
}

// Release implements interface
func (s *Shader) Release() {
	gl.DeleteShader(s.id)
}

// Texture implements gfx.Texture
type Texture struct {
	id     uint32
	extent gfx.Extent

	// owned by a framebuffer
	borrowed bool
}

// Extent implements interface
func (t *Texture) Extent() gfx.Extent {
	return t.extent
}

// Release implements interface
func (t *Texture) Release() {
	if t.borrowed {
		return
	}
	gl.DeleteTextures(1, &t.id)
}

// Sampler implements gfx.Sampler
type Sampler struct {
	id uint32
}

// Release implements interface
func (s *Sampler) Release() {
	gl.DeleteSamplers(1, &s.id)
}

// RenderPass implements gfx.RenderPass. GL has no render pass object,
// the configuration drives clears in BeginRenderPass.
type RenderPass struct {
	config gfx.RenderPassConfig
}

// Config implements interface
func (r *RenderPass) Config() gfx.RenderPassConfig {
	return r.config
}

// Release implements interface
func (r *RenderPass) Release() {}

// Framebuffer implements gfx.Framebuffer. On-screen framebuffers are the
// default framebuffer, id 0.
type Framebuffer struct {
	id     uint32
	pass   *RenderPass
	extent gfx.Extent
	color  *Texture
	depth  uint32
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

// Release implements interface
func (f *Framebuffer) Release() {
	if f.id == 0 {
		return
	}
	gl.DeleteFramebuffers(1, &f.id)
	if f.depth != 0 {
		gl.DeleteRenderbuffers(1, &f.depth)
	}
	if f.color != nil {
		gl.DeleteTextures(1, &f.color.id)
	}
}

// Pipeline implements gfx.Pipeline
type Pipeline struct {
	program uint32
	config  gfx.PipelineConfig
}

// Bindings implements interface
func (p *Pipeline) Bindings() []gfx.Binding {
	return p.config.Bindings
}

// Release implements interface
func (p *Pipeline) Release() {
	gl.DeleteProgram(p.program)
}

// apply sets the fixed function state of the pipeline
func (p *Pipeline) apply() {
	gl.UseProgram(p.program)

	if p.config.Cull == gfx.CullBack {
		gl.Enable(gl.CULL_FACE)
		gl.CullFace(gl.BACK)
		gl.FrontFace(gl.CCW)
	} else {
		gl.Disable(gl.CULL_FACE)
	}

	if p.config.DepthTest && p.config.RenderPass.Config().Depth != nil {
		gl.Enable(gl.DEPTH_TEST)
		gl.DepthFunc(gl.LEQUAL)
	} else {
		gl.Disable(gl.DEPTH_TEST)
	}
	gl.DepthMask(p.config.DepthWrite)

	if p.config.Blend {
		gl.Enable(gl.BLEND)
		gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)
	} else {
		gl.Disable(gl.BLEND)
	}
}

// DescriptorSet implements gfx.DescriptorSet
type DescriptorSet struct {
	writes []gfx.DescriptorWrite
}

// Release implements interface
func (d *DescriptorSet) Release() {}

// bind attaches uniform buffers to their binding points and textures to
// the unit with the number of their binding.
func (d *DescriptorSet) bind() {
	for _, w := range d.writes {
		if buf, ok := w.Buffer.(*Buffer); ok {
			gl.BindBufferBase(gl.UNIFORM_BUFFER, w.Binding, buf.id)
			continue
		}
		tex, okt := w.Texture.(*Texture)
		sampler, oks := w.Sampler.(*Sampler)
		if okt && oks {
			gl.ActiveTexture(gl.TEXTURE0 + w.Binding)
			gl.BindTexture(gl.TEXTURE_2D, tex.id)
			gl.BindSampler(w.Binding, sampler.id)
		}
	}
}
