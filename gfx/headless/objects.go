// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package headless

import (
	"sync"

	"github.com/devblok/mydemo/gfx"
)

type object struct {
	device   *Device
	what     string
	released bool
}

func (o *object) Release() {
	if o.released {
		o.device.log.WithField("object", o.what).Warn("released twice")
		return
	}
	o.released = true
	o.device.released(o.what)
}

// Released reports whether Release was called
func (o *object) Released() bool {
	return o.released
}

// BufferWrite records a single Buffer.Write
type BufferWrite struct {
	Offset, Len int
}

// Buffer implements gfx.Buffer in memory
type Buffer struct {
	device   *Device
	usage    gfx.BufferUsage
	released bool

	mutex  sync.Mutex
	data   []byte
	writes []BufferWrite
}

// Size implements interface
func (b *Buffer) Size() int {
	return len(b.data)
}

// Usage implements interface
func (b *Buffer) Usage() gfx.BufferUsage {
	return b.usage
}

// Write implements interface
func (b *Buffer) Write(offset int, data []byte) error {
	if err := gfx.CheckWrite(len(b.data), offset, len(data)); err != nil {
		return err
	}
	b.mutex.Lock()
	defer b.mutex.Unlock()
	copy(b.data[offset:], data)
	b.writes = append(b.writes, BufferWrite{Offset: offset, Len: len(data)})
	return nil
}

// Bytes returns a copy of the buffer contents
func (b *Buffer) Bytes() []byte {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return append([]byte(nil), b.data...)
}

// Writes returns every write made to the buffer
func (b *Buffer) Writes() []BufferWrite {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return append([]BufferWrite(nil), b.writes...)
}

// Release implements interface
func (b *Buffer) Release() {
	if b.released {
		b.device.log.WithField("object", "buffer").Warn("released twice")
		return
	}
	b.released = true
	b.device.released("buffer")
}

// Shader implements gfx.Shader
type Shader struct {
	object
	stage gfx.ShaderStage
}

// Stage implements interface
func (s *Shader) Stage() gfx.ShaderStage {
	return s.stage
}

// Texture implements gfx.Texture
type Texture struct {
	object
	extent gfx.Extent
	pixels []byte
}

// Extent implements interface
func (t *Texture) Extent() gfx.Extent {
	return t.extent
}

// Pixels returns the RGBA texels
func (t *Texture) Pixels() []byte {
	return t.pixels
}

// Sampler implements gfx.Sampler
type Sampler struct {
	object
	Config gfx.SamplerConfig
}

// RenderPass implements gfx.RenderPass
type RenderPass struct {
	object
	config gfx.RenderPassConfig
}

// Config implements interface
func (r *RenderPass) Config() gfx.RenderPassConfig {
	return r.config
}

// Framebuffer implements gfx.Framebuffer
type Framebuffer struct {
	object
	pass   gfx.RenderPass
	extent gfx.Extent
	color  *Texture

	// Slot is the swapchain slot of on-screen framebuffers, -1 offscreen
	Slot int
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

// Release implements interface, offscreen attachments go with it
func (f *Framebuffer) Release() {
	if f.color != nil && !f.color.released {
		f.color.Release()
	}
	f.object.Release()
}

// Pipeline implements gfx.Pipeline
type Pipeline struct {
	object
	Config gfx.PipelineConfig
}

// Bindings implements interface
func (p *Pipeline) Bindings() []gfx.Binding {
	return p.Config.Bindings
}

// DescriptorSet implements gfx.DescriptorSet
type DescriptorSet struct {
	object
	Writes []gfx.DescriptorWrite
}
