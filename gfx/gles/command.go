// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gles

import (
	"fmt"

	"github.com/devblok/mydemo/core"
	"github.com/devblok/mydemo/gfx"
	"github.com/go-gl/gl/v4.1-core/gl"
)

// CommandBuffer implements gfx.CommandBuffer. Recording validates the
// arguments and stores closures issuing the GL calls, Submit replays them.
type CommandBuffer struct {
	device *Device
	ops    []func()

	recording bool
	recorded  bool
	err       error

	// state at the current recording position
	pipeline  *Pipeline
	indexType gfx.IndexType
	indexBase int
}

// Release implements interface
func (c *CommandBuffer) Release() {
	c.ops = nil
}

func (c *CommandBuffer) fail(format string, args ...interface{}) {
	if c.err == nil {
		c.err = fmt.Errorf("gl: "+format+": %w", append(args, core.ErrInvalidData)...)
	}
}

func (c *CommandBuffer) record(op func()) {
	if !c.recording {
		c.fail("command recorded outside of Begin and End")
		return
	}
	c.ops = append(c.ops, op)
}

// Begin implements interface
func (c *CommandBuffer) Begin() error {
	if c.recording {
		return fmt.Errorf("gl: Begin while recording: %w", core.ErrInvalidData)
	}
	c.ops = c.ops[:0]
	c.recording = true
	c.recorded = false
	c.err = nil
	c.pipeline = nil
	return nil
}

// BeginRenderPass implements interface
func (c *CommandBuffer) BeginRenderPass(fb gfx.Framebuffer, area gfx.Rect, clear gfx.ClearValues) {
	gfb, ok := fb.(*Framebuffer)
	if !ok {
		c.fail("render pass without framebuffer")
		return
	}
	mask := clearMask(gfb.pass.config)
	c.record(func() {
		gl.BindFramebuffer(gl.FRAMEBUFFER, gfb.id)
		gl.Viewport(area.X, area.Y, int32(area.Width), int32(area.Height))
		gl.Enable(gl.SCISSOR_TEST)
		gl.Scissor(area.X, area.Y, int32(area.Width), int32(area.Height))
		if mask == 0 {
			return
		}
		gl.ClearColor(clear.Color[0], clear.Color[1], clear.Color[2], clear.Color[3])
		gl.ClearDepth(float64(clear.Depth))
		gl.ClearStencil(int32(clear.Stencil))
		gl.DepthMask(true)
		gl.Clear(mask)
	})
}

// BindPipeline implements interface
func (c *CommandBuffer) BindPipeline(p gfx.Pipeline) {
	gp, ok := p.(*Pipeline)
	if !ok {
		c.fail("nil pipeline")
		return
	}
	c.pipeline = gp
	c.record(gp.apply)
}

// BindDescriptorSet implements interface
func (c *CommandBuffer) BindDescriptorSet(p gfx.Pipeline, set gfx.DescriptorSet) {
	gs, ok := set.(*DescriptorSet)
	if !ok || p == nil {
		c.fail("descriptor set binding")
		return
	}
	c.record(gs.bind)
}

// BindVertexBuffer implements interface. The attribute layout is taken
// from the bound pipeline.
func (c *CommandBuffer) BindVertexBuffer(b gfx.Buffer, offset int) {
	gb, ok := b.(*Buffer)
	if !ok || gb.usage&gfx.VertexBuffer == 0 {
		c.fail("vertex buffer binding")
		return
	}
	if c.pipeline == nil {
		c.fail("vertex buffer bound before pipeline")
		return
	}
	layout := c.pipeline.config.Vertex
	c.record(func() {
		gl.BindBuffer(gl.ARRAY_BUFFER, gb.id)
		for _, attr := range layout.Attributes {
			gl.EnableVertexAttribArray(attr.Location)
			gl.VertexAttribPointer(attr.Location, int32(attr.Format.Components()), gl.FLOAT, false,
				int32(layout.Stride), gl.PtrOffset(offset+int(attr.Offset)))
		}
	})
}

// BindIndexBuffer implements interface
func (c *CommandBuffer) BindIndexBuffer(b gfx.Buffer, offset int, t gfx.IndexType) {
	gb, ok := b.(*Buffer)
	if !ok || gb.usage&gfx.IndexBuffer == 0 {
		c.fail("index buffer binding")
		return
	}
	c.indexType = t
	c.indexBase = offset
	c.record(func() {
		gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, gb.id)
	})
}

// DrawIndexed implements interface
func (c *CommandBuffer) DrawIndexed(firstIndex, indexCount, vertexOffset, instanceCount int) {
	if c.pipeline == nil {
		c.fail("draw without pipeline")
		return
	}
	mode := drawMode(c.pipeline.config.Topology)
	xtype, size := indexType(c.indexType)
	start := c.indexBase + firstIndex*size
	c.record(func() {
		gl.DrawElementsInstancedBaseVertex(mode, int32(indexCount), xtype, gl.PtrOffset(start), int32(instanceCount), int32(vertexOffset))
	})
}

// DrawArrays implements interface
func (c *CommandBuffer) DrawArrays(firstVertex, vertexCount, instanceCount int) {
	if c.pipeline == nil {
		c.fail("draw without pipeline")
		return
	}
	mode := drawMode(c.pipeline.config.Topology)
	c.record(func() {
		gl.DrawArraysInstanced(mode, int32(firstVertex), int32(vertexCount), int32(instanceCount))
	})
}

// EndRenderPass implements interface
func (c *CommandBuffer) EndRenderPass() {
	c.record(func() {
		gl.Disable(gl.SCISSOR_TEST)
	})
}

// Blit implements interface
func (c *CommandBuffer) Blit(src, dst gfx.Framebuffer, srcRect, dstRect gfx.Rect, f gfx.Filter) {
	gsrc, oks := src.(*Framebuffer)
	gdst, okd := dst.(*Framebuffer)
	if !oks || !okd || gsrc.color == nil {
		c.fail("blit needs an offscreen source and a destination")
		return
	}
	c.record(func() {
		gl.BindFramebuffer(gl.READ_FRAMEBUFFER, gsrc.id)
		gl.BindFramebuffer(gl.DRAW_FRAMEBUFFER, gdst.id)
		gl.BlitFramebuffer(
			srcRect.X, srcRect.Y, srcRect.X+int32(srcRect.Width), srcRect.Y+int32(srcRect.Height),
			dstRect.X, dstRect.Y, dstRect.X+int32(dstRect.Width), dstRect.Y+int32(dstRect.Height),
			gl.COLOR_BUFFER_BIT, uint32(filter(f)))
		gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	})
}

// End implements interface
func (c *CommandBuffer) End() error {
	if !c.recording {
		return fmt.Errorf("gl: End without Begin: %w", core.ErrInvalidData)
	}
	c.recording = false
	c.recorded = c.err == nil
	return c.err
}

func (c *CommandBuffer) replay() {
	for _, op := range c.ops {
		op()
	}
}
