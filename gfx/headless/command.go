// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package headless

import (
	"fmt"

	"github.com/devblok/mydemo/core"
	"github.com/devblok/mydemo/gfx"
)

// Op is a recorded command
type Op int

// Recorded commands
const (
	OpBeginRenderPass Op = iota
	OpBindPipeline
	OpBindDescriptorSet
	OpBindVertexBuffer
	OpBindIndexBuffer
	OpDrawIndexed
	OpDrawArrays
	OpEndRenderPass
	OpBlit
)

var opNames = [...]string{
	"BeginRenderPass",
	"BindPipeline",
	"BindDescriptorSet",
	"BindVertexBuffer",
	"BindIndexBuffer",
	"DrawIndexed",
	"DrawArrays",
	"EndRenderPass",
	"Blit",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// Command is one recorded command with the arguments that matter to tests
type Command struct {
	Op Op

	Framebuffer   *Framebuffer
	Target        *Framebuffer
	Clear         gfx.ClearValues
	Pipeline      *Pipeline
	DescriptorSet *DescriptorSet
	Buffer        *Buffer
	IndexType     gfx.IndexType

	// First, Count and Instances of draws
	First, Count, Instances int
}

type recordState int

const (
	initial recordState = iota
	recording
	recorded
)

// CommandBuffer implements gfx.CommandBuffer by recording into a slice
type CommandBuffer struct {
	object

	state     recordState
	commands  []Command
	inPass    bool
	pipeline  bool
	recordErr error

	// Recordings counts Begin calls
	Recordings int
}

// Commands returns the last recording
func (c *CommandBuffer) Commands() []Command {
	return c.commands
}

func (c *CommandBuffer) fail(format string, args ...interface{}) {
	if c.recordErr == nil {
		c.recordErr = fmt.Errorf("headless: "+format+": %w", append(args, core.ErrInvalidData)...)
	}
}

func (c *CommandBuffer) record(cmd Command) {
	if c.state != recording {
		c.fail("%s outside of Begin/End", cmd.Op)
		return
	}
	c.commands = append(c.commands, cmd)
}

// Begin implements interface
func (c *CommandBuffer) Begin() error {
	if c.state == recording {
		return fmt.Errorf("headless: Begin while recording: %w", core.ErrInvalidData)
	}
	c.state = recording
	c.commands = c.commands[:0]
	c.inPass = false
	c.pipeline = false
	c.recordErr = nil
	c.Recordings++
	return nil
}

// BeginRenderPass implements interface
func (c *CommandBuffer) BeginRenderPass(fb gfx.Framebuffer, area gfx.Rect, clear gfx.ClearValues) {
	if c.inPass {
		c.fail("nested render pass")
	}
	hfb, _ := fb.(*Framebuffer)
	if hfb == nil {
		c.fail("render pass without framebuffer")
	}
	c.inPass = true
	c.record(Command{Op: OpBeginRenderPass, Framebuffer: hfb, Clear: clear})
}

// BindPipeline implements interface
func (c *CommandBuffer) BindPipeline(p gfx.Pipeline) {
	hp, _ := p.(*Pipeline)
	if hp == nil {
		c.fail("nil pipeline")
	}
	c.pipeline = true
	c.record(Command{Op: OpBindPipeline, Pipeline: hp})
}

// BindDescriptorSet implements interface
func (c *CommandBuffer) BindDescriptorSet(p gfx.Pipeline, set gfx.DescriptorSet) {
	hp, _ := p.(*Pipeline)
	hs, _ := set.(*DescriptorSet)
	if hs == nil {
		c.fail("nil descriptor set")
		return
	}
	c.record(Command{Op: OpBindDescriptorSet, Pipeline: hp, DescriptorSet: hs})
}

// BindVertexBuffer implements interface
func (c *CommandBuffer) BindVertexBuffer(b gfx.Buffer, offset int) {
	hb, _ := b.(*Buffer)
	if hb == nil || hb.usage&gfx.VertexBuffer == 0 {
		c.fail("vertex buffer binding")
	}
	c.record(Command{Op: OpBindVertexBuffer, Buffer: hb, First: offset})
}

// BindIndexBuffer implements interface
func (c *CommandBuffer) BindIndexBuffer(b gfx.Buffer, offset int, t gfx.IndexType) {
	hb, _ := b.(*Buffer)
	if hb == nil || hb.usage&gfx.IndexBuffer == 0 {
		c.fail("index buffer binding")
	}
	c.record(Command{Op: OpBindIndexBuffer, Buffer: hb, First: offset, IndexType: t})
}

func (c *CommandBuffer) checkDraw() {
	if !c.inPass {
		c.fail("draw outside of render pass")
	}
	if !c.pipeline {
		c.fail("draw without pipeline")
	}
}

// DrawIndexed implements interface
func (c *CommandBuffer) DrawIndexed(firstIndex, indexCount, vertexOffset, instanceCount int) {
	c.checkDraw()
	c.record(Command{Op: OpDrawIndexed, First: firstIndex, Count: indexCount, Instances: instanceCount})
}

// DrawArrays implements interface
func (c *CommandBuffer) DrawArrays(firstVertex, vertexCount, instanceCount int) {
	c.checkDraw()
	c.record(Command{Op: OpDrawArrays, First: firstVertex, Count: vertexCount, Instances: instanceCount})
}

// EndRenderPass implements interface
func (c *CommandBuffer) EndRenderPass() {
	if !c.inPass {
		c.fail("EndRenderPass without render pass")
	}
	c.inPass = false
	c.record(Command{Op: OpEndRenderPass})
}

// Blit implements interface
func (c *CommandBuffer) Blit(src, dst gfx.Framebuffer, srcRect, dstRect gfx.Rect, filter gfx.Filter) {
	if c.inPass {
		c.fail("blit inside render pass")
	}
	hsrc, _ := src.(*Framebuffer)
	hdst, _ := dst.(*Framebuffer)
	if hsrc == nil || hdst == nil || hsrc.color == nil {
		c.fail("blit needs an offscreen source and a destination")
	}
	c.record(Command{Op: OpBlit, Framebuffer: hsrc, Target: hdst})
}

// End implements interface
func (c *CommandBuffer) End() error {
	if c.state != recording {
		return fmt.Errorf("headless: End without Begin: %w", core.ErrInvalidData)
	}
	if c.inPass {
		c.fail("render pass left open")
	}
	if c.recordErr != nil {
		c.state = initial
		return c.recordErr
	}
	c.state = recorded
	return nil
}

// Ops lists the recorded ops, handy for comparisons
func Ops(cmds []Command) []Op {
	ops := make([]Op, len(cmds))
	for idx, cmd := range cmds {
		ops[idx] = cmd.Op
	}
	return ops
}
