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

// CommandBuffer implements gfx.CommandBuffer. Recording errors are kept
// and reported by End, the gfx recording calls have no error results.
type CommandBuffer struct {
	device vk.Device
	pool   vk.CommandPool
	cmd    vk.CommandBuffer

	recording bool
	err       error
}

// Release implements interface
func (c *CommandBuffer) Release() {
	vk.FreeCommandBuffers(c.device, c.pool, 1, []vk.CommandBuffer{c.cmd})
}

func (c *CommandBuffer) fail(format string, args ...interface{}) {
	if c.err == nil {
		c.err = fmt.Errorf("vulkan: "+format+": %w", append(args, core.ErrInvalidData)...)
	}
}

// Begin implements interface
func (c *CommandBuffer) Begin() error {
	if c.recording {
		return fmt.Errorf("vulkan: Begin while recording: %w", core.ErrInvalidData)
	}
	if err := vk.Error(vk.ResetCommandBuffer(c.cmd, vk.CommandBufferResetFlags(vk.CommandBufferResetReleaseResourcesBit))); err != nil {
		return fmt.Errorf("vk.ResetCommandBuffer(): %w", err)
	}
	cbbi := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageSimultaneousUseBit),
	}
	if err := vk.Error(vk.BeginCommandBuffer(c.cmd, &cbbi)); err != nil {
		return fmt.Errorf("vk.BeginCommandBuffer(): %w", err)
	}
	c.recording = true
	c.err = nil
	return nil
}

// BeginRenderPass implements interface. Viewport and scissor follow the area.
func (c *CommandBuffer) BeginRenderPass(fb gfx.Framebuffer, area gfx.Rect, clear gfx.ClearValues) {
	vfb, ok := fb.(*Framebuffer)
	if !ok {
		c.fail("render pass without framebuffer")
		return
	}

	clearValues := make([]vk.ClearValue, 1, 2)
	clearValues[0].SetColor(clear.Color[:])
	if vfb.depth != nil {
		var depth vk.ClearValue
		depth.SetDepthStencil(clear.Depth, clear.Stencil)
		clearValues = append(clearValues, depth)
	}

	rpbi := vk.RenderPassBeginInfo{
		SType:           vk.StructureTypeRenderPassBeginInfo,
		RenderPass:      vfb.pass.renderPass,
		Framebuffer:     vfb.framebuffer,
		RenderArea:      rect2D(area),
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(c.cmd, &rpbi, vk.SubpassContentsInline)

	viewport := vk.Viewport{
		X:        float32(area.X),
		Y:        float32(area.Y),
		Width:    float32(area.Width),
		Height:   float32(area.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}
	vk.CmdSetViewport(c.cmd, 0, 1, []vk.Viewport{viewport})
	vk.CmdSetScissor(c.cmd, 0, 1, []vk.Rect2D{rect2D(area)})
}

// BindPipeline implements interface
func (c *CommandBuffer) BindPipeline(p gfx.Pipeline) {
	vp, ok := p.(*Pipeline)
	if !ok {
		c.fail("nil pipeline")
		return
	}
	vk.CmdBindPipeline(c.cmd, vk.PipelineBindPointGraphics, vp.pipeline)
}

// BindDescriptorSet implements interface
func (c *CommandBuffer) BindDescriptorSet(p gfx.Pipeline, set gfx.DescriptorSet) {
	vp, okp := p.(*Pipeline)
	vs, oks := set.(*DescriptorSet)
	if !okp || !oks {
		c.fail("descriptor set binding")
		return
	}
	vk.CmdBindDescriptorSets(c.cmd, vk.PipelineBindPointGraphics, vp.layout, 0, 1, []vk.DescriptorSet{vs.set}, 0, nil)
}

// BindVertexBuffer implements interface
func (c *CommandBuffer) BindVertexBuffer(b gfx.Buffer, offset int) {
	vb, ok := b.(*Buffer)
	if !ok || vb.usage&gfx.VertexBuffer == 0 {
		c.fail("vertex buffer binding")
		return
	}
	vk.CmdBindVertexBuffers(c.cmd, 0, 1, []vk.Buffer{vb.buffer}, []vk.DeviceSize{vk.DeviceSize(offset)})
}

// BindIndexBuffer implements interface
func (c *CommandBuffer) BindIndexBuffer(b gfx.Buffer, offset int, t gfx.IndexType) {
	vb, ok := b.(*Buffer)
	if !ok || vb.usage&gfx.IndexBuffer == 0 {
		c.fail("index buffer binding")
		return
	}
	vk.CmdBindIndexBuffer(c.cmd, vb.buffer, vk.DeviceSize(offset), indexType(t))
}

// DrawIndexed implements interface
func (c *CommandBuffer) DrawIndexed(firstIndex, indexCount, vertexOffset, instanceCount int) {
	vk.CmdDrawIndexed(c.cmd, uint32(indexCount), uint32(instanceCount), uint32(firstIndex), int32(vertexOffset), 0)
}

// DrawArrays implements interface
func (c *CommandBuffer) DrawArrays(firstVertex, vertexCount, instanceCount int) {
	vk.CmdDraw(c.cmd, uint32(vertexCount), uint32(instanceCount), uint32(firstVertex), 0)
}

// EndRenderPass implements interface
func (c *CommandBuffer) EndRenderPass() {
	vk.CmdEndRenderPass(c.cmd)
}

// Blit implements interface. The source must come out of an offscreen
// pass. The destination is moved to transfer layout, its old contents are
// discarded, and afterwards it is ready for present or sampling.
func (c *CommandBuffer) Blit(src, dst gfx.Framebuffer, srcRect, dstRect gfx.Rect, f gfx.Filter) {
	vsrc, oks := src.(*Framebuffer)
	vdst, okd := dst.(*Framebuffer)
	if !oks || !okd || !vsrc.Offscreen() {
		c.fail("blit needs an offscreen source and a destination")
		return
	}

	after := vk.ImageLayoutPresentSrc
	if vdst.Offscreen() {
		after = vk.ImageLayoutShaderReadOnlyOptimal
	}

	c.barrier(vdst.image, vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal,
		0, vk.AccessTransferWriteBit,
		vk.PipelineStageTopOfPipeBit, vk.PipelineStageTransferBit)

	subresource := vk.ImageSubresourceLayers{
		AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
		MipLevel:       0,
		BaseArrayLayer: 0,
		LayerCount:     1,
	}
	region := vk.ImageBlit{
		SrcSubresource: subresource,
		SrcOffsets:     blitOffsets(srcRect),
		DstSubresource: subresource,
		DstOffsets:     blitOffsets(dstRect),
	}
	vk.CmdBlitImage(c.cmd,
		vsrc.image, vk.ImageLayoutTransferSrcOptimal,
		vdst.image, vk.ImageLayoutTransferDstOptimal,
		1, []vk.ImageBlit{region}, filter(f))

	c.barrier(vdst.image, vk.ImageLayoutTransferDstOptimal, after,
		vk.AccessTransferWriteBit, vk.AccessMemoryReadBit,
		vk.PipelineStageTransferBit, vk.PipelineStageBottomOfPipeBit)
}

func (c *CommandBuffer) barrier(img vk.Image, old, new vk.ImageLayout, srcAccess, dstAccess vk.AccessFlagBits, srcStage, dstStage vk.PipelineStageFlagBits) {
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       vk.AccessFlags(srcAccess),
		DstAccessMask:       vk.AccessFlags(dstAccess),
		OldLayout:           old,
		NewLayout:           new,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               img,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	vk.CmdPipelineBarrier(c.cmd, vk.PipelineStageFlags(srcStage), vk.PipelineStageFlags(dstStage), 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

// End implements interface
func (c *CommandBuffer) End() error {
	if !c.recording {
		return fmt.Errorf("vulkan: End without Begin: %w", core.ErrInvalidData)
	}
	c.recording = false
	if err := vk.Error(vk.EndCommandBuffer(c.cmd)); err != nil {
		return fmt.Errorf("vk.EndCommandBuffer(): %w", err)
	}
	return c.err
}
