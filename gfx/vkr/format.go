// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vkr

import (
	"encoding/binary"
	"fmt"

	"github.com/devblok/mydemo/core"
	"github.com/devblok/mydemo/gfx"
	vk "github.com/devblok/vulkan"
)

// spirvMagic is the first word of every SPIR-V module
const spirvMagic = 0x07230203

func checkSPIRV(code []byte) error {
	if len(code) < 4 || len(code)%4 != 0 {
		return fmt.Errorf("vulkan: shader of %d bytes is not SPIR-V: %w", len(code), core.ErrInvalidData)
	}
	if binary.LittleEndian.Uint32(code) != spirvMagic {
		return fmt.Errorf("vulkan: shader has no SPIR-V magic: %w", core.ErrInvalidData)
	}
	return nil
}

func format(f gfx.Format, surface vk.Format) vk.Format {
	switch f {
	case gfx.RGBA8:
		return vk.FormatR8g8b8a8Unorm
	case gfx.Depth24Stencil8:
		return vk.FormatD24UnormS8Uint
	default:
		return surface
	}
}

func isDepth(f gfx.Format) bool {
	return f == gfx.Depth24Stencil8
}

func loadOp(op gfx.LoadOp) vk.AttachmentLoadOp {
	switch op {
	case gfx.LoadOpLoad:
		return vk.AttachmentLoadOpLoad
	case gfx.LoadOpDontCare:
		return vk.AttachmentLoadOpDontCare
	default:
		return vk.AttachmentLoadOpClear
	}
}

func storeOp(op gfx.StoreOp) vk.AttachmentStoreOp {
	if op == gfx.StoreOpDontCare {
		return vk.AttachmentStoreOpDontCare
	}
	return vk.AttachmentStoreOpStore
}

// colorLayouts returns the initial and final layout of the colour attachment.
// On-screen passes end ready for present, offscreen ones ready for a blit.
func colorLayouts(cfg gfx.RenderPassConfig) (vk.ImageLayout, vk.ImageLayout) {
	final := vk.ImageLayoutPresentSrc
	if cfg.Offscreen {
		final = vk.ImageLayoutTransferSrcOptimal
	}
	if cfg.Color.Load == gfx.LoadOpLoad {
		return final, final
	}
	return vk.ImageLayoutUndefined, final
}

func attribFormat(f gfx.AttribFormat) (vk.Format, error) {
	switch f {
	case gfx.Float2:
		return vk.FormatR32g32Sfloat, nil
	case gfx.Float3:
		return vk.FormatR32g32b32Sfloat, nil
	case gfx.Float4:
		return vk.FormatR32g32b32a32Sfloat, nil
	}
	return vk.FormatUndefined, fmt.Errorf("vulkan: attribute format %d: %w", f, core.ErrInvalidData)
}

func descriptorType(t gfx.DescriptorType) vk.DescriptorType {
	if t == gfx.CombinedImageSamplerDescriptor {
		return vk.DescriptorTypeCombinedImageSampler
	}
	return vk.DescriptorTypeUniformBuffer
}

func stageFlags(s gfx.ShaderStage) vk.ShaderStageFlags {
	var flags vk.ShaderStageFlagBits
	if s&gfx.VertexStage != 0 {
		flags |= vk.ShaderStageVertexBit
	}
	if s&gfx.FragmentStage != 0 {
		flags |= vk.ShaderStageFragmentBit
	}
	return vk.ShaderStageFlags(flags)
}

func filter(f gfx.Filter) vk.Filter {
	if f == gfx.Nearest {
		return vk.FilterNearest
	}
	return vk.FilterLinear
}

func indexType(t gfx.IndexType) vk.IndexType {
	if t == gfx.Uint32 {
		return vk.IndexTypeUint32
	}
	return vk.IndexTypeUint16
}

func topology(t gfx.Topology) vk.PrimitiveTopology {
	if t == gfx.TriangleStrip {
		return vk.PrimitiveTopologyTriangleStrip
	}
	return vk.PrimitiveTopologyTriangleList
}

func cullMode(c gfx.CullMode) vk.CullModeFlags {
	if c == gfx.CullBack {
		return vk.CullModeFlags(vk.CullModeBackBit)
	}
	return vk.CullModeFlags(vk.CullModeNone)
}

func bufferUsage(u gfx.BufferUsage) vk.BufferUsageFlagBits {
	var flags vk.BufferUsageFlagBits
	if u&gfx.VertexBuffer != 0 {
		flags |= vk.BufferUsageVertexBufferBit
	}
	if u&gfx.IndexBuffer != 0 {
		flags |= vk.BufferUsageIndexBufferBit
	}
	if u&gfx.UniformBuffer != 0 {
		flags |= vk.BufferUsageUniformBufferBit
	}
	return flags
}

func rect2D(r gfx.Rect) vk.Rect2D {
	return vk.Rect2D{
		Offset: vk.Offset2D{X: r.X, Y: r.Y},
		Extent: vk.Extent2D{Width: r.Width, Height: r.Height},
	}
}

// blitOffsets returns the corners of r as a blit region
func blitOffsets(r gfx.Rect) [2]vk.Offset3D {
	return [2]vk.Offset3D{
		{X: r.X, Y: r.Y, Z: 0},
		{X: r.X + int32(r.Width), Y: r.Y + int32(r.Height), Z: 1},
	}
}

// swapchainImageCount clamps the wanted slot count to what the surface allows.
// A max of zero means no upper limit.
func swapchainImageCount(want, min, max uint32) uint32 {
	if want < min {
		want = min
	}
	if max > 0 && want > max {
		want = max
	}
	return want
}
