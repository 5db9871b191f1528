// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package gfx defines rendering related features that renderers must implement.
package gfx

import (
	"context"
	"errors"
	"image"
)

// ErrSurfaceLost is returned by Acquire and Present when the surface no
// longer matches the swapchain. The view has to be created again.
var ErrSurfaceLost = errors.New("surface lost")

// API identifies a backend
type API int

// Supported backends
const (
	Vulkan API = iota
	OpenGL
	Headless
)

func (a API) String() string {
	switch a {
	case Vulkan:
		return "vulkan"
	case OpenGL:
		return "gl"
	case Headless:
		return "headless"
	}
	return "unknown"
}

// Releasable defines any memory-occupying item that can be freed.
type Releasable interface {

	// Release releases memory occupied by the implementing structure.
	Release()
}

// Device creates every GPU object and submits recorded work.
// All methods must be called from the thread owning the device.
type Device interface {

	// API tells which backend implements the device.
	API() API

	// Swapchain returns the presentation engine of the device.
	Swapchain() Swapchain

	// CreateBuffer allocates a host visible buffer of size bytes.
	CreateBuffer(usage BufferUsage, size int) (Buffer, error)

	// CreateShader creates a shader from SPIR-V or GLSL source,
	// whichever the backend consumes.
	CreateShader(code []byte, stage ShaderStage) (Shader, error)

	// CreateTexture uploads an image as an RGBA texture.
	CreateTexture(img image.Image) (Texture, error)

	CreateSampler(cfg SamplerConfig) (Sampler, error)

	CreateRenderPass(cfg RenderPassConfig) (RenderPass, error)

	// CreateOnScreenFramebuffers returns one framebuffer per swapchain slot.
	CreateOnScreenFramebuffers(pass RenderPass) ([]Framebuffer, error)

	// CreateFramebuffer creates an offscreen framebuffer owning its attachments.
	CreateFramebuffer(cfg FramebufferConfig) (Framebuffer, error)

	CreatePipeline(cfg PipelineConfig) (Pipeline, error)

	// CreateDescriptorSet binds buffers and textures to the bindings
	// declared by the pipeline.
	CreateDescriptorSet(p Pipeline, writes ...DescriptorWrite) (DescriptorSet, error)

	CreateCommandBuffers(n int) ([]CommandBuffer, error)

	// Submit queues cb for execution against the given slot. The slot
	// belongs to the GPU until the swapchain hands it out again.
	Submit(slot int, cb CommandBuffer) error

	// WaitIdle blocks until all submitted work has finished.
	WaitIdle() error

	// Destroy releases the device itself, every object created
	// from it must be released before.
	Destroy()
}

// Swapchain hands out presentation slots.
type Swapchain interface {

	// Len is the number of slots, N.
	Len() int

	Extent() Extent

	// Acquire blocks until a slot is available for CPU writes and returns it.
	Acquire(ctx context.Context) (int, error)

	// Present queues the slot for display.
	Present(slot int) error
}

// Extent is a size in pixels
type Extent struct {
	Width, Height uint32
}

// Rect is a region in pixels
type Rect struct {
	X, Y          int32
	Width, Height uint32
}

// FullRect covers the whole extent
func FullRect(e Extent) Rect {
	return Rect{Width: e.Width, Height: e.Height}
}

// ClearValues are used by render passes that clear on load
type ClearValues struct {
	Color   [4]float32
	Depth   float32
	Stencil uint32
}

// BufferUsage flags tell what a buffer is bound as
type BufferUsage int

// Buffer usages
const (
	VertexBuffer BufferUsage = 1 << iota
	IndexBuffer
	UniformBuffer
)

// Buffer is a host visible GPU buffer
type Buffer interface {
	Releasable

	Size() int
	Usage() BufferUsage

	// Write copies data into the buffer at offset.
	Write(offset int, data []byte) error
}

// ShaderStage is a programmable pipeline stage
type ShaderStage int

// Shader stages, usable as flags in bindings
const (
	VertexStage ShaderStage = 1 << iota
	FragmentStage

	AllGraphicsStages = VertexStage | FragmentStage
)

// Shader is a compiled shader module
type Shader interface {
	Releasable
	Stage() ShaderStage
}

// Texture is a sampled 2D image
type Texture interface {
	Releasable
	Extent() Extent
}

// Filter selects texel filtering
type Filter int

// Filters
const (
	Linear Filter = iota
	Nearest
)

// SamplerConfig configures a Sampler
type SamplerConfig struct {
	MinFilter Filter
	MagFilter Filter
}

// Sampler describes how textures are sampled
type Sampler interface {
	Releasable
}

// Format is an attachment pixel format
type Format int

// Attachment formats. SurfaceFormat resolves to whatever the swapchain uses.
const (
	SurfaceFormat Format = iota
	RGBA8
	Depth24Stencil8
)

// LoadOp is what happens to an attachment at the start of a render pass
type LoadOp int

// Load operations
const (
	LoadOpClear LoadOp = iota
	LoadOpLoad
	LoadOpDontCare
)

// StoreOp is what happens to an attachment at the end of a render pass
type StoreOp int

// Store operations
const (
	StoreOpStore StoreOp = iota
	StoreOpDontCare
)

// AttachmentConfig describes one attachment of a render pass
type AttachmentConfig struct {
	Format Format
	Load   LoadOp
	Store  StoreOp
}

// RenderPassConfig describes a single subpass render pass
type RenderPassConfig struct {
	Color AttachmentConfig

	// Depth is optional
	Depth *AttachmentConfig

	// Offscreen passes end ready to be blitted from, on-screen passes
	// end ready for presentation.
	Offscreen bool
}

// OnScreenPass is the render pass configuration used by most demos
func OnScreenPass() RenderPassConfig {
	return RenderPassConfig{
		Color: AttachmentConfig{Format: SurfaceFormat, Load: LoadOpClear, Store: StoreOpStore},
		Depth: &AttachmentConfig{Format: Depth24Stencil8, Load: LoadOpClear, Store: StoreOpDontCare},
	}
}

// RenderPass is a render pass object
type RenderPass interface {
	Releasable
	Config() RenderPassConfig
}

// FramebufferConfig configures an offscreen framebuffer
type FramebufferConfig struct {
	RenderPass RenderPass
	Extent     Extent
}

// Framebuffer is a set of attachments rendered to by a render pass
type Framebuffer interface {
	Releasable
	Extent() Extent
	RenderPass() RenderPass

	// Color returns the colour attachment of offscreen framebuffers, nil on-screen
	Color() Texture
}

// AttribFormat is a vertex attribute format
type AttribFormat int

// Vertex attribute formats
const (
	Float2 AttribFormat = iota + 2
	Float3
	Float4
)

// Components returns the number of float components
func (f AttribFormat) Components() int {
	return int(f)
}

// VertexAttribute is a single input of the vertex shader
type VertexAttribute struct {
	Location uint32

	// Name is the shader variable, used by backends without explicit locations
	Name   string
	Format AttribFormat
	Offset uint32
}

// VertexLayout is the layout of one interleaved vertex buffer
type VertexLayout struct {
	Stride     uint32
	Attributes []VertexAttribute
}

// DescriptorType is the kind of resource bound to a binding
type DescriptorType int

// Descriptor types
const (
	UniformBufferDescriptor DescriptorType = iota
	CombinedImageSamplerDescriptor
)

// Binding declares a resource binding of a pipeline
type Binding struct {
	Binding uint32
	Type    DescriptorType
	Stages  ShaderStage

	// Name is the uniform block or sampler name in GLSL
	Name string
}

// Topology is the primitive topology
type Topology int

// Primitive topologies
const (
	TriangleList Topology = iota
	TriangleStrip
)

// CullMode selects face culling
type CullMode int

// Cull modes
const (
	CullNone CullMode = iota
	CullBack
)

// PipelineConfig holds everything a graphics pipeline is built from
type PipelineConfig struct {
	VertexShader   Shader
	FragmentShader Shader
	Vertex         VertexLayout
	Bindings       []Binding
	Topology       Topology
	Cull           CullMode
	DepthTest      bool
	DepthWrite     bool
	Blend          bool
	RenderPass     RenderPass
	Viewport       Extent
}

// Pipeline is a graphics pipeline
type Pipeline interface {
	Releasable
	Bindings() []Binding
}

// DescriptorWrite fills one binding, either Buffer or Texture with Sampler
type DescriptorWrite struct {
	Binding uint32
	Buffer  Buffer
	Texture Texture
	Sampler Sampler
}

// DescriptorSet is a set of bound resources
type DescriptorSet interface {
	Releasable
}

// IndexType is the width of index buffer elements
type IndexType int

// Index types
const (
	Uint16 IndexType = iota
	Uint32
)

// CommandBuffer records GPU commands. Recording is only valid between
// Begin and End, a buffer can be recorded again after it was submitted
// and its slot acquired back.
type CommandBuffer interface {
	Releasable

	Begin() error
	BeginRenderPass(fb Framebuffer, area Rect, clear ClearValues)
	BindPipeline(p Pipeline)
	BindDescriptorSet(p Pipeline, set DescriptorSet)
	BindVertexBuffer(b Buffer, offset int)
	BindIndexBuffer(b Buffer, offset int, t IndexType)
	DrawIndexed(firstIndex, indexCount, vertexOffset, instanceCount int)
	DrawArrays(firstVertex, vertexCount, instanceCount int)
	EndRenderPass()

	// Blit copies the colour attachment of src into dst, outside of a render pass.
	Blit(src, dst Framebuffer, srcRect, dstRect Rect, filter Filter)
	End() error
}
