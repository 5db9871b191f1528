// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package headless implements a gfx.Device that executes nothing. It records
// every command and every submission, so demos can run without a GPU and
// tests can inspect what would have been drawn.
package headless

import (
	"fmt"
	"image"
	"sync"

	"github.com/devblok/mydemo/core"
	"github.com/devblok/mydemo/gfx"
	log "github.com/sirupsen/logrus"
)

// Config configures a headless device
type Config struct {
	Width, Height uint32
	SwapchainSize int

	// Latency is the number of presents a submitted slot stays busy for
	Latency int

	// AcquireOrder overrides the round robin order slots are handed out in.
	// It is repeated when exhausted.
	AcquireOrder []int

	Logger log.FieldLogger
}

// BufferRead is a snapshot of a buffer taken when a submission read it
type BufferRead struct {
	Buffer *Buffer
	Data   []byte
}

// Submission is one Device.Submit call
type Submission struct {
	Slot     int
	Commands []Command
	Reads    []BufferRead
}

// NewDevice creates a headless device
func NewDevice(cfg Config) (*Device, error) {
	if cfg.SwapchainSize <= 0 {
		return nil, fmt.Errorf("headless: swapchain size %d: %w", cfg.SwapchainSize, core.ErrInvalidData)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, fmt.Errorf("headless: extent %dx%d: %w", cfg.Width, cfg.Height, core.ErrInvalidData)
	}
	for _, slot := range cfg.AcquireOrder {
		if slot < 0 || slot >= cfg.SwapchainSize {
			return nil, fmt.Errorf("headless: acquire order slot %d: %w", slot, core.ErrInvalidData)
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.StandardLogger()
	}

	d := &Device{
		cfg: cfg,
		log: cfg.Logger.WithField("backend", gfx.Headless.String()),
	}
	d.swapchain = newSwapchain(cfg)
	return d, nil
}

// Device implements gfx.Device
type Device struct {
	cfg       Config
	log       log.FieldLogger
	swapchain *Swapchain

	mutex       sync.Mutex
	live        int
	submissions []Submission
	destroyed   bool
}

// API implements interface
func (d *Device) API() gfx.API {
	return gfx.Headless
}

// Swapchain implements interface
func (d *Device) Swapchain() gfx.Swapchain {
	return d.swapchain
}

// Live returns the number of created objects not yet released
func (d *Device) Live() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.live
}

// Submissions returns every submission so far
func (d *Device) Submissions() []Submission {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return append([]Submission(nil), d.submissions...)
}

// Destroyed reports whether Destroy was called
func (d *Device) Destroyed() bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.destroyed
}

func (d *Device) created() {
	d.mutex.Lock()
	d.live++
	d.mutex.Unlock()
}

func (d *Device) released(what string) {
	d.mutex.Lock()
	d.live--
	live := d.live
	d.mutex.Unlock()
	if live < 0 {
		d.log.WithField("object", what).Error("released more objects than created")
	}
}

// CreateBuffer implements interface
func (d *Device) CreateBuffer(usage gfx.BufferUsage, size int) (gfx.Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("headless: buffer size %d: %w", size, core.ErrInvalidData)
	}
	d.created()
	return &Buffer{device: d, usage: usage, data: make([]byte, size)}, nil
}

// CreateShader implements interface
func (d *Device) CreateShader(code []byte, stage gfx.ShaderStage) (gfx.Shader, error) {
	if len(code) == 0 {
		return nil, fmt.Errorf("headless: empty shader: %w", core.ErrInvalidData)
	}
	d.created()
	return &Shader{object: object{device: d, what: "shader"}, stage: stage}, nil
}

// CreateTexture implements interface
func (d *Device) CreateTexture(img image.Image) (gfx.Texture, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("headless: empty texture: %w", core.ErrInvalidData)
	}
	d.created()
	return &Texture{
		object: object{device: d, what: "texture"},
		pixels: core.GetPixels(img, 0),
		extent: gfx.Extent{Width: uint32(b.Dx()), Height: uint32(b.Dy())},
	}, nil
}

// CreateSampler implements interface
func (d *Device) CreateSampler(cfg gfx.SamplerConfig) (gfx.Sampler, error) {
	d.created()
	return &Sampler{object: object{device: d, what: "sampler"}, Config: cfg}, nil
}

// CreateRenderPass implements interface
func (d *Device) CreateRenderPass(cfg gfx.RenderPassConfig) (gfx.RenderPass, error) {
	d.created()
	return &RenderPass{object: object{device: d, what: "render pass"}, config: cfg}, nil
}

// CreateOnScreenFramebuffers implements interface
func (d *Device) CreateOnScreenFramebuffers(pass gfx.RenderPass) ([]gfx.Framebuffer, error) {
	if pass == nil {
		return nil, fmt.Errorf("headless: on-screen framebuffers without render pass: %w", core.ErrInvalidData)
	}
	if pass.Config().Offscreen {
		return nil, fmt.Errorf("headless: offscreen render pass used on-screen: %w", core.ErrInvalidData)
	}
	fbs := make([]gfx.Framebuffer, d.swapchain.Len())
	for idx := range fbs {
		d.created()
		fbs[idx] = &Framebuffer{
			object: object{device: d, what: "framebuffer"},
			pass:   pass,
			extent: d.swapchain.Extent(),
			Slot:   idx,
		}
	}
	return fbs, nil
}

// CreateFramebuffer implements interface
func (d *Device) CreateFramebuffer(cfg gfx.FramebufferConfig) (gfx.Framebuffer, error) {
	if cfg.RenderPass == nil || cfg.Extent.Width == 0 || cfg.Extent.Height == 0 {
		return nil, fmt.Errorf("headless: framebuffer config: %w", core.ErrInvalidData)
	}
	color := &Texture{
		object: object{device: d, what: "texture"},
		extent: cfg.Extent,
		pixels: make([]byte, 4*cfg.Extent.Width*cfg.Extent.Height),
	}
	d.created()
	d.created()
	return &Framebuffer{
		object: object{device: d, what: "framebuffer"},
		pass:   cfg.RenderPass,
		extent: cfg.Extent,
		color:  color,
		Slot:   -1,
	}, nil
}

// CreatePipeline implements interface
func (d *Device) CreatePipeline(cfg gfx.PipelineConfig) (gfx.Pipeline, error) {
	if cfg.VertexShader == nil || cfg.FragmentShader == nil {
		return nil, fmt.Errorf("headless: pipeline without shaders: %w", core.ErrInvalidData)
	}
	if cfg.VertexShader.Stage() != gfx.VertexStage || cfg.FragmentShader.Stage() != gfx.FragmentStage {
		return nil, fmt.Errorf("headless: pipeline shader stages mismatch: %w", core.ErrInvalidData)
	}
	if cfg.RenderPass == nil {
		return nil, fmt.Errorf("headless: pipeline without render pass: %w", core.ErrInvalidData)
	}
	seen := make(map[uint32]bool, len(cfg.Bindings))
	for _, b := range cfg.Bindings {
		if seen[b.Binding] {
			return nil, fmt.Errorf("headless: binding %d declared twice: %w", b.Binding, core.ErrInvalidData)
		}
		seen[b.Binding] = true
	}
	d.created()
	return &Pipeline{object: object{device: d, what: "pipeline"}, Config: cfg}, nil
}

// CreateDescriptorSet implements interface
func (d *Device) CreateDescriptorSet(p gfx.Pipeline, writes ...gfx.DescriptorWrite) (gfx.DescriptorSet, error) {
	if p == nil {
		return nil, fmt.Errorf("headless: descriptor set without pipeline: %w", core.ErrInvalidData)
	}
	bindings := make(map[uint32]gfx.Binding)
	for _, b := range p.Bindings() {
		bindings[b.Binding] = b
	}
	for _, w := range writes {
		b, ok := bindings[w.Binding]
		if !ok {
			return nil, fmt.Errorf("headless: binding %d not declared by pipeline: %w", w.Binding, core.ErrInvalidData)
		}
		switch b.Type {
		case gfx.UniformBufferDescriptor:
			if w.Buffer == nil || w.Buffer.Usage()&gfx.UniformBuffer == 0 {
				return nil, fmt.Errorf("headless: binding %d needs a uniform buffer: %w", w.Binding, core.ErrInvalidData)
			}
		case gfx.CombinedImageSamplerDescriptor:
			if w.Texture == nil || w.Sampler == nil {
				return nil, fmt.Errorf("headless: binding %d needs texture and sampler: %w", w.Binding, core.ErrInvalidData)
			}
		}
	}
	d.created()
	return &DescriptorSet{object: object{device: d, what: "descriptor set"}, Writes: writes}, nil
}

// CreateCommandBuffers implements interface
func (d *Device) CreateCommandBuffers(n int) ([]gfx.CommandBuffer, error) {
	if n <= 0 {
		return nil, fmt.Errorf("headless: %d command buffers: %w", n, core.ErrInvalidData)
	}
	cbs := make([]gfx.CommandBuffer, n)
	for idx := range cbs {
		d.created()
		cbs[idx] = &CommandBuffer{object: object{device: d, what: "command buffer"}}
	}
	return cbs, nil
}

// Submit implements interface
func (d *Device) Submit(slot int, cb gfx.CommandBuffer) error {
	if slot < 0 || slot >= d.swapchain.Len() {
		return fmt.Errorf("headless: submit to slot %d of %d: %w", slot, d.swapchain.Len(), core.ErrInvalidData)
	}
	hcb, ok := cb.(*CommandBuffer)
	if !ok || hcb.device != d {
		return fmt.Errorf("headless: foreign command buffer: %w", core.ErrInvalidData)
	}
	if hcb.state != recorded {
		return fmt.Errorf("headless: command buffer not recorded: %w", core.ErrInvalidData)
	}
	if err := d.swapchain.submitted(slot); err != nil {
		return err
	}

	sub := Submission{
		Slot:     slot,
		Commands: append([]Command(nil), hcb.commands...),
	}
	for _, cmd := range hcb.commands {
		if cmd.Op != OpBindDescriptorSet {
			continue
		}
		for _, w := range cmd.DescriptorSet.Writes {
			if buf, ok := w.Buffer.(*Buffer); ok {
				sub.Reads = append(sub.Reads, BufferRead{Buffer: buf, Data: buf.Bytes()})
			}
		}
	}

	d.mutex.Lock()
	d.submissions = append(d.submissions, sub)
	d.mutex.Unlock()
	d.log.WithField("slot", slot).Debug("submitted")
	return nil
}

// WaitIdle implements interface
func (d *Device) WaitIdle() error {
	d.swapchain.drain()
	return nil
}

// Destroy implements interface
func (d *Device) Destroy() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.live != 0 {
		d.log.WithField("live", d.live).Warn("device destroyed with live objects")
	}
	d.destroyed = true
}
