// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package demo

import (
	"github.com/chewxy/math32"
	"github.com/devblok/mydemo/frame"
	"github.com/devblok/mydemo/gfx"
	"github.com/devblok/mydemo/model"
	"github.com/devblok/mydemo/shell"
	"github.com/devblok/mydemo/transform"
	glm "github.com/go-gl/mathgl/mgl32"
)

func init() {
	Register("offscreen", func() shell.Demo { return &Offscreen{} })
}

// OffscreenClear is the background of the offscreen pass
var OffscreenClear = gfx.ClearValues{Color: [4]float32{0, 0, 1, 1}, Depth: 1}

// OffscreenPass renders into a texture that is blitted afterwards
func OffscreenPass() gfx.RenderPassConfig {
	return gfx.RenderPassConfig{
		Color:     gfx.AttachmentConfig{Format: gfx.RGBA8, Load: gfx.LoadOpClear, Store: gfx.StoreOpStore},
		Depth:     &gfx.AttachmentConfig{Format: gfx.Depth24Stencil8, Load: gfx.LoadOpClear, Store: gfx.StoreOpDontCare},
		Offscreen: true,
	}
}

// Offscreen draws the model into an offscreen framebuffer and blits it
// onto the surface. The model slides along X by an amount derived from
// the frame time, so the commands are recorded again every frame.
type Offscreen struct {
	mesh *model.Mesh

	view      view
	offscreen gfx.RenderPass
	targets   []gfx.Framebuffer
	state     transform.State
}

// InitApplication implements interface
func (o *Offscreen) InitApplication(ctx *shell.Context) error {
	mesh, err := loadMesh(ctx, ctx.Config.Demo.Model)
	if err != nil {
		return err
	}
	logMeshInfo(ctx.Log, mesh)
	o.mesh = mesh
	return nil
}

// InitView implements interface
func (o *Offscreen) InitView(ctx *shell.Context) error {
	v := &o.view
	mesh, err := loadMesh(ctx, ctx.Config.Demo.Model)
	if err != nil {
		return err
	}
	o.mesh = mesh

	if err := v.loadShaders(ctx, ctx.Config.Demo.VertexShader, ctx.Config.Demo.FragShader); err != nil {
		return err
	}
	if err := v.onScreen(ctx, gfx.OnScreenPass()); err != nil {
		return err
	}

	ctx.SetExitMessage("Failed to create FBO")
	pass, err := ctx.Device.CreateRenderPass(OffscreenPass())
	if err != nil {
		return err
	}
	o.offscreen = pass
	v.owned = append(v.owned, pass)
	extent := gfx.Extent{Width: ctx.Width, Height: ctx.Height}
	for slot := 0; slot < ctx.Device.Swapchain().Len(); slot++ {
		fb, err := ctx.Device.CreateFramebuffer(gfx.FramebufferConfig{RenderPass: pass, Extent: extent})
		if err != nil {
			return err
		}
		o.targets = append(o.targets, fb)
		v.owned = append(v.owned, fb)
	}

	ctx.SetExitMessage("Failed to create graphics pipeline")
	layout, err := InputAssemblyFromMesh(mesh, ModelBindings)
	if err != nil {
		return err
	}
	pipeline, err := ctx.Device.CreatePipeline(gfx.PipelineConfig{
		VertexShader:   v.vertex,
		FragmentShader: v.fragment,
		Vertex:         layout,
		Bindings: []gfx.Binding{
			{Binding: 0, Type: gfx.UniformBufferDescriptor, Stages: gfx.AllGraphicsStages, Name: "Transform"},
		},
		Topology:   gfx.TriangleList,
		Cull:       gfx.CullBack,
		DepthTest:  true,
		DepthWrite: true,
		RenderPass: pass,
		Viewport:   extent,
	})
	if err != nil {
		return err
	}
	v.res.Pipeline = pipeline

	if err := v.uploadMesh(ctx, mesh); err != nil {
		return err
	}

	tilt := glm.HomogRotate3D(math32.Pi/8, glm.Vec3{1, 0, 0})
	o.state = transform.NewState(transform.OffscreenCamera, ctx.Width, ctx.Height, tilt, ctx.Device.API() == gfx.Vulkan)
	if err := v.perSlotUniforms(ctx, o.state.Bytes()); err != nil {
		return err
	}

	ctx.SetExitMessage("Failed to create descriptor sets")
	for _, ubo := range v.res.Uniforms {
		set, err := ctx.Device.CreateDescriptorSet(pipeline, gfx.DescriptorWrite{Binding: 0, Buffer: ubo})
		if err != nil {
			return err
		}
		v.res.DescriptorSets = append(v.res.DescriptorSets, set)
	}

	if err := v.commandBuffers(ctx); err != nil {
		return err
	}
	v.driver, err = frame.NewDriver(ctx.Device, &v.res,
		frame.WithLogger(ctx.Log),
		frame.WithRerecord(o.record(ctx)))
	return err
}

// record draws the model offscreen and blits the result onto the slot's framebuffer
func (o *Offscreen) record(ctx *shell.Context) frame.Recorder {
	area := fullArea(ctx)
	return func(slot int, cb gfx.CommandBuffer) error {
		res := &o.view.res
		cb.BeginRenderPass(o.targets[slot], area, OffscreenClear)
		cb.BindPipeline(res.Pipeline)
		cb.BindDescriptorSet(res.Pipeline, res.DescriptorSet(slot))
		if err := drawMesh(cb, o.mesh, o.view.mesh); err != nil {
			return err
		}
		cb.EndRenderPass()
		cb.Blit(o.targets[slot], res.Framebuffers[slot], area, area, gfx.Linear)
		return nil
	}
}

// RenderFrame implements interface
func (o *Offscreen) RenderFrame(ctx *shell.Context) error {
	step := transform.TranslationStep(ctx.Width, ctx.FrameTimeMs())
	o.state.Translate(step, 0, 0)
	ctx.Log.WithField("translate_x", step).Debug("offscreen frame")
	_, err := o.view.driver.Frame(ctx.Context(), func(int) ([]byte, error) {
		return o.state.Bytes(), nil
	})
	return err
}

// ReleaseView implements interface
func (o *Offscreen) ReleaseView(ctx *shell.Context) error {
	o.view.release()
	o.offscreen = nil
	o.targets = nil
	o.mesh = nil
	ctx.Assets.ReleaseAll()
	return nil
}

// QuitApplication implements interface
func (o *Offscreen) QuitApplication(ctx *shell.Context) error {
	return nil
}
