// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package demo

import (
	"github.com/devblok/mydemo/frame"
	"github.com/devblok/mydemo/gfx"
	"github.com/devblok/mydemo/model"
	"github.com/devblok/mydemo/shell"
	"github.com/devblok/mydemo/transform"
	glm "github.com/go-gl/mathgl/mgl32"
)

func init() {
	Register("teapot", func() shell.Demo { return &Teapot{} })
}

// TeapotClear is the background of the teapot demo
var TeapotClear = gfx.ClearValues{Color: [4]float32{0, 0, 1, 1}, Depth: 1}

// Teapot spins a model about Y. Every slot has its own uniform buffer,
// descriptor set and command buffer, recorded once per view.
type Teapot struct {
	mesh  *model.Mesh
	view  view
	state transform.State
}

// InitApplication implements interface
func (t *Teapot) InitApplication(ctx *shell.Context) error {
	mesh, err := loadMesh(ctx, ctx.Config.Demo.Model)
	if err != nil {
		return err
	}
	logMeshInfo(ctx.Log, mesh)
	t.mesh = mesh
	return nil
}

// InitView implements interface
func (t *Teapot) InitView(ctx *shell.Context) error {
	v := &t.view
	mesh, err := loadMesh(ctx, ctx.Config.Demo.Model)
	if err != nil {
		return err
	}
	t.mesh = mesh

	if err := v.loadTexture(ctx, ctx.Config.Demo.Texture); err != nil {
		return err
	}
	frag := ctx.Config.Demo.FragShader
	bindings := []gfx.Binding{
		{Binding: 0, Type: gfx.UniformBufferDescriptor, Stages: gfx.AllGraphicsStages, Name: "Transform"},
	}
	if v.texture != nil {
		frag += "Textured"
		bindings = append(bindings, gfx.Binding{
			Binding: 1,
			Type:    gfx.CombinedImageSamplerDescriptor,
			Stages:  gfx.FragmentStage,
			Name:    "texSampler",
		})
	}

	if err := v.loadShaders(ctx, ctx.Config.Demo.VertexShader, frag); err != nil {
		return err
	}
	if err := v.onScreen(ctx, gfx.OnScreenPass()); err != nil {
		return err
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
		Bindings:       bindings,
		Topology:       gfx.TriangleList,
		Cull:           gfx.CullBack,
		DepthTest:      true,
		DepthWrite:     true,
		RenderPass:     v.pass,
		Viewport:       gfx.Extent{Width: ctx.Width, Height: ctx.Height},
	})
	if err != nil {
		return err
	}
	v.res.Pipeline = pipeline

	if err := v.uploadMesh(ctx, mesh); err != nil {
		return err
	}

	t.state = transform.NewState(transform.TeapotCamera, ctx.Width, ctx.Height, glm.Ident4(), ctx.Device.API() == gfx.Vulkan)
	if err := v.perSlotUniforms(ctx, t.state.Bytes()); err != nil {
		return err
	}

	ctx.SetExitMessage("Failed to create descriptor sets")
	for _, ubo := range v.res.Uniforms {
		writes := []gfx.DescriptorWrite{{Binding: 0, Buffer: ubo}}
		if v.texture != nil {
			writes = append(writes, gfx.DescriptorWrite{Binding: 1, Texture: v.texture, Sampler: v.sampler})
		}
		set, err := ctx.Device.CreateDescriptorSet(pipeline, writes...)
		if err != nil {
			return err
		}
		v.res.DescriptorSets = append(v.res.DescriptorSets, set)
	}

	if err := v.commandBuffers(ctx); err != nil {
		return err
	}

	ctx.SetExitMessage("Failed to record command buffers")
	area := fullArea(ctx)
	err = frame.Record(&v.res, func(slot int, cb gfx.CommandBuffer) error {
		cb.BeginRenderPass(v.res.Framebuffers[slot], area, TeapotClear)
		cb.BindPipeline(v.res.Pipeline)
		cb.BindDescriptorSet(v.res.Pipeline, v.res.DescriptorSet(slot))
		if err := drawMesh(cb, mesh, v.mesh); err != nil {
			return err
		}
		cb.EndRenderPass()
		return nil
	})
	if err != nil {
		return err
	}

	v.driver, err = frame.NewDriver(ctx.Device, &v.res, frame.WithLogger(ctx.Log))
	return err
}

// RenderFrame implements interface
func (t *Teapot) RenderFrame(ctx *shell.Context) error {
	t.state.Rotate(transform.RotationStep(ctx.FrameTimeMs()), glm.Vec3{0, 1, 0})
	_, err := t.view.driver.Frame(ctx.Context(), func(int) ([]byte, error) {
		return t.state.Bytes(), nil
	})
	return err
}

// Transform returns the current transform state
func (t *Teapot) Transform() transform.State {
	return t.state
}

// ReleaseView implements interface
func (t *Teapot) ReleaseView(ctx *shell.Context) error {
	t.view.release()
	t.mesh = nil
	ctx.Assets.ReleaseAll()
	return nil
}

// QuitApplication implements interface
func (t *Teapot) QuitApplication(ctx *shell.Context) error {
	return nil
}
