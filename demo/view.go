// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package demo

import (
	"errors"
	"fmt"

	"github.com/devblok/mydemo/core"
	"github.com/devblok/mydemo/frame"
	"github.com/devblok/mydemo/gfx"
	"github.com/devblok/mydemo/model"
	"github.com/devblok/mydemo/shell"
)

// view holds what a demo creates in InitView. Fields are only set
// once the object exists, so a half built view releases cleanly.
type view struct {
	pass     gfx.RenderPass
	vertex   gfx.Shader
	fragment gfx.Shader
	mesh     *MeshBuffers
	texture  gfx.Texture
	sampler  gfx.Sampler
	res      frame.Resources
	driver   *frame.Driver

	// owned lists objects released right after res, in creation order
	owned []gfx.Releasable
}

func (v *view) release() {
	v.res.Release()
	gfx.Release(v.owned...)
	if v.mesh != nil {
		v.mesh.Release()
	}
	gfx.Release(v.pass, v.vertex, v.fragment, v.texture, v.sampler)
	*v = view{}
}

// loadShaders creates the vertex and fragment shader named vert and frag
func (v *view) loadShaders(ctx *shell.Context, vert, frag string) error {
	api := ctx.Device.API()
	create := func(name string, stage gfx.ShaderStage) (gfx.Shader, error) {
		code, err := ctx.Assets.LoadShader(api, name, stage)
		if err != nil {
			return nil, err
		}
		return ctx.Device.CreateShader(code, stage)
	}

	ctx.SetExitMessage("Failed to create vertex or fragment shader")
	vs, err := create(vert, gfx.VertexStage)
	if err != nil {
		return err
	}
	v.vertex = vs
	fs, err := create(frag, gfx.FragmentStage)
	if err != nil {
		return err
	}
	v.fragment = fs
	return nil
}

// onScreen creates the render pass and one framebuffer per slot
func (v *view) onScreen(ctx *shell.Context, cfg gfx.RenderPassConfig) error {
	ctx.SetExitMessage("Failed to create FBO")
	pass, err := ctx.Device.CreateRenderPass(cfg)
	if err != nil {
		return err
	}
	v.pass = pass
	fbs, err := ctx.Device.CreateOnScreenFramebuffers(pass)
	if err != nil {
		return err
	}
	v.res.Framebuffers = fbs
	return nil
}

func (v *view) uploadMesh(ctx *shell.Context, mesh *model.Mesh) error {
	ctx.SetExitMessage("Failed to create vertex buffers")
	bufs, err := UploadMesh(ctx.Device, mesh)
	if err != nil {
		return err
	}
	v.mesh = bufs
	return nil
}

// perSlotUniforms creates one uniform buffer per slot, each holding data
func (v *view) perSlotUniforms(ctx *shell.Context, data []byte) error {
	ctx.SetExitMessage("Failed to create UBO")
	for slot := 0; slot < ctx.Device.Swapchain().Len(); slot++ {
		ubo, err := gfx.NewBufferWithData(ctx.Device, gfx.UniformBuffer, data)
		if err != nil {
			return fmt.Errorf("uniform buffer of slot %d: %w", slot, err)
		}
		v.res.Uniforms = append(v.res.Uniforms, ubo)
	}
	return nil
}

// loadTexture loads name and creates a linear sampler for it. A missing
// texture is not an error, the demo is drawn without it.
func (v *view) loadTexture(ctx *shell.Context, name string) error {
	if name == "" {
		return nil
	}
	img, err := ctx.Assets.LoadTexture(name)
	if errors.Is(err, core.ErrNotFound) {
		ctx.Log.WithField("texture", name).Warn("texture not found, drawing untextured")
		return nil
	}
	ctx.SetExitMessage("Failed to load texture")
	if err != nil {
		return err
	}
	tex, err := ctx.Device.CreateTexture(img)
	if err != nil {
		return err
	}
	v.texture = tex
	sampler, err := ctx.Device.CreateSampler(gfx.SamplerConfig{MinFilter: gfx.Linear, MagFilter: gfx.Linear})
	if err != nil {
		return err
	}
	v.sampler = sampler
	return nil
}

func (v *view) commandBuffers(ctx *shell.Context) error {
	ctx.SetExitMessage("Failed to create command buffers")
	cbs, err := ctx.Device.CreateCommandBuffers(ctx.Device.Swapchain().Len())
	if err != nil {
		return err
	}
	v.res.Commands = cbs
	return nil
}

// loadMesh loads the model file and returns the mesh of its first node
func loadMesh(ctx *shell.Context, file string) (*model.Mesh, error) {
	ctx.SetExitMessage("Failed to load model for file: " + file)
	m, err := ctx.Assets.LoadModel(file)
	if err != nil {
		return nil, err
	}
	mesh, _, err := m.MeshOf(0)
	if err != nil {
		return nil, err
	}
	return mesh, nil
}

// fullArea covers the whole surface
func fullArea(ctx *shell.Context) gfx.Rect {
	return gfx.FullRect(gfx.Extent{Width: ctx.Width, Height: ctx.Height})
}
