// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package demo

import (
	"fmt"

	"github.com/devblok/mydemo/core"
	"github.com/devblok/mydemo/frame"
	"github.com/devblok/mydemo/gfx"
	"github.com/devblok/mydemo/model"
	"github.com/devblok/mydemo/shell"
)

func init() {
	Register("triangle", func() shell.Demo { return &Triangle{} })
}

// TriangleClear is the background of the triangle demo
var TriangleClear = gfx.ClearValues{Color: [4]float32{0, 0.5, 0.5, 1}, Depth: 1}

// Triangle draws a single triangle built in code. Its commands are
// recorded once per slot and resubmitted unchanged every frame.
type Triangle struct {
	model *model.Model
	view  view
}

// InitApplication implements interface
func (t *Triangle) InitApplication(ctx *shell.Context) error {
	t.model = model.NewTriangle()
	mesh := &t.model.Meshes[0]
	if mesh.IndexType() != model.IndexUint16 {
		return fmt.Errorf("triangle indices are %s: %w", mesh.IndexType(), core.ErrInvalidData)
	}
	logMeshInfo(ctx.Log, mesh)
	return nil
}

// InitView implements interface
func (t *Triangle) InitView(ctx *shell.Context) error {
	v := &t.view
	mesh, _, err := t.model.MeshOf(0)
	if err != nil {
		return err
	}

	if err := v.loadShaders(ctx, "Triangle", "Triangle"); err != nil {
		return err
	}
	if err := v.onScreen(ctx, gfx.OnScreenPass()); err != nil {
		return err
	}

	ctx.SetExitMessage("Failed to create graphics pipeline")
	layout, err := InputAssemblyFromMesh(mesh, PositionBindings)
	if err != nil {
		return err
	}
	pipeline, err := ctx.Device.CreatePipeline(gfx.PipelineConfig{
		VertexShader:   v.vertex,
		FragmentShader: v.fragment,
		Vertex:         layout,
		Topology:       gfx.TriangleList,
		Cull:           gfx.CullNone,
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
	if err := v.commandBuffers(ctx); err != nil {
		return err
	}

	ctx.SetExitMessage("Failed to record command buffers")
	area := fullArea(ctx)
	err = frame.Record(&v.res, func(slot int, cb gfx.CommandBuffer) error {
		cb.BeginRenderPass(v.res.Framebuffers[slot], area, TriangleClear)
		cb.BindPipeline(v.res.Pipeline)
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
func (t *Triangle) RenderFrame(ctx *shell.Context) error {
	_, err := t.view.driver.Frame(ctx.Context(), nil)
	return err
}

// ReleaseView implements interface
func (t *Triangle) ReleaseView(ctx *shell.Context) error {
	t.view.release()
	ctx.Assets.ReleaseAll()
	return nil
}

// QuitApplication implements interface
func (t *Triangle) QuitApplication(ctx *shell.Context) error {
	t.model = nil
	return nil
}
