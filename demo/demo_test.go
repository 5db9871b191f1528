// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package demo

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"testing"
	"time"

	"github.com/chewxy/math32"
	qt "github.com/frankban/quicktest"
	glm "github.com/go-gl/mathgl/mgl32"
	log "github.com/sirupsen/logrus"

	"github.com/devblok/mydemo/assets"
	"github.com/devblok/mydemo/core"
	"github.com/devblok/mydemo/gfx"
	"github.com/devblok/mydemo/gfx/headless"
	"github.com/devblok/mydemo/model"
	"github.com/devblok/mydemo/shell"
	"github.com/devblok/mydemo/transform"
)

type mapBox map[string][]byte

func (m mapBox) Has(name string) bool {
	_, ok := m[name]
	return ok
}

func (m mapBox) Find(name string) ([]byte, error) {
	if data, ok := m[name]; ok {
		return data, nil
	}
	return nil, os.ErrNotExist
}

func (m mapBox) FindString(name string) (string, error) {
	data, err := m.Find(name)
	return string(data), err
}

func quietLogger() *log.Logger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

const frameTime = 16 * time.Millisecond

func newContext(c *qt.C, extra ...assets.Source) (*shell.Context, *headless.Device) {
	cfg := core.DefaultConfiguration()
	cfg.Renderer.Backend = "headless"
	cfg.Demo.Model = "cube.dae"
	cfg.Demo.Texture = ""

	dev, err := headless.NewDevice(headless.Config{
		Width:         320,
		Height:        240,
		SwapchainSize: 3,
		Latency:       1,
		Logger:        quietLogger(),
	})
	c.Assert(err, qt.IsNil)

	sources := append(extra, assets.Embedded())
	return &shell.Context{
		Config:    cfg,
		Assets:    assets.NewStore(quietLogger(), sources...),
		Log:       quietLogger(),
		Device:    dev,
		Width:     320,
		Height:    240,
		FrameTime: frameTime,
	}, dev
}

// runFrames drives d through its lifecycle the way the shell does
func runFrames(c *qt.C, d shell.Demo, ctx *shell.Context, frames int, inView func()) {
	c.Assert(d.InitApplication(ctx), qt.IsNil)
	c.Assert(d.InitView(ctx), qt.IsNil, qt.Commentf("exit message: %s", ctx.ExitMessage()))
	for idx := 0; idx < frames; idx++ {
		ctx.Frame++
		c.Assert(d.RenderFrame(ctx), qt.IsNil)
	}
	if inView != nil {
		inView()
	}
	c.Assert(ctx.Device.WaitIdle(), qt.IsNil)
	c.Assert(d.ReleaseView(ctx), qt.IsNil)
	c.Assert(d.QuitApplication(ctx), qt.IsNil)
}

func recordings(c *qt.C, cbs []gfx.CommandBuffer) []int {
	var counts []int
	for _, cb := range cbs {
		counts = append(counts, cb.(*headless.CommandBuffer).Recordings)
	}
	return counts
}

func TestRegistry(t *testing.T) {
	c := qt.New(t)
	c.Assert(Names(), qt.DeepEquals, []string{"offscreen", "teapot", "triangle"})

	d, err := New("teapot")
	c.Assert(err, qt.IsNil)
	c.Assert(d, qt.Satisfies, func(d shell.Demo) bool { _, ok := d.(*Teapot); return ok })

	_, err = New("skybox")
	c.Assert(core.ResultOf(err), qt.Equals, core.NotFound)

	c.Assert(func() { Register("triangle", nil) }, qt.PanicMatches, "demo: triangle registered twice")
}

func TestInputAssemblyFromMesh(t *testing.T) {
	c := qt.New(t)
	mesh := &model.NewTriangle().Meshes[0]

	layout, err := InputAssemblyFromMesh(mesh, ModelBindings)
	c.Assert(err, qt.IsNil)
	c.Assert(layout, qt.DeepEquals, gfx.VertexLayout{
		Stride: 32,
		Attributes: []gfx.VertexAttribute{
			{Location: 0, Name: "inPositions", Format: gfx.Float3, Offset: 0},
			{Location: 1, Name: "inNormals", Format: gfx.Float3, Offset: 12},
			{Location: 2, Name: "inUVs", Format: gfx.Float2, Offset: 24},
		},
	})

	layout, err = InputAssemblyFromMesh(mesh, PositionBindings)
	c.Assert(err, qt.IsNil)
	c.Assert(layout.Attributes, qt.HasLen, 1)

	_, err = InputAssemblyFromMesh(mesh, []VertexBinding{{"TANGENT", "inTangents"}})
	c.Assert(core.ResultOf(err), qt.Equals, core.InvalidData)
}

func TestDrawMesh(t *testing.T) {
	c := qt.New(t)
	ctx, dev := newContext(c)
	mesh := model.NewTriangle().Meshes[0]

	pass, err := dev.CreateRenderPass(gfx.OnScreenPass())
	c.Assert(err, qt.IsNil)
	fbs, err := dev.CreateOnScreenFramebuffers(pass)
	c.Assert(err, qt.IsNil)
	vs, err := dev.CreateShader([]byte("v"), gfx.VertexStage)
	c.Assert(err, qt.IsNil)
	fs, err := dev.CreateShader([]byte("f"), gfx.FragmentStage)
	c.Assert(err, qt.IsNil)
	pipeline, err := dev.CreatePipeline(gfx.PipelineConfig{VertexShader: vs, FragmentShader: fs, RenderPass: pass})
	c.Assert(err, qt.IsNil)
	cbs, err := dev.CreateCommandBuffers(1)
	c.Assert(err, qt.IsNil)

	draw := func(mesh *model.Mesh) ([]headless.Command, error) {
		bufs, err := UploadMesh(ctx.Device, mesh)
		c.Assert(err, qt.IsNil)
		defer bufs.Release()

		cb := cbs[0]
		c.Assert(cb.Begin(), qt.IsNil)
		cb.BeginRenderPass(fbs[0], fullArea(ctx), TriangleClear)
		cb.BindPipeline(pipeline)
		derr := drawMesh(cb, mesh, bufs)
		cb.EndRenderPass()
		c.Assert(cb.End(), qt.IsNil)
		return cb.(*headless.CommandBuffer).Commands(), derr
	}

	c.Run("indexed", func(c *qt.C) {
		cmds, err := draw(&mesh)
		c.Assert(err, qt.IsNil)
		c.Assert(headless.Ops(cmds[2:5]), qt.DeepEquals, []headless.Op{
			headless.OpBindVertexBuffer, headless.OpBindIndexBuffer, headless.OpDrawIndexed,
		})
		c.Assert(cmds[3].IndexType, qt.Equals, gfx.Uint16)
		c.Assert(cmds[4].Count, qt.Equals, 3)
		c.Assert(cmds[4].Instances, qt.Equals, 1)
	})

	c.Run("arrays", func(c *qt.C) {
		arrays := mesh
		arrays.Indices = nil
		cmds, err := draw(&arrays)
		c.Assert(err, qt.IsNil)
		c.Assert(headless.Ops(cmds[2:4]), qt.DeepEquals, []headless.Op{
			headless.OpBindVertexBuffer, headless.OpDrawArrays,
		})
		c.Assert(cmds[3].Count, qt.Equals, 3)
	})

	c.Run("strips", func(c *qt.C) {
		strips := mesh
		strips.NumStrips = 2
		cmds, err := draw(&strips)
		c.Assert(err, qt.ErrorMatches, "mesh triangle is not a triangle list: invalid data")
		c.Assert(core.ResultOf(err), qt.Equals, core.InvalidData)
		c.Assert(headless.Ops(cmds), qt.DeepEquals, []headless.Op{
			headless.OpBeginRenderPass, headless.OpBindPipeline, headless.OpEndRenderPass,
		})
	})

	gfx.Release(pass, vs, fs, pipeline, cbs[0])
	fbItems := make([]gfx.Releasable, len(fbs))
	for i, fb := range fbs {
		fbItems[i] = fb
	}
	gfx.Release(fbItems...)
	c.Assert(dev.Live(), qt.Equals, 0)
}

func TestTriangle(t *testing.T) {
	c := qt.New(t)
	ctx, dev := newContext(c)
	d := &Triangle{}

	runFrames(c, d, ctx, 7, func() {
		c.Assert(recordings(c, d.view.res.Commands), qt.DeepEquals, []int{1, 1, 1})
		c.Assert(d.view.res.Uniforms, qt.HasLen, 0)
	})

	subs := dev.Submissions()
	c.Assert(subs, qt.HasLen, 7)
	for idx, sub := range subs {
		c.Assert(sub.Slot, qt.Equals, idx%3)
		c.Assert(headless.Ops(sub.Commands), qt.DeepEquals, []headless.Op{
			headless.OpBeginRenderPass,
			headless.OpBindPipeline,
			headless.OpBindVertexBuffer,
			headless.OpBindIndexBuffer,
			headless.OpDrawIndexed,
			headless.OpEndRenderPass,
		})
		c.Assert(sub.Commands[0].Framebuffer.Slot, qt.Equals, sub.Slot)
		c.Assert(sub.Commands[0].Clear, qt.Equals, TriangleClear)
		c.Assert(sub.Commands[3].IndexType, qt.Equals, gfx.Uint16)
		c.Assert(sub.Reads, qt.HasLen, 0)
	}
	c.Assert(dev.Live(), qt.Equals, 0)
}

func TestTeapot(t *testing.T) {
	c := qt.New(t)
	ctx, dev := newContext(c)
	d := &Teapot{}

	var uniforms []*headless.Buffer
	runFrames(c, d, ctx, 5, func() {
		c.Assert(recordings(c, d.view.res.Commands), qt.DeepEquals, []int{1, 1, 1})
		c.Assert(d.view.res.DescriptorSets, qt.HasLen, 3)
		c.Assert(d.view.texture, qt.IsNil)
		for _, u := range d.view.res.Uniforms {
			uniforms = append(uniforms, u.(*headless.Buffer))
		}
	})

	expected := transform.NewState(transform.TeapotCamera, 320, 240, glm.Ident4(), false)
	step := transform.RotationStep(float32(frameTime) / float32(time.Millisecond))

	subs := dev.Submissions()
	c.Assert(subs, qt.HasLen, 5)
	for _, sub := range subs {
		expected.Rotate(step, glm.Vec3{0, 1, 0})
		c.Assert(sub.Reads, qt.HasLen, 1)
		c.Assert(sub.Reads[0].Buffer, qt.Equals, uniforms[sub.Slot])
		c.Assert(sub.Reads[0].Data, qt.DeepEquals, expected.Bytes())
		c.Assert(sub.Commands[0].Clear, qt.Equals, TeapotClear)
		c.Assert(sub.Commands[5].Count, qt.Equals, 36)
	}

	// each slot's buffer was only written while that slot was drawn
	for slot, u := range uniforms {
		var count int
		for _, sub := range subs {
			if sub.Slot == slot {
				count++
			}
		}
		c.Assert(u.Writes(), qt.HasLen, 1+count, qt.Commentf("slot %d", slot))
	}
	c.Assert(dev.Live(), qt.Equals, 0)
}

func TestTeapotTextured(t *testing.T) {
	c := qt.New(t)
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	c.Assert(png.Encode(&buf, img), qt.IsNil)

	ctx, dev := newContext(c, assets.BoxSource{Name: "test", Box: mapBox{"Marble.png": buf.Bytes()}})
	ctx.Config.Demo.Texture = "Marble.png"
	d := &Teapot{}

	runFrames(c, d, ctx, 2, func() {
		c.Assert(d.view.texture, qt.Not(qt.IsNil))
		c.Assert(d.view.texture.Extent(), qt.Equals, gfx.Extent{Width: 2, Height: 2})
		c.Assert(d.view.res.Pipeline.Bindings(), qt.HasLen, 2)
		set := d.view.res.DescriptorSets[0].(*headless.DescriptorSet)
		c.Assert(set.Writes, qt.HasLen, 2)
		c.Assert(set.Writes[1].Texture, qt.Equals, d.view.texture)
	})
	c.Assert(dev.Live(), qt.Equals, 0)
}

func TestTeapotMissingModel(t *testing.T) {
	c := qt.New(t)
	ctx, _ := newContext(c)
	ctx.Config.Demo.Model = "teapot.dae"

	err := (&Teapot{}).InitApplication(ctx)
	c.Assert(core.ResultOf(err), qt.Equals, core.NotFound)
	c.Assert(ctx.ExitMessage(), qt.Equals, "Failed to load model for file: teapot.dae")
}

func TestTeapotBrokenTexture(t *testing.T) {
	c := qt.New(t)
	ctx, dev := newContext(c, assets.BoxSource{Name: "test", Box: mapBox{"Marble.png": []byte("not a png")}})
	ctx.Config.Demo.Texture = "Marble.png"
	d := &Teapot{}

	c.Assert(d.InitApplication(ctx), qt.IsNil)
	err := d.InitView(ctx)
	c.Assert(core.ResultOf(err), qt.Equals, core.InvalidData)
	c.Assert(ctx.ExitMessage(), qt.Equals, "Failed to load texture")
	c.Assert(d.ReleaseView(ctx), qt.IsNil)
	c.Assert(dev.Live(), qt.Equals, 0)
}

func TestOffscreen(t *testing.T) {
	c := qt.New(t)
	ctx, dev := newContext(c)
	d := &Offscreen{}

	var targets []gfx.Framebuffer
	runFrames(c, d, ctx, 6, func() {
		c.Assert(recordings(c, d.view.res.Commands), qt.DeepEquals, []int{2, 2, 2})
		targets = append(targets, d.targets...)
	})
	c.Assert(targets, qt.HasLen, 3)

	tilt := glm.HomogRotate3D(math32.Pi/8, glm.Vec3{1, 0, 0})
	expected := transform.NewState(transform.OffscreenCamera, 320, 240, tilt, false)
	step := transform.TranslationStep(320, float32(frameTime)/float32(time.Millisecond))

	subs := dev.Submissions()
	c.Assert(subs, qt.HasLen, 6)
	for _, sub := range subs {
		expected.Translate(step, 0, 0)
		c.Assert(headless.Ops(sub.Commands), qt.DeepEquals, []headless.Op{
			headless.OpBeginRenderPass,
			headless.OpBindPipeline,
			headless.OpBindDescriptorSet,
			headless.OpBindVertexBuffer,
			headless.OpBindIndexBuffer,
			headless.OpDrawIndexed,
			headless.OpEndRenderPass,
			headless.OpBlit,
		})
		c.Assert(sub.Commands[0].Framebuffer, qt.Equals, targets[sub.Slot])
		c.Assert(sub.Commands[0].Clear, qt.Equals, OffscreenClear)
		blit := sub.Commands[7]
		c.Assert(blit.Framebuffer.Slot, qt.Equals, -1)
		c.Assert(blit.Target.Slot, qt.Equals, sub.Slot)
		c.Assert(sub.Reads, qt.HasLen, 1)
		c.Assert(sub.Reads[0].Data, qt.DeepEquals, expected.Bytes())
	}
	c.Assert(dev.Live(), qt.Equals, 0)
}

func TestDemosThroughShell(t *testing.T) {
	c := qt.New(t)
	for _, name := range Names() {
		c.Run(name, func(c *qt.C) {
			d, err := New(name)
			c.Assert(err, qt.IsNil)

			cfg := core.DefaultConfiguration()
			cfg.Renderer.Backend = "headless"
			cfg.Time.FramesPerSecond = 0
			cfg.Demo.Model = "cube.dae"
			cfg.Demo.Frames = 4

			platform := shell.NewHeadlessPlatform(64, 64)
			platform.Latency = 2
			platform.Logger = quietLogger()
			store := assets.NewStore(quietLogger(), assets.Embedded())

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			err = shell.New(d, platform, store, cfg, shell.WithLogger(quietLogger())).Run(ctx)
			c.Assert(err, qt.IsNil)

			c.Assert(platform.Devices(), qt.HasLen, 1)
			dev := platform.Devices()[0]
			c.Assert(dev.Submissions(), qt.HasLen, 4)
			c.Assert(dev.Live(), qt.Equals, 0)
			c.Assert(dev.Destroyed(), qt.IsTrue)
		})
	}
}
