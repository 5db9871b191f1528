// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package frame_test

import (
	"context"
	"errors"
	"testing"

	"github.com/devblok/mydemo/core"
	"github.com/devblok/mydemo/frame"
	"github.com/devblok/mydemo/gfx"
	"github.com/devblok/mydemo/gfx/headless"
	qt "github.com/frankban/quicktest"
)

type fixture struct {
	dev  *headless.Device
	pass gfx.RenderPass
	res  *frame.Resources
}

func newFixture(c *qt.C, cfg headless.Config, uniforms bool) *fixture {
	cfg.Width, cfg.Height = 32, 32
	dev, err := headless.NewDevice(cfg)
	c.Assert(err, qt.IsNil)

	f := &fixture{dev: dev, res: &frame.Resources{}}
	f.pass, err = dev.CreateRenderPass(gfx.OnScreenPass())
	c.Assert(err, qt.IsNil)

	vs, err := dev.CreateShader([]byte{1}, gfx.VertexStage)
	c.Assert(err, qt.IsNil)
	fs, err := dev.CreateShader([]byte{1}, gfx.FragmentStage)
	c.Assert(err, qt.IsNil)
	defer gfx.Release(vs, fs)

	var bindings []gfx.Binding
	if uniforms {
		bindings = []gfx.Binding{{Binding: 0, Type: gfx.UniformBufferDescriptor, Stages: gfx.VertexStage}}
	}
	f.res.Pipeline, err = dev.CreatePipeline(gfx.PipelineConfig{
		VertexShader:   vs,
		FragmentShader: fs,
		RenderPass:     f.pass,
		Bindings:       bindings,
	})
	c.Assert(err, qt.IsNil)

	f.res.Framebuffers, err = dev.CreateOnScreenFramebuffers(f.pass)
	c.Assert(err, qt.IsNil)
	n := dev.Swapchain().Len()
	f.res.Commands, err = dev.CreateCommandBuffers(n)
	c.Assert(err, qt.IsNil)

	if uniforms {
		for slot := 0; slot < n; slot++ {
			ubo, err := dev.CreateBuffer(gfx.UniformBuffer, 4)
			c.Assert(err, qt.IsNil)
			set, err := dev.CreateDescriptorSet(f.res.Pipeline, gfx.DescriptorWrite{Binding: 0, Buffer: ubo})
			c.Assert(err, qt.IsNil)
			f.res.Uniforms = append(f.res.Uniforms, ubo)
			f.res.DescriptorSets = append(f.res.DescriptorSets, set)
		}
	}
	return f
}

func (f *fixture) record(slot int, cb gfx.CommandBuffer) error {
	fb := f.res.Framebuffers[slot]
	cb.BeginRenderPass(fb, gfx.FullRect(fb.Extent()), gfx.ClearValues{})
	cb.BindPipeline(f.res.Pipeline)
	if set := f.res.DescriptorSet(slot); set != nil {
		cb.BindDescriptorSet(f.res.Pipeline, set)
	}
	cb.DrawArrays(0, 3, 1)
	cb.EndRenderPass()
	return nil
}

func (f *fixture) release(c *qt.C) {
	c.Assert(f.dev.WaitIdle(), qt.IsNil)
	f.res.Release()
	f.pass.Release()
	c.Assert(f.dev.Live(), qt.Equals, 0)
}

func TestDriverWritesOnlyAcquiredSlot(t *testing.T) {
	c := qt.New(t)
	order := []int{2, 0, 1, 1, 0, 2, 2}
	f := newFixture(c, headless.Config{SwapchainSize: 3, AcquireOrder: order}, true)
	defer f.release(c)
	c.Assert(frame.Record(f.res, f.record), qt.IsNil)

	d, err := frame.NewDriver(f.dev, f.res)
	c.Assert(err, qt.IsNil)

	writes := make([]int, 3)
	for idx := 0; idx < 2*len(order); idx++ {
		value := byte(idx + 1)
		slot, err := d.Frame(context.Background(), func(slot int) ([]byte, error) {
			// every other slot must still hold its own older value
			for other, ubo := range f.res.Uniforms {
				if other != slot && len(ubo.(*headless.Buffer).Writes()) != writes[other] {
					return nil, errors.New("foreign slot written")
				}
			}
			return []byte{value, 0, 0, 0}, nil
		})
		c.Assert(err, qt.IsNil)
		c.Assert(slot, qt.Equals, order[idx%len(order)])
		writes[slot]++
		c.Assert(d.Owner(slot), qt.Equals, frame.GPU)
	}

	for slot, ubo := range f.res.Uniforms {
		c.Assert(ubo.(*headless.Buffer).Writes(), qt.HasLen, writes[slot])
	}

	// each submission read the value written for its own slot in the same frame
	for idx, sub := range f.dev.Submissions() {
		c.Assert(sub.Slot, qt.Equals, order[idx%len(order)])
		c.Assert(sub.Reads, qt.HasLen, 1)
		c.Assert(sub.Reads[0].Buffer, qt.Equals, f.res.Uniforms[sub.Slot].(*headless.Buffer))
		c.Assert(sub.Reads[0].Data[0], qt.Equals, byte(idx+1))
	}
	c.Assert(d.Frames(), qt.Equals, uint64(2*len(order)))
}

func TestDriverSlotInFlight(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, headless.Config{SwapchainSize: 2}, true)
	defer f.release(c)
	c.Assert(frame.Record(f.res, f.record), qt.IsNil)

	d, err := frame.NewDriver(f.dev, f.res)
	c.Assert(err, qt.IsNil)

	slot, err := d.Frame(context.Background(), nil)
	c.Assert(err, qt.IsNil)
	c.Assert(slot, qt.Equals, 0)

	err = d.WriteUniform(0, []byte{1})
	c.Assert(errors.Is(err, frame.ErrSlotInFlight), qt.IsTrue)
	c.Assert(core.ResultOf(err), qt.Equals, core.InvalidData)

	// slot 1 was never submitted
	c.Assert(d.WriteUniform(1, []byte{1}), qt.IsNil)

	// acquiring slot 0 again hands it back to the CPU
	_, err = d.Frame(context.Background(), nil)
	c.Assert(err, qt.IsNil)
	_, err = d.Frame(context.Background(), func(slot int) ([]byte, error) {
		c.Check(slot, qt.Equals, 0)
		c.Check(d.Owner(0), qt.Equals, frame.CPU)
		return []byte{9}, nil
	})
	c.Assert(err, qt.IsNil)
}

func TestDriverSlotCountMismatch(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, headless.Config{SwapchainSize: 3}, true)
	defer f.release(c)

	tests := []struct {
		name   string
		mutate func(r frame.Resources) frame.Resources
	}{
		{"commands", func(r frame.Resources) frame.Resources {
			r.Commands = r.Commands[:2]
			return r
		}},
		{"framebuffers", func(r frame.Resources) frame.Resources {
			r.Framebuffers = r.Framebuffers[:1]
			return r
		}},
		{"uniforms", func(r frame.Resources) frame.Resources {
			r.Uniforms = r.Uniforms[:2]
			return r
		}},
		{"descriptor sets", func(r frame.Resources) frame.Resources {
			r.DescriptorSets = r.DescriptorSets[:2]
			return r
		}},
		{"pipeline", func(r frame.Resources) frame.Resources {
			r.Pipeline = nil
			return r
		}},
	}
	for _, test := range tests {
		c.Run(test.name, func(c *qt.C) {
			res := test.mutate(*f.res)
			_, err := frame.NewDriver(f.dev, &res)
			c.Assert(errors.Is(err, frame.ErrSlotCountMismatch), qt.IsTrue)
			c.Assert(core.ResultOf(err), qt.Equals, core.InvalidData)
		})
	}

	// a single shared descriptor set and no uniforms are fine
	res := *f.res
	res.DescriptorSets = res.DescriptorSets[:1]
	res.Uniforms = nil
	_, err := frame.NewDriver(f.dev, &res)
	c.Assert(err, qt.IsNil)
}

func TestDriverRerecord(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, headless.Config{SwapchainSize: 2}, false)
	defer f.release(c)

	var recorded []int
	d, err := frame.NewDriver(f.dev, f.res, frame.WithRerecord(func(slot int, cb gfx.CommandBuffer) error {
		recorded = append(recorded, slot)
		return f.record(slot, cb)
	}))
	c.Assert(err, qt.IsNil)

	for idx := 0; idx < 4; idx++ {
		_, err := d.Frame(context.Background(), nil)
		c.Assert(err, qt.IsNil)
	}
	c.Assert(recorded, qt.DeepEquals, []int{0, 1, 0, 1})
	c.Assert(f.res.Commands[0].(*headless.CommandBuffer).Recordings, qt.Equals, 2)

	// the update payload needs somewhere to go
	_, err = d.Frame(context.Background(), func(int) ([]byte, error) {
		return []byte{1}, nil
	})
	c.Assert(core.ResultOf(err), qt.Equals, core.InvalidData)
}

func TestDriverRecordError(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, headless.Config{SwapchainSize: 2}, false)
	defer f.release(c)

	err := frame.Record(f.res, func(slot int, cb gfx.CommandBuffer) error {
		cb.DrawArrays(0, 3, 1)
		return nil
	})
	c.Assert(err, qt.ErrorMatches, "slot 0: headless: draw outside of render pass: invalid data")

	boom := errors.New("boom")
	err = frame.Record(f.res, func(int, gfx.CommandBuffer) error { return boom })
	c.Assert(errors.Is(err, boom), qt.IsTrue)
}
