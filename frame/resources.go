// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package frame

import (
	"fmt"

	"github.com/devblok/mydemo/gfx"
)

// Resources is the set of GPU objects a demo draws a frame with.
// Every per-slot array is indexed by the swapchain slot.
type Resources struct {
	Pipeline gfx.Pipeline

	// DescriptorSets holds nothing, one shared set, or one set per slot.
	DescriptorSets []gfx.DescriptorSet

	Framebuffers []gfx.Framebuffer
	Commands     []gfx.CommandBuffer

	// Uniforms is empty when nothing changes per frame.
	Uniforms []gfx.Buffer
}

// Validate checks every per-slot array against n slots
func (r *Resources) Validate(n int) error {
	if n <= 0 {
		return fmt.Errorf("%d slots: %w", n, ErrSlotCountMismatch)
	}
	if r.Pipeline == nil {
		return fmt.Errorf("frame resources without pipeline: %w", ErrSlotCountMismatch)
	}
	if len(r.Framebuffers) != n {
		return fmt.Errorf("%d framebuffers for %d slots: %w", len(r.Framebuffers), n, ErrSlotCountMismatch)
	}
	if len(r.Commands) != n {
		return fmt.Errorf("%d command buffers for %d slots: %w", len(r.Commands), n, ErrSlotCountMismatch)
	}
	if l := len(r.Uniforms); l != 0 && l != n {
		return fmt.Errorf("%d uniform buffers for %d slots: %w", l, n, ErrSlotCountMismatch)
	}
	if l := len(r.DescriptorSets); l > 1 && l != n {
		return fmt.Errorf("%d descriptor sets for %d slots: %w", l, n, ErrSlotCountMismatch)
	}
	return nil
}

// DescriptorSet returns the set bound for slot, nil when there is none
func (r *Resources) DescriptorSet(slot int) gfx.DescriptorSet {
	switch len(r.DescriptorSets) {
	case 0:
		return nil
	case 1:
		return r.DescriptorSets[0]
	}
	return r.DescriptorSets[slot]
}

// Release frees everything in reverse dependency order. Call it only
// after the device went idle.
func (r *Resources) Release() {
	for _, cb := range r.Commands {
		cb.Release()
	}
	for _, set := range r.DescriptorSets {
		set.Release()
	}
	for _, buf := range r.Uniforms {
		buf.Release()
	}
	for _, fb := range r.Framebuffers {
		fb.Release()
	}
	if r.Pipeline != nil {
		r.Pipeline.Release()
	}
	*r = Resources{}
}

// Recorder records the commands of one slot between Begin and End
type Recorder func(slot int, cb gfx.CommandBuffer) error

// Record records every slot's command buffer once
func Record(r *Resources, rec Recorder) error {
	for slot, cb := range r.Commands {
		if err := recordSlot(slot, cb, rec); err != nil {
			return err
		}
	}
	return nil
}

func recordSlot(slot int, cb gfx.CommandBuffer, rec Recorder) error {
	if err := cb.Begin(); err != nil {
		return fmt.Errorf("slot %d: %w", slot, err)
	}
	if err := rec(slot, cb); err != nil {
		// the recording error wins over whatever End reports
		_ = cb.End()
		return fmt.Errorf("slot %d: %w", slot, err)
	}
	if err := cb.End(); err != nil {
		return fmt.Errorf("slot %d: %w", slot, err)
	}
	return nil
}
