// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gles

import (
	"context"
	"fmt"

	"github.com/devblok/mydemo/core"
	"github.com/devblok/mydemo/gfx"
	"github.com/go-gl/gl/v4.1-core/gl"
)

// fenceTimeout is how long a single glClientWaitSync blocks, in nanoseconds
const fenceTimeout = 1000000

// Swapchain implements gfx.Swapchain. Slots are handed out round robin,
// every slot draws to the default framebuffer and is presented by swap.
type Swapchain struct {
	extent gfx.Extent
	swap   func() error

	fences   []uintptr
	next     int
	acquired int
}

func newSwapchain(cfg Config) *Swapchain {
	return &Swapchain{
		extent:   gfx.Extent{Width: cfg.Width, Height: cfg.Height},
		swap:     cfg.Swap,
		fences:   make([]uintptr, cfg.SwapchainSize),
		acquired: -1,
	}
}

// Len implements interface
func (s *Swapchain) Len() int {
	return len(s.fences)
}

// Extent implements interface
func (s *Swapchain) Extent() gfx.Extent {
	return s.extent
}

// Acquire implements interface. It waits for the fence of the previous
// submission to the slot.
func (s *Swapchain) Acquire(ctx context.Context) (int, error) {
	if s.acquired >= 0 {
		return 0, fmt.Errorf("gl: slot %d still acquired: %w", s.acquired, core.ErrInvalidData)
	}
	slot := s.next
	if err := s.wait(ctx, slot); err != nil {
		return 0, err
	}
	s.next = (s.next + 1) % len(s.fences)
	s.acquired = slot
	return slot, nil
}

func (s *Swapchain) wait(ctx context.Context, slot int) error {
	fence := s.fences[slot]
	if fence == 0 {
		return nil
	}
	for {
		done, err := syncDone(gl.ClientWaitSync(fence, gl.SYNC_FLUSH_COMMANDS_BIT, fenceTimeout))
		if err != nil {
			return err
		}
		if done {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	gl.DeleteSync(fence)
	s.fences[slot] = 0
	return nil
}

// submitted fences the commands just issued for slot
func (s *Swapchain) submitted(slot int) error {
	if slot != s.acquired {
		return fmt.Errorf("gl: submit to slot %d which is not acquired: %w", slot, core.ErrInvalidData)
	}
	s.fences[slot] = gl.FenceSync(gl.SYNC_GPU_COMMANDS_COMPLETE, 0)
	return nil
}

// Present implements interface
func (s *Swapchain) Present(slot int) error {
	if slot != s.acquired {
		return fmt.Errorf("gl: present of slot %d which is not acquired: %w", slot, core.ErrInvalidData)
	}
	s.acquired = -1
	if s.swap == nil {
		gl.Flush()
		return nil
	}
	return s.swap()
}

func (s *Swapchain) drain() {
	gl.Finish()
	for idx, fence := range s.fences {
		if fence != 0 {
			gl.DeleteSync(fence)
			s.fences[idx] = 0
		}
	}
}
