// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package headless

import (
	"context"
	"fmt"
	"sync"

	"github.com/devblok/mydemo/core"
	"github.com/devblok/mydemo/gfx"
)

type slotState int

const (
	slotFree slotState = iota
	slotAcquired
	slotSubmitted
	slotPresented
)

func newSwapchain(cfg Config) *Swapchain {
	s := &Swapchain{
		extent:  gfx.Extent{Width: cfg.Width, Height: cfg.Height},
		latency: cfg.Latency,
		order:   cfg.AcquireOrder,
		states:  make([]slotState, cfg.SwapchainSize),
	}
	for idx := 0; idx < cfg.SwapchainSize; idx++ {
		s.free = append(s.free, idx)
	}
	return s
}

// Swapchain implements gfx.Swapchain. Slots are handed out in the
// order they were presented, a presented slot stays busy until
// Latency more presents happened or a free slot is needed.
type Swapchain struct {
	extent  gfx.Extent
	latency int
	order   []int

	mutex    sync.Mutex
	states   []slotState
	free     []int
	busy     []int
	acquires int
	presents int
}

// Len implements interface
func (s *Swapchain) Len() int {
	return len(s.states)
}

// Extent implements interface
func (s *Swapchain) Extent() gfx.Extent {
	return s.extent
}

// Presents returns the number of presented frames
func (s *Swapchain) Presents() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.presents
}

// Acquire implements interface
func (s *Swapchain) Acquire(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if len(s.order) > 0 {
		slot := s.order[s.acquires%len(s.order)]
		if s.states[slot] == slotAcquired {
			return 0, fmt.Errorf("headless: slot %d acquired twice: %w", slot, core.ErrInvalidData)
		}
		s.retire(slot)
		s.acquires++
		s.states[slot] = slotAcquired
		return slot, nil
	}

	if len(s.free) == 0 {
		if len(s.busy) == 0 {
			return 0, fmt.Errorf("headless: every slot is acquired: %w", core.ErrInvalidData)
		}
		// the GPU finishes the oldest frame
		s.free = append(s.free, s.busy[0])
		s.busy = s.busy[1:]
	}
	slot := s.free[0]
	s.free = s.free[1:]
	s.acquires++
	s.states[slot] = slotAcquired
	return slot, nil
}

// retire removes slot from the queues
func (s *Swapchain) retire(slot int) {
	for idx, v := range s.free {
		if v == slot {
			s.free = append(s.free[:idx], s.free[idx+1:]...)
			return
		}
	}
	for idx, v := range s.busy {
		if v == slot {
			s.busy = append(s.busy[:idx], s.busy[idx+1:]...)
			return
		}
	}
}

func (s *Swapchain) submitted(slot int) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.states[slot] == slotPresented || s.states[slot] == slotFree {
		return fmt.Errorf("headless: submit to slot %d which is not acquired: %w", slot, core.ErrInvalidData)
	}
	s.states[slot] = slotSubmitted
	return nil
}

// Present implements interface
func (s *Swapchain) Present(slot int) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if slot < 0 || slot >= len(s.states) {
		return fmt.Errorf("headless: present slot %d of %d: %w", slot, len(s.states), core.ErrInvalidData)
	}
	if s.states[slot] != slotSubmitted && s.states[slot] != slotAcquired {
		return fmt.Errorf("headless: present of slot %d which is not acquired: %w", slot, core.ErrInvalidData)
	}
	s.states[slot] = slotPresented
	s.presents++
	s.busy = append(s.busy, slot)
	for len(s.busy) > s.latency {
		s.free = append(s.free, s.busy[0])
		s.busy = s.busy[1:]
	}
	return nil
}

func (s *Swapchain) drain() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.free = append(s.free, s.busy...)
	s.busy = nil
}
