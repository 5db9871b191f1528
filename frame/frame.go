// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package frame drives multi-buffered frame submission. Each swapchain
// slot owns a command buffer and optionally a uniform buffer; a slot is
// written by the CPU only between the swapchain handing it out and its
// submission.
package frame

import (
	"context"
	"fmt"

	"github.com/devblok/mydemo/core"
	"github.com/devblok/mydemo/gfx"
	log "github.com/sirupsen/logrus"
)

// package errors
var (
	ErrSlotCountMismatch = fmt.Errorf("resource count does not match swapchain length: %w", core.ErrInvalidData)
	ErrSlotInFlight      = fmt.Errorf("slot is owned by the GPU: %w", core.ErrInvalidData)
)

// Owner tells who may touch a slot's resources
type Owner int

// Slot owners
const (
	CPU Owner = iota
	GPU
)

func (o Owner) String() string {
	if o == GPU {
		return "gpu"
	}
	return "cpu"
}

// UpdateFunc returns the uniform payload for the acquired slot, nil skips the write
type UpdateFunc func(slot int) ([]byte, error)

// Option configures a Driver
type Option func(*Driver)

// WithRerecord makes the driver record the slot's commands again every frame
func WithRerecord(rec Recorder) Option {
	return func(d *Driver) {
		d.rerecord = rec
	}
}

// WithLogger sets the logger, the standard logger is used otherwise
func WithLogger(logger log.FieldLogger) Option {
	return func(d *Driver) {
		d.log = logger
	}
}

// NewDriver validates res against the device's swapchain. A mismatch
// is a configuration error reported here, never per frame.
func NewDriver(dev gfx.Device, res *Resources, opts ...Option) (*Driver, error) {
	sc := dev.Swapchain()
	if err := res.Validate(sc.Len()); err != nil {
		return nil, err
	}
	d := &Driver{
		device:    dev,
		swapchain: sc,
		res:       res,
		owners:    make([]Owner, sc.Len()),
		log:       log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Driver submits one frame per call to Frame
type Driver struct {
	device    gfx.Device
	swapchain gfx.Swapchain
	res       *Resources
	owners    []Owner
	rerecord  Recorder
	log       log.FieldLogger
	frames    uint64
}

// Len returns the number of slots
func (d *Driver) Len() int {
	return len(d.owners)
}

// Frames returns the number of submitted frames
func (d *Driver) Frames() uint64 {
	return d.frames
}

// Owner returns the current owner of slot
func (d *Driver) Owner(slot int) Owner {
	return d.owners[slot]
}

// WriteUniform writes data into the uniform buffer of slot. It fails
// with ErrSlotInFlight unless the slot was acquired and not yet submitted.
func (d *Driver) WriteUniform(slot int, data []byte) error {
	if slot < 0 || slot >= len(d.owners) {
		return fmt.Errorf("slot %d of %d: %w", slot, len(d.owners), core.ErrInvalidData)
	}
	if d.owners[slot] != CPU {
		return fmt.Errorf("write to slot %d: %w", slot, ErrSlotInFlight)
	}
	if len(d.res.Uniforms) == 0 {
		return fmt.Errorf("no uniform buffers: %w", core.ErrInvalidData)
	}
	return d.res.Uniforms[slot].Write(0, data)
}

// Frame acquires a slot, updates its uniform buffer, submits its commands
// and presents it. It returns the slot that was drawn.
func (d *Driver) Frame(ctx context.Context, update UpdateFunc) (int, error) {
	slot, err := d.swapchain.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	if slot < 0 || slot >= len(d.owners) {
		return 0, fmt.Errorf("swapchain returned slot %d of %d: %w", slot, len(d.owners), core.ErrInvalidData)
	}
	d.owners[slot] = CPU

	if update != nil {
		data, err := update(slot)
		if err != nil {
			return slot, err
		}
		if data != nil {
			if err := d.WriteUniform(slot, data); err != nil {
				return slot, err
			}
		}
	}

	cb := d.res.Commands[slot]
	if d.rerecord != nil {
		if err := recordSlot(slot, cb, d.rerecord); err != nil {
			return slot, err
		}
	}

	if err := d.device.Submit(slot, cb); err != nil {
		return slot, err
	}
	d.owners[slot] = GPU
	d.frames++

	if err := d.swapchain.Present(slot); err != nil {
		d.log.WithField("slot", slot).WithError(err).Warn("present failed")
		return slot, err
	}
	return slot, nil
}
