// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package shell

import (
	"github.com/devblok/mydemo/core"
	"github.com/devblok/mydemo/gfx"
	"github.com/devblok/mydemo/gfx/headless"
	log "github.com/sirupsen/logrus"
)

// HeadlessPlatform runs demos without a window. It never reports events,
// so a frame limit or a context is needed to stop the shell.
type HeadlessPlatform struct {
	Latency int
	Logger  log.FieldLogger

	width, height uint32
	devices       []*headless.Device
}

// Size implements interface
func (p *HeadlessPlatform) Size() (uint32, uint32) {
	return p.width, p.height
}

// SetSize changes the size of the next device
func (p *HeadlessPlatform) SetSize(width, height uint32) {
	p.width, p.height = width, height
}

// PollEvents implements interface
func (p *HeadlessPlatform) PollEvents() []Event {
	return nil
}

// CreateDevice implements interface
func (p *HeadlessPlatform) CreateDevice(cfg core.RendererConfiguration) (gfx.Device, error) {
	width, height := p.width, p.height
	if width == 0 || height == 0 {
		width, height = cfg.ScreenWidth, cfg.ScreenHeight
	}
	dev, err := headless.NewDevice(headless.Config{
		Width:         width,
		Height:        height,
		SwapchainSize: int(cfg.SwapchainSize),
		Latency:       p.Latency,
		Logger:        p.Logger,
	})
	if err != nil {
		return nil, err
	}
	p.devices = append(p.devices, dev)
	return dev, nil
}

// Devices returns every device created so far
func (p *HeadlessPlatform) Devices() []*headless.Device {
	return p.devices
}

// NewHeadlessPlatform creates a platform with a surface of the given size
func NewHeadlessPlatform(width, height uint32) *HeadlessPlatform {
	return &HeadlessPlatform{width: width, height: height}
}
