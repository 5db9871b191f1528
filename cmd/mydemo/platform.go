// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"fmt"

	"github.com/devblok/mydemo/core"
	"github.com/devblok/mydemo/gfx"
	"github.com/devblok/mydemo/gfx/gles"
	"github.com/devblok/mydemo/gfx/vkr"
	"github.com/devblok/mydemo/shell"
	log "github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"
)

// sdlPlatform is a SDL2 window drawn into by Vulkan or OpenGL
type sdlPlatform struct {
	backend string
	window  *sdl.Window
	log     log.FieldLogger

	// vulkan
	instance *vkr.Instance

	// gl
	glContext sdl.GLContext
}

func newSDLPlatform(cfg core.Configuration, logger log.FieldLogger) (*sdlPlatform, error) {
	p := &sdlPlatform{
		backend: cfg.Renderer.Backend,
		log:     logger,
	}

	flags := uint32(sdl.WINDOW_SHOWN | sdl.WINDOW_RESIZABLE)
	switch p.backend {
	case "vulkan":
		if err := sdl.VulkanLoadLibrary(""); err != nil {
			return nil, fmt.Errorf("sdl.VulkanLoadLibrary(): %w: %s", core.ErrNotFound, err.Error())
		}
		flags |= sdl.WINDOW_VULKAN
	case "gl":
		sdl.GLSetAttribute(sdl.GL_CONTEXT_MAJOR_VERSION, 4)
		sdl.GLSetAttribute(sdl.GL_CONTEXT_MINOR_VERSION, 1)
		sdl.GLSetAttribute(sdl.GL_CONTEXT_PROFILE_MASK, sdl.GL_CONTEXT_PROFILE_CORE)
		sdl.GLSetAttribute(sdl.GL_DOUBLEBUFFER, 1)
		sdl.GLSetAttribute(sdl.GL_DEPTH_SIZE, 24)
		sdl.GLSetAttribute(sdl.GL_STENCIL_SIZE, 8)
		flags |= sdl.WINDOW_OPENGL
	default:
		return nil, fmt.Errorf("no window for backend %q: %w", p.backend, core.ErrInvalidData)
	}

	window, err := sdl.CreateWindow("MyDemo - "+cfg.Demo.Name,
		sdl.WINDOWPOS_UNDEFINED,
		sdl.WINDOWPOS_UNDEFINED,
		int32(cfg.Renderer.ScreenWidth),
		int32(cfg.Renderer.ScreenHeight),
		flags)
	if err != nil {
		p.Destroy()
		return nil, fmt.Errorf("sdl.CreateWindow(): %w", err)
	}
	p.window = window

	switch p.backend {
	case "vulkan":
		icfg := vkr.InstanceConfiguration{
			DebugMode:  cfg.Renderer.DebugMode,
			Extensions: window.VulkanGetInstanceExtensions(),
		}
		inst, err := vkr.NewInstance(vkr.DefaultApplicationInfo, sdl.VulkanGetVkGetInstanceProcAddr(), icfg)
		if err != nil {
			p.Destroy()
			return nil, err
		}
		p.instance = inst
	case "gl":
		glContext, err := window.GLCreateContext()
		if err != nil {
			p.Destroy()
			return nil, fmt.Errorf("sdl.GLCreateContext(): %w", err)
		}
		p.glContext = glContext
		if err := sdl.GLSetSwapInterval(1); err != nil {
			p.log.WithError(err).Warn("vsync not available")
		}
	}
	return p, nil
}

// Size implements interface
func (p *sdlPlatform) Size() (uint32, uint32) {
	if p.window.GetFlags()&sdl.WINDOW_MINIMIZED != 0 {
		return 0, 0
	}
	var w, h int32
	if p.backend == "vulkan" {
		w, h = p.window.VulkanGetDrawableSize()
	} else {
		w, h = p.window.GLGetDrawableSize()
	}
	if w <= 0 || h <= 0 {
		return 0, 0
	}
	return uint32(w), uint32(h)
}

// PollEvents implements interface
func (p *sdlPlatform) PollEvents() []shell.Event {
	var events []shell.Event
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		switch et := event.(type) {
		case *sdl.QuitEvent:
			events = append(events, shell.EventQuit)
		case *sdl.KeyboardEvent:
			if et.Keysym.Sym == sdl.K_ESCAPE && et.Type == sdl.KEYDOWN {
				events = append(events, shell.EventQuit)
			}
		case *sdl.WindowEvent:
			switch et.Event {
			case sdl.WINDOWEVENT_SIZE_CHANGED:
				events = append(events, shell.EventResize)
			case sdl.WINDOWEVENT_RESTORED:
				events = append(events, shell.EventSurfaceLost)
			}
		}
	}
	return events
}

// CreateDevice implements interface
func (p *sdlPlatform) CreateDevice(cfg core.RendererConfiguration) (gfx.Device, error) {
	w, h := p.Size()
	switch p.backend {
	case "vulkan":
		ptr, err := p.window.VulkanCreateSurface(p.instance.Handle())
		if err != nil {
			return nil, fmt.Errorf("sdl.VulkanCreateSurface(): %w", err)
		}
		surface, err := vkr.SurfaceFromPointer(ptr)
		if err != nil {
			return nil, err
		}
		dcfg := vkr.ConfigFrom(cfg, w, h)
		dcfg.Logger = p.log
		dev, err := vkr.NewDevice(p.instance, surface, dcfg)
		if err != nil {
			return nil, err
		}
		return dev, nil
	default:
		dev, err := gles.NewDevice(gles.Config{
			Width:         w,
			Height:        h,
			SwapchainSize: int(cfg.SwapchainSize),
			Swap: func() error {
				p.window.GLSwap()
				return nil
			},
			Logger: p.log,
		})
		if err != nil {
			return nil, err
		}
		return dev, nil
	}
}

// Destroy releases the window and the API objects bound to it
func (p *sdlPlatform) Destroy() {
	if p.instance != nil {
		p.instance.Destroy()
	}
	if p.glContext != nil {
		sdl.GLDeleteContext(p.glContext)
	}
	if p.window != nil {
		p.window.Destroy()
	}
	if p.backend == "vulkan" {
		sdl.VulkanUnloadLibrary()
	}
}
