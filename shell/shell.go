// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package shell hosts a demo: it owns the device, the frame clock and the
// window events, and calls the demo's lifecycle callbacks in order.
package shell

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/devblok/mydemo/assets"
	"github.com/devblok/mydemo/core"
	"github.com/devblok/mydemo/gfx"
	log "github.com/sirupsen/logrus"
)

// Demo is a sample application. InitApplication and QuitApplication run
// once, InitView and ReleaseView once per device, RenderFrame once per tick.
type Demo interface {
	InitApplication(ctx *Context) error
	InitView(ctx *Context) error
	RenderFrame(ctx *Context) error
	ReleaseView(ctx *Context) error
	QuitApplication(ctx *Context) error
}

// Event is something the platform reports between frames
type Event int

// Platform events
const (
	EventQuit Event = iota
	// EventSurfaceLost means the device must be recreated
	EventSurfaceLost
	EventResize
)

func (e Event) String() string {
	switch e {
	case EventQuit:
		return "quit"
	case EventSurfaceLost:
		return "surface lost"
	case EventResize:
		return "resize"
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// Platform abstracts the window the demo draws into
type Platform interface {
	// CreateDevice creates a device for the current surface
	CreateDevice(cfg core.RendererConfiguration) (gfx.Device, error)
	PollEvents() []Event
	// Size of the drawable surface, zero while it is not visible
	Size() (width, height uint32)
}

// Context is handed to every lifecycle callback
type Context struct {
	Config core.Configuration
	Assets *assets.Store
	Log    log.FieldLogger

	// Device is nil outside of a view
	Device        gfx.Device
	Width, Height uint32

	FrameTime time.Duration
	Frame     uint64

	exitMessage string
	ctx         context.Context
}

// Context returns the context the shell runs with
func (c *Context) Context() context.Context {
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// FrameTimeMs is the duration of the previous frame in milliseconds
func (c *Context) FrameTimeMs() float32 {
	return float32(c.FrameTime) / float32(time.Millisecond)
}

// SetExitMessage sets the message reported if the current callback fails
func (c *Context) SetExitMessage(msg string) {
	c.exitMessage = msg
}

// ExitMessage returns the last message set
func (c *Context) ExitMessage() string {
	return c.exitMessage
}

// ExitError is returned by Run when a callback fails
type ExitError struct {
	Result  core.Result
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	return e.Message + ": " + e.Err.Error()
}

// Unwrap returns the callback error
func (e *ExitError) Unwrap() error {
	return e.Err
}

// Option configures a Shell
type Option func(*Shell)

// WithLogger sets the logger passed to the demo
func WithLogger(logger log.FieldLogger) Option {
	return func(s *Shell) {
		s.log = logger
	}
}

// WithWatcher recreates the view whenever the watcher reports an asset change
func WithWatcher(w *Watcher) Option {
	return func(s *Shell) {
		s.watcher = w
	}
}

// New creates a shell running demo on platform
func New(demo Demo, platform Platform, store *assets.Store, cfg core.Configuration, opts ...Option) *Shell {
	s := &Shell{
		demo:     demo,
		platform: platform,
		assets:   store,
		cfg:      cfg,
		log:      log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Shell runs one demo
type Shell struct {
	demo     Demo
	platform Platform
	assets   *assets.Store
	cfg      core.Configuration
	log      log.FieldLogger
	watcher  *Watcher
}

func (s *Shell) fail(c *Context, stage string, err error) error {
	msg := c.exitMessage
	if msg == "" {
		msg = "Failed to " + stage
	}
	s.log.WithError(err).WithField("stage", stage).Error(msg)
	return &ExitError{Result: core.ResultOf(err), Message: msg, Err: err}
}

// Run calls the demo callbacks until ctx is done, the platform quits
// or the configured number of frames was drawn. Any callback failure
// stops the demo and is returned as an *ExitError.
func (s *Shell) Run(ctx context.Context) (err error) {
	c := &Context{
		Config: s.cfg,
		Assets: s.assets,
		Log:    s.log,
		ctx:    ctx,
	}

	if err := s.demo.InitApplication(c); err != nil {
		return s.fail(c, "initialise application", err)
	}
	defer func() {
		c.exitMessage = ""
		if qerr := s.demo.QuitApplication(c); qerr != nil && err == nil {
			err = s.fail(c, "quit application", qerr)
		}
	}()

	t := core.NewTime(s.cfg.Time)
	defer t.Stop()

	if ok, err := s.acquireView(c, t); err != nil || !ok {
		return err
	}
	defer func() {
		if c.Device == nil {
			return
		}
		if rerr := s.releaseView(c); rerr != nil && err == nil {
			err = rerr
		}
	}()

	var changes <-chan string
	if s.watcher != nil {
		changes = s.watcher.Changes()
	}

	limit := uint64(0)
	if s.cfg.Demo.Frames > 0 {
		limit = uint64(s.cfg.Demo.Frames)
	}

EventLoop:
	for {
		select {
		case <-ctx.Done():
			s.log.Debug("context done")
			break EventLoop
		case name := <-changes:
			s.log.WithField("asset", name).Info("asset changed, reloading view")
			s.assets.ReleaseAll()
			if ok, err := s.reacquireView(c, t); err != nil || !ok {
				return err
			}
		case now := <-t.FpsTicker().C:
			recreate := false
			for _, ev := range s.platform.PollEvents() {
				switch ev {
				case EventQuit:
					s.log.Debug("quit requested")
					break EventLoop
				case EventSurfaceLost, EventResize:
					s.log.WithField("event", ev).Debug("recreating view")
					recreate = true
				}
			}
			if recreate {
				if ok, err := s.reacquireView(c, t); err != nil || !ok {
					return err
				}
			}

			t.Tick(now)
			c.FrameTime = t.FrameTime()
			c.Frame++
			c.exitMessage = ""
			if err := s.demo.RenderFrame(c); err != nil {
				if !errors.Is(err, gfx.ErrSurfaceLost) {
					return s.fail(c, "render frame", err)
				}
				s.log.WithError(err).Debug("recreating view")
				if ok, err := s.reacquireView(c, t); err != nil || !ok {
					return err
				}
				continue EventLoop
			}
			if limit > 0 && c.Frame >= limit {
				s.log.WithField("frames", c.Frame).Debug("frame limit reached")
				break EventLoop
			}
		}
	}
	return nil
}

func (s *Shell) reacquireView(c *Context, t *core.Time) (bool, error) {
	if err := s.releaseView(c); err != nil {
		return false, err
	}
	return s.acquireView(c, t)
}

// acquireView waits for a visible surface and initialises the view.
// It returns false without error when the wait was interrupted by quit.
func (s *Shell) acquireView(c *Context, t *core.Time) (bool, error) {
	w, h := s.platform.Size()
	for w == 0 || h == 0 {
		select {
		case <-c.Context().Done():
			return false, nil
		case <-t.EventTicker().C:
		}
		for _, ev := range s.platform.PollEvents() {
			if ev == EventQuit {
				return false, nil
			}
		}
		w, h = s.platform.Size()
	}

	c.exitMessage = ""
	dev, err := s.platform.CreateDevice(s.cfg.Renderer)
	if err != nil {
		return false, s.fail(c, "create device", err)
	}
	c.Device, c.Width, c.Height = dev, w, h
	s.log.WithFields(log.Fields{
		"backend": dev.API(),
		"width":   w,
		"height":  h,
		"slots":   dev.Swapchain().Len(),
	}).Info("view acquired")

	if err := s.demo.InitView(c); err != nil {
		ferr := s.fail(c, "initialise view", err)
		// the demo releases whatever it created before failing
		s.releaseView(c)
		return false, ferr
	}
	return true, nil
}

func (s *Shell) releaseView(c *Context) error {
	dev := c.Device
	if dev == nil {
		return nil
	}
	if err := dev.WaitIdle(); err != nil {
		s.log.WithError(err).Warn("wait idle failed")
	}
	c.exitMessage = ""
	err := s.demo.ReleaseView(c)
	dev.Destroy()
	c.Device = nil
	if err != nil {
		return s.fail(c, "release view", err)
	}
	return nil
}
