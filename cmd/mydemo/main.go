// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"strings"

	"github.com/devblok/mydemo/assets"
	"github.com/devblok/mydemo/core"
	"github.com/devblok/mydemo/demo"
	"github.com/devblok/mydemo/shell"
	log "github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"
)

func init() {
	runtime.LockOSThread()
}

var (
	demoName   = flag.String("demo", "", "Demo to run: "+strings.Join(demo.Names(), ", "))
	backend    = flag.String("backend", "", "Rendering backend: vulkan, gl or headless")
	frames     = flag.Int("frames", 0, "Stop after this many frames, 0 runs until the window is closed")
	configPath = flag.String("config", "", "TOML configuration file")
	envPath    = flag.String("env", "", "dotenv file with MYDEMO_* settings")
	assetDir   = flag.String("assets", "", "Directory searched for assets before the embedded ones")
	vkDebug    = flag.Bool("vkdbg", false, "Enable the Vulkan validation layer")
	cpuProfile = flag.String("cpuprof", "", "Write a CPU profile to file")
	traceFile  = flag.String("trace", "", "Write an execution trace to file")
)

func main() {
	flag.Parse()
	os.Exit(run())
}

// applyFlags overrides the configuration with the flags given on the command line
func applyFlags(cfg *core.Configuration) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "demo":
			cfg.Demo.Name = *demoName
		case "backend":
			cfg.Renderer.Backend = *backend
		case "frames":
			cfg.Demo.Frames = *frames
		case "assets":
			cfg.Assets.Directory = *assetDir
		case "vkdbg":
			cfg.Renderer.DebugMode = *vkDebug
		}
	})
}

func run() int {
	cfg, err := core.LoadConfiguration(*configPath, *envPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration:", err)
		return 2
	}
	applyFlags(&cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "configuration:", err)
		return 2
	}

	logger, err := core.NewLogger(cfg.Log, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration:", err)
		return 2
	}
	entry := logger.WithField("demo", cfg.Demo.Name)

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			entry.WithError(err).Error("could not create CPU profile")
			return 1
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			entry.WithError(err).Error("could not start CPU profile")
			return 1
		}
		defer pprof.StopCPUProfile()
	}
	if *traceFile != "" {
		f, err := os.Create(*traceFile)
		if err != nil {
			entry.WithError(err).Error("could not create trace file")
			return 1
		}
		defer f.Close()
		if err := trace.Start(f); err != nil {
			entry.WithError(err).Error("could not start trace")
			return 1
		}
		defer trace.Stop()
	}

	d, err := demo.New(cfg.Demo.Name)
	if err != nil {
		entry.WithError(err).Error("unknown demo")
		return 2
	}

	store, err := assets.NewStoreFromConfig(cfg.Assets, entry)
	if err != nil {
		entry.WithError(err).Error("could not open assets")
		return 1
	}
	defer store.Close()

	opts := []shell.Option{shell.WithLogger(entry)}
	if cfg.Assets.HotReload && cfg.Assets.Directory != "" {
		w, err := shell.NewWatcher(cfg.Assets.Directory, entry)
		if err != nil {
			entry.WithError(err).Warn("hot reload disabled")
		} else {
			defer w.Close()
			opts = append(opts, shell.WithWatcher(w))
		}
	}

	platform, cleanup, err := newPlatform(cfg, entry)
	if err != nil {
		entry.WithError(err).Error("could not create window")
		return 1
	}
	defer cleanup()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	err = shell.New(d, platform, store, cfg, opts...).Run(ctx)
	var exitErr *shell.ExitError
	if errors.As(err, &exitErr) {
		fmt.Fprintln(os.Stderr, exitErr.Message)
		return 1
	}
	if err != nil {
		entry.WithError(err).Error("demo stopped")
		return 1
	}
	return 0
}

// newPlatform creates the window for the configured backend
func newPlatform(cfg core.Configuration, logger log.FieldLogger) (shell.Platform, func(), error) {
	if cfg.Renderer.Backend == "headless" {
		p := shell.NewHeadlessPlatform(cfg.Renderer.ScreenWidth, cfg.Renderer.ScreenHeight)
		p.Logger = logger
		return p, func() {}, nil
	}

	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		return nil, nil, fmt.Errorf("sdl.Init(): %w", err)
	}
	p, err := newSDLPlatform(cfg, logger)
	if err != nil {
		sdl.Quit()
		return nil, nil, err
	}
	return p, func() {
		p.Destroy()
		sdl.Quit()
	}, nil
}
