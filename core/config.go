// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gobuffalo/envy"
	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"
)

// Configuration defines a global application configuration setting
type Configuration struct {
	Time     TimeConfiguration     `toml:"time"`
	Renderer RendererConfiguration `toml:"renderer"`
	Assets   AssetConfiguration    `toml:"assets"`
	Demo     DemoConfiguration     `toml:"demo"`
	Log      LogConfiguration      `toml:"log"`
}

// TimeConfiguration is used to configure time services
type TimeConfiguration struct {
	// FramesPerSecond caps frames per second that is put out
	// To unlimit, set to 0
	FramesPerSecond int `toml:"fps"`

	// EventPollDelay is the delay between window event polls in milliseconds
	EventPollDelay int `toml:"event_poll_delay"`
}

// RendererConfiguration is used to configure the renderer
type RendererConfiguration struct {
	Backend          string   `toml:"backend"`
	SwapchainSize    uint32   `toml:"swapchain_size"`
	DeviceExtensions []string `toml:"device_extensions"`
	DebugMode        bool     `toml:"debug"`

	ScreenWidth  uint32 `toml:"width"`
	ScreenHeight uint32 `toml:"height"`
}

// AssetConfiguration tells the asset store where to look for files
type AssetConfiguration struct {
	// Directory is searched first, before archives and embedded assets
	Directory string `toml:"directory"`

	// Archives are kar archives mounted in the given order
	Archives []string `toml:"archives"`

	// HotReload re-acquires the view when files in Directory change
	HotReload bool `toml:"hot_reload"`
}

// DemoConfiguration selects the demo and its asset names
type DemoConfiguration struct {
	Name         string `toml:"name"`
	Model        string `toml:"model"`
	Texture      string `toml:"texture"`
	VertexShader string `toml:"vertex_shader"`
	FragShader   string `toml:"fragment_shader"`

	// Frames stops the application after this many frames, 0 runs until closed
	Frames int `toml:"frames"`
}

// LogConfiguration configures the logger
type LogConfiguration struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// DefaultConfiguration returns the configuration used when nothing is overridden
func DefaultConfiguration() Configuration {
	return Configuration{
		Time: TimeConfiguration{
			FramesPerSecond: 60,
			EventPollDelay:  50,
		},
		Renderer: RendererConfiguration{
			Backend:       "vulkan",
			SwapchainSize: 3,
			DeviceExtensions: []string{
				"VK_KHR_swapchain",
			},
			ScreenWidth:  800,
			ScreenHeight: 600,
		},
		Assets: AssetConfiguration{
			Directory: "./assets",
		},
		Demo: DemoConfiguration{
			Name:         "teapot",
			Model:        "teapot.dae",
			Texture:      "Marble.png",
			VertexShader: "VertShader",
			FragShader:   "FragShader",
		},
		Log: LogConfiguration{
			Level:  "info",
			Format: "text",
		},
	}
}

// Environment keys read by LoadConfiguration
const (
	EnvBackend       = "MYDEMO_BACKEND"
	EnvSwapchainSize = "MYDEMO_SWAPCHAIN_SIZE"
	EnvWidth         = "MYDEMO_WIDTH"
	EnvHeight        = "MYDEMO_HEIGHT"
	EnvFPS           = "MYDEMO_FPS"
	EnvAssets        = "MYDEMO_ASSETS"
	EnvArchives      = "MYDEMO_ARCHIVES"
	EnvDemo          = "MYDEMO_DEMO"
	EnvModel         = "MYDEMO_MODEL"
	EnvTexture       = "MYDEMO_TEXTURE"
	EnvLogLevel      = "MYDEMO_LOG_LEVEL"
	EnvLogFormat     = "MYDEMO_LOG_FORMAT"
	EnvDebug         = "MYDEMO_VKDEBUG"
)

// LoadConfiguration builds the configuration from defaults, an optional
// TOML file and an optional dotenv file. Process environment wins over both.
// Empty paths are skipped, a missing TOML file is an error.
func LoadConfiguration(tomlPath, envPath string) (Configuration, error) {
	cfg := DefaultConfiguration()
	envy.Reload()

	if tomlPath != "" {
		path, err := homedir.Expand(tomlPath)
		if err != nil {
			return cfg, fmt.Errorf("config path: %w", err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config file: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config file %s: %w: %s", path, ErrInvalidData, err.Error())
		}
	}

	if envPath != "" {
		path, err := homedir.Expand(envPath)
		if err != nil {
			return cfg, fmt.Errorf("env path: %w", err)
		}
		values, err := godotenv.Read(path)
		if err != nil {
			return cfg, fmt.Errorf("env file: %w", err)
		}
		for k, v := range values {
			// process environment takes precedence over the file
			if _, set := os.LookupEnv(k); !set {
				envy.Set(k, v)
			}
		}
	}

	if err := applyEnvironment(&cfg); err != nil {
		return cfg, err
	}

	if cfg.Assets.Directory != "" {
		dir, err := homedir.Expand(cfg.Assets.Directory)
		if err != nil {
			return cfg, fmt.Errorf("asset path: %w", err)
		}
		cfg.Assets.Directory = dir
	}
	return cfg, cfg.Validate()
}

func applyEnvironment(cfg *Configuration) error {
	cfg.Renderer.Backend = envy.Get(EnvBackend, cfg.Renderer.Backend)
	cfg.Assets.Directory = envy.Get(EnvAssets, cfg.Assets.Directory)
	cfg.Demo.Name = envy.Get(EnvDemo, cfg.Demo.Name)
	cfg.Demo.Model = envy.Get(EnvModel, cfg.Demo.Model)
	cfg.Demo.Texture = envy.Get(EnvTexture, cfg.Demo.Texture)
	cfg.Log.Level = envy.Get(EnvLogLevel, cfg.Log.Level)
	cfg.Log.Format = envy.Get(EnvLogFormat, cfg.Log.Format)

	if archives := envy.Get(EnvArchives, ""); archives != "" {
		cfg.Assets.Archives = strings.Split(archives, string(os.PathListSeparator))
	}

	uints := []struct {
		key string
		dst *uint32
	}{
		{EnvSwapchainSize, &cfg.Renderer.SwapchainSize},
		{EnvWidth, &cfg.Renderer.ScreenWidth},
		{EnvHeight, &cfg.Renderer.ScreenHeight},
	}
	for _, u := range uints {
		raw := envy.Get(u.key, "")
		if raw == "" {
			continue
		}
		num, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return fmt.Errorf("%s: %w: %s", u.key, ErrInvalidData, err.Error())
		}
		*u.dst = uint32(num)
	}

	if raw := envy.Get(EnvFPS, ""); raw != "" {
		fps, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%s: %w: %s", EnvFPS, ErrInvalidData, err.Error())
		}
		cfg.Time.FramesPerSecond = fps
	}

	if raw := envy.Get(EnvDebug, ""); raw != "" {
		debug, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("%s: %w: %s", EnvDebug, ErrInvalidData, err.Error())
		}
		cfg.Renderer.DebugMode = debug
	}
	return nil
}

// Validate checks the values that would otherwise fail deep inside a backend
func (c Configuration) Validate() error {
	if c.Renderer.SwapchainSize == 0 {
		return fmt.Errorf("swapchain size must be positive: %w", ErrInvalidData)
	}
	if c.Renderer.ScreenWidth == 0 || c.Renderer.ScreenHeight == 0 {
		return fmt.Errorf("screen size %dx%d: %w", c.Renderer.ScreenWidth, c.Renderer.ScreenHeight, ErrInvalidData)
	}
	if c.Time.FramesPerSecond < 0 {
		return fmt.Errorf("negative frames per second: %w", ErrInvalidData)
	}
	switch c.Renderer.Backend {
	case "vulkan", "gl", "headless":
	default:
		return fmt.Errorf("unknown backend %q: %w", c.Renderer.Backend, ErrInvalidData)
	}
	return nil
}
