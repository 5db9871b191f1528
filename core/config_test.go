// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/devblok/mydemo/core"
	qt "github.com/frankban/quicktest"
)

func writeFile(c *qt.C, dir, name, contents string) string {
	path := filepath.Join(dir, name)
	c.Assert(os.WriteFile(path, []byte(contents), 0o644), qt.IsNil)
	return path
}

func TestLoadConfigurationDefaults(t *testing.T) {
	c := qt.New(t)

	cfg, err := core.LoadConfiguration("", "")
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Renderer.SwapchainSize, qt.Equals, uint32(3))
	c.Assert(cfg.Demo.Name, qt.Equals, "teapot")
	c.Assert(cfg.Renderer.Backend, qt.Equals, "vulkan")
}

func TestLoadConfigurationPrecedence(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()

	tomlPath := writeFile(c, dir, "mydemo.toml", `
[renderer]
backend = "gl"
swapchain_size = 2
width = 1024
height = 768

[demo]
name = "triangle"
`)
	envPath := writeFile(c, dir, "mydemo.env", "MYDEMO_SWAPCHAIN_SIZE=4\nMYDEMO_DEMO=offscreen\n")

	cfg, err := core.LoadConfiguration(tomlPath, envPath)
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Renderer.Backend, qt.Equals, "gl")
	c.Assert(cfg.Renderer.ScreenWidth, qt.Equals, uint32(1024))
	// the env file overrides the TOML file
	c.Assert(cfg.Renderer.SwapchainSize, qt.Equals, uint32(4))
	c.Assert(cfg.Demo.Name, qt.Equals, "offscreen")
}

func TestLoadConfigurationProcessEnvWins(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()

	envPath := writeFile(c, dir, "mydemo.env", "MYDEMO_BACKEND=gl\n")
	c.Setenv(core.EnvBackend, "headless")

	cfg, err := core.LoadConfiguration("", envPath)
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Renderer.Backend, qt.Equals, "headless")
}

func TestLoadConfigurationInvalid(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()

	tomlPath := writeFile(c, dir, "bad.toml", "[renderer]\nswapchain_size = 0\n")
	_, err := core.LoadConfiguration(tomlPath, "")
	c.Assert(core.ResultOf(err), qt.Equals, core.InvalidData)

	tomlPath = writeFile(c, dir, "broken.toml", "[renderer\n")
	_, err = core.LoadConfiguration(tomlPath, "")
	c.Assert(core.ResultOf(err), qt.Equals, core.InvalidData)

	_, err = core.LoadConfiguration(filepath.Join(dir, "missing.toml"), "")
	c.Assert(core.ResultOf(err), qt.Equals, core.NotFound)
}

func TestLoadConfigurationBadEnvNumber(t *testing.T) {
	c := qt.New(t)
	c.Setenv(core.EnvWidth, "wide")

	_, err := core.LoadConfiguration("", "")
	c.Assert(core.ResultOf(err), qt.Equals, core.InvalidData)
}

func TestNewLogger(t *testing.T) {
	c := qt.New(t)

	var buf bytes.Buffer
	logger, err := core.NewLogger(core.LogConfiguration{Level: "debug", Format: "json"}, &buf)
	c.Assert(err, qt.IsNil)
	logger.WithField("slot", 1).Debug("submitted")
	c.Assert(buf.String(), qt.Contains, `"slot":1`)

	_, err = core.NewLogger(core.LogConfiguration{Level: "loud"}, &buf)
	c.Assert(core.ResultOf(err), qt.Equals, core.InvalidData)

	_, err = core.NewLogger(core.LogConfiguration{Level: "info", Format: "xml"}, &buf)
	c.Assert(core.ResultOf(err), qt.Equals, core.InvalidData)
}

func TestTimeTick(t *testing.T) {
	c := qt.New(t)

	tm := core.NewTime(core.TimeConfiguration{FramesPerSecond: 60})
	defer tm.Stop()

	c.Assert(tm.Fps(), qt.Equals, 60)
	now := time.Now()
	tm.Tick(now.Add(16 * time.Millisecond))
	tm.Tick(now.Add(48 * time.Millisecond))
	c.Assert(tm.Frames(), qt.Equals, uint64(2))
	c.Assert(tm.FrameTime(), qt.Equals, 32*time.Millisecond)
}
