// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core_test

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/gobuffalo/envy"

	"github.com/devblok/kframe/core"
	"github.com/devblok/kframe/device"
)

func TestLoadConfigurationDefaults(t *testing.T) {
	c := qt.New(t)
	cfg, err := core.LoadConfiguration()
	c.Assert(err, qt.IsNil)

	c.Assert(cfg.Time, qt.Equals, core.TimeConfiguration{FramesPerSecond: 0, EventPollDelay: 5})
	c.Assert(cfg.Renderer, qt.DeepEquals, core.RendererConfiguration{
		SwapchainSize:  3,
		VSync:          true,
		ScreenWidth:    1280,
		ScreenHeight:   720,
		ClearColor:     mgl32.Vec4{0.005, 0.005, 0.005, 1},
		ClearDepth:     1,
		FenceTimeout:   100 * time.Millisecond,
		AcquireTimeout: 100 * time.Millisecond,
	})
	c.Assert(cfg.Device, qt.DeepEquals, device.Config{
		AppName:          "kframe",
		EngineName:       "kframe",
		ValidationLayers: []string{device.KhronosValidation},
	})
}

func TestLoadConfigurationEnvironment(t *testing.T) {
	c := qt.New(t)
	envy.Temp(func() {
		envy.Set(core.KeyVSync, "false")
		envy.Set(core.KeyFenceRetries, "12")
		envy.Set(core.KeyDeviceExtensions, "VK_KHR_a, VK_KHR_b")
		envy.Set(core.KeyValidation, "1")

		cfg, err := core.LoadConfiguration()
		c.Assert(err, qt.IsNil)
		c.Assert(cfg.Renderer.VSync, qt.Equals, false)
		c.Assert(cfg.Renderer.MaxFenceRetries, qt.Equals, 12)
		c.Assert(cfg.Device.DeviceExtensions, qt.DeepEquals, []string{"VK_KHR_a", "VK_KHR_b"})
		c.Assert(cfg.Device.EnableValidation, qt.Equals, true)
	})
}

func TestLoadConfigurationFile(t *testing.T) {
	c := qt.New(t)
	dir, err := ioutil.TempDir("", "kframe")
	c.Assert(err, qt.IsNil)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "test.env")
	c.Assert(ioutil.WriteFile(path, []byte("KFRAME_WIDTH=1920\nKFRAME_PIPELINE_CACHE=/tmp/kframe.kpc\n"), 0644), qt.IsNil)
	defer func() {
		os.Unsetenv(core.KeyWidth)
		os.Unsetenv(core.KeyPipelineCache)
		envy.Reload()
	}()

	cfg, err := core.LoadConfiguration(path)
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Renderer.ScreenWidth, qt.Equals, uint32(1920))
	c.Assert(cfg.Renderer.ScreenHeight, qt.Equals, uint32(720))
	c.Assert(cfg.Renderer.PipelineCachePath, qt.Equals, "/tmp/kframe.kpc")

	_, err = core.LoadConfiguration(filepath.Join(dir, "missing.env"))
	c.Assert(err, qt.ErrorMatches, "load configuration files: .*")
}

func TestLoadConfigurationMalformed(t *testing.T) {
	c := qt.New(t)
	for _, test := range []struct {
		key, value, match string
	}{
		{core.KeyFenceTimeout, "soon", `configuration KFRAME_FENCE_TIMEOUT="soon": .*`},
		{core.KeyWidth, "wide", `configuration KFRAME_WIDTH="wide": .*`},
		{core.KeyClearColor, "1,1,1", `configuration KFRAME_CLEAR_COLOR="1,1,1": want four comma separated components`},
		{core.KeyVSync, "sometimes", `configuration KFRAME_VSYNC="sometimes": .*`},
	} {
		c.Run(test.key, func(c *qt.C) {
			envy.Temp(func() {
				envy.Set(test.key, test.value)
				_, err := core.LoadConfiguration()
				c.Assert(err, qt.ErrorMatches, test.match)
			})
		})
	}
}
