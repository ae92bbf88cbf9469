// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core_test

import (
	"context"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/devblok/kframe/core"
	"github.com/devblok/kframe/device"
	"github.com/devblok/kframe/gpu"
	"github.com/devblok/kframe/gpu/gputest"
)

func testConfig() core.RendererConfiguration {
	return core.RendererConfiguration{
		SwapchainSize:   3,
		ScreenWidth:     800,
		ScreenHeight:    600,
		ClearColor:      mgl32.Vec4{0.1, 0.2, 0.3, 1},
		FenceTimeout:    time.Millisecond,
		MaxFenceRetries: 16,
		AcquireTimeout:  time.Millisecond,
	}
}

type fixture struct {
	drv *gputest.Driver
	win *gputest.Window
	ctx *device.Context
}

func deviceContext(drv *gputest.Driver, win *gputest.Window) (*device.Context, error) {
	return device.New(drv, device.Config{
		AppName:          "kframe-test",
		ValidationLayers: []string{device.KhronosValidation},
		EnableValidation: true,
	}, win)
}

func newFixture(c *qt.C) *fixture {
	drv := gputest.New()
	win := gputest.NewWindow(drv, 800, 600)
	ctx, err := deviceContext(drv, win)
	c.Assert(err, qt.IsNil)
	return &fixture{drv: drv, win: win, ctx: ctx}
}

func newBackend(c *qt.C, f *fixture, cfg core.RendererConfiguration, listener core.ResizeListener) *core.Backend {
	b, err := core.NewBackend(f.ctx, cfg, listener)
	c.Assert(err, qt.IsNil)
	return b
}

// drawFrame runs one full frame and reports whether it was skipped.
func drawFrame(c *qt.C, b *core.Backend) (core.Frame, core.Status) {
	frame, err := b.PrepareFrame(context.Background())
	c.Assert(err, qt.IsNil)
	if frame.Skipped {
		return frame, core.StatusOK
	}
	c.Assert(b.Record(frame, func(cb gpu.CommandBuffer) error { return nil }), qt.IsNil)
	status, err := b.SubmitFrame(frame)
	c.Assert(err, qt.IsNil)
	return frame, status
}

func destroyedKinds(drv *gputest.Driver, from int) []gputest.Kind {
	var kinds []gputest.Kind
	for _, e := range drv.Destroyed(from) {
		if len(kinds) > 0 && kinds[len(kinds)-1] == e.Kind {
			continue
		}
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

// frameSubmissions leaves out one-shot submissions, which carry no fence.
func frameSubmissions(drv *gputest.Driver) []gputest.Submission {
	var out []gputest.Submission
	for _, s := range drv.Submissions() {
		if s.Fence != 0 {
			out = append(out, s)
		}
	}
	return out
}
