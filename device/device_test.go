// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package device_test

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/devblok/kframe/device"
	"github.com/devblok/kframe/gpu"
	"github.com/devblok/kframe/gpu/gputest"
)

func validationConfig() device.Config {
	return device.Config{
		AppName:          "kframe-test",
		EngineName:       "kframe",
		ValidationLayers: []string{device.KhronosValidation},
		EnableValidation: true,
	}
}

func TestNewContext(t *testing.T) {
	c := qt.New(t)
	drv := gputest.New()
	win := gputest.NewWindow(drv, 800, 600)

	ctx, err := device.New(drv, validationConfig(), win)
	c.Assert(err, qt.IsNil)
	defer ctx.Release()

	c.Assert(ctx.Device(), qt.Not(qt.Equals), gpu.Device(0))
	c.Assert(ctx.GraphicsQueue(), qt.Not(qt.Equals), gpu.Queue(0))
	c.Assert(ctx.PresentQueue(), qt.Equals, ctx.GraphicsQueue())
	c.Assert(ctx.GraphicsFamily(), qt.Equals, uint32(0))
	c.Assert(ctx.SampleCount(), qt.Equals, gpu.SampleCount8)
	c.Assert(ctx.Size(), qt.Equals, gpu.Extent{Width: 800, Height: 600})
	c.Assert(drv.Live(gputest.KindDebugMessenger), qt.HasLen, 1)

	info := drv.DeviceInfo(ctx.Device())
	c.Assert(info.QueueFamilies, qt.DeepEquals, []uint32{0})
	c.Assert(info.Extensions, qt.DeepEquals, []string{device.SwapchainExtension})
	c.Assert(info.Layers, qt.DeepEquals, []string{device.KhronosValidation})
	c.Assert(info.Features, qt.Equals, gpu.Features{
		SamplerAnisotropy:  true,
		ScalarBlockLayout:  true,
		DescriptorIndexing: true,
	})
	c.Assert(drv.Violations(), qt.HasLen, 0)
}

func TestFeaturesPassedThrough(t *testing.T) {
	c := qt.New(t)
	drv := gputest.New()
	drv.Devices[0].Features = gpu.Features{}

	ctx, err := device.New(drv, device.Config{}, gputest.NewWindow(drv, 640, 480))
	c.Assert(err, qt.IsNil)
	defer ctx.Release()

	c.Assert(drv.DeviceInfo(ctx.Device()).Features, qt.Equals, gpu.Features{})
	c.Assert(drv.Live(gputest.KindDebugMessenger), qt.HasLen, 0)
}

func TestUnsupportedFeatureStaysOff(t *testing.T) {
	c := qt.New(t)
	drv := gputest.New()
	drv.Devices[0].Properties.APIVersion = 1<<22 | 2<<12
	drv.Devices[0].Features = gpu.Features{
		SamplerAnisotropy: true,
		ScalarBlockLayout: true,
	}

	ctx, err := device.New(drv, device.Config{}, gputest.NewWindow(drv, 640, 480))
	c.Assert(err, qt.IsNil)
	defer ctx.Release()

	want := gpu.Features{SamplerAnisotropy: true, ScalarBlockLayout: true}
	c.Assert(drv.DeviceInfo(ctx.Device()).Features, qt.Equals, want)
	c.Assert(ctx.Features(), qt.Equals, want)
}

func TestCreateDeviceRejectsUnsupportedFeature(t *testing.T) {
	c := qt.New(t)
	drv := gputest.New()
	drv.Devices[0].Features = gpu.Features{SamplerAnisotropy: true}
	c.Assert(drv.Load(), qt.IsNil)
	instance, err := drv.CreateInstance(gpu.InstanceInfo{})
	c.Assert(err, qt.IsNil)
	defer drv.DestroyInstance(instance)
	pds, err := drv.PhysicalDevices(instance)
	c.Assert(err, qt.IsNil)

	_, err = drv.CreateDevice(pds[0], gpu.DeviceInfo{
		QueueFamilies: []uint32{0},
		Features:      gpu.Features{DescriptorIndexing: true},
	})
	result, ok := gpu.ResultOf(err)
	c.Assert(ok, qt.Equals, true)
	c.Assert(result, qt.Equals, gpu.ErrorFeatureNotPresent)
}

func TestMissingLayer(t *testing.T) {
	c := qt.New(t)
	drv := gputest.New()
	drv.Layers = []string{device.KhronosValidation}

	cfg := validationConfig()
	cfg.ValidationLayers = []string{device.KhronosValidation, "VK_LAYER_missing"}
	_, err := device.New(drv, cfg, gputest.NewWindow(drv, 800, 600))
	c.Assert(errors.Is(err, device.ErrLayerNotAvailable), qt.Equals, true)
	c.Assert(err, qt.ErrorMatches, `.*VK_LAYER_missing.*`)
	c.Assert(err, qt.Not(qt.ErrorMatches), `.*VK_LAYER_KHRONOS_validation.*`)

	var initErr *device.InitError
	c.Assert(errors.As(err, &initErr), qt.Equals, true)
	c.Assert(initErr.Stage, qt.Equals, device.StageLayers)
	c.Assert(drv.Created(gputest.KindInstance), qt.Equals, 0)
	c.Assert(drv.Created(gputest.KindDevice), qt.Equals, 0)
}

func TestLoadFailure(t *testing.T) {
	c := qt.New(t)
	drv := gputest.New()
	drv.LoadErr = errors.New("no loader")

	_, err := device.New(drv, device.Config{}, gputest.NewWindow(drv, 800, 600))
	var initErr *device.InitError
	c.Assert(errors.As(err, &initErr), qt.Equals, true)
	c.Assert(initErr.Stage, qt.Equals, device.StageLoad)
	c.Assert(drv.Log(), qt.HasLen, 0)
}

func TestNoSuitableGPU(t *testing.T) {
	c := qt.New(t)
	tests := []struct {
		name   string
		modify func(pd *gputest.PhysicalDevice)
	}{
		{"no formats", func(pd *gputest.PhysicalDevice) { pd.Formats = nil }},
		{"no present modes", func(pd *gputest.PhysicalDevice) { pd.PresentModes = nil }},
		{"no swapchain", func(pd *gputest.PhysicalDevice) { pd.Extensions = nil }},
		{"no graphics", func(pd *gputest.PhysicalDevice) {
			pd.Families = []gpu.QueueFamily{{Flags: gpu.QueueCompute | gpu.QueueTransfer, Count: 1}}
		}},
		{"no present", func(pd *gputest.PhysicalDevice) { pd.PresentFamilies = []uint32{} }},
	}
	for _, test := range tests {
		c.Run(test.name, func(c *qt.C) {
			drv := gputest.New()
			test.modify(drv.Devices[0])

			_, err := device.New(drv, validationConfig(), gputest.NewWindow(drv, 800, 600))
			c.Assert(errors.Is(err, device.ErrNoSuitableGPU), qt.Equals, true)
			c.Assert(drv.Created(gputest.KindDevice), qt.Equals, 0)
			c.Assert(drv.Live(gputest.KindInstance), qt.HasLen, 0)
			c.Assert(drv.Live(gputest.KindSurface), qt.HasLen, 0)
			c.Assert(drv.Live(gputest.KindDebugMessenger), qt.HasLen, 0)
			c.Assert(drv.Violations(), qt.HasLen, 0)
		})
	}
}

func TestFirstSuitableDeviceWins(t *testing.T) {
	c := qt.New(t)
	drv := gputest.New()
	broken := gputest.NewPhysicalDevice("Broken GPU")
	broken.PresentModes = nil
	second := gputest.NewPhysicalDevice("Second GPU")
	third := gputest.NewPhysicalDevice("Third GPU")
	third.Properties.Type = gpu.DeviceTypeIntegratedGPU
	drv.Devices = []*gputest.PhysicalDevice{broken, second, third}

	ctx, err := device.New(drv, device.Config{}, gputest.NewWindow(drv, 800, 600))
	c.Assert(err, qt.IsNil)
	defer ctx.Release()
	c.Assert(ctx.Properties().Name, qt.Equals, "Second GPU")
}

func TestSeparatePresentFamily(t *testing.T) {
	c := qt.New(t)
	drv := gputest.New()
	pd := drv.Devices[0]
	pd.Families = []gpu.QueueFamily{
		{Flags: gpu.QueueGraphics | gpu.QueueCompute | gpu.QueueTransfer, Count: 1},
		{Flags: gpu.QueueTransfer, Count: 1},
	}
	pd.PresentFamilies = []uint32{1}

	ctx, err := device.New(drv, device.Config{}, gputest.NewWindow(drv, 800, 600))
	c.Assert(err, qt.IsNil)
	defer ctx.Release()

	c.Assert(ctx.GraphicsFamily(), qt.Equals, uint32(0))
	c.Assert(ctx.PresentFamily(), qt.Equals, uint32(1))
	c.Assert(ctx.PresentQueue(), qt.Not(qt.Equals), ctx.GraphicsQueue())
	c.Assert(drv.DeviceInfo(ctx.Device()).QueueFamilies, qt.DeepEquals, []uint32{0, 1})
}

func TestSurfaceFailureReleasesInstance(t *testing.T) {
	c := qt.New(t)
	drv := gputest.New()
	win := gputest.NewWindow(drv, 800, 600)
	win.Err = errors.New("no display")

	_, err := device.New(drv, validationConfig(), win)
	var initErr *device.InitError
	c.Assert(errors.As(err, &initErr), qt.Equals, true)
	c.Assert(initErr.Stage, qt.Equals, device.StageSurface)
	c.Assert(drv.Live(gputest.KindInstance), qt.HasLen, 0)
	c.Assert(drv.Live(gputest.KindDebugMessenger), qt.HasLen, 0)
	c.Assert(drv.Violations(), qt.HasLen, 0)
}

func TestReleaseOrder(t *testing.T) {
	c := qt.New(t)
	drv := gputest.New()
	ctx, err := device.New(drv, validationConfig(), gputest.NewWindow(drv, 800, 600))
	c.Assert(err, qt.IsNil)

	mark := len(drv.Log())
	ctx.Release()
	ctx.Release()

	var kinds []gputest.Kind
	for _, e := range drv.Destroyed(mark) {
		kinds = append(kinds, e.Kind)
	}
	c.Assert(kinds, qt.DeepEquals, []gputest.Kind{
		gputest.KindDevice,
		gputest.KindDebugMessenger,
		gputest.KindSurface,
		gputest.KindInstance,
	})
	c.Assert(drv.Violations(), qt.HasLen, 0)
}

func TestMaxSampleCount(t *testing.T) {
	c := qt.New(t)
	tests := []struct {
		color, depth gpu.SampleCount
		want         gpu.SampleCount
	}{
		{0, 0, gpu.SampleCount1},
		{gpu.SampleCount1, gpu.SampleCount1, gpu.SampleCount1},
		{gpu.SampleCount1 | gpu.SampleCount2 | gpu.SampleCount4, gpu.SampleCount1 | gpu.SampleCount2, gpu.SampleCount2},
		{0x7f, 0x7f, gpu.SampleCount64},
		{0x7f, gpu.SampleCount16 | gpu.SampleCount4, gpu.SampleCount16},
		{gpu.SampleCount8, gpu.SampleCount4, gpu.SampleCount1},
	}
	for _, test := range tests {
		got := device.MaxSampleCount(gpu.PhysicalDeviceProperties{
			ColorSampleCounts: test.color,
			DepthSampleCounts: test.depth,
		})
		c.Assert(got, qt.Equals, test.want, qt.Commentf("color %#x depth %#x", test.color, test.depth))
	}
}

func TestProbe(t *testing.T) {
	c := qt.New(t)
	drv := gputest.New()
	drv.Devices = append(drv.Devices, gputest.NewPhysicalDevice("Other GPU"))

	infos, err := device.Probe(drv, device.Config{AppName: "probe"})
	c.Assert(err, qt.IsNil)
	c.Assert(infos, qt.HasLen, 2)
	c.Assert(infos[0].Name, qt.Equals, "Fake GPU")
	c.Assert(infos[0].Type, qt.Equals, "discrete")
	c.Assert(infos[0].Memory, qt.Equals, uint64(24<<30))
	c.Assert(infos[0].SampleCount, qt.Equals, 8)
	c.Assert(infos[1].Name, qt.Equals, "Other GPU")
	c.Assert(drv.Live(gputest.KindInstance), qt.HasLen, 0)
}

func TestDebugSinkLevels(t *testing.T) {
	c := qt.New(t)
	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)
	sink := device.DebugSink{Logger: logger}

	for _, sev := range []gpu.Severity{
		gpu.SeverityError,
		gpu.SeverityWarning,
		gpu.SeverityPerformance,
		gpu.SeverityInfo,
		gpu.SeverityDebug,
	} {
		sink.Handle(gpu.DebugMessage{Severity: sev, Kind: gpu.KindValidation, Prefix: "Validation", Text: "message"})
	}

	var levels []log.Level
	for _, e := range hook.AllEntries() {
		levels = append(levels, e.Level)
		c.Assert(e.Message, qt.Equals, "validation layer: message")
		c.Assert(e.Data["kind"], qt.Equals, "validation")
	}
	c.Assert(levels, qt.DeepEquals, []log.Level{
		log.ErrorLevel,
		log.WarnLevel,
		log.WarnLevel,
		log.InfoLevel,
		log.DebugLevel,
	})
}

func TestDebugMessagesReachLogger(t *testing.T) {
	c := qt.New(t)
	hook := test.NewGlobal()
	defer hook.Reset()

	drv := gputest.New()
	ctx, err := device.New(drv, validationConfig(), gputest.NewWindow(drv, 800, 600))
	c.Assert(err, qt.IsNil)
	defer ctx.Release()

	hook.Reset()
	drv.Emit(gpu.DebugMessage{Severity: gpu.SeverityError, Kind: gpu.KindGeneral, Text: "bad handle"})
	c.Assert(hook.LastEntry(), qt.Not(qt.IsNil))
	c.Assert(hook.LastEntry().Level, qt.Equals, log.ErrorLevel)
	c.Assert(hook.LastEntry().Message, qt.Equals, "validation layer: bad handle")
}
