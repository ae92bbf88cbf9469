// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core_test

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/pkg/errors"

	"github.com/devblok/kframe/core"
	"github.com/devblok/kframe/gpu"
	"github.com/devblok/kframe/gpu/gputest"
	"github.com/devblok/kframe/utility/pipecache"
)

func TestBackendBuildsTargets(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	b := newBackend(c, f, testConfig(), nil)
	defer b.Release()

	c.Assert(b.ImageCount(), qt.Equals, 3)
	c.Assert(b.Frames().Len(), qt.Equals, 3)
	c.Assert(b.Targets().Framebuffers(), qt.HasLen, 3)
	c.Assert(b.Extent(), qt.Equals, gpu.Extent{Width: 800, Height: 600})
	c.Assert(b.SampleCount(), qt.Equals, gpu.SampleCount8)
	c.Assert(b.PipelineCache(), qt.Not(qt.Equals), gpu.PipelineCache(0))
	c.Assert(b.State(), qt.Equals, core.StateIdle)

	targets := b.Targets()
	for i, fb := range targets.Framebuffers() {
		info := f.drv.FramebufferInfo(fb)
		c.Assert(info.RenderPass, qt.Equals, targets.RenderPass())
		c.Assert(info.Attachments, qt.DeepEquals, []gpu.ImageView{b.Swapchain().View(i), targets.DepthView()})
		c.Assert(info.Extent, qt.Equals, b.Extent())
	}

	depth := f.drv.ImageInfo(targets.DepthImage())
	c.Assert(depth, qt.Equals, gpu.ImageInfo{
		Extent:  gpu.Extent{Width: 800, Height: 600},
		Format:  gpu.FormatD32SfloatS8Uint,
		Usage:   gpu.ImageUsageDepthStencilAttachment | gpu.ImageUsageTransferSrc,
		Samples: gpu.SampleCount1,
	})
	c.Assert(f.drv.BoundMemory(targets.DepthImage()), qt.Equals, targets.DepthMemory())
	c.Assert(f.drv.ViewInfo(targets.DepthView()).Aspect, qt.Equals, gpu.AspectDepth|gpu.AspectStencil)

	barriers := f.drv.Barriers()
	c.Assert(barriers, qt.HasLen, 1)
	c.Assert(barriers[0].Barrier, qt.Equals, gpu.ImageBarrier{
		Image:     targets.DepthImage(),
		Aspect:    gpu.AspectDepth | gpu.AspectStencil,
		OldLayout: gpu.LayoutUndefined,
		NewLayout: gpu.LayoutDepthStencilAttachmentOptimal,
		DstAccess: gpu.AccessDepthStencilAttachmentRead | gpu.AccessDepthStencilAttachmentWrite,
		SrcStage:  gpu.StageTopOfPipe,
		DstStage:  gpu.StageEarlyFragmentTests,
	})

	pass := f.drv.RenderPassInfo(targets.RenderPass())
	c.Assert(pass.Color, qt.Equals, gpu.Attachment{
		Format:      gpu.FormatB8G8R8A8Unorm,
		Samples:     gpu.SampleCount1,
		FinalLayout: gpu.LayoutPresentSrc,
	})
	c.Assert(pass.Depth.FinalLayout, qt.Equals, gpu.LayoutDepthStencilAttachmentOptimal)
	c.Assert(pass.Dependency, qt.Equals, gpu.Dependency{
		SrcStage:  gpu.StageColorAttachmentOutput,
		DstStage:  gpu.StageColorAttachmentOutput,
		SrcAccess: gpu.AccessMemoryRead,
		DstAccess: gpu.AccessColorAttachmentRead | gpu.AccessColorAttachmentWrite,
		ByRegion:  true,
	})
	c.Assert(f.drv.Violations(), qt.HasLen, 0)
}

func TestTenFrames(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	b := newBackend(c, f, testConfig(), nil)
	defer b.Release()

	sc := b.Swapchain()
	for i := 0; i < 10; i++ {
		frame, status := drawFrame(c, b)
		c.Assert(frame.Skipped, qt.Equals, false)
		c.Assert(status, qt.Equals, core.StatusOK)
		c.Assert(frame.Index, qt.Equals, uint32(i%3))
		c.Assert(frame.Framebuffer, qt.Equals, b.Targets().Framebuffer(i%3))
		c.Assert(b.State(), qt.Equals, core.StatePresented)
	}

	submits := frameSubmissions(f.drv)
	presents := f.drv.Presents()
	c.Assert(submits, qt.HasLen, 10)
	c.Assert(presents, qt.HasLen, 10)
	for i := range submits {
		slot := i % 3
		c.Assert(submits[i].Fence, qt.Equals, b.Frames().FenceFor(slot))
		c.Assert(submits[i].Info.CommandBuffers, qt.DeepEquals, []gpu.CommandBuffer{b.Frames().CommandBufferFor(slot)})
		c.Assert(submits[i].Info.Wait, qt.DeepEquals, []gpu.Semaphore{sc.ReadSemaphore(slot)})
		c.Assert(submits[i].Info.WaitStages, qt.DeepEquals, []gpu.PipelineStage{gpu.StageColorAttachmentOutput})
		c.Assert(submits[i].Info.Signal, qt.DeepEquals, []gpu.Semaphore{sc.WrittenSemaphore(slot)})
		c.Assert(presents[i].Wait, qt.DeepEquals, []gpu.Semaphore{sc.WrittenSemaphore(slot)})
		c.Assert(presents[i].ImageIndex, qt.Equals, uint32(slot))
	}

	for i := 0; i < b.Frames().Len(); i++ {
		signaled, err := f.drv.FenceSignaled(f.ctx.Device(), b.Frames().FenceFor(i))
		c.Assert(err, qt.IsNil)
		c.Assert(signaled, qt.Equals, true)
	}
	c.Assert(f.drv.Deadlocks(), qt.Equals, 0)
	c.Assert(f.drv.Violations(), qt.HasLen, 0)
}

func TestRecordClearValues(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	b := newBackend(c, f, testConfig(), nil)
	defer b.Release()

	var recorded gpu.CommandBuffer
	frame, err := b.PrepareFrame(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(b.Record(frame, func(cb gpu.CommandBuffer) error {
		recorded = cb
		return nil
	}), qt.IsNil)
	c.Assert(recorded, qt.Equals, frame.CommandBuffer)
	c.Assert(b.State(), qt.Equals, core.StateRecording)

	begins := f.drv.RenderPassBegins()
	c.Assert(begins, qt.HasLen, 1)
	c.Assert(begins[0], qt.Equals, gpu.RenderPassBegin{
		RenderPass:  b.RenderPass(),
		Framebuffer: frame.Framebuffer,
		Extent:      gpu.Extent{Width: 800, Height: 600},
		ClearColor:  [4]float32{0.1, 0.2, 0.3, 1},
		ClearDepth:  1,
	})

	_, err = b.SubmitFrame(frame)
	c.Assert(err, qt.IsNil)
}

func TestZeroSizeResizeIsNoop(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	b := newBackend(c, f, testConfig(), nil)
	defer b.Release()

	for _, size := range [][2]uint32{{0, 768}, {1024, 0}, {0, 0}} {
		calls := f.drv.Calls()
		c.Assert(b.Resize(size[0], size[1]), qt.IsNil)
		c.Assert(f.drv.Calls(), qt.Equals, calls)
	}
	c.Assert(b.Extent(), qt.Equals, gpu.Extent{Width: 800, Height: 600})
}

func TestResizeRebuildsTargets(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)

	var (
		b             *core.Backend
		notified      []gpu.Extent
		depthAtNotify gpu.Image
	)
	b = newBackend(c, f, testConfig(), core.ResizeFunc(func(extent gpu.Extent) {
		notified = append(notified, extent)
		depthAtNotify = b.Targets().DepthImage()
	}))
	defer b.Release()

	drawFrame(c, b)
	oldDepth := b.Targets().DepthImage()
	oldMemory := b.Targets().DepthMemory()
	oldSwapchain := b.Swapchain().Handle()
	oldFramebuffers := append([]gpu.Framebuffer(nil), b.Targets().Framebuffers()...)

	c.Assert(b.Resize(1024, 768), qt.IsNil)
	want := gpu.Extent{Width: 1024, Height: 768}

	c.Assert(notified, qt.DeepEquals, []gpu.Extent{want})
	c.Assert(depthAtNotify, qt.Equals, oldDepth)
	c.Assert(b.Extent(), qt.Equals, want)
	c.Assert(f.drv.Alive(uint64(oldMemory)), qt.Equals, false)
	c.Assert(f.drv.Alive(uint64(oldDepth)), qt.Equals, false)
	c.Assert(f.drv.Alive(uint64(oldSwapchain)), qt.Equals, false)
	for _, fb := range oldFramebuffers {
		c.Assert(f.drv.Alive(uint64(fb)), qt.Equals, false)
	}

	info := f.drv.SwapchainInfo(b.Swapchain().Handle())
	c.Assert(info.Old, qt.Equals, oldSwapchain)
	c.Assert(info.Extent, qt.Equals, want)
	c.Assert(f.drv.ImageInfo(b.Targets().DepthImage()).Extent, qt.Equals, want)
	c.Assert(b.Targets().Framebuffers(), qt.HasLen, 3)
	for _, fb := range b.Targets().Framebuffers() {
		c.Assert(f.drv.FramebufferInfo(fb).Extent, qt.Equals, want)
	}

	drawFrame(c, b)
	c.Assert(f.drv.Violations(), qt.HasLen, 0)
}

func TestImageCountStableAcrossResizes(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	b := newBackend(c, f, testConfig(), nil)
	defer b.Release()

	for i, size := range [][2]uint32{{640, 480}, {1920, 1080}, {1, 1}, {5000, 5000}} {
		c.Assert(b.Resize(size[0], size[1]), qt.IsNil)
		c.Assert(b.ImageCount(), qt.Equals, 3, qt.Commentf("resize %d", i))
		c.Assert(b.Frames().Len(), qt.Equals, 3)
		c.Assert(b.Targets().Framebuffers(), qt.HasLen, 3)
		drawFrame(c, b)
	}
	c.Assert(b.Extent(), qt.Equals, gpu.Extent{Width: 4096, Height: 4096})
	c.Assert(f.drv.Violations(), qt.HasLen, 0)
}

func TestImageCountChangeIsAnError(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	b := newBackend(c, f, testConfig(), nil)
	defer b.Release()

	f.drv.ImageCountOverride = 4
	err := b.Resize(1024, 768)
	c.Assert(errors.Is(err, core.ErrImageCountChanged), qt.Equals, true)
	c.Assert(b.ImageCount(), qt.Equals, 3)
}

func TestOutOfDateAcquireSkipsFrame(t *testing.T) {
	c := qt.New(t)
	for _, result := range []gpu.Result{gpu.ErrorOutOfDate, gpu.Suboptimal} {
		c.Run(result.String(), func(c *qt.C) {
			f := newFixture(c)
			b := newBackend(c, f, testConfig(), nil)
			defer b.Release()

			f.win.Resize(1024, 768)
			f.drv.AcquireResults = []gpu.Result{result}

			frame, err := b.PrepareFrame(context.Background())
			c.Assert(err, qt.IsNil)
			c.Assert(frame.Skipped, qt.Equals, true)
			c.Assert(b.State(), qt.Equals, core.StateIdle)
			c.Assert(f.drv.Created(gputest.KindSwapchain), qt.Equals, 2)
			c.Assert(b.Extent(), qt.Equals, gpu.Extent{Width: 1024, Height: 768})
			c.Assert(frameSubmissions(f.drv), qt.HasLen, 0)

			_, err = b.SubmitFrame(frame)
			c.Assert(errors.Is(err, core.ErrState), qt.Equals, true)

			frame, status := drawFrame(c, b)
			c.Assert(frame.Skipped, qt.Equals, false)
			c.Assert(status, qt.Equals, core.StatusOK)
			c.Assert(f.drv.Violations(), qt.HasLen, 0)
		})
	}
}

func TestOutOfDatePresentResizes(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	b := newBackend(c, f, testConfig(), nil)
	defer b.Release()

	f.win.Resize(640, 480)
	f.drv.PresentResults = []gpu.Result{gpu.ErrorOutOfDate}

	_, status := drawFrame(c, b)
	c.Assert(status, qt.Equals, core.StatusOutOfDate)
	c.Assert(b.Extent(), qt.Equals, gpu.Extent{Width: 640, Height: 480})
	c.Assert(f.drv.Created(gputest.KindSwapchain), qt.Equals, 2)

	for i := 0; i < 4; i++ {
		drawFrame(c, b)
	}
	c.Assert(f.drv.Deadlocks(), qt.Equals, 0)
	c.Assert(f.drv.Violations(), qt.HasLen, 0)
}

func TestPresentFailure(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	b := newBackend(c, f, testConfig(), nil)
	defer b.Release()

	f.drv.PresentResults = []gpu.Result{gpu.ErrorDeviceLost}
	frame, err := b.PrepareFrame(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(b.Record(frame, nil), qt.IsNil)
	_, err = b.SubmitFrame(frame)
	c.Assert(errors.Is(err, core.ErrPresent), qt.Equals, true)
	c.Assert(err, qt.ErrorMatches, `.*device lost.*`)
}

func TestSubmitFailureIsFatal(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	b := newBackend(c, f, testConfig(), nil)

	frame, err := b.PrepareFrame(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(b.Record(frame, nil), qt.IsNil)

	f.drv.SubmitErr = errors.New("device lost")
	_, err = b.SubmitFrame(frame)
	c.Assert(errors.Is(err, core.ErrSubmit), qt.Equals, true)
	c.Assert(f.drv.Presents(), qt.HasLen, 0)

	f.drv.SubmitErr = nil
	b.Release()
	c.Assert(f.drv.Violations(), qt.HasLen, 0)
}

func TestSlowFencesAreRetried(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	b := newBackend(c, f, testConfig(), nil)
	defer b.Release()

	f.drv.SubmitLatency = 3
	for i := 0; i < 6; i++ {
		drawFrame(c, b)
	}
	// slots 0, 1 and 2 wait once each on work submitted three frames earlier
	c.Assert(b.Frames().Stats().Retries, qt.Equals, 6)
	c.Assert(f.drv.Deadlocks(), qt.Equals, 0)
	c.Assert(f.drv.Violations(), qt.HasLen, 0)
}

func TestFenceRetriesExhausted(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	cfg := testConfig()
	cfg.MaxFenceRetries = 1
	b := newBackend(c, f, cfg, nil)
	defer b.Release()

	f.drv.SubmitLatency = 5
	for i := 0; i < 3; i++ {
		drawFrame(c, b)
	}
	_, err := b.PrepareFrame(context.Background())
	c.Assert(errors.Is(err, core.ErrFenceTimeout), qt.Equals, true)
}

func TestPrepareFrameHonoursCancellation(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	cfg := testConfig()
	cfg.MaxFenceRetries = 0
	b := newBackend(c, f, cfg, nil)
	defer b.Release()

	f.drv.SubmitLatency = 1000
	for i := 0; i < 3; i++ {
		drawFrame(c, b)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.PrepareFrame(ctx)
	c.Assert(errors.Is(err, context.Canceled), qt.Equals, true)
}

func TestStateOrder(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	b := newBackend(c, f, testConfig(), nil)
	defer b.Release()

	_, err := b.SubmitFrame(core.Frame{})
	c.Assert(errors.Is(err, core.ErrState), qt.Equals, true)
	c.Assert(errors.Is(b.Record(core.Frame{}, nil), core.ErrState), qt.Equals, true)

	frame, err := b.PrepareFrame(context.Background())
	c.Assert(err, qt.IsNil)
	_, err = b.PrepareFrame(context.Background())
	c.Assert(errors.Is(err, core.ErrState), qt.Equals, true)

	c.Assert(b.Record(frame, nil), qt.IsNil)
	_, err = b.SubmitFrame(frame)
	c.Assert(err, qt.IsNil)
}

func TestOneShot(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	b := newBackend(c, f, testConfig(), nil)
	defer b.Release()

	buffers := f.drv.Created(gputest.KindCommandBuffer)
	var used gpu.CommandBuffer
	c.Assert(b.OneShot(func(cb gpu.CommandBuffer) error {
		used = cb
		return nil
	}), qt.IsNil)

	c.Assert(f.drv.Created(gputest.KindCommandBuffer), qt.Equals, buffers+1)
	c.Assert(f.drv.Alive(uint64(used)), qt.Equals, false)
	submits := f.drv.Submissions()
	last := submits[len(submits)-1]
	c.Assert(last.Fence, qt.Equals, gpu.Fence(0))
	c.Assert(last.Queue, qt.Equals, f.ctx.GraphicsQueue())

	failure := errors.New("record failed")
	err := b.OneShot(func(cb gpu.CommandBuffer) error { return failure })
	c.Assert(errors.Is(err, failure), qt.Equals, true)
	c.Assert(f.drv.Submissions(), qt.HasLen, len(submits))
	c.Assert(f.drv.Violations(), qt.HasLen, 0)
}

func TestIsMinimized(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	b := newBackend(c, f, testConfig(), nil)
	defer b.Release()

	c.Assert(b.IsMinimized(false), qt.Equals, false)
	f.win.Resize(0, 0)
	c.Assert(b.IsMinimized(true), qt.Equals, true)

	// a minimized window keeps the surface as it is
	f.drv.AcquireResults = []gpu.Result{gpu.ErrorOutOfDate}
	frame, err := b.PrepareFrame(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(frame.Skipped, qt.Equals, true)
	c.Assert(f.drv.Created(gputest.KindSwapchain), qt.Equals, 1)
}

func TestSuboptimalAcquireWhileMinimized(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	b := newBackend(c, f, testConfig(), nil)
	defer b.Release()

	f.win.Resize(0, 0)
	f.drv.AcquireResults = []gpu.Result{gpu.Suboptimal}
	frame, err := b.PrepareFrame(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(frame.Skipped, qt.Equals, true)
	c.Assert(b.Swapchain().Acquired(), qt.Equals, false)
	c.Assert(f.drv.Created(gputest.KindSwapchain), qt.Equals, 1)

	f.win.Resize(800, 600)
	for i := 0; i < 3; i++ {
		frame, status := drawFrame(c, b)
		c.Assert(frame.Skipped, qt.Equals, false)
		c.Assert(status, qt.Equals, core.StatusOK)
	}
	c.Assert(f.drv.Violations(), qt.HasLen, 0)
}

func TestVSyncSelectsFifo(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	b := newBackend(c, f, testConfig(), nil)
	defer b.Release()

	c.Assert(b.Swapchain().PresentMode(), qt.Equals, gpu.PresentModeMailbox)
	c.Assert(b.SetVSync(true), qt.IsNil)
	c.Assert(b.Swapchain().PresentMode(), qt.Equals, gpu.PresentModeFifo)
	c.Assert(b.ImageCount(), qt.Equals, 3)
}

func TestTeardownOrder(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	b := newBackend(c, f, testConfig(), nil)
	for i := 0; i < 4; i++ {
		drawFrame(c, b)
	}

	mark := len(f.drv.Log())
	b.Release()

	c.Assert(destroyedKinds(f.drv, mark), qt.DeepEquals, []gputest.Kind{
		gputest.KindFence,
		gputest.KindSemaphore,
		gputest.KindFramebuffer,
		gputest.KindImageView,
		gputest.KindImage,
		gputest.KindMemory,
		gputest.KindRenderPass,
		gputest.KindPipelineCache,
		gputest.KindCommandBuffer,
		gputest.KindCommandPool,
		gputest.KindImageView,
		gputest.KindSwapchain,
		gputest.KindDevice,
		gputest.KindDebugMessenger,
		gputest.KindSurface,
		gputest.KindInstance,
	})
	for _, kind := range []gputest.Kind{
		gputest.KindFence, gputest.KindSemaphore, gputest.KindImageView, gputest.KindDevice, gputest.KindInstance,
	} {
		c.Assert(f.drv.Live(kind), qt.HasLen, 0)
	}
	c.Assert(f.drv.Violations(), qt.HasLen, 0)
}

func TestNoDeviceLocalMemory(t *testing.T) {
	c := qt.New(t)
	drv := gputest.New()
	drv.Devices[0].Memory.Types = []gpu.MemoryType{{Flags: gpu.MemoryHostVisible}}
	f := &fixture{drv: drv, win: gputest.NewWindow(drv, 800, 600)}
	ctx, err := deviceContext(drv, f.win)
	c.Assert(err, qt.IsNil)
	f.ctx = ctx
	defer ctx.Release()

	_, err = core.NewBackend(ctx, testConfig(), nil)
	c.Assert(errors.Is(err, core.ErrNoSuitableMemoryType), qt.Equals, true)
	for _, kind := range []gputest.Kind{
		gputest.KindSwapchain, gputest.KindImage, gputest.KindImageView, gputest.KindFence, gputest.KindCommandPool,
	} {
		c.Assert(drv.Live(kind), qt.HasLen, 0)
	}
	c.Assert(drv.Violations(), qt.HasLen, 0)
}

func TestPipelineCachePersisted(t *testing.T) {
	c := qt.New(t)
	dir, err := ioutil.TempDir("", "kframe")
	c.Assert(err, qt.IsNil)
	defer os.RemoveAll(dir)

	cfg := testConfig()
	cfg.PipelineCachePath = filepath.Join(dir, "pipeline.kpc")

	f := newFixture(c)
	b := newBackend(c, f, cfg, nil)
	b.Release()

	props := f.drv.Devices[0].Properties
	data, err := pipecache.Load(cfg.PipelineCachePath, pipecache.Header{
		VendorID:      props.VendorID,
		DeviceID:      props.DeviceID,
		DriverVersion: props.DriverVersion,
	})
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Equals, "fake-pipeline-cache:")

	f = newFixture(c)
	b = newBackend(c, f, cfg, nil)
	got, err := f.drv.PipelineCacheData(f.ctx.Device(), b.PipelineCache())
	c.Assert(err, qt.IsNil)
	c.Assert(string(got), qt.Equals, "fake-pipeline-cache:fake-pipeline-cache:")
	b.Release()
}

func BenchmarkFrame(b *testing.B) {
	c := qt.New(b)
	f := newFixture(c)
	backend := newBackend(c, f, testConfig(), nil)
	defer backend.Release()

	ctx := context.Background()
	b.ResetTimer()
	for idx := 0; idx < b.N; idx++ {
		frame, _ := backend.PrepareFrame(ctx)
		backend.Record(frame, nil)
		backend.SubmitFrame(frame)
	}
}
