// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/devblok/kframe/device"
	"github.com/devblok/kframe/gfx"
	"github.com/devblok/kframe/gpu"
	"github.com/devblok/kframe/utility/pipecache"
)

// State of the frame loop.
type State int

// Frame loop states
const (
	StateIdle State = iota
	StateAcquired
	StateRecording
	StateSubmitted
	StatePresented
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquired:
		return "acquired"
	case StateRecording:
		return "recording"
	case StateSubmitted:
		return "submitted"
	case StatePresented:
		return "presented"
	}
	return "unknown"
}

// minimizedSleep is how long IsMinimized sleeps when asked to.
const minimizedSleep = 10 * time.Millisecond

// ResizeListener is notified after the swapchain and command buffers were
// rebuilt for a new size, before the targets are.
type ResizeListener interface {
	OnResize(extent gpu.Extent)
}

// ResizeFunc adapts a function to ResizeListener.
type ResizeFunc func(extent gpu.Extent)

// OnResize implements ResizeListener
func (f ResizeFunc) OnResize(extent gpu.Extent) { f(extent) }

// Frame is one acquired swapchain image and what is needed to record into it.
type Frame struct {
	Index         uint32
	CommandBuffer gpu.CommandBuffer
	Framebuffer   gpu.Framebuffer
	Extent        gpu.Extent

	// Skipped frames acquired nothing and must not be recorded or submitted.
	Skipped bool
}

// NewBackend builds everything that sits on top of the device context:
// swapchain, frame set, render pass, depth buffer, pipeline cache and
// framebuffers. On success the backend owns ctx and releases it last.
// listener may be nil.
func NewBackend(ctx *device.Context, cfg RendererConfiguration, listener ResizeListener) (*Backend, error) {
	b := &Backend{
		ctx:      ctx,
		drv:      ctx.Driver(),
		cfg:      cfg,
		listener: listener,
		logger:   ctx.Logger().WithField("component", "backend"),
	}
	if err := b.initialise(); err != nil {
		b.releaseOwned()
		return nil, err
	}
	return b, nil
}

// Backend drives the acquire, record, submit and present cycle.
// It is used from a single goroutine.
type Backend struct {
	ctx      *device.Context
	drv      gpu.Driver
	cfg      RendererConfiguration
	listener ResizeListener
	logger   log.FieldLogger

	swapchain     *Swapchain
	frames        *FrameSet
	commands      *Commands
	targets       *Targets
	pipelineCache gpu.PipelineCache

	state  State
	extent gpu.Extent
}

func (b *Backend) initialise() error {
	size := b.ctx.Size()
	if b.cfg.ScreenWidth != 0 && b.cfg.ScreenHeight != 0 && size.Empty() {
		size = gpu.Extent{Width: b.cfg.ScreenWidth, Height: b.cfg.ScreenHeight}
	}

	/* Swapchain */
	swapchain, err := NewSwapchain(b.ctx, SwapchainConfig{
		Size:              size,
		ImageCount:        b.cfg.SwapchainSize,
		PreferredFormat:   b.cfg.PreferredFormat,
		VSync:             b.cfg.VSync,
		AcquireTimeout:    b.cfg.AcquireTimeout,
		MaxAcquireRetries: b.cfg.MaxAcquireRetries,
	})
	if err != nil {
		return errors.Wrap(err, "create swapchain")
	}
	b.swapchain = swapchain
	b.extent = swapchain.Extent()

	/* Command pool, buffers and fences */
	frames, err := NewFrameSet(b.ctx, FrameConfig{
		FenceTimeout:    b.cfg.FenceTimeout,
		MaxFenceRetries: b.cfg.MaxFenceRetries,
	})
	if err != nil {
		return err
	}
	b.frames = frames
	if err := frames.Rebuild(swapchain.ImageCount()); err != nil {
		return err
	}
	b.commands = NewCommands(b.drv, b.ctx.Device(), frames.Pool(), b.ctx.GraphicsQueue())

	/* Render pass and depth */
	b.targets = NewTargets(b.ctx, swapchain.Format(), b.cfg.DepthFormat, b.commands)
	if err := b.targets.RebuildRenderPass(); err != nil {
		return err
	}
	if err := b.targets.RebuildDepthBuffer(b.extent); err != nil {
		return err
	}

	/* Pipeline cache */
	if err := b.createPipelineCache(); err != nil {
		return err
	}

	/* Framebuffers */
	if err := b.targets.RebuildFramebuffers(swapchain.Views(), b.extent); err != nil {
		return err
	}

	b.logger.WithFields(log.Fields{
		"extent":      b.extent,
		"images":      swapchain.ImageCount(),
		"presentMode": swapchain.PresentMode(),
	}).Info("frame loop ready")
	return nil
}

func (b *Backend) cacheHeader() pipecache.Header {
	props := b.ctx.Properties()
	return pipecache.Header{
		VendorID:      props.VendorID,
		DeviceID:      props.DeviceID,
		DriverVersion: props.DriverVersion,
		Created:       time.Now().Unix(),
	}
}

func (b *Backend) createPipelineCache() error {
	var initial []byte
	if path := b.cfg.PipelineCachePath; path != "" {
		data, err := pipecache.Load(path, b.cacheHeader())
		if err != nil {
			b.logger.WithError(err).WithField("path", path).Warn("ignoring stored pipeline cache")
		} else {
			initial = data
		}
	}

	cache, err := b.drv.CreatePipelineCache(b.ctx.Device(), initial)
	if err != nil {
		return errors.Wrap(err, "create pipeline cache")
	}
	b.pipelineCache = cache
	return nil
}

func (b *Backend) releasePipelineCache() {
	if b.pipelineCache == 0 {
		return
	}
	if path := b.cfg.PipelineCachePath; path != "" {
		data, err := b.drv.PipelineCacheData(b.ctx.Device(), b.pipelineCache)
		if err == nil {
			err = pipecache.Save(path, b.cacheHeader(), data)
		}
		if err != nil {
			b.logger.WithError(err).WithField("path", path).Warn("pipeline cache not persisted")
		}
	}
	b.drv.DestroyPipelineCache(b.ctx.Device(), b.pipelineCache)
	b.pipelineCache = 0
}

// PrepareFrame acquires the next image and waits until its slot is free.
// An out of date or suboptimal surface is rebuilt at the current window
// size and a skipped frame is returned.
func (b *Backend) PrepareFrame(ctx context.Context) (Frame, error) {
	if b.state != StateIdle && b.state != StatePresented {
		return Frame{}, errors.Wrapf(ErrState, "prepare frame in state %s", b.state)
	}

	status, err := b.swapchain.Acquire(ctx)
	if err != nil {
		return Frame{}, err
	}
	if status != StatusOK {
		b.logger.WithField("status", status).Debug("surface changed during acquire")
		b.state = StateIdle
		if err := b.resizeToWindow(); err != nil {
			return Frame{}, err
		}
		// a minimized window skips the rebuild and leaves the image held
		if err := b.swapchain.abandon(); err != nil {
			return Frame{}, err
		}
		return Frame{Skipped: true}, nil
	}

	idx := int(b.swapchain.ActiveIndex())
	if err := b.frames.WaitAndReset(ctx, idx); err != nil {
		return Frame{}, err
	}

	b.state = StateAcquired
	return Frame{
		Index:         uint32(idx),
		CommandBuffer: b.frames.CommandBufferFor(idx),
		Framebuffer:   b.targets.Framebuffer(idx),
		Extent:        b.extent,
	}, nil
}

// Record begins the frame's command buffer and the default render pass
// with the configured clear values, lets fn record into it and ends both.
func (b *Backend) Record(frame Frame, fn func(cb gpu.CommandBuffer) error) error {
	if frame.Skipped || b.state != StateAcquired {
		return errors.Wrapf(ErrState, "record in state %s", b.state)
	}
	b.state = StateRecording

	cb := frame.CommandBuffer
	if err := b.drv.BeginCommandBuffer(cb, false); err != nil {
		return err
	}
	b.drv.CmdBeginRenderPass(cb, gpu.RenderPassBegin{
		RenderPass:  b.targets.RenderPass(),
		Framebuffer: frame.Framebuffer,
		Extent:      frame.Extent,
		ClearColor:  b.cfg.ClearColor,
		ClearDepth:  b.clearDepth(),
	})
	var recordErr error
	if fn != nil {
		recordErr = fn(cb)
	}
	b.drv.CmdEndRenderPass(cb)
	if err := b.drv.EndCommandBuffer(cb); err != nil {
		return err
	}
	return recordErr
}

func (b *Backend) clearDepth() float32 {
	if b.cfg.ClearDepth == 0 {
		return 1
	}
	return b.cfg.ClearDepth
}

// SubmitFrame submits the frame's command buffer, waiting on the image
// availability and signalling render completion and the slot fence, then
// presents. A failed submit is fatal. Out of date and suboptimal presents
// rebuild the surface and are reported as status only.
func (b *Backend) SubmitFrame(frame Frame) (Status, error) {
	if frame.Skipped || (b.state != StateAcquired && b.state != StateRecording) {
		return StatusOK, errors.Wrapf(ErrState, "submit in state %s", b.state)
	}
	idx := int(frame.Index)

	if err := b.frames.Reset(idx); err != nil {
		return StatusOK, err
	}
	if err := b.drv.QueueSubmit(b.ctx.GraphicsQueue(), gpu.SubmitInfo{
		Wait:           []gpu.Semaphore{b.swapchain.ActiveReadSemaphore()},
		WaitStages:     []gpu.PipelineStage{gpu.StageColorAttachmentOutput},
		CommandBuffers: []gpu.CommandBuffer{frame.CommandBuffer},
		Signal:         []gpu.Semaphore{b.swapchain.ActiveWrittenSemaphore()},
	}, b.frames.FenceFor(idx)); err != nil {
		return StatusOK, errors.Wrap(ErrSubmit, err.Error())
	}
	b.frames.markSubmitted(idx)
	b.state = StateSubmitted

	status, err := b.swapchain.Present(b.ctx.PresentQueue())
	if err != nil {
		return status, err
	}
	b.state = StatePresented
	if status != StatusOK {
		b.logger.WithField("status", status).Debug("surface changed during present")
		if err := b.resizeToWindow(); err != nil {
			return status, err
		}
	}
	return status, nil
}

func (b *Backend) resizeToWindow() error {
	width, height := b.ctx.Window().Size()
	return b.Resize(width, height)
}

// Resize rebuilds every size dependent resource for width x height.
// A zero dimension means the window is minimized and nothing happens.
func (b *Backend) Resize(width, height uint32) error {
	if width == 0 || height == 0 {
		return nil
	}

	if err := b.ctx.WaitIdle(); err != nil {
		return err
	}
	if err := b.swapchain.Update(gpu.Extent{Width: width, Height: height}, b.cfg.VSync); err != nil {
		return errors.Wrap(err, "update swapchain")
	}
	if err := b.frames.Rebuild(b.swapchain.ImageCount()); err != nil {
		return err
	}
	b.extent = b.swapchain.Extent()
	if b.listener != nil {
		b.listener.OnResize(b.extent)
	}
	if err := b.targets.RebuildDepthBuffer(b.extent); err != nil {
		return err
	}
	if err := b.targets.RebuildFramebuffers(b.swapchain.Views(), b.extent); err != nil {
		return err
	}
	b.state = StateIdle

	b.logger.WithField("extent", b.extent).Debug("resized")
	return nil
}

// SetVSync switches the present mode, rebuilding the surface at its current size.
func (b *Backend) SetVSync(vsync bool) error {
	if b.cfg.VSync == vsync {
		return nil
	}
	b.cfg.VSync = vsync
	return b.Resize(b.extent.Width, b.extent.Height)
}

// IsMinimized reports whether the window has no drawable area, sleeping
// briefly when asked to so a minimized loop does not spin.
func (b *Backend) IsMinimized(sleep bool) bool {
	width, height := b.ctx.Window().Size()
	if width != 0 && height != 0 {
		return false
	}
	if sleep {
		time.Sleep(minimizedSleep)
	}
	return true
}

// OneShot records fn into a temporary command buffer, submits it on the
// graphics queue and waits for completion.
func (b *Backend) OneShot(fn func(cb gpu.CommandBuffer) error) error {
	return b.commands.Run(fn)
}

// Context returns the device context.
func (b *Backend) Context() *device.Context { return b.ctx }

// RenderPass returns the default render pass.
func (b *Backend) RenderPass() gpu.RenderPass { return b.targets.RenderPass() }

// ImageCount returns the number of swapchain images.
func (b *Backend) ImageCount() int { return b.swapchain.ImageCount() }

// Extent returns the current render size, for viewports and scissors.
func (b *Backend) Extent() gpu.Extent { return b.extent }

// SampleCount returns the highest usable sample count.
func (b *Backend) SampleCount() gpu.SampleCount { return b.ctx.SampleCount() }

// PipelineCache returns the pipeline cache.
func (b *Backend) PipelineCache() gpu.PipelineCache { return b.pipelineCache }

// State returns the frame loop state.
func (b *Backend) State() State { return b.state }

// Swapchain returns the swapchain.
func (b *Backend) Swapchain() *Swapchain { return b.swapchain }

// Frames returns the frame set.
func (b *Backend) Frames() *FrameSet { return b.frames }

// Targets returns the target resources.
func (b *Backend) Targets() *Targets { return b.targets }

// releaseOwned tears down everything but the device context, waiting for
// the device first.
func (b *Backend) releaseOwned() {
	if err := b.ctx.WaitIdle(); err != nil {
		b.logger.WithError(err).Error("wait idle before release")
	}

	if b.frames != nil {
		b.frames.releaseFences()
	}
	if b.swapchain != nil {
		b.swapchain.releaseSemaphores()
	}
	rest := []gfx.Releasable{}
	if b.targets != nil {
		rest = append(rest, b.targets)
	}
	rest = append(rest, gfx.ReleaseFunc(b.releasePipelineCache))
	if b.frames != nil {
		rest = append(rest, b.frames)
	}
	if b.swapchain != nil {
		rest = append(rest, b.swapchain)
	}
	gfx.ReleaseAll(rest...)
}

// Release waits for the device and destroys everything, the device context included.
func (b *Backend) Release() {
	b.releaseOwned()
	b.ctx.Release()
	b.state = StateIdle
}
