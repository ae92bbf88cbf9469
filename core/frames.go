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
	"github.com/devblok/kframe/gpu"
)

// FrameConfig configures fence waiting.
type FrameConfig struct {
	// FenceTimeout bounds one fence wait.
	FenceTimeout time.Duration
	// MaxFenceRetries bounds timed out waits, zero means unbounded.
	MaxFenceRetries int
}

// FrameStats counts fence waits since creation.
type FrameStats struct {
	Waits   int
	Retries int
}

// NewFrameSet creates the command pool on the graphics family.
// Command buffers and fences are created by Rebuild.
func NewFrameSet(ctx *device.Context, cfg FrameConfig) (*FrameSet, error) {
	drv := ctx.Driver()
	pool, err := drv.CreateCommandPool(ctx.Device(), ctx.GraphicsFamily())
	if err != nil {
		return nil, errors.Wrap(err, "create command pool")
	}
	if cfg.FenceTimeout <= 0 {
		cfg.FenceTimeout = DefaultFenceTimeout
	}
	return &FrameSet{
		drv:    drv,
		dev:    ctx.Device(),
		cfg:    cfg,
		pool:   pool,
		logger: ctx.Logger().WithField("component", "frames"),
	}, nil
}

// FrameSet holds one command buffer and one fence per swapchain image.
// The fence of slot i is signalled when the GPU finished the work last
// submitted from slot i.
type FrameSet struct {
	drv    gpu.Driver
	dev    gpu.Device
	cfg    FrameConfig
	logger log.FieldLogger

	pool    gpu.CommandPool
	buffers []gpu.CommandBuffer
	fences  []gpu.Fence
	// reset marks fences reset and not submitted since.
	reset []bool

	stats FrameStats
}

// Rebuild returns the old command buffers to the pool, allocates exactly
// count new ones and recreates the fences pre-signalled.
// No slot may have work in flight.
func (f *FrameSet) Rebuild(count int) error {
	f.releaseBuffers()
	f.releaseFences()

	buffers, err := f.drv.AllocateCommandBuffers(f.dev, f.pool, count)
	if err != nil {
		return errors.Wrap(err, "allocate command buffers")
	}
	f.buffers = buffers

	f.fences = make([]gpu.Fence, 0, count)
	for i := 0; i < count; i++ {
		fence, err := f.drv.CreateFence(f.dev, true)
		if err != nil {
			return errors.Wrapf(err, "create fence %d", i)
		}
		f.fences = append(f.fences, fence)
	}
	f.reset = make([]bool, count)
	return nil
}

// Len returns the number of slots.
func (f *FrameSet) Len() int { return len(f.buffers) }

// CommandBufferFor returns the command buffer of slot i.
func (f *FrameSet) CommandBufferFor(i int) gpu.CommandBuffer { return f.buffers[i] }

// FenceFor returns the fence of slot i.
func (f *FrameSet) FenceFor(i int) gpu.Fence { return f.fences[i] }

// Pool returns the command pool.
func (f *FrameSet) Pool() gpu.CommandPool { return f.pool }

// Stats returns wait counters.
func (f *FrameSet) Stats() FrameStats { return f.stats }

// WaitAndReset blocks until the fence of slot i is signalled and resets it.
// A fence reset and not submitted since is returned immediately, nothing
// would ever signal it.
func (f *FrameSet) WaitAndReset(ctx context.Context, i int) error {
	if f.reset[i] {
		return nil
	}

	f.stats.Waits++
	for attempt := 1; ; attempt++ {
		r := f.drv.WaitForFence(f.dev, f.fences[i], f.cfg.FenceTimeout)
		if r == gpu.Success {
			break
		}
		if r != gpu.Timeout {
			return gpu.Check("vk.WaitForFences", r)
		}

		f.stats.Retries++
		if f.cfg.MaxFenceRetries > 0 && attempt >= f.cfg.MaxFenceRetries {
			return errors.Wrapf(ErrFenceTimeout, "slot %d after %d waits", i, attempt)
		}
		if err := ctx.Err(); err != nil {
			return errors.Wrapf(err, "wait for fence of slot %d", i)
		}
		f.logger.WithFields(log.Fields{
			"slot":    i,
			"attempt": attempt,
		}).Debug("fence wait timed out, retrying")
	}
	return f.Reset(i)
}

// Reset resets the fence of slot i unless it is already reset.
func (f *FrameSet) Reset(i int) error {
	if f.reset[i] {
		return nil
	}
	if err := f.drv.ResetFence(f.dev, f.fences[i]); err != nil {
		return err
	}
	f.reset[i] = true
	return nil
}

func (f *FrameSet) markSubmitted(i int) {
	f.reset[i] = false
}

func (f *FrameSet) releaseFences() {
	for _, fence := range f.fences {
		f.drv.DestroyFence(f.dev, fence)
	}
	f.fences = nil
	f.reset = nil
}

func (f *FrameSet) releaseBuffers() {
	if len(f.buffers) > 0 {
		f.drv.FreeCommandBuffers(f.dev, f.pool, f.buffers)
		f.buffers = nil
	}
}

// Release destroys fences, command buffers and the pool.
func (f *FrameSet) Release() {
	f.releaseFences()
	f.releaseBuffers()
	if f.pool != 0 {
		f.drv.DestroyCommandPool(f.dev, f.pool)
		f.pool = 0
	}
}
