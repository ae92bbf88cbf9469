// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"github.com/pkg/errors"

	"github.com/devblok/kframe/gpu"
)

// Commands records and runs one-shot command buffers on a queue.
type Commands struct {
	drv   gpu.Driver
	dev   gpu.Device
	pool  gpu.CommandPool
	queue gpu.Queue
}

// NewCommands returns a one-shot runner allocating from pool and submitting to queue.
func NewCommands(drv gpu.Driver, dev gpu.Device, pool gpu.CommandPool, queue gpu.Queue) *Commands {
	return &Commands{
		drv:   drv,
		dev:   dev,
		pool:  pool,
		queue: queue,
	}
}

// Run allocates a command buffer, records fn into it, submits it and waits
// for the queue to go idle. The buffer is freed in every case.
func (c *Commands) Run(fn func(cb gpu.CommandBuffer) error) error {
	buffers, err := c.drv.AllocateCommandBuffers(c.dev, c.pool, 1)
	if err != nil {
		return errors.Wrap(err, "allocate one-shot command buffer")
	}
	defer c.drv.FreeCommandBuffers(c.dev, c.pool, buffers)
	cb := buffers[0]

	if err := c.drv.BeginCommandBuffer(cb, true); err != nil {
		return err
	}
	if err := fn(cb); err != nil {
		c.drv.EndCommandBuffer(cb)
		return err
	}
	if err := c.drv.EndCommandBuffer(cb); err != nil {
		return err
	}

	if err := c.drv.QueueSubmit(c.queue, gpu.SubmitInfo{
		CommandBuffers: buffers,
	}, 0); err != nil {
		return errors.Wrap(err, "submit one-shot commands")
	}
	return c.drv.QueueWaitIdle(c.queue)
}

// TransitionImage records and runs a single image layout barrier.
func (c *Commands) TransitionImage(barrier gpu.ImageBarrier) error {
	return c.Run(func(cb gpu.CommandBuffer) error {
		c.drv.CmdImageBarrier(cb, barrier)
		return nil
	})
}
