// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/devblok/kframe/gpu"
)

// CreateCommandPool implements interface
func (d *Driver) CreateCommandPool(dev gpu.Device, family uint32) (gpu.CommandPool, error) {
	var pool vk.CommandPool
	if err := check("vk.CreateCommandPool", vk.CreateCommandPool(d.device(dev), &vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: family,
	}, nil, &pool)); err != nil {
		return 0, err
	}
	return gpu.CommandPool(d.add(pool)), nil
}

func (d *Driver) commandPool(h gpu.CommandPool) vk.CommandPool {
	p, _ := d.get(uint64(h)).(vk.CommandPool)
	return p
}

// DestroyCommandPool implements interface
func (d *Driver) DestroyCommandPool(dev gpu.Device, pool gpu.CommandPool) {
	if p, ok := d.take(uint64(pool)).(vk.CommandPool); ok {
		vk.DestroyCommandPool(d.device(dev), p, nil)
	}
}

// AllocateCommandBuffers implements interface
func (d *Driver) AllocateCommandBuffers(dev gpu.Device, pool gpu.CommandPool, count int) ([]gpu.CommandBuffer, error) {
	buffers := make([]vk.CommandBuffer, count)
	if err := check("vk.AllocateCommandBuffers", vk.AllocateCommandBuffers(d.device(dev), &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.commandPool(pool),
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(count),
	}, buffers)); err != nil {
		return nil, err
	}
	handles := make([]gpu.CommandBuffer, count)
	for i, cb := range buffers {
		handles[i] = gpu.CommandBuffer(d.add(cb))
	}
	return handles, nil
}

func (d *Driver) commandBuffer(h gpu.CommandBuffer) vk.CommandBuffer {
	cb, _ := d.get(uint64(h)).(vk.CommandBuffer)
	return cb
}

// FreeCommandBuffers implements interface
func (d *Driver) FreeCommandBuffers(dev gpu.Device, pool gpu.CommandPool, buffers []gpu.CommandBuffer) {
	if len(buffers) == 0 {
		return
	}
	free := make([]vk.CommandBuffer, 0, len(buffers))
	for _, h := range buffers {
		if cb, ok := d.take(uint64(h)).(vk.CommandBuffer); ok {
			free = append(free, cb)
		}
	}
	vk.FreeCommandBuffers(d.device(dev), d.commandPool(pool), uint32(len(free)), free)
}

// BeginCommandBuffer implements interface
func (d *Driver) BeginCommandBuffer(cb gpu.CommandBuffer, oneTime bool) error {
	info := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if oneTime {
		info.Flags = vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	return check("vk.BeginCommandBuffer", vk.BeginCommandBuffer(d.commandBuffer(cb), &info))
}

// EndCommandBuffer implements interface
func (d *Driver) EndCommandBuffer(cb gpu.CommandBuffer) error {
	return check("vk.EndCommandBuffer", vk.EndCommandBuffer(d.commandBuffer(cb)))
}

// CmdImageBarrier implements interface
func (d *Driver) CmdImageBarrier(cb gpu.CommandBuffer, barrier gpu.ImageBarrier) {
	vk.CmdPipelineBarrier(d.commandBuffer(cb),
		vk.PipelineStageFlags(barrier.SrcStage),
		vk.PipelineStageFlags(barrier.DstStage),
		0, 0, nil, 0, nil, 1,
		[]vk.ImageMemoryBarrier{{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(barrier.SrcAccess),
			DstAccessMask:       vk.AccessFlags(barrier.DstAccess),
			OldLayout:           vk.ImageLayout(barrier.OldLayout),
			NewLayout:           vk.ImageLayout(barrier.NewLayout),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               d.image(barrier.Image),
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(barrier.Aspect),
				LevelCount: 1,
				LayerCount: 1,
			},
		}})
}

// CmdBeginRenderPass implements interface
func (d *Driver) CmdBeginRenderPass(cb gpu.CommandBuffer, begin gpu.RenderPassBegin) {
	var color, depth vk.ClearValue
	color.SetColor(begin.ClearColor[:])
	depth.SetDepthStencil(begin.ClearDepth, 0)

	vk.CmdBeginRenderPass(d.commandBuffer(cb), &vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  d.renderPass(begin.RenderPass),
		Framebuffer: d.framebuffer(begin.Framebuffer),
		RenderArea: vk.Rect2D{
			Extent: vk.Extent2D{
				Width:  begin.Extent.Width,
				Height: begin.Extent.Height,
			},
		},
		ClearValueCount: 2,
		PClearValues:    []vk.ClearValue{color, depth},
	}, vk.SubpassContentsInline)
}

// CmdEndRenderPass implements interface
func (d *Driver) CmdEndRenderPass(cb gpu.CommandBuffer) {
	vk.CmdEndRenderPass(d.commandBuffer(cb))
}

// QueueSubmit implements interface
func (d *Driver) QueueSubmit(q gpu.Queue, info gpu.SubmitInfo, fence gpu.Fence) error {
	wait := d.semaphores(info.Wait)
	signal := d.semaphores(info.Signal)
	stages := make([]vk.PipelineStageFlags, len(info.WaitStages))
	for i, s := range info.WaitStages {
		stages[i] = vk.PipelineStageFlags(s)
	}
	buffers := make([]vk.CommandBuffer, len(info.CommandBuffers))
	for i, cb := range info.CommandBuffers {
		buffers[i] = d.commandBuffer(cb)
	}

	return check("vk.QueueSubmit", vk.QueueSubmit(d.queue(q), 1, []vk.SubmitInfo{{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(wait)),
		PWaitSemaphores:      wait,
		PWaitDstStageMask:    stages,
		CommandBufferCount:   uint32(len(buffers)),
		PCommandBuffers:      buffers,
		SignalSemaphoreCount: uint32(len(signal)),
		PSignalSemaphores:    signal,
	}}, d.fence(fence)))
}
