// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/devblok/kframe/gpu"
)

func attachment(a gpu.Attachment, storeOp vk.AttachmentStoreOp) vk.AttachmentDescription {
	return vk.AttachmentDescription{
		Format:         vk.Format(a.Format),
		Samples:        vk.SampleCountFlagBits(a.Samples),
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        storeOp,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    vk.ImageLayout(a.FinalLayout),
	}
}

// CreateRenderPass implements interface
func (d *Driver) CreateRenderPass(dev gpu.Device, info gpu.RenderPassInfo) (gpu.RenderPass, error) {
	var flags vk.DependencyFlags
	if info.Dependency.ByRegion {
		flags = vk.DependencyFlags(vk.DependencyByRegionBit)
	}

	var pass vk.RenderPass
	if err := check("vk.CreateRenderPass", vk.CreateRenderPass(d.device(dev), &vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: 2,
		PAttachments: []vk.AttachmentDescription{
			attachment(info.Color, vk.AttachmentStoreOpStore),
			attachment(info.Depth, vk.AttachmentStoreOpDontCare),
		},
		SubpassCount: 1,
		PSubpasses: []vk.SubpassDescription{{
			PipelineBindPoint:    vk.PipelineBindPointGraphics,
			ColorAttachmentCount: 1,
			PColorAttachments: []vk.AttachmentReference{{
				Attachment: 0,
				Layout:     vk.ImageLayoutColorAttachmentOptimal,
			}},
			PDepthStencilAttachment: &vk.AttachmentReference{
				Attachment: 1,
				Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
			},
		}},
		DependencyCount: 1,
		PDependencies: []vk.SubpassDependency{{
			SrcSubpass:      vk.SubpassExternal,
			DstSubpass:      0,
			SrcStageMask:    vk.PipelineStageFlags(info.Dependency.SrcStage),
			DstStageMask:    vk.PipelineStageFlags(info.Dependency.DstStage),
			SrcAccessMask:   vk.AccessFlags(info.Dependency.SrcAccess),
			DstAccessMask:   vk.AccessFlags(info.Dependency.DstAccess),
			DependencyFlags: flags,
		}},
	}, nil, &pass)); err != nil {
		return 0, err
	}
	return gpu.RenderPass(d.add(pass)), nil
}

func (d *Driver) renderPass(h gpu.RenderPass) vk.RenderPass {
	p, _ := d.get(uint64(h)).(vk.RenderPass)
	return p
}

// DestroyRenderPass implements interface
func (d *Driver) DestroyRenderPass(dev gpu.Device, pass gpu.RenderPass) {
	if p, ok := d.take(uint64(pass)).(vk.RenderPass); ok {
		vk.DestroyRenderPass(d.device(dev), p, nil)
	}
}

// CreateFramebuffer implements interface
func (d *Driver) CreateFramebuffer(dev gpu.Device, info gpu.FramebufferInfo) (gpu.Framebuffer, error) {
	views := make([]vk.ImageView, len(info.Attachments))
	for i, v := range info.Attachments {
		views[i] = d.imageView(v)
	}
	var fb vk.Framebuffer
	if err := check("vk.CreateFramebuffer", vk.CreateFramebuffer(d.device(dev), &vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      d.renderPass(info.RenderPass),
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           info.Extent.Width,
		Height:          info.Extent.Height,
		Layers:          1,
	}, nil, &fb)); err != nil {
		return 0, err
	}
	return gpu.Framebuffer(d.add(fb)), nil
}

func (d *Driver) framebuffer(h gpu.Framebuffer) vk.Framebuffer {
	fb, _ := d.get(uint64(h)).(vk.Framebuffer)
	return fb
}

// DestroyFramebuffer implements interface
func (d *Driver) DestroyFramebuffer(dev gpu.Device, fb gpu.Framebuffer) {
	if f, ok := d.take(uint64(fb)).(vk.Framebuffer); ok {
		vk.DestroyFramebuffer(d.device(dev), f, nil)
	}
}

// CreatePipelineCache implements interface
func (d *Driver) CreatePipelineCache(dev gpu.Device, initial []byte) (gpu.PipelineCache, error) {
	info := vk.PipelineCacheCreateInfo{
		SType: vk.StructureTypePipelineCacheCreateInfo,
	}
	if len(initial) > 0 {
		info.InitialDataSize = uint(len(initial))
		info.PInitialData = unsafe.Pointer(&initial[0])
	}
	var cache vk.PipelineCache
	if err := check("vk.CreatePipelineCache", vk.CreatePipelineCache(d.device(dev), &info, nil, &cache)); err != nil {
		return 0, err
	}
	return gpu.PipelineCache(d.add(cache)), nil
}

func (d *Driver) pipelineCache(h gpu.PipelineCache) vk.PipelineCache {
	c, _ := d.get(uint64(h)).(vk.PipelineCache)
	return c
}

// PipelineCacheData implements interface
func (d *Driver) PipelineCacheData(dev gpu.Device, cache gpu.PipelineCache) ([]byte, error) {
	v, c := d.device(dev), d.pipelineCache(cache)
	var size uint
	if err := check("vk.GetPipelineCacheData", vk.GetPipelineCacheData(v, c, &size, nil)); err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, nil
	}
	data := make([]byte, size)
	if err := check("vk.GetPipelineCacheData", vk.GetPipelineCacheData(v, c, &size, unsafe.Pointer(&data[0]))); err != nil {
		return nil, err
	}
	return data[:size], nil
}

// DestroyPipelineCache implements interface
func (d *Driver) DestroyPipelineCache(dev gpu.Device, cache gpu.PipelineCache) {
	if c, ok := d.take(uint64(cache)).(vk.PipelineCache); ok {
		vk.DestroyPipelineCache(d.device(dev), c, nil)
	}
}
