// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/devblok/kframe/device"
	"github.com/devblok/kframe/gpu"
)

// NewTargets prepares target resources for colour images of colorFormat.
// Nothing is created until the Rebuild calls.
func NewTargets(ctx *device.Context, colorFormat, depthFormat gpu.Format, cmds *Commands) *Targets {
	if depthFormat == gpu.FormatUndefined {
		depthFormat = gpu.FormatD32SfloatS8Uint
	}
	return &Targets{
		drv:         ctx.Driver(),
		dev:         ctx.Device(),
		memory:      ctx.Driver().MemoryProperties(ctx.PhysicalDevice()),
		cmds:        cmds,
		colorFormat: colorFormat,
		depthFormat: depthFormat,
		logger:      ctx.Logger().WithField("component", "targets"),
	}
}

// Targets owns the depth buffer, the default render pass and one
// framebuffer per swapchain image.
type Targets struct {
	drv    gpu.Driver
	dev    gpu.Device
	memory gpu.MemoryProperties
	cmds   *Commands
	logger log.FieldLogger

	colorFormat gpu.Format
	depthFormat gpu.Format

	depthImage  gpu.Image
	depthView   gpu.ImageView
	depthMemory gpu.Memory

	renderPass   gpu.RenderPass
	framebuffers []gpu.Framebuffer
	extent       gpu.Extent
}

// FindMemoryType returns the first memory type allowed by typeBits that has
// every flag in props.
func FindMemoryType(memory gpu.MemoryProperties, typeBits uint32, props gpu.MemoryProperty) (uint32, error) {
	for idx, t := range memory.Types {
		if typeBits&(1<<uint(idx)) != 0 && t.Flags&props == props {
			return uint32(idx), nil
		}
	}
	return 0, ErrNoSuitableMemoryType
}

func (t *Targets) depthAspect() gpu.ImageAspect {
	if t.depthFormat.HasStencil() {
		return gpu.AspectDepth | gpu.AspectStencil
	}
	return gpu.AspectDepth
}

// RebuildDepthBuffer replaces the depth image with one of size, moved to
// the depth-stencil attachment layout.
func (t *Targets) RebuildDepthBuffer(size gpu.Extent) error {
	t.releaseDepth()

	image, err := t.drv.CreateImage(t.dev, gpu.ImageInfo{
		Extent:  size,
		Format:  t.depthFormat,
		Usage:   gpu.ImageUsageDepthStencilAttachment | gpu.ImageUsageTransferSrc,
		Samples: gpu.SampleCount1,
	})
	if err != nil {
		return errors.Wrap(err, "create depth image")
	}
	t.depthImage = image

	req := t.drv.ImageMemoryRequirements(t.dev, image)
	memoryType, err := FindMemoryType(t.memory, req.TypeBits, gpu.MemoryDeviceLocal)
	if err != nil {
		t.releaseDepth()
		return errors.Wrap(err, "depth image")
	}

	memory, err := t.drv.AllocateMemory(t.dev, req.Size, memoryType)
	if err != nil {
		t.releaseDepth()
		return errors.Wrap(err, "allocate depth memory")
	}
	t.depthMemory = memory

	if err := t.drv.BindImageMemory(t.dev, image, memory); err != nil {
		t.releaseDepth()
		return errors.Wrap(err, "bind depth memory")
	}

	if err := t.cmds.TransitionImage(gpu.ImageBarrier{
		Image:     image,
		Aspect:    t.depthAspect(),
		OldLayout: gpu.LayoutUndefined,
		NewLayout: gpu.LayoutDepthStencilAttachmentOptimal,
		DstAccess: gpu.AccessDepthStencilAttachmentRead | gpu.AccessDepthStencilAttachmentWrite,
		SrcStage:  gpu.StageTopOfPipe,
		DstStage:  gpu.StageEarlyFragmentTests,
	}); err != nil {
		t.releaseDepth()
		return errors.Wrap(err, "transition depth image")
	}

	view, err := t.drv.CreateImageView(t.dev, gpu.ImageViewInfo{
		Image:  image,
		Format: t.depthFormat,
		Aspect: t.depthAspect(),
	})
	if err != nil {
		t.releaseDepth()
		return errors.Wrap(err, "create depth view")
	}
	t.depthView = view
	t.extent = size

	t.logger.WithFields(log.Fields{
		"extent": size,
		"bytes":  req.Size,
	}).Debug("depth buffer rebuilt")
	return nil
}

// RebuildRenderPass replaces the default render pass: one subpass writing a
// cleared colour attachment for presentation and a cleared depth attachment.
func (t *Targets) RebuildRenderPass() error {
	t.releaseRenderPass()

	pass, err := t.drv.CreateRenderPass(t.dev, gpu.RenderPassInfo{
		Color: gpu.Attachment{
			Format:      t.colorFormat,
			Samples:     gpu.SampleCount1,
			FinalLayout: gpu.LayoutPresentSrc,
		},
		Depth: gpu.Attachment{
			Format:      t.depthFormat,
			Samples:     gpu.SampleCount1,
			FinalLayout: gpu.LayoutDepthStencilAttachmentOptimal,
		},
		Dependency: gpu.Dependency{
			SrcStage:  gpu.StageColorAttachmentOutput,
			DstStage:  gpu.StageColorAttachmentOutput,
			SrcAccess: gpu.AccessMemoryRead,
			DstAccess: gpu.AccessColorAttachmentRead | gpu.AccessColorAttachmentWrite,
			ByRegion:  true,
		},
	})
	if err != nil {
		return errors.Wrap(err, "create render pass")
	}
	t.renderPass = pass
	return nil
}

// RebuildFramebuffers replaces every framebuffer with one per view, each
// pairing the view with the depth view.
func (t *Targets) RebuildFramebuffers(views []gpu.ImageView, size gpu.Extent) error {
	t.releaseFramebuffers()

	for idx, view := range views {
		fb, err := t.drv.CreateFramebuffer(t.dev, gpu.FramebufferInfo{
			RenderPass:  t.renderPass,
			Attachments: []gpu.ImageView{view, t.depthView},
			Extent:      size,
		})
		if err != nil {
			t.releaseFramebuffers()
			return errors.Wrapf(err, "create framebuffer %d", idx)
		}
		t.framebuffers = append(t.framebuffers, fb)
	}
	t.extent = size
	return nil
}

// RenderPass returns the default render pass.
func (t *Targets) RenderPass() gpu.RenderPass { return t.renderPass }

// Framebuffer returns the framebuffer of image i.
func (t *Targets) Framebuffer(i int) gpu.Framebuffer { return t.framebuffers[i] }

// Framebuffers returns every framebuffer in image order.
func (t *Targets) Framebuffers() []gpu.Framebuffer { return t.framebuffers }

// DepthImage returns the depth image.
func (t *Targets) DepthImage() gpu.Image { return t.depthImage }

// DepthView returns the depth view.
func (t *Targets) DepthView() gpu.ImageView { return t.depthView }

// DepthMemory returns the memory bound to the depth image.
func (t *Targets) DepthMemory() gpu.Memory { return t.depthMemory }

// DepthFormat returns the depth format.
func (t *Targets) DepthFormat() gpu.Format { return t.depthFormat }

// Extent returns the size the targets were last built for.
func (t *Targets) Extent() gpu.Extent { return t.extent }

func (t *Targets) releaseFramebuffers() {
	for _, fb := range t.framebuffers {
		t.drv.DestroyFramebuffer(t.dev, fb)
	}
	t.framebuffers = nil
}

func (t *Targets) releaseDepth() {
	if t.depthView != 0 {
		t.drv.DestroyImageView(t.dev, t.depthView)
		t.depthView = 0
	}
	if t.depthImage != 0 {
		t.drv.DestroyImage(t.dev, t.depthImage)
		t.depthImage = 0
	}
	if t.depthMemory != 0 {
		t.drv.FreeMemory(t.dev, t.depthMemory)
		t.depthMemory = 0
	}
}

func (t *Targets) releaseRenderPass() {
	if t.renderPass != 0 {
		t.drv.DestroyRenderPass(t.dev, t.renderPass)
		t.renderPass = 0
	}
}

// Release destroys framebuffers, the depth buffer and the render pass, in that order.
func (t *Targets) Release() {
	t.releaseFramebuffers()
	t.releaseDepth()
	t.releaseRenderPass()
}
