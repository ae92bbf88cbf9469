// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vulkan

import (
	"time"

	vk "github.com/goki/vulkan"

	"github.com/devblok/kframe/gpu"
)

// image is either owned by the driver user or by a swapchain.
type image struct {
	handle    vk.Image
	swapchain vk.Swapchain
}

func (d *Driver) swapchain(h gpu.Swapchain) vk.Swapchain {
	s, _ := d.get(uint64(h)).(vk.Swapchain)
	return s
}

// CreateSwapchain implements interface
func (d *Driver) CreateSwapchain(dev gpu.Device, info gpu.SwapchainInfo) (gpu.Swapchain, error) {
	v := d.device(dev)
	pd, _ := d.get(uint64(dev)).(device)

	var caps vk.SurfaceCapabilities
	surface := d.surface(info.Surface)
	vk.GetPhysicalDeviceSurfaceCapabilities(pd.physical, surface, &caps)
	caps.Deref()

	compositeAlpha := vk.CompositeAlphaOpaqueBit
	for _, flag := range []vk.CompositeAlphaFlagBits{
		vk.CompositeAlphaOpaqueBit,
		vk.CompositeAlphaPreMultipliedBit,
		vk.CompositeAlphaPostMultipliedBit,
		vk.CompositeAlphaInheritBit,
	} {
		if caps.SupportedCompositeAlpha&vk.CompositeAlphaFlags(flag) != 0 {
			compositeAlpha = flag
			break
		}
	}

	sharing := vk.SharingModeExclusive
	var families []uint32
	if len(info.QueueFamilies) > 1 {
		sharing = vk.SharingModeConcurrent
		families = info.QueueFamilies
	}

	var swapchain vk.Swapchain
	if err := check("vk.CreateSwapchain", vk.CreateSwapchain(v, &vk.SwapchainCreateInfo{
		SType:           vk.StructureTypeSwapchainCreateInfo,
		Surface:         surface,
		MinImageCount:   info.MinImageCount,
		ImageFormat:     vk.Format(info.Format),
		ImageColorSpace: vk.ColorSpace(info.ColorSpace),
		ImageExtent: vk.Extent2D{
			Width:  info.Extent.Width,
			Height: info.Extent.Height,
		},
		ImageUsage:            vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:          vk.SurfaceTransformIdentityBit,
		CompositeAlpha:        compositeAlpha,
		PresentMode:           vk.PresentMode(info.PresentMode),
		Clipped:               vk.True,
		ImageArrayLayers:      1,
		ImageSharingMode:      sharing,
		QueueFamilyIndexCount: uint32(len(families)),
		PQueueFamilyIndices:   families,
		OldSwapchain:          d.swapchain(info.Old),
	}, nil, &swapchain)); err != nil {
		return 0, err
	}
	return gpu.Swapchain(d.add(swapchain)), nil
}

// DestroySwapchain implements interface
func (d *Driver) DestroySwapchain(dev gpu.Device, swapchain gpu.Swapchain) {
	if s, ok := d.take(uint64(swapchain)).(vk.Swapchain); ok {
		d.forget(func(obj interface{}) bool {
			img, ok := obj.(image)
			return ok && img.swapchain == s
		})
		vk.DestroySwapchain(d.device(dev), s, nil)
	}
}

// SwapchainImages implements interface
func (d *Driver) SwapchainImages(dev gpu.Device, swapchain gpu.Swapchain) ([]gpu.Image, error) {
	v, s := d.device(dev), d.swapchain(swapchain)
	var count uint32
	if err := check("vk.GetSwapchainImages", vk.GetSwapchainImages(v, s, &count, nil)); err != nil {
		return nil, err
	}
	images := make([]vk.Image, count)
	if err := check("vk.GetSwapchainImages", vk.GetSwapchainImages(v, s, &count, images)); err != nil {
		return nil, err
	}
	handles := make([]gpu.Image, 0, count)
	for _, img := range images[:count] {
		handles = append(handles, gpu.Image(d.add(image{handle: img, swapchain: s})))
	}
	return handles, nil
}

// AcquireNextImage implements interface
func (d *Driver) AcquireNextImage(dev gpu.Device, swapchain gpu.Swapchain, timeout time.Duration, signal gpu.Semaphore) (uint32, gpu.Result) {
	var (
		idx  uint32
		none vk.Fence
	)
	r := vk.AcquireNextImage(d.device(dev), d.swapchain(swapchain), gpu.Nanoseconds(timeout), d.semaphore(signal), none, &idx)
	return idx, gpu.Result(r)
}

// QueuePresent implements interface
func (d *Driver) QueuePresent(q gpu.Queue, info gpu.PresentInfo) gpu.Result {
	wait := d.semaphores(info.Wait)
	return gpu.Result(vk.QueuePresent(d.queue(q), &vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(wait)),
		PWaitSemaphores:    wait,
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{d.swapchain(info.Swapchain)},
		PImageIndices:      []uint32{info.ImageIndex},
	}))
}
