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

func (d *Driver) image(h gpu.Image) vk.Image {
	switch img := d.get(uint64(h)).(type) {
	case image:
		return img.handle
	case vk.Image:
		return img
	}
	return nil
}

// CreateImage implements interface
func (d *Driver) CreateImage(dev gpu.Device, info gpu.ImageInfo) (gpu.Image, error) {
	var img vk.Image
	if err := check("vk.CreateImage", vk.CreateImage(d.device(dev), &vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    vk.Format(info.Format),
		Extent: vk.Extent3D{
			Width:  info.Extent.Width,
			Height: info.Extent.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCountFlagBits(info.Samples),
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(info.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}, nil, &img)); err != nil {
		return 0, err
	}
	return gpu.Image(d.add(img)), nil
}

// DestroyImage implements interface
func (d *Driver) DestroyImage(dev gpu.Device, img gpu.Image) {
	if i, ok := d.take(uint64(img)).(vk.Image); ok {
		vk.DestroyImage(d.device(dev), i, nil)
	}
}

// ImageMemoryRequirements implements interface
func (d *Driver) ImageMemoryRequirements(dev gpu.Device, img gpu.Image) gpu.MemoryRequirements {
	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.device(dev), d.image(img), &req)
	req.Deref()
	return gpu.MemoryRequirements{
		Size:     uint64(req.Size),
		TypeBits: req.MemoryTypeBits,
	}
}

// AllocateMemory implements interface
func (d *Driver) AllocateMemory(dev gpu.Device, size uint64, typeIndex uint32) (gpu.Memory, error) {
	var memory vk.DeviceMemory
	if err := check("vk.AllocateMemory", vk.AllocateMemory(d.device(dev), &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(size),
		MemoryTypeIndex: typeIndex,
	}, nil, &memory)); err != nil {
		return 0, err
	}
	return gpu.Memory(d.add(memory)), nil
}

func (d *Driver) memory(h gpu.Memory) vk.DeviceMemory {
	m, _ := d.get(uint64(h)).(vk.DeviceMemory)
	return m
}

// FreeMemory implements interface
func (d *Driver) FreeMemory(dev gpu.Device, memory gpu.Memory) {
	if m, ok := d.take(uint64(memory)).(vk.DeviceMemory); ok {
		vk.FreeMemory(d.device(dev), m, nil)
	}
}

// BindImageMemory implements interface
func (d *Driver) BindImageMemory(dev gpu.Device, img gpu.Image, memory gpu.Memory) error {
	return check("vk.BindImageMemory", vk.BindImageMemory(d.device(dev), d.image(img), d.memory(memory), 0))
}

// CreateImageView implements interface
func (d *Driver) CreateImageView(dev gpu.Device, info gpu.ImageViewInfo) (gpu.ImageView, error) {
	var view vk.ImageView
	if err := check("vk.CreateImageView", vk.CreateImageView(d.device(dev), &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    d.image(info.Image),
		ViewType: vk.ImageViewType2d,
		Format:   vk.Format(info.Format),
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(info.Aspect),
			LevelCount: 1,
			LayerCount: 1,
		},
	}, nil, &view)); err != nil {
		return 0, err
	}
	return gpu.ImageView(d.add(view)), nil
}

func (d *Driver) imageView(h gpu.ImageView) vk.ImageView {
	v, _ := d.get(uint64(h)).(vk.ImageView)
	return v
}

// DestroyImageView implements interface
func (d *Driver) DestroyImageView(dev gpu.Device, view gpu.ImageView) {
	if v, ok := d.take(uint64(view)).(vk.ImageView); ok {
		vk.DestroyImageView(d.device(dev), v, nil)
	}
}

// CreateSemaphore implements interface
func (d *Driver) CreateSemaphore(dev gpu.Device) (gpu.Semaphore, error) {
	var s vk.Semaphore
	if err := check("vk.CreateSemaphore", vk.CreateSemaphore(d.device(dev), &vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}, nil, &s)); err != nil {
		return 0, err
	}
	return gpu.Semaphore(d.add(s)), nil
}

func (d *Driver) semaphore(h gpu.Semaphore) vk.Semaphore {
	s, _ := d.get(uint64(h)).(vk.Semaphore)
	return s
}

func (d *Driver) semaphores(hs []gpu.Semaphore) []vk.Semaphore {
	out := make([]vk.Semaphore, len(hs))
	for i, h := range hs {
		out[i] = d.semaphore(h)
	}
	return out
}

// DestroySemaphore implements interface
func (d *Driver) DestroySemaphore(dev gpu.Device, semaphore gpu.Semaphore) {
	if s, ok := d.take(uint64(semaphore)).(vk.Semaphore); ok {
		vk.DestroySemaphore(d.device(dev), s, nil)
	}
}

// CreateFence implements interface
func (d *Driver) CreateFence(dev gpu.Device, signaled bool) (gpu.Fence, error) {
	fci := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		fci.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var f vk.Fence
	if err := check("vk.CreateFence", vk.CreateFence(d.device(dev), &fci, nil, &f)); err != nil {
		return 0, err
	}
	return gpu.Fence(d.add(f)), nil
}

func (d *Driver) fence(h gpu.Fence) vk.Fence {
	f, _ := d.get(uint64(h)).(vk.Fence)
	return f
}

// DestroyFence implements interface
func (d *Driver) DestroyFence(dev gpu.Device, fence gpu.Fence) {
	if f, ok := d.take(uint64(fence)).(vk.Fence); ok {
		vk.DestroyFence(d.device(dev), f, nil)
	}
}

// WaitForFence implements interface
func (d *Driver) WaitForFence(dev gpu.Device, fence gpu.Fence, timeout time.Duration) gpu.Result {
	return gpu.Result(vk.WaitForFences(d.device(dev), 1, []vk.Fence{d.fence(fence)}, vk.True, gpu.Nanoseconds(timeout)))
}

// ResetFence implements interface
func (d *Driver) ResetFence(dev gpu.Device, fence gpu.Fence) error {
	return check("vk.ResetFences", vk.ResetFences(d.device(dev), 1, []vk.Fence{d.fence(fence)}))
}

// FenceSignaled implements interface
func (d *Driver) FenceSignaled(dev gpu.Device, fence gpu.Fence) (bool, error) {
	r := vk.GetFenceStatus(d.device(dev), d.fence(fence))
	switch r {
	case vk.Success:
		return true, nil
	case vk.NotReady:
		return false, nil
	}
	return false, check("vk.GetFenceStatus", r)
}
