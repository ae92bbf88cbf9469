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

type device struct {
	handle   vk.Device
	physical vk.PhysicalDevice
}

type queue struct {
	handle vk.Queue
	device vk.Device
}

// PhysicalDevices implements interface
func (d *Driver) PhysicalDevices(instance gpu.Instance) ([]gpu.PhysicalDevice, error) {
	i := d.instance(instance)
	var count uint32
	if err := check("vk.EnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(i, &count, nil)); err != nil {
		return nil, err
	}
	devices := make([]vk.PhysicalDevice, count)
	if err := check("vk.EnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(i, &count, devices)); err != nil {
		return nil, err
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()
	handles := make([]gpu.PhysicalDevice, 0, count)
	for _, pd := range devices[:count] {
		h, ok := d.known(pd)
		if !ok {
			d.next++
			h = d.next
			d.objects[h] = pd
		}
		handles = append(handles, gpu.PhysicalDevice(h))
	}
	return handles, nil
}

// known looks up the handle already issued for pd. The mutex is held.
func (d *Driver) known(pd vk.PhysicalDevice) (uint64, bool) {
	for h, obj := range d.objects {
		if p, ok := obj.(vk.PhysicalDevice); ok && p == pd {
			return h, true
		}
	}
	return 0, false
}

func (d *Driver) physical(h gpu.PhysicalDevice) vk.PhysicalDevice {
	pd, _ := d.get(uint64(h)).(vk.PhysicalDevice)
	return pd
}

// Properties implements interface
func (d *Driver) Properties(pd gpu.PhysicalDevice) gpu.PhysicalDeviceProperties {
	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(d.physical(pd), &props)
	props.Deref()
	props.Limits.Deref()
	return gpu.PhysicalDeviceProperties{
		Name:              vk.ToString(props.DeviceName[:]),
		DeviceID:          props.DeviceID,
		VendorID:          props.VendorID,
		DriverVersion:     props.DriverVersion,
		APIVersion:        props.ApiVersion,
		Type:              gpu.DeviceType(props.DeviceType),
		ColorSampleCounts: gpu.SampleCount(props.Limits.FramebufferColorSampleCounts),
		DepthSampleCounts: gpu.SampleCount(props.Limits.FramebufferDepthSampleCounts),
	}
}

// QueueFamilies implements interface
func (d *Driver) QueueFamilies(pd gpu.PhysicalDevice) []gpu.QueueFamily {
	p := d.physical(pd)
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(p, &count, nil)
	props := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(p, &count, props)

	families := make([]gpu.QueueFamily, 0, count)
	for _, f := range props[:count] {
		f.Deref()
		families = append(families, gpu.QueueFamily{
			Flags: gpu.QueueFlags(f.QueueFlags),
			Count: f.QueueCount,
		})
	}
	return families
}

// SurfaceSupport implements interface
func (d *Driver) SurfaceSupport(pd gpu.PhysicalDevice, family uint32, surface gpu.Surface) (bool, error) {
	var supported vk.Bool32
	if err := check("vk.GetPhysicalDeviceSurfaceSupport", vk.GetPhysicalDeviceSurfaceSupport(d.physical(pd), family, d.surface(surface), &supported)); err != nil {
		return false, err
	}
	return supported.B(), nil
}

// SurfaceFormats implements interface
func (d *Driver) SurfaceFormats(pd gpu.PhysicalDevice, surface gpu.Surface) ([]gpu.SurfaceFormat, error) {
	p, s := d.physical(pd), d.surface(surface)
	var count uint32
	if err := check("vk.GetPhysicalDeviceSurfaceFormats", vk.GetPhysicalDeviceSurfaceFormats(p, s, &count, nil)); err != nil {
		return nil, err
	}
	formats := make([]vk.SurfaceFormat, count)
	if err := check("vk.GetPhysicalDeviceSurfaceFormats", vk.GetPhysicalDeviceSurfaceFormats(p, s, &count, formats)); err != nil {
		return nil, err
	}
	out := make([]gpu.SurfaceFormat, 0, count)
	for _, f := range formats[:count] {
		f.Deref()
		out = append(out, gpu.SurfaceFormat{
			Format:     gpu.Format(f.Format),
			ColorSpace: gpu.ColorSpace(f.ColorSpace),
		})
	}
	return out, nil
}

// PresentModes implements interface
func (d *Driver) PresentModes(pd gpu.PhysicalDevice, surface gpu.Surface) ([]gpu.PresentMode, error) {
	p, s := d.physical(pd), d.surface(surface)
	var count uint32
	if err := check("vk.GetPhysicalDeviceSurfacePresentModes", vk.GetPhysicalDeviceSurfacePresentModes(p, s, &count, nil)); err != nil {
		return nil, err
	}
	modes := make([]vk.PresentMode, count)
	if err := check("vk.GetPhysicalDeviceSurfacePresentModes", vk.GetPhysicalDeviceSurfacePresentModes(p, s, &count, modes)); err != nil {
		return nil, err
	}
	out := make([]gpu.PresentMode, 0, count)
	for _, m := range modes[:count] {
		out = append(out, gpu.PresentMode(m))
	}
	return out, nil
}

func extent(e vk.Extent2D) gpu.Extent {
	e.Deref()
	return gpu.Extent{Width: e.Width, Height: e.Height}
}

// SurfaceCapabilities implements interface
func (d *Driver) SurfaceCapabilities(pd gpu.PhysicalDevice, surface gpu.Surface) (gpu.SurfaceCapabilities, error) {
	var caps vk.SurfaceCapabilities
	if err := check("vk.GetPhysicalDeviceSurfaceCapabilities", vk.GetPhysicalDeviceSurfaceCapabilities(d.physical(pd), d.surface(surface), &caps)); err != nil {
		return gpu.SurfaceCapabilities{}, err
	}
	caps.Deref()
	return gpu.SurfaceCapabilities{
		MinImageCount: caps.MinImageCount,
		MaxImageCount: caps.MaxImageCount,
		CurrentExtent: extent(caps.CurrentExtent),
		MinExtent:     extent(caps.MinImageExtent),
		MaxExtent:     extent(caps.MaxImageExtent),
	}, nil
}

// DeviceExtensions implements interface
func (d *Driver) DeviceExtensions(pd gpu.PhysicalDevice) ([]string, error) {
	p := d.physical(pd)
	var count uint32
	if err := check("vk.EnumerateDeviceExtensionProperties", vk.EnumerateDeviceExtensionProperties(p, "", &count, nil)); err != nil {
		return nil, err
	}
	props := make([]vk.ExtensionProperties, count)
	if err := check("vk.EnumerateDeviceExtensionProperties", vk.EnumerateDeviceExtensionProperties(p, "", &count, props)); err != nil {
		return nil, err
	}
	names := make([]string, 0, count)
	for _, ext := range props[:count] {
		ext.Deref()
		names = append(names, vk.ToString(ext.ExtensionName[:]))
	}
	return names, nil
}

// MemoryProperties implements interface
func (d *Driver) MemoryProperties(pd gpu.PhysicalDevice) gpu.MemoryProperties {
	var mp vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(d.physical(pd), &mp)
	mp.Deref()

	out := gpu.MemoryProperties{
		Types: make([]gpu.MemoryType, 0, mp.MemoryTypeCount),
		Heaps: make([]uint64, 0, mp.MemoryHeapCount),
	}
	for i := uint32(0); i < mp.MemoryTypeCount; i++ {
		mp.MemoryTypes[i].Deref()
		out.Types = append(out.Types, gpu.MemoryType{
			Flags: gpu.MemoryProperty(mp.MemoryTypes[i].PropertyFlags),
			Heap:  mp.MemoryTypes[i].HeapIndex,
		})
	}
	for i := uint32(0); i < mp.MemoryHeapCount; i++ {
		mp.MemoryHeaps[i].Deref()
		out.Heaps = append(out.Heaps, uint64(mp.MemoryHeaps[i].Size))
	}
	return out
}

// Features implements interface. Scalar block layout and descriptor
// indexing are read from the Vulkan 1.2 feature chain and stay off on
// older devices.
func (d *Driver) Features(pd gpu.PhysicalDevice) gpu.Features {
	p := d.physical(pd)
	if !core12(d.Properties(pd)) {
		var f vk.PhysicalDeviceFeatures
		vk.GetPhysicalDeviceFeatures(p, &f)
		f.Deref()
		return gpu.Features{SamplerAnisotropy: f.SamplerAnisotropy.B()}
	}

	features12 := vk.PhysicalDeviceVulkan12Features{
		SType: vk.StructureTypePhysicalDeviceVulkan12Features,
	}
	features := vk.PhysicalDeviceFeatures2{
		SType: vk.StructureTypePhysicalDeviceFeatures2,
		PNext: unsafe.Pointer(&features12),
	}
	vk.GetPhysicalDeviceFeatures2(p, &features)
	features.Deref()
	features.Features.Deref()
	return gpu.Features{
		SamplerAnisotropy:  features.Features.SamplerAnisotropy.B(),
		ScalarBlockLayout:  features12.ScalarBlockLayout.B(),
		DescriptorIndexing: features12.DescriptorIndexing.B(),
	}
}

func core12(props gpu.PhysicalDeviceProperties) bool {
	return props.APIVersion >= vk.MakeVersion(1, 2, 0)
}

// CreateDevice implements interface
func (d *Driver) CreateDevice(pd gpu.PhysicalDevice, info gpu.DeviceInfo) (gpu.Device, error) {
	p := d.physical(pd)
	queueInfos := make([]vk.DeviceQueueCreateInfo, 0, len(info.QueueFamilies))
	for _, family := range info.QueueFamilies {
		queueInfos = append(queueInfos, vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		})
	}
	extensions := safeStrings(info.Extensions)
	layers := safeStrings(info.Layers)

	dci := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
		PEnabledFeatures: []vk.PhysicalDeviceFeatures{{
			SamplerAnisotropy: boolean(info.Features.SamplerAnisotropy),
		}},
	}
	if core12(d.Properties(pd)) && (info.Features.ScalarBlockLayout || info.Features.DescriptorIndexing) {
		dci.PNext = unsafe.Pointer(&vk.PhysicalDeviceVulkan12Features{
			SType:              vk.StructureTypePhysicalDeviceVulkan12Features,
			ScalarBlockLayout:  boolean(info.Features.ScalarBlockLayout),
			DescriptorIndexing: boolean(info.Features.DescriptorIndexing),
		})
	}

	var dev vk.Device
	if err := check("vk.CreateDevice", vk.CreateDevice(p, &dci, nil, &dev)); err != nil {
		return 0, err
	}
	return gpu.Device(d.add(device{handle: dev, physical: p})), nil
}

func (d *Driver) device(h gpu.Device) vk.Device {
	dev, _ := d.get(uint64(h)).(device)
	return dev.handle
}

// DestroyDevice implements interface
func (d *Driver) DestroyDevice(dev gpu.Device) {
	if v, ok := d.take(uint64(dev)).(device); ok {
		d.forget(func(obj interface{}) bool {
			q, ok := obj.(queue)
			return ok && q.device == v.handle
		})
		vk.DestroyDevice(v.handle, nil)
	}
}

// Queue implements interface
func (d *Driver) Queue(dev gpu.Device, family uint32) gpu.Queue {
	v := d.device(dev)
	var q vk.Queue
	vk.GetDeviceQueue(v, family, 0, &q)
	return gpu.Queue(d.add(queue{handle: q, device: v}))
}

func (d *Driver) queue(h gpu.Queue) vk.Queue {
	q, _ := d.get(uint64(h)).(queue)
	return q.handle
}

// DeviceWaitIdle implements interface
func (d *Driver) DeviceWaitIdle(dev gpu.Device) error {
	return check("vk.DeviceWaitIdle", vk.DeviceWaitIdle(d.device(dev)))
}

// QueueWaitIdle implements interface
func (d *Driver) QueueWaitIdle(q gpu.Queue) error {
	return check("vk.QueueWaitIdle", vk.QueueWaitIdle(d.queue(q)))
}
