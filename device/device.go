// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package device builds and owns the GPU device context: instance, debug
// messenger, presentation surface, physical device choice, logical device
// and queues.
package device

import (
	"github.com/devblok/kframe/gpu"
)

// Well known names
const (
	SwapchainExtension   = "VK_KHR_swapchain"
	DebugReportExtension = "VK_EXT_debug_report"
	KhronosValidation    = "VK_LAYER_KHRONOS_validation"
)

// Config is the configuration surface consumed at initialization.
type Config struct {
	// AppName and EngineName are used for diagnostics only.
	AppName    string
	EngineName string

	InstanceExtensions []string
	DeviceExtensions   []string
	ValidationLayers   []string
	EnableValidation   bool
}

// SurfaceProvider is the window collaborator seen by the device context.
type SurfaceProvider interface {
	// Size returns the current drawable size in pixels.
	Size() (width, height uint32)

	// CreateSurface creates a presentation surface bound to instance.
	// The device context takes ownership of the returned surface.
	CreateSurface(instance gpu.Instance) (gpu.Surface, error)
}

// PhysicalDeviceInfo describes available physical properties of a rendering device
type PhysicalDeviceInfo struct {
	ID            int
	VendorID      int
	DriverVersion int
	Name          string
	Type          string
	Invalid       bool
	Extensions    []string
	Memory        uint64
	SampleCount   int
}

// Enumerate describes every physical device visible to instance.
func Enumerate(drv gpu.Driver, instance gpu.Instance) ([]PhysicalDeviceInfo, error) {
	pds, err := drv.PhysicalDevices(instance)
	if err != nil {
		return nil, err
	}

	pdi := make([]PhysicalDeviceInfo, len(pds))
	for i, pd := range pds {
		if exts, err := drv.DeviceExtensions(pd); err != nil {
			pdi[i].Invalid = true
		} else {
			pdi[i].Extensions = exts
		}

		for _, heap := range drv.MemoryProperties(pd).Heaps {
			pdi[i].Memory += heap
		}

		props := drv.Properties(pd)
		pdi[i].ID = int(props.DeviceID)
		pdi[i].VendorID = int(props.VendorID)
		pdi[i].Name = props.Name
		pdi[i].Type = props.Type.String()
		pdi[i].DriverVersion = int(props.DriverVersion)
		pdi[i].SampleCount = int(MaxSampleCount(props))
	}
	return pdi, nil
}

// Probe creates a bare instance, describes its physical devices and destroys it again.
func Probe(drv gpu.Driver, cfg Config) ([]PhysicalDeviceInfo, error) {
	if err := drv.Load(); err != nil {
		return nil, initError(StageLoad, "", err)
	}
	instance, err := drv.CreateInstance(gpu.InstanceInfo{
		AppName:    cfg.AppName,
		EngineName: cfg.EngineName,
		Extensions: cfg.InstanceExtensions,
	})
	if err != nil {
		return nil, initError(StageInstance, cfg.AppName, err)
	}
	defer drv.DestroyInstance(instance)
	return Enumerate(drv, instance)
}
