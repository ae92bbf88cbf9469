// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package device

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/devblok/kframe/gpu"
)

// requiredGraphicsFlags must all be set on the graphics family.
const requiredGraphicsFlags = gpu.QueueGraphics | gpu.QueueCompute | gpu.QueueTransfer

func (c *Context) pickPhysicalDevice() error {
	pds, err := c.drv.PhysicalDevices(c.instance)
	if err != nil {
		return initError(StageSelect, "", err)
	}
	if len(pds) == 0 {
		return initError(StageSelect, "", errors.Wrap(ErrNoSuitableGPU, "no physical devices"))
	}

	extensions := requiredDeviceExtensions(c.cfg.DeviceExtensions)
	for _, pd := range pds {
		props := c.drv.Properties(pd)
		graphics, present, reason := Suitable(c.drv, pd, c.surface, extensions)
		if reason != "" {
			c.logger.WithFields(log.Fields{
				"device": props.Name,
				"reason": reason,
			}).Debug("physical device rejected")
			continue
		}
		c.physicalDevice = pd
		c.properties = props
		c.graphicsFamily = graphics
		c.presentFamily = present
		return nil
	}
	return initError(StageSelect, "", ErrNoSuitableGPU)
}

// Suitable checks pd against surface and the required device extensions.
// It returns the graphics and present family indices, or a non-empty reason
// the device cannot be used.
func Suitable(drv gpu.Driver, pd gpu.PhysicalDevice, surface gpu.Surface, extensions []string) (graphics, present uint32, reason string) {
	formats, err := drv.SurfaceFormats(pd, surface)
	if err != nil || len(formats) == 0 {
		return 0, 0, "no surface formats"
	}
	modes, err := drv.PresentModes(pd, surface)
	if err != nil || len(modes) == 0 {
		return 0, 0, "no present modes"
	}

	available, err := drv.DeviceExtensions(pd)
	if err != nil {
		return 0, 0, "cannot list extensions"
	}
	for _, ext := range extensions {
		if !contains(available, ext) {
			return 0, 0, "missing extension " + ext
		}
	}

	var haveGraphics, havePresent bool
	for i, family := range drv.QueueFamilies(pd) {
		index := uint32(i)
		if !haveGraphics && family.Count > 0 && family.Flags&requiredGraphicsFlags == requiredGraphicsFlags {
			graphics, haveGraphics = index, true
		}
	}
	if !haveGraphics {
		return 0, 0, "no graphics queue family"
	}

	// Presenting from the graphics family avoids ownership transfers.
	if ok, err := drv.SurfaceSupport(pd, graphics, surface); err == nil && ok {
		present, havePresent = graphics, true
	} else {
		for i := range drv.QueueFamilies(pd) {
			if ok, err := drv.SurfaceSupport(pd, uint32(i), surface); err == nil && ok {
				present, havePresent = uint32(i), true
				break
			}
		}
	}
	if !havePresent {
		return 0, 0, "no present queue family"
	}
	return graphics, present, ""
}

// MaxSampleCount returns the highest sample count supported for both colour and depth.
func MaxSampleCount(props gpu.PhysicalDeviceProperties) gpu.SampleCount {
	counts := props.ColorSampleCounts & props.DepthSampleCounts
	for _, c := range []gpu.SampleCount{
		gpu.SampleCount64,
		gpu.SampleCount32,
		gpu.SampleCount16,
		gpu.SampleCount8,
		gpu.SampleCount4,
		gpu.SampleCount2,
	} {
		if counts&c != 0 {
			return c
		}
	}
	return gpu.SampleCount1
}

func requiredDeviceExtensions(extra []string) []string {
	exts := []string{SwapchainExtension}
	for _, e := range extra {
		if !contains(exts, e) {
			exts = append(exts, e)
		}
	}
	return exts
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
