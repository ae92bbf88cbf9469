// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/devblok/kframe/gpu"
)

func TestChoosePresentMode(t *testing.T) {
	c := qt.New(t)
	all := []gpu.PresentMode{gpu.PresentModeFifo, gpu.PresentModeImmediate, gpu.PresentModeMailbox}

	for _, test := range []struct {
		name  string
		modes []gpu.PresentMode
		vsync bool
		want  gpu.PresentMode
	}{
		{"vsync", all, true, gpu.PresentModeFifo},
		{"mailbox first", all, false, gpu.PresentModeMailbox},
		{"immediate without mailbox", []gpu.PresentMode{gpu.PresentModeFifo, gpu.PresentModeImmediate}, false, gpu.PresentModeImmediate},
		{"fifo only", []gpu.PresentMode{gpu.PresentModeFifo}, false, gpu.PresentModeFifo},
		{"relaxed is never picked", []gpu.PresentMode{gpu.PresentModeFifoRelaxed, gpu.PresentModeFifo}, false, gpu.PresentModeFifo},
	} {
		c.Run(test.name, func(c *qt.C) {
			c.Assert(choosePresentMode(test.modes, test.vsync), qt.Equals, test.want)
		})
	}
}

func TestChooseExtent(t *testing.T) {
	c := qt.New(t)
	caps := gpu.SurfaceCapabilities{
		CurrentExtent: gpu.Extent{Width: gpu.UndefinedExtent, Height: gpu.UndefinedExtent},
		MinExtent:     gpu.Extent{Width: 64, Height: 64},
		MaxExtent:     gpu.Extent{Width: 2048, Height: 2048},
	}

	c.Assert(chooseExtent(caps, gpu.Extent{Width: 800, Height: 600}), qt.Equals, gpu.Extent{Width: 800, Height: 600})
	c.Assert(chooseExtent(caps, gpu.Extent{Width: 10, Height: 4000}), qt.Equals, gpu.Extent{Width: 64, Height: 2048})

	caps.CurrentExtent = gpu.Extent{Width: 1024, Height: 768}
	c.Assert(chooseExtent(caps, gpu.Extent{Width: 800, Height: 600}), qt.Equals, gpu.Extent{Width: 1024, Height: 768})
}

func TestChooseSurfaceFormat(t *testing.T) {
	c := qt.New(t)
	srgb := gpu.SurfaceFormat{Format: gpu.FormatB8G8R8A8Srgb, ColorSpace: gpu.ColorSpaceSrgbNonlinear}
	unorm := gpu.SurfaceFormat{Format: gpu.FormatB8G8R8A8Unorm, ColorSpace: gpu.ColorSpaceSrgbNonlinear}

	c.Assert(chooseSurfaceFormat([]gpu.SurfaceFormat{srgb, unorm}, gpu.FormatUndefined), qt.Equals, unorm)
	c.Assert(chooseSurfaceFormat([]gpu.SurfaceFormat{srgb, unorm}, gpu.FormatB8G8R8A8Srgb), qt.Equals, srgb)
	c.Assert(chooseSurfaceFormat([]gpu.SurfaceFormat{srgb}, gpu.FormatUndefined), qt.Equals, srgb)

	free := []gpu.SurfaceFormat{{Format: gpu.FormatUndefined, ColorSpace: gpu.ColorSpaceSrgbNonlinear}}
	c.Assert(chooseSurfaceFormat(free, gpu.FormatUndefined), qt.Equals, unorm)
}

func TestChooseImageCount(t *testing.T) {
	c := qt.New(t)
	caps := gpu.SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 4}

	c.Assert(chooseImageCount(caps, 0), qt.Equals, uint32(3))
	c.Assert(chooseImageCount(caps, 1), qt.Equals, uint32(2))
	c.Assert(chooseImageCount(caps, 3), qt.Equals, uint32(3))
	c.Assert(chooseImageCount(caps, 9), qt.Equals, uint32(4))

	caps.MaxImageCount = 0
	c.Assert(chooseImageCount(caps, 9), qt.Equals, uint32(9))
}

func TestFindMemoryType(t *testing.T) {
	c := qt.New(t)
	memory := gpu.MemoryProperties{
		Types: []gpu.MemoryType{
			{Flags: gpu.MemoryHostVisible | gpu.MemoryHostCoherent},
			{Flags: gpu.MemoryDeviceLocal},
			{Flags: gpu.MemoryDeviceLocal | gpu.MemoryHostVisible},
		},
	}

	idx, err := FindMemoryType(memory, 0x7, gpu.MemoryDeviceLocal)
	c.Assert(err, qt.IsNil)
	c.Assert(idx, qt.Equals, uint32(1))

	idx, err = FindMemoryType(memory, 0x5, gpu.MemoryDeviceLocal)
	c.Assert(err, qt.IsNil)
	c.Assert(idx, qt.Equals, uint32(2))

	_, err = FindMemoryType(memory, 0x1, gpu.MemoryDeviceLocal)
	c.Assert(err, qt.Equals, ErrNoSuitableMemoryType)
}
