// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package window provides an SDL window that can present Vulkan surfaces.
package window

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"

	"github.com/devblok/kframe/gpu"
	"github.com/devblok/kframe/gpu/vulkan"
)

// Init starts the SDL video and event subsystems and loads the Vulkan
// library SDL will hand out entry points from. The returned func undoes both.
func Init() (func(), error) {
	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		return nil, errors.Wrap(err, "sdl.Init()")
	}
	if err := sdl.VulkanLoadLibrary(""); err != nil {
		sdl.Quit()
		return nil, errors.Wrap(err, "sdl.VulkanLoadLibrary()")
	}
	return func() {
		sdl.VulkanUnloadLibrary()
		sdl.Quit()
	}, nil
}

// Driver returns a Vulkan driver resolving entry points through SDL.
func Driver() *vulkan.Driver {
	return vulkan.New(sdl.VulkanGetVkGetInstanceProcAddr())
}

// Window is a resizable SDL window.
type Window struct {
	window *sdl.Window
	drv    *vulkan.Driver
}

// New opens a window of the given size.
func New(drv *vulkan.Driver, title string, width, height uint32) (*Window, error) {
	w, err := sdl.CreateWindow(title,
		sdl.WINDOWPOS_UNDEFINED,
		sdl.WINDOWPOS_UNDEFINED,
		int32(width),
		int32(height),
		sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		return nil, errors.Wrap(err, "sdl.CreateWindow()")
	}
	return &Window{
		window: w,
		drv:    drv,
	}, nil
}

// Size returns the drawable size, zero while minimized.
func (w *Window) Size() (uint32, uint32) {
	if w.window.GetFlags()&uint32(sdl.WINDOW_MINIMIZED) != 0 {
		return 0, 0
	}
	width, height := w.window.VulkanGetDrawableSize()
	if width < 0 || height < 0 {
		return 0, 0
	}
	return uint32(width), uint32(height)
}

// InstanceExtensions lists the instance extensions surfaces of this window need.
func (w *Window) InstanceExtensions() []string {
	return w.window.VulkanGetInstanceExtensions()
}

// CreateSurface implements device.SurfaceProvider
func (w *Window) CreateSurface(instance gpu.Instance) (gpu.Surface, error) {
	ptr, err := w.window.VulkanCreateSurface(w.drv.RawInstance(instance))
	if err != nil {
		return 0, errors.Wrap(err, "sdl.VulkanCreateSurface()")
	}
	return w.drv.ImportSurface(ptr), nil
}

// Destroy closes the window.
func (w *Window) Destroy() {
	if err := w.window.Destroy(); err != nil {
		log.WithError(err).Warn("destroy window")
	}
}

// Events is what happened since the last poll.
type Events struct {
	Quit    bool
	Resized bool
	Width   uint32
	Height  uint32
}

// Poll drains the SDL event queue.
func (w *Window) Poll() Events {
	var ev Events
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		translate(event, &ev)
	}
	return ev
}

func translate(event sdl.Event, ev *Events) {
	switch et := event.(type) {
	case *sdl.QuitEvent:
		ev.Quit = true
	case *sdl.KeyboardEvent:
		if et.Keysym.Sym == sdl.K_ESCAPE {
			ev.Quit = true
		}
	case *sdl.WindowEvent:
		switch et.Event {
		case sdl.WINDOWEVENT_RESIZED, sdl.WINDOWEVENT_SIZE_CHANGED:
			ev.Resized = true
			if et.Data1 > 0 && et.Data2 > 0 {
				ev.Width, ev.Height = uint32(et.Data1), uint32(et.Data2)
			}
		case sdl.WINDOWEVENT_MINIMIZED, sdl.WINDOWEVENT_RESTORED:
			ev.Resized = true
		case sdl.WINDOWEVENT_CLOSE:
			ev.Quit = true
		}
	}
}
