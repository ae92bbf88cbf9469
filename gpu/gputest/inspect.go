// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gputest

import (
	"github.com/devblok/kframe/gpu"
)

// Log returns the creation and destruction log.
func (d *Driver) Log() []Entry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Entry(nil), d.log...)
}

// Destroyed returns the destruction entries of the log from position from onwards.
func (d *Driver) Destroyed(from int) []Entry {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Entry
	for _, e := range d.log[from:] {
		if e.Op == OpDestroy {
			out = append(out, e)
		}
	}
	return out
}

// Violations returns every lifetime misuse seen so far.
func (d *Driver) Violations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.violations...)
}

// Calls returns the number of driver calls made so far.
func (d *Driver) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// Deadlocks counts fence waits on fences that no pending work would ever signal.
func (d *Driver) Deadlocks() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.deadlocks
}

// Waits counts WaitForFence calls.
func (d *Driver) Waits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.waits
}

// Live returns the handles of live objects of kind, in creation order.
func (d *Driver) Live(kind Kind) []uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []uint64
	for _, o := range d.sorted() {
		if o.kind == kind && o.alive && !o.implicit {
			out = append(out, o.handle)
		}
	}
	return out
}

// Created counts objects of kind created so far.
func (d *Driver) Created(kind Kind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, e := range d.log {
		if e.Op == OpCreate && e.Kind == kind {
			n++
		}
	}
	return n
}

// Alive reports whether the object behind handle h is alive.
func (d *Driver) Alive(h uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, ok := d.objects[h]
	return ok && o.alive
}

// Submissions returns every queue submission.
func (d *Driver) Submissions() []Submission {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Submission(nil), d.submits...)
}

// Presents returns every presentation request.
func (d *Driver) Presents() []gpu.PresentInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]gpu.PresentInfo(nil), d.presents...)
}

// Barriers returns every recorded image barrier.
func (d *Driver) Barriers() []Barrier {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Barrier(nil), d.barriers...)
}

// RenderPassBegins returns every recorded render pass begin.
func (d *Driver) RenderPassBegins() []gpu.RenderPassBegin {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]gpu.RenderPassBegin(nil), d.begins...)
}

// ImageInfo returns the creation info of an image.
func (d *Driver) ImageInfo(image gpu.Image) gpu.ImageInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	if o, ok := d.objects[uint64(image)]; ok {
		return o.image
	}
	return gpu.ImageInfo{}
}

// BoundMemory returns the memory bound to an image.
func (d *Driver) BoundMemory(image gpu.Image) gpu.Memory {
	d.mu.Lock()
	defer d.mu.Unlock()
	if o, ok := d.objects[uint64(image)]; ok {
		return gpu.Memory(o.bound)
	}
	return 0
}

// ViewInfo returns the creation info of an image view.
func (d *Driver) ViewInfo(view gpu.ImageView) gpu.ImageViewInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	if o, ok := d.objects[uint64(view)]; ok {
		return o.view
	}
	return gpu.ImageViewInfo{}
}

// FramebufferInfo returns the creation info of a framebuffer.
func (d *Driver) FramebufferInfo(fb gpu.Framebuffer) gpu.FramebufferInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	if o, ok := d.objects[uint64(fb)]; ok {
		return o.fb
	}
	return gpu.FramebufferInfo{}
}

// RenderPassInfo returns the creation info of a render pass.
func (d *Driver) RenderPassInfo(pass gpu.RenderPass) gpu.RenderPassInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	if o, ok := d.objects[uint64(pass)]; ok {
		return o.pass
	}
	return gpu.RenderPassInfo{}
}

// SwapchainInfo returns the creation info of a swapchain.
func (d *Driver) SwapchainInfo(swapchain gpu.Swapchain) gpu.SwapchainInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	if o, ok := d.objects[uint64(swapchain)]; ok && o.swapchain != nil {
		return o.swapchain.info
	}
	return gpu.SwapchainInfo{}
}

// DeviceInfo returns the creation info of a logical device.
func (d *Driver) DeviceInfo(dev gpu.Device) gpu.DeviceInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	if o, ok := d.objects[uint64(dev)]; ok {
		return o.device
	}
	return gpu.DeviceInfo{}
}

// Window is a headless window collaborator backed by the driver.
type Window struct {
	Driver *Driver
	Width  uint32
	Height uint32
	// Err makes CreateSurface fail.
	Err error
}

// NewWindow returns a headless window of the given size.
func NewWindow(d *Driver, width, height uint32) *Window {
	return &Window{Driver: d, Width: width, Height: height}
}

// Size implements interface
func (w *Window) Size() (uint32, uint32) {
	return w.Width, w.Height
}

// CreateSurface implements interface
func (w *Window) CreateSurface(instance gpu.Instance) (gpu.Surface, error) {
	if w.Err != nil {
		return 0, w.Err
	}
	return w.Driver.NewSurface(instance)
}

// Resize changes the reported window size.
func (w *Window) Resize(width, height uint32) {
	w.Width, w.Height = width, height
}
