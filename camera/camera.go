// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package camera holds the view and projection state that follows the
// render size. It is handed resize notifications by the frame loop.
package camera

import (
	"sync"

	glm "github.com/go-gl/mathgl/mgl32"

	"github.com/devblok/kframe/gpu"
)

// Uniform defines a view-projection object as laid out for shaders
type Uniform struct {
	View       glm.Mat4
	Projection glm.Mat4
}

// New creates a camera with a vertical field of view in degrees and
// near and far clip planes. It looks from (2, 2, 2) at the origin until
// LookAt is called.
func New(fovY, near, far float32) *Camera {
	c := &Camera{
		fovY: fovY,
		near: near,
		far:  far,
		view: glm.LookAt(2, 2, 2, 0, 0, 0, 0, 0, 1),
	}
	c.projection = c.perspective(1)
	return c
}

// Camera is a perspective camera.
// It is safe to read from other goroutines while the loop resizes it.
type Camera struct {
	mutex sync.RWMutex

	fovY, near, far float32
	extent          gpu.Extent

	view       glm.Mat4
	projection glm.Mat4
}

func (c *Camera) perspective(aspect float32) glm.Mat4 {
	p := glm.Perspective(glm.DegToRad(c.fovY), aspect, c.near, c.far)
	p[5] *= -1 // Flip from OpenGl to Vulkan projection
	return p
}

// OnResize rebuilds the projection for the new aspect ratio.
func (c *Camera) OnResize(extent gpu.Extent) {
	if extent.Empty() {
		return
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.extent = extent
	c.projection = c.perspective(float32(extent.Width) / float32(extent.Height))
}

// LookAt points the camera from eye at center.
func (c *Camera) LookAt(eye, center, up glm.Vec3) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.view = glm.LookAtV(eye, center, up)
}

// Extent returns the last size the camera was resized to.
func (c *Camera) Extent() gpu.Extent {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.extent
}

// Projection returns the projection matrix.
func (c *Camera) Projection() glm.Mat4 {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.projection
}

// View returns the view matrix.
func (c *Camera) View() glm.Mat4 {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.view
}

// Uniform returns view and projection together.
func (c *Camera) Uniform() Uniform {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return Uniform{
		View:       c.view,
		Projection: c.projection,
	}
}
