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

// New builds the device context. It loads the driver, checks validation
// layers, creates the instance, debug messenger and surface, selects the
// first suitable physical device and creates the logical device and queues.
// On failure every object created so far is destroyed and an *InitError is returned.
func New(drv gpu.Driver, cfg Config, win SurfaceProvider) (*Context, error) {
	c := &Context{
		drv:    drv,
		cfg:    cfg,
		window: win,
		logger: log.WithField("app", cfg.AppName),
	}
	if err := c.initialise(); err != nil {
		c.Release()
		return nil, err
	}
	return c, nil
}

// Context owns the GPU handle, the logical device and its queues.
// It is created once and released last, after every dependent resource.
type Context struct {
	drv    gpu.Driver
	cfg    Config
	window SurfaceProvider
	logger log.FieldLogger

	instance       gpu.Instance
	debugMessenger gpu.DebugMessenger
	surface        gpu.Surface
	physicalDevice gpu.PhysicalDevice
	device         gpu.Device

	graphicsQueue  gpu.Queue
	presentQueue   gpu.Queue
	graphicsFamily uint32
	presentFamily  uint32

	properties  gpu.PhysicalDeviceProperties
	features    gpu.Features
	sampleCount gpu.SampleCount
	size        gpu.Extent
}

func (c *Context) initialise() error {
	/* Driver entry points */
	if err := c.drv.Load(); err != nil {
		return initError(StageLoad, "", err)
	}

	/* Validation layers */
	var layers []string
	extensions := append([]string(nil), c.cfg.InstanceExtensions...)
	if c.cfg.EnableValidation {
		if err := CheckLayers(c.drv, c.cfg.ValidationLayers); err != nil {
			return err
		}
		layers = c.cfg.ValidationLayers
		if !contains(extensions, DebugReportExtension) {
			extensions = append(extensions, DebugReportExtension)
		}
	}

	/* Instance */
	instance, err := c.drv.CreateInstance(gpu.InstanceInfo{
		AppName:    c.cfg.AppName,
		EngineName: c.cfg.EngineName,
		Extensions: extensions,
		Layers:     layers,
	})
	if err != nil {
		return initError(StageInstance, c.cfg.AppName, err)
	}
	c.instance = instance

	if c.cfg.EnableValidation {
		sink := DebugSink{Logger: c.logger}
		messenger, err := c.drv.CreateDebugMessenger(instance, sink.Handle)
		if err != nil {
			return initError(StageDebug, DebugReportExtension, err)
		}
		c.debugMessenger = messenger
	}

	/* Surface */
	surface, err := c.window.CreateSurface(instance)
	if err != nil {
		return initError(StageSurface, "window", err)
	}
	if surface == 0 {
		return initError(StageSurface, "window", ErrNoSurface)
	}
	c.surface = surface
	width, height := c.window.Size()
	c.size = gpu.Extent{Width: width, Height: height}

	/* Physical device */
	if err := c.pickPhysicalDevice(); err != nil {
		return err
	}
	c.sampleCount = MaxSampleCount(c.properties)

	/* Logical device */
	return c.createLogicalDevice(layers)
}

func (c *Context) createLogicalDevice(layers []string) error {
	families := []uint32{c.graphicsFamily}
	if c.presentFamily != c.graphicsFamily {
		families = append(families, c.presentFamily)
	}

	queried := c.drv.Features(c.physicalDevice)
	c.features = gpu.Features{
		SamplerAnisotropy:  queried.SamplerAnisotropy,
		ScalarBlockLayout:  queried.ScalarBlockLayout,
		DescriptorIndexing: queried.DescriptorIndexing,
	}

	dev, err := c.drv.CreateDevice(c.physicalDevice, gpu.DeviceInfo{
		QueueFamilies: families,
		Extensions:    requiredDeviceExtensions(c.cfg.DeviceExtensions),
		Layers:        layers,
		Features:      c.features,
	})
	if err != nil {
		return initError(StageDevice, c.properties.Name, err)
	}
	c.device = dev

	c.graphicsQueue = c.drv.Queue(dev, c.graphicsFamily)
	c.presentQueue = c.drv.Queue(dev, c.presentFamily)

	c.logger.WithFields(log.Fields{
		"device":         c.properties.Name,
		"type":           c.properties.Type,
		"graphicsFamily": c.graphicsFamily,
		"presentFamily":  c.presentFamily,
		"samples":        c.sampleCount,
		"size":           c.size,
	}).Info("device context ready")
	return nil
}

// CheckLayers verifies that every requested layer can be enabled.
func CheckLayers(drv gpu.Driver, requested []string) error {
	available, err := drv.InstanceLayers()
	if err != nil {
		return initError(StageLayers, "", err)
	}
	for _, name := range requested {
		if !contains(available, name) {
			return initError(StageLayers, name, errors.Wrapf(ErrLayerNotAvailable, "layer %s", name))
		}
	}
	return nil
}

// WaitIdle blocks until the device and then the graphics queue are idle.
func (c *Context) WaitIdle() error {
	if err := c.drv.DeviceWaitIdle(c.device); err != nil {
		return errors.Wrap(err, "wait device idle")
	}
	if err := c.drv.QueueWaitIdle(c.graphicsQueue); err != nil {
		return errors.Wrap(err, "wait graphics queue idle")
	}
	return nil
}

// Release destroys the logical device, debug messenger, surface and instance, in that order.
// Every object created from the device must have been released before.
func (c *Context) Release() {
	if c == nil {
		return
	}
	if c.device != 0 {
		c.drv.DestroyDevice(c.device)
		c.device = 0
		c.graphicsQueue = 0
		c.presentQueue = 0
	}
	if c.debugMessenger != 0 {
		c.drv.DestroyDebugMessenger(c.instance, c.debugMessenger)
		c.debugMessenger = 0
	}
	if c.surface != 0 {
		c.drv.DestroySurface(c.instance, c.surface)
		c.surface = 0
	}
	if c.instance != 0 {
		c.drv.DestroyInstance(c.instance)
		c.instance = 0
	}
}

// Driver returns the driver the context was created with.
func (c *Context) Driver() gpu.Driver { return c.drv }

// Config returns the configuration the context was created with.
func (c *Context) Config() Config { return c.cfg }

// Window returns the window collaborator.
func (c *Context) Window() SurfaceProvider { return c.window }

// Instance returns the instance handle.
func (c *Context) Instance() gpu.Instance { return c.instance }

// Surface returns the presentation surface.
func (c *Context) Surface() gpu.Surface { return c.surface }

// PhysicalDevice returns the selected physical device.
func (c *Context) PhysicalDevice() gpu.PhysicalDevice { return c.physicalDevice }

// Device returns the logical device.
func (c *Context) Device() gpu.Device { return c.device }

// GraphicsQueue returns the graphics queue.
func (c *Context) GraphicsQueue() gpu.Queue { return c.graphicsQueue }

// PresentQueue returns the present queue, possibly the same as the graphics queue.
func (c *Context) PresentQueue() gpu.Queue { return c.presentQueue }

// GraphicsFamily returns the graphics queue family index.
func (c *Context) GraphicsFamily() uint32 { return c.graphicsFamily }

// PresentFamily returns the present queue family index.
func (c *Context) PresentFamily() uint32 { return c.presentFamily }

// SampleCount returns the highest sample count usable for colour and depth.
func (c *Context) SampleCount() gpu.SampleCount { return c.sampleCount }

// Properties returns the properties of the selected physical device.
func (c *Context) Properties() gpu.PhysicalDeviceProperties { return c.properties }

// Features returns the features enabled on the logical device.
func (c *Context) Features() gpu.Features { return c.features }

// Size returns the render size recorded from the window at creation.
func (c *Context) Size() gpu.Extent { return c.size }

// Logger returns the context's logger.
func (c *Context) Logger() log.FieldLogger { return c.logger }
