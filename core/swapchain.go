// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/devblok/kframe/device"
	"github.com/devblok/kframe/gpu"
)

// SwapchainConfig configures the presentable surface.
type SwapchainConfig struct {
	Size gpu.Extent
	// ImageCount is the requested number of images, clamped to what the
	// surface allows. Zero asks for one more than the surface minimum.
	ImageCount      uint32
	PreferredFormat gpu.Format
	VSync           bool

	// AcquireTimeout bounds one acquisition attempt.
	AcquireTimeout time.Duration
	// MaxAcquireRetries bounds timed out attempts, zero means unbounded.
	MaxAcquireRetries int
}

// NewSwapchain chooses the colour format for the context's surface and
// builds the first swapchain.
func NewSwapchain(ctx *device.Context, cfg SwapchainConfig) (*Swapchain, error) {
	drv := ctx.Driver()
	formats, err := drv.SurfaceFormats(ctx.PhysicalDevice(), ctx.Surface())
	if err != nil {
		return nil, errors.Wrap(err, "query surface formats")
	}
	if len(formats) == 0 {
		return nil, errors.New("surface reports no formats")
	}
	format := chooseSurfaceFormat(formats, cfg.PreferredFormat)

	s := &Swapchain{
		drv:            drv,
		dev:            ctx.Device(),
		physicalDevice: ctx.PhysicalDevice(),
		surface:        ctx.Surface(),
		cfg:            cfg,
		format:         format.Format,
		colorSpace:     format.ColorSpace,
		logger:         ctx.Logger().WithField("component", "swapchain"),
	}
	if ctx.GraphicsFamily() != ctx.PresentFamily() {
		s.families = []uint32{ctx.GraphicsFamily(), ctx.PresentFamily()}
	}

	if err := s.Update(cfg.Size, cfg.VSync); err != nil {
		return nil, err
	}
	return s, nil
}

// Swapchain is the set of presentable images with a view and a
// (read, written) semaphore pair per image.
type Swapchain struct {
	drv            gpu.Driver
	dev            gpu.Device
	physicalDevice gpu.PhysicalDevice
	surface        gpu.Surface
	families       []uint32
	cfg            SwapchainConfig
	logger         log.FieldLogger

	handle      gpu.Swapchain
	format      gpu.Format
	colorSpace  gpu.ColorSpace
	presentMode gpu.PresentMode
	extent      gpu.Extent
	vsync       bool
	imageCount  int

	images  []gpu.Image
	views   []gpu.ImageView
	read    []gpu.Semaphore
	written []gpu.Semaphore

	active    uint32
	semaphore int
	acquired  bool
}

func chooseSurfaceFormat(formats []gpu.SurfaceFormat, preferred gpu.Format) gpu.SurfaceFormat {
	if preferred == gpu.FormatUndefined {
		preferred = gpu.FormatB8G8R8A8Unorm
	}
	if len(formats) == 1 && formats[0].Format == gpu.FormatUndefined {
		return gpu.SurfaceFormat{Format: preferred, ColorSpace: formats[0].ColorSpace}
	}
	for _, f := range formats {
		if f.Format == preferred {
			return f
		}
	}
	return formats[0]
}

func choosePresentMode(modes []gpu.PresentMode, vsync bool) gpu.PresentMode {
	if vsync {
		return gpu.PresentModeFifo
	}
	for _, want := range []gpu.PresentMode{gpu.PresentModeMailbox, gpu.PresentModeImmediate} {
		for _, m := range modes {
			if m == want {
				return m
			}
		}
	}
	return gpu.PresentModeFifo
}

func chooseExtent(caps gpu.SurfaceCapabilities, size gpu.Extent) gpu.Extent {
	if caps.CurrentExtent.Width != gpu.UndefinedExtent {
		return caps.CurrentExtent
	}
	return size.Clamp(caps.MinExtent, caps.MaxExtent)
}

func chooseImageCount(caps gpu.SurfaceCapabilities, requested uint32) uint32 {
	if requested == 0 {
		requested = caps.MinImageCount + 1
	}
	if requested < caps.MinImageCount {
		requested = caps.MinImageCount
	}
	if caps.MaxImageCount > 0 && requested > caps.MaxImageCount {
		requested = caps.MaxImageCount
	}
	return requested
}

// Update rebuilds the swapchain for size, reusing the previous chain as the
// old chain. The previous views, semaphores and chain are destroyed after
// the new ones exist. The image count never changes after creation.
func (s *Swapchain) Update(size gpu.Extent, vsync bool) error {
	caps, err := s.drv.SurfaceCapabilities(s.physicalDevice, s.surface)
	if err != nil {
		return errors.Wrap(err, "query surface capabilities")
	}
	extent := chooseExtent(caps, size)
	if extent.Empty() {
		return errors.Errorf("swapchain extent %dx%d is empty", extent.Width, extent.Height)
	}

	modes, err := s.drv.PresentModes(s.physicalDevice, s.surface)
	if err != nil {
		return errors.Wrap(err, "query present modes")
	}
	presentMode := choosePresentMode(modes, vsync)

	minImages := uint32(s.imageCount)
	if minImages == 0 {
		minImages = chooseImageCount(caps, s.cfg.ImageCount)
	}

	old := s.handle
	handle, err := s.drv.CreateSwapchain(s.dev, gpu.SwapchainInfo{
		Surface:       s.surface,
		MinImageCount: minImages,
		Format:        s.format,
		ColorSpace:    s.colorSpace,
		Extent:        extent,
		PresentMode:   presentMode,
		QueueFamilies: s.families,
		Old:           old,
	})
	if err != nil {
		return err
	}

	images, err := s.drv.SwapchainImages(s.dev, handle)
	if err != nil {
		s.drv.DestroySwapchain(s.dev, handle)
		return err
	}
	if s.imageCount != 0 && len(images) != s.imageCount {
		s.drv.DestroySwapchain(s.dev, handle)
		return errors.Wrapf(ErrImageCountChanged, "had %d images, got %d", s.imageCount, len(images))
	}

	views, read, written, err := s.createPerImage(images)
	if err != nil {
		s.drv.DestroySwapchain(s.dev, handle)
		return err
	}

	s.releaseSemaphores()
	s.releaseViews()
	if old != 0 {
		s.drv.DestroySwapchain(s.dev, old)
	}

	s.handle = handle
	s.images = images
	s.views = views
	s.read = read
	s.written = written
	s.imageCount = len(images)
	s.extent = extent
	s.presentMode = presentMode
	s.vsync = vsync
	s.semaphore = 0
	s.acquired = false

	s.logger.WithFields(log.Fields{
		"extent":      extent,
		"images":      s.imageCount,
		"presentMode": presentMode,
		"format":      s.format,
	}).Debug("swapchain updated")
	return nil
}

func (s *Swapchain) createPerImage(images []gpu.Image) (views []gpu.ImageView, read, written []gpu.Semaphore, err error) {
	defer func() {
		if err == nil {
			return
		}
		for _, v := range views {
			s.drv.DestroyImageView(s.dev, v)
		}
		for _, sem := range append(read, written...) {
			s.drv.DestroySemaphore(s.dev, sem)
		}
		views, read, written = nil, nil, nil
	}()

	for idx, image := range images {
		view, err := s.drv.CreateImageView(s.dev, gpu.ImageViewInfo{
			Image:  image,
			Format: s.format,
			Aspect: gpu.AspectColor,
		})
		if err != nil {
			return views, read, written, errors.Wrapf(err, "swapchain view %d", idx)
		}
		views = append(views, view)

		r, err := s.drv.CreateSemaphore(s.dev)
		if err != nil {
			return views, read, written, err
		}
		read = append(read, r)

		w, err := s.drv.CreateSemaphore(s.dev)
		if err != nil {
			return views, read, written, err
		}
		written = append(written, w)
	}
	return views, read, written, nil
}

// Acquire asks the presentation engine for the next image, signalling the
// active read semaphore. Timeouts are retried until MaxAcquireRetries is
// reached or ctx is done.
func (s *Swapchain) Acquire(ctx context.Context) (Status, error) {
	if s.acquired {
		return StatusOK, errors.Wrap(ErrState, "image already acquired")
	}
	timeout := s.cfg.AcquireTimeout
	if timeout <= 0 {
		timeout = DefaultAcquireTimeout
	}

	for attempt := 1; ; attempt++ {
		idx, r := s.drv.AcquireNextImage(s.dev, s.handle, timeout, s.read[s.semaphore])
		switch r {
		case gpu.Success:
			s.active, s.acquired = idx, true
			return StatusOK, nil
		case gpu.Suboptimal:
			s.active, s.acquired = idx, true
			return StatusSuboptimal, nil
		case gpu.ErrorOutOfDate:
			return StatusOutOfDate, nil
		case gpu.Timeout, gpu.NotReady:
			if s.cfg.MaxAcquireRetries > 0 && attempt >= s.cfg.MaxAcquireRetries {
				return StatusOK, errors.Wrapf(ErrAcquire, "timed out %d times", attempt)
			}
			if err := ctx.Err(); err != nil {
				return StatusOK, errors.Wrap(err, "acquire")
			}
			s.logger.WithField("attempt", attempt).Debug("image acquisition timed out, retrying")
		default:
			return StatusOK, errors.Wrapf(ErrAcquire, "%s", &gpu.Error{Call: "vk.AcquireNextImage", Result: r})
		}
	}
}

// abandon gives up an image acquired for a frame that is skipped. The read
// semaphore the acquire signals is replaced, since nothing will wait on it.
func (s *Swapchain) abandon() error {
	if !s.acquired {
		return nil
	}
	if err := s.drv.DeviceWaitIdle(s.dev); err != nil {
		return errors.Wrap(err, "abandon acquired image")
	}
	fresh, err := s.drv.CreateSemaphore(s.dev)
	if err != nil {
		return errors.Wrap(err, "abandon acquired image")
	}
	s.drv.DestroySemaphore(s.dev, s.read[s.semaphore])
	s.read[s.semaphore] = fresh
	s.acquired = false
	s.logger.WithField("image", s.active).Debug("acquired image abandoned")
	return nil
}

// Present queues the active image on queue, waiting on the active written
// semaphore, and advances the semaphore ring.
func (s *Swapchain) Present(queue gpu.Queue) (Status, error) {
	if !s.acquired {
		return StatusOK, errors.Wrap(ErrState, "present without an acquired image")
	}
	r := s.drv.QueuePresent(queue, gpu.PresentInfo{
		Wait:       []gpu.Semaphore{s.written[s.semaphore]},
		Swapchain:  s.handle,
		ImageIndex: s.active,
	})
	s.acquired = false
	s.semaphore = (s.semaphore + 1) % len(s.read)

	switch r {
	case gpu.Success:
		return StatusOK, nil
	case gpu.Suboptimal:
		return StatusSuboptimal, nil
	case gpu.ErrorOutOfDate:
		return StatusOutOfDate, nil
	}
	return StatusOK, errors.Wrapf(ErrPresent, "%s", &gpu.Error{Call: "vk.QueuePresent", Result: r})
}

// Handle returns the swapchain handle.
func (s *Swapchain) Handle() gpu.Swapchain { return s.handle }

// ImageCount returns the fixed number of images.
func (s *Swapchain) ImageCount() int { return s.imageCount }

// Image returns the image at index i.
func (s *Swapchain) Image(i int) gpu.Image { return s.images[i] }

// View returns the view of the image at index i.
func (s *Swapchain) View(i int) gpu.ImageView { return s.views[i] }

// Views returns the image views in image order.
func (s *Swapchain) Views() []gpu.ImageView { return s.views }

// ReadSemaphore returns the semaphore signalled when image i is available.
func (s *Swapchain) ReadSemaphore(i int) gpu.Semaphore { return s.read[i] }

// WrittenSemaphore returns the semaphore signalled when rendering into image i finished.
func (s *Swapchain) WrittenSemaphore(i int) gpu.Semaphore { return s.written[i] }

// ActiveReadSemaphore is the read semaphore used by the current acquisition.
func (s *Swapchain) ActiveReadSemaphore() gpu.Semaphore { return s.read[s.semaphore] }

// ActiveWrittenSemaphore is the written semaphore the current present waits on.
func (s *Swapchain) ActiveWrittenSemaphore() gpu.Semaphore { return s.written[s.semaphore] }

// ActiveIndex returns the acquired image index.
// Only meaningful between a successful Acquire and the matching Present.
func (s *Swapchain) ActiveIndex() uint32 { return s.active }

// Acquired reports whether an image is held.
func (s *Swapchain) Acquired() bool { return s.acquired }

// Extent returns the current image size.
func (s *Swapchain) Extent() gpu.Extent { return s.extent }

// Format returns the colour format of the images.
func (s *Swapchain) Format() gpu.Format { return s.format }

// ColorSpace returns the colour space of the images.
func (s *Swapchain) ColorSpace() gpu.ColorSpace { return s.colorSpace }

// PresentMode returns the present mode in use.
func (s *Swapchain) PresentMode() gpu.PresentMode { return s.presentMode }

// VSync reports whether the chain was built with vsync.
func (s *Swapchain) VSync() bool { return s.vsync }

func (s *Swapchain) releaseSemaphores() {
	for _, sem := range s.read {
		s.drv.DestroySemaphore(s.dev, sem)
	}
	for _, sem := range s.written {
		s.drv.DestroySemaphore(s.dev, sem)
	}
	s.read, s.written = nil, nil
}

func (s *Swapchain) releaseViews() {
	for _, v := range s.views {
		s.drv.DestroyImageView(s.dev, v)
	}
	s.views = nil
}

// Release destroys the semaphores, the views and the chain.
func (s *Swapchain) Release() {
	s.releaseSemaphores()
	s.releaseViews()
	if s.handle != 0 {
		s.drv.DestroySwapchain(s.dev, s.handle)
		s.handle = 0
	}
	s.images = nil
	s.acquired = false
}
