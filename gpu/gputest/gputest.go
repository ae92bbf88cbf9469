// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package gputest provides an in-memory gpu.Driver for offscreen tests.
//
// The driver tracks every object it hands out together with its parent,
// records creation and destruction in a log, and reports lifetime misuse
// (destroying a dead handle, destroying a parent before its children,
// submitting with a signaled fence, waiting on a fence nothing will signal)
// as violations instead of crashing. GPU work completes instantly unless
// SubmitLatency is set.
package gputest

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/devblok/kframe/gpu"
)

// Kind names an object type in the log.
type Kind string

// Object kinds
const (
	KindInstance       Kind = "instance"
	KindDebugMessenger Kind = "debug-messenger"
	KindSurface        Kind = "surface"
	KindDevice         Kind = "device"
	KindQueue          Kind = "queue"
	KindSwapchain      Kind = "swapchain"
	KindImage          Kind = "image"
	KindImageView      Kind = "image-view"
	KindMemory         Kind = "memory"
	KindSemaphore      Kind = "semaphore"
	KindFence          Kind = "fence"
	KindCommandPool    Kind = "command-pool"
	KindCommandBuffer  Kind = "command-buffer"
	KindRenderPass     Kind = "render-pass"
	KindFramebuffer    Kind = "framebuffer"
	KindPipelineCache  Kind = "pipeline-cache"
)

// Op is a logged lifetime operation.
type Op string

// Operations
const (
	OpCreate  Op = "create"
	OpDestroy Op = "destroy"
)

// Entry is one line of the lifetime log.
type Entry struct {
	Op     Op
	Kind   Kind
	Handle uint64
}

func (e Entry) String() string {
	return fmt.Sprintf("%s %s %d", e.Op, e.Kind, e.Handle)
}

// Submission records one QueueSubmit call.
type Submission struct {
	Queue gpu.Queue
	Info  gpu.SubmitInfo
	Fence gpu.Fence
}

// Barrier records one CmdImageBarrier call.
type Barrier struct {
	CommandBuffer gpu.CommandBuffer
	Barrier       gpu.ImageBarrier
}

// PhysicalDevice describes a device the driver exposes.
type PhysicalDevice struct {
	Properties gpu.PhysicalDeviceProperties
	Families   []gpu.QueueFamily
	// PresentFamilies lists families that can present; nil means all of them.
	PresentFamilies []uint32
	Formats         []gpu.SurfaceFormat
	PresentModes    []gpu.PresentMode
	Extensions      []string
	Memory          gpu.MemoryProperties
	Features        gpu.Features
	Capabilities    gpu.SurfaceCapabilities
}

// NewPhysicalDevice returns a device able to do everything the presentation
// layer asks for.
func NewPhysicalDevice(name string) *PhysicalDevice {
	return &PhysicalDevice{
		Properties: gpu.PhysicalDeviceProperties{
			Name:              name,
			VendorID:          0x10de,
			DeviceID:          0x1b80,
			DriverVersion:     1,
			APIVersion:        1<<22 | 2<<12,
			Type:              gpu.DeviceTypeDiscreteGPU,
			ColorSampleCounts: gpu.SampleCount1 | gpu.SampleCount2 | gpu.SampleCount4 | gpu.SampleCount8,
			DepthSampleCounts: gpu.SampleCount1 | gpu.SampleCount2 | gpu.SampleCount4 | gpu.SampleCount8,
		},
		Families: []gpu.QueueFamily{
			{Flags: gpu.QueueGraphics | gpu.QueueCompute | gpu.QueueTransfer, Count: 16},
		},
		Formats: []gpu.SurfaceFormat{
			{Format: gpu.FormatB8G8R8A8Unorm, ColorSpace: gpu.ColorSpaceSrgbNonlinear},
			{Format: gpu.FormatB8G8R8A8Srgb, ColorSpace: gpu.ColorSpaceSrgbNonlinear},
		},
		PresentModes: []gpu.PresentMode{gpu.PresentModeFifo, gpu.PresentModeMailbox, gpu.PresentModeImmediate},
		Extensions:   []string{"VK_KHR_swapchain"},
		Memory: gpu.MemoryProperties{
			Types: []gpu.MemoryType{
				{Flags: gpu.MemoryHostVisible | gpu.MemoryHostCoherent, Heap: 1},
				{Flags: gpu.MemoryDeviceLocal, Heap: 0},
			},
			Heaps: []uint64{8 << 30, 16 << 30},
		},
		Features: gpu.Features{SamplerAnisotropy: true, ScalarBlockLayout: true, DescriptorIndexing: true},
		Capabilities: gpu.SurfaceCapabilities{
			MinImageCount: 2,
			MaxImageCount: 8,
			CurrentExtent: gpu.Extent{Width: gpu.UndefinedExtent, Height: gpu.UndefinedExtent},
			MinExtent:     gpu.Extent{Width: 1, Height: 1},
			MaxExtent:     gpu.Extent{Width: 4096, Height: 4096},
		},
	}
}

type object struct {
	kind     Kind
	handle   uint64
	parent   uint64
	alive    bool
	implicit bool

	physical *PhysicalDevice
	debug    gpu.DebugCallback

	device    gpu.DeviceInfo
	swapchain *swapchainState
	image     gpu.ImageInfo
	bound     uint64
	size      uint64
	view      gpu.ImageViewInfo
	fence     *fenceState
	recording bool
	ended     bool
	pass      gpu.RenderPassInfo
	fb        gpu.FramebufferInfo
	cache     []byte
}

type swapchainState struct {
	info     gpu.SwapchainInfo
	images   []uint64
	acquired uint32
}

type fenceState struct {
	signaled bool
	pending  int
}

// Driver is an in-memory gpu.Driver.
type Driver struct {
	// Layers are reported by InstanceLayers.
	Layers []string
	// Devices are reported by PhysicalDevices in order.
	Devices []*PhysicalDevice

	// LoadErr is returned by Load.
	LoadErr error
	// AcquireResults are consumed one per AcquireNextImage call before normal behaviour.
	AcquireResults []gpu.Result
	// PresentResults are consumed one per QueuePresent call before normal behaviour.
	PresentResults []gpu.Result
	// SubmitErr is returned by QueueSubmit when set.
	SubmitErr error
	// SubmitLatency is the number of fence waits that time out before submitted work completes.
	SubmitLatency int
	// ImageCountOverride forces the number of swapchain images when non-zero.
	ImageCountOverride int

	mu         sync.Mutex
	next       uint64
	objects    map[uint64]*object
	log        []Entry
	violations []string
	submits    []Submission
	presents   []gpu.PresentInfo
	barriers   []Barrier
	begins     []gpu.RenderPassBegin
	calls      int
	deadlocks  int
	waits      int
}

// New returns a driver exposing a single capable device and the Khronos validation layer.
func New() *Driver {
	return &Driver{
		Layers:  []string{"VK_LAYER_KHRONOS_validation"},
		Devices: []*PhysicalDevice{NewPhysicalDevice("Fake GPU")},
	}
}

var _ gpu.Driver = (*Driver)(nil)

func (d *Driver) enter() {
	d.mu.Lock()
	d.calls++
}

func (d *Driver) leave() {
	d.mu.Unlock()
}

func (d *Driver) violate(format string, args ...interface{}) {
	d.violations = append(d.violations, fmt.Sprintf(format, args...))
}

func (d *Driver) create(kind Kind, parent uint64) *object {
	if d.objects == nil {
		d.objects = make(map[uint64]*object)
	}
	d.next++
	o := &object{kind: kind, handle: d.next, parent: parent, alive: true}
	d.objects[o.handle] = o
	d.log = append(d.log, Entry{Op: OpCreate, Kind: kind, Handle: o.handle})
	return o
}

// implicit objects are owned by their parent and never destroyed explicitly.
func (d *Driver) createImplicit(kind Kind, parent uint64) *object {
	o := d.create(kind, parent)
	o.implicit = true
	d.log = d.log[:len(d.log)-1]
	return o
}

func (d *Driver) lookup(kind Kind, h uint64, call string) *object {
	if h == 0 {
		return nil
	}
	o, ok := d.objects[h]
	if !ok || o.kind != kind {
		d.violate("%s: unknown %s %d", call, kind, h)
		return nil
	}
	if !o.alive {
		d.violate("%s: use of destroyed %s %d", call, kind, h)
		return nil
	}
	if p, ok := d.objects[o.parent]; ok && !p.alive {
		d.violate("%s: %s %d used after its %s %d was destroyed", call, kind, h, p.kind, p.handle)
	}
	return o
}

func (d *Driver) destroy(kind Kind, h uint64, call string) {
	if h == 0 {
		return
	}
	o, ok := d.objects[h]
	if !ok || o.kind != kind {
		d.violate("%s: unknown %s %d", call, kind, h)
		return
	}
	if !o.alive {
		d.violate("%s: %s %d destroyed twice", call, kind, h)
		return
	}
	if p, ok := d.objects[o.parent]; ok && !p.alive {
		d.violate("%s: %s %d destroyed after its %s %d", call, kind, h, p.kind, p.handle)
	}
	for _, c := range d.objects {
		if c.parent == h && c.alive && !c.implicit {
			d.violate("%s: %s %d destroyed while %s %d is alive", call, kind, h, c.kind, c.handle)
		}
	}
	o.alive = false
	for _, c := range d.objects {
		if c.parent == h && c.implicit {
			c.alive = false
		}
	}
	d.log = append(d.log, Entry{Op: OpDestroy, Kind: kind, Handle: h})
}

func (d *Driver) deviceOf(h uint64) uint64 {
	if o, ok := d.objects[h]; ok {
		return o.parent
	}
	return 0
}

// Load implements interface
func (d *Driver) Load() error {
	d.enter()
	defer d.leave()
	return d.LoadErr
}

// InstanceLayers implements interface
func (d *Driver) InstanceLayers() ([]string, error) {
	d.enter()
	defer d.leave()
	return append([]string(nil), d.Layers...), nil
}

// CreateInstance implements interface
func (d *Driver) CreateInstance(info gpu.InstanceInfo) (gpu.Instance, error) {
	d.enter()
	defer d.leave()
	for _, l := range info.Layers {
		if !contains(d.Layers, l) {
			return 0, &gpu.Error{Call: "vk.CreateInstance", Result: gpu.ErrorLayerNotPresent}
		}
	}
	return gpu.Instance(d.create(KindInstance, 0).handle), nil
}

// DestroyInstance implements interface
func (d *Driver) DestroyInstance(instance gpu.Instance) {
	d.enter()
	defer d.leave()
	d.destroy(KindInstance, uint64(instance), "DestroyInstance")
}

// CreateDebugMessenger implements interface
func (d *Driver) CreateDebugMessenger(instance gpu.Instance, callback gpu.DebugCallback) (gpu.DebugMessenger, error) {
	d.enter()
	defer d.leave()
	d.lookup(KindInstance, uint64(instance), "CreateDebugMessenger")
	o := d.create(KindDebugMessenger, uint64(instance))
	o.debug = callback
	return gpu.DebugMessenger(o.handle), nil
}

// DestroyDebugMessenger implements interface
func (d *Driver) DestroyDebugMessenger(instance gpu.Instance, messenger gpu.DebugMessenger) {
	d.enter()
	defer d.leave()
	d.destroy(KindDebugMessenger, uint64(messenger), "DestroyDebugMessenger")
}

// Emit delivers msg to every live debug messenger.
func (d *Driver) Emit(msg gpu.DebugMessage) {
	d.mu.Lock()
	var callbacks []gpu.DebugCallback
	for _, o := range d.sorted() {
		if o.kind == KindDebugMessenger && o.alive && o.debug != nil {
			callbacks = append(callbacks, o.debug)
		}
	}
	d.mu.Unlock()
	for _, cb := range callbacks {
		cb(msg)
	}
}

// NewSurface creates a surface bound to instance, as a window system would.
func (d *Driver) NewSurface(instance gpu.Instance) (gpu.Surface, error) {
	d.enter()
	defer d.leave()
	if d.lookup(KindInstance, uint64(instance), "NewSurface") == nil {
		return 0, &gpu.Error{Call: "vk.CreateSurface", Result: gpu.ErrorInitializationFailed}
	}
	return gpu.Surface(d.create(KindSurface, uint64(instance)).handle), nil
}

// DestroySurface implements interface
func (d *Driver) DestroySurface(instance gpu.Instance, surface gpu.Surface) {
	d.enter()
	defer d.leave()
	d.destroy(KindSurface, uint64(surface), "DestroySurface")
}

// PhysicalDevices implements interface
func (d *Driver) PhysicalDevices(instance gpu.Instance) ([]gpu.PhysicalDevice, error) {
	d.enter()
	defer d.leave()
	inst := d.lookup(KindInstance, uint64(instance), "PhysicalDevices")
	if inst == nil {
		return nil, &gpu.Error{Call: "vk.EnumeratePhysicalDevices", Result: gpu.ErrorInitializationFailed}
	}
	var pds []gpu.PhysicalDevice
	for _, desc := range d.Devices {
		o := d.createImplicit("physical-device", inst.handle)
		o.physical = desc
		pds = append(pds, gpu.PhysicalDevice(o.handle))
	}
	return pds, nil
}

func (d *Driver) physical(pd gpu.PhysicalDevice) *PhysicalDevice {
	o, ok := d.objects[uint64(pd)]
	if !ok || o.physical == nil {
		d.violate("unknown physical device %d", pd)
		return &PhysicalDevice{}
	}
	return o.physical
}

// Properties implements interface
func (d *Driver) Properties(pd gpu.PhysicalDevice) gpu.PhysicalDeviceProperties {
	d.enter()
	defer d.leave()
	return d.physical(pd).Properties
}

// QueueFamilies implements interface
func (d *Driver) QueueFamilies(pd gpu.PhysicalDevice) []gpu.QueueFamily {
	d.enter()
	defer d.leave()
	return append([]gpu.QueueFamily(nil), d.physical(pd).Families...)
}

// SurfaceSupport implements interface
func (d *Driver) SurfaceSupport(pd gpu.PhysicalDevice, family uint32, surface gpu.Surface) (bool, error) {
	d.enter()
	defer d.leave()
	d.lookup(KindSurface, uint64(surface), "SurfaceSupport")
	desc := d.physical(pd)
	if int(family) >= len(desc.Families) {
		return false, nil
	}
	if desc.PresentFamilies == nil {
		return true, nil
	}
	for _, f := range desc.PresentFamilies {
		if f == family {
			return true, nil
		}
	}
	return false, nil
}

// SurfaceFormats implements interface
func (d *Driver) SurfaceFormats(pd gpu.PhysicalDevice, surface gpu.Surface) ([]gpu.SurfaceFormat, error) {
	d.enter()
	defer d.leave()
	return append([]gpu.SurfaceFormat(nil), d.physical(pd).Formats...), nil
}

// PresentModes implements interface
func (d *Driver) PresentModes(pd gpu.PhysicalDevice, surface gpu.Surface) ([]gpu.PresentMode, error) {
	d.enter()
	defer d.leave()
	return append([]gpu.PresentMode(nil), d.physical(pd).PresentModes...), nil
}

// SurfaceCapabilities implements interface
func (d *Driver) SurfaceCapabilities(pd gpu.PhysicalDevice, surface gpu.Surface) (gpu.SurfaceCapabilities, error) {
	d.enter()
	defer d.leave()
	d.lookup(KindSurface, uint64(surface), "SurfaceCapabilities")
	return d.physical(pd).Capabilities, nil
}

// DeviceExtensions implements interface
func (d *Driver) DeviceExtensions(pd gpu.PhysicalDevice) ([]string, error) {
	d.enter()
	defer d.leave()
	return append([]string(nil), d.physical(pd).Extensions...), nil
}

// MemoryProperties implements interface
func (d *Driver) MemoryProperties(pd gpu.PhysicalDevice) gpu.MemoryProperties {
	d.enter()
	defer d.leave()
	return d.physical(pd).Memory
}

// Features implements interface
func (d *Driver) Features(pd gpu.PhysicalDevice) gpu.Features {
	d.enter()
	defer d.leave()
	return d.physical(pd).Features
}

// CreateDevice implements interface
func (d *Driver) CreateDevice(pd gpu.PhysicalDevice, info gpu.DeviceInfo) (gpu.Device, error) {
	d.enter()
	defer d.leave()
	desc := d.physical(pd)
	for _, ext := range info.Extensions {
		if !contains(desc.Extensions, ext) {
			return 0, &gpu.Error{Call: "vk.CreateDevice", Result: gpu.ErrorExtensionNotPresent}
		}
	}
	if !supports(desc.Features, info.Features) {
		return 0, &gpu.Error{Call: "vk.CreateDevice", Result: gpu.ErrorFeatureNotPresent}
	}
	o := d.create(KindDevice, d.deviceOf(uint64(pd)))
	o.device = info
	o.physical = desc
	for _, f := range info.QueueFamilies {
		q := d.createImplicit(KindQueue, o.handle)
		q.size = uint64(f)
	}
	return gpu.Device(o.handle), nil
}

func supports(have, want gpu.Features) bool {
	return (have.SamplerAnisotropy || !want.SamplerAnisotropy) &&
		(have.ScalarBlockLayout || !want.ScalarBlockLayout) &&
		(have.DescriptorIndexing || !want.DescriptorIndexing)
}

// DestroyDevice implements interface
func (d *Driver) DestroyDevice(dev gpu.Device) {
	d.enter()
	defer d.leave()
	d.destroy(KindDevice, uint64(dev), "DestroyDevice")
}

// Queue implements interface
func (d *Driver) Queue(dev gpu.Device, family uint32) gpu.Queue {
	d.enter()
	defer d.leave()
	for _, o := range d.sorted() {
		if o.kind == KindQueue && o.parent == uint64(dev) && o.size == uint64(family) {
			return gpu.Queue(o.handle)
		}
	}
	d.violate("Queue: family %d was not requested at device creation", family)
	return 0
}

// DeviceWaitIdle implements interface
func (d *Driver) DeviceWaitIdle(dev gpu.Device) error {
	d.enter()
	defer d.leave()
	d.lookup(KindDevice, uint64(dev), "DeviceWaitIdle")
	d.complete(uint64(dev))
	return nil
}

// QueueWaitIdle implements interface
func (d *Driver) QueueWaitIdle(queue gpu.Queue) error {
	d.enter()
	defer d.leave()
	q := d.lookup(KindQueue, uint64(queue), "QueueWaitIdle")
	if q != nil {
		d.complete(q.parent)
	}
	return nil
}

func (d *Driver) complete(dev uint64) {
	for _, o := range d.objects {
		if o.kind == KindFence && o.parent == dev && o.fence.pending > 0 {
			o.fence.pending = 0
			o.fence.signaled = true
		}
	}
}

// CreateSwapchain implements interface
func (d *Driver) CreateSwapchain(dev gpu.Device, info gpu.SwapchainInfo) (gpu.Swapchain, error) {
	d.enter()
	defer d.leave()
	dv := d.lookup(KindDevice, uint64(dev), "CreateSwapchain")
	if dv == nil {
		return 0, &gpu.Error{Call: "vk.CreateSwapchain", Result: gpu.ErrorDeviceLost}
	}
	d.lookup(KindSurface, uint64(info.Surface), "CreateSwapchain")
	if info.Old != 0 {
		d.lookup(KindSwapchain, uint64(info.Old), "CreateSwapchain(old)")
	}
	if info.Extent.Empty() {
		d.violate("CreateSwapchain: empty extent %dx%d", info.Extent.Width, info.Extent.Height)
	}
	o := d.create(KindSwapchain, uint64(dev))
	count := int(info.MinImageCount)
	if d.ImageCountOverride != 0 {
		count = d.ImageCountOverride
	}
	st := &swapchainState{info: info}
	for i := 0; i < count; i++ {
		img := d.createImplicit(KindImage, o.handle)
		img.image = gpu.ImageInfo{
			Extent:  info.Extent,
			Format:  info.Format,
			Usage:   gpu.ImageUsageColorAttachment,
			Samples: gpu.SampleCount1,
		}
		st.images = append(st.images, img.handle)
	}
	o.swapchain = st
	return gpu.Swapchain(o.handle), nil
}

// DestroySwapchain implements interface
func (d *Driver) DestroySwapchain(dev gpu.Device, swapchain gpu.Swapchain) {
	d.enter()
	defer d.leave()
	if o, ok := d.objects[uint64(swapchain)]; ok && o.swapchain != nil {
		for _, img := range o.swapchain.images {
			for _, v := range d.objects {
				if v.kind == KindImageView && v.alive && uint64(v.view.Image) == img {
					d.violate("DestroySwapchain: image %d still has live view %d", img, v.handle)
				}
			}
		}
	}
	d.destroy(KindSwapchain, uint64(swapchain), "DestroySwapchain")
}

// SwapchainImages implements interface
func (d *Driver) SwapchainImages(dev gpu.Device, swapchain gpu.Swapchain) ([]gpu.Image, error) {
	d.enter()
	defer d.leave()
	o := d.lookup(KindSwapchain, uint64(swapchain), "SwapchainImages")
	if o == nil {
		return nil, &gpu.Error{Call: "vk.GetSwapchainImages", Result: gpu.ErrorOutOfDate}
	}
	images := make([]gpu.Image, len(o.swapchain.images))
	for i, h := range o.swapchain.images {
		images[i] = gpu.Image(h)
	}
	return images, nil
}

// AcquireNextImage implements interface
func (d *Driver) AcquireNextImage(dev gpu.Device, swapchain gpu.Swapchain, timeout time.Duration, signal gpu.Semaphore) (uint32, gpu.Result) {
	d.enter()
	defer d.leave()
	o := d.lookup(KindSwapchain, uint64(swapchain), "AcquireNextImage")
	if o == nil {
		return 0, gpu.ErrorOutOfDate
	}
	d.lookup(KindSemaphore, uint64(signal), "AcquireNextImage")
	result := gpu.Success
	if len(d.AcquireResults) > 0 {
		result = d.AcquireResults[0]
		d.AcquireResults = d.AcquireResults[1:]
	}
	switch result {
	case gpu.Success, gpu.Suboptimal:
		st := o.swapchain
		idx := st.acquired % uint32(len(st.images))
		st.acquired++
		return idx, result
	}
	return 0, result
}

// QueuePresent implements interface
func (d *Driver) QueuePresent(queue gpu.Queue, info gpu.PresentInfo) gpu.Result {
	d.enter()
	defer d.leave()
	d.lookup(KindQueue, uint64(queue), "QueuePresent")
	d.lookup(KindSwapchain, uint64(info.Swapchain), "QueuePresent")
	for _, s := range info.Wait {
		d.lookup(KindSemaphore, uint64(s), "QueuePresent")
	}
	d.presents = append(d.presents, info)
	if len(d.PresentResults) > 0 {
		r := d.PresentResults[0]
		d.PresentResults = d.PresentResults[1:]
		return r
	}
	return gpu.Success
}

// CreateImage implements interface
func (d *Driver) CreateImage(dev gpu.Device, info gpu.ImageInfo) (gpu.Image, error) {
	d.enter()
	defer d.leave()
	d.lookup(KindDevice, uint64(dev), "CreateImage")
	o := d.create(KindImage, uint64(dev))
	o.image = info
	return gpu.Image(o.handle), nil
}

// DestroyImage implements interface
func (d *Driver) DestroyImage(dev gpu.Device, image gpu.Image) {
	d.enter()
	defer d.leave()
	if o, ok := d.objects[uint64(image)]; ok && o.implicit {
		d.violate("DestroyImage: image %d is owned by a swapchain", image)
		return
	}
	for _, v := range d.objects {
		if v.kind == KindImageView && v.alive && v.view.Image == image && image != 0 {
			d.violate("DestroyImage: image %d still has live view %d", image, v.handle)
		}
	}
	d.destroy(KindImage, uint64(image), "DestroyImage")
}

// ImageMemoryRequirements implements interface
func (d *Driver) ImageMemoryRequirements(dev gpu.Device, image gpu.Image) gpu.MemoryRequirements {
	d.enter()
	defer d.leave()
	o := d.lookup(KindImage, uint64(image), "ImageMemoryRequirements")
	if o == nil {
		return gpu.MemoryRequirements{}
	}
	dv := d.objects[uint64(dev)]
	var bits uint32
	if dv != nil && dv.physical != nil {
		for i := range dv.physical.Memory.Types {
			bits |= 1 << uint(i)
		}
	}
	return gpu.MemoryRequirements{
		Size:     uint64(o.image.Extent.Width) * uint64(o.image.Extent.Height) * 8,
		TypeBits: bits,
	}
}

// AllocateMemory implements interface
func (d *Driver) AllocateMemory(dev gpu.Device, size uint64, typeIndex uint32) (gpu.Memory, error) {
	d.enter()
	defer d.leave()
	d.lookup(KindDevice, uint64(dev), "AllocateMemory")
	o := d.create(KindMemory, uint64(dev))
	o.size = size
	return gpu.Memory(o.handle), nil
}

// FreeMemory implements interface
func (d *Driver) FreeMemory(dev gpu.Device, memory gpu.Memory) {
	d.enter()
	defer d.leave()
	for _, o := range d.objects {
		if o.kind == KindImage && o.alive && o.bound == uint64(memory) && memory != 0 {
			d.violate("FreeMemory: memory %d still bound to live image %d", memory, o.handle)
		}
	}
	d.destroy(KindMemory, uint64(memory), "FreeMemory")
}

// BindImageMemory implements interface
func (d *Driver) BindImageMemory(dev gpu.Device, image gpu.Image, memory gpu.Memory) error {
	d.enter()
	defer d.leave()
	img := d.lookup(KindImage, uint64(image), "BindImageMemory")
	mem := d.lookup(KindMemory, uint64(memory), "BindImageMemory")
	if img == nil || mem == nil {
		return &gpu.Error{Call: "vk.BindImageMemory", Result: gpu.ErrorOutOfDeviceMemory}
	}
	if img.bound != 0 {
		d.violate("BindImageMemory: image %d already bound", image)
	}
	img.bound = mem.handle
	return nil
}

// CreateImageView implements interface
func (d *Driver) CreateImageView(dev gpu.Device, info gpu.ImageViewInfo) (gpu.ImageView, error) {
	d.enter()
	defer d.leave()
	d.lookup(KindDevice, uint64(dev), "CreateImageView")
	img := d.lookup(KindImage, uint64(info.Image), "CreateImageView")
	if img != nil && !img.implicit && img.bound == 0 {
		d.violate("CreateImageView: image %d has no memory bound", info.Image)
	}
	o := d.create(KindImageView, uint64(dev))
	o.view = info
	return gpu.ImageView(o.handle), nil
}

// DestroyImageView implements interface
func (d *Driver) DestroyImageView(dev gpu.Device, view gpu.ImageView) {
	d.enter()
	defer d.leave()
	d.destroy(KindImageView, uint64(view), "DestroyImageView")
}

// CreateSemaphore implements interface
func (d *Driver) CreateSemaphore(dev gpu.Device) (gpu.Semaphore, error) {
	d.enter()
	defer d.leave()
	d.lookup(KindDevice, uint64(dev), "CreateSemaphore")
	return gpu.Semaphore(d.create(KindSemaphore, uint64(dev)).handle), nil
}

// DestroySemaphore implements interface
func (d *Driver) DestroySemaphore(dev gpu.Device, semaphore gpu.Semaphore) {
	d.enter()
	defer d.leave()
	d.destroy(KindSemaphore, uint64(semaphore), "DestroySemaphore")
}

// CreateFence implements interface
func (d *Driver) CreateFence(dev gpu.Device, signaled bool) (gpu.Fence, error) {
	d.enter()
	defer d.leave()
	d.lookup(KindDevice, uint64(dev), "CreateFence")
	o := d.create(KindFence, uint64(dev))
	o.fence = &fenceState{signaled: signaled}
	return gpu.Fence(o.handle), nil
}

// DestroyFence implements interface
func (d *Driver) DestroyFence(dev gpu.Device, fence gpu.Fence) {
	d.enter()
	defer d.leave()
	if o, ok := d.objects[uint64(fence)]; ok && o.fence != nil && o.fence.pending > 0 {
		d.violate("DestroyFence: fence %d destroyed while work is in flight", fence)
	}
	d.destroy(KindFence, uint64(fence), "DestroyFence")
}

// WaitForFence implements interface
func (d *Driver) WaitForFence(dev gpu.Device, fence gpu.Fence, timeout time.Duration) gpu.Result {
	d.enter()
	defer d.leave()
	d.waits++
	o := d.lookup(KindFence, uint64(fence), "WaitForFence")
	if o == nil {
		return gpu.ErrorDeviceLost
	}
	st := o.fence
	if st.signaled {
		return gpu.Success
	}
	if st.pending > 0 {
		st.pending--
		if st.pending == 0 {
			st.signaled = true
			return gpu.Success
		}
		return gpu.Timeout
	}
	d.deadlocks++
	return gpu.Timeout
}

// ResetFence implements interface
func (d *Driver) ResetFence(dev gpu.Device, fence gpu.Fence) error {
	d.enter()
	defer d.leave()
	o := d.lookup(KindFence, uint64(fence), "ResetFence")
	if o == nil {
		return &gpu.Error{Call: "vk.ResetFences", Result: gpu.ErrorDeviceLost}
	}
	if o.fence.pending > 0 {
		d.violate("ResetFence: fence %d reset while work is in flight", fence)
	}
	o.fence.signaled = false
	return nil
}

// FenceSignaled implements interface
func (d *Driver) FenceSignaled(dev gpu.Device, fence gpu.Fence) (bool, error) {
	d.enter()
	defer d.leave()
	o := d.lookup(KindFence, uint64(fence), "FenceSignaled")
	if o == nil {
		return false, &gpu.Error{Call: "vk.GetFenceStatus", Result: gpu.ErrorDeviceLost}
	}
	return o.fence.signaled, nil
}

// CreateCommandPool implements interface
func (d *Driver) CreateCommandPool(dev gpu.Device, family uint32) (gpu.CommandPool, error) {
	d.enter()
	defer d.leave()
	d.lookup(KindDevice, uint64(dev), "CreateCommandPool")
	o := d.create(KindCommandPool, uint64(dev))
	o.size = uint64(family)
	return gpu.CommandPool(o.handle), nil
}

// DestroyCommandPool implements interface
func (d *Driver) DestroyCommandPool(dev gpu.Device, pool gpu.CommandPool) {
	d.enter()
	defer d.leave()
	d.destroy(KindCommandPool, uint64(pool), "DestroyCommandPool")
}

// AllocateCommandBuffers implements interface
func (d *Driver) AllocateCommandBuffers(dev gpu.Device, pool gpu.CommandPool, count int) ([]gpu.CommandBuffer, error) {
	d.enter()
	defer d.leave()
	p := d.lookup(KindCommandPool, uint64(pool), "AllocateCommandBuffers")
	if p == nil {
		return nil, &gpu.Error{Call: "vk.AllocateCommandBuffers", Result: gpu.ErrorOutOfDeviceMemory}
	}
	buffers := make([]gpu.CommandBuffer, count)
	for i := range buffers {
		buffers[i] = gpu.CommandBuffer(d.create(KindCommandBuffer, p.handle).handle)
	}
	return buffers, nil
}

// FreeCommandBuffers implements interface
func (d *Driver) FreeCommandBuffers(dev gpu.Device, pool gpu.CommandPool, buffers []gpu.CommandBuffer) {
	d.enter()
	defer d.leave()
	for _, cb := range buffers {
		d.destroy(KindCommandBuffer, uint64(cb), "FreeCommandBuffers")
	}
}

// BeginCommandBuffer implements interface
func (d *Driver) BeginCommandBuffer(cb gpu.CommandBuffer, oneTime bool) error {
	d.enter()
	defer d.leave()
	o := d.lookup(KindCommandBuffer, uint64(cb), "BeginCommandBuffer")
	if o == nil {
		return &gpu.Error{Call: "vk.BeginCommandBuffer", Result: gpu.ErrorDeviceLost}
	}
	if o.recording {
		d.violate("BeginCommandBuffer: command buffer %d already recording", cb)
	}
	o.recording = true
	o.ended = false
	return nil
}

// EndCommandBuffer implements interface
func (d *Driver) EndCommandBuffer(cb gpu.CommandBuffer) error {
	d.enter()
	defer d.leave()
	o := d.lookup(KindCommandBuffer, uint64(cb), "EndCommandBuffer")
	if o == nil {
		return &gpu.Error{Call: "vk.EndCommandBuffer", Result: gpu.ErrorDeviceLost}
	}
	if !o.recording {
		d.violate("EndCommandBuffer: command buffer %d is not recording", cb)
	}
	o.recording = false
	o.ended = true
	return nil
}

// CmdImageBarrier implements interface
func (d *Driver) CmdImageBarrier(cb gpu.CommandBuffer, barrier gpu.ImageBarrier) {
	d.enter()
	defer d.leave()
	d.lookup(KindCommandBuffer, uint64(cb), "CmdImageBarrier")
	d.lookup(KindImage, uint64(barrier.Image), "CmdImageBarrier")
	d.barriers = append(d.barriers, Barrier{CommandBuffer: cb, Barrier: barrier})
}

// CmdBeginRenderPass implements interface
func (d *Driver) CmdBeginRenderPass(cb gpu.CommandBuffer, begin gpu.RenderPassBegin) {
	d.enter()
	defer d.leave()
	d.lookup(KindCommandBuffer, uint64(cb), "CmdBeginRenderPass")
	d.lookup(KindRenderPass, uint64(begin.RenderPass), "CmdBeginRenderPass")
	d.lookup(KindFramebuffer, uint64(begin.Framebuffer), "CmdBeginRenderPass")
	d.begins = append(d.begins, begin)
}

// CmdEndRenderPass implements interface
func (d *Driver) CmdEndRenderPass(cb gpu.CommandBuffer) {
	d.enter()
	defer d.leave()
	d.lookup(KindCommandBuffer, uint64(cb), "CmdEndRenderPass")
}

// QueueSubmit implements interface
func (d *Driver) QueueSubmit(queue gpu.Queue, info gpu.SubmitInfo, fence gpu.Fence) error {
	d.enter()
	defer d.leave()
	if d.SubmitErr != nil {
		return d.SubmitErr
	}
	d.lookup(KindQueue, uint64(queue), "QueueSubmit")
	for _, s := range append(append([]gpu.Semaphore(nil), info.Wait...), info.Signal...) {
		d.lookup(KindSemaphore, uint64(s), "QueueSubmit")
	}
	for _, cb := range info.CommandBuffers {
		o := d.lookup(KindCommandBuffer, uint64(cb), "QueueSubmit")
		if o != nil && !o.ended {
			d.violate("QueueSubmit: command buffer %d was not ended", cb)
		}
	}
	if fence != 0 {
		f := d.lookup(KindFence, uint64(fence), "QueueSubmit")
		if f != nil {
			if f.fence.signaled {
				d.violate("QueueSubmit: fence %d submitted while signaled", fence)
			}
			if f.fence.pending > 0 {
				d.violate("QueueSubmit: fence %d already in flight", fence)
			}
			if d.SubmitLatency > 0 {
				f.fence.pending = d.SubmitLatency
			} else {
				f.fence.signaled = true
			}
		}
	}
	d.submits = append(d.submits, Submission{Queue: queue, Info: info, Fence: fence})
	return nil
}

// CreateRenderPass implements interface
func (d *Driver) CreateRenderPass(dev gpu.Device, info gpu.RenderPassInfo) (gpu.RenderPass, error) {
	d.enter()
	defer d.leave()
	d.lookup(KindDevice, uint64(dev), "CreateRenderPass")
	o := d.create(KindRenderPass, uint64(dev))
	o.pass = info
	return gpu.RenderPass(o.handle), nil
}

// DestroyRenderPass implements interface
func (d *Driver) DestroyRenderPass(dev gpu.Device, pass gpu.RenderPass) {
	d.enter()
	defer d.leave()
	for _, o := range d.objects {
		if o.kind == KindFramebuffer && o.alive && o.fb.RenderPass == pass && pass != 0 {
			d.violate("DestroyRenderPass: render pass %d still used by framebuffer %d", pass, o.handle)
		}
	}
	d.destroy(KindRenderPass, uint64(pass), "DestroyRenderPass")
}

// CreateFramebuffer implements interface
func (d *Driver) CreateFramebuffer(dev gpu.Device, info gpu.FramebufferInfo) (gpu.Framebuffer, error) {
	d.enter()
	defer d.leave()
	d.lookup(KindDevice, uint64(dev), "CreateFramebuffer")
	d.lookup(KindRenderPass, uint64(info.RenderPass), "CreateFramebuffer")
	for _, v := range info.Attachments {
		d.lookup(KindImageView, uint64(v), "CreateFramebuffer")
	}
	o := d.create(KindFramebuffer, uint64(dev))
	o.fb = gpu.FramebufferInfo{
		RenderPass:  info.RenderPass,
		Attachments: append([]gpu.ImageView(nil), info.Attachments...),
		Extent:      info.Extent,
	}
	return gpu.Framebuffer(o.handle), nil
}

// DestroyFramebuffer implements interface
func (d *Driver) DestroyFramebuffer(dev gpu.Device, fb gpu.Framebuffer) {
	d.enter()
	defer d.leave()
	d.destroy(KindFramebuffer, uint64(fb), "DestroyFramebuffer")
}

// CreatePipelineCache implements interface
func (d *Driver) CreatePipelineCache(dev gpu.Device, initial []byte) (gpu.PipelineCache, error) {
	d.enter()
	defer d.leave()
	d.lookup(KindDevice, uint64(dev), "CreatePipelineCache")
	o := d.create(KindPipelineCache, uint64(dev))
	o.cache = append([]byte("fake-pipeline-cache:"), initial...)
	return gpu.PipelineCache(o.handle), nil
}

// PipelineCacheData implements interface
func (d *Driver) PipelineCacheData(dev gpu.Device, cache gpu.PipelineCache) ([]byte, error) {
	d.enter()
	defer d.leave()
	o := d.lookup(KindPipelineCache, uint64(cache), "PipelineCacheData")
	if o == nil {
		return nil, &gpu.Error{Call: "vk.GetPipelineCacheData", Result: gpu.ErrorDeviceLost}
	}
	return append([]byte(nil), o.cache...), nil
}

// DestroyPipelineCache implements interface
func (d *Driver) DestroyPipelineCache(dev gpu.Device, cache gpu.PipelineCache) {
	d.enter()
	defer d.leave()
	d.destroy(KindPipelineCache, uint64(cache), "DestroyPipelineCache")
}

func (d *Driver) sorted() []*object {
	objs := make([]*object, 0, len(d.objects))
	for _, o := range d.objects {
		objs = append(objs, o)
	}
	sort.Slice(objs, func(i, j int) bool { return objs[i].handle < objs[j].handle })
	return objs
}

func contains(list []string, s string) bool {
	for _, l := range list {
		if l == s {
			return true
		}
	}
	return false
}
