// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gpu

import "time"

// Handles are opaque to everything but the driver that issued them.
// The zero value is the null handle.
type (
	Instance       uint64
	PhysicalDevice uint64
	Device         uint64
	Queue          uint64
	Surface        uint64
	DebugMessenger uint64
	Swapchain      uint64
	Image          uint64
	ImageView      uint64
	Memory         uint64
	Semaphore      uint64
	Fence          uint64
	CommandPool    uint64
	CommandBuffer  uint64
	RenderPass     uint64
	Framebuffer    uint64
	PipelineCache  uint64
)

// Enumerations below carry the numeric values of the Vulkan API,
// so the Vulkan driver converts them without lookup tables.

// Format is a pixel format.
type Format uint32

// Formats used by the presentation layer
const (
	FormatUndefined       Format = 0
	FormatR8G8B8A8Unorm   Format = 37
	FormatR8G8B8A8Srgb    Format = 43
	FormatB8G8R8A8Unorm   Format = 44
	FormatB8G8R8A8Srgb    Format = 50
	FormatD16Unorm        Format = 124
	FormatD32Sfloat       Format = 126
	FormatD24UnormS8Uint  Format = 129
	FormatD32SfloatS8Uint Format = 130
)

// HasStencil reports whether a depth format carries a stencil component.
func (f Format) HasStencil() bool {
	return f == FormatD24UnormS8Uint || f == FormatD32SfloatS8Uint
}

// ColorSpace of a presentable surface.
type ColorSpace uint32

// ColorSpaceSrgbNonlinear is the only colour space every surface supports.
const ColorSpaceSrgbNonlinear ColorSpace = 0

// PresentMode selects how the presentation engine queues images.
type PresentMode uint32

// Present modes
const (
	PresentModeImmediate   PresentMode = 0
	PresentModeMailbox     PresentMode = 1
	PresentModeFifo        PresentMode = 2
	PresentModeFifoRelaxed PresentMode = 3
)

func (p PresentMode) String() string {
	switch p {
	case PresentModeImmediate:
		return "immediate"
	case PresentModeMailbox:
		return "mailbox"
	case PresentModeFifo:
		return "fifo"
	case PresentModeFifoRelaxed:
		return "fifo-relaxed"
	}
	return "unknown"
}

// SampleCount is a bit set of multisample counts.
type SampleCount uint32

// Sample counts
const (
	SampleCount1  SampleCount = 0x01
	SampleCount2  SampleCount = 0x02
	SampleCount4  SampleCount = 0x04
	SampleCount8  SampleCount = 0x08
	SampleCount16 SampleCount = 0x10
	SampleCount32 SampleCount = 0x20
	SampleCount64 SampleCount = 0x40
)

// QueueFlags describe the capabilities of a queue family.
type QueueFlags uint32

// Queue capabilities
const (
	QueueGraphics QueueFlags = 0x1
	QueueCompute  QueueFlags = 0x2
	QueueTransfer QueueFlags = 0x4
)

// MemoryProperty flags of a memory type.
type MemoryProperty uint32

// Memory properties
const (
	MemoryDeviceLocal  MemoryProperty = 0x1
	MemoryHostVisible  MemoryProperty = 0x2
	MemoryHostCoherent MemoryProperty = 0x4
)

// ImageUsage flags.
type ImageUsage uint32

// Image usages
const (
	ImageUsageTransferSrc            ImageUsage = 0x01
	ImageUsageTransferDst            ImageUsage = 0x02
	ImageUsageSampled                ImageUsage = 0x04
	ImageUsageColorAttachment        ImageUsage = 0x10
	ImageUsageDepthStencilAttachment ImageUsage = 0x20
)

// ImageAspect selects the aspects of an image a view or barrier covers.
type ImageAspect uint32

// Image aspects
const (
	AspectColor   ImageAspect = 0x1
	AspectDepth   ImageAspect = 0x2
	AspectStencil ImageAspect = 0x4
)

// ImageLayout of an image's memory.
type ImageLayout uint32

// Image layouts
const (
	LayoutUndefined                     ImageLayout = 0
	LayoutColorAttachmentOptimal        ImageLayout = 2
	LayoutDepthStencilAttachmentOptimal ImageLayout = 3
	LayoutPresentSrc                    ImageLayout = 1000001002
)

// PipelineStage flags.
type PipelineStage uint32

// Pipeline stages
const (
	StageTopOfPipe             PipelineStage = 0x0001
	StageEarlyFragmentTests    PipelineStage = 0x0100
	StageLateFragmentTests     PipelineStage = 0x0200
	StageColorAttachmentOutput PipelineStage = 0x0400
	StageBottomOfPipe          PipelineStage = 0x2000
)

// Access flags.
type Access uint32

// Access kinds
const (
	AccessColorAttachmentRead         Access = 0x0080
	AccessColorAttachmentWrite        Access = 0x0100
	AccessDepthStencilAttachmentRead  Access = 0x0200
	AccessDepthStencilAttachmentWrite Access = 0x0400
	AccessMemoryRead                  Access = 0x8000
)

// DeviceType of a physical device.
type DeviceType uint32

// Device types
const (
	DeviceTypeOther         DeviceType = 0
	DeviceTypeIntegratedGPU DeviceType = 1
	DeviceTypeDiscreteGPU   DeviceType = 2
	DeviceTypeVirtualGPU    DeviceType = 3
	DeviceTypeCPU           DeviceType = 4
)

func (t DeviceType) String() string {
	switch t {
	case DeviceTypeIntegratedGPU:
		return "integrated"
	case DeviceTypeDiscreteGPU:
		return "discrete"
	case DeviceTypeVirtualGPU:
		return "virtual"
	case DeviceTypeCPU:
		return "cpu"
	}
	return "other"
}

// UndefinedExtent marks a surface whose extent is decided by the swapchain.
const UndefinedExtent = 0xFFFFFFFF

// Extent is a two dimensional size in pixels.
type Extent struct {
	Width  uint32
	Height uint32
}

// Empty reports whether either dimension is zero.
func (e Extent) Empty() bool {
	return e.Width == 0 || e.Height == 0
}

// Clamp limits e to the [min, max] box.
func (e Extent) Clamp(min, max Extent) Extent {
	return Extent{
		Width:  clamp(e.Width, min.Width, max.Width),
		Height: clamp(e.Height, min.Height, max.Height),
	}
}

func clamp(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if hi != 0 && v > hi {
		return hi
	}
	return v
}

// QueueFamily describes one queue family of a physical device.
type QueueFamily struct {
	Flags QueueFlags
	Count uint32
}

// SurfaceFormat is a format and colour space pair supported by a surface.
type SurfaceFormat struct {
	Format     Format
	ColorSpace ColorSpace
}

// SurfaceCapabilities of a surface on a physical device.
type SurfaceCapabilities struct {
	MinImageCount uint32
	// MaxImageCount of zero means no limit.
	MaxImageCount uint32
	CurrentExtent Extent
	MinExtent     Extent
	MaxExtent     Extent
}

// PhysicalDeviceProperties are the general properties and limits of a device.
type PhysicalDeviceProperties struct {
	Name          string
	DeviceID      uint32
	VendorID      uint32
	DriverVersion uint32
	APIVersion    uint32
	Type          DeviceType

	ColorSampleCounts SampleCount
	DepthSampleCounts SampleCount
}

// MemoryType is one memory type of a physical device.
type MemoryType struct {
	Flags MemoryProperty
	Heap  uint32
}

// MemoryProperties lists memory types and heap sizes.
type MemoryProperties struct {
	Types []MemoryType
	Heaps []uint64
}

// MemoryRequirements of a resource.
type MemoryRequirements struct {
	Size     uint64
	TypeBits uint32
}

// Features are the device features this layer queries and passes through.
type Features struct {
	SamplerAnisotropy  bool
	ScalarBlockLayout  bool
	DescriptorIndexing bool
}

// InstanceInfo configures instance creation.
type InstanceInfo struct {
	AppName    string
	EngineName string
	Extensions []string
	Layers     []string
}

// DeviceInfo configures logical device creation.
type DeviceInfo struct {
	// QueueFamilies holds distinct family indices; one queue is created from each.
	QueueFamilies []uint32
	Extensions    []string
	Layers        []string
	Features      Features
}

// SwapchainInfo configures swapchain creation.
type SwapchainInfo struct {
	Surface       Surface
	MinImageCount uint32
	Format        Format
	ColorSpace    ColorSpace
	Extent        Extent
	PresentMode   PresentMode
	// QueueFamilies with two distinct entries selects concurrent sharing.
	QueueFamilies []uint32
	Old           Swapchain
}

// ImageInfo configures a two dimensional single-level image.
type ImageInfo struct {
	Extent  Extent
	Format  Format
	Usage   ImageUsage
	Samples SampleCount
}

// ImageViewInfo configures a two dimensional image view.
type ImageViewInfo struct {
	Image  Image
	Format Format
	Aspect ImageAspect
}

// ImageBarrier is an image memory barrier with its stage masks.
type ImageBarrier struct {
	Image     Image
	Aspect    ImageAspect
	OldLayout ImageLayout
	NewLayout ImageLayout
	SrcAccess Access
	DstAccess Access
	SrcStage  PipelineStage
	DstStage  PipelineStage
}

// Attachment describes a render pass attachment that is cleared on load and stored.
type Attachment struct {
	Format      Format
	Samples     SampleCount
	FinalLayout ImageLayout
}

// Dependency is the single external to subpass dependency of a render pass.
type Dependency struct {
	SrcStage  PipelineStage
	DstStage  PipelineStage
	SrcAccess Access
	DstAccess Access
	ByRegion  bool
}

// RenderPassInfo describes a one-subpass colour and depth render pass.
type RenderPassInfo struct {
	Color      Attachment
	Depth      Attachment
	Dependency Dependency
}

// FramebufferInfo configures a framebuffer.
type FramebufferInfo struct {
	RenderPass  RenderPass
	Attachments []ImageView
	Extent      Extent
}

// RenderPassBegin describes the start of a render pass instance.
type RenderPassBegin struct {
	RenderPass  RenderPass
	Framebuffer Framebuffer
	Extent      Extent
	ClearColor  [4]float32
	ClearDepth  float32
}

// SubmitInfo is a single queue submission.
type SubmitInfo struct {
	Wait           []Semaphore
	WaitStages     []PipelineStage
	CommandBuffers []CommandBuffer
	Signal         []Semaphore
}

// PresentInfo presents one image of one swapchain.
type PresentInfo struct {
	Wait       []Semaphore
	Swapchain  Swapchain
	ImageIndex uint32
}

// Severity of a debug message.
type Severity uint32

// Severities
const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityPerformance
	SeverityWarning
	SeverityError
)

// MessageKind is the category of a debug message.
type MessageKind uint32

// Message kinds
const (
	KindGeneral MessageKind = iota
	KindValidation
	KindPerformance
)

// DebugMessage is a message reported by the driver or validation layers.
type DebugMessage struct {
	Severity Severity
	Kind     MessageKind
	Prefix   string
	Code     int32
	Text     string
}

// DebugCallback receives driver debug messages.
type DebugCallback func(DebugMessage)

// Nanoseconds converts a timeout for the driver, negative values become zero.
func Nanoseconds(d time.Duration) uint64 {
	if d < 0 {
		return 0
	}
	return uint64(d)
}
