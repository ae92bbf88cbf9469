// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package gpu defines the boundary between the presentation layer and a GPU driver.
// Handles, enumerations and create infos mirror the Vulkan API closely enough for
// a thin cgo implementation, while keeping the layer above it testable offscreen.
package gpu

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// Result is a driver result code, numerically equal to VkResult.
type Result int32

// Result codes the presentation layer distinguishes
const (
	Success                   Result = 0
	NotReady                  Result = 1
	Timeout                   Result = 2
	Suboptimal                Result = 1000001003
	ErrorOutOfHostMemory      Result = -1
	ErrorOutOfDeviceMemory    Result = -2
	ErrorInitializationFailed Result = -3
	ErrorDeviceLost           Result = -4
	ErrorLayerNotPresent      Result = -6
	ErrorExtensionNotPresent  Result = -7
	ErrorFeatureNotPresent    Result = -8
	ErrorIncompatibleDriver   Result = -9
	ErrorSurfaceLost          Result = -1000000000
	ErrorNativeWindowInUse    Result = -1000000001
	ErrorOutOfDate            Result = -1000001004
	ErrorValidationFailed     Result = -1000011001
)

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case NotReady:
		return "not ready"
	case Timeout:
		return "timeout"
	case Suboptimal:
		return "suboptimal"
	case ErrorOutOfHostMemory:
		return "out of host memory"
	case ErrorOutOfDeviceMemory:
		return "out of device memory"
	case ErrorInitializationFailed:
		return "initialization failed"
	case ErrorDeviceLost:
		return "device lost"
	case ErrorLayerNotPresent:
		return "layer not present"
	case ErrorExtensionNotPresent:
		return "extension not present"
	case ErrorFeatureNotPresent:
		return "feature not present"
	case ErrorIncompatibleDriver:
		return "incompatible driver"
	case ErrorSurfaceLost:
		return "surface lost"
	case ErrorNativeWindowInUse:
		return "native window in use"
	case ErrorOutOfDate:
		return "out of date"
	case ErrorValidationFailed:
		return "validation failed"
	}
	return fmt.Sprintf("result %d", int32(r))
}

// Error is a failed driver call.
type Error struct {
	Call   string
	Result Result
}

func (e *Error) Error() string {
	return e.Call + "(): " + e.Result.String()
}

// Check returns nil for non-error results and an *Error otherwise.
// Positive results such as Timeout or Suboptimal are not errors.
func Check(call string, r Result) error {
	if r >= 0 {
		return nil
	}
	return &Error{Call: call, Result: r}
}

// ResultOf extracts the driver result carried by err, if any.
func ResultOf(err error) (Result, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Result, true
	}
	return 0, false
}

// Driver is the set of GPU entry points used by the presentation layer.
// Every call happens on the goroutine driving the frame loop.
type Driver interface {
	// Load resolves driver entry points at runtime.
	Load() error

	// InstanceLayers lists the layers the loader can enable.
	InstanceLayers() ([]string, error)
	CreateInstance(info InstanceInfo) (Instance, error)
	DestroyInstance(instance Instance)
	CreateDebugMessenger(instance Instance, callback DebugCallback) (DebugMessenger, error)
	DestroyDebugMessenger(instance Instance, messenger DebugMessenger)
	DestroySurface(instance Instance, surface Surface)

	PhysicalDevices(instance Instance) ([]PhysicalDevice, error)
	Properties(pd PhysicalDevice) PhysicalDeviceProperties
	QueueFamilies(pd PhysicalDevice) []QueueFamily
	SurfaceSupport(pd PhysicalDevice, family uint32, surface Surface) (bool, error)
	SurfaceFormats(pd PhysicalDevice, surface Surface) ([]SurfaceFormat, error)
	PresentModes(pd PhysicalDevice, surface Surface) ([]PresentMode, error)
	SurfaceCapabilities(pd PhysicalDevice, surface Surface) (SurfaceCapabilities, error)
	DeviceExtensions(pd PhysicalDevice) ([]string, error)
	MemoryProperties(pd PhysicalDevice) MemoryProperties
	Features(pd PhysicalDevice) Features

	CreateDevice(pd PhysicalDevice, info DeviceInfo) (Device, error)
	DestroyDevice(dev Device)
	Queue(dev Device, family uint32) Queue
	DeviceWaitIdle(dev Device) error
	QueueWaitIdle(queue Queue) error

	CreateSwapchain(dev Device, info SwapchainInfo) (Swapchain, error)
	DestroySwapchain(dev Device, swapchain Swapchain)
	SwapchainImages(dev Device, swapchain Swapchain) ([]Image, error)
	// AcquireNextImage returns Success, Suboptimal, Timeout, NotReady,
	// ErrorOutOfDate or another error result.
	AcquireNextImage(dev Device, swapchain Swapchain, timeout time.Duration, signal Semaphore) (uint32, Result)
	QueuePresent(queue Queue, info PresentInfo) Result

	CreateImage(dev Device, info ImageInfo) (Image, error)
	DestroyImage(dev Device, image Image)
	ImageMemoryRequirements(dev Device, image Image) MemoryRequirements
	AllocateMemory(dev Device, size uint64, typeIndex uint32) (Memory, error)
	FreeMemory(dev Device, memory Memory)
	BindImageMemory(dev Device, image Image, memory Memory) error
	CreateImageView(dev Device, info ImageViewInfo) (ImageView, error)
	DestroyImageView(dev Device, view ImageView)

	CreateSemaphore(dev Device) (Semaphore, error)
	DestroySemaphore(dev Device, semaphore Semaphore)
	CreateFence(dev Device, signaled bool) (Fence, error)
	DestroyFence(dev Device, fence Fence)
	// WaitForFence returns Success, Timeout or an error result.
	WaitForFence(dev Device, fence Fence, timeout time.Duration) Result
	ResetFence(dev Device, fence Fence) error
	FenceSignaled(dev Device, fence Fence) (bool, error)

	// CreateCommandPool creates a pool whose buffers can be reset individually.
	CreateCommandPool(dev Device, family uint32) (CommandPool, error)
	DestroyCommandPool(dev Device, pool CommandPool)
	AllocateCommandBuffers(dev Device, pool CommandPool, count int) ([]CommandBuffer, error)
	FreeCommandBuffers(dev Device, pool CommandPool, buffers []CommandBuffer)
	BeginCommandBuffer(cb CommandBuffer, oneTime bool) error
	EndCommandBuffer(cb CommandBuffer) error
	CmdImageBarrier(cb CommandBuffer, barrier ImageBarrier)
	CmdBeginRenderPass(cb CommandBuffer, begin RenderPassBegin)
	CmdEndRenderPass(cb CommandBuffer)
	QueueSubmit(queue Queue, info SubmitInfo, fence Fence) error

	CreateRenderPass(dev Device, info RenderPassInfo) (RenderPass, error)
	DestroyRenderPass(dev Device, pass RenderPass)
	CreateFramebuffer(dev Device, info FramebufferInfo) (Framebuffer, error)
	DestroyFramebuffer(dev Device, fb Framebuffer)

	CreatePipelineCache(dev Device, initial []byte) (PipelineCache, error)
	PipelineCacheData(dev Device, cache PipelineCache) ([]byte, error)
	DestroyPipelineCache(dev Device, cache PipelineCache)
}
