// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package vulkan implements gpu.Driver on top of the Vulkan loader.
package vulkan

import (
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/pkg/errors"

	"github.com/devblok/kframe/gpu"
)

// New returns a driver. procAddr is the loader's vkGetInstanceProcAddr as
// handed out by a windowing library; nil uses the system loader.
func New(procAddr unsafe.Pointer) *Driver {
	return &Driver{
		procAddr: procAddr,
		objects:  make(map[uint64]interface{}),
	}
}

// Driver is a gpu.Driver issuing handles for Vulkan objects.
type Driver struct {
	procAddr unsafe.Pointer

	mutex   sync.Mutex
	next    uint64
	objects map[uint64]interface{}
}

var _ gpu.Driver = (*Driver)(nil)

func (d *Driver) add(obj interface{}) uint64 {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.next++
	d.objects[d.next] = obj
	return d.next
}

func (d *Driver) get(h uint64) interface{} {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.objects[h]
}

// take removes h and returns what it referred to.
func (d *Driver) take(h uint64) interface{} {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	obj := d.objects[h]
	delete(d.objects, h)
	return obj
}

// forget drops every handle whose object matches.
func (d *Driver) forget(match func(obj interface{}) bool) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	for h, obj := range d.objects {
		if match(obj) {
			delete(d.objects, h)
		}
	}
}

func check(call string, r vk.Result) error {
	return gpu.Check(call, gpu.Result(r))
}

// safeString terminates s for the C side.
func safeString(s string) string {
	if len(s) > 0 && s[len(s)-1] == 0 {
		return s
	}
	return s + "\x00"
}

func safeStrings(list []string) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = safeString(s)
	}
	return out
}

func boolean(b bool) vk.Bool32 {
	if b {
		return vk.True
	}
	return vk.False
}

// Load implements interface
func (d *Driver) Load() error {
	if d.procAddr == nil {
		if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
			return errors.Wrap(err, "vk.SetDefaultGetInstanceProcAddr()")
		}
	} else {
		vk.SetGetInstanceProcAddr(d.procAddr)
	}
	if err := vk.Init(); err != nil {
		return errors.Wrap(err, "vk.Init()")
	}
	return nil
}

// InstanceLayers implements interface
func (d *Driver) InstanceLayers() ([]string, error) {
	var count uint32
	if err := check("vk.EnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, nil)); err != nil {
		return nil, err
	}
	props := make([]vk.LayerProperties, count)
	if err := check("vk.EnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, props)); err != nil {
		return nil, err
	}
	layers := make([]string, 0, count)
	for _, p := range props {
		p.Deref()
		layers = append(layers, vk.ToString(p.LayerName[:]))
	}
	return layers, nil
}

// CreateInstance implements interface
func (d *Driver) CreateInstance(info gpu.InstanceInfo) (gpu.Instance, error) {
	extensions := safeStrings(info.Extensions)
	layers := safeStrings(info.Layers)

	var instance vk.Instance
	if err := check("vk.CreateInstance", vk.CreateInstance(&vk.InstanceCreateInfo{
		SType: vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &vk.ApplicationInfo{
			SType:              vk.StructureTypeApplicationInfo,
			ApiVersion:         vk.MakeVersion(1, 2, 0),
			ApplicationVersion: vk.MakeVersion(1, 0, 0),
			PApplicationName:   safeString(info.AppName),
			PEngineName:        safeString(info.EngineName),
		},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
	}, nil, &instance)); err != nil {
		return 0, err
	}
	if err := vk.InitInstance(instance); err != nil {
		vk.DestroyInstance(instance, nil)
		return 0, errors.Wrap(err, "vk.InitInstance()")
	}
	return gpu.Instance(d.add(instance)), nil
}

func (d *Driver) instance(h gpu.Instance) vk.Instance {
	instance, _ := d.get(uint64(h)).(vk.Instance)
	return instance
}

// DestroyInstance implements interface
func (d *Driver) DestroyInstance(instance gpu.Instance) {
	if i, ok := d.take(uint64(instance)).(vk.Instance); ok {
		d.forget(func(obj interface{}) bool {
			_, ok := obj.(vk.PhysicalDevice)
			return ok
		})
		vk.DestroyInstance(i, nil)
	}
}

// RawInstance returns the Vulkan instance behind h, for windowing
// libraries that create surfaces themselves.
func (d *Driver) RawInstance(h gpu.Instance) vk.Instance {
	return d.instance(h)
}

// ImportSurface takes ownership of a surface created outside the driver.
func (d *Driver) ImportSurface(surface unsafe.Pointer) gpu.Surface {
	return gpu.Surface(d.add(vk.SurfaceFromPointer(uintptr(surface))))
}

func (d *Driver) surface(h gpu.Surface) vk.Surface {
	s, _ := d.get(uint64(h)).(vk.Surface)
	return s
}

// DestroySurface implements interface
func (d *Driver) DestroySurface(instance gpu.Instance, surface gpu.Surface) {
	if s, ok := d.take(uint64(surface)).(vk.Surface); ok {
		vk.DestroySurface(d.instance(instance), s, nil)
	}
}
