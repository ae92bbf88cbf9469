// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package vulkan

import (
	"strings"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/devblok/kframe/gpu"
)

const debugReportFlags = vk.DebugReportErrorBit |
	vk.DebugReportWarningBit |
	vk.DebugReportPerformanceWarningBit |
	vk.DebugReportInformationBit |
	vk.DebugReportDebugBit

func translateReport(flags vk.DebugReportFlags, code int32, prefix, text string) gpu.DebugMessage {
	msg := gpu.DebugMessage{
		Kind:   gpu.KindValidation,
		Prefix: prefix,
		Code:   code,
		Text:   text,
	}
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		msg.Severity = gpu.SeverityError
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		msg.Severity = gpu.SeverityWarning
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		msg.Severity = gpu.SeverityPerformance
		msg.Kind = gpu.KindPerformance
	case flags&vk.DebugReportFlags(vk.DebugReportInformationBit) != 0:
		msg.Severity = gpu.SeverityInfo
	default:
		msg.Severity = gpu.SeverityDebug
	}
	if strings.HasPrefix(prefix, "Loader") {
		msg.Kind = gpu.KindGeneral
	}
	return msg
}

// CreateDebugMessenger implements interface
func (d *Driver) CreateDebugMessenger(instance gpu.Instance, callback gpu.DebugCallback) (gpu.DebugMessenger, error) {
	var report vk.DebugReportCallback
	if err := check("vk.CreateDebugReportCallback", vk.CreateDebugReportCallback(d.instance(instance), &vk.DebugReportCallbackCreateInfo{
		SType: vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags: vk.DebugReportFlags(debugReportFlags),
		PfnCallback: func(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType,
			object uint64, location uint, messageCode int32, pLayerPrefix string,
			pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
			callback(translateReport(flags, messageCode, pLayerPrefix, pMessage))
			return vk.Bool32(vk.False)
		},
	}, nil, &report)); err != nil {
		return 0, err
	}
	return gpu.DebugMessenger(d.add(report)), nil
}

// DestroyDebugMessenger implements interface
func (d *Driver) DestroyDebugMessenger(instance gpu.Instance, messenger gpu.DebugMessenger) {
	if r, ok := d.take(uint64(messenger)).(vk.DebugReportCallback); ok {
		vk.DestroyDebugReportCallback(d.instance(instance), r, nil)
	}
}
