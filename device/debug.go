// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package device

import (
	log "github.com/sirupsen/logrus"

	"github.com/devblok/kframe/gpu"
)

// DebugSink forwards driver debug messages to a logger.
type DebugSink struct {
	Logger log.FieldLogger
}

// Handle logs msg at the level matching its severity.
func (s DebugSink) Handle(msg gpu.DebugMessage) {
	logger := s.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	entry := logger.WithFields(log.Fields{
		"layer": msg.Prefix,
		"code":  msg.Code,
		"kind":  kindName(msg.Kind),
	})
	text := "validation layer: " + msg.Text
	switch msg.Severity {
	case gpu.SeverityError:
		entry.Error(text)
	case gpu.SeverityWarning, gpu.SeverityPerformance:
		entry.Warn(text)
	case gpu.SeverityInfo:
		entry.Info(text)
	default:
		entry.Debug(text)
	}
}

func kindName(k gpu.MessageKind) string {
	switch k {
	case gpu.KindValidation:
		return "validation"
	case gpu.KindPerformance:
		return "performance"
	}
	return "general"
}
