// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package device

import (
	"fmt"

	"github.com/pkg/errors"
)

// package errors
var (
	ErrLayerNotAvailable = errors.New("validation layer not available")
	ErrNoSuitableGPU     = errors.New("no suitable GPU")
	ErrNoSurface         = errors.New("window returned no surface")
)

// Stage names a step of device context initialization.
type Stage string

// Initialization stages, in the order they run
const (
	StageLoad     Stage = "load driver"
	StageLayers   Stage = "check validation layers"
	StageInstance Stage = "create instance"
	StageDebug    Stage = "attach debug messenger"
	StageSurface  Stage = "create surface"
	StageSelect   Stage = "select physical device"
	StageDevice   Stage = "create logical device"
)

// InitError is returned when the device context cannot be built.
// Initialization is all-or-nothing, the caller must abort startup.
type InitError struct {
	Stage  Stage
	Object string
	Err    error
}

func (e *InitError) Error() string {
	if e.Object == "" {
		return fmt.Sprintf("device: %s: %s", e.Stage, e.Err)
	}
	return fmt.Sprintf("device: %s (%s): %s", e.Stage, e.Object, e.Err)
}

// Unwrap returns the underlying error.
func (e *InitError) Unwrap() error { return e.Err }

// Cause returns the underlying error.
func (e *InitError) Cause() error { return e.Err }

func initError(stage Stage, object string, err error) error {
	return &InitError{Stage: stage, Object: object, Err: err}
}
