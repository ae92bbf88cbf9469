// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"github.com/pkg/errors"
)

// package errors
var (
	ErrNoSuitableMemoryType = errors.New("no suitable memory type")
	ErrSubmit               = errors.New("queue submit failed")
	ErrPresent              = errors.New("queue present failed")
	ErrAcquire              = errors.New("image acquisition failed")
	ErrFenceTimeout         = errors.New("fence wait retries exhausted")
	ErrImageCountChanged    = errors.New("swapchain image count changed")
	ErrState                = errors.New("frame loop used out of order")
)

// Status is the outcome of acquire and present calls.
// OutOfDate and Suboptimal ask for a resize and are not errors.
type Status int

// Statuses
const (
	StatusOK Status = iota
	StatusOutOfDate
	StatusSuboptimal
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusOutOfDate:
		return "out of date"
	case StatusSuboptimal:
		return "suboptimal"
	}
	return "unknown"
}
