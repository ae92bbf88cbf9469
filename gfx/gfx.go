// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package gfx defines ownership contracts that renderer components must implement.
package gfx

// Releasable defines any component that owns GPU objects and can free them.
type Releasable interface {

	// Release destroys every object owned by the implementing structure.
	// It must be safe to call more than once.
	Release()
}

// ReleaseAll releases the given components in the order they were passed.
// Nil entries are skipped.
func ReleaseAll(rs ...Releasable) {
	for _, r := range rs {
		if r == nil {
			continue
		}
		r.Release()
	}
}

// ReleaseFunc adapts a plain function to Releasable.
type ReleaseFunc func()

// Release implements interface
func (f ReleaseFunc) Release() {
	if f != nil {
		f()
	}
}
