// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core_test

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/devblok/kframe/core"
)

func TestTime(t *testing.T) {
	c := qt.New(t)
	tm := core.NewTime(core.TimeConfiguration{FramesPerSecond: 200, EventPollDelay: 2})
	defer tm.Stop()

	c.Assert(tm.Fps(), qt.Equals, 200)
	c.Assert(tm.EventPollDelay(), qt.Equals, 2)

	for _, ticker := range []*time.Ticker{tm.FpsTicker(), tm.EventTicker()} {
		select {
		case <-ticker.C:
		case <-time.After(time.Second):
			c.Fatal("ticker did not fire")
		}
	}
}

func TestTimeUnlimited(t *testing.T) {
	c := qt.New(t)
	tm := core.NewTime(core.TimeConfiguration{})
	defer tm.Stop()

	c.Assert(tm.Fps(), qt.Equals, 0)
	select {
	case <-tm.FpsTicker().C:
	case <-time.After(time.Second):
		c.Fatal("unlimited ticker did not fire")
	}
}
