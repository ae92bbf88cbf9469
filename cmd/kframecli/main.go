// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Command kframecli prints the physical devices visible to the Vulkan loader as JSON.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/devblok/kframe/core"
	"github.com/devblok/kframe/device"
	"github.com/devblok/kframe/gpu/vulkan"
)

func main() {
	configuration, err := core.LoadConfiguration(os.Args[1:]...)
	if err != nil {
		log.WithError(err).Fatal("load configuration")
	}

	devices, err := device.Probe(vulkan.New(nil), configuration.Device)
	if err != nil {
		log.WithError(err).Fatal("probe devices")
	}

	bytes, err := json.Marshal(devices)
	if err != nil {
		log.WithError(err).Fatal("encode devices")
	}
	fmt.Printf("%s\n", bytes)
}
