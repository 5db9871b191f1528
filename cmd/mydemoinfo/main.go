// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/devblok/mydemo/gfx/vkr"
	log "github.com/sirupsen/logrus"
)

var (
	debug  = flag.Bool("vkdbg", false, "Enable the Vulkan validation layer")
	indent = flag.Bool("i", false, "Indent the output")
	ext    = flag.String("require", "VK_KHR_swapchain", "Report whether each device supports this extension")
)

type deviceReport struct {
	vkr.PhysicalDeviceInfo
	Suitable bool   `json:"suitable"`
	Reason   string `json:"reason,omitempty"`
}

func main() {
	flag.Parse()

	cfg := vkr.InstanceConfiguration{
		DebugMode: *debug,
	}
	instance, err := vkr.NewInstance(vkr.DefaultApplicationInfo, nil, cfg)
	if err != nil {
		log.WithError(err).Fatal("could not create Vulkan instance")
	}
	defer instance.Destroy()

	var reports []deviceReport
	for _, info := range instance.PhysicalDevicesInfo() {
		ok, reason := vkr.DeviceIsSuitable(info, []string{*ext})
		reports = append(reports, deviceReport{PhysicalDeviceInfo: info, Suitable: ok, Reason: reason})
	}

	var bytes []byte
	if *indent {
		bytes, err = json.MarshalIndent(reports, "", "  ")
	} else {
		bytes, err = json.Marshal(reports)
	}
	if err != nil {
		log.WithError(err).Error("could not encode device info")
		return
	}
	fmt.Fprintf(os.Stdout, "%s\n", bytes)
}
