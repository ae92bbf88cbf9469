// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Command kframe opens a window and clears it every frame, rebuilding the
// swapchain as the window is resized. Arguments are configuration env files.
package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"

	"github.com/pkg/errors"

	log "github.com/sirupsen/logrus"

	"github.com/devblok/kframe/camera"
	"github.com/devblok/kframe/core"
	"github.com/devblok/kframe/device"
	"github.com/devblok/kframe/gpu"
	"github.com/devblok/kframe/window"
)

var (
	cpuProfile   = flag.String("cpuprof", "", "Profile CPU usage to file")
	memProfile   = flag.String("memprof", "", "Profile memory usage into a file")
	traceProfile = flag.String("trace", "", "Trace output for profiling")
	debug        = flag.Bool("vkdbg", false, "Load Vulkan validation layers")
)

func init() {
	runtime.LockOSThread()
}

func main() {
	flag.Parse()

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.WithError(err).Fatal("create cpu profile")
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.WithError(err).Fatal("start cpu profile")
		}
		defer pprof.StopCPUProfile()
	}

	if *traceProfile != "" {
		f, err := os.Create(*traceProfile)
		if err != nil {
			log.WithError(err).Fatal("create trace")
		}
		if err := trace.Start(f); err != nil {
			log.WithError(err).Fatal("start trace")
		}
		defer trace.Stop()
	}

	if err := run(flag.Args()); err != nil {
		entry := log.WithError(err)
		result, ok := gpu.ResultOf(err)
		if ok {
			entry = entry.WithField("result", result)
		}
		if result == gpu.ErrorDeviceLost {
			entry.Error("device lost, restart to recover")
		} else {
			entry.Error("kframe exited")
		}
	}

	if *memProfile != "" {
		if err := writeHeapProfile(*memProfile); err != nil {
			log.WithError(err).Error("write heap profile")
		}
	}
}

func writeHeapProfile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create heap profile")
	}
	defer f.Close()
	return pprof.WriteHeapProfile(f)
}

func run(files []string) error {
	configuration, err := core.LoadConfiguration(files...)
	if err != nil {
		return err
	}
	if *debug {
		configuration.Device.EnableValidation = true
	}
	if configuration.Device.EnableValidation {
		log.SetLevel(log.DebugLevel)
	}

	quit, err := window.Init()
	if err != nil {
		return err
	}
	defer quit()

	drv := window.Driver()
	win, err := window.New(drv, configuration.Device.AppName,
		configuration.Renderer.ScreenWidth, configuration.Renderer.ScreenHeight)
	if err != nil {
		return err
	}
	defer win.Destroy()

	cfg := configuration.Device
	cfg.InstanceExtensions = append(win.InstanceExtensions(), cfg.InstanceExtensions...)
	ctx, err := device.New(drv, cfg, win)
	if err != nil {
		return err
	}

	cam := camera.New(45, 0.1, 100)
	backend, err := core.NewBackend(ctx, configuration.Renderer, cam)
	if err != nil {
		ctx.Release()
		return err
	}
	defer backend.Release()
	cam.OnResize(backend.Extent())

	log.WithFields(log.Fields{
		"device": ctx.Properties().Name,
		"images": backend.ImageCount(),
		"extent": backend.Extent(),
	}).Info("renderer ready")

	time := core.NewTime(configuration.Time)
	defer time.Stop()

	for {
		select {
		case <-time.EventTicker().C:
			events := win.Poll()
			if events.Quit {
				log.Info("event loop exited")
				return nil
			}
			if events.Resized {
				width, height := win.Size()
				if err := backend.Resize(width, height); err != nil {
					return err
				}
			}
		case <-time.FpsTicker().C:
			if backend.IsMinimized(true) {
				continue
			}
			if err := drawFrame(backend); err != nil {
				return err
			}
		}
	}
}

func drawFrame(backend *core.Backend) error {
	frame, err := backend.PrepareFrame(context.Background())
	if err != nil {
		return err
	}
	if frame.Skipped {
		return nil
	}
	if err := backend.Record(frame, nil); err != nil {
		return err
	}
	_, err = backend.SubmitFrame(frame)
	return err
}
