// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"strconv"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gobuffalo/envy"
	"github.com/gobuffalo/packr"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/devblok/kframe/device"
	"github.com/devblok/kframe/gpu"
)

// Driver wait defaults
const (
	DefaultFenceTimeout   = 100 * time.Millisecond
	DefaultAcquireTimeout = 100 * time.Millisecond
)

// DefaultsFile is the name of the defaults inside the defaults box.
const DefaultsFile = "kframe.env"

// Defaults holds the shipped configuration defaults.
var Defaults = packr.NewBox("./defaults")

// Configuration defines a global engine configuration setting
type Configuration struct {
	Time     TimeConfiguration
	Renderer RendererConfiguration
	Device   device.Config
}

// TimeConfiguration is used to configure time services
type TimeConfiguration struct {
	// FramesPerSecond caps frames per second that is put out
	// To unlimit, set to 0
	FramesPerSecond int

	// EventPollDelay is the delay between window event polls in milliseconds
	EventPollDelay int
}

// RendererConfiguration is used to configure the renderer
type RendererConfiguration struct {
	SwapchainSize uint32
	VSync         bool

	ScreenWidth  uint32
	ScreenHeight uint32

	// PreferredFormat of the swapchain images, B8G8R8A8_UNORM when undefined
	PreferredFormat gpu.Format
	// DepthFormat of the depth buffer, D32_SFLOAT_S8_UINT when undefined
	DepthFormat gpu.Format
	ClearColor  mgl32.Vec4
	ClearDepth  float32

	FenceTimeout      time.Duration
	MaxFenceRetries   int
	AcquireTimeout    time.Duration
	MaxAcquireRetries int

	// PipelineCachePath is where the pipeline cache is persisted, empty disables it
	PipelineCachePath string
}

// Environment keys
const (
	KeyAppName            = "KFRAME_APP_NAME"
	KeyEngineName         = "KFRAME_ENGINE_NAME"
	KeyWidth              = "KFRAME_WIDTH"
	KeyHeight             = "KFRAME_HEIGHT"
	KeySwapchainSize      = "KFRAME_SWAPCHAIN_SIZE"
	KeyVSync              = "KFRAME_VSYNC"
	KeyFPS                = "KFRAME_FPS"
	KeyEventPollDelay     = "KFRAME_EVENT_POLL_DELAY"
	KeyValidation         = "KFRAME_VALIDATION"
	KeyLayers             = "KFRAME_LAYERS"
	KeyInstanceExtensions = "KFRAME_INSTANCE_EXTENSIONS"
	KeyDeviceExtensions   = "KFRAME_DEVICE_EXTENSIONS"
	KeyFenceTimeout       = "KFRAME_FENCE_TIMEOUT"
	KeyFenceRetries       = "KFRAME_FENCE_RETRIES"
	KeyAcquireTimeout     = "KFRAME_ACQUIRE_TIMEOUT"
	KeyAcquireRetries     = "KFRAME_ACQUIRE_RETRIES"
	KeyPipelineCache      = "KFRAME_PIPELINE_CACHE"
	KeyClearColor         = "KFRAME_CLEAR_COLOR"
)

// LoadConfiguration builds the configuration from the shipped defaults,
// then the given env files, then the process environment. Later sources win.
func LoadConfiguration(files ...string) (Configuration, error) {
	raw, err := Defaults.FindString(DefaultsFile)
	if err != nil {
		return Configuration{}, errors.Wrap(err, "find configuration defaults")
	}
	defaults, err := godotenv.Unmarshal(raw)
	if err != nil {
		return Configuration{}, errors.Wrap(err, "parse configuration defaults")
	}

	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return Configuration{}, errors.Wrap(err, "load configuration files")
		}
		envy.Reload()
	}

	p := parser{defaults: defaults}
	cfg := Configuration{
		Time: TimeConfiguration{
			FramesPerSecond: p.int(KeyFPS),
			EventPollDelay:  p.int(KeyEventPollDelay),
		},
		Renderer: RendererConfiguration{
			SwapchainSize:     uint32(p.int(KeySwapchainSize)),
			VSync:             p.bool(KeyVSync),
			ScreenWidth:       uint32(p.int(KeyWidth)),
			ScreenHeight:      uint32(p.int(KeyHeight)),
			ClearColor:        p.vec4(KeyClearColor),
			ClearDepth:        1,
			FenceTimeout:      p.duration(KeyFenceTimeout),
			MaxFenceRetries:   p.int(KeyFenceRetries),
			AcquireTimeout:    p.duration(KeyAcquireTimeout),
			MaxAcquireRetries: p.int(KeyAcquireRetries),
			PipelineCachePath: p.string(KeyPipelineCache),
		},
		Device: device.Config{
			AppName:            p.string(KeyAppName),
			EngineName:         p.string(KeyEngineName),
			InstanceExtensions: p.list(KeyInstanceExtensions),
			DeviceExtensions:   p.list(KeyDeviceExtensions),
			ValidationLayers:   p.list(KeyLayers),
			EnableValidation:   p.bool(KeyValidation),
		},
	}
	if p.err != nil {
		return Configuration{}, p.err
	}
	return cfg, nil
}

// parser reads keys through envy, falling back to the defaults.
// The first malformed value is kept in err.
type parser struct {
	defaults map[string]string
	err      error
}

func (p *parser) string(key string) string {
	return strings.TrimSpace(envy.Get(key, p.defaults[key]))
}

func (p *parser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = errors.Wrapf(err, "configuration %s=%q", key, value)
	}
}

func (p *parser) int(key string) int {
	v := p.string(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
	}
	return n
}

func (p *parser) bool(key string) bool {
	v := p.string(key)
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
	}
	return b
}

func (p *parser) duration(key string) time.Duration {
	v := p.string(key)
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
	}
	return d
}

func (p *parser) list(key string) []string {
	var out []string
	for _, s := range strings.Split(p.string(key), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (p *parser) vec4(key string) mgl32.Vec4 {
	var out mgl32.Vec4
	v := p.string(key)
	if v == "" {
		return out
	}
	parts := strings.Split(v, ",")
	if len(parts) != 4 {
		p.fail(key, v, errors.New("want four comma separated components"))
		return out
	}
	for i, s := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
		if err != nil {
			p.fail(key, v, err)
			return mgl32.Vec4{}
		}
		out[i] = float32(f)
	}
	return out
}
