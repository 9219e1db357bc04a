package main

import (
	"bytes"
	"log/slog"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"

	"vkrender/core"
	"vkrender/gpu"
)

// Duration reads TOML strings such as "2s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type WindowSection struct {
	Width      int    `toml:"width"`
	Height     int    `toml:"height"`
	Title      string `toml:"title"`
	VSync      bool   `toml:"vsync"`
	Fullscreen bool   `toml:"fullscreen"`
}

// Config is the demo's TOML configuration.
type Config struct {
	Window WindowSection `toml:"window"`
	// Backend is "vulkan" or "opengl".
	Backend    string `toml:"backend"`
	Validation bool   `toml:"validation"`
	// Scene is a .gltf, .glb or .obj file; empty draws a cube.
	Scene string `toml:"scene"`
	// Texture is shown in the overlay; empty or unreadable shows a checker.
	Texture     string     `toml:"texture"`
	ClearColor  [4]float32 `toml:"clear_color"`
	LogLevel    string     `toml:"log_level"`
	FPSInterval Duration   `toml:"fps_interval"`
}

func DefaultConfig() Config {
	wc := core.DefaultWindowConfig()
	return Config{
		Window: WindowSection{
			Width:  wc.Width,
			Height: wc.Height,
			Title:  wc.Title,
			VSync:  wc.VSync,
		},
		Backend:     core.APIVulkan.String(),
		ClearColor:  gpu.DefaultClearValues.Color,
		LogLevel:    "info",
		FPSInterval: Duration{2 * time.Second},
	}
}

// LoadConfig reads path over the defaults. An empty path returns the
// defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "failed to read config")
	}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, errors.Wrapf(err, "failed to parse %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrapf(err, "invalid config %s", path)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return errors.Newf("window size %dx%d must be positive", c.Window.Width, c.Window.Height)
	}
	if _, err := core.ParseAPI(c.Backend); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.FPSInterval.Duration <= 0 {
		return errors.Newf("fps_interval %s must be positive", c.FPSInterval)
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return l, errors.Wrapf(err, "log_level")
	}
	return l, nil
}

// WindowConfig returns the window settings for api.
func (c Config) WindowConfig(api core.API) core.WindowConfig {
	wc := core.DefaultWindowConfig()
	wc.Width = c.Window.Width
	wc.Height = c.Window.Height
	wc.Title = c.Window.Title
	wc.VSync = c.Window.VSync
	wc.Fullscreen = c.Window.Fullscreen
	wc.API = api
	return wc
}
