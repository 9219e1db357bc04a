// Command demo renders a spinning model with Phong lighting on Vulkan or
// OpenGL.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"vkrender/core"
	"vkrender/gpu"
	"vkrender/opengl"
	"vkrender/vulkan"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "demo: %v\n", err)
		os.Exit(2)
	}
	level, _ := cfg.Level()
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	gpu.SetLogger(log)

	if err := run(cfg, log); err != nil {
		log.Error("demo failed", "err", fmt.Sprintf("%+v", err))
		os.Exit(1)
	}
}

func run(cfg Config, log *slog.Logger) error {
	api, err := core.ParseAPI(cfg.Backend)
	if err != nil {
		return err
	}
	window, err := core.NewWindow(cfg.WindowConfig(api))
	if err != nil {
		return err
	}
	defer window.Destroy()

	device, err := openDevice(window, cfg)
	if err != nil {
		return err
	}
	defer device.Release()

	app, err := NewApp(cfg, log, window, device)
	if err != nil {
		return err
	}
	defer app.Release()

	log.Info("running", "backend", api, "scene", cfg.Scene)
	return app.Run()
}

func openDevice(window *core.Window, cfg Config) (gpu.Device, error) {
	if window.API() == core.APIOpenGL {
		b, err := opengl.NewBackend(window)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
	vc := vulkan.DefaultConfig()
	vc.EnableValidation = cfg.Validation
	vc.VSync = cfg.Window.VSync
	b, err := vulkan.NewBackend(window, vc)
	if err != nil {
		return nil, err
	}
	return b, nil
}
