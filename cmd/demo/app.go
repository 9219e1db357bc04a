package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"

	"vkrender/core"
	"vkrender/gpu"
	"vkrender/pipelines"
	"vkrender/scene"
	"vkrender/textures"
)

// spinRate is the model's rotation speed in radians per second.
const spinRate = 0.5

type drawable struct {
	material string
	vertices gpu.Buffer
	count    uint32
}

// App owns everything drawn by the demo and runs the frame loop.
type App struct {
	cfg    Config
	log    *slog.Logger
	window *core.Window
	device gpu.Device
	frames *gpu.FrameManager

	phong   *pipelines.Phong
	color   *pipelines.Color3D
	overlay *Overlay
	store   *textures.Store

	meshes []drawable
	ground drawable
	fit    mgl32.Mat4
	view   mgl32.Mat4

	fps    *core.FPSCounter
	angle  float32
	paused bool
}

func NewApp(cfg Config, log *slog.Logger, window *core.Window, device gpu.Device) (*App, error) {
	frames, err := gpu.NewFrameManager(device, gpu.FrameOptions{
		Clear: gpu.ClearValues{Color: cfg.ClearColor, Depth: 1},
	})
	if err != nil {
		return nil, err
	}
	a := &App{
		cfg:    cfg,
		log:    log,
		window: window,
		device: device,
		frames: frames,
		view:   pipelines.DefaultView(),
		fps:    core.NewFPSCounter(),
	}
	if err := a.init(); err != nil {
		a.Release()
		return nil, err
	}

	window.SetResizeCallback(func(width, height int) {
		a.frames.OnSurfaceInvalidated()
	})
	window.SetKeyCallback(func(key int, pressed bool) {
		if !pressed {
			return
		}
		switch key {
		case core.KeyEscape:
			window.Close()
		case core.KeySpace:
			a.paused = !a.paused
		}
	})
	return a, nil
}

func (a *App) init() error {
	var err error
	a.store = textures.NewStore(a.device, a.frames.JoinSignal)
	if a.phong, err = pipelines.NewPhong(a.device); err != nil {
		return err
	}
	if a.color, err = pipelines.NewColor3D(a.device); err != nil {
		return err
	}
	caption := fmt.Sprintf("vkrender %s", a.window.API())
	if a.overlay, err = NewOverlay(a.device, a.store, caption, a.cfg.Texture); err != nil {
		return err
	}

	model := a.loadModel()
	a.fit = model.Fit(2)
	for _, mesh := range model.Meshes {
		buf, err := pipelines.VertexBuffer(a.device, "mesh."+mesh.Material, mesh.Vertices)
		if err != nil {
			return errors.Wrapf(err, "failed to upload mesh %q", mesh.Material)
		}
		a.meshes = append(a.meshes, drawable{material: mesh.Material, vertices: buf, count: uint32(len(mesh.Vertices))})
	}
	ground := pipelines.Ground(6, [3]float32{0.2, 0.25, 0.2})
	buf, err := pipelines.VertexBuffer(a.device, "ground", ground)
	if err != nil {
		return err
	}
	a.ground = drawable{vertices: buf, count: uint32(len(ground))}

	// Materials and light go out with the first frame.
	return a.frames.WithCommandBatch(func(b *gpu.CommandBatch) error {
		for _, name := range model.MaterialNames() {
			if err := a.phong.SetMaterial(b, name, model.Materials[name]); err != nil {
				return err
			}
		}
		return a.phong.SetLight(b, pipelines.DefaultLight())
	})
}

func (a *App) loadModel() *scene.Model {
	if a.cfg.Scene == "" {
		return scene.Cube()
	}
	m, err := scene.Load(a.cfg.Scene)
	if err != nil {
		a.log.Warn("falling back to cube", "scene", a.cfg.Scene, "err", err)
		return scene.Cube()
	}
	return m
}

// Run drives frames until the window closes or a fatal error occurs.
func (a *App) Run() error {
	lastReport := time.Now()
	for !a.window.ShouldClose() {
		a.window.PollEvents()

		status, err := a.frames.BeginFrame()
		if err != nil {
			return err
		}
		if !status.Acquired() {
			if w, h := a.window.FramebufferSize(); w == 0 || h == 0 {
				a.window.WaitEvents()
			}
			continue
		}

		dt := a.fps.NextFrame()
		if !a.paused {
			a.angle += spinRate * dt
		}
		if err := a.frame(status); err != nil {
			return err
		}

		if time.Since(lastReport) >= a.cfg.FPSInterval.Duration {
			lastReport = time.Now()
			fps := a.fps.CurrentFPS()
			a.window.SetTitle(fmt.Sprintf("%s - %.0f fps", a.cfg.Window.Title, fps))
			a.log.Info("frame rate", "fps", fps, "avg_ms", a.fps.AvgFrameDelta()*1000,
				"frames", a.frames.Frames(), "rebuilds", a.frames.Rebuilds())
		}
	}
	return nil
}

func (a *App) frame(status gpu.FrameStatus) error {
	extent := a.frames.Extent()
	model := mgl32.HomogRotate3DY(a.angle).Mul4(a.fit)
	proj := pipelines.DefaultProjection(extent)

	err := a.frames.WithCommandBatch(func(b *gpu.CommandBatch) error {
		if status == gpu.FrameResized {
			if err := a.phong.SetProjection(b, proj); err != nil {
				return err
			}
			if err := a.overlay.Resize(b, extent); err != nil {
				return err
			}
		}
		groundMVP := proj.Mul4(a.view).Mul4(mgl32.Translate3D(0, -1.01, 0))
		if err := a.color.SetMVP(b, groundMVP); err != nil {
			return err
		}
		return a.phong.SetTransform(b, pipelines.NewTransform(model, a.view))
	})
	if err != nil {
		return err
	}

	if err := a.frames.BeginRenderPass(); err != nil {
		return err
	}
	err = a.frames.WithCommandBatch(func(b *gpu.CommandBatch) error {
		if err := a.color.Draw(b, a.ground.vertices, a.ground.count); err != nil {
			return err
		}
		for _, m := range a.meshes {
			if err := a.phong.Draw(b, m.material, m.vertices, m.count); err != nil {
				return err
			}
		}
		return a.overlay.Draw(b)
	})
	if err != nil {
		return err
	}
	return a.frames.CommitAndPresent()
}

// Release waits for the GPU and frees everything the app created. The
// device itself belongs to the caller.
func (a *App) Release() {
	if err := a.frames.Release(); err != nil {
		a.log.Error("failed to release frames", "err", err)
	}
	if a.overlay != nil {
		a.overlay.Release()
	}
	if a.phong != nil {
		a.phong.Release()
	}
	if a.color != nil {
		a.color.Release()
	}
	for _, m := range a.meshes {
		m.vertices.Release()
	}
	if a.ground.vertices != nil {
		a.ground.vertices.Release()
	}
	if a.store != nil {
		a.store.Release()
	}
}
