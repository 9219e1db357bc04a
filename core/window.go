package core

import (
	"runtime"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"
)

func init() {
	runtime.LockOSThread()
}

// API selects how the window's surface is driven.
type API int

const (
	// APIVulkan creates the window without a client API context.
	APIVulkan API = iota
	// APIOpenGL creates an OpenGL 4.6 core context.
	APIOpenGL
)

func (a API) String() string {
	switch a {
	case APIVulkan:
		return "vulkan"
	case APIOpenGL:
		return "opengl"
	default:
		return "unknown"
	}
}

// ParseAPI maps a configuration name to an API.
func ParseAPI(name string) (API, error) {
	switch name {
	case "", "vulkan":
		return APIVulkan, nil
	case "opengl", "gl":
		return APIOpenGL, nil
	default:
		return 0, errors.Newf("unknown graphics API %q", name)
	}
}

type Window struct {
	Handle *glfw.Window
	Width  int
	Height int
	Title  string

	api      API
	onResize func(width, height int)
}

type WindowConfig struct {
	Width      int
	Height     int
	Title      string
	Resizable  bool
	VSync      bool
	Fullscreen bool
	API        API
}

func DefaultWindowConfig() WindowConfig {
	return WindowConfig{
		Width:     1280,
		Height:    720,
		Title:     "vkrender",
		Resizable: true,
		VSync:     true,
		API:       APIVulkan,
	}
}

// NewWindow initializes glfw and opens a window. For APIOpenGL the context is
// made current on the calling thread.
func NewWindow(config WindowConfig) (*Window, error) {
	if err := glfw.Init(); err != nil {
		return nil, errors.Wrap(err, "failed to initialize GLFW")
	}

	glfw.DefaultWindowHints()
	switch config.API {
	case APIOpenGL:
		glfw.WindowHint(glfw.ContextVersionMajor, 4)
		glfw.WindowHint(glfw.ContextVersionMinor, 6)
		glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
		glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	default:
		glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	}
	glfw.WindowHint(glfw.Resizable, boolToInt(config.Resizable))

	monitor := (*glfw.Monitor)(nil)
	if config.Fullscreen {
		monitor = glfw.GetPrimaryMonitor()
	}

	handle, err := glfw.CreateWindow(config.Width, config.Height, config.Title, monitor, nil)
	if err != nil {
		glfw.Terminate()
		return nil, errors.Wrap(err, "failed to create window")
	}

	window := &Window{
		Handle: handle,
		Title:  config.Title,
		api:    config.API,
	}
	window.Width, window.Height = handle.GetFramebufferSize()

	if config.API == APIOpenGL {
		handle.MakeContextCurrent()
		if config.VSync {
			glfw.SwapInterval(1)
		} else {
			glfw.SwapInterval(0)
		}
	}

	handle.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		window.Width = width
		window.Height = height
		if window.onResize != nil {
			window.onResize(width, height)
		}
	})

	return window, nil
}

// API returns the client API the window was created for.
func (w *Window) API() API { return w.api }

// SetResizeCallback installs fn to run from PollEvents whenever the
// framebuffer changes size, including minimizing to zero.
func (w *Window) SetResizeCallback(fn func(width, height int)) {
	w.onResize = fn
}

func (w *Window) ShouldClose() bool {
	return w.Handle.ShouldClose()
}

// Close asks the frame loop to stop.
func (w *Window) Close() {
	w.Handle.SetShouldClose(true)
}

func (w *Window) PollEvents() {
	glfw.PollEvents()
}

// WaitEvents blocks until an event arrives. Used while minimized.
func (w *Window) WaitEvents() {
	glfw.WaitEvents()
}

// SwapBuffers presents the OpenGL back buffer. Vulkan presents through its
// swapchain and never calls it.
func (w *Window) SwapBuffers() {
	w.Handle.SwapBuffers()
}

// FramebufferSize returns the drawable size in pixels.
func (w *Window) FramebufferSize() (int, int) {
	return w.Handle.GetFramebufferSize()
}

func (w *Window) RequiredInstanceExtensions() []string {
	return w.Handle.GetRequiredInstanceExtensions()
}

// CreateWindowSurface creates a VkSurfaceKHR for instance and returns its
// raw handle.
func (w *Window) CreateWindowSurface(instance interface{}) (uintptr, error) {
	surface, err := w.Handle.CreateWindowSurface(instance, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to create window surface")
	}
	return surface, nil
}

func (w *Window) Destroy() {
	w.Handle.Destroy()
	glfw.Terminate()
}

func (w *Window) IsKeyPressed(key int) bool {
	return w.Handle.GetKey(glfw.Key(key)) == glfw.Press
}

func (w *Window) SetTitle(title string) {
	w.Handle.SetTitle(title)
	w.Title = title
}

// Keys the demo binds.
const (
	KeyEscape = int(glfw.KeyEscape)
	KeySpace  = int(glfw.KeySpace)
)

// KeyCallback receives key presses.
type KeyCallback func(key int, pressed bool)

func (w *Window) SetKeyCallback(cb KeyCallback) {
	w.Handle.SetKeyCallback(func(win *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if action == glfw.Repeat {
			return
		}
		cb(int(key), action == glfw.Press)
	})
}

// VulkanProcAddr returns the loader entry point for Vulkan bindings.
func VulkanProcAddr() unsafe.Pointer {
	return glfw.GetVulkanGetInstanceProcAddress()
}

// VulkanSupported reports whether a Vulkan loader was found.
func VulkanSupported() bool {
	return glfw.VulkanSupported()
}

// ProcAddress resolves OpenGL entry points from the current context.
func ProcAddress(name string) unsafe.Pointer {
	return glfw.GetProcAddress(name)
}

func boolToInt(b bool) int {
	if b {
		return glfw.True
	}
	return glfw.False
}

const (
	KeySpace  = int(glfw.KeySpace)
	KeyEscape = int(glfw.KeyEscape)
	KeyEnter  = int(glfw.KeyEnter)
	KeyF      = int(glfw.KeyF)
	KeyP      = int(glfw.KeyP)
	KeyR      = int(glfw.KeyR)
	KeyW      = int(glfw.KeyW)
	KeyA      = int(glfw.KeyA)
	KeyS      = int(glfw.KeyS)
	KeyD      = int(glfw.KeyD)
	KeyLeft   = int(glfw.KeyLeft)
	KeyRight  = int(glfw.KeyRight)
	KeyUp     = int(glfw.KeyUp)
	KeyDown   = int(glfw.KeyDown)
)
