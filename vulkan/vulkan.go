// Package vulkan implements gpu.Device on Vulkan through the goki/vulkan
// bindings. Windowing and surface creation go through core.Window.
package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"vkrender/gpu"
)

type Config struct {
	AppName          string
	EnableValidation bool
	VSync            bool
	// Images is the requested swapchain length; the surface may grant more.
	Images uint32
}

func DefaultConfig() Config {
	return Config{
		AppName: "vkrender",
		VSync:   true,
		Images:  2,
	}
}

// result maps a Vulkan result to the gpu error taxonomy.
func result(ret vk.Result, op string) error {
	switch ret {
	case vk.Success:
		return nil
	case vk.ErrorOutOfDate:
		return errors.Wrapf(gpu.ErrOutOfDate, "%s", op)
	case vk.ErrorDeviceLost:
		return errors.Wrapf(gpu.ErrDeviceLost, "%s", op)
	default:
		return errors.Wrapf(vk.Error(ret), "failed to %s", op)
	}
}

func safeString(s string) string {
	return s + "\x00"
}

func safeStrings(list []string) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = safeString(s)
	}
	return out
}
