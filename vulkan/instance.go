package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"vkrender/gpu"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

type Instance struct {
	Handle           vk.Instance
	EnableValidation bool
}

// NewInstance creates a Vulkan 1.1 instance with the window system's
// required extensions.
func NewInstance(cfg Config, extensions []string) (*Instance, error) {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   safeString(cfg.AppName),
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PEngineName:        safeString("vkrender"),
		EngineVersion:      vk.MakeVersion(1, 0, 0),
		ApiVersion:         vk.MakeVersion(1, 1, 0),
	}

	var layers []string
	if cfg.EnableValidation {
		if !checkValidationLayerSupport() {
			return nil, errors.New("validation layers requested but not available")
		}
		layers = []string{validationLayer}
	}

	var instance vk.Instance
	ret := vk.CreateInstance(&vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     safeStrings(layers),
	}, nil, &instance)
	if err := result(ret, "create Vulkan instance"); err != nil {
		return nil, err
	}
	if err := vk.InitInstance(instance); err != nil {
		vk.DestroyInstance(instance, nil)
		return nil, errors.Wrap(err, "failed to load instance functions")
	}
	gpu.Logger().Debug("vulkan instance created", "extensions", extensions, "validation", cfg.EnableValidation)

	return &Instance{Handle: instance, EnableValidation: cfg.EnableValidation}, nil
}

func (i *Instance) Destroy() {
	if i.Handle != nil {
		vk.DestroyInstance(i.Handle, nil)
		i.Handle = nil
	}
}

func checkValidationLayerSupport() bool {
	var count uint32
	if vk.EnumerateInstanceLayerProperties(&count, nil) != vk.Success || count == 0 {
		return false
	}
	props := make([]vk.LayerProperties, count)
	vk.EnumerateInstanceLayerProperties(&count, props)
	for _, p := range props {
		p.Deref()
		if vk.ToString(p.LayerName[:]) == validationLayer {
			return true
		}
	}
	return false
}
