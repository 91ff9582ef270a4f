package vkbackend

import (
	"fmt"
	"slices"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/vkframe"
)

// Version is used to specify versions of components
type Version struct {
	Major int
	Minor int
	Patch int
}

// VKVersion returns a Vulkan compatible version representation
func (v Version) VKVersion() uint32 {
	return vk.MakeVersion(v.Major, v.Minor, v.Patch)
}

// Options configure the Vulkan instance behind a Backend.
type Options struct {
	// AppName the name of the application
	AppName string
	// EngineName the name of the engine associated with the application
	EngineName string
	Version    Version

	// Extensions are instance extensions required by the window system,
	// usually glfw's GetRequiredInstanceExtensions.
	Extensions []string

	// Debug enables the Khronos validation layer and routes its reports to
	// vkframe.Logger.
	Debug bool
}

// SupportedLayers returns a list of supported layers for use by Vulkan.
// Vulkan must have been initialized first.
func SupportedLayers() ([]string, error) {
	var count uint32
	if err := vkErr("enumerate instance layers", vk.EnumerateInstanceLayerProperties(&count, nil)); err != nil {
		return nil, err
	}
	props := make([]vk.LayerProperties, count)
	if err := vkErr("enumerate instance layers", vk.EnumerateInstanceLayerProperties(&count, props)); err != nil {
		return nil, err
	}
	names := make([]string, 0, count)
	for _, layer := range props {
		layer.Deref()
		names = append(names, vk.ToString(layer.LayerName[:]))
	}
	return names, nil
}

// SupportedExtensions returns a list of supported instance extensions.
func SupportedExtensions() ([]string, error) {
	var count uint32
	if err := vkErr("enumerate instance extensions", vk.EnumerateInstanceExtensionProperties("", &count, nil)); err != nil {
		return nil, err
	}
	props := make([]vk.ExtensionProperties, count)
	if err := vkErr("enumerate instance extensions", vk.EnumerateInstanceExtensionProperties("", &count, props)); err != nil {
		return nil, err
	}
	names := make([]string, 0, count)
	for _, ext := range props {
		ext.Deref()
		names = append(names, vk.ToString(ext.ExtensionName[:]))
	}
	return names, nil
}

// Backend is a Vulkan instance; it enumerates physical devices as adapters.
type Backend struct {
	VKInstance vk.Instance

	debugCallback vk.DebugReportCallback
	debugEnabled  bool
}

var _ vkframe.Backend = (*Backend)(nil)

// NewBackend creates the Vulkan instance. The instance proc address must have
// been set up beforehand, see platform.InitVulkan.
func NewBackend(opts Options) (*Backend, error) {
	extensions := slices.Clone(opts.Extensions)
	var layers []string

	if opts.Debug {
		available, err := SupportedLayers()
		if err != nil {
			return nil, err
		}
		if slices.Contains(available, "VK_LAYER_KHRONOS_validation") {
			layers = append(layers, "VK_LAYER_KHRONOS_validation")
			extensions = append(extensions, "VK_EXT_debug_report")
		} else {
			vkframe.Logger().Warn("vkbackend: validation layer not available")
		}
	}

	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         vk.MakeVersion(1, 0, 0),
		ApplicationVersion: opts.Version.VKVersion(),
		PApplicationName:   safeString(opts.AppName),
		PEngineName:        safeString(opts.EngineName),
	}

	extensions = safeStrings(extensions)
	layers = safeStrings(layers)
	createInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
	}

	b := &Backend{}
	if err := vkErr("create instance", vk.CreateInstance(&createInfo, nil, &b.VKInstance)); err != nil {
		return nil, err
	}
	if err := vk.InitInstance(b.VKInstance); err != nil {
		vk.DestroyInstance(b.VKInstance, nil)
		return nil, fmt.Errorf("vkbackend: init instance: %w", err)
	}

	if len(layers) > 0 {
		if err := b.setDebugCallback(debugReport); err != nil {
			vkframe.Logger().Warn("vkbackend: debug callback unavailable", "err", err)
		}
	}
	return b, nil
}

// Adapters returns the physical devices in enumeration order.
func (b *Backend) Adapters() ([]vkframe.Adapter, error) {
	var count uint32
	if err := vkErr("enumerate physical devices", vk.EnumeratePhysicalDevices(b.VKInstance, &count, nil)); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	devices := make([]vk.PhysicalDevice, count)
	if err := vkErr("enumerate physical devices", vk.EnumeratePhysicalDevices(b.VKInstance, &count, devices)); err != nil {
		return nil, err
	}

	ret := make([]vkframe.Adapter, count)
	for i, pd := range devices {
		ret[i] = newPhysicalDevice(b, i, pd)
	}
	return ret, nil
}

func (b *Backend) setDebugCallback(callback vk.DebugReportCallbackFunc) error {
	err := vkErr("create debug report callback", vk.CreateDebugReportCallback(b.VKInstance, &vk.DebugReportCallbackCreateInfo{
		SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
		PfnCallback: callback,
	}, nil, &b.debugCallback))
	b.debugEnabled = err == nil
	return err
}

func debugReport(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType,
	object uint64, location uint, messageCode int32, pLayerPrefix string,
	pMessage string, pUserData unsafe.Pointer) vk.Bool32 {

	log := vkframe.Logger()
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		log.Error("vulkan: "+pMessage, "layer", pLayerPrefix, "code", messageCode)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit|vk.DebugReportPerformanceWarningBit) != 0:
		log.Warn("vulkan: "+pMessage, "layer", pLayerPrefix, "code", messageCode)
	default:
		log.Debug("vulkan: "+pMessage, "layer", pLayerPrefix, "code", messageCode)
	}
	return vk.Bool32(vk.False)
}

// Release destroys the instance. Every device must have been released.
func (b *Backend) Release() {
	if b.debugEnabled {
		vk.DestroyDebugReportCallback(b.VKInstance, b.debugCallback, nil)
	}
	vk.DestroyInstance(b.VKInstance, nil)
}
