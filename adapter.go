package vkframe

import (
	"fmt"

	units "github.com/docker/go-units"
)

// Selection is the outcome of adapter selection.
type Selection struct {
	Adapter Adapter
	Device  Device
	Caps    Capabilities
	// MsaaQuality is the quality level to create multisampled targets with.
	MsaaQuality int
}

// SelectAdapter walks adapters in index order, skips software adapters and returns
// the first one that creates a device at cfg.FeatureLevel and supports the
// requested ray tracing and multisampling.
func SelectAdapter(adapters []Adapter, cfg Config) (*Selection, error) {
	log := Logger()
	for _, a := range adapters {
		info := a.Info()
		if info.Software {
			log.Debug("vkframe: skipping software adapter", "index", info.Index, "name", info.Name)
			continue
		}
		dev, err := a.CreateDevice(cfg.FeatureLevel)
		if err != nil {
			log.Debug("vkframe: adapter cannot create device", "index", info.Index, "level", cfg.FeatureLevel, "err", err)
			continue
		}
		sel, err := validateDevice(a, dev, cfg)
		if err != nil {
			log.Debug("vkframe: adapter rejected", "index", info.Index, "err", err)
			dev.Release()
			continue
		}
		log.Info("vkframe: adapter selected", "index", info.Index, "name", info.Name,
			"memory", units.BytesSize(float64(info.DedicatedMemory)), "msaaQuality", sel.MsaaQuality)
		return sel, nil
	}
	return nil, fmt.Errorf("%w: no adapter supports feature level %v with the requested features", ErrNotImplemented, cfg.FeatureLevel)
}

func validateDevice(a Adapter, dev Device, cfg Config) (*Selection, error) {
	sel := &Selection{Adapter: a, Device: dev, Caps: dev.Capabilities()}
	if cfg.RaytracingEnabled && sel.Caps.Raytracing < RaytracingTier1_0 {
		return nil, fmt.Errorf("%w: ray tracing tier %d", ErrNotImplemented, sel.Caps.Raytracing)
	}
	if cfg.MsaaEnabled {
		levels, err := dev.MultisampleQualityLevels(BackBufferFormat, cfg.MsaaSampleCount)
		if err != nil {
			return nil, deviceErr("query msaa quality", err)
		}
		if levels < 1 {
			return nil, fmt.Errorf("%w: %dx msaa", ErrNotImplemented, cfg.MsaaSampleCount)
		}
		// FIXME: levels-1 assumes the backend reports a count rather than a
		// maximum index.
		sel.MsaaQuality = max(min(levels-1, cfg.MsaaQualityLevel), 0)
	}
	return sel, nil
}
