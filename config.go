package vkframe

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration that reads and writes as "5s" in configuration files.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("%w: duration %q: %v", ErrInvalidArgument, string(b), err)
	}
	d.Duration = v
	return nil
}

// Config is consumed at device init and swap chain creation only.
type Config struct {
	FeatureLevel      FeatureLevel
	VsyncEnabled      bool
	RaytracingEnabled bool
	MsaaEnabled       bool
	MsaaSampleCount   int
	MsaaQualityLevel  int

	FramesInFlight      int
	UploadBlockSize     uint64
	UploadReserveBlocks int
	FenceTimeout        Duration

	Width  int
	Height int
	Title  string
	Debug  bool
}

func DefaultConfig() Config {
	return Config{
		FeatureLevel:        FeatureLevel11_0,
		VsyncEnabled:        true,
		MsaaSampleCount:     4,
		FramesInFlight:      3,
		UploadBlockSize:     64 * 1024,
		UploadReserveBlocks: 2,
		FenceTimeout:        Duration{5 * time.Second},
		Width:               1280,
		Height:              720,
		Title:               "vkframe",
	}
}

// Validate checks the fields that later steps would otherwise reject one by one.
func (c *Config) Validate() error {
	switch {
	case c.FramesInFlight < 1 || c.FramesInFlight > MaxFrameSlots:
		return fmt.Errorf("%w: FramesInFlight %d not in [1,%d]", ErrInvalidArgument, c.FramesInFlight, MaxFrameSlots)
	case c.UploadBlockSize < ConstantBufferAlignment:
		return fmt.Errorf("%w: UploadBlockSize %d below %d", ErrInvalidArgument, c.UploadBlockSize, ConstantBufferAlignment)
	case c.UploadBlockSize%ConstantBufferAlignment != 0:
		return fmt.Errorf("%w: UploadBlockSize %d not a multiple of %d", ErrInvalidArgument, c.UploadBlockSize, ConstantBufferAlignment)
	case c.UploadReserveBlocks < 0:
		return fmt.Errorf("%w: UploadReserveBlocks %d", ErrInvalidArgument, c.UploadReserveBlocks)
	case c.FenceTimeout.Duration <= 0:
		return fmt.Errorf("%w: FenceTimeout %v", ErrInvalidArgument, c.FenceTimeout)
	case c.Width <= 0 || c.Height <= 0:
		return fmt.Errorf("%w: window size %dx%d", ErrInvalidArgument, c.Width, c.Height)
	}
	if c.MsaaEnabled {
		n := c.MsaaSampleCount
		if n < 2 || n > 64 || n&(n-1) != 0 {
			return fmt.Errorf("%w: MsaaSampleCount %d", ErrInvalidArgument, n)
		}
		if c.MsaaQualityLevel < 0 {
			return fmt.Errorf("%w: MsaaQualityLevel %d", ErrInvalidArgument, c.MsaaQualityLevel)
		}
	}
	return nil
}

// LoadConfig reads a TOML file on top of DefaultConfig; missing keys keep their default.
func LoadConfig(path string) (Config, error) {
	conf := DefaultConfig()
	if _, err := toml.DecodeFile(path, &conf); err != nil {
		return conf, fmt.Errorf("vkframe: read config %s: %w", path, err)
	}
	if err := conf.Validate(); err != nil {
		return conf, err
	}
	return conf, nil
}

func SaveConfig(path string, conf Config) error {
	var buffer bytes.Buffer
	if err := toml.NewEncoder(&buffer).Encode(&conf); err != nil {
		return fmt.Errorf("vkframe: encode config: %w", err)
	}
	if err := os.WriteFile(path, buffer.Bytes(), 0644); err != nil {
		return fmt.Errorf("vkframe: write config %s: %w", path, err)
	}
	return nil
}
