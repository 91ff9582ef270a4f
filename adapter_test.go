package vkframe

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectAdapterSkipsSoftware(t *testing.T) {
	soft := hardwareAdapter(0, newFakeDevice())
	soft.info.Software = true
	hw := hardwareAdapter(1, newFakeDevice())

	cfg := DefaultConfig()
	cfg.FeatureLevel = FeatureLevel12_0
	sel, err := SelectAdapter([]Adapter{soft, hw}, cfg)
	require.NoError(t, err)
	assert.Same(t, hw, sel.Adapter)
	assert.Equal(t, 0, soft.created, "software adapters are never opened")
}

func TestSelectAdapterNoneQualifies(t *testing.T) {
	cfg := DefaultConfig()
	_, err := SelectAdapter(nil, cfg)
	assert.ErrorIs(t, err, ErrNotImplemented)

	soft := hardwareAdapter(0, newFakeDevice())
	soft.info.Software = true
	old := hardwareAdapter(1, newFakeDevice())
	old.maxLvl = FeatureLevel11_1
	cfg.FeatureLevel = FeatureLevel12_0
	_, err = SelectAdapter([]Adapter{soft, old}, cfg)
	assert.ErrorIs(t, err, ErrNotImplemented)
}

func TestSelectAdapterFeatureValidation(t *testing.T) {
	noRT := newFakeDevice()
	rt := newFakeDevice()
	rt.caps.Raytracing = RaytracingTier1_0

	cfg := DefaultConfig()
	cfg.RaytracingEnabled = true
	sel, err := SelectAdapter([]Adapter{hardwareAdapter(0, noRT), hardwareAdapter(1, rt)}, cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, sel.Adapter.Info().Index)
	assert.True(t, noRT.released, "rejected device is released")
	assert.False(t, rt.released)
}

func TestSelectAdapterMsaaQualityClamp(t *testing.T) {
	tests := []struct {
		name      string
		levels    int
		requested int
		want      int
		wantErr   error
	}{
		{"requested below max", 8, 2, 2, nil},
		{"requested above max", 4, 10, 3, nil},
		{"single level", 1, 5, 0, nil},
		{"unsupported", 0, 0, 0, ErrNotImplemented},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newFakeDevice()
			dev.msaaLevels = tt.levels
			cfg := DefaultConfig()
			cfg.MsaaEnabled = true
			cfg.MsaaQualityLevel = tt.requested
			sel, err := SelectAdapter([]Adapter{hardwareAdapter(0, dev)}, cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, sel.MsaaQuality)
		})
	}
}

func TestSelectAdapterLogsReadableMemory(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	defer SetLogger(nil)

	hw := hardwareAdapter(0, newFakeDevice())
	hw.info.DedicatedMemory = 2 << 30
	cfg := DefaultConfig()
	cfg.FeatureLevel = FeatureLevel12_0
	_, err := SelectAdapter([]Adapter{hw}, cfg)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "memory=2GiB")
}
