package vkframe

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	conf := DefaultConfig()
	conf.FeatureLevel = FeatureLevel12_1
	conf.MsaaEnabled = true
	conf.MsaaSampleCount = 8
	conf.MsaaQualityLevel = 1
	conf.FenceTimeout = Duration{2 * time.Second}

	require.NoError(t, SaveConfig(path, conf))
	got, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, conf, got)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `FeatureLevel = "12_1"`)
	assert.Contains(t, string(raw), `FenceTimeout = "2s"`)
}

func TestLoadConfigKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("VsyncEnabled = false\nFeatureLevel = \"12_0\"\n"), 0644))

	got, err := LoadConfig(path)
	require.NoError(t, err)
	assert.False(t, got.VsyncEnabled)
	assert.Equal(t, FeatureLevel12_0, got.FeatureLevel)
	assert.Equal(t, DefaultConfig().FramesInFlight, got.FramesInFlight)
	assert.Equal(t, 5*time.Second, got.FenceTimeout.Duration)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"level":   `FeatureLevel = "13_0"`,
		"frames":  `FramesInFlight = 9`,
		"timeout": `FenceTimeout = "soon"`,
		"msaa":    "MsaaEnabled = true\nMsaaSampleCount = 3",
	} {
		path := filepath.Join(dir, name+".toml")
		require.NoError(t, os.WriteFile(path, []byte(body), 0644))
		_, err := LoadConfig(path)
		assert.Error(t, err, name)
	}
}

func TestConfigValidate(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, c.Validate())

	c.UploadBlockSize = 16
	assert.ErrorIs(t, c.Validate(), ErrInvalidArgument)

	// Upload blocks are carved into aligned constant elements.
	c.UploadBlockSize = 1000
	assert.ErrorIs(t, c.Validate(), ErrInvalidArgument)
	c.UploadBlockSize = 1024
	assert.NoError(t, c.Validate())
}

func TestFeatureLevelText(t *testing.T) {
	var f FeatureLevel
	require.NoError(t, f.UnmarshalText([]byte("11_1")))
	assert.Equal(t, FeatureLevel11_1, f)
	assert.Equal(t, "11_1", f.String())
	assert.ErrorIs(t, f.UnmarshalText([]byte("9_3")), ErrInvalidArgument)
}
