package systems

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

func TestLoadSettingsMissingFileGivesDefaults(t *testing.T) {
	s, err := LoadSettings(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, metadata.DefaultSettings(), s)
}

func TestLoadSettingsOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
buffering = "double"
shadow_quality = "high"
enable_raytracing = true
clear_color = [0.1, 0.2, 0.3, 1.0]

[window]
width = 800
height = 600
`), 0o644))

	s, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, metadata.BufferingDouble, s.Buffering)
	assert.Equal(t, metadata.ShadowHigh, s.ShadowQuality)
	assert.True(t, s.EnableRaytracing)
	assert.Equal(t, [4]float32{0.1, 0.2, 0.3, 1}, s.ClearColor)
	assert.Equal(t, uint32(800), s.Window.Width)
	assert.Equal(t, "Lumen", s.Window.Title)
	assert.Equal(t, metadata.DefaultSettings().MaxObjects, s.MaxObjects)
}

func TestLoadSettingsRejectsBadInput(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"syntax":  "buffering = ",
		"enum":    `shadow_quality = "ultra"`,
		"invalid": "max_objects = 0",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".toml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := LoadSettings(path)
			assert.Error(t, err)
		})
	}
}

func TestSaveSettingsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	s := metadata.DefaultSettings()
	s.SyncMode = metadata.SyncMailbox
	s.ShadowQuality = metadata.ShadowOff
	require.NoError(t, SaveSettings(path, s))

	loaded, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, s, loaded)
}
