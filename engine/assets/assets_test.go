package assets

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

func spirv(words ...uint32) []byte {
	buf := make([]byte, 4*(len(words)+1))
	binary.LittleEndian.PutUint32(buf, 0x07230203)
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[4*(i+1):], w)
	}
	return buf
}

func TestDetermineAssetType(t *testing.T) {
	assert.Equal(t, AssetTypeShader, determineAssetType("a/b/lighting.frag.spv"))
	assert.Equal(t, AssetTypeFont, determineAssetType("ubuntu.fnt"))
	assert.Equal(t, AssetTypeImage, determineAssetType("atlas.png"))
	assert.Equal(t, AssetTypeSettings, determineAssetType("lumen.toml"))
	assert.Equal(t, AssetTypeNone, determineAssetType("README.md"))
}

func TestLoadShaderStage(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blit.frag.spv"), spirv(1, 2), 0o644))

	am, err := NewAssetManager()
	require.NoError(t, err)
	require.NoError(t, am.Initialize(dir, dir))
	defer am.Close()

	info, ok := am.Lookup(filepath.Join(dir, "blit.frag.spv"))
	require.True(t, ok)
	assert.Equal(t, AssetTypeShader, info.Type)

	code, err := am.Load(gpu.ShaderStage{Kind: gpu.StageFragment, Name: "blit"})
	require.NoError(t, err)
	assert.Len(t, code, 12)

	_, err = am.Load(gpu.ShaderStage{Kind: gpu.StageVertex, Name: "blit"})
	assert.Error(t, err)
}

func TestWatchFileReportsWrites(t *testing.T) {
	dir := t.TempDir()
	settings := filepath.Join(dir, "lumen.toml")
	require.NoError(t, os.WriteFile(settings, []byte("log_level = \"info\"\n"), 0o644))

	am, err := NewAssetManager()
	require.NoError(t, err)
	require.NoError(t, am.Initialize(filepath.Join(dir, "missing"), dir))
	defer am.Close()

	var mu sync.Mutex
	var seen []Change
	am.OnChange(func(c Change) {
		mu.Lock()
		seen = append(seen, c)
		mu.Unlock()
	})
	require.NoError(t, am.WatchFile(settings))

	require.NoError(t, os.WriteFile(settings, []byte("log_level = \"debug\"\n"), 0o644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, c := range seen {
			if c.Path == settings && c.Type == AssetTypeSettings {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCloseTwice(t *testing.T) {
	am, err := NewAssetManager()
	require.NoError(t, err)
	require.NoError(t, am.Initialize(t.TempDir(), ""))
	assert.NoError(t, am.Close())
	assert.NoError(t, am.Close())
	assert.ErrorIs(t, am.WatchFile("x.toml"), ErrClosed)
}
