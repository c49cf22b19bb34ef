package loaders

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFont = `info face="Test" size=8 bold=0 italic=0 charset="" unicode=1 stretchH=100 smooth=1 aa=1 padding=0,0,0,0 spacing=1,1 outline=0
common lineHeight=10 base=8 scaleW=16 scaleH=16 pages=1 packed=0 alphaChnl=0 redChnl=4 greenChnl=4 blueChnl=4
page id=0 file="test_0.png"
chars count=2
char id=65   x=0     y=0     width=4     height=6     xoffset=0     yoffset=2     xadvance=5     page=0  chnl=15
char id=66   x=5     y=0     width=4     height=6     xoffset=1     yoffset=2     xadvance=6     page=0  chnl=15
kernings count=1
kerning first=65  second=66  amount=-1
`

func TestLoadBitmapFont(t *testing.T) {
	dir := t.TempDir()
	atlas := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	atlas.Set(1, 1, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	f, err := os.Create(filepath.Join(dir, "test_0.png"))
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, atlas))
	require.NoError(t, f.Close())

	path := filepath.Join(dir, "test.fnt")
	require.NoError(t, os.WriteFile(path, []byte(testFont), 0o644))

	font, err := LoadBitmapFont(path)
	require.NoError(t, err)
	assert.Equal(t, "Test", font.Face)
	assert.Equal(t, 10, font.LineHeight)
	assert.Equal(t, 16, font.ScaleW)
	assert.Len(t, font.Glyphs, 2)
	assert.Equal(t, 6, font.Glyphs['B'].XAdvance)
	assert.Equal(t, -1, font.Kerning[[2]rune{'A', 'B'}])
	require.NotNil(t, font.Atlas)
	assert.Equal(t, image.Rect(0, 0, 16, 16), font.Atlas.Bounds())
	assert.Equal(t, uint8(255), font.Atlas.RGBAAt(1, 1).R)
}

func TestLoadBinaryRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	odd := filepath.Join(dir, "odd.spv")
	require.NoError(t, os.WriteFile(odd, []byte{1, 2, 3}, 0o644))
	_, err := LoadBinary(odd)
	assert.Error(t, err)

	wrong := filepath.Join(dir, "wrong.spv")
	require.NoError(t, os.WriteFile(wrong, []byte{0, 0, 0, 0}, 0o644))
	_, err = LoadBinary(wrong)
	assert.Error(t, err)
}

func TestBytesToBytecode(t *testing.T) {
	words := BytesToBytecode([]byte{0x03, 0x02, 0x23, 0x07, 1, 0, 0, 0})
	assert.Equal(t, []uint32{spirvMagic, 1}, words)
}
