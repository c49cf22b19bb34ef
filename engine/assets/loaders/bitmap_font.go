package loaders

import (
	"fmt"
	"image"
	"path/filepath"

	"github.com/fzipp/bmfont"
)

type Glyph struct {
	X, Y          int
	Width, Height int
	XOffset       int
	YOffset       int
	XAdvance      int
	Page          int
}

// BitmapFont is the subset of an AngelCode font the overlay needs, with
// the first page decoded as its atlas.
type BitmapFont struct {
	Face       string
	Size       int
	LineHeight int
	Baseline   int
	ScaleW     int
	ScaleH     int
	Glyphs     map[rune]Glyph
	Kerning    map[[2]rune]int
	Atlas      *image.RGBA
}

type BitmapFontLoader struct{}

func (fl *BitmapFontLoader) Load(path string) (interface{}, error) {
	return LoadBitmapFont(path)
}

func LoadBitmapFont(path string) (*BitmapFont, error) {
	font, err := bmfont.Load(path)
	if err != nil {
		return nil, err
	}

	out := &BitmapFont{
		Face:       font.Descriptor.Info.Face,
		Size:       int(font.Descriptor.Info.Size),
		LineHeight: int(font.Descriptor.Common.LineHeight),
		Baseline:   int(font.Descriptor.Common.Base),
		ScaleW:     int(font.Descriptor.Common.ScaleW),
		ScaleH:     int(font.Descriptor.Common.ScaleH),
		Glyphs:     make(map[rune]Glyph, len(font.Descriptor.Chars)),
		Kerning:    make(map[[2]rune]int, len(font.Descriptor.Kerning)),
	}

	for _, g := range font.Descriptor.Chars {
		out.Glyphs[rune(g.ID)] = Glyph{
			X:        int(g.X),
			Y:        int(g.Y),
			Width:    int(g.Width),
			Height:   int(g.Height),
			XOffset:  int(g.XOffset),
			YOffset:  int(g.YOffset),
			XAdvance: int(g.XAdvance),
			Page:     int(g.Page),
		}
	}

	for p, k := range font.Descriptor.Kerning {
		out.Kerning[[2]rune{rune(p.First), rune(p.Second)}] = int(k.Amount)
	}

	var atlasFile string
	for _, p := range font.Descriptor.Pages {
		if p.ID == 0 {
			atlasFile = p.File
		}
	}
	if atlasFile == "" {
		return nil, fmt.Errorf("%s: font has no page 0", path)
	}
	atlas, err := LoadImage(filepath.Join(filepath.Dir(path), atlasFile))
	if err != nil {
		return nil, fmt.Errorf("%s: load atlas: %w", path, err)
	}
	out.Atlas = atlas
	return out, nil
}
