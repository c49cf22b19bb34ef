package loaders

import (
	"image"
	"os"

	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// ImageLoader decodes PNG or BMP files into RGBA.
type ImageLoader struct{}

func (il *ImageLoader) Load(path string) (interface{}, error) {
	return LoadImage(path)
}

func LoadImage(path string) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}
	return ToRGBA(src), nil
}

// ToRGBA returns src itself when it already is a zero-origin RGBA image.
func ToRGBA(src image.Image) *image.RGBA {
	if rgba, ok := src.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}
