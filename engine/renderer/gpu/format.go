package gpu

import (
	"fmt"
	"strings"
)

type Format uint8

const (
	FormatUndefined Format = iota
	FormatRGBA8Unorm
	FormatRGBA8SRGB
	FormatBGRA8Unorm
	FormatBGRA8SRGB
	FormatR8Unorm
	FormatR16Float
	FormatRGBA16Float
	FormatRGBA32Float
	FormatD32Float
	FormatD24UnormS8
)

var formatNames = map[Format]string{
	FormatUndefined:   "undefined",
	FormatRGBA8Unorm:  "rgba8_unorm",
	FormatRGBA8SRGB:   "rgba8_srgb",
	FormatBGRA8Unorm:  "bgra8_unorm",
	FormatBGRA8SRGB:   "bgra8_srgb",
	FormatR8Unorm:     "r8_unorm",
	FormatR16Float:    "r16_float",
	FormatRGBA16Float: "rgba16_float",
	FormatRGBA32Float: "rgba32_float",
	FormatD32Float:    "d32_float",
	FormatD24UnormS8:  "d24_unorm_s8",
}

func (f Format) String() string {
	if n, ok := formatNames[f]; ok {
		return n
	}
	return fmt.Sprintf("format(%d)", uint8(f))
}

// ParseFormat is the inverse of Format.String.
func ParseFormat(s string) (Format, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for f, n := range formatNames {
		if n == s {
			return f, nil
		}
	}
	return FormatUndefined, fmt.Errorf("unknown format %q", s)
}

func (f Format) IsDepth() bool {
	return f == FormatD32Float || f == FormatD24UnormS8
}

func (f Format) HasStencil() bool {
	return f == FormatD24UnormS8
}

func (f Format) BytesPerPixel() int {
	switch f {
	case FormatR8Unorm:
		return 1
	case FormatR16Float:
		return 2
	case FormatRGBA8Unorm, FormatRGBA8SRGB, FormatBGRA8Unorm, FormatBGRA8SRGB, FormatD32Float, FormatD24UnormS8:
		return 4
	case FormatRGBA16Float:
		return 8
	case FormatRGBA32Float:
		return 16
	}
	return 0
}

// MarshalText lets formats appear by name in settings files.
func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *Format) UnmarshalText(text []byte) error {
	v, err := ParseFormat(string(text))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

type Extent struct {
	Width  uint32
	Height uint32
}

func (e Extent) Empty() bool {
	return e.Width == 0 || e.Height == 0
}

// Scale returns the extent multiplied by s, never smaller than 1x1.
// A zero scale is treated as 1.
func (e Extent) Scale(s float32) Extent {
	if s == 0 || s == 1 {
		return e
	}
	w := uint32(float32(e.Width) * s)
	h := uint32(float32(e.Height) * s)
	return Extent{Width: max(w, 1), Height: max(h, 1)}
}

func (e Extent) Aspect() float32 {
	if e.Height == 0 {
		return 1
	}
	return float32(e.Width) / float32(e.Height)
}

func (e Extent) String() string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}
