package metadata

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/lumen/engine/renderer/gpu"
)

type BufferingType uint8

const (
	BufferingSingle BufferingType = iota + 1
	BufferingDouble
	BufferingTriple
)

var bufferingNames = map[BufferingType]string{
	BufferingSingle: "single",
	BufferingDouble: "double",
	BufferingTriple: "triple",
}

// Frames is the number of frame slots the buffering type asks for.
func (b BufferingType) Frames() int {
	return int(b)
}

func (b BufferingType) String() string { return bufferingNames[b] }

func (b BufferingType) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

func (b *BufferingType) UnmarshalText(text []byte) error {
	return parseEnum(bufferingNames, "buffering", text, b)
}

type SyncMode uint8

const (
	SyncNone SyncMode = iota
	SyncFIFO
	SyncMailbox
)

var syncNames = map[SyncMode]string{
	SyncNone:    "none",
	SyncFIFO:    "fifo",
	SyncMailbox: "mailbox",
}

func (s SyncMode) PresentMode() gpu.PresentMode {
	switch s {
	case SyncFIFO:
		return gpu.PresentFIFO
	case SyncMailbox:
		return gpu.PresentMailbox
	}
	return gpu.PresentImmediate
}

func (s SyncMode) String() string { return syncNames[s] }

func (s SyncMode) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *SyncMode) UnmarshalText(text []byte) error {
	return parseEnum(syncNames, "sync mode", text, s)
}

type ShadowQuality uint8

const (
	ShadowOff ShadowQuality = iota
	ShadowLow
	ShadowMedium
	ShadowHigh
)

var shadowNames = map[ShadowQuality]string{
	ShadowOff:    "off",
	ShadowLow:    "low",
	ShadowMedium: "medium",
	ShadowHigh:   "high",
}

// Resolution is the edge length of the square shadow map, zero when off.
func (q ShadowQuality) Resolution() uint32 {
	switch q {
	case ShadowLow:
		return 1024
	case ShadowMedium:
		return 2048
	case ShadowHigh:
		return 4096
	}
	return 0
}

func (q ShadowQuality) String() string { return shadowNames[q] }

func (q ShadowQuality) MarshalText() ([]byte, error) { return []byte(q.String()), nil }

func (q *ShadowQuality) UnmarshalText(text []byte) error {
	return parseEnum(shadowNames, "shadow quality", text, q)
}

func parseEnum[T comparable](names map[T]string, what string, text []byte, out *T) error {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	for v, n := range names {
		if n == s {
			*out = v
			return nil
		}
	}
	return fmt.Errorf("unknown %s %q", what, s)
}

type WindowSettings struct {
	Title  string `toml:"title"`
	PosX   int32  `toml:"pos_x"`
	PosY   int32  `toml:"pos_y"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
}

type Settings struct {
	Buffering          BufferingType `toml:"buffering"`
	SyncMode           SyncMode      `toml:"sync_mode"`
	DisplayColorFormat gpu.Format    `toml:"display_color_format"`
	EnableUI           bool          `toml:"enable_ui"`
	EnableRaytracing   bool          `toml:"enable_raytracing"`
	ShadowQuality      ShadowQuality `toml:"shadow_quality"`
	ClearColor         [4]float32    `toml:"clear_color"`

	FrameTimeoutMS     int            `toml:"frame_timeout_ms"`
	ResizeSettleFrames int            `toml:"resize_settle_frames"`
	MaxObjects         int            `toml:"max_objects"`
	LogLevel           string         `toml:"log_level"`
	CaptureDir         string         `toml:"capture_dir"`
	ShaderDir          string         `toml:"shader_dir"`
	Font               string         `toml:"font"`
	Window             WindowSettings `toml:"window"`
}

func DefaultSettings() Settings {
	return Settings{
		Buffering:          BufferingTriple,
		SyncMode:           SyncFIFO,
		DisplayColorFormat: gpu.FormatRGBA8Unorm,
		EnableUI:           true,
		EnableRaytracing:   false,
		ShadowQuality:      ShadowMedium,
		ClearColor:         [4]float32{0, 0, 0.2, 1},
		FrameTimeoutMS:     2000,
		ResizeSettleFrames: 30,
		MaxObjects:         4096,
		LogLevel:           "info",
		CaptureDir:         "captures",
		ShaderDir:          "assets/shaders",
		Font:               "assets/fonts/ubuntu-mono-21px.fnt",
		Window: WindowSettings{
			Title:  "Lumen",
			PosX:   100,
			PosY:   100,
			Width:  1280,
			Height: 720,
		},
	}
}

func (s Settings) Validate() error {
	if s.Buffering < BufferingSingle || s.Buffering > BufferingTriple {
		return fmt.Errorf("settings: buffering %d out of range", s.Buffering)
	}
	if s.DisplayColorFormat == gpu.FormatUndefined || s.DisplayColorFormat.IsDepth() {
		return fmt.Errorf("settings: display color format %s is not a color format", s.DisplayColorFormat)
	}
	if s.FrameTimeoutMS <= 0 {
		return fmt.Errorf("settings: frame timeout must be positive, got %dms", s.FrameTimeoutMS)
	}
	if s.ResizeSettleFrames < 0 {
		return fmt.Errorf("settings: resize settle frames must not be negative")
	}
	if s.MaxObjects <= 0 {
		return fmt.Errorf("settings: max objects must be positive, got %d", s.MaxObjects)
	}
	return nil
}

func (s Settings) FrameTimeout() time.Duration {
	return time.Duration(s.FrameTimeoutMS) * time.Millisecond
}

func (s Settings) Clear() mgl32.Vec4 {
	return mgl32.Vec4(s.ClearColor)
}
