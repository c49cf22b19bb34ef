package engine

type ApplicationConfig struct {
	// The application name used in windowing and by the device.
	Name string
	// SettingsPath is the TOML settings file. It is watched for changes.
	SettingsPath string
	// AssetsDir is indexed and watched for font and shader changes.
	AssetsDir string
	// Headless renders into the in-memory device without a window.
	Headless bool
	// HeadlessFrames bounds a headless run; 0 runs until Quit.
	HeadlessFrames int
	// CaptureOnExit lists attachment ids ("pass.attachment") written to the
	// capture directory after the last frame.
	CaptureOnExit []string
	// Debug enables the device validation layer.
	Debug bool
}
