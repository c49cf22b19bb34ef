package systems

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// LoadSettings reads a TOML settings file on top of the defaults. A
// missing file yields the defaults.
func LoadSettings(path string) (metadata.Settings, error) {
	s := metadata.DefaultSettings()
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		core.LogInfo("settings file %s not found, using defaults", path)
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("settings: %w", err)
	}

	if err := toml.Unmarshal(data, &s); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return s, fmt.Errorf("settings: %s:%d:%d: %w", path, row, col, err)
		}
		return s, fmt.Errorf("settings: %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// SaveSettings writes s as TOML, creating or truncating path.
func SaveSettings(path string, s metadata.Settings) error {
	data, err := toml.Marshal(s)
	if err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
