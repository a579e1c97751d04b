package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// AppDirName is the per-user directory holding Transcriptor state.
const AppDirName = "transcriptor"

// userConfigDir is swapped in tests.
var userConfigDir = os.UserConfigDir

// AppDir returns the per-user application directory.
func AppDir() (string, error) {
	base, err := userConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config directory: %w", err)
	}
	return filepath.Join(base, AppDirName), nil
}

// LicensePath returns the absolute location of the installed license file.
func (c *Config) LicensePath() (string, error) {
	if filepath.IsAbs(c.License.File) {
		return c.License.File, nil
	}
	dir, err := AppDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, c.License.File), nil
}
