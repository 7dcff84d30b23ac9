package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Defaults are the default locations of docverify's files.
type Defaults struct {
	ConfigPath string
	BaseDir    string
	LogDir     string
}

// GetDefaults returns application default paths. Each is taken from the first
// source that is set:
//   - config file: DOCVERIFY_CONFIG_PATH, $XDG_CONFIG_HOME/docverify.toml, ~/.config/docverify.toml
//   - base directory: DOCVERIFY_HOME, $XDG_DATA_HOME/docverify, ~/.local/share/docverify
//
// The log directory is always <base>/log.
func GetDefaults() (*Defaults, error) {
	configPath, err := lookupPath("DOCVERIFY_CONFIG_PATH", "XDG_CONFIG_HOME", "docverify.toml", ".config")
	if err != nil {
		return nil, err
	}
	baseDir, err := lookupPath("DOCVERIFY_HOME", "XDG_DATA_HOME", "docverify", filepath.Join(".local", "share"))
	if err != nil {
		return nil, err
	}

	return &Defaults{
		ConfigPath: configPath,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
	}, nil
}

// lookupPath returns $override, else $xdgVar/name, else ~/homeDir/name.
func lookupPath(override, xdgVar, name, homeDir string) (string, error) {
	if path := os.Getenv(override); path != "" {
		return path, nil
	}
	if dir := os.Getenv(xdgVar); dir != "" {
		return filepath.Join(dir, name), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, homeDir, name), nil
}
