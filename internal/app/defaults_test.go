package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetDefaults(t *testing.T) {
	homeDir, _ := os.UserHomeDir()

	tests := []struct {
		name string
		env  map[string]string
		want Defaults
	}{
		{
			name: "explicit overrides win",
			env: map[string]string{
				"DOCVERIFY_CONFIG_PATH": "/custom/config.toml",
				"DOCVERIFY_HOME":        "/custom/docverify",
				"XDG_CONFIG_HOME":       "/xdg/config",
				"XDG_DATA_HOME":         "/xdg/data",
			},
			want: Defaults{ConfigPath: "/custom/config.toml", BaseDir: "/custom/docverify", LogDir: "/custom/docverify/log"},
		},
		{
			name: "xdg directories",
			env:  map[string]string{"XDG_CONFIG_HOME": "/xdg/config", "XDG_DATA_HOME": "/xdg/data"},
			want: Defaults{ConfigPath: "/xdg/config/docverify.toml", BaseDir: "/xdg/data/docverify", LogDir: "/xdg/data/docverify/log"},
		},
		{
			name: "home dir fallback",
			env:  map[string]string{},
			want: Defaults{
				ConfigPath: filepath.Join(homeDir, ".config", "docverify.toml"),
				BaseDir:    filepath.Join(homeDir, ".local", "share", "docverify"),
				LogDir:     filepath.Join(homeDir, ".local", "share", "docverify", "log"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{"DOCVERIFY_CONFIG_PATH", "DOCVERIFY_HOME", "XDG_CONFIG_HOME", "XDG_DATA_HOME"} {
				t.Setenv(k, tt.env[k])
			}

			got, err := GetDefaults()
			if err != nil {
				t.Fatalf("GetDefaults() error = %v", err)
			}
			if *got != tt.want {
				t.Errorf("GetDefaults() = %+v, want %+v", *got, tt.want)
			}
		})
	}
}
