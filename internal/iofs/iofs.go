// Package iofs prepares the filesystem the application expects: the
// configuration and data directories, and a default config file for
// fresh installs.
package iofs

import (
	_ "embed"
	"os"

	"github.com/openepi/sentinel/pkg/config"
)

//go:embed sentinel.yaml
var ConfigYAML string

// EnsureDirs creates the configured directories when they are missing.
func EnsureDirs(cfg *config.Config) error {
	for _, dir := range []string{cfg.ConfigDirectory, cfg.DataDirectory} {
		if dir == "" {
			continue
		}
		if err := touchDir(dir); err != nil {
			return err
		}
	}
	return nil
}

func touchDir(dir string) error {
	info, err := os.Stat(dir)
	if err == nil && info.IsDir() {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return NewCreateDirError(dir, err)
	}
	return nil
}

// EnsureConfigFile writes the embedded default configuration to path
// unless a file already exists there.
func EnsureConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.WriteFile(path, []byte(ConfigYAML), 0o644); err != nil {
		return NewCopyFileError(path, err)
	}
	return nil
}
