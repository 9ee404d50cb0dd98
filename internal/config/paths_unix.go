//go:build !windows

package config

import (
	"os"
	"path/filepath"
)

func configSearchPaths() []string {
	home, _ := os.UserHomeDir()
	return []string{
		filepath.Join(home, ".vitalis", "sampler.yaml"),
		"/etc/vitalis/sampler.yaml",
	}
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "vitalis", "snapshots")
	}
	return filepath.Join(os.TempDir(), "vitalis-snapshots")
}
