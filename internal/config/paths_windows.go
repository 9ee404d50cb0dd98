//go:build windows

package config

import (
	"os"
	"path/filepath"
)

func configSearchPaths() []string {
	local := os.Getenv("LOCALAPPDATA")
	programData := os.Getenv("ProgramData")
	return []string{
		filepath.Join(local, "Vitalis", "sampler.yaml"),
		filepath.Join(programData, "Vitalis", "sampler.yaml"),
	}
}

func defaultCacheDir() string {
	if local := os.Getenv("LOCALAPPDATA"); local != "" {
		return filepath.Join(local, "Vitalis", "snapshots")
	}
	return filepath.Join(os.TempDir(), "vitalis-snapshots")
}
