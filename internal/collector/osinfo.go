// OS release lookup. The release rarely changes while the process runs, so
// the first successful answer is kept for the provider's lifetime:
//   - Linux: /etc/os-release, then lsb_release
//   - macOS: sw_vers
//   - Windows: Win32_OperatingSystem via PowerShell
package collector

import (
	"context"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
)

type osRelease struct {
	Name    string
	Version string
}

// releaseCache memoizes the first lookup that found a version.
type releaseCache struct {
	mu     sync.Mutex
	cached *osRelease
	lookup func(ctx context.Context) osRelease
}

func (c *releaseCache) get(ctx context.Context) osRelease {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cached != nil {
		return *c.cached
	}
	r := c.lookup(ctx)
	if r.Version != unknownVersion {
		c.cached = &r
	}
	return r
}

const unknownVersion = "unknown"

func lookupOSRelease(ctx context.Context) osRelease {
	switch runtime.GOOS {
	case "linux":
		return linuxRelease(ctx)
	case "darwin":
		return darwinRelease(ctx)
	case "windows":
		return windowsRelease(ctx)
	default:
		return osRelease{
			Name:    runtime.GOOS,
			Version: unknownVersion,
		}
	}
}

// linuxRelease prefers PRETTY_NAME over NAME when both are present.
func linuxRelease(ctx context.Context) osRelease {
	result := osRelease{
		Name:    "Linux",
		Version: unknownVersion,
	}

	if data, err := os.ReadFile("/etc/os-release"); err == nil {
		fields := parseKeyValueFile(string(data))
		if name, ok := fields["NAME"]; ok {
			result.Name = strings.Trim(name, "\"")
		}
		if version, ok := fields["VERSION_ID"]; ok {
			result.Version = strings.Trim(version, "\"")
		}
		if pretty, ok := fields["PRETTY_NAME"]; ok {
			result.Name = strings.Trim(pretty, "\"")
		}
		return result
	}

	out, err := exec.CommandContext(ctx, "lsb_release", "-d", "-s").Output()
	if err == nil {
		result.Name = strings.TrimSpace(string(out))
	}

	out, err = exec.CommandContext(ctx, "lsb_release", "-r", "-s").Output()
	if err == nil {
		result.Version = strings.TrimSpace(string(out))
	}

	return result
}

func darwinRelease(ctx context.Context) osRelease {
	result := osRelease{
		Name:    "macOS",
		Version: unknownVersion,
	}

	out, err := exec.CommandContext(ctx, "sw_vers", "-productVersion").Output()
	if err == nil {
		result.Version = strings.TrimSpace(string(out))
	}

	out, err = exec.CommandContext(ctx, "sw_vers", "-productName").Output()
	if err == nil {
		name := strings.TrimSpace(string(out))
		if name != "" {
			result.Name = name
		}
	}

	return result
}

func windowsRelease(ctx context.Context) osRelease {
	result := osRelease{
		Name:    "Windows",
		Version: unknownVersion,
	}

	out, err := exec.CommandContext(ctx, "powershell", "-NoProfile", "-Command",
		"(Get-CimInstance Win32_OperatingSystem).Caption").Output()
	if err == nil {
		caption := strings.TrimSpace(string(out))
		if caption != "" {
			result.Name = caption
		}
	}

	out, err = exec.CommandContext(ctx, "powershell", "-NoProfile", "-Command",
		"(Get-CimInstance Win32_OperatingSystem).Version").Output()
	if err == nil {
		version := strings.TrimSpace(string(out))
		if version != "" {
			result.Version = version
		}
	}

	return result
}

// parseKeyValueFile parses KEY=VALUE lines, skipping blanks and comments.
func parseKeyValueFile(content string) map[string]string {
	fields := make(map[string]string)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) == 2 {
			fields[parts[0]] = parts[1]
		}
	}
	return fields
}
