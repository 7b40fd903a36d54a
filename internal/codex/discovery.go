package codex

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// DiscoverCodexCommand locates the codex executable: $PATH first, then a
// handful of well-known install locations.
func DiscoverCodexCommand() (string, error) {
	name := "codex"
	if runtime.GOOS == "windows" {
		name = "codex.exe"
	}

	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	var candidates []string
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".local", "bin", name),
			filepath.Join(home, ".npm-global", "bin", name),
			filepath.Join(home, "bin", name),
		)
	}
	candidates = append(candidates,
		filepath.Join("/usr/local/bin", name),
		filepath.Join("/opt/homebrew/bin", name),
	)

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("could not find codex executable")
}
