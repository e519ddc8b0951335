package cascade

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// ExpandPath expands a leading "~", "~/" or `~\` to the user's home directory and makes the result absolute. "" stays "".
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	out := path
	if strings.HasPrefix(out, "~") {
		if home, _ := os.UserHomeDir(); home != "" {
			switch {
			case out == "~" || out == "~/" || out == `~\`:
				out = home
			case strings.HasPrefix(out, "~/") || strings.HasPrefix(out, `~\`):
				out = filepath.Join(home, out[2:])
			}
		}
	}
	if !filepath.IsAbs(out) {
		if abs, err := filepath.Abs(out); err == nil {
			out = abs
		}
	}
	return out
}

// InUserConfigDirectory joins subPath onto the per-user config location: the home directory, or %USERPROFILE%\AppData\Local on Windows.
func InUserConfigDirectory(subPath string) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(ExpandPath("~/AppData/Local"), subPath)
	}
	return filepath.Join(ExpandPath("~"), subPath)
}
