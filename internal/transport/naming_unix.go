//go:build unix

package transport

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultName is the per-process endpoint name:
// dotnet-diagnostic-{pid}-{key}-socket. key disambiguates reused pids; the
// process start time is the usual choice.
func DefaultName(pid int, key uint64) string {
	return fmt.Sprintf("%s-%d-%d-socket", namePrefix, pid, key)
}

// ResolveName maps an endpoint name to a socket path. Absolute paths are kept;
// anything else is placed under the temp directory.
func ResolveName(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(os.TempDir(), name)
}

// FindName locates the endpoint a running process with pid has published.
// When several sockets match, the most recently modified one wins.
func FindName(pid int) (string, error) {
	matches, err := filepath.Glob(filepath.Join(os.TempDir(), fmt.Sprintf("%s-%d-*-socket", namePrefix, pid)))
	if err != nil {
		return "", err
	}
	var (
		best    string
		bestMod int64
	)
	for _, m := range matches {
		st, err := os.Stat(m)
		if err != nil {
			continue
		}
		if mod := st.ModTime().UnixNano(); best == "" || mod > bestMod {
			best, bestMod = m, mod
		}
	}
	if best == "" {
		return "", fmt.Errorf("transport: no endpoint for pid %d: %w", pid, os.ErrNotExist)
	}
	return best, nil
}
