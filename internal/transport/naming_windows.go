//go:build windows

package transport

import (
	"fmt"
	"strings"
)

const pipePrefix = `\\.\pipe\`

// DefaultName is the per-process endpoint name: dotnet-diagnostic-{pid}.
// Pipe names are released by the OS with their process, so key is unused.
func DefaultName(pid int, key uint64) string {
	return fmt.Sprintf("%s-%d", namePrefix, pid)
}

// ResolveName maps an endpoint name to a full pipe name.
func ResolveName(name string) string {
	if name == "" || strings.HasPrefix(name, pipePrefix) {
		return name
	}
	return pipePrefix + name
}

// FindName returns the pipe a running process with pid listens on.
func FindName(pid int) (string, error) {
	return DefaultName(pid, 0), nil
}
