package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "server", "diagserver":
		return serverTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const serverTemplate = `id = "diagserver"
# Empty endpoint uses the per-process default name.
endpoint = ""
# Empty admin_addr disables the admin HTTP surface.
admin_addr = "127.0.0.1:9300"
log_level = "info"
# Origins allowed to call the admin surface from a browser.
cors_origins = []

accept_backoff_initial = "50ms"
accept_backoff_max = "5s"
session_read_timeout = "0s"
`
