package config

import (
	"os"
	"path/filepath"
)

func configSearchPaths() []string {
	home, _ := os.UserHomeDir()
	return []string{
		filepath.Join(home, ".config", "sysmon", "sysmon.yaml"),
		"/etc/sysmon/sysmon.yaml",
	}
}
