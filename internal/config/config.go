package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the non-topology knobs of a migration run. Everything has a
// working default; the file is optional.
type Config struct {
	// MountRoot is where the new root filesystem is mounted during the run.
	MountRoot string `yaml:"mount_root,omitempty"`
	// JournalPath is the sqlite run-history database. Empty disables it.
	JournalPath string `yaml:"journal_path,omitempty"`
	// ExtraExcludes are additional rsync exclude patterns for the copy.
	ExtraExcludes []string `yaml:"extra_excludes,omitempty"`
	// AssumeYes answers every confirmation prompt with its default.
	AssumeYes bool `yaml:"assume_yes,omitempty"`
}

var defaultConfig = Config{
	MountRoot:   "/mnt/newroot",
	JournalPath: "/var/lib/nvme-migrate/history.db",
}

// Load reads the config from path, or from the default locations when path
// is empty. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		candidates := []string{
			"/etc/nvme-migrate/config.yaml",
			filepath.Join(os.Getenv("HOME"), ".config/nvme-migrate/config.yaml"),
			"config.yaml",
		}
		for _, c := range candidates {
			if _, err := os.Stat(c); err == nil {
				path = c
				break
			}
		}
	}

	cfg := defaultConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, err
			}
		}
	}

	if cfg.MountRoot == "" {
		cfg.MountRoot = defaultConfig.MountRoot
	}

	return &cfg, nil
}
