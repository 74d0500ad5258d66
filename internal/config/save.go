package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Save writes cfg to path as TOML. The file is written to a temporary
// sibling and renamed into place, and is private to the user since server
// entries may carry credentials.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Sample returns the config written by "alist-sync config init".
func Sample() Config {
	workers := 5
	store := "sqlite"
	return Config{
		Defaults: DefaultsConfig{
			Workers: &workers,
			Store:   &store,
		},
		Servers: []ServerConfig{{
			Name:     "nas",
			URL:      "http://127.0.0.1:5244",
			Username: "admin",
		}},
	}
}
