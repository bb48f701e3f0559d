package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"github.com/pelletier/go-toml/v2"
)

// Save writes cfg to path as TOML. The file is replaced atomically so a
// concurrent Load never observes a partial document.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("save config: nil config")
	}
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	pending, err := renameio.NewPendingFile(expanded, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending config: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	encoder := toml.NewEncoder(pending)
	encoder.SetIndentTables(true)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}
