package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const initHeader = `# dittostore Configuration File
#
# Every service below is reachable by name from the CLI:
#   dittostore --service default ls /
#
# Service types and their options:
#   memory: delete_strict, write_total_max_size
#   fs:     path, atomic_write_dir
#   s3:     bucket, region, endpoint, access_key_id, secret_access_key, part_size
#   badger: path, in_memory, block_cache_size_mb, index_cache_size_mb
#   bolt:   path, bucket, open_timeout
#   sql:    driver (sqlite|postgres), dsn, table, key_field, value_field
#   http:   endpoint, username, password, token
#
# Environment variables override file values: DITTOSTORE_LOGGING_LEVEL=DEBUG

`

// InitConfig writes the default configuration to the default location and
// returns its path. An existing file is kept unless force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes the default configuration to path.
func InitConfigToPath(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	body, err := yaml.Marshal(GetDefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to render default config: %w", err)
	}

	// Credentials may end up in this file.
	if err := os.WriteFile(path, append([]byte(initHeader), body...), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
