// Package config holds mailbox-synchronization tuning parameters, loaded
// the same way as the rest of the server's configuration.
package config

import (
	"fmt"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all mailbox-sync configuration.
type Config struct {
	SnapshotCache CacheConfig `koanf:"mailbox_snapshot_cache"`
	Store         StoreConfig `koanf:"store"`
	Sync          SyncConfig  `koanf:"sync"`
}

// CacheConfig controls the bounded in-process snapshot cache.
type CacheConfig struct {
	Capacity int `koanf:"capacity"` // max mailboxes held in the LRU cache
}

// StoreConfig controls the transactional key-value backend.
type StoreConfig struct {
	ReadVersionExpiryMS uint `koanf:"read_version_expiry_ms"` // TTL of the cached read version, in milliseconds
	MaxValueSizeBytes   uint `koanf:"max_value_size_bytes"`   // chunking threshold for get_value
}

// SyncConfig holds the sync.max_retries setting. The materializer does
// not read it: FetchMessages retries up to its own MaxRetries constant.
type SyncConfig struct {
	MaxRetries int `koanf:"max_retries"` // attempts before giving up on a retryable conflict
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SnapshotCache: CacheConfig{
			Capacity: 1024,
		},
		Store: StoreConfig{
			ReadVersionExpiryMS: 1000,
			MaxValueSizeBytes:   100_000,
		},
		Sync: SyncConfig{
			MaxRetries: 10,
		},
	}
}

// ReadVersionExpiry returns ReadVersionExpiryMS as a time.Duration.
func (c StoreConfig) ReadVersionExpiry() time.Duration {
	return time.Duration(c.ReadVersionExpiryMS) * time.Millisecond
}

// Load reads mailbox-sync configuration from a YAML file, returning
// defaults if the file does not exist.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return cfg, nil
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal mailsync config: %w", err)
	}

	return cfg, nil
}
