// Package config loads the store's runtime settings from YAML, grounded
// on the same load-then-default pattern tunnelmesh uses for its own
// server configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the store's tunables: chunk size, block size, the resync
// stream's batching limits and the chunk pool size are read when the
// store is opened. IOAlign and CheckpointIntervalSeconds are checked by
// Validate but nothing else reads them.
type Config struct {
	ChunkSize     uint64 `yaml:"chunk_size"`
	BlockSize     uint64 `yaml:"block_size"`
	IOAlign       uint64 `yaml:"io_align"`
	DataDir       string `yaml:"data_dir"`

	CheckpointIntervalSeconds int `yaml:"checkpoint_interval_seconds"`

	MaxResyncBatchBlobs uint64 `yaml:"max_resync_batch_blobs"`
	MaxResyncBatchBytes uint64 `yaml:"max_resync_batch_bytes"`

	// NumChunksPerDevice sizes the single chunk pool every deployment
	// this package configures runs with (see recovery.defaultDeviceID).
	NumChunksPerDevice uint32 `yaml:"num_chunks_per_device"`
}

// CheckpointInterval is CheckpointIntervalSeconds as a time.Duration.
func (c Config) CheckpointInterval() time.Duration {
	return time.Duration(c.CheckpointIntervalSeconds) * time.Second
}

// Default returns the settings used when no config file is supplied,
// matching the constants named in the on-disk record layout: a 1024-byte
// nominal data block and 512-byte I/O alignment.
func Default() Config {
	return Config{
		ChunkSize:                 64 << 20,
		BlockSize:                 1024,
		IOAlign:                   512,
		DataDir:                   "/var/lib/shardstore",
		CheckpointIntervalSeconds: 30,
		MaxResyncBatchBlobs:       1024,
		MaxResyncBatchBytes:       32 << 20,
		NumChunksPerDevice:        4096,
	}
}

// Load reads path as YAML over top of Default(), so a config file only
// needs to name the fields it overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the rest of the store cannot operate under.
func (c Config) Validate() error {
	if c.ChunkSize == 0 {
		return fmt.Errorf("config: chunk_size must be > 0")
	}
	if c.BlockSize == 0 {
		return fmt.Errorf("config: block_size must be > 0")
	}
	if c.IOAlign == 0 || c.ChunkSize%c.IOAlign != 0 {
		return fmt.Errorf("config: chunk_size must be a multiple of io_align")
	}
	if c.MaxResyncBatchBlobs == 0 || c.MaxResyncBatchBytes == 0 {
		return fmt.Errorf("config: max_resync_batch_blobs and max_resync_batch_bytes must be > 0")
	}
	if c.NumChunksPerDevice == 0 {
		return fmt.Errorf("config: num_chunks_per_device must be > 0")
	}
	return nil
}
