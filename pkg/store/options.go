package store

import (
	"github.com/rs/zerolog"

	"shardstore/internal/chunkselector"
	"shardstore/internal/config"
	"shardstore/internal/replication"
)

// options collects the optional overrides Open accepts, following the
// usual functional-option pattern applied to the store's own
// construction rather than to a single underlying database handle.
type options struct {
	configPath   string
	cfg          *config.Config
	deviceTotals map[chunkselector.DeviceID]uint32
	repl         replication.Manager
	log          zerolog.Logger
}

type Option func(*options)

// WithConfigPath loads settings from a YAML file instead of the
// built-in defaults.
func WithConfigPath(path string) Option {
	return func(o *options) { o.configPath = path }
}

// WithConfig supplies an already-loaded config, overriding both the
// defaults and WithConfigPath.
func WithConfig(cfg config.Config) Option {
	return func(o *options) { o.cfg = &cfg }
}

// WithDeviceTotals overrides the chunk pool layout the Chunk Selector is
// constructed with. Defaults to a single device (id 0) sized by
// config.NumChunksPerDevice.
func WithDeviceTotals(totals map[chunkselector.DeviceID]uint32) Option {
	return func(o *options) { o.deviceTotals = totals }
}

// WithReplicationManager overrides the replication.Manager the store is
// built against, used by tests that want to drive recovery scenarios
// with managers they control directly. Defaults to an in-process
// FakeManager rooted under the data directory.
func WithReplicationManager(repl replication.Manager) Option {
	return func(o *options) { o.repl = repl }
}

// WithLogger overrides the zerolog.Logger every manager is constructed
// with. Defaults to a logger writing to stderr at info level.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}
