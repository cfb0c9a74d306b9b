// Package store is the top-level facade wiring the PG, Shard, and Blob
// managers, the Chunk Selector, the replicated device layer, and startup
// recovery into the single entry point a caller opens once per process.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"shardstore/internal/blob"
	"shardstore/internal/chunkselector"
	"shardstore/internal/codec"
	"shardstore/internal/config"
	"shardstore/internal/pg"
	"shardstore/internal/recovery"
	"shardstore/internal/replication"
	"shardstore/internal/rsm"
	"shardstore/internal/shard"
	"shardstore/internal/superblock"
)

// Store is the opened object store: every manager plus the collaborators
// they share. The three manager fields are exported so callers needing
// lower-level access (a custom resync transport, an admin tool) aren't
// limited to the facade methods below; the config, chunk selector,
// replication manager and superblock store are not exported.
type Store struct {
	cfg config.Config
	log zerolog.Logger

	sel  *chunkselector.Selector
	repl replication.Manager
	sb   superblock.Store

	PGs    *pg.Manager
	Shards *shard.Manager
	Blobs  *blob.Manager
}

// Open constructs every manager, attaches the Replication State Machine
// dispatcher to each PG as it's created or recovered, and replays
// durable state from dataDir before returning — matching the fixed
// startup order recovery.Bootstrap documents.
func Open(ctx context.Context, dataDir string, opts ...Option) (*Store, error) {
	o := options{log: zerolog.New(os.Stderr).With().Timestamp().Logger()}
	for _, fn := range opts {
		fn(&o)
	}

	cfg := o.cfg
	if cfg == nil {
		if o.configPath != "" {
			loaded, err := config.Load(o.configPath)
			if err != nil {
				return nil, err
			}
			cfg = &loaded
		} else {
			defaultCfg := config.Default()
			defaultCfg.DataDir = dataDir
			cfg = &defaultCfg
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}

	deviceTotals := o.deviceTotals
	if deviceTotals == nil {
		deviceTotals = map[chunkselector.DeviceID]uint32{0: cfg.NumChunksPerDevice}
	}
	sel := chunkselector.New(cfg.ChunkSize, deviceTotals)

	repl := o.repl
	if repl == nil {
		repl = replication.NewFakeManager(filepath.Join(dataDir, "repl"), o.log)
	}

	sb, err := superblock.NewFileStore(filepath.Join(dataDir, "superblock"))
	if err != nil {
		return nil, fmt.Errorf("store: open superblock store: %w", err)
	}

	pgMgr := pg.NewManager(cfg.ChunkSize, sel, repl, sb, o.log)
	shardMgr := shard.NewManager(pgMgr, sel, sb, o.log)
	blobMgr := blob.NewManager(pgMgr, shardMgr, o.log)

	dispatcher := rsm.NewPGDispatcher(o.log, shardMgr, blobMgr)
	pgMgr.OnPGCreated(func(e *pg.Entry) {
		e.Device.AddListener(dispatcher)
	})

	if err := recovery.Bootstrap(ctx, sel, repl, sb, pgMgr, shardMgr, o.log); err != nil {
		return nil, fmt.Errorf("store: recovery bootstrap: %w", err)
	}

	return &Store{
		cfg:    *cfg,
		log:    o.log,
		sel:    sel,
		repl:   repl,
		sb:     sb,
		PGs:    pgMgr,
		Shards: shardMgr,
		Blobs:  blobMgr,
	}, nil
}

// Close releases every replicated device the store opened.
func (s *Store) Close() error {
	if closer, ok := s.repl.(interface{ CloseAll() error }); ok {
		return closer.CloseAll()
	}
	return nil
}

func (s *Store) CreatePG(ctx context.Context, info codec.PGInfo, members []replication.Member) pg.Error {
	return s.PGs.CreatePG(ctx, info, members)
}

func (s *Store) ReplaceMember(ctx context.Context, pgID uint16, out, in replication.Member, commitQuorum int) pg.Error {
	return s.PGs.ReplaceMember(ctx, pgID, out, in, commitQuorum)
}

func (s *Store) GetPGStats(pgID uint16) (pg.Snapshot, pg.Error) {
	return s.PGs.GetPGStats(pgID)
}

func (s *Store) GetReplicationStatus(pgID uint16) (replication.Status, pg.Error) {
	entry, ok := s.PGs.Get(pgID)
	if !ok {
		return replication.Status{}, pg.UnknownPG
	}
	return entry.Device.GetReplicationStatus(), pg.OK
}

func (s *Store) CreateShard(ctx context.Context, pgID uint16, sizeBytes uint64) (uint64, shard.Error) {
	return s.Shards.CreateShard(ctx, pgID, sizeBytes)
}

func (s *Store) SealShard(ctx context.Context, shardID uint64) shard.Error {
	return s.Shards.SealShard(ctx, shardID)
}

func (s *Store) PutBlob(ctx context.Context, shardID uint64, userKey, data []byte, algo codec.HashAlgorithm) (uint64, blob.Error) {
	return s.Blobs.PutBlob(ctx, shardID, userKey, data, algo)
}

func (s *Store) GetBlob(ctx context.Context, shardID, blobID uint64, offset, length uint32) (blob.Result, blob.Error) {
	return s.Blobs.GetBlob(ctx, shardID, blobID, offset, length)
}

func (s *Store) DelBlob(ctx context.Context, shardID, blobID uint64) blob.Error {
	return s.Blobs.DelBlob(ctx, shardID, blobID)
}

// NewResyncIterator builds a PGBlobIterator over pgID's current live
// blobs, batched per the configured resync limits, for streaming to a
// joining replica.
func (s *Store) NewResyncIterator(pgID uint16) (*recovery.PGBlobIterator, error) {
	entry, ok := s.PGs.Get(pgID)
	if !ok {
		return nil, fmt.Errorf("store: unknown pg %d", pgID)
	}
	shardEntries := make([]shard.Entry, 0, len(s.Shards.ListShards(pgID)))
	for _, id := range s.Shards.ListShards(pgID) {
		se, ok := s.Shards.Get(id)
		if !ok {
			continue
		}
		shardEntries = append(shardEntries, se.Snapshot())
	}
	return recovery.NewPGBlobIterator(entry, shardEntries, s.cfg.MaxResyncBatchBlobs, s.cfg.MaxResyncBatchBytes, s.cfg.BlockSize), nil
}
