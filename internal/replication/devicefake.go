package replication

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
)

// fakeDevice is a single-process Device: there is exactly one replica, so
// every Propose is its own quorum. It still runs entries through the full
// PreCommit/Commit/Rollback sequence so that manager code written against
// Device exercises the same control flow a real multi-node group would
// drive, and it writes every entry through a block-aligned writer. Nothing
// reads that log back: a reopened fake device starts empty.
type fakeDevice struct {
	group GroupID
	log   zerolog.Logger

	mu        sync.RWMutex
	members   []Member
	listeners []Listener

	writer *blockWriter
	lsn    atomic.Uint64

	nextChunk atomic.Uint32
}

const fakeBlkSize = 4096

func newFakeDevice(dir string, group GroupID, members []Member, log zerolog.Logger) (*fakeDevice, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("replication: create device dir: %w", err)
	}
	w, err := newBlockWriter(filepath.Join(dir, group.String()+".log"))
	if err != nil {
		return nil, fmt.Errorf("replication: open log for group %s: %w", group, err)
	}
	return &fakeDevice{
		group:   group,
		log:     log.With().Str("group_id", group.String()).Logger(),
		members: members,
		writer:  w,
	}, nil
}

func (d *fakeDevice) GroupID() GroupID { return d.group }

func (d *fakeDevice) IsLeader() bool { return true }

func (d *fakeDevice) GetBlkSize() uint64 { return fakeBlkSize }

func (d *fakeDevice) AddListener(l Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, l)
}

func (d *fakeDevice) Propose(ctx context.Context, msgType uint8, payload []byte) error {
	d.mu.RLock()
	listeners := append([]Listener(nil), d.listeners...)
	d.mu.RUnlock()

	var preCommitErr error
	for _, l := range listeners {
		if err := l.PreCommit(ctx, msgType, payload); err != nil {
			preCommitErr = err
			break
		}
	}
	if preCommitErr != nil {
		for _, l := range listeners {
			l.Rollback(ctx, msgType, payload)
		}
		return preCommitErr
	}

	if _, _, err := d.writer.write(payload); err != nil {
		for _, l := range listeners {
			l.Rollback(ctx, msgType, payload)
		}
		return fmt.Errorf("replication: durable append failed: %w", err)
	}

	lsn := d.lsn.Add(1)
	d.log.Debug().Uint8("msg_type", msgType).Uint64("lsn", lsn).Msg("entry committed")
	for _, l := range listeners {
		l.Commit(ctx, lsn, msgType, payload, nil)
	}
	return nil
}

func (d *fakeDevice) AsyncAllocWrite(ctx context.Context, msgType uint8, payload []byte, data []byte) (BlkID, error) {
	d.mu.RLock()
	listeners := append([]Listener(nil), d.listeners...)
	d.mu.RUnlock()

	for _, l := range listeners {
		if err := l.PreCommit(ctx, msgType, payload); err != nil {
			for _, l2 := range listeners {
				l2.Rollback(ctx, msgType, payload)
			}
			return BlkID{}, err
		}
	}

	chunkID := uint16(d.nextChunk.Add(1))
	offset, blocks, err := d.writer.write(data)
	if err != nil {
		for _, l := range listeners {
			l.Rollback(ctx, msgType, payload)
		}
		return BlkID{}, fmt.Errorf("replication: durable data write failed: %w", err)
	}
	blkID := BlkID{ChunkID: chunkID, BlockOffset: uint32(offset / fakeBlkSize), NumBlocks: uint32(blocks)}

	lsn := d.lsn.Add(1)
	for _, l := range listeners {
		l.Commit(ctx, lsn, msgType, payload, &blkID)
	}
	return blkID, nil
}

func (d *fakeDevice) ReadBlk(ctx context.Context, blk BlkID) ([]byte, error) {
	return d.writer.readAt(int64(blk.BlockOffset)*fakeBlkSize, int(blk.NumBlocks))
}

func (d *fakeDevice) ReplaceMember(ctx context.Context, old, new Member, commitQuorum int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, m := range d.members {
		if m.ID == old.ID {
			d.members[i] = new
			return nil
		}
	}
	return fmt.Errorf("replication: member %s not found in group %s", old.ID, d.group)
}

func (d *fakeDevice) GetReplicationStatus() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var leader uuid.UUID
	if len(d.members) > 0 {
		leader = d.members[0].ID
	}
	return Status{
		GroupID:      d.group,
		Leader:       leader,
		Members:      append([]Member(nil), d.members...),
		CommittedLSN: d.lsn.Load(),
	}
}

func (d *fakeDevice) Close() error {
	return d.writer.close()
}

// FakeManager is an in-process Manager backed by fakeDevice, one log file
// per group under a root directory. It is the replication substrate used
// by single-node deployments and by tests that need real durability
// semantics without a multi-node cluster.
type FakeManager struct {
	dir string
	log zerolog.Logger

	mu      sync.Mutex
	devices map[GroupID]*fakeDevice
}

func NewFakeManager(dir string, log zerolog.Logger) *FakeManager {
	return &FakeManager{dir: dir, log: log, devices: make(map[GroupID]*fakeDevice)}
}

func (m *FakeManager) CreateReplDev(ctx context.Context, group GroupID, members []Member) (Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.devices[group]; ok {
		return d, nil
	}
	d, err := newFakeDevice(m.dir, group, members, m.log)
	if err != nil {
		return nil, err
	}
	m.devices[group] = d
	return d, nil
}

func (m *FakeManager) GetReplDev(group GroupID) (Device, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[group]
	return d, ok
}

// CloseAll closes every device the manager has opened, aggregating any
// close errors with go-multierror rather than stopping at the first.
func (m *FakeManager) CloseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result *multierror.Error
	for _, d := range m.devices {
		if err := d.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
