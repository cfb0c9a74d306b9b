// Package rsm implements the Replication State Machine: the single
// dispatch point a PG's replicated device delivers every committed log
// entry through, routing by msg_type to the PG/Shard/Blob manager that
// owns it.
package rsm

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"shardstore/internal/codec"
	"shardstore/internal/replication"
)

// Dispatcher implements replication.Listener, fanning PreCommit/Commit/
// Rollback out to exactly one registered handler per msg_type. A PG's
// device is given a single Dispatcher rather than one AddListener call
// per manager, so the ordering and veto semantics described for commit
// handling live in one place instead of being implicit in call order.
type Dispatcher struct {
	log      zerolog.Logger
	handlers map[codec.MsgType]replication.Listener
}

func New(log zerolog.Logger) *Dispatcher {
	return &Dispatcher{log: log, handlers: make(map[codec.MsgType]replication.Listener)}
}

// Register binds msgType to l. Registering the same msg_type twice is a
// programming error: the dispatch table is built once when the store is
// opened, shared by every PG's device, and not mutated afterward.
func (d *Dispatcher) Register(msgType codec.MsgType, l replication.Listener) {
	if _, exists := d.handlers[msgType]; exists {
		panic(fmt.Sprintf("rsm: msg_type %d already has a registered handler", msgType))
	}
	d.handlers[msgType] = l
}

func (d *Dispatcher) PreCommit(ctx context.Context, msgType uint8, payload []byte) error {
	h, ok := d.handlers[codec.MsgType(msgType)]
	if !ok {
		d.log.Warn().Uint8("msg_type", msgType).Msg("rsm: no handler registered, pre-commit allowed through")
		return nil
	}
	return h.PreCommit(ctx, msgType, payload)
}

func (d *Dispatcher) Commit(ctx context.Context, lsn uint64, msgType uint8, payload []byte, blkID *replication.BlkID) {
	h, ok := d.handlers[codec.MsgType(msgType)]
	if !ok {
		d.log.Error().Uint8("msg_type", msgType).Msg("rsm: no handler registered for committed entry")
		return
	}
	d.log.Debug().Uint8("msg_type", msgType).Uint64("lsn", lsn).Msg("dispatching commit")
	h.Commit(ctx, lsn, msgType, payload, blkID)
}

// Rollback is a pure inverse of whatever side effect PreCommit took
// (chunk reservation, in the only case that reserves anything), so it
// routes to the same handler PreCommit would have.
func (d *Dispatcher) Rollback(ctx context.Context, msgType uint8, payload []byte) {
	h, ok := d.handlers[codec.MsgType(msgType)]
	if !ok {
		return
	}
	h.Rollback(ctx, msgType, payload)
}
