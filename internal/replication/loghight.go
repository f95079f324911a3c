package replication

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/sync/errgroup"

	"github.com/aquadoggo-go/aquadoggo/internal/store"
	"github.com/aquadoggo-go/aquadoggo/internal/types"
	"github.com/aquadoggo-go/aquadoggo/internal/wire"
)

// entryBatchSize bounds how many entries a single GetEntriesNewerThan
// round trip fetches while draining a log that's far behind.
const entryBatchSize = 256

// runLogHeight exchanges Have advertisements for sess.target, then
// concurrently streams each side's missing entries to the other until
// both have signaled sync_done.
func (e *Engine) runLogHeight(ctx context.Context, conn net.Conn, sess *session) error {
	localHeights, err := e.store.LogHeights(ctx, sess.target)
	if err != nil {
		return fmt.Errorf("replication: local log heights: %w", err)
	}

	var peerHave wire.Have
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		payload, err := wire.EncodePayload(toWireHave(localHeights))
		if err != nil {
			return err
		}
		return wire.WriteMessage(conn, &wire.Envelope{SessionID: sess.id, Type: wire.MessageHave, Payload: payload})
	})
	g.Go(func() error {
		env, err := wire.ReadMessage(conn)
		if err != nil {
			return err
		}
		if env.Type != wire.MessageHave {
			return fmt.Errorf("replication: expected have, got %s", env.Type)
		}
		return wire.DecodePayload(env.Payload, &peerHave)
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("replication: have exchange: %w", err)
	}

	g2, gctx := errgroup.WithContext(ctx)
	g2.Go(func() error { return e.sendMissingEntries(gctx, conn, sess, localHeights, peerHave.LogHeights) })
	g2.Go(func() error { return e.receiveEntries(gctx, conn, sess) })
	return g2.Wait()
}

type logKey struct {
	publicKey types.PublicKey
	logID     types.LogID
}

func toWireHave(heights []store.LogHeight) *wire.Have {
	out := make([]wire.LogHeight, len(heights))
	for i, h := range heights {
		out[i] = wire.LogHeight{PublicKey: h.PublicKey.String(), LogID: uint64(h.LogID), SeqNum: uint64(h.SeqNum)}
	}
	return &wire.Have{LogHeights: out}
}

// sendMissingEntries streams every entry the peer's advertised Have is
// behind on, in ascending seq_num order per log, terminated by this
// side's own sync_done.
func (e *Engine) sendMissingEntries(ctx context.Context, conn net.Conn, sess *session, local []store.LogHeight, peer []wire.LogHeight) error {
	peerSeq := make(map[logKey]types.SeqNum, len(peer))
	for _, h := range peer {
		pub, err := types.ParsePublicKey(h.PublicKey)
		if err != nil {
			continue
		}
		peerSeq[logKey{pub, types.LogID(h.LogID)}] = types.SeqNum(h.SeqNum)
	}

	for _, h := range local {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		after := peerSeq[logKey{h.PublicKey, h.LogID}]
		if h.SeqNum <= after {
			continue
		}
		for {
			entries, err := e.store.GetEntriesNewerThan(ctx, h.PublicKey, h.LogID, after, entryBatchSize)
			if err != nil {
				return fmt.Errorf("replication: load entries for %s/%d: %w", h.PublicKey, h.LogID, err)
			}
			if len(entries) == 0 {
				break
			}
			for _, entry := range entries {
				if err := e.sendEntry(ctx, conn, sess, entry); err != nil {
					return err
				}
				after = entry.SeqNum
			}
			if len(entries) < entryBatchSize {
				break
			}
		}
	}

	payload, err := wire.EncodePayload(&wire.SyncDone{})
	if err != nil {
		return err
	}
	if err := wire.WriteMessage(conn, &wire.Envelope{SessionID: sess.id, Type: wire.MessageSyncDone, Payload: payload}); err != nil {
		return fmt.Errorf("replication: send sync_done: %w", err)
	}
	return nil
}

// sendEntry ships one entry with its operation bytes attached
// unconditionally. marks operation_bytes optional "when the
// receiver is known to already have it" as a bandwidth optimization; this
// node always includes it, which is a strict superset of the required
// behavior and keeps the receiver side simple.
func (e *Engine) sendEntry(ctx context.Context, conn net.Conn, sess *session, entry *types.Entry) error {
	op, err := e.store.GetOperation(ctx, types.OperationID(entry.PayloadHash))
	if err != nil {
		return fmt.Errorf("replication: load operation for entry %s: %w", entry.EntryHash, err)
	}
	var opBytes []byte
	if op != nil {
		opBytes = op.EncodedBytes
	}

	payload, err := wire.EncodePayload(&wire.EntryMessage{EntryBytes: entry.EncodedBytes, OperationBytes: opBytes})
	if err != nil {
		return err
	}
	if err := wire.WriteMessage(conn, &wire.Envelope{SessionID: sess.id, Type: wire.MessageEntry, Payload: payload}); err != nil {
		return fmt.Errorf("replication: send entry %s: %w", entry.EntryHash, err)
	}
	return nil
}

// receiveEntries reads entries off the wire until the peer signals
// sync_done, funneling each through the publish pipeline — the single
// ingest path replicated data shares with locally authored writes
//.
func (e *Engine) receiveEntries(ctx context.Context, conn net.Conn, sess *session) error {
	for {
		env, err := wire.ReadMessage(conn)
		if err != nil {
			return fmt.Errorf("replication: read message: %w", err)
		}
		switch env.Type {
		case wire.MessageSyncDone:
			var done wire.SyncDone
			if err := wire.DecodePayload(env.Payload, &done); err != nil {
				return err
			}
			if done.Error != "" {
				return fmt.Errorf("replication: peer aborted sync: %s", done.Error)
			}
			return nil
		case wire.MessageEntry:
			var msg wire.EntryMessage
			if err := wire.DecodePayload(env.Payload, &msg); err != nil {
				return err
			}
			if _, err := e.pipeline.Publish(ctx, msg.EntryBytes, msg.OperationBytes); err != nil {
				return fmt.Errorf("replication: ingest replicated entry: %w", err)
			}
		default:
			return fmt.Errorf("replication: unexpected message %s during sync", env.Type)
		}
	}
}
