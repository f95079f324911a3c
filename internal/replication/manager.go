// Package replication implements the node's peer-to-peer sync protocol:
// two peers exchange entries over a long-lived connection to converge their
// logs for a set of schemas both support. Transport is plain
// net.Listen/net.DialTimeout over TCP and Unix sockets (no P2P/QUIC library
// in the dependency set), with a backoff.NewExponentialBackOff retry policy
// keyed per peer instead of per task.
package replication

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aquadoggo-go/aquadoggo/internal/config"
	"github.com/aquadoggo-go/aquadoggo/internal/telemetry"
	"github.com/aquadoggo-go/aquadoggo/internal/types"
)

// maxTrackedPeers bounds the cool-down state map so a churn of
// short-lived or hostile peer ids cannot grow it without limit (SPEC_FULL
// §5.7, "LRU-bounded map").
const maxTrackedPeers = 1024

// peerState tracks one peer's cool-down backoff across repeated
// connection failures, so a persistently unreachable or misbehaving peer
// doesn't get redialed in a tight loop.
type peerState struct {
	mu            sync.Mutex
	backoff       *backoff.ExponentialBackOff
	coolDownUntil time.Time
}

func newPeerState() *peerState {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 5 * time.Minute
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.2
	bo.MaxElapsedTime = 0
	return &peerState{backoff: bo}
}

// Manager owns the node's replication session table and per-peer
// cool-down state. It is the single place allow/block-list enforcement
// and duplicate-session collapse happen, shared by both the listening
// side and the outbound dialer.
type Manager struct {
	cfg *config.Config

	peers *lru.Cache[string, *peerState]

	mu       sync.Mutex
	sessions map[uint64]*session
	byTarget map[string]uint64 // peerID+targetKey -> session id, for dedupe
}

// NewManager builds a Manager enforcing cfg's peer allow/block list.
func NewManager(cfg *config.Config) *Manager {
	peers, err := lru.New[string, *peerState](maxTrackedPeers)
	if err != nil {
		// Only returns an error for a non-positive size, which
		// maxTrackedPeers never is.
		panic(err)
	}
	return &Manager{
		cfg:      cfg,
		peers:    peers,
		sessions: make(map[uint64]*session),
		byTarget: make(map[string]uint64),
	}
}

// Allowed reports whether peerID may connect or be dialed at all.
func (m *Manager) Allowed(peerID string) bool {
	return m.cfg.PeerAllowed(peerID)
}

// CoolingDown reports whether peerID is presently serving out a
// connection-failure backoff.
func (m *Manager) CoolingDown(peerID string) bool {
	ps, ok := m.peers.Get(peerID)
	if !ok {
		return false
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return time.Now().Before(ps.coolDownUntil)
}

// RecordFailure steps peerID's backoff forward and starts a new cool-down.
func (m *Manager) RecordFailure(peerID string) {
	ps := m.peerStateFor(peerID)
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.coolDownUntil = time.Now().Add(ps.backoff.NextBackOff())
}

// RecordSuccess resets peerID's backoff once a session completes cleanly.
func (m *Manager) RecordSuccess(peerID string) {
	ps := m.peerStateFor(peerID)
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.backoff.Reset()
	ps.coolDownUntil = time.Time{}
}

func (m *Manager) peerStateFor(peerID string) *peerState {
	if ps, ok := m.peers.Get(peerID); ok {
		return ps
	}
	ps := newPeerState()
	m.peers.Add(peerID, ps)
	return ps
}

// OpenSession registers a session under id for (peerID, strategy, target),
// collapsing onto an already-established session for the same triple per
// ("duplicate session requests for the same target_set are
// collapsed"). The bool result reports whether a brand new session was
// created (false means the returned session is the pre-existing one). The
// initiator mints id via NewSessionID; the acceptor adopts the id carried
// on the initiator's sync_request so both sides frame the exchange under
// the same session id.
func (m *Manager) OpenSession(id uint64, peerID string, mode types.SessionMode, strategy types.SessionStrategy, role types.SessionRole, target []types.SchemaID) (*session, bool) {
	s := newSession(id, peerID, mode, strategy, role, target)
	key := peerID + "\x00" + s.targetKey()

	m.mu.Lock()
	defer m.mu.Unlock()
	if existingID, ok := m.byTarget[key]; ok {
		if existing, ok := m.sessions[existingID]; ok && existing.snapshot() != types.SessionDone && existing.snapshot() != types.SessionFailed {
			return existing, false
		}
	}
	m.sessions[s.id] = s
	m.byTarget[key] = s.id
	telemetry.RecordReplicationSessionOpened(context.Background(), string(role))
	return s, true
}

// Session looks up a session by id, e.g. to route an incoming Envelope.
func (m *Manager) Session(id uint64) (*session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// CloseSession transitions a session to its terminal state and drops it
// from the dedupe index so a future sync with the same target can open a
// fresh one.
func (m *Manager) CloseSession(id uint64, failed bool) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		delete(m.byTarget, s.peerID+"\x00"+s.targetKey())
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	if failed {
		s.transition(types.SessionFailed)
	} else {
		s.transition(types.SessionDone)
	}
}

// Sessions returns a snapshot of every live session, for status reporting.
func (m *Manager) Sessions() []types.ReplicationSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.ReplicationSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Record())
	}
	return out
}

// NewSessionID mints a session id from a random UUIDv4, folded down to 64
// bits by XORing its two halves — session ids only need to be unique and
// unguessable, not globally orderable.
func NewSessionID() uint64 {
	id := uuid.New()
	hi := binary.BigEndian.Uint64(id[0:8])
	lo := binary.BigEndian.Uint64(id[8:16])
	return hi ^ lo
}
