package replication

import (
	"sync"

	"github.com/aquadoggo-go/aquadoggo/internal/types"
)

// session is the manager's live bookkeeping for one
// types.ReplicationSession. It allocates a bounded inbox channel, but the
// engine's read loop does not use it: each received entry is published
// before the next message is read.
type session struct {
	mu sync.Mutex

	id       uint64
	peerID   string
	mode     types.SessionMode
	strategy types.SessionStrategy
	role     types.SessionRole
	target   []types.SchemaID
	state    types.SessionState

	// inbox is created with inboxCapacity slots; nothing sends to or
	// receives from it.
	inbox chan *entryMessage
}

type entryMessage struct {
	entryBytes     []byte
	operationBytes []byte
}

const inboxCapacity = 64

func newSession(id uint64, peerID string, mode types.SessionMode, strategy types.SessionStrategy, role types.SessionRole, target []types.SchemaID) *session {
	return &session{
		id:       id,
		peerID:   peerID,
		mode:     mode,
		strategy: strategy,
		role:     role,
		target:   target,
		state:    types.SessionPending,
		inbox:    make(chan *entryMessage, inboxCapacity),
	}
}

func (s *session) targetKey() string {
	key := string(s.strategy) + "\x00"
	for _, id := range s.target {
		key += string(id) + ","
	}
	return key
}

func (s *session) transition(state types.SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *session) snapshot() types.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Record renders the session's current state as the public
// types.ReplicationSession value, e.g. for status reporting.
func (s *session) Record() types.ReplicationSession {
	return types.ReplicationSession{
		SessionID: s.id,
		PeerID:    s.peerID,
		Mode:      s.mode,
		Strategy:  s.strategy,
		Role:      s.role,
		TargetSet: s.target,
		State:     s.snapshot(),
	}
}
