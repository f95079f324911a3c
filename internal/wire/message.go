package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// MessageType enumerates the replication protocol's message kinds
//.
type MessageType string

const (
	MessageAnnounce    MessageType = "announce"
	MessageSyncRequest MessageType = "sync_request"
	MessageSyncDone    MessageType = "sync_done"
	MessageEntry       MessageType = "entry"
	MessageHave        MessageType = "have"
)

// Envelope wraps every replication message with the session it belongs
// to, so a single connection can multiplex several concurrent sessions.
type Envelope struct {
	SessionID uint64          `cbor:"session_id"`
	Type      MessageType     `cbor:"type"`
	Payload   cbor.RawMessage `cbor:"payload"`
}

// EncodePayload CBOR-encodes a typed message body for embedding in an Envelope.
func EncodePayload(v any) (cbor.RawMessage, error) {
	b, err := cbor.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal payload: %w", err)
	}
	return b, nil
}

// DecodePayload CBOR-decodes an Envelope's payload into v.
func DecodePayload(payload cbor.RawMessage, v any) error {
	if err := cbor.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("wire: unmarshal payload: %w", err)
	}
	return nil
}

// maxMessageSize bounds a single framed message to guard against a
// malicious or buggy peer claiming an unbounded length prefix.
const maxMessageSize = 16 * 1024 * 1024

// WriteMessage frames env as <u32 length><cbor bytes> and writes it to w.
func WriteMessage(w io.Writer, env *Envelope) error {
	body, err := cbor.Marshal(env)
	if err != nil {
		return fmt.Errorf("wire: marshal envelope: %w", err)
	}
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(body)))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("wire: write length prefix: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("wire: write envelope: %w", err)
	}
	return nil
}

// ReadMessage reads one length-prefixed CBOR envelope from r.
func ReadMessage(r io.Reader) (*Envelope, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	if n > maxMessageSize {
		return nil, fmt.Errorf("wire: message of %d bytes exceeds max %d", n, maxMessageSize)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("wire: read envelope body: %w", err)
	}
	var env Envelope
	if err := cbor.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("wire: unmarshal envelope: %w", err)
	}
	return &env, nil
}

// Announce is sent by both peers on connection, advertising the schemas
// each side supports.
type Announce struct {
	Timestamp        int64    `cbor:"timestamp"`
	SupportedSchemas []string `cbor:"supported_schemas"`
}

// SyncRequest opens a replication session.
type SyncRequest struct {
	SessionID uint64   `cbor:"session_id"`
	Mode      string   `cbor:"mode"`
	Strategy  string   `cbor:"strategy"`
	TargetSet []string `cbor:"target_set"`
}

// SyncDone ends a session, successfully or not.
type SyncDone struct {
	Error    string `cbor:"error,omitempty"`
	LiveMode bool   `cbor:"live_mode,omitempty"`
}

// EntryMessage carries one published entry and, optionally, its operation
// payload (omitted when the receiver is known to already have it).
type EntryMessage struct {
	EntryBytes     []byte `cbor:"entry_bytes"`
	OperationBytes []byte `cbor:"operation_bytes,omitempty"`
}

// LogHeight is one (author, log) entry in a Have advertisement.
type LogHeight struct {
	PublicKey string `cbor:"public_key"`
	LogID     uint64 `cbor:"log_id"`
	SeqNum    uint64 `cbor:"seq_num"`
}

// Have advertises the sender's maximum seq_num per (public_key, log_id)
// within a session's target_set.
type Have struct {
	LogHeights []LogHeight `cbor:"log_heights"`
}
