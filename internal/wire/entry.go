package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/aquadoggo-go/aquadoggo/internal/crypto"
	"github.com/aquadoggo-go/aquadoggo/internal/types"
)

// entryWire is the Bamboo-style append-only-log record, CBOR-encoded.
// EncodedBytes on types.Entry is this structure's serialization behind a
// 2-byte length prefix, followed by the signature over it (see
// joinSignedEntry).
type entryWire struct {
	PublicKey   [32]byte `cbor:"public_key"`
	LogID       uint64   `cbor:"log_id"`
	SeqNum      uint64   `cbor:"seq_num"`
	PayloadHash string   `cbor:"payload_hash"`
	PayloadSize uint64   `cbor:"payload_size"`
	Backlink    string   `cbor:"backlink,omitempty"`
	Skiplink    string   `cbor:"skiplink,omitempty"`
}

// EncodeEntry serializes an entry's header fields (everything but the
// signature) to the bytes that get signed and hashed. The signature is
// appended by the caller to form the full on-the-wire entry.
func EncodeEntry(e *types.Entry) ([]byte, error) {
	w := entryWire{
		PublicKey:   e.PublicKey,
		LogID:       uint64(e.LogID),
		SeqNum:      uint64(e.SeqNum),
		PayloadHash: string(e.PayloadHash),
		PayloadSize: e.PayloadSize,
	}
	if e.Backlink != nil {
		w.Backlink = string(*e.Backlink)
	}
	if e.Skiplink != nil {
		w.Skiplink = string(*e.Skiplink)
	}
	out, err := cbor.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal entry: %w", err)
	}
	return out, nil
}

// DecodeEntry parses the signed bytes of an entry (header||signature,
// length-prefixed) produced by AssembleEntry back into an Entry, without
// verifying the signature — callers that need that guarantee should use
// the validator, which calls crypto.VerifySignature itself.
func DecodeEntry(signedBytes []byte) (*types.Entry, error) {
	header, sig, err := splitSignedEntry(signedBytes)
	if err != nil {
		return nil, err
	}
	var w entryWire
	if err := cbor.Unmarshal(header, &w); err != nil {
		return nil, fmt.Errorf("wire: unmarshal entry: %w", err)
	}
	e := &types.Entry{
		PublicKey:    w.PublicKey,
		LogID:        types.LogID(w.LogID),
		SeqNum:       types.SeqNum(w.SeqNum),
		PayloadHash:  types.Hash(w.PayloadHash),
		PayloadSize:  w.PayloadSize,
		Signature:    sig,
		EncodedBytes: signedBytes,
	}
	if w.Backlink != "" {
		h := types.Hash(w.Backlink)
		e.Backlink = &h
	}
	if w.Skiplink != "" {
		h := types.Hash(w.Skiplink)
		e.Skiplink = &h
	}
	e.EntryHash = crypto.Hash(signedBytes)
	return e, nil
}

// VerifyEntrySignature re-derives an entry's signed header and checks its
// signature under e.PublicKey, the validator's way of authenticating a
// decoded entry before any store write.
func VerifyEntrySignature(e *types.Entry) (bool, error) {
	header, err := EncodeEntry(e)
	if err != nil {
		return false, err
	}
	return crypto.VerifySignature(e.PublicKey, header, e.Signature), nil
}

// AssembleEntry signs an entry's header with the given seed and returns
// the full encoded_bytes (header length-prefixed, followed by signature)
// along with the derived entry hash. Used by test fixtures and any local
// publisher; replicated entries arrive pre-assembled.
func AssembleEntry(e *types.Entry, seed []byte) ([]byte, types.Hash, error) {
	header, err := EncodeEntry(e)
	if err != nil {
		return nil, "", err
	}
	pub, sig, err := crypto.Sign(seed, header)
	if err != nil {
		return nil, "", err
	}
	if pub != e.PublicKey {
		return nil, "", fmt.Errorf("wire: seed does not correspond to entry's declared public key")
	}
	signed := joinSignedEntry(header, sig)
	return signed, crypto.Hash(signed), nil
}

// joinSignedEntry and splitSignedEntry frame the header with a 2-byte
// big-endian length prefix so the fixed-size Ed25519 signature can be
// recovered without re-parsing CBOR.
func joinSignedEntry(header, signature []byte) []byte {
	out := make([]byte, 2+len(header)+len(signature))
	out[0] = byte(len(header) >> 8)
	out[1] = byte(len(header))
	copy(out[2:], header)
	copy(out[2+len(header):], signature)
	return out
}

func splitSignedEntry(signed []byte) (header, signature []byte, err error) {
	if len(signed) < 2 {
		return nil, nil, fmt.Errorf("wire: entry too short")
	}
	n := int(signed[0])<<8 | int(signed[1])
	if len(signed) < 2+n {
		return nil, nil, fmt.Errorf("wire: entry header length exceeds buffer")
	}
	return signed[2 : 2+n], signed[2+n:], nil
}
