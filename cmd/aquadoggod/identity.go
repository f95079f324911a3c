package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aquadoggo-go/aquadoggo/internal/crypto"
	"github.com/aquadoggo-go/aquadoggo/internal/idgen"
	"github.com/aquadoggo-go/aquadoggo/internal/types"
)

// identity is the node's own Ed25519 keypair, loaded from
// config.PrivateKeyPath or generated on first run. The node never signs
// entries on a publisher's behalf (internal/crypto's Sign is for test
// fixtures and in-process writers only). The node logs this identity's
// alias and public key at startup; replication announces are sent
// unsigned and do not use it.
type identity struct {
	publicKey types.PublicKey
	seed      []byte
	alias     string
}

// loadOrCreateIdentity reads a hex-encoded Ed25519 seed from path,
// generating and persisting a fresh one if the file doesn't exist yet.
// An empty path yields a fresh, unpersisted identity on every call.
func loadOrCreateIdentity(path string) (*identity, error) {
	if path == "" {
		return newIdentity(nil)
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		seed, decodeErr := hex.DecodeString(string(raw))
		if decodeErr != nil {
			return nil, fmt.Errorf("identity: decode %s: %w", path, decodeErr)
		}
		return newIdentity(seed)
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("identity: read %s: %w", path, err)
	}

	id, err := newIdentity(nil)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("identity: create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(id.seed)), 0o600); err != nil {
		return nil, fmt.Errorf("identity: write %s: %w", path, err)
	}
	return id, nil
}

func newIdentity(seed []byte) (*identity, error) {
	if seed == nil {
		seed = make([]byte, ed25519.SeedSize)
		if _, err := rand.Read(seed); err != nil {
			return nil, fmt.Errorf("identity: generate seed: %w", err)
		}
	}
	pub, _, err := crypto.Sign(seed, []byte("aquadoggod-identity-probe"))
	if err != nil {
		return nil, fmt.Errorf("identity: derive public key: %w", err)
	}
	alias := idgen.GenerateHashID("node", pub.String(), "", "", time.Unix(0, 0), 6, 0)
	return &identity{publicKey: pub, seed: seed, alias: alias}, nil
}
