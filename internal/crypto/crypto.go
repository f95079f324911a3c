// Package crypto is the node's boundary with its cryptographic
// primitives: Ed25519 signatures and BLAKE-family hashing. Bamboo-style
// entry encoding and CBOR operation encoding live in internal/wire, which
// calls through here for the signature and hash steps only.
package crypto

import (
	"crypto/ed25519"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/aquadoggo-go/aquadoggo/internal/types"
)

// base58Alphabet is the Bitcoin/IPFS base58 alphabet, used wherever a hash
// needs a "base58 of hash" encoding.
const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// Hash returns the BLAKE2b-256 digest of data, base58-encoded. This backs
// both payload_hash and entry_hash.
func Hash(data []byte) types.Hash {
	sum := blake2b.Sum256(data)
	return types.Hash(base58Encode(sum[:]))
}

// VerifySignature reports whether signature is a valid Ed25519 signature
// over message under publicKey.
func VerifySignature(publicKey types.PublicKey, message, signature []byte) bool {
	return ed25519.Verify(ed25519.PublicKey(publicKey[:]), message, signature)
}

// Sign produces an Ed25519 signature over message using the given raw
// 32-byte seed, returning the derived public key alongside it. Used by
// test fixtures and any in-process writer (the node itself never signs on
// behalf of a remote publisher — entries arrive pre-signed).
func Sign(seed []byte, message []byte) (publicKey types.PublicKey, signature []byte, err error) {
	if len(seed) != ed25519.SeedSize {
		return publicKey, nil, fmt.Errorf("crypto: seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	copy(publicKey[:], priv.Public().(ed25519.PublicKey))
	signature = ed25519.Sign(priv, message)
	return publicKey, signature, nil
}

// ViewID computes a document view's id as the hash-ordered concatenation
// of its tip operation ids.
func ViewID(tips []types.OperationID) types.ViewID {
	sorted := make([]string, len(tips))
	for i, t := range tips {
		sorted[i] = string(t)
	}
	sort.Strings(sorted)
	return types.ViewID(Hash([]byte(strings.Join(sorted, "\x00"))))
}

// Cursor computes the deterministic, globally-unique row identifier for a
// scalar field value: base58(hash(operation_id || name || list_index)).
func Cursor(operationID types.OperationID, name string, listIndex int) types.Hash {
	payload := fmt.Sprintf("%s\x00%s\x00%d", operationID, name, listIndex)
	return Hash([]byte(payload))
}

// Lipmaa returns the sequence number a skiplink at seqNum must reference,
// using the standard lipmaa-link function (also used by Secure Scuttlebutt
// and Bamboo logs) so verification remains logarithmic in log length.
// Returns 0 (no skiplink required) for seqNum <= 1.
func Lipmaa(seqNum types.SeqNum) types.SeqNum {
	n := uint64(seqNum)
	if n <= 1 {
		return 0
	}
	// Find the smallest m = (3^k - 1) / 2 >= n, then the longest backjump.
	m, po3, x := uint64(1), uint64(3), n
	for ; m < n; m = (po3 - 1) / 2 {
		po3 *= 3
	}
	po3 /= 3
	if m != n {
		for ; x != 0; x %= m {
			m = (po3 - 1) / 2
			po3 /= 3
		}
		if m != po3 {
			po3 = m
		}
	}
	return types.SeqNum(n - po3)
}

func base58Encode(data []byte) string {
	num := new(big.Int).SetBytes(data)
	zero := big.NewInt(0)
	base := big.NewInt(58)
	mod := new(big.Int)

	var out []byte
	for num.Cmp(zero) > 0 {
		num.DivMod(num, base, mod)
		out = append(out, base58Alphabet[mod.Int64()])
	}
	for _, b := range data {
		if b != 0 {
			break
		}
		out = append(out, base58Alphabet[0])
	}
	// reverse
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if len(out) == 0 {
		return string(base58Alphabet[0])
	}
	return string(out)
}
