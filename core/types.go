// Package core implements the consensus-and-execution core of a CodeChain
// node: the block chain client, the account/asset state engine, the
// deterministic unlocking VM, the mempool and miner, and the
// block-propagation peer protocol.
package core

import (
	"encoding/hex"
	"fmt"
)

// Address identifies an account, derived from a public key. 20 bytes,
// matching the wire format of every CodeChain signer address.
type Address [20]byte

func (a Address) Hex() string { return hex.EncodeToString(a[:]) }

func (a Address) String() string { return a.Hex() }

func (a Address) Bytes() []byte { return a[:] }

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool { return a == Address{} }

// Hash is a 32-byte cryptographic digest (blake256 over RLP-encoded data).
type Hash [32]byte

func (h Hash) Hex() string { return hex.EncodeToString(h[:]) }

func (h Hash) String() string { return h.Hex() }

func (h Hash) Bytes() []byte { return h[:] }

func (h Hash) IsZero() bool { return h == Hash{} }

// H160 is a 20-byte digest, used for lock-script hashes (blake160).
type H160 [20]byte

func (h H160) Hex() string { return hex.EncodeToString(h[:]) }
func (h H160) Bytes() []byte { return h[:] }

// AssetType identifies an asset scheme; it is the tracker hash of the
// transaction that created the scheme, or the all-zero value for the
// wrapped native coin (see "asset-type zero" in SPEC_FULL.md DESIGN NOTES).
type AssetType = Hash

// ShardID is a 16-bit shard identifier.
type ShardID uint16

// PublicKey is an uncompressed secp256k1 public key.
type PublicKey []byte

// Signature is a 65-byte {R||S||V} secp256k1 signature.
type Signature [65]byte

func (s Signature) Bytes() []byte { return s[:] }

// NetworkID is the 2-byte ASCII chain tag read from the genesis scheme.
type NetworkID [2]byte

func (n NetworkID) String() string { return string(n[:]) }

// ParseNetworkID validates and converts a 2-character ASCII string.
func ParseNetworkID(s string) (NetworkID, error) {
	var n NetworkID
	if len(s) != 2 {
		return n, fmt.Errorf("network id must be 2 ASCII characters, got %q", s)
	}
	copy(n[:], s)
	return n, nil
}

// Tracker is the content hash of a shard transaction, stable across
// approval additions (approvals are excluded from the pre-image).
type Tracker = Hash

// OutputIndex identifies one output of a shard transaction.
type OutputIndex uint16

// AssetOutPoint identifies an owned asset: the transaction tracker that
// created it, the output index within that transaction, and the shard
// that owns it (invariant 8: shard-id must equal the owning shard).
type AssetOutPoint struct {
	Tracker     Tracker
	Index       OutputIndex
	AssetType   AssetType
	ShardID     ShardID
	Quantity    uint64
}
