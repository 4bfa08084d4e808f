package core

// entities.go declares the persisted entity structures of §3: accounts
// and shard records live in the top-level trie; asset schemes and owned
// assets live in per-shard tries.

// Account is keyed by address in the top-level trie.
type Account struct {
	Seq        uint64
	Balance    uint64
	RegularKey *PublicKey
}

// ShardRecord is keyed by shard id in the top-level trie.
type ShardRecord struct {
	StateRoot Hash
	Owners    []Address
	Users     []Address
}

// AssetScheme is keyed by asset-type hash in a shard's trie.
type AssetScheme struct {
	Metadata            string
	Supply              uint64
	Approver            *Address
	Registrar           *Address
	AllowedScriptHashes []H160
	Seq                 uint64
	Pool                []PoolEntry
}

// PoolEntry is one (asset_type, quantity) component of a composed asset's
// backing pool.
type PoolEntry struct {
	AssetType AssetType
	Quantity  uint64
}

// OwnedAsset is keyed by (tracker, output-index, shard) in a shard's trie.
type OwnedAsset struct {
	AssetType      AssetType
	ShardID        ShardID
	Quantity       uint64
	LockScriptHash H160
	Parameters     [][]byte
	OrderHash      *Hash
}

// HasAllowedScript reports whether hash is in the scheme's whitelist, or
// true if the whitelist is empty (no restriction configured).
func (s *AssetScheme) HasAllowedScript(hash H160) bool {
	if len(s.AllowedScriptHashes) == 0 {
		return true
	}
	for _, h := range s.AllowedScriptHashes {
		if h == hash {
			return true
		}
	}
	return false
}
