package state

// keys.go encodes entity identities into the flat byte keys used by the
// top-level and shard tries (§3 "Data Model"). Each helper is paired with
// a CacheEntryKey.Kind constant so the global cache and the trie agree on
// what a key names.

import (
	"encoding/binary"

	core "codechain-core/core"
)

// Entity kinds, used both as trie key prefixes and GlobalCache kind names.
const (
	KindAccount     = "account"
	KindShardRecord = "shard"
	KindText        = "text"
	KindActionData  = "action-data"
	KindAssetScheme = "scheme"
	KindOwnedAsset  = "asset"
	// KindRegularKeyOwner indexes a regular-key's derived address back to
	// the account that installed it, so a transaction signed by the
	// regular key is attributed to the owning account (§3 SetRegularKey).
	KindRegularKeyOwner = "regular-key-owner"
	// KindMeta holds small top-level scalars, e.g. the next shard id to
	// assign (§3 CreateShard).
	KindMeta = "meta"
)

var metaNextShardIDKey = []byte(KindMeta + "\x00next-shard-id")

func accountKey(addr core.Address) []byte {
	return append([]byte(KindAccount+"\x00"), addr.Bytes()...)
}

func shardRecordKey(id core.ShardID) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, uint16(id))
	return append([]byte(KindShardRecord+"\x00"), b...)
}

func textKey(h core.Hash) []byte {
	return append([]byte(KindText+"\x00"), h.Bytes()...)
}

func actionDataKey(key core.Hash) []byte {
	return append([]byte(KindActionData+"\x00"), key.Bytes()...)
}

func schemeKey(assetType core.AssetType) []byte {
	return append([]byte(KindAssetScheme+"\x00"), assetType.Bytes()...)
}

// assetKey identifies one owned asset by its creating outpoint: the
// tracker hash of the transaction that created it and the output index
// within that transaction (§3 AssetOutPoint).
func assetKey(tracker core.Tracker, index core.OutputIndex) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, uint16(index))
	k := append([]byte(KindOwnedAsset+"\x00"), tracker.Bytes()...)
	return append(k, b...)
}

func regularKeyOwnerKey(addr core.Address) []byte {
	return append([]byte(KindRegularKeyOwner+"\x00"), addr.Bytes()...)
}
