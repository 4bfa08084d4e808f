package state

// shardstate.go is one shard's asset state of §3/§4.1: asset schemes and
// owned assets, each in their own shard's trie (keyed by the shard's
// ShardRecord.StateRoot).

import core "codechain-core/core"

// ShardState is a single checkpointable view over one shard's trie.
type ShardState struct {
	id    core.ShardID
	store *entityStore
}

func newShardState(id core.ShardID, trie core.Trie, cache *GlobalCache, parentHash core.Hash) *ShardState {
	return &ShardState{id: id, store: newEntityStore(trie, cache, parentHash)}
}

// ID returns this view's shard id.
func (s *ShardState) ID() core.ShardID { return s.id }

// GetScheme returns the asset scheme for assetType, ok=false if it does
// not exist in this shard.
func (s *ShardState) GetScheme(assetType core.AssetType) (core.AssetScheme, bool, error) {
	raw, ok := s.store.get(KindAssetScheme, schemeKey(assetType))
	if !ok {
		return core.AssetScheme{}, false, nil
	}
	scheme, err := core.DecodeAssetSchemeRLP(raw)
	if err != nil {
		return core.AssetScheme{}, false, core.ErrDatabase("decode asset scheme %s: %v", assetType, err)
	}
	return *scheme, true, nil
}

// PutScheme writes scheme back for assetType.
func (s *ShardState) PutScheme(assetType core.AssetType, scheme core.AssetScheme) error {
	raw, err := core.EncodeAssetSchemeRLP(&scheme)
	if err != nil {
		return core.ErrDatabase("encode asset scheme %s: %v", assetType, err)
	}
	s.store.put(KindAssetScheme, schemeKey(assetType), raw)
	return nil
}

// GetAsset returns the owned asset created at (tracker, index), ok=false
// if it does not exist (never created, already spent/burnt, or in a
// different shard).
func (s *ShardState) GetAsset(tracker core.Tracker, index core.OutputIndex) (core.OwnedAsset, bool, error) {
	raw, ok := s.store.get(KindOwnedAsset, assetKey(tracker, index))
	if !ok {
		return core.OwnedAsset{}, false, nil
	}
	asset, err := core.DecodeOwnedAssetRLP(raw)
	if err != nil {
		return core.OwnedAsset{}, false, core.ErrDatabase("decode owned asset %s/%d: %v", tracker, index, err)
	}
	return *asset, true, nil
}

// PutAsset creates or overwrites the owned asset at (tracker, index).
func (s *ShardState) PutAsset(tracker core.Tracker, index core.OutputIndex, asset core.OwnedAsset) error {
	raw, err := core.EncodeOwnedAssetRLP(&asset)
	if err != nil {
		return core.ErrDatabase("encode owned asset %s/%d: %v", tracker, index, err)
	}
	s.store.put(KindOwnedAsset, assetKey(tracker, index), raw)
	return nil
}

// RemoveAsset deletes the owned asset at (tracker, index), once spent or
// burnt (invariant 3/4).
func (s *ShardState) RemoveAsset(tracker core.Tracker, index core.OutputIndex) {
	s.store.delete(KindOwnedAsset, assetKey(tracker, index))
}

func (s *ShardState) Checkpoint() uint64      { return s.store.checkpoint() }
func (s *ShardState) Discard(id uint64) error { return s.store.discard(id) }
func (s *ShardState) Revert(id uint64) error  { return s.store.revert(id) }

// Commit flushes this shard's trie and returns its new root.
func (s *ShardState) Commit() (core.Hash, error) { return s.store.commit() }

// ExportBuffer returns this shard's net writes for the block.
func (s *ShardState) ExportBuffer() map[CacheEntryKey][]byte { return s.store.exportBuffer() }
