package state

// toplevel.go is the top-level state view of §3/§4.1: accounts, shard
// records, stored text blobs, and custom-handler action-data, all in one
// trie rooted at a block's state_root.

import core "codechain-core/core"

// TopLevelState is a single checkpointable view over the top-level trie.
type TopLevelState struct {
	store *entityStore
}

func newTopLevelState(trie core.Trie, cache *GlobalCache, parentHash core.Hash) *TopLevelState {
	return &TopLevelState{store: newEntityStore(trie, cache, parentHash)}
}

// GetAccount returns the account at addr, or a fresh zero-value account
// (seq 0, balance 0, no regular key) if it has never been written —
// accounts are never explicitly "created"; they spring into existence on
// first credit (§3).
func (t *TopLevelState) GetAccount(addr core.Address) (core.Account, error) {
	raw, ok := t.store.get(KindAccount, accountKey(addr))
	if !ok {
		return core.Account{}, nil
	}
	a, err := core.DecodeAccountRLP(raw)
	if err != nil {
		return core.Account{}, core.ErrDatabase("decode account %s: %v", addr, err)
	}
	return *a, nil
}

// PutAccount writes acc back for addr.
func (t *TopLevelState) PutAccount(addr core.Address, acc core.Account) error {
	raw, err := core.EncodeAccountRLP(&acc)
	if err != nil {
		return core.ErrDatabase("encode account %s: %v", addr, err)
	}
	t.store.put(KindAccount, accountKey(addr), raw)
	return nil
}

// GetShardRecord returns the shard metadata for id, and ok=false if the
// shard has never been created.
func (t *TopLevelState) GetShardRecord(id core.ShardID) (core.ShardRecord, bool, error) {
	raw, ok := t.store.get(KindShardRecord, shardRecordKey(id))
	if !ok {
		return core.ShardRecord{}, false, nil
	}
	rec, err := core.DecodeShardRecordRLP(raw)
	if err != nil {
		return core.ShardRecord{}, false, core.ErrDatabase("decode shard record %d: %v", id, err)
	}
	return *rec, true, nil
}

// PutShardRecord writes rec back for id.
func (t *TopLevelState) PutShardRecord(id core.ShardID, rec core.ShardRecord) error {
	raw, err := core.EncodeShardRecordRLP(&rec)
	if err != nil {
		return core.ErrDatabase("encode shard record %d: %v", id, err)
	}
	t.store.put(KindShardRecord, shardRecordKey(id), raw)
	return nil
}

// GetText returns the stored content and its certifier for hash, and
// ok=false if absent (never stored, or previously removed).
func (t *TopLevelState) GetText(hash core.Hash) (content string, certifier core.Address, ok bool) {
	raw, ok := t.store.get(KindText, textKey(hash))
	if !ok || len(raw) < 20 {
		return "", core.Address{}, false
	}
	copy(certifier[:], raw[:20])
	return string(raw[20:]), certifier, true
}

// PutText stores content under hash, certified by certifier (§3 Store).
func (t *TopLevelState) PutText(hash core.Hash, certifier core.Address, content string) {
	raw := append(append([]byte{}, certifier.Bytes()...), []byte(content)...)
	t.store.put(KindText, textKey(hash), raw)
}

// RemoveText deletes the content stored under hash, if any.
func (t *TopLevelState) RemoveText(hash core.Hash) {
	t.store.delete(KindText, textKey(hash))
}

// GetActionData returns the opaque blob a Custom handler previously
// stored under key.
func (t *TopLevelState) GetActionData(key core.Hash) ([]byte, bool) {
	return t.store.get(KindActionData, actionDataKey(key))
}

// PutActionData lets a Custom handler persist an opaque blob under key.
func (t *TopLevelState) PutActionData(key core.Hash, data []byte) {
	t.store.put(KindActionData, actionDataKey(key), data)
}

// GetRegularKeyOwner resolves the account that installed regularKeyAddr
// as its delegated signing key, ok=false if regularKeyAddr is not
// currently anyone's regular key.
func (t *TopLevelState) GetRegularKeyOwner(regularKeyAddr core.Address) (core.Address, bool) {
	raw, ok := t.store.get(KindRegularKeyOwner, regularKeyOwnerKey(regularKeyAddr))
	if !ok {
		return core.Address{}, false
	}
	var owner core.Address
	copy(owner[:], raw)
	return owner, true
}

// PutRegularKeyOwner records that regularKeyAddr now acts on behalf of
// owner (§3 SetRegularKey).
func (t *TopLevelState) PutRegularKeyOwner(regularKeyAddr, owner core.Address) {
	t.store.put(KindRegularKeyOwner, regularKeyOwnerKey(regularKeyAddr), owner.Bytes())
}

// RemoveRegularKeyOwner drops the reverse index entry for regularKeyAddr,
// used when an account installs a replacement regular key.
func (t *TopLevelState) RemoveRegularKeyOwner(regularKeyAddr core.Address) {
	t.store.delete(KindRegularKeyOwner, regularKeyOwnerKey(regularKeyAddr))
}

// NextShardID allocates and persists the next shard id (§3 CreateShard).
func (t *TopLevelState) NextShardID() core.ShardID {
	raw, ok := t.store.get(KindMeta, metaNextShardIDKey)
	var next uint16
	if ok && len(raw) == 2 {
		next = uint16(raw[0])<<8 | uint16(raw[1])
	}
	t.store.put(KindMeta, metaNextShardIDKey, []byte{byte((next + 1) >> 8), byte(next + 1)})
	return core.ShardID(next)
}

// Checkpoint, Discard and Revert expose the nested checkpoint mechanism
// of §4.1/§4.8 to the apply pipeline.
func (t *TopLevelState) Checkpoint() uint64        { return t.store.checkpoint() }
func (t *TopLevelState) Discard(id uint64) error   { return t.store.discard(id) }
func (t *TopLevelState) Revert(id uint64) error    { return t.store.revert(id) }

// Commit flushes the top-level trie and returns its new root.
func (t *TopLevelState) Commit() (core.Hash, error) { return t.store.commit() }

// ExportBuffer returns this block's net top-level writes, for the chain
// client to hand to GlobalCache.Note once the block's canonicity is
// known (§4.1).
func (t *TopLevelState) ExportBuffer() map[CacheEntryKey][]byte { return t.store.exportBuffer() }
