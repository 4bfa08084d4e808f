package state

// store.go is the shared read/write/checkpoint plumbing used by both
// TopLevelState and ShardState: a thin layer over a core.Trie that
// consults the GlobalCache on read, records pre-images for the active
// checkpoint on write, and accumulates a write buffer to hand to the
// cache once the enclosing block's canonicity is known (§4.1, §4.8).
//
// Grounded on the teacher's core/store.go key/value wrapper
// (orbas1-Synnergy), generalized from a flat KV namespace to a
// trie-backed, checkpointed one.

import core "codechain-core/core"

type entityStore struct {
	trie       core.Trie
	cp         *core.CheckpointStack
	cache      *GlobalCache
	parentHash core.Hash

	// buffer holds this block's net writes, keyed by the full trie key;
	// a nil value records a deletion. kindOf remembers which per-kind
	// cache each key belongs to, since deletions don't carry a kind of
	// their own.
	buffer map[string][]byte
	kindOf map[string]string
}

func newEntityStore(trie core.Trie, cache *GlobalCache, parentHash core.Hash) *entityStore {
	return &entityStore{
		trie:       trie,
		cp:         core.NewCheckpointStack(),
		cache:      cache,
		parentHash: parentHash,
		buffer:     make(map[string][]byte),
		kindOf:     make(map[string]string),
	}
}

func (s *entityStore) get(kind string, key []byte) ([]byte, bool) {
	ks := string(key)
	if v, buffered := s.buffer[ks]; buffered {
		if v == nil {
			return nil, false
		}
		return v, true
	}
	if s.cache != nil {
		if v, ok := s.cache.Get(kind, key, s.parentHash); ok {
			return v, true
		}
	}
	return s.trie.Get(key)
}

func (s *entityStore) put(kind string, key, value []byte) {
	ks := string(key)
	current, existed := s.trie.Get(key)
	s.cp.RecordWrite(ks, current, existed)
	s.trie.Update(key, value)
	s.buffer[ks] = value
	s.kindOf[ks] = kind
}

func (s *entityStore) delete(kind string, key []byte) {
	ks := string(key)
	current, existed := s.trie.Get(key)
	if !existed {
		return
	}
	s.cp.RecordWrite(ks, current, existed)
	s.trie.Update(key, nil)
	s.buffer[ks] = nil
	s.kindOf[ks] = kind
}

func (s *entityStore) checkpoint() uint64 { return s.cp.Create() }

func (s *entityStore) discard(id uint64) error { return s.cp.Discard(id) }

func (s *entityStore) revert(id uint64) error {
	pre, err := s.cp.Revert(id)
	if err != nil {
		return err
	}
	for ks, img := range pre {
		key := []byte(ks)
		if img.Existed {
			s.trie.Update(key, img.Value)
			s.buffer[ks] = img.Value
		} else {
			s.trie.Update(key, nil)
			s.buffer[ks] = nil
		}
	}
	return nil
}

// commit flushes the trie and returns its new root; the caller is
// responsible for handing exportBuffer() to the GlobalCache once the
// enclosing block's canonicity is known.
func (s *entityStore) commit() (core.Hash, error) {
	return s.trie.Commit()
}

func (s *entityStore) exportBuffer() map[CacheEntryKey][]byte {
	out := make(map[CacheEntryKey][]byte, len(s.buffer))
	for ks, v := range s.buffer {
		out[CacheEntryKey{Kind: s.kindOf[ks], Key: []byte(ks)}] = v
	}
	return out
}
