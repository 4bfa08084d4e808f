// Package state implements the authenticated, checkpointable state engine
// of §4.1: a top-level store (accounts, shard records, text, action-data)
// and per-shard stores (asset schemes, owned assets), a global read cache
// parameterized by canonical-chain reorg tracking, and nested checkpoints.
//
// Grounded on the teacher's core/ledger.go persistence idiom (WAL/replay,
// sync.RWMutex-guarded maps, logrus) generalized to a trie-backed,
// checkpointable engine; the reorg-tracked cache follows SPEC_FULL.md
// DESIGN NOTES ("the block-changes deque is the source of truth for
// cache validity").
package state

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	core "codechain-core/core"
)

// changeSet records which entity keys one applied block touched, and
// whether that block currently sits on the canonical chain (§4.1).
type changeSet struct {
	blockNumber uint64
	blockHash   core.Hash
	parentHash  core.Hash
	modified    map[string]struct{}
	isCanon     bool
}

// GlobalCache is the per-entity-kind LRU described in §4.1. One mutex
// (mu) guards the changeset deque, a second (kindsMu) guards the map of
// per-kind LRUs; each LRU synchronizes its own entries.
type GlobalCache struct {
	maxDepth    int
	perKindSize int

	mu     sync.Mutex // guards the changeset deque structures below
	deque  []*changeSet
	byHash map[core.Hash]*changeSet

	kindsMu sync.Mutex
	kinds   map[string]*lru.Cache[string, []byte]

	log *logrus.Logger
}

// NewGlobalCache returns a cache retaining up to maxDepth recent
// change-sets per kind-independent deque, and perKindSize entries per
// entity kind.
func NewGlobalCache(maxDepth, perKindSize int) *GlobalCache {
	return &GlobalCache{
		maxDepth:    maxDepth,
		perKindSize: perKindSize,
		byHash:      make(map[core.Hash]*changeSet),
		kinds:       make(map[string]*lru.Cache[string, []byte]),
		log:         logrus.StandardLogger(),
	}
}

func (c *GlobalCache) kindCache(kind string) *lru.Cache[string, []byte] {
	c.kindsMu.Lock()
	defer c.kindsMu.Unlock()
	kc, ok := c.kinds[kind]
	if !ok {
		kc, _ = lru.New[string, []byte](c.perKindSize)
		c.kinds[kind] = kc
	}
	return kc
}

// Get looks up key under kind, valid as of parentHash. It returns
// ok=false both on a genuine miss and when the walk back from parentHash
// finds a non-canonical modification to key (Testable Property 8) — in
// either case the caller must fall through to the trie.
func (c *GlobalCache) Get(kind string, key []byte, parentHash core.Hash) ([]byte, bool) {
	if !c.validAt(key, parentHash) {
		return nil, false
	}
	return c.kindCache(kind).Get(string(key))
}

// validAt walks the ancestry chain from parentHash back through the
// tracked deque. If every change-set along the way that modified key is
// canonical, the cache may be trusted; if any is non-canonical, or the
// chain runs off the end of the tracked window without reaching a
// canonical write, the caller must not trust the cache for a
// write it cannot account for — per spec, only a *non-canonical*
// modification invalidates the cache, so running off the tracked window
// (no information either way) is treated as valid, matching "change-sets
// that age out of the queue are assumed settled".
func (c *GlobalCache) validAt(key []byte, parentHash core.Hash) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	hash := parentHash
	for {
		cs, ok := c.byHash[hash]
		if !ok {
			return true // ran off the tracked window: assume settled
		}
		if _, touched := cs.modified[string(key)]; touched {
			return cs.isCanon
		}
		hash = cs.parentHash
	}
}

// Note records a block's write set into the cache. buffer holds the
// values written by that block's apply, keyed "kind\x00key". The values
// are only promoted into the per-kind LRU when isCanon is true (§4.1
// "writers populate a local buffer during apply; on commit the buffer is
// transferred into the global cache only if the commit is part of the
// canonical chain").
func (c *GlobalCache) Note(blockNumber uint64, blockHash, parentHash core.Hash, buffer map[CacheEntryKey][]byte, isCanon bool) {
	modified := make(map[string]struct{}, len(buffer))
	for k, v := range buffer {
		modified[string(k.Key)] = struct{}{}
		if v == nil {
			// a deletion must never leave a stale positive behind,
			// canonical or not.
			c.kindCache(k.Kind).Remove(string(k.Key))
			continue
		}
		if isCanon {
			c.kindCache(k.Kind).Add(string(k.Key), v)
		}
	}
	cs := &changeSet{blockNumber: blockNumber, blockHash: blockHash, parentHash: parentHash, modified: modified, isCanon: isCanon}

	c.mu.Lock()
	c.deque = append(c.deque, cs)
	c.byHash[blockHash] = cs
	for len(c.deque) > c.maxDepth {
		oldest := c.deque[0]
		c.deque = c.deque[1:]
		delete(c.byHash, oldest.blockHash)
	}
	c.mu.Unlock()
}

// SyncCache applies a reorg notification: enacted blocks become
// canonical, retracted blocks stop being canonical, and any address
// whose only known writes are now off-chain is evicted from the LRU so
// a later lookup falls through to the trie (§4.1 "on reorg notification
// (enacted, retracted), it flips is_canon flags and evicts addresses
// modified by now off-chain blocks").
func (c *GlobalCache) SyncCache(enacted, retracted []core.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, h := range retracted {
		if cs, ok := c.byHash[h]; ok {
			cs.isCanon = false
			c.evictLocked(cs.modified)
		}
	}
	for _, h := range enacted {
		if cs, ok := c.byHash[h]; ok {
			cs.isCanon = true
		}
	}
}

func (c *GlobalCache) evictLocked(modified map[string]struct{}) {
	c.kindsMu.Lock()
	defer c.kindsMu.Unlock()
	for _, kc := range c.kinds {
		for k := range modified {
			kc.Remove(k)
		}
	}
}

// CacheEntryKey names one buffered write for Note: which per-entity-kind
// LRU it belongs to, and the entity's byte key within that kind.
type CacheEntryKey struct {
	Kind string
	Key  []byte
}
