package core

import (
	"sort"
	"sync"
)

// trie.go models the Merkle-Patricia trie library as an opaque
// authenticated (hash -> bytes) map (§1: "the Merkle-Patricia trie
// library (used as an opaque (hash -> bytes) authenticated map)" is an
// external collaborator). Trie is the capability interface; TrieMem is
// an in-memory reference implementation used by tests — it fakes
// authentication with a content hash of the sorted key/value set rather
// than real Merkle proofs, which is sufficient to exercise
// apply-determinism (Testable Property 1) without depending on a real
// trie library that isn't present anywhere in the retrieved example
// pack.

// Trie is a single authenticated key/value level: one instantiation
// backs the top-level state, and one per shard backs that shard's asset
// state (§4.1).
type Trie interface {
	// Get returns the value at key as of the trie's current root, or
	// ok=false if absent.
	Get(key []byte) (value []byte, ok bool)
	// Update sets key to value (value=nil deletes).
	Update(key, value []byte) error
	// Root returns the current authenticated root hash.
	Root() Hash
	// Commit persists any buffered writes and returns the new root.
	Commit() (Hash, error)
}

// TrieFactory opens a Trie view rooted at an existing root hash (or a
// fresh, empty trie if root is the zero hash).
type TrieFactory interface {
	OpenTrie(root Hash) (Trie, error)
}

// TrieMem is an in-memory Trie/TrieFactory pair good enough for tests.
type TrieMem struct {
	mu      sync.Mutex
	byRoot  map[Hash]map[string][]byte
}

// NewTrieMem returns a factory with a single empty trie at the zero root.
func NewTrieMem() *TrieMem {
	t := &TrieMem{byRoot: make(map[Hash]map[string][]byte)}
	t.byRoot[Hash{}] = map[string][]byte{}
	return t
}

func (t *TrieMem) OpenTrie(root Hash) (Trie, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	base, ok := t.byRoot[root]
	if !ok {
		if root != (Hash{}) {
			return nil, ErrDatabase("trie: unknown root %s", root)
		}
		base = map[string][]byte{}
	}
	clone := make(map[string][]byte, len(base))
	for k, v := range base {
		clone[k] = v
	}
	return &trieMemView{factory: t, root: root, data: clone}, nil
}

type trieMemView struct {
	factory *TrieMem
	root    Hash
	data    map[string][]byte
}

func (v *trieMemView) Get(key []byte) ([]byte, bool) {
	val, ok := v.data[string(key)]
	return val, ok
}

func (v *trieMemView) Update(key, value []byte) error {
	if value == nil {
		delete(v.data, string(key))
		return nil
	}
	v.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (v *trieMemView) Root() Hash { return contentHash(v.data) }

func (v *trieMemView) Commit() (Hash, error) {
	root := contentHash(v.data)
	v.factory.mu.Lock()
	defer v.factory.mu.Unlock()
	clone := make(map[string][]byte, len(v.data))
	for k, val := range v.data {
		clone[k] = val
	}
	v.factory.byRoot[root] = clone
	v.root = root
	return root, nil
}

// contentHash deterministically hashes a key/value set regardless of Go
// map iteration order, standing in for a real trie's authenticated root.
func contentHash(data map[string][]byte) Hash {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var buf []byte
	for _, k := range keys {
		buf = append(buf, byte(len(k)))
		buf = append(buf, k...)
		v := data[k]
		buf = append(buf, byte(len(v)), byte(len(v)>>8), byte(len(v)>>16), byte(len(v)>>24))
		buf = append(buf, v...)
	}
	return Blake256(buf)
}
