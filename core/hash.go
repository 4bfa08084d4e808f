package core

import (
	"lukechampine.com/blake3"
)

// Blake256 hashes data with a 256-bit blake digest. Used for block/
// transaction hashing and, keyed, for the VM's partial-hash signing
// scheme (SPEC_FULL.md §6, Testable Property 6).
func Blake256(data []byte) Hash {
	sum := blake3.Sum256(data)
	return Hash(sum)
}

// Blake256WithKey hashes data keyed by a 128-bit key, matching the spec's
// "blake256 keyed by blake128(tag)" partial-hash construction.
func Blake256WithKey(data []byte, key [16]byte) Hash {
	k := make([]byte, 32)
	copy(k, key[:])
	h := blake3.New(32, k)
	h.Write(data)
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// Blake128 hashes data into a 128-bit digest, used to derive the key for
// Blake256WithKey from a partial-hash tag.
func Blake128(data []byte) [16]byte {
	sum := blake3.Sum256(data)
	var out [16]byte
	copy(out[:], sum[:16])
	return out
}

// Blake160 hashes data into a 160-bit digest, used for lock-script hashes.
func Blake160(data []byte) H160 {
	sum := blake3.Sum256(data)
	var out H160
	copy(out[:], sum[:20])
	return out
}
