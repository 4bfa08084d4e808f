package chain

// keys.go encodes the §6 "Persisted state layout" blocks/chain-meta/
// extras columns: headers and bodies keyed by hash, block-number to
// canonical-hash and tracker-to-mined-block indices in extras, and the
// chain head pointer in chain-meta.

import (
	"encoding/binary"

	core "codechain-core/core"
)

func headerKey(hash core.Hash) []byte {
	return append([]byte("h\x00"), hash.Bytes()...)
}

func bodyKey(hash core.Hash) []byte {
	return append([]byte("b\x00"), hash.Bytes()...)
}

func canonicalNumberKey(number uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, number)
	return append([]byte("n\x00"), b...)
}

func trackerKey(tracker core.Hash) []byte {
	return append([]byte("t\x00"), tracker.Bytes()...)
}

var bestHashKey = []byte("best-hash")
