package consensus

import (
	"sync"

	core "codechain-core/core"
)

// Validator is one member of a Tendermint-style validator set: its
// signing key and the address that key recovers to.
type Validator struct {
	Address   core.Address
	PublicKey core.PublicKey
}

// ValidatorSet is the dynamic validator set §4.7 requires: "a Tendermint-
// style engine additionally exposes a dynamic validator set". The set
// effective at a height is the one recorded for that height's parent
// hash, matching how the state engine computes it (membership is itself
// state, read as of the parent block).
//
// Grounded on the teacher's authority_nodes.go/authority_apply.go
// membership-by-height shape (orbas1-Synnergy), generalized from a flat
// authority list to a per-parent-hash snapshot map.
type ValidatorSet struct {
	mu       sync.RWMutex
	byParent map[core.Hash][]Validator
}

// NewValidatorSet returns an empty set; snapshots are installed with Set.
func NewValidatorSet() *ValidatorSet {
	return &ValidatorSet{byParent: make(map[core.Hash][]Validator)}
}

// Set installs the validator list effective immediately after parentHash
// (i.e. the set any block whose parent is parentHash must be signed by).
func (vs *ValidatorSet) Set(parentHash core.Hash, validators []Validator) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	cp := append([]Validator(nil), validators...)
	vs.byParent[parentHash] = cp
}

// At returns the validator list effective at parentHash, ok=false if no
// snapshot has been recorded for it.
func (vs *ValidatorSet) At(parentHash core.Hash) ([]Validator, bool) {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	set, ok := vs.byParent[parentHash]
	return set, ok
}

// ValidatorAt returns the index'th validator in the set effective at
// parentHash, ok=false if the set is unknown or index is out of range.
func (vs *ValidatorSet) ValidatorAt(parentHash core.Hash, index int) (Validator, bool) {
	set, ok := vs.At(parentHash)
	if !ok || index < 0 || index >= len(set) {
		return Validator{}, false
	}
	return set[index], true
}

// Size returns the number of validators effective at parentHash, 0 if
// unknown.
func (vs *ValidatorSet) Size(parentHash core.Hash) int {
	set, _ := vs.At(parentHash)
	return len(set)
}
