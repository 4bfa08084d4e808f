package consensus

// tendermint.go is the Tendermint-style engine §4.7 names: round-robin
// proposer selection over the dynamic ValidatorSet, with each sealed
// block signed by its proposer. Evidence-based slashing of a
// double-voting validator is handled by core/stake (which calls
// VerifyDoubleVote directly); this engine only decides who may propose
// and checks that a block's seal was produced by that proposer.
//
// Grounded on the teacher's core/consensus.go capability-interface
// style for the Engine wiring, and on stake_penalty.go/
// authority_nodes.go for the validator-set-driven authorship idiom
// generalized here to round-robin-by-height over ValidatorSet.

import (
	"fmt"
	"math/big"

	core "codechain-core/core"
)

// Signer is the capability a validator node injects so its engine can
// seal blocks it proposes: sign a digest with the node's own validator
// key.
type Signer interface {
	Address() core.Address
	Sign(digest core.Hash) (core.Signature, error)
}

// Tendermint is a round-robin-proposer BFT-style engine: the validator
// at index (blockNumber mod len(set)) of the set effective at the
// parent hash is the sole author allowed to produce the next block.
// Every sealed block is a proposal (IsProposal always true); a
// separate commit step (core/chain.Client.CommitAsCommitted) finalizes
// it, matching §4.5's "commit-as-committed" two-step.
type Tendermint struct {
	EngineBase
	Validators *ValidatorSet
	Signer     Signer // nil on a non-validating (observer) node
}

// NewTendermint constructs a Tendermint engine. signer may be nil for a
// node that only verifies and never proposes.
func NewTendermint(chain ChainView, validators *ValidatorSet, signer Signer) *Tendermint {
	return &Tendermint{EngineBase: EngineBase{Chain: chain}, Validators: validators, Signer: signer}
}

var _ Engine = (*Tendermint)(nil)

func (e *Tendermint) SealsInternally() bool { return true }
func (e *Tendermint) EngineType() string    { return "tendermint" }
func (e *Tendermint) Machine() string       { return "codechain" }
func (e *Tendermint) IsProposal(header *core.Header) bool { return true }

func (e *Tendermint) ScoreToTarget(score uint64) *big.Int {
	return new(big.Int).SetUint64(score)
}

// proposerAt returns the validator entitled to author blockNumber, the
// validator set effective at parentHash being the one recorded for
// parentHash (§4.7: "the validator determined by the parent hash at
// that height").
func (e *Tendermint) proposerAt(parentHash core.Hash, blockNumber uint64) (Validator, bool) {
	set, ok := e.Validators.At(parentHash)
	if !ok || len(set) == 0 {
		return Validator{}, false
	}
	return set[blockNumber%uint64(len(set))], true
}

func (e *Tendermint) PossibleAuthors(blockNumber *uint64) ([]core.Address, error) {
	if addrs, special := e.GenesisAuthors(blockNumber); special {
		return addrs, nil
	}
	if blockNumber == nil {
		return nil, nil
	}
	parent, ok := e.Chain.HeaderByNumber(*blockNumber - 1)
	if !ok {
		return nil, core.ErrRuntime("tendermint: unknown parent at height %d", *blockNumber-1)
	}
	proposer, ok := e.proposerAt(parent.Hash(), *blockNumber)
	if !ok {
		return nil, nil
	}
	return []core.Address{proposer.Address}, nil
}

// GenerateSeal signs header (with Seal cleared) if this node's Signer
// is the proposer entitled to author it; a nil seal with a nil error
// tells the miner to abort the candidate without treating it as a
// failure (§4.4 "if the engine declines to seal, abort the block").
func (e *Tendermint) GenerateSeal(header, parent *core.Header) ([][]byte, error) {
	if e.Signer == nil {
		return nil, nil
	}
	proposer, ok := e.proposerAt(parent.Hash(), header.Number)
	if !ok || proposer.Address != e.Signer.Address() {
		return nil, nil
	}
	sig, err := e.Signer.Sign(sealingHash(header))
	if err != nil {
		return nil, fmt.Errorf("tendermint: sign seal: %w", err)
	}
	return [][]byte{append([]byte(nil), sig[:]...)}, nil
}

// VerifySeal checks that header carries exactly one seal entry: a
// valid signature, by the proposer entitled to author header.Number,
// over header's pre-seal digest.
func (e *Tendermint) VerifySeal(header, parent *core.Header) error {
	if len(header.Seal) != 1 || len(header.Seal[0]) != len(core.Signature{}) {
		return core.ErrConsensus("tendermint: malformed seal on block %d", header.Number)
	}
	proposer, ok := e.proposerAt(parent.Hash(), header.Number)
	if !ok {
		return core.ErrConsensus("tendermint: no validator set recorded for parent %s", parent.Hash())
	}
	var sig core.Signature
	copy(sig[:], header.Seal[0])
	signer, err := core.RecoverSigner(sealingHash(header), sig)
	if err != nil {
		return core.ErrConsensus("tendermint: recover seal signer: %v", err)
	}
	if signer != proposer.Address {
		return core.ErrConsensus("tendermint: block %d sealed by %s, want proposer %s", header.Number, signer, proposer.Address)
	}
	if signer != header.Author {
		return core.ErrConsensus("tendermint: block %d author %s does not match seal signer %s", header.Number, header.Author, signer)
	}
	return nil
}

// VerifyTransactionWithParams has no engine-specific admission rule
// beyond the state engine's own apply checks; stake minimums and
// candidacy are enforced inside core/stake, not here.
func (e *Tendermint) VerifyTransactionWithParams(tx *core.SignedTransaction) error { return nil }

// sealingHash is the digest a proposer's seal signature covers: header
// with its Seal field cleared, so the seal itself is never part of its
// own signing pre-image (mirrors core/stake's ChangeParams.signingPayload
// stripping Signatures before hashing).
func sealingHash(header *core.Header) core.Hash {
	unsealed := *header
	unsealed.Seal = nil
	return unsealed.Hash()
}
