// Package consensus models the pluggable consensus engine capability of
// §4.7: a polymorphic interface the chain client drives to seal and
// verify blocks, plus the Tendermint-style validator set and double-vote
// evidence machinery a BFT engine layers on top of it.
//
// Grounded on the teacher's core/consensus.go capability-interface shape
// (orbas1-Synnergy: txPool/networkAdapter/securityAdapter/authorityAdapter
// injected interfaces) generalized to the engine capability §4.7 names,
// and on stake_penalty.go's ledger-backed manager for the slashing path
// in doublevote.go.
package consensus

import (
	"math/big"

	core "codechain-core/core"
)

// ChainView is the read-only capability the client injects into an
// engine at construction so it can consult chain state (e.g. the
// validator set effective at a given parent) without holding a strong
// back-reference to the client (DESIGN NOTES "cyclic client<->engine
// references").
type ChainView interface {
	// HeaderByNumber returns the canonical header at number, if known.
	HeaderByNumber(number uint64) (*core.Header, bool)
	// GenesisAuthor returns the author recorded in the genesis header.
	GenesisAuthor() core.Address
}

// Engine is the §4.7 consensus capability: "{seals_internally,
// generate_seal, verify_transaction_with_params, verify_seal,
// score_to_target, possible_authors, engine_type, machine,
// is_proposal}".
type Engine interface {
	// SealsInternally reports whether this engine produces seal fields
	// directly (internal sealing) rather than publishing external work
	// for a submit_seal round-trip (§4.4).
	SealsInternally() bool

	// GenerateSeal produces the seal fields for an open block built on
	// top of parent. Returns a nil seal if the engine declines to seal
	// right now (e.g. not this validator's turn); the miner must then
	// skip the block (§4.4 "if the engine declines to seal, abort the
	// block").
	GenerateSeal(header *core.Header, parent *core.Header) ([][]byte, error)

	// VerifyTransactionWithParams performs any engine-specific
	// transaction admission check beyond the state engine's own apply
	// rules (e.g. a minimum-stake gate on stake sub-actions). Returning
	// nil means the engine has no objection.
	VerifyTransactionWithParams(tx *core.SignedTransaction) error

	// VerifySeal checks header's seal fields against parent, e.g. a PoW
	// target check or a Tendermint commit quorum check.
	VerifySeal(header *core.Header, parent *core.Header) error

	// ScoreToTarget converts a block's score into the engine's internal
	// difficulty/target representation (external sealing work item).
	ScoreToTarget(score uint64) *big.Int

	// PossibleAuthors lists the addresses allowed to author the block at
	// height blockNumber, or nil if the engine does not restrict
	// authorship (e.g. open PoW). A nil blockNumber means "any height".
	// blockNumber == 0 is special-cased by EngineBase to the genesis
	// author (DESIGN NOTES: chain policy, not a consensus rule).
	PossibleAuthors(blockNumber *uint64) ([]core.Address, error)

	// EngineType names the engine for logging/diagnostics, e.g. "pow",
	// "tendermint".
	EngineType() string

	// Machine names the state-transition rule set this engine pairs
	// with; CodeChain has a single fixed machine, so this is currently
	// always "codechain".
	Machine() string

	// IsProposal reports whether header is a Tendermint-style proposal
	// block awaiting a separate commit step (§4.5 "commit-as-committed"),
	// as opposed to a block that is final the moment it is imported.
	IsProposal(header *core.Header) bool
}

// EngineBase implements the PossibleAuthors(0) special case shared by
// every concrete engine (DESIGN NOTES); concrete engines embed it and
// override the methods Engine requires beyond this.
type EngineBase struct {
	Chain ChainView
}

// GenesisAuthors returns the genesis author as the sole possible author
// of block 0, per §9's "possible_authors(Some(0)) is special-cased to
// the genesis author; this is chain-policy, not a consensus rule".
func (b EngineBase) GenesisAuthors(blockNumber *uint64) ([]core.Address, bool) {
	if blockNumber != nil && *blockNumber == 0 {
		return []core.Address{b.Chain.GenesisAuthor()}, true
	}
	return nil, false
}
