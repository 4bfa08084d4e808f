package stake

// params.go is the stake-governed CommonParams ChangeParams mutates
// (§3.1, §6: "ChangeParams is a variable-length list [tag, seq, params,
// sig...] with at least one signature"), grounded on original_source's
// CommonParams::verify() (network id match, at least one valid
// signature over the params-without-signatures pre-image).

import core "codechain-core/core"

// Params is the subset of chain-wide parameters stake governance may
// change at runtime.
type Params struct {
	NetworkID                core.NetworkID
	MaxCandidateMetadataSize uint64
	MinSelfNominationDeposit uint64
	MaxNumOfValidators       uint64
}

// DefaultParams returns the genesis defaults used until the first
// ChangeParams action lands.
func DefaultParams() Params {
	return Params{
		MaxCandidateMetadataSize: 1024,
		MinSelfNominationDeposit: 10_000,
		MaxNumOfValidators:       30,
	}
}
