// Package stake implements the Stake Custom-action handler (§3.1, §6):
// the sub-action catalogue a Custom action with handler_id 2 carries,
// and their effect on stake balances, delegation, candidacy, and
// double-vote slashing.
//
// Grounded on original_source/core/src/consensus/stake/actions.rs for
// the sub-action tag table and field lists, and on the teacher's
// state/stake_penalty.go (orbas1-Synnergy) for the ledger-backed
// stake/penalty bookkeeping shape.
package stake

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	core "codechain-core/core"
	"codechain-core/core/consensus"
)

// HandlerID is the handler_id this package's Stake handler answers to
// (SPEC_FULL.md 3.1: "handler_id = 2 by convention").
const HandlerID = 2

// Sub-action tag bytes (spec.md line 209).
const (
	TagTransferCCS      = 1
	TagDelegateCCS      = 2
	TagRevoke           = 3
	TagSelfNominate     = 4
	TagReportDoubleVote = 5
	TagRedelegate       = 6
	TagChangeParams     = 0xFF
)

// TransferCCS moves Quantity unlocked CCS stake to Address.
type TransferCCS struct {
	Address  core.Address
	Quantity uint64
}

// DelegateCCS assigns Quantity of the signer's own stake to a delegatee.
type DelegateCCS struct {
	Address  core.Address
	Quantity uint64
}

// Revoke withdraws Quantity previously delegated to Address back to the
// signer's own undelegated stake.
type Revoke struct {
	Address  core.Address
	Quantity uint64
}

// Redelegate moves Quantity already delegated to PrevDelegatee onto
// NextDelegatee in one step.
type Redelegate struct {
	PrevDelegatee core.Address
	NextDelegatee core.Address
	Quantity      uint64
}

// SelfNominate registers (or refreshes) the signer as a validator
// candidate, locking Deposit from the signer's stake balance.
type SelfNominate struct {
	Deposit  uint64
	Metadata []byte
}

// voteMessageWire mirrors consensus.VoteMessage for RLP purposes:
// go-ethereum/rlp does not support a signed int field, so SignerIndex is
// carried as uint64 on the wire and converted at the package boundary.
type voteMessageWire struct {
	Height      uint64
	Round       uint64
	SignerIndex uint64
	BlockHash   core.Hash
	Signature   core.Signature
}

func toWire(m consensus.VoteMessage) voteMessageWire {
	return voteMessageWire{
		Height:      m.Height,
		Round:       m.Round,
		SignerIndex: uint64(m.SignerIndex),
		BlockHash:   m.BlockHash,
		Signature:   m.Signature,
	}
}

func fromWire(w voteMessageWire) consensus.VoteMessage {
	return consensus.VoteMessage{
		Height:      w.Height,
		Round:       w.Round,
		SignerIndex: int(w.SignerIndex),
		BlockHash:   w.BlockHash,
		Signature:   w.Signature,
	}
}

// ReportDoubleVote submits two conflicting consensus messages as
// evidence against their common signer (§4.7).
type ReportDoubleVote struct {
	Message1 consensus.VoteMessage
	Message2 consensus.VoteMessage
}

// ChangeParams replaces the stake-governed CommonParams, authorized by
// at least one signature over the unsigned form of the action (§6:
// "a variable-length list [tag, seq, params, sig...] with at least one
// signature").
type ChangeParams struct {
	MetadataSeq uint64
	Params      Params
	Signatures  []core.Signature
}

type subActionWire struct {
	Tag     uint8
	Payload []byte
}

// EncodeSubAction tags and RLP-encodes one stake sub-action for
// Custom.Bytes.
func EncodeSubAction(tag uint8, v interface{}) ([]byte, error) {
	payload, err := rlp.EncodeToBytes(v)
	if err != nil {
		return nil, fmt.Errorf("stake: encode sub-action %#x: %w", tag, err)
	}
	return rlp.EncodeToBytes(subActionWire{Tag: tag, Payload: payload})
}

// DecodeSubAction reads a sub-action's tag and returns the decoded
// value as one of this file's concrete types.
func DecodeSubAction(data []byte) (tag uint8, action interface{}, err error) {
	var w subActionWire
	if err := rlp.DecodeBytes(data, &w); err != nil {
		return 0, nil, fmt.Errorf("stake: decode sub-action wire: %w", err)
	}
	decodeInto := func(v interface{}) error { return rlp.DecodeBytes(w.Payload, v) }

	switch w.Tag {
	case TagTransferCCS:
		var v TransferCCS
		return w.Tag, v, decodeInto(&v)
	case TagDelegateCCS:
		var v DelegateCCS
		return w.Tag, v, decodeInto(&v)
	case TagRevoke:
		var v Revoke
		return w.Tag, v, decodeInto(&v)
	case TagRedelegate:
		var v Redelegate
		return w.Tag, v, decodeInto(&v)
	case TagSelfNominate:
		var v SelfNominate
		return w.Tag, v, decodeInto(&v)
	case TagReportDoubleVote:
		var msgs [2]voteMessageWire
		if err := decodeInto(&msgs); err != nil {
			return w.Tag, nil, err
		}
		return w.Tag, ReportDoubleVote{Message1: fromWire(msgs[0]), Message2: fromWire(msgs[1])}, nil
	case TagChangeParams:
		var wire changeParamsWire
		if err := decodeInto(&wire); err != nil {
			return w.Tag, nil, err
		}
		return w.Tag, ChangeParams{MetadataSeq: wire.MetadataSeq, Params: wire.Params, Signatures: wire.Signatures}, nil
	default:
		return w.Tag, nil, fmt.Errorf("stake: unknown sub-action tag %#x", w.Tag)
	}
}

// EncodeReportDoubleVote is a typed convenience wrapper over
// EncodeSubAction, since ReportDoubleVote needs its two VoteMessages
// converted to their wire form first.
func EncodeReportDoubleVote(v ReportDoubleVote) ([]byte, error) {
	pair := [2]voteMessageWire{toWire(v.Message1), toWire(v.Message2)}
	return EncodeSubAction(TagReportDoubleVote, pair)
}

type changeParamsWire struct {
	MetadataSeq uint64
	Params      Params
	Signatures  []core.Signature
}

// EncodeChangeParams is a typed convenience wrapper over EncodeSubAction.
func EncodeChangeParams(v ChangeParams) ([]byte, error) {
	return EncodeSubAction(TagChangeParams, changeParamsWire{
		MetadataSeq: v.MetadataSeq,
		Params:      v.Params,
		Signatures:  v.Signatures,
	})
}

// signingPayload returns the byte string a ChangeParams signature
// covers: the action with its signature list cleared, matching the
// original's "re-encode with signatures stripped, hash, recover".
func (v ChangeParams) signingPayload() ([]byte, error) {
	return rlp.EncodeToBytes(changeParamsWire{MetadataSeq: v.MetadataSeq, Params: v.Params})
}
