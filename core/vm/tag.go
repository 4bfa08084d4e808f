package vm

import (
	"fmt"

	core "codechain-core/core"
)

// Tag is the partial-hash selector a ChkSig/ChkMultiSig signer commits
// to (§6 "partial-hash tag", Testable Property 6). It lets a signer sign
// over only a subset of a TransferAsset's inputs/outputs — e.g. a single
// input, or an order that must cover every output.
type Tag struct {
	SignAllInputs  bool
	SignAllOutputs bool
	Burn           bool
	// OutputMask selects which outputs are covered when !SignAllOutputs;
	// little-endian, bit i (byte i/8, bit i%8) set means output i is
	// included. Its length in bytes is carried as the 5-bit filter
	// length in the tag's low byte (at most 31).
	OutputMask []byte
}

// EncodeTag serializes tag to the wire form: one low byte packing the
// three flags plus a 5-bit filter length, followed by that many mask
// bytes.
func EncodeTag(tag Tag) ([]byte, error) {
	if len(tag.OutputMask) > 31 {
		return nil, fmt.Errorf("output mask too long: %d bytes (max 31)", len(tag.OutputMask))
	}
	if tag.SignAllOutputs && len(tag.OutputMask) != 0 {
		return nil, core.ErrInvalidFilter
	}
	low := byte(len(tag.OutputMask)) << 3
	if tag.SignAllInputs {
		low |= 0x01
	}
	if tag.SignAllOutputs {
		low |= 0x02
	}
	if tag.Burn {
		low |= 0x04
	}
	out := append([]byte{low}, tag.OutputMask...)
	return out, nil
}

// DecodeTag parses a wire-form tag, rejecting combinations §6 calls out
// as InvalidFilter (e.g. a non-zero mask alongside sign-all-outputs).
func DecodeTag(raw []byte) (Tag, error) {
	if len(raw) == 0 {
		return Tag{}, fmt.Errorf("empty tag")
	}
	low := raw[0]
	filterLen := int(low >> 3)
	tag := Tag{
		SignAllInputs:  low&0x01 != 0,
		SignAllOutputs: low&0x02 != 0,
		Burn:           low&0x04 != 0,
	}
	if len(raw)-1 != filterLen {
		return Tag{}, core.ErrInvalidFilter
	}
	if tag.SignAllOutputs && filterLen != 0 {
		return Tag{}, core.ErrInvalidFilter
	}
	tag.OutputMask = append([]byte{}, raw[1:]...)
	return tag, nil
}

// outputIncluded reports whether output index idx is covered by tag.
func (tag Tag) outputIncluded(idx int) bool {
	if tag.SignAllOutputs {
		return true
	}
	byteIdx, bit := idx/8, uint(idx%8)
	if byteIdx >= len(tag.OutputMask) {
		return false
	}
	return tag.OutputMask[byteIdx]&(1<<bit) != 0
}

// strip returns the TransferAsset action restricted to the
// inputs/outputs tag selects: every input when SignAllInputs, else only
// inputIndex; every output when SignAllOutputs, else only those
// tag.outputIncluded marks. Burns are always included — burning is
// never partially committed. A negative inputIndex identifies a burn's
// own unlock: burns always sign over every regular input, the same as
// SignAllInputs.
func strip(t core.TransferAsset, tag Tag, inputIndex int) (core.TransferAsset, error) {
	out := t
	out.Approvals = nil
	if !tag.SignAllInputs && inputIndex >= 0 {
		if inputIndex >= len(t.Inputs) {
			return core.TransferAsset{}, fmt.Errorf("input index %d out of range", inputIndex)
		}
		out.Inputs = []core.AssetTransferInput{t.Inputs[inputIndex]}
	}
	if !tag.SignAllOutputs {
		var kept []core.AssetTransferOutput
		for i, o := range t.Outputs {
			if tag.outputIncluded(i) {
				kept = append(kept, o)
			}
		}
		out.Outputs = kept
	}
	return out, nil
}

// HashPartially computes the digest a ChkSig/ChkMultiSig signature over
// input inputIndex of TransferAsset t must cover, for the given tag:
// blake256 keyed by blake128(tag-bytes) over the RLP encoding of t
// stripped to tag's selected inputs/outputs (Testable Property 6).
func HashPartially(t core.TransferAsset, tag Tag, inputIndex int) (core.Hash, error) {
	stripped, err := strip(t, tag, inputIndex)
	if err != nil {
		return core.Hash{}, err
	}
	tagBytes, err := EncodeTag(tag)
	if err != nil {
		return core.Hash{}, err
	}
	enc, err := core.EncodeActionRLP(stripped)
	if err != nil {
		return core.Hash{}, err
	}
	key := core.Blake128(tagBytes)
	return core.Blake256WithKey(enc, key), nil
}
