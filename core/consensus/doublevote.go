package consensus

// doublevote.go implements §4.7's ReportDoubleVote evidence check: "two
// consensus messages with identical (height, round, signer_index) but
// distinct block_hash constitute evidence; verification requires that
// both messages are signature-valid against the validator determined by
// the parent hash at that height and that the messages differ. The
// verification order is: duplication -> round equality -> signer-index
// equality -> non-genesis -> two signature checks."
//
// Scenario S6 exercises the rejection messages verbatim ("different
// voting rounds", "different signer indexes"), so this file preserves
// those strings rather than a generic error type.

import (
	"errors"
	"fmt"

	core "codechain-core/core"
)

// VoteMessage is one Tendermint consensus message: a validator's vote
// for blockHash at (Height, Round), identified by its index into the
// validator set effective at the vote's parent block.
type VoteMessage struct {
	Height      uint64
	Round       uint64
	SignerIndex int
	BlockHash   core.Hash
	Signature   core.Signature
}

// signingHash is the digest a VoteMessage's Signature covers: a keyed
// hash of (Height, Round, SignerIndex, BlockHash) so that the same
// validator voting for the same block_hash at different heights never
// collides with a different vote's pre-image.
func (m VoteMessage) signingHash() core.Hash {
	var buf []byte
	buf = append(buf, beUint64(m.Height)...)
	buf = append(buf, beUint64(m.Round)...)
	buf = append(buf, beUint64(uint64(m.SignerIndex))...)
	buf = append(buf, m.BlockHash.Bytes()...)
	return core.Blake256(buf)
}

func beUint64(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

// VerifyDoubleVote checks that a and b are valid double-vote evidence
// against the validator set effective at parentHash, in the exact order
// §4.7 specifies. A nil return means the evidence is valid and the
// signer at a.SignerIndex should be slashed.
func VerifyDoubleVote(vs *ValidatorSet, parentHash core.Hash, a, b VoteMessage) error {
	// duplication: the two messages must actually conflict, not be the
	// same vote replayed.
	if a.BlockHash == b.BlockHash {
		return errors.New("not a double vote: identical block hash")
	}
	if a.Round != b.Round {
		return errors.New("different voting rounds")
	}
	if a.SignerIndex != b.SignerIndex {
		return errors.New("different signer indexes")
	}
	if a.Height == 0 || b.Height == 0 {
		return errors.New("double vote evidence at genesis is not accepted")
	}
	if a.Height != b.Height {
		return errors.New("different heights")
	}

	validator, ok := vs.ValidatorAt(parentHash, a.SignerIndex)
	if !ok {
		return fmt.Errorf("no validator at index %d for parent %s", a.SignerIndex, parentHash)
	}
	if err := verifyVoteSignature(validator, a); err != nil {
		return fmt.Errorf("first message: %w", err)
	}
	if err := verifyVoteSignature(validator, b); err != nil {
		return fmt.Errorf("second message: %w", err)
	}
	return nil
}

// verifyVoteSignature checks that m.Signature was produced by
// validator's key over m's signing hash.
func verifyVoteSignature(validator Validator, m VoteMessage) error {
	signer, err := core.RecoverSigner(m.signingHash(), m.Signature)
	if err != nil {
		return fmt.Errorf("recover vote signer: %w", err)
	}
	if signer != validator.Address {
		return fmt.Errorf("signature does not match validator %s", validator.Address)
	}
	return nil
}
