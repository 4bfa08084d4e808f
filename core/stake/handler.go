package stake

// handler.go dispatches one Custom.Bytes sub-action payload to the
// corresponding apply* method, implementing state.CustomHandler.
//
// Grounded on the teacher's plugin dispatch in state/stake_penalty.go
// (orbas1-Synnergy) generalized to the full sub-action catalogue, and
// on original_source's actions.rs Action::verify for the specific
// validity checks each sub-action enforces before mutating state.

import (
	"github.com/sirupsen/logrus"

	core "codechain-core/core"
	"codechain-core/core/consensus"
	"codechain-core/core/state"
)

// ChainView is the narrow read capability ReportDoubleVote needs: the
// header immediately preceding the signed block height, whose hash
// names the validator-set snapshot the evidence must verify against
// (§4.7). Satisfied directly by *chain.Client.
type ChainView interface {
	HeaderByNumber(number uint64) (*core.Header, bool)
}

// Stake is the Stake Custom-action handler (handler_id 2).
type Stake struct {
	Validators *consensus.ValidatorSet
	Chain      ChainView
	log        *logrus.Logger
}

// New constructs a Stake handler. validators and chain are needed only
// by ReportDoubleVote; every other sub-action is pure top-level state.
func New(validators *consensus.ValidatorSet, chain ChainView) *Stake {
	return &Stake{Validators: validators, Chain: chain, log: logrus.StandardLogger()}
}

var _ state.CustomHandler = (*Stake)(nil)

func (s *Stake) HandlerID() uint64 { return HandlerID }

func (s *Stake) Apply(ctx *state.ApplyContext, signer core.Address, payload []byte) error {
	tag, action, err := DecodeSubAction(payload)
	if err != nil {
		return core.ErrSyntax("stake: %v", err)
	}
	switch a := action.(type) {
	case TransferCCS:
		return s.applyTransferCCS(ctx, signer, a)
	case DelegateCCS:
		return s.applyDelegateCCS(ctx, signer, a)
	case Revoke:
		return s.applyRevoke(ctx, signer, a)
	case Redelegate:
		return s.applyRedelegate(ctx, signer, a)
	case SelfNominate:
		return s.applySelfNominate(ctx, signer, a)
	case ReportDoubleVote:
		return s.applyReportDoubleVote(ctx, signer, a)
	case ChangeParams:
		return s.applyChangeParams(ctx, signer, a)
	default:
		return core.ErrSyntax("stake: unhandled sub-action tag %#x", tag)
	}
}

func (s *Stake) applyTransferCCS(ctx *state.ApplyContext, signer core.Address, a TransferCCS) error {
	from, err := getAccount(ctx.Top, signer)
	if err != nil {
		return err
	}
	if from.Balance < a.Quantity {
		return core.ErrRuntime("stake: transfer: %s has %d CCS, needs %d", signer, from.Balance, a.Quantity)
	}
	to, err := getAccount(ctx.Top, a.Address)
	if err != nil {
		return err
	}
	from.Balance -= a.Quantity
	to.Balance += a.Quantity
	if err := putAccount(ctx.Top, signer, from); err != nil {
		return err
	}
	return putAccount(ctx.Top, a.Address, to)
}

func (s *Stake) applyDelegateCCS(ctx *state.ApplyContext, signer core.Address, a DelegateCCS) error {
	acc, err := getAccount(ctx.Top, signer)
	if err != nil {
		return err
	}
	if acc.Balance < a.Quantity {
		return core.ErrRuntime("stake: delegate: %s has %d undelegated CCS, needs %d", signer, acc.Balance, a.Quantity)
	}
	acc.Balance -= a.Quantity
	acc.addDelegation(a.Address, a.Quantity)
	return putAccount(ctx.Top, signer, acc)
}

func (s *Stake) applyRevoke(ctx *state.ApplyContext, signer core.Address, a Revoke) error {
	acc, err := getAccount(ctx.Top, signer)
	if err != nil {
		return err
	}
	if !acc.subDelegation(a.Address, a.Quantity) {
		return core.ErrRuntime("stake: revoke: %s has not delegated %d CCS to %s", signer, a.Quantity, a.Address)
	}
	acc.Balance += a.Quantity
	return putAccount(ctx.Top, signer, acc)
}

func (s *Stake) applyRedelegate(ctx *state.ApplyContext, signer core.Address, a Redelegate) error {
	acc, err := getAccount(ctx.Top, signer)
	if err != nil {
		return err
	}
	if !acc.subDelegation(a.PrevDelegatee, a.Quantity) {
		return core.ErrRuntime("stake: redelegate: %s has not delegated %d CCS to %s", signer, a.Quantity, a.PrevDelegatee)
	}
	acc.addDelegation(a.NextDelegatee, a.Quantity)
	return putAccount(ctx.Top, signer, acc)
}

func (s *Stake) applySelfNominate(ctx *state.ApplyContext, signer core.Address, a SelfNominate) error {
	if isBanned(ctx.Top, signer) {
		return core.ErrRuntime("stake: self-nominate: %s is banned", signer)
	}
	params, err := getParams(ctx.Top)
	if err != nil {
		return err
	}
	if uint64(len(a.Metadata)) > params.MaxCandidateMetadataSize {
		return core.ErrSyntax("stake: self-nominate: metadata %d bytes exceeds limit %d", len(a.Metadata), params.MaxCandidateMetadataSize)
	}
	if a.Deposit < params.MinSelfNominationDeposit {
		return core.ErrRuntime("stake: self-nominate: deposit %d below minimum %d", a.Deposit, params.MinSelfNominationDeposit)
	}
	acc, err := getAccount(ctx.Top, signer)
	if err != nil {
		return err
	}
	if acc.Balance < a.Deposit {
		return core.ErrRuntime("stake: self-nominate: %s has %d CCS, needs %d deposit", signer, acc.Balance, a.Deposit)
	}
	acc.Balance -= a.Deposit

	candidate, _, err := getCandidate(ctx.Top, signer)
	if err != nil {
		return err
	}
	candidate.Deposit += a.Deposit
	candidate.Metadata = a.Metadata
	candidate.MetadataSeq++

	if err := putAccount(ctx.Top, signer, acc); err != nil {
		return err
	}
	return putCandidate(ctx.Top, signer, candidate)
}

// applyReportDoubleVote verifies the evidence per §4.7's exact order
// (delegated to consensus.VerifyDoubleVote) and, on success, bans the
// offending signer and forfeits its candidacy deposit.
func (s *Stake) applyReportDoubleVote(ctx *state.ApplyContext, reporter core.Address, a ReportDoubleVote) error {
	if a.Message1.Height == 0 {
		return core.ErrConsensus("stake: double vote evidence at genesis is not accepted")
	}
	parent, ok := s.Chain.HeaderByNumber(a.Message1.Height - 1)
	if !ok {
		return core.ErrRuntime("stake: report double vote: unknown parent at height %d", a.Message1.Height-1)
	}
	parentHash := parent.Hash()

	if err := consensus.VerifyDoubleVote(s.Validators, parentHash, a.Message1, a.Message2); err != nil {
		return core.ErrConsensus("stake: double vote verification failed: %v", err)
	}

	offender, ok := s.Validators.ValidatorAt(parentHash, a.Message1.SignerIndex)
	if !ok {
		return core.ErrRuntime("stake: report double vote: no validator at index %d", a.Message1.SignerIndex)
	}

	ban(ctx.Top, offender.Address)
	candidate, found, err := getCandidate(ctx.Top, offender.Address)
	if err != nil {
		return err
	}
	if found {
		candidate.Deposit = 0
		if err := putCandidate(ctx.Top, offender.Address, candidate); err != nil {
			return err
		}
	}
	s.log.Warnf("stake: slashed %s for double voting at height %d", offender.Address, a.Message1.Height)
	return nil
}

// applyChangeParams mirrors the original's CommonParams::verify:
// network id must match, and every listed signature must recover
// (no further identity check is performed against the signature, which
// preserves the original's exact, narrower, verification).
func (s *Stake) applyChangeParams(ctx *state.ApplyContext, _ core.Address, a ChangeParams) error {
	current, err := getParams(ctx.Top)
	if err != nil {
		return err
	}
	if current.NetworkID != a.Params.NetworkID {
		return core.ErrSyntax("stake: change params: network id %s does not match current %s", a.Params.NetworkID, current.NetworkID)
	}
	if len(a.Signatures) == 0 {
		return core.ErrSyntax("stake: change params: at least one signature is required")
	}

	unsigned := ChangeParams{MetadataSeq: a.MetadataSeq, Params: a.Params}
	payload, err := unsigned.signingPayload()
	if err != nil {
		return core.ErrSyntax("stake: change params: %v", err)
	}
	digest := core.Blake256(payload)
	for _, sig := range a.Signatures {
		if _, err := core.RecoverSigner(digest, sig); err != nil {
			return core.ErrSyntax("stake: change params: invalid signature: %v", err)
		}
	}

	return putParams(ctx.Top, a.Params)
}
