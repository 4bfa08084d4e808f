package vm

import (
	"bytes"

	core "codechain-core/core"
	config "codechain-core/pkg/config"
	state "codechain-core/core/state"
)

// Verifier implements core/state's ScriptVerifier capability: it decodes
// the lock/unlock scripts carried by an AssetTransferInput and runs them
// through the interpreter, translating the three-way Result into the
// error core/state expects (nil on a burn-flag match, *core.
// FailedToUnlockError otherwise).
type Verifier struct {
	Chain  ChainView
	Config config.VMConfig
}

var _ state.ScriptVerifier = (*Verifier)(nil)

// Unlock implements state.ScriptVerifier.
func (v *Verifier) Unlock(lockScriptHash core.H160, lockScript, unlockScript []byte, parameters [][]byte, tx *core.SignedTransaction, burns bool, blockNumber uint64) error {
	lockIns, err := DecodeScript(lockScript)
	if err != nil {
		return core.ErrSyntax("decode lock script: %v", err)
	}
	unlockIns, err := DecodeScript(unlockScript)
	if err != nil {
		return core.ErrSyntax("decode unlock script: %v", err)
	}

	transfer, hasTransfer, inputIndex := locateInput(tx, lockScript, unlockScript)

	result, err := Execute(unlockIns, lockIns, parameters, tx, transfer, hasTransfer, inputIndex, burns, v.Chain, v.Config, blockNumber, 0)
	if err != nil {
		return err
	}
	switch {
	case result == ResultUnlocked && !burns:
		return nil
	case result == ResultBurnt && burns:
		return nil
	default:
		return &core.FailedToUnlockError{Address: lockScriptHash}
	}
}

// locateInput finds which AssetTransferInput within tx's action carries
// lockScript/unlockScript, so the interpreter can select the right
// partial-hash subset. A burn is reported with inputIndex -1 (see
// strip in tag.go): a burn always signs over every regular input.
func locateInput(tx *core.SignedTransaction, lockScript, unlockScript []byte) (transfer core.TransferAsset, hasTransfer bool, inputIndex int) {
	switch a := tx.Unsigned.Action.(type) {
	case core.TransferAsset:
		for i, in := range a.Inputs {
			if bytes.Equal(in.LockScript, lockScript) && bytes.Equal(in.UnlockScript, unlockScript) {
				return a, true, i
			}
		}
		for _, in := range a.Burns {
			if bytes.Equal(in.LockScript, lockScript) && bytes.Equal(in.UnlockScript, unlockScript) {
				return a, true, -1
			}
		}
	}
	return core.TransferAsset{}, false, 0
}
