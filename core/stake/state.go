package stake

// state.go persists stake bookkeeping through the generic action-data
// blob slots core/state.TopLevelState already exposes to Custom
// handlers (GetActionData/PutActionData) — stake balances, delegation,
// candidacy and the ban list are private to this handler, so they get
// no dedicated entityStore kind of their own.
//
// Grounded on the teacher's state/stake_penalty.go (orbas1-Synnergy): a
// ledger-backed stake/penalty manager keyed by validator address,
// generalized here to the full TransferCCS/DelegateCCS/Revoke/
// Redelegate/SelfNominate bookkeeping the original's actions.rs drives.

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	core "codechain-core/core"
	"codechain-core/core/state"
)

func keyFor(namespace string, addr core.Address) core.Hash {
	return core.Blake256(append([]byte(namespace+"\x00"), addr.Bytes()...))
}

var paramsKey = core.Blake256([]byte("stake-params"))

// Delegation records one delegatee and the quantity currently assigned
// to it; stored as a slice rather than a map since go-ethereum/rlp does
// not support maps.
type Delegation struct {
	Delegatee core.Address
	Quantity  uint64
}

// Account is one address's stake bookkeeping: its own undelegated
// balance, and the delegations it has made to others.
type Account struct {
	Balance     uint64
	Delegations []Delegation
}

// delegatedTo returns the current quantity addr has delegated to
// delegatee, and the slice index it lives at (-1 if none).
func (a *Account) delegatedTo(delegatee core.Address) (uint64, int) {
	for i, d := range a.Delegations {
		if d.Delegatee == delegatee {
			return d.Quantity, i
		}
	}
	return 0, -1
}

func (a *Account) addDelegation(delegatee core.Address, quantity uint64) {
	_, idx := a.delegatedTo(delegatee)
	if idx >= 0 {
		a.Delegations[idx].Quantity += quantity
		return
	}
	a.Delegations = append(a.Delegations, Delegation{Delegatee: delegatee, Quantity: quantity})
}

// subDelegation removes quantity from the delegation to delegatee,
// pruning the entry if it drops to zero. Returns false if the existing
// delegation is smaller than quantity.
func (a *Account) subDelegation(delegatee core.Address, quantity uint64) bool {
	existing, idx := a.delegatedTo(delegatee)
	if idx < 0 || existing < quantity {
		return false
	}
	if existing == quantity {
		a.Delegations = append(a.Delegations[:idx], a.Delegations[idx+1:]...)
		return true
	}
	a.Delegations[idx].Quantity -= quantity
	return true
}

// Candidate is a self-nominated validator's locked deposit and metadata.
type Candidate struct {
	Deposit     uint64
	Metadata    []byte
	MetadataSeq uint64
}

func getAccount(top *state.TopLevelState, addr core.Address) (Account, error) {
	raw, ok := top.GetActionData(keyFor("stake-account", addr))
	if !ok {
		return Account{}, nil
	}
	var a Account
	if err := rlp.DecodeBytes(raw, &a); err != nil {
		return Account{}, core.ErrDatabase("stake: decode account %s: %v", addr, err)
	}
	return a, nil
}

func putAccount(top *state.TopLevelState, addr core.Address, a Account) error {
	raw, err := rlp.EncodeToBytes(a)
	if err != nil {
		return core.ErrDatabase("stake: encode account %s: %v", addr, err)
	}
	top.PutActionData(keyFor("stake-account", addr), raw)
	return nil
}

func getCandidate(top *state.TopLevelState, addr core.Address) (Candidate, bool, error) {
	raw, ok := top.GetActionData(keyFor("stake-candidate", addr))
	if !ok {
		return Candidate{}, false, nil
	}
	var c Candidate
	if err := rlp.DecodeBytes(raw, &c); err != nil {
		return Candidate{}, false, core.ErrDatabase("stake: decode candidate %s: %v", addr, err)
	}
	return c, true, nil
}

func putCandidate(top *state.TopLevelState, addr core.Address, c Candidate) error {
	raw, err := rlp.EncodeToBytes(c)
	if err != nil {
		return core.ErrDatabase("stake: encode candidate %s: %v", addr, err)
	}
	top.PutActionData(keyFor("stake-candidate", addr), raw)
	return nil
}

func isBanned(top *state.TopLevelState, addr core.Address) bool {
	_, ok := top.GetActionData(keyFor("stake-banned", addr))
	return ok
}

func ban(top *state.TopLevelState, addr core.Address) {
	top.PutActionData(keyFor("stake-banned", addr), []byte{1})
}

func getParams(top *state.TopLevelState) (Params, error) {
	raw, ok := top.GetActionData(paramsKey)
	if !ok {
		return DefaultParams(), nil
	}
	var p Params
	if err := rlp.DecodeBytes(raw, &p); err != nil {
		return Params{}, core.ErrDatabase("stake: decode params: %v", err)
	}
	return p, nil
}

func putParams(top *state.TopLevelState, p Params) error {
	raw, err := rlp.EncodeToBytes(p)
	if err != nil {
		return fmt.Errorf("stake: encode params: %w", err)
	}
	top.PutActionData(paramsKey, raw)
	return nil
}
