package core

import (
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// UnsignedTransaction is the signed pre-image: {seq, fee, network_id,
// action} (§6).
type UnsignedTransaction struct {
	Seq       uint64
	Fee       uint64
	NetworkID NetworkID
	Action    Action
}

// SignedTransaction is an UnsignedTransaction plus a signature. Signer
// recovery yields the paying address; hash is the digest of the signed
// form (§3).
type SignedTransaction struct {
	Unsigned  UnsignedTransaction
	Signature Signature

	// cached fields, populated by Hash()/Signer()
	hash      *Hash
	signer    *Address
}

// Hash returns the digest of the signed transaction, memoized.
func (tx *SignedTransaction) Hash() Hash {
	if tx.hash != nil {
		return *tx.hash
	}
	enc, err := EncodeSignedTransactionRLP(tx)
	if err != nil {
		// encoding a well-formed in-memory transaction cannot fail;
		// a failure here means a caller built an invalid Action value.
		panic(fmt.Sprintf("encode tx for hashing: %v", err))
	}
	h := Blake256(enc)
	tx.hash = &h
	return h
}

// Signer recovers the address that produced Signature over the unsigned
// transaction's hash. The result is memoized.
func (tx *SignedTransaction) Signer() (Address, error) {
	if tx.signer != nil {
		return *tx.signer, nil
	}
	preimage, err := EncodeUnsignedTransactionRLP(&tx.Unsigned)
	if err != nil {
		return Address{}, err
	}
	msgHash := Blake256(preimage)
	pub, err := crypto.SigToPub(msgHash[:], tx.Signature[:])
	if err != nil {
		return Address{}, fmt.Errorf("recover signer: %w", err)
	}
	addr := Address(crypto.PubkeyToAddress(*pub))
	tx.signer = &addr
	return addr, nil
}

// SignTransaction signs the unsigned transaction with priv and populates Signature.
func SignTransaction(unsigned UnsignedTransaction, priv []byte) (*SignedTransaction, error) {
	key, err := crypto.ToECDSA(priv)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	preimage, err := EncodeUnsignedTransactionRLP(&unsigned)
	if err != nil {
		return nil, err
	}
	msgHash := Blake256(preimage)
	sig, err := crypto.Sign(msgHash[:], key)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	tx := &SignedTransaction{Unsigned: unsigned}
	copy(tx.Signature[:], sig)
	return tx, nil
}

// Tracker computes the content hash of a shard transaction's action,
// stable across approval additions: the pre-image excludes the Approvals
// field (§3 "Tracker", Testable Property set implicitly relies on this
// for asset-creation identity).
func (tx *SignedTransaction) Tracker() (Tracker, error) {
	action := tx.Unsigned.Action
	if !action.IsShardTransaction() {
		return Tracker{}, fmt.Errorf("tracker: action %T is not a shard transaction", action)
	}
	stripped := stripApprovals(action)
	enc, err := EncodeActionRLP(stripped)
	if err != nil {
		return Tracker{}, err
	}
	return Blake256(enc), nil
}

// stripApprovals returns a copy of a shard action with Approvals cleared.
func stripApprovals(a Action) Action {
	switch v := a.(type) {
	case MintAsset:
		v.Approvals = nil
		return v
	case TransferAsset:
		v.Approvals = nil
		return v
	case ChangeAssetScheme:
		v.Approvals = nil
		return v
	case IncreaseAssetSupply:
		v.Approvals = nil
		return v
	case UnwrapCCC:
		v.Approvals = nil
		return v
	default:
		return a
	}
}
