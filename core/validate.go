package core

// validate.go implements the §3 "structural validity check": the
// stateless syntax checks a transaction must pass before it is even
// worth admitting to the mempool or dispatching to the state engine
// (§7 KindSyntax: "malformed action, over-long metadata, duplicated
// (tracker, index), zero quantity, invalid-network-id, invalid wrap
// asset-type"). State-dependent checks (account existence, asset
// scheme existence, ...) remain core/state's job during apply.

import "fmt"

// MaxStoreContentBytes bounds a Store action's Content field (§7
// "over-long metadata").
const MaxStoreContentBytes = 1 << 16

// MaxAssetMetadataBytes bounds a MintAsset/ChangeAssetScheme Metadata
// field.
const MaxAssetMetadataBytes = 1 << 16

// ValidateTransaction runs every structural check that does not require
// reading state: the network id tag, and the action's own shape.
func ValidateTransaction(tx *SignedTransaction, networkID NetworkID) error {
	if tx.Unsigned.NetworkID != networkID {
		return ErrSyntax("invalid network id: expected %s, got %s", networkID, tx.Unsigned.NetworkID)
	}
	return ValidateAction(tx.Unsigned.Action)
}

// ValidateAction runs the action-shape checks that do not require state
// access.
func ValidateAction(action Action) error {
	switch a := action.(type) {
	case Pay:
		return nil
	case SetRegularKey:
		return nil
	case CreateShard:
		return nil
	case SetShardOwners:
		if len(a.Owners) == 0 {
			return ErrSyntax("set shard owners: owner list must not be empty")
		}
		return nil
	case SetShardUsers:
		return nil
	case WrapCCC:
		if a.Quantity == 0 {
			return ErrSyntax("wrap ccc: quantity must not be zero")
		}
		return nil
	case Store:
		if len(a.Content) > MaxStoreContentBytes {
			return ErrSyntax("store: content exceeds %d bytes", MaxStoreContentBytes)
		}
		return nil
	case Remove:
		return nil
	case Custom:
		return nil // handler-id existence is an engine-level check (invariant 5)
	case MintAsset:
		if len(a.Metadata) > MaxAssetMetadataBytes {
			return ErrSyntax("mint asset: metadata exceeds %d bytes", MaxAssetMetadataBytes)
		}
		if a.Output.Supply == 0 {
			return ErrSyntax("mint asset: supply must not be zero")
		}
		return nil
	case TransferAsset:
		return validateTransfer(a)
	case ChangeAssetScheme:
		if a.AssetType == AssetTypeZero {
			return ErrSyntax("change asset scheme: asset type zero is reserved for wrapped CCC")
		}
		if len(a.Metadata) > MaxAssetMetadataBytes {
			return ErrSyntax("change asset scheme: metadata exceeds %d bytes", MaxAssetMetadataBytes)
		}
		return nil
	case IncreaseAssetSupply:
		if a.AssetType == AssetTypeZero {
			return ErrSyntax("increase asset supply: asset type zero is reserved for wrapped CCC")
		}
		if a.Output.Supply == 0 {
			return ErrSyntax("increase asset supply: supply must not be zero")
		}
		return nil
	case UnwrapCCC:
		if a.Burn.Prev.AssetType != AssetTypeZero {
			return ErrSyntax("unwrap ccc: burn must reference asset type zero")
		}
		if a.Burn.Prev.Quantity == 0 {
			return ErrSyntax("unwrap ccc: burn quantity must not be zero")
		}
		return nil
	default:
		return ErrSyntax("unrecognized action type %T", a)
	}
}

// validateTransfer checks invariants 3 and 4 structurally: no zero
// quantities, and no (tracker, index) outpoint referenced twice across
// Inputs+Burns.
func validateTransfer(a TransferAsset) error {
	seen := make(map[string]struct{}, len(a.Inputs)+len(a.Burns))
	mark := func(op AssetOutPoint) error {
		key := fmt.Sprintf("%s:%d", op.Tracker, op.Index)
		if _, dup := seen[key]; dup {
			return ErrSyntax("duplicate outpoint %s/%d", op.Tracker, op.Index)
		}
		seen[key] = struct{}{}
		return nil
	}
	for _, in := range a.Inputs {
		if err := mark(in.Prev); err != nil {
			return err
		}
		if in.Prev.Quantity == 0 {
			return ErrSyntax("transfer asset: zero-quantity input %s/%d", in.Prev.Tracker, in.Prev.Index)
		}
	}
	for _, in := range a.Burns {
		if err := mark(in.Prev); err != nil {
			return err
		}
		if in.Prev.Quantity == 0 {
			return ErrSyntax("transfer asset: zero-quantity burn %s/%d", in.Prev.Tracker, in.Prev.Index)
		}
	}
	for _, out := range a.Outputs {
		if out.Quantity == 0 {
			return ErrSyntax("transfer asset: zero-quantity output")
		}
	}
	return nil
}
