package state

// actions_shard.go applies the shard actions of §3/§4.1: MintAsset,
// TransferAsset, ChangeAssetScheme, IncreaseAssetSupply and UnwrapCCC.
// These enforce invariant 3 (conservation of (asset_type, quantity)
// across inputs+burns vs outputs), invariant 4 (no outpoint spent
// twice), and the approver/registrar-signature requirements on
// scheme-governance actions; Approvals are verified as signatures over
// the action's Tracker (§3 Tracker, core.SignedTransaction.Tracker),
// the same stripped-of-approvals digest the shard syncs on.

import core "codechain-core/core"

func applyMintAsset(ctx *ApplyContext, tx *core.SignedTransaction, a core.MintAsset) error {
	tracker, err := tx.Tracker()
	if err != nil {
		return core.ErrSyntax("mint asset: %v", err)
	}
	shard, err := ctx.Shard(a.ShardID)
	if err != nil {
		return err
	}
	if _, exists, err := shard.GetScheme(tracker); err != nil {
		return err
	} else if exists {
		return core.ErrRuntime("mint asset: scheme %s already exists", tracker)
	}
	if a.Approver != nil && !approvalsContain(tracker, a.Approvals, *a.Approver) {
		return core.ErrRuntime("mint asset: missing approver signature")
	}
	scheme := core.AssetScheme{
		Metadata:            a.Metadata,
		Supply:              a.Output.Supply,
		Approver:            a.Approver,
		Registrar:           a.Registrar,
		AllowedScriptHashes: a.AllowedScriptHashes,
	}
	if err := shard.PutScheme(tracker, scheme); err != nil {
		return err
	}
	return shard.PutAsset(tracker, 0, core.OwnedAsset{
		AssetType:      tracker,
		ShardID:        a.ShardID,
		Quantity:       a.Output.Supply,
		LockScriptHash: a.Output.LockScriptHash,
		Parameters:     a.Output.Parameters,
	})
}

func applyTransferAsset(ctx *ApplyContext, tx *core.SignedTransaction, a core.TransferAsset) error {
	if err := checkNoDuplicateOutpoints(a.Inputs, a.Burns); err != nil {
		return err
	}

	conserved := make(map[core.AssetType]int64)

	spend := func(in core.AssetTransferInput, burn bool) error {
		shard, err := ctx.Shard(in.Prev.ShardID)
		if err != nil {
			return err
		}
		asset, exists, err := shard.GetAsset(in.Prev.Tracker, in.Prev.Index)
		if err != nil {
			return err
		}
		if !exists {
			return core.ErrRuntime("transfer asset: outpoint %s/%d not found", in.Prev.Tracker, in.Prev.Index)
		}
		if asset.AssetType != in.Prev.AssetType || asset.Quantity != in.Prev.Quantity {
			return core.ErrRuntime("transfer asset: outpoint %s/%d does not match referenced asset", in.Prev.Tracker, in.Prev.Index)
		}
		if core.Blake160(in.LockScript) != asset.LockScriptHash {
			return core.ErrRuntime("transfer asset: lock script does not match outpoint %s/%d", in.Prev.Tracker, in.Prev.Index)
		}
		if ctx.Engine.Verifier != nil {
			if err := ctx.Engine.Verifier.Unlock(asset.LockScriptHash, in.LockScript, in.UnlockScript, asset.Parameters, tx, burn, ctx.BlockNumber); err != nil {
				return core.ErrRuntime("transfer asset: unlock failed for %s/%d: %v", in.Prev.Tracker, in.Prev.Index, err)
			}
		}
		shard.RemoveAsset(in.Prev.Tracker, in.Prev.Index)
		conserved[asset.AssetType] += int64(asset.Quantity)
		return nil
	}

	for _, in := range a.Inputs {
		if err := spend(in, false); err != nil {
			return err
		}
	}
	for _, b := range a.Burns {
		if err := spend(b, true); err != nil {
			return err
		}
	}

	tracker, err := tx.Tracker()
	if err != nil {
		return core.ErrSyntax("transfer asset: %v", err)
	}
	for i, out := range a.Outputs {
		conserved[out.AssetType] -= int64(out.Quantity)
		shard, err := ctx.Shard(out.ShardID)
		if err != nil {
			return err
		}
		if err := shard.PutAsset(tracker, core.OutputIndex(i), core.OwnedAsset{
			AssetType:      out.AssetType,
			ShardID:        out.ShardID,
			Quantity:       out.Quantity,
			LockScriptHash: out.LockScriptHash,
			Parameters:     out.Parameters,
		}); err != nil {
			return err
		}
	}

	for assetType, diff := range conserved {
		if diff != 0 {
			return core.ErrRuntime("transfer asset: inputs+burns do not conserve quantity for asset type %s (off by %d)", assetType, diff)
		}
	}
	return nil
}

func applyChangeAssetScheme(ctx *ApplyContext, tx *core.SignedTransaction, a core.ChangeAssetScheme) error {
	if a.AssetType == core.AssetTypeZero {
		return core.ErrSyntax("change asset scheme: asset type zero is reserved for wrapped CCC")
	}
	shard, err := ctx.Shard(a.ShardID)
	if err != nil {
		return err
	}
	scheme, exists, err := shard.GetScheme(a.AssetType)
	if err != nil {
		return err
	}
	if !exists {
		return core.ErrRuntime("change asset scheme: scheme %s does not exist", a.AssetType)
	}
	tracker, err := tx.Tracker()
	if err != nil {
		return core.ErrSyntax("change asset scheme: %v", err)
	}
	if scheme.Registrar == nil || !approvalsContain(tracker, a.Approvals, *scheme.Registrar) {
		return core.ErrRuntime("change asset scheme: missing registrar approval")
	}
	scheme.Metadata = a.Metadata
	scheme.Approver = a.Approver
	scheme.Registrar = a.Registrar
	scheme.AllowedScriptHashes = a.AllowedScriptHashes
	scheme.Seq++
	return shard.PutScheme(a.AssetType, scheme)
}

func applyIncreaseAssetSupply(ctx *ApplyContext, tx *core.SignedTransaction, a core.IncreaseAssetSupply) error {
	if a.AssetType == core.AssetTypeZero {
		return core.ErrSyntax("increase asset supply: asset type zero is reserved for wrapped CCC")
	}
	shard, err := ctx.Shard(a.ShardID)
	if err != nil {
		return err
	}
	scheme, exists, err := shard.GetScheme(a.AssetType)
	if err != nil {
		return err
	}
	if !exists {
		return core.ErrRuntime("increase asset supply: scheme %s does not exist", a.AssetType)
	}
	tracker, err := tx.Tracker()
	if err != nil {
		return core.ErrSyntax("increase asset supply: %v", err)
	}
	if scheme.Registrar == nil || !approvalsContain(tracker, a.Approvals, *scheme.Registrar) {
		return core.ErrRuntime("increase asset supply: missing registrar approval")
	}
	scheme.Supply += a.Output.Supply
	if err := shard.PutScheme(a.AssetType, scheme); err != nil {
		return err
	}
	return shard.PutAsset(tracker, 0, core.OwnedAsset{
		AssetType:      a.AssetType,
		ShardID:        a.ShardID,
		Quantity:       a.Output.Supply,
		LockScriptHash: a.Output.LockScriptHash,
		Parameters:     a.Output.Parameters,
	})
}

func applyUnwrapCCC(ctx *ApplyContext, tx *core.SignedTransaction, a core.UnwrapCCC) error {
	shard, err := ctx.Shard(a.ShardID)
	if err != nil {
		return err
	}
	in := a.Burn
	asset, exists, err := shard.GetAsset(in.Prev.Tracker, in.Prev.Index)
	if err != nil {
		return err
	}
	if !exists {
		return core.ErrRuntime("unwrap ccc: outpoint %s/%d not found", in.Prev.Tracker, in.Prev.Index)
	}
	if asset.AssetType != core.AssetTypeZero {
		return core.ErrSyntax("unwrap ccc: outpoint %s/%d is not wrapped CCC", in.Prev.Tracker, in.Prev.Index)
	}
	if core.Blake160(in.LockScript) != asset.LockScriptHash {
		return core.ErrRuntime("unwrap ccc: lock script does not match outpoint %s/%d", in.Prev.Tracker, in.Prev.Index)
	}
	if ctx.Engine.Verifier != nil {
		if err := ctx.Engine.Verifier.Unlock(asset.LockScriptHash, in.LockScript, in.UnlockScript, asset.Parameters, tx, true, ctx.BlockNumber); err != nil {
			return core.ErrRuntime("unwrap ccc: unlock failed: %v", err)
		}
	}
	shard.RemoveAsset(in.Prev.Tracker, in.Prev.Index)
	receiver, err := ctx.Top.GetAccount(a.Receiver)
	if err != nil {
		return err
	}
	receiver.Balance += asset.Quantity
	return ctx.Top.PutAccount(a.Receiver, receiver)
}

// checkNoDuplicateOutpoints enforces invariant 4: no (tracker, index) is
// referenced twice across a transaction's inputs and burns combined.
func checkNoDuplicateOutpoints(inputs, burns []core.AssetTransferInput) error {
	seen := make(map[core.AssetOutPoint]struct{}, len(inputs)+len(burns))
	mark := func(op core.AssetOutPoint) error {
		key := core.AssetOutPoint{Tracker: op.Tracker, Index: op.Index}
		if _, dup := seen[key]; dup {
			return core.ErrSyntax("duplicate outpoint %s/%d", op.Tracker, op.Index)
		}
		seen[key] = struct{}{}
		return nil
	}
	for _, in := range inputs {
		if err := mark(in.Prev); err != nil {
			return err
		}
	}
	for _, b := range burns {
		if err := mark(b.Prev); err != nil {
			return err
		}
	}
	return nil
}

func approvalsContain(tracker core.Hash, approvals []core.Signature, want core.Address) bool {
	for _, sig := range approvals {
		if addr, err := core.RecoverSigner(tracker, sig); err == nil && addr == want {
			return true
		}
	}
	return false
}
